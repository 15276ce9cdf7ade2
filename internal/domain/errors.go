package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound       = errors.New("not found")
	ErrNotRunning     = errors.New("monitor not running")
	ErrAlreadyLoading = errors.New("monitor already loading")
	ErrInvalidPercent = errors.New("percent must be in (0, 100]")
	ErrUnknownSymbol  = errors.New("unknown symbol")
	ErrUnknownOrder   = errors.New("unknown order")
	ErrNoPrice        = errors.New("no current price available")
	ErrStalePrice     = errors.New("cached price is stale")
)

// ConfigError reports a rejected risk configuration request. The original
// state is left untouched whenever a ConfigError is returned.
type ConfigError struct {
	Field  string
	Reason error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid configuration for %s: %v", e.Field, e.Reason)
}

func (e *ConfigError) Unwrap() error { return e.Reason }

// InvalidTransitionError reports an order status change that the order state
// machine does not permit.
type InvalidTransitionError struct {
	OrderID string
	From    OrderStatus
	To      OrderStatus
}

func (e *InvalidTransitionError) Error() string {
	return fmt.Sprintf("order %s: invalid transition %s -> %s", e.OrderID, e.From, e.To)
}
