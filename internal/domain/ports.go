package domain

import (
	"context"
	"time"
)

// PriceSource returns the current market price for one option instrument.
// Implementations may fail transiently or serve slightly stale data; callers
// tolerate per-call failure.
type PriceSource interface {
	GetPrice(ctx context.Context, optionID string) (float64, error)
}

// PositionLoader performs the one-time bulk position load for an account at
// monitor start.
type PositionLoader interface {
	Load(ctx context.Context, accountID string) ([]Position, error)
}

// OrderSubmitter places a sell-to-close order, real or simulated. The
// returned Order carries the submitter-assigned id and initial status.
// Duplicate suppression across retried submissions keys on spec.TriggerKey.
type OrderSubmitter interface {
	SubmitClose(ctx context.Context, accountID string, spec OrderSpec) (Order, error)
}

// OrderStatusSource reports the brokerage-side status of a previously
// submitted order, for reconciling tracked live orders.
type OrderStatusSource interface {
	OrderStatus(ctx context.Context, orderID string) (OrderStatus, error)
}

// OrderCanceler requests cancellation of an open order.
type OrderCanceler interface {
	CancelOrder(ctx context.Context, orderID string) error
}

// MarketCalendar answers whether the market is open right now. The core only
// consumes the boolean; holiday tables and timezones live behind this port.
type MarketCalendar interface {
	IsOpenNow() bool
}

// PriceCache holds recent quotes so monitor ticks do not hammer the upstream
// price source.
type PriceCache interface {
	SetPrice(ctx context.Context, optionID string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, optionID string) (float64, time.Time, error)
}

// SignalBus publishes trigger and order events for out-of-process consumers
// (the websocket hub, dashboards).
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channels ...string) (<-chan BusMessage, error)
}

// BusMessage is one published event together with its channel.
type BusMessage struct {
	Channel string
	Payload []byte
}

// OrderStore persists submitted orders and their status transitions. The
// in-memory OrderTracker stays authoritative; the store is a write-through
// journal.
type OrderStore interface {
	Create(ctx context.Context, order Order) error
	UpdateStatus(ctx context.Context, id string, status OrderStatus) error
	ListByAccount(ctx context.Context, accountID string, limit int) ([]Order, error)
}

// AuditStore is an append-only log of risk decisions: triggers fired, orders
// submitted, configuration changes.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
}
