package domain

import "time"

// OrderKind tells a simulated close order apart from one submitted to the
// brokerage.
type OrderKind string

const (
	OrderKindSimulated OrderKind = "simulated"
	OrderKindLive      OrderKind = "live"
)

// OrderStatus tracks the close-order lifecycle.
type OrderStatus string

const (
	OrderStatusPending         OrderStatus = "pending"
	OrderStatusConfirmed       OrderStatus = "confirmed"
	OrderStatusFilled          OrderStatus = "filled"
	OrderStatusPartiallyFilled OrderStatus = "partially_filled"
	OrderStatusCancelled       OrderStatus = "cancelled"
	OrderStatusFailed          OrderStatus = "failed"
)

// orderTransitions encodes the allowed status graph:
// pending -> confirmed -> {filled | partially_filled | cancelled | failed};
// partially_filled -> {filled | cancelled}. Terminal states have no entry.
var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderStatusPending:         {OrderStatusConfirmed},
	OrderStatusConfirmed:       {OrderStatusFilled, OrderStatusPartiallyFilled, OrderStatusCancelled, OrderStatusFailed},
	OrderStatusPartiallyFilled: {OrderStatusFilled, OrderStatusCancelled},
}

// CanTransition reports whether the order state machine allows moving from one
// status to another.
func CanTransition(from, to OrderStatus) bool {
	for _, next := range orderTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// Terminal reports whether a status admits no further transitions.
func (s OrderStatus) Terminal() bool {
	return len(orderTransitions[s]) == 0
}

// Order is one close order, simulated or live. Orders are owned by the
// OrderTracker and mutated only through its methods; they are never deleted,
// only superseded.
type Order struct {
	ID          string      `json:"id"`
	AccountID   string      `json:"account_id"`
	Symbol      string      `json:"symbol"`
	PositionKey string      `json:"position_key"`
	Kind        OrderKind   `json:"kind"`
	Status      OrderStatus `json:"status"`
	LimitPrice  float64     `json:"limit_price"`
	StopPrice   *float64    `json:"stop_price,omitempty"`
	Quantity    int         `json:"quantity"`
	SubmittedAt time.Time   `json:"submitted_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// OrderSpec describes a close order to be placed for a position. TriggerKey is
// an idempotency key minted once per trigger occurrence so a retried
// submission after a partial brokerage failure can be deduplicated downstream.
type OrderSpec struct {
	Position   Position
	LimitPrice float64
	StopPrice  *float64 // set for trailing-stop closes, nil for take-profit
	TriggerKey string
}

// CloseRequest selects one held position for an operator-requested close.
// A zero LimitPrice asks for the default limit derived from the latest quote.
type CloseRequest struct {
	Symbol     string     `json:"symbol"`
	Strike     float64    `json:"strike"`
	OptionType OptionType `json:"option_type"`
	Expiration string     `json:"expiration"`
	LimitPrice float64    `json:"limit_price,omitempty"`
}

// Key returns the position key the request addresses.
func (r CloseRequest) Key() string {
	return Position{Symbol: r.Symbol, Strike: r.Strike, OptionType: r.OptionType, Expiration: r.Expiration}.Key()
}

// OrderFilter selects orders in OrderTracker.List. Zero values match
// everything.
type OrderFilter struct {
	Kind   OrderKind
	Status OrderStatus
}

// Matches reports whether an order passes the filter.
func (f OrderFilter) Matches(o Order) bool {
	if f.Kind != "" && o.Kind != f.Kind {
		return false
	}
	if f.Status != "" && o.Status != f.Status {
		return false
	}
	return true
}
