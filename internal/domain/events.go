package domain

import "time"

// TriggerKind names the risk mechanism that fired.
type TriggerKind string

const (
	TriggerTrailingStop TriggerKind = "trailing_stop"
	TriggerTakeProfit   TriggerKind = "take_profit"
)

// TriggerEvent is the one-shot signal that a risk condition was met. A
// mechanism emits at most one event per configuration; it stays silent until
// it is disabled and re-enabled.
type TriggerEvent struct {
	ID           string      `json:"id"`
	Kind         TriggerKind `json:"kind"`
	AccountID    string      `json:"account_id"`
	PositionKey  string      `json:"position_key"`
	Symbol       string      `json:"symbol"`
	Price        float64     `json:"price"`
	TriggerPrice float64     `json:"trigger_price,omitempty"` // trailing stop
	TargetPnL    float64     `json:"target_pnl,omitempty"`    // take profit
	PnL          float64     `json:"pnl,omitempty"`
	At           time.Time   `json:"at"`
}
