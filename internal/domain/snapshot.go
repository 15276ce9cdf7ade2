package domain

import "time"

// MonitorState is the lifecycle state of one account monitor.
type MonitorState string

const (
	MonitorNotStarted MonitorState = "not_started"
	MonitorLoading    MonitorState = "loading"
	MonitorRunning    MonitorState = "running"
	MonitorStopped    MonitorState = "stopped"
)

// PositionSnapshot is the read view of one tracked position: the immutable
// contract, its risk state, and derived P&L at snapshot time.
type PositionSnapshot struct {
	Position     Position          `json:"position"`
	TrailingStop TrailingStopState `json:"trailing_stop"`
	TakeProfit   TakeProfitState   `json:"take_profit"`
	CurrentPrice float64           `json:"current_price"`
	PnL          float64           `json:"pnl"`
	PnLPercent   float64           `json:"pnl_percent"`
	Degraded     bool              `json:"degraded"` // repeated price failures
}

// AccountSnapshot is an immutable point-in-time view of one account's monitor,
// assembled on demand for external consumers. It is never persisted.
type AccountSnapshot struct {
	AccountID   string             `json:"account_id"`
	State       MonitorState       `json:"state"`
	Positions   []PositionSnapshot `json:"positions"`
	TotalPnL    float64            `json:"total_pnl"`
	MarketOpen  bool               `json:"market_open"`
	Degraded    bool               `json:"degraded"`
	LiveTrading bool               `json:"live_trading"`
	GeneratedAt time.Time          `json:"generated_at"`
}
