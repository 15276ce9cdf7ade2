package domain

import (
	"fmt"
	"time"
)

// OptionType distinguishes calls from puts.
type OptionType string

const (
	OptionTypeCall OptionType = "call"
	OptionTypePut  OptionType = "put"
)

// ContractMultiplier is the share count behind one standard equity option
// contract. Premiums are quoted per share; dollar P&L scales by this.
const ContractMultiplier = 100

// Position is one long option contract held in an account. It is loaded once
// per monitor session and immutable afterwards; only the embedded risk state
// changes as prices tick.
type Position struct {
	Symbol       string     `json:"symbol"`
	Strike       float64    `json:"strike"`
	OptionType   OptionType `json:"option_type"`
	Expiration   string     `json:"expiration"` // YYYY-MM-DD
	Quantity     int        `json:"quantity"`
	EntryPremium float64    `json:"entry_premium"` // per-contract premium paid, per share
	OptionID     string     `json:"option_id"`     // brokerage instrument id used for price lookups
}

// Key returns the position's identity within an account:
// SYMBOL_EXPIRATION_STRIKE_TYPE.
func (p Position) Key() string {
	return fmt.Sprintf("%s_%s_%g_%s", p.Symbol, p.Expiration, p.Strike, p.OptionType)
}

// OpenPremium is the total dollars paid to open the position.
func (p Position) OpenPremium() float64 {
	return p.EntryPremium * float64(p.Quantity) * ContractMultiplier
}

// TrailingStopState is the ratcheting stop for one position. While enabled and
// untriggered, TriggerPrice == HighestPrice * (1 - Percent/100) and
// HighestPrice never decreases. Triggered latches until the stop is
// re-enabled.
type TrailingStopState struct {
	Enabled        bool      `json:"enabled"`
	Percent        float64   `json:"percent"` // whole-number percent, (0, 100]
	HighestPrice   float64   `json:"highest_price"`
	TriggerPrice   float64   `json:"trigger_price"`
	Triggered      bool      `json:"triggered"`
	OrderSubmitted bool      `json:"order_submitted"`
	LastOrderID    *string   `json:"last_order_id,omitempty"`
	LastUpdate     time.Time `json:"last_update"`
}

// TakeProfitState is the one-shot profit target for one position. TargetPnL is
// derived from the entry premium and Percent when the target is configured.
type TakeProfitState struct {
	Enabled   bool    `json:"enabled"`
	Percent   float64 `json:"percent"`
	TargetPnL float64 `json:"target_pnl"` // dollars
	Triggered bool    `json:"triggered"`
}

// RiskState bundles both risk mechanisms for one position. The RiskEngine
// takes and returns values of this type; it never mutates shared state.
type RiskState struct {
	TrailingStop TrailingStopState
	TakeProfit   TakeProfitState
}
