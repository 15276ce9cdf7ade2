// Package risk holds the pure state-transition logic for the per-position
// risk mechanisms: the ratcheting trailing stop and the one-shot take-profit
// threshold. The engine performs no I/O and takes no locks; the account
// monitor owns calling it and acting on what fired.
package risk

import (
	"time"

	"github.com/google/uuid"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// Engine evaluates risk state against price ticks. It is stateless and safe
// to share.
type Engine struct {
	now func() time.Time
}

// NewEngine creates an Engine using the wall clock.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// NewEngineWithClock creates an Engine with an injectable clock for tests.
func NewEngineWithClock(now func() time.Time) *Engine {
	return &Engine{now: now}
}

// Evaluate feeds one price tick through both mechanisms and returns the
// updated state plus any trigger events. A single tick can emit zero, one, or
// two events (at most one per mechanism). Once a mechanism's Triggered flag
// is set it stays silent until the caller resets it by reconfiguring.
//
// Prices are non-negative; percent values are whole-number percentages and
// converted to fractions only here. No rounding happens in the engine.
func (e *Engine) Evaluate(state domain.RiskState, price, entryPremium float64, quantity int) (domain.RiskState, []domain.TriggerEvent) {
	var events []domain.TriggerEvent

	if ts, evt := e.evaluateTrailingStop(state.TrailingStop, price); evt != nil {
		state.TrailingStop = ts
		events = append(events, *evt)
	} else {
		state.TrailingStop = ts
	}

	if tp, evt := e.evaluateTakeProfit(state.TakeProfit, price, entryPremium, quantity); evt != nil {
		state.TakeProfit = tp
		events = append(events, *evt)
	} else {
		state.TakeProfit = tp
	}

	return state, events
}

// evaluateTrailingStop ratchets the high-water mark and checks the trigger.
// The trigger price only ever rises: it is recomputed when a new high is
// seen, never when the price falls.
func (e *Engine) evaluateTrailingStop(ts domain.TrailingStopState, price float64) (domain.TrailingStopState, *domain.TriggerEvent) {
	if !ts.Enabled || ts.Triggered {
		return ts, nil
	}

	if price > ts.HighestPrice {
		ts.HighestPrice = price
		ts.TriggerPrice = price * (1 - ts.Percent/100)
	}
	ts.LastUpdate = e.now()

	if price <= ts.TriggerPrice {
		ts.Triggered = true
		return ts, &domain.TriggerEvent{
			ID:           uuid.New().String(),
			Kind:         domain.TriggerTrailingStop,
			Price:        price,
			TriggerPrice: ts.TriggerPrice,
			At:           e.now(),
		}
	}

	return ts, nil
}

// evaluateTakeProfit checks the one-shot profit target. No ratcheting.
func (e *Engine) evaluateTakeProfit(tp domain.TakeProfitState, price, entryPremium float64, quantity int) (domain.TakeProfitState, *domain.TriggerEvent) {
	if !tp.Enabled || tp.Triggered {
		return tp, nil
	}

	pnl := PnL(price, entryPremium, quantity)
	if pnl >= tp.TargetPnL {
		tp.Triggered = true
		return tp, &domain.TriggerEvent{
			ID:        uuid.New().String(),
			Kind:      domain.TriggerTakeProfit,
			Price:     price,
			TargetPnL: tp.TargetPnL,
			PnL:       pnl,
			At:        e.now(),
		}
	}

	return tp, nil
}

// PnL is the unrealized dollar profit of a long option position at the given
// per-share price.
func PnL(price, entryPremium float64, quantity int) float64 {
	return (price - entryPremium) * float64(quantity) * domain.ContractMultiplier
}

// PnLPercent is the unrealized profit as a percentage of the premium paid.
// Zero entry premium yields zero rather than a division by zero.
func PnLPercent(price, entryPremium float64, quantity int) float64 {
	open := entryPremium * float64(quantity) * domain.ContractMultiplier
	if open == 0 {
		return 0
	}
	return PnL(price, entryPremium, quantity) / open * 100
}

// TargetPnL derives the dollar profit target for a take-profit percent.
func TargetPnL(entryPremium float64, quantity int, percent float64) float64 {
	return entryPremium * float64(quantity) * domain.ContractMultiplier * percent / 100
}
