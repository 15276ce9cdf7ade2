package risk

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionsentry/optionsentry/internal/domain"
)

func newTestEngine() *Engine {
	base := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	return NewEngineWithClock(func() time.Time { return base })
}

func enabledTrailingStop(percent, price float64) domain.RiskState {
	return domain.RiskState{
		TrailingStop: domain.TrailingStopState{
			Enabled:      true,
			Percent:      percent,
			HighestPrice: price,
			TriggerPrice: price * (1 - percent/100),
		},
	}
}

func TestTrailingStopRatchetsUpOnly(t *testing.T) {
	e := newTestEngine()
	state := enabledTrailingStop(20, 1.00)

	state, events := e.Evaluate(state, 1.50, 1.00, 1)
	require.Empty(t, events)
	assert.InDelta(t, 1.50, state.TrailingStop.HighestPrice, 1e-9)
	assert.InDelta(t, 1.20, state.TrailingStop.TriggerPrice, 1e-9)

	// A lower price must not move the high-water mark or the trigger.
	state, events = e.Evaluate(state, 1.30, 1.00, 1)
	require.Empty(t, events)
	assert.InDelta(t, 1.50, state.TrailingStop.HighestPrice, 1e-9)
	assert.InDelta(t, 1.20, state.TrailingStop.TriggerPrice, 1e-9)
}

func TestTrailingStopTriggersExactlyOnce(t *testing.T) {
	e := newTestEngine()
	state := enabledTrailingStop(20, 1.00)

	state, events := e.Evaluate(state, 1.50, 1.00, 1)
	require.Empty(t, events)

	state, events = e.Evaluate(state, 1.19, 1.00, 1)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TriggerTrailingStop, events[0].Kind)
	assert.InDelta(t, 1.19, events[0].Price, 1e-9)
	assert.InDelta(t, 1.20, events[0].TriggerPrice, 1e-9)
	assert.True(t, state.TrailingStop.Triggered)

	// Subsequent ticks while triggered stay silent.
	state, events = e.Evaluate(state, 1.10, 1.00, 1)
	assert.Empty(t, events)
	assert.True(t, state.TrailingStop.Triggered)
}

func TestTrailingStopHighestPriceNonDecreasing(t *testing.T) {
	e := newTestEngine()
	state := enabledTrailingStop(15, 2.00)

	prices := []float64{2.10, 1.95, 2.50, 2.40, 3.00, 2.80, 2.56}
	prevHigh := state.TrailingStop.HighestPrice
	for _, p := range prices {
		state, _ = e.Evaluate(state, p, 2.00, 1)
		assert.GreaterOrEqual(t, state.TrailingStop.HighestPrice, prevHigh)
		if state.TrailingStop.Enabled && !state.TrailingStop.Triggered {
			assert.InDelta(t,
				state.TrailingStop.HighestPrice*(1-state.TrailingStop.Percent/100),
				state.TrailingStop.TriggerPrice, 1e-9)
		}
		prevHigh = state.TrailingStop.HighestPrice
	}
}

func TestTrailingStopDisabledIsInert(t *testing.T) {
	e := newTestEngine()
	state := domain.RiskState{}

	state, events := e.Evaluate(state, 5.00, 1.00, 1)
	assert.Empty(t, events)
	assert.Zero(t, state.TrailingStop.HighestPrice)
	assert.False(t, state.TrailingStop.Triggered)
}

func TestTakeProfitThreshold(t *testing.T) {
	e := newTestEngine()
	state := domain.RiskState{
		TakeProfit: domain.TakeProfitState{
			Enabled:   true,
			Percent:   50,
			TargetPnL: TargetPnL(1.00, 1, 50), // $50 on one contract at $1.00
		},
	}
	require.InDelta(t, 50.0, state.TakeProfit.TargetPnL, 1e-9)

	// $1.49 -> pnl $49, below target.
	state, events := e.Evaluate(state, 1.49, 1.00, 1)
	require.Empty(t, events)
	assert.False(t, state.TakeProfit.Triggered)

	// $1.50 -> pnl $50, fires exactly once.
	state, events = e.Evaluate(state, 1.50, 1.00, 1)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TriggerTakeProfit, events[0].Kind)
	assert.InDelta(t, 50.0, events[0].PnL, 1e-9)
	assert.True(t, state.TakeProfit.Triggered)

	state, events = e.Evaluate(state, 2.00, 1.00, 1)
	assert.Empty(t, events)
}

func TestBothMechanismsCanFireOnOneTick(t *testing.T) {
	e := newTestEngine()
	state := enabledTrailingStop(20, 10.00)
	state.TakeProfit = domain.TakeProfitState{
		Enabled:   true,
		Percent:   50,
		TargetPnL: TargetPnL(1.00, 1, 50),
	}

	// Price collapses from a $10 high to $8: below the $8.00 trigger
	// (<=) and still far above the take-profit target on a $1.00 entry.
	state, events := e.Evaluate(state, 8.00, 1.00, 1)
	require.Len(t, events, 2)
	kinds := map[domain.TriggerKind]bool{}
	for _, evt := range events {
		kinds[evt.Kind] = true
	}
	assert.True(t, kinds[domain.TriggerTrailingStop])
	assert.True(t, kinds[domain.TriggerTakeProfit])
	assert.True(t, state.TrailingStop.Triggered)
	assert.True(t, state.TakeProfit.Triggered)
}

func TestPnLHelpers(t *testing.T) {
	assert.InDelta(t, 50.0, PnL(1.50, 1.00, 1), 1e-9)
	assert.InDelta(t, -100.0, PnL(0.50, 1.00, 2), 1e-9)
	assert.InDelta(t, 50.0, PnLPercent(1.50, 1.00, 3), 1e-9)
	assert.Zero(t, PnLPercent(1.50, 0, 1))
	assert.InDelta(t, 100.0, TargetPnL(2.00, 1, 50), 1e-9)
}
