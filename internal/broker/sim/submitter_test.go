package sim

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionsentry/optionsentry/internal/domain"
)

type testClock struct{ now time.Time }

func (c *testClock) advance(d time.Duration) { c.now = c.now.Add(d) }

func newTestSubmitter(t *testing.T, roll float64) (*Submitter, *testClock) {
	t.Helper()
	clock := &testClock{now: time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSubmitter(logger,
		WithClock(func() time.Time { return clock.now }),
		WithFillRoll(func() float64 { return roll }),
	)
	return s, clock
}

func testSpec(triggerKey string) domain.OrderSpec {
	return domain.OrderSpec{
		Position: domain.Position{
			Symbol:       "AAPL",
			Strike:       150,
			OptionType:   domain.OptionTypeCall,
			Expiration:   "2026-09-18",
			Quantity:     2,
			EntryPremium: 1.00,
			OptionID:     "opt-aapl",
		},
		LimitPrice: 1.20,
		TriggerKey: triggerKey,
	}
}

func TestSubmitCloseConfirmsImmediately(t *testing.T) {
	s, _ := newTestSubmitter(t, 0)

	order, err := s.SubmitClose(context.Background(), "acct-1", testSpec("key-1"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.ID, "SIM_"))
	assert.Len(t, order.ID, len("SIM_")+12)
	assert.Equal(t, domain.OrderStatusConfirmed, order.Status)
	assert.Equal(t, domain.OrderKindSimulated, order.Kind)
	assert.Equal(t, "AAPL_2026-09-18_150_call", order.PositionKey)
	assert.Equal(t, 2, order.Quantity)
}

func TestTriggerKeyDeduplicates(t *testing.T) {
	s, _ := newTestSubmitter(t, 0)
	ctx := context.Background()

	first, err := s.SubmitClose(ctx, "acct-1", testSpec("key-1"))
	require.NoError(t, err)
	again, err := s.SubmitClose(ctx, "acct-1", testSpec("key-1"))
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)

	other, err := s.SubmitClose(ctx, "acct-1", testSpec("key-2"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, other.ID)
}

func TestFullFillAfterDelay(t *testing.T) {
	s, clock := newTestSubmitter(t, 0.5) // below the 0.95 cutoff: full fill
	ctx := context.Background()

	order, err := s.SubmitClose(ctx, "acct-1", testSpec("key-1"))
	require.NoError(t, err)

	// Too early; nothing moves.
	clock.advance(2 * time.Second)
	assert.Empty(t, s.advance())

	clock.advance(time.Second + time.Millisecond)
	changed := s.advance()
	require.Len(t, changed, 1)
	assert.Equal(t, domain.OrderStatusFilled, changed[0].Status)

	status, err := s.OrderStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, status)

	// Terminal orders never advance again.
	clock.advance(time.Minute)
	assert.Empty(t, s.advance())
}

func TestPartialFillPath(t *testing.T) {
	s, clock := newTestSubmitter(t, 0.99) // above the cutoff: partial first
	ctx := context.Background()

	order, err := s.SubmitClose(ctx, "acct-1", testSpec("key-1"))
	require.NoError(t, err)

	clock.advance(4 * time.Second)
	changed := s.advance()
	require.Len(t, changed, 1)
	assert.Equal(t, domain.OrderStatusPartiallyFilled, changed[0].Status)

	// The partial completes after another delay.
	clock.advance(4 * time.Second)
	changed = s.advance()
	require.Len(t, changed, 1)
	assert.Equal(t, domain.OrderStatusFilled, changed[0].Status)

	status, err := s.OrderStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, status)
}

func TestCancelOrder(t *testing.T) {
	s, clock := newTestSubmitter(t, 0.5)
	ctx := context.Background()

	order, err := s.SubmitClose(ctx, "acct-1", testSpec("key-1"))
	require.NoError(t, err)
	require.NoError(t, s.CancelOrder(ctx, order.ID))

	status, err := s.OrderStatus(ctx, order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusCancelled, status)

	// Cancelled is terminal: no fills, no second cancel.
	clock.advance(time.Minute)
	assert.Empty(t, s.advance())
	var invalid *domain.InvalidTransitionError
	assert.ErrorAs(t, s.CancelOrder(ctx, order.ID), &invalid)
}

func TestUnknownOrder(t *testing.T) {
	s, _ := newTestSubmitter(t, 0.5)
	ctx := context.Background()

	_, err := s.OrderStatus(ctx, "SIM_missing00000")
	assert.ErrorIs(t, err, domain.ErrUnknownOrder)
	assert.ErrorIs(t, s.CancelOrder(ctx, "SIM_missing00000"), domain.ErrUnknownOrder)
}

func TestRunDeliversUpdates(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSubmitter(logger,
		WithFillDelay(5*time.Millisecond),
		WithFillRoll(func() float64 { return 0 }),
	)
	updates := make(chan domain.Order, 4)
	s.OnUpdate(func(_ context.Context, order domain.Order) {
		updates <- order
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.Run(ctx)
	}()

	order, err := s.SubmitClose(ctx, "acct-1", testSpec("key-1"))
	require.NoError(t, err)

	select {
	case got := <-updates:
		assert.Equal(t, order.ID, got.ID)
		assert.Equal(t, domain.OrderStatusFilled, got.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("no fill update delivered")
	}

	cancel()
	<-done
}
