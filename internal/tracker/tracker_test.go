package tracker

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionsentry/optionsentry/internal/domain"
)

func newTestTracker(t *testing.T, opts ...Option) *Tracker {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New("acct-1", logger, opts...)
}

func simOrder(symbol string) domain.Order {
	return domain.Order{
		Symbol:      symbol,
		PositionKey: symbol + "_2026-09-18_150_call",
		Kind:        domain.OrderKindSimulated,
		LimitPrice:  1.25,
		Quantity:    2,
	}
}

func TestSubmitAssignsSimulatedID(t *testing.T) {
	tr := newTestTracker(t)

	order, err := tr.Submit(context.Background(), simOrder("AAPL"))
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(order.ID, "SIM_"), "id %q", order.ID)
	assert.Len(t, order.ID, len("SIM_")+12)
	assert.Equal(t, domain.OrderStatusPending, order.Status)
	assert.Equal(t, "acct-1", order.AccountID)
}

func TestUpdateStateFollowsLifecycle(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	order, err := tr.Submit(ctx, simOrder("TSLA"))
	require.NoError(t, err)

	require.NoError(t, tr.UpdateState(ctx, order.ID, domain.OrderStatusConfirmed))
	require.NoError(t, tr.UpdateState(ctx, order.ID, domain.OrderStatusPartiallyFilled))
	require.NoError(t, tr.UpdateState(ctx, order.ID, domain.OrderStatusFilled))

	got, err := tr.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusFilled, got.Status)
}

func TestUpdateStateRejectsInvalidTransition(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	order, err := tr.Submit(ctx, simOrder("TSLA"))
	require.NoError(t, err)

	// pending cannot jump straight to filled.
	err = tr.UpdateState(ctx, order.ID, domain.OrderStatusFilled)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, domain.OrderStatusPending, invalid.From)
	assert.Equal(t, domain.OrderStatusFilled, invalid.To)

	// Rejected transition must not mutate the order.
	got, err := tr.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestUpdateStateRejectsTerminalOrders(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	order, err := tr.Submit(ctx, simOrder("SPY"))
	require.NoError(t, err)
	require.NoError(t, tr.UpdateState(ctx, order.ID, domain.OrderStatusConfirmed))
	require.NoError(t, tr.UpdateState(ctx, order.ID, domain.OrderStatusCancelled))

	err = tr.UpdateState(ctx, order.ID, domain.OrderStatusFilled)
	var invalid *domain.InvalidTransitionError
	require.ErrorAs(t, err, &invalid)
}

func TestUpdateStateUnknownOrder(t *testing.T) {
	tr := newTestTracker(t)

	err := tr.UpdateState(context.Background(), "SIM_000000000000", domain.OrderStatusConfirmed)
	assert.ErrorIs(t, err, domain.ErrUnknownOrder)
}

func TestGetUnknownOrder(t *testing.T) {
	tr := newTestTracker(t)

	_, err := tr.Get("nope")
	assert.ErrorIs(t, err, domain.ErrUnknownOrder)
}

func TestListFiltersByKindAndStatus(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	sim, err := tr.Submit(ctx, simOrder("AAPL"))
	require.NoError(t, err)

	live := simOrder("MSFT")
	live.ID = "BRK-20260829-0001"
	live.Kind = domain.OrderKindLive
	_, err = tr.Record(ctx, live)
	require.NoError(t, err)

	require.NoError(t, tr.UpdateState(ctx, sim.ID, domain.OrderStatusConfirmed))
	require.NoError(t, tr.UpdateState(ctx, sim.ID, domain.OrderStatusFilled))

	all := tr.List(domain.OrderFilter{})
	assert.Len(t, all, 2)

	sims := tr.List(domain.OrderFilter{Kind: domain.OrderKindSimulated})
	require.Len(t, sims, 1)
	assert.Equal(t, sim.ID, sims[0].ID)

	done := tr.List(domain.OrderFilter{Status: domain.OrderStatusFilled})
	require.Len(t, done, 1)
	assert.Equal(t, sim.ID, done[0].ID)
}

func TestListReturnsCopies(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	order, err := tr.Submit(ctx, simOrder("AAPL"))
	require.NoError(t, err)

	snapshot := tr.List(domain.OrderFilter{})
	require.Len(t, snapshot, 1)
	snapshot[0].Status = domain.OrderStatusFailed

	got, err := tr.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusPending, got.Status)
}

func TestConcurrentSubmitsGetDistinctIDs(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	const n = 64
	ids := make(chan string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			order, err := tr.Submit(ctx, simOrder(fmt.Sprintf("SYM%d", i)))
			if err != nil {
				t.Error(err)
				return
			}
			ids <- order.ID
		}(i)
	}
	wg.Wait()
	close(ids)

	seen := make(map[string]bool)
	for id := range ids {
		assert.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
	assert.Len(t, seen, n)
	assert.Len(t, tr.List(domain.OrderFilter{}), n)
}

func TestConcurrentReadersSeeConsistentOrders(t *testing.T) {
	tr := newTestTracker(t)
	ctx := context.Background()

	order, err := tr.Submit(ctx, simOrder("NVDA"))
	require.NoError(t, err)
	require.NoError(t, tr.UpdateState(ctx, order.ID, domain.OrderStatusConfirmed))

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 200; i++ {
			// Alternate between the two legal moves; one succeeds, the
			// rest fail, and readers must never see anything in between.
			_ = tr.UpdateState(ctx, order.ID, domain.OrderStatusPartiallyFilled)
			_ = tr.UpdateState(ctx, order.ID, domain.OrderStatusFilled)
		}
	}()

	valid := map[domain.OrderStatus]bool{
		domain.OrderStatusConfirmed:       true,
		domain.OrderStatusPartiallyFilled: true,
		domain.OrderStatusFilled:          true,
	}
	for i := 0; i < 200; i++ {
		for _, o := range tr.List(domain.OrderFilter{}) {
			assert.True(t, valid[o.Status], "observed status %q", o.Status)
		}
	}
	<-done
}

type failingStore struct{ err error }

func (s *failingStore) Create(context.Context, domain.Order) error { return s.err }
func (s *failingStore) UpdateStatus(context.Context, string, domain.OrderStatus) error {
	return s.err
}
func (s *failingStore) ListByAccount(context.Context, string, int) ([]domain.Order, error) {
	return nil, s.err
}

func TestJournalFailureDoesNotBlockTracking(t *testing.T) {
	store := &failingStore{err: errors.New("db down")}
	tr := newTestTracker(t, WithPersistence(store, nil), WithClock(func() time.Time {
		return time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)
	}))
	ctx := context.Background()

	order, err := tr.Submit(ctx, simOrder("AAPL"))
	require.NoError(t, err)
	require.NoError(t, tr.UpdateState(ctx, order.ID, domain.OrderStatusConfirmed))

	got, err := tr.Get(order.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.OrderStatusConfirmed, got.Status)
	assert.Equal(t, time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC), got.UpdatedAt)
}
