// Package tracker records close orders, simulated and live, under a single
// status model. All mutation goes through the tracker so the monitor loop and
// external readers never race on an order; reads always return copies.
package tracker

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optionsentry/optionsentry/internal/domain"
)

// Tracker is the per-account order registry. Safe for concurrent use; every
// operation is linearizable with respect to the others.
type Tracker struct {
	accountID string

	mu     sync.RWMutex
	orders map[string]domain.Order

	// Optional write-through journal. Best-effort: persistence failures are
	// logged and never affect the in-memory state machine.
	store  domain.OrderStore
	audit  domain.AuditStore
	logger *slog.Logger

	now func() time.Time
}

// Option customizes a Tracker.
type Option func(*Tracker)

// WithPersistence attaches a write-through order journal and audit log.
func WithPersistence(store domain.OrderStore, audit domain.AuditStore) Option {
	return func(t *Tracker) {
		t.store = store
		t.audit = audit
	}
}

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a Tracker for one account.
func New(accountID string, logger *slog.Logger, opts ...Option) *Tracker {
	t := &Tracker{
		accountID: accountID,
		orders:    make(map[string]domain.Order),
		logger:    logger.With(slog.String("component", "order_tracker"), slog.String("account_id", accountID)),
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// NewOrderID allocates a fresh simulated order id: "SIM_" plus twelve hex
// characters of a uuid.
func NewOrderID() string {
	u := uuid.New()
	return fmt.Sprintf("SIM_%x", u[:6])
}

// Submit stores a freshly created pending order and returns it. Concurrent
// submissions from triggers firing in the same tick each get a distinct id;
// an id collision is rejected rather than overwritten.
func (t *Tracker) Submit(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		order.ID = NewOrderID()
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusPending
	}
	order.AccountID = t.accountID
	now := t.now()
	order.SubmittedAt = now
	order.UpdatedAt = now

	t.mu.Lock()
	if _, exists := t.orders[order.ID]; exists {
		t.mu.Unlock()
		return domain.Order{}, fmt.Errorf("tracker: duplicate order id %s", order.ID)
	}
	t.orders[order.ID] = order
	t.mu.Unlock()

	t.persistCreate(ctx, order)
	return order, nil
}

// Record stores an order that already exists at the submitter (it carries an
// id and an initial status). Used for orders the brokerage or the simulator
// created on our behalf.
func (t *Tracker) Record(ctx context.Context, order domain.Order) (domain.Order, error) {
	if order.ID == "" {
		return domain.Order{}, fmt.Errorf("tracker: record: missing order id")
	}
	if order.Status == "" {
		order.Status = domain.OrderStatusConfirmed
	}
	order.AccountID = t.accountID
	if order.SubmittedAt.IsZero() {
		order.SubmittedAt = t.now()
	}
	order.UpdatedAt = t.now()

	t.mu.Lock()
	if _, exists := t.orders[order.ID]; exists {
		t.mu.Unlock()
		return domain.Order{}, fmt.Errorf("tracker: duplicate order id %s", order.ID)
	}
	t.orders[order.ID] = order
	t.mu.Unlock()

	t.persistCreate(ctx, order)
	return order, nil
}

// UpdateState applies one status transition. It fails with ErrUnknownOrder
// for an absent id and with InvalidTransitionError when the state machine
// forbids the move.
func (t *Tracker) UpdateState(ctx context.Context, orderID string, status domain.OrderStatus) error {
	t.mu.Lock()
	order, ok := t.orders[orderID]
	if !ok {
		t.mu.Unlock()
		return fmt.Errorf("tracker: update %s: %w", orderID, domain.ErrUnknownOrder)
	}
	if !domain.CanTransition(order.Status, status) {
		t.mu.Unlock()
		return &domain.InvalidTransitionError{OrderID: orderID, From: order.Status, To: status}
	}
	order.Status = status
	order.UpdatedAt = t.now()
	t.orders[orderID] = order
	t.mu.Unlock()

	if t.store != nil {
		if err := t.store.UpdateStatus(ctx, orderID, status); err != nil {
			t.logger.WarnContext(ctx, "order journal update failed",
				slog.String("order_id", orderID),
				slog.String("status", string(status)),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}

// Get returns a copy of one order, or ErrUnknownOrder.
func (t *Tracker) Get(orderID string) (domain.Order, error) {
	t.mu.RLock()
	order, ok := t.orders[orderID]
	t.mu.RUnlock()
	if !ok {
		return domain.Order{}, fmt.Errorf("tracker: get %s: %w", orderID, domain.ErrUnknownOrder)
	}
	return order, nil
}

// List returns a point-in-time copy of the orders passing the filter, newest
// first. Callers can iterate without ever observing a partial mutation.
func (t *Tracker) List(filter domain.OrderFilter) []domain.Order {
	t.mu.RLock()
	out := make([]domain.Order, 0, len(t.orders))
	for _, order := range t.orders {
		if filter.Matches(order) {
			out = append(out, order)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].SubmittedAt.Equal(out[j].SubmittedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].SubmittedAt.After(out[j].SubmittedAt)
	})
	return out
}

// Open returns the tracked orders that have not reached a terminal status.
func (t *Tracker) Open() []domain.Order {
	t.mu.RLock()
	var out []domain.Order
	for _, order := range t.orders {
		if !order.Status.Terminal() {
			out = append(out, order)
		}
	}
	t.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].SubmittedAt.After(out[j].SubmittedAt) })
	return out
}

func (t *Tracker) persistCreate(ctx context.Context, order domain.Order) {
	if t.store != nil {
		if err := t.store.Create(ctx, order); err != nil {
			t.logger.WarnContext(ctx, "order journal create failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
	if t.audit != nil {
		if err := t.audit.Log(ctx, "order_recorded", map[string]any{
			"order_id":    order.ID,
			"account_id":  order.AccountID,
			"symbol":      order.Symbol,
			"kind":        string(order.Kind),
			"status":      string(order.Status),
			"limit_price": order.LimitPrice,
		}); err != nil {
			t.logger.WarnContext(ctx, "audit log failed",
				slog.String("order_id", order.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
