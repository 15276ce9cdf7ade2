// Package sim is the paper-trading order submitter. It accepts close orders
// like the live brokerage would, then walks them through a plausible fill
// lifecycle on a timer so the rest of the system exercises the same
// reconciliation paths in simulated and live mode.
package sim

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optionsentry/optionsentry/internal/domain"
)

const (
	defaultFillDelay = 3 * time.Second
	defaultFillProb  = 0.95
	advanceInterval  = time.Second
)

// UpdateHandler receives each order status change the simulator makes.
type UpdateHandler func(ctx context.Context, order domain.Order)

type simOrder struct {
	order      domain.Order
	triggerKey string
	statusAt   time.Time // when the current status was entered
}

// Submitter is the simulated brokerage. Implements domain.OrderSubmitter,
// domain.OrderStatusSource, and domain.OrderCanceler.
type Submitter struct {
	mu     sync.Mutex
	orders map[string]*simOrder
	byKey  map[string]string // trigger key -> order id

	onUpdate  UpdateHandler
	logger    *slog.Logger
	now       func() time.Time
	roll      func() float64
	fillDelay time.Duration
	fillProb  float64
}

// Option customizes a Submitter.
type Option func(*Submitter)

// WithClock injects a clock for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Submitter) { s.now = now }
}

// WithFillDelay sets how long an order sits in each non-terminal status
// before the simulator advances it.
func WithFillDelay(d time.Duration) Option {
	return func(s *Submitter) { s.fillDelay = d }
}

// WithFillRoll injects the random source deciding full versus partial fills.
func WithFillRoll(roll func() float64) Option {
	return func(s *Submitter) { s.roll = roll }
}

// NewSubmitter creates a Submitter with the default fill behavior: a fill
// lands at least three seconds after confirmation and completes in one step
// 95% of the time, via a partial fill otherwise.
func NewSubmitter(logger *slog.Logger, opts ...Option) *Submitter {
	s := &Submitter{
		orders:    make(map[string]*simOrder),
		byKey:     make(map[string]string),
		logger:    logger.With(slog.String("component", "sim_broker")),
		now:       time.Now,
		roll:      rand.Float64,
		fillDelay: defaultFillDelay,
		fillProb:  defaultFillProb,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnUpdate registers the handler called for every simulated status change.
// Must be set before Run.
func (s *Submitter) OnUpdate(h UpdateHandler) {
	s.onUpdate = h
}

// SubmitClose accepts a close order and confirms it immediately. A repeated
// TriggerKey returns the order already created for that trigger instead of
// placing a second one.
func (s *Submitter) SubmitClose(_ context.Context, accountID string, spec domain.OrderSpec) (domain.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if spec.TriggerKey != "" {
		if id, ok := s.byKey[spec.TriggerKey]; ok {
			return s.orders[id].order, nil
		}
	}

	u := uuid.New()
	now := s.now()
	order := domain.Order{
		ID:          fmt.Sprintf("SIM_%x", u[:6]),
		AccountID:   accountID,
		Symbol:      spec.Position.Symbol,
		PositionKey: spec.Position.Key(),
		Kind:        domain.OrderKindSimulated,
		Status:      domain.OrderStatusConfirmed,
		LimitPrice:  spec.LimitPrice,
		StopPrice:   spec.StopPrice,
		Quantity:    spec.Position.Quantity,
		SubmittedAt: now,
		UpdatedAt:   now,
	}
	s.orders[order.ID] = &simOrder{order: order, triggerKey: spec.TriggerKey, statusAt: now}
	if spec.TriggerKey != "" {
		s.byKey[spec.TriggerKey] = order.ID
	}

	s.logger.Info("simulated close order accepted",
		slog.String("order_id", order.ID),
		slog.String("account_id", accountID),
		slog.String("symbol", order.Symbol),
		slog.Float64("limit_price", order.LimitPrice),
	)
	return order, nil
}

// OrderStatus reports the simulator-side status of an order.
func (s *Submitter) OrderStatus(_ context.Context, orderID string) (domain.OrderStatus, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	so, ok := s.orders[orderID]
	if !ok {
		return "", fmt.Errorf("sim: order %s: %w", orderID, domain.ErrUnknownOrder)
	}
	return so.order.Status, nil
}

// CancelOrder cancels a non-terminal order. Cancelling an order that already
// reached a terminal status fails.
func (s *Submitter) CancelOrder(_ context.Context, orderID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	so, ok := s.orders[orderID]
	if !ok {
		return fmt.Errorf("sim: order %s: %w", orderID, domain.ErrUnknownOrder)
	}
	if so.order.Status.Terminal() {
		return &domain.InvalidTransitionError{OrderID: orderID, From: so.order.Status, To: domain.OrderStatusCancelled}
	}
	s.setStatusLocked(so, domain.OrderStatusCancelled)
	return nil
}

// Run drives the fill clock until the context is cancelled.
func (s *Submitter) Run(ctx context.Context) error {
	ticker := time.NewTicker(advanceInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			for _, order := range s.advance() {
				if s.onUpdate != nil {
					s.onUpdate(ctx, order)
				}
			}
		}
	}
}

// advance moves every order that has aged past the fill delay one step
// through its lifecycle and returns the changed orders.
func (s *Submitter) advance() []domain.Order {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	var changed []domain.Order
	for _, so := range s.orders {
		if so.order.Status.Terminal() || now.Sub(so.statusAt) < s.fillDelay {
			continue
		}
		switch so.order.Status {
		case domain.OrderStatusConfirmed:
			if s.roll() < s.fillProb {
				s.setStatusLocked(so, domain.OrderStatusFilled)
			} else {
				s.setStatusLocked(so, domain.OrderStatusPartiallyFilled)
			}
		case domain.OrderStatusPartiallyFilled:
			s.setStatusLocked(so, domain.OrderStatusFilled)
		default:
			continue
		}
		changed = append(changed, so.order)
	}
	return changed
}

func (s *Submitter) setStatusLocked(so *simOrder, status domain.OrderStatus) {
	so.order.Status = status
	now := s.now()
	so.order.UpdatedAt = now
	so.statusAt = now
	s.logger.Debug("simulated order advanced",
		slog.String("order_id", so.order.ID),
		slog.String("status", string(status)),
	)
}
