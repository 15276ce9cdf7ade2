// Package monitor runs the per-account polling loop: load positions once,
// then on every tick pull quotes, evaluate risk state, and place close
// orders for whatever fired. One goroutine per account; risk configuration
// arrives through a queue and is applied at the top of the next tick so the
// loop never observes a half-applied change.
package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/optionsentry/optionsentry/internal/domain"
	"github.com/optionsentry/optionsentry/internal/position"
	"github.com/optionsentry/optionsentry/internal/risk"
	"github.com/optionsentry/optionsentry/internal/tracker"
)

// Bus channels for published events.
const (
	ChannelTriggers = "triggers"
	ChannelOrders   = "orders"
)

// Config tunes one account monitor.
type Config struct {
	PollInterval    time.Duration // between ticks while the market is open
	IdleInterval    time.Duration // between ticks while it is closed
	SlippagePercent float64       // limit-price haircut on close orders
	LiveTrading     bool
}

func (c *Config) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.IdleInterval <= 0 {
		c.IdleInterval = 60 * time.Second
	}
}

// Deps are the collaborators one monitor needs. Bus, Audit, StatusSource,
// and Canceler may be nil; the monitor degrades to not publishing, not
// auditing, or rejecting reconciliation requests.
type Deps struct {
	Loader       domain.PositionLoader
	Prices       domain.PriceSource
	Submitter    domain.OrderSubmitter
	Calendar     domain.MarketCalendar
	StatusSource domain.OrderStatusSource
	Canceler     domain.OrderCanceler
	Bus          domain.SignalBus
	Audit        domain.AuditStore
	Tracker      *tracker.Tracker
	Logger       *slog.Logger
}

// configOp is one queued risk-configuration change, applied at tick start.
type configOp struct {
	key   string
	kind  domain.TriggerKind
	apply func(domain.RiskState) domain.RiskState
}

// Monitor watches one account.
type Monitor struct {
	accountID string
	cfg       Config
	deps      Deps

	engine    *risk.Engine
	positions *position.Store
	logger    *slog.Logger
	now       func() time.Time

	mu      sync.Mutex
	state   domain.MonitorState
	pending []configOp
	stopCh  chan struct{}
	wg      sync.WaitGroup

	// pendingKeys carries a trigger's idempotency key across a failed
	// submission so the retry on the next tick deduplicates at the broker.
	// Loop goroutine only.
	pendingKeys map[string]string
}

// New builds a Monitor in the not_started state.
func New(accountID string, cfg Config, deps Deps) *Monitor {
	cfg.applyDefaults()
	return &Monitor{
		accountID:   accountID,
		cfg:         cfg,
		deps:        deps,
		engine:      risk.NewEngine(),
		positions:   position.NewStore(),
		logger:      deps.Logger.With(slog.String("component", "account_monitor"), slog.String("account_id", accountID)),
		now:         time.Now,
		state:       domain.MonitorNotStarted,
		pendingKeys: make(map[string]string),
	}
}

// AccountID returns the monitored account id.
func (m *Monitor) AccountID() string { return m.accountID }

// State returns the current lifecycle state.
func (m *Monitor) State() domain.MonitorState {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Start loads the account's positions and launches the polling loop. The
// load is synchronous: a failure leaves the monitor in not_started and
// returns the error. Starting an already running monitor is a no-op.
func (m *Monitor) Start(ctx context.Context) error {
	m.mu.Lock()
	switch m.state {
	case domain.MonitorRunning:
		m.mu.Unlock()
		return nil
	case domain.MonitorLoading:
		m.mu.Unlock()
		return fmt.Errorf("monitor %s: %w", m.accountID, domain.ErrAlreadyLoading)
	case domain.MonitorStopped:
		m.mu.Unlock()
		return fmt.Errorf("monitor %s: already stopped", m.accountID)
	}
	m.state = domain.MonitorLoading
	m.mu.Unlock()

	positions, err := m.deps.Loader.Load(ctx, m.accountID)
	if err != nil {
		m.mu.Lock()
		m.state = domain.MonitorNotStarted
		m.mu.Unlock()
		return fmt.Errorf("monitor %s: load positions: %w", m.accountID, err)
	}
	m.positions.Replace(positions)

	m.mu.Lock()
	m.state = domain.MonitorRunning
	m.stopCh = make(chan struct{})
	m.mu.Unlock()

	m.logger.Info("monitor started",
		slog.Int("positions", len(positions)),
		slog.Bool("live_trading", m.cfg.LiveTrading),
	)

	// The loop must outlive the caller's context: starts arrive on
	// request-scoped contexts that end as soon as the response is written.
	// Only Stop terminates the loop.
	m.wg.Add(1)
	go m.loop(context.WithoutCancel(ctx))
	return nil
}

// Stop halts the polling loop and waits for the in-flight tick to finish.
// Safe to call more than once.
func (m *Monitor) Stop() {
	m.mu.Lock()
	if m.state != domain.MonitorRunning {
		m.mu.Unlock()
		return
	}
	m.state = domain.MonitorStopped
	close(m.stopCh)
	m.mu.Unlock()

	m.wg.Wait()
	m.logger.Info("monitor stopped")
}

func (m *Monitor) loop(ctx context.Context) {
	defer m.wg.Done()
	defer func() {
		if r := recover(); r != nil {
			m.logger.Error("monitor loop panicked", slog.Any("panic", r))
			m.mu.Lock()
			m.state = domain.MonitorStopped
			m.mu.Unlock()
		}
	}()

	for {
		m.tick(ctx)

		interval := m.cfg.IdleInterval
		if m.deps.Calendar.IsOpenNow() {
			interval = m.cfg.PollInterval
		}
		timer := time.NewTimer(interval)
		select {
		case <-timer.C:
		case <-m.stopCh:
			timer.Stop()
			return
		}
	}
}

// tick is one pass over every tracked position.
func (m *Monitor) tick(ctx context.Context) {
	m.drainConfig()

	for _, key := range m.positions.Keys() {
		pos, state, err := m.positions.Get(key)
		if err != nil {
			continue
		}

		price, err := m.deps.Prices.GetPrice(ctx, pos.OptionID)
		if err != nil {
			degraded, _ := m.positions.RecordPriceFailure(key)
			if degraded {
				m.logger.Warn("position degraded, repeated quote failures",
					slog.String("position", key),
					slog.String("error", err.Error()),
				)
			}
			continue
		}
		if err := m.positions.RecordPrice(key, price, m.now()); err != nil {
			continue
		}

		next, events := m.engine.Evaluate(state, price, pos.EntryPremium, pos.Quantity)
		for _, evt := range events {
			evt.AccountID = m.accountID
			evt.PositionKey = key
			evt.Symbol = pos.Symbol
			next = m.handleTrigger(ctx, pos, next, evt, price)
		}

		if err := m.positions.SetRisk(key, next); err != nil {
			m.logger.Warn("risk state update failed", slog.String("position", key), slog.String("error", err.Error()))
		}
	}
}

// handleTrigger places the close order for one fired mechanism. The
// Triggered flag commits only if submission succeeds; on failure it is
// rolled back so the next tick retries, reusing the same idempotency key.
func (m *Monitor) handleTrigger(ctx context.Context, pos domain.Position, state domain.RiskState, evt domain.TriggerEvent, price float64) domain.RiskState {
	key := pos.Key()
	dedupKey := key + "/" + string(evt.Kind)
	triggerKey, ok := m.pendingKeys[dedupKey]
	if !ok {
		triggerKey = uuid.New().String()
		m.pendingKeys[dedupKey] = triggerKey
	}

	spec := domain.OrderSpec{
		Position:   pos,
		TriggerKey: triggerKey,
	}
	slip := 1 - m.cfg.SlippagePercent/100
	switch evt.Kind {
	case domain.TriggerTrailingStop:
		spec.LimitPrice = evt.TriggerPrice * slip
		stop := evt.TriggerPrice
		spec.StopPrice = &stop
	case domain.TriggerTakeProfit:
		spec.LimitPrice = price * slip
	}

	m.logger.Info("risk trigger fired",
		slog.String("kind", string(evt.Kind)),
		slog.String("position", key),
		slog.Float64("price", price),
		slog.Float64("limit_price", spec.LimitPrice),
	)

	order, err := m.deps.Submitter.SubmitClose(ctx, m.accountID, spec)
	if err != nil {
		m.logger.Error("close order submission failed, will retry",
			slog.String("kind", string(evt.Kind)),
			slog.String("position", key),
			slog.String("error", err.Error()),
		)
		switch evt.Kind {
		case domain.TriggerTrailingStop:
			state.TrailingStop.Triggered = false
		case domain.TriggerTakeProfit:
			state.TakeProfit.Triggered = false
		}
		return state
	}
	delete(m.pendingKeys, dedupKey)

	order.PositionKey = key
	tracked, err := m.deps.Tracker.Record(ctx, order)
	if err != nil {
		m.logger.Warn("order tracking failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
		tracked = order
	}

	if evt.Kind == domain.TriggerTrailingStop {
		id := tracked.ID
		state.TrailingStop.OrderSubmitted = true
		state.TrailingStop.LastOrderID = &id
	}

	m.publish(ctx, ChannelTriggers, evt)
	m.publish(ctx, ChannelOrders, tracked)
	m.auditLog(ctx, "order_submitted", map[string]any{
		"order_id":    tracked.ID,
		"account_id":  m.accountID,
		"position":    key,
		"kind":        string(evt.Kind),
		"limit_price": spec.LimitPrice,
	})
	return state
}

func (m *Monitor) drainConfig() {
	m.mu.Lock()
	ops := m.pending
	m.pending = nil
	m.mu.Unlock()

	for _, op := range ops {
		// The mechanism is being replaced, so any idempotency key saved
		// from a failed submission under the old settings is stale.
		delete(m.pendingKeys, op.key+"/"+string(op.kind))

		_, state, err := m.positions.Get(op.key)
		if err != nil {
			continue
		}
		if err := m.positions.SetRisk(op.key, op.apply(state)); err != nil {
			m.logger.Warn("config apply failed", slog.String("position", op.key), slog.String("error", err.Error()))
		}
	}
}

// ConfigureTrailingStop enables or disables the trailing stop for the
// position holding symbol. Enabling seeds the high-water mark from the
// latest quote, so it needs at least one successful price tick. The change
// is queued and applied at the next tick; the returned state is the
// projection that tick will apply.
func (m *Monitor) ConfigureTrailingStop(symbol string, enabled bool, percent float64) (domain.TrailingStopState, error) {
	if err := m.requireRunning(); err != nil {
		return domain.TrailingStopState{}, err
	}
	pos, err := m.positions.BySymbol(symbol)
	if err != nil {
		return domain.TrailingStopState{}, &domain.ConfigError{Field: "symbol", Reason: err}
	}

	var next domain.TrailingStopState
	if enabled {
		if percent <= 0 || percent > 100 {
			return domain.TrailingStopState{}, &domain.ConfigError{Field: "trail_percent", Reason: domain.ErrInvalidPercent}
		}
		price, _, err := m.positions.Price(pos.Key())
		if err != nil {
			return domain.TrailingStopState{}, &domain.ConfigError{Field: "trailing_stop", Reason: err}
		}
		next = domain.TrailingStopState{
			Enabled:      true,
			Percent:      percent,
			HighestPrice: price,
			TriggerPrice: price * (1 - percent/100),
			LastUpdate:   m.now(),
		}
	}

	m.enqueue(pos.Key(), domain.TriggerTrailingStop, func(state domain.RiskState) domain.RiskState {
		state.TrailingStop = next
		return state
	})
	m.auditLog(context.Background(), "trailing_stop_configured", map[string]any{
		"account_id": m.accountID,
		"position":   pos.Key(),
		"enabled":    enabled,
		"percent":    percent,
	})
	return next, nil
}

// ConfigureTakeProfit enables or disables the profit target for the position
// holding symbol. The dollar target derives from the entry premium, so no
// quote is required.
func (m *Monitor) ConfigureTakeProfit(symbol string, enabled bool, percent float64) (domain.TakeProfitState, error) {
	if err := m.requireRunning(); err != nil {
		return domain.TakeProfitState{}, err
	}
	pos, err := m.positions.BySymbol(symbol)
	if err != nil {
		return domain.TakeProfitState{}, &domain.ConfigError{Field: "symbol", Reason: err}
	}

	var next domain.TakeProfitState
	if enabled {
		if percent <= 0 || percent > 100 {
			return domain.TakeProfitState{}, &domain.ConfigError{Field: "profit_percent", Reason: domain.ErrInvalidPercent}
		}
		next = domain.TakeProfitState{
			Enabled:   true,
			Percent:   percent,
			TargetPnL: risk.TargetPnL(pos.EntryPremium, pos.Quantity, percent),
		}
	}

	m.enqueue(pos.Key(), domain.TriggerTakeProfit, func(state domain.RiskState) domain.RiskState {
		state.TakeProfit = next
		return state
	})
	m.auditLog(context.Background(), "take_profit_configured", map[string]any{
		"account_id": m.accountID,
		"position":   pos.Key(),
		"enabled":    enabled,
		"percent":    percent,
	})
	return next, nil
}

// Snapshot assembles the read view of the account.
func (m *Monitor) Snapshot() domain.AccountSnapshot {
	positions := m.positions.Snapshot()

	var total float64
	degraded := false
	for _, p := range positions {
		total += p.PnL
		if p.Degraded {
			degraded = true
		}
	}
	return domain.AccountSnapshot{
		AccountID:   m.accountID,
		State:       m.State(),
		Positions:   positions,
		TotalPnL:    total,
		MarketOpen:  m.deps.Calendar.IsOpenNow(),
		Degraded:    degraded,
		LiveTrading: m.cfg.LiveTrading,
		GeneratedAt: m.now(),
	}
}

// ListOrders returns tracked orders, newest first.
func (m *Monitor) ListOrders(filter domain.OrderFilter) []domain.Order {
	return m.deps.Tracker.List(filter)
}

// RefreshOrders reconciles non-terminal tracked orders against the
// brokerage. Orders whose remote status moved are advanced through the
// tracker; an illegal remote transition is logged and skipped.
func (m *Monitor) RefreshOrders(ctx context.Context) error {
	if m.deps.StatusSource == nil {
		return fmt.Errorf("monitor %s: order reconciliation not available", m.accountID)
	}
	for _, order := range m.deps.Tracker.Open() {
		status, err := m.deps.StatusSource.OrderStatus(ctx, order.ID)
		if err != nil {
			m.logger.Warn("order status lookup failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
			continue
		}
		if status == order.Status {
			continue
		}
		if err := m.deps.Tracker.UpdateState(ctx, order.ID, status); err != nil {
			m.logger.Warn("order reconciliation rejected", slog.String("order_id", order.ID), slog.String("error", err.Error()))
			continue
		}
		updated, err := m.deps.Tracker.Get(order.ID)
		if err == nil {
			m.publish(ctx, ChannelOrders, updated)
		}
	}
	return nil
}

// CancelOrder requests cancellation at the submitter and, on success, marks
// the tracked order cancelled.
func (m *Monitor) CancelOrder(ctx context.Context, orderID string) error {
	if m.deps.Canceler == nil {
		return fmt.Errorf("monitor %s: order cancellation not available", m.accountID)
	}
	if _, err := m.deps.Tracker.Get(orderID); err != nil {
		return err
	}
	if err := m.deps.Canceler.CancelOrder(ctx, orderID); err != nil {
		return fmt.Errorf("monitor %s: cancel %s: %w", m.accountID, orderID, err)
	}
	if err := m.deps.Tracker.UpdateState(ctx, orderID, domain.OrderStatusCancelled); err != nil {
		return err
	}
	if updated, err := m.deps.Tracker.Get(orderID); err == nil {
		m.publish(ctx, ChannelOrders, updated)
	}
	return nil
}

// ClosePositions submits close orders immediately for the selected
// positions, bypassing the risk mechanisms. An empty request list closes
// every tracked position. Each request may carry its own limit price;
// without one the limit defaults to 95% of the latest quote, rounded to
// the cent.
func (m *Monitor) ClosePositions(ctx context.Context, reqs []domain.CloseRequest) ([]domain.Order, error) {
	if err := m.requireRunning(); err != nil {
		return nil, err
	}

	var keys []string
	limits := map[string]float64{}
	if len(reqs) == 0 {
		keys = m.positions.Keys()
	} else {
		for _, req := range reqs {
			key := req.Key()
			if _, _, err := m.positions.Get(key); err != nil {
				return nil, &domain.ConfigError{Field: "position", Reason: fmt.Errorf("%s: %w", key, err)}
			}
			keys = append(keys, key)
			limits[key] = req.LimitPrice
		}
	}

	orders := make([]domain.Order, 0, len(keys))
	for _, key := range keys {
		pos, _, err := m.positions.Get(key)
		if err != nil {
			continue
		}
		limit := limits[key]
		if limit <= 0 {
			price, _, err := m.positions.Price(key)
			if err != nil {
				return orders, &domain.ConfigError{Field: "limit_price", Reason: fmt.Errorf("%s: %w", key, err)}
			}
			limit = math.Round(price*0.95*100) / 100
		}

		spec := domain.OrderSpec{
			Position:   pos,
			LimitPrice: limit,
			TriggerKey: uuid.New().String(),
		}
		order, err := m.deps.Submitter.SubmitClose(ctx, m.accountID, spec)
		if err != nil {
			m.logger.Error("manual close submission failed",
				slog.String("position", key),
				slog.String("error", err.Error()),
			)
			continue
		}
		order.PositionKey = key
		tracked, err := m.deps.Tracker.Record(ctx, order)
		if err != nil {
			m.logger.Warn("order tracking failed", slog.String("order_id", order.ID), slog.String("error", err.Error()))
			tracked = order
		}
		m.publish(ctx, ChannelOrders, tracked)
		m.auditLog(ctx, "manual_close_submitted", map[string]any{
			"order_id":    tracked.ID,
			"account_id":  m.accountID,
			"position":    key,
			"limit_price": limit,
		})
		orders = append(orders, tracked)
	}
	return orders, nil
}

func (m *Monitor) requireRunning() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != domain.MonitorRunning {
		return fmt.Errorf("monitor %s: %w", m.accountID, domain.ErrNotRunning)
	}
	return nil
}

func (m *Monitor) enqueue(key string, kind domain.TriggerKind, apply func(domain.RiskState) domain.RiskState) {
	m.mu.Lock()
	m.pending = append(m.pending, configOp{key: key, kind: kind, apply: apply})
	m.mu.Unlock()
}

func (m *Monitor) publish(ctx context.Context, channel string, v any) {
	if m.deps.Bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		return
	}
	if err := m.deps.Bus.Publish(ctx, channel, payload); err != nil {
		m.logger.Warn("event publish failed", slog.String("channel", channel), slog.String("error", err.Error()))
	}
}

func (m *Monitor) auditLog(ctx context.Context, event string, detail map[string]any) {
	if m.deps.Audit == nil {
		return
	}
	if err := m.deps.Audit.Log(ctx, event, detail); err != nil {
		m.logger.Warn("audit log failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
