package monitor

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/optionsentry/optionsentry/internal/domain"
	"github.com/optionsentry/optionsentry/internal/tracker"
)

func testRegistry(t *testing.T, loader *fakeLoader) (*Registry, *int) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	built := 0
	factory := func(accountID string) *Monitor {
		built++
		return New(accountID, Config{}, Deps{
			Loader:    loader,
			Prices:    &fakePrices{prices: map[string]float64{}},
			Submitter: &fakeSubmitter{},
			Calendar:  fixedCalendar{open: false},
			Tracker:   tracker.New(accountID, logger),
			Logger:    logger,
		})
	}
	return NewRegistry(factory, logger), &built
}

func TestGetOrStartReusesRunningMonitor(t *testing.T) {
	r, built := testRegistry(t, &fakeLoader{positions: []domain.Position{testPosition()}})
	defer r.StopAll()
	ctx := context.Background()

	m1, err := r.GetOrStart(ctx, "acct-1")
	require.NoError(t, err)
	m2, err := r.GetOrStart(ctx, "acct-1")
	require.NoError(t, err)

	assert.Same(t, m1, m2)
	assert.Equal(t, 1, *built)
}

func TestGetOrStartReplacesStoppedMonitor(t *testing.T) {
	r, built := testRegistry(t, &fakeLoader{})
	defer r.StopAll()
	ctx := context.Background()

	m1, err := r.GetOrStart(ctx, "acct-1")
	require.NoError(t, err)
	r.Stop("acct-1")
	assert.Equal(t, domain.MonitorStopped, m1.State())

	m2, err := r.GetOrStart(ctx, "acct-1")
	require.NoError(t, err)
	assert.NotSame(t, m1, m2)
	assert.Equal(t, domain.MonitorRunning, m2.State())
	assert.Equal(t, 2, *built)
}

func TestGetOrStartLoadFailureLeavesNothingRegistered(t *testing.T) {
	loader := &fakeLoader{err: errors.New("brokerage down")}
	r, _ := testRegistry(t, loader)
	ctx := context.Background()

	_, err := r.GetOrStart(ctx, "acct-1")
	require.Error(t, err)

	_, err = r.Get("acct-1")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	// Recovery on the next attempt.
	loader.err = nil
	m, err := r.GetOrStart(ctx, "acct-1")
	require.NoError(t, err)
	assert.Equal(t, domain.MonitorRunning, m.State())
	r.StopAll()
}

func TestConcurrentGetOrStartSingleMonitor(t *testing.T) {
	r, built := testRegistry(t, &fakeLoader{})
	defer r.StopAll()
	ctx := context.Background()

	const n = 16
	monitors := make([]*Monitor, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			m, err := r.GetOrStart(ctx, "acct-1")
			if err != nil {
				t.Error(err)
				return
			}
			monitors[i] = m
		}(i)
	}
	wg.Wait()

	for i := 1; i < n; i++ {
		assert.Same(t, monitors[0], monitors[i])
	}
	assert.Equal(t, 1, *built)
}

// gatedLoader blocks in Load until released, standing in for a slow
// brokerage call.
type gatedLoader struct {
	started chan struct{}
	release chan struct{}
	once    sync.Once
}

func (l *gatedLoader) Load(context.Context, string) ([]domain.Position, error) {
	l.once.Do(func() { close(l.started) })
	<-l.release
	return []domain.Position{testPosition()}, nil
}

func TestGetOrStartLoadDoesNotBlockRegistry(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	slow := &gatedLoader{started: make(chan struct{}), release: make(chan struct{})}
	fast := &fakeLoader{}
	factory := func(accountID string) *Monitor {
		loader := domain.PositionLoader(fast)
		if accountID == "acct-slow" {
			loader = slow
		}
		return New(accountID, Config{}, Deps{
			Loader:    loader,
			Prices:    &fakePrices{prices: map[string]float64{}},
			Submitter: &fakeSubmitter{},
			Calendar:  fixedCalendar{open: false},
			Tracker:   tracker.New(accountID, logger),
			Logger:    logger,
		})
	}
	r := NewRegistry(factory, logger)
	defer r.StopAll()
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err := r.GetOrStart(ctx, "acct-slow")
		assert.NoError(t, err)
	}()
	<-slow.started

	// The slow load must not hold the registry lock: the loading monitor
	// is already visible and other accounts start and stop promptly.
	m, err := r.Get("acct-slow")
	require.NoError(t, err)
	assert.Equal(t, domain.MonitorLoading, m.State())

	_, err = r.GetOrStart(ctx, "acct-fast")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"acct-slow", "acct-fast"}, r.Accounts())
	r.Stop("acct-fast")

	close(slow.release)
	<-done
	assert.Equal(t, domain.MonitorRunning, m.State())
}

func TestStopUnknownAccountIsNoOp(t *testing.T) {
	r, _ := testRegistry(t, &fakeLoader{})
	r.Stop("nobody")
}

func TestStopAllDrainsEverything(t *testing.T) {
	r, _ := testRegistry(t, &fakeLoader{})
	ctx := context.Background()

	for _, id := range []string{"acct-1", "acct-2", "acct-3"} {
		_, err := r.GetOrStart(ctx, id)
		require.NoError(t, err)
	}
	assert.ElementsMatch(t, []string{"acct-1", "acct-2", "acct-3"}, r.Accounts())

	r.StopAll()
	for _, id := range r.Accounts() {
		m, err := r.Get(id)
		require.NoError(t, err)
		assert.Equal(t, domain.MonitorStopped, m.State())
	}
}
