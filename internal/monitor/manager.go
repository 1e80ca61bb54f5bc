package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"adowatch/internal/config"
	"adowatch/internal/dispatch"
	"adowatch/internal/event"
	"adowatch/internal/logging"
	"adowatch/internal/snapshot"
)

// lastPollKey is the snapshot key holding the timestamp of the last
// completed cycle. It survives restarts so elapsed-time comparisons measure
// from the previous run instead of daemon startup.
const lastPollKey = "monitor last_poll"

// Manager owns the poll loop: the queue, the worker pool, and the
// end-of-cycle bookkeeping.
type Manager struct {
	cfg    *config.Config
	store  *snapshot.Store
	events []*event.Event
	logger *slog.Logger

	queue   *dispatch.Queue
	workers []*dispatch.Worker

	mu       sync.Mutex
	cancel   context.CancelFunc
	fatalErr error
}

// New builds a manager for the given events. The worker pool size and poll
// interval come from the monitor section of the config.
func New(cfg *config.Config, store *snapshot.Store, events []*event.Event, logger *slog.Logger) (*Manager, error) {
	if cfg == nil {
		return nil, errors.New("monitor requires config")
	}
	if store == nil {
		return nil, errors.New("monitor requires a snapshot store")
	}
	if len(events) == 0 {
		return nil, errors.New("monitor requires at least one event")
	}
	logger = logging.NewComponentLogger(logger, "monitor")

	m := &Manager{
		cfg:    cfg,
		store:  store,
		events: events,
		logger: logger,
		queue:  dispatch.NewQueue(),
	}

	workers := cfg.Monitor.Workers
	if workers < 1 {
		workers = 1
	}
	for i := 0; i < workers; i++ {
		m.workers = append(m.workers, dispatch.NewWorker(i+1, m.queue, logger, m.reportFatal))
	}
	return m, nil
}

// Events returns the managed events.
func (m *Manager) Events() []*event.Event { return m.events }

// reportFatal records the first unrecoverable worker error and stops the
// run. Poll failures are fatal: a monitor that silently skips cycles would
// report stale diffs once the service recovers.
func (m *Manager) reportFatal(err error) {
	m.mu.Lock()
	if m.fatalErr == nil {
		m.fatalErr = err
	}
	cancel := m.cancel
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (m *Manager) fatalError() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.fatalErr
}

// Run executes poll cycles until the context is cancelled or a worker hits
// an unrecoverable error. It blocks for the lifetime of the monitor.
func (m *Manager) Run(ctx context.Context) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	m.mu.Lock()
	m.cancel = cancel
	m.mu.Unlock()

	if err := m.restoreLastPoll(runCtx); err != nil {
		return err
	}

	// Cancellation must unblock cycle barriers: discard pending work and
	// close the queue so AwaitDrained and blocked Pops return.
	go func() {
		<-runCtx.Done()
		m.queue.Wipe()
		m.queue.Shutdown()
	}()

	var wg sync.WaitGroup
	for _, w := range m.workers {
		w := w
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.Run(runCtx)
		}()
	}
	// Workers block in queue.Pop until the queue shuts down, which the
	// watcher goroutine above only does after cancellation. Cancel before
	// joining so an error return (cleanup or persist failure) cannot park
	// Run behind workers that will never wake.
	defer func() {
		cancel()
		wg.Wait()
	}()

	m.logger.Info("monitoring started",
		logging.Int("events", len(m.events)),
		logging.Int("workers", len(m.workers)),
		logging.Int("poll_interval_seconds", m.cfg.Monitor.PollInterval),
	)

	interval := time.Duration(m.cfg.Monitor.PollInterval) * time.Second
	for cycle := 1; ; cycle++ {
		if err := m.runCycle(runCtx, cycle); err != nil {
			return err
		}
		if runCtx.Err() != nil {
			return nil
		}
		if err := m.waitOrDone(runCtx, interval); err != nil {
			return err
		}
		if runCtx.Err() != nil {
			return nil
		}
	}
}

// runCycle enqueues every event, waits for the pool to finish with all of
// them, then writes the cycle's observations back as baselines.
func (m *Manager) runCycle(ctx context.Context, cycle int) error {
	logger := m.logger.With(logging.Int(logging.FieldCycle, cycle))
	started := time.Now()
	logger.Debug("cycle started")

	for _, ev := range m.events {
		m.queue.Push(ev)
	}
	m.queue.AwaitDrained()
	for _, w := range m.workers {
		w.AwaitWaiting()
	}

	if err := m.fatalError(); err != nil {
		return fmt.Errorf("monitoring aborted: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}

	// Baselines are only written once every poll and job of the cycle
	// completed, so reads never race their own writes.
	for _, ev := range m.events {
		if err := ev.Cleanup(ctx); err != nil {
			return err
		}
	}
	if err := m.persistLastPoll(ctx, time.Now().UTC()); err != nil {
		return err
	}

	logger.Debug("cycle complete", logging.Duration("duration", time.Since(started)))
	return nil
}

func (m *Manager) waitOrDone(ctx context.Context, interval time.Duration) error {
	if err := m.fatalError(); err != nil {
		return fmt.Errorf("monitoring aborted: %w", err)
	}
	if ctx.Err() != nil {
		return nil
	}
	timer := time.NewTimer(interval)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		if err := m.fatalError(); err != nil {
			return fmt.Errorf("monitoring aborted: %w", err)
		}
		return nil
	case <-timer.C:
		return nil
	}
}

// restoreLastPoll seeds every event with the persisted end time of the last
// completed cycle, if one exists.
func (m *Manager) restoreLastPoll(ctx context.Context) error {
	var last time.Time
	found, err := m.store.Read(ctx, lastPollKey, &last, false)
	if err != nil {
		return fmt.Errorf("restore last poll time: %w", err)
	}
	if !found || last.IsZero() {
		return nil
	}
	m.logger.Debug("resuming from persisted poll time", logging.Time("last_poll", last))
	for _, ev := range m.events {
		ev.SetLastPoll(last)
	}
	return nil
}

func (m *Manager) persistLastPoll(ctx context.Context, t time.Time) error {
	if err := m.store.Write(ctx, lastPollKey, t, false); err != nil {
		return fmt.Errorf("persist last poll time: %w", err)
	}
	return nil
}
