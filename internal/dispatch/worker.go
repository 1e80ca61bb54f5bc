package dispatch

import (
	"context"
	"log/slog"
	"sync"

	"adowatch/internal/event"
	"adowatch/internal/logging"
)

// Worker consumes events from a queue, polls them, and runs their jobs for
// every detected occurrence. A worker is idle exactly while it is blocked
// waiting on the queue; the waiting flag lets the orchestrator distinguish
// an empty queue from a finished cycle.
type Worker struct {
	id      int
	queue   *Queue
	logger  *slog.Logger
	onFatal func(error)

	mu      sync.Mutex
	cond    *sync.Cond
	waiting bool
}

// NewWorker builds a worker bound to the given queue. onFatal is invoked
// for poll failures, which are treated as unrecoverable by the daemon; it
// may be nil.
func NewWorker(id int, queue *Queue, logger *slog.Logger, onFatal func(error)) *Worker {
	if logger == nil {
		logger = logging.NewNop()
	}
	if onFatal == nil {
		onFatal = func(error) {}
	}
	w := &Worker{
		id:      id,
		queue:   queue,
		logger:  logger.With(logging.Int(logging.FieldWorker, id)),
		onFatal: onFatal,
	}
	w.cond = sync.NewCond(&w.mu)
	return w
}

// Run consumes the queue until it is shut down. It must be called from its
// own goroutine. The worker is left in the waiting state on exit so barrier
// waits never hang on a stopped worker.
func (w *Worker) Run(ctx context.Context) {
	defer w.setWaiting(true)
	for {
		w.setWaiting(true)
		ev := w.queue.Pop(true)
		if ev == nil {
			return
		}
		w.setWaiting(false)

		w.process(ctx, ev)
		w.queue.Done()

		if ctx.Err() != nil {
			return
		}
	}
}

// Waiting reports whether the worker is currently idle on the queue.
func (w *Worker) Waiting() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.waiting
}

// AwaitWaiting blocks until the worker is idle on the queue. Combined with
// Queue.AwaitDrained this forms the end-of-cycle barrier: drained means all
// events were consumed, waiting means their processing finished too.
func (w *Worker) AwaitWaiting() {
	w.mu.Lock()
	defer w.mu.Unlock()
	for !w.waiting {
		w.cond.Wait()
	}
}

func (w *Worker) setWaiting(v bool) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.waiting = v
	if v {
		w.cond.Broadcast()
	}
}

func (w *Worker) process(ctx context.Context, ev *event.Event) {
	logger := w.logger.With(logging.String(logging.FieldEvent, ev.Label()))

	payloads, err := ev.Poll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		logger.Error("poll failed", logging.Error(err))
		w.onFatal(err)
		return
	}
	if len(payloads) == 0 {
		return
	}
	logger.Info("event occurred", logging.Int("occurrences", len(payloads)))

	for _, payload := range payloads {
		w.fireJobs(ev, payload, logger)
	}
}

// fireJobs launches every job for one occurrence, then reaps them all. Jobs
// for the same occurrence run concurrently with each other but never with a
// previous occurrence's invocations, so each job has at most one live
// process.
func (w *Worker) fireJobs(ev *event.Event, payload event.Payload, logger *slog.Logger) {
	fired := make([]*event.Job, 0, len(ev.Jobs()))
	for _, job := range ev.Jobs() {
		if _, err := job.Fire(payload, false); err != nil {
			// A handler that fails to spawn must not take the
			// monitor down with it.
			logger.Error("job spawn failed",
				logging.String("job", job.Name()),
				logging.Error(err),
			)
			continue
		}
		fired = append(fired, job)
	}

	for _, job := range fired {
		result, err := job.Reap()
		if err != nil {
			logger.Error("job wait failed",
				logging.String("job", job.Name()),
				logging.Error(err),
			)
			continue
		}
		if result.TimedOut {
			logger.Warn("job killed after timeout",
				logging.String("job", job.Name()),
				logging.Duration("timeout", job.Timeout()),
			)
			continue
		}
		logger.Debug("job finished",
			logging.String("job", job.Name()),
			logging.Int("exit_code", result.ExitCode),
			logging.Duration("duration", result.Duration),
		)
	}
}
