package event

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"adowatch/internal/config"
	"adowatch/internal/devops"
	"adowatch/internal/logging"
	"adowatch/internal/snapshot"
)

// Source is the read-only remote-service surface the event kinds consume.
// *devops.Client satisfies it; tests substitute fakes.
type Source interface {
	FindProject(ctx context.Context, nameOrID string) (devops.Project, error)
	FindRepo(ctx context.Context, projectID, nameOrID string) (devops.Repo, error)
	FindBranch(ctx context.Context, projectID, repoID, name string) (devops.Branch, error)
	ListBranches(ctx context.Context, projectID, repoID string) ([]devops.Branch, error)
	ListPullRequests(ctx context.Context, projectID, repoID string) ([]devops.PullRequest, error)
	CountPullRequestThreads(ctx context.Context, projectID, repoID string, pullReqID int) (int, error)
	ListTeams(ctx context.Context, projectID string) ([]devops.Team, error)
	ListTeamWorkItems(ctx context.Context, projectID, teamID string) ([]devops.WorkItem, error)
	GetWorkItems(ctx context.Context, projectID string, ids []int) ([]devops.WorkItem, error)
}

// Comparer is the kind-specific comparison strategy behind an Event.
//
// Poll fetches live state, reads the relevant snapshots, and returns one
// payload per detected change. Absence of a snapshot baseline must suppress
// occurrences unless the kind explicitly tracks entity creation or opts in
// to reporting brand-new entities.
//
// Cleanup runs once per cycle after all polling and job firing completed and
// writes the observed state back as the next cycle's baseline. Kinds without
// cross-cycle state return nil.
type Comparer interface {
	Poll(ctx context.Context, ev *Event) ([]Payload, error)
	Cleanup(ctx context.Context, ev *Event) error
}

// Deps carries the collaborators injected into every Event.
type Deps struct {
	Source Source
	Store  *snapshot.Store
	Logger *slog.Logger
}

// Event is one configured unit of monitoring: a comparison strategy plus the
// jobs to fire when it detects a change.
type Event struct {
	cfg      config.Event
	comparer Comparer
	jobs     []*Job
	source   Source
	store    *snapshot.Store
	logger   *slog.Logger

	mu       sync.Mutex
	lastPoll time.Time
	polled   bool
}

// New builds an Event from its config and comparison strategy. Every event
// must have at least one job.
func New(cfg config.Event, comparer Comparer, deps Deps) (*Event, error) {
	if comparer == nil {
		return nil, fmt.Errorf("event %q: comparer required", cfg.Label())
	}
	if deps.Source == nil || deps.Store == nil {
		return nil, fmt.Errorf("event %q: source and store required", cfg.Label())
	}
	if len(cfg.Jobs) == 0 {
		return nil, fmt.Errorf("event %q: at least one job is required", cfg.Label())
	}

	logger := deps.Logger
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logger.With(
		logging.String(logging.FieldEvent, cfg.Label()),
		logging.String(logging.FieldKind, cfg.Kind),
	)

	jobs := make([]*Job, 0, len(cfg.Jobs))
	for i, jc := range cfg.Jobs {
		job, err := NewJob(jc, logger)
		if err != nil {
			return nil, fmt.Errorf("event %q: jobs[%d]: %w", cfg.Label(), i, err)
		}
		jobs = append(jobs, job)
	}

	return &Event{
		cfg:      cfg,
		comparer: comparer,
		jobs:     jobs,
		source:   deps.Source,
		store:    deps.Store,
		logger:   logger,
		lastPoll: time.Now().UTC(),
	}, nil
}

// Label returns the configured name, falling back to the kind.
func (e *Event) Label() string { return e.cfg.Label() }

// Kind returns the event's kind name.
func (e *Event) Kind() string { return e.cfg.Kind }

// Config returns the event's configuration.
func (e *Event) Config() config.Event { return e.cfg }

// Jobs returns the event's jobs in configuration order.
func (e *Event) Jobs() []*Job { return e.jobs }

// Source returns the remote-service client.
func (e *Event) Source() Source { return e.source }

// Store returns the snapshot store.
func (e *Event) Store() *snapshot.Store { return e.store }

// Logger returns the event-scoped logger.
func (e *Event) Logger() *slog.Logger { return e.logger }

// LastPoll returns the UTC time of the most recent Poll attempt.
func (e *Event) LastPoll() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastPoll
}

// SetLastPoll overrides the last poll time. The orchestrator uses it to
// propagate the persisted global timestamp across daemon restarts.
func (e *Event) SetLastPoll(t time.Time) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.lastPoll = t.UTC()
}

// Occurrence wraps entity data in a payload attributed to this event.
func (e *Event) Occurrence(data, culprits any) Payload {
	return Payload{
		Event:    e.cfg.Kind,
		Name:     e.cfg.Label(),
		Data:     data,
		Culprits: culprits,
	}
}

// Poll runs the kind-specific comparison and returns the detected
// occurrences. The last poll time advances to "now" whether or not the poll
// succeeded, so elapsed-time comparisons in the next cycle measure from the
// most recent attempt.
func (e *Event) Poll(ctx context.Context) ([]Payload, error) {
	// Stamp the time the poll finished, not when it started: a deferred
	// bare time.Now() would be evaluated on entry and re-report anything
	// created while the fetch was in flight.
	defer func() { e.SetLastPoll(time.Now()) }()

	payloads, err := e.comparer.Poll(ctx, e)
	if err != nil {
		return nil, fmt.Errorf("poll event %q: %w", e.Label(), err)
	}

	e.mu.Lock()
	e.polled = true
	e.mu.Unlock()
	return payloads, nil
}

// Cleanup persists the state observed by this cycle's Poll as the next
// cycle's baseline. It is a no-op unless Poll completed since the last
// Cleanup, so baselines are only ever written after the reads they follow.
func (e *Event) Cleanup(ctx context.Context) error {
	e.mu.Lock()
	polled := e.polled
	e.polled = false
	e.mu.Unlock()
	if !polled {
		return nil
	}

	if err := e.comparer.Cleanup(ctx, e); err != nil {
		return fmt.Errorf("cleanup event %q: %w", e.Label(), err)
	}
	return nil
}
