package event

import (
	"errors"
	"fmt"
	"sort"

	"adowatch/internal/config"
)

// builder constructs a kind's comparer from its event config, validating the
// kind-specific required fields.
type builder func(cfg config.Event) (Comparer, error)

// Registry maps kind names to comparer constructors. It is assembled once
// at startup and read-only afterwards.
type Registry struct {
	kinds map[string]builder
}

// NewRegistry returns the registry of built-in event kinds.
func NewRegistry() *Registry {
	r := &Registry{kinds: map[string]builder{}}

	r.kinds["pr_create"] = func(cfg config.Event) (Comparer, error) {
		if err := requireRepo(cfg); err != nil {
			return nil, err
		}
		return &prCreateComparer{project: cfg.Project, repository: cfg.Repository}, nil
	}
	r.kinds["pr_draft_on"] = prBuilder(draftFlipped(true))
	r.kinds["pr_draft_off"] = prBuilder(draftFlipped(false))
	r.kinds["pr_status_change"] = prBuilder(statusChanged)
	r.kinds["pr_reviewer_added"] = prBuilder(reviewersAdded)
	r.kinds["pr_reviewer_voted"] = prBuilder(reviewersVoted)
	r.kinds["pr_commit_new_src"] = prBuilder(sourceCommitChanged)
	r.kinds["pr_commit_new_dst"] = prBuilder(targetCommitChanged)
	r.kinds["pr_comment_added"] = func(cfg config.Event) (Comparer, error) {
		if err := requireRepo(cfg); err != nil {
			return nil, err
		}
		return &prThreadsComparer{
			project:    cfg.Project,
			repository: cfg.Repository,
			includeNew: cfg.IncludeNewPullReqs,
		}, nil
	}

	r.kinds["branch_commit_new"] = func(cfg config.Event) (Comparer, error) {
		if err := requireRepo(cfg); err != nil {
			return nil, err
		}
		return &branchComparer{
			project:    cfg.Project,
			repository: cfg.Repository,
			branch:     cfg.Branch,
		}, nil
	}

	r.kinds["wi_state_change"] = wiBuilder(wiStateChanged)
	r.kinds["wi_comment_new"] = wiBuilder(wiCommentAdded)

	return r
}

func prBuilder(diff prDiff) builder {
	return func(cfg config.Event) (Comparer, error) {
		if err := requireRepo(cfg); err != nil {
			return nil, err
		}
		return &prComparer{
			project:    cfg.Project,
			repository: cfg.Repository,
			includeNew: cfg.IncludeNewPullReqs,
			diff:       diff,
		}, nil
	}
}

func wiBuilder(diff wiDiff) builder {
	return func(cfg config.Event) (Comparer, error) {
		if cfg.Project == "" {
			return nil, errors.New("project must be set")
		}
		return &wiComparer{
			project:   cfg.Project,
			teams:     cfg.Teams,
			workItems: cfg.WorkItems,
			diff:      diff,
		}, nil
	}
}

func requireRepo(cfg config.Event) error {
	if cfg.Project == "" {
		return errors.New("project must be set")
	}
	if cfg.Repository == "" {
		return errors.New("repository must be set")
	}
	return nil
}

// Kinds returns the registered kind names in sorted order.
func (r *Registry) Kinds() []string {
	names := make([]string, 0, len(r.kinds))
	for name := range r.kinds {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Build constructs an Event from config, failing on unknown kinds or missing
// kind-specific fields. All failures here are startup-fatal configuration
// errors.
func (r *Registry) Build(cfg config.Event, deps Deps) (*Event, error) {
	b, ok := r.kinds[cfg.Kind]
	if !ok {
		return nil, fmt.Errorf("event %q: unrecognized kind %q", cfg.Label(), cfg.Kind)
	}
	comparer, err := b(cfg)
	if err != nil {
		return nil, fmt.Errorf("event %q: %w", cfg.Label(), err)
	}
	return New(cfg, comparer, deps)
}

// BuildAll constructs every configured event.
func (r *Registry) BuildAll(cfgs []config.Event, deps Deps) ([]*Event, error) {
	if len(cfgs) == 0 {
		return nil, errors.New("no events configured")
	}
	events := make([]*Event, 0, len(cfgs))
	for _, cfg := range cfgs {
		ev, err := r.Build(cfg, deps)
		if err != nil {
			return nil, err
		}
		events = append(events, ev)
	}
	return events, nil
}
