package event

import (
	"context"
	"fmt"

	"adowatch/internal/devops"
	"adowatch/internal/logging"
)

// branchComparer detects branches whose head commit changed since the
// previous cycle. Branches with no baseline entry (just created) are
// ignored until the next cycle establishes one.
type branchComparer struct {
	project    string
	repository string
	branch     string

	key     string
	current map[string]devops.Branch
}

func (b *branchComparer) Poll(ctx context.Context, ev *Event) ([]Payload, error) {
	project, repo, err := resolveRepo(ctx, ev, b.project, b.repository)
	if err != nil {
		return nil, err
	}

	var branches []devops.Branch
	if b.branch == "" {
		branches, err = ev.Source().ListBranches(ctx, project.ID, repo.ID)
	} else {
		var one devops.Branch
		one, err = ev.Source().FindBranch(ctx, project.ID, repo.ID, b.branch)
		branches = []devops.Branch{one}
	}
	if err != nil {
		return nil, err
	}

	b.key = fmt.Sprintf("project %s repo %s branches", project.ID, repo.ID)
	if b.branch != "" {
		b.key += " " + b.branch
	}
	b.current = make(map[string]devops.Branch, len(branches))
	for _, br := range branches {
		b.current[br.Name] = br
	}

	var prev map[string]devops.Branch
	found, err := ev.Store().Read(ctx, b.key, &prev, true)
	if err != nil {
		return nil, err
	}
	if !found {
		ev.Logger().Debug("no branch baseline yet; suppressing occurrences")
		return nil, nil
	}

	var payloads []Payload
	for _, br := range branches {
		old, ok := prev[br.Name]
		if !ok {
			continue
		}
		if br.Commit.ID != old.Commit.ID {
			ev.Logger().Debug("branch head moved",
				logging.String("branch", br.Name),
				logging.String("old_commit", old.Commit.ID),
				logging.String("new_commit", br.Commit.ID),
			)
			payloads = append(payloads, ev.Occurrence(br, nil))
		}
	}
	return payloads, nil
}

func (b *branchComparer) Cleanup(ctx context.Context, ev *Event) error {
	return ev.Store().Write(ctx, b.key, b.current, true)
}
