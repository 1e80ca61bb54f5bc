package event

import (
	"context"
	"fmt"
	"strconv"

	"adowatch/internal/devops"
	"adowatch/internal/logging"
)

// prDiff inspects one pull request against its baseline and reports whether
// the event fired, plus any culprit sub-entities.
type prDiff func(old, cur devops.PullRequest) (bool, any)

// prComparer is the shared comparison engine for snapshot-based pull-request
// kinds. The kind-specific predicate is injected as a prDiff.
type prComparer struct {
	project    string
	repository string
	includeNew bool
	diff       prDiff

	// Observed state carried from Poll to the cycle's Cleanup.
	key     string
	current map[string]devops.PullRequest
}

func (p *prComparer) Poll(ctx context.Context, ev *Event) ([]Payload, error) {
	prs, key, err := fetchPullRequests(ctx, ev, p.project, p.repository)
	if err != nil {
		return nil, err
	}
	p.key = key
	p.current = make(map[string]devops.PullRequest, len(prs))
	for _, pr := range prs {
		p.current[strconv.Itoa(pr.ID)] = pr
	}

	var prev map[string]devops.PullRequest
	found, err := ev.Store().Read(ctx, p.key, &prev, true)
	if err != nil {
		return nil, err
	}
	if !found {
		ev.Logger().Debug("no pull request baseline yet; suppressing occurrences")
		return nil, nil
	}

	var payloads []Payload
	for _, pr := range prs {
		old, ok := prev[strconv.Itoa(pr.ID)]
		if !ok {
			if p.includeNew {
				payloads = append(payloads, ev.Occurrence(pr, nil))
			}
			continue
		}
		if hit, culprits := p.diff(old, pr); hit {
			payloads = append(payloads, ev.Occurrence(pr, culprits))
		}
	}
	return payloads, nil
}

func (p *prComparer) Cleanup(ctx context.Context, ev *Event) error {
	return ev.Store().Write(ctx, p.key, p.current, true)
}

// prCreateComparer detects newly created pull requests by comparing creation
// timestamps against the event's last poll time; it needs no snapshot.
type prCreateComparer struct {
	project    string
	repository string
}

func (p *prCreateComparer) Poll(ctx context.Context, ev *Event) ([]Payload, error) {
	prs, _, err := fetchPullRequests(ctx, ev, p.project, p.repository)
	if err != nil {
		return nil, err
	}

	lastPoll := ev.LastPoll()
	var payloads []Payload
	for _, pr := range prs {
		if pr.CreatedAt.After(lastPoll) {
			payloads = append(payloads, ev.Occurrence(pr, nil))
		}
	}
	return payloads, nil
}

func (p *prCreateComparer) Cleanup(context.Context, *Event) error { return nil }

// prThreadsComparer detects pull requests whose comment thread count
// increased. Thread counts need one extra lookup per pull request, so they
// are snapshotted under their own key.
type prThreadsComparer struct {
	project    string
	repository string
	includeNew bool

	key     string
	current map[string]int
}

func (p *prThreadsComparer) Poll(ctx context.Context, ev *Event) ([]Payload, error) {
	project, repo, err := resolveRepo(ctx, ev, p.project, p.repository)
	if err != nil {
		return nil, err
	}
	prs, err := ev.Source().ListPullRequests(ctx, project.ID, repo.ID)
	if err != nil {
		return nil, err
	}
	p.key = fmt.Sprintf("project %s repo %s pullreqs threads", project.ID, repo.ID)

	p.current = make(map[string]int, len(prs))
	byID := make(map[string]devops.PullRequest, len(prs))
	for _, pr := range prs {
		count, err := ev.Source().CountPullRequestThreads(ctx, project.ID, repo.ID, pr.ID)
		if err != nil {
			return nil, err
		}
		id := strconv.Itoa(pr.ID)
		p.current[id] = count
		byID[id] = pr
	}

	var prev map[string]int
	found, err := ev.Store().Read(ctx, p.key, &prev, true)
	if err != nil {
		return nil, err
	}
	if !found {
		ev.Logger().Debug("no thread count baseline yet; suppressing occurrences")
		return nil, nil
	}

	var payloads []Payload
	for id, count := range p.current {
		old, ok := prev[id]
		if !ok {
			if p.includeNew {
				payloads = append(payloads, ev.Occurrence(byID[id], nil))
			}
			continue
		}
		if count > old {
			payloads = append(payloads, ev.Occurrence(byID[id], nil))
		}
	}
	return payloads, nil
}

func (p *prThreadsComparer) Cleanup(ctx context.Context, ev *Event) error {
	return ev.Store().Write(ctx, p.key, p.current, true)
}

func resolveRepo(ctx context.Context, ev *Event, projectRef, repoRef string) (devops.Project, devops.Repo, error) {
	project, err := ev.Source().FindProject(ctx, projectRef)
	if err != nil {
		return devops.Project{}, devops.Repo{}, err
	}
	repo, err := ev.Source().FindRepo(ctx, project.ID, repoRef)
	if err != nil {
		return devops.Project{}, devops.Repo{}, err
	}
	return project, repo, nil
}

func fetchPullRequests(ctx context.Context, ev *Event, projectRef, repoRef string) ([]devops.PullRequest, string, error) {
	project, repo, err := resolveRepo(ctx, ev, projectRef, repoRef)
	if err != nil {
		return nil, "", err
	}
	prs, err := ev.Source().ListPullRequests(ctx, project.ID, repo.ID)
	if err != nil {
		return nil, "", err
	}
	ev.Logger().Debug("fetched pull requests",
		logging.Int("count", len(prs)),
		logging.String("repo", repo.Name),
	)
	key := fmt.Sprintf("project %s repo %s pullreqs", project.ID, repo.ID)
	return prs, key, nil
}

// draftFlipped matches a draft flag transition in the given direction.
func draftFlipped(on bool) prDiff {
	return func(old, cur devops.PullRequest) (bool, any) {
		if on {
			return !old.IsDraft && cur.IsDraft, nil
		}
		return old.IsDraft && !cur.IsDraft, nil
	}
}

func statusChanged(old, cur devops.PullRequest) (bool, any) {
	return old.Status != cur.Status, nil
}

func sourceCommitChanged(old, cur devops.PullRequest) (bool, any) {
	return old.SourceCommit.ID != cur.SourceCommit.ID, nil
}

func targetCommitChanged(old, cur devops.PullRequest) (bool, any) {
	return old.TargetCommit.ID != cur.TargetCommit.ID, nil
}

// reviewersAdded reports reviewers present now but absent from the baseline.
func reviewersAdded(old, cur devops.PullRequest) (bool, any) {
	known := make(map[string]struct{}, len(old.Reviewers))
	for _, r := range old.Reviewers {
		known[r.ID] = struct{}{}
	}
	var added []devops.Reviewer
	for _, r := range cur.Reviewers {
		if _, ok := known[r.ID]; !ok {
			added = append(added, r)
		}
	}
	if len(added) == 0 {
		return false, nil
	}
	return true, added
}

// reviewersVoted reports reviewers whose vote value changed since the
// baseline. Each changed reviewer is a separate culprit.
func reviewersVoted(old, cur devops.PullRequest) (bool, any) {
	votes := make(map[string]int, len(old.Reviewers))
	for _, r := range old.Reviewers {
		votes[r.ID] = r.Vote
	}
	var changed []devops.Reviewer
	for _, r := range cur.Reviewers {
		if prior, ok := votes[r.ID]; ok && prior != r.Vote {
			changed = append(changed, r)
		}
	}
	if len(changed) == 0 {
		return false, nil
	}
	return true, changed
}
