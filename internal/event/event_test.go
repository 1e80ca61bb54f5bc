package event_test

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"adowatch/internal/config"
	"adowatch/internal/devops"
	"adowatch/internal/event"
	"adowatch/internal/logging"
	"adowatch/internal/snapshot"
)

// fakeSource serves a single project with one repository. Mutating its
// fields between polls simulates remote state changing across cycles.
type fakeSource struct {
	project   devops.Project
	repo      devops.Repo
	branches  []devops.Branch
	pullReqs  []devops.PullRequest
	threads   map[int]int
	teams     []devops.Team
	teamItems map[string][]devops.WorkItem
	items     map[int]devops.WorkItem

	failWith error
}

func newFakeSource() *fakeSource {
	return &fakeSource{
		project:   devops.Project{ID: "proj-1", Name: "Fabrikam"},
		repo:      devops.Repo{ID: "repo-1", Name: "web"},
		threads:   map[int]int{},
		teamItems: map[string][]devops.WorkItem{},
		items:     map[int]devops.WorkItem{},
	}
}

func (f *fakeSource) FindProject(_ context.Context, nameOrID string) (devops.Project, error) {
	if f.failWith != nil {
		return devops.Project{}, f.failWith
	}
	if nameOrID != f.project.ID && nameOrID != f.project.Name {
		return devops.Project{}, fmt.Errorf("project %q not found", nameOrID)
	}
	return f.project, nil
}

func (f *fakeSource) FindRepo(_ context.Context, projectID, nameOrID string) (devops.Repo, error) {
	if f.failWith != nil {
		return devops.Repo{}, f.failWith
	}
	if projectID != f.project.ID || (nameOrID != f.repo.ID && nameOrID != f.repo.Name) {
		return devops.Repo{}, fmt.Errorf("repository %q not found", nameOrID)
	}
	return f.repo, nil
}

func (f *fakeSource) FindBranch(_ context.Context, _, _, name string) (devops.Branch, error) {
	if f.failWith != nil {
		return devops.Branch{}, f.failWith
	}
	for _, br := range f.branches {
		if br.Name == name {
			return br, nil
		}
	}
	return devops.Branch{}, fmt.Errorf("branch %q not found", name)
}

func (f *fakeSource) ListBranches(context.Context, string, string) ([]devops.Branch, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.branches, nil
}

func (f *fakeSource) ListPullRequests(context.Context, string, string) ([]devops.PullRequest, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.pullReqs, nil
}

func (f *fakeSource) CountPullRequestThreads(_ context.Context, _, _ string, pullReqID int) (int, error) {
	if f.failWith != nil {
		return 0, f.failWith
	}
	return f.threads[pullReqID], nil
}

func (f *fakeSource) ListTeams(context.Context, string) ([]devops.Team, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	return f.teams, nil
}

func (f *fakeSource) ListTeamWorkItems(_ context.Context, _, teamID string) ([]devops.WorkItem, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	items, ok := f.teamItems[teamID]
	if !ok {
		return nil, fmt.Errorf("team %q has no backlog", teamID)
	}
	return items, nil
}

func (f *fakeSource) GetWorkItems(_ context.Context, _ string, ids []int) ([]devops.WorkItem, error) {
	if f.failWith != nil {
		return nil, f.failWith
	}
	items := make([]devops.WorkItem, 0, len(ids))
	for _, id := range ids {
		item, ok := f.items[id]
		if !ok {
			return nil, fmt.Errorf("work item %d not found", id)
		}
		items = append(items, item)
	}
	return items, nil
}

func newTestStore(t *testing.T) *snapshot.Store {
	t.Helper()
	cfg := config.Default()
	cfg.Paths.StateDir = filepath.Join(t.TempDir(), "state")
	cfg.Paths.LogDir = filepath.Join(cfg.Paths.StateDir, "logs")

	store, err := snapshot.Open(&cfg, "/etc/adowatch/config.toml")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func newTestEvent(t *testing.T, cfg config.Event, src event.Source) *event.Event {
	t.Helper()
	if len(cfg.Jobs) == 0 {
		cfg.Jobs = []config.Job{{Args: []string{"/bin/true"}}}
	}
	ev, err := event.NewRegistry().Build(cfg, event.Deps{
		Source: src,
		Store:  newTestStore(t),
		Logger: logging.NewNop(),
	})
	if err != nil {
		t.Fatalf("build event: %v", err)
	}
	return ev
}

// runCycle polls and, when the poll succeeded, persists the observed state
// as the next cycle's baseline.
func runCycle(t *testing.T, ev *event.Event) []event.Payload {
	t.Helper()
	ctx := context.Background()
	payloads, err := ev.Poll(ctx)
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if err := ev.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	return payloads
}

func prEventConfig(kind string) config.Event {
	return config.Event{Kind: kind, Project: "Fabrikam", Repository: "web"}
}

func TestDraftFlipDetectedOnlyAfterBaseline(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{ID: 7, Title: "add cache", IsDraft: false}}
	ev := newTestEvent(t, prEventConfig("pr_draft_on"), src)

	// First cycle has no baseline and must stay silent even though the
	// pull request is already present.
	if got := runCycle(t, ev); len(got) != 0 {
		t.Fatalf("expected no occurrences without baseline, got %d", len(got))
	}

	src.pullReqs[0].IsDraft = true
	payloads := runCycle(t, ev)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(payloads))
	}
	if payloads[0].Event != "pr_draft_on" {
		t.Errorf("payload event = %q, want pr_draft_on", payloads[0].Event)
	}
	pr, ok := payloads[0].Data.(devops.PullRequest)
	if !ok || pr.ID != 7 {
		t.Errorf("payload data = %#v, want pull request 7", payloads[0].Data)
	}

	// The flipped state is now the baseline; nothing further to report.
	if got := runCycle(t, ev); len(got) != 0 {
		t.Fatalf("expected steady state, got %d occurrences", len(got))
	}
}

func TestDraftOffIgnoresDraftOnTransition(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{ID: 7, IsDraft: false}}
	ev := newTestEvent(t, prEventConfig("pr_draft_off"), src)

	runCycle(t, ev)
	src.pullReqs[0].IsDraft = true
	if got := runCycle(t, ev); len(got) != 0 {
		t.Fatalf("pr_draft_off fired on a draft-on transition: %d occurrences", len(got))
	}

	src.pullReqs[0].IsDraft = false
	if got := runCycle(t, ev); len(got) != 1 {
		t.Fatalf("expected 1 occurrence for draft-off, got %d", len(got))
	}
}

func TestStatusChangeDetected(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{ID: 3, Status: "active"}}
	ev := newTestEvent(t, prEventConfig("pr_status_change"), src)

	runCycle(t, ev)
	src.pullReqs[0].Status = "completed"
	if got := runCycle(t, ev); len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}
}

func TestNewPullRequestRequiresOptIn(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{ID: 1, Status: "active"}}

	cfg := prEventConfig("pr_status_change")
	silent := newTestEvent(t, cfg, src)
	cfg.IncludeNewPullReqs = true
	loud := newTestEvent(t, cfg, src)

	runCycle(t, silent)
	runCycle(t, loud)

	src.pullReqs = append(src.pullReqs, devops.PullRequest{ID: 2, Status: "active"})
	if got := runCycle(t, silent); len(got) != 0 {
		t.Fatalf("unseen pull request reported without opt-in: %d occurrences", len(got))
	}
	if got := runCycle(t, loud); len(got) != 1 {
		t.Fatalf("expected 1 occurrence for unseen pull request, got %d", len(got))
	}
}

func TestCreationComparedAgainstLastPoll(t *testing.T) {
	src := newFakeSource()
	now := time.Now().UTC()
	src.pullReqs = []devops.PullRequest{
		{ID: 1, CreatedAt: now.Add(-time.Hour)},
		{ID: 2, CreatedAt: now.Add(time.Minute)},
	}
	ev := newTestEvent(t, prEventConfig("pr_create"), src)
	ev.SetLastPoll(now)

	payloads, err := ev.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(payloads) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(payloads))
	}
	pr, _ := payloads[0].Data.(devops.PullRequest)
	if pr.ID != 2 {
		t.Errorf("reported pull request %d, want 2", pr.ID)
	}
}

// midPollSource stamps a pull request's creation time from inside the list
// fetch, simulating a pull request created after the poll started but before
// the fetch returned.
type midPollSource struct {
	*fakeSource
	stamped bool
}

func (s *midPollSource) ListPullRequests(ctx context.Context, projectID, repoID string) ([]devops.PullRequest, error) {
	if !s.stamped {
		s.stamped = true
		s.pullReqs = []devops.PullRequest{{ID: 11, CreatedAt: time.Now().UTC()}}
	}
	return s.fakeSource.ListPullRequests(ctx, projectID, repoID)
}

func TestCreationReportedOnceWhenPullRequestArrivesMidPoll(t *testing.T) {
	src := &midPollSource{fakeSource: newFakeSource()}
	ev := newTestEvent(t, prEventConfig("pr_create"), src)
	ev.SetLastPoll(time.Now().UTC().Add(-time.Minute))

	first, err := ev.Poll(context.Background())
	if err != nil {
		t.Fatalf("poll: %v", err)
	}
	if len(first) != 1 {
		t.Fatalf("expected 1 occurrence for the new pull request, got %d", len(first))
	}

	// The last poll time records when the poll finished, which is after the
	// creation timestamp, so the next cycle must not report it again.
	second, err := ev.Poll(context.Background())
	if err != nil {
		t.Fatalf("second poll: %v", err)
	}
	if len(second) != 0 {
		t.Fatalf("creation reported again in the following cycle: %d occurrences", len(second))
	}
}

func TestReviewerVoteChangeCarriesCulprits(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{
		ID: 8,
		Reviewers: []devops.Reviewer{
			{ID: "u1", DisplayName: "Ada", Vote: 0},
			{ID: "u2", DisplayName: "Sam", Vote: 0},
		},
	}}
	ev := newTestEvent(t, prEventConfig("pr_reviewer_voted"), src)

	runCycle(t, ev)
	src.pullReqs[0].Reviewers[1].Vote = 10
	payloads := runCycle(t, ev)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(payloads))
	}
	culprits, ok := payloads[0].Culprits.([]devops.Reviewer)
	if !ok || len(culprits) != 1 || culprits[0].ID != "u2" {
		t.Fatalf("culprits = %#v, want the reviewer who voted", payloads[0].Culprits)
	}
}

func TestReviewerAddedCulprits(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{
		ID:        8,
		Reviewers: []devops.Reviewer{{ID: "u1", DisplayName: "Ada"}},
	}}
	ev := newTestEvent(t, prEventConfig("pr_reviewer_added"), src)

	runCycle(t, ev)
	src.pullReqs[0].Reviewers = append(src.pullReqs[0].Reviewers,
		devops.Reviewer{ID: "u3", DisplayName: "Kim"})
	payloads := runCycle(t, ev)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(payloads))
	}
	culprits, _ := payloads[0].Culprits.([]devops.Reviewer)
	if len(culprits) != 1 || culprits[0].ID != "u3" {
		t.Fatalf("culprits = %#v, want the added reviewer", payloads[0].Culprits)
	}
}

func TestSourceCommitChangeDetected(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{ID: 4, SourceCommit: devops.Commit{ID: "aaa"}}}
	ev := newTestEvent(t, prEventConfig("pr_commit_new_src"), src)

	runCycle(t, ev)
	src.pullReqs[0].SourceCommit.ID = "bbb"
	if got := runCycle(t, ev); len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}
}

func TestThreadCountIncreaseDetected(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{ID: 5}}
	src.threads[5] = 2
	ev := newTestEvent(t, prEventConfig("pr_comment_added"), src)

	runCycle(t, ev)
	src.threads[5] = 3
	if got := runCycle(t, ev); len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}

	// A count that goes down (thread deleted) is not a new comment.
	src.threads[5] = 1
	if got := runCycle(t, ev); len(got) != 0 {
		t.Fatalf("decreasing thread count reported: %d occurrences", len(got))
	}
}

func TestBranchHeadMoveDetected(t *testing.T) {
	src := newFakeSource()
	src.branches = []devops.Branch{
		{Name: "main", Commit: devops.Commit{ID: "c1"}},
		{Name: "release", Commit: devops.Commit{ID: "r1"}},
	}
	cfg := prEventConfig("branch_commit_new")
	ev := newTestEvent(t, cfg, src)

	runCycle(t, ev)
	src.branches[0].Commit.ID = "c2"
	src.branches = append(src.branches, devops.Branch{Name: "feature", Commit: devops.Commit{ID: "f1"}})
	payloads := runCycle(t, ev)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(payloads))
	}
	br, _ := payloads[0].Data.(devops.Branch)
	if br.Name != "main" {
		t.Errorf("reported branch %q, want main", br.Name)
	}

	// The new branch now has a baseline; moving it is reported.
	src.branches[2].Commit.ID = "f2"
	payloads = runCycle(t, ev)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 occurrence for new branch move, got %d", len(payloads))
	}
}

func TestSingleBranchSelectorWatchesOnlyThatBranch(t *testing.T) {
	src := newFakeSource()
	src.branches = []devops.Branch{
		{Name: "main", Commit: devops.Commit{ID: "c1"}},
		{Name: "release", Commit: devops.Commit{ID: "r1"}},
	}
	cfg := prEventConfig("branch_commit_new")
	cfg.Branch = "release"
	ev := newTestEvent(t, cfg, src)

	runCycle(t, ev)
	src.branches[0].Commit.ID = "c2"
	if got := runCycle(t, ev); len(got) != 0 {
		t.Fatalf("move on an unwatched branch reported: %d occurrences", len(got))
	}

	src.branches[1].Commit.ID = "r2"
	if got := runCycle(t, ev); len(got) != 1 {
		t.Fatalf("expected 1 occurrence on watched branch, got %d", len(got))
	}
}

func workItem(id int, state string, comments int) devops.WorkItem {
	return devops.WorkItem{ID: id, Fields: map[string]any{
		"System.State":        state,
		"System.CommentCount": float64(comments),
	}}
}

func TestWorkItemStateChangeDetected(t *testing.T) {
	src := newFakeSource()
	src.items[42] = workItem(42, "Active", 0)
	cfg := config.Event{Kind: "wi_state_change", Project: "Fabrikam", WorkItems: []int{42}}
	ev := newTestEvent(t, cfg, src)

	runCycle(t, ev)

	// Case-only differences are not state changes.
	src.items[42] = workItem(42, "ACTIVE", 0)
	if got := runCycle(t, ev); len(got) != 0 {
		t.Fatalf("case-only state difference reported: %d occurrences", len(got))
	}

	src.items[42] = workItem(42, "Resolved", 0)
	payloads := runCycle(t, ev)
	if len(payloads) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(payloads))
	}
	if state, _ := payloads[0].Culprits.(string); state != "Resolved" {
		t.Errorf("culprit = %#v, want new state", payloads[0].Culprits)
	}
}

func TestWorkItemCommentCountDetected(t *testing.T) {
	src := newFakeSource()
	src.items[9] = workItem(9, "Active", 1)
	cfg := config.Event{Kind: "wi_comment_new", Project: "Fabrikam", WorkItems: []int{9}}
	ev := newTestEvent(t, cfg, src)

	runCycle(t, ev)
	src.items[9] = workItem(9, "Active", 2)
	if got := runCycle(t, ev); len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}
}

func TestTeamBacklogFailureToleratedPerTeam(t *testing.T) {
	src := newFakeSource()
	src.teams = []devops.Team{
		{ID: "t1", Name: "Core"},
		{ID: "t2", Name: "Infra"},
	}
	src.teamItems["t1"] = []devops.WorkItem{workItem(1, "Active", 0)}
	// t2 missing: its backlog query fails, the rest keep working.
	cfg := config.Event{Kind: "wi_state_change", Project: "Fabrikam"}
	ev := newTestEvent(t, cfg, src)

	runCycle(t, ev)
	src.teamItems["t1"] = []devops.WorkItem{workItem(1, "Closed", 0)}
	if got := runCycle(t, ev); len(got) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(got))
	}
}

func TestUnknownTeamIsAnError(t *testing.T) {
	src := newFakeSource()
	src.teams = []devops.Team{{ID: "t1", Name: "Core"}}
	cfg := config.Event{Kind: "wi_state_change", Project: "Fabrikam", Teams: []string{"Ghosts"}}
	ev := newTestEvent(t, cfg, src)

	_, err := ev.Poll(context.Background())
	if err == nil || !strings.Contains(err.Error(), "Ghosts") {
		t.Fatalf("expected unknown-team error, got %v", err)
	}
}

func TestFailedPollWritesNoBaseline(t *testing.T) {
	src := newFakeSource()
	src.pullReqs = []devops.PullRequest{{ID: 1, IsDraft: true}}
	ev := newTestEvent(t, prEventConfig("pr_draft_on"), src)

	ctx := context.Background()
	src.failWith = fmt.Errorf("service unavailable")
	if _, err := ev.Poll(ctx); err == nil {
		t.Fatal("expected poll error")
	}
	if err := ev.Cleanup(ctx); err != nil {
		t.Fatalf("cleanup after failed poll: %v", err)
	}

	// No baseline was persisted, so the next successful cycle is still
	// the suppressed first observation.
	src.failWith = nil
	if got := runCycle(t, ev); len(got) != 0 {
		t.Fatalf("baseline leaked from failed cycle: %d occurrences", len(got))
	}
}

func TestPollAdvancesLastPollEvenOnFailure(t *testing.T) {
	src := newFakeSource()
	src.failWith = fmt.Errorf("service unavailable")
	ev := newTestEvent(t, prEventConfig("pr_create"), src)

	before := time.Now().UTC()
	ev.SetLastPoll(before.Add(-time.Hour))
	_, _ = ev.Poll(context.Background())
	if ev.LastPoll().Before(before) {
		t.Fatalf("last poll time not advanced: %v", ev.LastPoll())
	}
}
