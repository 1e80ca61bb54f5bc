package event

import (
	"context"
	"fmt"
	"strings"

	"adowatch/internal/devops"
	"adowatch/internal/logging"
)

// wiDiff inspects one work item against its baseline and reports whether the
// event fired, plus any culprit data (e.g. the new state).
type wiDiff func(old, cur devops.WorkItem) (bool, any)

// wiComparer is the shared comparison engine for work-item kinds. Work items
// are snapshotted one key per item so large backlogs never rewrite a single
// fat record.
type wiComparer struct {
	project   string
	teams     []string
	workItems []int
	diff      wiDiff

	keyPrefix string
	current   []devops.WorkItem
}

func (w *wiComparer) Poll(ctx context.Context, ev *Event) ([]Payload, error) {
	project, err := ev.Source().FindProject(ctx, w.project)
	if err != nil {
		return nil, err
	}
	w.keyPrefix = fmt.Sprintf("project %s workitem ", project.ID)

	items, err := w.fetchWorkItems(ctx, ev, project)
	if err != nil {
		return nil, err
	}
	w.current = items

	var payloads []Payload
	for _, item := range items {
		var old devops.WorkItem
		found, err := ev.Store().Read(ctx, w.itemKey(item.ID), &old, true)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if hit, culprits := w.diff(old, item); hit {
			payloads = append(payloads, ev.Occurrence(item, culprits))
		}
	}
	return payloads, nil
}

func (w *wiComparer) Cleanup(ctx context.Context, ev *Event) error {
	for _, item := range w.current {
		if err := ev.Store().Write(ctx, w.itemKey(item.ID), item, true); err != nil {
			return err
		}
	}
	return nil
}

func (w *wiComparer) itemKey(id int) string {
	return fmt.Sprintf("%s%d", w.keyPrefix, id)
}

func (w *wiComparer) fetchWorkItems(ctx context.Context, ev *Event, project devops.Project) ([]devops.WorkItem, error) {
	if len(w.workItems) > 0 {
		return ev.Source().GetWorkItems(ctx, project.ID, w.workItems)
	}

	teams, err := w.resolveTeams(ctx, ev, project)
	if err != nil {
		return nil, err
	}

	var items []devops.WorkItem
	for _, team := range teams {
		teamItems, err := ev.Source().ListTeamWorkItems(ctx, project.ID, team.ID)
		if err != nil {
			// Some teams reject backlog queries; keep monitoring the rest.
			ev.Logger().Debug("failed to retrieve team work items",
				logging.String("team", team.Name),
				logging.Error(err),
			)
			continue
		}
		items = append(items, teamItems...)
	}
	return items, nil
}

func (w *wiComparer) resolveTeams(ctx context.Context, ev *Event, project devops.Project) ([]devops.Team, error) {
	all, err := ev.Source().ListTeams(ctx, project.ID)
	if err != nil {
		return nil, err
	}
	if len(w.teams) == 0 {
		return all, nil
	}

	byRef := make(map[string]devops.Team, len(all)*2)
	for _, team := range all {
		byRef[strings.ToLower(team.ID)] = team
		byRef[strings.ToLower(team.Name)] = team
	}
	teams := make([]devops.Team, 0, len(w.teams))
	for _, ref := range w.teams {
		team, ok := byRef[strings.ToLower(strings.TrimSpace(ref))]
		if !ok {
			return nil, fmt.Errorf("unknown team %q in project %q", ref, project.Name)
		}
		teams = append(teams, team)
	}
	return teams, nil
}

// wiStateChanged fires when System.State differs from the baseline,
// comparing case-insensitively; the new state is the culprit.
func wiStateChanged(old, cur devops.WorkItem) (bool, any) {
	oldState := strings.ToLower(old.State())
	curState := strings.ToLower(cur.State())
	if oldState == curState {
		return false, nil
	}
	return true, cur.State()
}

// wiCommentAdded fires when the comment count increased since the baseline.
func wiCommentAdded(old, cur devops.WorkItem) (bool, any) {
	return cur.CommentCount() > old.CommentCount(), nil
}
