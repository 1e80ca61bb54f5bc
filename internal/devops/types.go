package devops

import (
	"strings"
	"time"
)

// Project is an Azure DevOps project record.
type Project struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

// Repo is a git repository within a project.
type Repo struct {
	ID            string `json:"id"`
	Name          string `json:"name"`
	DefaultBranch string `json:"defaultBranch,omitempty"`
}

// Commit identifies a single commit.
type Commit struct {
	ID string `json:"commitId"`
}

// Branch is a git branch head.
type Branch struct {
	Name   string `json:"name"`
	Commit Commit `json:"commit"`
}

// Reviewer is a pull-request reviewer with their current vote.
// Votes follow the service convention: 10 approved, 5 approved with
// suggestions, 0 no vote, -5 waiting for author, -10 rejected.
type Reviewer struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
	Vote        int    `json:"vote"`
}

// Identity is a user reference on a record.
type Identity struct {
	ID          string `json:"id"`
	DisplayName string `json:"displayName"`
}

// PullRequest is the current state of one pull request.
type PullRequest struct {
	ID           int        `json:"pullRequestId"`
	CodeReviewID int        `json:"codeReviewId,omitempty"`
	Title        string     `json:"title"`
	Status       string     `json:"status"`
	IsDraft      bool       `json:"isDraft"`
	CreatedAt    time.Time  `json:"creationDate"`
	CreatedBy    Identity   `json:"createdBy"`
	SourceRef    string     `json:"sourceRefName"`
	TargetRef    string     `json:"targetRefName"`
	SourceCommit Commit     `json:"lastMergeSourceCommit"`
	TargetCommit Commit     `json:"lastMergeTargetCommit"`
	Reviewers    []Reviewer `json:"reviewers,omitempty"`
}

// Team is a project team.
type Team struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// WorkItem is the current state of one work item. Fields carries the raw
// field map as returned by the service (e.g. "System.State").
type WorkItem struct {
	ID     int            `json:"id"`
	Rev    int            `json:"rev"`
	Fields map[string]any `json:"fields"`
}

// State returns the work item's System.State field, or "" when absent.
func (w WorkItem) State() string {
	state, _ := w.Fields["System.State"].(string)
	return strings.TrimSpace(state)
}

// Title returns the work item's System.Title field, or "" when absent.
func (w WorkItem) Title() string {
	title, _ := w.Fields["System.Title"].(string)
	return title
}

// CommentCount returns the work item's System.CommentCount field, or 0 when
// absent. JSON numbers decode as float64 in the raw field map.
func (w WorkItem) CommentCount() int {
	switch v := w.Fields["System.CommentCount"].(type) {
	case float64:
		return int(v)
	case int:
		return v
	default:
		return 0
	}
}
