package devops

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const apiVersion = "7.1"

// HTTPDoer describes the HTTP client used to reach the service.
type HTTPDoer interface {
	Do(req *http.Request) (*http.Response, error)
}

// Client talks to the Azure DevOps REST API with PAT authentication.
type Client struct {
	baseURL string
	pat     string
	client  HTTPDoer
}

// Option configures the client.
type Option func(*Client)

// WithHTTPClient injects a custom HTTP client (primarily for tests).
func WithHTTPClient(doer HTTPDoer) Option {
	return func(c *Client) {
		if doer != nil {
			c.client = doer
		}
	}
}

// New constructs a client for the given organization, which may be a plain
// organization name or a full base URL.
func New(organization, pat string, timeout time.Duration, opts ...Option) (*Client, error) {
	organization = strings.TrimSpace(organization)
	if organization == "" {
		return nil, errors.New("organization required")
	}
	if strings.TrimSpace(pat) == "" {
		return nil, errors.New("personal access token required")
	}

	baseURL := organization
	if !strings.Contains(organization, "://") {
		baseURL = "https://dev.azure.com/" + organization
	}
	baseURL = strings.TrimRight(baseURL, "/")

	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	client := &Client{
		baseURL: baseURL,
		pat:     strings.TrimSpace(pat),
		client:  &http.Client{Timeout: timeout},
	}
	for _, opt := range opts {
		opt(client)
	}
	return client, nil
}

// BaseURL returns the resolved organization URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

type valueList[T any] struct {
	Count int `json:"count"`
	Value []T `json:"value"`
}

// ListProjects returns all projects in the organization.
func (c *Client) ListProjects(ctx context.Context) ([]Project, error) {
	var out valueList[Project]
	if err := c.getJSON(ctx, "/_apis/projects", nil, &out); err != nil {
		return nil, fmt.Errorf("list projects: %w", err)
	}
	return out.Value, nil
}

// FindProject resolves a project by name or ID.
func (c *Client) FindProject(ctx context.Context, nameOrID string) (Project, error) {
	var out Project
	path := "/_apis/projects/" + url.PathEscape(strings.TrimSpace(nameOrID))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return Project{}, fmt.Errorf("find project %q: %w", nameOrID, err)
	}
	return out, nil
}

// ListRepos returns all git repositories in a project.
func (c *Client) ListRepos(ctx context.Context, projectID string) ([]Repo, error) {
	var out valueList[Repo]
	path := "/" + url.PathEscape(projectID) + "/_apis/git/repositories"
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list repos: %w", err)
	}
	return out.Value, nil
}

// FindRepo resolves a repository by name or ID within a project.
func (c *Client) FindRepo(ctx context.Context, projectID, nameOrID string) (Repo, error) {
	var out Repo
	path := "/" + url.PathEscape(projectID) + "/_apis/git/repositories/" + url.PathEscape(strings.TrimSpace(nameOrID))
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return Repo{}, fmt.Errorf("find repo %q: %w", nameOrID, err)
	}
	return out, nil
}

type gitRef struct {
	Name     string `json:"name"`
	ObjectID string `json:"objectId"`
}

// ListBranches returns every branch head in a repository.
func (c *Client) ListBranches(ctx context.Context, projectID, repoID string) ([]Branch, error) {
	refs, err := c.listRefs(ctx, projectID, repoID, "heads/")
	if err != nil {
		return nil, fmt.Errorf("list branches: %w", err)
	}
	branches := make([]Branch, 0, len(refs))
	for _, ref := range refs {
		branches = append(branches, branchFromRef(ref))
	}
	return branches, nil
}

// FindBranch resolves a single branch by name.
func (c *Client) FindBranch(ctx context.Context, projectID, repoID, name string) (Branch, error) {
	name = strings.TrimPrefix(strings.TrimSpace(name), "refs/heads/")
	refs, err := c.listRefs(ctx, projectID, repoID, "heads/"+name)
	if err != nil {
		return Branch{}, fmt.Errorf("find branch %q: %w", name, err)
	}
	for _, ref := range refs {
		if strings.TrimPrefix(ref.Name, "refs/heads/") == name {
			return branchFromRef(ref), nil
		}
	}
	return Branch{}, fmt.Errorf("find branch %q: no such ref", name)
}

func (c *Client) listRefs(ctx context.Context, projectID, repoID, filter string) ([]gitRef, error) {
	var out valueList[gitRef]
	path := "/" + url.PathEscape(projectID) + "/_apis/git/repositories/" + url.PathEscape(repoID) + "/refs"
	query := url.Values{"filter": []string{filter}}
	if err := c.getJSON(ctx, path, query, &out); err != nil {
		return nil, err
	}
	return out.Value, nil
}

func branchFromRef(ref gitRef) Branch {
	return Branch{
		Name:   strings.TrimPrefix(ref.Name, "refs/heads/"),
		Commit: Commit{ID: ref.ObjectID},
	}
}

// ListPullRequests returns the active pull requests in a repository.
func (c *Client) ListPullRequests(ctx context.Context, projectID, repoID string) ([]PullRequest, error) {
	var out valueList[PullRequest]
	path := "/" + url.PathEscape(projectID) + "/_apis/git/repositories/" + url.PathEscape(repoID) + "/pullrequests"
	query := url.Values{"searchCriteria.status": []string{"active"}}
	if err := c.getJSON(ctx, path, query, &out); err != nil {
		return nil, fmt.Errorf("list pull requests: %w", err)
	}
	return out.Value, nil
}

// CountPullRequestThreads returns the number of comment threads on a pull request.
func (c *Client) CountPullRequestThreads(ctx context.Context, projectID, repoID string, pullReqID int) (int, error) {
	var out valueList[json.RawMessage]
	path := "/" + url.PathEscape(projectID) + "/_apis/git/repositories/" + url.PathEscape(repoID) +
		"/pullRequests/" + strconv.Itoa(pullReqID) + "/threads"
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return 0, fmt.Errorf("count pull request threads: %w", err)
	}
	if out.Count > 0 {
		return out.Count, nil
	}
	return len(out.Value), nil
}

// ListTeams returns every team in a project.
func (c *Client) ListTeams(ctx context.Context, projectID string) ([]Team, error) {
	var out valueList[Team]
	path := "/_apis/projects/" + url.PathEscape(projectID) + "/teams"
	if err := c.getJSON(ctx, path, nil, &out); err != nil {
		return nil, fmt.Errorf("list teams: %w", err)
	}
	return out.Value, nil
}

type wiqlResult struct {
	WorkItems []struct {
		ID int `json:"id"`
	} `json:"workItems"`
}

// ListTeamWorkItems queries the work items assigned to a team's backlog.
func (c *Client) ListTeamWorkItems(ctx context.Context, projectID, teamID string) ([]WorkItem, error) {
	body := map[string]string{
		"query": "SELECT [System.Id] FROM WorkItems ORDER BY [System.ChangedDate] DESC",
	}
	var result wiqlResult
	path := "/" + url.PathEscape(projectID) + "/" + url.PathEscape(teamID) + "/_apis/wit/wiql"
	if err := c.postJSON(ctx, path, body, &result); err != nil {
		return nil, fmt.Errorf("team work item query: %w", err)
	}
	ids := make([]int, 0, len(result.WorkItems))
	for _, wi := range result.WorkItems {
		ids = append(ids, wi.ID)
	}
	return c.GetWorkItems(ctx, projectID, ids)
}

// GetWorkItems fetches work items by ID. The service caps a single request
// at 200 IDs, so larger sets are fetched in batches.
func (c *Client) GetWorkItems(ctx context.Context, projectID string, ids []int) ([]WorkItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	const batchSize = 200
	items := make([]WorkItem, 0, len(ids))
	for start := 0; start < len(ids); start += batchSize {
		end := start + batchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := make([]string, 0, end-start)
		for _, id := range ids[start:end] {
			batch = append(batch, strconv.Itoa(id))
		}
		var out valueList[WorkItem]
		path := "/" + url.PathEscape(projectID) + "/_apis/wit/workitems"
		query := url.Values{"ids": []string{strings.Join(batch, ",")}}
		if err := c.getJSON(ctx, path, query, &out); err != nil {
			return nil, fmt.Errorf("get work items: %w", err)
		}
		items = append(items, out.Value...)
	}
	return items, nil
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	return c.doJSON(ctx, http.MethodGet, path, query, nil, out)
}

func (c *Client) postJSON(ctx context.Context, path string, body any, out any) error {
	return c.doJSON(ctx, http.MethodPost, path, nil, body, out)
}

func (c *Client) doJSON(ctx context.Context, method, path string, query url.Values, body, out any) error {
	if query == nil {
		query = url.Values{}
	}
	query.Set("api-version", apiVersion)
	endpoint := c.baseURL + path + "?" + query.Encode()

	var reader io.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("encode request body: %w", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.SetBasicAuth("", c.pat)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("%s returned %d: %s", path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response from %s: %w", path, err)
	}
	return nil
}
