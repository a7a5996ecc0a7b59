// Package github is a minimal GitHub REST client used by the KPI
// aggregator to read engineering signals for each platform.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

const githubAPIURL = "https://api.github.com"

// Client is a GitHub API client.
type Client struct {
	token      string
	httpClient *http.Client
	baseURL    string // for testing, defaults to githubAPIURL
}

// NewClient creates a new GitHub client.
func NewClient(token string) *Client {
	return &Client{
		token:   token,
		baseURL: githubAPIURL,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// NewClientWithBaseURL creates a client with a custom base URL (for testing).
func NewClientWithBaseURL(token, baseURL string) *Client {
	c := NewClient(token)
	c.baseURL = baseURL
	return c
}

// RepoSummary is the engineering snapshot for one repository.
type RepoSummary struct {
	Repo           string    `json:"repo"`
	OpenIssues     int       `json:"open_issues"`
	OpenPRs        int       `json:"open_prs"`
	LastPushAt     time.Time `json:"last_push_at"`
	DefaultBranch  string    `json:"default_branch"`
	StargazerCount int       `json:"stargazer_count"`
}

type repoResponse struct {
	FullName        string    `json:"full_name"`
	OpenIssuesCount int       `json:"open_issues_count"`
	PushedAt        time.Time `json:"pushed_at"`
	DefaultBranch   string    `json:"default_branch"`
	StargazersCount int       `json:"stargazers_count"`
}

type searchResponse struct {
	TotalCount int `json:"total_count"`
}

// GetRepoSummary fetches the snapshot for "owner/repo". GitHub counts
// pull requests inside open_issues_count, so the PR count is subtracted
// back out to report issues alone.
func (c *Client) GetRepoSummary(ctx context.Context, repo string) (*RepoSummary, error) {
	var r repoResponse
	if err := c.doRequest(ctx, http.MethodGet, "/repos/"+repo, &r); err != nil {
		return nil, fmt.Errorf("fetching repo %s: %w", repo, err)
	}

	prs, err := c.countOpenPRs(ctx, repo)
	if err != nil {
		return nil, fmt.Errorf("counting open PRs for %s: %w", repo, err)
	}

	issues := r.OpenIssuesCount - prs
	if issues < 0 {
		issues = 0
	}
	return &RepoSummary{
		Repo:           r.FullName,
		OpenIssues:     issues,
		OpenPRs:        prs,
		LastPushAt:     r.PushedAt,
		DefaultBranch:  r.DefaultBranch,
		StargazerCount: r.StargazersCount,
	}, nil
}

func (c *Client) countOpenPRs(ctx context.Context, repo string) (int, error) {
	q := url.QueryEscape(fmt.Sprintf("repo:%s is:pr is:open", repo))
	var s searchResponse
	if err := c.doRequest(ctx, http.MethodGet, "/search/issues?per_page=1&q="+q, &s); err != nil {
		return 0, err
	}
	return s.TotalCount, nil
}

// Ping verifies the token and API reachability.
func (c *Client) Ping(ctx context.Context) error {
	return c.doRequest(ctx, http.MethodGet, "/rate_limit", nil)
}

// doRequest performs an HTTP request to the GitHub API.
func (c *Client) doRequest(ctx context.Context, method, path string, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("Accept", "application/vnd.github+json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("API error (status %d): %s", resp.StatusCode, string(respBody))
	}

	if result != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, result); err != nil {
			return fmt.Errorf("failed to parse response: %w", err)
		}
	}
	return nil
}
