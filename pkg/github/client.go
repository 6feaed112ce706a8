// Package github fetches CI workflow status from the GitHub REST API.
// It is a thin read-only client: workflow runs and their jobs, with
// response caching and outbound request pacing so a dashboard refresh
// cannot burn through the API quota.
package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/ethpandaops/resultoor/pkg/config"
)

const (
	httpTimeout  = 10 * time.Second
	runsPerPage  = 20
	jobsPerPage  = 100
	defaultPace  = 30 // requests per minute when unconfigured
	acceptHeader = "application/vnd.github+json"
)

// RateLimitError reports an exhausted API quota. It is distinct from
// other fetch failures so callers can prompt for a token instead of
// showing a generic error.
type RateLimitError struct {
	// Reset is when the quota window renews. Zero when the reset
	// header was absent or unparseable.
	Reset time.Time
}

func (e *RateLimitError) Error() string {
	if e.Reset.IsZero() {
		return "github api rate limit exceeded"
	}

	return fmt.Sprintf(
		"github api rate limit exceeded, resets at %s",
		e.Reset.UTC().Format(time.RFC3339),
	)
}

// WorkflowRun is one execution of a GitHub Actions workflow.
type WorkflowRun struct {
	ID         int64     `json:"id"`
	Name       string    `json:"name"`
	HeadBranch string    `json:"head_branch"`
	HeadSHA    string    `json:"head_sha"`
	RunNumber  int       `json:"run_number"`
	Status     string    `json:"status"`
	Conclusion string    `json:"conclusion"`
	HTMLURL    string    `json:"html_url"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// WorkflowJob is one job within a workflow run.
type WorkflowJob struct {
	ID          int64      `json:"id"`
	RunID       int64      `json:"run_id"`
	Name        string     `json:"name"`
	Status      string     `json:"status"`
	Conclusion  string     `json:"conclusion"`
	HTMLURL     string     `json:"html_url"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
}

type runsResponse struct {
	TotalCount   int           `json:"total_count"`
	WorkflowRuns []WorkflowRun `json:"workflow_runs"`
}

type jobsResponse struct {
	TotalCount int           `json:"total_count"`
	Jobs       []WorkflowJob `json:"jobs"`
}

// TokenSource resolves a persisted API token, typically from the
// settings store. It may return empty when none is stored.
type TokenSource func(ctx context.Context) string

type cacheEntry struct {
	body      []byte
	expiresAt time.Time
}

// Client is a caching, rate-paced GitHub REST client.
type Client struct {
	log      logrus.FieldLogger
	baseURL  string
	token    string
	tokenFn  TokenSource
	http     *http.Client
	limiter  *rate.Limiter
	cacheTTL time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewClient creates a client from config. tokenFn may be nil when no
// settings store is wired.
func NewClient(
	log logrus.FieldLogger,
	cfg *config.GitHubConfig,
	tokenFn TokenSource,
) (*Client, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = config.DefaultGitHubBaseURL
	}

	ttlStr := cfg.CacheTTL
	if ttlStr == "" {
		ttlStr = config.DefaultGitHubCacheTTL
	}

	ttl, err := time.ParseDuration(ttlStr)
	if err != nil {
		return nil, fmt.Errorf("invalid cache_ttl: %w", err)
	}

	perMinute := cfg.RequestsPerMinute
	if perMinute <= 0 {
		perMinute = defaultPace
	}

	return &Client{
		log:      log.WithField("component", "github"),
		baseURL:  strings.TrimRight(baseURL, "/"),
		token:    cfg.Token,
		tokenFn:  tokenFn,
		http:     &http.Client{Timeout: httpTimeout},
		limiter:  rate.NewLimiter(rate.Limit(perMinute)/60, perMinute),
		cacheTTL: ttl,
		cache:    make(map[string]cacheEntry),
	}, nil
}

// ListWorkflowRuns fetches the most recent runs of one workflow file
// in a repository. tokenOverride, when non-empty, takes precedence
// over the persisted and configured tokens.
func (c *Client) ListWorkflowRuns(
	ctx context.Context, owner, repo, workflowFile, tokenOverride string,
) ([]WorkflowRun, error) {
	path := fmt.Sprintf(
		"/repos/%s/%s/actions/workflows/%s/runs?per_page=%d",
		owner, repo, workflowFile, runsPerPage,
	)

	body, err := c.get(ctx, path, tokenOverride)
	if err != nil {
		return nil, err
	}

	var resp runsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding workflow runs: %w", err)
	}

	return resp.WorkflowRuns, nil
}

// ListRunJobs fetches the jobs of one workflow run.
func (c *Client) ListRunJobs(
	ctx context.Context, owner, repo string, runID int64, tokenOverride string,
) ([]WorkflowJob, error) {
	path := fmt.Sprintf(
		"/repos/%s/%s/actions/runs/%d/jobs?per_page=%d",
		owner, repo, runID, jobsPerPage,
	)

	body, err := c.get(ctx, path, tokenOverride)
	if err != nil {
		return nil, err
	}

	var resp jobsResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decoding workflow jobs: %w", err)
	}

	return resp.Jobs, nil
}

// resolveToken applies the precedence: request override, persisted
// setting, then configured fallback.
func (c *Client) resolveToken(ctx context.Context, override string) string {
	if override != "" {
		return override
	}

	if c.tokenFn != nil {
		if token := c.tokenFn(ctx); token != "" {
			return token
		}
	}

	return c.token
}

func (c *Client) get(
	ctx context.Context, path, tokenOverride string,
) ([]byte, error) {
	token := c.resolveToken(ctx, tokenOverride)

	// Cache keys include the token so a tokenless 403 cannot mask an
	// authenticated retry.
	key := path + "#" + token

	c.mu.Lock()

	if entry, ok := c.cache[key]; ok && time.Now().Before(entry.expiresAt) {
		c.mu.Unlock()

		return entry.body, nil
	}

	c.mu.Unlock()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("waiting for rate limiter: %w", err)
	}

	url := c.baseURL + path

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}

	req.Header.Set("Accept", acceptHeader)

	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response: %w", err)
	}

	if resp.StatusCode == http.StatusForbidden &&
		resp.Header.Get("X-RateLimit-Remaining") == "0" {
		return nil, &RateLimitError{Reset: parseRateLimitReset(resp)}
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf(
			"github api returned status %d for %s", resp.StatusCode, path,
		)
	}

	c.mu.Lock()
	c.cache[key] = cacheEntry{
		body:      body,
		expiresAt: time.Now().Add(c.cacheTTL),
	}
	c.mu.Unlock()

	return body, nil
}

func parseRateLimitReset(resp *http.Response) time.Time {
	raw := resp.Header.Get("X-RateLimit-Reset")
	if raw == "" {
		return time.Time{}
	}

	unix, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return time.Time{}
	}

	return time.Unix(unix, 0)
}
