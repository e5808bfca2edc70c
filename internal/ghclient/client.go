package ghclient

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/go-github/v57/github"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/fyrsmithlabs/octoquest/internal/ratelimit"
)

const defaultPerPage = 100

// Config holds the settings for the GitHub client wrapper.
type Config struct {
	// Username is the account the token is expected to belong to.
	Username string `koanf:"username"`

	// Token is a personal access token. Required.
	Token string `koanf:"token"`

	// BaseURL overrides the API endpoint, mainly for GitHub Enterprise
	// and tests. Must end with a slash when set.
	BaseURL string `koanf:"base_url"`

	// DefaultBranch is used as the merge base when a pull request does
	// not name one.
	DefaultBranch string `koanf:"default_branch"`
}

// DefaultConfig returns a Config with defaults applied.
func DefaultConfig() Config {
	cfg := Config{}
	cfg.ApplyDefaults()
	return cfg
}

// ApplyDefaults fills zero-valued fields in place.
func (c *Config) ApplyDefaults() {
	if c.DefaultBranch == "" {
		c.DefaultBranch = "main"
	}
}

// Validate checks that the config is usable.
func (c *Config) Validate() error {
	if c.Token == "" {
		return errors.New("github token is required")
	}
	if c.Username == "" {
		return errors.New("github username is required")
	}
	if c.BaseURL != "" {
		u, err := url.Parse(c.BaseURL)
		if err != nil {
			return fmt.Errorf("invalid base_url: %w", err)
		}
		if u.Scheme == "" || u.Host == "" {
			return fmt.Errorf("base_url %q must be absolute", c.BaseURL)
		}
	}
	return nil
}

// Client wraps the GitHub API with rate limiting and retries. All calls go
// through the limiter; use it as the only path to the API.
type Client struct {
	cfg     Config
	gh      *github.Client
	limiter *ratelimit.Limiter
	logger  *zap.Logger

	tracer trace.Tracer
	meter  metric.Meter

	apiCalls metric.Int64Counter
}

// New builds a Client authenticated with the configured token.
func New(cfg Config, limiter *ratelimit.Limiter, logger *zap.Logger) (*Client, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid github config: %w", err)
	}
	if limiter == nil {
		return nil, errors.New("limiter is required")
	}

	ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: cfg.Token})
	hc := oauth2.NewClient(context.Background(), ts)
	gh := github.NewClient(hc)
	if cfg.BaseURL != "" {
		u, err := url.Parse(cfg.BaseURL)
		if err != nil {
			return nil, fmt.Errorf("invalid base_url: %w", err)
		}
		gh.BaseURL = u
	}

	return newClient(cfg, gh, limiter, logger), nil
}

// NewWithGitHub wraps an existing github.Client. Intended for tests.
func NewWithGitHub(cfg Config, gh *github.Client, limiter *ratelimit.Limiter, logger *zap.Logger) *Client {
	cfg.ApplyDefaults()
	return newClient(cfg, gh, limiter, logger)
}

func newClient(cfg Config, gh *github.Client, limiter *ratelimit.Limiter, logger *zap.Logger) *Client {
	if logger == nil {
		logger = zap.NewNop()
	}
	c := &Client{
		cfg:     cfg,
		gh:      gh,
		limiter: limiter,
		logger:  logger,
		tracer:  otel.Tracer("octoquest.ghclient"),
		meter:   otel.Meter("octoquest.ghclient"),
	}
	c.initMetrics()
	return c
}

func (c *Client) initMetrics() {
	var err error
	c.apiCalls, err = c.meter.Int64Counter("octoquest.ghclient.api_calls_total",
		metric.WithDescription("GitHub API calls issued, by operation"))
	if err != nil {
		c.logger.Warn("failed to create ghclient metrics", zap.Error(err))
	}
}

func (c *Client) count(ctx context.Context, op string) {
	if c.apiCalls != nil {
		c.apiCalls.Add(ctx, 1, metric.WithAttributes(attribute.String("operation", op)))
	}
}

// do funnels one API operation through the limiter's retry policy.
func (c *Client) do(ctx context.Context, op, path string, fn func() error) error {
	ctx, span := c.tracer.Start(ctx, "ghclient."+op)
	defer span.End()

	c.count(ctx, op)
	return c.limiter.Do(ctx, path, fn)
}

// Username returns the configured account name.
func (c *Client) Username() string { return c.cfg.Username }

// CreateRepository creates a repository under the authenticated user.
func (c *Client) CreateRepository(ctx context.Context, name, description string, private bool) (*github.Repository, error) {
	var repo *github.Repository
	err := c.do(ctx, "create_repository", "/user/repos", func() error {
		var err error
		repo, _, err = c.gh.Repositories.Create(ctx, "", &github.Repository{
			Name:        github.String(name),
			Description: github.String(description),
			Private:     github.Bool(private),
			AutoInit:    github.Bool(true),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create repository %s: %w", name, err)
	}
	c.logger.Info("repository created", zap.String("name", name), zap.Bool("private", private))
	return repo, nil
}

// DeleteRepository deletes a repository owned by the configured user.
func (c *Client) DeleteRepository(ctx context.Context, name string) error {
	err := c.do(ctx, "delete_repository", fmt.Sprintf("/repos/%s/%s", c.cfg.Username, name), func() error {
		_, err := c.gh.Repositories.Delete(ctx, c.cfg.Username, name)
		return err
	})
	if err != nil {
		return fmt.Errorf("delete repository %s: %w", name, err)
	}
	c.logger.Info("repository deleted", zap.String("name", name))
	return nil
}

// PullRequestSpec describes a pull request to open.
type PullRequestSpec struct {
	Owner string
	Repo  string
	Title string
	Head  string
	// Base defaults to the configured default branch.
	Base string
	Body string
}

// CreatePullRequest opens a pull request.
func (c *Client) CreatePullRequest(ctx context.Context, spec PullRequestSpec) (*github.PullRequest, error) {
	base := spec.Base
	if base == "" {
		base = c.cfg.DefaultBranch
	}
	var pr *github.PullRequest
	err := c.do(ctx, "create_pull_request", fmt.Sprintf("/repos/%s/%s/pulls", spec.Owner, spec.Repo), func() error {
		var err error
		pr, _, err = c.gh.PullRequests.Create(ctx, spec.Owner, spec.Repo, &github.NewPullRequest{
			Title: github.String(spec.Title),
			Head:  github.String(spec.Head),
			Base:  github.String(base),
			Body:  github.String(spec.Body),
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create pull request %s/%s %q: %w", spec.Owner, spec.Repo, spec.Title, err)
	}
	return pr, nil
}

// MergePullRequest merges a pull request by number.
func (c *Client) MergePullRequest(ctx context.Context, owner, repo string, number int, message string) error {
	err := c.do(ctx, "merge_pull_request", fmt.Sprintf("/repos/%s/%s/pulls/%d/merge", owner, repo, number), func() error {
		result, _, err := c.gh.PullRequests.Merge(ctx, owner, repo, number, message, nil)
		if err != nil {
			return err
		}
		if result.GetMerged() {
			return nil
		}
		return fmt.Errorf("pull request %d not merged: %s", number, result.GetMessage())
	})
	if err != nil {
		return fmt.Errorf("merge pull request %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// CreateIssue opens an issue.
func (c *Client) CreateIssue(ctx context.Context, owner, repo, title, body string, labels []string) (*github.Issue, error) {
	req := &github.IssueRequest{
		Title: github.String(title),
		Body:  github.String(body),
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}
	var issue *github.Issue
	err := c.do(ctx, "create_issue", fmt.Sprintf("/repos/%s/%s/issues", owner, repo), func() error {
		var err error
		issue, _, err = c.gh.Issues.Create(ctx, owner, repo, req)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create issue %s/%s %q: %w", owner, repo, title, err)
	}
	return issue, nil
}

// CloseIssue closes an issue by number.
func (c *Client) CloseIssue(ctx context.Context, owner, repo string, number int) error {
	err := c.do(ctx, "close_issue", fmt.Sprintf("/repos/%s/%s/issues/%d", owner, repo, number), func() error {
		_, _, err := c.gh.Issues.Edit(ctx, owner, repo, number, &github.IssueRequest{
			State: github.String("closed"),
		})
		return err
	})
	if err != nil {
		return fmt.Errorf("close issue %s/%s#%d: %w", owner, repo, number, err)
	}
	return nil
}

// StarRepository stars a repository for the authenticated user.
func (c *Client) StarRepository(ctx context.Context, owner, repo string) error {
	err := c.do(ctx, "star_repository", fmt.Sprintf("/user/starred/%s/%s", owner, repo), func() error {
		_, err := c.gh.Activity.Star(ctx, owner, repo)
		return err
	})
	if err != nil {
		return fmt.Errorf("star %s/%s: %w", owner, repo, err)
	}
	return nil
}

// ForkRepository forks a repository into the authenticated user's account.
// Forking is asynchronous on the server side; an accepted response is treated
// as success and the returned repository may still be provisioning.
func (c *Client) ForkRepository(ctx context.Context, owner, repo string) (*github.Repository, error) {
	var fork *github.Repository
	err := c.do(ctx, "fork_repository", fmt.Sprintf("/repos/%s/%s/forks", owner, repo), func() error {
		var err error
		fork, _, err = c.gh.Repositories.CreateFork(ctx, owner, repo, nil)
		var accepted *github.AcceptedError
		if errors.As(err, &accepted) {
			return nil
		}
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("fork %s/%s: %w", owner, repo, err)
	}
	return fork, nil
}

// CreateGist creates a gist with a single file.
func (c *Client) CreateGist(ctx context.Context, description, filename, content string, public bool) (*github.Gist, error) {
	var gist *github.Gist
	err := c.do(ctx, "create_gist", "/gists", func() error {
		var err error
		gist, _, err = c.gh.Gists.Create(ctx, &github.Gist{
			Description: github.String(description),
			Public:      github.Bool(public),
			Files: map[github.GistFilename]github.GistFile{
				github.GistFilename(filename): {Content: github.String(content)},
			},
		})
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("create gist %q: %w", description, err)
	}
	return gist, nil
}

// FollowUser follows another user.
func (c *Client) FollowUser(ctx context.Context, user string) error {
	err := c.do(ctx, "follow_user", "/user/following/"+user, func() error {
		_, err := c.gh.Users.Follow(ctx, user)
		return err
	})
	if err != nil {
		return fmt.Errorf("follow %s: %w", user, err)
	}
	return nil
}

// ListRepositories lists all repositories for a user, paginating until
// exhausted. Each page is a separate rate-limited call. An empty user lists
// the authenticated account's repositories.
func (c *Client) ListRepositories(ctx context.Context, user string) ([]*github.Repository, error) {
	opts := &github.RepositoryListOptions{
		ListOptions: github.ListOptions{PerPage: defaultPerPage},
	}
	var all []*github.Repository
	for {
		var (
			page []*github.Repository
			resp *github.Response
		)
		err := c.do(ctx, "list_repositories", "/user/repos", func() error {
			var err error
			page, resp, err = c.gh.Repositories.List(ctx, user, opts)
			return err
		})
		if err != nil {
			return nil, fmt.Errorf("list repositories: %w", err)
		}
		all = append(all, page...)
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return all, nil
}

// RateLimitInfo is a human-oriented view of current API quota.
type RateLimitInfo struct {
	Category  ratelimit.Category `json:"category"`
	Remaining int                `json:"remaining"`
	Limit     int                `json:"limit"`
	Reset     time.Time          `json:"reset"`
	// ResetIn is the time until the window resets, floored at zero.
	ResetIn time.Duration `json:"reset_in"`
}

// RateLimitSummary reports quota for every tracked category. Fetch failures
// surface as the limiter's conservative fallback rather than an error.
func (c *Client) RateLimitSummary(ctx context.Context) []RateLimitInfo {
	snapshot := c.limiter.RemainingQuota(ctx, true)
	now := time.Now()
	infos := make([]RateLimitInfo, 0, len(snapshot))
	for _, cat := range ratelimit.Categories() {
		q, ok := snapshot[cat]
		if !ok {
			continue
		}
		resetIn := q.Reset.Sub(now)
		if resetIn < 0 {
			resetIn = 0
		}
		infos = append(infos, RateLimitInfo{
			Category:  cat,
			Remaining: q.Remaining,
			Limit:     q.Limit,
			Reset:     q.Reset,
			ResetIn:   resetIn,
		})
	}
	return infos
}

// FetchQuota reports current quota straight from the API. It deliberately
// bypasses the limiter: the rate_limit endpoint does not count against quota,
// and routing it through the limiter would deadlock quota refresh.
func (c *Client) FetchQuota(ctx context.Context) (ratelimit.QuotaSnapshot, error) {
	limits, _, err := c.gh.RateLimit.Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("fetch rate limits: %w", err)
	}
	snapshot := ratelimit.QuotaSnapshot{}
	put := func(cat ratelimit.Category, rate *github.Rate) {
		if rate == nil {
			return
		}
		snapshot[cat] = ratelimit.Quota{
			Remaining: rate.Remaining,
			Limit:     rate.Limit,
			Reset:     rate.Reset.Time,
		}
	}
	put(ratelimit.CategoryCore, limits.Core)
	put(ratelimit.CategorySearch, limits.Search)
	put(ratelimit.CategoryGraphQL, limits.GraphQL)
	put(ratelimit.CategoryManifest, limits.IntegrationManifest)
	return snapshot, nil
}
