package feed

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/go-github/v55/github"
	"go.uber.org/zap"
	"golang.org/x/oauth2"

	"github.com/kurihiro0119/gitingest-pipeline/internal/domain"
	apperrors "github.com/kurihiro0119/gitingest-pipeline/internal/errors"
	"github.com/kurihiro0119/gitingest-pipeline/internal/retry"
)

// githubFetcher builds the feed by listing organization repositories
type githubFetcher struct {
	client      *github.Client
	orgs        []string
	rateLimiter RateLimiter
	retrier     *retry.Retrier
	logger      *zap.Logger
}

// NewGitHubFetcher creates a Fetcher that lists the public, non-archived
// repositories of orgs using the GitHub API
func NewGitHubFetcher(token string, orgs []string, retrier *retry.Retrier, logger *zap.Logger) Fetcher {
	ctx := context.Background()
	ts := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	return newGitHubFetcher(github.NewClient(oauth2.NewClient(ctx, ts)), orgs, retrier, logger)
}

// NewGitHubFetcherWithClient is NewGitHubFetcher over a caller-supplied HTTP
// client and API base URL, e.g. a GitHub Enterprise host or a test server.
func NewGitHubFetcherWithClient(httpClient *http.Client, baseURL string, orgs []string, retrier *retry.Retrier, logger *zap.Logger) (Fetcher, error) {
	client := github.NewClient(httpClient)
	if baseURL != "" {
		if !strings.HasSuffix(baseURL, "/") {
			baseURL += "/"
		}
		u, err := url.Parse(baseURL)
		if err != nil {
			return nil, err
		}
		client.BaseURL = u
	}
	return newGitHubFetcher(client, orgs, retrier, logger), nil
}

func newGitHubFetcher(client *github.Client, orgs []string, retrier *retry.Retrier, logger *zap.Logger) Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("feed")
	var clock retry.Clock
	if retrier != nil {
		clock = retrier.Clock()
	}
	return &githubFetcher{
		client:      client,
		orgs:        orgs,
		rateLimiter: NewRateLimiter(100*time.Millisecond, clock, logger),
		retrier:     retrier,
		logger:      logger,
	}
}

// Fetch lists every organization and sorts the result by full name so that
// independent workers agree on the order
func (c *githubFetcher) Fetch(ctx context.Context) ([]domain.Repository, error) {
	var all []domain.Repository
	for _, org := range c.orgs {
		repos, err := retry.DoValue(ctx, c.retrier, func(ctx context.Context) ([]domain.Repository, error) {
			return c.listOrg(ctx, org)
		})
		if err != nil {
			return nil, apperrors.NewFeedFetchError("github:"+org, err)
		}
		c.logger.Info("listed organization repositories",
			zap.String("org", org),
			zap.Int("count", len(repos)),
		)
		all = append(all, repos...)
	}

	sort.SliceStable(all, func(i, j int) bool {
		return strings.ToLower(all[i].FullName()) < strings.ToLower(all[j].FullName())
	})
	return all, nil
}

func (c *githubFetcher) listOrg(ctx context.Context, org string) ([]domain.Repository, error) {
	if err := c.rateLimiter.Wait(ctx); err != nil {
		return nil, err
	}

	var repos []domain.Repository
	opts := &github.RepositoryListByOrgOptions{
		Type:        "public",
		Sort:        "full_name",
		ListOptions: github.ListOptions{PerPage: 100},
	}

	for {
		page, resp, err := c.client.Repositories.ListByOrg(ctx, org, opts)
		if err != nil {
			if resp != nil && resp.StatusCode == http.StatusNotFound {
				return nil, retry.Permanent(fmt.Errorf("organization %s not found: %w", org, err))
			}
			return nil, fmt.Errorf("failed to list repositories: %w", err)
		}

		c.updateRateLimitFromResponse(resp)

		for _, repo := range page {
			if repo.GetArchived() || repo.GetFork() {
				continue
			}
			repos = append(repos, domain.Repository{
				Org:      org,
				Name:     repo.GetName(),
				URL:      repo.GetHTMLURL(),
				PushedAt: repo.GetPushedAt().Time.UTC(),
			})
		}

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage

		if err := c.rateLimiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	return repos, nil
}

// updateRateLimitFromResponse updates the rate limiter from API response
func (c *githubFetcher) updateRateLimitFromResponse(resp *github.Response) {
	if resp != nil && resp.Rate.Remaining >= 0 {
		c.rateLimiter.UpdateLimit(resp.Rate.Remaining, resp.Rate.Reset.Time)
	}
}
