// Package github implements the ActivitySource port using the go-github library.
package github

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	gh "github.com/google/go-github/v82/github"
	"github.com/gregjones/httpcache"

	"github.com/gofri/go-github-ratelimit/v2/github_ratelimit"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ActivitySource = (*Client)(nil)

// firstPageSize is the single page read per category. Deep pagination is
// deliberately skipped; the first page sorted newest-first is recent
// enough for a polling pipeline.
const firstPageSize = 100

// Client implements the driven.ActivitySource port using the go-github library.
type Client struct {
	gh *gh.Client

	mu       sync.Mutex
	rate     model.RateLimitSnapshot
	rateSeen bool
}

// NewClient creates a new GitHub API client with the following transport stack:
//  1. httpcache (ETag-based conditional request caching)
//  2. go-github-ratelimit (secondary rate limit middleware, sleeps on 429)
//  3. go-github (GitHub REST API client with PAT auth)
func NewClient(token string) *Client {
	cacheTransport := httpcache.NewMemoryCacheTransport()
	rateLimitClient := github_ratelimit.NewClient(cacheTransport)
	client := gh.NewClient(rateLimitClient).WithAuthToken(token)

	return &Client{gh: client}
}

// NewClientWithHTTPClient creates a Client with a custom http.Client and base URL.
// This constructor is intended for testing, allowing injection of an httptest server.
func NewClientWithHTTPClient(httpClient *http.Client, baseURL string) (*Client, error) {
	client := gh.NewClient(httpClient)

	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parsing base URL: %w", err)
	}
	client.BaseURL = u

	return &Client{gh: client}, nil
}

// FetchPullRequests retrieves the first page of open pull requests for the
// given repository, newest first, mapped into the common activity shape.
func (c *Client) FetchPullRequests(ctx context.Context, repoFullName string) ([]model.Activity, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.PullRequestListOptions{
		State:     "open",
		Sort:      "created",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: firstPageSize,
		},
	}

	prs, resp, err := c.gh.PullRequests.List(ctx, owner, repo, opts)
	c.captureRate(resp)
	if err != nil {
		return nil, classify(repoFullName, resp, err)
	}

	activities := make([]model.Activity, 0, len(prs))
	for _, pr := range prs {
		activities = append(activities, mapPullRequest(pr, repoFullName))
	}

	return activities, nil
}

// FetchIssues retrieves the first page of open issues for the given
// repository, newest first. Issues that are actually pull requests (the
// API returns PRs through the issues endpoint with a pull_request marker)
// are dropped to avoid double-counting.
func (c *Client) FetchIssues(ctx context.Context, repoFullName string) ([]model.Activity, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.IssueListByRepoOptions{
		State:     "open",
		Sort:      "created",
		Direction: "desc",
		ListOptions: gh.ListOptions{
			PerPage: firstPageSize,
		},
	}

	issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
	c.captureRate(resp)
	if err != nil {
		return nil, classify(repoFullName, resp, err)
	}

	activities := make([]model.Activity, 0, len(issues))
	for _, issue := range issues {
		if issue.IsPullRequest() {
			continue
		}
		activities = append(activities, mapIssue(issue, repoFullName))
	}

	return activities, nil
}

// FetchReleases retrieves the first page of releases for the given
// repository, newest first. Draft releases are not published and are skipped.
func (c *Client) FetchReleases(ctx context.Context, repoFullName string) ([]model.Activity, error) {
	owner, repo, err := splitRepo(repoFullName)
	if err != nil {
		return nil, err
	}

	opts := &gh.ListOptions{PerPage: firstPageSize}

	releases, resp, err := c.gh.Repositories.ListReleases(ctx, owner, repo, opts)
	c.captureRate(resp)
	if err != nil {
		return nil, classify(repoFullName, resp, err)
	}

	activities := make([]model.Activity, 0, len(releases))
	for _, release := range releases {
		if release.GetDraft() {
			continue
		}
		activities = append(activities, mapRelease(release, repoFullName))
	}

	return activities, nil
}

// RateLimit returns the most recently observed rate-limit telemetry.
func (c *Client) RateLimit() (model.RateLimitSnapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.rate, c.rateSeen
}

// captureRate overwrites the rate-limit snapshot from a response's
// rate-limit headers. Responses without the headers are ignored.
func (c *Client) captureRate(resp *gh.Response) {
	if resp == nil || resp.Rate.Limit == 0 {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	c.rate = model.RateLimitSnapshot{
		Remaining:  resp.Rate.Remaining,
		Limit:      resp.Rate.Limit,
		ResetAt:    resp.Rate.Reset.Time.UTC(),
		ObservedAt: time.Now().UTC(),
	}
	c.rateSeen = true
}

// classify maps a go-github error onto the error taxonomy: 401 is an
// invalid credential, 403 with zero remaining quota is rate-limit
// exhaustion, 404 is a missing or inaccessible repository, and anything
// else is a generic transport failure.
func classify(repoFullName string, resp *gh.Response, err error) error {
	kind := model.ErrorTransport

	if _, ok := err.(*gh.RateLimitError); ok {
		kind = model.ErrorQuotaExhausted
	} else if resp != nil {
		switch resp.StatusCode {
		case http.StatusUnauthorized:
			kind = model.ErrorCredentialInvalid
		case http.StatusForbidden:
			if resp.Rate.Limit > 0 && resp.Rate.Remaining == 0 {
				kind = model.ErrorQuotaExhausted
			}
		case http.StatusNotFound:
			kind = model.ErrorNotFound
		}
	}

	return &driven.SourceError{
		Kind:         kind,
		RepoFullName: repoFullName,
		Err:          err,
	}
}

// mapPullRequest converts a go-github PullRequest to a domain Activity.
// It uses GetXxx() helper methods exclusively to avoid nil pointer panics.
func mapPullRequest(pr *gh.PullRequest, repoFullName string) model.Activity {
	number := int64(pr.GetNumber())
	return model.Activity{
		ID:              model.ActivityID(model.CategoryPullRequest, repoFullName, number),
		Category:        model.CategoryPullRequest,
		RepoFullName:    repoFullName,
		Number:          number,
		Title:           pr.GetTitle(),
		URL:             pr.GetHTMLURL(),
		Author:          pr.GetUser().GetLogin(),
		AuthorAvatarURL: pr.GetUser().GetAvatarURL(),
		CreatedAt:       pr.GetCreatedAt().Time.UTC(),
	}
}

// mapIssue converts a go-github Issue to a domain Activity.
func mapIssue(issue *gh.Issue, repoFullName string) model.Activity {
	number := int64(issue.GetNumber())
	return model.Activity{
		ID:              model.ActivityID(model.CategoryIssue, repoFullName, number),
		Category:        model.CategoryIssue,
		RepoFullName:    repoFullName,
		Number:          number,
		Title:           issue.GetTitle(),
		URL:             issue.GetHTMLURL(),
		Author:          issue.GetUser().GetLogin(),
		AuthorAvatarURL: issue.GetUser().GetAvatarURL(),
		CreatedAt:       issue.GetCreatedAt().Time.UTC(),
	}
}

// mapRelease converts a go-github RepositoryRelease to a domain Activity.
// Releases are identified by their upstream ID rather than a number, and
// untitled releases fall back to the tag name.
func mapRelease(release *gh.RepositoryRelease, repoFullName string) model.Activity {
	title := release.GetName()
	if title == "" {
		title = release.GetTagName()
	}

	createdAt := release.GetPublishedAt().Time
	if createdAt.IsZero() {
		createdAt = release.GetCreatedAt().Time
	}

	return model.Activity{
		ID:              model.ActivityID(model.CategoryRelease, repoFullName, release.GetID()),
		Category:        model.CategoryRelease,
		RepoFullName:    repoFullName,
		Number:          release.GetID(),
		Title:           title,
		URL:             release.GetHTMLURL(),
		Body:            release.GetBody(),
		Author:          release.GetAuthor().GetLogin(),
		AuthorAvatarURL: release.GetAuthor().GetAvatarURL(),
		CreatedAt:       createdAt.UTC(),
	}
}

// splitRepo splits a "owner/repo" string into its two components.
func splitRepo(fullName string) (string, string, error) {
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repo name %q: expected owner/repo", fullName)
	}
	return parts[0], parts[1], nil
}
