package driven

import (
	"context"
	"fmt"

	"github.com/jonmartin721/devwatch/internal/domain/model"
)

// ActivitySource defines the driven port for reading recent activity from
// the upstream forge. Each fetch method issues a single first-page request
// sorted newest-first; deep pagination is deliberately not performed, the
// first page is considered recent enough for a polling pipeline.
type ActivitySource interface {
	// FetchPullRequests returns open pull requests, newest first.
	FetchPullRequests(ctx context.Context, repoFullName string) ([]model.Activity, error)
	// FetchIssues returns open issues, newest first. Issues that are
	// actually pull requests (per the API's PR marker) are excluded.
	FetchIssues(ctx context.Context, repoFullName string) ([]model.Activity, error)
	// FetchReleases returns published releases, newest first.
	FetchReleases(ctx context.Context, repoFullName string) ([]model.Activity, error)
	// RateLimit returns the most recently observed rate-limit telemetry.
	// ok is false until at least one response carrying the headers is seen.
	RateLimit() (snapshot model.RateLimitSnapshot, ok bool)
}

// SourceError classifies a fetch failure per the error taxonomy so the
// sync pass can record it as the structured last error. It always wraps
// the underlying transport or API error.
type SourceError struct {
	Kind         model.ErrorKind
	RepoFullName string
	Err          error
}

func (e *SourceError) Error() string {
	return fmt.Sprintf("%s: fetch %s: %v", e.RepoFullName, e.Kind, e.Err)
}

func (e *SourceError) Unwrap() error {
	return e.Err
}
