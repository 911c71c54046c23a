// Package application contains use-case orchestration services.
package application

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// ErrSyncInProgress is returned by SyncNow when a pass is already running.
// The trigger is coalesced rather than queued.
var ErrSyncInProgress = errors.New("sync already in progress")

// syncRequest represents a manual sync trigger.
type syncRequest struct {
	done chan error
}

// SyncService orchestrates the periodic synchronization pass: exclusion
// resolution, per-repository fetching, feed merge, notification dispatch,
// and watermark advancement. Passes never overlap; the loop runs them one
// at a time.
type SyncService struct {
	provider   *SourceProvider
	activities driven.ActivityStore
	repos      driven.RepoStore
	exclusions *ExclusionService
	state      driven.SyncStateStore
	notify     *NotifyService

	categories     []model.Category
	maxActivities  int
	lookback       time.Duration
	requestTimeout time.Duration
	interval       time.Duration

	syncCh chan syncRequest
}

// NewSyncService creates a SyncService with all required dependencies.
func NewSyncService(
	provider *SourceProvider,
	activities driven.ActivityStore,
	repos driven.RepoStore,
	exclusions *ExclusionService,
	state driven.SyncStateStore,
	notify *NotifyService,
	categories []model.Category,
	maxActivities int,
	lookback time.Duration,
	requestTimeout time.Duration,
	interval time.Duration,
) *SyncService {
	return &SyncService{
		provider:       provider,
		activities:     activities,
		repos:          repos,
		exclusions:     exclusions,
		state:          state,
		notify:         notify,
		categories:     categories,
		maxActivities:  maxActivities,
		lookback:       lookback,
		requestTimeout: requestTimeout,
		interval:       interval,
		syncCh:         make(chan syncRequest),
	}
}

// Start begins the sync loop. It runs an immediate pass, then one per
// interval, and serves manual triggers in between. Because the loop is a
// single goroutine, a trigger can only be accepted while the service is
// idle; SyncNow's non-blocking send is what coalesces triggers that
// arrive mid-pass. Start blocks until the context is canceled.
func (s *SyncService) Start(ctx context.Context) {
	s.runPass(ctx)

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("sync service stopped")
			return
		case <-ticker.C:
			s.runPass(ctx)
		case req := <-s.syncCh:
			s.runPass(ctx)
			req.done <- nil
		}
	}
}

// SyncNow triggers an on-demand pass, blocking until it completes. If a
// pass is already running the trigger is coalesced and ErrSyncInProgress
// is returned immediately.
func (s *SyncService) SyncNow(ctx context.Context) error {
	done := make(chan error, 1)

	select {
	case s.syncCh <- syncRequest{done: done}:
	default:
		return ErrSyncInProgress
	}

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// runPass executes one synchronization pass. It never returns an error:
// every failure is contained, logged, and at most recorded as the last
// error for status display. The watermark advances to the completion time
// unconditionally, so a persistently failing repository cannot block
// progress for the others.
func (s *SyncService) runPass(ctx context.Context) {
	start := time.Now().UTC()

	excluded := s.exclusions.Resolve(ctx, start)
	cutoff := s.cutoff(ctx, start)

	incoming, fetched := s.fetchAll(ctx, excluded, cutoff)

	existing, err := s.activities.ListAll(ctx)
	if err != nil {
		slog.Error("list activities failed", "error", err)
		s.recordError(ctx, model.SyncError{
			Kind:       model.ErrorStorage,
			Message:    err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		s.finishPass(ctx, start, 0, 0)
		return
	}

	merged, accepted := MergeActivities(existing, incoming, excluded, s.maxActivities)

	if len(accepted) > 0 || len(merged) != len(existing) {
		if err := s.activities.ReplaceAll(ctx, merged); err != nil {
			slog.Error("persist activities failed", "error", err)
			s.recordError(ctx, model.SyncError{
				Kind:       model.ErrorStorage,
				Message:    err.Error(),
				OccurredAt: time.Now().UTC(),
			})
			s.finishPass(ctx, start, fetched, 0)
			return
		}
	}

	if len(accepted) > 0 {
		s.notify.Dispatch(ctx, accepted)
	}

	s.finishPass(ctx, start, fetched, len(accepted))
}

// cutoff returns the lower bound for "is this activity new": the stored
// watermark, or now minus the lookback window when no pass has ever
// completed. The lookback keeps a freshly configured installation from
// being flooded with a repository's entire backlog.
func (s *SyncService) cutoff(ctx context.Context, now time.Time) time.Time {
	watermark, ok, err := s.state.Watermark(ctx)
	if err != nil {
		slog.Error("read watermark failed", "error", err)
		ok = false
	}
	if !ok {
		return now.Add(-s.lookback)
	}
	return watermark
}

// fetchAll runs the per-repository fetches for one pass. Repositories are
// fetched concurrently; results are only combined after every fetch has
// settled, success or failure, so the feed never observes a partial
// mid-pass state. Incoming activities keep watched-repository order
// between repositories and fetch order within one.
func (s *SyncService) fetchAll(ctx context.Context, excluded map[string]struct{}, cutoff time.Time) (incoming []model.Activity, fetched int) {
	source := s.provider.Get()
	if source == nil {
		s.recordError(ctx, model.SyncError{
			Kind:       model.ErrorCredentialInvalid,
			Message:    "no GitHub credential configured",
			OccurredAt: time.Now().UTC(),
		})
		return nil, 0
	}

	repos, err := s.repos.ListAll(ctx)
	if err != nil {
		slog.Error("list repositories failed", "error", err)
		s.recordError(ctx, model.SyncError{
			Kind:       model.ErrorStorage,
			Message:    err.Error(),
			OccurredAt: time.Now().UTC(),
		})
		return nil, 0
	}

	var targets []model.Repository
	for _, repo := range repos {
		if _, skip := excluded[repo.FullName]; skip {
			continue
		}
		targets = append(targets, repo)
	}

	results := make([][]model.Activity, len(targets))
	var wg sync.WaitGroup

	for i, repo := range targets {
		wg.Add(1)
		go func(i int, repo model.Repository) {
			defer wg.Done()

			activities, err := s.fetchRepo(ctx, source, repo.FullName, cutoff)
			if err != nil {
				slog.Error("repo fetch failed", "repo", repo.FullName, "error", err)
				s.recordError(ctx, classifyFetchError(repo.FullName, err))
				return
			}
			results[i] = activities
		}(i, repo)
	}
	wg.Wait()

	if snapshot, ok := source.RateLimit(); ok {
		if err := s.state.SetRateLimit(ctx, snapshot); err != nil {
			slog.Error("persist rate limit failed", "error", err)
		}
	}

	for _, batch := range results {
		incoming = append(incoming, batch...)
	}
	return incoming, len(targets)
}

// fetchRepo fetches every enabled category for one repository and keeps
// only activities created strictly after the cutoff. An item created
// exactly at the watermark is treated as already seen. Any category
// failure makes the repository contribute zero activities for this pass;
// the next scheduled pass is the retry.
func (s *SyncService) fetchRepo(ctx context.Context, source driven.ActivitySource, repoFullName string, cutoff time.Time) ([]model.Activity, error) {
	var all []model.Activity

	for _, category := range s.categories {
		reqCtx, cancel := context.WithTimeout(ctx, s.requestTimeout)

		var activities []model.Activity
		var err error
		switch category {
		case model.CategoryPullRequest:
			activities, err = source.FetchPullRequests(reqCtx, repoFullName)
		case model.CategoryIssue:
			activities, err = source.FetchIssues(reqCtx, repoFullName)
		case model.CategoryRelease:
			activities, err = source.FetchReleases(reqCtx, repoFullName)
		}
		cancel()

		if err != nil {
			return nil, err
		}

		for _, a := range activities {
			if a.CreatedAt.After(cutoff) {
				all = append(all, a)
			}
		}
	}

	return all, nil
}

// finishPass advances the watermark to the completion time and logs the
// pass outcome. The watermark advances even when the pass fetched nothing
// or some repositories failed.
func (s *SyncService) finishPass(ctx context.Context, start time.Time, fetched, accepted int) {
	completion := time.Now().UTC()
	if err := s.state.SetWatermark(ctx, completion); err != nil {
		slog.Error("persist watermark failed", "error", err)
	}

	slog.Info("sync pass complete",
		"repos", fetched,
		"accepted", accepted,
		"duration", completion.Sub(start).Round(time.Millisecond),
	)
}

// recordError overwrites the structured last error for status display.
func (s *SyncService) recordError(ctx context.Context, syncErr model.SyncError) {
	if err := s.state.SetLastError(ctx, syncErr); err != nil {
		slog.Error("persist last error failed", "error", err)
	}
}

// classifyFetchError maps a fetch failure onto the error taxonomy. Typed
// source errors carry their own kind; anything else is a transport failure.
func classifyFetchError(repoFullName string, err error) model.SyncError {
	var srcErr *driven.SourceError
	if errors.As(err, &srcErr) {
		return model.SyncError{
			Kind:         srcErr.Kind,
			Message:      srcErr.Err.Error(),
			RepoFullName: srcErr.RepoFullName,
			OccurredAt:   time.Now().UTC(),
		}
	}

	return model.SyncError{
		Kind:         model.ErrorTransport,
		Message:      err.Error(),
		RepoFullName: repoFullName,
		OccurredAt:   time.Now().UTC(),
	}
}
