package httphandler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httphandler "github.com/jonmartin721/devwatch/internal/adapter/driving/http"
	"github.com/jonmartin721/devwatch/internal/application"
	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// --- In-memory fakes for the driven ports ---

type fakeActivityStore struct {
	mu     sync.Mutex
	stored []model.Activity
}

func (f *fakeActivityStore) ReplaceAll(_ context.Context, activities []model.Activity) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stored = append([]model.Activity(nil), activities...)
	return nil
}

func (f *fakeActivityStore) ListAll(_ context.Context) ([]model.Activity, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Activity(nil), f.stored...), nil
}

type fakeReadStateStore struct {
	mu  sync.Mutex
	ids map[string]struct{}
}

func newFakeReadStateStore() *fakeReadStateStore {
	return &fakeReadStateStore{ids: make(map[string]struct{})}
}

func (f *fakeReadStateStore) MarkRead(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids[id] = struct{}{}
	return nil
}

func (f *fakeReadStateStore) MarkUnread(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.ids, id)
	return nil
}

func (f *fakeReadStateStore) ReplaceAll(_ context.Context, ids []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ids = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		f.ids[id] = struct{}{}
	}
	return nil
}

func (f *fakeReadStateStore) ListIDs(_ context.Context) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string]struct{}, len(f.ids))
	for id := range f.ids {
		out[id] = struct{}{}
	}
	return out, nil
}

type fakeRepoStore struct {
	mu    sync.Mutex
	repos []model.Repository
}

func (f *fakeRepoStore) Add(_ context.Context, repo model.Repository) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.FullName == repo.FullName {
			return driven.ErrRepoAlreadyExists
		}
	}
	f.repos = append(f.repos, repo)
	return nil
}

func (f *fakeRepoStore) Remove(_ context.Context, fullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, r := range f.repos {
		if r.FullName == fullName {
			f.repos = append(f.repos[:i], f.repos[i+1:]...)
			return nil
		}
	}
	return driven.ErrRepoNotFound
}

func (f *fakeRepoStore) GetByFullName(_ context.Context, fullName string) (*model.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, r := range f.repos {
		if r.FullName == fullName {
			repo := r
			return &repo, nil
		}
	}
	return nil, nil
}

func (f *fakeRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Repository(nil), f.repos...), nil
}

type fakeExclusionStore struct {
	mu      sync.Mutex
	mutes   []model.Mute
	snoozes []model.Snooze
}

func (f *fakeExclusionStore) Mute(_ context.Context, repoFullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, m := range f.mutes {
		if m.RepoFullName == repoFullName {
			return nil
		}
	}
	f.mutes = append(f.mutes, model.Mute{RepoFullName: repoFullName, MutedAt: time.Now().UTC()})
	return nil
}

func (f *fakeExclusionStore) Unmute(_ context.Context, repoFullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.mutes[:0]
	for _, m := range f.mutes {
		if m.RepoFullName != repoFullName {
			kept = append(kept, m)
		}
	}
	f.mutes = kept
	return nil
}

func (f *fakeExclusionStore) ListMutes(_ context.Context) ([]model.Mute, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Mute(nil), f.mutes...), nil
}

func (f *fakeExclusionStore) Snooze(_ context.Context, repoFullName string, expiresAt time.Time) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i, s := range f.snoozes {
		if s.RepoFullName == repoFullName {
			f.snoozes[i].ExpiresAt = expiresAt
			return nil
		}
	}
	f.snoozes = append(f.snoozes, model.Snooze{RepoFullName: repoFullName, ExpiresAt: expiresAt})
	return nil
}

func (f *fakeExclusionStore) Unsnooze(_ context.Context, repoFullName string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	kept := f.snoozes[:0]
	for _, s := range f.snoozes {
		if s.RepoFullName != repoFullName {
			kept = append(kept, s)
		}
	}
	f.snoozes = kept
	return nil
}

func (f *fakeExclusionStore) ListSnoozes(_ context.Context) ([]model.Snooze, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]model.Snooze(nil), f.snoozes...), nil
}

func (f *fakeExclusionStore) DeleteExpiredSnoozes(_ context.Context, now time.Time) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var n int
	kept := f.snoozes[:0]
	for _, s := range f.snoozes {
		if s.Expired(now) {
			n++
			continue
		}
		kept = append(kept, s)
	}
	f.snoozes = kept
	return n, nil
}

type fakeSyncStateStore struct {
	mu           sync.Mutex
	watermark    time.Time
	hasMark      bool
	rateLimit    *model.RateLimitSnapshot
	lastError    *model.SyncError
	watermarkSet chan struct{}
}

func newFakeSyncStateStore() *fakeSyncStateStore {
	return &fakeSyncStateStore{watermarkSet: make(chan struct{}, 16)}
}

func (f *fakeSyncStateStore) Watermark(_ context.Context) (time.Time, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.watermark, f.hasMark, nil
}

func (f *fakeSyncStateStore) SetWatermark(_ context.Context, t time.Time) error {
	f.mu.Lock()
	f.watermark = t
	f.hasMark = true
	f.mu.Unlock()
	f.watermarkSet <- struct{}{}
	return nil
}

func (f *fakeSyncStateStore) RateLimit(_ context.Context) (model.RateLimitSnapshot, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.rateLimit == nil {
		return model.RateLimitSnapshot{}, false, nil
	}
	return *f.rateLimit, true, nil
}

func (f *fakeSyncStateStore) SetRateLimit(_ context.Context, snapshot model.RateLimitSnapshot) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rateLimit = &snapshot
	return nil
}

func (f *fakeSyncStateStore) LastError(_ context.Context) (*model.SyncError, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.lastError == nil {
		return nil, nil
	}
	err := *f.lastError
	return &err, nil
}

func (f *fakeSyncStateStore) SetLastError(_ context.Context, syncErr model.SyncError) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lastError = &syncErr
	return nil
}

type fakeCredentialStore struct {
	mu         sync.Mutex
	values     map[string]string
	keyMissing bool
}

func newFakeCredentialStore() *fakeCredentialStore {
	return &fakeCredentialStore{values: make(map[string]string)}
}

func (f *fakeCredentialStore) Set(_ context.Context, service, key, plaintext string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keyMissing {
		return driven.ErrEncryptionKeyNotSet
	}
	f.values[service+"/"+key] = plaintext
	return nil
}

func (f *fakeCredentialStore) Get(_ context.Context, service, key string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.keyMissing {
		return "", driven.ErrEncryptionKeyNotSet
	}
	return f.values[service+"/"+key], nil
}

func (f *fakeCredentialStore) List(_ context.Context) ([]model.Credential, error) {
	return nil, nil
}

func (f *fakeCredentialStore) Delete(_ context.Context, service, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.values, service+"/"+key)
	return nil
}

type fakeSource struct {
	token string
}

func (f *fakeSource) FetchPullRequests(_ context.Context, _ string) ([]model.Activity, error) {
	return nil, nil
}

func (f *fakeSource) FetchIssues(_ context.Context, _ string) ([]model.Activity, error) {
	return nil, nil
}

func (f *fakeSource) FetchReleases(_ context.Context, _ string) ([]model.Activity, error) {
	return nil, nil
}

func (f *fakeSource) RateLimit() (model.RateLimitSnapshot, bool) {
	return model.RateLimitSnapshot{}, false
}

// --- Test fixture ---

type fixture struct {
	activities *fakeActivityStore
	readState  *fakeReadStateStore
	repos      *fakeRepoStore
	exclusions *fakeExclusionStore
	state      *fakeSyncStateStore
	creds      *fakeCredentialStore
	provider   *application.SourceProvider
	syncSvc    *application.SyncService
	server     *httptest.Server
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	f := &fixture{
		activities: &fakeActivityStore{},
		readState:  newFakeReadStateStore(),
		repos:      &fakeRepoStore{},
		exclusions: &fakeExclusionStore{},
		state:      newFakeSyncStateStore(),
		creds:      newFakeCredentialStore(),
	}
	f.provider = application.NewSourceProvider(nil)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	exclSvc := application.NewExclusionService(f.exclusions)
	readSvc := application.NewReadStateService(f.activities, f.readState)
	notifySvc := application.NewNotifyService(&nopNotifier{}, false, nil)

	f.syncSvc = application.NewSyncService(
		f.provider,
		f.activities,
		f.repos,
		exclSvc,
		f.state,
		notifySvc,
		model.AllCategories,
		100,
		24*time.Hour,
		5*time.Second,
		time.Hour,
	)

	handler := httphandler.NewHandler(
		f.activities,
		f.readState,
		f.repos,
		f.state,
		f.creds,
		readSvc,
		exclSvc,
		f.syncSvc,
		f.provider,
		func(token string) driven.ActivitySource { return &fakeSource{token: token} },
		logger,
	)

	f.server = httptest.NewServer(httphandler.NewServeMux(handler, logger))
	t.Cleanup(f.server.Close)

	return f
}

type nopNotifier struct{}

func (nopNotifier) Notify(_ context.Context, _ model.Notification) error { return nil }

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequest(method, f.server.URL+path, reader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := f.server.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })

	return resp
}

func decodeBody[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

// --- Tests ---

func TestListActivities(t *testing.T) {
	f := newFixture(t)

	release := model.Activity{
		ID:           "release:acme/api:1001",
		Category:     model.CategoryRelease,
		RepoFullName: "acme/api",
		Number:       1001,
		Title:        "v2.0.0",
		Body:         "## Changes\n\n- everything",
		CreatedAt:    time.Date(2026, 8, 20, 9, 0, 0, 0, time.UTC),
	}
	pr := model.Activity{
		ID:           "pull_request:acme/api:42",
		Category:     model.CategoryPullRequest,
		RepoFullName: "acme/api",
		Number:       42,
		Title:        "Add feature",
		CreatedAt:    time.Date(2026, 8, 20, 10, 0, 0, 0, time.UTC),
	}
	require.NoError(t, f.activities.ReplaceAll(context.Background(), []model.Activity{pr, release}))
	require.NoError(t, f.readState.MarkRead(context.Background(), pr.ID))

	resp := f.do(t, http.MethodGet, "/api/v1/activities", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[[]map[string]any](t, resp)
	require.Len(t, body, 2)

	assert.Equal(t, "pull_request:acme/api:42", body[0]["id"])
	assert.Equal(t, true, body[0]["read"])
	assert.Nil(t, body[0]["body_html"], "PRs carry no rendered body")

	assert.Equal(t, "release:acme/api:1001", body[1]["id"])
	assert.Equal(t, false, body[1]["read"])
	assert.Contains(t, body[1]["body_html"], "<h2")
	assert.Contains(t, body[1]["body_html"], "everything")
}

func TestReadStateEndpoints(t *testing.T) {
	f := newFixture(t)

	feed := []model.Activity{
		{ID: "pull_request:acme/api:1", Category: model.CategoryPullRequest, RepoFullName: "acme/api"},
		{ID: "pull_request:acme/api:2", Category: model.CategoryPullRequest, RepoFullName: "acme/api"},
	}
	require.NoError(t, f.activities.ReplaceAll(context.Background(), feed))

	resp := f.do(t, http.MethodGet, "/api/v1/unread", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(2), decodeBody[map[string]any](t, resp)["unread_count"])

	resp = f.do(t, http.MethodPost, "/api/v1/activities/read", map[string]string{"id": "pull_request:acme/api:1"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/unread", nil)
	assert.Equal(t, float64(1), decodeBody[map[string]any](t, resp)["unread_count"])

	resp = f.do(t, http.MethodPost, "/api/v1/activities/unread", map[string]string{"id": "pull_request:acme/api:1"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/activities/read-all", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/unread", nil)
	assert.Equal(t, float64(0), decodeBody[map[string]any](t, resp)["unread_count"])
}

func TestMarkReadRequiresID(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/activities/read", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestRepoEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPost, "/api/v1/repos", map[string]string{"full_name": "acme/api"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	created := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "acme/api", created["full_name"])
	assert.Equal(t, "acme", created["owner"])
	assert.Equal(t, "api", created["name"])

	resp = f.do(t, http.MethodPost, "/api/v1/repos", map[string]string{"full_name": "acme/api"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	resp = f.do(t, http.MethodPost, "/api/v1/repos", map[string]string{"full_name": "not-a-repo"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/repos", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, decodeBody[[]map[string]any](t, resp), 1)

	resp = f.do(t, http.MethodDelete, "/api/v1/repos/acme/api", nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/v1/repos/acme/api", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestExclusionEndpoints(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/v1/repos/acme/api/mute", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/repos/acme/web/snooze", map[string]string{"duration": "2h"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	snoozed := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "acme/web", snoozed["repository"])

	resp = f.do(t, http.MethodGet, "/api/v1/exclusions", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exclusions := decodeBody[map[string][]map[string]any](t, resp)
	require.Len(t, exclusions["mutes"], 1)
	assert.Equal(t, "acme/api", exclusions["mutes"][0]["repository"])
	require.Len(t, exclusions["snoozes"], 1)
	assert.Equal(t, "acme/web", exclusions["snoozes"][0]["repository"])

	resp = f.do(t, http.MethodDelete, "/api/v1/repos/acme/api/mute", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodDelete, "/api/v1/repos/acme/web/snooze", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = f.do(t, http.MethodGet, "/api/v1/exclusions", nil)
	exclusions = decodeBody[map[string][]map[string]any](t, resp)
	assert.Empty(t, exclusions["mutes"])
	assert.Empty(t, exclusions["snoozes"])
}

func TestSnoozeValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/v1/repos/acme/api/snooze", map[string]string{})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/repos/acme/api/snooze", map[string]string{"duration": "soon"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = f.do(t, http.MethodPut, "/api/v1/repos/acme/api/snooze", map[string]string{"until": "2020-01-01T00:00:00Z"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "past expiry must be rejected")

	resp = f.do(t, http.MethodPut, "/api/v1/repos/acme/api/snooze",
		map[string]string{"until": time.Now().UTC().Add(time.Hour).Format(time.RFC3339)})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSetGitHubCredentialHotSwapsSource(t *testing.T) {
	f := newFixture(t)

	assert.False(t, f.provider.HasSource())

	resp := f.do(t, http.MethodPut, "/api/v1/credentials/github", map[string]string{"token": "ghp_new"})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	require.True(t, f.provider.HasSource())
	src, ok := f.provider.Get().(*fakeSource)
	require.True(t, ok)
	assert.Equal(t, "ghp_new", src.token)

	stored, err := f.creds.Get(context.Background(), "github", "token")
	require.NoError(t, err)
	assert.Equal(t, "ghp_new", stored)
}

func TestSetGitHubCredentialValidation(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodPut, "/api/v1/credentials/github", map[string]string{"token": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	f.creds.keyMissing = true
	resp = f.do(t, http.MethodPut, "/api/v1/credentials/github", map[string]string{"token": "ghp_new"})
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.False(t, f.provider.HasSource(), "source must not swap when storage fails")
}

func TestTriggerSyncCoalescesWhenLoopNotIdle(t *testing.T) {
	f := newFixture(t)

	// The sync loop is not running, so the trigger cannot be accepted and
	// is answered as already running.
	resp := f.do(t, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, "already_running", decodeBody[map[string]string](t, resp)["status"])
}

func TestTriggerSyncRunsPass(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.syncSvc.Start(ctx)

	// Wait out the startup pass so the loop is idle.
	select {
	case <-f.state.watermarkSet:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for initial sync pass")
	}

	// The loop may take an instant to become idle after the startup pass,
	// so a 202 here is a retry, not a failure.
	var resp *http.Response
	require.Eventually(t, func() bool {
		resp = f.do(t, http.MethodPost, "/api/v1/sync", nil)
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 50*time.Millisecond)

	assert.Equal(t, "completed", decodeBody[map[string]string](t, resp)["status"])
}

func TestStatusEndpoint(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	mark := time.Date(2026, 8, 22, 10, 0, 0, 0, time.UTC)
	require.NoError(t, f.state.SetWatermark(ctx, mark))
	require.NoError(t, f.state.SetRateLimit(ctx, model.RateLimitSnapshot{
		Remaining:  4000,
		Limit:      5000,
		ResetAt:    mark.Add(time.Hour),
		ObservedAt: mark,
	}))
	require.NoError(t, f.state.SetLastError(ctx, model.SyncError{
		Kind:         model.ErrorQuotaExhausted,
		Message:      "rate limit hit",
		RepoFullName: "acme/api",
		OccurredAt:   time.Now().UTC(),
	}))

	resp := f.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "2026-08-22T10:00:00Z", body["watermark"])

	rate, ok := body["rate_limit"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, float64(4000), rate["remaining"])
	assert.Equal(t, float64(5000), rate["limit"])

	lastErr, ok := body["last_error"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "quota_exhausted", lastErr["kind"])
	assert.Equal(t, "acme/api", lastErr["repository"])
	assert.NotEmpty(t, lastErr["hint"])
}

func TestStatusOmitsStaleError(t *testing.T) {
	f := newFixture(t)

	require.NoError(t, f.state.SetLastError(context.Background(), model.SyncError{
		Kind:       model.ErrorTransport,
		Message:    "dial timeout",
		OccurredAt: time.Now().UTC().Add(-10 * time.Minute),
	}))

	resp := f.do(t, http.MethodGet, "/api/v1/status", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Nil(t, body["last_error"])
}

func TestHealthEndpoint(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}
