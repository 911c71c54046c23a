package application_test

import (
	"context"
	"sync"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// --- Mock implementations shared by the application tests ---

type mockActivityStore struct {
	mu         sync.Mutex
	stored     []model.Activity
	listErr    error
	replaceErr error
	replaces   int
}

func (m *mockActivityStore) ReplaceAll(_ context.Context, activities []model.Activity) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.replaceErr != nil {
		return m.replaceErr
	}
	m.stored = append([]model.Activity(nil), activities...)
	m.replaces++
	return nil
}

func (m *mockActivityStore) ListAll(_ context.Context) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	return append([]model.Activity(nil), m.stored...), nil
}

type mockReadStateStore struct {
	mu       sync.Mutex
	readIDs  map[string]struct{}
	replaced [][]string
}

func newMockReadStateStore() *mockReadStateStore {
	return &mockReadStateStore{readIDs: make(map[string]struct{})}
}

func (m *mockReadStateStore) MarkRead(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.readIDs[id] = struct{}{}
	return nil
}

func (m *mockReadStateStore) MarkUnread(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.readIDs, id)
	return nil
}

func (m *mockReadStateStore) ReplaceAll(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.replaced = append(m.replaced, append([]string(nil), ids...))
	m.readIDs = make(map[string]struct{}, len(ids))
	for _, id := range ids {
		m.readIDs[id] = struct{}{}
	}
	return nil
}

func (m *mockReadStateStore) ListIDs(_ context.Context) (map[string]struct{}, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[string]struct{}, len(m.readIDs))
	for id := range m.readIDs {
		out[id] = struct{}{}
	}
	return out, nil
}

type mockExclusionStore struct {
	mu      sync.Mutex
	mutes   []model.Mute
	snoozes []model.Snooze
	pruned  int
}

func (m *mockExclusionStore) Mute(_ context.Context, repoFullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, mu := range m.mutes {
		if mu.RepoFullName == repoFullName {
			return nil
		}
	}
	m.mutes = append(m.mutes, model.Mute{RepoFullName: repoFullName})
	return nil
}

func (m *mockExclusionStore) Unmute(_ context.Context, repoFullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.mutes[:0]
	for _, mu := range m.mutes {
		if mu.RepoFullName != repoFullName {
			kept = append(kept, mu)
		}
	}
	m.mutes = kept
	return nil
}

func (m *mockExclusionStore) ListMutes(_ context.Context) ([]model.Mute, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Mute(nil), m.mutes...), nil
}

func (m *mockExclusionStore) Snooze(_ context.Context, repoFullName string, expiresAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, sn := range m.snoozes {
		if sn.RepoFullName == repoFullName {
			m.snoozes[i].ExpiresAt = expiresAt
			return nil
		}
	}
	m.snoozes = append(m.snoozes, model.Snooze{RepoFullName: repoFullName, ExpiresAt: expiresAt})
	return nil
}

func (m *mockExclusionStore) Unsnooze(_ context.Context, repoFullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.snoozes[:0]
	for _, sn := range m.snoozes {
		if sn.RepoFullName != repoFullName {
			kept = append(kept, sn)
		}
	}
	m.snoozes = kept
	return nil
}

func (m *mockExclusionStore) ListSnoozes(_ context.Context) ([]model.Snooze, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Snooze(nil), m.snoozes...), nil
}

func (m *mockExclusionStore) DeleteExpiredSnoozes(_ context.Context, now time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int
	kept := m.snoozes[:0]
	for _, sn := range m.snoozes {
		if sn.Expired(now) {
			n++
			continue
		}
		kept = append(kept, sn)
	}
	m.snoozes = kept
	m.pruned += n
	return n, nil
}

type mockRepoStore struct {
	mu    sync.Mutex
	repos []model.Repository
}

func (m *mockRepoStore) Add(_ context.Context, repo model.Repository) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.repos {
		if r.FullName == repo.FullName {
			return driven.ErrRepoAlreadyExists
		}
	}
	m.repos = append(m.repos, repo)
	return nil
}

func (m *mockRepoStore) Remove(_ context.Context, fullName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, r := range m.repos {
		if r.FullName == fullName {
			m.repos = append(m.repos[:i], m.repos[i+1:]...)
			return nil
		}
	}
	return driven.ErrRepoNotFound
}

func (m *mockRepoStore) GetByFullName(_ context.Context, fullName string) (*model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.repos {
		if r.FullName == fullName {
			repo := r
			return &repo, nil
		}
	}
	return nil, nil
}

func (m *mockRepoStore) ListAll(_ context.Context) ([]model.Repository, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Repository(nil), m.repos...), nil
}

type mockSyncStateStore struct {
	mu        sync.Mutex
	watermark time.Time
	hasMark   bool
	rateLimit *model.RateLimitSnapshot
	lastError *model.SyncError

	// watermarkSet receives one value per SetWatermark call, which is
	// how tests observe pass completion.
	watermarkSet chan struct{}
}

func newMockSyncStateStore() *mockSyncStateStore {
	return &mockSyncStateStore{watermarkSet: make(chan struct{}, 16)}
}

func (m *mockSyncStateStore) Watermark(_ context.Context) (time.Time, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.watermark, m.hasMark, nil
}

func (m *mockSyncStateStore) SetWatermark(_ context.Context, t time.Time) error {
	m.mu.Lock()
	m.watermark = t
	m.hasMark = true
	m.mu.Unlock()
	m.watermarkSet <- struct{}{}
	return nil
}

func (m *mockSyncStateStore) RateLimit(_ context.Context) (model.RateLimitSnapshot, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rateLimit == nil {
		return model.RateLimitSnapshot{}, false, nil
	}
	return *m.rateLimit, true, nil
}

func (m *mockSyncStateStore) SetRateLimit(_ context.Context, snapshot model.RateLimitSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rateLimit = &snapshot
	return nil
}

func (m *mockSyncStateStore) LastError(_ context.Context) (*model.SyncError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastError == nil {
		return nil, nil
	}
	err := *m.lastError
	return &err, nil
}

func (m *mockSyncStateStore) SetLastError(_ context.Context, syncErr model.SyncError) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastError = &syncErr
	return nil
}

type mockNotifier struct {
	mu   sync.Mutex
	sent []model.Notification
	err  error
}

func (m *mockNotifier) Notify(_ context.Context, n model.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, n)
	return nil
}

func (m *mockNotifier) notifications() []model.Notification {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.Notification(nil), m.sent...)
}

type mockActivitySource struct {
	mu       sync.Mutex
	pulls    map[string][]model.Activity
	issues   map[string][]model.Activity
	releases map[string][]model.Activity
	fetchErr error
	gate     chan struct{} // when non-nil, FetchPullRequests blocks until it closes
	rate     *model.RateLimitSnapshot
	fetchLog []string
}

func (m *mockActivitySource) FetchPullRequests(_ context.Context, repoFullName string) ([]model.Activity, error) {
	m.mu.Lock()
	gate := m.gate
	m.mu.Unlock()
	if gate != nil {
		<-gate
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.fetchLog = append(m.fetchLog, repoFullName)
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.pulls[repoFullName], nil
}

func (m *mockActivitySource) FetchIssues(_ context.Context, repoFullName string) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.issues[repoFullName], nil
}

func (m *mockActivitySource) FetchReleases(_ context.Context, repoFullName string) ([]model.Activity, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.fetchErr != nil {
		return nil, m.fetchErr
	}
	return m.releases[repoFullName], nil
}

func (m *mockActivitySource) RateLimit() (model.RateLimitSnapshot, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.rate == nil {
		return model.RateLimitSnapshot{}, false
	}
	return *m.rate, true
}

func (m *mockActivitySource) fetchedRepos() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.fetchLog...)
}
