// Package httphandler is the HTTP driving adapter serving the REST API
// consumed by the UI collaborator.
package httphandler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/jonmartin721/devwatch/internal/application"
	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// lastErrorWindow bounds how long a recorded sync error stays visible on
// the status endpoint.
const lastErrorWindow = time.Minute

// Handler is the HTTP driving adapter that serves the REST API.
type Handler struct {
	activities driven.ActivityStore
	readState  driven.ReadStateStore
	repos      driven.RepoStore
	state      driven.SyncStateStore
	creds      driven.CredentialStore
	readSvc    *application.ReadStateService
	exclSvc    *application.ExclusionService
	syncSvc    *application.SyncService
	provider   *application.SourceProvider
	newSource  func(token string) driven.ActivitySource
	logger     *slog.Logger
}

// NewHandler creates a Handler with all required dependencies. newSource
// constructs a fresh activity source from a token; it is injected so the
// credential hot-swap endpoint stays testable without real credentials.
func NewHandler(
	activities driven.ActivityStore,
	readState driven.ReadStateStore,
	repos driven.RepoStore,
	state driven.SyncStateStore,
	creds driven.CredentialStore,
	readSvc *application.ReadStateService,
	exclSvc *application.ExclusionService,
	syncSvc *application.SyncService,
	provider *application.SourceProvider,
	newSource func(token string) driven.ActivitySource,
	logger *slog.Logger,
) *Handler {
	return &Handler{
		activities: activities,
		readState:  readState,
		repos:      repos,
		state:      state,
		creds:      creds,
		readSvc:    readSvc,
		exclSvc:    exclSvc,
		syncSvc:    syncSvc,
		provider:   provider,
		newSource:  newSource,
		logger:     logger,
	}
}

// NewServeMux creates an http.Handler with all routes registered and wrapped
// with logging and recovery middleware.
func NewServeMux(h *Handler, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /api/v1/activities", h.ListActivities)
	mux.HandleFunc("GET /api/v1/unread", h.UnreadCount)
	mux.HandleFunc("POST /api/v1/sync", h.TriggerSync)

	mux.HandleFunc("POST /api/v1/activities/read", h.MarkRead)
	mux.HandleFunc("POST /api/v1/activities/unread", h.MarkUnread)
	mux.HandleFunc("POST /api/v1/activities/read-all", h.MarkAllRead)

	mux.HandleFunc("GET /api/v1/repos", h.ListRepos)
	mux.HandleFunc("POST /api/v1/repos", h.AddRepo)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}", h.RemoveRepo)

	mux.HandleFunc("GET /api/v1/exclusions", h.ListExclusions)
	mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/mute", h.MuteRepo)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/mute", h.UnmuteRepo)
	mux.HandleFunc("PUT /api/v1/repos/{owner}/{repo}/snooze", h.SnoozeRepo)
	mux.HandleFunc("DELETE /api/v1/repos/{owner}/{repo}/snooze", h.UnsnoozeRepo)

	mux.HandleFunc("PUT /api/v1/credentials/github", h.SetGitHubCredential)

	mux.HandleFunc("GET /api/v1/status", h.Status)
	mux.HandleFunc("GET /api/v1/health", h.Health)

	// Recovery innermost so panics are caught before logging.
	wrapped := recoveryMiddleware(logger, mux)
	wrapped = loggingMiddleware(logger, wrapped)

	return wrapped
}

// ListActivities returns the current feed snapshot, newest first, with
// each entry's read flag.
func (h *Handler) ListActivities(w http.ResponseWriter, r *http.Request) {
	activities, err := h.activities.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list activities", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	readSet, err := h.readState.ListIDs(r.Context())
	if err != nil {
		h.logger.Error("failed to list read state", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]ActivityResponse, 0, len(activities))
	for _, a := range activities {
		resp = append(resp, toActivityResponse(a, readSet))
	}

	writeJSON(w, http.StatusOK, resp)
}

// UnreadCount returns the badge count.
func (h *Handler) UnreadCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.readSvc.UnreadCount(r.Context())
	if err != nil {
		h.logger.Error("failed to compute unread count", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, UnreadResponse{UnreadCount: count})
}

// TriggerSync runs an on-demand sync pass, blocking until it completes.
// A trigger arriving while a pass is already running is coalesced and
// answered with 202.
func (h *Handler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	err := h.syncSvc.SyncNow(r.Context())
	if errors.Is(err, application.ErrSyncInProgress) {
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "already_running"})
		return
	}
	if err != nil {
		h.logger.Error("manual sync failed", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "completed"})
}

// MarkRead marks one activity as read. Idempotent.
func (h *Handler) MarkRead(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeActivityID(w, r)
	if !ok {
		return
	}

	if err := h.readSvc.MarkRead(r.Context(), id); err != nil {
		h.logger.Error("failed to mark read", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkUnread marks one activity as unread.
func (h *Handler) MarkUnread(w http.ResponseWriter, r *http.Request) {
	id, ok := decodeActivityID(w, r)
	if !ok {
		return
	}

	if err := h.readSvc.MarkUnread(r.Context(), id); err != nil {
		h.logger.Error("failed to mark unread", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// MarkAllRead replaces the read set with the feed's current IDs.
func (h *Handler) MarkAllRead(w http.ResponseWriter, r *http.Request) {
	if err := h.readSvc.MarkAllRead(r.Context()); err != nil {
		h.logger.Error("failed to mark all read", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListRepos returns all watched repositories.
func (h *Handler) ListRepos(w http.ResponseWriter, r *http.Request) {
	repos, err := h.repos.ListAll(r.Context())
	if err != nil {
		h.logger.Error("failed to list repos", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := make([]RepoResponse, 0, len(repos))
	for _, repo := range repos {
		resp = append(resp, toRepoResponse(repo))
	}

	writeJSON(w, http.StatusOK, resp)
}

// AddRepo adds a repository to the watch list.
func (h *Handler) AddRepo(w http.ResponseWriter, r *http.Request) {
	var req AddRepoRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	fullName := strings.TrimSpace(req.FullName)
	parts := strings.SplitN(fullName, "/", 2)
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		writeError(w, http.StatusBadRequest, "full_name must be owner/repo")
		return
	}

	repo := model.Repository{
		FullName: fullName,
		Owner:    parts[0],
		Name:     parts[1],
		AddedAt:  time.Now().UTC(),
	}

	if err := h.repos.Add(r.Context(), repo); err != nil {
		if errors.Is(err, driven.ErrRepoAlreadyExists) {
			writeError(w, http.StatusConflict, "repository already watched")
			return
		}
		h.logger.Error("failed to add repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	writeJSON(w, http.StatusCreated, toRepoResponse(repo))
}

// RemoveRepo removes a repository from the watch list.
func (h *Handler) RemoveRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.repos.Remove(r.Context(), fullName); err != nil {
		if errors.Is(err, driven.ErrRepoNotFound) {
			writeError(w, http.StatusNotFound, "repository not watched")
			return
		}
		h.logger.Error("failed to remove repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// ListExclusions returns the mute list and the active snoozes.
func (h *Handler) ListExclusions(w http.ResponseWriter, r *http.Request) {
	mutes, snoozes, err := h.exclSvc.List(r.Context(), time.Now().UTC())
	if err != nil {
		h.logger.Error("failed to list exclusions", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	resp := ExclusionsResponse{
		Mutes:   make([]MuteResponse, 0, len(mutes)),
		Snoozes: make([]SnoozeResponse, 0, len(snoozes)),
	}
	for _, m := range mutes {
		resp.Mutes = append(resp.Mutes, MuteResponse{
			Repository: m.RepoFullName,
			MutedAt:    m.MutedAt.UTC().Format(time.RFC3339),
		})
	}
	for _, s := range snoozes {
		resp.Snoozes = append(resp.Snoozes, SnoozeResponse{
			Repository: s.RepoFullName,
			ExpiresAt:  s.ExpiresAt.UTC().Format(time.RFC3339),
		})
	}

	writeJSON(w, http.StatusOK, resp)
}

// MuteRepo adds a repository to the mute list.
func (h *Handler) MuteRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.exclSvc.Mute(r.Context(), fullName); err != nil {
		h.logger.Error("failed to mute repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// UnmuteRepo removes a repository from the mute list.
func (h *Handler) UnmuteRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.exclSvc.Unmute(r.Context(), fullName); err != nil {
		h.logger.Error("failed to unmute repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SnoozeRepo sets or replaces a repository's snooze expiry.
func (h *Handler) SnoozeRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	var req SnoozeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	now := time.Now().UTC()
	var expiresAt time.Time
	switch {
	case req.Duration != "":
		d, err := time.ParseDuration(req.Duration)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid snooze duration")
			return
		}
		expiresAt = now.Add(d)
	case req.Until != "":
		t, err := time.Parse(time.RFC3339, req.Until)
		if err != nil {
			writeError(w, http.StatusBadRequest, "invalid snooze expiry")
			return
		}
		expiresAt = t
	default:
		writeError(w, http.StatusBadRequest, "either duration or until is required")
		return
	}

	if err := h.exclSvc.Snooze(r.Context(), fullName, expiresAt, now); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, SnoozeResponse{
		Repository: fullName,
		ExpiresAt:  expiresAt.UTC().Format(time.RFC3339),
	})
}

// UnsnoozeRepo removes a repository's snooze.
func (h *Handler) UnsnoozeRepo(w http.ResponseWriter, r *http.Request) {
	fullName := r.PathValue("owner") + "/" + r.PathValue("repo")

	if err := h.exclSvc.Unsnooze(r.Context(), fullName); err != nil {
		h.logger.Error("failed to unsnooze repo", "repo", fullName, "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// SetGitHubCredential stores the GitHub token encrypted and hot-swaps the
// activity source so the next pass uses it, without restarting.
func (h *Handler) SetGitHubCredential(w http.ResponseWriter, r *http.Request) {
	var req SetCredentialRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		writeError(w, http.StatusBadRequest, "token is required")
		return
	}

	if err := h.creds.Set(r.Context(), "github", "token", req.Token); err != nil {
		if errors.Is(err, driven.ErrEncryptionKeyNotSet) {
			writeError(w, http.StatusConflict, "credential storage is disabled: no encryption key configured")
			return
		}
		h.logger.Error("failed to store credential", "error", err)
		writeError(w, http.StatusInternalServerError, "internal server error")
		return
	}

	h.provider.Replace(h.newSource(req.Token))
	h.logger.Info("github credential updated")

	w.WriteHeader(http.StatusNoContent)
}

// Status returns the watermark, the rate-limit snapshot, and the last
// error if it occurred recently enough to still be worth showing.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	var resp StatusResponse

	if watermark, ok, err := h.state.Watermark(r.Context()); err != nil {
		h.logger.Error("failed to read watermark", "error", err)
	} else if ok {
		resp.Watermark = watermark.UTC().Format(time.RFC3339)
	}

	if snapshot, ok, err := h.state.RateLimit(r.Context()); err != nil {
		h.logger.Error("failed to read rate limit", "error", err)
	} else if ok {
		resp.RateLimit = &RateLimitResponse{
			Remaining:  snapshot.Remaining,
			Limit:      snapshot.Limit,
			ResetAt:    snapshot.ResetAt.UTC().Format(time.RFC3339),
			ObservedAt: snapshot.ObservedAt.UTC().Format(time.RFC3339),
		}
	}

	if lastErr, err := h.state.LastError(r.Context()); err != nil {
		h.logger.Error("failed to read last error", "error", err)
	} else if lastErr != nil && lastErr.RecentAt(time.Now().UTC(), lastErrorWindow) {
		resp.LastError = &LastErrorResponse{
			Kind:       string(lastErr.Kind),
			Message:    lastErr.Message,
			Repository: lastErr.RepoFullName,
			Hint:       lastErr.Hint(),
			OccurredAt: lastErr.OccurredAt.UTC().Format(time.RFC3339),
		}
	}

	writeJSON(w, http.StatusOK, resp)
}

// Health reports service liveness.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, HealthResponse{
		Status: "ok",
		Time:   time.Now().UTC().Format(time.RFC3339),
	})
}

// decodeActivityID reads the ID body shared by mark-read and mark-unread.
func decodeActivityID(w http.ResponseWriter, r *http.Request) (string, bool) {
	var req ActivityIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return "", false
	}
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, "id is required")
		return "", false
	}
	return req.ID, true
}
