package httphandler

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
)

// writeJSON marshals v to JSON and writes it to the response with the given
// status code. If marshaling fails, a 500 error is written instead.
func writeJSON(w http.ResponseWriter, status int, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		w.Header().Set("Content-Type", "application/json; charset=utf-8")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":"internal server error"}`))
		return
	}

	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write(data)
}

// writeError writes a JSON error response with the given status code and message.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}

// errorResponse is the standard error response body.
type errorResponse struct {
	Error string `json:"error"`
}

// ActivityResponse is the JSON representation of one feed entry.
type ActivityResponse struct {
	ID              string `json:"id"`
	Category        string `json:"category"`
	Repository      string `json:"repository"`
	Number          int64  `json:"number"`
	Title           string `json:"title"`
	URL             string `json:"url"`
	BodyHTML        string `json:"body_html,omitempty"`
	Author          string `json:"author"`
	AuthorAvatarURL string `json:"author_avatar_url"`
	CreatedAt       string `json:"created_at"`
	Read            bool   `json:"read"`
}

// RepoResponse is the JSON representation of a watched repository.
type RepoResponse struct {
	FullName string `json:"full_name"`
	Owner    string `json:"owner"`
	Name     string `json:"name"`
	AddedAt  string `json:"added_at"`
}

// MuteResponse is the JSON representation of a mute list entry.
type MuteResponse struct {
	Repository string `json:"repository"`
	MutedAt    string `json:"muted_at"`
}

// SnoozeResponse is the JSON representation of an active snooze.
type SnoozeResponse struct {
	Repository string `json:"repository"`
	ExpiresAt  string `json:"expires_at"`
}

// ExclusionsResponse groups the mute list and the active snoozes.
type ExclusionsResponse struct {
	Mutes   []MuteResponse   `json:"mutes"`
	Snoozes []SnoozeResponse `json:"snoozes"`
}

// UnreadResponse carries the badge count.
type UnreadResponse struct {
	UnreadCount int `json:"unread_count"`
}

// RateLimitResponse is the JSON representation of the rate-limit snapshot.
type RateLimitResponse struct {
	Remaining  int    `json:"remaining"`
	Limit      int    `json:"limit"`
	ResetAt    string `json:"reset_at"`
	ObservedAt string `json:"observed_at"`
}

// LastErrorResponse is the JSON representation of the recent last error.
type LastErrorResponse struct {
	Kind       string `json:"kind"`
	Message    string `json:"message"`
	Repository string `json:"repository,omitempty"`
	Hint       string `json:"hint"`
	OccurredAt string `json:"occurred_at"`
}

// StatusResponse is the JSON representation of the sync status endpoint.
type StatusResponse struct {
	Watermark string             `json:"watermark,omitempty"`
	RateLimit *RateLimitResponse `json:"rate_limit,omitempty"`
	LastError *LastErrorResponse `json:"last_error,omitempty"`
}

// HealthResponse is the JSON representation of the health check endpoint.
type HealthResponse struct {
	Status string `json:"status"`
	Time   string `json:"time"`
}

// AddRepoRequest is the JSON body for the add repository endpoint.
type AddRepoRequest struct {
	FullName string `json:"full_name"`
}

// ActivityIDRequest is the JSON body for mark-read and mark-unread.
// Activity IDs contain slashes, so they travel in the body, not the path.
type ActivityIDRequest struct {
	ID string `json:"id"`
}

// SnoozeRequest is the JSON body for the snooze endpoint. Exactly one of
// Duration (Go duration string) or Until (RFC3339) must be set.
type SnoozeRequest struct {
	Duration string `json:"duration,omitempty"`
	Until    string `json:"until,omitempty"`
}

// SetCredentialRequest is the JSON body for the credential update endpoint.
type SetCredentialRequest struct {
	Token string `json:"token"`
}

// toActivityResponse converts a domain Activity to its JSON representation.
// Release bodies are rendered from markdown to sanitized HTML.
func toActivityResponse(a model.Activity, readSet map[string]struct{}) ActivityResponse {
	_, read := readSet[a.ID]

	var bodyHTML string
	if a.Category == model.CategoryRelease {
		bodyHTML = renderMarkdown(a.Body)
	}

	return ActivityResponse{
		ID:              a.ID,
		Category:        string(a.Category),
		Repository:      a.RepoFullName,
		Number:          a.Number,
		Title:           a.Title,
		URL:             a.URL,
		BodyHTML:        bodyHTML,
		Author:          a.Author,
		AuthorAvatarURL: a.AuthorAvatarURL,
		CreatedAt:       a.CreatedAt.UTC().Format(time.RFC3339),
		Read:            read,
	}
}

// toRepoResponse converts a domain Repository to its JSON representation.
func toRepoResponse(repo model.Repository) RepoResponse {
	return RepoResponse{
		FullName: repo.FullName,
		Owner:    repo.Owner,
		Name:     repo.Name,
		AddedAt:  repo.AddedAt.UTC().Format(time.RFC3339),
	}
}
