package model

import "time"

// RateLimitSnapshot records the most recently observed GitHub API rate
// limit telemetry. It is overwritten on every response that carries
// rate-limit headers.
type RateLimitSnapshot struct {
	Remaining  int       `json:"remaining"`
	Limit      int       `json:"limit"`
	ResetAt    time.Time `json:"reset_at"`
	ObservedAt time.Time `json:"observed_at"`
}

// ErrorKind classifies a synchronization failure for user display.
type ErrorKind string

const (
	ErrorCredentialInvalid ErrorKind = "credential_invalid"
	ErrorQuotaExhausted    ErrorKind = "quota_exhausted"
	ErrorNotFound          ErrorKind = "not_found"
	ErrorTransport         ErrorKind = "transport"
	ErrorStorage           ErrorKind = "storage"
)

// SyncError is the structured "last error" surfaced to the user. Only the
// single most recent failure is kept; each new failure overwrites it.
type SyncError struct {
	Kind         ErrorKind `json:"kind"`
	Message      string    `json:"message"`
	RepoFullName string    `json:"repo_full_name,omitempty"`
	OccurredAt   time.Time `json:"occurred_at"`
}

// Hint returns a human-readable explanation for the error kind.
func (e SyncError) Hint() string {
	switch e.Kind {
	case ErrorCredentialInvalid:
		return "GitHub rejected the access token; check your credentials"
	case ErrorQuotaExhausted:
		return "GitHub API rate limit exhausted; syncing will resume after the limit resets"
	case ErrorNotFound:
		return "repository not found or inaccessible with the current token"
	case ErrorStorage:
		return "a local storage operation failed"
	default:
		return "a network or GitHub API error occurred; the next sync will retry"
	}
}

// RecentAt reports whether the error is fresh enough to show to the
// user at the given instant.
func (e SyncError) RecentAt(now time.Time, window time.Duration) bool {
	return now.Sub(e.OccurredAt) <= window
}
