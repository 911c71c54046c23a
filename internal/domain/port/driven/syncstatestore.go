package driven

import (
	"context"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
)

// SyncStateStore defines the driven port for the small pieces of sync
// bookkeeping: the watermark, the last rate-limit snapshot, and the
// structured last error. Each field is independently readable and
// writable; no cross-field transactionality is assumed.
type SyncStateStore interface {
	// Watermark returns the last successful sync completion time.
	// ok is false when no pass has ever completed.
	Watermark(ctx context.Context) (t time.Time, ok bool, err error)
	SetWatermark(ctx context.Context, t time.Time) error

	// RateLimit returns the persisted rate-limit snapshot, if any.
	RateLimit(ctx context.Context) (snapshot model.RateLimitSnapshot, ok bool, err error)
	SetRateLimit(ctx context.Context, snapshot model.RateLimitSnapshot) error

	// LastError returns the most recent sync error, or nil if none.
	LastError(ctx context.Context) (*model.SyncError, error)
	SetLastError(ctx context.Context, syncErr model.SyncError) error
}
