package driven

import (
	"context"

	"github.com/jonmartin721/devwatch/internal/domain/model"
)

// Notifier defines the driven port for delivering one grouped
// notification to the user-facing channel.
type Notifier interface {
	Notify(ctx context.Context, n model.Notification) error
}
