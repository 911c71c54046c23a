package application

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jonmartin721/devwatch/internal/domain/model"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

// NotifyService turns a batch of newly accepted activities into grouped,
// per-repository notifications. It is pure with respect to its input: it
// only ever looks at the batch passed to Dispatch, never the whole feed.
type NotifyService struct {
	notifier        driven.Notifier
	enabled         bool
	categoryEnabled map[model.Category]bool
}

// NewNotifyService creates a NotifyService. enabled is the global switch;
// categoryEnabled toggles each category individually (a missing entry
// means disabled).
func NewNotifyService(notifier driven.Notifier, enabled bool, categoryEnabled map[model.Category]bool) *NotifyService {
	return &NotifyService{
		notifier:        notifier,
		enabled:         enabled,
		categoryEnabled: categoryEnabled,
	}
}

// Dispatch groups the batch by repository and emits one summarized
// notification per repository. Delivery failures are logged and do not
// propagate; notifications are fire-and-forget.
func (s *NotifyService) Dispatch(ctx context.Context, newActivities []model.Activity) {
	if !s.enabled {
		return
	}

	var kept []model.Activity
	for _, a := range newActivities {
		if s.categoryEnabled[a.Category] {
			kept = append(kept, a)
		}
	}
	if len(kept) == 0 {
		return
	}

	groups := make(map[string][]model.Activity)
	var order []string
	for _, a := range kept {
		if _, ok := groups[a.RepoFullName]; !ok {
			order = append(order, a.RepoFullName)
		}
		groups[a.RepoFullName] = append(groups[a.RepoFullName], a)
	}

	for _, repo := range order {
		group := groups[repo]
		n := model.Notification{
			RepoFullName: repo,
			Summary:      Summarize(group),
			URL:          group[0].URL,
			Count:        len(group),
		}

		if err := s.notifier.Notify(ctx, n); err != nil {
			slog.Error("notification delivery failed", "repo", repo, "error", err)
			continue
		}
		slog.Info("notification sent", "repo", repo, "summary", n.Summary)
	}
}

// Summarize renders a human-readable summary for one repository group,
// e.g. "2 new prs, 1 new issue". Categories appear in encounter order and
// are pluralized only when the count exceeds one.
func Summarize(activities []model.Activity) string {
	counts := make(map[model.Category]int)
	var order []model.Category
	for _, a := range activities {
		if counts[a.Category] == 0 {
			order = append(order, a.Category)
		}
		counts[a.Category]++
	}

	parts := make([]string, 0, len(order))
	for _, cat := range order {
		n := counts[cat]
		label := cat.Label()
		if n > 1 {
			label += "s"
		}
		parts = append(parts, fmt.Sprintf("%d new %s", n, label))
	}

	return strings.Join(parts, ", ")
}
