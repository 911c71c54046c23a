// Package config loads application configuration from environment variables.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jonmartin721/devwatch/internal/domain/model"
)

// Config holds the application configuration loaded from environment variables.
type Config struct {
	GitHubToken    string
	PollInterval   time.Duration
	RequestTimeout time.Duration
	ListenAddr     string
	DBPath         string
	MaxActivities  int
	Lookback       time.Duration
	Categories     []model.Category
	WebhookURL     string
	SecretKey      []byte // 32-byte AES-256 key, or nil when credential storage is disabled.

	NotificationsEnabled bool
	NotifyCategories     map[model.Category]bool
}

// maxActivitiesCeiling is the largest accepted feed bound. The default
// is 100; deployments that keep a deep history raise it, up to 2000.
const maxActivitiesCeiling = 2000

// Load reads configuration from environment variables and returns a validated
// Config. The GitHub token (DEVWATCH_GITHUB_TOKEN) is optional; if absent, the
// app starts but syncing is inactive until a credential is provided via the API.
// Optional variables with defaults: DEVWATCH_POLL_INTERVAL (5m),
// DEVWATCH_REQUEST_TIMEOUT (30s), DEVWATCH_LISTEN_ADDR (127.0.0.1:8080),
// DEVWATCH_DB_PATH (devwatch.db), DEVWATCH_MAX_ACTIVITIES (100),
// DEVWATCH_LOOKBACK (24h), DEVWATCH_CATEGORIES (all three),
// DEVWATCH_NOTIFICATIONS and the per-category DEVWATCH_NOTIFY_* toggles (true).
func Load() (*Config, error) {
	token := os.Getenv("DEVWATCH_GITHUB_TOKEN")

	pollInterval, err := durationEnv("DEVWATCH_POLL_INTERVAL", 5*time.Minute)
	if err != nil {
		return nil, err
	}

	requestTimeout, err := durationEnv("DEVWATCH_REQUEST_TIMEOUT", 30*time.Second)
	if err != nil {
		return nil, err
	}

	lookback, err := durationEnv("DEVWATCH_LOOKBACK", 24*time.Hour)
	if err != nil {
		return nil, err
	}

	listenAddr := "127.0.0.1:8080"
	if v, ok := os.LookupEnv("DEVWATCH_LISTEN_ADDR"); ok {
		listenAddr = v
	}

	dbPath := "devwatch.db"
	if v, ok := os.LookupEnv("DEVWATCH_DB_PATH"); ok {
		dbPath = v
	}

	maxActivities := 100
	if v, ok := os.LookupEnv("DEVWATCH_MAX_ACTIVITIES"); ok {
		parsed, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("DEVWATCH_MAX_ACTIVITIES has invalid value %q: %w", v, err)
		}
		if parsed < 1 || parsed > maxActivitiesCeiling {
			return nil, fmt.Errorf("DEVWATCH_MAX_ACTIVITIES must be between 1 and %d, got %d", maxActivitiesCeiling, parsed)
		}
		maxActivities = parsed
	}

	categories, err := parseCategories(os.Getenv("DEVWATCH_CATEGORIES"))
	if err != nil {
		return nil, err
	}

	notificationsEnabled, err := boolEnv("DEVWATCH_NOTIFICATIONS", true)
	if err != nil {
		return nil, err
	}

	notifyPRs, err := boolEnv("DEVWATCH_NOTIFY_PULL_REQUESTS", true)
	if err != nil {
		return nil, err
	}
	notifyIssues, err := boolEnv("DEVWATCH_NOTIFY_ISSUES", true)
	if err != nil {
		return nil, err
	}
	notifyReleases, err := boolEnv("DEVWATCH_NOTIFY_RELEASES", true)
	if err != nil {
		return nil, err
	}

	var secretKey []byte
	if v, ok := os.LookupEnv("DEVWATCH_SECRET_KEY"); ok && v != "" {
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return nil, fmt.Errorf("DEVWATCH_SECRET_KEY is not valid base64: %w", err)
		}
		if len(decoded) != 32 {
			return nil, fmt.Errorf("DEVWATCH_SECRET_KEY must decode to 32 bytes, got %d", len(decoded))
		}
		secretKey = decoded
	}

	return &Config{
		GitHubToken:          token,
		PollInterval:         pollInterval,
		RequestTimeout:       requestTimeout,
		ListenAddr:           listenAddr,
		DBPath:               dbPath,
		MaxActivities:        maxActivities,
		Lookback:             lookback,
		Categories:           categories,
		WebhookURL:           os.Getenv("DEVWATCH_WEBHOOK_URL"),
		SecretKey:            secretKey,
		NotificationsEnabled: notificationsEnabled,
		NotifyCategories: map[model.Category]bool{
			model.CategoryPullRequest: notifyPRs,
			model.CategoryIssue:       notifyIssues,
			model.CategoryRelease:     notifyReleases,
		},
	}, nil
}

// parseCategories parses a comma-separated category list. An empty value
// enables all categories.
func parseCategories(raw string) ([]model.Category, error) {
	if strings.TrimSpace(raw) == "" {
		return append([]model.Category(nil), model.AllCategories...), nil
	}

	var categories []model.Category
	seen := make(map[model.Category]bool)
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		cat := model.Category(part)
		if !cat.Valid() {
			return nil, fmt.Errorf("DEVWATCH_CATEGORIES has unknown category %q", part)
		}
		if !seen[cat] {
			seen[cat] = true
			categories = append(categories, cat)
		}
	}
	if len(categories) == 0 {
		return nil, fmt.Errorf("DEVWATCH_CATEGORIES must name at least one category")
	}
	return categories, nil
}

func durationEnv(name string, def time.Duration) (time.Duration, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	parsed, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s has invalid duration %q: %w", name, v, err)
	}
	return parsed, nil
}

func boolEnv(name string, def bool) (bool, error) {
	v, ok := os.LookupEnv(name)
	if !ok {
		return def, nil
	}
	parsed, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s has invalid boolean %q: %w", name, v, err)
	}
	return parsed, nil
}
