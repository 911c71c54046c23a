package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "golang.org/x/crypto/x509roots/fallback" // Embed CA certs for scratch container

	githubadapter "github.com/jonmartin721/devwatch/internal/adapter/driven/github"
	"github.com/jonmartin721/devwatch/internal/adapter/driven/notify"
	sqliteadapter "github.com/jonmartin721/devwatch/internal/adapter/driven/sqlite"
	httphandler "github.com/jonmartin721/devwatch/internal/adapter/driving/http"
	"github.com/jonmartin721/devwatch/internal/application"
	"github.com/jonmartin721/devwatch/internal/config"
	"github.com/jonmartin721/devwatch/internal/domain/port/driven"
)

func main() {
	if err := run(); err != nil {
		slog.Error("fatal error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load configuration (fail fast on malformed env vars).
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.Info("config loaded",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"poll_interval", cfg.PollInterval,
		"max_activities", cfg.MaxActivities,
	)

	// 2. Setup signal-based context (SIGINT, SIGTERM).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Open database (dual reader/writer with WAL mode).
	db, err := sqliteadapter.NewDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := db.Close(); closeErr != nil {
			slog.Error("error closing database", "error", closeErr)
		}
	}()
	slog.Info("database opened", "path", cfg.DBPath)

	// 4. Run migrations on writer connection.
	if err := sqliteadapter.RunMigrations(db.Writer); err != nil {
		return err
	}
	slog.Info("migrations complete")

	// 5. Wire adapters.
	activityStore := sqliteadapter.NewActivityRepo(db)
	readStateStore := sqliteadapter.NewReadStateRepo(db)
	repoStore := sqliteadapter.NewRepoRepo(db)
	exclusionStore := sqliteadapter.NewExclusionRepo(db)
	syncStateStore := sqliteadapter.NewSyncStateRepo(db)
	credentialStore := sqliteadapter.NewCredentialRepo(db, cfg.SecretKey)

	// 6. Create activity source (may be absent until credentials arrive).
	// Resolve credentials: stored credentials take priority over env vars.
	ghToken := cfg.GitHubToken
	if storedToken, err := credentialStore.Get(ctx, "github", "token"); err == nil && storedToken != "" {
		ghToken = storedToken
	}

	var source driven.ActivitySource
	if ghToken != "" {
		source = githubadapter.NewClient(ghToken)
		slog.Info("github client created")
	} else {
		slog.Info("no github token configured, syncing inactive until a credential is provided via the API")
	}

	// 6b. Create SourceProvider for credential hot-swap.
	provider := application.NewSourceProvider(source)

	// 7. Create services.
	exclusionSvc := application.NewExclusionService(exclusionStore)
	readStateSvc := application.NewReadStateService(activityStore, readStateStore)

	var notifier driven.Notifier
	if cfg.WebhookURL != "" {
		notifier = notify.NewWebhookNotifier(cfg.WebhookURL)
		slog.Info("webhook notifier configured", "url", cfg.WebhookURL)
	} else {
		notifier = notify.NewLogNotifier()
	}
	notifySvc := application.NewNotifyService(notifier, cfg.NotificationsEnabled, cfg.NotifyCategories)

	syncSvc := application.NewSyncService(
		provider,
		activityStore,
		repoStore,
		exclusionSvc,
		syncStateStore,
		notifySvc,
		cfg.Categories,
		cfg.MaxActivities,
		cfg.Lookback,
		cfg.RequestTimeout,
		cfg.PollInterval,
	)
	go syncSvc.Start(ctx)

	// 8. Create HTTP handler and register API routes.
	newSource := func(token string) driven.ActivitySource {
		return githubadapter.NewClient(token)
	}
	apiHandler := httphandler.NewHandler(
		activityStore,
		readStateStore,
		repoStore,
		syncStateStore,
		credentialStore,
		readStateSvc,
		exclusionSvc,
		syncSvc,
		provider,
		newSource,
		slog.Default(),
	)
	handler := httphandler.NewServeMux(apiHandler, slog.Default())

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	go func() {
		slog.Info("http server starting", "addr", cfg.ListenAddr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("http server error", "error", err)
		}
	}()

	slog.Info("devwatch started",
		"listen_addr", cfg.ListenAddr,
		"poll_interval", cfg.PollInterval,
	)

	// 9. Wait for shutdown signal.
	<-ctx.Done()
	slog.Info("shutting down")

	// 10. Graceful shutdown with 10s timeout to drain the HTTP server.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("http server shutdown error", "error", err)
	}

	slog.Info("shutdown complete")
	return nil
}
