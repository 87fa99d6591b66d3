package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"checklist/api/internal/app"
	"checklist/api/internal/authpw"
	"checklist/api/internal/config"
	"checklist/api/internal/email"
	"checklist/api/internal/export"
	"checklist/api/internal/logging"
	"checklist/api/internal/metrics"
	"checklist/api/internal/objectstore"
	"checklist/api/internal/revisions"
	"checklist/api/internal/scheduler"
	"checklist/api/internal/search"
	"checklist/api/internal/session"
	"checklist/api/internal/store"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	configPath string
	cfg        config.Config
	logger     *zap.Logger
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "checklist-api",
		Short:         "Checklist boards and notes API",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			loaded, err := config.LoadFile(configPath)
			if err != nil {
				return err
			}
			cfg = loaded
			logger, err = logging.New(cfg.LogLevel, cfg.LogFormat)
			return err
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if logger != nil {
				_ = logger.Sync()
			}
		},
	}
	root.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CHECKLIST_CONFIG"), "path to a YAML config file")
	root.AddCommand(serveCmd(), migrateCmd(), reindexCmd())
	return root
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx)
		},
	}
}

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			db, err := openDatabase(cmd.Context())
			if err != nil {
				return err
			}
			defer db.Close()
			logger.Info("migrations applied", zap.String("dir", cfg.MigrationsDir))
			return nil
		},
	}
}

func reindexCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "reindex",
		Short: "Push every card and note to Meilisearch",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			db, err := openDatabase(ctx)
			if err != nil {
				return err
			}
			defer db.Close()

			searchService, closeSearch := newSearch(db)
			defer closeSearch()
			if !searchService.Healthy() {
				return errors.New("meilisearch is not reachable")
			}
			count, err := searchService.ReindexAll(ctx)
			if err != nil {
				return fmt.Errorf("reindex: %w", err)
			}
			logger.Info("reindex finished", zap.Int("records", count))
			return nil
		},
	}
}

func serve(ctx context.Context) error {
	db, err := openDatabase(ctx)
	if err != nil {
		return err
	}
	defer db.Close()
	dataStore := store.NewPostgresStore(db)

	deps := app.Dependencies{
		Store:     dataStore,
		Sessions:  dataStore,
		Passwords: authpw.NewService(dataStore, cfg.BcryptCost),
		Exporter:  export.NewService(),
		Logger:    logger,
	}

	if strings.TrimSpace(cfg.RedisURL) != "" {
		redisStore, err := session.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("redis connection failed: %w", err)
		}
		defer redisStore.Close()
		deps.Sessions = redisStore
		logger.Info("using redis for refresh sessions")
	} else {
		logger.Info("using postgres for refresh sessions")
	}

	blobs, err := objectstore.New(objectstore.Config{
		Endpoint:  cfg.S3Endpoint,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
		Bucket:    cfg.S3Bucket,
		Region:    cfg.S3Region,
		UseSSL:    cfg.S3UseSSL,
	})
	if err != nil {
		return fmt.Errorf("object storage: %w", err)
	}
	if err := blobs.EnsureBucket(ctx); err != nil {
		logger.Warn("bucket check failed, uploads will error until storage is reachable", zap.Error(err))
	}
	deps.Blobs = blobs

	if err := os.MkdirAll(cfg.RevisionsDir, 0o755); err != nil {
		return fmt.Errorf("create revisions dir: %w", err)
	}
	deps.Revisions = revisions.New(cfg.RevisionsDir)

	searchService, closeSearch := newSearch(db)
	defer closeSearch()
	deps.Search = searchService

	mailer := email.NewService(email.Config{
		Host:     cfg.SMTPHost,
		Port:     cfg.SMTPPort,
		Username: cfg.SMTPUsername,
		Password: cfg.SMTPPassword,
		From:     cfg.SMTPFrom,
		FromName: cfg.SMTPFromName,
	})
	if mailer.IsConfigured() {
		deps.Mailer = mailer
	} else {
		logger.Warn("smtp not configured, reset tokens are returned in responses")
	}

	service := app.New(cfg, deps)
	registry := metrics.New()

	jobs := scheduler.New(logger, registry)
	if err := jobs.Add("purge-expired", cfg.CleanupSchedule, service.PurgeExpired); err != nil {
		return err
	}
	if err := jobs.Add("reindex", cfg.ReindexSchedule, service.Reindex); err != nil {
		return err
	}
	jobs.Start()

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           app.NewHTTPServer(service, cfg.CORSOrigin).WithMetrics(registry).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("checklist api listening", zap.String("addr", cfg.Addr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	jobs.Stop(shutdownCtx)
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	searchService.Wait()
	return nil
}

func openDatabase(ctx context.Context) (*sql.DB, error) {
	db, err := store.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("database connection failed: %w", err)
	}
	if err := store.ApplyMigrations(ctx, db, cfg.MigrationsDir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations failed: %w", err)
	}
	return db, nil
}

// newSearch builds the search facade. Meilisearch is optional; PostgreSQL
// full-text search always backs it.
func newSearch(db *sql.DB) (*search.Service, func()) {
	var index search.Index
	closeFn := func() {}
	if strings.TrimSpace(cfg.MeiliURL) != "" {
		meili := search.NewMeili(cfg.MeiliURL, cfg.MeiliMasterKey, logger)
		index = meili
		closeFn = meili.Close
	}
	return search.NewService(index, search.NewPgFTS(db), logger), closeFn
}
