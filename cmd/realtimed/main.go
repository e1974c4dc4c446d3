package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vicinityhq/realtime/internal/bus"
	"github.com/vicinityhq/realtime/internal/config"
	"github.com/vicinityhq/realtime/internal/dedup"
	"github.com/vicinityhq/realtime/internal/notify"
	"github.com/vicinityhq/realtime/internal/prefs"
	"github.com/vicinityhq/realtime/internal/presence"
	xredis "github.com/vicinityhq/realtime/internal/redis"
	"github.com/vicinityhq/realtime/internal/session"
	"github.com/vicinityhq/realtime/internal/store"
	"github.com/vicinityhq/realtime/internal/transport"
	"github.com/vicinityhq/realtime/internal/transport/memory"
	"github.com/vicinityhq/realtime/internal/transport/redisch"
	"github.com/vicinityhq/realtime/internal/version"
	"github.com/vicinityhq/realtime/internal/xslog"
)

const teardownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load()

	logger := xslog.NewLoggerFromEnv(os.Stdout)
	slog.SetDefault(logger)

	rootCmd := &cobra.Command{
		Use:     "realtimed",
		Short:   "presence and notification delivery daemon",
		Version: version.Get(),
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), logger)
		},
	}

	rootCmd.AddCommand(migrateCmd())

	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		logger.Error("fatal error", xslog.Error(err))
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.Read()
	if err != nil {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if cfg.SubjectID == "" {
		return fmt.Errorf("SUBJECT_ID is required")
	}

	profile, closeProfile, err := initProfileStore(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize profile store: %w", err)
	}
	defer closeProfile()

	tr, err := initTransport(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("failed to initialize transport: %w", err)
	}

	sessions := session.NewManager(tr, logger)
	fallback := bus.New()
	dedupCache := dedup.New(cfg.Notify.DedupTTL)
	defer dedupCache.Close()
	prefsCache := prefs.NewCache(profile, cfg.Notify.PrefsStale, logger)

	derived := notify.NewVersionedCache()
	alerter := notify.NewRateLimitedAlerter(
		notify.AlerterFunc(func(ctx context.Context, a notify.Alert) {
			logger.InfoContext(ctx, "alert",
				slog.String("title", a.Title),
				slog.String("body", a.Body),
			)
		}),
		cfg.Notify.AlertsPerSec,
		cfg.Notify.AlertBurst,
		logger,
	)

	presenceStore := presence.NewStore(sessions, profile, presence.Config{
		HeartbeatPeriod: cfg.Presence.HeartbeatPeriod,
		PlatformTag:     cfg.PlatformTag,
	}, logger)

	coordinator := notify.NewCoordinator(notify.Deps{
		Sessions:    sessions,
		Fallback:    fallback,
		Dedup:       dedupCache,
		Prefs:       prefsCache,
		Alerter:     alerter,
		Invalidator: derived,
		Logger:      logger,
	})

	if err := presenceStore.Initialize(ctx, cfg.SubjectID); err != nil {
		return fmt.Errorf("failed to initialize presence: %w", err)
	}
	if err := coordinator.Start(ctx, cfg.SubjectID); err != nil {
		return fmt.Errorf("failed to start notifications: %w", err)
	}

	logger.InfoContext(ctx, "realtimed running",
		xslog.SubjectID(cfg.SubjectID),
		xslog.Status(string(presenceStore.State())),
	)

	done := make(chan os.Signal, 1)
	signal.Notify(done, os.Interrupt, syscall.SIGTERM)
	<-done
	logger.InfoContext(ctx, "shutdown signal received, withdrawing presence")

	teardownCtx, cancel := context.WithTimeout(context.Background(), teardownTimeout)
	defer cancel()

	g, gctx := errgroup.WithContext(teardownCtx)
	g.Go(func() error {
		presenceStore.Terminate(gctx)
		return nil
	})
	g.Go(func() error {
		coordinator.Stop(gctx)
		return nil
	})
	if err := g.Wait(); err != nil {
		return fmt.Errorf("teardown failed: %w", err)
	}

	logger.InfoContext(ctx, "realtimed stopped")
	return nil
}

func initProfileStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (store.Store, func(), error) {
	noop := func() {}
	switch cfg.Database.Driver {
	case "memory":
		logger.InfoContext(ctx, "using in-memory profile store")
		return store.NewMemoryStore(), noop, nil
	case "sqlite":
		logger.InfoContext(ctx, "using sqlite profile store")
		s, err := store.NewSQLiteStore(ctx, cfg.Database.Path)
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		logger.InfoContext(ctx, "using postgres profile store")
		pool, err := pgxpool.New(ctx, cfg.Database.URL)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		return store.NewPostgresStore(pool), pool.Close, nil
	case "redis":
		logger.InfoContext(ctx, "using redis profile store")
		client, err := xredis.New(ctx, xredis.Config{URL: cfg.Redis.URL})
		if err != nil {
			return nil, nil, err
		}
		return store.NewRedisStore(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown database driver: %q", cfg.Database.Driver)
	}
}

func initTransport(ctx context.Context, cfg config.Config, logger *slog.Logger) (transport.Transport, error) {
	switch cfg.Transport {
	case "memory":
		logger.InfoContext(ctx, "using in-memory transport")
		return memory.New(), nil
	case "redis":
		logger.InfoContext(ctx, "using redis transport")
		client, err := xredis.New(ctx, xredis.Config{URL: cfg.Redis.URL})
		if err != nil {
			return nil, err
		}
		return redisch.New(client, logger), nil
	default:
		return nil, fmt.Errorf("unknown transport: %q", cfg.Transport)
	}
}
