package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/okian/lets/internal/adapters/discord"
	"github.com/okian/lets/internal/adapters/http/api"
	"github.com/okian/lets/internal/adapters/osuapi"
	"github.com/okian/lets/internal/adapters/repository"
	"github.com/okian/lets/internal/adapters/sqlstore"
	"github.com/okian/lets/internal/adapters/users"
	app "github.com/okian/lets/internal/app"
	"github.com/okian/lets/internal/config"
	"github.com/okian/lets/internal/domain/autorank"
	"github.com/okian/lets/internal/domain/criteria"
	"github.com/okian/lets/internal/domain/leaderboard"
	"github.com/okian/lets/internal/domain/scoring"
	"github.com/okian/lets/pkg/logger"
	"github.com/redis/go-redis/v9"
)

// HTTP server timeout constants.
const (
	readTimeout       = 10 * time.Second
	writeTimeout      = 30 * time.Second
	idleTimeout       = 60 * time.Second
	readHeaderTimeout = 5 * time.Second
	shutdownTimeout   = 30 * time.Second
	redisPingTimeout  = 5 * time.Second
)

func main() {
	os.Exit(start())
}

// start loads configuration and logging, then serves until SIGINT/SIGTERM.
// It returns the process exit code.
func start() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Load configuration (defaults -> optional file -> env)
	cfg, err := config.Load(ctx)
	if err != nil {
		// logger isn't available yet
		os.Stderr.WriteString("failed to load config: " + err.Error() + "\n")
		return 1
	}

	if err := logger.InitWithFormat(cfg.LogFormat); err != nil {
		os.Stderr.WriteString("failed to initialize logging: " + err.Error() + "\n")
		return 1
	}
	defer func() { _ = logger.Sync() }()

	log := logger.Get()
	if err := logger.SetLevelString(cfg.LogLevel); err != nil {
		log.Warn(ctx, "invalid log_level; falling back to info", logger.String("log_level", cfg.LogLevel), logger.Error(err))
		_ = logger.SetLevelString("info")
	}

	if err := run(ctx, cfg, log); err != nil {
		log.Error(ctx, "lets exited with error", logger.Error(err))
		return 1
	}
	return 0
}

// run serves until ctx is canceled.
func run(ctx context.Context, cfg *config.Config, log logger.Logger) error {
	a, err := build(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer a.close(log)

	// queued scores are drained on shutdown, not dropped with ctx
	if err := a.svc.Start(context.WithoutCancel(ctx)); err != nil {
		return fmt.Errorf("start service: %w", err)
	}
	a.sweeper.Start()

	srv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           a.handler,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting HTTP server", logger.String("addr", cfg.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	var runErr error
	select {
	case <-ctx.Done():
	case err := <-serveErr:
		if err != nil {
			runErr = fmt.Errorf("http server: %w", err)
		}
	}
	log.Info(ctx, "shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error(shutdownCtx, "server shutdown failed", logger.Error(err))
	}
	a.sweeper.Stop(shutdownCtx)
	a.svc.Stop(shutdownCtx)

	log.Info(shutdownCtx, "server stopped")
	return runErr
}

// application is the wired process.
type application struct {
	db         *sql.DB
	closeStore func() error
	users      *users.Cached
	svc        *app.Service
	sweeper    *app.Sweeper
	handler    http.Handler
}

func (a *application) close(log logger.Logger) {
	ctx := context.Background()
	if a.users != nil {
		a.users.Close()
	}
	if a.closeStore != nil {
		if err := a.closeStore(); err != nil {
			log.Warn(ctx, "closing leaderboard store", logger.Error(err))
		}
	}
	if a.db != nil {
		if err := a.db.Close(); err != nil {
			log.Warn(ctx, "closing database", logger.Error(err))
		}
	}
}

// build opens the stores and wires every component. On error everything
// opened so far is closed.
func build(ctx context.Context, cfg *config.Config, log logger.Logger) (_ *application, err error) {
	a := &application{}
	defer func() {
		if err != nil {
			a.close(log)
		}
	}()

	a.db, err = sqlstore.OpenDB(cfg.DatabasePath)
	if err != nil {
		return nil, err
	}
	if err = sqlstore.Migrate(a.db); err != nil {
		return nil, err
	}
	sqlStore := sqlstore.New(a.db, sqlstore.WithLogger(log.Named("sqlstore")))

	store, closeStore, err := buildStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}
	a.closeStore = closeStore

	a.users, err = users.NewCached(sqlStore, users.WithMaxSize(cfg.UserCacheSize), users.WithTTL(cfg.UserCacheTTL()))
	if err != nil {
		return nil, fmt.Errorf("user cache: %w", err)
	}

	upstream := osuapi.New(cfg.OsuAPIURL, cfg.OsuAPIKey, osuapi.WithLogger(log.Named("osuapi")))
	notifier := discord.New(cfg.DiscordWebhookURL, a.users, discord.WithLogger(log.Named("discord")))

	a.svc = app.New(app.Components{
		Beatmaps: sqlStore,
		Stats:    sqlStore,
		Criteria: criteria.NewEngine(sqlStore, criteria.WithLogger(log.Named("criteria"))),
		Autorank: autorank.NewEngine(sqlStore, upstream,
			autorank.WithMetadataTimeout(cfg.MetadataTimeout()),
			autorank.WithLogger(log.Named("autorank"))),
		Leaderboards: leaderboard.NewService(store, a.users, leaderboard.WithLogger(log.Named("leaderboard"))),
		Users:        a.users,
		Notifier:     notifier,
		Selector:     scoring.NewSelector(scoring.WithMetricsFromConfig(cfg.RankingMetric)),
	},
		app.WithLogger(log.Named("service")),
		app.WithWorkerCount(cfg.WorkerCount),
		app.WithQueueSize(cfg.EventQueueSize),
		app.WithDedupeSize(cfg.DedupeSize),
		app.WithDedupeTTL(cfg.DedupeTTL()),
	)

	a.sweeper, err = app.NewSweeper(a.svc, cfg.SweepSchedule, cfg.SweepBatchSize, log)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	api.NewServer(a.svc,
		api.WithDownloadURL(cfg.BeatmapDownloadURL),
		api.WithReadiness(sqlStore.Ping),
		api.WithLogger(log.Named("api")),
	).Register(mux)
	a.handler = mux
	return a, nil
}

// buildStore returns the configured leaderboard backend and its closer.
func buildStore(ctx context.Context, cfg *config.Config, log logger.Logger) (repository.Store, func() error, error) {
	if cfg.LeaderboardBackend != config.BackendRedis {
		log.Info(ctx, "using in-memory leaderboards")
		return repository.NewTreapStore(), nil, nil
	}

	client := redis.NewUniversalClient(&redis.UniversalOptions{
		Addrs:    []string{cfg.RedisAddr},
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	})
	rs := repository.NewRedisStore(client, repository.WithRedisLogger(log.Named("redis")))

	pingCtx, cancel := context.WithTimeout(ctx, redisPingTimeout)
	defer cancel()
	if err := rs.Ping(pingCtx); err != nil {
		_ = rs.Close()
		return nil, nil, err
	}
	log.Info(ctx, "using redis leaderboards", logger.String("addr", cfg.RedisAddr))
	return rs, rs.Close, nil
}
