package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/kenku-bot/crowevents/internal/app"
	"github.com/kenku-bot/crowevents/internal/cache"
	"github.com/kenku-bot/crowevents/internal/config"
	"github.com/kenku-bot/crowevents/internal/db"
	"github.com/kenku-bot/crowevents/internal/events"
	"github.com/kenku-bot/crowevents/internal/jobs"
	"github.com/kenku-bot/crowevents/internal/logging"
	"github.com/kenku-bot/crowevents/internal/observability"
)

var version = "dev"

func main() {
	if err := godotenv.Load(); err != nil {
		log.Println(".env not loaded, using process environment")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, version)
	if err != nil {
		lg.Base.Warn("sentry disabled", zap.Error(err))
	}
	defer flush()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, lg); err != nil {
		observability.CaptureErr(err)
		lg.Base.Error("stopped with error", zap.Error(err))
		flush()
		lg.Closer()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, lg *logging.Log) error {
	database, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		return err
	}
	defer func() { _ = database.Close() }()

	if err := db.Migrate(ctx, database, lg.Component("migrate")); err != nil {
		return err
	}

	weights := events.DefaultWeights()
	if cfg.WeightsFile != "" {
		w, err := config.LoadWeights(cfg.WeightsFile)
		if err != nil {
			return err
		}
		weights = w
	}
	lg.Base.Info("reaction weights", zap.Any("weights", weights))

	opts := []events.Option{
		events.WithWeights(weights),
		events.WithRescanOptions(events.RescanOptions{
			Limit: cfg.RescanLimit,
			Batch: cfg.RescanBatch,
			Pause: cfg.RescanPause,
		}),
	}
	if cfg.RedisURL != "" {
		rc, err := cache.NewRedis(ctx, cfg.RedisURL, cfg.LeaderboardTTL)
		if err != nil {
			// без кэша работаем медленнее, но корректно
			lg.Base.Warn("leaderboard cache disabled", zap.Error(err))
		} else {
			defer func() { _ = rc.Close() }()
			opts = append(opts, events.WithCache(rc))
		}
	}
	mgr := events.NewManager(database, lg.Component("events"), opts...)

	g, ctx := errgroup.WithContext(ctx)

	runner := jobs.New(ctx, lg.Component("jobs"))
	runner.Every(cfg.ReconcileEvery, "reconcile_scores", mgr.RecalculateAll)

	app.StartHTTP(ctx, cfg.HTTPAddr, app.NewRouter(database, mgr, lg.Component("http")), lg.Component("http"))

	// сразу после старта сводим итоги: прошлый процесс мог упасть посреди rescan
	g.Go(func() error {
		if err := mgr.RecalculateAll(ctx); err != nil {
			lg.Base.Warn("startup reconciliation failed", zap.Error(err))
			observability.CaptureErr(err)
		}
		return nil
	})

	lg.Base.Info("crowevents started", zap.String("version", version), zap.String("env", cfg.Env))
	<-ctx.Done()
	lg.Base.Info("shutting down")
	return g.Wait()
}
