// Package app provides the top-level application lifecycle for spreadbot. It
// wires the exchange sessions, journal sinks, optional Redis/Postgres/S3
// backends and notifications, runs the startup checks, and then drives the
// scheduler alongside the status server, archiver and lock refresher.
package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/spreadbot/internal/cache/redis"
	"github.com/alanyoungcy/spreadbot/internal/config"
	"github.com/alanyoungcy/spreadbot/internal/crypto"
	"github.com/alanyoungcy/spreadbot/internal/executor"
	"github.com/alanyoungcy/spreadbot/internal/scheduler"
	"github.com/alanyoungcy/spreadbot/internal/server"
	"github.com/alanyoungcy/spreadbot/internal/server/handler"
	"github.com/alanyoungcy/spreadbot/internal/server/ws"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg       *config.Config
	logger    *slog.Logger
	runID     string
	startedAt time.Time
	closers   []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	runID := uuid.NewString()
	return &App{
		cfg:       cfg,
		logger:    logger.With(slog.String("component", "app"), slog.String("run_id", runID)),
		runID:     runID,
		startedAt: time.Now(),
	}
}

// RunID identifies this process's run in logs, journals and archives.
func (a *App) RunID() string { return a.runID }

// Run wires dependencies, performs the startup checks and trades until ctx is
// cancelled. It returns nil on graceful shutdown and an error wrapping
// domain.ErrUnrecoverablePosition when recovery failed; any other error is a
// startup or infrastructure failure.
func (a *App) Run(ctx context.Context) error {
	cfg := a.cfg
	a.logger.InfoContext(ctx, "starting application",
		slog.String("market", cfg.Exchange.Market),
		slog.Int("helpers", len(cfg.Credentials.Helpers)),
		slog.Bool("simulate", cfg.Trade.Simulate),
	)

	creds, err := cfg.ResolveCredentials()
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	amount, err := cfg.Trade.AmountDecimal()
	if err != nil {
		return fmt.Errorf("app: trade amount: %w", err)
	}
	minProfit, err := cfg.Trade.MinProfitDecimal()
	if err != nil {
		return fmt.Errorf("app: min profit: %w", err)
	}

	deps, cleanup, err := Wire(ctx, cfg, creds, a.runID, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	boot, err := Bootstrap(ctx, BootstrapConfig{
		Amount:       amount,
		AmountAsset:  cfg.Trade.AmountAsset,
		Interval:     cfg.Schedule.Interval.Duration,
		BurstEnabled: cfg.Schedule.BurstEnabled,
	}, deps.Pollers, a.logger)
	if err != nil {
		return err
	}

	// One bot per trading account, across hosts.
	var lockKey string
	if deps.LockManager != nil && cfg.Redis.InstanceLock {
		auth := crypto.HMACAuth{Key: creds[0].Key, Secret: creds[0].Secret}
		lockKey = "primary:" + auth.Fingerprint()
		unlock, err := deps.LockManager.Acquire(ctx, lockKey, cfg.Redis.LockTTL.Duration)
		if err != nil {
			return fmt.Errorf("app: instance lock: %w", err)
		}
		a.closers = append(a.closers, unlock)
	}

	rotator, err := executor.NewRotator(deps.Pollers)
	if err != nil {
		return fmt.Errorf("app: %w", err)
	}
	burst := executor.NewBurst(boot.BurstCeiling)
	// Journal sinks and notification channels are slow I/O; the loop only
	// enqueues.
	dispatch := executor.NewDispatcher(deps.Journal, deps.Notifier, executor.DefaultDispatchQueue, a.logger)
	defer dispatch.Close()
	engine := executor.NewEngine(executor.TradeConfig{
		Amount:             amount,
		QuoteCurrency:      cfg.QuoteCurrency(),
		InitialBuy:         cfg.Trade.InitialBuy,
		MinProfitPct:       minProfit,
		Simulate:           cfg.Trade.Simulate,
		FixMissedSecondLeg: cfg.Trade.FixMissedSecondLeg,
	}, a.runID, dispatch, dispatch, a.logger)
	if deps.RateLimiter != nil && cfg.Redis.QuotaGuard {
		engine.SetQuotaGuard(deps.RateLimiter, boot.Calibration.Limit)
	}
	sched := scheduler.New(engine, rotator, burst, boot.Calibration.Interval, a.logger)

	status := handler.NewStatusHandler(handler.StatusDeps{
		RunID:     a.runID,
		Market:    cfg.Exchange.Market,
		StartedAt: a.startedAt,
		Schedule:  sched,
		Engine:    engine,
		Rotation:  rotator,
		Burst:     burst,
		History:   deps.Ring,
		Sinks:     deps.Journal.Sinks,
	})

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := sched.Run(gctx)
		dispatch.Close()
		return ignoreCanceled(err)
	})
	g.Go(func() error {
		return dispatch.Run(gctx)
	})

	if cfg.Server.Enabled {
		hub := ws.NewHub(ws.Config{
			Status:      func() any { return status.Snapshot() },
			StatusEvery: cfg.Server.StatusEvery.Duration,
		}, a.logger)
		deps.Journal.Add(hub)

		srv := server.NewServer(server.Config{
			Addr:            cfg.Server.Addr,
			CORSOrigins:     cfg.Server.CORSOrigins,
			APIKey:          cfg.Server.APIKey,
			RateLimit:       cfg.Server.RateLimit,
			RateLimitWindow: cfg.Server.RateLimitWindow.Duration,
		}, server.Handlers{
			Health: handler.NewHealthHandler(a.runID, a.startedAt),
			Status: status,
			Cycles: handler.NewCycleHandler(deps.Ring),
		}, hub, deps.RateLimiter, a.logger)

		g.Go(func() error {
			return ignoreCanceled(hub.Run(gctx))
		})
		g.Go(func() error {
			return srv.Run(gctx, cfg.Server.ShutdownTimeout.Duration)
		})
	}

	if lockKey != "" {
		g.Go(func() error {
			return redis.KeepAlive(gctx, deps.LockManager, lockKey, cfg.Redis.LockTTL.Duration, a.logger)
		})
	}

	if deps.Archiver != nil && cfg.Journal.ArchiveCron != "" {
		g.Go(func() error {
			return deps.Archiver.Run(gctx, cfg.Journal.ArchiveCron)
		})
	}

	if cfg.Notify.SummaryCron != "" {
		g.Go(func() error {
			return runSummary(gctx, cfg.Notify.SummaryCron, deps.Notifier, status.Snapshot, a.logger)
		})
	}

	err = g.Wait()
	a.logger.InfoContext(ctx, "run finished",
		slog.Int64("cycles", engine.Cycles()),
		slog.Int64("ticks", sched.Ticks()),
	)
	return err
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
