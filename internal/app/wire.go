package app

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	s3blob "github.com/alanyoungcy/spreadbot/internal/blob/s3"
	"github.com/alanyoungcy/spreadbot/internal/cache/redis"
	"github.com/alanyoungcy/spreadbot/internal/config"
	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/executor"
	"github.com/alanyoungcy/spreadbot/internal/journal"
	"github.com/alanyoungcy/spreadbot/internal/notify"
	"github.com/alanyoungcy/spreadbot/internal/platform/exchange"
	"github.com/alanyoungcy/spreadbot/internal/store/postgres"
)

// Dependencies bundles every concrete dependency the run needs. Optional
// backends are nil when not configured. It is constructed by Wire and torn
// down by the returned cleanup function.
type Dependencies struct {
	// Exchange sessions, primary first.
	Pollers []executor.Poller

	// Redis
	RateLimiter domain.RateLimiter
	LockManager domain.LockManager
	SignalBus   domain.SignalBus

	// Journal
	Journal  *journal.Journal
	Ring     *journal.Ring
	File     *journal.FileSink
	Archiver *journal.Archiver

	// Notifications
	Notifier *notify.Notifier
}

// Wire constructs all concrete dependency implementations from the given
// configuration and returns them together with a cleanup function that should
// be called on shutdown to release resources.
func Wire(ctx context.Context, cfg *config.Config, creds []domain.Credential, runID string, logger *slog.Logger) (*Dependencies, func(), error) {
	var closers []func()
	cleanup := func() {
		for i := len(closers) - 1; i >= 0; i-- {
			closers[i]()
		}
	}
	fail := func(stage string, err error) (*Dependencies, func(), error) {
		cleanup()
		return nil, nil, fmt.Errorf("wire: %s: %w", stage, err)
	}

	deps := &Dependencies{}

	// --- Exchange sessions ---
	for i, c := range creds {
		deps.Pollers = append(deps.Pollers, executor.Poller{
			Index:      i,
			Credential: c,
			Exchange:   exchange.NewClient(cfg.Exchange.BaseURL, cfg.Exchange.Market, c, cfg.Exchange.Timeout.Duration),
		})
	}

	// --- Journal: in-memory ring always, JSONL file when a path is set ---
	deps.Ring = journal.NewRing(cfg.Journal.RingSize)
	deps.Journal = journal.New(logger, deps.Ring)
	if f := journal.NewFileSink(cfg.Journal.Path); f != nil {
		deps.File = f
		deps.Journal.Add(f)
	}
	closers = append(closers, func() {
		if err := deps.Journal.Close(); err != nil {
			logger.Warn("journal close", slog.String("error", err.Error()))
		}
	})

	// --- PostgreSQL ---
	if cfg.Postgres.Enabled {
		pgClient, err := postgres.New(ctx, postgres.ClientConfig{
			DSN:            cfg.Postgres.DSN,
			Host:           cfg.Postgres.Host,
			Port:           cfg.Postgres.Port,
			Database:       cfg.Postgres.Database,
			User:           cfg.Postgres.User,
			Password:       cfg.Postgres.Password,
			SSLMode:        cfg.Postgres.SSLMode,
			MaxConns:       cfg.Postgres.PoolMaxConns,
			MinConns:       cfg.Postgres.PoolMinConns,
			ConnectTimeout: cfg.Postgres.ConnectTimeout.Duration,
		})
		if err != nil {
			return fail("postgres", err)
		}
		closers = append(closers, pgClient.Close)

		if cfg.Postgres.RunMigrations {
			if err := pgClient.RunMigrations(ctx); err != nil {
				return fail("postgres migrations", err)
			}
		}
		deps.Journal.Add(journal.NewStoreSink(postgres.NewCycleStore(pgClient.Pool())))
	}

	// --- Redis ---
	if cfg.Redis.Addr != "" {
		redisClient, err := redis.New(ctx, redis.ClientConfig{
			Addr:       cfg.Redis.Addr,
			Password:   cfg.Redis.Password,
			DB:         cfg.Redis.DB,
			PoolSize:   cfg.Redis.PoolSize,
			MaxRetries: cfg.Redis.MaxRetries,
			TLSEnabled: cfg.Redis.TLSEnabled,
			KeyPrefix:  cfg.Redis.KeyPrefix,
		})
		if err != nil {
			return fail("redis", err)
		}
		closers = append(closers, func() { _ = redisClient.Close() })

		deps.RateLimiter = redis.NewRateLimiter(redisClient)
		deps.LockManager = redis.NewLockManager(redisClient)
		bus := redis.NewSignalBus(redisClient)
		if cfg.Redis.CycleStream != "" {
			bus = bus.WithStream(redisClient.Key(cfg.Redis.CycleStream), cfg.Redis.StreamMaxLen)
		}
		deps.SignalBus = bus
		if cfg.Redis.CycleChannel != "" {
			deps.Journal.Add(journal.NewBusSink(bus, redisClient.Key(cfg.Redis.CycleChannel)))
		}
	}

	// --- S3 journal archive ---
	if cfg.S3.Bucket != "" && deps.File != nil {
		s3Client, err := s3blob.New(ctx, s3blob.ClientConfig{
			Endpoint:       cfg.S3.Endpoint,
			Region:         cfg.S3.Region,
			Bucket:         cfg.S3.Bucket,
			Prefix:         cfg.S3.Prefix,
			AccessKey:      cfg.S3.AccessKey,
			SecretKey:      cfg.S3.SecretKey,
			UseSSL:         cfg.S3.UseSSL,
			ForcePathStyle: cfg.S3.ForcePathStyle,
		})
		if err != nil {
			return fail("s3", err)
		}
		if err := s3Client.Health(ctx); err != nil {
			logger.Warn("journal archive bucket unreachable", slog.String("error", err.Error()))
		}
		writer := s3blob.NewWriter(s3Client, cfg.S3.PartSizeMB<<20)
		deps.Archiver = journal.NewArchiver(deps.File, writer, runID, cfg.Journal.KeepLocal, logger)
	}

	// --- Notifications ---
	deps.Notifier = notify.NewNotifier(senders(cfg.Notify), cfg.Notify.Events, logger)
	logger.Info("dependencies wired",
		slog.Int("exchange_sessions", len(deps.Pollers)),
		slog.Any("journal_sinks", deps.Journal.Sinks()),
		slog.Any("notify_channels", deps.Notifier.Senders()),
		slog.Bool("redis", deps.RateLimiter != nil),
		slog.Bool("archive", deps.Archiver != nil),
	)

	return deps, cleanup, nil
}

func senders(cfg config.NotifyConfig) []notify.Sender {
	var out []notify.Sender
	if cfg.TelegramToken != "" && cfg.TelegramChatID != "" {
		out = append(out, notify.NewTelegramSender(cfg.TelegramToken, cfg.TelegramChatID))
	}
	if cfg.DiscordWebhookURL != "" {
		out = append(out, notify.NewDiscordSender(cfg.DiscordWebhookURL, cfg.DiscordUsername))
	}
	if cfg.Bell {
		out = append(out, notify.NewBellSender(os.Stderr))
	}
	return out
}
