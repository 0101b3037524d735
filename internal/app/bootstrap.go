package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/executor"
	"github.com/alanyoungcy/spreadbot/internal/ratelimit"
)

// BootstrapConfig is what startup checks need from the configuration.
type BootstrapConfig struct {
	Amount       decimal.Decimal
	AmountAsset  string
	Interval     time.Duration // zero adopts the calibrated minimum
	BurstEnabled bool
}

// Boot is the outcome of the startup checks.
type Boot struct {
	Balances     domain.Balances // primary's balances
	Meta         domain.Meta
	Calibration  ratelimit.Calibration
	BurstCeiling int
}

// Bootstrap verifies every credential with a balance call, checks that the
// primary can afford the trade amount, fetches the market metadata and
// calibrates the polling interval against the offer endpoint's rate limit.
// Any failure is a startup error.
func Bootstrap(ctx context.Context, cfg BootstrapConfig, pollers []executor.Poller, logger *slog.Logger) (Boot, error) {
	if len(pollers) == 0 {
		return Boot{}, fmt.Errorf("app: bootstrap: no credentials configured")
	}
	if !cfg.Amount.IsPositive() {
		return Boot{}, fmt.Errorf("app: bootstrap: amount %s: %w", cfg.Amount, domain.ErrInvalidAmount)
	}

	var boot Boot
	for _, p := range pollers {
		bal, err := p.Exchange.Balance(ctx)
		if err != nil {
			return Boot{}, fmt.Errorf("app: bootstrap: credential %s: %w", p.Name(), err)
		}
		if p.Primary() {
			boot.Balances = bal
		}
		logger.InfoContext(ctx, "credential verified",
			slog.String("poller", p.Name()),
			slog.Bool("primary", p.Primary()),
		)
	}

	primary := pollers[0].Exchange
	meta, err := primary.Meta(ctx)
	if err != nil {
		return Boot{}, fmt.Errorf("app: bootstrap: meta: %w", err)
	}
	boot.Meta = meta

	if meta.BaseAsset != "" && cfg.AmountAsset != meta.BaseAsset && cfg.AmountAsset != meta.QuoteAsset {
		return Boot{}, fmt.Errorf("app: bootstrap: amount asset %s not in market %s/%s: %w",
			cfg.AmountAsset, meta.BaseAsset, meta.QuoteAsset, domain.ErrInvalidAmount)
	}

	available := boot.Balances.Available(cfg.AmountAsset)
	if available.LessThan(cfg.Amount) {
		return Boot{}, fmt.Errorf("app: bootstrap: %s balance %s below trade amount %s: %w",
			cfg.AmountAsset, available, cfg.Amount, domain.ErrInsufficientBalance)
	}

	limit, ok := meta.Limit(domain.EndpointOffer)
	if !ok {
		return Boot{}, fmt.Errorf("app: bootstrap: no rate limit advertised for %q: %w",
			domain.EndpointOffer, domain.ErrInvalidRateLimit)
	}
	cal, err := ratelimit.Calibrate(limit, cfg.Interval)
	if err != nil {
		return Boot{}, fmt.Errorf("app: bootstrap: %w", err)
	}
	boot.Calibration = cal
	if cfg.BurstEnabled {
		boot.BurstCeiling = cal.BurstMax
	}

	logger.InfoContext(ctx, "calibrated",
		slog.Duration("min_interval", cal.MinInterval),
		slog.Duration("interval", cal.Interval),
		slog.Int("burst_ceiling", boot.BurstCeiling),
		slog.Bool("burst_enabled", cfg.BurstEnabled),
		slog.String("available", available.String()),
		slog.String("asset", cfg.AmountAsset),
		slog.Int("credentials", len(pollers)),
	)
	return boot, nil
}
