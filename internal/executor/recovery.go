package executor

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/logging"
	"github.com/alanyoungcy/spreadbot/internal/notify"
)

// Recovery resolves a cycle whose first leg was confirmed and whose second
// leg was not.
type Recovery struct {
	amount        decimal.Decimal
	quoteCurrency bool
	autoFix       bool
	notifier      Notifier
	logger        *slog.Logger
}

// NewRecovery creates a handler using the trade amount and auto-fix flag
// from cfg.
func NewRecovery(cfg TradeConfig, notifier Notifier, logger *slog.Logger) *Recovery {
	return &Recovery{
		amount:        cfg.Amount,
		quoteCurrency: cfg.QuoteCurrency,
		autoFix:       cfg.FixMissedSecondLeg,
		notifier:      notifier,
		logger:        logger,
	}
}

// Resolve checks the trade history for the missing leg and, when it did not
// settle, either reports the stuck position or re-issues the leg at market.
// A non-nil error wraps domain.ErrUnrecoverablePosition.
func (r *Recovery) Resolve(ctx context.Context, p Poller, missing domain.Offer, log *slog.Logger) (domain.RecoveryResult, error) {
	if log == nil {
		log = r.logger
	}
	log = log.With(slog.String("missing_offer", missing.ID), slog.String("missing_side", string(missing.Side)))

	settled, histErr := r.settled(ctx, p, missing)
	if settled {
		log.Warn("second leg settled despite confirm error")
		return domain.RecoverySettled, nil
	}
	if histErr != nil {
		log.Error("trade history unavailable", slog.String("error", histErr.Error()))
	}

	if !r.autoFix {
		log.Error("unbalanced position requires manual intervention",
			slog.String("amount", r.amount.String()),
			slog.Bool("amount_in_quote", r.quoteCurrency),
		)
		r.notify(ctx, notify.EventManualIntervention, "Manual intervention required",
			fmt.Sprintf("%s leg of %s did not settle on %s; position is unbalanced", missing.Side, r.amount, p.Name()))
		return domain.RecoveryManual, nil
	}

	// Without history the leg may have settled; a corrective trade could
	// double the exposure.
	if histErr != nil {
		return r.fail(ctx, p, missing, fmt.Errorf("settlement unknown: %w", histErr), log)
	}

	fix, err := p.Exchange.Offer(ctx, r.amount, r.quoteCurrency, missing.Side)
	if err != nil {
		return r.fail(ctx, p, missing, fmt.Errorf("corrective %s quote: %w", missing.Side, err), log)
	}
	if err := p.Exchange.ConfirmOffer(ctx, fix.ID); err != nil {
		return r.fail(ctx, p, missing, fmt.Errorf("corrective %s confirm %s: %w", missing.Side, fix.ID, err), log)
	}

	log.Warn("position rebalanced at market",
		slog.String("offer", fix.ID),
		slog.String("price", fix.Price.String()),
		slog.String("expected_price", missing.Price.String()),
	)
	r.notify(ctx, notify.EventPartialFailure, "Position rebalanced",
		fmt.Sprintf("%s leg re-issued on %s at %s (quoted %s)", missing.Side, p.Name(), fix.Price, missing.Price))
	return domain.RecoveryRebalanced, nil
}

// settled reports whether the history of missing.Side contains missing.ID.
func (r *Recovery) settled(ctx context.Context, p Poller, missing domain.Offer) (bool, error) {
	trades, err := p.Exchange.Trades(ctx, missing.Side)
	if err != nil {
		return false, fmt.Errorf("executor: trades %s: %w", missing.Side, err)
	}
	for _, t := range trades {
		if t.OfferID == missing.ID {
			return true, nil
		}
	}
	return false, nil
}

func (r *Recovery) fail(ctx context.Context, p Poller, missing domain.Offer, cause error, log *slog.Logger) (domain.RecoveryResult, error) {
	err := fmt.Errorf("executor: recover %s leg on %s: %w: %w", missing.Side, p.Name(), domain.ErrUnrecoverablePosition, cause)
	logging.Fatal(ctx, log, "cannot rebalance position", slog.String("error", err.Error()))
	r.notify(ctx, notify.EventFatal, "Bot stopped: unrecoverable position", err.Error())
	return domain.RecoveryFailed, err
}

func (r *Recovery) notify(ctx context.Context, event, title, msg string) {
	if r.notifier == nil {
		return
	}
	if err := r.notifier.Notify(ctx, event, title, msg); err != nil {
		r.logger.Warn("notification failed", slog.String("event", event), slog.String("error", err.Error()))
	}
}
