package executor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/logging"
	"github.com/alanyoungcy/spreadbot/internal/notify"
)

var hundred = decimal.NewFromInt(100)

// Notifier delivers operator alerts. *notify.Notifier satisfies it.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Recorder receives every finalized cycle. *journal.Journal satisfies it.
type Recorder interface {
	Record(ctx context.Context, cycle domain.TradeCycle)
}

// TradeConfig holds the per-run trading parameters.
type TradeConfig struct {
	Amount             decimal.Decimal
	QuoteCurrency      bool
	InitialBuy         bool
	MinProfitPct       decimal.Decimal
	Simulate           bool
	FixMissedSecondLeg bool
}

// Engine runs one fetch, evaluate, execute cycle at a time. It holds the
// last-trade timestamp and the cycle sequence for the run.
type Engine struct {
	cfg      TradeConfig
	runID    string
	recovery *Recovery
	notifier Notifier
	recorder Recorder
	logger   *slog.Logger
	now      func() time.Time

	guard      domain.RateLimiter
	guardLimit domain.RateLimit

	seq atomic.Int64

	mu        sync.Mutex
	lastTrade time.Time
}

// NewEngine creates an Engine. notifier and recorder may be nil.
func NewEngine(cfg TradeConfig, runID string, notifier Notifier, recorder Recorder, logger *slog.Logger) *Engine {
	logger = logger.With(slog.String("component", "engine"))
	return &Engine{
		cfg:      cfg,
		runID:    runID,
		recovery: NewRecovery(cfg, notifier, logger),
		notifier: notifier,
		recorder: recorder,
		logger:   logger,
		now:      time.Now,
	}
}

// SetQuotaGuard makes every quote request reserve a slot from rl first,
// keyed per credential and sized by the advertised limit.
func (e *Engine) SetQuotaGuard(rl domain.RateLimiter, limit domain.RateLimit) {
	e.guard = rl
	e.guardLimit = limit
}

// LastTrade returns when the last cycle executed both legs, or the zero time.
func (e *Engine) LastTrade() time.Time {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.lastTrade
}

// Cycles returns the number of cycles started this run.
func (e *Engine) Cycles() int64 {
	return e.seq.Load()
}

// Simulating reports whether confirmations are suppressed.
func (e *Engine) Simulating() bool {
	return e.cfg.Simulate
}

// Profit returns (sell/buy - 1) * 100.
func Profit(buy, sell decimal.Decimal) decimal.Decimal {
	return sell.Div(buy).Sub(decimal.NewFromInt(1)).Mul(hundred)
}

// RunCycle runs one cycle with poller p. The returned error is non-nil only
// for domain.ErrUnrecoverablePosition; every other failure is contained in
// the cycle's outcome.
func (e *Engine) RunCycle(ctx context.Context, p Poller, bursting bool) (domain.TradeCycle, error) {
	cycle := domain.TradeCycle{
		ID:          uuid.New().String(),
		RunID:       e.runID,
		Seq:         e.seq.Add(1),
		StartedAt:   e.now().UTC(),
		Poller:      p.Name(),
		PollerIndex: p.Index,
		Primary:     p.Primary(),
		Bursting:    bursting,
	}
	log := e.logger.With(
		slog.Int64("seq", cycle.Seq),
		slog.String("cycle_id", cycle.ID),
		slog.String("poller", cycle.Poller),
		slog.Bool("bursting", bursting),
	)

	err := e.run(ctx, p, &cycle, log)
	e.finish(ctx, &cycle, log)
	return cycle, err
}

func (e *Engine) run(ctx context.Context, p Poller, cycle *domain.TradeCycle, log *slog.Logger) error {
	buy, err := e.quote(ctx, p, domain.OrderSideBuy)
	if err != nil {
		cycle.Outcome = domain.OutcomeFetchError
		cycle.Error = err.Error()
		return nil
	}
	cycle.Buy = &buy

	sell, err := e.quote(ctx, p, domain.OrderSideSell)
	if err != nil {
		cycle.Outcome = domain.OutcomeFetchError
		cycle.Error = err.Error()
		return nil
	}
	cycle.Sell = &sell

	cycle.ProfitPct = Profit(buy.Price, sell.Price)
	if cycle.ProfitPct.LessThan(e.cfg.MinProfitPct) {
		cycle.Outcome = domain.OutcomeNoOp
		return nil
	}
	if !p.Primary() {
		cycle.Outcome = domain.OutcomeReverted
		return nil
	}

	if e.cfg.Simulate {
		cycle.Simulated = true
		cycle.Outcome = domain.OutcomeExecuted
		e.traded(ctx, cycle)
		return nil
	}

	first, second := legOrder(buy, sell, e.cfg.InitialBuy)
	if err := p.Exchange.ConfirmOffer(ctx, first.ID); err != nil {
		cycle.Outcome = domain.OutcomeFetchError
		cycle.Error = fmt.Sprintf("leg 1 (%s) not confirmed: %v", first.Side, err)
		return nil
	}
	if err := p.Exchange.ConfirmOffer(ctx, second.ID); err != nil {
		cycle.Outcome = domain.OutcomePartialFailure
		cycle.Error = fmt.Sprintf("leg 2 (%s) not confirmed: %v", second.Side, err)
		log.Error("second leg failed after first leg confirmed",
			slog.String("first_offer", first.ID),
			slog.String("second_offer", second.ID),
			slog.String("error", err.Error()),
		)

		res, rerr := e.recovery.Resolve(ctx, p, second, log)
		cycle.Recovery = res
		if rerr != nil {
			cycle.Error = rerr.Error()
			return rerr
		}
		if res == domain.RecoverySettled {
			cycle.Outcome = domain.OutcomeExecuted
			e.traded(ctx, cycle)
		}
		return nil
	}

	cycle.Outcome = domain.OutcomeExecuted
	e.traded(ctx, cycle)
	return nil
}

// quote requests one offer, reserving quota first when a guard is set.
func (e *Engine) quote(ctx context.Context, p Poller, side domain.OrderSide) (domain.Offer, error) {
	if e.guard != nil {
		window := time.Duration(e.guardLimit.WindowMs) * time.Millisecond
		ok, err := e.guard.Allow(ctx, "offer:"+p.Name(), int(e.guardLimit.MaxRequests), window)
		if err != nil {
			return domain.Offer{}, fmt.Errorf("executor: quota guard: %w", err)
		}
		if !ok {
			return domain.Offer{}, fmt.Errorf("executor: %s quote for %s: %w", side, p.Name(), domain.ErrRateLimited)
		}
	}
	offer, err := p.Exchange.Offer(ctx, e.cfg.Amount, e.cfg.QuoteCurrency, side)
	if err != nil {
		return domain.Offer{}, fmt.Errorf("executor: %s quote: %w", side, err)
	}
	if !offer.Price.IsPositive() {
		return domain.Offer{}, fmt.Errorf("executor: %s quote %s has non-positive price %s", side, offer.ID, offer.Price)
	}
	return offer, nil
}

// traded records a completed two-leg trade.
func (e *Engine) traded(ctx context.Context, cycle *domain.TradeCycle) {
	e.mu.Lock()
	e.lastTrade = e.now().UTC()
	e.mu.Unlock()

	if e.notifier == nil {
		return
	}
	title := "Trade executed"
	if cycle.Simulated {
		title = "Trade executed (simulated)"
	}
	msg := fmt.Sprintf("seq %d: bought at %s, sold at %s, profit %s%%",
		cycle.Seq, cycle.Buy.Price, cycle.Sell.Price, cycle.ProfitPct.StringFixed(4))
	if err := e.notifier.Notify(ctx, notify.EventTradeExecuted, title, msg); err != nil {
		e.logger.Warn("trade notification failed", slog.String("error", err.Error()))
	}
}

// finish stamps the cycle, logs its outcome and hands it to the recorder.
func (e *Engine) finish(ctx context.Context, cycle *domain.TradeCycle, log *slog.Logger) {
	cycle.EndedAt = e.now().UTC()

	attrs := []slog.Attr{
		slog.String("outcome", string(cycle.Outcome)),
		slog.Duration("elapsed", cycle.Duration()),
	}
	if cycle.Buy != nil && cycle.Sell != nil {
		attrs = append(attrs,
			slog.String("buy", cycle.Buy.Price.String()),
			slog.String("sell", cycle.Sell.Price.String()),
			slog.String("profit_pct", cycle.ProfitPct.StringFixed(4)),
		)
	}
	if cycle.Recovery != domain.RecoveryNone {
		attrs = append(attrs, slog.String("recovery", string(cycle.Recovery)))
	}
	if cycle.Error != "" {
		attrs = append(attrs, slog.String("error", cycle.Error))
	}

	level := slog.LevelInfo
	switch cycle.Outcome {
	case domain.OutcomeFetchError:
		level = slog.LevelWarn
	case domain.OutcomePartialFailure:
		level = slog.LevelError
	}
	if cycle.Recovery == domain.RecoveryFailed {
		level = logging.LevelFatal
	}
	log.LogAttrs(ctx, level, "cycle finished", attrs...)

	if e.recorder != nil {
		e.recorder.Record(context.WithoutCancel(ctx), *cycle)
	}
}

// legOrder returns the offers in confirmation order.
func legOrder(buy, sell domain.Offer, initialBuy bool) (first, second domain.Offer) {
	if initialBuy {
		return buy, sell
	}
	return sell, buy
}

// IsFatal reports whether err must stop the process.
func IsFatal(err error) bool {
	return errors.Is(err, domain.ErrUnrecoverablePosition)
}
