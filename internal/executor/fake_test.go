package executor

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// fakeExchange quotes fixed prices and records every call.
type fakeExchange struct {
	mu sync.Mutex

	buy, sell decimal.Decimal

	offerErr   map[domain.OrderSide]error
	confirmErr map[int]error // keyed by 1-based confirm call number
	trades     []domain.ExecutedTrade
	tradesErr  error

	offers    []domain.Offer
	confirmed []string
	attempts  int
}

func newFakeExchange(buy, sell string) *fakeExchange {
	return &fakeExchange{
		buy:        decimal.RequireFromString(buy),
		sell:       decimal.RequireFromString(sell),
		offerErr:   map[domain.OrderSide]error{},
		confirmErr: map[int]error{},
	}
}

func (f *fakeExchange) Balance(context.Context) (domain.Balances, error) {
	return domain.Balances{}, nil
}

func (f *fakeExchange) Meta(context.Context) (domain.Meta, error) {
	return domain.Meta{}, nil
}

func (f *fakeExchange) Offer(_ context.Context, amount decimal.Decimal, quote bool, side domain.OrderSide) (domain.Offer, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.offerErr[side]; err != nil {
		return domain.Offer{}, err
	}
	price := f.buy
	if side == domain.OrderSideSell {
		price = f.sell
	}
	o := domain.Offer{
		ID:            fmt.Sprintf("%s-%d", side, len(f.offers)+1),
		Side:          side,
		Price:         price,
		Amount:        amount,
		QuoteCurrency: quote,
		ExpiresAt:     time.Now().Add(10 * time.Second),
	}
	f.offers = append(f.offers, o)
	return o, nil
}

func (f *fakeExchange) ConfirmOffer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.attempts++
	if err := f.confirmErr[f.attempts]; err != nil {
		return err
	}
	f.confirmed = append(f.confirmed, id)
	return nil
}

func (f *fakeExchange) Trades(_ context.Context, side domain.OrderSide) ([]domain.ExecutedTrade, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tradesErr != nil {
		return nil, f.tradesErr
	}
	var out []domain.ExecutedTrade
	for _, t := range f.trades {
		if t.Side == side {
			out = append(out, t)
		}
	}
	return out, nil
}

func (f *fakeExchange) confirms() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.confirmed...)
}

func (f *fakeExchange) offerSides() []domain.OrderSide {
	f.mu.Lock()
	defer f.mu.Unlock()
	sides := make([]domain.OrderSide, len(f.offers))
	for i, o := range f.offers {
		sides[i] = o.Side
	}
	return sides
}

type sentNotification struct {
	event, title, message string
}

type fakeNotifier struct {
	mu   sync.Mutex
	sent []sentNotification
}

func (n *fakeNotifier) Notify(_ context.Context, event, title, message string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.sent = append(n.sent, sentNotification{event, title, message})
	return nil
}

func (n *fakeNotifier) events() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.sent))
	for i, s := range n.sent {
		out[i] = s.event
	}
	return out
}

type fakeRecorder struct {
	cycles []domain.TradeCycle
}

func (r *fakeRecorder) Record(_ context.Context, c domain.TradeCycle) {
	r.cycles = append(r.cycles, c)
}

type fakeLimiter struct {
	allow bool
	err   error
	keys  []string
	limit int
	win   time.Duration
}

func (l *fakeLimiter) Allow(_ context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.keys = append(l.keys, key)
	l.limit = limit
	l.win = window
	return l.allow, l.err
}
