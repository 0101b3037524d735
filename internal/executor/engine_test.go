package executor

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/notify"
)

func testConfig() TradeConfig {
	return TradeConfig{
		Amount:       decimal.NewFromInt(10),
		InitialBuy:   true,
		MinProfitPct: decimal.RequireFromString("0.5"),
	}
}

func primaryPoller(ex domain.Exchange) Poller {
	return Poller{Index: 0, Credential: domain.Credential{Name: "primary"}, Exchange: ex}
}

func helperPoller(ex domain.Exchange) Poller {
	return Poller{Index: 1, Credential: domain.Credential{Name: "helper-1"}, Exchange: ex}
}

func TestProfitExact(t *testing.T) {
	got := Profit(decimal.NewFromInt(100), decimal.NewFromInt(101))
	if !got.Equal(decimal.NewFromInt(1)) {
		t.Errorf("Profit(100, 101) = %s, want exactly 1", got)
	}
	if got := Profit(decimal.NewFromInt(101), decimal.NewFromInt(100)); !got.IsNegative() {
		t.Errorf("Profit(101, 100) = %s, want negative", got)
	}
}

func TestRunCycleOutcomes(t *testing.T) {
	tests := []struct {
		name      string
		buy, sell string
		helper    bool
		want      domain.CycleOutcome
		confirms  int
	}{
		{"below threshold", "100", "100.4", false, domain.OutcomeNoOp, 0},
		{"at threshold executes", "100", "100.5", false, domain.OutcomeExecuted, 2},
		{"inverted spread", "101", "100", false, domain.OutcomeNoOp, 0},
		{"helper reverts", "100", "102", true, domain.OutcomeReverted, 0},
		{"helper no profit", "100", "100", true, domain.OutcomeNoOp, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ex := newFakeExchange(tt.buy, tt.sell)
			e := NewEngine(testConfig(), "run", nil, nil, testLogger())
			p := primaryPoller(ex)
			if tt.helper {
				p = helperPoller(ex)
			}
			c, err := e.RunCycle(context.Background(), p, false)
			if err != nil {
				t.Fatalf("RunCycle: %v", err)
			}
			if c.Outcome != tt.want {
				t.Errorf("outcome = %s, want %s", c.Outcome, tt.want)
			}
			if n := len(ex.confirms()); n != tt.confirms {
				t.Errorf("confirms = %d, want %d", n, tt.confirms)
			}
		})
	}
}

func TestRunCycleQuotesBuyThenSell(t *testing.T) {
	ex := newFakeExchange("100", "100")
	e := NewEngine(testConfig(), "run", nil, nil, testLogger())
	if _, err := e.RunCycle(context.Background(), primaryPoller(ex), false); err != nil {
		t.Fatal(err)
	}
	want := []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell}
	if got := ex.offerSides(); !reflect.DeepEqual(got, want) {
		t.Errorf("quote order = %v, want %v", got, want)
	}
}

func TestRunCycleLegOrder(t *testing.T) {
	for _, initialBuy := range []bool{true, false} {
		ex := newFakeExchange("100", "102")
		cfg := testConfig()
		cfg.InitialBuy = initialBuy
		e := NewEngine(cfg, "run", nil, nil, testLogger())
		if _, err := e.RunCycle(context.Background(), primaryPoller(ex), false); err != nil {
			t.Fatal(err)
		}
		want := []string{"buy-1", "sell-2"}
		if !initialBuy {
			want = []string{"sell-2", "buy-1"}
		}
		if got := ex.confirms(); !reflect.DeepEqual(got, want) {
			t.Errorf("initialBuy=%v: confirms = %v, want %v", initialBuy, got, want)
		}
	}
}

func TestRunCycleExecutedSideEffects(t *testing.T) {
	ex := newFakeExchange("100", "101")
	n := &fakeNotifier{}
	rec := &fakeRecorder{}
	e := NewEngine(testConfig(), "run-1", n, rec, testLogger())
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	c, err := e.RunCycle(context.Background(), primaryPoller(ex), false)
	if err != nil {
		t.Fatal(err)
	}
	if !c.Traded() {
		t.Fatalf("outcome = %s, want executed", c.Outcome)
	}
	if !c.ProfitPct.Equal(decimal.NewFromInt(1)) {
		t.Errorf("profit = %s, want 1", c.ProfitPct)
	}
	if !e.LastTrade().Equal(now) {
		t.Errorf("LastTrade = %v, want %v", e.LastTrade(), now)
	}
	if got := n.events(); !reflect.DeepEqual(got, []string{notify.EventTradeExecuted}) {
		t.Errorf("notifications = %v", got)
	}
	if len(rec.cycles) != 1 || rec.cycles[0].ID != c.ID || rec.cycles[0].RunID != "run-1" {
		t.Errorf("recorder got %+v", rec.cycles)
	}
}

func TestRunCycleSequence(t *testing.T) {
	ex := newFakeExchange("100", "100")
	e := NewEngine(testConfig(), "run", nil, nil, testLogger())
	for want := int64(1); want <= 3; want++ {
		c, _ := e.RunCycle(context.Background(), primaryPoller(ex), false)
		if c.Seq != want {
			t.Errorf("seq = %d, want %d", c.Seq, want)
		}
	}
	if e.Cycles() != 3 {
		t.Errorf("Cycles = %d, want 3", e.Cycles())
	}
}

func TestRunCycleSimulate(t *testing.T) {
	ex := newFakeExchange("100", "105")
	cfg := testConfig()
	cfg.Simulate = true
	e := NewEngine(cfg, "run", nil, nil, testLogger())
	c, err := e.RunCycle(context.Background(), primaryPoller(ex), false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Outcome != domain.OutcomeExecuted || !c.Simulated {
		t.Errorf("outcome = %s simulated = %v", c.Outcome, c.Simulated)
	}
	if len(ex.confirms()) != 0 {
		t.Errorf("simulation confirmed offers: %v", ex.confirms())
	}
	if e.LastTrade().IsZero() {
		t.Error("simulated trade did not record last-trade time")
	}
}

func TestRunCycleFetchErrors(t *testing.T) {
	boom := errors.New("connection reset")
	for _, side := range []domain.OrderSide{domain.OrderSideBuy, domain.OrderSideSell} {
		ex := newFakeExchange("100", "110")
		ex.offerErr[side] = boom
		e := NewEngine(testConfig(), "run", nil, nil, testLogger())
		c, err := e.RunCycle(context.Background(), primaryPoller(ex), false)
		if err != nil {
			t.Fatalf("%s: RunCycle returned %v", side, err)
		}
		if c.Outcome != domain.OutcomeFetchError || c.Error == "" {
			t.Errorf("%s: outcome = %s error = %q", side, c.Outcome, c.Error)
		}
		if len(ex.confirms()) != 0 {
			t.Errorf("%s: confirmed after fetch error", side)
		}
	}
}

func TestRunCycleFirstLegFails(t *testing.T) {
	ex := newFakeExchange("100", "110")
	ex.confirmErr[1] = errors.New("offer expired")
	e := NewEngine(testConfig(), "run", nil, nil, testLogger())
	c, err := e.RunCycle(context.Background(), primaryPoller(ex), false)
	if err != nil {
		t.Fatal(err)
	}
	if c.Outcome != domain.OutcomeFetchError {
		t.Errorf("outcome = %s, want fetch-error", c.Outcome)
	}
	if ex.attempts != 1 {
		t.Errorf("confirm attempts = %d, want 1", ex.attempts)
	}
	if !e.LastTrade().IsZero() {
		t.Error("last trade recorded after leg 1 failure")
	}
}

func TestRunCycleQuotaGuard(t *testing.T) {
	ex := newFakeExchange("100", "110")
	lim := &fakeLimiter{allow: false}
	e := NewEngine(testConfig(), "run", nil, nil, testLogger())
	e.SetQuotaGuard(lim, domain.RateLimit{Endpoint: domain.EndpointOffer, WindowMs: 1000, MaxRequests: 10})

	c, _ := e.RunCycle(context.Background(), helperPoller(ex), false)
	if c.Outcome != domain.OutcomeFetchError {
		t.Fatalf("outcome = %s, want fetch-error", c.Outcome)
	}
	if len(ex.offerSides()) != 0 {
		t.Errorf("exchange quoted despite refusal")
	}
	if len(lim.keys) != 1 || lim.keys[0] != "offer:helper-1" {
		t.Errorf("limiter keys = %v", lim.keys)
	}
	if lim.limit != 10 || lim.win != time.Second {
		t.Errorf("limiter sized %d per %v", lim.limit, lim.win)
	}

	lim.allow = true
	c, _ = e.RunCycle(context.Background(), helperPoller(ex), false)
	if c.Outcome != domain.OutcomeReverted {
		t.Errorf("outcome = %s, want reverted", c.Outcome)
	}
	if len(lim.keys) != 3 {
		t.Errorf("limiter calls = %d, want 3", len(lim.keys))
	}
}

func TestRunCycleRejectsZeroPrice(t *testing.T) {
	ex := newFakeExchange("0", "1")
	e := NewEngine(testConfig(), "run", nil, nil, testLogger())
	c, _ := e.RunCycle(context.Background(), primaryPoller(ex), false)
	if c.Outcome != domain.OutcomeFetchError {
		t.Errorf("outcome = %s, want fetch-error", c.Outcome)
	}
}

func TestRunCycleBurstingFlag(t *testing.T) {
	ex := newFakeExchange("100", "100")
	e := NewEngine(testConfig(), "run", nil, nil, testLogger())
	c, _ := e.RunCycle(context.Background(), primaryPoller(ex), true)
	if !c.Bursting {
		t.Error("Bursting flag not carried on cycle")
	}
}
