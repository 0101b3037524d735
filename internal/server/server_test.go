package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/executor"
	"github.com/alanyoungcy/spreadbot/internal/journal"
	"github.com/alanyoungcy/spreadbot/internal/server/handler"
	"github.com/alanyoungcy/spreadbot/internal/server/ws"
)

type fakeSchedule struct{}

func (fakeSchedule) Interval() time.Duration { return 1500 * time.Millisecond }
func (fakeSchedule) Ticks() int64            { return 7 }

type fakeEngine struct{ last time.Time }

func (f fakeEngine) LastTrade() time.Time { return f.last }
func (fakeEngine) Cycles() int64          { return 9 }
func (fakeEngine) Simulating() bool       { return true }

type fakeLimiter struct {
	mu    sync.Mutex
	calls int
	allow bool
	err   error
}

func (l *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.allow, l.err
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

type fixture struct {
	ring   *journal.Ring
	burst  *executor.Burst
	hub    *ws.Hub
	status *handler.StatusHandler
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	rot, err := executor.NewRotator([]executor.Poller{
		{Credential: domain.Credential{Name: "primary"}},
		{Credential: domain.Credential{Name: "helper-1"}},
	})
	if err != nil {
		t.Fatalf("NewRotator: %v", err)
	}
	rot.Advance()

	ring := journal.NewRing(10)
	burst := executor.NewBurst(3)
	burst.Earn()

	status := handler.NewStatusHandler(handler.StatusDeps{
		RunID:     "run-1",
		Market:    "BTC-EUR",
		StartedAt: time.Now(),
		Schedule:  fakeSchedule{},
		Engine:    fakeEngine{last: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)},
		Rotation:  rot,
		Burst:     burst,
		History:   ring,
		Sinks:     func() []string { return []string{"memory", "websocket"} },
	})
	hub := ws.NewHub(ws.Config{Status: func() any { return status.Snapshot() }}, discardLogger())
	return fixture{ring: ring, burst: burst, hub: hub, status: status}
}

func (f fixture) server(cfg Config, limiter *fakeLimiter) *Server {
	handlers := Handlers{
		Health: handler.NewHealthHandler("run-1", time.Now()),
		Status: f.status,
		Cycles: handler.NewCycleHandler(f.ring),
	}
	if limiter == nil {
		return NewServer(cfg, handlers, f.hub, nil, discardLogger())
	}
	return NewServer(cfg, handlers, f.hub, limiter, discardLogger())
}

func cycle(seq int64, outcome domain.CycleOutcome) domain.TradeCycle {
	return domain.TradeCycle{
		ID:        fmt.Sprintf("c%d", seq),
		Seq:       seq,
		Outcome:   outcome,
		ProfitPct: decimal.RequireFromString("0.5"),
	}
}

func get(t *testing.T, h http.Handler, target string, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthIsPublic(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{APIKey: "secret"}, nil).Handler()

	rec := get(t, h, "/api/health", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("health status = %d", rec.Code)
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Errorf("missing X-Request-ID header")
	}
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["status"] != "ok" || body["run_id"] != "run-1" {
		t.Errorf("body = %v", body)
	}
}

func TestAuthGuardsStatus(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{APIKey: "secret"}, nil).Handler()

	tests := []struct {
		name string
		hdr  map[string]string
		url  string
		want int
	}{
		{"missing", nil, "/api/status", http.StatusUnauthorized},
		{"wrong bearer", map[string]string{"Authorization": "Bearer nope"}, "/api/status", http.StatusUnauthorized},
		{"bearer", map[string]string{"Authorization": "Bearer secret"}, "/api/status", http.StatusOK},
		{"api key header", map[string]string{"X-API-Key": "secret"}, "/api/status", http.StatusOK},
		{"query token", nil, "/api/status?token=secret", http.StatusOK},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if rec := get(t, h, tc.url, tc.hdr); rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestStatusPayload(t *testing.T) {
	f := newFixture(t)
	f.ring.Record(context.Background(), cycle(1, domain.OutcomeNoOp))
	f.ring.Record(context.Background(), cycle(2, domain.OutcomeNoOp))
	f.ring.Record(context.Background(), cycle(3, domain.OutcomeExecuted))
	h := f.server(Config{}, nil).Handler()

	rec := get(t, h, "/api/status", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var got handler.Status
	if err := json.Unmarshal(rec.Body.Bytes(), &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.IntervalMs != 1500 || got.Ticks != 7 || got.Cycles != 9 || !got.Simulate {
		t.Errorf("schedule fields = %+v", got)
	}
	if got.Burst.Ceiling != 3 || got.Burst.Remaining != 1 {
		t.Errorf("burst = %+v", got.Burst)
	}
	if got.RotationIndex != 1 || got.Credentials != 2 {
		t.Errorf("rotation = %d/%d", got.RotationIndex, got.Credentials)
	}
	if got.LastTrade == nil || !got.LastTrade.Equal(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)) {
		t.Errorf("last trade = %v", got.LastTrade)
	}
	if got.Outcomes[domain.OutcomeNoOp] != 2 || got.Outcomes[domain.OutcomeExecuted] != 1 {
		t.Errorf("outcomes = %v", got.Outcomes)
	}
	if got.RecordedCycles != 3 || len(got.JournalSinks) != 2 {
		t.Errorf("recorded = %d sinks = %v", got.RecordedCycles, got.JournalSinks)
	}
}

func TestRecentCycles(t *testing.T) {
	f := newFixture(t)
	for i := int64(1); i <= 4; i++ {
		f.ring.Record(context.Background(), cycle(i, domain.OutcomeNoOp))
	}
	h := f.server(Config{}, nil).Handler()

	rec := get(t, h, "/api/cycles/recent?limit=2", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Cycles []domain.TradeCycle `json:"cycles"`
		Count  int                 `json:"count"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Count != 2 || body.Cycles[0].Seq != 4 || body.Cycles[1].Seq != 3 {
		t.Errorf("recent = %+v", body)
	}

	if rec := get(t, h, "/api/cycles/recent?limit=abc", nil); rec.Code != http.StatusBadRequest {
		t.Errorf("bad limit status = %d", rec.Code)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{}, nil).Handler()
	req := httptest.NewRequest(http.MethodPost, "/api/status", strings.NewReader("{}"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("POST status = %d", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	f := newFixture(t)
	h := f.server(Config{CORSOrigins: []string{"https://dash.example"}}, nil).Handler()

	req := httptest.NewRequest(http.MethodOptions, "/api/status", nil)
	req.Header.Set("Origin", "https://dash.example")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight status = %d", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://dash.example" {
		t.Errorf("allow origin = %q", got)
	}

	rec = get(t, h, "/api/health", map[string]string{"Origin": "https://evil.example"})
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unexpected allow origin %q", got)
	}
}

func TestRateLimit(t *testing.T) {
	f := newFixture(t)
	cfg := Config{RateLimit: 10, RateLimitWindow: time.Second}

	denied := &fakeLimiter{allow: false}
	rec := get(t, f.server(cfg, denied).Handler(), "/api/status", nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Errorf("denied status = %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") != "1" {
		t.Errorf("Retry-After = %q", rec.Header().Get("Retry-After"))
	}

	broken := &fakeLimiter{err: errors.New("redis down")}
	if rec := get(t, f.server(cfg, broken).Handler(), "/api/status", nil); rec.Code != http.StatusOK {
		t.Errorf("limiter error should fail open, got %d", rec.Code)
	}
	if broken.calls != 1 {
		t.Errorf("limiter calls = %d", broken.calls)
	}
}

func TestWebsocketStreamsCycles(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go f.hub.Run(ctx)

	srv := httptest.NewServer(f.server(Config{APIKey: "secret"}, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?token=secret"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var env struct {
		Type    string          `json:"type"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read status: %v", err)
	}
	if env.Type != "status" {
		t.Fatalf("first frame type = %q", env.Type)
	}

	if err := f.hub.Record(ctx, cycle(5, domain.OutcomeExecuted)); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := conn.ReadJSON(&env); err != nil {
		t.Fatalf("read cycle: %v", err)
	}
	var got domain.TradeCycle
	if err := json.Unmarshal(env.Payload, &got); err != nil {
		t.Fatalf("decode cycle: %v", err)
	}
	if env.Type != "cycle" || got.Seq != 5 || got.Outcome != domain.OutcomeExecuted {
		t.Errorf("frame = %s %+v", env.Type, got)
	}
}

func TestWebsocketRequiresToken(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.server(Config{APIKey: "secret"}, nil).Handler())
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected handshake failure")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Errorf("handshake response = %v", resp)
	}
}

func TestServerRunStopsOnCancel(t *testing.T) {
	f := newFixture(t)
	s := f.server(Config{Addr: "127.0.0.1:0"}, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx, time.Second) }()

	time.Sleep(50 * time.Millisecond)
	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
