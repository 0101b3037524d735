package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/spreadbot/internal/domain"
	"github.com/alanyoungcy/spreadbot/internal/executor"
)

// Schedule exposes the trading loop's timing.
type Schedule interface {
	Interval() time.Duration
	Ticks() int64
}

// EngineView exposes the cycle engine's run counters.
type EngineView interface {
	LastTrade() time.Time
	Cycles() int64
	Simulating() bool
}

// Rotation exposes the credential rotation position.
type Rotation interface {
	Index() int
	Len() int
}

// BurstView exposes the burst budget.
type BurstView interface {
	Snapshot() executor.BurstBudget
}

// History exposes recorded cycles.
type History interface {
	Recent(limit int) []domain.TradeCycle
	Counts() map[domain.CycleOutcome]int64
	Total() int64
}

// StatusDeps bundles what the status endpoint reads. Sinks may be nil.
type StatusDeps struct {
	RunID     string
	Market    string
	StartedAt time.Time
	Schedule  Schedule
	Engine    EngineView
	Rotation  Rotation
	Burst     BurstView
	History   History
	Sinks     func() []string
}

// Status is the payload of GET /api/status.
type Status struct {
	RunID          string                        `json:"run_id"`
	Market         string                        `json:"market"`
	UptimeSeconds  int64                         `json:"uptime_seconds"`
	IntervalMs     int64                         `json:"interval_ms"`
	Ticks          int64                         `json:"ticks"`
	Cycles         int64                         `json:"cycles"`
	Simulate       bool                          `json:"simulate"`
	Burst          executor.BurstBudget          `json:"burst"`
	RotationIndex  int                           `json:"rotation_index"`
	Credentials    int                           `json:"credentials"`
	LastTrade      *time.Time                    `json:"last_trade,omitempty"`
	Outcomes       map[domain.CycleOutcome]int64 `json:"outcomes"`
	JournalSinks   []string                      `json:"journal_sinks,omitempty"`
	RecordedCycles int64                         `json:"recorded_cycles"`
}

// StatusHandler serves the bot's live state for dashboards.
type StatusHandler struct {
	deps StatusDeps
	now  func() time.Time
}

// NewStatusHandler creates a StatusHandler over deps.
func NewStatusHandler(deps StatusDeps) *StatusHandler {
	return &StatusHandler{deps: deps, now: time.Now}
}

// Snapshot assembles the current status.
func (h *StatusHandler) Snapshot() Status {
	d := h.deps
	s := Status{
		RunID:          d.RunID,
		Market:         d.Market,
		UptimeSeconds:  int64(h.now().Sub(d.StartedAt).Seconds()),
		IntervalMs:     d.Schedule.Interval().Milliseconds(),
		Ticks:          d.Schedule.Ticks(),
		Cycles:         d.Engine.Cycles(),
		Simulate:       d.Engine.Simulating(),
		Burst:          d.Burst.Snapshot(),
		RotationIndex:  d.Rotation.Index(),
		Credentials:    d.Rotation.Len(),
		Outcomes:       d.History.Counts(),
		RecordedCycles: d.History.Total(),
	}
	if last := d.Engine.LastTrade(); !last.IsZero() {
		t := last.UTC()
		s.LastTrade = &t
	}
	if d.Sinks != nil {
		s.JournalSinks = d.Sinks()
	}
	return s
}

// GetStatus responds with the current interval, burst budget, rotation and
// outcome totals.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Snapshot())
}
