package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// CycleOutcome tags how a trade cycle ended.
type CycleOutcome string

const (
	OutcomeNoOp           CycleOutcome = "no-op"
	OutcomeReverted       CycleOutcome = "profitable-reverted"
	OutcomeExecuted       CycleOutcome = "executed-success"
	OutcomePartialFailure CycleOutcome = "executed-partial-failure"
	OutcomeFetchError     CycleOutcome = "fetch-error"
)

// RecoveryResult describes how a partial failure was resolved.
type RecoveryResult string

const (
	RecoveryNone       RecoveryResult = ""
	RecoverySettled    RecoveryResult = "settled"
	RecoveryManual     RecoveryResult = "manual-intervention"
	RecoveryRebalanced RecoveryResult = "rebalanced"
	RecoveryFailed     RecoveryResult = "failed"
)

// TradeCycle is one fetch/evaluate/execute attempt.
type TradeCycle struct {
	ID          string          `json:"id"`
	RunID       string          `json:"run_id"`
	Seq         int64           `json:"seq"`
	StartedAt   time.Time       `json:"started_at"`
	EndedAt     time.Time       `json:"ended_at"`
	Buy         *Offer          `json:"buy,omitempty"`
	Sell        *Offer          `json:"sell,omitempty"`
	ProfitPct   decimal.Decimal `json:"profit_pct"`
	Poller      string          `json:"poller"`
	PollerIndex int             `json:"poller_index"`
	Primary     bool            `json:"primary"`
	Bursting    bool            `json:"bursting"`
	Simulated   bool            `json:"simulated,omitempty"`
	Outcome     CycleOutcome    `json:"outcome"`
	Recovery    RecoveryResult  `json:"recovery,omitempty"`
	Error       string          `json:"error,omitempty"`
}

// Duration returns the cycle's wall time.
func (c TradeCycle) Duration() time.Duration {
	return c.EndedAt.Sub(c.StartedAt)
}

// Traded reports whether both legs of the arbitrage settled. A partial
// failure whose second leg turned out to have settled is rewritten to
// OutcomeExecuted by recovery, so it counts here too.
func (c TradeCycle) Traded() bool {
	return c.Outcome == OutcomeExecuted
}
