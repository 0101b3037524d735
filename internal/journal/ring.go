package journal

import (
	"context"
	"sync"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// Ring keeps the most recent cycles and per-outcome totals in memory for
// the status API. Totals cover the whole run; the window covers the last
// size cycles.
type Ring struct {
	mu     sync.RWMutex
	buf    []domain.TradeCycle
	next   int
	full   bool
	counts map[domain.CycleOutcome]int64
	total  int64
}

// NewRing creates a ring holding up to size cycles.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = 1
	}
	return &Ring{
		buf:    make([]domain.TradeCycle, size),
		counts: make(map[domain.CycleOutcome]int64),
	}
}

// Name identifies the sink in logs.
func (r *Ring) Name() string { return "memory" }

// Record stores cycle, evicting the oldest entry when full.
func (r *Ring) Record(_ context.Context, cycle domain.TradeCycle) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = cycle
	r.next = (r.next + 1) % len(r.buf)
	if r.next == 0 {
		r.full = true
	}
	r.counts[cycle.Outcome]++
	r.total++
	return nil
}

// Recent returns up to limit cycles, newest first. limit <= 0 means all.
func (r *Ring) Recent(limit int) []domain.TradeCycle {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := r.next
	if r.full {
		n = len(r.buf)
	}
	if limit <= 0 || limit > n {
		limit = n
	}
	out := make([]domain.TradeCycle, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.next - i + len(r.buf)) % len(r.buf)
		out = append(out, r.buf[idx])
	}
	return out
}

// Counts returns run totals by outcome.
func (r *Ring) Counts() map[domain.CycleOutcome]int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[domain.CycleOutcome]int64, len(r.counts))
	for k, v := range r.counts {
		out[k] = v
	}
	return out
}

// Total returns the number of cycles recorded this run.
func (r *Ring) Total() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.total
}
