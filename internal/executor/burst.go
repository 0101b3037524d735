package executor

import "sync"

// BurstBudget is a point-in-time copy of the burst counters.
type BurstBudget struct {
	Ceiling   int `json:"ceiling"`
	Remaining int `json:"remaining"`
}

// Burst tracks how many bonus cycles may run back-to-back outside the normal
// cadence. Invariant: 0 <= remaining <= ceiling.
type Burst struct {
	mu        sync.Mutex
	ceiling   int
	remaining int
}

// NewBurst creates a controller with the given ceiling and an empty balance.
// A negative ceiling is treated as zero.
func NewBurst(ceiling int) *Burst {
	if ceiling < 0 {
		ceiling = 0
	}
	return &Burst{ceiling: ceiling}
}

// Earn credits one unit after a quiet, non-bursting cycle.
func (b *Burst) Earn() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining < b.ceiling {
		b.remaining++
	}
}

// Take spends one unit if any is left and reports whether it did.
func (b *Burst) Take() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.remaining == 0 {
		return false
	}
	b.remaining--
	return true
}

// Remaining returns the spendable balance.
func (b *Burst) Remaining() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.remaining
}

// Ceiling returns the fixed maximum balance.
func (b *Burst) Ceiling() int {
	return b.ceiling
}

// Snapshot returns both counters.
func (b *Burst) Snapshot() BurstBudget {
	b.mu.Lock()
	defer b.mu.Unlock()
	return BurstBudget{Ceiling: b.ceiling, Remaining: b.remaining}
}
