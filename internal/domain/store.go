package domain

import "context"

// CycleStore is a write-only journal of finalized trade cycles. It is never
// read back to restore engine state.
type CycleStore interface {
	Record(ctx context.Context, cycle TradeCycle) error
}
