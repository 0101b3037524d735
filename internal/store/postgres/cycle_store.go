package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// CycleStore implements domain.CycleStore. It only ever inserts.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a CycleStore backed by the given connection pool.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

const insertCycle = `
	INSERT INTO trade_cycles (
		id, run_id, seq, started_at, ended_at,
		poller, poller_index, is_primary, bursting, simulated,
		outcome, recovery,
		buy_offer_id, buy_price, sell_offer_id, sell_price, amount,
		profit_pct, error
	) VALUES (
		$1, $2, $3, $4, $5,
		$6, $7, $8, $9, $10,
		$11, $12,
		$13, $14, $15, $16, $17,
		$18, $19
	) ON CONFLICT (id) DO NOTHING`

// Record inserts one finalized cycle.
func (s *CycleStore) Record(ctx context.Context, c domain.TradeCycle) error {
	args := cycleArgs(c)
	if _, err := s.pool.Exec(ctx, insertCycle, args...); err != nil {
		return fmt.Errorf("postgres: record cycle %d: %w", c.Seq, err)
	}
	return nil
}

// cycleArgs maps a cycle to insertCycle parameters. Quote columns are NULL
// when the cycle never got that far.
func cycleArgs(c domain.TradeCycle) []any {
	var (
		buyID, sellID       any
		buyPrice, sellPrice any
		amount, profit      any
	)
	if c.Buy != nil {
		buyID, buyPrice, amount = c.Buy.ID, c.Buy.Price.String(), c.Buy.Amount.String()
	}
	if c.Sell != nil {
		sellID, sellPrice = c.Sell.ID, c.Sell.Price.String()
	}
	if c.Buy != nil && c.Sell != nil {
		profit = c.ProfitPct.String()
	}
	return []any{
		c.ID, c.RunID, c.Seq, c.StartedAt, c.EndedAt,
		c.Poller, c.PollerIndex, c.Primary, c.Bursting, c.Simulated,
		string(c.Outcome), string(c.Recovery),
		buyID, buyPrice, sellID, sellPrice, amount,
		profit, c.Error,
	}
}

var _ domain.CycleStore = (*CycleStore)(nil)
