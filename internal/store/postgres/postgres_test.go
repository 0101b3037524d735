package postgres

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

func TestDSN(t *testing.T) {
	got := DSN(ClientConfig{Host: "db", User: "bot", Password: "pw", Database: "spreadbot"})
	want := "postgres://bot:pw@db:5432/spreadbot?sslmode=disable&application_name=spreadbot"
	if got != want {
		t.Errorf("DSN = %q, want %q", got, want)
	}
	if got := DSN(ClientConfig{DSN: "postgres://x", Host: "ignored"}); got != "postgres://x" {
		t.Errorf("explicit DSN overridden: %q", got)
	}
}

func TestMigrationNamesSorted(t *testing.T) {
	names, err := migrationNames(migrationsFS)
	if err != nil {
		t.Fatal(err)
	}
	if len(names) == 0 || names[0] != "001_trade_cycles.sql" {
		t.Errorf("names = %v", names)
	}
	for _, n := range names {
		if !strings.HasSuffix(n, ".sql") {
			t.Errorf("non-sql migration %q", n)
		}
	}
}

func TestCycleArgsNullsMissingQuotes(t *testing.T) {
	args := cycleArgs(domain.TradeCycle{ID: uuid.NewString(), Outcome: domain.OutcomeFetchError})
	for _, i := range []int{12, 13, 14, 15, 16, 17} {
		if args[i] != nil {
			t.Errorf("arg $%d = %v, want NULL", i+1, args[i])
		}
	}

	buy := &domain.Offer{ID: "b", Price: decimal.RequireFromString("100"), Amount: decimal.NewFromInt(2)}
	sell := &domain.Offer{ID: "s", Price: decimal.RequireFromString("101")}
	args = cycleArgs(domain.TradeCycle{Buy: buy, Sell: sell, ProfitPct: decimal.NewFromInt(1)})
	if args[13] != "100" || args[15] != "101" || args[16] != "2" || args[17] != "1" {
		t.Errorf("price args = %v %v %v %v", args[13], args[15], args[16], args[17])
	}
}

func TestCycleStoreRecord(t *testing.T) {
	dsn := os.Getenv("SPREADBOT_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("SPREADBOT_TEST_POSTGRES_DSN not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	c, err := New(ctx, ClientConfig{DSN: dsn})
	if err != nil {
		t.Fatal(err)
	}
	defer c.Close()
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations: %v", err)
	}
	if err := c.RunMigrations(ctx); err != nil {
		t.Fatalf("RunMigrations twice: %v", err)
	}

	store := NewCycleStore(c.Pool())
	cycle := domain.TradeCycle{
		ID: uuid.NewString(), RunID: "test-" + uuid.NewString(), Seq: 1,
		StartedAt: time.Now().UTC(), EndedAt: time.Now().UTC(),
		Poller: "primary", Primary: true, Outcome: domain.OutcomeNoOp,
	}
	if err := store.Record(ctx, cycle); err != nil {
		t.Fatalf("Record: %v", err)
	}
	if err := store.Record(ctx, cycle); err != nil {
		t.Fatalf("Record duplicate: %v", err)
	}
	var n int
	if err := c.Pool().QueryRow(ctx, "SELECT count(*) FROM trade_cycles WHERE run_id = $1", cycle.RunID).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Errorf("rows = %d, want 1", n)
	}
}
