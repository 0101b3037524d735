package journal

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// BusSink publishes each cycle as JSON on a SignalBus channel.
type BusSink struct {
	bus     domain.SignalBus
	channel string
}

// NewBusSink creates a BusSink publishing on channel.
func NewBusSink(bus domain.SignalBus, channel string) *BusSink {
	return &BusSink{bus: bus, channel: channel}
}

// Name identifies the sink in logs.
func (b *BusSink) Name() string { return "redis" }

// Record publishes cycle.
func (b *BusSink) Record(ctx context.Context, cycle domain.TradeCycle) error {
	payload, err := json.Marshal(cycle)
	if err != nil {
		return fmt.Errorf("journal: marshal cycle %d: %w", cycle.Seq, err)
	}
	return b.bus.Publish(ctx, b.channel, payload)
}

// StoreSink writes cycles to a CycleStore.
type StoreSink struct {
	store domain.CycleStore
}

// NewStoreSink wraps store as a sink.
func NewStoreSink(store domain.CycleStore) *StoreSink {
	return &StoreSink{store: store}
}

// Name identifies the sink in logs.
func (s *StoreSink) Name() string { return "postgres" }

// Record stores cycle.
func (s *StoreSink) Record(ctx context.Context, cycle domain.TradeCycle) error {
	return s.store.Record(ctx, cycle)
}
