// Package journal fans finalized trade cycles out to write-only sinks: a
// JSONL file, Postgres, the Redis bus, websocket clients and an in-memory
// ring for the status API. Nothing here is read back to restore state.
package journal

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// sinkTimeout bounds each sink write so a slow backend cannot stall the
// trading loop for long.
const sinkTimeout = 3 * time.Second

// Sink receives finalized cycles.
type Sink interface {
	Name() string
	Record(ctx context.Context, cycle domain.TradeCycle) error
}

// Journal writes every cycle to all sinks in order. Sink failures are
// logged and never reach the caller.
type Journal struct {
	mu     sync.RWMutex
	sinks  []Sink
	logger *slog.Logger
}

// New creates a Journal over sinks.
func New(logger *slog.Logger, sinks ...Sink) *Journal {
	return &Journal{
		sinks:  sinks,
		logger: logger.With(slog.String("component", "journal")),
	}
}

// Add registers another sink.
func (j *Journal) Add(s Sink) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.sinks = append(j.sinks, s)
}

// Sinks returns the registered sink names.
func (j *Journal) Sinks() []string {
	j.mu.RLock()
	defer j.mu.RUnlock()
	names := make([]string, len(j.sinks))
	for i, s := range j.sinks {
		names[i] = s.Name()
	}
	return names
}

// Record hands cycle to every sink.
func (j *Journal) Record(ctx context.Context, cycle domain.TradeCycle) {
	j.mu.RLock()
	sinks := j.sinks
	j.mu.RUnlock()

	for _, s := range sinks {
		sctx, cancel := context.WithTimeout(ctx, sinkTimeout)
		err := s.Record(sctx, cycle)
		cancel()
		if err != nil {
			j.logger.Warn("journal sink failed",
				slog.String("sink", s.Name()),
				slog.Int64("seq", cycle.Seq),
				slog.String("error", err.Error()),
			)
		}
	}
}

// Close closes every sink that holds resources.
func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	var errs []error
	for _, s := range j.sinks {
		if c, ok := s.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, err)
			}
		}
	}
	return errors.Join(errs...)
}
