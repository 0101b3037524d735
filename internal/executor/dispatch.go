package executor

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// ErrDispatchFull is returned when the dispatch queue has no room.
var ErrDispatchFull = errors.New("executor: dispatch queue full")

// DefaultDispatchQueue is the queue size used when none is given.
const DefaultDispatchQueue = 256

type dispatchItem struct {
	cycle *domain.TradeCycle

	event, title, message string
}

// Dispatcher moves journal writes and notifications off the trading loop.
// Record and Notify only enqueue; Run delivers in order on its own
// goroutine. When the queue is full the item is dropped with a warning.
type Dispatcher struct {
	recorder Recorder
	notifier Notifier
	logger   *slog.Logger

	mu     sync.RWMutex
	closed bool
	queue  chan dispatchItem
}

// NewDispatcher creates a Dispatcher in front of recorder and notifier,
// either of which may be nil.
func NewDispatcher(recorder Recorder, notifier Notifier, size int, logger *slog.Logger) *Dispatcher {
	if size <= 0 {
		size = DefaultDispatchQueue
	}
	return &Dispatcher{
		recorder: recorder,
		notifier: notifier,
		logger:   logger.With(slog.String("component", "dispatcher")),
		queue:    make(chan dispatchItem, size),
	}
}

var (
	_ Recorder = (*Dispatcher)(nil)
	_ Notifier = (*Dispatcher)(nil)
)

// Record queues cycle for the journal.
func (d *Dispatcher) Record(_ context.Context, cycle domain.TradeCycle) {
	if d.recorder == nil {
		return
	}
	if err := d.enqueue(dispatchItem{cycle: &cycle}); err != nil {
		d.logger.Warn("cycle not journaled",
			slog.Int64("seq", cycle.Seq),
			slog.String("outcome", string(cycle.Outcome)),
			slog.String("error", err.Error()),
		)
	}
}

// Notify queues a notification. The error only reports a full or closed
// queue; delivery failures are logged by Run.
func (d *Dispatcher) Notify(_ context.Context, event, title, message string) error {
	if d.notifier == nil {
		return nil
	}
	return d.enqueue(dispatchItem{event: event, title: title, message: message})
}

func (d *Dispatcher) enqueue(it dispatchItem) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return errors.New("executor: dispatcher closed")
	}
	select {
	case d.queue <- it:
		return nil
	default:
		return ErrDispatchFull
	}
}

// Close stops accepting items. Run delivers what is already queued and
// then returns. Safe to call more than once.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return
	}
	d.closed = true
	close(d.queue)
}

// Run delivers queued items until Close has been called and the queue is
// drained. Cancelling ctx does not stop delivery: the last cycles of a run,
// including a fatal alert, must still reach operators.
func (d *Dispatcher) Run(ctx context.Context) error {
	ctx = context.WithoutCancel(ctx)
	for it := range d.queue {
		if it.cycle != nil {
			d.recorder.Record(ctx, *it.cycle)
			continue
		}
		if err := d.notifier.Notify(ctx, it.event, it.title, it.message); err != nil {
			d.logger.Warn("notification failed",
				slog.String("event", it.event),
				slog.String("error", err.Error()),
			)
		}
	}
	return nil
}
