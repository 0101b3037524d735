package notify

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

// BellSender rings the terminal bell and prints a one-line alert, so an
// operator watching the console hears every trade.
type BellSender struct {
	mu  sync.Mutex
	w   io.Writer
	now func() time.Time
}

// NewBellSender writes alerts to w, typically os.Stderr.
func NewBellSender(w io.Writer) *BellSender {
	return &BellSender{w: w, now: time.Now}
}

// Send writes a BEL character followed by the alert.
func (b *BellSender) Send(_ context.Context, title, message string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	_, err := fmt.Fprintf(b.w, "\a%s %s: %s\n", b.now().Format(time.TimeOnly), title, message)
	if err != nil {
		return fmt.Errorf("bell: write: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (b *BellSender) Name() string {
	return "bell"
}
