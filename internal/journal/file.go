package journal

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// FileSink appends cycles as JSON lines. It is safe for concurrent use.
type FileSink struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
	n    int64 // records since the last rotation
	now  func() time.Time
}

// NewFileSink returns a sink appending to path, or nil when path is blank.
func NewFileSink(path string) *FileSink {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &FileSink{path: path, now: time.Now}
}

// Name identifies the sink in logs.
func (f *FileSink) Name() string { return "jsonl" }

// Path returns the active file path.
func (f *FileSink) Path() string { return f.path }

func (f *FileSink) ensureOpenLocked() error {
	if f.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(f.path), 0o755); err != nil {
		return err
	}
	file, err := os.OpenFile(f.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	f.file = file
	f.w = bufio.NewWriterSize(file, 64*1024)
	return nil
}

// Record appends one line and flushes so tailers see it immediately.
func (f *FileSink) Record(_ context.Context, cycle domain.TradeCycle) error {
	b, err := json.Marshal(cycle)
	if err != nil {
		return fmt.Errorf("journal: marshal cycle %d: %w", cycle.Seq, err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.ensureOpenLocked(); err != nil {
		return fmt.Errorf("journal: open %s: %w", f.path, err)
	}
	if _, err := f.w.Write(b); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := f.w.WriteByte('\n'); err != nil {
		return fmt.Errorf("journal: write: %w", err)
	}
	if err := f.w.Flush(); err != nil {
		return fmt.Errorf("journal: flush: %w", err)
	}
	f.n++
	return nil
}

// Rotate closes the active file and renames it to a timestamped segment,
// which it returns. The next Record starts a fresh file. It returns "" when
// nothing was written since the last rotation.
func (f *FileSink) Rotate() (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.n == 0 {
		return "", nil
	}
	if err := f.closeLocked(); err != nil {
		return "", fmt.Errorf("journal: close for rotate: %w", err)
	}
	now := f.now().UTC()
	segment := fmt.Sprintf("%s.%s-%09d", f.path, now.Format("20060102T150405"), now.Nanosecond())
	if err := os.Rename(f.path, segment); err != nil {
		return "", fmt.Errorf("journal: rotate %s: %w", f.path, err)
	}
	f.n = 0
	return segment, nil
}

// Close flushes buffered data and closes the file.
func (f *FileSink) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeLocked()
}

func (f *FileSink) closeLocked() error {
	var firstErr error
	if f.w != nil {
		if err := f.w.Flush(); err != nil {
			firstErr = err
		}
	}
	if f.file != nil {
		if err := f.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	f.w = nil
	f.file = nil
	if firstErr != nil && errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
