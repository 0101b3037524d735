package journal

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

// Archiver periodically rotates the JSONL journal and uploads each closed
// segment to object storage under journal/<run id>/.
type Archiver struct {
	file      *FileSink
	blob      domain.BlobWriter
	runID     string
	keepLocal bool
	logger    *slog.Logger

	mu sync.Mutex // one archive pass at a time
}

// NewArchiver creates an Archiver. With keepLocal false, uploaded segments
// are deleted from disk.
func NewArchiver(file *FileSink, blob domain.BlobWriter, runID string, keepLocal bool, logger *slog.Logger) *Archiver {
	return &Archiver{
		file:      file,
		blob:      blob,
		runID:     runID,
		keepLocal: keepLocal,
		logger:    logger.With(slog.String("component", "archiver")),
	}
}

// ObjectPath returns the object key for a rotated segment.
func (a *Archiver) ObjectPath(segment string) string {
	base := path.Base(strings.ReplaceAll(segment, "\\", "/"))
	ts := base[strings.LastIndex(base, ".")+1:]
	return fmt.Sprintf("journal/%s/%s.jsonl", a.runID, ts)
}

// ArchiveNow rotates and uploads the current segment. It returns the object
// path, or "" when there was nothing to upload.
func (a *Archiver) ArchiveNow(ctx context.Context) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	segment, err := a.file.Rotate()
	if err != nil || segment == "" {
		return "", err
	}

	f, err := os.Open(segment)
	if err != nil {
		return "", fmt.Errorf("journal: open segment: %w", err)
	}
	defer f.Close()

	obj := a.ObjectPath(segment)
	if err := a.blob.Put(ctx, obj, f, "application/x-ndjson"); err != nil {
		return "", fmt.Errorf("journal: upload %s: %w", obj, err)
	}
	if !a.keepLocal {
		_ = f.Close()
		if err := os.Remove(segment); err != nil {
			a.logger.Warn("remove archived segment", slog.String("segment", segment), slog.String("error", err.Error()))
		}
	}
	return obj, nil
}

// Run archives on the cron schedule (six fields, seconds first) until ctx
// is done, then makes one final pass so the tail of the run is uploaded.
func (a *Archiver) Run(ctx context.Context, schedule string) error {
	c := cron.New(cron.WithSeconds())
	if _, err := c.AddFunc(schedule, func() { a.archive(ctx) }); err != nil {
		return fmt.Errorf("journal: archive schedule %q: %w", schedule, err)
	}
	c.Start()
	a.logger.Info("archiver started", slog.String("schedule", schedule))

	<-ctx.Done()
	<-c.Stop().Done()

	final, cancel := context.WithTimeout(context.WithoutCancel(ctx), 30*time.Second)
	defer cancel()
	a.archive(final)
	a.logger.Info("archiver stopped")
	return nil
}

func (a *Archiver) archive(ctx context.Context) {
	obj, err := a.ArchiveNow(ctx)
	if err != nil {
		a.logger.Error("journal archive failed", slog.String("error", err.Error()))
		return
	}
	if obj != "" {
		a.logger.Info("journal archived", slog.String("object", obj))
	}
}
