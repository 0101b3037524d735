package journal

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/spreadbot/internal/domain"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func cycle(seq int64, o domain.CycleOutcome) domain.TradeCycle {
	return domain.TradeCycle{ID: "c", RunID: "run-1", Seq: seq, Outcome: o}
}

type failingSink struct{ calls int }

func (f *failingSink) Name() string { return "failing" }
func (f *failingSink) Record(context.Context, domain.TradeCycle) error {
	f.calls++
	return errors.New("backend down")
}

func TestJournalIsolatesSinkFailures(t *testing.T) {
	bad := &failingSink{}
	ring := NewRing(4)
	j := New(discard(), bad, ring)
	j.Record(context.Background(), cycle(1, domain.OutcomeNoOp))
	if bad.calls != 1 {
		t.Errorf("failing sink calls = %d", bad.calls)
	}
	if ring.Total() != 1 {
		t.Errorf("ring did not receive cycle after failing sink")
	}
	if got := strings.Join(j.Sinks(), ","); got != "failing,memory" {
		t.Errorf("Sinks = %s", got)
	}
}

func TestRingRecentNewestFirst(t *testing.T) {
	r := NewRing(3)
	ctx := context.Background()
	for i := int64(1); i <= 5; i++ {
		_ = r.Record(ctx, cycle(i, domain.OutcomeNoOp))
	}
	got := r.Recent(0)
	if len(got) != 3 || got[0].Seq != 5 || got[2].Seq != 3 {
		t.Errorf("Recent(0) seqs = %v", seqs(got))
	}
	if got := r.Recent(2); len(got) != 2 || got[1].Seq != 4 {
		t.Errorf("Recent(2) seqs = %v", seqs(got))
	}
	if r.Total() != 5 {
		t.Errorf("Total = %d", r.Total())
	}
}

func TestRingPartiallyFilled(t *testing.T) {
	r := NewRing(10)
	_ = r.Record(context.Background(), cycle(1, domain.OutcomeExecuted))
	_ = r.Record(context.Background(), cycle(2, domain.OutcomeNoOp))
	if got := r.Recent(50); len(got) != 2 || got[0].Seq != 2 {
		t.Errorf("Recent = %v", seqs(got))
	}
	counts := r.Counts()
	if counts[domain.OutcomeExecuted] != 1 || counts[domain.OutcomeNoOp] != 1 {
		t.Errorf("Counts = %v", counts)
	}
}

func seqs(cs []domain.TradeCycle) []int64 {
	out := make([]int64, len(cs))
	for i, c := range cs {
		out[i] = c.Seq
	}
	return out
}

func TestFileSinkAppendsLines(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "cycles.jsonl")
	f := NewFileSink(path)
	ctx := context.Background()
	for i := int64(1); i <= 3; i++ {
		if err := f.Record(ctx, cycle(i, domain.OutcomeNoOp)); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}

	file, err := os.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	defer file.Close()
	sc := bufio.NewScanner(file)
	var n int64
	for sc.Scan() {
		n++
		var c domain.TradeCycle
		if err := json.Unmarshal(sc.Bytes(), &c); err != nil {
			t.Fatalf("line %d: %v", n, err)
		}
		if c.Seq != n {
			t.Errorf("line %d seq = %d", n, c.Seq)
		}
	}
	if n != 3 {
		t.Errorf("lines = %d", n)
	}
}

func TestNewFileSinkBlank(t *testing.T) {
	if NewFileSink("  ") != nil {
		t.Error("blank path produced a sink")
	}
}

func TestFileSinkRotate(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.jsonl")
	f := NewFileSink(path)
	f.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }

	seg, err := f.Rotate()
	if err != nil || seg != "" {
		t.Fatalf("empty rotate = %q %v", seg, err)
	}
	_ = f.Record(context.Background(), cycle(1, domain.OutcomeNoOp))
	seg, err = f.Rotate()
	if err != nil {
		t.Fatal(err)
	}
	if seg != path+".20260501T100000-000000000" {
		t.Errorf("segment = %q", seg)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("active file still present after rotate")
	}
	_ = f.Record(context.Background(), cycle(2, domain.OutcomeNoOp))
	if _, err := os.Stat(path); err != nil {
		t.Errorf("active file not recreated: %v", err)
	}
}

type memBlob struct {
	mu      sync.Mutex
	objects map[string][]byte
}

func (m *memBlob) Put(_ context.Context, p string, r io.Reader, _ string) error {
	b, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[p] = b
	return nil
}

func TestArchiverUploadsSegments(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.jsonl")
	f := NewFileSink(path)
	f.now = func() time.Time { return time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC) }
	blob := &memBlob{}
	a := NewArchiver(f, blob, "run-7", false, discard())
	ctx := context.Background()

	if obj, err := a.ArchiveNow(ctx); err != nil || obj != "" {
		t.Fatalf("empty archive = %q %v", obj, err)
	}
	_ = f.Record(ctx, cycle(1, domain.OutcomeExecuted))
	obj, err := a.ArchiveNow(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if obj != "journal/run-7/20260501T100000-000000000.jsonl" {
		t.Errorf("object = %q", obj)
	}
	if !bytes.Contains(blob.objects[obj], []byte(`"outcome":"executed-success"`)) {
		t.Errorf("object body = %s", blob.objects[obj])
	}
	matches, _ := filepath.Glob(path + ".*")
	if len(matches) != 0 {
		t.Errorf("segments left on disk: %v", matches)
	}
}

func TestArchiverRunFinalPass(t *testing.T) {
	path := filepath.Join(t.TempDir(), "cycles.jsonl")
	f := NewFileSink(path)
	blob := &memBlob{}
	a := NewArchiver(f, blob, "run-8", true, discard())
	_ = f.Record(context.Background(), cycle(1, domain.OutcomeNoOp))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := a.Run(ctx, "0 0 * * * *"); err != nil {
		t.Fatal(err)
	}
	if len(blob.objects) != 1 {
		t.Errorf("objects = %d, want 1 from final pass", len(blob.objects))
	}
	if err := a.Run(context.Background(), "not a schedule"); err == nil {
		t.Error("invalid schedule accepted")
	}
}

type memBus struct {
	channel string
	payload []byte
}

func (m *memBus) Publish(_ context.Context, ch string, p []byte) error {
	m.channel, m.payload = ch, p
	return nil
}

func (m *memBus) Subscribe(context.Context, string) (<-chan []byte, error) { return nil, nil }

type memStore struct{ got []domain.TradeCycle }

func (m *memStore) Record(_ context.Context, c domain.TradeCycle) error {
	m.got = append(m.got, c)
	return nil
}

func TestBusAndStoreSinks(t *testing.T) {
	bus := &memBus{}
	store := &memStore{}
	j := New(discard(), NewBusSink(bus, "spreadbot:cycles"), NewStoreSink(store))
	j.Record(context.Background(), cycle(9, domain.OutcomeReverted))

	if bus.channel != "spreadbot:cycles" || !bytes.Contains(bus.payload, []byte(`"seq":9`)) {
		t.Errorf("bus got %s on %s", bus.payload, bus.channel)
	}
	if len(store.got) != 1 || store.got[0].Seq != 9 {
		t.Errorf("store got %v", store.got)
	}
}
