package telemetry

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestStoreConcurrentUpdates(t *testing.T) {
	s := NewStore()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s.Packet(70)
				s.UnitReleased()
				s.PointsPlotted(10)
			}
		}()
	}
	wg.Wait()

	c := s.Snapshot()
	if c.Packets != 800 || c.Released != 800 || c.PointsPlotted != 8000 {
		t.Fatalf("counters = %+v", c)
	}
	if c.BeatAvg != 70 {
		t.Fatalf("beat avg = %d", c.BeatAvg)
	}
}

func TestFormatLine(t *testing.T) {
	c := Counters{Packets: 3, Released: 2, LinesRecorded: 30, BeatAvg: 64}
	line := FormatLine(c, time.Unix(0, 1234))

	if !strings.HasPrefix(line, "ppg packets=3i,") {
		t.Fatalf("line = %q", line)
	}
	for _, want := range []string{"released=2i", "lines_recorded=30i", "beat_avg=64i", " 1234\n"} {
		if !strings.Contains(line, want) {
			t.Errorf("line %q missing %q", line, want)
		}
	}
}

type shortWriter struct {
	bytes.Buffer
}

// Write accepts at most 8 bytes per call.
func (w *shortWriter) Write(p []byte) (int, error) {
	if len(p) > 8 {
		p = p[:8]
	}
	return w.Buffer.Write(p)
}

func TestSampleAndLogWritesWholeLine(t *testing.T) {
	store := NewStore()
	store.Packet(55)

	w := &shortWriter{}
	s := NewSampler(time.Second, w, func() *Store { return store }, zap.NewNop())
	s.now = func() time.Time { return time.Unix(0, 99) }
	s.SampleAndLog()

	want := FormatLine(store.Snapshot(), time.Unix(0, 99))
	if w.String() != want {
		t.Fatalf("got %q, want %q", w.String(), want)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("connection refused") }

func TestSampleAndLogWarnsOnError(t *testing.T) {
	core, logs := observer.New(zap.WarnLevel)
	s := NewSampler(time.Second, failingWriter{}, func() *Store { return NewStore() }, zap.New(core))
	s.SampleAndLog()

	if logs.FilterMessage("[sampler] error writing telemetry").Len() != 1 {
		t.Fatalf("expected one warning, got %v", logs.All())
	}
}

func TestSampleAndLogWithoutSession(t *testing.T) {
	w := &bytes.Buffer{}
	s := NewSampler(time.Second, w, func() *Store { return nil }, zap.NewNop())
	s.SampleAndLog()
	if w.Len() != 0 {
		t.Fatalf("wrote %q with no session", w.String())
	}
}
