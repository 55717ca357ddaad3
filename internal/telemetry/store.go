package telemetry

import (
	"sync"
)

// Counters is a point-in-time copy of the pipeline counters.
type Counters struct {
	Packets        uint64 `json:"packets"`
	EmptyReads     uint64 `json:"empty_reads"`
	InvalidPackets uint64 `json:"invalid_packets"`
	RenderDrops    uint64 `json:"render_drops"`
	PersistDrops   uint64 `json:"persist_drops"`
	Released       uint64 `json:"released"`
	PointsPlotted  uint64 `json:"points_plotted"`
	LinesRecorded  uint64 `json:"lines_recorded"`
	WriteErrors    uint64 `json:"write_errors"`
	BeatAvg        int32  `json:"beat_avg"`
}

type Store struct {
	counters Counters
	mu       sync.Mutex
}

func NewStore() *Store {
	return &Store{}
}

func (s *Store) update(fn func(c *Counters)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	fn(&s.counters)
}

func (s *Store) Packet(beatAvg int32) {
	s.update(func(c *Counters) {
		c.Packets++
		c.BeatAvg = beatAvg
	})
}

func (s *Store) EmptyRead() { s.update(func(c *Counters) { c.EmptyReads++ }) }
func (s *Store) InvalidPacket() { s.update(func(c *Counters) { c.InvalidPackets++ }) }
func (s *Store) RenderDropped() { s.update(func(c *Counters) { c.RenderDrops++ }) }
func (s *Store) PersistDropped() { s.update(func(c *Counters) { c.PersistDrops++ }) }
func (s *Store) UnitReleased() { s.update(func(c *Counters) { c.Released++ }) }
func (s *Store) WriteError() { s.update(func(c *Counters) { c.WriteErrors++ }) }
func (s *Store) PointsPlotted(n int) { s.update(func(c *Counters) { c.PointsPlotted += uint64(n) }) }
func (s *Store) LinesRecorded(n int) { s.update(func(c *Counters) { c.LinesRecorded += uint64(n) }) }

func (s *Store) Snapshot() Counters {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.counters
}
