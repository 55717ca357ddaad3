package chart

import (
	"errors"
	"math"
	"sync"
)

type State int

const (
	Empty State = iota
	Filling
	Windowed
)

func (s State) String() string {
	switch s {
	case Empty:
		return "empty"
	case Filling:
		return "filling"
	case Windowed:
		return "windowed"
	}
	return "unknown"
}

type Bounds struct {
	XLower   float64 `json:"x_lower"`
	XUpper   float64 `json:"x_upper"`
	YLower   float64 `json:"y_lower"`
	YUpper   float64 `json:"y_upper"`
	Interval float64 `json:"interval"`
}

// View is a copy of the visible part of the model.
type View struct {
	Points   []Point `json:"points"`
	Bounds   Bounds  `json:"bounds"`
	Start    int     `json:"start"`
	LastSeen int     `json:"last_seen"`
	State    State   `json:"-"`
}

// Model keeps every appended point and a window that slides forward one interval at a time.
// The y range of a window is committed from the points of the window it replaces.
type Model struct {
	mu       sync.RWMutex
	points   []Point
	bounds   Bounds
	start    int
	lastSeen int
	advances int
}

func NewModel(interval, yUpper float64) (*Model, error) {
	if !(interval > 0) || math.IsInf(interval, 0) {
		return nil, errors.New("[chart] window interval must be a positive number")
	}
	return &Model{
		bounds: Bounds{
			XLower:   0,
			XUpper:   interval,
			YLower:   0,
			YUpper:   yUpper,
			Interval: interval,
		},
		lastSeen: -1,
	}, nil
}

func (m *Model) Append(p Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.append(p)
}

// AppendBatch appends all points under one lock so readers never see half a packet.
func (m *Model) AppendBatch(points []Point) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range points {
		m.append(p)
	}
}

func (m *Model) append(p Point) {
	m.points = append(m.points, p)
	idx := len(m.points) - 1
	m.lastSeen = idx

	if !(p.X > m.bounds.XUpper) {
		return
	}

	lo, hi := p.Y, p.Y
	if m.start < idx {
		lo, hi = m.points[m.start].Y, m.points[m.start].Y
		for _, q := range m.points[m.start+1 : idx] {
			lo = math.Min(lo, q.Y)
			hi = math.Max(hi, q.Y)
		}
	}

	m.bounds.YLower = lo
	m.bounds.YUpper = hi
	m.bounds.XLower = m.bounds.XUpper
	m.bounds.XUpper += m.bounds.Interval
	m.advances++

	// a gap longer than one interval skips ahead so the new point is always visible
	for p.X > m.bounds.XUpper {
		m.bounds.XLower = m.bounds.XUpper
		m.bounds.XUpper += m.bounds.Interval
		m.advances++
	}

	m.start = idx
}

func (m *Model) Window() View {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v := View{
		Bounds:   m.bounds,
		Start:    m.start,
		LastSeen: m.lastSeen,
		State:    m.state(),
	}
	if m.lastSeen >= m.start {
		v.Points = make([]Point, m.lastSeen-m.start+1)
		copy(v.Points, m.points[m.start:m.lastSeen+1])
	}
	return v
}

func (m *Model) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state()
}

func (m *Model) state() State {
	switch {
	case len(m.points) == 0:
		return Empty
	case m.advances == 0:
		return Filling
	default:
		return Windowed
	}
}

func (m *Model) Advances() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.advances
}

func (m *Model) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.points)
}

// Points returns a copy of every point appended so far.
func (m *Model) Points() []Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Point, len(m.points))
	copy(out, m.points)
	return out
}
