package pipeline

import (
	"sync/atomic"
	"time"

	"sleepywoodpecker/ppg-scope/internal/packet"
)

// Path is one consumer of dispatch units.
type Path uint32

const (
	RenderPath Path = 1 << iota
	PersistPath

	allPaths = RenderPath | PersistPath
)

func (p Path) String() string {
	switch p {
	case RenderPath:
		return "render"
	case PersistPath:
		return "persist"
	case allPaths:
		return "render+persist"
	case 0:
		return "none"
	}
	return "unknown"
}

func (p Path) index() int {
	if p == PersistPath {
		return 1
	}
	return 0
}

type ReleaseFunc func(u *DispatchUnit)

// DispatchUnit carries one packet to every enabled path. Each path marks itself done exactly
// once; whichever call sets the last flag releases the unit.
type DispatchUnit struct {
	Sample       packet.Sample
	Raw          *packet.Buffer
	CapturedAt   time.Duration
	SessionStart time.Duration

	seq     [2]uint64
	done    atomic.Uint32
	release ReleaseFunc
}

// NewDispatchUnit marks every path not in enabled as already done.
func NewDispatchUnit(raw *packet.Buffer, sample packet.Sample, capturedAt, sessionStart time.Duration, enabled Path, release ReleaseFunc) *DispatchUnit {
	u := &DispatchUnit{
		Sample:       sample,
		Raw:          raw,
		CapturedAt:   capturedAt,
		SessionStart: sessionStart,
		release:      release,
	}
	u.done.Store(uint32(allPaths &^ enabled))
	return u
}

// Done marks path as finished. It reports whether this call released the unit; marking the
// same path twice is a no-op.
func (u *DispatchUnit) Done(path Path) bool {
	for {
		old := u.done.Load()
		if old&uint32(path) != 0 {
			return false
		}
		next := old | uint32(path)
		if !u.done.CompareAndSwap(old, next) {
			continue
		}
		if Path(next) != allPaths {
			return false
		}

		packet.PutBuffer(u.Raw)
		u.Raw = nil
		if u.release != nil {
			u.release(u)
		}
		return true
	}
}

func (u *DispatchUnit) RenderDone() bool {
	return u.done.Load()&uint32(RenderPath) != 0
}

func (u *DispatchUnit) PersistDone() bool {
	return u.done.Load()&uint32(PersistPath) != 0
}

func (u *DispatchUnit) Seq(path Path) uint64 {
	return u.seq[path.index()]
}
