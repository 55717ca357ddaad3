package pipeline

import (
	"container/heap"
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

const (
	DefaultWorkers   = 4
	DefaultQueueSize = 64
)

var (
	ErrQueueFull  = errors.New("queue full")
	ErrPoolClosed = errors.New("pool closed")
)

// QueuePolicy decides what Submit does when a pool's queue is full.
type QueuePolicy int

const (
	Block QueuePolicy = iota
	Drop
)

func (q QueuePolicy) String() string {
	if q == Drop {
		return "drop"
	}
	return "block"
}

func ParseQueuePolicy(s string) (QueuePolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "block":
		return Block, nil
	case "drop":
		return Drop, nil
	}
	return Block, fmt.Errorf("unknown queue policy %q (want block or drop)", s)
}

// Handler does the parallel part of a unit's work and returns the part that has to run in
// capture order. It may return nil.
type Handler func(ctx context.Context, u *DispatchUnit) (commit func())

type PoolConfig struct {
	Workers   int
	QueueSize int
	Policy    QueuePolicy
}

// Pool is a fixed set of workers draining one bounded queue for a single path. Pending units
// are handed out earliest capture time first, and commits happen in submission order.
type Pool struct {
	path    Path
	cfg     PoolConfig
	handle  Handler
	logger  *zap.Logger
	in      chan *DispatchUnit
	out     chan *DispatchUnit
	order   *orderedCommit
	nextSeq uint64
	closed  atomic.Bool
	started atomic.Bool
	wg      sync.WaitGroup
	abort   context.Context
}

func NewPool(path Path, cfg PoolConfig, handle Handler, logger *zap.Logger) *Pool {
	if cfg.Workers <= 0 {
		cfg.Workers = DefaultWorkers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	return &Pool{
		path:   path,
		cfg:    cfg,
		handle: handle,
		logger: logger.With(zap.Stringer("path", path)),
		in:     make(chan *DispatchUnit, cfg.QueueSize),
		out:    make(chan *DispatchUnit),
		order:  newOrderedCommit(),
	}
}

// Start launches the workers. Once abort is cancelled, units picked up afterwards are marked
// done without being handled.
func (p *Pool) Start(abort context.Context) {
	if !p.started.CompareAndSwap(false, true) {
		return
	}
	p.abort = abort

	p.wg.Add(1 + p.cfg.Workers)
	go p.sort()
	for i := 0; i < p.cfg.Workers; i++ {
		go p.work(i)
	}
	p.logger.Debug("[pool] started", zap.Int("workers", p.cfg.Workers), zap.Int("queueSize", p.cfg.QueueSize), zap.Stringer("policy", p.cfg.Policy))
}

// Submit queues u for this pool's path. Whatever the outcome, the path is eventually marked
// done on u exactly once, so a rejected unit is still released. Submit is called by a single
// producer and never after Close.
func (p *Pool) Submit(ctx context.Context, u *DispatchUnit) error {
	seq := p.nextSeq
	p.nextSeq++
	u.seq[p.path.index()] = seq

	if p.closed.Load() {
		p.skip(u)
		return ErrPoolClosed
	}

	if p.cfg.Policy == Drop {
		select {
		case p.in <- u:
			return nil
		default:
			p.skip(u)
			return ErrQueueFull
		}
	}

	select {
	case p.in <- u:
		return nil
	case <-ctx.Done():
		p.skip(u)
		return ctx.Err()
	}
}

func (p *Pool) skip(u *DispatchUnit) {
	path := p.path
	p.order.Commit(u.Seq(path), func() { u.Done(path) })
}

// Close stops accepting units. Workers finish everything already queued.
func (p *Pool) Close() {
	if p.closed.CompareAndSwap(false, true) {
		close(p.in)
	}
}

func (p *Pool) Wait() {
	p.wg.Wait()
}

func (p *Pool) sort() {
	defer p.wg.Done()
	defer close(p.out)

	pending := &unitHeap{path: p.path}
	in := p.in
	for in != nil || pending.Len() > 0 {
		var accept <-chan *DispatchUnit
		if pending.Len() < p.cfg.QueueSize {
			accept = in
		}
		var out chan<- *DispatchUnit
		var head *DispatchUnit
		if pending.Len() > 0 {
			out = p.out
			head = pending.units[0]
		}

		select {
		case u, ok := <-accept:
			if !ok {
				in = nil
				continue
			}
			heap.Push(pending, u)
		case out <- head:
			heap.Pop(pending)
		}
	}
}

func (p *Pool) work(id int) {
	defer p.wg.Done()

	for u := range p.out {
		u := u
		if p.abort != nil && p.abort.Err() != nil {
			p.skip(u)
			continue
		}

		commit := p.run(id, u)
		path := p.path
		p.order.Commit(u.Seq(path), func() {
			if commit != nil {
				commit()
			}
			u.Done(path)
		})
	}
}

func (p *Pool) run(id int, u *DispatchUnit) (commit func()) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("[pool] handler panicked", zap.Int("worker", id), zap.Any("panic", r), zap.Duration("capturedAt", u.CapturedAt))
			commit = nil
		}
	}()
	return p.handle(p.abort, u)
}

// unitHeap orders units by capture time, then by sequence number.
type unitHeap struct {
	path  Path
	units []*DispatchUnit
}

func (h *unitHeap) Len() int { return len(h.units) }

func (h *unitHeap) Less(i, j int) bool {
	a, b := h.units[i], h.units[j]
	if a.CapturedAt != b.CapturedAt {
		return a.CapturedAt < b.CapturedAt
	}
	return a.Seq(h.path) < b.Seq(h.path)
}

func (h *unitHeap) Swap(i, j int) { h.units[i], h.units[j] = h.units[j], h.units[i] }

func (h *unitHeap) Push(x any) { h.units = append(h.units, x.(*DispatchUnit)) }

func (h *unitHeap) Pop() any {
	old := h.units
	n := len(old)
	u := old[n-1]
	old[n-1] = nil
	h.units = old[:n-1]
	return u
}
