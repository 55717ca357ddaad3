package pipeline

import "sync"

// orderedCommit runs commit functions strictly in sequence-number order, whichever goroutine
// delivers them. A function for seq n waits until every seq below n has been delivered.
type orderedCommit struct {
	mu      sync.Mutex
	next    uint64
	pending map[uint64]func()
}

func newOrderedCommit() *orderedCommit {
	return &orderedCommit{pending: make(map[uint64]func())}
}

func (o *orderedCommit) Commit(seq uint64, fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if fn == nil {
		fn = func() {}
	}
	o.pending[seq] = fn

	for {
		f, ok := o.pending[o.next]
		if !ok {
			return
		}
		delete(o.pending, o.next)
		o.next++
		f()
	}
}

func (o *orderedCommit) Pending() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	return len(o.pending)
}
