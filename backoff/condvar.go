package backoff

import "sync"

// CondVar is a Waitable strategy built on a mutex and a condition variable.
// The flat-combining kernel uses one CondVar shared across every
// publication record (the "single-mutex-condvar" strategy of spec.md
// §4.E) when configured for low contention, or one CondVar per record (the
// "per-record-condvar" strategy) when configured for low latency; both are
// the same type, constructed per call site.
type CondVar struct {
	mu      sync.Mutex
	cond    *sync.Cond
	signals uint64
	seen    uint64
}

// NewCondVar returns a ready-to-use CondVar. Call NewCondVar once per
// container instance for the single-mutex-condvar strategy, or once per
// publication record for the per-record-condvar strategy.
func NewCondVar() *CondVar {
	c := &CondVar{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

func (c *CondVar) SpinOnce(int) {}
func (c *CondVar) Reset()       {}

// Prepare snapshots the current signal count so a subsequent Wait can
// detect a Notify/WakeupOne/WakeupAll that raced ahead of it.
func (c *CondVar) Prepare() {
	c.mu.Lock()
	c.seen = c.signals
	c.mu.Unlock()
}

// Wait blocks until the signal count advances past the value captured by
// the most recent Prepare.
func (c *CondVar) Wait() {
	c.mu.Lock()
	for c.signals == c.seen {
		c.cond.Wait()
	}
	c.mu.Unlock()
}

func (c *CondVar) Notify() {
	c.mu.Lock()
	c.signals++
	c.mu.Unlock()
	c.cond.Signal()
}

func (c *CondVar) WakeupOne() {
	c.mu.Lock()
	c.signals++
	c.mu.Unlock()
	c.cond.Signal()
}

func (c *CondVar) WakeupAll() {
	c.mu.Lock()
	c.signals++
	c.mu.Unlock()
	c.cond.Broadcast()
}
