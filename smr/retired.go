package smr

import "sync/atomic"

// Retired is a type-erased record of a single pointer a thread has
// relinquished but which a concurrent reader may still be dereferencing.
// Dispose is invoked exactly once, after the owning scheme proves no
// reader can still observe Ptr.
type Retired struct {
	// Ptr identifies the retired object for scan comparisons. Schemes
	// compare this against published hazards/guards by identity, never by
	// dereferencing it.
	Ptr any
	// Dispose runs the retiring thread's cleanup — typically a closure
	// over the concrete *node[V] that frees or recycles it.
	Dispose func()
}

// Batch is a per-thread buffer of Retired records awaiting reclamation.
// It is not safe for concurrent use by more than one goroutine: each
// thread's batch is written only by that thread, per spec.md §5's
// shared-resource policy for retired lists.
type Batch struct {
	items []Retired
}

// Add buffers r for later reclamation.
func (b *Batch) Add(r Retired) {
	b.items = append(b.items, r)
}

// Len reports how many records are currently buffered.
func (b *Batch) Len() int {
	return len(b.items)
}

// Drain removes and returns every buffered record, leaving the batch
// empty. The caller scans the returned slice against the current hazard
// snapshot and calls Requeue with whatever did not clear the scan.
func (b *Batch) Drain() []Retired {
	items := b.items
	b.items = nil
	return items
}

// Requeue puts records that survived a scan (still hazardous) back into
// the batch, preserving them for the next scan attempt.
func (b *Batch) Requeue(items []Retired) {
	if len(items) == 0 {
		return
	}
	b.items = append(b.items, items...)
}

// GlobalStack is a lock-free, multi-producer/single-consumer-friendly
// Treiber stack for holding retired records in one shared list rather
// than per-thread. smr/dhp does not use it; it keeps its own retired
// stack of epoch-stamped nodes. It is intentionally tiny and
// self-contained (not built on container/stack) because container/stack
// itself depends on an SMR scheme to guard its own nodes, and this
// stack's nodes are only ever touched by the single thread that drains
// them — there is no reader to guard against once a node is popped, so
// the full Treiber+SMR machinery would be circular for no benefit here.
type GlobalStack struct {
	head atomic.Pointer[stackNode]
}

type stackNode struct {
	val  Retired
	next *stackNode
}

// Push adds r to the stack. Safe for any number of concurrent callers.
// Same top-of-stack CAS loop as container/stack's Treiber push (spec.md
// §4.G): no ABA hazard arises here because a node, once popped by
// DrainAll, is never reused or re-pushed — DrainAll swaps the whole list
// out atomically rather than popping node by node.
func (s *GlobalStack) Push(r Retired) {
	n := &stackNode{val: r}
	for {
		t := s.head.Load()
		n.next = t
		if s.head.CompareAndSwap(t, n) {
			return
		}
	}
}

// DrainAll removes and returns every currently queued record in one
// atomic swap of the head pointer.
func (s *GlobalStack) DrainAll() []Retired {
	head := s.head.Swap(nil)
	var out []Retired
	for n := head; n != nil; n = n.next {
		out = append(out, n.val)
	}
	return out
}

// PushAll requeues a batch of records, e.g. ones that did not clear a
// scan.
func (s *GlobalStack) PushAll(items []Retired) {
	for _, it := range items {
		s.Push(it)
	}
}
