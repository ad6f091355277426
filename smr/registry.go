package smr

import "sync"

// A Slot is a process-wide, reusable per-thread record. Data holds
// whatever a particular SMR scheme needs to stash per thread — a
// hazard-pointer array and retired batch for smr/hp, a local free list
// of released guards for smr/dhp. Slot indices
// are recycled across attach/detach cycles, but Data is reset to its
// zero value on reuse so a new owner never observes a prior owner's
// published pointers.
type Slot[D any] struct {
	// Index is this slot's fixed position in the registry's slot array.
	// It is stable for the slot's lifetime, including across reuse.
	Index int
	// Data is the scheme-specific per-thread payload.
	Data D

	reg      *Registry[D]
	attached bool
}

// Detach returns the slot to the registry's free list, after invoking
// cleanup if the registry was constructed with one. A detached slot must
// not be used again; a new Attach call may return it (with Data reset)
// to a different thread.
func (s *Slot[D]) Detach() {
	if s == nil || !s.attached {
		return
	}
	s.reg.detach(s)
}

// Registry is a process-wide, fixed-capacity pool of thread slots. It is
// safe for concurrent Attach/Detach from any number of goroutines.
type Registry[D any] struct {
	mu      sync.Mutex
	slots   []*Slot[D]
	free    []int
	cleanup func(*Slot[D])
}

// NewRegistry creates a registry with room for maxThreads concurrently
// attached threads. cleanup, if non-nil, is invoked on Detach before the
// slot is returned to the free list — SMR schemes use it to flush
// retired records or mark guards inactive, per spec.md §4.A.
func NewRegistry[D any](maxThreads int, cleanup func(*Slot[D])) *Registry[D] {
	if maxThreads <= 0 {
		maxThreads = 1
	}
	r := &Registry[D]{
		slots:   make([]*Slot[D], maxThreads),
		free:    make([]int, maxThreads),
		cleanup: cleanup,
	}
	for i := 0; i < maxThreads; i++ {
		r.slots[i] = &Slot[D]{Index: i, reg: r}
		r.free[maxThreads-1-i] = i
	}
	return r
}

// Attach allocates a slot for the calling thread. The caller must retain
// the returned Slot and pass it to every subsequent operation it performs
// on containers built on this registry, and must call Detach exactly once
// when finished.
func (r *Registry[D]) Attach() (*Slot[D], error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.free) == 0 {
		return nil, ErrTooManyThreads
	}
	i := r.free[len(r.free)-1]
	r.free = r.free[:len(r.free)-1]
	s := r.slots[i]
	var zero D
	s.Data = zero
	s.attached = true
	return s, nil
}

func (r *Registry[D]) detach(s *Slot[D]) {
	if r.cleanup != nil {
		r.cleanup(s)
	}
	r.mu.Lock()
	s.attached = false
	r.free = append(r.free, s.Index)
	r.mu.Unlock()
}

// Slots returns a snapshot of every slot the registry manages, attached or
// not. SMR scans walk this to collect published hazards across all
// threads, whether or not a given slot is currently attached — a slot
// that was attached a moment ago may still hold a hazard a concurrent
// retirer must respect.
func (r *Registry[D]) Slots() []*Slot[D] {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*Slot[D], len(r.slots))
	copy(out, r.slots)
	return out
}

// Attached reports whether s is currently an attached slot of this
// registry. It exists so container operations can fail with
// ErrNotAttached instead of silently corrupting state when called with a
// stale or detached slot.
func (r *Registry[D]) Attached(s *Slot[D]) bool {
	if s == nil || s.reg != r {
		return false
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return s.attached
}
