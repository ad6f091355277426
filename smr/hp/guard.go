package hp

import "sync/atomic"

// Guard is one of a handle's K hazard slots, bound to a single atomic
// pointer location for the duration of one dereference.
type Guard[V any] struct {
	h   *Handle[V]
	idx int
}

// AcquireGuard reserves one of the handle's hazard slots. It returns
// smr.ErrTooManyThreads's sibling failure mode from spec.md §4.C/§7 —
// ErrOutOfHazardSlots — if every slot in the handle's array is already in
// use, which is a programming error (a thread trying to hold more
// concurrent hazard pointers than the scheme was configured for).
func (h *Handle[V]) AcquireGuard() (*Guard[V], error) {
	d := &h.slot.Data
	if len(d.inUse) != len(d.hazards) {
		d.inUse = make([]bool, len(d.hazards))
	}
	for i := range d.hazards {
		if !d.inUse[i] {
			d.inUse[i] = true
			return &Guard[V]{h: h, idx: i}, nil
		}
	}
	return nil, ErrOutOfHazardSlots
}

// Protect implements the publish-then-validate contract of spec.md
// §4.C step 1: it loads addr, publishes the result into this guard
// (release), then re-loads addr (acquire) to confirm nothing changed the
// location between the two loads. It retries until a load is confirmed
// stable, at which point the returned pointer is safe to dereference
// until the guard is cleared or released.
func (g *Guard[V]) Protect(addr *atomic.Pointer[V]) *V {
	for {
		p := addr.Load()
		g.h.slot.Data.hazards[g.idx].Store(p)
		if q := addr.Load(); q == p {
			return p
		}
		// addr changed between the two loads; the stale publication is
		// harmless (it merely over-protects an object a little longer)
		// but we must retry to return a pointer that is actually current.
	}
}

// Set publishes p directly without the load/validate dance, for callers
// that already hold a provably-current pointer (e.g. one just obtained
// from another guard, or a value a lock-coupled container already
// protects by other means).
func (g *Guard[V]) Set(p *V) {
	g.h.slot.Data.hazards[g.idx].Store(p)
}

// Clear unpublishes this guard's pointer without releasing the slot back
// to the handle, so it can be reused for another Protect call.
func (g *Guard[V]) Clear() {
	g.h.slot.Data.hazards[g.idx].Store(nil)
}

// Release clears the guard and frees its slot index for reuse by a
// future AcquireGuard call on the same handle.
func (g *Guard[V]) Release() {
	g.Clear()
	g.h.slot.Data.inUse[g.idx] = false
}
