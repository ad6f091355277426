package dhp

import "sync/atomic"

// Guard is a dynamically-allocated hazard slot.
type Guard[V any] struct {
	h *Handle[V]
	n *guardNode[V]
}

// AcquireGuard returns a guard for the calling thread: from its local
// free list if one is available, else from the scheme's global free
// list, else a freshly heap-allocated guard linked into the global
// allocated list. It never blocks permanently — the mutex it may briefly
// take guards only an O(1) slice pop (spec.md §4.D progress note).
func (h *Handle[V]) AcquireGuard() *Guard[V] {
	td := &h.slot.Data
	if n := len(td.localFree); n > 0 {
		g := td.localFree[n-1]
		td.localFree = td.localFree[:n-1]
		return &Guard[V]{h: h, n: g}
	}

	h.scheme.globalMu.Lock()
	if n := len(h.scheme.globalFree); n > 0 {
		g := h.scheme.globalFree[n-1]
		h.scheme.globalFree = h.scheme.globalFree[:n-1]
		h.scheme.globalMu.Unlock()
		return &Guard[V]{h: h, n: g}
	}
	h.scheme.globalMu.Unlock()

	g := &guardNode[V]{}
	for {
		head := h.scheme.allocated.Load()
		g.next = head
		if h.scheme.allocated.CompareAndSwap(head, g) {
			break
		}
	}
	return &Guard[V]{h: h, n: g}
}

// Protect implements the same publish-then-validate contract as
// smr/hp.Guard.Protect.
func (g *Guard[V]) Protect(addr *atomic.Pointer[V]) *V {
	for {
		p := addr.Load()
		g.n.ptr.Store(p)
		if q := addr.Load(); q == p {
			return p
		}
	}
}

// Set publishes p directly, for a caller that already holds a
// provably-current pointer.
func (g *Guard[V]) Set(p *V) {
	g.n.ptr.Store(p)
}

// Clear unpublishes this guard's pointer, marking it free (spec.md §4.D:
// "A guard is free iff its published pointer is null") without returning
// it to any free list yet.
func (g *Guard[V]) Clear() {
	g.n.ptr.Store(nil)
}

// Release clears the guard and pushes it onto the owning thread's local
// free list — no global synchronization (spec.md §4.D).
func (g *Guard[V]) Release() {
	g.Clear()
	td := &g.h.slot.Data
	td.localFree = append(td.localFree, g.n)
}
