package stack

import "github.com/khizmax/libcds-sub011/smr"

// Push adds v to the top of the stack. It always succeeds once past the
// attached check (spec.md §4.G's core protocol has no failure outcome
// for push). If elimination is enabled and the initial CAS loses a
// race, Push first tries to pair with a waiting Pop via the collision
// array before retrying the main protocol.
func (h *Handle[V]) Push(v V) error {
	if !h.reclaimer.Attached() {
		return smr.ErrNotAttached
	}
	n := &node[V]{val: v}
	attempt := 0
	for {
		t := h.s.top.Load()
		n.next.Store(t) // relaxed: n is not yet visible to any other thread
		if h.s.top.CompareAndSwap(t, n) {
			return nil
		}
		if h.s.elim != nil {
			if h.s.elim.tryPush(v) {
				return nil
			}
		}
		h.s.cfg.BackOff.SpinOnce(attempt)
		attempt++
	}
}

// Pop removes and returns the top element, or reports false if the stack
// was empty. The popped node is retired through h once unlinked, so it
// is not reclaimed while any other thread's guard might still be
// protecting it.
func (h *Handle[V]) Pop() (V, bool, error) {
	var zero V
	if !h.reclaimer.Attached() {
		return zero, false, smr.ErrNotAttached
	}
	attempt := 0
	for {
		g, err := h.reclaimer.AcquireGuard()
		if err != nil {
			return zero, false, err
		}
		t := g.Protect(&h.s.top)
		if t == nil {
			g.Release()
			if h.s.elim != nil {
				if v, ok := h.s.elim.tryPop(); ok {
					return v, true, nil
				}
			}
			return zero, false, nil
		}
		next := t.next.Load()
		if h.s.top.CompareAndSwap(t, next) {
			v := t.val
			g.Release()
			h.reclaimer.Retire(t, func() {})
			return v, true, nil
		}
		g.Release()
		if h.s.elim != nil {
			if v, ok := h.s.elim.tryPop(); ok {
				return v, true, nil
			}
		}
		h.s.cfg.BackOff.SpinOnce(attempt)
		attempt++
	}
}
