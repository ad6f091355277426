package dhp

import "unsafe"

// Retire buffers p in the scheme's global retired stack, stamped with
// the scheme's current epoch. dispose runs once the epoch has advanced
// at least two ticks past that stamp and no published guard anywhere in
// the scheme still points at p. Retire triggers a scan itself once the
// global retired count crosses the scheme's scan threshold.
func (h *Handle[V]) Retire(p *V, dispose func()) {
	n := &retiredNode{
		ptr:     unsafe.Pointer(p),
		dispose: dispose,
		epoch:   h.scheme.epoch.Load(),
	}
	for {
		head := h.scheme.retired.Load()
		n.next = head
		if h.scheme.retired.CompareAndSwap(head, n) {
			break
		}
	}
	if h.scheme.retiredCount.Add(1) >= int64(h.scheme.scanThreshold) {
		h.scheme.scan()
	}
}

// Scan forces an immediate epoch-based reclamation pass, regardless of
// the scan threshold.
func (h *Handle[V]) Scan() {
	h.scheme.scan()
}

// scan implements spec.md §4.D's reclamation pass: snapshot every
// published guard, drain the retired stack, free everything at least two
// epochs stale and not in the guard snapshot, requeue the rest, then
// advance the epoch so that a guard published concurrently with this
// scan is visible no later than the next call.
func (s *Scheme[V]) scan() {
	live := map[unsafe.Pointer]struct{}{}
	for g := s.allocated.Load(); g != nil; g = g.next {
		if p := g.ptr.Load(); p != nil {
			live[unsafe.Pointer(p)] = struct{}{}
		}
	}

	head := s.retired.Swap(nil)
	var drained []*retiredNode
	for n := head; n != nil; n = n.next {
		drained = append(drained, n)
	}
	s.retiredCount.Add(-int64(len(drained)))

	current := s.epoch.Load()
	var survivors []*retiredNode
	for _, n := range drained {
		_, hazardous := live[n.ptr]
		if !hazardous && current-n.epoch >= 2 {
			n.dispose()
		} else {
			survivors = append(survivors, n)
		}
	}
	for _, n := range survivors {
		n.next = nil
		for {
			h := s.retired.Load()
			n.next = h
			if s.retired.CompareAndSwap(h, n) {
				break
			}
		}
		s.retiredCount.Add(1)
	}
	s.epoch.Add(1)
}
