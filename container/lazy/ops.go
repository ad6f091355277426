package lazy

import (
	"cmp"

	"github.com/khizmax/libcds-sub011/smr"
)

// search walks the list guarding pred and curr with the handle's own
// two guards, stopping at the first node whose key is >= key (or at the
// end). pred is nil when curr (or the insertion point) is the head of
// the list. The returned nodes remain protected until the caller
// releases the guards; search itself never unlinks anything — physical
// removal only happens under lock, in erase.
func (h *Handle[K, V]) search(g *guards[K, V], key K) (pred, curr *node[K, V]) {
	for n := h.l.head.Load(); ; n = n.next.Load() {
		if n != nil {
			g.curr.Set(n)
		} else {
			g.curr.Clear()
		}
		if n == nil || cmp.Compare(n.key, key) >= 0 {
			return pred, n
		}
		pred = n
		g.pred.Set(n)
	}
}

type guards[K cmp.Ordered, V any] struct {
	pred guardIface[K, V]
	curr guardIface[K, V]
}

// guardIface narrows the guard package's interface to what search needs
// (Set/Clear only — Protect is unnecessary here since the unsynchronized
// traversal does not need the load/validate dance: validate() under
// lock is what makes the traversal safe to act on, not the read itself).
type guardIface[K cmp.Ordered, V any] interface {
	Set(p *node[K, V])
	Clear()
	Release()
}

func (h *Handle[K, V]) acquireGuards() (*guards[K, V], error) {
	if !h.reclaimer.Attached() {
		return nil, smr.ErrNotAttached
	}
	p, err := h.reclaimer.AcquireGuard()
	if err != nil {
		return nil, err
	}
	c, err := h.reclaimer.AcquireGuard()
	if err != nil {
		p.Release()
		return nil, err
	}
	return &guards[K, V]{pred: p, curr: c}, nil
}

func (g *guards[K, V]) release() {
	g.pred.Release()
	g.curr.Release()
}

func validate[K cmp.Ordered, V any](l *List[K, V], pred, curr *node[K, V]) bool {
	if pred != nil {
		if pred.marked.Load() {
			return false
		}
		if pred.next.Load() != curr {
			return false
		}
	} else if l.head.Load() != curr {
		return false
	}
	if curr != nil && curr.marked.Load() {
		return false
	}
	return true
}

func lockPair[K cmp.Ordered, V any](pred, curr *node[K, V]) {
	if pred != nil {
		pred.mu.Lock()
	}
	if curr != nil && curr != pred {
		curr.mu.Lock()
	}
}

func unlockPair[K cmp.Ordered, V any](pred, curr *node[K, V]) {
	if curr != nil && curr != pred {
		curr.mu.Unlock()
	}
	if pred != nil {
		pred.mu.Unlock()
	}
}

// Insert adds key/val if key is not already present.
func (h *Handle[K, V]) Insert(key K, val V) (bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, err
	}
	defer g.release()

	for {
		pred, curr := h.search(g, key)
		lockPair(pred, curr)
		if !validate(h.l, pred, curr) {
			unlockPair(pred, curr)
			h.l.cfg.BackOff.SpinOnce(0)
			continue
		}
		if curr != nil && cmp.Compare(curr.key, key) == 0 {
			unlockPair(pred, curr)
			return false, nil
		}
		n := &node[K, V]{key: key, val: val}
		n.next.Store(curr)
		if pred != nil {
			pred.next.Store(n)
		} else {
			h.l.head.Store(n)
		}
		unlockPair(pred, curr)
		h.l.size.Add(1)
		return true, nil
	}
}

// Update calls fn with the existing value (while curr's lock is held)
// and stores fn's return value back if key is present. If key is absent
// and insertOnMissing is true, it inserts key with the value
// fn(zero, false); if key is absent and insertOnMissing is false, it
// changes nothing. It reports (changed, inserted).
func (h *Handle[K, V]) Update(key K, insertOnMissing bool, fn func(existing V, found bool) V) (bool, bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, false, err
	}
	defer g.release()

	for {
		pred, curr := h.search(g, key)
		lockPair(pred, curr)
		if !validate(h.l, pred, curr) {
			unlockPair(pred, curr)
			h.l.cfg.BackOff.SpinOnce(0)
			continue
		}
		if curr != nil && cmp.Compare(curr.key, key) == 0 {
			curr.val = fn(curr.val, true)
			unlockPair(pred, curr)
			return true, false, nil
		}
		if !insertOnMissing {
			unlockPair(pred, curr)
			return false, false, nil
		}
		n := &node[K, V]{key: key, val: fn(zeroVal[V](), false)}
		n.next.Store(curr)
		if pred != nil {
			pred.next.Store(n)
		} else {
			h.l.head.Store(n)
		}
		unlockPair(pred, curr)
		h.l.size.Add(1)
		return true, true, nil
	}
}

func zeroVal[V any]() V {
	var z V
	return z
}

// Erase removes key if present and reports whether it did.
func (h *Handle[K, V]) Erase(key K) (bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, err
	}
	defer g.release()

	for {
		pred, curr := h.search(g, key)
		if curr == nil || cmp.Compare(curr.key, key) != 0 {
			return false, nil
		}
		lockPair(pred, curr)
		if !validate(h.l, pred, curr) {
			unlockPair(pred, curr)
			h.l.cfg.BackOff.SpinOnce(0)
			continue
		}
		curr.marked.Store(true)
		next := curr.next.Load()
		if pred != nil {
			pred.next.Store(next)
		} else {
			h.l.head.Store(next)
		}
		unlockPair(pred, curr)
		h.reclaimer.Retire(curr, func() {})
		h.l.size.Add(-1)
		return true, nil
	}
}

// Find calls fn with key's value and reports whether key is present and
// unmarked. Find never locks: it is the wait-free membership test the
// lazy-list algorithm is named for.
func (h *Handle[K, V]) Find(key K, fn func(val V)) (bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, err
	}
	defer g.release()

	_, curr := h.search(g, key)
	if curr == nil || cmp.Compare(curr.key, key) != 0 || curr.marked.Load() {
		return false, nil
	}
	fn(curr.val)
	return true, nil
}

// Contains reports whether key is present.
func (h *Handle[K, V]) Contains(key K) (bool, error) {
	return h.Find(key, func(V) {})
}
