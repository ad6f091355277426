package michael

import (
	"cmp"
	"sync/atomic"

	"github.com/khizmax/libcds-sub011/internal/guard"
	"github.com/khizmax/libcds-sub011/smr"
)

// prevRef names the atomic slot a predecessor uses to reach its
// successor: either the list head (which never carries a mark) or a
// node's own next field (boxed as a markedPtr). Unifying the two lets
// search/Insert/Erase share one CAS path regardless of which kind of
// predecessor they are linking against, the same way the source's
// atomic_marked_ptr_node::prev plays both roles through one type.
type prevRef[K cmp.Ordered, V any] struct {
	head *atomic.Pointer[node[K, V]]
	node *node[K, V]
}

func headRef[K cmp.Ordered, V any](l *List[K, V]) prevRef[K, V] {
	return prevRef[K, V]{head: &l.head}
}

func nodeRef[K cmp.Ordered, V any](n *node[K, V]) prevRef[K, V] {
	return prevRef[K, V]{node: n}
}

// load reports the successor currently linked from this predecessor and
// whether that link carries a logical-delete mark. The head never
// carries a mark.
func (p prevRef[K, V]) load() (succ *node[K, V], marked bool) {
	if p.head != nil {
		return p.head.Load(), false
	}
	mp := p.node.next.Load()
	return mp.next, mp.marked
}

// casLink swings this predecessor's link from oldSucc to newSucc. For a
// node predecessor, it additionally requires the link to still be
// unmarked: this is what makes an Insert that targets a node as its
// predecessor fail once a concurrent Erase has marked that node, since
// the mark and the next pointer live in the same CAS'd word.
func (p prevRef[K, V]) casLink(oldSucc, newSucc *node[K, V]) bool {
	if p.head != nil {
		return p.head.CompareAndSwap(oldSucc, newSucc)
	}
	old := p.node.next.Load()
	if old.next != oldSucc || old.marked {
		return false
	}
	return p.node.next.CompareAndSwap(old, &markedPtr[K, V]{next: newSucc})
}

// protectNext is search's analog of guard.Guard.Protect for a node's
// boxed (next, marked) word: it publishes the candidate successor into
// g, the same publish-then-validate loop Protect runs for a plain
// atomic.Pointer[V], then reports the mark alongside it.
func protectNext[K cmp.Ordered, V any](g guard.Guard[node[K, V]], n *node[K, V]) (next *node[K, V], marked bool) {
	for {
		mp := n.next.Load()
		g.Set(mp.next)
		if n.next.Load() == mp {
			return mp.next, mp.marked
		}
	}
}

// position is the result of a search: prev is the predecessor that
// should link to cur, cur is the first node whose key is >= the search
// key (nil at end of list), and next is cur's successor at the moment
// of the search. cur and next (when non-nil) remain protected by the
// guards used to find them for as long as those guards stay live —
// callers must not use pos.cur or pos.next after releasing the guards
// that produced it.
type position[K cmp.Ordered, V any] struct {
	prev prevRef[K, V]
	cur  *node[K, V]
	next *node[K, V]
}

type guards[K cmp.Ordered, V any] struct {
	prevOwner guard.Guard[node[K, V]] // keeps the node owning pos.prev alive; cleared when prev is the head
	cur       guard.Guard[node[K, V]]
	next      guard.Guard[node[K, V]]
}

func (h *Handle[K, V]) acquireGuards() (*guards[K, V], error) {
	if !h.reclaimer.Attached() {
		return nil, smr.ErrNotAttached
	}
	g0, err := h.reclaimer.AcquireGuard()
	if err != nil {
		return nil, err
	}
	g1, err := h.reclaimer.AcquireGuard()
	if err != nil {
		g0.Release()
		return nil, err
	}
	g2, err := h.reclaimer.AcquireGuard()
	if err != nil {
		g0.Release()
		g1.Release()
		return nil, err
	}
	return &guards[K, V]{prevOwner: g0, cur: g1, next: g2}, nil
}

func (g *guards[K, V]) release() {
	g.prevOwner.Release()
	g.cur.Release()
	g.next.Release()
}

// search finds the first node whose key is >= key, helping unlink any
// logically-deleted node it passes over along the way. It reports
// whether a node with key exactly equal to key was found. The caller
// owns g and must not release it until done using the returned
// position's cur/next pointers.
func (h *Handle[K, V]) search(g *guards[K, V], key K) (position[K, V], bool) {
	for {
		prev := headRef(h.l)
		g.prevOwner.Clear()
		cur := g.cur.Protect(&h.l.head)

		for {
			if cur == nil {
				return position[K, V]{prev: prev, cur: nil, next: nil}, false
			}
			next, marked := protectNext(g.next, cur)
			if got, _ := prev.load(); got != cur {
				break // structure changed under us; restart from head
			}

			if marked {
				if prev.casLink(cur, next) {
					h.reclaimer.Retire(cur, func() {})
				}
				cur = next
				g.cur.Set(next)
				continue
			}

			c := cmp.Compare(cur.key, key)
			if c >= 0 {
				return position[K, V]{prev: prev, cur: cur, next: next}, c == 0
			}
			prev = nodeRef(cur)
			g.prevOwner.Set(cur)
			g.cur.Set(next)
			cur = next
		}
		h.l.cfg.BackOff.SpinOnce(0)
	}
}

// Insert adds key/val if key is not already present. It reports whether
// the insertion happened.
func (h *Handle[K, V]) Insert(key K, val V) (bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, err
	}
	defer g.release()

	for {
		pos, found := h.search(g, key)
		if found {
			return false, nil
		}
		n := newNode(key, val, pos.cur)
		if pos.prev.casLink(pos.cur, n) {
			h.l.size.Add(1)
			return true, nil
		}
	}
}

// Update calls fn with the existing value and replaces it with fn's
// return value if key is present. If key is absent and insertOnMissing
// is true, it inserts key with the value fn(zero, false); if key is
// absent and insertOnMissing is false, it changes nothing. It reports
// (changed, inserted).
func (h *Handle[K, V]) Update(key K, insertOnMissing bool, fn func(existing V, found bool) V) (bool, bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, false, err
	}
	defer g.release()

	for {
		pos, found := h.search(g, key)
		if found {
			pos.cur.val = fn(pos.cur.val, true)
			return true, false, nil
		}
		if !insertOnMissing {
			return false, false, nil
		}
		n := newNode(key, fn(zeroOf[V](), false), pos.cur)
		if pos.prev.casLink(pos.cur, n) {
			h.l.size.Add(1)
			return true, true, nil
		}
	}
}

func zeroOf[V any]() V {
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
		pos, found := h.search(g, key)
		if !found {
			return false, nil
		}
		old := pos.cur.next.Load()
		if old.marked {
			continue // lost the logical-delete race; retry from scratch
		}
		if !pos.cur.next.CompareAndSwap(old, &markedPtr[K, V]{next: old.next, marked: true}) {
			continue // a concurrent Insert or Erase changed this word first
		}
		// next is re-read from the CAS that just won, never from a
		// snapshot taken before the mark: a concurrent Insert that
		// linked a new successor onto pos.cur would have changed this
		// word and made the CAS above fail instead, so old.next here is
		// exactly what was linked at the moment of marking.
		if pos.prev.casLink(pos.cur, old.next) {
			h.reclaimer.Retire(pos.cur, func() {})
		}
		// Whether or not the physical unlink CAS above won the race, the
		// element is logically gone: some search (ours or a concurrent
		// one) will finish the physical unlink.
		h.l.size.Add(-1)
		return true, nil
	}
}

// Find calls fn with key's value and reports whether key was present.
// fn must not block; the node is only guaranteed alive while fn runs.
func (h *Handle[K, V]) Find(key K, fn func(val V)) (bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, err
	}
	defer g.release()

	pos, found := h.search(g, key)
	if found {
		fn(pos.cur.val)
	}
	return found, nil
}

// Contains reports whether key is present.
func (h *Handle[K, V]) Contains(key K) (bool, error) {
	g, err := h.acquireGuards()
	if err != nil {
		return false, err
	}
	defer g.release()

	_, found := h.search(g, key)
	return found, nil
}
