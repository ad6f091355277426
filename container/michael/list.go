/*
Package michael implements Michael's lock-free ordered singly-linked
list of spec.md §4.H: a sorted list with lock-free search that helps
unlink marked nodes, and CAS-based logical deletion, guarded by a pluggable SMR scheme exactly
like container/stack.

Unlike the source library, deletion marking is not a pointer tag bit
stolen from next — Go gives pointers no spare bits to steal safely. The
source's marked_node_ptr instead gets reproduced by boxing (next,
marked) together in one small struct, markedPtr, and CASing the node's
next field to a freshly allocated markedPtr on every transition (see
ops.go). This keeps a node's erase-mark and its next-pointer update as
a single atomic word, so link_node's CAS in the source
(cds/intrusive/impl/michael_list.h) and this port's Insert CAS fail
under exactly the same conditions: a concurrent Insert targeting a node
as its predecessor cannot succeed once that node's mark bit has
flipped, because the mark flip is itself a CAS on the same word Insert
is CASing.
*/
package michael

import (
	"cmp"
	"sync/atomic"

	"github.com/khizmax/libcds-sub011/backoff"
	"github.com/khizmax/libcds-sub011/internal/guard"
	"github.com/khizmax/libcds-sub011/smr/dhp"
	"github.com/khizmax/libcds-sub011/smr/hp"
)

// markedPtr is the Go substitute for the source's tagged marked_node_ptr:
// a node's successor and its logical-delete mark, boxed together so both
// can be swung atomically in one CompareAndSwap.
type markedPtr[K cmp.Ordered, V any] struct {
	next   *node[K, V]
	marked bool
}

type node[K cmp.Ordered, V any] struct {
	key  K
	val  V
	next atomic.Pointer[markedPtr[K, V]]
}

func newNode[K cmp.Ordered, V any](key K, val V, succ *node[K, V]) *node[K, V] {
	n := &node[K, V]{key: key, val: val}
	n.next.Store(&markedPtr[K, V]{next: succ})
	return n
}

// Config configures a List.
type Config struct {
	MaxThreads       int
	HazardsPerThread int
	UseDHP           bool
	BackOff          backoff.Strategy
}

// Option adjusts a Config.
type Option func(*Config)

func MaxThreads(n int) Option       { return func(c *Config) { c.MaxThreads = n } }
func HazardsPerThread(n int) Option { return func(c *Config) { c.HazardsPerThread = n } }
func UseDHP(b bool) Option          { return func(c *Config) { c.UseDHP = b } }
func WithBackOff(s backoff.Strategy) Option {
	return func(c *Config) { c.BackOff = s }
}

func defaultConfig() Config {
	return Config{
		MaxThreads:       64,
		HazardsPerThread: hp.DefaultHazardsPerThread,
		BackOff:          backoff.Pause{},
	}
}

// HazardsRequired is the hazard-pointer count a List needs per thread.
// It is fixed: one guard
// for the previous node, one for the current node, one for the next
// node, matching c_nHazardPtrCount in the source.
const HazardsRequired = 3

// List is a Michael-style ordered list. The zero value is not usable;
// construct with New.
type List[K cmp.Ordered, V any] struct {
	head atomic.Pointer[node[K, V]]
	size atomic.Int64

	cfg       Config
	hpScheme  *hp.Scheme[node[K, V]]
	dhpScheme *dhp.Scheme[node[K, V]]
}

// New creates an empty List.
func New[K cmp.Ordered, V any](opts ...Option) *List[K, V] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.HazardsPerThread < HazardsRequired {
		cfg.HazardsPerThread = HazardsRequired
	}
	l := &List[K, V]{cfg: cfg}
	if cfg.UseDHP {
		l.dhpScheme = dhp.NewScheme[node[K, V]](dhp.MaxThreads(cfg.MaxThreads))
	} else {
		l.hpScheme = hp.NewScheme[node[K, V]](hp.MaxThreads(cfg.MaxThreads), hp.HazardsPerThread(cfg.HazardsPerThread))
	}
	return l
}

// Handle is a single thread's attachment to a List.
type Handle[K cmp.Ordered, V any] struct {
	l         *List[K, V]
	reclaimer guard.Reclaimer[node[K, V]]
	detach    func()
}

// Attach allocates a Handle for the calling thread.
func (l *List[K, V]) Attach() (*Handle[K, V], error) {
	if l.cfg.UseDHP {
		h, err := l.dhpScheme.Attach()
		if err != nil {
			return nil, err
		}
		return &Handle[K, V]{l: l, reclaimer: guard.DHP[node[K, V]]{Handle: h}, detach: h.Detach}, nil
	}
	h, err := l.hpScheme.Attach()
	if err != nil {
		return nil, err
	}
	return &Handle[K, V]{l: l, reclaimer: guard.HP[node[K, V]]{Handle: h}, detach: h.Detach}, nil
}

// Detach releases the handle's SMR resources.
func (h *Handle[K, V]) Detach() { h.detach() }

// Empty reports whether the list currently has no elements.
func (l *List[K, V]) Empty() bool { return l.head.Load() == nil }

// Size returns the approximate number of elements (an item_counter
// analog, not a strict linearization point per spec.md §4.H).
func (l *List[K, V]) Size() int { return int(l.size.Load()) }
