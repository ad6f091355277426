/*
Package lazy implements the lazy lock-coupled ordered list of spec.md
§4.I: Heller, Herlihy, Luchangco, Moir, Scherer, and Shavit's
optimistic-locking list. Search is wait-free and lock-free; insert and
erase perform an unsynchronized traversal, then lock exactly the two
nodes they intend to change and validate before committing.

Each node carries its own sync.Mutex and a "marked" flag (spec.md §9:
logical deletion as a struct field rather than a reused pointer bit,
the same resolution container/michael uses). Reclamation of physically
unlinked nodes still goes through the pluggable SMR scheme, since the
lock only serializes against other mutators — a concurrent, lock-free
Find may still be holding a guard on a node the locked mutators just
unlinked.
*/
package lazy

import (
	"cmp"
	"sync"
	"sync/atomic"

	"github.com/khizmax/libcds-sub011/backoff"
	"github.com/khizmax/libcds-sub011/internal/guard"
	"github.com/khizmax/libcds-sub011/smr/dhp"
	"github.com/khizmax/libcds-sub011/smr/hp"
)

type node[K cmp.Ordered, V any] struct {
	key    K
	val    V
	mu     sync.Mutex
	marked atomic.Bool
	next   atomic.Pointer[node[K, V]]
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

// HazardsRequired is the number of guards a traversal needs concurrently
// (predecessor and current node).
const HazardsRequired = 2

// List is a lazy lock-coupled ordered set keyed by K.
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

// Size returns the approximate number of live elements.
func (l *List[K, V]) Size() int { return int(l.size.Load()) }
