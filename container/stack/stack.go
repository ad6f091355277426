/*
Package stack implements the Treiber stack with optional elimination
back-off of spec.md §4.G: a lock-free LIFO over a singly-linked list,
guarded by a pluggable SMR scheme (Hazard Pointers or Dynamic Hazard
Pointers), with an optional side array that lets concurrent push/pop
pairs cancel each other out without ever touching the top-of-stack
pointer.

The stack is intrusive at its core — node[V] holds V directly, with no
separate heap box per element beyond the node itself — per spec.md §9's
resolution of the intrusive/non-intrusive duality.
*/
package stack

import (
	"sync/atomic"
	"time"

	"github.com/khizmax/libcds-sub011/backoff"
	"github.com/khizmax/libcds-sub011/internal/guard"
	"github.com/khizmax/libcds-sub011/smr/dhp"
	"github.com/khizmax/libcds-sub011/smr/hp"
)

type node[V any] struct {
	val  V
	next atomic.Pointer[node[V]]
}

// Config configures a Stack.
type Config struct {
	MaxThreads        int
	HazardsPerThread  int
	UseDHP            bool
	EnableElimination bool
	EliminationSlots  int
	EliminationDelay  time.Duration
	BackOff           backoff.Strategy
}

// Option adjusts a Config.
type Option func(*Config)

// MaxThreads sets the SMR scheme's thread capacity.
func MaxThreads(n int) Option { return func(c *Config) { c.MaxThreads = n } }

// HazardsPerThread sets K for the HP scheme (ignored if UseDHP is set).
func HazardsPerThread(n int) Option { return func(c *Config) { c.HazardsPerThread = n } }

// UseDHP selects Dynamic Hazard Pointers instead of the default, fixed
// Hazard Pointers scheme.
func UseDHP(b bool) Option { return func(c *Config) { c.UseDHP = b } }

// WithElimination enables the elimination back-off layer (spec.md
// §4.G's optional layer).
func WithElimination(b bool) Option { return func(c *Config) { c.EnableElimination = b } }

// EliminationSlots sets the size of the collision array.
func EliminationSlots(n int) Option { return func(c *Config) { c.EliminationSlots = n } }

// EliminationDelay bounds how long an operation waits in the elimination
// array for a partner before falling back to the main protocol.
func EliminationDelay(d time.Duration) Option { return func(c *Config) { c.EliminationDelay = d } }

// WithBackOff sets the retry strategy used by the main CAS loop. The
// elimination layer's collision wait does not use it; it polls its slot
// at a fixed one-microsecond interval.
func WithBackOff(s backoff.Strategy) Option { return func(c *Config) { c.BackOff = s } }

func defaultConfig() Config {
	return Config{
		MaxThreads:       64,
		HazardsPerThread: hp.DefaultHazardsPerThread,
		EliminationSlots: 8,
		EliminationDelay: 100 * time.Microsecond,
		BackOff:          backoff.Pause{},
	}
}

// Stack is a lock-free LIFO stack over values of type V.
type Stack[V any] struct {
	top atomic.Pointer[node[V]]

	cfg       Config
	hpScheme  *hp.Scheme[node[V]]
	dhpScheme *dhp.Scheme[node[V]]
	elim      *eliminationArray[V]
}

// New creates a Stack per the given options. The default scheme is
// Hazard Pointers with HazardsPerThread(8); pass UseDHP(true) to use
// Dynamic Hazard Pointers instead.
func New[V any](opts ...Option) *Stack[V] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	s := &Stack[V]{cfg: cfg}
	if cfg.UseDHP {
		s.dhpScheme = dhp.NewScheme[node[V]](dhp.MaxThreads(cfg.MaxThreads))
	} else {
		s.hpScheme = hp.NewScheme[node[V]](hp.MaxThreads(cfg.MaxThreads), hp.HazardsPerThread(cfg.HazardsPerThread))
	}
	if cfg.EnableElimination {
		s.elim = newEliminationArray[V](cfg.EliminationSlots)
		if cfg.EliminationDelay > 0 {
			s.elim.delay = cfg.EliminationDelay
		}
	}
	return s
}

// Handle is a single thread's attachment to a Stack; it must be used by
// only one goroutine at a time and Detach'd exactly once when the
// goroutine is done with the stack.
type Handle[V any] struct {
	s         *Stack[V]
	reclaimer guard.Reclaimer[node[V]]
	detach    func()
}

// Attach allocates a Handle for the calling thread.
func (s *Stack[V]) Attach() (*Handle[V], error) {
	if s.cfg.UseDHP {
		h, err := s.dhpScheme.Attach()
		if err != nil {
			return nil, err
		}
		return &Handle[V]{s: s, reclaimer: guard.DHP[node[V]]{Handle: h}, detach: h.Detach}, nil
	}
	h, err := s.hpScheme.Attach()
	if err != nil {
		return nil, err
	}
	return &Handle[V]{s: s, reclaimer: guard.HP[node[V]]{Handle: h}, detach: h.Detach}, nil
}

// Detach releases the handle's SMR resources.
func (h *Handle[V]) Detach() {
	h.detach()
}

// Empty reports whether the stack currently has no elements. It takes no
// handle since it only inspects the top pointer's identity, never
// dereferences it.
func (s *Stack[V]) Empty() bool {
	return s.top.Load() == nil
}

// Clear removes every element, retiring each popped node through h.
func (h *Handle[V]) Clear() {
	for {
		_, ok, err := h.Pop()
		if !ok || err != nil {
			return
		}
	}
}
