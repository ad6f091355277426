/*
Package hp implements Hazard Pointers, the bounded per-thread scheme of
spec.md §4.C: each attached thread owns a small fixed array of hazard
slots it uses to publish a pointer before dereferencing it, and a
per-thread buffer of retired pointers that a scan periodically
cross-references against every thread's published hazards.

Scheme is generic over the node type V it guards. A container
instantiates one Scheme[nodeType] and shares it across every goroutine
that will operate on that container; each goroutine calls Attach once
before its first operation and Detach once when done, per smr.Registry's
contract.
*/
package hp

import (
	"sync/atomic"

	"github.com/khizmax/libcds-sub011/smr"
)

// DefaultHazardsPerThread is the default capacity K of each thread's
// hazard array (spec.md §4.C parameters).
const DefaultHazardsPerThread = 8

// Config configures a Scheme. Build one with Options passed to NewScheme.
type Config struct {
	MaxThreads       int
	HazardsPerThread int
	RetireThreshold  int
}

// Option adjusts a Config.
type Option func(*Config)

// MaxThreads sets the number of threads the scheme's registry can hold
// attached simultaneously.
func MaxThreads(n int) Option { return func(c *Config) { c.MaxThreads = n } }

// HazardsPerThread sets K, the per-thread hazard array capacity.
func HazardsPerThread(n int) Option { return func(c *Config) { c.HazardsPerThread = n } }

// RetireThreshold sets R, the per-thread retired-list size that triggers
// a scan. If unset, it defaults to 2*MaxThreads*HazardsPerThread per
// spec.md §4.C.
func RetireThreshold(n int) Option { return func(c *Config) { c.RetireThreshold = n } }

func defaultConfig() Config {
	return Config{MaxThreads: 64, HazardsPerThread: DefaultHazardsPerThread}
}

// slotData is the per-thread payload stored in the shared thread
// registry: the thread's hazard array and its buffered retired records.
type slotData[V any] struct {
	hazards []atomic.Pointer[V]
	inUse   []bool // inUse[i] is set while a Guard holds hazards[i]
	retired smr.Batch
}

// Scheme is one Hazard Pointer instance guarding nodes of type V. Create
// one per container; do not share a Scheme across containers with
// different node types or lifetimes, since a scan only ever examines the
// hazards and retirees this Scheme's own registry knows about.
type Scheme[V any] struct {
	reg              *smr.Registry[slotData[V]]
	hazardsPerThread int
	retireThreshold  int
}

// NewScheme creates a Scheme per the given options, defaulting to
// MaxThreads(64) and HazardsPerThread(8) — spec.md §4.C's default K.
func NewScheme[V any](opts ...Option) *Scheme[V] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.RetireThreshold <= 0 {
		cfg.RetireThreshold = 2 * cfg.MaxThreads * cfg.HazardsPerThread
	}
	s := &Scheme[V]{
		hazardsPerThread: cfg.HazardsPerThread,
		retireThreshold:  cfg.RetireThreshold,
	}
	s.reg = smr.NewRegistry[slotData[V]](cfg.MaxThreads, func(sl *smr.Slot[slotData[V]]) {
		s.detachCleanup(sl)
	})
	return s
}

// Handle is the token a thread obtains from Attach and must present to
// every guard it acquires and every pointer it retires.
type Handle[V any] struct {
	slot   *smr.Slot[slotData[V]]
	scheme *Scheme[V]
}

// Attach allocates a hazard-pointer handle for the calling thread. Fails
// with smr.ErrTooManyThreads if the scheme's thread capacity is already
// exhausted.
func (s *Scheme[V]) Attach() (*Handle[V], error) {
	sl, err := s.reg.Attach()
	if err != nil {
		return nil, err
	}
	if sl.Data.hazards == nil {
		sl.Data.hazards = make([]atomic.Pointer[V], s.hazardsPerThread)
	}
	return &Handle[V]{slot: sl, scheme: s}, nil
}

// Detach clears the handle's hazards, flushes its retired records through
// a final scan, and releases the slot. Records that scan could not free
// are appended to the retired batch of another attached slot, or
// disposed at once if no other slot is attached.
func (h *Handle[V]) Detach() {
	h.slot.Detach()
}

// Attached reports whether this handle's slot is still attached to its
// scheme's registry. A handle that has been Detach'd, or that has not
// yet survived its first Attach, reports false.
func (h *Handle[V]) Attached() bool {
	return h.scheme.reg.Attached(h.slot)
}

func (s *Scheme[V]) detachCleanup(sl *smr.Slot[slotData[V]]) {
	for i := range sl.Data.hazards {
		sl.Data.hazards[i].Store(nil)
	}
	s.scanInto(sl)
	// Anything this thread's scan could not clear must not be dropped:
	// hand it to any other currently attached slot's batch so it is not
	// lost, since this slot's Data will be zeroed for its next owner.
	if rest := sl.Data.retired.Drain(); len(rest) > 0 {
		others := s.reg.Slots()
		for _, o := range others {
			if o.Index != sl.Index && s.reg.Attached(o) {
				o.Data.retired.Requeue(rest)
				return
			}
		}
		// No other thread is attached to inherit these; it is safe to
		// free them immediately since no hazard array can exist to
		// protect them.
		for _, r := range rest {
			r.Dispose()
		}
	}
}
