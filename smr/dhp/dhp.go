/*
Package dhp implements Dynamic Hazard Pointers — Pass-the-Buck — per
spec.md §4.D. Unlike smr/hp's fixed per-thread array, guards here are
drawn from a global pool: a thread first tries its own local free list,
then the shared global free list, and only allocates a new guard (linked
into an append-only global list for every scan to walk) if both are
empty. Retired nodes live in one process-wide lock-free stack rather
than per-thread buffers, and reclamation uses epoch tagging instead of a
raw hazard-set comparison: a retired record is only eligible once the
global epoch has advanced at least two ticks past the one it was
retired under, which rules out a guard published concurrently with the
scan itself (spec.md §4.D, "Epoch tagging prevents ABA of the scan
itself").
*/
package dhp

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/khizmax/libcds-sub011/smr"
)

// Config configures a Scheme.
type Config struct {
	MaxThreads    int
	ScanThreshold int
}

// Option adjusts a Config.
type Option func(*Config)

// MaxThreads sets the registry's thread capacity.
func MaxThreads(n int) Option { return func(c *Config) { c.MaxThreads = n } }

// ScanThreshold sets how many globally retired records accumulate before
// Retire triggers a scan.
func ScanThreshold(n int) Option { return func(c *Config) { c.ScanThreshold = n } }

func defaultConfig() Config {
	return Config{MaxThreads: 64, ScanThreshold: 256}
}

// guardNode is a single dynamically-allocated guard. next links it into
// the scheme's append-only allocated list (walked by every scan); the
// free lists (a thread's localFree and the scheme's globalFree) are
// slices of guardNode pointers.
type guardNode[V any] struct {
	ptr  atomic.Pointer[V]
	next *guardNode[V]
}

// threadData is the per-thread registry payload: just a local,
// single-owner free list of guards this thread has released and can
// reuse without touching any shared state.
type threadData[V any] struct {
	localFree []*guardNode[V]
}

// Scheme is one Dynamic Hazard Pointer instance guarding nodes of type
// V.
type Scheme[V any] struct {
	reg *smr.Registry[threadData[V]]

	allocated atomic.Pointer[guardNode[V]] // append-only, CAS-prepend

	globalMu   sync.Mutex // guards globalFree only; O(1) work under the lock
	globalFree []*guardNode[V]

	epoch atomic.Uint64

	retired       atomic.Pointer[retiredNode]
	retiredCount  atomic.Int64
	scanThreshold int
}

type retiredNode struct {
	ptr     unsafe.Pointer
	dispose func()
	epoch   uint64
	next    *retiredNode
}

// NewScheme creates a Scheme per the given options.
func NewScheme[V any](opts ...Option) *Scheme[V] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	s := &Scheme[V]{scanThreshold: cfg.ScanThreshold}
	s.reg = smr.NewRegistry[threadData[V]](cfg.MaxThreads, func(sl *smr.Slot[threadData[V]]) {
		s.detachCleanup(sl)
	})
	return s
}

// Handle is the token a thread obtains from Attach.
type Handle[V any] struct {
	slot   *smr.Slot[threadData[V]]
	scheme *Scheme[V]
}

// Attach allocates a handle for the calling thread.
func (s *Scheme[V]) Attach() (*Handle[V], error) {
	sl, err := s.reg.Attach()
	if err != nil {
		return nil, err
	}
	return &Handle[V]{slot: sl, scheme: s}, nil
}

// Detach returns every guard this handle still owns in its local free
// list to the global pool, then releases the thread slot.
func (h *Handle[V]) Detach() {
	h.slot.Detach()
}

// Attached reports whether this handle's slot is still attached to its
// scheme's registry. A handle that has been Detach'd reports false.
func (h *Handle[V]) Attached() bool {
	return h.scheme.reg.Attached(h.slot)
}

func (s *Scheme[V]) detachCleanup(sl *smr.Slot[threadData[V]]) {
	if len(sl.Data.localFree) == 0 {
		return
	}
	s.globalMu.Lock()
	s.globalFree = append(s.globalFree, sl.Data.localFree...)
	s.globalMu.Unlock()
	sl.Data.localFree = nil
}
