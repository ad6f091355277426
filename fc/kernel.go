/*
Package fc implements the flat-combining kernel of spec.md §4.F: a
generic technique for converting a sequential data structure into a
concurrent one via a publication list and a single combiner thread per
epoch. Container authors (none of this module's containers uses it;
any sequential structure qualifies) publish requests into a Record, contend for the combiner lock, and
either run every pending request themselves as the elected combiner or
park on their Record's wait strategy until some combiner reaches it.

Unlike smr/hp and smr/dhp, the kernel does not guard pointers against
concurrent reclamation: operations it dispatches run entirely inside the
combiner's single-threaded critical section, so there is nothing else
that could be concurrently mutating the underlying structure while
Apply or Process runs.
*/
package fc

import (
	"sync"
	"sync/atomic"

	"github.com/khizmax/libcds-sub011/backoff"
)

const (
	recInactive int32 = iota
	recActive
	recRemoved
)

const (
	reqEmpty int32 = iota
	reqPending
	reqResponse
)

// Record is one thread's publication slot. T is the opaque
// request/response payload a container defines for its own operations —
// a container typically gives T a small "kind" tag field plus
// operation-specific parameters and, after Combine returns, the result.
type Record[T any] struct {
	Payload T

	state    atomic.Int32
	reqState atomic.Int32
	age      atomic.Int64
	wait     backoff.Waitable

	nextActive    atomic.Pointer[Record[T]]
	nextAllocated *Record[T]
}

// Owner lets a container apply a single queued request during a
// combining pass.
type Owner[T any] interface {
	// Apply is invoked by the combiner, once per pending request, with
	// exclusive access to the container's sequential state. It must
	// write any result back into payload before returning.
	Apply(payload *T)
}

// BatchOwner lets a container traverse every currently active request in
// one pass — e.g. to collide matching push/pop requests as in a
// flat-combining deque — instead of having the kernel dispatch them one
// at a time.
type BatchOwner[T any] interface {
	// Process is called once per combining pass with the head of the
	// active list (possibly nil). The owner is responsible for walking
	// nextActive, inspecting pending records' Payload, and marking each
	// one it has serviced as done via (*Record[T]).MarkDone.
	Process(head *Record[T])
}

// Config configures a Kernel.
type Config struct {
	CombinePassCount int
	CompactFactor    int
	NewWaiter        func() backoff.Waitable
}

// Option adjusts a Config.
type Option func(*Config)

// CombinePassCount sets P, the maximum number of sweeps a combiner makes
// over the active list before yielding the lock even if work remains
// (default 8, per spec.md §4.F).
func CombinePassCount(p int) Option { return func(c *Config) { c.CombinePassCount = p } }

// CompactFactor sets C, the number of combining passes between
// compactions (default 1024, per spec.md §4.F).
func CompactFactor(c int) Option { return func(cfg *Config) { cfg.CompactFactor = c } }

// NewWaiter overrides how each record's wait strategy is constructed.
// The default gives every record its own backoff.CondVar (the
// per-record-condvar strategy); pass a closure that always returns the
// same *backoff.CondVar to use the single-mutex-condvar strategy
// instead.
func NewWaiter(f func() backoff.Waitable) Option { return func(c *Config) { c.NewWaiter = f } }

func defaultConfig() Config {
	return Config{
		CombinePassCount: 8,
		CompactFactor:    1024,
		NewWaiter:        func() backoff.Waitable { return backoff.NewCondVar() },
	}
}

// Kernel is one flat-combining instance. Containers embed or hold a
// *Kernel[T] for their own opaque request type T.
type Kernel[T any] struct {
	cfg Config

	combinerLock sync.Mutex
	passCounter  atomic.Int64

	activeHead    atomic.Pointer[Record[T]]
	allocatedHead atomic.Pointer[Record[T]]
}

// NewKernel creates a Kernel with the given options.
func NewKernel[T any](opts ...Option) *Kernel[T] {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	if cfg.CombinePassCount <= 0 {
		cfg.CombinePassCount = 8
	}
	if cfg.CompactFactor <= 0 {
		cfg.CompactFactor = 1024
	}
	if cfg.NewWaiter == nil {
		cfg.NewWaiter = func() backoff.Waitable { return backoff.NewCondVar() }
	}
	return &Kernel[T]{cfg: cfg}
}

// AcquireRecord allocates and activates a new publication record for the
// calling thread. The caller retains the returned Record and passes it
// to every subsequent Combine/BatchCombine/ReleaseRecord call it makes
// on this kernel.
func (k *Kernel[T]) AcquireRecord() *Record[T] {
	r := &Record[T]{wait: k.cfg.NewWaiter()}
	r.state.Store(recActive)

	for {
		head := k.allocatedHead.Load()
		r.nextAllocated = head
		if k.allocatedHead.CompareAndSwap(head, r) {
			break
		}
	}
	k.pushActive(r)
	return r
}

// ReleaseRecord marks rec removed: its owning thread is done with the
// kernel. Compaction unlinks it from the active list once it is stale,
// like any idle record; it is never unlinked from the allocated list.
// Until then a combiner may still pass over it harmlessly since its
// request state will never again become pending.
func (k *Kernel[T]) ReleaseRecord(rec *Record[T]) {
	rec.state.Store(recRemoved)
}

func (k *Kernel[T]) pushActive(r *Record[T]) {
	r.state.Store(recActive)
	for {
		head := k.activeHead.Load()
		r.nextActive.Store(head)
		if k.activeHead.CompareAndSwap(head, r) {
			return
		}
	}
}

// MarkDone transitions rec from pending to response (release) and wakes
// its waiter. BatchOwner implementations call this directly for each
// request they service; Combine/BatchCombine call it on the container's
// behalf for the Owner path.
func (r *Record[T]) MarkDone() {
	r.reqState.Store(reqResponse)
	r.wait.WakeupOne()
}
