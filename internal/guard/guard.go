/*
Package guard defines the small interface container/stack,
container/michael, container/lazy, and container/splitlist actually
need from an SMR scheme, plus adapters from smr/hp.Handle and
smr/dhp.Handle onto it. Containers are written once against Reclaimer[V]
and Guard[V]; which concrete scheme backs a given instance is a
constructor-time choice (HP or DHP), exactly the zero-overhead policy
substitution spec.md §9 calls for in place of the source's compile-time
template parameters.

This package is internal because only this module's own containers are
expected to need it — an external caller wanting a custom SMR scheme for
its own container would define an equivalent small interface in its own
package, the same way this module does, rather than import this one.
*/
package guard

import (
	"sync/atomic"

	"github.com/khizmax/libcds-sub011/smr/dhp"
	"github.com/khizmax/libcds-sub011/smr/hp"
)

// Guard is a single published hazard, usable to protect one pointer
// dereference at a time.
type Guard[V any] interface {
	Protect(addr *atomic.Pointer[V]) *V
	Set(p *V)
	Clear()
	Release()
}

// Reclaimer is a per-thread handle onto an SMR scheme: it can hand out
// guards to protect reads and accept retired pointers to reclaim once no
// guard anywhere can still be protecting them.
type Reclaimer[V any] interface {
	AcquireGuard() (Guard[V], error)
	Retire(p *V, dispose func())
	Attached() bool
}

// HP adapts an *hp.Handle[V] to Reclaimer[V].
type HP[V any] struct {
	Handle *hp.Handle[V]
}

func (r HP[V]) AcquireGuard() (Guard[V], error) {
	g, err := r.Handle.AcquireGuard()
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (r HP[V]) Retire(p *V, dispose func()) {
	r.Handle.Retire(p, dispose)
}

func (r HP[V]) Attached() bool { return r.Handle.Attached() }

// DHP adapts a *dhp.Handle[V] to Reclaimer[V]. DHP guards are never
// exhausted, so AcquireGuard's error is always nil.
type DHP[V any] struct {
	Handle *dhp.Handle[V]
}

func (r DHP[V]) AcquireGuard() (Guard[V], error) {
	return r.Handle.AcquireGuard(), nil
}

func (r DHP[V]) Retire(p *V, dispose func()) {
	r.Handle.Retire(p, dispose)
}

func (r DHP[V]) Attached() bool { return r.Handle.Attached() }
