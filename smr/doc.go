/*
Package smr provides the thread registry and retired-pointer bookkeeping
shared by every safe-memory-reclamation scheme in this module (smr/hp,
smr/dhp). It does not itself reclaim anything; it only tracks which
threads currently participate in a given scheme's container operations
(component A of the design) and buffers pointers a thread has retired
until that scheme's reclamation policy proves them safe to free
(component B).

A thread must call Registry.Attach before using any container built on
a scheme rooted in this registry, and must call the returned Slot's
Detach when it is done, exactly once. Forgetting to Detach leaks that
slot's resources until the registry itself is discarded — there is no
per-goroutine destructor in Go, so this precondition is the caller's
responsibility, not the library's.
*/
package smr

import "errors"

// ErrNotAttached is returned when a slot is used after Detach, or a
// registry-backed operation is attempted with a nil slot.
var ErrNotAttached = errors.New("smr: thread not attached")

// ErrTooManyThreads is returned by Attach when the registry's configured
// thread capacity is already fully subscribed.
var ErrTooManyThreads = errors.New("smr: registry has no free slot")
