package hp

import (
	"errors"
	"unsafe"

	"github.com/zephyrtronium/contains"

	"github.com/khizmax/libcds-sub011/smr"
)

// ErrOutOfHazardSlots is returned by AcquireGuard when a thread requests
// more simultaneous hazard pointers than its handle's configured
// capacity K (spec.md §7).
var ErrOutOfHazardSlots = errors.New("hp: thread exhausted its hazard slot quota")

// Retire buffers p for reclamation, to be freed by calling dispose once
// no thread's hazard array can still be protecting it. p is identified
// by pointer identity only; it is never dereferenced by the scheme
// itself. Retire may trigger a scan if this handle's buffer has grown
// past the scheme's retire threshold (spec.md §4.C step 4).
func (h *Handle[V]) Retire(p *V, dispose func()) {
	h.slot.Data.retired.Add(smr.Retired{Ptr: unsafe.Pointer(p), Dispose: dispose})
	if h.slot.Data.retired.Len() >= h.scheme.retireThreshold {
		h.scheme.scanInto(h.slot)
	}
}

// Scan forces an immediate scan of this handle's retired buffer against
// every attached thread's published hazards, regardless of the retire
// threshold. Containers do not normally need to call this directly;
// Retire already triggers scans automatically.
func (h *Handle[V]) Scan() {
	h.scheme.scanInto(h.slot)
}

// scanInto performs the scan described in spec.md §4.C step 4 for the
// retired records buffered in sl: it snapshots every attached thread's
// published hazards into a set, then releases exactly the retired
// records whose pointer is absent from that snapshot.
func (s *Scheme[V]) scanInto(sl *smr.Slot[slotData[V]]) {
	items := sl.Data.retired.Drain()
	if len(items) == 0 {
		return
	}
	hazards := contains.Set{}
	for _, other := range s.reg.Slots() {
		for i := range other.Data.hazards {
			if p := other.Data.hazards[i].Load(); p != nil {
				hazards.Add(unsafe.Pointer(p))
			}
		}
	}
	var survivors []smr.Retired
	for _, r := range items {
		// Add returns true the first time a key is seen. Since hazards
		// was already fully populated above, Add(r.Ptr) returning true
		// means r.Ptr was not among the published hazards — safe to
		// free now. It returning false means r.Ptr is one of the
		// hazards we just inserted — still protected, so it survives
		// for the next scan. Either way the mutation is harmless: this
		// Set is local to this call and discarded afterward.
		if hazards.Add(r.Ptr) {
			r.Dispose()
		} else {
			survivors = append(survivors, r)
		}
	}
	sl.Data.retired.Requeue(survivors)
}
