package fc

// Combine posts rec's payload as a request (request transition
// empty→opₖ, release) and either executes every pending request in the
// active list as the elected combiner, or waits on rec's strategy until
// some combiner reaches it. It returns once rec.Payload holds the
// response — call (*Record[T]).Result if the container wants a typed
// accessor, or simply read Payload directly since Apply wrote into it
// in place. The caller must call ReleaseRecord or leave the record for
// reuse on its next Combine call; Combine itself never resets
// request state back to empty, matching the acquire_record /
// combine / operation_done / release_record surface of spec.md §6 —
// callers call OperationDone after consuming the response.
func (k *Kernel[T]) Combine(rec *Record[T], owner Owner[T]) {
	k.post(rec)
	k.driveUntilAnswered(rec, func() { k.runCombiner(owner, nil) })
}

// BatchCombine is the same entry point as Combine, but the combiner
// invokes owner.Process(head) once per pass instead of Owner.Apply per
// record, so the container can traverse the whole active list itself
// (e.g. to collide push/pop pairs as in a deque). The kernel does not
// service records that Process leaves pending; they stay pending until a
// later Process call marks them done.
func (k *Kernel[T]) BatchCombine(rec *Record[T], owner BatchOwner[T]) {
	k.post(rec)
	k.driveUntilAnswered(rec, func() { k.runCombiner(nil, owner) })
}

// OperationDone resets rec's request state back to empty after the
// caller has consumed the response, per spec.md §6's operation_done.
func (r *Record[T]) OperationDone() {
	r.reqState.Store(reqEmpty)
}

func (k *Kernel[T]) post(rec *Record[T]) {
	if rec.state.Load() == recInactive {
		// Compacted out since this owner's last operation; silently
		// re-publish it (spec.md §4.F failure semantics / property 11).
		k.pushActive(rec)
	}
	rec.reqState.Store(reqPending)
}

func (k *Kernel[T]) driveUntilAnswered(rec *Record[T], combine func()) {
	for {
		if rec.reqState.Load() == reqResponse {
			return
		}
		if k.combinerLock.TryLock() {
			combine()
			k.combinerLock.Unlock()
			if rec.reqState.Load() == reqResponse {
				return
			}
			continue
		}
		rec.wait.Prepare()
		if rec.reqState.Load() == reqResponse {
			return
		}
		rec.wait.Wait()
	}
}

// runCombiner executes one combiner term: up to CombinePassCount sweeps
// of the active list, terminating early if a pass finds no work, then a
// compaction every CompactFactor passes. Exactly one of owner/batch is
// non-nil.
func (k *Kernel[T]) runCombiner(owner Owner[T], batch BatchOwner[T]) {
	age := k.passCounter.Add(1)

	for pass := 0; pass < k.cfg.CombinePassCount; pass++ {
		didWork := false
		if batch != nil {
			before := k.countPending()
			batch.Process(k.activeHead.Load())
			if k.countPending() != before {
				didWork = true
			}
		} else {
			for r := k.activeHead.Load(); r != nil; r = r.nextActive.Load() {
				if r.state.Load() != recActive {
					continue
				}
				if r.reqState.Load() != reqPending {
					continue
				}
				r.age.Store(age)
				owner.Apply(&r.Payload)
				r.MarkDone()
				didWork = true
			}
		}
		if !didWork {
			break
		}
	}

	if age%int64(k.cfg.CompactFactor) == 0 {
		k.compact(age)
	}
}

func (k *Kernel[T]) countPending() int {
	n := 0
	for r := k.activeHead.Load(); r != nil; r = r.nextActive.Load() {
		if r.reqState.Load() == reqPending {
			n++
		}
	}
	return n
}

// compact implements spec.md §4.F step d: any active record whose age is
// older than the current combining pass by more than CompactFactor is
// unlinked from the active list and marked inactive. Removed records are
// handled the same way; the allocated list is not touched.
func (k *Kernel[T]) compact(age int64) {
	const maxRetries = 8
	for attempt := 0; attempt < maxRetries; attempt++ {
		if k.compactPass(age) {
			return
		}
		// A concurrent AcquireRecord prepended to the active list while
		// we were unlinking a stale node; retry the pass. Losing this
		// race only delays compaction, never correctness — a record
		// left in the active list a little longer is simply visited
		// (and skipped, since it is not pending) by the next pass.
	}
}

// compactPass returns false if a structural CAS lost a race with a
// concurrent AcquireRecord/pushActive and the whole pass should be
// retried from the (now current) head.
func (k *Kernel[T]) compactPass(age int64) bool {
	var prev *Record[T]
	cur := k.activeHead.Load()
	for cur != nil {
		stale := age-cur.age.Load() > int64(k.cfg.CompactFactor) && cur.reqState.Load() != reqPending
		if !stale {
			prev = cur
			cur = cur.nextActive.Load()
			continue
		}
		next := cur.nextActive.Load()
		if prev == nil {
			if !k.activeHead.CompareAndSwap(cur, next) {
				return false
			}
		} else {
			if !prev.nextActive.CompareAndSwap(cur, next) {
				return false
			}
		}
		cur.state.Store(recInactive)
		cur = next
	}
	return true
}
