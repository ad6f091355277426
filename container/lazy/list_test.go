package lazy

import (
	"sort"
	"sync"
	"testing"

	"github.com/khizmax/libcds-sub011/smr"
)

func TestOperationAfterDetachFails(t *testing.T) {
	l := New[int, int]()
	h, err := l.Attach()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.Insert(1, 1); err != nil {
		t.Fatal(err)
	}
	h.Detach()

	if _, err := h.Insert(2, 2); err != smr.ErrNotAttached {
		t.Fatalf("Insert after Detach = %v, want ErrNotAttached", err)
	}
	if _, err := h.Find(1, func(int) {}); err != smr.ErrNotAttached {
		t.Fatalf("Find after Detach = %v, want ErrNotAttached", err)
	}
}

func TestInsertFindErase(t *testing.T) {
	l := New[int, string]()
	h, err := l.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Detach()

	ok, err := h.Insert(5, "five")
	if err != nil || !ok {
		t.Fatalf("Insert(5) = %v, %v", ok, err)
	}
	ok, _ = h.Insert(5, "five-again")
	if ok {
		t.Fatal("Insert of duplicate key reported success")
	}

	var got string
	found, _ := h.Find(5, func(v string) { got = v })
	if !found || got != "five" {
		t.Fatalf("Find(5) = (%q, %v), want (\"five\", true)", got, found)
	}

	erased, _ := h.Erase(5)
	if !erased {
		t.Fatal("Erase(5) reported failure")
	}
	if found, _ := h.Contains(5); found {
		t.Fatal("Contains(5) true after Erase")
	}
	if l.Size() != 0 {
		t.Fatalf("Size() = %d, want 0", l.Size())
	}
}

func TestOrderingIsMaintained(t *testing.T) {
	l := New[int, int]()
	h, err := l.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Detach()

	keys := []int{5, 1, 9, 3, 7, 2, 8, 4, 6, 0}
	for _, k := range keys {
		if _, err := h.Insert(k, k); err != nil {
			t.Fatal(err)
		}
	}

	var seen []int
	for n := l.head.Load(); n != nil; n = n.next.Load() {
		if !n.marked.Load() {
			seen = append(seen, n.key)
		}
	}
	if !sort.IntsAreSorted(seen) {
		t.Fatalf("list not sorted: %v", seen)
	}
	if len(seen) != len(keys) {
		t.Fatalf("got %d live nodes, want %d", len(seen), len(keys))
	}
}

func TestUpdateInsertsOrMutates(t *testing.T) {
	l := New[string, int]()
	h, err := l.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Detach()

	changed, inserted, err := h.Update("a", true, func(existing int, found bool) int {
		if found {
			t.Fatal("found true on first Update of a fresh key")
		}
		return 1
	})
	if err != nil || !changed || !inserted {
		t.Fatalf("first Update = (%v, %v, %v), want (true, true, nil)", changed, inserted, err)
	}

	changed, inserted, err = h.Update("a", true, func(existing int, found bool) int {
		if !found {
			t.Fatal("found false on second Update of an existing key")
		}
		return existing + 1
	})
	if err != nil || !changed || inserted {
		t.Fatalf("second Update = (%v, %v, %v), want (true, false, nil)", changed, inserted, err)
	}

	var got int
	h.Find("a", func(v int) { got = v })
	if got != 2 {
		t.Fatalf("got %d, want 2", got)
	}
}

// TestConcurrentInsertEraseValidatesUnderLock is seed scenario S4: many
// threads insert disjoint key ranges concurrently, each erasing every
// third key it inserts right away; the surviving list must stay sorted.
func TestConcurrentInsertEraseValidatesUnderLock(t *testing.T) {
	l := New[int, int]()

	const threads = 8
	const perThread = 150
	var wg sync.WaitGroup
	wg.Add(threads)
	for t0 := 0; t0 < threads; t0++ {
		go func(base int) {
			defer wg.Done()
			h, err := l.Attach()
			if err != nil {
				t.Error(err)
				return
			}
			defer h.Detach()
			for i := 0; i < perThread; i++ {
				k := base*perThread + i
				if _, err := h.Insert(k, k); err != nil {
					t.Error(err)
				}
				if i%3 == 0 {
					h.Erase(k) // some inserts immediately reversed
				}
			}
		}(t0)
	}
	wg.Wait()

	h, err := l.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Detach()

	var prev int
	first := true
	for n := l.head.Load(); n != nil; n = n.next.Load() {
		if n.marked.Load() {
			continue
		}
		if !first && n.key < prev {
			t.Fatalf("list out of order: %d after %d", n.key, prev)
		}
		prev = n.key
		first = false
	}
}
