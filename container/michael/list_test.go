package michael

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
	for n := l.head.Load(); n != nil; {
		mp := n.next.Load()
		if !mp.marked {
			seen = append(seen, n.key)
		}
		n = mp.next
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

	changed, _, _ = h.Update("missing", false, func(existing int, found bool) int { return existing })
	if changed {
		t.Fatal("Update with insertOnMissing=false changed a missing key")
	}
}

// TestConcurrentInsertEraseLeavesConsistentList is seed scenario S3:
// many threads insert disjoint key ranges concurrently; the list must
// never be corrupted (every inserted node reachable, sorted) and the
// size counter must match the number of insertions.
func TestConcurrentInsertEraseLeavesConsistentList(t *testing.T) {
	l := New[int, int]()

	const threads = 8
	const perThread = 200
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
	count := 0
	for n := l.head.Load(); n != nil; {
		mp := n.next.Load()
		if mp.marked {
			n = mp.next
			continue
		}
		if !first && n.key < prev {
			t.Fatalf("list out of order: %d after %d", n.key, prev)
		}
		prev = n.key
		first = false
		count++
		n = mp.next
	}
	if count != threads*perThread {
		t.Fatalf("got %d live nodes, want %d", count, threads*perThread)
	}
	if l.Size() != threads*perThread {
		t.Fatalf("Size() = %d, want %d", l.Size(), threads*perThread)
	}
}

// TestConcurrentInsertSurvivesPredecessorErase regression-tests the
// interleaving where an Insert targets a node as its predecessor just
// as that node is concurrently erased: W -> X -> Y, one thread erases
// X while another inserts a key between X and Y. A reported successful
// insert must remain reachable afterward — it must never be silently
// orphaned by the eraser's physical unlink.
func TestConcurrentInsertSurvivesPredecessorErase(t *testing.T) {
	const iterations = 500
	for i := 0; i < iterations; i++ {
		l := New[int, int]()
		h, err := l.Attach()
		if err != nil {
			t.Fatal(err)
		}
		if _, err := h.Insert(10, 10); err != nil {
			t.Fatal(err)
		}
		if _, err := h.Insert(30, 30); err != nil {
			t.Fatal(err)
		}

		h2, err := l.Attach()
		if err != nil {
			t.Fatal(err)
		}

		var wg sync.WaitGroup
		wg.Add(2)
		var insertedOK bool
		go func() {
			defer wg.Done()
			if _, err := h.Erase(10); err != nil {
				t.Error(err)
			}
		}()
		go func() {
			defer wg.Done()
			ok, err := h2.Insert(20, 20)
			if err != nil {
				t.Error(err)
			}
			insertedOK = ok
		}()
		wg.Wait()

		if insertedOK {
			if found, _ := h.Contains(20); !found {
				t.Fatalf("iteration %d: Insert(20) reported success but key is unreachable", i)
			}
		}
		h.Detach()
		h2.Detach()
	}
}
