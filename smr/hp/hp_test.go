package hp

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type node struct {
	val int
}

func TestProtectReturnsCurrentValue(t *testing.T) {
	s := NewScheme[node]()
	h, err := s.Attach()
	if err != nil {
		t.Fatal(err)
	}
	defer h.Detach()

	var slot atomic.Pointer[node]
	n := &node{val: 1}
	slot.Store(n)

	g, err := h.AcquireGuard()
	if err != nil {
		t.Fatal(err)
	}
	got := g.Protect(&slot)
	if got != n {
		t.Fatalf("Protect returned %v, want %v", got, n)
	}
	g.Release()
}

func TestAttachedReportsDetachState(t *testing.T) {
	s := NewScheme[node]()
	h, err := s.Attach()
	if err != nil {
		t.Fatal(err)
	}
	if !h.Attached() {
		t.Fatal("Attached() false immediately after Attach")
	}
	h.Detach()
	if h.Attached() {
		t.Fatal("Attached() true after Detach")
	}
}

func TestAcquireGuardFailsWhenExhausted(t *testing.T) {
	s := NewScheme[node](HazardsPerThread(2))
	h, _ := s.Attach()
	defer h.Detach()

	g1, err := h.AcquireGuard()
	if err != nil {
		t.Fatal(err)
	}
	g2, err := h.AcquireGuard()
	if err != nil {
		t.Fatal(err)
	}
	if _, err := h.AcquireGuard(); err != ErrOutOfHazardSlots {
		t.Fatalf("expected ErrOutOfHazardSlots, got %v", err)
	}
	g1.Release()
	if _, err := h.AcquireGuard(); err != nil {
		t.Fatalf("expected a guard to free up after Release, got %v", err)
	}
	g2.Release()
}

func TestRetireDoesNotFreeWhileGuarded(t *testing.T) {
	s := NewScheme[node](RetireThreshold(1))
	reader, _ := s.Attach()
	defer reader.Detach()
	writer, _ := s.Attach()
	defer writer.Detach()

	var slot atomic.Pointer[node]
	n := &node{val: 7}
	slot.Store(n)

	g, _ := reader.AcquireGuard()
	protected := g.Protect(&slot)
	if protected != n {
		t.Fatal("guard did not protect the expected node")
	}

	var freed int32
	writer.Retire(n, func() { atomic.StoreInt32(&freed, 1) })
	if atomic.LoadInt32(&freed) != 0 {
		t.Fatal("retired node was disposed while still hazardous")
	}

	g.Release()
	writer.Retire(&node{val: 8}, func() {}) // pushes count over threshold, forces a rescan
	if atomic.LoadInt32(&freed) != 1 {
		t.Fatal("retired node was never disposed after its guard cleared")
	}
}

func TestConcurrentRetireAndProtectNeverDisposesLiveNode(t *testing.T) {
	s := NewScheme[node](RetireThreshold(4))
	var slot atomic.Pointer[node]
	slot.Store(&node{val: 0})

	var disposedWhileLive int32
	var wg sync.WaitGroup
	stop := make(chan struct{})

	// Reader goroutine repeatedly protects and reads the current node.
	wg.Add(1)
	go func() {
		defer wg.Done()
		h, _ := s.Attach()
		defer h.Detach()
		for {
			select {
			case <-stop:
				return
			default:
			}
			g, _ := h.AcquireGuard()
			n := g.Protect(&slot)
			if n != nil {
				_ = n.val // dereference; would race/crash under -race if freed
			}
			g.Release()
		}
	}()

	// Writer goroutine swaps in new nodes and retires the old ones.
	wg.Add(1)
	go func() {
		defer wg.Done()
		h, _ := s.Attach()
		defer h.Detach()
		for i := 0; i < 2000; i++ {
			old := slot.Load()
			n := &node{val: i}
			slot.Store(n)
			h.Retire(old, func() { atomic.AddInt32(&disposedWhileLive, 0) })
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}
