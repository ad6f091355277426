package dhp

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type node struct{ val int }

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

	g := h.AcquireGuard()
	if got := g.Protect(&slot); got != n {
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

func TestGuardReuseFromLocalFreeList(t *testing.T) {
	s := NewScheme[node]()
	h, _ := s.Attach()
	defer h.Detach()

	g1 := h.AcquireGuard()
	first := g1.n
	g1.Release()
	g2 := h.AcquireGuard()
	if g2.n != first {
		t.Fatal("expected AcquireGuard to reuse the released guard from the local free list")
	}
}

func TestRetireDoesNotFreeWhileGuarded(t *testing.T) {
	s := NewScheme[node](ScanThreshold(1))
	reader, _ := s.Attach()
	defer reader.Detach()
	writer, _ := s.Attach()
	defer writer.Detach()

	var slot atomic.Pointer[node]
	n := &node{val: 7}
	slot.Store(n)

	g := reader.AcquireGuard()
	if p := g.Protect(&slot); p != n {
		t.Fatal("guard did not protect expected node")
	}

	var freed int32
	writer.Retire(n, func() { atomic.StoreInt32(&freed, 1) })
	if atomic.LoadInt32(&freed) != 0 {
		t.Fatal("node disposed while still guarded")
	}

	// Force enough scans for the epoch to advance two ticks past the
	// retirement stamp.
	writer.Scan()
	writer.Scan()
	writer.Scan()
	g.Release()
	writer.Scan()
	writer.Scan()
	if atomic.LoadInt32(&freed) != 1 {
		t.Fatal("node was never disposed once its guard cleared and the epoch advanced")
	}
}

func TestConcurrentRetireAndProtectNeverDisposesLiveNode(t *testing.T) {
	s := NewScheme[node](ScanThreshold(8))
	var slot atomic.Pointer[node]
	slot.Store(&node{val: 0})

	var wg sync.WaitGroup
	stop := make(chan struct{})

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
			g := h.AcquireGuard()
			n := g.Protect(&slot)
			if n != nil {
				_ = n.val
			}
			g.Release()
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		h, _ := s.Attach()
		defer h.Detach()
		for i := 0; i < 2000; i++ {
			old := slot.Load()
			n := &node{val: i}
			slot.Store(n)
			h.Retire(old, func() {})
		}
	}()

	time.Sleep(50 * time.Millisecond)
	close(stop)
	wg.Wait()
}
