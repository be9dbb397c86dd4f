package hazptr

import (
	"sync"
	"sync/atomic"
	"testing"
)

type node struct {
	id    uint64
	freed atomic.Bool
}

func markFreed(t *testing.T) func(*node) {
	return func(n *node) {
		if n.freed.Swap(true) {
			t.Error("object freed twice")
		}
	}
}

func TestProtectReturnsCurrentValue(t *testing.T) {
	reg := New[node](1, 1, nil)
	h := reg.Holder(0, 0)
	defer h.Clear()

	var src atomic.Pointer[node]
	n := &node{id: 1}
	src.Store(n)

	if got := h.Protect(&src); got != n {
		t.Fatalf("Protect returned %p, want %p", got, n)
	}
}

func TestProtectNilSource(t *testing.T) {
	reg := New[node](1, 1, nil)
	h := reg.Holder(0, 0)
	defer h.Clear()

	var src atomic.Pointer[node]
	if got := h.Protect(&src); got != nil {
		t.Fatalf("Protect on nil source returned %p, want nil", got)
	}
}

func TestClearIdempotent(t *testing.T) {
	reg := New[node](1, 1, nil)
	h := reg.Holder(0, 0)

	h.Clear() // never protected
	var src atomic.Pointer[node]
	src.Store(&node{id: 1})
	h.Protect(&src)
	h.Clear()
	h.Clear()
}

func TestRetireUnprotectedFreesImmediately(t *testing.T) {
	reg := New(1, 1, markFreed(t))
	n := &node{id: 1}

	reg.Retire(0, n)

	if !n.freed.Load() {
		t.Error("unprotected object should be freed by the retire sweep")
	}
	if got := reg.PendingCount(); got != 0 {
		t.Errorf("PendingCount = %d, want 0", got)
	}
}

func TestRetireProtectedIsDeferred(t *testing.T) {
	reg := New(2, 1, markFreed(t))
	h := reg.Holder(1, 0)

	var src atomic.Pointer[node]
	n := &node{id: 1}
	src.Store(n)
	if h.Protect(&src) != n {
		t.Fatal("Protect failed")
	}

	reg.Retire(0, n)
	if n.freed.Load() {
		t.Fatal("protected object was freed")
	}
	if got := reg.PendingCount(); got != 1 {
		t.Fatalf("PendingCount = %d, want 1", got)
	}

	h.Clear()
	reg.Retire(0, nil) // sweep only
	if !n.freed.Load() {
		t.Error("object should be freed once protection is cleared")
	}
	if got := reg.PendingCount(); got != 0 {
		t.Errorf("PendingCount = %d, want 0", got)
	}
}

func TestRetireNilOnlySweeps(t *testing.T) {
	reg := New[node](1, 1, nil)
	reg.Retire(0, nil)
	if got := reg.PendingCount(); got != 0 {
		t.Errorf("PendingCount = %d, want 0", got)
	}
}

func TestSlotAddressedProtectClear(t *testing.T) {
	reg := New(2, 2, markFreed(t))

	var src atomic.Pointer[node]
	n := &node{id: 1}
	src.Store(n)

	if got := reg.Protect(1, 1, &src); got != n {
		t.Fatalf("Protect returned %p, want %p", got, n)
	}
	reg.Retire(0, n)
	if n.freed.Load() {
		t.Fatal("object freed while slot 1/1 protects it")
	}

	reg.Clear(1, 1)
	reg.Retire(0, nil)
	if !n.freed.Load() {
		t.Error("object should be freed after Clear")
	}
}

func TestNewValidatesArguments(t *testing.T) {
	mustPanic(t, func() { New[node](0, 1, nil) })
	mustPanic(t, func() { New[node](1, 0, nil) })
	mustPanic(t, func() { New[node](-1, 1, nil) })
}

func TestOutOfRangeIndicesPanic(t *testing.T) {
	reg := New[node](2, 1, nil)

	mustPanic(t, func() { reg.Holder(2, 0) })
	mustPanic(t, func() { reg.Holder(-1, 0) })
	mustPanic(t, func() { reg.Holder(0, 1) })
	mustPanic(t, func() { reg.Retire(2, nil) })
	mustPanic(t, func() { reg.Clear(0, 5) })
}

func mustPanic(t *testing.T, fn func()) {
	t.Helper()
	defer func() {
		if recover() == nil {
			t.Error("expected panic")
		}
	}()
	fn()
}

// Retirement lists are owner-mutated only, so threads retiring in
// parallel on their own identifiers must never interfere.
func TestRetirementListsAreIndependent(t *testing.T) {
	const threads = 8
	const objects = 1000

	var freed atomic.Int64
	reg := New(threads, 1, func(*node) { freed.Add(1) })

	var wg sync.WaitGroup
	for tid := 0; tid < threads; tid++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			for i := 0; i < objects; i++ {
				reg.Retire(tid, &node{id: uint64(i)})
			}
		}(tid)
	}
	wg.Wait()

	if got := freed.Load(); got != threads*objects {
		t.Errorf("freed %d objects, want %d", got, threads*objects)
	}
	if got := reg.PendingCount(); got != 0 {
		t.Errorf("PendingCount = %d, want 0", got)
	}
}

// Single writer rotates a shared pointer while readers protect and
// dereference through it. A reader that completed Protect must never
// observe its object freed before it clears the protection.
func TestWriterReaderReclamation(t *testing.T) {
	const readers = 4
	const swaps = 20000

	reg := New(1+readers, 1, markFreed(t))

	var src atomic.Pointer[node]
	src.Store(&node{id: 0})

	var stop atomic.Bool
	var wg sync.WaitGroup

	for i := 0; i < readers; i++ {
		wg.Add(1)
		go func(tid int) {
			defer wg.Done()
			h := reg.Holder(tid, 0)
			defer h.Clear()
			for !stop.Load() {
				n := h.Protect(&src)
				if n != nil && n.freed.Load() {
					t.Error("reader observed a freed object under protection")
					return
				}
				h.Clear()
			}
		}(1 + i)
	}

	for i := 1; i <= swaps; i++ {
		old := src.Swap(&node{id: uint64(i)})
		reg.Retire(0, old)
	}
	stop.Store(true)
	wg.Wait()

	// Readers are gone and their cells cleared: one more sweep must
	// drain everything ever retired.
	reg.Retire(0, nil)
	if got := reg.PendingCount(); got != 0 {
		t.Errorf("PendingCount = %d after final sweep, want 0", got)
	}

	live := src.Load()
	if live.freed.Load() {
		t.Error("currently published object was freed")
	}
}

// A reader holding one protection for a long stretch pins exactly that
// object; everything retired around it still drains.
func TestStaleProtectionPinsOnlyItsObject(t *testing.T) {
	reg := New(2, 1, markFreed(t))

	var src atomic.Pointer[node]
	pinned := &node{id: 1}
	src.Store(pinned)

	h := reg.Holder(1, 0)
	if h.Protect(&src) != pinned {
		t.Fatal("Protect failed")
	}

	for i := 2; i <= 10; i++ {
		old := src.Swap(&node{id: uint64(i)})
		reg.Retire(0, old)
	}

	if pinned.freed.Load() {
		t.Fatal("pinned object was freed")
	}
	if got := reg.PendingCount(); got != 1 {
		t.Errorf("PendingCount = %d, want 1 (only the pinned object)", got)
	}

	h.Clear()
	reg.Retire(0, nil)
	if !pinned.freed.Load() {
		t.Error("pinned object should be freed after the holder cleared")
	}
}

// Protect must converge once the writer pauses, even after a burst of
// rapid rewrites.
func TestProtectConvergesAfterWriterBurst(t *testing.T) {
	reg := New[node](2, 1, nil)

	var src atomic.Pointer[node]
	src.Store(&node{id: 0})

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 1; i <= 5000; i++ {
			src.Store(&node{id: uint64(i)})
		}
	}()

	h := reg.Holder(1, 0)
	defer h.Clear()
	for i := 0; i < 1000; i++ {
		if h.Protect(&src) == nil {
			t.Fatal("Protect returned nil for a non-nil source")
		}
	}
	<-done

	final := src.Load()
	if got := h.Protect(&src); got != final {
		t.Errorf("Protect after burst returned id %d, want %d", got.id, final.id)
	}
}
