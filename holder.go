package hazptr

import "sync/atomic"

// Holder is a protection scope bound to one hazard cell. It is the
// guard readers hold across a racy dereference:
//
//	h := reg.Holder(tid, 0)
//	defer h.Clear()
//	if node := h.Protect(&head); node != nil {
//		// node stays allocated until h.Clear()
//	}
//
// A Holder is single-owner. Pass the pointer to hand the cell to other
// code; never copy the value (go vet reports copies). Clearing through
// two holders bound to the same cell would let a sweep free an object
// the other reader still uses.
type Holder[T any] struct {
	noCopy noCopy

	cell *atomic.Pointer[T]
}

// Protect reads src, publishes the value into the holder's hazard cell
// and re-reads src until two consecutive reads agree, then returns the
// stable value. The returned object cannot be freed by any sweep until
// Clear. Returns nil when src holds nil: nothing to protect, nothing
// to read.
//
// The loop spins only while a writer is concurrently rewriting src; it
// terminates as soon as the source holds still for one iteration.
func (h *Holder[T]) Protect(src *atomic.Pointer[T]) *T {
	return protect(h.cell, src)
}

// Clear unpublishes the protection, letting sweeps reclaim whatever
// value the cell held. Safe to call any number of times, including
// when Protect was never called.
func (h *Holder[T]) Clear() {
	h.cell.Store(nil)
}
