package hazptr

import (
	"sync/atomic"

	"hazptr/infra/check"
)

// Registry holds the hazard cells and retirement lists for a fixed set
// of threads. Thread identifiers are small integers in [0, threadsN)
// assigned once by the caller at thread registration time; the registry
// itself has no notion of goroutine identity.
//
// A Registry must not be copied after construction: holders keep
// pointers into its per-thread state.
type Registry[T any] struct {
	noCopy noCopy

	threads []threadState[T]

	// free takes exclusive ownership of a retired object once a sweep
	// proves it unprotected. nil means drop the reference to the GC.
	free func(*T)
}

// threadState is owned by exactly one thread. Only the owner writes its
// hazard cells and mutates its retirement list; every thread reads every
// hazard cell during sweeps.
type threadState[T any] struct {
	hazards []atomic.Pointer[T]
	_pad1   [56]byte

	retired []*T
	pending atomic.Int64
	_pad2   [56]byte
}

// New constructs a registry for threadsN threads with slotsN hazard
// cells each, all cells nil. free is called exactly once per retired
// object when a sweep finds no cell holding its address; pass nil to
// simply release retired objects to the garbage collector.
func New[T any](threadsN, slotsN int, free func(*T)) *Registry[T] {
	check.Positive("threadsN", threadsN)
	check.Positive("slotsN", slotsN)

	r := &Registry[T]{
		threads: make([]threadState[T], threadsN),
		free:    free,
	}
	for i := range r.threads {
		r.threads[i].hazards = make([]atomic.Pointer[T], slotsN)
	}
	return r
}

// Holder binds a protection scope to hazard cell [threadID][slot].
// Acquiring a holder has no effect until Protect publishes a pointer
// through it. At most one live holder may be bound to a given cell;
// that is a caller obligation, not enforced here.
//
// Out-of-range indices are a programming error and panic.
func (r *Registry[T]) Holder(threadID, slot int) *Holder[T] {
	return &Holder[T]{cell: r.hazardCell(threadID, slot)}
}

// Protect publishes through hazard cell [threadID][slot] without
// acquiring a Holder. Slot-addressed variant of Holder.Protect.
func (r *Registry[T]) Protect(threadID, slot int, src *atomic.Pointer[T]) *T {
	return protect(r.hazardCell(threadID, slot), src)
}

// Clear resets hazard cell [threadID][slot] to nil. Idempotent.
func (r *Registry[T]) Clear(threadID, slot int) {
	r.hazardCell(threadID, slot).Store(nil)
}

// Retire hands ptr to threadID's retirement list and sweeps the list,
// freeing every entry no hazard cell currently protects. A nil ptr
// retires nothing and only runs the sweep.
//
// The caller must be the sole owner of ptr: the object must already be
// unreachable through the data structure's own pointers, and Retire
// must be called on it exactly once. Only threadID's own thread may
// call Retire with that identifier; the list needs no locking because
// nobody else ever touches it.
func (r *Registry[T]) Retire(threadID int, ptr *T) {
	check.Index(threadID, len(r.threads))
	st := &r.threads[threadID]

	if ptr != nil {
		st.retired = append(st.retired, ptr)
	}

	kept := st.retired[:0]
	for _, p := range st.retired {
		if r.isProtected(p) {
			kept = append(kept, p)
			continue
		}
		if r.free != nil {
			r.free(p)
		}
	}
	// Drop references past the compacted prefix so freed objects are
	// not pinned by the backing array.
	for i := len(kept); i < len(st.retired); i++ {
		st.retired[i] = nil
	}
	st.retired = kept
	st.pending.Store(int64(len(kept)))
}

// PendingCount sums the retirement list lengths of all threads. The
// result can be stale the instant it is returned; it is a diagnostic
// for monitoring and tests, never an input to correctness decisions.
func (r *Registry[T]) PendingCount() int {
	n := 0
	for i := range r.threads {
		n += int(r.threads[i].pending.Load())
	}
	return n
}

// isProtected scans every hazard cell of every thread for ptr. Raw
// address comparison only; the object is never dereferenced.
func (r *Registry[T]) isProtected(ptr *T) bool {
	for i := range r.threads {
		cells := r.threads[i].hazards
		for j := range cells {
			if cells[j].Load() == ptr {
				return true
			}
		}
	}
	return false
}

func (r *Registry[T]) hazardCell(threadID, slot int) *atomic.Pointer[T] {
	check.Index(threadID, len(r.threads))
	cells := r.threads[threadID].hazards
	check.Index(slot, len(cells))
	return &cells[slot]
}

// protect is the double-read publish loop. Publishing and then
// re-reading the source closes the race with a concurrent retire: a
// single read-then-publish could hand back an object a sweep already
// freed before the publish became visible. Whatever value the loop
// returns was hazard-published before any later sweep scanned the
// cell. A nil source returns nil without publishing anything.
func protect[T any](cell, src *atomic.Pointer[T]) *T {
	var saved *T
	for {
		p := src.Load()
		if p == saved {
			return saved
		}
		cell.Store(p)
		saved = p
	}
}

// noCopy makes go vet flag value copies of the containing type.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}
