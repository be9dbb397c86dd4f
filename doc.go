// Package hazptr implements hazard-pointer based memory reclamation
// for lock-free data structures. Readers publish the pointer they are
// about to dereference into a per-thread hazard cell; writers retire
// replaced objects into a per-thread list and physically free an entry
// only once a scan of every published cell proves nobody protects it.
//
// The package supplies only the reclamation primitive. It does not
// implement any particular lock-free container, does not collect
// cycles, and does not bound retirement list growth: a reader that
// holds a protection forever pins whatever it protects, so callers
// must keep protected sections short.
package hazptr
