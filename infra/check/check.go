// Package check supplies fatal precondition assertions. A failed check
// is a programming error, never a recoverable condition: continuing
// past an out-of-range index in lock-free code means corrupted or
// out-of-bounds memory, so the process stops instead.
package check

import "fmt"

// That panics with msg when cond is false.
func That(cond bool, msg string) {
	if !cond {
		panic("check: " + msg)
	}
}

// Index asserts 0 <= i < n.
func Index(i, n int) {
	if i < 0 || i >= n {
		panic(fmt.Sprintf("check: index %d out of range [0, %d)", i, n))
	}
}

// Positive asserts v > 0.
func Positive(name string, v int) {
	if v <= 0 {
		panic(fmt.Sprintf("check: %s must be positive, got %d", name, v))
	}
}
