package heap

import "fmt"

// Guarantee panics when cond is false. Cleanup-phase invariant violations
// indicate upstream corruption and are never recoverable at runtime, so
// there is no error-return variant.
func Guarantee(cond bool, format string, args ...any) {
	if !cond {
		panic(fmt.Sprintf("guarantee failed: "+format, args...))
	}
}

// Fatalf panics unconditionally with a formatted message. Used where a
// code path must not be reachable given correct invariants.
func Fatalf(format string, args ...any) {
	panic(fmt.Sprintf("fatal: "+format, args...))
}
