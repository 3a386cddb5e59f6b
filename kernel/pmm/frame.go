// Package pmm implements the physical page frame allocator: a PFN database
// of one entry per physical page, a global free list, and per-CPU batched
// caches that amortize the cost of the global lock (spec.md §4.D).
package pmm

import "math"

// Frame is a physical page frame number.
type Frame uintptr

// InvalidFrame is returned by allocators that fail to produce a frame.
const InvalidFrame = Frame(math.MaxUint64)

// Valid reports whether f is a real frame.
func (f Frame) Valid() bool { return f != InvalidFrame }

// Address returns the physical address of the frame's first byte.
func (f Frame) Address() uintptr { return uintptr(f) << PageShift }

// FromAddress returns the frame containing the given physical address.
func FromAddress(phys uintptr) Frame { return Frame(phys >> PageShift) }

// PageShift and PageSize give the 4 KiB frame geometry, defined locally so
// this package has no import-cycle-prone dependency on the loader's view of
// memory.
const (
	PageShift = 12
	PageSize  = uintptr(1) << PageShift
)
