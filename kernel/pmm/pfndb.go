package pmm

import "github.com/ardent-os/ardent/kernel/kfmt"

// entryFlags bit layout for a PFN database entry.
type entryFlags uint8

const (
	flagUsed entryFlags = 1 << iota
	flagPoolItem
	flagPoolBase
)

// pfnEntry is one physical-page descriptor. When used == 0 the nextFree
// field overlaps a singly linked free-list link, per spec.md §3; no page is
// ever reachable from two free lists at once (global and per-CPU cache).
type pfnEntry struct {
	flags    entryFlags
	nextFree Frame
}

func (e *pfnEntry) used() bool     { return e.flags&flagUsed != 0 }
func (e *pfnEntry) poolItem() bool { return e.flags&flagPoolItem != 0 }
func (e *pfnEntry) poolBase() bool { return e.flags&flagPoolBase != 0 }

// SetPoolBase marks frame f as the first page of a multi-page pool
// allocation. The frame must already be marked used.
func SetPoolBase(f Frame) { db.entry(f).flags |= flagPoolBase }

// ClearPoolBase clears the pool-base marker, e.g. when a pool allocation is
// freed back to the page allocator.
func ClearPoolBase(f Frame) { db.entry(f).flags &^= flagPoolBase }

// SetPoolItem marks frame f as participating in a pool multi-page
// allocation (set on every page of the run, including the base page).
func SetPoolItem(f Frame) { db.entry(f).flags |= flagPoolItem }

// ClearPoolItem clears the pool-item marker.
func ClearPoolItem(f Frame) { db.entry(f).flags &^= flagPoolItem }

// IsPoolBase reports whether f is the first page of a pool allocation.
func IsPoolBase(f Frame) bool { return db.entry(f).poolBase() }

// IsPoolItem reports whether f currently belongs to a pool allocation.
func IsPoolItem(f Frame) bool { return db.entry(f).poolItem() }

// database is the PFN database: one contiguous slice of entries, one per
// physical page up to maxAddressableFreePage (spec.md §4.D).
type database struct {
	entries []pfnEntry
}

var db database

// InitDB allocates (from already-reserved, identity-addressable memory) the
// PFN database for pages [0, maxAddressableFreePage). It must run before any
// other pmm call.
func InitDB(maxAddressableFreePage Frame) {
	db.entries = make([]pfnEntry, maxAddressableFreePage)
}

func (d *database) entry(f Frame) *pfnEntry {
	if uintptr(f) >= uintptr(len(d.entries)) {
		badPFNHeader(f, 0)
	}
	return &d.entries[f]
}

// badPFNHeaderFn raises the BAD_PFN_HEADER bugcheck when the free list or
// allocator observes a PFN entry in an impossible state. Mocked by tests.
var badPFNHeaderFn = func(f Frame, reason uint64) {
	kfmt.Panic(kfmt.Bugcheck{Code: kfmt.BadPFNHeader, Params: [4]uint64{uint64(f), reason, 0, 0}})
}

func badPFNHeader(f Frame, reason uint64) { badPFNHeaderFn(f, reason) }
