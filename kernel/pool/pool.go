// Package pool implements the kernel's bitmap-backed pool allocator: a
// fixed virtual arena carved into page-granular, tagged allocations
// (spec.md §4.E). Every allocation's first page is flagged pool_base in the
// PFN database; every page of the run (including the base) is flagged
// pool_item, so the physical page allocator (kernel/pmm) can refuse to free
// a pool page through its own path.
package pool

import (
	"github.com/ardent-os/ardent/kernel/bitmap"
	"github.com/ardent-os/ardent/kernel/kfmt"
	"github.com/ardent-os/ardent/kernel/pmm"
	"github.com/ardent-os/ardent/kernel/sync"
)

// Tag identifies the subsystem that owns an allocation, carried alongside
// each run for diagnostic double-free/mismatch checks.
type Tag [4]byte

// run records the metadata needed to free an allocation: its length in
// pages and the tag it was allocated with. Keyed by the run's first page
// index so free(ptr) can recover it without touching the pointer itself.
type run struct {
	pages uint64
	tag   Tag
}

// Pool is a fixed virtual arena with a bit-per-page occupancy bitmap.
// Backing physical pages are allocated on demand from kernel/pmm as pages
// are first touched by an allocation.
type Pool struct {
	lock      sync.Spinlock
	start     uintptr
	size      uintptr
	occupancy *bitmap.Bitmap
	runs      map[uintptr]run // first page index -> run metadata

	mapPageFn   func(page uintptr, frame pmm.Frame) error
	unmapPageFn func(page uintptr) (pmm.Frame, error)
}

var errDoubleFree = "pool: double free"
var errTagMismatch = "pool: tag mismatch on free"

// New constructs a Pool covering [start, start+size). mapPage/unmapPage wire
// arena pages into the active address space; they are supplied by
// kernel/bringup once the page-map (loader/pagemap) is active.
func New(start uintptr, size uintptr, mapPage func(uintptr, pmm.Frame) error, unmapPage func(uintptr) (pmm.Frame, error)) *Pool {
	pageCount := int(size / pmm.PageSize)
	p := &Pool{
		start:       start,
		size:        size,
		occupancy:   bitmap.New(pageCount),
		runs:        make(map[uintptr]run),
		mapPageFn:   mapPage,
		unmapPageFn: unmapPage,
	}
	p.lock.Init(sync.Dispatch)
	return p
}

func (p *Pool) pageIndex(addr uintptr) int {
	return int((addr - p.start) / pmm.PageSize)
}

func (p *Pool) pageAddr(index int) uintptr {
	return p.start + uintptr(index)*pmm.PageSize
}

// Allocate reserves size bytes (rounded up to a page multiple), backs every
// page with a physical frame from kernel/pmm, and returns the arena address
// of the run's first page. It returns false if no free run is large enough
// or the backing pages cannot be provisioned; frames already backed for the
// run are released first.
func (p *Pool) Allocate(size uintptr, tag Tag) (uintptr, bool) {
	pageCount := int((size + pmm.PageSize - 1) / pmm.PageSize)
	if pageCount == 0 {
		pageCount = 1
	}

	p.lock.Acquire()
	defer p.lock.Release()

	start := p.occupancy.FirstClearRun(pageCount)
	if start < 0 {
		return 0, false
	}

	backed := make([]pmm.Frame, 0, pageCount)
	for i := 0; i < pageCount; i++ {
		frame, ok := pmm.Allocate()
		if !ok {
			// Roll back pages already backed in this run; boot-time pool
			// exhaustion is otherwise fatal (spec.md §7).
			for _, f := range backed {
				pmm.ClearPoolItem(f)
				pmm.Free(f)
			}
			return 0, false
		}
		if err := p.mapPageFn(p.pageAddr(start+i), frame); err != nil {
			pmm.Free(frame)
			for _, f := range backed {
				pmm.ClearPoolItem(f)
				pmm.Free(f)
			}
			return 0, false
		}
		pmm.SetPoolItem(frame)
		if i == 0 {
			pmm.SetPoolBase(frame)
		}
		backed = append(backed, frame)
	}

	p.occupancy.SetRange(start, pageCount)
	p.runs[uintptr(start)] = run{pages: uint64(pageCount), tag: tag}

	return p.pageAddr(start), true
}

// Free returns a previously allocated run to the pool. tag must match the
// tag the run was allocated with; a mismatch or a double-free panics with a
// diagnostic code (spec.md §4.E).
func (p *Pool) Free(ptr uintptr, tag Tag) {
	p.lock.Acquire()
	defer p.lock.Release()

	start := p.pageIndex(ptr)
	r, ok := p.runs[uintptr(start)]
	if !ok || !p.occupancy.Test(start) {
		kfmt.Panic(errDoubleFree)
		return
	}
	if r.tag != tag {
		kfmt.Panic(errTagMismatch)
		return
	}

	for i := 0; i < int(r.pages); i++ {
		frame, err := p.unmapPageFn(p.pageAddr(start + i))
		if err == nil {
			pmm.ClearPoolItem(frame)
			pmm.ClearPoolBase(frame)
			pmm.Free(frame)
		}
	}

	p.occupancy.ClearRange(start, int(r.pages))
	delete(p.runs, uintptr(start))
}
