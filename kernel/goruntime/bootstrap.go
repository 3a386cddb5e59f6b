// Package goruntime contains code for bootstrapping Go runtime features such
// as the memory allocator.
package goruntime

import (
	"unsafe"

	"github.com/ardent-os/ardent/kernel"
	"github.com/ardent-os/ardent/kernel/pmm"
	"github.com/ardent-os/ardent/loader/pagemap"
)

const (
	pageSize  = pmm.PageSize
	pageShift = pmm.PageShift

	// earlyRegionBase is the start of the VA range goruntime carves up for
	// the Go allocator's own arenas. It sits well above the kernel image
	// and the loader's identity/high-half mirror windows built by
	// loader/pagemap, so it never collides with them.
	earlyRegionBase = uint64(0xffff_9000_0000_0000)
)

var (
	builder *pagemap.Builder

	mallocInitFn    = mallocInit
	algInitFn       = algInit
	modulesInitFn   = modulesInit
	typeLinksInitFn = typeLinksInit
	itabsInitFn     = itabsInit

	nextRegionVA = earlyRegionBase

	// A seed for the pseudo-random number generator used by getRandomData
	prngSeed = 0xdeadc0de
)

// SetBuilder installs the active page-table builder. kernel/bringup calls
// this once, after building and initializing its page map, and before Init.
func SetBuilder(b *pagemap.Builder) { builder = b }

//go:linkname algInit runtime.alginit
func algInit()

//go:linkname modulesInit runtime.modulesinit
func modulesInit()

//go:linkname typeLinksInit runtime.typelinksinit
func typeLinksInit()

//go:linkname itabsInit runtime.itabsinit
func itabsInit()

//go:linkname mallocInit runtime.mallocinit
func mallocInit()

//go:linkname mSysStatInc runtime.mSysStatInc
func mSysStatInc(*uint64, uintptr)

func alignUp(v uint64) uint64 { return (v + uint64(pageSize) - 1) &^ (uint64(pageSize) - 1) }

// earlyReserveRegion bumps out regionSize bytes of unmapped VA space. The
// region is never reused: this only runs during the single-threaded Go
// allocator bootstrap, well before kernel/pmm's per-CPU caches see any
// contention.
func earlyReserveRegion(regionSize uint64) uint64 {
	va := nextRegionVA
	nextRegionVA += alignUp(regionSize)
	return va
}

// sysReserve reserves address space without allocating any memory or
// establishing any page mappings.
//
// This function replaces runtime.sysReserve and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysReserve
//go:nosplit
func sysReserve(_ unsafe.Pointer, size uintptr, reserved *bool) unsafe.Pointer {
	regionStartAddr := earlyReserveRegion(uint64(size))
	*reserved = true
	return unsafe.Pointer(uintptr(regionStartAddr))
}

// mapPages establishes present+writable mappings for pageCount pages
// starting at va, each backed by a freshly allocated, independently
// sourced physical frame (the allocator never needs contiguous physical
// memory for its arenas).
func mapPages(va uint64, pageCount uint64, flags pagemap.Flag) bool {
	for ; pageCount > 0; pageCount, va = pageCount-1, va+uint64(pageSize) {
		frame, ok := pmm.Allocate()
		if !ok {
			return false
		}
		if err := builder.MapRange(va, uint64(frame.Address()), uint64(pageSize), flags); err != nil {
			pmm.Free(frame)
			return false
		}
	}
	return true
}

// sysMap establishes a mapping for a region reserved previously via
// sysReserve. The kernel has no demand-paging/COW manager, so unlike the
// hosted runtime this eagerly backs the region with real frames rather than
// a shared zero page.
//
// This function replaces runtime.sysMap and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysMap
//go:nosplit
func sysMap(virtAddr unsafe.Pointer, size uintptr, reserved bool, sysStat *uint64) unsafe.Pointer {
	if !reserved {
		panic("sysMap should only be called with reserved=true")
	}

	regionStartAddr := alignUp(uint64(uintptr(virtAddr)))
	regionSize := alignUp(uint64(size))
	pageCount := regionSize >> pageShift

	if !mapPages(regionStartAddr, pageCount, pagemap.FlagPresent|pagemap.FlagWrite|pagemap.FlagNoExec) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(uintptr(regionStartAddr))
}

// sysAlloc reserves a fresh VA region and backs it with newly allocated
// frames in one step, returning a pointer to the region start.
//
// This function replaces runtime.sysAlloc and is required for initializing
// the Go allocator.
//
//go:redirect-from runtime.sysAlloc
//go:nosplit
func sysAlloc(size uintptr, sysStat *uint64) unsafe.Pointer {
	regionSize := alignUp(uint64(size))
	regionStartAddr := earlyReserveRegion(regionSize)
	pageCount := regionSize >> pageShift

	if !mapPages(regionStartAddr, pageCount, pagemap.FlagPresent|pagemap.FlagWrite|pagemap.FlagNoExec) {
		return unsafe.Pointer(uintptr(0))
	}

	mSysStatInc(sysStat, uintptr(regionSize))
	return unsafe.Pointer(uintptr(regionStartAddr))
}

// nanotime returns a monotonically increasing clock value. This is a dummy
// implementation and will be replaced when the timekeeper package is
// implemented.
//
// This function replaces runtime.nanotime and is invoked by the Go allocator
// when a span allocation is performed.
//
//go:redirect-from runtime.nanotime
//go:nosplit
func nanotime() uint64 {
	// Use a dummy loop to prevent the compiler from inlining this function.
	for i := 0; i < 100; i++ {
	}
	return 1
}

// getRandomData populates the given slice with random data. The implementation
// is the runtime package reads a random stream from /dev/random but since this
// is not available, we use a prng instead.
//
//go:redirect-from runtime.getRandomData
func getRandomData(r []byte) {
	for i := 0; i < len(r); i++ {
		prngSeed = (prngSeed * 58321) + 11113
		r[i] = byte((prngSeed >> 16) & 255)
	}
}

// Init enables support for various Go runtime features. After a call to init
// the following runtime features become available for use:
//  - heap memory allocation (new, make e.t.c)
//  - map primitives
//  - interfaces
//
// Init must run after SetBuilder and after kernel/pmm.Init.
func Init() *kernel.Error {
	mallocInitFn()
	algInitFn()       // setup hash implementation for map keys
	modulesInitFn()   // provides activeModules
	typeLinksInitFn() // uses maps, activeModules
	itabsInitFn()     // uses activeModules

	return nil
}

func init() {
	// Dummy calls so the compiler does not optimize away the functions in
	// this file.
	var (
		reserved bool
		stat     uint64
		zeroPtr  = unsafe.Pointer(uintptr(0))
	)

	sysReserve(zeroPtr, 0, &reserved)
	sysMap(zeroPtr, 0, reserved, &stat)
	sysAlloc(0, &stat)
	getRandomData(nil)
	stat = nanotime()
}
