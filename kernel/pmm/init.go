package pmm

import (
	"github.com/ardent-os/ardent/kernel/kfmt"
	"github.com/ardent-os/ardent/kernel/memdesc"
)

// Init bootstraps the physical page allocator from the frozen memory
// descriptor list handed off by the loader (spec.md §4.A, §4.K). It sizes
// the PFN database to cover every page up to the highest Free page reported
// and seeds the global free list with every Free descriptor's pages.
//
// Init must run once, before any other pmm call, and before interrupts are
// enabled: the free list is populated directly rather than through
// Allocate/Free so no locking is required yet.
func Init(descriptors *memdesc.List) {
	var maxFreePage uint64
	descriptors.Visit(func(d *memdesc.Descriptor) {
		if d.Type == memdesc.Free && d.End() > maxFreePage {
			maxFreePage = d.End()
		}
	})

	InitDB(Frame(maxFreePage))

	descriptors.Visit(func(d *memdesc.Descriptor) {
		if d.Type != memdesc.Free {
			return
		}
		for p := d.BasePage; p < d.End(); p++ {
			// The zero page is never Free (spec.md §3); guard anyway in
			// case an upstream descriptor is malformed.
			if p == 0 {
				continue
			}
			seed(Frame(p))
		}
	})

	kfmt.Printf("[pmm] %d frames free (%d KiB)\n", global.count, global.count*uint64(PageSize)/1024)
}
