// Package handoff describes the fixed, versioned data contract the loader
// builds and the kernel consumes at the single control transfer between
// them (spec.md §6 "Loader→kernel handoff block", §4.K). Every pointer
// field except the physical ACPIRsdp and PageMapRoot addresses is already
// expressed in the kernel's high-half virtual address space: the loader maps each region before jumping to the kernel entry
// point, so the kernel never has to straddle two address spaces to read
// its own bring-up state.
package handoff

import (
	"github.com/ardent-os/ardent/kernel/memdesc"
)

// Magic identifies a well-formed handoff block; Version gates field layout
// changes. Bring-up refuses to continue if either mismatches its own
// compiled-in expectation (spec.md §7 kind 2: allocation/validation
// shortages at bring-up are fatal, not silently ignored).
const (
	Magic          = uint64(0x4152_4445_4e54_4842) // "ARDENTHB"
	CurrentVersion = uint32(1)
)

// FramebufferType mirrors the loader's own enumeration of framebuffer pixel
// layouts; EGA text mode is distinguished because its Width/Height are in
// characters, not pixels.
type FramebufferType uint8

const (
	FramebufferIndexed FramebufferType = iota
	FramebufferRGB
	FramebufferEGA
)

// Framebuffer carries the back/front buffer pointers and geometry the
// console driver needs to start drawing without probing hardware itself;
// BackAddr is 0 when the loader provisioned only a single buffer.
type Framebuffer struct {
	FrontAddr uintptr
	BackAddr  uintptr
	Pitch     uint32
	Width     uint32
	Height    uint32
	Bpp       uint8
	Type      FramebufferType
}

// LoadedImage describes one PE image (the kernel itself or a boot driver)
// the loader placed and fixed up, per spec.md §3 "Loaded-program record".
type LoadedImage struct {
	Name         string
	ImageBase    uintptr
	ImageSize    uint64
	EntryPoint   uintptr
	ExportBase   uintptr // kernel/kdebug symbol table, kernel image only
	ExportSize   uint64
}

// Block is the in-memory, already-high-half-mapped view of the handoff
// contract. The loader constructs one instance and the kernel entry point
// receives a pointer to it; no serialization/wire format is involved since
// both sides run in the same address space across the jump.
type Block struct {
	Magic   uint64
	Version uint32

	// ACPIRsdp is the physical address of the Root System Description
	// Pointer found by the loader's firmware collaborator; ACPITableFormat
	// is 0 for RSDT, 1 for XSDT (spec.md §6).
	ACPIRsdp        uintptr
	ACPITableFormat uint8

	// Descriptors is the frozen memory descriptor list built during load;
	// the kernel's pmm.Init consumes it directly (spec.md §4.A, §4.D).
	Descriptors *memdesc.List

	Framebuffer Framebuffer

	Images []LoadedImage

	// PageMapRoot is the physical address of the top-level page table the
	// loader activated before jumping to the kernel (spec.md §4.C). The
	// kernel does not adopt it: bring-up builds its own top-level table
	// (kernel/bringup.activatePageMap).
	PageMapRoot uintptr

	// PoolReserve and PageManagerReserve are pre-carved virtual ranges the
	// loader reserved (but did not populate) for the kernel's first pool
	// arena and PFN database, so bring-up never has to find free VA space
	// of its own before the allocators it would need to find it are up.
	PoolReserve        uintptr
	PageManagerReserve uintptr

	// BootRegistryBase/BootRegistrySize locate the boot registry image
	// (kernel/bootreg) the loader read boot configuration from, kept
	// around so driver init can consult the same keys.
	BootRegistryBase uintptr
	BootRegistrySize uint64
}

// Valid reports whether b carries a recognized magic/version pair. Bring-up
// must check this before touching any other field.
func (b *Block) Valid() bool {
	return b != nil && b.Magic == Magic && b.Version == CurrentVersion
}
