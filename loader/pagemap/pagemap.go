// Package pagemap builds the boot-time 4-level x86-64 page hierarchy
// (spec.md §4.C): a top-level identity mapping of the first 2 MiB so the
// CPU keeps executing once paging is enabled, a high-half mirror of all
// addressable physical memory, a self-referencing top-level slot for
// runtime table walks, and per-image mappings driven by each loaded
// program's page_flags vector.
package pagemap

import (
	"github.com/ardent-os/ardent/kernel"
	"github.com/ardent-os/ardent/kernel/memdesc"
)

const (
	pageShift = 12
	pageSize  = uint64(1) << pageShift

	pml4Shift = 39
	pdptShift = 30
	pdShift   = 21
	ptShift   = 12

	entriesPerTable = 512

	giB = uint64(1) << 30
	miB = uint64(1) << 21

	// selfRefSlot is the last PML4 slot, reserved for the self-reference
	// convention described in spec.md §4.C / GLOSSARY.
	selfRefSlot = entriesPerTable - 1

	// PhysMirrorBase is the virtual address of the high-half mirror of all
	// addressable physical memory: PhysMirrorBase+pa is always mapped
	// 1:1 to physical address pa after MapPhysMirror runs. Drivers that
	// need to touch a known physical address (ACPI tables, MMIO regions
	// below the mirrored ceiling) translate through this constant instead
	// of establishing their own mapping.
	PhysMirrorBase = uint64(0xffff_8800_0000_0000)
)

// Entry flag bits, matching the x86-64 PTE/PDE/PDPTE/PML4E layout.
type Flag uint64

const (
	FlagPresent  Flag = 1 << 0
	FlagWrite    Flag = 1 << 1
	FlagUser     Flag = 1 << 2
	FlagHuge     Flag = 1 << 7 // PS bit at PDPT/PD levels
	FlagNoExec   Flag = 1 << 63
)

// entry is one table slot: a physical frame address plus flag bits, packed
// exactly like real hardware page-table entries.
type entry uint64

func (e entry) present() bool { return Flag(e)&FlagPresent != 0 }
func (e entry) huge() bool    { return Flag(e)&FlagHuge != 0 }

func makeEntry(phys uint64, flags Flag) entry {
	return entry(phys&^((pageSize)-1) | uint64(flags))
}

func (e entry) frameAddr() uint64 { return uint64(e) &^ 0xFFF &^ uint64(FlagNoExec) }

// table is one level of the hierarchy: 512 entries backed by one physical
// page. AllocFrame supplies the backing page and records it with the
// memory descriptor engine as PAGE_MAP (spec.md §4.A, §4.C).
type table struct {
	entries [entriesPerTable]entry
	phys    uint64
}

// AllocFrameFn allocates a zeroed physical page and returns its address,
// recording the allocation as a PAGE_MAP descriptor.
type AllocFrameFn func() (uint64, *kernel.Error)

// Builder constructs the page hierarchy. It owns the descriptor list used to
// record every intermediate table as a PAGE_MAP region.
type Builder struct {
	descriptors *memdesc.List
	allocFrame  AllocFrameFn
	tables      map[uint64]*table // phys addr -> in-memory table, until activation
	pml4        *table
}

// ErrAllocationShortage is returned when the builder cannot obtain a
// physical page for an intermediate table; per spec.md §4.C this is fatal
// and the map is never partially activated.
var ErrAllocationShortage = &kernel.Error{Module: "pagemap", Message: "out of physical pages while building page map"}

// NewBuilder creates a Builder that records intermediate tables as
// PAGE_MAP descriptors in descriptors and allocates backing pages via
// allocFrame.
func NewBuilder(descriptors *memdesc.List, allocFrame AllocFrameFn) *Builder {
	return &Builder{
		descriptors: descriptors,
		allocFrame:  allocFrame,
		tables:      make(map[uint64]*table),
	}
}

func (b *Builder) newTable() (*table, *kernel.Error) {
	phys, err := b.allocFrame()
	if err != nil {
		return nil, ErrAllocationShortage
	}
	t := &table{phys: phys}
	b.tables[phys] = t
	_ = b.descriptors.Upsert(memdesc.PageMap, phys/pageSize, 1)
	return t, nil
}

func indexFor(va uint64, shift uint) int {
	return int((va >> shift) & (entriesPerTable - 1))
}

// descend walks from a table down to the table at the given shift level,
// allocating intermediate tables as needed, and returns the table that owns
// the entry at that level plus the entry's index.
func (b *Builder) descend(root *table, va uint64, targetShift uint) (*table, int, *kernel.Error) {
	cur := root
	for shift := uint(pml4Shift); shift > targetShift; shift -= 9 {
		idx := indexFor(va, shift)
		e := &cur.entries[idx]
		if !e.present() {
			child, err := b.newTable()
			if err != nil {
				return nil, 0, err
			}
			*e = makeEntry(child.phys, FlagPresent|FlagWrite)
		}
		cur = b.tables[e.frameAddr()]
	}
	return cur, indexFor(va, targetShift), nil
}

// Init allocates the PML4, identity-maps the first 2 MiB at slot 0, and
// installs the self-referencing top-level entry.
func (b *Builder) Init() *kernel.Error {
	pml4, err := b.newTable()
	if err != nil {
		return err
	}
	b.pml4 = pml4

	// Identity-map the first 2 MiB with a single huge PD entry so the CPU
	// keeps executing immediately after CR0.PG is set (miB is the 2 MiB
	// large-page size).
	if err := b.MapRange(0, 0, miB, FlagWrite); err != nil {
		return err
	}

	pml4.entries[selfRefSlot] = makeEntry(pml4.phys, FlagPresent|FlagWrite)
	return nil
}

// Activate returns the physical address of the PML4, ready to be loaded
// into CR3. The builder never partially activates: callers must only load
// CR3 after every MapRange/MapImage call has returned nil.
func (b *Builder) Activate() uint64 { return b.pml4.phys }

// canUseHuge reports whether a range qualifies for the given page size: both
// va and pa aligned, the remaining range at least that large, and no entry
// already present for va at that page size's level (so no smaller mapping
// beneath it is overwritten).
func (b *Builder) canUseHuge(va, pa, remaining, pageBytes uint64) bool {
	if va%pageBytes != 0 || pa%pageBytes != 0 || remaining < pageBytes {
		return false
	}
	shift := uint(pdShift)
	if pageBytes == giB {
		shift = pdptShift
	}
	cur := b.pml4
	for s := uint(pml4Shift); ; s -= 9 {
		e := cur.entries[indexFor(va, s)]
		if !e.present() {
			return true
		}
		if s == shift || e.huge() {
			return false
		}
		cur = b.tables[e.frameAddr()]
	}
}

// MapRange maps [pa, pa+size) at virtual address va using the largest page
// size that alignment and remaining length allow: 1 GiB, then 2 MiB, then
// 4 KiB (spec.md §4.C). A large page is installed only where canUseHuge
// finds no entry already present at its level; otherwise smaller pages are
// used.
func (b *Builder) MapRange(va, pa, size uint64, flags Flag) *kernel.Error {
	size = (size + pageSize - 1) &^ (pageSize - 1)

	for size > 0 {
		remaining := size

		switch {
		case b.canUseHuge(va, pa, remaining, giB):
			tbl, idx, err := b.descend(b.pml4, va, pdptShift)
			if err != nil {
				return err
			}
			tbl.entries[idx] = makeEntry(pa, flags|FlagPresent|FlagHuge)
			va, pa, size = va+giB, pa+giB, size-giB

		case b.canUseHuge(va, pa, remaining, miB):
			tbl, idx, err := b.descend(b.pml4, va, pdShift)
			if err != nil {
				return err
			}
			tbl.entries[idx] = makeEntry(pa, flags|FlagPresent|FlagHuge)
			va, pa, size = va+miB, pa+miB, size-miB

		default:
			tbl, idx, err := b.descend(b.pml4, va, ptShift)
			if err != nil {
				return err
			}
			tbl.entries[idx] = makeEntry(pa, flags|FlagPresent)
			va, pa, size = va+pageSize, pa+pageSize, size-pageSize
		}
	}
	return nil
}

// PageFlag mirrors a loaded-program's per-4KiB-page W^X classification
// (spec.md §3): never both Write and Exec.
type PageFlag uint8

const (
	PageNone  PageFlag = 0
	PageWrite PageFlag = 1 << 0
	PageExec  PageFlag = 1 << 1
)

// MapImage maps a loaded program's pages at its chosen virtual base, one 4
// KiB mapping per page_flags entry, translating EXEC -> clear NX and WRITE
// -> set the writable bit.
func (b *Builder) MapImage(virtualBase, physicalBase uint64, pageFlags []PageFlag) *kernel.Error {
	for i, pf := range pageFlags {
		flags := FlagPresent
		if pf&PageWrite != 0 {
			flags |= FlagWrite
		}
		if pf&PageExec == 0 {
			flags |= FlagNoExec
		}
		va := virtualBase + uint64(i)*pageSize
		pa := physicalBase + uint64(i)*pageSize
		if err := b.MapRange(va, pa, pageSize, flags&^FlagHuge); err != nil {
			return err
		}
	}
	return nil
}

// MapFramebuffer maps the framebuffer write-through/device at the given
// virtual address, covering size bytes through MapRange, so large pages are
// used where alignment allows.
func (b *Builder) MapFramebuffer(va, pa, size uint64) *kernel.Error {
	const writeThrough = Flag(1 << 3) // PWT bit, same position at every level
	return b.MapRange(va, pa, size, FlagWrite|FlagNoExec|writeThrough)
}

// MapPhysMirror installs the high-half mirror of physical memory up to (and
// including) ceilingAddr, rounded up to a 1 GiB boundary so the mapping is
// built entirely from huge pages. Callers translate a physical address pa
// to its mirrored VA as PhysMirrorBase+pa.
func (b *Builder) MapPhysMirror(ceilingAddr uint64) *kernel.Error {
	size := (ceilingAddr + giB - 1) &^ (giB - 1)
	if size == 0 {
		size = giB
	}
	return b.MapRange(PhysMirrorBase, 0, size, FlagWrite|FlagNoExec)
}

// PhysAddr translates a physical address into its high-half mirror VA.
func PhysAddr(pa uint64) uintptr { return uintptr(PhysMirrorBase + pa) }
