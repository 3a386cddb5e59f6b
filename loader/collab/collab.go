// Package collab defines the narrow collaborator interfaces the loader and
// early bring-up path consume from subsystems spec.md §1 places out of
// scope: concrete filesystem drivers, the firmware exit path, and the
// console/display backend. spec.md §6 ("Collaborator interfaces") specifies
// only these shapes; implementing the filesystems, firmware calls or
// display hardware behind them is explicitly a Non-goal.
package collab

// File is a single open file handle as the loader needs it: enough to size
// a PE image, stream it into place, and release the handle.
type File interface {
	// Size returns the file's length in bytes.
	Size() int64

	// Read fills buf starting at byte offset off, returning the number of
	// bytes copied.
	Read(off int64, buf []byte) (int, error)

	// Close releases the handle.
	Close() error
}

// Volume is the narrow filesystem surface the loader needs to reach the
// boot configuration, the kernel image and boot drivers, all read-only.
type Volume interface {
	// Open opens path relative to the volume root.
	Open(path string) (File, error)

	// ReadEntry opens a single named entry from the current directory
	// without a full path walk, mirroring a typical boot-loader
	// filesystem's fast lookup.
	ReadEntry(dir, name string) (File, error)

	// Iterate visits directory entries by index, stopping when visit
	// returns false or index runs past the directory's entry count.
	Iterate(dir string, visit func(index int, name string) bool)
}

// Config is the key/value and named-array configuration surface (spec.md
// §6 "Config"); loader/bootcfg.KeyValueSource is the loader-internal
// specialization of the same idea for boot-entry parsing specifically.
type Config interface {
	GetString(section, key string) (string, bool)
	GetInt(section, key string) (int64, bool)
	GetStringArray(section, key string) []string
}

// Display is the console surface the loader prints pre-handoff diagnostics
// and errors through (spec.md §6 "Display", §7 kind 1: pre-handoff errors
// go straight to the console and halt).
type Display interface {
	PutChar(ch byte)
	PutString(s string)
	Printf(format string, args ...interface{})
}

// Firmware is the narrow set of boot-time services the loader calls into
// before the handoff block exists: page allocate/free, pool allocate/free,
// and a keyed memory-map query (spec.md §6 "Firmware (loader)").
type Firmware interface {
	AllocatePages(count uint64) (uintptr, error)
	FreePages(base uintptr, count uint64) error

	AllocatePool(size uint64) (uintptr, error)
	FreePool(addr uintptr) error

	// MemoryMapQuery returns the firmware-reported memory map, keyed so a
	// caller than spans multiple queries (the map can grow between calls
	// on real firmware) can detect a stale key and retry.
	MemoryMapQuery(key uint64) (entries []MemoryMapEntry, nextKey uint64, err error)

	ConsolePrint(s string)
}

// MemoryMapEntry is one firmware-reported physical memory range, before the
// loader has classified it into a memdesc.Descriptor.
type MemoryMapEntry struct {
	PhysAddr uint64
	Length   uint64
	Kind     MemoryKind
}

// MemoryKind is the firmware's own (coarser) memory classification, distinct
// from memdesc.Type: the loader maps MemoryKind down to the handful of
// memdesc.Type values it actually produces.
type MemoryKind uint32

const (
	MemoryAvailable MemoryKind = iota
	MemoryReserved
	MemoryACPIReclaimable
	MemoryACPINVS
	MemoryUnusable
)
