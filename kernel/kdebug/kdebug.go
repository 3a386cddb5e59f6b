// Package kdebug is the kernel-side half of the debugger export/import
// contract described in the ilmmatias/palladium sources this repository's
// spec was distilled from (src/kernel/kd/export.c, import.c) but dropped
// by the distillation — spec.md's Non-goals never name it, so it is
// carried as a supplemented feature (SPEC_FULL.md §4).
//
// The original links a debugger-transport driver against a fixed function
// table (KdpDebugExports) that the kernel fills in at bring-up, and a
// mirrored import table the transport driver resolves symbols through
// before it can call back into the kernel. Ardent flattens both sides into
// one name->address registry: Export publishes a kernel symbol once
// (mirroring KdpDebugExports' one-time table fill), Resolve is the
// import-fixup step (cmd/kdclient does not call it: it is a raw terminal
// passthrough), reusing the same linear by-name match loader/peload's
// Program.ExportByName
// already uses for the same shape of problem (spec.md §4.B Pass 2).
package kdebug

import "github.com/ardent-os/ardent/kernel/sync"

// entry is one exported kernel symbol.
type entry struct {
	name string
	addr uintptr
}

var (
	mu      sync.Spinlock
	entries []entry
)

func init() {
	mu.Init(sync.Dispatch)
}

// Export publishes name at addr so a later Resolve (kernel-local, or the
// debugger transport driver above kdclient) can find it. Re-exporting an
// already-published name overwrites its address; the table is built once
// during bring-up and is not expected to churn afterward.
func Export(name string, addr uintptr) {
	mu.Acquire()
	defer mu.Release()

	for i := range entries {
		if entries[i].name == name {
			entries[i].addr = addr
			return
		}
	}
	entries = append(entries, entry{name: name, addr: addr})
}

// Resolve looks up a previously exported symbol by name. The search is a
// case-sensitive linear scan, matching spec.md §4.B's import-resolution
// contract (no ordinals, no case-folding) rather than the hashed lookup
// kernel/ob uses for its named directories: the debug export table is
// expected to hold at most a few dozen entries, not the namespace-sized
// tree kernel/ob indexes.
func Resolve(name string) (uintptr, bool) {
	mu.Acquire()
	defer mu.Release()

	for _, e := range entries {
		if e.name == name {
			return e.addr, true
		}
	}
	return 0, false
}

// Count reports how many symbols are currently exported; used by tests to
// assert bring-up populated the table before the debugger transport
// attaches.
func Count() int {
	mu.Acquire()
	defer mu.Release()
	return len(entries)
}

// Reset clears the table. Only meaningful in tests: the real kernel never
// tears down its own export table.
func Reset() {
	mu.Acquire()
	defer mu.Release()
	entries = nil
}
