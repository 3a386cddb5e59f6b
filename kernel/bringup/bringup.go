// Package bringup sequences kernel initialization from the loader handoff
// block through to the first schedulable thread (spec.md §2 "Control flow
// at boot", §4.K). It owns no algorithms of its own: every step delegates
// to the package that implements it — kernel page map, physical allocator
// and pool (D, E), the object manager's pool (I), the Go runtime, processor
// registration with the scheduler (H), then debugger exports and the boot
// registry. Run does not build an IDT or install trap handlers
// (kernel/irq). ACPI/AML (J) runs later, in driver context.
package bringup

import (
	"reflect"
	"unsafe"

	"github.com/ardent-os/ardent/kernel"
	"github.com/ardent-os/ardent/kernel/bootreg"
	"github.com/ardent-os/ardent/kernel/goruntime"
	"github.com/ardent-os/ardent/kernel/handoff"
	"github.com/ardent-os/ardent/kernel/kdebug"
	"github.com/ardent-os/ardent/kernel/kfmt"
	"github.com/ardent-os/ardent/kernel/memdesc"
	"github.com/ardent-os/ardent/kernel/ob"
	"github.com/ardent-os/ardent/kernel/pmm"
	"github.com/ardent-os/ardent/kernel/pool"
	"github.com/ardent-os/ardent/kernel/sched"
	"github.com/ardent-os/ardent/loader/pagemap"
)

// MaxProcessors bounds the SMP bring-up loop; it mirrors
// kernel/pmm.MaxProcessors and kernel/sched's fixed processor table.
const MaxProcessors = pmm.MaxProcessors

// poolArenaSize is the size of the first pool arena carved out of the
// handoff block's pre-reserved PoolReserve range (spec.md §4.E).
const poolArenaSize = 16 << 20

// Hooks lets a caller (real entry point or a test) supply the
// platform-specific pieces bringup can't express portably: discovering and
// starting secondary processors.
type Hooks struct {
	// StartProcessor launches the AP at index idx (APIC/init-IPI sequence);
	// it returns once the AP has registered itself with kernel/sched.
	StartProcessor func(idx int)

	// ProcessorCount reports how many processors the platform discovered
	// (e.g. via ACPI MADT, read later in driver context); bring-up itself
	// only needs the count to bound the SMP loop.
	ProcessorCount func() int
}

// Result carries the pieces of bring-up state later driver-context code
// (ACPI/AML, console probing) needs but that bringup itself doesn't own.
type Result struct {
	Builder *pagemap.Builder
	Block   *handoff.Block

	// Registry is the decoded boot registry (kernel/bootreg), or nil when
	// the loader left BootRegistryBase/Size unset (spec.md §6 "Persisted
	// state" is advisory: nothing requires a registry image to exist).
	Registry *bootreg.Reader
}

// Run validates the handoff block and executes the full bring-up sequence,
// panicking with the matching spec.md §6 Code on any step that spec.md §7
// kind 2 calls a fatal bring-up shortage. It returns once the boot
// processor's idle thread is the only thing left to hand control to the
// scheduler.
func Run(block *handoff.Block, hooks Hooks) Result {
	if !block.Valid() {
		kfmt.Panic(kfmt.Bugcheck{Code: kfmt.KernelInitializationFailure})
	}

	builder := activatePageMap(block)
	goruntime.SetBuilder(builder)

	pmm.Init(block.Descriptors)

	p := pool.New(block.PoolReserve, poolArenaSize, poolMapPage(builder), poolUnmapPage())
	if p == nil {
		kfmt.Panic(kfmt.Bugcheck{Code: kfmt.PoolInitializationFailure})
	}
	ob.SetPool(p)

	if err := goruntime.Init(); err != nil {
		panicInit(err)
	}

	bootProcessor := &sched.Processor{}
	sched.RegisterProcessor(0, bootProcessor)
	pmm.SetCPUIndexFn(currentCPUIndex)

	startSecondaryProcessors(hooks)

	exportImageSymbols(block)
	registry := loadBootRegistry(block)

	return Result{Builder: builder, Block: block, Registry: registry}
}

// exportImageSymbols seeds kernel/kdebug with each loaded image's base
// address (spec.md §3 "Loaded-program record", SPEC_FULL.md §4 "Kernel
// debugger export/import tables"), so the debugger transport
// (cmd/kdclient) can resolve a module name to a load address before it has
// any finer-grained symbol information.
func exportImageSymbols(block *handoff.Block) {
	for _, img := range block.Images {
		kdebug.Export(img.Name, img.ImageBase)
	}
}

// loadBootRegistry decodes the registry image the loader located, if any.
// A malformed image is treated as absent rather than fatal: the registry
// only ever repeats configuration the loader already acted on to reach
// bring-up, so driver init falling back to defaults is survivable where an
// allocation shortage (spec.md §7 kind 2) is not.
func loadBootRegistry(block *handoff.Block) *bootreg.Reader {
	if block.BootRegistryBase == 0 || block.BootRegistrySize == 0 {
		return nil
	}

	data := *(*[]byte)(unsafe.Pointer(&reflect.SliceHeader{
		Data: block.BootRegistryBase,
		Len:  int(block.BootRegistrySize),
		Cap:  int(block.BootRegistrySize),
	}))

	reg, err := bootreg.New(data)
	if err != nil {
		kfmt.Printf("[bringup] boot registry: %s\n", err.Message)
		return nil
	}
	return reg
}

// EnabledDrivers reads the kernel registry's "Drivers" subkey and returns
// the names of every driver whose DWORD value is non-zero, in on-disk
// order - the Go-side reader half of create-boot-registry.c's
// CreateKernelRegistry (which writes exactly this shape: a "Drivers"
// subkey of name -> enabled-flag DWORD pairs).
func EnabledDrivers(reg *bootreg.Reader) []string {
	if reg == nil {
		return nil
	}

	key, ok := reg.Lookup(reg.Root(), "Drivers")
	if !ok || key.Type != bootreg.EntryKey {
		return nil
	}

	var names []string
	reg.Iterate(key.SubKey, func(v bootreg.Value) bool {
		if v.Int != 0 {
			names = append(names, v.Name)
		}
		return true
	})
	return names
}

// activatePageMap builds the kernel-side Builder used for every mapping
// bring-up and later driver code add after the loader's jump: a console
// framebuffer window, additional pool arenas. The loader already activated
// block.PageMapRoot itself before transferring control (spec.md §4.C,
// §4.K); pagemap.Builder has no constructor that re-walks an existing
// hierarchy, so the kernel's Builder starts its own top-level table rather
// than adopting the loader's. Both identity-map the same low 2 MiB region,
// so control flow stays valid across CR3 reloads once bring-up installs
// this builder's root.
func activatePageMap(block *handoff.Block) *pagemap.Builder {
	b := pagemap.NewBuilder(block.Descriptors, pmmAllocFrame)
	if err := b.Init(); err != nil {
		panicInit(err)
	}

	var ceiling uint64
	block.Descriptors.Visit(func(d *memdesc.Descriptor) {
		if end := d.End() * uint64(pmm.PageSize); end > ceiling {
			ceiling = end
		}
	})
	if err := b.MapPhysMirror(ceiling); err != nil {
		panicInit(err)
	}

	return b
}

func pmmAllocFrame() (uint64, *kernel.Error) {
	f, ok := pmm.Allocate()
	if !ok {
		return 0, &kernel.Error{Module: "bringup", Message: "out of physical frames"}
	}
	return uint64(f.Address()), nil
}

func poolMapPage(b *pagemap.Builder) func(uintptr, pmm.Frame) error {
	return func(va uintptr, f pmm.Frame) error {
		err := b.MapRange(uint64(va), uint64(f.Address()), uint64(pmm.PageSize), pagemap.FlagPresent|pagemap.FlagWrite|pagemap.FlagNoExec)
		if err != nil {
			return err
		}
		return nil
	}
}

func poolUnmapPage() func(uintptr) (pmm.Frame, error) {
	return func(va uintptr) (pmm.Frame, error) {
		// The boot-time pool arena is never torn down, so unmapping is not
		// reachable yet; kept as an explicit not-supported error per
		// spec.md §9's guidance to surface unimplemented paths rather than
		// stub them silently.
		return pmm.InvalidFrame, &kernel.Error{Module: "bringup", Message: "pool page unmap not supported"}
	}
}

func startSecondaryProcessors(hooks Hooks) {
	if hooks.ProcessorCount == nil || hooks.StartProcessor == nil {
		return
	}
	count := hooks.ProcessorCount()
	if count > MaxProcessors {
		kfmt.Panic(kfmt.Bugcheck{Code: kfmt.ProcessorLimitExceeded, Params: [4]uint64{uint64(count)}})
	}
	for idx := 1; idx < count; idx++ {
		p := &sched.Processor{}
		sched.RegisterProcessor(idx, p)
		hooks.StartProcessor(idx)
	}
}

var currentCPUIndexFn = func() int { return 0 }

// currentCPUIndex resolves the running processor to its sched/pmm table
// slot. SetCurrentCPUIndexFn installs the real APIC-ID-backed resolver once
// per-CPU data (GDT/TSS per processor) is set up; bring-up itself always
// runs as CPU 0.
func currentCPUIndex() int { return currentCPUIndexFn() }

// SetCurrentCPUIndexFn installs the real per-processor index resolver.
func SetCurrentCPUIndexFn(fn func() int) { currentCPUIndexFn = fn }

func panicInit(err *kernel.Error) {
	kfmt.Printf("[bringup] %s: %s\n", err.Module, err.Message)
	kfmt.Panic(kfmt.Bugcheck{Code: kfmt.KernelInitializationFailure})
}
