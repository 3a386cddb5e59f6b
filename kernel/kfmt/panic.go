package kfmt

import (
	"github.com/ardent-os/ardent/kernel"
	"github.com/ardent-os/ardent/kernel/cpu"
)

// Code enumerates the fatal kernel-panic reasons from spec.md §6. Unlike the
// generic *kernel.Error path, a Code panic carries up to four 64-bit
// parameters identifying the offending object (e.g. the bad PFN, the
// mismatched IRQL pair).
type Code uint32

// The enumerated panic codes.
const (
	KernelInitializationFailure Code = iota + 1
	PFNInitializationFailure
	PoolInitializationFailure
	APICInitializationFailure
	BadPFNHeader
	PageFaultNotHandled
	TrapNotHandled
	NMIHardwareFailure
	IrqlNotEqual
	BadThreadState
	ProcessorLimitExceeded
)

var codeNames = map[Code]string{
	KernelInitializationFailure: "KERNEL_INITIALIZATION_FAILURE",
	PFNInitializationFailure:    "PFN_INITIALIZATION_FAILURE",
	PoolInitializationFailure:   "POOL_INITIALIZATION_FAILURE",
	APICInitializationFailure:   "APIC_INITIALIZATION_FAILURE",
	BadPFNHeader:                "BAD_PFN_HEADER",
	PageFaultNotHandled:         "PAGE_FAULT_NOT_HANDLED",
	TrapNotHandled:              "TRAP_NOT_HANDLED",
	NMIHardwareFailure:          "NMI_HARDWARE_FAILURE",
	IrqlNotEqual:                "IRQL_NOT_EQUAL",
	BadThreadState:              "BAD_THREAD_STATE",
	ProcessorLimitExceeded:      "PROCESSOR_LIMIT_EXCEEDED",
}

// String returns the panic code's enumerated name, or "UNKNOWN_PANIC_CODE"
// if it is not one of the codes in spec.md §6.
func (c Code) String() string {
	if name, ok := codeNames[c]; ok {
		return name
	}
	return "UNKNOWN_PANIC_CODE"
}

// Bugcheck bundles a Code together with the up-to-four parameters that
// identify the offending object, mirroring the structured panics raised by
// invariant violations (corrupt PFN header, bad IRQL transition, ...).
type Bugcheck struct {
	Code   Code
	Params [4]uint64
}

var (
	// cpuHaltFn is mocked by tests and is automatically inlined by the compiler.
	cpuHaltFn = cpu.Halt

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// Panic outputs the supplied error (if not nil) to the console and halts the
// CPU. Calls to Panic never return. Panic also works as a redirection target
// for calls to panic() (resolved via runtime.gopanic).
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case Bugcheck:
		panicBugcheck(t)
		return
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	cpuHaltFn()
}

// panicString serves as a redirect target for runtime.throw.
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}

// panicBugcheck prints a structured bugcheck (spec.md §6 panic codes) with
// its parameters before halting.
func panicBugcheck(bc Bugcheck) {
	Printf("\n-----------------------------------\n")
	Printf("*** STOP: %s (0x%x, 0x%x, 0x%x, 0x%x) ***\n",
		bc.Code.String(), bc.Params[0], bc.Params[1], bc.Params[2], bc.Params[3])
	Printf("-----------------------------------\n")

	cpuHaltFn()
}
