package irq

import (
	"sync/atomic"

	"github.com/ardent-os/ardent/kernel/cpu"
	"github.com/ardent-os/ardent/kernel/kfmt"
	"github.com/ardent-os/ardent/kernel/unwind"
)

// FPException refines a raw FloatingPointException trap into the specific
// x87 condition MXCSR reports (spec.md §4.G).
type FPException uint8

const (
	FPInvalidOperation FPException = iota
	FPDenormalized
	FPDivideByZero
	FPOverflow
	FPUnderflow
	FPPrecision
	FPStackFault
	FPUnknown
)

func classifyFP(mxcsr uint32) FPException {
	switch {
	case mxcsr&(1<<6) != 0:
		return FPStackFault
	case mxcsr&(1<<0) != 0:
		return FPInvalidOperation
	case mxcsr&(1<<1) != 0:
		return FPDenormalized
	case mxcsr&(1<<2) != 0:
		return FPDivideByZero
	case mxcsr&(1<<3) != 0:
		return FPOverflow
	case mxcsr&(1<<4) != 0:
		return FPUnderflow
	case mxcsr&(1<<5) != 0:
		return FPPrecision
	default:
		return FPUnknown
	}
}

var (
	exceptionResolver unwind.FunctionEntryResolver
	handlerResolver   unwind.HandlerResolver
	exceptionMem      unwind.Memory

	// nmiFrozen is raised once a processor has decided the machine must
	// halt; every other processor's NMI handler spins forever instead of
	// compounding the failure (spec.md §4.G).
	nmiFrozen uint32
)

// SetUnwindBackend wires the resolver, language-handler lookup and memory
// view DispatchTrap hands to kernel/unwind.DispatchException. kernel/bringup
// does not call it; until it is called, DispatchTrap turns every trap other
// than NMI into a bugcheck.
func SetUnwindBackend(resolver unwind.FunctionEntryResolver, handlers unwind.HandlerResolver, mem unwind.Memory) {
	exceptionResolver, handlerResolver, exceptionMem = resolver, handlers, mem
}

// FreezeOtherProcessors raises nmiFrozen so that every other processor's
// NMI handler halts in place, used when one processor has detected a fatal
// condition and is bringing the machine down.
func FreezeOtherProcessors() {
	atomic.StoreUint32(&nmiFrozen, 1)
}

// DispatchTrap is a TrapHandler for the vectors 0-31 (spec.md §4.G);
// kernel/bringup does not install it. NMI is special-cased; everything else is turned into an
// ExceptionRecord and walked through the two-pass unwinder.
func DispatchTrap(trap TrapNum, errorCode uint64, regs *Regs, frame *Frame) {
	if trap == NMI {
		if atomic.LoadUint32(&nmiFrozen) != 0 {
			for {
				cpu.Halt()
			}
		}
		kfmt.Panic(kfmt.Bugcheck{Code: kfmt.NMIHardwareFailure, Params: [4]uint64{frame.RIP, 0, 0, 0}})
		return
	}

	rec := &unwind.ExceptionRecord{Code: uint32(trap), Address: frame.RIP}

	var info [2]uint64
	switch trap {
	case PageFaultException:
		faultAddr := uint64(cpu.ReadCR2())
		isWrite := errorCode&0x2 != 0
		if isWrite {
			info[0] = 1
		}
		info[1] = faultAddr
	case FloatingPointException:
		rec.Code = uint32(0x1_0000) | uint32(classifyFP(cpu.ReadMXCSR()))
	}

	ctx := &unwind.Context{
		RIP: frame.RIP, RSP: frame.RSP, RBP: regs.RBP,
		RBX: regs.RBX, RSI: regs.RSI, RDI: regs.RDI,
		R12: regs.R12, R13: regs.R13, R14: regs.R14, R15: regs.R15,
	}

	if exceptionResolver == nil {
		panicForTrap(trap, frame, info)
		return
	}

	switch unwind.DispatchException(exceptionResolver, handlerResolver, exceptionMem, rec, ctx) {
	case unwind.ContinueExecution:
		frame.RIP, frame.RSP = ctx.RIP, ctx.RSP
		regs.RBP, regs.RBX, regs.RSI, regs.RDI = ctx.RBP, ctx.RBX, ctx.RSI, ctx.RDI
		regs.R12, regs.R13, regs.R14, regs.R15 = ctx.R12, ctx.R13, ctx.R14, ctx.R15
	default:
		panicForTrap(trap, frame, info)
	}
}

func panicForTrap(trap TrapNum, frame *Frame, info [2]uint64) {
	if trap == PageFaultException {
		kfmt.Panic(kfmt.Bugcheck{Code: kfmt.PageFaultNotHandled, Params: [4]uint64{info[0], info[1], frame.RIP, 0}})
		return
	}
	kfmt.Panic(kfmt.Bugcheck{Code: kfmt.TrapNotHandled, Params: [4]uint64{uint64(trap), frame.RIP, 0, 0}})
}
