package irq

// TrapNum identifies one of the CPU-defined exception vectors, 0-31
// (spec.md §4.G).
type TrapNum uint8

const (
	DivideByZero               = TrapNum(0)
	NMI                        = TrapNum(2)
	Breakpoint                 = TrapNum(3)
	Overflow                   = TrapNum(4)
	BoundRangeExceeded         = TrapNum(5)
	InvalidOpcode              = TrapNum(6)
	DeviceNotAvailable         = TrapNum(7)
	DoubleFault                = TrapNum(8)
	InvalidTSS                 = TrapNum(10)
	SegmentNotPresent          = TrapNum(11)
	StackSegmentFault          = TrapNum(12)
	GPFException               = TrapNum(13)
	PageFaultException         = TrapNum(14)
	FloatingPointException     = TrapNum(16)
	AlignmentCheck             = TrapNum(17)
	MachineCheck               = TrapNum(18)
	SIMDFloatingPointException = TrapNum(19)
)

// Reserved vectors above the trap range, each wired to a fixed-purpose stub
// rather than the generic interrupt trampoline (spec.md §4.G).
const (
	VectorAlert      uint8 = 0xF0
	VectorFastFail   uint8 = 0xF1
	VectorDPC        uint8 = 0xF2
	VectorTimer      uint8 = 0xF8
	VectorIPI        uint8 = 0xFE
	VectorSpurious   uint8 = 0xFF
)

// TrapHandler processes one of the 32 CPU-defined exception vectors. errorCode
// is only meaningful for vectors that push one (8, 10-14, 17).
type TrapHandler func(trap TrapNum, errorCode uint64, regs *Regs, frame *Frame)

// ReservedHandler processes a fixed-purpose reserved vector (alert,
// fast-fail, DPC, timer, IPI, spurious).
type ReservedHandler func(regs *Regs, frame *Frame)

var (
	trapHandlers     [32]TrapHandler
	reservedHandlers = map[uint8]ReservedHandler{}
)

// HandleTrap registers the handler invoked when trap occurs on the calling
// processor. Installing over an existing handler replaces it.
func HandleTrap(trap TrapNum, handler TrapHandler) {
	trapHandlers[trap] = handler
}

// HandleReserved registers the handler for one of the fixed-purpose
// reserved vectors (VectorAlert, VectorFastFail, VectorDPC, VectorTimer,
// VectorIPI, VectorSpurious).
func HandleReserved(vector uint8, handler ReservedHandler) {
	reservedHandlers[vector] = handler
}

// InitIDT builds the calling processor's 256-entry IDT: vectors 0-31 route
// to the trap trampoline, the reserved vectors route to their fixed stubs,
// and every remaining vector routes to the generic interrupt trampoline
// that calls Dispatch (spec.md §4.G). Declared per-architecture.
func InitIDT(cpuIdx int)

// loadIDT installs the assembled table into the processor's IDTR.
func loadIDT(cpuIdx int)

// trapTrampoline is invoked by the architecture's vector 0-31 gate stubs.
// errorCode is 0 for vectors that don't push one.
func trapTrampoline(trap uint8, errorCode uint64, regs *Regs, frame *Frame) {
	if int(trap) < len(trapHandlers) && trapHandlers[trap] != nil {
		trapHandlers[trap](TrapNum(trap), errorCode, regs, frame)
	}
}

// reservedTrampoline is invoked by the architecture's reserved-vector gate
// stubs.
func reservedTrampoline(vector uint8, regs *Regs, frame *Frame) {
	if handler, ok := reservedHandlers[vector]; ok {
		handler(regs, frame)
	}
}

// interruptTrampoline is invoked by the architecture's generic gate stub
// for every vector outside the trap and reserved ranges.
func interruptTrampoline(cpuIdx int, vector uint8, regs *Regs, frame *Frame) {
	Dispatch(cpuIdx, vector, regs, frame)
}
