package unwind

// UnwindOpCode is one UNWIND_CODE entry decoded from .xdata.
type UnwindOpCode struct {
	PrologOffset uint8
	Op           OpCode
	OpInfo       uint8
	FrameOffset  uint32 // scaled operand for ALLOC_LARGE/SAVE_NONVOL/SAVE_XMM128
}

// OpCode enumerates the x86-64 UNWIND_CODE operations (spec.md §4.F).
type OpCode uint8

const (
	OpPushNonvol OpCode = iota
	OpAllocLarge
	OpAllocSmall
	OpSetFPReg
	OpSaveNonvol
	OpSaveNonvolFar
	OpSaveXMM128
	OpSaveXMM128Far
	OpPushMachFrame
	OpEpilog
	OpSpareCode
)

const (
	unwFlagChainInfo = 0x20
)

// UnwindInfo is the decoded UNWIND_INFO structure.
type UnwindInfo struct {
	Flags        uint8
	SizeOfProlog uint8
	FrameRegister uint8 // 0 = none, else UNWIND_CODE register numbering
	FrameOffset   uint8 // scaled by 16

	Codes []UnwindOpCode

	// ExceptionHandlerRVA / ChainedFunction depend on Flags; only one is
	// populated.
	ExceptionHandlerRVA uint32
	HandlerDataRVA      uint32
	Chained             *RuntimeFunction
}

func (u *UnwindInfo) hasChainInfo() bool { return u.Flags&unwFlagChainInfo != 0 }
func (u *UnwindInfo) version() uint8     { return 0 } // not tracked; all parsed codes assume v1/v2

// frameBase computes the establisher frame base: either RSP, or
// frame_register - 16*frame_offset once the SET_FPREG opcode has executed
// at the current prolog offset (spec.md §4.F).
func (u *UnwindInfo) frameBase(ctx *Context, currentOffset uint8) uint64 {
	if u.FrameRegister == 0 {
		return ctx.RSP
	}
	for _, c := range u.Codes {
		if c.Op == OpSetFPReg && c.PrologOffset <= currentOffset {
			return ctx.nonvolatile(u.FrameRegister) - 16*uint64(u.FrameOffset)
		}
	}
	return ctx.RSP
}
