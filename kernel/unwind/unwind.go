package unwind

// FunctionEntryResolver resolves a RIP to its function table, runtime
// function entry and decoded unwind info, crossing image boundaries (each
// loaded program carries its own .pdata/.xdata per spec.md §4.B).
type FunctionEntryResolver interface {
	LookupFunctionEntry(rip uint64) (imageBase uint64, fn *RuntimeFunction, info *UnwindInfo, mem Memory)
	CodeAt(imageBase uint64, fn *RuntimeFunction, rip uint64, n int) []byte
}

// HandlerType selects which language handler flavor virtual unwind is
// looking for (spec.md §4.F uses a mask so multiple types can be probed at
// once).
type HandlerType uint8

const (
	HandlerException HandlerType = 1 << iota
	HandlerUnwind
)

// VirtualUnwindResult carries what VirtualUnwind discovered for one frame.
type VirtualUnwindResult struct {
	EstablisherFrame    uint64
	LanguageHandlerRVA  uint32
	HandlerDataRVA      uint32
	HasLanguageHandler  bool
}

// VirtualUnwind executes one step of virtual unwinding (spec.md §4.F):
// leaf-function fast path, epilog simulation, or prolog-opcode replay,
// following UNW_FLAG_CHAININFO to its chained function when present.
func VirtualUnwind(resolver FunctionEntryResolver, handlerMask HandlerType, rip uint64, mem Memory, ctx *Context) VirtualUnwindResult {
	imageBase, fn, info, imgMem := resolver.LookupFunctionEntry(rip)

	if fn == nil {
		// Leaf function: pop the return address and advance SP.
		ctx.RIP = mem.ReadU64(ctx.RSP)
		ctx.RSP += 8
		return VirtualUnwindResult{EstablisherFrame: ctx.RSP}
	}

	currentOffset := uint8(rip - imageBase - uint64(fn.BeginRVA))
	if currentOffset > 255 {
		currentOffset = 255
	}

	frameBase := info.frameBase(ctx, currentOffset)

	codeWindow := resolver.CodeAt(imageBase, fn, rip, 16)
	if m, ok := matchEpilog(codeWindow); ok {
		simulateEpilog(ctx, mem, m)
		return VirtualUnwindResult{EstablisherFrame: frameBase}
	}

	for i := 0; i < len(info.Codes); i++ {
		c := info.Codes[i]
		if c.PrologOffset > currentOffset {
			continue
		}
		terminate := applyOpCode(ctx, mem, c, &info.Codes, &i)
		if terminate {
			return VirtualUnwindResult{EstablisherFrame: frameBase}
		}
	}

	if info.hasChainInfo() && info.Chained != nil {
		return VirtualUnwind(resolver, handlerMask, imageBase+uint64(info.Chained.BeginRVA), imgMem, ctx)
	}

	return VirtualUnwindResult{
		EstablisherFrame:   frameBase,
		LanguageHandlerRVA: info.ExceptionHandlerRVA,
		HandlerDataRVA:     info.HandlerDataRVA,
		HasLanguageHandler: info.ExceptionHandlerRVA != 0,
	}
}

// simulateEpilog directly applies the recognized epilog window to ctx
// instead of replaying prolog opcodes, per spec.md §4.F. The mem argument
// is used to restore each popped register's caller-saved value.
func simulateEpilog(ctx *Context, mem Memory, m epilogMatch) {
	ctx.RSP = uint64(int64(ctx.RSP) + m.stackAdjust)
	for _, reg := range m.poppedRegs {
		ctx.SetNonvolatile(reg, mem.ReadU64(ctx.RSP))
		ctx.RSP += 8
	}
	ctx.RIP = 0 // caller (dispatch_exception) resumes via RET/JMP semantics
}

// applyOpCode mutates ctx per one UNWIND_CODE's documented effect. It
// returns true if the opcode terminates the unwind step (PUSH_MACHFRAME).
func applyOpCode(ctx *Context, mem Memory, c UnwindOpCode, codes *[]UnwindOpCode, i *int) bool {
	switch c.Op {
	case OpPushNonvol:
		ctx.SetNonvolatile(c.OpInfo, mem.ReadU64(ctx.RSP))
		ctx.RSP += 8
	case OpAllocLarge:
		ctx.RSP += uint64(c.FrameOffset)
	case OpAllocSmall:
		ctx.RSP += uint64(c.OpInfo)*8 + 8
	case OpSetFPReg:
		// Frame pointer already accounted for by frameBase; nothing to
		// mutate on ctx itself beyond what frameBase already computed.
	case OpSaveNonvol, OpSaveNonvolFar:
		ctx.SetNonvolatile(c.OpInfo, mem.ReadU64(ctx.RSP+uint64(c.FrameOffset)))
	case OpSaveXMM128, OpSaveXMM128Far:
		// XMM registers are not modeled in Context; recorded for
		// completeness but not restored (no floating-point state is live
		// across the kernel's exception path).
	case OpPushMachFrame:
		ctx.RIP = mem.ReadU64(ctx.RSP)
		ctx.RSP = mem.ReadU64(ctx.RSP + 24)
		return true
	case OpEpilog, OpSpareCode:
		// No register effect; informational codes only.
	}
	return false
}
