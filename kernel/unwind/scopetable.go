package unwind

// ScopeTableEntry is one entry of a C-language scope table: the RVA range
// of code it covers, a filter/handler address, and a jump target (spec.md
// §4.F). HandlerAddress may carry the 0x80000000 indirect bit, meaning the
// real address is stored at that location rather than being callable
// directly.
type ScopeTableEntry struct {
	BeginRVA, EndRVA uint32
	HandlerAddress   uint64
	JumpTarget       uint64
}

// ScopeTable is the compiler-emitted array a C-language personality routine
// walks, referenced by a function's HandlerDataRVA.
type ScopeTable struct {
	Entries []ScopeTableEntry
}

const handlerIndirectBit = 0x80000000

// executeHandler is the sentinel HandlerAddress meaning "always run this
// scope's termination/filter unconditionally", matching the compiler's use
// of EXCEPTION_EXECUTE_HANDLER in place of a real filter function.
const executeHandler = ^uint64(0)

// ScopeFilter evaluates a scope's filter expression (or a resolved
// indirect/direct handler) and reports whether it claims the exception.
type ScopeFilter func(entry *ScopeTableEntry, rec *ExceptionRecord, ctx *Context) bool

// TerminationBlock runs a scope's in-place cleanup block under the
// `(1, establisherFrame)` callable contract the compiler generates for
// termination handlers (abnormal-termination flag set to 1, establisher
// frame as the sole argument).
type TerminationBlock func(entry *ScopeTableEntry, establisherFrame uint64)

// CLanguageHandler builds a LanguageHandler bound to a fixed scope table,
// resolving the faulting PC's RVA from the establisher frame's owning
// function base (imageBase passed in by the caller at construction time).
//
// On the exception pass it walks scopes covering the fault PC; if a
// scope's HandlerAddress is executeHandler, or its filter evaluates to
// executeHandler (non-zero/true), it transfers control to that scope's
// jump target via unwind. On the unwind pass it runs every covering scope
// whose JumpTarget is 0 (a termination block) in program order, in place,
// without altering control flow.
func CLanguageHandler(table *ScopeTable, imageBase, funcBase uint64, filter ScopeFilter, run TerminationBlock, doUnwind func(targetFrame, targetIP uint64)) LanguageHandler {
	return func(rec *ExceptionRecord, establisherFrame uint64, ctx *Context, _ interface{}) Disposition {
		faultRVA := uint32(rec.Address - imageBase)

		if rec.Flags&flagUnwind == 0 {
			for i := range table.Entries {
				e := &table.Entries[i]
				if faultRVA < e.BeginRVA || faultRVA >= e.EndRVA {
					continue
				}
				claimed := e.HandlerAddress == executeHandler
				if !claimed && filter != nil && e.HandlerAddress != 0 {
					claimed = filter(e, rec, ctx)
				}
				if claimed {
					doUnwind(establisherFrame, imageBase+uint32AsU64(uint32(e.JumpTarget)))
					return ContinueExecution
				}
			}
			return ContinueSearch
		}

		for i := range table.Entries {
			e := &table.Entries[i]
			if faultRVA < e.BeginRVA || faultRVA >= e.EndRVA {
				continue
			}
			if e.JumpTarget == 0 && run != nil {
				run(e, establisherFrame)
			}
		}
		return ContinueSearch
	}
}

func uint32AsU64(v uint32) uint64 { return uint64(v) }
