package irq

import "github.com/ardent-os/ardent/kernel/kfmt"

// Regs is the register snapshot captured by the trap trampoline before an
// interrupt or exception handler runs.
type Regs struct {
	RAX, RBX, RCX, RDX uint64
	RSI, RDI, RBP      uint64
	R8, R9, R10, R11   uint64
	R12, R13, R14, R15 uint64
}

// Print dumps the register snapshot to the active console.
func (r *Regs) Print() {
	kfmt.Printf("RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Printf("RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Printf("RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Printf("RBP = %16x\n", r.RBP)
	kfmt.Printf("R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Printf("R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Printf("R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Printf("R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// Frame is the exception frame the CPU pushes automatically on trap entry.
type Frame struct {
	RIP, CS, RFlags, RSP, SS uint64
}

// Print dumps the trap frame to the active console.
func (f *Frame) Print() {
	kfmt.Printf("RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Printf("RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Printf("RFL = %16x\n", f.RFlags)
}
