package irq

import (
	"io"

	"zipos/kernel/kfmt"
)

// Regs contains a snapshot of the general purpose register values when an
// interrupt occurred. The field order matches the order in which the gate
// trampoline saves them.
type Regs struct {
	RAX uint64
	RBX uint64
	RCX uint64
	RDX uint64
	RSI uint64
	RDI uint64
	RBP uint64
	R8  uint64
	R9  uint64
	R10 uint64
	R11 uint64
	R12 uint64
	R13 uint64
	R14 uint64
	R15 uint64
}

// Frame is the stack layout seen by Dispatch: the saved registers, the
// vector number and error code pushed by the gate trampoline and the return
// frame pushed by the CPU. Modifications to a Frame are propagated back to
// the interrupted code when the handler returns.
type Frame struct {
	Regs

	// Vector is the interrupt number that triggered the gate.
	Vector uint64

	// ErrorCode is the CPU-supplied error code or 0 for vectors that do
	// not push one.
	ErrorCode uint64

	// The return frame used by IRETQ.
	RIP    uint64
	CS     uint64
	RFlags uint64
	RSP    uint64
	SS     uint64
}

// DumpTo outputs the register contents to w.
func (r *Regs) DumpTo(w io.Writer) {
	kfmt.Fprintf(w, "RAX = %16x RBX = %16x\n", r.RAX, r.RBX)
	kfmt.Fprintf(w, "RCX = %16x RDX = %16x\n", r.RCX, r.RDX)
	kfmt.Fprintf(w, "RSI = %16x RDI = %16x\n", r.RSI, r.RDI)
	kfmt.Fprintf(w, "RBP = %16x\n", r.RBP)
	kfmt.Fprintf(w, "R8  = %16x R9  = %16x\n", r.R8, r.R9)
	kfmt.Fprintf(w, "R10 = %16x R11 = %16x\n", r.R10, r.R11)
	kfmt.Fprintf(w, "R12 = %16x R13 = %16x\n", r.R12, r.R13)
	kfmt.Fprintf(w, "R14 = %16x R15 = %16x\n", r.R14, r.R15)
}

// DumpTo outputs the register contents followed by the return frame to w.
// The error code is included for vectors that push one.
func (f *Frame) DumpTo(w io.Writer) {
	f.Regs.DumpTo(w)
	kfmt.Fprintf(w, "\n")
	kfmt.Fprintf(w, "RIP = %16x CS  = %16x\n", f.RIP, f.CS)
	kfmt.Fprintf(w, "RSP = %16x SS  = %16x\n", f.RSP, f.SS)
	kfmt.Fprintf(w, "RFL = %16x\n", f.RFlags)
	if HasErrorCode(Number(f.Vector)) {
		kfmt.Fprintf(w, "ERR = %16x\n", f.ErrorCode)
	}
}
