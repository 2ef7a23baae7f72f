// Package irq implements the kernel's interrupt subsystem: a 256-slot vector
// table that is filled once and then armed, a classifier that names every
// vector, and the handlers that report interrupts and faults.
//
// Handlers run in interrupt context with interrupts masked. They may only
// use the allocation-free kfmt functions, the arena (whose bookkeeping is
// interrupt-safe) and the banner presenter.
package irq

import (
	"zipos/kernel"
	"zipos/kernel/cpu"
)

// vectorCount is the number of slots in the interrupt descriptor table.
const vectorCount = 256

var (
	// ErrTableArmed is returned when the table is modified after it has
	// been armed.
	ErrTableArmed = &kernel.Error{Module: "irq", Message: "vector table is already armed", Kind: kernel.KindInterrupt}

	// ErrNilHandler is returned when a nil handler is registered.
	ErrNilHandler = &kernel.Error{Module: "irq", Message: "handler must not be nil", Kind: kernel.KindInvalidArgument}

	// activeTable receives every interrupt routed through the gates.
	activeTable *Table

	loadIDTFn          = cpu.LoadIDT
	enableInterruptsFn = cpu.EnableInterrupts
)

// Handler processes an interrupt. Returning from Handle resumes the
// interrupted code with the register state stored in frame.
type Handler interface {
	Handle(frame *Frame)
}

// HandlerFunc adapts a plain function to the Handler interface.
type HandlerFunc func(frame *Frame)

// Handle calls fn(frame).
func (fn HandlerFunc) Handle(frame *Frame) {
	fn(frame)
}

// Table maps every interrupt vector to a Handler. A table starts out
// unarmed; specific handlers are registered with HandleInterrupt and Arm
// then fills every remaining slot with a default handler, installs the
// gates and enables interrupts. An armed table never changes.
type Table struct {
	handlers [vectorCount]Handler
	armed    bool
}

// HandleInterrupt registers h for vector num. It fails once the table has
// been armed.
func (t *Table) HandleInterrupt(num Number, h Handler) *kernel.Error {
	if t.armed {
		return ErrTableArmed
	}
	if h == nil {
		return ErrNilHandler
	}

	t.handlers[num] = h
	return nil
}

// Arm assigns defaultHandler to every slot that has no specific handler,
// loads the interrupt descriptor table and enables interrupts. Arm can only
// succeed once; subsequent calls return ErrTableArmed and leave the table
// untouched.
func (t *Table) Arm(defaultHandler Handler) *kernel.Error {
	if t.armed {
		return ErrTableArmed
	}
	if defaultHandler == nil {
		return ErrNilHandler
	}

	for i := range t.handlers {
		if t.handlers[i] == nil {
			t.handlers[i] = defaultHandler
		}
	}

	t.armed = true
	activeTable = t

	remapPIC()
	loadIDTFn(installGates())
	enableInterruptsFn()
	return nil
}

// Armed reports whether Arm has completed.
func (t *Table) Armed() bool {
	return t.armed
}

// Handler returns the handler assigned to vector num.
func (t *Table) Handler(num Number) Handler {
	return t.handlers[num]
}

// Dispatch routes an interrupt to the handler registered for its vector.
func (t *Table) Dispatch(frame *Frame) {
	t.handlers[Number(frame.Vector)].Handle(frame)
}

// dispatch is invoked by the common gate trampoline with a pointer to the
// frame it built on the interrupt stack.
func dispatch(frame *Frame) {
	activeTable.Dispatch(frame)
}
