// Package sync provides the synchronization primitives used by the kernel.
// With a single hardware thread the only source of concurrency is an
// interrupt arriving in the middle of a critical section, so the primitives
// here work by masking interrupts rather than by spinning.
package sync

import "zipos/kernel/cpu"

var (
	flagsFn             = cpu.Flags
	disableInterruptsFn = cpu.DisableInterrupts
	enableInterruptsFn  = cpu.EnableInterrupts
)

// IRQGuard masks interrupts for the duration of a short critical section and
// restores the interrupt state that was active when the guard was acquired.
// Guards nest: an inner guard acquired while interrupts are already masked
// (e.g. from inside an interrupt handler) leaves them masked on release.
//
// The zero value is ready to use. An IRQGuard must not be copied after it
// has been acquired.
type IRQGuard struct {
	restore bool
}

// Acquire masks interrupts, remembering whether they were enabled before.
func (g *IRQGuard) Acquire() {
	g.restore = cpu.InterruptsEnabled(flagsFn())
	disableInterruptsFn()
}

// Release re-enables interrupts if and only if they were enabled when the
// guard was acquired.
func (g *IRQGuard) Release() {
	if g.restore {
		g.restore = false
		enableInterruptsFn()
	}
}
