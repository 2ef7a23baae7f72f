package cpu

// flagIF is the interrupt-enable bit of the RFLAGS register.
const flagIF = 1 << 9

var (
	haltFn              = Halt
	disableInterruptsFn = DisableInterrupts
)

// EnableInterrupts enables interrupt handling.
func EnableInterrupts()

// DisableInterrupts disables interrupt handling.
func DisableInterrupts()

// Halt stops instruction execution until the next interrupt arrives.
func Halt()

// Flags returns the current value of the RFLAGS register.
func Flags() uint64

// InterruptsEnabled reports whether the interrupt-enable bit is set in the
// supplied RFLAGS value.
func InterruptsEnabled(flags uint64) bool {
	return flags&flagIF != 0
}

// ReadCR2 returns the value stored in the CR2 register which holds the
// faulting address after a page fault.
func ReadCR2() uint64

// EnableFPU enables the x87 FPU and the SSE extensions that the compiler
// uses for floating point arithmetic.
func EnableFPU()

// LoadIDT loads the interrupt descriptor table register from the 10-byte
// descriptor (16-bit limit followed by the 64-bit table base) located at
// descriptorAddr.
func LoadIDT(descriptorAddr uintptr)

// IdleForever halts the CPU in a loop. Interrupts keep being serviced
// between halts so the fault subsystem stays operational. It never returns.
func IdleForever() {
	for {
		haltFn()
	}
}

// HaltForever masks interrupts and halts the CPU in a loop. It is used by
// the fatal error path where no further code must run. It never returns.
func HaltForever() {
	for {
		disableInterruptsFn()
		haltFn()
	}
}

// PortWriteByte writes a uint8 value to the requested port.
func PortWriteByte(port uint16, val uint8)

// PortReadByte reads a uint8 value from the requested port.
func PortReadByte(port uint16) uint8

// PortReadWord reads a uint16 value from the requested port.
func PortReadWord(port uint16) uint16
