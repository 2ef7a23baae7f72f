package irq

// Number identifies one of the 256 interrupt vectors.
type Number uint8

// Vectors reserved by the CPU for exceptions. The remaining numbers below 32
// are reserved by the architecture; everything from 32 up is available for
// hardware and software interrupts.
const (
	DivideError               = Number(0)
	DebugException            = Number(1)
	NMI                       = Number(2)
	Breakpoint                = Number(3)
	Overflow                  = Number(4)
	BoundRangeExceeded        = Number(5)
	InvalidOpcode             = Number(6)
	DeviceNotAvailable        = Number(7)
	DoubleFault               = Number(8)
	CoprocessorSegmentOverrun = Number(9)
	InvalidTSS                = Number(10)
	SegmentNotPresent         = Number(11)
	StackSegmentFault         = Number(12)
	GeneralProtectionFault    = Number(13)
	PageFault                 = Number(14)
	X87FloatingPoint          = Number(16)
	AlignmentCheck            = Number(17)
	MachineCheck              = Number(18)
	SIMDFloatingPoint         = Number(19)
	VirtualizationException   = Number(20)
	ControlProtection         = Number(21)
	HypervisorInjection       = Number(28)
	VMMCommunication          = Number(29)
	SecurityException         = Number(30)

	// firstExternal is the first vector not reserved for exceptions.
	firstExternal = Number(32)
)

// externalName is the label shared by all vectors from 32 up.
const externalName = "Hardware/software interrupt"

var exceptionNames = [firstExternal]string{
	"Divide error",
	"Debug exception",
	"Non-maskable interrupt",
	"Breakpoint",
	"Overflow",
	"BOUND range exceeded",
	"Invalid opcode",
	"Device not available",
	"Double fault",
	"Coprocessor segment overrun",
	"Invalid TSS",
	"Segment not present",
	"Stack-segment fault",
	"General protection fault",
	"Page fault",
	"Reserved (15)",
	"x87 floating-point exception",
	"Alignment check",
	"Machine check",
	"SIMD floating-point exception",
	"Virtualization exception",
	"Control protection exception",
	"Reserved (22)",
	"Reserved (23)",
	"Reserved (24)",
	"Reserved (25)",
	"Reserved (26)",
	"Reserved (27)",
	"Hypervisor injection exception",
	"VMM communication exception",
	"Security exception",
	"Reserved (31)",
}

// Fault describes a single interrupt occurrence.
type Fault struct {
	Number Number
	Name   string

	// Fatal is set for conditions the CPU cannot resume from.
	Fatal bool
}

// Classify maps an interrupt number to its description. Every exception
// vector has its own name; vectors from 32 up share a generic label.
func Classify(num Number) Fault {
	if num >= firstExternal {
		return Fault{Number: num, Name: externalName}
	}

	return Fault{
		Number: num,
		Name:   exceptionNames[num],
		Fatal:  num == DoubleFault || num == MachineCheck,
	}
}

// HasErrorCode reports whether the CPU pushes an error code on the stack
// when it raises num.
func HasErrorCode(num Number) bool {
	switch num {
	case DoubleFault, InvalidTSS, SegmentNotPresent, StackSegmentFault,
		GeneralProtectionFault, PageFault, AlignmentCheck, ControlProtection,
		VMMCommunication, SecurityException:
		return true
	default:
		return false
	}
}
