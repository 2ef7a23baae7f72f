package kernel

// ErrorKind classifies a kernel error so that callers can decide how to react
// to it without comparing messages.
type ErrorKind uint8

// The list of supported error kinds.
const (
	KindUnknown ErrorKind = iota

	// KindOutOfMemory is reported when an allocator cannot satisfy a request.
	KindOutOfMemory

	// KindMalformed is reported when on-disk structures fail validation.
	KindMalformed

	// KindDeviceFault is reported when a device could not complete a request.
	KindDeviceFault

	// KindNotFound is reported when a lookup misses.
	KindNotFound

	// KindConfig is reported when the boot configuration cannot work.
	KindConfig

	// KindInvalidArgument is reported when a caller violates an operation's
	// preconditions.
	KindInvalidArgument

	// KindInterrupt is reported by the interrupt subsystem.
	KindInterrupt
)

// String implements fmt.Stringer for ErrorKind.
func (k ErrorKind) String() string {
	switch k {
	case KindOutOfMemory:
		return "out of memory"
	case KindMalformed:
		return "malformed"
	case KindDeviceFault:
		return "device fault"
	case KindNotFound:
		return "not found"
	case KindConfig:
		return "configuration"
	case KindInvalidArgument:
		return "invalid argument"
	case KindInterrupt:
		return "interrupt"
	default:
		return "unknown"
	}
}

// Error describes a kernel error. All kernel errors must be defined as global
// variables that are pointers to the Error structure. This requirement stems
// from the fact that the Go allocator is not available to us so we cannot use
// errors.New.
type Error struct {
	// The module where the error occurred.
	Module string

	// The error message
	Message string

	// Kind groups related errors together.
	Kind ErrorKind
}

// Error implements the error interface.
func (e *Error) Error() string {
	return e.Message
}

// Is reports whether e belongs to the given kind. It is safe to call on a nil
// receiver.
func (e *Error) Is(kind ErrorKind) bool {
	return e != nil && e.Kind == kind
}
