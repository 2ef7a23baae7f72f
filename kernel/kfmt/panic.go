package kfmt

import (
	"zipos/kernel"
	"zipos/kernel/cpu"
)

var (
	// haltFn is mocked by tests and is automatically inlined by the compiler.
	haltFn = cpu.HaltForever

	// panicHook, when set, is invoked with the error that caused the panic
	// before the CPU is halted. The boot sequence uses it to put the failure
	// on screen.
	panicHook func(*kernel.Error)

	errRuntimePanic = &kernel.Error{Module: "rt", Message: "unknown cause"}
)

// SetPanicHook registers fn to be invoked by Panic right before the CPU is
// halted. fn runs with the system in an unknown state and must not allocate.
func SetPanicHook(fn func(*kernel.Error)) {
	panicHook = fn
}

// Panic outputs the supplied error (if not nil) to the active output sink and
// halts the CPU. Calls to Panic never return. Panic also works as a
// redirection target for calls to panic() (resolved via runtime.gopanic)
//
//go:redirect-from runtime.gopanic
func Panic(e interface{}) {
	var err *kernel.Error

	switch t := e.(type) {
	case *kernel.Error:
		err = t
	case string:
		panicString(t)
		return
	case error:
		errRuntimePanic.Message = t.Error()
		err = errRuntimePanic
	}

	Printf("\n-----------------------------------\n")
	if err != nil {
		if err.Kind != kernel.KindUnknown {
			Printf("[%s] unrecoverable %s error: %s\n", err.Module, err.Kind.String(), err.Message)
		} else {
			Printf("[%s] unrecoverable error: %s\n", err.Module, err.Message)
		}
	}
	Printf("*** kernel panic: system halted ***")
	Printf("\n-----------------------------------\n")

	if err != nil && panicHook != nil {
		// Clear the hook first so a fault inside it cannot recurse.
		hook := panicHook
		panicHook = nil
		hook(err)
	}

	haltFn()
}

// panicString serves as a redirect target for runtime.throw
//
//go:redirect-from runtime.throw
func panicString(msg string) {
	errRuntimePanic.Message = msg
	Panic(errRuntimePanic)
}
