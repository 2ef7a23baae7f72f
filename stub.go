package main

import "zipos/kernel/kmain"

var (
	multibootInfoPtr       uintptr
	kernelStart, kernelEnd uintptr
)

// main makes a dummy call to the actual kernel main entrypoint function. It
// is intentionally defined to prevent the Go compiler from optimizing away the
// real kernel code.
//
// Global variables are passed as arguments to Kmain to prevent the compiler
// from inlining the actual call and removing Kmain from the generated .o file.
// The rt0 code patches them with the values handed over by the bootloader and
// the linker script before jumping here.
func main() {
	kmain.Kmain(multibootInfoPtr, kernelStart, kernelEnd)
}
