package irq

import "unsafe"

const (
	// kernelCodeSelector is the GDT selector of the 64-bit kernel code
	// segment set up by the boot trampoline.
	kernelCodeSelector = 0x08

	// gateTypeInterrupt marks a present, ring-0, 64-bit interrupt gate.
	// Interrupt gates clear IF on entry.
	gateTypeInterrupt = 0x8e
)

// gateDescriptor is a 64-bit mode IDT entry.
type gateDescriptor struct {
	offsetLow  uint16
	selector   uint16
	ist        uint8
	typeAttr   uint8
	offsetMid  uint16
	offsetHigh uint32
	reserved   uint32
}

var (
	idt [vectorCount]gateDescriptor

	// idtDescriptor holds the 16-bit limit and the 64-bit base of idt in
	// the packed layout expected by LIDT.
	idtDescriptor [10]byte

	gateEntriesFn = gateEntries
)

// gateEntries returns the addresses of the 256 gate trampolines. Each
// trampoline pushes its vector number (and a zero error code for vectors
// where the CPU does not push one) before jumping to the common entry that
// calls dispatch.
func gateEntries() *[vectorCount]uintptr

// installGates points every IDT entry at its trampoline and returns the
// address of the descriptor to be passed to LIDT.
func installGates() uintptr {
	for i, addr := range gateEntriesFn() {
		idt[i] = gateDescriptor{
			offsetLow:  uint16(addr),
			selector:   kernelCodeSelector,
			typeAttr:   gateTypeInterrupt,
			offsetMid:  uint16(addr >> 16),
			offsetHigh: uint32(addr >> 32),
		}
	}

	limit := uint16(unsafe.Sizeof(idt) - 1)
	base := uint64(uintptr(unsafe.Pointer(&idt[0])))

	idtDescriptor[0] = byte(limit)
	idtDescriptor[1] = byte(limit >> 8)
	for i := 0; i < 8; i++ {
		idtDescriptor[2+i] = byte(base >> (8 * i))
	}

	return uintptr(unsafe.Pointer(&idtDescriptor[0]))
}

// gateAddr reassembles the handler address stored in an IDT entry.
func (d *gateDescriptor) gateAddr() uintptr {
	return uintptr(d.offsetLow) | uintptr(d.offsetMid)<<16 | uintptr(d.offsetHigh)<<32
}
