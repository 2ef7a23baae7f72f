package irq

import (
	"image/color"

	"zipos/kernel"
	"zipos/kernel/cpu"
	"zipos/kernel/kfmt"
	"zipos/kernel/mem"
	"zipos/kernel/mem/arena"
)

const (
	// scratchSize is the size of the buffer used for formatting the
	// banner text of an interrupt report.
	scratchSize = 256 * mem.Byte

	// BannerCellWidth and BannerScale control the size of the glyph cells
	// used for interrupt banners.
	BannerCellWidth = 8
	BannerScale     = 2
)

var (
	// haltFn is mocked by tests and is automatically inlined by the compiler.
	haltFn = cpu.HaltForever

	readCR2Fn = cpu.ReadCR2

	bannerRed = color.RGBA{R: 255, A: 0xff}

	warningPrefix = []byte("Warning! Interrupt occurred: ")
	fatalPrefix   = []byte("Fatal interrupt: ")
	faultPrefix   = []byte("Unrecoverable fault: ")
	dumpPrefix    = []byte("[irq] ")

	errNoScratch = []byte("could not allocate memory for interrupt diagnostic")
)

// ScratchAllocator hands out short-lived buffers. Implementations must be
// safe to call from interrupt context.
type ScratchAllocator interface {
	Alloc(size mem.Size, align mem.Size) (arena.Allocation, *kernel.Error)
	Free(alloc arena.Allocation) *kernel.Error
}

// BannerPresenter puts a line of text on screen inside a coloured box.
type BannerPresenter interface {
	PresentBanner(text []byte, cellWidth, scale uint32, c color.RGBA)
}

// Reporter is the default interrupt handler. It logs every interrupt,
// presents a warning banner and resumes the interrupted code. Fatal
// interrupts are reported the same way but halt the CPU afterwards.
type Reporter struct {
	Scratch ScratchAllocator
	Banner  BannerPresenter
}

// Handle implements Handler.
func (r *Reporter) Handle(frame *Frame) {
	fault := Classify(Number(frame.Vector))
	kfmt.Error("[irq] interrupt: %d/%x", uint8(fault.Number), uint8(fault.Number))

	prefix := warningPrefix
	if fault.Fatal {
		prefix = fatalPrefix
	}
	r.present(prefix, fault)

	if fault.Fatal {
		haltFn()
	}
}

// Faults returns a handler for CPU faults that cannot be resumed because
// returning would re-execute the faulting instruction. It dumps the CPU
// state, presents a banner and halts.
func (r *Reporter) Faults() Handler {
	return (*faultReporter)(r)
}

// present formats the banner text into a scratch buffer and hands it to the
// banner presenter. If no scratch memory is available only the log line is
// emitted.
func (r *Reporter) present(prefix []byte, fault Fault) {
	if r.Scratch == nil {
		r.fallback(fault)
		return
	}

	scratch, err := r.Scratch.Alloc(scratchSize, 1)
	if err != nil {
		r.fallback(fault)
		return
	}

	w := kfmt.NewSliceWriter(scratch.Bytes())
	kfmt.Fprintf(&w, "%s%s [%d/%x]", prefix, fault.Name, uint8(fault.Number), uint8(fault.Number))
	if r.Banner != nil {
		r.Banner.PresentBanner(w.Bytes(), BannerCellWidth, BannerScale, bannerRed)
	}

	if err = r.Scratch.Free(scratch); err != nil {
		kfmt.Error("[irq] leaked %d byte scratch buffer: %s", uint64(scratchSize), err.Message)
	}
}

func (r *Reporter) fallback(fault Fault) {
	kfmt.Error("[irq] %s: %s [%d/%x]", errNoScratch, fault.Name, uint8(fault.Number), uint8(fault.Number))
}

type faultReporter Reporter

// Handle implements Handler.
func (r *faultReporter) Handle(frame *Frame) {
	fault := Classify(Number(frame.Vector))
	kfmt.Error("[irq] unrecoverable fault: %s [%d/%x]", fault.Name, uint8(fault.Number), uint8(fault.Number))

	pw := kfmt.PrefixWriter{Sink: kfmt.ActiveSink, Prefix: dumpPrefix}
	if fault.Number == PageFault {
		kfmt.Fprintf(&pw, "page fault while accessing address: 0x%16x\n", readCR2Fn())
	}
	frame.DumpTo(&pw)

	(*Reporter)(r).present(faultPrefix, fault)
	haltFn()
}
