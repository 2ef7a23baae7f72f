package kmain

import (
	"image/color"
	"io"

	"zipos/device"
	"zipos/device/ata"
	"zipos/device/serial"
	"zipos/device/video/fb"
	"zipos/kernel"
	"zipos/kernel/cpu"
	"zipos/kernel/irq"
	"zipos/kernel/kfmt"
	"zipos/kernel/mem/arena"
	"zipos/multiboot"
)

var (
	errKmainReturned = &kernel.Error{Module: "kmain", Message: "Kmain returned"}

	// The kernel runs without a heap so every long-lived object is a
	// package-level variable.
	com1     = serial.Port{Base: serial.COM1}
	com2     = serial.Port{Base: serial.COM2}
	disk     = ata.Drive{Bus: ata.PrimaryBus, IOBase: ata.PrimaryIO}
	screen   fb.Framebuffer
	memory   arena.Arena
	table    irq.Table
	reporter irq.Reporter
	boot     Sequence

	// prefixBuf holds the per-driver log prefix built by initDriver.
	prefixBuf [64]byte

	// failureText holds the text of the banner shown when booting fails.
	failureText [128]byte

	bannerRed = color.RGBA{R: 255, A: 0xff}

	// The following are mocked by tests and are automatically inlined by
	// the compiler.
	enableFPUFn = cpu.EnableFPU
	idleFn      = cpu.IdleForever
	panicFn     = kfmt.Panic

	failureScreen irq.BannerPresenter = &screen

	// consoles lists the candidate logging channels in order of preference.
	consoles = []console{&com1, &com2}
)

// console is a driver that can also serve as the kfmt output sink.
type console interface {
	device.Driver
	io.Writer
}

// Kmain is the only Go symbol that is visible (exported) from the rt0
// initialization code. This function is invoked by the rt0 assembly code
// after setting up the GDT and a minimal g0 struct that allows Go code to use
// the 4K stack allocated by the assembly code.
//
// The rt0 code passes the address of the multiboot info payload provided by
// the bootloader as well as the physical addresses for the kernel start/end.
//
// Kmain is not expected to return. Once the boot archive has been presented
// the CPU idles with interrupts enabled; any fatal error is put on screen
// and halts the CPU.
//
//go:noinline
func Kmain(multibootInfoPtr, kernelStart, kernelEnd uintptr) {
	multiboot.SetInfoPtr(multibootInfoPtr)
	enableFPUFn()

	cfg, err := LoadConfig()

	// Until a sink is attached, output accumulates in the early print
	// buffer and is flushed once the serial port is up.
	if cfg.Serial {
		attachConsole(consoles)
	}
	kfmt.SetPanicHook(presentFailure)

	// The reporter refers to the arena and the screen before either is set
	// up; until then its reports only reach the log.
	reporter = irq.Reporter{Scratch: &memory, Banner: &screen}
	boot = Sequence{
		Interrupts:     &table,
		DefaultHandler: &reporter,
		FaultHandler:   reporter.Faults(),
		Memory:         &memory,
		Disk:           &disk,
		Screen:         &screen,
	}
	if err == nil {
		err = boot.Arm()
	}
	if err != nil {
		panicFn(err)
		return
	}

	if fb.Probe(&screen) {
		// Booting can continue without a screen; banners still reach
		// the serial log.
		_ = initDriver(&screen)
	}

	if err = initDriver(&disk); err != nil {
		panicFn(err)
		return
	}

	arena.PrintMemoryMap(kernelStart, kernelEnd)

	base, err := arena.FindRegion(kernelStart, kernelEnd, cfg.ArenaSize)
	if err == nil {
		err = memory.Init(base, cfg.ArenaSize)
	}
	if err != nil {
		panicFn(err)
		return
	}
	kfmt.Debug("[kmain] arena at 0x%x, %d bytes", base, uint64(cfg.ArenaSize))

	boot.Config = cfg
	if err = boot.Load(); err != nil {
		panicFn(err)
		return
	}

	stats := memory.Stats()
	kfmt.Debug("[kmain] arena: %d bytes in use by %d allocation(s)", uint64(stats.InUse), stats.Allocations)

	idleFn()

	// Use panicFn instead of panic to prevent the compiler from treating
	// kfmt.Panic as dead-code and eliminating it.
	panicFn(errKmainReturned)
}

// attachConsole makes the first candidate that initializes successfully the
// kfmt output sink. It does nothing if a sink is already attached.
func attachConsole(candidates []console) {
	for _, c := range candidates {
		if kfmt.GetOutputSink() != nil {
			return
		}
		if initDriver(c) == nil {
			kfmt.SetOutputSink(c)
		}
	}
}

// initDriver runs the init sequence of drv, tagging everything the driver
// logs with its name and version.
func initDriver(drv device.Driver) *kernel.Error {
	prefix := kfmt.NewSliceWriter(prefixBuf[:])
	major, minor, patch := drv.DriverVersion()
	kfmt.Fprintf(&prefix, "[hal] %s(%d.%d.%d): ", drv.DriverName(), major, minor, patch)

	w := kfmt.PrefixWriter{Sink: kfmt.ActiveSink, Prefix: prefix.Bytes()}
	if err := drv.DriverInit(&w); err != nil {
		kfmt.Fprintf(&w, "init failed: %s\n", err.Message)
		return err
	}

	kfmt.Fprintf(&w, "initialized\n")
	return nil
}

// presentFailure shows the error that stopped the boot sequence as a red
// banner. It runs as the kfmt panic hook.
func presentFailure(err *kernel.Error) {
	w := kfmt.NewSliceWriter(failureText[:])
	kfmt.Fprintf(&w, "[%s] %s", err.Module, err.Message)
	failureScreen.PresentBanner(w.Bytes(), irq.BannerCellWidth, irq.BannerScale, bannerRed)
}
