package kmain

import (
	"image/color"
	"unsafe"

	"zipos/device/ata"
	"zipos/kernel"
	"zipos/kernel/fs/zipfs"
	"zipos/kernel/irq"
	"zipos/kernel/kfmt"
	"zipos/kernel/mem"
	"zipos/kernel/mem/arena"
)

const (
	stagingAlign = mem.PageSize
	catalogAlign = mem.Size(8)
)

var (
	errStagingTooSmall = &kernel.Error{Module: "kmain", Message: "staging buffer too small for archive", Kind: kernel.KindConfig}
	errShortRead       = &kernel.Error{Module: "kmain", Message: "short read while loading disk image", Kind: kernel.KindDeviceFault}

	bannerGreen = color.RGBA{G: 255, A: 0xff}
	bannerDone  = []byte("End of execution.")

	// faultVectors get the register-dumping handler instead of the
	// default reporter.
	faultVectors = [...]irq.Number{irq.DivideError, irq.GeneralProtectionFault, irq.PageFault}
)

// InterruptTable is implemented by irq.Table.
type InterruptTable interface {
	HandleInterrupt(num irq.Number, h irq.Handler) *kernel.Error
	Arm(defaultHandler irq.Handler) *kernel.Error
}

// Allocator is implemented by arena.Arena.
type Allocator interface {
	Alloc(size mem.Size, align mem.Size) (arena.Allocation, *kernel.Error)
}

// BlockReader is implemented by ata.Drive.
type BlockReader interface {
	ReadSectors(dst []byte, lba uint32, count uint32) (int, *kernel.Error)
}

// Renderer is implemented by fb.Framebuffer.
type Renderer interface {
	irq.BannerPresenter

	PresentFrame(pixels []byte) *kernel.Error
	DrawMandelbrot()
}

// Sequence loads the boot archive from disk and presents its contents. All
// collaborators are supplied by the caller so the ordering of the steps can
// be checked without hardware.
type Sequence struct {
	Config Config

	Interrupts InterruptTable

	// DefaultHandler services every vector without a specific handler.
	DefaultHandler irq.Handler

	// FaultHandler services divide errors, general protection faults
	// and page faults.
	FaultHandler irq.Handler

	Memory Allocator
	Disk   BlockReader
	Screen Renderer
}

// Run arms interrupts and then loads and presents the boot archive. It
// returns the first error encountered. Every returned error is fatal; Run
// performs no partial recovery.
func (s *Sequence) Run() *kernel.Error {
	if err := s.Arm(); err != nil {
		return err
	}
	return s.Load()
}

// Arm installs the fault handlers and arms the interrupt table. It must run
// before anything else that could fault. The handlers may be armed before
// Memory and Screen are ready; until then reports fall back to the log.
func (s *Sequence) Arm() *kernel.Error {
	for _, num := range faultVectors {
		if err := s.Interrupts.HandleInterrupt(num, s.FaultHandler); err != nil {
			return err
		}
	}
	return s.Interrupts.Arm(s.DefaultHandler)
}

// Load reads the boot archive into a staging buffer, builds its catalog and
// presents the background entry followed by the completion banner.
func (s *Sequence) Load() *kernel.Error {
	archive, err := s.load()
	if err != nil {
		return err
	}

	dir, err := zipfs.LocateDirectory(archive)
	if err != nil {
		return err
	}
	if dir.ArchiveSize >= uint64(len(archive)) {
		return errStagingTooSmall
	}

	catalog, err := s.readCatalog(archive, dir)
	if err != nil {
		return err
	}

	if err = s.present(archive, &catalog); err != nil {
		return err
	}

	s.Screen.PresentBanner(bannerDone, irq.BannerCellWidth, irq.BannerScale, bannerGreen)
	return nil
}

// load allocates the staging buffer and fills it from the start of the
// disk.
func (s *Sequence) load() ([]byte, *kernel.Error) {
	staging, err := s.Memory.Alloc(s.Config.StagingSize, stagingAlign)
	if err != nil {
		return nil, err
	}

	buf := staging.Bytes()
	sectors := uint32(s.Config.StagingSize / ata.SectorSize)
	kfmt.Debug("[kmain] loading %d sectors into 0x%x", sectors, staging.Addr)

	read, err := s.Disk.ReadSectors(buf, 0, sectors)
	if err != nil {
		return nil, err
	}
	if read != len(buf) {
		return nil, errShortRead
	}

	return buf, nil
}

func (s *Sequence) readCatalog(archive []byte, dir zipfs.Directory) (zipfs.Catalog, *kernel.Error) {
	var storage []zipfs.Record

	if dir.Entries != 0 {
		recSize := mem.Size(unsafe.Sizeof(zipfs.Record{}))
		alloc, err := s.Memory.Alloc(mem.Size(dir.Entries)*recSize, catalogAlign)
		if err != nil {
			return zipfs.Catalog{}, err
		}
		storage = unsafe.Slice((*zipfs.Record)(unsafe.Pointer(alloc.Addr)), int(dir.Entries))
	}

	return zipfs.ReadCatalog(archive, dir, storage)
}

// present logs the archive contents and hands the background entry to the
// screen. A missing background falls back to a generated image; a
// background that does not match the screen geometry is only logged.
func (s *Sequence) present(archive []byte, catalog *zipfs.Catalog) *kernel.Error {
	kfmt.Debug("[kmain] archive holds %d file(s)", catalog.Len())
	for i := 0; i < catalog.Len(); i++ {
		rec := catalog.At(i)
		kfmt.Debug("[kmain] %s (%d bytes)", rec.Name(), rec.Len())
	}

	background, err := catalog.FindByName(s.Config.Background)
	if err.Is(kernel.KindNotFound) {
		kfmt.Debug("[kmain] %s not found; drawing fallback", s.Config.Background)
		s.Screen.DrawMandelbrot()
		return nil
	}
	if err != nil {
		return err
	}

	kfmt.Debug("[kmain] found %s!", s.Config.Background)
	pixels, err := background.Payload(archive)
	if err != nil {
		return err
	}

	if err = s.Screen.PresentFrame(pixels); err != nil {
		kfmt.Error("[kmain] cannot present %s: %s", s.Config.Background, err.Message)
	}

	return nil
}
