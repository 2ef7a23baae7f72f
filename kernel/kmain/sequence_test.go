package kmain

import (
	"archive/zip"
	"bytes"
	"image/color"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"unsafe"

	"zipos/device/ata"
	"zipos/kernel"
	"zipos/kernel/fs/zipfs"
	"zipos/kernel/irq"
	"zipos/kernel/mem"
	"zipos/kernel/mem/arena"
)

const testStagingSize = 64 * mem.Kb

type eventLog struct {
	events []string
}

func (l *eventLog) add(ev string) { l.events = append(l.events, ev) }

type fakeTable struct {
	log      *eventLog
	handlers map[irq.Number]irq.Handler
	fallback irq.Handler
	armErr   *kernel.Error
}

func (t *fakeTable) HandleInterrupt(num irq.Number, h irq.Handler) *kernel.Error {
	t.log.add("handle:" + strconv.Itoa(int(num)))
	t.handlers[num] = h
	return nil
}

func (t *fakeTable) Arm(defaultHandler irq.Handler) *kernel.Error {
	t.log.add("arm")
	if t.armErr != nil {
		return t.armErr
	}
	t.fallback = defaultHandler
	return nil
}

// fakeMemory is a bump allocator over a Go buffer. The call numbered failAt
// (starting from 1) reports that memory is exhausted.
type fakeMemory struct {
	log    *eventLog
	buf    []byte
	next   uintptr
	calls  int
	failAt int
}

func newFakeMemory(t *testing.T, log *eventLog, size mem.Size) *fakeMemory {
	m := &fakeMemory{log: log, buf: make([]byte, size+mem.PageSize)}
	m.next, _ = mem.AlignUp(uintptr(unsafe.Pointer(&m.buf[0])), mem.PageSize)
	t.Cleanup(func() { runtime.KeepAlive(m.buf) })
	return m
}

func (m *fakeMemory) Alloc(size mem.Size, align mem.Size) (arena.Allocation, *kernel.Error) {
	m.log.add("alloc")
	m.calls++
	if m.calls == m.failAt {
		return arena.Allocation{}, arena.ErrOutOfMemory
	}

	addr, _ := mem.AlignUp(m.next, align)
	end := uintptr(unsafe.Pointer(&m.buf[0])) + uintptr(len(m.buf))
	if addr+uintptr(size) > end {
		return arena.Allocation{}, arena.ErrOutOfMemory
	}

	m.next = addr + uintptr(size)
	return arena.Allocation{Addr: addr, Size: size}, nil
}

type fakeDisk struct {
	log   *eventLog
	image []byte
	err   *kernel.Error
	short bool

	lba, count uint32
}

func (d *fakeDisk) ReadSectors(dst []byte, lba uint32, count uint32) (int, *kernel.Error) {
	d.log.add("read")
	d.lba, d.count = lba, count
	if d.err != nil {
		return 0, d.err
	}

	n := int(count) * ata.SectorSize
	copy(dst[:n], d.image)
	if d.short {
		return n - ata.SectorSize, nil
	}
	return n, nil
}

type fakeScreen struct {
	log      *eventLog
	frames   [][]byte
	banners  []string
	colors   []color.RGBA
	mandel   int
	frameErr *kernel.Error
}

func (s *fakeScreen) PresentBanner(text []byte, _, _ uint32, c color.RGBA) {
	s.log.add("banner")
	s.banners = append(s.banners, string(text))
	s.colors = append(s.colors, c)
}

func (s *fakeScreen) PresentFrame(pixels []byte) *kernel.Error {
	s.log.add("frame")
	s.frames = append(s.frames, append([]byte(nil), pixels...))
	return s.frameErr
}

func (s *fakeScreen) DrawMandelbrot() {
	s.log.add("mandel")
	s.mandel++
}

type nopHandler struct{ calls int }

func (h *nopHandler) Handle(*irq.Frame) { h.calls++ }

type testFile struct {
	name   string
	data   []byte
	method uint16
}

func buildArchive(t *testing.T, comment string, files ...testFile) []byte {
	t.Helper()

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for _, f := range files {
		w, err := zw.CreateHeader(&zip.FileHeader{Name: f.name, Method: f.method})
		if err != nil {
			t.Fatal(err)
		}
		if _, err = w.Write(f.data); err != nil {
			t.Fatal(err)
		}
	}
	if err := zw.SetComment(comment); err != nil {
		t.Fatal(err)
	}
	if err := zw.Close(); err != nil {
		t.Fatal(err)
	}

	return buf.Bytes()
}

func pattern(size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = byte(i * 13)
	}
	return data
}

type sequenceFixture struct {
	log    eventLog
	table  *fakeTable
	memory *fakeMemory
	disk   *fakeDisk
	screen *fakeScreen
	seq    Sequence

	defaultHandler irq.Handler
	faultHandler   irq.Handler
}

func newSequenceFixture(t *testing.T, image []byte) *sequenceFixture {
	f := &sequenceFixture{}
	f.table = &fakeTable{log: &f.log, handlers: make(map[irq.Number]irq.Handler)}
	f.memory = newFakeMemory(t, &f.log, 2*testStagingSize)
	f.disk = &fakeDisk{log: &f.log, image: image}
	f.screen = &fakeScreen{log: &f.log}
	f.defaultHandler = &nopHandler{}
	f.faultHandler = &nopHandler{}

	cfg := DefaultConfig()
	cfg.StagingSize = testStagingSize
	cfg.ArenaSize = 2 * testStagingSize

	f.seq = Sequence{
		Config:         cfg,
		Interrupts:     f.table,
		DefaultHandler: f.defaultHandler,
		FaultHandler:   f.faultHandler,
		Memory:         f.memory,
		Disk:           f.disk,
		Screen:         f.screen,
	}
	return f
}

func TestSequenceRun(t *testing.T) {
	background := pattern(4096)
	image := buildArchive(t, "",
		testFile{name: "a.txt", data: []byte("hello world")},
		testFile{name: "bg.raw", data: background},
	)

	f := newSequenceFixture(t, image)
	if err := f.seq.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	expEvents := []string{"handle:0", "handle:13", "handle:14", "arm", "alloc", "read", "alloc", "frame", "banner"}
	if got := strings.Join(f.log.events, ","); got != strings.Join(expEvents, ",") {
		t.Fatalf("expected boot steps %v; got %v", expEvents, f.log.events)
	}

	for _, num := range []irq.Number{0, 13, 14} {
		if f.table.handlers[num] != f.faultHandler {
			t.Errorf("expected the fault handler for vector %d", num)
		}
	}
	if f.table.fallback != f.defaultHandler {
		t.Error("expected the default handler to be passed to Arm")
	}

	if f.disk.lba != 0 || f.disk.count != uint32(testStagingSize/ata.SectorSize) {
		t.Errorf("expected a read of %d sectors at LBA 0; got %d at %d", testStagingSize/ata.SectorSize, f.disk.count, f.disk.lba)
	}

	if len(f.screen.frames) != 1 || !bytes.Equal(f.screen.frames[0], background) {
		t.Fatal("expected the bg.raw payload to be presented unchanged")
	}

	if len(f.screen.banners) != 1 || f.screen.banners[0] != "End of execution." {
		t.Fatalf("expected the completion banner; got %v", f.screen.banners)
	}
	if f.screen.colors[0] != bannerGreen {
		t.Errorf("expected a green banner; got %v", f.screen.colors[0])
	}
	if f.screen.mandel != 0 {
		t.Error("fallback image drawn although bg.raw exists")
	}
}

func TestSequenceCustomBackground(t *testing.T) {
	logo := pattern(64)
	image := buildArchive(t, "",
		testFile{name: "bg.raw", data: pattern(128)},
		testFile{name: "logo.raw", data: logo},
	)

	f := newSequenceFixture(t, image)
	f.seq.Config.Background = "logo.raw"
	if err := f.seq.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.screen.frames) != 1 || !bytes.Equal(f.screen.frames[0], logo) {
		t.Fatal("expected the configured background to be presented")
	}
}

func TestSequenceMissingBackground(t *testing.T) {
	specs := []struct {
		descr string
		files []testFile
	}{
		{"archive without bg.raw", []testFile{{name: "a.txt", data: []byte("hello world")}}},
		{"empty archive", nil},
	}

	for specIndex, spec := range specs {
		f := newSequenceFixture(t, buildArchive(t, "", spec.files...))
		if err := f.seq.Run(); err != nil {
			t.Errorf("[spec %d] %s: unexpected error: %v", specIndex, spec.descr, err)
			continue
		}

		if f.screen.mandel != 1 || len(f.screen.frames) != 0 {
			t.Errorf("[spec %d] %s: expected the fallback image to be drawn instead of a frame", specIndex, spec.descr)
		}
		if len(f.screen.banners) != 1 {
			t.Errorf("[spec %d] %s: expected the completion banner", specIndex, spec.descr)
		}
	}

	// An empty archive needs no catalog storage.
	f := newSequenceFixture(t, buildArchive(t, ""))
	_ = f.seq.Run()
	if f.memory.calls != 1 {
		t.Errorf("expected only the staging buffer to be allocated; got %d allocations", f.memory.calls)
	}
}

func TestSequenceFrameErrorIsNotFatal(t *testing.T) {
	image := buildArchive(t, "", testFile{name: "bg.raw", data: pattern(100)})

	f := newSequenceFixture(t, image)
	f.screen.frameErr = &kernel.Error{Module: "fb", Message: "frame size does not match screen", Kind: kernel.KindInvalidArgument}
	if err := f.seq.Run(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.screen.banners) != 1 || f.screen.banners[0] != "End of execution." {
		t.Fatalf("expected the completion banner; got %v", f.screen.banners)
	}
}

func TestSequenceErrors(t *testing.T) {
	valid := buildArchive(t, "", testFile{name: "bg.raw", data: pattern(256)})

	// Pad the archive comment so the archive fills a whole number of
	// sectors, then stage exactly that many.
	tight := buildArchive(t, "", testFile{name: "bg.raw", data: pattern(256)})
	tight = buildArchive(t, strings.Repeat("x", ata.SectorSize-len(tight)%ata.SectorSize), testFile{name: "bg.raw", data: pattern(256)})

	errArm := &kernel.Error{Module: "irq", Message: "arm failed", Kind: kernel.KindInterrupt}

	specs := []struct {
		descr  string
		image  []byte
		setup  func(*sequenceFixture)
		expErr *kernel.Error
	}{
		{
			"arming fails",
			valid,
			func(f *sequenceFixture) { f.table.armErr = errArm },
			errArm,
		},
		{
			"no memory for staging buffer",
			valid,
			func(f *sequenceFixture) { f.memory.failAt = 1 },
			arena.ErrOutOfMemory,
		},
		{
			"disk read fails",
			valid,
			func(f *sequenceFixture) { f.disk.err = ata.ErrDeviceFault },
			ata.ErrDeviceFault,
		},
		{
			"short disk read",
			valid,
			func(f *sequenceFixture) { f.disk.short = true },
			errShortRead,
		},
		{
			"blank disk",
			nil,
			nil,
			zipfs.ErrNoDirectory,
		},
		{
			"archive fills staging buffer",
			tight,
			func(f *sequenceFixture) { f.seq.Config.StagingSize = mem.Size(len(tight)) },
			errStagingTooSmall,
		},
		{
			"no memory for catalog",
			valid,
			func(f *sequenceFixture) { f.memory.failAt = 2 },
			arena.ErrOutOfMemory,
		},
		{
			"compressed entry",
			buildArchive(t, "", testFile{name: "bg.raw", data: pattern(256), method: zip.Deflate}),
			nil,
			zipfs.ErrCompressed,
		},
	}

	for specIndex, spec := range specs {
		f := newSequenceFixture(t, spec.image)
		if spec.setup != nil {
			spec.setup(f)
		}

		if err := f.seq.Run(); err != spec.expErr {
			t.Errorf("[spec %d] %s: expected error %v; got %v", specIndex, spec.descr, spec.expErr, err)
		}

		if len(f.screen.banners) != 0 || len(f.screen.frames) != 0 {
			t.Errorf("[spec %d] %s: expected nothing to be presented after a failure", specIndex, spec.descr)
		}
	}
}

func TestSequenceArmsBeforeLoading(t *testing.T) {
	f := newSequenceFixture(t, nil)
	f.table.armErr = &kernel.Error{Module: "irq", Message: "arm failed"}
	_ = f.seq.Run()

	for _, ev := range f.log.events {
		if ev == "alloc" || ev == "read" {
			t.Fatalf("expected no allocation or disk access when arming fails; got %v", f.log.events)
		}
	}
}

func TestSequenceArmTouchesOnlyInterrupts(t *testing.T) {
	f := newSequenceFixture(t, nil)
	if err := f.seq.Arm(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	exp := "handle:0,handle:13,handle:14,arm"
	if got := strings.Join(f.log.events, ","); got != exp {
		t.Fatalf("expected events %q; got %q", exp, got)
	}
	if f.table.fallback != f.defaultHandler {
		t.Error("expected the default handler to be armed")
	}
}
