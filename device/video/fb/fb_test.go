package fb

import (
	"bytes"
	"image/color"
	"io"
	"runtime"
	"strings"
	"testing"
	"unsafe"

	"zipos/device"
	"zipos/kernel/kfmt"
	"zipos/multiboot"
)

var _ device.Driver = (*Framebuffer)(nil)

// newTestFramebuffer returns an initialized framebuffer backed by a Go slice.
func newTestFramebuffer(t *testing.T, width, height uint32, bpp uint8, pitch uint32) (*Framebuffer, []byte) {
	mem := make([]byte, height*pitch)
	t.Cleanup(func() { runtime.KeepAlive(mem) })

	var f Framebuffer
	f.Init(width, height, bpp, pitch, uintptr(unsafe.Pointer(&mem[0])))

	var log bytes.Buffer
	if err := f.DriverInit(&log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	return &f, mem
}

func TestDriverInit(t *testing.T) {
	var (
		f   Framebuffer
		log bytes.Buffer
	)

	f.Init(640, 480, 8, 640, 0xfd000000)
	if err := f.DriverInit(&log); err != ErrUnsupportedDepth {
		t.Fatalf("expected ErrUnsupportedDepth; got %v", err)
	}
	if f.Ready() {
		t.Fatal("expected framebuffer not to be mapped")
	}

	mem := make([]byte, 4*2*3)
	addr := uintptr(unsafe.Pointer(&mem[0]))
	f.Init(2, 3, 32, 8, addr)

	log.Reset()
	if err := f.DriverInit(&log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !f.Ready() || len(f.fb) != len(mem) {
		t.Fatalf("expected framebuffer of %d bytes to be mapped", len(mem))
	}
	if !strings.HasSuffix(log.String(), ": 2x3, 32bpp\n") {
		t.Fatalf("unexpected init log: %q", log.String())
	}
	if w, h := f.Dimensions(); w != 2 || h != 3 {
		t.Fatalf("expected dimensions 2x3; got %dx%d", w, h)
	}
	runtime.KeepAlive(mem)
}

func TestProbe(t *testing.T) {
	defer func(orig func() *multiboot.FramebufferInfo) { getFramebufferInfoFn = orig }(getFramebufferInfoFn)

	specs := []struct {
		info   *multiboot.FramebufferInfo
		expRes bool
	}{
		{nil, false},
		{&multiboot.FramebufferInfo{Type: multiboot.FramebufferTypeEGA, Width: 80, Height: 25}, false},
		{&multiboot.FramebufferInfo{Type: multiboot.FramebufferTypeIndexed, Width: 800, Height: 600, Bpp: 8}, false},
		{&multiboot.FramebufferInfo{Type: multiboot.FramebufferTypeRGB, Width: 1024, Height: 768, Bpp: 32, Pitch: 4096, PhysAddr: 0xfd000000}, true},
	}

	for specIndex, spec := range specs {
		getFramebufferInfoFn = func() *multiboot.FramebufferInfo { return spec.info }

		var f Framebuffer
		if got := Probe(&f); got != spec.expRes {
			t.Errorf("[spec %d] expected Probe to return %t; got %t", specIndex, spec.expRes, got)
			continue
		}

		if spec.expRes {
			if f.width != 1024 || f.height != 768 || f.bpp != 32 || f.pitch != 4096 || f.physAddr != 0xfd000000 {
				t.Errorf("[spec %d] unexpected framebuffer geometry: %+v", specIndex, f)
			}
		}
	}
}

func TestPresentFrame(t *testing.T) {
	// 2x2 frame: red, green / blue, white
	frame := []byte{
		255, 0, 0, 255, 0, 255, 0, 255,
		0, 0, 255, 255, 255, 255, 255, 255,
	}

	specs := []struct {
		bpp   uint8
		pitch uint32
		expFb []byte
	}{
		{
			32, 8,
			[]byte{
				0, 0, 255, 0, 0, 255, 0, 0,
				255, 0, 0, 0, 255, 255, 255, 0,
			},
		},
		{
			// Rows are padded to 8 bytes.
			24, 8,
			[]byte{
				0, 0, 255, 0, 255, 0, 0, 0,
				255, 0, 0, 255, 255, 255, 0, 0,
			},
		},
		{
			16, 4,
			[]byte{
				0x00, 0xf8, 0xe0, 0x07,
				0x1f, 0x00, 0xff, 0xff,
			},
		},
	}

	for specIndex, spec := range specs {
		f, mem := newTestFramebuffer(t, 2, 2, spec.bpp, spec.pitch)

		if err := f.PresentFrame(frame); err != nil {
			t.Errorf("[spec %d] unexpected error: %v", specIndex, err)
			continue
		}

		if !bytes.Equal(mem, spec.expFb) {
			t.Errorf("[spec %d] expected framebuffer contents:\n%v\ngot:\n%v", specIndex, spec.expFb, mem)
		}
	}
}

func TestPresentFrameTooSmall(t *testing.T) {
	f, mem := newTestFramebuffer(t, 2, 2, 32, 8)

	if err := f.PresentFrame(make([]byte, 2*2*4-1)); err != ErrFrameSize {
		t.Fatalf("expected ErrFrameSize; got %v", err)
	}
	if !bytes.Equal(mem, make([]byte, len(mem))) {
		t.Fatal("expected framebuffer to be left untouched")
	}
}

func TestPresentBanner(t *testing.T) {
	defer func(orig io.Writer) {
		kfmt.SetOutputSink(orig)
	}(kfmt.GetOutputSink())

	var log bytes.Buffer
	kfmt.SetOutputSink(&log)

	const (
		width, height = 64, 32
		bpp           = 32
		pitch         = width * 4
	)
	f, mem := newTestFramebuffer(t, width, height, bpp, pitch)
	green := color.RGBA{G: 255, A: 255}

	// 2 chars + margin = 4 cells of 4px (2px * scale 2) = 16px wide;
	// 3 rows of 8px = 24px high.
	f.PresentBanner([]byte("ok"), 2, 2, green)

	if !strings.Contains(log.String(), "[banner] ok\n") {
		t.Fatalf("expected banner text to be logged; got %q", log.String())
	}

	var painted int
	for y := uint32(0); y < height; y++ {
		for x := uint32(0); x < width; x++ {
			off := y*pitch + x*4
			inside := x >= 24 && x < 40 && y >= 4 && y < 28
			isGreen := mem[off] == 0 && mem[off+1] == 255 && mem[off+2] == 0
			if inside != isGreen {
				t.Fatalf("pixel (%d, %d): expected inside box: %t; got green: %t", x, y, inside, isGreen)
			}
			if isGreen {
				painted++
			}
		}
	}
	if painted != 16*24 {
		t.Fatalf("expected %d painted pixels; got %d", 16*24, painted)
	}

	// Oversized banners are clipped to the screen.
	f.PresentBanner(bytes.Repeat([]byte("x"), 100), 8, 2, color.RGBA{R: 255, A: 255})
	for off := 0; off < len(mem); off += 4 {
		if mem[off+2] != 255 {
			t.Fatalf("expected every pixel to be covered by the clipped banner; offset %d is not", off)
		}
	}
}

func TestPresentWithoutFramebuffer(t *testing.T) {
	var f Framebuffer
	f.Init(2, 2, 32, 8, 0)

	// Nothing is mapped so both calls must not touch memory.
	f.PresentBanner([]byte("no screen"), 8, 2, color.RGBA{R: 255})
	if err := f.PresentFrame(make([]byte, 16)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	f.DrawMandelbrot()
}

func TestDrawMandelbrot(t *testing.T) {
	const width, height = 64, 64
	f, mem := newTestFramebuffer(t, width, height, 32, width*4)

	f.DrawMandelbrot()

	pixel := func(x, y uint32) uint8 {
		return mem[y*width*4+x*4]
	}

	// The origin belongs to the set.
	if got := pixel(width/2, height/2); got != 0 {
		t.Errorf("expected origin to be black; got shade %d", got)
	}

	// c = 0.5 escapes at iteration 4.
	if got, exp := pixel(40, height/2), uint8(4*mandelShade); got != exp {
		t.Errorf("expected shade %d at c=0.5; got %d", exp, got)
	}

	if got := escapeTime(0.5, 0); got != 4 {
		t.Errorf("expected c=0.5 to escape at iteration 4; got %d", got)
	}
	if got := escapeTime(-1, 0); got != -1 {
		t.Errorf("expected c=-1 to stay bounded; got %d", got)
	}
}
