// Package fb drives the linear framebuffer set up by the bootloader. It is
// the kernel's rendering channel: it shows full-screen frames and coloured
// banners.
package fb

import (
	"image/color"
	"io"
	"unsafe"

	"zipos/kernel"
	"zipos/kernel/kfmt"
	"zipos/multiboot"
)

// BytesPerFramePixel is the size of a pixel in the packed RGBA frames
// accepted by PresentFrame.
const BytesPerFramePixel = 4

var (
	// ErrUnsupportedDepth is returned by DriverInit for pixel depths other
	// than 16, 24 and 32 bits.
	ErrUnsupportedDepth = &kernel.Error{Module: "fb", Message: "unsupported framebuffer depth", Kind: kernel.KindDeviceFault}

	// ErrFrameSize is returned by PresentFrame when the frame holds fewer
	// pixels than the screen.
	ErrFrameSize = &kernel.Error{Module: "fb", Message: "frame is smaller than the screen", Kind: kernel.KindInvalidArgument}

	getFramebufferInfoFn = multiboot.GetFramebufferInfo
)

// Framebuffer is a direct-colour linear framebuffer. Pixels are stored in
// little-endian BGR order (RGB565 for 16bpp).
type Framebuffer struct {
	physAddr uintptr
	fb       []byte

	// Dimensions in pixels
	width  uint32
	height uint32

	// Size of a row in bytes
	pitch uint32

	bpp uint32
}

// Init describes the framebuffer geometry. The memory is not touched until
// DriverInit is called.
func (f *Framebuffer) Init(width, height uint32, bpp uint8, pitch uint32, physAddr uintptr) {
	*f = Framebuffer{
		physAddr: physAddr,
		width:    width,
		height:   height,
		pitch:    pitch,
		bpp:      uint32(bpp),
	}
}

// Probe initializes f from the framebuffer information passed by the
// bootloader. It returns false if no direct-colour framebuffer is available.
func Probe(f *Framebuffer) bool {
	info := getFramebufferInfoFn()
	if info == nil || info.Type != multiboot.FramebufferTypeRGB {
		return false
	}

	f.Init(info.Width, info.Height, info.Bpp, info.Pitch, uintptr(info.PhysAddr))
	return true
}

// Dimensions returns the screen width and height in pixels.
func (f *Framebuffer) Dimensions() (uint32, uint32) {
	return f.width, f.height
}

// Ready reports whether the framebuffer memory has been mapped.
func (f *Framebuffer) Ready() bool {
	return f.fb != nil
}

// DriverName returns the name of this driver.
func (f *Framebuffer) DriverName() string {
	return "linear_fb"
}

// DriverVersion returns the version of this driver.
func (f *Framebuffer) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit maps the framebuffer memory. Physical memory is identity
// mapped so the framebuffer is accessed through its physical address.
func (f *Framebuffer) DriverInit(w io.Writer) *kernel.Error {
	switch f.bpp {
	case 16, 24, 32:
	default:
		kfmt.Fprintf(w, "cannot drive a %dbpp framebuffer\n", f.bpp)
		return ErrUnsupportedDepth
	}

	fbSize := uintptr(f.height) * uintptr(f.pitch)
	f.fb = unsafe.Slice((*byte)(unsafe.Pointer(f.physAddr)), fbSize)

	kfmt.Fprintf(w, "framebuffer at 0x%x: %dx%d, %dbpp\n", f.physAddr, f.width, f.height, f.bpp)
	return nil
}

// PresentFrame copies a packed RGBA frame with the screen's resolution to
// the framebuffer, converting it to the framebuffer pixel format.
func (f *Framebuffer) PresentFrame(pixels []byte) *kernel.Error {
	if uint64(len(pixels)) < uint64(f.width)*uint64(f.height)*BytesPerFramePixel {
		return ErrFrameSize
	}
	if f.fb == nil {
		return nil
	}

	src := 0
	for y := uint32(0); y < f.height; y++ {
		for x := uint32(0); x < f.width; x, src = x+1, src+BytesPerFramePixel {
			f.setPixel(x, y, pixels[src], pixels[src+1], pixels[src+2])
		}
	}

	return nil
}

// PresentBanner fills a box in the middle of the screen with colour c and
// echoes text to the logging channel. The box is sized for text rendered in
// cells of cellWidth x 2*cellWidth pixels magnified by scale, with a one
// cell margin around it.
func (f *Framebuffer) PresentBanner(text []byte, cellWidth, scale uint32, c color.RGBA) {
	kfmt.Debug("[banner] %s", text)

	if f.fb == nil {
		return
	}

	cellW := cellWidth * scale
	cellH := 2 * cellW
	boxW := (uint32(len(text)) + 2) * cellW
	boxH := 3 * cellH
	if boxW > f.width {
		boxW = f.width
	}
	if boxH > f.height {
		boxH = f.height
	}

	f.fill((f.width-boxW)/2, (f.height-boxH)/2, boxW, boxH, c)
}

// fill sets the rectangle at (x, y) to colour c. The rectangle must lie
// inside the screen.
func (f *Framebuffer) fill(x, y, width, height uint32, c color.RGBA) {
	for row := y; row < y+height; row++ {
		for col := x; col < x+width; col++ {
			f.setPixel(col, row, c.R, c.G, c.B)
		}
	}
}

func (f *Framebuffer) setPixel(x, y uint32, r, g, b uint8) {
	off := f.fbOffset(x, y)
	switch f.bpp {
	case 32:
		f.fb[off] = b
		f.fb[off+1] = g
		f.fb[off+2] = r
		f.fb[off+3] = 0
	case 24:
		f.fb[off] = b
		f.fb[off+1] = g
		f.fb[off+2] = r
	case 16:
		v := uint16(r>>3)<<11 | uint16(g>>2)<<5 | uint16(b>>3)
		f.fb[off] = uint8(v)
		f.fb[off+1] = uint8(v >> 8)
	}
}

// fbOffset returns the linear offset into the framebuffer that corresponds to
// the pixel at (x,y).
func (f *Framebuffer) fbOffset(x, y uint32) uint32 {
	return (y * f.pitch) + (x * f.bpp >> 3)
}
