package fb

const (
	mandelZoom       = 1.0
	mandelIterations = 20
	mandelShade      = 256 / mandelIterations
)

// DrawMandelbrot renders the Mandelbrot set in shades of grey. It is shown
// when the archive provides no background frame.
func (f *Framebuffer) DrawMandelbrot() {
	if f.fb == nil || f.width == 0 || f.height == 0 {
		return
	}

	w, h := float64(f.width), float64(f.height)
	for y := uint32(0); y < f.height; y++ {
		ci := (w / h) * 2.0 / mandelZoom * (2.0*(float64(y)/h) - 1)
		for x := uint32(0); x < f.width; x++ {
			cr := 2.0 / mandelZoom * (2.0*(float64(x)/w) - 1)

			var shade uint8
			if n := escapeTime(cr, ci); n >= 0 {
				shade = uint8(mandelShade * n)
			}
			f.setPixel(x, y, shade, shade, shade)
		}
	}
}

// escapeTime returns the iteration at which the orbit of c leaves the radius
// 2 circle or -1 if it stays inside for all iterations.
func escapeTime(cr, ci float64) int {
	var zr, zi float64
	for i := 0; i < mandelIterations; i++ {
		zr, zi = zr*zr-zi*zi+cr, zr*zi*2.0+ci
		if zr*zr+zi*zi > 4.0 {
			return i
		}
	}
	return -1
}
