package kfmt

// SliceWriter is an io.Writer that formats into a caller-supplied fixed
// buffer. Output that does not fit is silently dropped so that Fprintf can
// be used from interrupt context without any allocation. The last byte of
// the buffer is reserved for a NUL terminator.
type SliceWriter struct {
	buf []byte
	n   int
}

// NewSliceWriter returns a SliceWriter that writes into buf.
func NewSliceWriter(buf []byte) SliceWriter {
	return SliceWriter{buf: buf}
}

// Write appends as much of p as fits into the backing buffer. It always
// reports len(p) bytes written.
func (w *SliceWriter) Write(p []byte) (int, error) {
	if avail := len(w.buf) - 1 - w.n; avail > 0 {
		if len(p) < avail {
			avail = len(p)
		}
		w.n += copy(w.buf[w.n:w.n+avail], p)
		w.buf[w.n] = 0
	}

	return len(p), nil
}

// Bytes returns the formatted contents, excluding the NUL terminator.
func (w *SliceWriter) Bytes() []byte {
	return w.buf[:w.n]
}

// Reset discards the formatted contents.
func (w *SliceWriter) Reset() {
	w.n = 0
	if len(w.buf) != 0 {
		w.buf[0] = 0
	}
}
