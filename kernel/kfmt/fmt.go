// Package kfmt implements the kernel's logging channel: a Printf subset that
// never touches the Go allocator and can therefore be used before any memory
// management exists and from inside interrupt handlers.
package kfmt

import (
	"io"
	"unsafe"
)

// maxBufSize defines the buffer size for formatting numbers.
const maxBufSize = 32

var (
	errMissingArg   = []byte("(MISSING)")
	errWrongArgType = []byte("%!(WRONGTYPE)")
	errNoVerb       = []byte("%!(NOVERB)")
	errExtraArg     = []byte("%!(EXTRA)")
	trueValue       = []byte("true")
	falseValue      = []byte("false")

	numFmtBuf [maxBufSize + 1]byte

	// singleByte is a shared buffer for passing single characters to
	// doWrite. Slicing a string literal would trigger an allocation.
	singleByte [1]byte

	// earlyPrintBuffer stores Printf output produced before a sink is
	// attached via SetOutputSink.
	earlyPrintBuffer ringBuffer

	// outputSink is the io.Writer where Printf sends its output. If nil,
	// output is redirected to earlyPrintBuffer.
	outputSink io.Writer
)

// SetOutputSink sets the default target for calls to Printf to w and flushes
// any data accumulated in the early print buffer to it.
func SetOutputSink(w io.Writer) {
	outputSink = w
	if w != nil {
		earlyPrintBuffer.flushTo(w)
	}
}

// GetOutputSink returns the currently active output sink.
func GetOutputSink() io.Writer {
	return outputSink
}

// Printf provides a minimal Printf implementation that can be safely used
// before the Go runtime has been properly initialized. This implementation
// does not allocate any memory.
//
// Supported verbs:
//
//	%s  string or byte slice
//	%c  single byte
//	%d  base 10 integer
//	%o  base 8 integer
//	%x  base 16 integer, lower-case
//	%t  boolean
//
// An optional decimal width may precede the verb. Strings and base-10
// integers are left-padded with spaces; base-8 and base-16 integers are
// left-padded with zeroes.
//
// Only built-in string, integer and bool types are recognized. Arguments are
// never checked for io.Stringer as that requires the itables to be set up.
func Printf(format string, args ...interface{}) {
	Fprintf(outputSink, format, args...)
}

// Fprintf behaves exactly like Printf but it writes the formatted output to
// the specified io.Writer.
func Fprintf(w io.Writer, format string, args ...interface{}) {
	var (
		argIndex  int
		padLen    int
		litStart  int
		fmtLen    = len(format)
		index     = 0
		verbFound bool
	)

	for index < fmtLen {
		if format[index] != '%' {
			index++
			continue
		}

		writeLiteral(w, format, litStart, index)

		// parse width and verb
		padLen, verbFound = 0, false
		for index++; index < fmtLen; index++ {
			ch := format[index]
			if ch >= '0' && ch <= '9' {
				padLen = padLen*10 + int(ch-'0')
				continue
			}

			verbFound = true
			switch ch {
			case '%':
				writeByte(w, '%')
			case 'd', 'o', 'x', 's', 't', 'c':
				if argIndex >= len(args) {
					doWrite(w, errMissingArg)
					break
				}

				fmtArg(w, ch, args[argIndex], padLen)
				argIndex++
			default:
				doWrite(w, errNoVerb)
			}
			break
		}

		if !verbFound {
			doWrite(w, errNoVerb)
		}

		index++
		litStart = index
	}

	writeLiteral(w, format, litStart, fmtLen)

	for ; argIndex < len(args); argIndex++ {
		doWrite(w, errExtraArg)
	}
}

func fmtArg(w io.Writer, verb byte, arg interface{}, padLen int) {
	switch verb {
	case 'o':
		fmtInt(w, arg, 8, padLen)
	case 'd':
		fmtInt(w, arg, 10, padLen)
	case 'x':
		fmtInt(w, arg, 16, padLen)
	case 's':
		fmtString(w, arg, padLen)
	case 't':
		fmtBool(w, arg)
	case 'c':
		fmtChar(w, arg)
	}
}

// writeLiteral emits format[start:end] one byte at a time; passing a
// sub-slice of the format string to doWrite triggers an allocation.
func writeLiteral(w io.Writer, format string, start, end int) {
	for i := start; i < end; i++ {
		writeByte(w, format[i])
	}
}

func writeByte(w io.Writer, b byte) {
	singleByte[0] = b
	doWrite(w, singleByte[:])
}

func fmtBool(w io.Writer, v interface{}) {
	bVal, ok := v.(bool)
	switch {
	case !ok:
		doWrite(w, errWrongArgType)
	case bVal:
		doWrite(w, trueValue)
	default:
		doWrite(w, falseValue)
	}
}

func fmtChar(w io.Writer, v interface{}) {
	switch ch := v.(type) {
	case byte:
		writeByte(w, ch)
	case rune:
		if ch < 0 || ch > 0x7f {
			ch = '?'
		}
		writeByte(w, byte(ch))
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtString(w io.Writer, v interface{}, padLen int) {
	switch castedVal := v.(type) {
	case string:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		for i := 0; i < len(castedVal); i++ {
			writeByte(w, castedVal[i])
		}
	case []byte:
		fmtRepeat(w, ' ', padLen-len(castedVal))
		doWrite(w, castedVal)
	default:
		doWrite(w, errWrongArgType)
	}
}

func fmtRepeat(w io.Writer, ch byte, count int) {
	for ; count > 0; count-- {
		writeByte(w, ch)
	}
}

// toUint64 widens any built-in integer to its magnitude and sign.
func toUint64(v interface{}) (mag uint64, negative, ok bool) {
	var sval int64
	switch t := v.(type) {
	case uint8:
		return uint64(t), false, true
	case uint16:
		return uint64(t), false, true
	case uint32:
		return uint64(t), false, true
	case uint64:
		return t, false, true
	case uint:
		return uint64(t), false, true
	case uintptr:
		return uint64(t), false, true
	case int8:
		sval = int64(t)
	case int16:
		sval = int64(t)
	case int32:
		sval = int64(t)
	case int64:
		sval = t
	case int:
		sval = int64(t)
	default:
		return 0, false, false
	}

	if sval < 0 {
		return uint64(-sval), true, true
	}
	return uint64(sval), false, true
}

// fmtInt prints v in the requested base applying the padding specified by
// padLen. The digits are generated right-to-left into numFmtBuf.
func fmtInt(w io.Writer, v interface{}, base uint64, padLen int) {
	uval, negative, ok := toUint64(v)
	if !ok {
		doWrite(w, errWrongArgType)
		return
	}

	if padLen >= maxBufSize {
		padLen = maxBufSize - 1
	}

	padCh := byte('0')
	if base == 10 {
		padCh = ' '
	}

	start := len(numFmtBuf)
	for {
		digit := byte(uval % base)
		if digit < 10 {
			digit += '0'
		} else {
			digit += 'a' - 10
		}

		start--
		numFmtBuf[start] = digit

		if uval /= base; uval == 0 || start == 1 {
			break
		}
	}

	signWidth := 0
	if negative {
		signWidth = 1
	}

	switch {
	case negative && padCh == ' ':
		// the sign sticks to the digits; padding goes in front of it
		start--
		numFmtBuf[start] = '-'
		for len(numFmtBuf)-start < padLen {
			start--
			numFmtBuf[start] = ' '
		}
	default:
		for len(numFmtBuf)-start+signWidth < padLen {
			start--
			numFmtBuf[start] = padCh
		}
		if negative {
			start--
			numFmtBuf[start] = '-'
		}
	}

	doWrite(w, numFmtBuf[start:])
}

// doWrite is a proxy that uses the runtime.noescape hack to hide p from the
// compiler's escape analysis. Without this hack, the compiler cannot prove
// that p does not escape through the io.Writer and flags it as escaping,
// which makes every Printf call allocate.
func doWrite(w io.Writer, p []byte) {
	doRealWrite(w, noEscape(unsafe.Pointer(&p)))
}

func doRealWrite(w io.Writer, bufPtr unsafe.Pointer) {
	p := *(*[]byte)(bufPtr)
	if w != nil {
		w.Write(p)
	} else {
		earlyPrintBuffer.Write(p)
	}
}

// noEscape hides a pointer from escape analysis. This function is copied over
// from runtime/stubs.go
//
//go:nosplit
func noEscape(p unsafe.Pointer) unsafe.Pointer {
	x := uintptr(p)
	return unsafe.Pointer(x ^ 0)
}
