package mem

// Size represents a memory block size in bytes.
type Size uint64

// Common memory block sizes.
const (
	Byte Size = 1
	Kb        = 1024 * Byte
	Mb        = 1024 * Kb
	Gb        = 1024 * Mb
)

// IsPowerOfTwo reports whether s is a non-zero power of two.
func (s Size) IsPowerOfTwo() bool {
	return s != 0 && s&(s-1) == 0
}

// AlignUp rounds addr up to the next multiple of align which must be a power
// of two. It returns false if the rounded address overflows.
func AlignUp(addr uintptr, align Size) (uintptr, bool) {
	mask := uintptr(align - 1)
	aligned := (addr + mask) &^ mask
	return aligned, aligned >= addr
}

// ParseSize parses a size expressed in decimal or 0x-prefixed hex with an
// optional K, M or G suffix (e.g. "8M", "0x501000", "512K"). It does not
// allocate, so it can be used on boot command line values.
func ParseSize(s string) (Size, bool) {
	if len(s) == 0 {
		return 0, false
	}

	unit := Byte
	switch s[len(s)-1] {
	case 'k', 'K':
		unit = Kb
	case 'm', 'M':
		unit = Mb
	case 'g', 'G':
		unit = Gb
	}
	if unit != Byte {
		s = s[:len(s)-1]
	}

	base := Size(10)
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}

	if len(s) == 0 {
		return 0, false
	}

	var val Size
	for i := 0; i < len(s); i++ {
		var digit Size
		switch ch := s[i]; {
		case ch >= '0' && ch <= '9':
			digit = Size(ch - '0')
		case base == 16 && ch >= 'a' && ch <= 'f':
			digit = Size(ch-'a') + 10
		case base == 16 && ch >= 'A' && ch <= 'F':
			digit = Size(ch-'A') + 10
		default:
			return 0, false
		}

		next := val*base + digit
		if next/base != val {
			return 0, false
		}
		val = next
	}

	if total := val * unit; val == 0 || total/unit == val {
		return total, true
	}
	return 0, false
}
