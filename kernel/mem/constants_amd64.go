//go:build amd64

package mem

const (
	// PageShift is equal to log2(PageSize). Shifting an address right by
	// PageShift yields its page number.
	PageShift = 12

	// PageSize defines the system's page size in bytes. Arena regions
	// start on page boundaries.
	PageSize = Size(1 << PageShift)
)
