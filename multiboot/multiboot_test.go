package multiboot

import (
	"encoding/binary"
	"testing"
	"unsafe"
)

// liveInfo keeps the most recently built info blob reachable while the
// package only holds its address.
var liveInfo []uint64

// infoBuilder assembles a multiboot2 info blob in an 8-byte aligned buffer.
type infoBuilder struct {
	data []byte
}

func (b *infoBuilder) tag(typ tagType, payload []byte) {
	var hdr [8]byte
	binary.LittleEndian.PutUint32(hdr[0:], uint32(typ))
	binary.LittleEndian.PutUint32(hdr[4:], uint32(8+len(payload)))
	b.data = append(b.data, hdr[:]...)
	b.data = append(b.data, payload...)
	for len(b.data)%8 != 0 {
		b.data = append(b.data, 0)
	}
}

// build terminates the tag list and returns a pointer to an aligned copy.
func (b *infoBuilder) build() uintptr {
	b.tag(tagMbSectionEnd, nil)

	total := 8 + len(b.data)
	backing := make([]uint64, (total+7)/8)
	buf := unsafe.Slice((*byte)(unsafe.Pointer(&backing[0])), total)
	binary.LittleEndian.PutUint32(buf[0:], uint32(total))
	copy(buf[8:], b.data)
	liveInfo = backing

	return uintptr(unsafe.Pointer(&backing[0]))
}

func cmdLineTag(cmdLine string) []byte {
	return append([]byte(cmdLine), 0)
}

func memoryMapTag(entries ...MemoryMapEntry) []byte {
	payload := make([]byte, 8+24*len(entries))
	binary.LittleEndian.PutUint32(payload[0:], 24)
	for i, entry := range entries {
		off := 8 + 24*i
		binary.LittleEndian.PutUint64(payload[off:], entry.PhysAddress)
		binary.LittleEndian.PutUint64(payload[off+8:], entry.Length)
		binary.LittleEndian.PutUint32(payload[off+16:], uint32(entry.Type))
	}
	return payload
}

func framebufferTag(addr uint64, pitch, width, height uint32, bpp uint8) []byte {
	payload := make([]byte, 24)
	binary.LittleEndian.PutUint64(payload[0:], addr)
	binary.LittleEndian.PutUint32(payload[8:], pitch)
	binary.LittleEndian.PutUint32(payload[12:], width)
	binary.LittleEndian.PutUint32(payload[16:], height)
	payload[20] = bpp
	payload[21] = byte(FramebufferTypeRGB)
	return payload
}

func TestFindTagByTypeWithMissingTag(t *testing.T) {
	defer SetInfoPtr(0)

	var b infoBuilder
	b.tag(tagBootLoaderName, []byte("grub\x00"))
	SetInfoPtr(b.build())

	if ptr, size := findTagByType(tagMemoryMap); ptr != 0 || size != 0 {
		t.Fatalf("expected findTagByType to return (0,0) for a missing tag; got (%d, %d)", ptr, size)
	}

	SetInfoPtr(0)
	if ptr, size := findTagByType(tagMemoryMap); ptr != 0 || size != 0 {
		t.Fatalf("expected findTagByType to return (0,0) without info data; got (%d, %d)", ptr, size)
	}
}

func TestVisitMemRegions(t *testing.T) {
	defer SetInfoPtr(0)

	var b infoBuilder
	b.tag(tagBootLoaderName, []byte("grub\x00"))
	b.tag(tagMemoryMap, memoryMapTag(
		MemoryMapEntry{PhysAddress: 0, Length: 0x9fc00, Type: MemAvailable},
		MemoryMapEntry{PhysAddress: 0x9fc00, Length: 0x400, Type: MemReserved},
		MemoryMapEntry{PhysAddress: 0x100000, Length: 0x7ee0000, Type: MemAvailable},
		MemoryMapEntry{PhysAddress: 0xfffc0000, Length: 0x40000, Type: MemoryEntryType(42)},
	))
	SetInfoPtr(b.build())

	specs := []struct {
		expPhys uint64
		expLen  uint64
		expType MemoryEntryType
	}{
		{0, 0x9fc00, MemAvailable},
		{0x9fc00, 0x400, MemReserved},
		{0x100000, 0x7ee0000, MemAvailable},
		// unknown types are reported as reserved
		{0xfffc0000, 0x40000, MemReserved},
	}

	var visitCount int
	VisitMemRegions(func(entry *MemoryMapEntry) bool {
		if visitCount >= len(specs) {
			t.Fatalf("visitor invoked more than %d times", len(specs))
		}

		spec := specs[visitCount]
		if entry.PhysAddress != spec.expPhys || entry.Length != spec.expLen || entry.Type != spec.expType {
			t.Errorf("[entry %d] expected {0x%x, 0x%x, %s}; got {0x%x, 0x%x, %s}",
				visitCount, spec.expPhys, spec.expLen, spec.expType, entry.PhysAddress, entry.Length, entry.Type)
		}

		visitCount++
		return true
	})

	if visitCount != len(specs) {
		t.Fatalf("expected visitor to be invoked %d times; got %d", len(specs), visitCount)
	}

	// aborting the scan
	visitCount = 0
	VisitMemRegions(func(_ *MemoryMapEntry) bool {
		visitCount++
		return false
	})

	if visitCount != 1 {
		t.Fatalf("expected the scan to stop after the visitor returned false; got %d visits", visitCount)
	}
}

func TestMemoryEntryTypeString(t *testing.T) {
	specs := []struct {
		input MemoryEntryType
		exp   string
	}{
		{MemAvailable, "available"},
		{MemReserved, "reserved"},
		{MemAcpiReclaimable, "ACPI (reclaimable)"},
		{MemNvs, "NVS"},
		{MemoryEntryType(123), "unknown"},
	}

	for specIndex, spec := range specs {
		if got := spec.input.String(); got != spec.exp {
			t.Errorf("[spec %d] expected %q; got %q", specIndex, spec.exp, got)
		}
	}
}

func TestGetFramebufferInfo(t *testing.T) {
	defer SetInfoPtr(0)

	var b infoBuilder
	SetInfoPtr(b.build())
	if GetFramebufferInfo() != nil {
		t.Fatal("expected nil framebuffer info when the tag is missing")
	}

	b = infoBuilder{}
	b.tag(tagFramebufferInfo, framebufferTag(0xfd000000, 4096, 1024, 768, 32))
	SetInfoPtr(b.build())

	info := GetFramebufferInfo()
	if info == nil {
		t.Fatal("expected framebuffer info to be present")
	}

	if info.PhysAddr != 0xfd000000 || info.Pitch != 4096 || info.Width != 1024 || info.Height != 768 || info.Bpp != 32 || info.Type != FramebufferTypeRGB {
		t.Fatalf("unexpected framebuffer info: %+v", *info)
	}
}

func TestBootOption(t *testing.T) {
	defer SetInfoPtr(0)

	var b infoBuilder
	b.tag(tagBootCmdLine, cmdLineTag("  arenaSize=8M serial=off  stagingSize=0x501000 verbose empty="))
	SetInfoPtr(b.build())

	specs := []struct {
		key      string
		expValue string
		expFound bool
	}{
		{"arenaSize", "8M", true},
		{"stagingSize", "0x501000", true},
		{"serial", "off", true},
		{"verbose", "verbose", true},
		{"empty", "", true},
		{"arena", "", false},
		{"background", "", false},
	}

	for specIndex, spec := range specs {
		value, found := BootOption(spec.key)
		if found != spec.expFound || value != spec.expValue {
			t.Errorf("[spec %d] expected BootOption(%q) to return (%q, %t); got (%q, %t)", specIndex, spec.key, spec.expValue, spec.expFound, value, found)
		}
	}

	// no command line tag
	b = infoBuilder{}
	SetInfoPtr(b.build())
	if _, found := BootOption("arenaSize"); found {
		t.Fatal("expected BootOption to report a missing key without a command line")
	}
}
