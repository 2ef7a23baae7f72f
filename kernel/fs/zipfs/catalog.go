package zipfs

import (
	"encoding/binary"

	"zipos/kernel"
)

// Record describes a single archive entry. The payload is not copied; a
// Record only stores where it lives inside the archive buffer.
type Record struct {
	name    [MaxNameLen + 1]byte
	nameLen uint16
	flags   uint16

	offset uint64
	length uint64
}

// Name returns the entry name without its NUL terminator.
func (r *Record) Name() []byte {
	return r.name[:r.nameLen]
}

// UTF8 reports whether the archive marks the entry name as UTF-8. Other
// names use code page 437.
func (r *Record) UTF8() bool {
	return r.flags&flagUTF8 != 0
}

// Offset returns the position of the entry's data in the archive.
func (r *Record) Offset() uint64 {
	return r.offset
}

// Len returns the size of the entry's data in bytes.
func (r *Record) Len() uint64 {
	return r.length
}

// Payload returns the entry's data as a sub-slice of archive. The bounds are
// checked again in case archive is not the buffer the catalog was read from.
func (r *Record) Payload(archive []byte) ([]byte, *kernel.Error) {
	end := r.offset + r.length
	if end < r.offset || end > uint64(len(archive)) {
		return nil, ErrPayloadBounds
	}

	return archive[r.offset:end:end], nil
}

// Catalog is the ordered list of entries of an archive.
type Catalog struct {
	records []Record
}

// Len returns the number of entries in the catalog.
func (c *Catalog) Len() int {
	return len(c.records)
}

// At returns the i-th entry in central directory order.
func (c *Catalog) At(i int) *Record {
	return &c.records[i]
}

// FindByName returns the first entry whose name equals name.
func (c *Catalog) FindByName(name string) (*Record, *kernel.Error) {
	for i := range c.records {
		if string(c.records[i].Name()) == name {
			return &c.records[i], nil
		}
	}

	return nil, ErrNotFound
}

// ReadCatalog walks the central directory described by dir and fills one
// record per entry into storage. Any invalid entry aborts the whole catalog;
// a partially read catalog is never returned.
func ReadCatalog(archive []byte, dir Directory, storage []Record) (Catalog, *kernel.Error) {
	pos := uint64(dir.Offset)
	end := pos + uint64(dir.Size)
	if end > uint64(len(archive)) {
		return Catalog{}, ErrDirectoryBounds
	}
	if int(dir.Entries) > len(storage) {
		return Catalog{}, ErrCatalogFull
	}

	for i := 0; i < int(dir.Entries); i++ {
		next, err := readEntry(archive, pos, end, &storage[i])
		if err != nil {
			return Catalog{}, err
		}
		pos = next
	}

	return Catalog{records: storage[:dir.Entries]}, nil
}

// readEntry parses the central directory entry at pos into rec and returns
// the position of the following entry.
func readEntry(archive []byte, pos, end uint64, rec *Record) (uint64, *kernel.Error) {
	if pos+directoryEntryLen > end {
		return 0, ErrDirectoryOverrun
	}

	hdr := archive[pos : pos+directoryEntryLen]
	if binary.LittleEndian.Uint32(hdr) != directorySignature {
		return 0, ErrBadEntry
	}

	var (
		flags          = binary.LittleEndian.Uint16(hdr[8:])
		method         = binary.LittleEndian.Uint16(hdr[10:])
		compressedSize = binary.LittleEndian.Uint32(hdr[20:])
		size           = binary.LittleEndian.Uint32(hdr[24:])
		nameLen        = uint64(binary.LittleEndian.Uint16(hdr[28:]))
		extraLen       = uint64(binary.LittleEndian.Uint16(hdr[30:]))
		commentLen     = uint64(binary.LittleEndian.Uint16(hdr[32:]))
		headerOffset   = binary.LittleEndian.Uint32(hdr[42:])
	)

	next := pos + directoryEntryLen + nameLen + extraLen + commentLen
	if next > end {
		return 0, ErrDirectoryOverrun
	}

	switch {
	case nameLen > MaxNameLen:
		return 0, ErrNameTooLong
	case flags&flagEncrypted != 0:
		return 0, ErrEncrypted
	case method != methodStored:
		return 0, ErrCompressed
	case size == zip64Marker32 || compressedSize == zip64Marker32 || headerOffset == zip64Marker32:
		return 0, ErrZip64
	case compressedSize != size:
		return 0, ErrSizeMismatch
	}

	payload, err := payloadOffset(archive, uint64(headerOffset))
	if err != nil {
		return 0, err
	}
	if payload+uint64(size) > uint64(len(archive)) {
		return 0, ErrPayloadBounds
	}

	*rec = Record{
		nameLen: uint16(nameLen),
		flags:   flags,
		offset:  payload,
		length:  uint64(size),
	}
	nameStart := pos + directoryEntryLen
	copy(rec.name[:], archive[nameStart:nameStart+nameLen])

	return next, nil
}

// payloadOffset validates the local file header at off and returns the
// offset of the data that follows it. The local header carries its own name
// and extra field lengths which may differ from the central directory.
func payloadOffset(archive []byte, off uint64) (uint64, *kernel.Error) {
	if off+localHeaderLen > uint64(len(archive)) {
		return 0, ErrBadLocalHeader
	}

	hdr := archive[off : off+localHeaderLen]
	if binary.LittleEndian.Uint32(hdr) != localHeaderSignature {
		return 0, ErrBadLocalHeader
	}

	nameLen := uint64(binary.LittleEndian.Uint16(hdr[26:]))
	extraLen := uint64(binary.LittleEndian.Uint16(hdr[28:]))

	return off + localHeaderLen + nameLen + extraLen, nil
}
