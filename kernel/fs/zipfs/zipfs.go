// Package zipfs reads a ZIP archive that has been loaded into memory and
// exposes its entries as a read-only catalog of files.
//
// Only stored (uncompressed) entries are supported. The reader never
// allocates: records are written to caller-supplied storage and payloads are
// returned as sub-slices of the archive buffer. Every offset taken from the
// archive is bounds-checked so a malformed archive yields an error rather
// than an out-of-range access.
package zipfs

import (
	"encoding/binary"

	"zipos/kernel"
)

const (
	eocdSignature        = 0x06054b50
	directorySignature   = 0x02014b50
	localHeaderSignature = 0x04034b50

	eocdLen           = 22
	directoryEntryLen = 46
	localHeaderLen    = 30

	// maxCommentLen bounds how far from the end of the buffer the end of
	// central directory record can start.
	maxCommentLen = 65535

	// MaxNameLen is the longest entry name that fits a record's
	// NUL-terminated name buffer.
	MaxNameLen = 255

	flagEncrypted = 1 << 0
	flagUTF8      = 1 << 11

	methodStored = 0

	zip64Marker16 = 0xffff
	zip64Marker32 = 0xffffffff
)

var (
	// ErrShortArchive is returned for buffers that cannot hold an end of
	// central directory record.
	ErrShortArchive = &kernel.Error{Module: "zipfs", Message: "archive is shorter than an end of central directory record", Kind: kernel.KindMalformed}

	// ErrNoDirectory is returned when no end of central directory record
	// is found near the end of the buffer.
	ErrNoDirectory = &kernel.Error{Module: "zipfs", Message: "end of central directory record not found", Kind: kernel.KindMalformed}

	// ErrMultiDisk is returned for archives spanning multiple disks.
	ErrMultiDisk = &kernel.Error{Module: "zipfs", Message: "multi-disk archives are not supported", Kind: kernel.KindMalformed}

	// ErrZip64 is returned for archives that need ZIP64 extensions.
	ErrZip64 = &kernel.Error{Module: "zipfs", Message: "zip64 archives are not supported", Kind: kernel.KindMalformed}

	// ErrDirectoryBounds is returned when the central directory or the end
	// of central directory record extends past the buffer.
	ErrDirectoryBounds = &kernel.Error{Module: "zipfs", Message: "central directory lies outside the archive", Kind: kernel.KindMalformed}

	// ErrDirectoryOverrun is returned when the entries do not fit in the
	// declared central directory size.
	ErrDirectoryOverrun = &kernel.Error{Module: "zipfs", Message: "central directory entries overrun the declared directory size", Kind: kernel.KindMalformed}

	// ErrBadEntry is returned for central directory entries with a wrong
	// signature.
	ErrBadEntry = &kernel.Error{Module: "zipfs", Message: "bad central directory entry signature", Kind: kernel.KindMalformed}

	// ErrBadLocalHeader is returned when an entry points to something that
	// is not a local file header.
	ErrBadLocalHeader = &kernel.Error{Module: "zipfs", Message: "bad local file header", Kind: kernel.KindMalformed}

	// ErrNameTooLong is returned for entry names longer than MaxNameLen.
	ErrNameTooLong = &kernel.Error{Module: "zipfs", Message: "entry name too long", Kind: kernel.KindMalformed}

	// ErrEncrypted is returned for encrypted entries.
	ErrEncrypted = &kernel.Error{Module: "zipfs", Message: "encrypted entries are not supported", Kind: kernel.KindMalformed}

	// ErrCompressed is returned for entries using any method but stored.
	ErrCompressed = &kernel.Error{Module: "zipfs", Message: "unsupported compression method", Kind: kernel.KindMalformed}

	// ErrSizeMismatch is returned for stored entries whose compressed and
	// uncompressed sizes differ.
	ErrSizeMismatch = &kernel.Error{Module: "zipfs", Message: "stored entry size mismatch", Kind: kernel.KindMalformed}

	// ErrPayloadBounds is returned when an entry's data extends past the
	// archive buffer.
	ErrPayloadBounds = &kernel.Error{Module: "zipfs", Message: "entry data lies outside the archive", Kind: kernel.KindMalformed}

	// ErrCatalogFull is returned when the archive has more entries than the
	// supplied record storage can hold.
	ErrCatalogFull = &kernel.Error{Module: "zipfs", Message: "not enough record storage for catalog", Kind: kernel.KindOutOfMemory}

	// ErrNotFound is returned by FindByName when no entry matches.
	ErrNotFound = &kernel.Error{Module: "zipfs", Message: "file not found", Kind: kernel.KindNotFound}
)

// Directory describes the central directory as declared by the end of
// central directory record.
type Directory struct {
	// Offset and Size locate the central directory in the archive.
	Offset uint32
	Size   uint32

	// Entries is the number of central directory entries.
	Entries uint16

	// ArchiveSize is the total archive size implied by the record: the
	// central directory end plus the record itself and its comment.
	ArchiveSize uint64
}

// LocateDirectory scans archive backwards for the end of central directory
// record. Only the last 22+65535 bytes are searched, as the record is
// followed by at most a 65535 byte comment. The first record found is
// validated and returned; no further candidates are considered.
func LocateDirectory(archive []byte) (Directory, *kernel.Error) {
	if len(archive) < eocdLen {
		return Directory{}, ErrShortArchive
	}

	lowest := 0
	if len(archive) > eocdLen+maxCommentLen {
		lowest = len(archive) - eocdLen - maxCommentLen
	}

	for off := len(archive) - eocdLen; off >= lowest; off-- {
		if archive[off] != 'P' || binary.LittleEndian.Uint32(archive[off:]) != eocdSignature {
			continue
		}

		return parseDirectory(archive, off)
	}

	return Directory{}, ErrNoDirectory
}

func parseDirectory(archive []byte, off int) (Directory, *kernel.Error) {
	rec := archive[off : off+eocdLen]

	var (
		diskNum        = binary.LittleEndian.Uint16(rec[4:])
		directoryDisk  = binary.LittleEndian.Uint16(rec[6:])
		entriesOnDisk  = binary.LittleEndian.Uint16(rec[8:])
		entries        = binary.LittleEndian.Uint16(rec[10:])
		directorySize  = binary.LittleEndian.Uint32(rec[12:])
		directoryStart = binary.LittleEndian.Uint32(rec[16:])
		commentLen     = binary.LittleEndian.Uint16(rec[20:])
	)

	if entries == zip64Marker16 || directorySize == zip64Marker32 || directoryStart == zip64Marker32 {
		return Directory{}, ErrZip64
	}
	if diskNum != 0 || directoryDisk != 0 || entriesOnDisk != entries {
		return Directory{}, ErrMultiDisk
	}

	directoryEnd := uint64(directoryStart) + uint64(directorySize)
	if directoryEnd > uint64(off) || uint64(off)+eocdLen+uint64(commentLen) > uint64(len(archive)) {
		return Directory{}, ErrDirectoryBounds
	}

	return Directory{
		Offset:      directoryStart,
		Size:        directorySize,
		Entries:     entries,
		ArchiveSize: directoryEnd + eocdLen + uint64(commentLen),
	}, nil
}
