package main

import (
	"fmt"

	"zipos/kernel/fs/zipfs"
)

// diskImage is a read-only view of an image file.
type diskImage struct {
	data    []byte
	release func([]byte) error
}

func (img *diskImage) Close() error {
	if img.release == nil || img.data == nil {
		return nil
	}

	err := img.release(img.data)
	img.data = nil
	return err
}

// stage returns what the kernel sees after loading stagingSize bytes of the
// image: the image truncated or zero-extended to that size. A zero
// stagingSize returns the image unchanged.
func stage(data []byte, stagingSize int) []byte {
	if stagingSize == 0 || stagingSize == len(data) {
		return data
	}

	buf := make([]byte, stagingSize)
	copy(buf, data)
	return buf
}

// readCatalog runs the kernel's archive reader over buf. When staged is set
// it also applies the boot time check that the archive fits the buffer.
func readCatalog(buf []byte, staged bool) (zipfs.Catalog, error) {
	dir, kerr := zipfs.LocateDirectory(buf)
	if kerr != nil {
		return zipfs.Catalog{}, fmt.Errorf("locate central directory: %w", kerr)
	}
	if staged && dir.ArchiveSize >= uint64(len(buf)) {
		return zipfs.Catalog{}, fmt.Errorf("archive of %d bytes does not fit a %d byte staging buffer", dir.ArchiveSize, len(buf))
	}

	catalog, kerr := zipfs.ReadCatalog(buf, dir, make([]zipfs.Record, dir.Entries))
	if kerr != nil {
		return zipfs.Catalog{}, fmt.Errorf("read catalog: %w", kerr)
	}

	return catalog, nil
}
