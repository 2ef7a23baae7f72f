package main

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"

	"go.uber.org/zap"
)

const redirectSection = ".goredirectstbl"

// populateTable resolves the addresses of every redirection in the kernel
// image and writes the (src, dst) address pairs to its redirection table
// section.
func populateTable(imgFile string, redirects []*redirect) error {
	f, err := elf.Open(imgFile)
	if err != nil {
		return err
	}

	section := f.Section(redirectSection)
	if section == nil {
		f.Close()
		return fmt.Errorf("%s: missing %s section", imgFile, redirectSection)
	}
	offset, capacity := section.Offset, section.Size

	symbols, err := f.Symbols()
	f.Close()
	if err != nil {
		return err
	}

	if err = resolveSymbols(redirects, symbols); err != nil {
		return fmt.Errorf("%s: %w", imgFile, err)
	}

	table := encodeTable(redirects)
	if uint64(len(table)) > capacity {
		return fmt.Errorf("%s: %d redirections do not fit the %d byte %s section", imgFile, len(redirects), capacity, redirectSection)
	}

	out, err := os.OpenFile(imgFile, os.O_WRONLY, 0)
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err = out.WriteAt(table, int64(offset)); err != nil {
		return err
	}

	logger.Info("redirection table written", zap.String("image", imgFile), zap.Int("entries", len(redirects)))
	return nil
}

// resolveSymbols fills in the source and destination addresses of every
// redirection.
func resolveSymbols(redirects []*redirect, symbols []elf.Symbol) error {
	addrs := make(map[string]uint64, len(symbols))
	for _, sym := range symbols {
		addrs[sym.Name] = sym.Value
	}

	for _, r := range redirects {
		r.srcVMA, r.dstVMA = addrs[r.src], addrs[r.dst]

		switch {
		case r.srcVMA == 0:
			return fmt.Errorf("could not locate address of %q", r.src)
		case r.dstVMA == 0:
			return fmt.Errorf("could not locate address of %q", r.dst)
		}

		logger.Debug("resolved redirect",
			zap.String("src", r.src), zap.Uint64("srcVMA", r.srcVMA),
			zap.String("dst", r.dst), zap.Uint64("dstVMA", r.dstVMA))
	}

	return nil
}

// encodeTable serializes the table as little-endian (src, dst) pairs.
func encodeTable(redirects []*redirect) []byte {
	table := make([]byte, 0, 16*len(redirects))
	for _, r := range redirects {
		table = binary.LittleEndian.AppendUint64(table, r.srcVMA)
		table = binary.LittleEndian.AppendUint64(table, r.dstVMA)
	}
	return table
}
