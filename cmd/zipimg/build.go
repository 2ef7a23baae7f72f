package main

import (
	"archive/zip"
	"bytes"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"unicode/utf8"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"zipos/kernel/fs/zipfs"
)

const flagUTF8 = 0x800

func newBuildCmd() *cobra.Command {
	var (
		output      string
		stagingSize string
		sectorSize  int
	)

	cmd := &cobra.Command{
		Use:   "build <manifest.yaml | file...>",
		Short: "Build a disk image",
		Long: `The build command packs files into a stored-only ZIP disk image.

The archive is placed so that it ends one sector before the end of the
staging buffer and the image is padded to the staging size. The kernel
reads the whole staging buffer and finds the end of central directory
record near its end.

Example:
  zipimg build image.yaml
  zipimg build -o disk.img bg.raw notes.txt
  zipimg build -o disk.img --staging-size 1M bg.raw`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := manifestFromArgs(args)
			if err != nil {
				return err
			}

			if cmd.Flags().Changed("output") || m.Output == "" {
				m.Output = output
			}
			if cmd.Flags().Changed("staging-size") {
				m.StagingSize = stagingSize
			}
			if cmd.Flags().Changed("sector-size") {
				m.SectorSize = sectorSize
			}

			return runBuild(m)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "disk.img", "Path of the generated image")
	cmd.Flags().StringVar(&stagingSize, "staging-size", defaultStagingSize, "Size of the kernel staging buffer")
	cmd.Flags().IntVar(&sectorSize, "sector-size", defaultSectorSize, "Disk sector size")
	return cmd
}

// manifestFromArgs loads a manifest when given a single .yaml/.yml argument
// and otherwise treats the arguments as the files to pack.
func manifestFromArgs(args []string) (*Manifest, error) {
	if len(args) == 1 && isManifest(args[0]) {
		return loadManifest(args[0])
	}

	m := &Manifest{}
	for _, path := range args {
		m.Files = append(m.Files, ManifestFile{Path: path})
	}
	return m, nil
}

func isManifest(path string) bool {
	switch filepath.Ext(path) {
	case ".yaml", ".yml":
		return true
	}
	return false
}

func runBuild(m *Manifest) error {
	if err := m.validate(); err != nil {
		return err
	}

	l, err := m.layout()
	if err != nil {
		return err
	}

	img, err := buildImage(m.Files, l)
	if err != nil {
		return err
	}

	if err = os.WriteFile(m.Output, img, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}

	logger.Info("image written",
		zap.String("output", m.Output),
		zap.Int("files", len(m.Files)),
		zap.Int("size", len(img)))
	return nil
}

// buildImage returns a disk image of exactly l.StagingSize bytes holding
// the given files.
func buildImage(files []ManifestFile, l Layout) ([]byte, error) {
	payloads := make([][]byte, len(files))
	for i, f := range files {
		if len(f.Name) > zipfs.MaxNameLen {
			return nil, fmt.Errorf("entry name %q is longer than %d bytes", f.Name, zipfs.MaxNameLen)
		}

		data, err := os.ReadFile(f.Path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Path, err)
		}
		payloads[i] = data
	}

	// The first pass measures the archive so the second one can place it
	// right before the last sector of the staging buffer.
	archive, err := writeArchive(files, payloads, 0)
	if err != nil {
		return nil, err
	}

	end := l.StagingSize - l.SectorSize
	if len(archive) > end {
		return nil, fmt.Errorf("archive needs %d bytes but only %d fit in the staging buffer", len(archive), end)
	}

	gap := end - len(archive)
	if archive, err = writeArchive(files, payloads, gap); err != nil {
		return nil, err
	}

	img := make([]byte, l.StagingSize)
	copy(img[gap:], archive)

	logger.Debug("image layout",
		zap.Int("archiveOffset", gap),
		zap.Int("archiveSize", len(archive)),
		zap.Int("stagingSize", l.StagingSize))
	return img, nil
}

// writeArchive serializes a stored-only archive whose offsets assume it
// starts offset bytes into the image.
func writeArchive(files []ManifestFile, payloads [][]byte, offset int) ([]byte, error) {
	var buf bytes.Buffer

	zw := zip.NewWriter(&buf)
	zw.SetOffset(int64(offset))

	for i, f := range files {
		data := payloads[i]
		hdr := &zip.FileHeader{
			Name:               f.Name,
			Method:             zip.Store,
			CRC32:              crc32.ChecksumIEEE(data),
			CompressedSize64:   uint64(len(data)),
			UncompressedSize64: uint64(len(data)),
		}
		if !isASCII(f.Name) && utf8.ValidString(f.Name) {
			hdr.Flags |= flagUTF8
		}

		w, err := zw.CreateRaw(hdr)
		if err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.Name, err)
		}
		if _, err = w.Write(data); err != nil {
			return nil, fmt.Errorf("failed to add %s: %w", f.Name, err)
		}

		logger.Debug("added entry", zap.String("name", f.Name), zap.Int("size", len(data)))
	}

	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finalize archive: %w", err)
	}

	return buf.Bytes(), nil
}

func isASCII(s string) bool {
	for i := 0; i < len(s); i++ {
		if s[i] >= utf8.RuneSelf {
			return false
		}
	}
	return true
}
