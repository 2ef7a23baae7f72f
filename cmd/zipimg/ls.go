package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/text/encoding/charmap"

	"zipos/kernel/fs/zipfs"
	"zipos/kernel/mem"
)

func newLsCmd() *cobra.Command {
	var stagingSize string

	cmd := &cobra.Command{
		Use:   "ls <image>",
		Short: "List the files in a disk image",
		Long: `The ls command lists the entries of a disk image in central directory
order using the kernel's archive reader.

With --staging the image is first cut or padded to the given size, the
way the kernel loads it, so the listing shows what the kernel will see.

Example:
  zipimg ls disk.img
  zipimg ls --staging 0x501000 disk.img`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			staging, err := parseStaging(stagingSize)
			if err != nil {
				return err
			}

			return withCatalog(args[0], staging, func(buf []byte, catalog *zipfs.Catalog) error {
				out := cmd.OutOrStdout()
				for i := 0; i < catalog.Len(); i++ {
					rec := catalog.At(i)
					name, err := entryName(rec)
					if err != nil {
						return err
					}
					fmt.Fprintf(out, "%10d  %s\n", rec.Len(), name)
				}
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&stagingSize, "staging", "", "Inspect the image as loaded into a staging buffer of this size")
	return cmd
}

func parseStaging(s string) (int, error) {
	if s == "" {
		return 0, nil
	}

	size, ok := mem.ParseSize(s)
	if !ok || size == 0 {
		return 0, fmt.Errorf("invalid staging size %q", s)
	}
	return int(size), nil
}

// withCatalog opens an image, reads its catalog and passes both to fn.
func withCatalog(path string, stagingSize int, fn func([]byte, *zipfs.Catalog) error) error {
	img, err := openImage(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	buf := stage(img.data, stagingSize)
	catalog, err := readCatalog(buf, stagingSize != 0)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}

	logger.Debug("catalog loaded", zap.String("image", path), zap.Int("entries", catalog.Len()))
	return fn(buf, &catalog)
}

// entryName returns the name of rec as a Go string. Names without the UTF-8
// flag use the IBM PC character set.
func entryName(rec *zipfs.Record) (string, error) {
	name := rec.Name()
	if rec.UTF8() || isASCII(string(name)) {
		return string(name), nil
	}

	decoded, err := charmap.CodePage437.NewDecoder().Bytes(name)
	if err != nil {
		return "", fmt.Errorf("failed to decode CP437 name: %w", err)
	}
	return string(decoded), nil
}
