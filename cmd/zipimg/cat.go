package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"zipos/kernel/fs/zipfs"
)

func newCatCmd() *cobra.Command {
	var stagingSize string

	cmd := &cobra.Command{
		Use:   "cat <image> <name>",
		Short: "Write the contents of a file in a disk image to stdout",
		Example: `  zipimg cat disk.img a.txt
  zipimg cat disk.img bg.raw > bg.raw`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			staging, err := parseStaging(stagingSize)
			if err != nil {
				return err
			}

			return withCatalog(args[0], staging, func(buf []byte, catalog *zipfs.Catalog) error {
				rec, kerr := catalog.FindByName(args[1])
				if kerr != nil {
					return fmt.Errorf("%s: %w", args[1], kerr)
				}

				payload, kerr := rec.Payload(buf)
				if kerr != nil {
					return fmt.Errorf("%s: %w", args[1], kerr)
				}

				_, err := cmd.OutOrStdout().Write(payload)
				return err
			})
		},
	}

	cmd.Flags().StringVar(&stagingSize, "staging", "", "Read the image as loaded into a staging buffer of this size")
	return cmd
}
