package main

import (
	"fmt"
	"image"
	"image/draw"
	"os"

	_ "image/gif"
	_ "image/jpeg"
	_ "image/png"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newRawCmd() *cobra.Command {
	var width, height int

	cmd := &cobra.Command{
		Use:   "raw <image.png|jpg|gif> <output>",
		Short: "Convert an image to a packed RGBA frame",
		Long: `The raw command converts a png, jpg or gif image to the packed RGBA
format (4 bytes per pixel, rows top to bottom) that the kernel presents
as its background. The frame must match the screen resolution; use
--width and --height to check it.

Example:
  zipimg raw --width 1024 --height 768 wallpaper.png bg.raw`,
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRaw(args[0], args[1], width, height)
		},
	}

	cmd.Flags().IntVar(&width, "width", 0, "Expected image width (0 = any)")
	cmd.Flags().IntVar(&height, "height", 0, "Expected image height (0 = any)")
	return cmd
}

func runRaw(input, output string, width, height int) error {
	f, err := os.Open(input)
	if err != nil {
		return err
	}
	defer f.Close()

	img, format, err := image.Decode(f)
	if err != nil {
		return fmt.Errorf("failed to decode %s: %w", input, err)
	}

	size := img.Bounds().Size()
	if (width != 0 && size.X != width) || (height != 0 && size.Y != height) {
		return fmt.Errorf("%s is %dx%d; expected %dx%d", input, size.X, size.Y, width, height)
	}

	frame := packRGBA(img)
	if err = os.WriteFile(output, frame, 0o644); err != nil {
		return fmt.Errorf("failed to write frame: %w", err)
	}

	logger.Info("frame written",
		zap.String("input", input),
		zap.String("format", format),
		zap.Int("width", size.X),
		zap.Int("height", size.Y),
		zap.String("output", output))
	return nil
}

// packRGBA returns the pixels of img as tightly packed, non-premultiplied
// RGBA bytes.
func packRGBA(img image.Image) []byte {
	bounds := img.Bounds()
	rgba := image.NewNRGBA(image.Rect(0, 0, bounds.Dx(), bounds.Dy()))
	draw.Draw(rgba, rgba.Bounds(), img, bounds.Min, draw.Src)
	return rgba.Pix
}
