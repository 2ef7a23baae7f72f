//go:build !linux && !darwin

package main

import (
	"fmt"
	"os"
)

// openImage reads an image file into memory.
func openImage(path string) (*diskImage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("empty image file: %s", path)
	}

	return &diskImage{data: data}, nil
}
