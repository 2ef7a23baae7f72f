package kmain

import (
	"zipos/device/ata"
	"zipos/kernel"
	"zipos/kernel/mem"
	"zipos/multiboot"
)

// Boot defaults. All of them can be overridden from the boot command line.
const (
	// DefaultStagingSize is the size of the buffer the disk image is
	// loaded into. The archive on disk must be smaller than this.
	DefaultStagingSize = mem.Size(0x501000)

	// DefaultArenaSize is the size of the memory region managed by the
	// kernel allocator.
	DefaultArenaSize = 8 * mem.Mb

	// DefaultBackground is the archive entry shown as the background.
	DefaultBackground = "bg.raw"
)

var (
	errBadArenaSize   = &kernel.Error{Module: "kmain", Message: "invalid arenaSize boot option", Kind: kernel.KindConfig}
	errBadStagingSize = &kernel.Error{Module: "kmain", Message: "stagingSize must be a non-zero multiple of the sector size", Kind: kernel.KindConfig}
	errArenaTooSmall  = &kernel.Error{Module: "kmain", Message: "arena too small for staging buffer", Kind: kernel.KindConfig}

	bootOptionFn = multiboot.BootOption
)

// Config holds the tunables of the boot sequence.
type Config struct {
	// ArenaSize is the size of the allocator region.
	ArenaSize mem.Size

	// StagingSize is the number of bytes read from disk.
	StagingSize mem.Size

	// Background names the archive entry presented as the background
	// frame.
	Background string

	// Serial selects whether kernel output goes to COM1.
	Serial bool
}

// DefaultConfig returns the configuration used when the boot command line
// sets no options.
func DefaultConfig() Config {
	return Config{
		ArenaSize:   DefaultArenaSize,
		StagingSize: DefaultStagingSize,
		Background:  DefaultBackground,
		Serial:      true,
	}
}

// LoadConfig applies the boot command line options on top of the defaults.
// Recognized options:
//
//	arenaSize=<size>    allocator region size (e.g. 16M)
//	stagingSize=<size>  bytes loaded from disk (e.g. 0x501000)
//	background=<name>   archive entry used as the background frame
//	serial=off          disable logging to COM1
//
// The returned Config is always usable; on error it carries the values that
// were parsed before the bad option.
func LoadConfig() (Config, *kernel.Error) {
	cfg := DefaultConfig()

	if val, ok := bootOptionFn("serial"); ok && val == "off" {
		cfg.Serial = false
	}

	if val, ok := bootOptionFn("background"); ok && val != "" && val != "background" {
		cfg.Background = val
	}

	if val, ok := bootOptionFn("arenaSize"); ok {
		size, valid := mem.ParseSize(val)
		if !valid || size < mem.PageSize {
			return cfg, errBadArenaSize
		}
		cfg.ArenaSize = size
	}

	if val, ok := bootOptionFn("stagingSize"); ok {
		size, valid := mem.ParseSize(val)
		if !valid || size == 0 || size%ata.SectorSize != 0 {
			return cfg, errBadStagingSize
		}
		cfg.StagingSize = size
	}

	if cfg.ArenaSize <= cfg.StagingSize {
		return cfg, errArenaTooSmall
	}

	return cfg, nil
}
