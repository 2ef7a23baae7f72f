package arena

import (
	"zipos/kernel"
	"zipos/kernel/kfmt"
	"zipos/kernel/mem"
	"zipos/multiboot"
)

// lowMemoryEnd marks the end of the legacy area (IVT, BIOS data, VGA memory
// and option ROMs). Regions below it are never handed to the arena.
const lowMemoryEnd = uintptr(1 * mem.Mb)

var (
	// ErrNoRegion is returned by FindRegion when no available memory region
	// can hold the requested size.
	ErrNoRegion = &kernel.Error{Module: "arena", Message: "no memory region large enough for the arena", Kind: kernel.KindOutOfMemory}

	visitMemRegionsFn = multiboot.VisitMemRegions
)

// FindRegion scans the memory map provided by the bootloader and returns the
// first page-aligned address where size bytes of available memory neither
// overlap the kernel image nor the legacy low memory area.
func FindRegion(kernelStart, kernelEnd uintptr, size mem.Size) (uintptr, *kernel.Error) {
	if size == 0 {
		return 0, ErrInvalidSize
	}

	pageSizeMinus1 := uint64(mem.PageSize - 1)
	kernelStartPage := uint64(kernelStart) &^ pageSizeMinus1
	kernelEndPage := (uint64(kernelEnd) + pageSizeMinus1) &^ pageSizeMinus1

	var (
		found uintptr
		err   = ErrNoRegion
	)

	visitMemRegionsFn(func(region *multiboot.MemoryMapEntry) bool {
		if region.Type != multiboot.MemAvailable {
			return true
		}

		// Reported addresses may not be page-aligned; round the start up
		// and the end down.
		regionStart := (region.PhysAddress + pageSizeMinus1) &^ pageSizeMinus1
		regionEnd := (region.PhysAddress + region.Length) &^ pageSizeMinus1
		if regionStart < uint64(lowMemoryEnd) {
			regionStart = uint64(lowMemoryEnd)
		}

		candidate := regionStart
		if candidate < kernelEndPage && candidate+uint64(size) > kernelStartPage {
			candidate = kernelEndPage
		}

		if candidate >= regionEnd || uint64(size) > regionEnd-candidate {
			return true
		}

		found, err = uintptr(candidate), nil
		return false
	})

	return found, err
}

// PrintMemoryMap logs the memory map reported by the bootloader together with
// the location of the kernel image.
func PrintMemoryMap(kernelStart, kernelEnd uintptr) {
	var totalFree mem.Size

	kfmt.Debug("[arena] system memory map:")
	visitMemRegionsFn(func(region *multiboot.MemoryMapEntry) bool {
		kfmt.Debug("\t[0x%10x - 0x%10x], size: %10d, type: %s", region.PhysAddress, region.PhysAddress+region.Length, region.Length, region.Type.String())

		if region.Type == multiboot.MemAvailable {
			totalFree += mem.Size(region.Length)
		}
		return true
	})
	kfmt.Debug("[arena] available memory: %dKb", uint64(totalFree/mem.Kb))
	kfmt.Debug("[arena] kernel loaded at 0x%x - 0x%x", kernelStart, kernelEnd)
}
