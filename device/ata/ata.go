// Package ata implements a polling ATA PIO driver that reads sectors from a
// disk using 28-bit LBA addressing. The kernel uses it as a raw byte source
// for loading the boot archive.
package ata

import (
	"io"

	"zipos/kernel"
	"zipos/kernel/cpu"
	"zipos/kernel/kfmt"
)

// SectorSize is the size of a disk sector in bytes.
const SectorSize = 512

// I/O base and bus number of the primary ATA bus. The boot disk is always
// the master drive on this bus.
const (
	PrimaryIO  = uint16(0x1f0)
	PrimaryBus = uint8(0)
)

// Register offsets relative to the bus I/O base.
const (
	regData        = 0
	regError       = 1
	regSectorCount = 2
	regLBALow      = 3
	regLBAMid      = 4
	regLBAHigh     = 5
	regDriveSelect = 6
	regStatus      = 7
	regCommand     = 7
)

const (
	statusErr  = 1 << 0
	statusDRQ  = 1 << 3
	statusDF   = 1 << 5
	statusBusy = 1 << 7

	// statusFloating is read back when no device is attached to the bus.
	statusFloating = 0xff

	cmdReadSectors = 0x20

	driveSelectLBA = 0xe0
	driveSelectDev = 1 << 4

	// maxChunk is the largest sector count a single LBA28 command can
	// transfer; it is encoded as 0 in the sector count register.
	maxChunk = 256

	maxLBA = 1 << 28

	wordsPerSector = SectorSize / 2
)

var (
	// ErrDeviceFault is returned when the drive reports an error or a
	// device fault, or when it does not become ready in time.
	ErrDeviceFault = &kernel.Error{Module: "ata", Message: "drive reported an error", Kind: kernel.KindDeviceFault}

	// ErrTimeout is returned when the drive stays busy for too long.
	ErrTimeout = &kernel.Error{Module: "ata", Message: "timeout waiting for drive", Kind: kernel.KindDeviceFault}

	// ErrNoDrive is returned by DriverInit when the bus is floating.
	ErrNoDrive = &kernel.Error{Module: "ata", Message: "no drive attached", Kind: kernel.KindDeviceFault}

	// ErrBufferTooSmall is returned when the destination cannot hold the
	// requested sectors.
	ErrBufferTooSmall = &kernel.Error{Module: "ata", Message: "destination buffer too small", Kind: kernel.KindInvalidArgument}

	// ErrLBARange is returned for reads beyond the 28-bit address space.
	ErrLBARange = &kernel.Error{Module: "ata", Message: "sector range exceeds LBA28 addressing", Kind: kernel.KindInvalidArgument}

	// pollLimit bounds the number of status reads while waiting for the
	// drive.
	pollLimit = 1 << 20

	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
	portReadWordFn  = cpu.PortReadWord
)

// Drive identifies a disk by its bus, its position on the bus and the bus
// I/O base.
type Drive struct {
	Bus    uint8
	Slave  bool
	IOBase uint16
}

// ReadSectors reads count sectors starting at lba into dst and returns the
// number of bytes read. Reads are issued in chunks of at most 256 sectors.
func (d *Drive) ReadSectors(dst []byte, lba uint32, count uint32) (int, *kernel.Error) {
	if uint64(len(dst)) < uint64(count)*SectorSize {
		return 0, ErrBufferTooSmall
	}
	if uint64(lba)+uint64(count) > maxLBA {
		return 0, ErrLBARange
	}

	var read int
	for count > 0 {
		chunk := count
		if chunk > maxChunk {
			chunk = maxChunk
		}

		if err := d.readChunk(dst[read:], lba, chunk); err != nil {
			return read, err
		}

		read += int(chunk) * SectorSize
		lba += chunk
		count -= chunk
	}

	return read, nil
}

func (d *Drive) readChunk(dst []byte, lba, count uint32) *kernel.Error {
	if err := d.waitIdle(); err != nil {
		return err
	}

	portWriteByteFn(d.IOBase+regDriveSelect, d.selectByte()|uint8(lba>>24)&0x0f)
	portWriteByteFn(d.IOBase+regSectorCount, uint8(count)) // 256 wraps to 0
	portWriteByteFn(d.IOBase+regLBALow, uint8(lba))
	portWriteByteFn(d.IOBase+regLBAMid, uint8(lba>>8))
	portWriteByteFn(d.IOBase+regLBAHigh, uint8(lba>>16))
	portWriteByteFn(d.IOBase+regCommand, cmdReadSectors)

	for sector := uint32(0); sector < count; sector++ {
		if err := d.waitData(); err != nil {
			return err
		}

		buf := dst[sector*SectorSize : (sector+1)*SectorSize]
		for i := 0; i < wordsPerSector; i++ {
			word := portReadWordFn(d.IOBase + regData)
			buf[2*i] = uint8(word)
			buf[2*i+1] = uint8(word >> 8)
		}
	}

	return nil
}

// waitIdle polls the status register until the drive clears BSY.
func (d *Drive) waitIdle() *kernel.Error {
	for i := 0; i < pollLimit; i++ {
		if portReadByteFn(d.IOBase+regStatus)&statusBusy == 0 {
			return nil
		}
	}

	return ErrTimeout
}

// waitData polls the status register until the drive has a sector ready.
func (d *Drive) waitData() *kernel.Error {
	for i := 0; i < pollLimit; i++ {
		status := portReadByteFn(d.IOBase + regStatus)
		switch {
		case status&statusBusy != 0:
		case status&(statusErr|statusDF) != 0:
			return ErrDeviceFault
		case status&statusDRQ != 0:
			return nil
		}
	}

	return ErrTimeout
}

func (d *Drive) selectByte() uint8 {
	if d.Slave {
		return driveSelectLBA | driveSelectDev
	}
	return driveSelectLBA
}

// DriverName returns the name of this driver.
func (d *Drive) DriverName() string {
	return "ata_pio"
}

// DriverVersion returns the version of this driver.
func (d *Drive) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit selects the drive and checks that the bus is not floating.
func (d *Drive) DriverInit(w io.Writer) *kernel.Error {
	portWriteByteFn(d.IOBase+regDriveSelect, d.selectByte())

	// Reading the status register a few times gives the drive the 400ns
	// it needs to respond to the selection.
	var status uint8
	for i := 0; i < 4; i++ {
		status = portReadByteFn(d.IOBase + regStatus)
	}

	if status == statusFloating {
		kfmt.Fprintf(w, "no drive on bus %d at 0x%x\n", d.Bus, d.IOBase)
		return ErrNoDrive
	}

	kfmt.Fprintf(w, "using drive %d on bus %d at 0x%x\n", d.unit(), d.Bus, d.IOBase)
	return nil
}

func (d *Drive) unit() uint8 {
	if d.Slave {
		return 1
	}
	return 0
}
