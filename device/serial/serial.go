// Package serial drives a 16550-compatible UART. The kernel uses COM1 as
// its logging channel and falls back to COM2 when COM1 fails its self-test.
package serial

import (
	"io"

	"zipos/kernel"
	"zipos/kernel/cpu"
	"zipos/kernel/kfmt"
)

// Standard I/O base addresses of the first two serial ports.
const (
	COM1 = uint16(0x3f8)
	COM2 = uint16(0x2f8)
)

// Register offsets relative to the port base.
const (
	regData        = 0 // RX/TX buffer; divisor low byte when DLAB is set
	regIntEnable   = 1 // interrupt enable; divisor high byte when DLAB is set
	regFifoCtrl    = 2
	regLineCtrl    = 3
	regModemCtrl   = 4
	regLineStatus  = 5
	lineStatusTHRE = 0x20 // transmit holding register empty

	lineCtrlDLAB  = 0x80
	lineCtrl8N1   = 0x03
	fifoEnable14  = 0xc7 // enable and clear FIFOs with a 14-byte threshold
	modemNormal   = 0x0f // DTR, RTS, OUT1 and OUT2
	modemRtsDsr   = 0x0b
	modemLoopback = 0x1e
	divisor38400  = 3

	loopbackProbe = 0xae
)

var (
	// ErrLoopbackFailed is returned by DriverInit when the UART does not
	// echo the probe byte in loopback mode.
	ErrLoopbackFailed = &kernel.Error{Module: "serial", Message: "loopback self-test failed", Kind: kernel.KindDeviceFault}

	portWriteByteFn = cpu.PortWriteByte
	portReadByteFn  = cpu.PortReadByte
)

// Port is an io.Writer that transmits bytes over a UART.
type Port struct {
	// Base is the I/O base address of the UART (e.g. COM1).
	Base uint16
}

// Write implements io.Writer. Each byte is sent once the transmit holding
// register is empty. Write never fails.
func (p *Port) Write(b []byte) (int, error) {
	for _, ch := range b {
		for portReadByteFn(p.Base+regLineStatus)&lineStatusTHRE == 0 {
		}
		portWriteByteFn(p.Base+regData, ch)
	}

	return len(b), nil
}

// DriverName returns the name of this driver.
func (p *Port) DriverName() string {
	return "uart16550"
}

// DriverVersion returns the version of this driver.
func (p *Port) DriverVersion() (uint16, uint16, uint16) {
	return 0, 1, 0
}

// DriverInit programs the UART for 38400 baud 8N1 and verifies that the chip
// works by echoing a byte in loopback mode.
func (p *Port) DriverInit(w io.Writer) *kernel.Error {
	portWriteByteFn(p.Base+regIntEnable, 0)
	portWriteByteFn(p.Base+regLineCtrl, lineCtrlDLAB)
	portWriteByteFn(p.Base+regData, divisor38400)
	portWriteByteFn(p.Base+regIntEnable, 0)
	portWriteByteFn(p.Base+regLineCtrl, lineCtrl8N1)
	portWriteByteFn(p.Base+regFifoCtrl, fifoEnable14)
	portWriteByteFn(p.Base+regModemCtrl, modemRtsDsr)

	portWriteByteFn(p.Base+regModemCtrl, modemLoopback)
	portWriteByteFn(p.Base+regData, loopbackProbe)
	if got := portReadByteFn(p.Base + regData); got != loopbackProbe {
		kfmt.Fprintf(w, "no UART at 0x%x (loopback returned 0x%x)\n", p.Base, got)
		return ErrLoopbackFailed
	}

	portWriteByteFn(p.Base+regModemCtrl, modemNormal)
	kfmt.Fprintf(w, "UART at 0x%x ready\n", p.Base)
	return nil
}
