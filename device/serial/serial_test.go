package serial

import (
	"bytes"
	"testing"

	"zipos/device"
)

var _ device.Driver = (*Port)(nil)

// fakeUART emulates the registers used by the driver.
type fakeUART struct {
	base     uint16
	regs     [8]uint8
	loopback bool
	broken   bool
	tx       []byte

	// busyPolls is the number of line status reads that report a full
	// transmit register before every byte.
	busyPolls    int
	pendingPolls int
	statusReads  int
}

func (u *fakeUART) install(t *testing.T) {
	origWrite, origRead := portWriteByteFn, portReadByteFn
	t.Cleanup(func() { portWriteByteFn, portReadByteFn = origWrite, origRead })

	portWriteByteFn = func(port uint16, val uint8) {
		reg := port - u.base
		u.regs[reg] = val
		switch reg {
		case regModemCtrl:
			u.loopback = val&0x10 != 0
		case regData:
			if !u.loopback && u.regs[regLineCtrl]&lineCtrlDLAB == 0 {
				u.tx = append(u.tx, val)
				u.pendingPolls = u.busyPolls
			}
		}
	}

	portReadByteFn = func(port uint16) uint8 {
		switch port - u.base {
		case regData:
			if u.broken {
				return 0xff
			}
			return u.regs[regData]
		case regLineStatus:
			u.statusReads++
			if u.pendingPolls > 0 {
				u.pendingPolls--
				return 0
			}
			return lineStatusTHRE
		}
		return 0
	}
}

func TestDriverInit(t *testing.T) {
	uart := &fakeUART{base: COM1}
	uart.install(t)

	var (
		port = Port{Base: COM1}
		log  bytes.Buffer
	)
	if err := port.DriverInit(&log); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if uart.loopback {
		t.Error("expected UART to leave loopback mode")
	}
	if uart.regs[regModemCtrl] != modemNormal {
		t.Errorf("expected modem control 0x%x; got 0x%x", modemNormal, uart.regs[regModemCtrl])
	}
	if uart.regs[regLineCtrl] != lineCtrl8N1 {
		t.Errorf("expected 8N1 line control; got 0x%x", uart.regs[regLineCtrl])
	}
	if exp := "UART at 0x3f8 ready\n"; log.String() != exp {
		t.Errorf("expected log %q; got %q", exp, log.String())
	}
	if len(uart.tx) != 0 {
		t.Errorf("expected loopback probe not to be transmitted; got %v", uart.tx)
	}
}

func TestDriverInitLoopbackFailure(t *testing.T) {
	uart := &fakeUART{base: COM2, broken: true}
	uart.install(t)

	var (
		port = Port{Base: COM2}
		log  bytes.Buffer
	)
	if err := port.DriverInit(&log); err != ErrLoopbackFailed {
		t.Fatalf("expected ErrLoopbackFailed; got %v", err)
	}
	if exp := "no UART at 0x2f8 (loopback returned 0xff)\n"; log.String() != exp {
		t.Errorf("expected log %q; got %q", exp, log.String())
	}
}

func TestWriteWaitsForTransmitter(t *testing.T) {
	uart := &fakeUART{base: COM1, busyPolls: 3}
	uart.install(t)

	port := Port{Base: COM1}
	n, err := port.Write([]byte("zipos\n"))
	if err != nil || n != 6 {
		t.Fatalf("expected (6, nil); got (%d, %v)", n, err)
	}

	if got := string(uart.tx); got != "zipos\n" {
		t.Fatalf("expected transmitted bytes %q; got %q", "zipos\n", got)
	}

	// The first byte goes out immediately; each following byte waits for
	// the three busy polls caused by its predecessor.
	if exp := 1 + 5*4; uart.statusReads != exp {
		t.Fatalf("expected %d line status reads; got %d", exp, uart.statusReads)
	}
}
