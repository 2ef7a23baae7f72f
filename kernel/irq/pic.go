package irq

import "zipos/kernel/cpu"

// 8259 programmable interrupt controller ports and commands.
const (
	picMasterCmd  = 0x20
	picMasterData = 0x21
	picSlaveCmd   = 0xa0
	picSlaveData  = 0xa1

	// icw1Init starts the initialization sequence and announces ICW4.
	icw1Init = 0x11
	icw4Mode = 0x01

	// The PICs raise IRQs 0-15 on vectors 32-47 instead of the BIOS
	// default of 8-15 which collides with the CPU exceptions.
	picMasterOffset = uint8(firstExternal)
	picSlaveOffset  = picMasterOffset + 8

	maskAll = 0xff
)

var portWriteByteFn = cpu.PortWriteByte

// remapPIC moves the legacy IRQ lines above the exception vectors and masks
// all of them. The kernel does not drive any device through IRQs.
func remapPIC() {
	portWriteByteFn(picMasterCmd, icw1Init)
	portWriteByteFn(picSlaveCmd, icw1Init)
	portWriteByteFn(picMasterData, picMasterOffset)
	portWriteByteFn(picSlaveData, picSlaveOffset)

	// Slave PIC is cascaded on IRQ2 of the master.
	portWriteByteFn(picMasterData, 1<<2)
	portWriteByteFn(picSlaveData, 2)

	portWriteByteFn(picMasterData, icw4Mode)
	portWriteByteFn(picSlaveData, icw4Mode)

	portWriteByteFn(picMasterData, maskAll)
	portWriteByteFn(picSlaveData, maskAll)
}
