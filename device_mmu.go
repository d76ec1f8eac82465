// device_mmu.go - MMU control device (ports 20-23)
//
// This is a port-mapped front end onto the Memory banking API in
// memory.go; the device itself holds no banking state of its own.

package cpm

// MMUMemory is the slice of the Memory API the MMU device drives.
type MMUMemory interface {
	InitializeBanks(n int)
	SelectBank(b int)
	SetSegmentSize(pages int)
	SetWriteProtect(flag bool)
	CurrentBank() int
	BankCount() int
	SegmentSizePages() int
	WriteProtected() bool
}

// MMUDevice implements the CP/M MMU port group: port 20 sets segment
// size then (re)initializes the bank count, 21 selects the active
// bank, 22 sets the segment size alone, and 23 arms write-protect.
type MMUDevice struct {
	mem MMUMemory
}

// NewMMUDevice wraps mem as the port 20-23 handler.
func NewMMUDevice(mem MMUMemory) *MMUDevice {
	return &MMUDevice{mem: mem}
}

func (d *MMUDevice) In(port byte) byte {
	switch port {
	case 20:
		return byte(d.mem.BankCount())
	case 21:
		return byte(d.mem.CurrentBank())
	case 22:
		return byte(d.mem.SegmentSizePages())
	case 23:
		return 0
	default:
		return 0xFF
	}
}

func (d *MMUDevice) Out(port byte, value byte) {
	switch port {
	case 20:
		d.mem.SetSegmentSize(int(value))
		d.mem.InitializeBanks(int(value))
	case 21:
		d.mem.SelectBank(int(value))
	case 22:
		d.mem.SetSegmentSize(int(value))
	case 23:
		d.mem.SetWriteProtect(value != 0)
	}
}
