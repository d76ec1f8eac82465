// device_console.go - CP/M console device (ports 0, 1)

package cpm

import "runtime"

// idlePollThreshold is the number of consecutive "not ready" status
// polls before the console cooperatively yields the CPU thread. Spec'd
// at roughly 100 polls to avoid burning cycles when emulated software
// busy-waits on console status.
const idlePollThreshold = 100

// ConsoleSink is the host-facing half of the console device: where
// output bytes go, whether input is queued, and where input bytes come
// from.
type ConsoleSink interface {
	WriteByte(b byte)
	InputReady() bool
	ReadByte() byte
}

// ConsoleDevice implements the CP/M console port pair. Port 0 reports
// input-ready status; port 1 carries data in both directions.
type ConsoleDevice struct {
	sink ConsoleSink

	idlePolls int
}

// NewConsoleDevice wraps sink as the port 0/1 handler.
func NewConsoleDevice(sink ConsoleSink) *ConsoleDevice {
	return &ConsoleDevice{sink: sink}
}

func (d *ConsoleDevice) In(port byte) byte {
	switch port {
	case 0:
		if d.sink.InputReady() {
			d.idlePolls = 0
			return 0xFF
		}
		d.idlePolls++
		if d.idlePolls >= idlePollThreshold {
			d.idlePolls = 0
			runtime.Gosched()
		}
		return 0x00
	case 1:
		return d.sink.ReadByte()
	default:
		return 0xFF
	}
}

func (d *ConsoleDevice) Out(port byte, value byte) {
	if port == 1 {
		d.sink.WriteByte(value)
	}
}
