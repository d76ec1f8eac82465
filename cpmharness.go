// cpmharness.go - CP/M BDOS-trap test harness
//
// Diagnostic binaries such as TST8080, 8080PRE, CPUTEST and ZEXDOC are
// written to run under real CP/M: they load at 0x0100 and report
// results by calling 0x0005 (the BDOS entry point) with function 2
// (console character out, character in E) or function 9 (print a
// '$'-terminated string pointed to by DE). This harness traps that one
// call rather than emulating a BDOS, and collects the output for the
// caller to compare against the known-good transcript.

package cpm

import "fmt"

const (
	bdosEntry  = 0x0005
	comLoadAddr = 0x0100
)

// CpmHarness boots a CP/M .COM image under either CPU core with just
// enough of BDOS trapped to let the program run to completion and
// report its output.
type CpmHarness struct {
	emu    *Emulator
	output []byte
}

// NewCpmHarness constructs a harness around cpuType, with RET
// instructions planted at 0x0000 (so a jump to the reset vector halts
// cleanly) and 0x0005 (the BDOS trap point itself, executed only if
// the harness's own interception in Run somehow misses the call).
func NewCpmHarness(cpuType CpuType) *CpmHarness {
	h := &CpmHarness{emu: NewEmulator(cpuType)}
	h.emu.Memory().Write(0x0000, 0xC9) // RET (also a valid 8080/Z80 RET)
	h.emu.Memory().Write(bdosEntry, 0xC9)
	return h
}

// Load places a .COM image at 0x0100 and sets PC there.
func (h *CpmHarness) Load(image []byte) {
	h.emu.Load(comLoadAddr, image)
	h.setPC(comLoadAddr)
}

func (h *CpmHarness) setPC(addr uint16) {
	switch c := h.emu.cpu.(type) {
	case *CPU8080:
		c.PC = addr
	case *CPU_Z80:
		c.PC = addr
	}
}

func (h *CpmHarness) pc() uint16 {
	return h.emu.pc()
}

func (h *CpmHarness) setSP(addr uint16) {
	switch c := h.emu.cpu.(type) {
	case *CPU8080:
		c.SP = addr
	case *CPU_Z80:
		c.SP = addr
	}
}

func (h *CpmHarness) regC() byte {
	switch c := h.emu.cpu.(type) {
	case *CPU8080:
		return c.C
	case *CPU_Z80:
		return c.C
	}
	return 0
}

func (h *CpmHarness) regE() byte {
	switch c := h.emu.cpu.(type) {
	case *CPU8080:
		return c.E
	case *CPU_Z80:
		return c.E
	}
	return 0
}

func (h *CpmHarness) regDE() uint16 {
	switch c := h.emu.cpu.(type) {
	case *CPU8080:
		return c.de()
	case *CPU_Z80:
		return c.de()
	}
	return 0
}

func (h *CpmHarness) retFromCall() {
	switch c := h.emu.cpu.(type) {
	case *CPU8080:
		c.PC = c.pop()
	case *CPU_Z80:
		c.PC = c.pop()
	}
}

// Output returns everything the program has printed through BDOS
// functions 2 and 9 so far.
func (h *CpmHarness) Output() string {
	return string(h.output)
}

// Run executes up to maxInstructions instructions, intercepting every
// CALL 0x0005 as a BDOS request and returning when the program returns
// to address 0 (the standard CP/M warm-boot convention for "done") or
// the instruction budget is exhausted.
func (h *CpmHarness) Run(maxInstructions int) error {
	h.setSP(0xFFFE) // leaves 0x0000 on the stack as the return address
	mem := h.emu.Memory()
	mem.Write(0xFFFE, 0x00)
	mem.Write(0xFFFF, 0x00)

	for i := 0; i < maxInstructions; i++ {
		if h.pc() == 0x0000 {
			return nil
		}
		if h.pc() == bdosEntry {
			h.handleBDOS()
			h.retFromCall()
			continue
		}
		h.emu.Step()
	}
	return fmt.Errorf("cpmharness: instruction budget %d exhausted at PC=%#04x", maxInstructions, h.pc())
}

func (h *CpmHarness) handleBDOS() {
	mem := h.emu.Memory()
	switch h.regC() {
	case 2:
		h.output = append(h.output, h.regE())
	case 9:
		addr := h.regDE()
		for {
			b := mem.Read(addr)
			if b == '$' {
				break
			}
			h.output = append(h.output, b)
			addr++
		}
	}
}
