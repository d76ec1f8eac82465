// emulator.go - the Emulator driver: owns CPU, Memory, and I/O Bus, and
// runs the batched instruction loop
//
// Two deployment models share this same loop (spec.md §5): a dedicated
// execution context started by Start, built on golang.org/x/sync's
// errgroup the way the retrieval pack's own runner wires a worker
// goroutine to a done channel, and a cooperative single-step model
// driven entirely by repeated calls to Step from the host's own event
// loop. Both models only ever touch CPU and Memory from inside Step.

package cpm

import (
	"context"
	"runtime"
	"sync"

	"golang.org/x/sync/errgroup"
)

// CpuType selects which instruction set the Emulator's CPU executes.
type CpuType int

const (
	CPUType8080 CpuType = iota
	CPUTypeZ80
)

const (
	// defaultBatchSize is the number of instructions the worker executes
	// between scheduler yields. Cancellation and breakpoints are checked
	// before every instruction.
	defaultBatchSize = 5000

	defaultTraceCapacity = 256
)

// TraceEntry is one row of the trace ring buffer: the state of the
// machine immediately before executing the instruction at PC.
type TraceEntry struct {
	PC        uint16
	Opcode    byte
	Operand1  byte
	Operand2  byte
	Registers TraceState
}

// systemBus adapts Memory+IOBus to both Bus8080 and Z80Bus, the way the
// retrieval pack's own memory-mapper wires a single backing store to
// CPU-specific bus interfaces.
type systemBus struct {
	mem *Memory
	io  *IOBus
}

func (b *systemBus) Read(addr uint16) byte         { return b.mem.Read(addr) }
func (b *systemBus) Write(addr uint16, value byte) { b.mem.Write(addr, value) }
func (b *systemBus) In(port byte) byte             { return b.io.In(port) }
func (b *systemBus) Out(port byte, value byte)     { b.io.Out(port, value) }

// z80BusAdapter narrows the 16-bit port address Z80 IN/OUT instructions
// carry (A8..A15 on real hardware, conventionally the B register) down
// to the 8-bit port space this core's I/O Bus implements, using only
// the low 8 bits - the convention CP/M software relies on.
type z80BusAdapter struct{ *systemBus }

func (b z80BusAdapter) In(port uint16) byte         { return b.io.In(byte(port)) }
func (b z80BusAdapter) Out(port uint16, value byte) { b.io.Out(byte(port), value) }

type cpuCore interface {
	Step() int
	Interrupt(vector byte)
	GetTraceState() TraceState
}

// Emulator wires a CPU core, Memory, and I/O Bus together and drives
// the batched run loop described in spec.md §4.6.
type Emulator struct {
	mu sync.Mutex

	cpuType CpuType
	cpu     cpuCore
	mem     *Memory
	io      *IOBus

	timer *TimerDevice

	running   bool
	cancel    context.CancelFunc
	group     *errgroup.Group
	doneCh    chan struct{}
	instrCnt  uint64

	traceEnabled bool
	traceBuf     []TraceEntry
	traceHead    int
	traceFull    bool

	breakpoints map[uint16]bool

	breakpointHit bool
	hitAddress    uint16

	onStarted func()
	onStopped func()
	onError   func(error)

	batchSize int
}

// NewEmulator constructs an Emulator for cpuType, with Memory and an
// IOBus ready for device registration and the chosen core wired
// against them (callers register devices on IoBus() before calling
// Start).
func NewEmulator(cpuType CpuType) *Emulator {
	e := &Emulator{
		cpuType:     cpuType,
		mem:         NewMemory(),
		io:          NewIOBus(),
		breakpoints: make(map[uint16]bool),
		batchSize:   defaultBatchSize,
		traceBuf:    make([]TraceEntry, defaultTraceCapacity),
	}
	bus := &systemBus{mem: e.mem, io: e.io}
	switch cpuType {
	case CPUTypeZ80:
		e.cpu = NewCPU_Z80(z80BusAdapter{bus})
	default:
		e.cpu = NewCPU8080(bus)
	}
	return e
}

// Memory returns the backing 64 KiB memory subsystem.
func (e *Emulator) Memory() *Memory { return e.mem }

// IoBus returns the 256-port I/O bus for device registration.
func (e *Emulator) IoBus() *IOBus { return e.io }

// SetTimer registers the Timer device the run loop polls for a pending
// interrupt between instructions.
func (e *Emulator) SetTimer(t *TimerDevice) { e.timer = t }

// Load copies bytes into memory starting at addr.
func (e *Emulator) Load(addr uint16, data []byte) {
	e.mem.Load(addr, data)
}

// OnStarted, OnStopped, and OnError register the Emulator's lifecycle
// signal subscribers. Only one subscriber per signal is supported.
func (e *Emulator) OnStarted(fn func())  { e.onStarted = fn }
func (e *Emulator) OnStopped(fn func())  { e.onStopped = fn }
func (e *Emulator) OnError(fn func(error)) { e.onError = fn }

// SetTraceEnabled arms or disarms trace ring capture.
func (e *Emulator) SetTraceEnabled(on bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.traceEnabled = on
}

// TraceBuffer returns a chronological copy of the trace ring buffer's
// current contents.
func (e *Emulator) TraceBuffer() []TraceEntry {
	e.mu.Lock()
	defer e.mu.Unlock()
	if !e.traceFull {
		out := make([]TraceEntry, e.traceHead)
		copy(out, e.traceBuf[:e.traceHead])
		return out
	}
	out := make([]TraceEntry, len(e.traceBuf))
	copy(out, e.traceBuf[e.traceHead:])
	copy(out[len(e.traceBuf)-e.traceHead:], e.traceBuf[:e.traceHead])
	return out
}

func (e *Emulator) recordTrace() {
	entry := TraceEntry{
		PC:        e.pc(),
		Opcode:    e.mem.Read(e.pc()),
		Operand1:  e.mem.Read(e.pc() + 1),
		Operand2:  e.mem.Read(e.pc() + 2),
		Registers: e.cpu.GetTraceState(),
	}
	e.traceBuf[e.traceHead] = entry
	e.traceHead++
	if e.traceHead >= len(e.traceBuf) {
		e.traceHead = 0
		e.traceFull = true
	}
}

func (e *Emulator) pc() uint16 {
	return e.cpu.GetTraceState().PC
}

// SetBreakpoint, ClearBreakpoint, and ClearAllBreakpoints manage the
// set of addresses that halt the run loop before executing them.
func (e *Emulator) SetBreakpoint(addr uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakpoints[addr] = true
}

func (e *Emulator) ClearBreakpoint(addr uint16) {
	e.mu.Lock()
	defer e.mu.Unlock()
	delete(e.breakpoints, addr)
}

func (e *Emulator) ClearAllBreakpoints() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakpoints = make(map[uint16]bool)
}

// BreakpointHit reports whether the loop stopped on a breakpoint.
func (e *Emulator) BreakpointHit() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.breakpointHit
}

// HitAddress returns the address the loop stopped on, if BreakpointHit.
func (e *Emulator) HitAddress() uint16 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.hitAddress
}

// ClearHit resets the breakpoint-hit flag so the loop can be resumed.
func (e *Emulator) ClearHit() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.breakpointHit = false
}

// IsRunning reports whether the dedicated worker is active.
func (e *Emulator) IsRunning() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.running
}

// InstructionCount returns the number of instructions executed since
// construction (or the last Reset).
func (e *Emulator) InstructionCount() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.instrCnt
}

// Reset re-initializes the CPU core and instruction counter. Memory
// and device state are untouched.
func (e *Emulator) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	switch c := e.cpu.(type) {
	case *CPU8080:
		c.Reset()
	case *CPU_Z80:
		c.Reset()
	}
	e.instrCnt = 0
	e.breakpointHit = false
}

// Step executes exactly one instruction, honoring tracing. It is the
// building block both deployment models in spec.md §5 are built on.
func (e *Emulator) Step() int {
	e.mu.Lock()
	if e.traceEnabled {
		e.recordTrace()
	}
	e.mu.Unlock()

	t := e.cpu.Step()

	e.mu.Lock()
	e.instrCnt++
	if e.timer != nil {
		if vector, ok := e.timer.PendingInterrupt(); ok {
			e.cpu.Interrupt(vector)
		}
	}
	e.mu.Unlock()
	return t
}

// runBatch executes up to e.batchSize instructions, stopping early on
// a breakpoint match. Returns true if the loop should keep going.
func (e *Emulator) runBatch(ctx context.Context) bool {
	for i := 0; i < e.batchSize; i++ {
		select {
		case <-ctx.Done():
			return false
		default:
		}

		e.mu.Lock()
		pc := e.pc()
		if e.breakpoints[pc] {
			e.breakpointHit = true
			e.hitAddress = pc
			e.mu.Unlock()
			return false
		}
		e.mu.Unlock()

		e.Step()
	}
	return true
}

// Start launches the dedicated execution context: a worker goroutine
// running the batched loop until StopAsync, a breakpoint, or an error.
func (e *Emulator) Start() {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.running = true
	e.doneCh = make(chan struct{})
	group, gctx := errgroup.WithContext(ctx)
	e.group = group
	e.mu.Unlock()

	if e.onStarted != nil {
		e.onStarted()
	}

	group.Go(func() error {
		defer close(e.doneCh)
		for {
			select {
			case <-gctx.Done():
				return nil
			default:
			}
			if !e.runBatch(gctx) {
				break
			}
			runtime.Gosched()
		}
		return nil
	})

	go func() {
		err := group.Wait()
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
		if err != nil && e.onError != nil {
			e.onError(err)
		}
		if e.onStopped != nil {
			e.onStopped()
		}
	}()
}

// StopAsync cancels the loop; it is observed after the current
// instruction completes, and this call blocks until the worker joins.
func (e *Emulator) StopAsync() {
	e.mu.Lock()
	cancel := e.cancel
	done := e.doneCh
	e.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	if done != nil {
		<-done
	}
}
