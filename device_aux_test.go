package cpm

import "testing"

type fakeAuxSink struct {
	in    []byte
	out   []byte
	eof   bool
	ready bool
}

func (s *fakeAuxSink) InputReady() bool { return s.ready }
func (s *fakeAuxSink) ReadByte() byte {
	b := s.in[0]
	s.in = s.in[1:]
	return b
}
func (s *fakeAuxSink) WriteByte(b byte) { s.out = append(s.out, b) }
func (s *fakeAuxSink) SignalEOF()       { s.eof = true }

func TestAuxDeviceStatusAndData(t *testing.T) {
	sink := &fakeAuxSink{in: []byte{0x42}, ready: true}
	dev := NewAuxDevice(sink)

	if got := dev.In(4); got != 0xFF {
		t.Fatalf("In(4) = 0x%02X, want 0xFF when ready", got)
	}
	if got := dev.In(5); got != 0x42 {
		t.Fatalf("In(5) = 0x%02X, want 0x42", got)
	}

	sink.ready = false
	if got := dev.In(4); got != 0x00 {
		t.Fatalf("In(4) = 0x%02X, want 0x00 when not ready", got)
	}

	dev.Out(5, 'A')
	if len(sink.out) != 1 || sink.out[0] != 'A' {
		t.Fatalf("aux output = %v, want [A]", sink.out)
	}
}

func TestAuxDeviceEOFSignal(t *testing.T) {
	sink := &fakeAuxSink{}
	dev := NewAuxDevice(sink)

	dev.Out(4, 0)
	if sink.eof {
		t.Fatalf("EOF signaled on zero write")
	}
	dev.Out(4, 1)
	if !sink.eof {
		t.Fatalf("expected EOF signaled on nonzero write")
	}
}
