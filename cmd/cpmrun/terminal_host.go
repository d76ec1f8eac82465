package main

import (
	"fmt"
	"os"

	"golang.org/x/term"

	cpm "github.com/fjzeit/heh8080"
)

// terminalHost bridges the host's real terminal to the emulated
// ADM-3A console: raw-mode stdin bytes are enqueued as console input,
// and content_changed redraws repaint the grid to stdout.
type terminalHost struct {
	term  *cpm.Terminal
	state *term.State
	done  chan struct{}
}

func newTerminalHost(t *cpm.Terminal) *terminalHost {
	h := &terminalHost{term: t, done: make(chan struct{})}
	if state, err := term.MakeRaw(int(os.Stdin.Fd())); err == nil {
		h.state = state
	}
	return h
}

// PumpInput reads raw stdin bytes and enqueues them on the terminal's
// input queue, one at a time, until stdin closes. Ctrl-\ (0x1C) is
// reserved by this adapter to request a clean shutdown, since the raw
// terminal no longer delivers SIGQUIT.
func (h *terminalHost) PumpInput() {
	defer close(h.done)
	buf := make([]byte, 1)
	for {
		n, err := os.Stdin.Read(buf)
		if err != nil || n == 0 {
			return
		}
		if buf[0] == 0x1C {
			return
		}
		h.term.EnqueueInput(buf[0])
	}
}

// Render redraws the 80x24 grid to stdout using ANSI home-and-clear,
// the simplest faithful rendering of the ADM-3A's screen without
// pulling in a full terminal-UI dependency this module has no other
// use for.
func (h *terminalHost) Render() {
	fmt.Fprint(os.Stdout, "\x1b[H\x1b[2J")
	for y := 0; y < 24; y++ {
		for x := 0; x < 80; x++ {
			os.Stdout.Write([]byte{h.term.Cell(x, y)})
		}
		fmt.Fprint(os.Stdout, "\r\n")
	}
}

// Close restores the host terminal's original mode.
func (h *terminalHost) Close() {
	if h.state != nil {
		term.Restore(int(os.Stdin.Fd()), h.state)
	}
}
