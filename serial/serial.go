// Package serial opens and configures a serial line for an XMODEM transfer.
//
// It covers only what a receiver needs: raw mode, speed, character size,
// stop bits, parity and flow control. A *Port satisfies
// xmodem.ReaderWithTimeout.
package serial

import (
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"
)

// Parity selects the parity bit.
type Parity int

const (
	ParityNone Parity = iota
	ParityOdd
	ParityEven
)

// FlowControl selects hardware (RTS/CTS), software (XON/XOFF) or no flow
// control.
type FlowControl int

const (
	FlowNone FlowControl = iota
	FlowHardware
	FlowSoftware
)

// Mode describes the line settings.
type Mode struct {
	BaudRate    int
	DataBits    int
	StopBits    int
	Parity      Parity
	FlowControl FlowControl
}

// DefaultMode returns 115200 8N1 without flow control.
func DefaultMode() Mode {
	return Mode{
		BaudRate:    115200,
		DataBits:    8,
		StopBits:    1,
		Parity:      ParityNone,
		FlowControl: FlowNone,
	}
}

// ParseParity accepts "N", "O" or "E" (any case, or the full word).
// The empty string means no parity.
func ParseParity(s string) (Parity, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return ParityNone, nil
	case "o", "odd":
		return ParityOdd, nil
	case "e", "even":
		return ParityEven, nil
	default:
		return ParityNone, fmt.Errorf("serial: unknown parity %q", s)
	}
}

// ParseFlowControl accepts "N", "H" (RTS/CTS) or "S" (XON/XOFF).
// The empty string means no flow control.
func ParseFlowControl(s string) (FlowControl, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "n", "none":
		return FlowNone, nil
	case "h", "hardware", "rtscts":
		return FlowHardware, nil
	case "s", "software", "xonxoff":
		return FlowSoftware, nil
	default:
		return FlowNone, fmt.Errorf("serial: unknown flow control %q", s)
	}
}

// Port is an open serial line.
type Port struct {
	f    *os.File
	mode Mode
}

func (p *Port) Read(b []byte) (int, error) {
	return p.f.Read(b)
}

func (p *Port) Write(b []byte) (int, error) {
	return p.f.Write(b)
}

// SetReadDeadline bounds the next Read.
func (p *Port) SetReadDeadline(t time.Time) error {
	return p.f.SetReadDeadline(t)
}

// Mode returns the settings the port was opened with.
func (p *Port) Mode() Mode {
	return p.mode
}

// Name returns the device path.
func (p *Port) Name() string {
	return p.f.Name()
}

func (p *Port) Close() error {
	return p.f.Close()
}

// MakeRaw puts f into raw mode when it is a terminal, so control bytes
// reach the receiver untouched. The returned function restores the
// previous state; for non-terminals it does nothing.
func MakeRaw(f *os.File) (restore func() error, err error) {
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return func() error { return nil }, nil
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("serial: raw mode: %w", err)
	}
	return func() error { return term.Restore(fd, state) }, nil
}
