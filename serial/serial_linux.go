//go:build linux

package serial

import (
	"fmt"
	"os"

	"golang.org/x/sys/unix"
)

// baudRates maps supported speeds to their termios flags.
var baudRates = map[int]uint32{
	2400:   unix.B2400,
	4800:   unix.B4800,
	9600:   unix.B9600,
	19200:  unix.B19200,
	38400:  unix.B38400,
	57600:  unix.B57600,
	115200: unix.B115200,
	230400: unix.B230400,
}

// baudFlag returns the termios flag for rate. Unknown rates fall back to
// 9600.
func baudFlag(rate int) uint32 {
	if b, ok := baudRates[rate]; ok {
		return b
	}
	return unix.B9600
}

func sizeFlag(bits int) uint32 {
	switch bits {
	case 5:
		return unix.CS5
	case 6:
		return unix.CS6
	case 7:
		return unix.CS7
	default:
		return unix.CS8
	}
}

// applyMode rewrites t for mode, starting from raw settings.
func applyMode(t *unix.Termios, mode Mode) {
	// cfmakeraw
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF | unix.IXANY
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN

	baud := baudFlag(mode.BaudRate)
	t.Cflag &^= unix.CBAUD | unix.CSIZE | unix.PARENB | unix.PARODD | unix.CSTOPB | unix.CRTSCTS
	t.Cflag |= baud | sizeFlag(mode.DataBits) | unix.CLOCAL | unix.CREAD
	t.Ispeed = baud
	t.Ospeed = baud

	switch mode.FlowControl {
	case FlowHardware:
		t.Cflag |= unix.CRTSCTS
	case FlowSoftware:
		t.Iflag |= unix.IXON | unix.IXOFF | unix.IXANY
	}

	switch mode.Parity {
	case ParityOdd:
		t.Cflag |= unix.PARENB | unix.PARODD
	case ParityEven:
		t.Cflag |= unix.PARENB
	}

	if mode.StopBits == 2 {
		t.Cflag |= unix.CSTOPB
	}

	t.Cc[unix.VMIN] = 1
	t.Cc[unix.VTIME] = 1
}

// Open opens the device at path and configures it for mode. Pending input
// is discarded.
func Open(path string, mode Mode) (*Port, error) {
	f, err := os.OpenFile(path, os.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	rc, err := f.SyscallConn()
	if err != nil {
		f.Close()
		return nil, err
	}

	var cfgErr error
	err = rc.Control(func(fd uintptr) {
		t, err := unix.IoctlGetTermios(int(fd), unix.TCGETS)
		if err != nil {
			cfgErr = fmt.Errorf("serial: get attributes: %w", err)
			return
		}
		applyMode(t, mode)
		if err := unix.IoctlSetInt(int(fd), unix.TCFLSH, unix.TCIFLUSH); err != nil {
			cfgErr = fmt.Errorf("serial: flush: %w", err)
			return
		}
		if err := unix.IoctlSetTermios(int(fd), unix.TCSETS, t); err != nil {
			cfgErr = fmt.Errorf("serial: set attributes: %w", err)
		}
	})
	if err == nil {
		err = cfgErr
	}
	if err != nil {
		f.Close()
		return nil, err
	}

	return &Port{f: f, mode: mode}, nil
}
