package xmodem

import "time"

// Channel is everything the receive engine needs from the outside world:
// a byte-oriented line and a sink for accepted payloads.
//
// Implementations decide how bytes move; the engine only requires that
// ReadByte blocks until a byte arrives or the line fails, and that
// Available never blocks longer than timeout.
type Channel interface {
	// ReadByte blocks until one byte is available or the channel fails.
	ReadByte() (byte, error)

	// Available reports whether at least one byte can be read, waiting
	// at most timeout. A byte observed here is not consumed.
	Available(timeout time.Duration) (bool, error)

	// WriteByte sends exactly one byte to the peer.
	WriteByte(b byte) error

	// Delay suspends the caller for d. Used for handshake backoff only.
	Delay(d time.Duration)

	// WritePayload persists one accepted block and returns the number of
	// bytes actually written.
	WritePayload(p []byte) (int, error)
}
