// Package xmodem implements the receiving side of the XMODEM-CRC file
// transfer protocol.
//
// XMODEM is a half-duplex, lockstep protocol for moving a file over an
// unreliable character channel, usually a serial line. The receiver asks for
// CRC mode with 'C', then accepts fixed-size 128 byte blocks one at a time,
// answering each with ACK or NAK until the sender signals EOT.
//
// The package never touches hardware directly. The protocol engine drives a
// Channel supplied by the caller; StreamChannel adapts ordinary readers and
// writers (a serial port, stdio, an SSH session) to that interface.
package xmodem

import "fmt"

// Ward Christensen / CP/M parameters - Don't change these!
const (
	SOH     = 0x01 // Start of a 128 byte block
	STX     = 0x02 // Start of a 1K block (not accepted)
	EOT     = 0x04 // End of transmission
	ACK     = 0x06
	NAK     = 0x15
	CAN     = 0x18
	CPMEOF  = 0x1A // Padding used in the final block
	WANTCRC = 0x43 // send C not NAK to get crc not checksum
)

// Block layout: <SOH><blk #><255-blk #><--128 data bytes--><CRC hi><CRC lo>
const (
	// BlockSize is the payload length of a standard block
	BlockSize = 128

	// PacketSize is the full on-wire length of a block
	PacketSize = BlockSize + 5
)

// controlNames provides human-readable names for control bytes.
// Used for debugging and logging
var controlNames = map[byte]string{
	SOH:     "SOH",
	STX:     "STX",
	EOT:     "EOT",
	ACK:     "ACK",
	NAK:     "NAK",
	CAN:     "CAN",
	CPMEOF:  "SUB",
	WANTCRC: "C",
}

// ControlName returns the human-readable name for a control byte.
// Returns the hex value for bytes that are not protocol controls.
func ControlName(b byte) string {
	if name, ok := controlNames[b]; ok {
		return name
	}
	return fmt.Sprintf("0x%02x", b)
}
