package xmodem

import (
	"encoding/binary"
	"fmt"
)

// Packet is one block as it appears on the wire.
type Packet struct {
	Head         byte
	ID           byte
	IDComplement byte
	Payload      [BlockSize]byte
	CRC          uint16
}

// NewPacket builds a well-formed block carrying payload.
// Payloads shorter than BlockSize are padded with CPMEOF.
func NewPacket(id byte, payload []byte) *Packet {
	p := &Packet{
		Head:         SOH,
		ID:           id,
		IDComplement: 0xFF - id,
	}
	n := copy(p.Payload[:], payload)
	for i := n; i < BlockSize; i++ {
		p.Payload[i] = CPMEOF
	}
	p.CRC = CRC16(p.Payload[:])
	return p
}

// MarshalBinary encodes the packet into its PacketSize wire form.
func (p *Packet) MarshalBinary() ([]byte, error) {
	buf := make([]byte, PacketSize)
	p.encode(buf)
	return buf, nil
}

func (p *Packet) encode(buf []byte) {
	buf[0] = p.Head
	buf[1] = p.ID
	buf[2] = p.IDComplement
	copy(buf[3:3+BlockSize], p.Payload[:])
	binary.BigEndian.PutUint16(buf[3+BlockSize:], p.CRC)
}

// UnmarshalBinary decodes exactly PacketSize bytes into p.
// It checks layout only; use Validate for sequence and CRC checks.
func (p *Packet) UnmarshalBinary(buf []byte) error {
	if len(buf) != PacketSize {
		return NewError(ErrInvalidPacket, fmt.Sprintf("packet is %d bytes, want %d", len(buf), PacketSize))
	}
	p.Head = buf[0]
	p.ID = buf[1]
	p.IDComplement = buf[2]
	copy(p.Payload[:], buf[3:3+BlockSize])
	p.CRC = binary.BigEndian.Uint16(buf[3+BlockSize:])
	return nil
}

// ParsePacket decodes a packet from its wire form.
func ParsePacket(buf []byte) (*Packet, error) {
	p := &Packet{}
	if err := p.UnmarshalBinary(buf); err != nil {
		return nil, err
	}
	return p, nil
}

// Validate checks the packet against the expected sequence number.
// On success the payload is returned unchanged; a packet is never
// partially accepted.
func (p *Packet) Validate(expected byte) ([]byte, error) {
	if p.ID != expected {
		return nil, NewError(ErrInvalidPacket, fmt.Sprintf("block %d, want %d", p.ID, expected))
	}
	if p.ID+p.IDComplement != 0xFF {
		return nil, NewError(ErrInvalidPacket, fmt.Sprintf("block %d complement %#02x", p.ID, p.IDComplement))
	}
	if crc := CRC16(p.Payload[:]); crc != p.CRC {
		return nil, NewError(ErrInvalidPacket, fmt.Sprintf("block %d bad CRC %04x, want %04x", p.ID, p.CRC, crc))
	}
	return p.Payload[:], nil
}
