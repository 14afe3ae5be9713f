package d200

import (
	"encoding/binary"
	"errors"
	"fmt"
)

// ErrProtocolMismatch is returned for reports that are not protocol frames.
// Callers skip such reports.
var ErrProtocolMismatch = errors.New("d200: protocol mismatch")

// Packet is one first-chunk report: header, command, total payload length and
// up to FirstChunkPayload bytes of payload.
type Packet struct {
	Command Command
	// Length is the total payload length of the whole transfer, which may
	// exceed len(Payload) for chunked transfers.
	Length  uint32
	Payload []byte
}

// NewPacket builds a single-report packet whose length field is len(payload).
func NewPacket(cmd Command, payload []byte) Packet {
	return Packet{Command: cmd, Length: uint32(len(payload)), Payload: payload}
}

// Encode returns the zero padded PacketSize report. Payload beyond
// FirstChunkPayload bytes is truncated.
func (p Packet) Encode() []byte {
	out := make([]byte, PacketSize)
	out[0] = Header0
	out[1] = Header1
	binary.BigEndian.PutUint16(out[2:4], uint16(p.Command))
	binary.LittleEndian.PutUint32(out[4:8], p.Length)
	copy(out[HeaderSize:], p.Payload)
	return out
}

// DecodePacket parses an inbound report. The payload slice aliases b.
func DecodePacket(b []byte) (Packet, error) {
	if len(b) < HeaderSize {
		return Packet{}, fmt.Errorf("%w: short report (%d bytes)", ErrProtocolMismatch, len(b))
	}
	if b[0] != Header0 || b[1] != Header1 {
		return Packet{}, fmt.Errorf("%w: header %02x%02x", ErrProtocolMismatch, b[0], b[1])
	}
	return Packet{
		Command: Command(binary.BigEndian.Uint16(b[2:4])),
		Length:  binary.LittleEndian.Uint32(b[4:8]),
		Payload: b[HeaderSize:],
	}, nil
}

// ButtonReport is the decoded body of a BUTTON / BUTTON_ALT packet.
type ButtonReport struct {
	// State is the device-side state byte. For the small-window key it is the
	// current window mode.
	State   byte
	Index   int
	Pressed bool
}

const (
	buttonStateOffset   = 0
	buttonIndexOffset   = 1
	buttonPressedOffset = 3
)

// ButtonReport extracts the button fields of a button packet.
func (p Packet) ButtonReport() (ButtonReport, error) {
	if !p.Command.IsButton() {
		return ButtonReport{}, fmt.Errorf("%w: %s is not a button report", ErrProtocolMismatch, p.Command)
	}
	if len(p.Payload) <= buttonPressedOffset {
		return ButtonReport{}, fmt.Errorf("%w: short button payload", ErrProtocolMismatch)
	}
	r := ButtonReport{
		State:   p.Payload[buttonStateOffset],
		Index:   int(p.Payload[buttonIndexOffset]),
		Pressed: p.Payload[buttonPressedOffset] == 0x01,
	}
	if r.Index >= ButtonCount {
		return ButtonReport{}, fmt.Errorf("%w: button index %d out of range", ErrProtocolMismatch, r.Index)
	}
	return r, nil
}
