// Package link carries target commands from the motion detector to the
// control loop.
package link

import (
	"encoding/binary"
	"errors"
	"fmt"
)

const (
	// Magic identifies target packets from the motion detector.
	Magic = 0x46c1
	// PacketSize is the size of one target packet: five 16-bit fields.
	PacketSize = 10
	// MaxCoord is the upper bound of the detector's x and y range.
	MaxCoord = 1000
)

var (
	ErrShortPacket = errors.New("link: short packet")
	ErrBadMagic    = errors.New("link: bad magic")
)

// Packet is the on-wire target record, five little-endian int16 fields in
// this order.
type Packet struct {
	Magic  uint16
	Level  int16 // signal strength
	X      int16 // 0-1000
	Y      int16 // 0-1000
	Motion int16 // non-zero if the frame triggered an image save
}

// Decode parses a packet. Trailing bytes beyond PacketSize are ignored.
func Decode(b []byte) (Packet, error) {
	if len(b) < PacketSize {
		return Packet{}, fmt.Errorf("%w: %d bytes", ErrShortPacket, len(b))
	}
	p := Packet{
		Magic:  binary.LittleEndian.Uint16(b[0:2]),
		Level:  int16(binary.LittleEndian.Uint16(b[2:4])),
		X:      int16(binary.LittleEndian.Uint16(b[4:6])),
		Y:      int16(binary.LittleEndian.Uint16(b[6:8])),
		Motion: int16(binary.LittleEndian.Uint16(b[8:10])),
	}
	if p.Magic != Magic {
		return Packet{}, fmt.Errorf("%w: %#04x", ErrBadMagic, p.Magic)
	}
	return p, nil
}

// Encode appends the wire form of p to dst.
func (p Packet) Encode(dst []byte) []byte {
	dst = binary.LittleEndian.AppendUint16(dst, p.Magic)
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.Level))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.X))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.Y))
	dst = binary.LittleEndian.AppendUint16(dst, uint16(p.Motion))
	return dst
}

// Command is one target report as seen by the control loop.
type Command struct {
	X      int  `json:"x"`
	Y      int  `json:"y"`
	Level  int  `json:"level"`
	Motion bool `json:"motion"`
	// Fire forces a shot at this position regardless of stability and cooldown.
	Fire bool `json:"fire"`
	// Delta means X and Y are offsets from the previous command.
	Delta bool `json:"delta"`
}

// Command converts a decoded packet. Packets never carry Fire or Delta.
func (p Packet) Command() Command {
	return Command{
		X:      int(p.X),
		Y:      int(p.Y),
		Level:  int(p.Level),
		Motion: p.Motion != 0,
	}
}

// InRange reports whether an absolute command lies inside the detector frame.
func InRange(x, y int) bool {
	return x >= 0 && x <= MaxCoord && y >= 0 && y <= MaxCoord
}
