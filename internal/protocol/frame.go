package protocol

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/KevinKickass/OpenUnitSync/internal/types"
)

// Frame layout:
//
//	[0..3]  target CAN id, reverse order
//	[4..5]  length (LE), counts bytes 4..4+length
//	[6]     command
//	[7]     sub-command
//	[8..]   data
//	[4+length..4+length+2] checksum (LE)
//
// The frame on the wire is length+6 bytes.
type Frame struct {
	Target     CanID
	Command    uint8
	SubCommand uint8
	Data       []byte
}

const (
	idSize       = 4
	lengthOffset = 4
	headerSize   = 8
	checksumSize = 2

	// frameOverhead is target id + checksum; total size = length + frameOverhead.
	frameOverhead = idSize + checksumSize

	// MaxDataSize keeps length inside its 16 bit field.
	MaxDataSize = 0xFFFF - (headerSize - lengthOffset)
)

// CanID is a 4-part dotted bus address in reading order ("1.2.3.4" is {1,2,3,4}).
type CanID [4]byte

// Wildcard addresses every unit.
var Wildcard = CanID{}

// ParseCanID parses a dotted quad like "1.2.3.4".
func ParseCanID(s string) (CanID, error) {
	var id CanID
	parts := strings.Split(strings.TrimSpace(s), ".")
	if len(parts) != 4 {
		return id, fmt.Errorf("invalid CAN id %q: want 4 dotted parts", s)
	}
	for i, p := range parts {
		v, err := strconv.ParseUint(p, 10, 8)
		if err != nil {
			return id, fmt.Errorf("invalid CAN id %q: %w", s, err)
		}
		id[i] = byte(v)
	}
	return id, nil
}

func (id CanID) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", id[0], id[1], id[2], id[3])
}

// put writes the id in wire order (reversed).
func (id CanID) put(b []byte) {
	for i := 0; i < idSize; i++ {
		b[i] = id[idSize-1-i]
	}
}

func canIDFromWire(b []byte) CanID {
	var id CanID
	for i := 0; i < idSize; i++ {
		id[i] = b[idSize-1-i]
	}
	return id
}

// Checksum is the 16 bit additive sum of b.
func Checksum(b []byte) uint16 {
	var sum uint16
	for _, v := range b {
		sum += uint16(v)
	}
	return sum
}

// Length is the value of the length field for this frame.
func (f *Frame) Length() int {
	return headerSize - lengthOffset + len(f.Data)
}

// Encode builds the complete datagram.
func (f *Frame) Encode() ([]byte, error) {
	if len(f.Data) > MaxDataSize {
		return nil, fmt.Errorf("frame data too large: %d bytes (max %d)", len(f.Data), MaxDataSize)
	}

	length := f.Length()
	frame := make([]byte, length+frameOverhead)

	f.Target.put(frame[0:idSize])
	binary.LittleEndian.PutUint16(frame[lengthOffset:lengthOffset+2], uint16(length))
	frame[6] = f.Command
	frame[7] = f.SubCommand
	copy(frame[headerSize:], f.Data)

	sum := Checksum(frame[lengthOffset : lengthOffset+length])
	binary.LittleEndian.PutUint16(frame[lengthOffset+length:], sum)

	return frame, nil
}

// DecodeFrame parses a received datagram and verifies length and checksum.
func DecodeFrame(data []byte) (*Frame, error) {
	if len(data) < headerSize+checksumSize {
		return nil, types.NewProtocolError("frame too short: %d bytes", len(data))
	}

	length := int(binary.LittleEndian.Uint16(data[lengthOffset : lengthOffset+2]))
	if length < headerSize-lengthOffset {
		return nil, types.NewProtocolError("invalid length field %d", length)
	}
	if len(data) < length+frameOverhead {
		return nil, types.NewProtocolError("truncated frame: length field %d, got %d bytes", length, len(data))
	}

	want := binary.LittleEndian.Uint16(data[lengthOffset+length:])
	if got := Checksum(data[lengthOffset : lengthOffset+length]); got != want {
		return nil, types.NewProtocolError("checksum mismatch: expected 0x%04X, got 0x%04X", want, got)
	}

	frame := &Frame{
		Target:     canIDFromWire(data[0:idSize]),
		Command:    data[6],
		SubCommand: data[7],
	}
	if length > headerSize-lengthOffset {
		frame.Data = append([]byte(nil), data[headerSize:lengthOffset+length]...)
	}

	return frame, nil
}
