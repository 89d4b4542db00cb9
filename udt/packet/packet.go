// Package packet implements the wire encoding for this transport: a
// variable-length arithmetic-coded type tag, a version byte, and (for
// sequence-numbered types) a 16-bit little-endian sequence/control word.
package packet

import (
	"encoding/binary"
	"errors"
	"fmt"
)

var endianness = binary.LittleEndian

// MaxPacketSize bounds the size of an encoded packet so it fits comfortably
// under typical path MTUs.
const MaxPacketSize = 1400

// Version is the per-type wire-format version byte. Bumping it allows a
// packet type's payload layout to evolve independently of the others.
type Version uint8

// versionForType returns the current wire version for t. Every type starts
// at version 0; a future incompatible change to one type's payload bumps
// only that type's entry here.
func versionForType(t Type) Version {
	return 0
}

// header is embedded by every concrete packet type and carries the fields
// common to the wire header.
type header struct {
	Seq SequenceNumber
}

// SequenceNumber returns the header's sequence (or sub-sequence) field.
func (h header) SequenceNumber() SequenceNumber { return h.Seq }

// SetSequenceNumber sets the header's sequence (or sub-sequence) field.
func (h *header) SetSequenceNumber(s SequenceNumber) { h.Seq = s }

// writeHeader writes the arithmetic-coded type, version byte, and (if t is
// sequence-numbered) the sequence/control word into buf, returning the
// number of header bytes written.
func writeHeader(buf []byte, t Type, seq SequenceNumber, isControl bool) (int, error) {
	n, err := packType(t, buf)
	if err != nil {
		return 0, err
	}
	if len(buf) < n+1 {
		return 0, errors.New("packet: buffer too small for version byte")
	}
	buf[n] = byte(versionForType(t))
	n++
	if IsSequenceNumbered(t) {
		if err := writeSeqWord(buf[n:], seq, isControl); err != nil {
			return 0, err
		}
		n += 2
	}
	return n, nil
}

// localHeaderSize returns the total header size in bytes for a packet of the
// given type: the arithmetic-coded type tag, the version byte, and (for
// sequence-numbered types) the 16-bit sequence/control word.
func localHeaderSize(t Type) int {
	n := numBytesForType(t) + 1
	if IsSequenceNumbered(t) {
		n += 2
	}
	return n
}

// MaxPayloadSize returns the largest payload a packet of type t can carry
// within MaxPacketSize.
func MaxPayloadSize(t Type) int {
	return MaxPacketSize - localHeaderSize(t)
}

func writeSeqWord(buf []byte, seq SequenceNumber, isControl bool) error {
	if len(buf) < 2 {
		return errors.New("packet: buffer too small for sequence word")
	}
	w := uint16(seq) & seqMask
	if isControl {
		w |= ControlBit
	}
	endianness.PutUint16(buf[0:2], w)
	return nil
}

func readSeqWord(buf []byte) (seq SequenceNumber, isControl bool, err error) {
	if len(buf) < 2 {
		return 0, false, errors.New("packet: buffer too small for sequence word")
	}
	w := endianness.Uint16(buf[0:2])
	return SequenceNumber(w & seqMask), w&ControlBit != 0, nil
}

// Packet is any decodable/encodable unit on the wire, data or control.
type Packet interface {
	// PacketType returns this packet's wire type.
	PacketType() Type
	// WriteTo encodes the packet into buf, returning the number of bytes
	// written or an error if buf is too small.
	WriteTo(buf []byte) (int, error)
	// readFrom decodes the packet's fields (header already consumed) from
	// the remainder of data.
	readFrom(data []byte) error
}

// SeqNumbered is implemented by packet types that carry a sequence or
// sub-sequence word in the header.
type SeqNumbered interface {
	Packet
	SequenceNumber() SequenceNumber
	SetSequenceNumber(SequenceNumber)
}

// ControlPacket is any Packet whose header sets the control bit.
type ControlPacket interface {
	Packet
	IsControl() bool
}

// DecodePacket reads the header from data and dispatches to the concrete
// packet type's readFrom, returning the decoded packet.
func DecodePacket(data []byte) (Packet, error) {
	t, n, err := readType(data)
	if err != nil {
		return nil, fmt.Errorf("packet: decode header: %w", err)
	}
	if len(data) <= n {
		return nil, errors.New("packet: truncated version byte")
	}
	rest := data[n+1:]

	var p Packet
	switch t {
	case TypeData:
		p = &DataPacket{}
	case TypeAck:
		p = &AckPacket{}
	case TypeAck2:
		p = &Ack2Packet{}
	case TypeNak:
		p = &NakPacket{}
	case TypeTimeoutNAK:
		p = &TimeoutNAKPacket{}
	case TypeKeepalive:
		p = &KeepAlivePacket{}
	default:
		return nil, fmt.Errorf("packet: unknown packet type %d", t)
	}
	if err := p.readFrom(rest); err != nil {
		return nil, fmt.Errorf("packet: decode %s payload: %w", TypeName(t), err)
	}
	return p, nil
}
