package packet

import (
	"errors"
	"fmt"
)

// Type identifies the kind of packet a header describes. It is encoded on the
// wire with a prefix-free, variable-length tag (see numBytesForType) so that
// the most common types cost a single byte.
type Type uint16

const (
	// TypeData carries application payload bytes and is sequence-numbered.
	TypeData Type = iota
	// TypeAck acknowledges received data, in full or "light" form.
	TypeAck
	// TypeAck2 acknowledges receipt of an Ack, for RTT measurement.
	TypeAck2
	// TypeNak reports a gap in the received sequence space.
	TypeNak
	// TypeTimeoutNAK carries the entire loss list after a NAK went unanswered.
	TypeTimeoutNAK
	// TypeKeepalive keeps a connection alive absent data traffic.
	TypeKeepalive
	// TypeHandshake negotiates a new connection. Out of scope for this core;
	// kept as a reserved type so the codec table stays total.
	TypeHandshake
)

// oneByteTypes lists the types cheap enough to encode in a single byte. Data
// and Ack dominate real traffic, so they lead the table.
var oneByteTypes = [...]Type{TypeData, TypeAck, TypeAck2, TypeNak}

// typeName names each type for logging.
var typeName = map[Type]string{
	TypeData:       "data",
	TypeAck:        "ack",
	TypeAck2:       "ack2",
	TypeNak:        "nak",
	TypeTimeoutNAK: "timeout-nak",
	TypeKeepalive:  "keep-alive",
	TypeHandshake:  "handshake",
}

// TypeName returns a human-readable name for t, or a numeric fallback.
func TypeName(t Type) string {
	if n, ok := typeName[t]; ok {
		return n
	}
	return fmt.Sprintf("type-%d", int(t))
}

// seqNumberedTypes lists types whose header carries a sequence/sub-sequence
// word: Data, Ack and Ack2. Nak, TimeoutNAK and Keepalive carry none.
var seqNumberedTypes = map[Type]bool{
	TypeData:      true,
	TypeAck:       true,
	TypeAck2:      true,
	TypeKeepalive: false,
}

// IsSequenceNumbered reports whether t's header carries a 16-bit
// sequence/control word after the version byte.
func IsSequenceNumbered(t Type) bool {
	return seqNumberedTypes[t]
}

func oneByteIndex(t Type) int {
	for i, c := range oneByteTypes {
		if c == t {
			return i
		}
	}
	return -1
}

// numBytesForType returns the number of header bytes the arithmetic coding
// spends on t: 1 for the common types, 2 for everything else.
func numBytesForType(t Type) int {
	if oneByteIndex(t) >= 0 {
		return 1
	}
	return 2
}

// packType writes t's arithmetic-coded tag into buf, returning the number of
// bytes written. A leading high bit of 0 means "7-bit type in this byte"; a
// leading high bit of 1 means "the low 15 bits across these two bytes are the
// type", so the table stays prefix-free; the two-byte form covers type
// values below 0x8000.
func packType(t Type, buf []byte) (int, error) {
	if len(buf) == 0 {
		return 0, errors.New("packet: buffer too small for type tag")
	}
	if idx := oneByteIndex(t); idx >= 0 {
		buf[0] = byte(idx)
		return 1, nil
	}
	if len(buf) < 2 {
		return 0, errors.New("packet: buffer too small for type tag")
	}
	v := uint16(t) | 0x8000
	buf[0] = byte(v >> 8)
	buf[1] = byte(v)
	return 2, nil
}

// readType decodes an arithmetic-coded type tag from the front of buf,
// returning the type and the number of bytes consumed.
func readType(buf []byte) (Type, int, error) {
	if len(buf) == 0 {
		return 0, 0, errors.New("packet: empty buffer reading type")
	}
	if buf[0]&0x80 == 0 {
		idx := int(buf[0])
		if idx >= len(oneByteTypes) {
			return 0, 0, fmt.Errorf("packet: unknown one-byte type index %d", idx)
		}
		return oneByteTypes[idx], 1, nil
	}
	if len(buf) < 2 {
		return 0, 0, errors.New("packet: truncated two-byte type tag")
	}
	v := (uint16(buf[0])<<8 | uint16(buf[1])) &^ 0x8000
	return Type(v), 2, nil
}
