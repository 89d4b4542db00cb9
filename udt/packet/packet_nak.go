package packet

import "errors"

// NakPacket reports a single gap in the received sequence space: either one
// missing sequence number (Start alone) or a contiguous missing range
// (Start through End, inclusive).
type NakPacket struct {
	Start SequenceNumber
	End   SequenceNumber
	Range bool
}

// NewNakPacket builds a NakPacket for a single missing sequence number.
func NewNakPacket(seq SequenceNumber) *NakPacket {
	return &NakPacket{Start: seq}
}

// NewNakRangePacket builds a NakPacket for a missing range [start, end].
func NewNakRangePacket(start, end SequenceNumber) *NakPacket {
	return &NakPacket{Start: start, End: end, Range: true}
}

// PacketType returns the packet type associated with this packet.
func (p *NakPacket) PacketType() Type { return TypeNak }

// IsControl reports that this is a control packet.
func (p *NakPacket) IsControl() bool { return true }

// WriteTo writes this packet to the provided buffer, returning the length written.
func (p *NakPacket) WriteTo(buf []byte) (int, error) {
	n, err := writeHeader(buf, TypeNak, 0, false)
	if err != nil {
		return 0, err
	}
	need := 2
	if p.Range {
		need += 2
	}
	if len(buf)-n < need {
		return 0, errors.New("packet: buffer too small for nak")
	}
	endianness.PutUint16(buf[n:n+2], uint16(p.Start))
	n += 2
	if p.Range {
		endianness.PutUint16(buf[n:n+2], uint16(p.End))
		n += 2
	}
	return n, nil
}

func (p *NakPacket) readFrom(data []byte) error {
	if len(data) < 2 {
		return errors.New("packet: nak payload too small")
	}
	p.Start = SequenceNumber(endianness.Uint16(data[0:2]))
	if len(data) >= 4 {
		p.Range = true
		p.End = SequenceNumber(endianness.Uint16(data[2:4]))
	}
	return nil
}
