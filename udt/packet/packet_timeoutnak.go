package packet

import "errors"

// rangeBit marks a loss-list entry's low word as the start of a range rather
// than a singleton loss. Unlike the control bit in a sequence word, this flag
// only ever appears inside a TimeoutNAK payload, so it reuses the high bit.
const rangeBit uint16 = 1 << 15

// LossRange is one run of missing sequence numbers. A singleton loss has
// Range false and only Low is meaningful; a run has Range true and spans
// [Low, High] inclusive.
type LossRange struct {
	Low   SequenceNumber
	High  SequenceNumber
	Range bool
}

// TimeoutNAKPacket carries the sender's entire loss list, sent when an
// earlier NAK went unanswered for too long.
type TimeoutNAKPacket struct {
	Ranges []LossRange
}

// NewTimeoutNAKPacket builds a TimeoutNAKPacket carrying ranges.
func NewTimeoutNAKPacket(ranges []LossRange) *TimeoutNAKPacket {
	return &TimeoutNAKPacket{Ranges: ranges}
}

// PacketType returns the packet type associated with this packet.
func (p *TimeoutNAKPacket) PacketType() Type { return TypeTimeoutNAK }

// IsControl reports that this is a control packet.
func (p *TimeoutNAKPacket) IsControl() bool { return true }

// WriteTo writes this packet to the provided buffer, returning the length written.
func (p *TimeoutNAKPacket) WriteTo(buf []byte) (int, error) {
	n, err := writeHeader(buf, TypeTimeoutNAK, 0, false)
	if err != nil {
		return 0, err
	}
	for _, r := range p.Ranges {
		need := 2
		if r.Range {
			need += 2
		}
		if len(buf)-n < need {
			return 0, errors.New("packet: buffer too small for timeout-nak")
		}
		low := uint16(r.Low)
		if r.Range {
			low |= rangeBit
		}
		endianness.PutUint16(buf[n:n+2], low)
		n += 2
		if r.Range {
			endianness.PutUint16(buf[n:n+2], uint16(r.High))
			n += 2
		}
	}
	return n, nil
}

func (p *TimeoutNAKPacket) readFrom(data []byte) error {
	p.Ranges = p.Ranges[:0]
	for len(data) > 0 {
		if len(data) < 2 {
			return errors.New("packet: truncated timeout-nak entry")
		}
		low := endianness.Uint16(data[0:2])
		isRange := low&rangeBit != 0
		entry := LossRange{Low: SequenceNumber(low &^ rangeBit), Range: isRange}
		data = data[2:]
		if isRange {
			if len(data) < 2 {
				return errors.New("packet: truncated timeout-nak range end")
			}
			entry.High = SequenceNumber(endianness.Uint16(data[0:2]))
			data = data[2:]
		}
		p.Ranges = append(p.Ranges, entry)
	}
	return nil
}
