package packet

import "errors"

// AckPacket acknowledges previously-received data and, in its full form,
// describes link RTT and (optionally, once per SYN interval) receive speed
// and estimated bandwidth. A "light" ACK carries only the acknowledged
// sequence number and is distinguished purely by payload size, per the
// on-wire layout in the external-interfaces table.
type AckPacket struct {
	header // Seq carries the ACK sub-sequence number; unused (zero) for a light ACK

	Light bool

	Ack         SequenceNumber
	RTT         int32 // microseconds
	RTTVar      int32 // microseconds
	RecvBufSize int32 // packets

	HasLink      bool
	PktRecvSpeed int32 // packets/sec
	Bandwidth    int32 // packets/sec
}

// lightAckPayloadSize is the wire size of a light ACK's payload (just the
// acknowledged sequence number).
const lightAckPayloadSize = 2

// WriteTo writes this packet to the provided buffer, returning the length written.
func (p *AckPacket) WriteTo(buf []byte) (int, error) {
	seq := p.Seq
	if p.Light {
		seq = 0
	}
	n, err := writeHeader(buf, TypeAck, seq, true)
	if err != nil {
		return 0, err
	}

	if p.Light {
		if len(buf)-n < 2 {
			return 0, errors.New("packet: buffer too small for light ack")
		}
		endianness.PutUint16(buf[n:n+2], uint16(p.Ack))
		return n + 2, nil
	}

	need := 2 + 4 + 4 + 4
	if p.HasLink {
		need += 8
	}
	if len(buf)-n < need {
		return 0, errors.New("packet: buffer too small for ack")
	}
	endianness.PutUint16(buf[n:n+2], uint16(p.Ack))
	n += 2
	endianness.PutUint32(buf[n:n+4], uint32(p.RTT))
	n += 4
	endianness.PutUint32(buf[n:n+4], uint32(p.RTTVar))
	n += 4
	endianness.PutUint32(buf[n:n+4], uint32(p.RecvBufSize))
	n += 4
	if p.HasLink {
		endianness.PutUint32(buf[n:n+4], uint32(p.PktRecvSpeed))
		n += 4
		endianness.PutUint32(buf[n:n+4], uint32(p.Bandwidth))
		n += 4
	}
	return n, nil
}

func (p *AckPacket) readFrom(data []byte) error {
	seq, isControl, err := readSeqWord(data)
	if err != nil {
		return err
	}
	if !isControl {
		return errors.New("packet: ack packet missing control bit")
	}
	p.Seq = seq
	payload := data[2:]

	if len(payload) == lightAckPayloadSize {
		p.Light = true
		p.Ack = SequenceNumber(endianness.Uint16(payload[0:2]))
		return nil
	}

	if len(payload) < 14 {
		return errors.New("packet: ack payload too small")
	}
	p.Ack = SequenceNumber(endianness.Uint16(payload[0:2]))
	p.RTT = int32(endianness.Uint32(payload[2:6]))
	p.RTTVar = int32(endianness.Uint32(payload[6:10]))
	p.RecvBufSize = int32(endianness.Uint32(payload[10:14]))
	if len(payload) >= 22 {
		p.HasLink = true
		p.PktRecvSpeed = int32(endianness.Uint32(payload[14:18]))
		p.Bandwidth = int32(endianness.Uint32(payload[18:22]))
	}
	return nil
}

// PacketType returns the packet type associated with this packet.
func (p *AckPacket) PacketType() Type { return TypeAck }

// IsControl reports that this is a control packet.
func (p *AckPacket) IsControl() bool { return true }
