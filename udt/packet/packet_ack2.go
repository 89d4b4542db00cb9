package packet

import "errors"

// Ack2Packet acknowledges receipt of an Ack, echoing its sub-sequence number
// so the sender can pair it back up to measure RTT.
type Ack2Packet struct {
	header // Seq carries the echoed ACK sub-sequence number
}

// NewAck2Packet builds an Ack2Packet for the given ACK sub-sequence number.
func NewAck2Packet(subSeq SequenceNumber) *Ack2Packet {
	return &Ack2Packet{header: header{Seq: subSeq}}
}

// PacketType returns the packet type associated with this packet.
func (p *Ack2Packet) PacketType() Type { return TypeAck2 }

// IsControl reports that this is a control packet.
func (p *Ack2Packet) IsControl() bool { return true }

// WriteTo writes this packet to the provided buffer, returning the length written.
func (p *Ack2Packet) WriteTo(buf []byte) (int, error) {
	return writeHeader(buf, TypeAck2, p.Seq, true)
}

func (p *Ack2Packet) readFrom(data []byte) error {
	seq, isControl, err := readSeqWord(data)
	if err != nil {
		return err
	}
	if !isControl {
		return errors.New("packet: ack2 packet missing control bit")
	}
	p.Seq = seq
	return nil
}
