package packet

import "errors"

// DataPacket carries application payload bytes. Its header's control bit is
// always clear; the sequence word carries the data sequence number.
type DataPacket struct {
	header
	Data []byte
}

// NewDataPacket builds a DataPacket for seq carrying data. data is not
// copied; callers must not mutate it afterwards.
func NewDataPacket(seq SequenceNumber, data []byte) *DataPacket {
	return &DataPacket{header: header{Seq: seq}, Data: data}
}

// PacketType returns the packet type associated with this packet.
func (p *DataPacket) PacketType() Type { return TypeData }

// WriteTo writes this packet to the provided buffer, returning the length written.
func (p *DataPacket) WriteTo(buf []byte) (int, error) {
	n, err := writeHeader(buf, TypeData, p.Seq, false)
	if err != nil {
		return 0, err
	}
	if len(buf)-n < len(p.Data) {
		return 0, errors.New("packet: buffer too small for data payload")
	}
	copy(buf[n:], p.Data)
	return n + len(p.Data), nil
}

func (p *DataPacket) readFrom(data []byte) error {
	seq, isControl, err := readSeqWord(data)
	if err != nil {
		return err
	}
	if isControl {
		return errors.New("packet: data packet has control bit set")
	}
	p.Seq = seq
	p.Data = append([]byte(nil), data[2:]...)
	return nil
}
