package udt

import (
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

// congestionControl is a pluggable policy reacting to ACK/loss events and
// steering the pacer. A Connection holds exactly one, selected at
// construction time, and pushes state into it rather than the policy
// reaching back into the Connection.
type congestionControl interface {
	// init is called once, at the start of a connection, with the SYN
	// interval and the first outbound sequence number.
	init(synInterval time.Duration, sendCurrentSeq packet.SequenceNumber)

	// setRTT feeds the current smoothed round-trip time estimate.
	setRTT(time.Duration)
	// setReceiveRate feeds the receiver's estimated arrival rate, packets/sec.
	setReceiveRate(uint)
	// setBandwidth feeds the receiver's estimated link bandwidth, packets/sec.
	setBandwidth(uint)
	// setSendCurrentSequenceNumber feeds the most recently assigned
	// outbound sequence number.
	setSendCurrentSequenceNumber(packet.SequenceNumber)
	// setMaxFlowWindow feeds the peer's advertised receive window, packets.
	setMaxFlowWindow(uint)
	// setMSS feeds the maximum segment size in bytes.
	setMSS(uint)

	// onAck is called when an ACK packet advances the acknowledged sequence.
	onAck(packet.SequenceNumber)
	// onLoss is called when a NAK or TimeoutNAK reports a gap.
	onLoss(start, end packet.SequenceNumber)
	// onTimeout is called when the retransmission timer fires.
	onTimeout()

	// synInterval is the periodicity of the sync tick.
	synInterval() time.Duration
	// ackInterval is the packet count threshold that triggers an
	// intermediate ACK; 0 disables intermediate ACKs.
	ackInterval() uint
	// packetSendPeriod is the pacer's current inter-packet interval.
	packetSendPeriod() time.Duration

	// rto returns a fixed retransmission timeout, overriding the
	// RTT-based estimate; userDefinedRto reports whether rto is in effect.
	rto() time.Duration
	userDefinedRto() bool
}
