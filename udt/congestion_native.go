package udt

import (
	"math"
	"math/rand"
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

// nativeCongestionControl implements the default slow-start + AIMD rate
// controller, modeled on UDT's native congestion control.
type nativeCongestionControl struct {
	rcInterval time.Duration // rate control interval, one SYN
	lastRCTime time.Time     // last rate-increase time

	slowStart bool
	lastAck   packet.SequenceNumber // last ACKed seq no, during slow start

	loss          bool                  // loss happened since the last rate increase
	lastDecSeq    packet.SequenceNumber // largest sent seq when sending rate last decreased
	lastDecPeriod time.Duration         // packetSendPeriod at the last decrease
	nakCount      int                   // NAKs seen in the current congestion period
	decRandom     int                   // random NAK-count threshold for the next decrease
	avgNAKNum     int                   // running average of NAKs per congestion period
	decCount      int                   // decreases so far in this congestion epoch

	cwnd         uint
	sendPeriod   time.Duration
	maxFlowWin   uint
	mss          uint
	rttEstimate  time.Duration
	recvRate     uint
	bandwidthEst uint
	currentSeq   packet.SequenceNumber
	ackIntervalN uint
}

func newNativeCongestionControl() *nativeCongestionControl {
	return &nativeCongestionControl{mss: packet.MaxPacketSize}
}

func (ncc *nativeCongestionControl) init(synInterval time.Duration, sendCurrentSeq packet.SequenceNumber) {
	ncc.rcInterval = synInterval
	ncc.lastRCTime = time.Now()

	ncc.slowStart = true
	ncc.lastAck = sendCurrentSeq
	ncc.currentSeq = sendCurrentSeq
	ncc.loss = false
	ncc.lastDecSeq = sendCurrentSeq.Decr()
	ncc.lastDecPeriod = time.Microsecond
	ncc.avgNAKNum = 0
	ncc.nakCount = 0
	ncc.decRandom = 1

	ncc.cwnd = 16
	ncc.sendPeriod = time.Microsecond
}

func (ncc *nativeCongestionControl) setRTT(d time.Duration)                           { ncc.rttEstimate = d }
func (ncc *nativeCongestionControl) setReceiveRate(r uint)                            { ncc.recvRate = r }
func (ncc *nativeCongestionControl) setBandwidth(b uint)                              { ncc.bandwidthEst = b }
func (ncc *nativeCongestionControl) setSendCurrentSequenceNumber(s packet.SequenceNumber) { ncc.currentSeq = s }
func (ncc *nativeCongestionControl) setMaxFlowWindow(w uint)                          { ncc.maxFlowWin = w }
func (ncc *nativeCongestionControl) setMSS(m uint)                                    { ncc.mss = m }

func (ncc *nativeCongestionControl) synInterval() time.Duration   { return ncc.rcInterval }
func (ncc *nativeCongestionControl) ackInterval() uint            { return ncc.ackIntervalN }
func (ncc *nativeCongestionControl) packetSendPeriod() time.Duration { return ncc.sendPeriod }
func (ncc *nativeCongestionControl) rto() time.Duration           { return 0 }
func (ncc *nativeCongestionControl) userDefinedRto() bool         { return false }

// onAck implements UDT's rate-control algorithm: grow the congestion window
// during slow start, then adjust the send period by an additive increase
// scaled to the gap between the estimated bandwidth and current rate. The
// ACK that ends slow start only sets the send period (from the receive rate,
// or from RTT and window when no rate is known). ACKs arriving within one
// rate-control interval of the previous adjustment (or of init) are ignored.
func (ncc *nativeCongestionControl) onAck(ack packet.SequenceNumber) {
	now := time.Now()
	if now.Sub(ncc.lastRCTime) < ncc.rcInterval {
		return
	}
	ncc.lastRCTime = now

	cWndSize := ncc.cwnd
	pktSendPeriod := ncc.sendPeriod
	recvRate, bandwidth := ncc.recvRate, ncc.bandwidthEst
	rtt := ncc.rttEstimate

	if ncc.slowStart {
		cWndSize = uint(int(cWndSize) + int(packet.Seqoff(ack, ncc.lastAck)))
		ncc.lastAck = ack

		if cWndSize > ncc.maxFlowWin {
			ncc.slowStart = false
			if recvRate > 0 {
				ncc.sendPeriod = time.Second / time.Duration(recvRate)
			} else {
				ncc.sendPeriod = (rtt + ncc.rcInterval) / time.Duration(cWndSize)
			}
			return
		} else {
			ncc.cwnd = cWndSize
			return
		}
	} else {
		cWndSize = uint((float64(recvRate)/float64(time.Second))*float64(rtt+ncc.rcInterval) + 16)
		ncc.cwnd = cWndSize
	}

	if ncc.loss {
		ncc.loss = false
		ncc.cwnd = cWndSize
		return
	}

	// The number of packets to add this SYN period is:
	//   inc = 0.01                                   if B <= C
	//   inc = max(10^ceil(log10((B-C)*PS*8)) * Beta/PS, 0.01)  otherwise
	// where B is estimated link capacity, C current sending speed (both
	// packets/sec), PS the packet size in bytes, and Beta = 0.0000015.
	const minInc = 0.01
	var inc float64

	if pktSendPeriod == 0 {
		pktSendPeriod = 10 * time.Nanosecond
	}

	b := time.Duration(bandwidth) - time.Second/pktSendPeriod
	bandwidth9 := time.Duration(bandwidth / 9)
	if pktSendPeriod > ncc.lastDecPeriod && bandwidth9 < b {
		b = bandwidth9
	}
	if b <= 0 {
		inc = minInc
	} else {
		inc = math.Pow10(int(math.Ceil(math.Log10(float64(b)*float64(ncc.mss)*8.0)))) * 0.0000015 / float64(ncc.mss)
		if inc < minInc {
			inc = minInc
		}
	}

	ncc.sendPeriod = time.Duration(float64(pktSendPeriod*ncc.rcInterval) / (float64(pktSendPeriod)*inc + float64(ncc.rcInterval)))
}

// onLoss implements UDT's multiplicative-decrease half of AIMD: the first
// loss in a congestion period always backs off by 1.125x; subsequent
// losses in the same period back off only with randomized throttling, so
// concurrent flows don't decrease in lockstep.
func (ncc *nativeCongestionControl) onLoss(start, end packet.SequenceNumber) {
	if ncc.slowStart {
		ncc.slowStart = false
		if ncc.recvRate > 0 {
			ncc.sendPeriod = time.Second / time.Duration(ncc.recvRate)
			ncc.loss = true
			return
		}
		ncc.sendPeriod = time.Duration(float64(time.Microsecond) * float64(ncc.cwnd) / float64(ncc.rttEstimate+ncc.rcInterval))
	}

	ncc.loss = true
	pktSendPeriod := ncc.sendPeriod

	if packet.Seqoff(start, ncc.lastDecSeq) > 0 {
		ncc.lastDecPeriod = pktSendPeriod
		ncc.sendPeriod = pktSendPeriod * 1125 / 1000

		ncc.avgNAKNum = int(math.Ceil(float64(ncc.avgNAKNum)*0.875 + float64(ncc.nakCount)*0.125))
		ncc.nakCount = 1
		ncc.decCount = 1
		ncc.lastDecSeq = ncc.currentSeq

		r := float64(rand.Uint32()) / math.MaxUint32
		ncc.decRandom = int(math.Ceil(float64(ncc.avgNAKNum) * r))
		if ncc.decRandom < 1 {
			ncc.decRandom = 1
		}
		return
	}

	if ncc.decCount >= 5 {
		ncc.decCount++
		return
	}
	ncc.decCount++
	ncc.nakCount++
	if ncc.decRandom != 0 && ncc.nakCount%ncc.decRandom != 0 {
		return
	}
	// 0.875^5 ~= 0.51: rate is never cut by more than half within one
	// congestion period.
	ncc.sendPeriod = pktSendPeriod * 1125 / 1000
	ncc.lastDecSeq = ncc.currentSeq
}

func (ncc *nativeCongestionControl) onTimeout() {
	if !ncc.slowStart {
		return
	}
	ncc.slowStart = false
	if ncc.recvRate > 0 {
		ncc.sendPeriod = time.Second / time.Duration(ncc.recvRate)
		return
	}
	ncc.sendPeriod = time.Duration(float64(time.Microsecond) * float64(ncc.cwnd) / float64(ncc.rttEstimate+ncc.rcInterval))
}
