package udt

import (
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/kunalgosar/hifi/udt/packet"
)

// sentACKEntry records an ACK this side sent, keyed by its sub-sequence
// number, so a later ACK2 can be matched back to it for an RTT sample.
type sentACKEntry struct {
	ack    packet.SequenceNumber
	sentAt time.Time
}

// Connection is one reliable, ordered, congestion-controlled stream to a
// single peer. It owns a lazily-created sendQueue (nothing is allocated for
// the send path until the first reliable write), a receiveWindow for
// bandwidth estimation, and a lossList tracking gaps in what it has received.
//
// A single mutex guards all mutable state; atomicLastReceivedACK mirrors
// lastReceivedACK outside the lock so LastReceivedACK can report the latest
// value without contending with the control path.
type Connection struct {
	mu sync.Mutex

	peer     string
	writeOut func([]byte) error
	cc       congestionControl

	sendQueue     *sendQueue
	receiveWindow *receiveWindow
	lossList      lossList
	sentACKs      map[packet.SequenceNumber]sentACKEntry

	rtt            time.Duration
	rttVariance    time.Duration
	flowWindowSize uint
	maxFlowWindow  uint
	mss            uint

	lastReceivedSequenceNumber packet.SequenceNumber
	haveReceived               bool

	lastSentACK                 packet.SequenceNumber
	lastReceivedACK             packet.SequenceNumber
	lastReceivedAcknowledgedACK packet.SequenceNumber
	lastSentACK2                packet.SequenceNumber
	currentACKSubSequenceNumber packet.SequenceNumber
	packetsSinceACK             uint

	lastACKSendTime  time.Time
	lastACK2SendTime time.Time
	lastNAKTime      time.Time

	synInterval    time.Duration
	nakInterval    time.Duration
	minNAKInterval time.Duration

	deliveryRate uint
	bandwidth    uint

	atomicLastReceivedACK atomicUint32
	atomicRTT             atomicDuration

	stats *Stats
	log   logrus.FieldLogger

	closed bool
}

// NewConnection builds a Connection to peer, writing encoded datagrams via
// writeOut. cc is the congestion control policy for this connection; it is
// initialized here with the connection's starting sequence number.
func NewConnection(peer string, writeOut func([]byte) error, cc congestionControl, maxFlowWindow uint, log logrus.FieldLogger, stats *Stats) *Connection {
	if log == nil {
		log = logrus.StandardLogger()
	}
	if stats == nil {
		stats = NewStats()
	}

	c := &Connection{
		peer:          peer,
		writeOut:      writeOut,
		cc:            cc,
		receiveWindow: newReceiveWindow(),
		sentACKs:      make(map[packet.SequenceNumber]sentACKEntry),
		maxFlowWindow: maxFlowWindow,
		mss:           packet.MaxPacketSize,
		log:           log.WithFields(logrus.Fields{"component": "connection", "peer": peer}),
		stats:         stats,
	}

	cc.init(10*time.Millisecond, 0)
	cc.setMaxFlowWindow(maxFlowWindow)
	cc.setMSS(c.mss)

	c.synInterval = cc.synInterval()
	c.nakInterval = c.synInterval
	c.minNAKInterval = c.synInterval
	c.rtt = 10 * c.synInterval
	c.rttVariance = c.rtt / 2
	c.flowWindowSize = maxFlowWindow
	// No ACK has arrived yet; park lastReceivedACK one behind sequence 0 so
	// a legitimate ack of 0 is not mistaken for a stale repeat.
	c.lastReceivedACK = packet.SequenceNumber(0).Decr()

	return c
}

// Send queues data for reliable, ordered delivery to the peer.
func (c *Connection) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errConnectionClosed
	}
	if c.sendQueue == nil {
		c.createSendQueueLocked(0)
	}
	c.sendQueue.queuePacket(data)
	c.stats.packetsQueued.Inc()
	return nil
}

func (c *Connection) createSendQueueLocked(initSeq packet.SequenceNumber) {
	c.cc.setSendCurrentSequenceNumber(initSeq)
	period := c.cc.packetSendPeriod()
	c.sendQueue = newSendQueue(c.writeControl, initSeq, period)
	c.sendQueue.onRetransmit = c.stats.retransmits.Inc
}

// writeControl encodes p and hands it to the underlying transport. Used both
// as the sendQueue's transmit function and for control packets sent before
// any sendQueue exists.
func (c *Connection) writeControl(p packet.Packet) error {
	buf := make([]byte, packet.MaxPacketSize)
	n, err := p.WriteTo(buf)
	if err != nil {
		return err
	}
	if err := c.writeOut(buf[:n]); err != nil {
		return err
	}
	c.stats.packetsSent.Inc()
	c.stats.bytesSent.Add(float64(n))
	return nil
}

func (c *Connection) sendControlLocked(p packet.Packet) error {
	if c.sendQueue != nil {
		return c.sendQueue.sendPacket(p)
	}
	return c.writeControl(p)
}

// Sync runs the connection's periodic tick: offer a full ACK (sendACKLocked
// skips it when it would repeat the last ACK and that one was already
// confirmed by an ACK2 or was sent less than estimatedTimeout ago) and, if
// packets remain missing past the adaptive nakInterval, re-announce the full
// loss list.
func (c *Connection) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.sendACKLocked(true)
	if !c.lossList.isEmpty() && time.Since(c.lastNAKTime) >= c.nakInterval {
		c.sendTimeoutNAKLocked()
	}
}

// nextACK reports the sequence number this side is ready to acknowledge: one
// before the first gap in the loss list, or the last in-order sequence
// received if there is no gap.
func (c *Connection) nextACK() packet.SequenceNumber {
	if first, ok := c.lossList.firstSequenceNumber(); ok {
		return first.Decr()
	}
	return c.lastReceivedSequenceNumber
}

func (c *Connection) sendACKLocked(causedBySync bool) {
	next := c.nextACK()
	if next.Less(c.lastSentACK) {
		c.log.WithError(ErrProtocolViolation).
			WithFields(logrus.Fields{"next": next, "lastSent": c.lastSentACK}).
			Error("computed ack below last sent ack")
		return
	}
	if next == c.lastSentACK {
		if next.LessEq(c.lastReceivedAcknowledgedACK) {
			return
		}
		if time.Since(c.lastACKSendTime) < c.estimatedTimeoutLocked() {
			return
		}
	}

	c.lastSentACK = next
	subSeq := c.currentACKSubSequenceNumber
	c.currentACKSubSequenceNumber = c.currentACKSubSequenceNumber.Incr()

	ack := &packet.AckPacket{
		Ack:         next,
		RTT:         int32(c.rtt.Microseconds()),
		RTTVar:      int32(c.rttVariance.Microseconds()),
		RecvBufSize: int32(c.flowWindowSize),
	}
	ack.SetSequenceNumber(subSeq)

	if causedBySync {
		ack.HasLink = true
		ack.PktRecvSpeed = int32(c.receiveWindow.packetReceiveSpeed())
		ack.Bandwidth = int32(c.receiveWindow.estimatedBandwidth())
		c.lastACKSendTime = time.Now()
	}

	if err := c.sendControlLocked(ack); err != nil {
		c.log.WithError(err).Warn("send ack failed")
		return
	}
	c.sentACKs[subSeq] = sentACKEntry{ack: next, sentAt: time.Now()}
	c.packetsSinceACK = 0
	c.stats.acksSent.Inc()
}

// sendLightACK sends an abbreviated ACK carrying only the acknowledged
// sequence number, for use between full ACKs when nothing new has arrived
// since the last one.
func (c *Connection) sendLightACK() {
	c.mu.Lock()
	defer c.mu.Unlock()
	next := c.nextACK()
	if next == c.lastReceivedAcknowledgedACK {
		return
	}
	ack := &packet.AckPacket{Light: true, Ack: next}
	if err := c.sendControlLocked(ack); err != nil {
		c.log.WithError(err).Warn("send light ack failed")
		return
	}
	c.stats.acksSent.Inc()
}

func (c *Connection) sendACK2Locked(subSeq packet.SequenceNumber) {
	ack2 := packet.NewAck2Packet(subSeq)
	if err := c.sendControlLocked(ack2); err != nil {
		c.log.WithError(err).Warn("send ack2 failed")
		return
	}
	c.lastSentACK2 = subSeq
}

func (c *Connection) sendNAKLocked(triggeringSeq packet.SequenceNumber) {
	start := c.lastReceivedSequenceNumber.Incr()
	end := triggeringSeq.Decr()
	var nak *packet.NakPacket
	if start == end {
		nak = packet.NewNakPacket(start)
	} else {
		nak = packet.NewNakRangePacket(start, end)
	}
	if err := c.sendControlLocked(nak); err != nil {
		c.log.WithError(err).Warn("send nak failed")
		return
	}
	c.lastNAKTime = time.Now()
	c.stats.naksSent.Inc()
}

func (c *Connection) sendTimeoutNAKLocked() {
	pkt := c.lossList.write()
	if err := c.sendControlLocked(pkt); err != nil {
		c.log.WithError(err).Warn("send timeout-nak failed")
		return
	}
	c.lastNAKTime = time.Now()
	c.stats.timeoutNaksSent.Inc()
}

// processReceivedSequenceNumber records a received data packet and hands its
// application payload to app. Payloads are handed over in arrival order and
// are not reordered by sequence number: a packet that fills a gap reaches app
// after the later packets that arrived before it. Each sequence number
// reaches app at most once; duplicates are dropped.
func (c *Connection) processReceivedSequenceNumber(p *packet.DataPacket, now time.Time, app func([]byte)) {
	c.mu.Lock()
	c.stats.packetsRecv.Inc()
	seq := p.SequenceNumber()
	c.receiveWindow.onPacketArrival(seq, now)

	if !c.haveReceived {
		c.haveReceived = true
		c.lastReceivedSequenceNumber = seq
		c.lastSentACK = seq
		c.lastReceivedAcknowledgedACK = seq
		c.mu.Unlock()
		app(p.Data)
		return
	}

	switch {
	case seq.Greater(c.lastReceivedSequenceNumber):
		gapStart := c.lastReceivedSequenceNumber.Incr()
		if gapStart != seq {
			c.lossList.appendRange(gapStart, seq)
			c.sendNAKLocked(seq)
			c.updateNAKIntervalLocked()
		}
		c.lastReceivedSequenceNumber = seq
	case seq == c.lastReceivedSequenceNumber:
		// duplicate of the most recent in-order packet; ignore
		c.mu.Unlock()
		return
	default:
		missing := false
		for _, iv := range c.lossList.intervals {
			if seq.GreaterEq(iv.low) && seq.Less(iv.high) {
				missing = true
				break
			}
		}
		if !missing {
			c.mu.Unlock()
			return // stale duplicate, not a gap the loss list is waiting on
		}
		c.lossList.remove(seq)
	}

	c.packetsSinceACK++
	c.stats.lossListLength.Set(float64(c.lossList.length()))
	if n := c.cc.ackInterval(); n > 0 && c.packetsSinceACK >= n {
		c.sendACKLocked(false)
	}
	c.mu.Unlock()
	app(p.Data)
}

// ProcessControl dispatches a received control packet to the appropriate
// handler.
func (c *Connection) ProcessControl(p packet.Packet, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stats.packetsRecv.Inc()
	switch v := p.(type) {
	case *packet.AckPacket:
		if v.Light {
			c.processLightACKLocked(v)
		} else {
			c.processACKLocked(v, now)
		}
	case *packet.Ack2Packet:
		c.processACK2Locked(v, now)
	case *packet.NakPacket:
		c.processNAKLocked(v)
	case *packet.TimeoutNAKPacket:
		c.processTimeoutNAKLocked(v)
	}
}

func (c *Connection) processACKLocked(p *packet.AckPacket, now time.Time) {
	if time.Since(c.lastACK2SendTime) > c.synInterval || p.SequenceNumber() == c.lastSentACK2 {
		c.sendACK2Locked(p.SequenceNumber())
		c.lastACK2SendTime = now
	}

	if c.sendQueue == nil {
		return
	}
	ack := p.Ack
	if ack.Greater(c.sendQueue.currentSequenceNumber()) {
		return
	}
	if ack.LessEq(c.lastReceivedACK) {
		return
	}

	c.flowWindowSize = uint(p.RecvBufSize)
	c.lastReceivedACK = ack
	c.atomicLastReceivedACK.set(uint32(ack))
	c.sendQueue.ack(ack)

	c.updateRTTLocked(time.Duration(p.RTT) * time.Microsecond)
	c.cc.setRTT(c.rtt)

	if p.HasLink {
		receiveRate := uint(p.PktRecvSpeed)
		bandwidthSample := uint(p.Bandwidth)
		c.deliveryRate = (7*c.deliveryRate + receiveRate) / 8
		c.bandwidth = (7*c.bandwidth + bandwidthSample) / 8
		c.cc.setReceiveRate(c.deliveryRate)
		c.cc.setBandwidth(c.bandwidth)
	}

	c.cc.setSendCurrentSequenceNumber(c.sendQueue.currentSequenceNumber())
	c.cc.onAck(ack)
	period := c.cc.packetSendPeriod()
	c.sendQueue.setPacketSendPeriod(period)
	c.stats.acksReceived.Inc()
	c.stats.packetSendPeriod.Set(float64(period.Microseconds()))
	c.stats.flowWindowSize.Set(float64(c.flowWindowSize))
}

func (c *Connection) processLightACKLocked(p *packet.AckPacket) {
	if p.Ack.Greater(c.lastReceivedACK) {
		off := packet.Seqoff(p.Ack, c.lastReceivedACK)
		if uint(off) < c.flowWindowSize {
			c.flowWindowSize -= uint(off)
		} else {
			c.flowWindowSize = 0
		}
		c.lastReceivedACK = p.Ack
		c.atomicLastReceivedACK.set(uint32(p.Ack))
	}
}

func (c *Connection) processACK2Locked(p *packet.Ack2Packet, now time.Time) {
	entry, ok := c.sentACKs[p.SequenceNumber()]
	if !ok {
		return
	}
	delete(c.sentACKs, p.SequenceNumber())

	rtt := now.Sub(entry.sentAt)
	c.updateRTTLocked(rtt)
	c.cc.setRTT(c.rtt)
	if entry.ack.Greater(c.lastReceivedAcknowledgedACK) {
		c.lastReceivedAcknowledgedACK = entry.ack
	}
}

func (c *Connection) processNAKLocked(p *packet.NakPacket) {
	start, end := p.Start, p.Start
	if p.Range {
		end = p.End
	}
	if c.sendQueue != nil {
		c.sendQueue.nak(start, end)
		c.cc.setSendCurrentSequenceNumber(c.sendQueue.currentSequenceNumber())
	}
	c.cc.onLoss(start, end)
	if c.sendQueue != nil {
		c.sendQueue.setPacketSendPeriod(c.cc.packetSendPeriod())
	}
	c.stats.naksReceived.Inc()
}

// reportSendFailure treats a transport write failure as an implicit loss of
// the most recently assigned outbound sequence number, so a resource error
// (an unreachable peer, a full socket buffer) backs off congestion control
// the same way an explicit NAK would, rather than only counting toward
// unreachable-peer detection.
func (c *Connection) reportSendFailure() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.sendQueue == nil {
		return
	}
	lost := c.sendQueue.currentSequenceNumber().Decr()
	c.cc.onLoss(lost, lost)
	c.sendQueue.setPacketSendPeriod(c.cc.packetSendPeriod())
}

func (c *Connection) processTimeoutNAKLocked(p *packet.TimeoutNAKPacket) {
	if c.sendQueue != nil {
		c.sendQueue.overrideNAKListFromPacket(p)
	}
	c.stats.timeoutNaksReceived.Inc()
}

// updateRTT applies Jacobson's RTT smoothing (α=1/8, β=1/4). The deviation
// term is computed against the freshly smoothed rtt, not the pre-update
// value, matching the reference implementation.
func (c *Connection) updateRTTLocked(sample time.Duration) {
	c.rtt = (7*c.rtt + sample) / 8
	diff := sample - c.rtt
	if diff < 0 {
		diff = -diff
	}
	c.rttVariance = (3*c.rttVariance + diff) / 4
	c.stats.rtt.Set(float64(c.rtt.Microseconds()))
	c.atomicRTT.set(c.rtt)
}

// estimatedTimeout returns how long to wait for an ACK before treating it as
// lost: the congestion control policy's fixed RTO if it has opted into one,
// otherwise an RTT-based estimate.
func (c *Connection) estimatedTimeoutLocked() time.Duration {
	if c.cc.userDefinedRto() {
		return c.cc.rto()
	}
	return c.rtt + 4*c.rttVariance
}

// updateNAKIntervalLocked recomputes nakInterval from the current receive
// rate and loss list length: the time it should take the peer to resend
// everything currently missing, floored at minNAKInterval. With no receive
// rate estimate yet, it falls back to estimatedTimeoutLocked.
func (c *Connection) updateNAKIntervalLocked() {
	receiveRate := uint(c.receiveWindow.packetReceiveSpeed())
	interval := c.estimatedTimeoutLocked()
	if receiveRate > 0 {
		interval = time.Duration(c.lossList.length()) * (time.Second / time.Duration(receiveRate))
	}
	if interval < c.minNAKInterval {
		interval = c.minNAKInterval
	}
	c.nakInterval = interval
}

// LastReceivedACK returns the most recently processed ACK sequence number,
// readable without holding the connection's mutex.
func (c *Connection) LastReceivedACK() packet.SequenceNumber {
	return packet.SequenceNumber(c.atomicLastReceivedACK.get())
}

// RTT returns the current smoothed round-trip estimate, readable without
// holding the connection's mutex, for callers such as a monitoring loop
// that want RTT without contending with the receive/sync paths.
func (c *Connection) RTT() time.Duration {
	return c.atomicRTT.get()
}

// Close stops the connection's send queue and releases its resources.
func (c *Connection) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	sq := c.sendQueue
	c.mu.Unlock()

	if sq != nil {
		sq.stop()
	}
	return nil
}
