package udt

import (
	"sync"
	"testing"
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

// capturingWire collects encoded datagrams a Connection writes, so tests can
// decode and inspect what went out without a real socket.
type capturingWire struct {
	mu  sync.Mutex
	out [][]byte
}

func (w *capturingWire) write(b []byte) error {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.out = append(w.out, append([]byte(nil), b...))
	return nil
}

func (w *capturingWire) snapshot() [][]byte {
	w.mu.Lock()
	defer w.mu.Unlock()
	return append([][]byte(nil), w.out...)
}

func newTestConnection() (*Connection, *capturingWire) {
	w := &capturingWire{}
	c := NewConnection("peer", w.write, newFixedRateCongestionControl(time.Millisecond, 10*time.Millisecond), 64, nil, nil)
	return c, w
}

func decodeLast(t *testing.T, w *capturingWire) packet.Packet {
	t.Helper()
	out := w.snapshot()
	if len(out) == 0 {
		t.Fatal("nothing was sent")
	}
	p, err := packet.DecodePacket(out[len(out)-1])
	if err != nil {
		t.Fatalf("decode last sent packet: %v", err)
	}
	return p
}

func TestConnectionCleanInOrderDeliveryNoLoss(t *testing.T) {
	c, _ := newTestConnection()
	var delivered [][]byte
	for i := 0; i < 5; i++ {
		dp := packet.NewDataPacket(packet.SequenceNumber(i), []byte{byte(i)})
		c.processReceivedSequenceNumber(dp, time.Now(), func(b []byte) {
			delivered = append(delivered, b)
		})
	}
	if len(delivered) != 5 {
		t.Fatalf("delivered %d packets, want 5", len(delivered))
	}
	if !c.lossList.isEmpty() {
		t.Fatalf("loss list should be empty after in-order delivery, has %d entries", c.lossList.length())
	}
	if got := c.nextACK(); got != 4 {
		t.Fatalf("nextACK = %d, want 4", got)
	}
}

func TestConnectionSingleDropRecordsGapAndSendsNAK(t *testing.T) {
	c, w := newTestConnection()
	var delivered []packet.SequenceNumber
	deliver := func(seq packet.SequenceNumber) {
		dp := packet.NewDataPacket(seq, nil)
		c.processReceivedSequenceNumber(dp, time.Now(), func([]byte) { delivered = append(delivered, seq) })
	}

	deliver(0)
	deliver(1)
	deliver(3) // 2 is missing

	if c.lossList.length() != 1 {
		t.Fatalf("loss list length = %d, want 1", c.lossList.length())
	}
	if first, ok := c.lossList.firstSequenceNumber(); !ok || first != 2 {
		t.Fatalf("missing sequence = %v (ok=%v), want 2", first, ok)
	}

	nak, ok := decodeLast(t, w).(*packet.NakPacket)
	if !ok {
		t.Fatalf("last sent packet is %T, want *NakPacket", decodeLast(t, w))
	}
	if nak.Start != 2 || nak.Range {
		t.Fatalf("nak = %+v, want singleton at 2", nak)
	}

	deliver(2) // late arrival fills the gap
	if !c.lossList.isEmpty() {
		t.Fatalf("loss list should be empty once the gap is filled, has %d", c.lossList.length())
	}
	if len(delivered) != 4 {
		t.Fatalf("delivered %d packets, want 4", len(delivered))
	}
}

func TestConnectionBurstDropAndSyncTriggersTimeoutNAK(t *testing.T) {
	c, w := newTestConnection()
	deliver := func(seq packet.SequenceNumber) {
		dp := packet.NewDataPacket(seq, nil)
		c.processReceivedSequenceNumber(dp, time.Now(), func([]byte) {})
	}

	deliver(0)
	deliver(5) // 1..4 missing as a burst

	if c.lossList.length() != 4 {
		t.Fatalf("loss list length = %d, want 4", c.lossList.length())
	}

	// Back-date lastNAKTime past the adaptive nakInterval the gap just
	// computed, rather than bypassing it, so Sync's guard is exercised for
	// real.
	c.lastNAKTime = time.Now().Add(-c.nakInterval - time.Millisecond)
	c.Sync()

	found := false
	for _, raw := range w.snapshot() {
		p, err := packet.DecodePacket(raw)
		if err != nil {
			continue
		}
		if tn, ok := p.(*packet.TimeoutNAKPacket); ok {
			found = true
			if len(tn.Ranges) != 1 || tn.Ranges[0].Low != 1 || tn.Ranges[0].High != 4 || !tn.Ranges[0].Range {
				t.Fatalf("timeout-nak ranges = %+v, want [{1 4 true}]", tn.Ranges)
			}
		}
	}
	if !found {
		t.Fatal("sync with a nonempty loss list did not emit a TimeoutNAK")
	}
}

func TestConnectionNextACKFollowsLossListGap(t *testing.T) {
	c, _ := newTestConnection()
	deliver := func(seq packet.SequenceNumber) {
		c.processReceivedSequenceNumber(packet.NewDataPacket(seq, nil), time.Now(), func([]byte) {})
	}
	deliver(0)
	deliver(1)
	deliver(4) // gap at 2, 3

	if got := c.nextACK(); got != 1 {
		t.Fatalf("nextACK = %d, want 1 (one before the first gap)", got)
	}
}

func TestConnectionGapDetectionRecomputesAdaptiveNAKInterval(t *testing.T) {
	c, _ := newTestConnection()
	deliver := func(seq packet.SequenceNumber) {
		c.processReceivedSequenceNumber(packet.NewDataPacket(seq, nil), time.Now(), func([]byte) {})
	}

	deliver(0)
	deliver(5) // 1..4 missing: a gap, so nakInterval must be recomputed

	c.mu.Lock()
	receiveRate := uint(c.receiveWindow.packetReceiveSpeed())
	lossLen := c.lossList.length()
	want := c.estimatedTimeoutLocked()
	if receiveRate > 0 {
		want = time.Duration(lossLen) * (time.Second / time.Duration(receiveRate))
	}
	if want < c.minNAKInterval {
		want = c.minNAKInterval
	}
	got := c.nakInterval
	c.mu.Unlock()

	if got != want {
		t.Fatalf("nakInterval = %v, want %v (adaptive formula result)", got, want)
	}
	if got < c.minNAKInterval {
		t.Fatalf("nakInterval = %v, want >= minNAKInterval %v", got, c.minNAKInterval)
	}
}

func TestConnectionSendQueueCreatedLazily(t *testing.T) {
	c, _ := newTestConnection()
	if c.sendQueue != nil {
		t.Fatal("sendQueue should not exist before the first Send")
	}
	if err := c.Send([]byte("hi")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if c.sendQueue == nil {
		t.Fatal("sendQueue should be created on first Send")
	}
	c.Close()
}

func TestConnectionProcessACKAdvancesFlowWindowAndReleasesPending(t *testing.T) {
	c, w := newTestConnection()
	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(w.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	if len(w.snapshot()) == 0 {
		t.Fatal("timed out waiting for the queued packet to be sent")
	}

	ack := &packet.AckPacket{Ack: 0, RTT: 1000, RTTVar: 100, RecvBufSize: 32}
	c.ProcessControl(ack, time.Now())

	c.mu.Lock()
	pendingLen := len(c.sendQueue.pending)
	flowWindow := c.flowWindowSize
	lastReceivedACK := c.lastReceivedACK
	c.mu.Unlock()

	if pendingLen != 0 {
		t.Fatalf("pending has %d entries after ack, want 0", pendingLen)
	}
	if flowWindow != 32 {
		t.Fatalf("flowWindowSize = %d, want 32", flowWindow)
	}
	if lastReceivedACK != 0 {
		t.Fatalf("lastReceivedACK = %d, want 0", lastReceivedACK)
	}
	if c.LastReceivedACK() != 0 {
		t.Fatalf("atomic mirror = %d, want 0", c.LastReceivedACK())
	}
	c.Close()
}

func TestConnectionProcessACK2MeasuresRTT(t *testing.T) {
	c, _ := newTestConnection()
	c.mu.Lock()
	c.sentACKs[7] = sentACKEntry{ack: 5, sentAt: time.Now().Add(-20 * time.Millisecond)}
	before := c.rtt
	c.mu.Unlock()

	c.ProcessControl(packet.NewAck2Packet(7), time.Now())

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, stillPresent := c.sentACKs[7]; stillPresent {
		t.Fatal("ack2 should consume the matching sentACKs entry")
	}
	if c.rtt == before {
		t.Fatal("rtt should change after a fresh ACK2 sample")
	}
	if c.lastReceivedAcknowledgedACK != 5 {
		t.Fatalf("lastReceivedAcknowledgedACK = %d, want 5", c.lastReceivedAcknowledgedACK)
	}
}

func TestConnectionProcessNAKSchedulesRetransmit(t *testing.T) {
	c, w := newTestConnection()
	c.sendQueue = newSendQueue(c.writeControl, 0, time.Hour) // long period: only explicit pokes send
	c.sendQueue.queuePacket([]byte("x"))

	deadline := time.Now().Add(2 * time.Second)
	for len(w.snapshot()) == 0 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	c.ProcessControl(packet.NewNakPacket(0), time.Now())

	got := w.snapshot()
	var lastDP *packet.DataPacket
	for _, raw := range got {
		if p, err := packet.DecodePacket(raw); err == nil {
			if dp, ok := p.(*packet.DataPacket); ok {
				lastDP = dp
			}
		}
	}
	deadline = time.Now().Add(2 * time.Second)
	for len(w.snapshot()) < 2 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	got = w.snapshot()
	if len(got) < 2 {
		t.Fatal("nak should have triggered a retransmit")
	}
	if lastDP == nil || lastDP.SequenceNumber() != 0 {
		t.Fatalf("expected the original send to carry sequence 0")
	}
	c.Close()
}

func TestConnectionUpdateRTTSmoothing(t *testing.T) {
	c, _ := newTestConnection()
	c.rtt = 100 * time.Millisecond
	c.rttVariance = 10 * time.Millisecond

	c.updateRTTLocked(116 * time.Millisecond)

	wantRTT := (7*100 + 116) * time.Millisecond / 8
	if c.rtt != wantRTT {
		t.Fatalf("rtt = %v, want %v", c.rtt, wantRTT)
	}
	wantVariance := (3*10*time.Millisecond + (116*time.Millisecond - wantRTT)) / 4
	if wantVariance < 0 {
		wantVariance = -wantVariance
	}
	if c.rttVariance != wantVariance {
		t.Fatalf("rttVariance = %v, want %v", c.rttVariance, wantVariance)
	}
	if got := c.RTT(); got != wantRTT {
		t.Fatalf("RTT() = %v, want %v", got, wantRTT)
	}
}

func TestConnectionEstimatedTimeoutFallsBackToRTTEstimate(t *testing.T) {
	c, _ := newTestConnection()
	c.rtt = 50 * time.Millisecond
	c.rttVariance = 5 * time.Millisecond
	if got, want := c.estimatedTimeoutLocked(), c.rtt+4*c.rttVariance; got != want {
		t.Fatalf("estimatedTimeout = %v, want RTT-based %v when policy has no fixed RTO", got, want)
	}
}

func TestConnectionDoubleCloseIsSafe(t *testing.T) {
	c, _ := newTestConnection()
	if err := c.Send([]byte("a")); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("first Close: %v", err)
	}
	if err := c.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
	if err := c.Send([]byte("b")); err != errConnectionClosed {
		t.Fatalf("Send after Close = %v, want errConnectionClosed", err)
	}
}
