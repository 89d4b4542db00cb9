package udt

import (
	"testing"
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

func TestFixedRateCongestionControlPacesAtConfiguredPeriod(t *testing.T) {
	cc := newFixedRateCongestionControl(5*time.Millisecond, 20*time.Millisecond)
	cc.init(10*time.Millisecond, 0)

	if got := cc.packetSendPeriod(); got != 5*time.Millisecond {
		t.Fatalf("packetSendPeriod = %v, want 5ms", got)
	}
	if got := cc.synInterval(); got != 20*time.Millisecond {
		t.Fatalf("synInterval = %v, want 20ms", got)
	}
	if cc.userDefinedRto() {
		t.Fatal("fixedRateCongestionControl should not claim a user-defined RTO")
	}
	if cc.ackInterval() != 0 {
		t.Fatalf("ackInterval = %d, want 0 (no intermediate ACKs)", cc.ackInterval())
	}

	// onAck/onLoss/onTimeout are no-ops; the period never moves.
	cc.onAck(100)
	cc.onLoss(1, 5)
	cc.onTimeout()
	if got := cc.packetSendPeriod(); got != 5*time.Millisecond {
		t.Fatalf("packetSendPeriod after events = %v, want unchanged 5ms", got)
	}
}

func TestFixedRateCongestionControlInitFillsInZeroSynInterval(t *testing.T) {
	cc := newFixedRateCongestionControl(time.Millisecond, 0)
	cc.init(7*time.Millisecond, 0)
	if got := cc.synInterval(); got != 7*time.Millisecond {
		t.Fatalf("synInterval = %v, want the init-supplied 7ms", got)
	}
}

func TestNativeCongestionControlGrowsWindowDuringSlowStart(t *testing.T) {
	cc := newNativeCongestionControl()
	cc.setMaxFlowWindow(1000)
	cc.init(10*time.Millisecond, 0)
	// Let one rate-control interval pass so onAck is not skipped.
	cc.lastRCTime = time.Now().Add(-cc.rcInterval)

	before := cc.cwnd
	cc.onAck(8)
	if cc.cwnd <= before {
		t.Fatalf("cwnd should grow on an early ACK during slow start, got %d (was %d)", cc.cwnd, before)
	}
	if !cc.slowStart {
		t.Fatal("should remain in slow start until cwnd exceeds maxFlowWin")
	}
}

func TestNativeCongestionControlExitsSlowStartWhenWindowExceedsFlowWindow(t *testing.T) {
	cc := newNativeCongestionControl()
	cc.setMaxFlowWindow(8)
	cc.setReceiveRate(500)
	cc.init(10*time.Millisecond, 0)
	// Let one rate-control interval pass so onAck is not skipped.
	cc.lastRCTime = time.Now().Add(-cc.rcInterval)

	cc.onAck(packet.SequenceNumber(100))
	if cc.slowStart {
		t.Fatal("should leave slow start once cwnd exceeds maxFlowWin")
	}
	if cc.sendPeriod != time.Second/500 {
		t.Fatalf("sendPeriod = %v, want time.Second/receiveRate = %v", cc.sendPeriod, time.Second/500)
	}
}

func TestNativeCongestionControlOnLossBacksOffMultiplicatively(t *testing.T) {
	cc := newNativeCongestionControl()
	cc.setMaxFlowWindow(4)
	cc.init(10*time.Millisecond, 0)
	cc.slowStart = false
	cc.sendPeriod = 1000 * time.Microsecond
	cc.currentSeq = 50
	cc.lastDecSeq = 0

	cc.onLoss(10, 10)

	want := 1000 * 1125 / 1000 * time.Microsecond
	if cc.sendPeriod != want {
		t.Fatalf("sendPeriod after first loss in a period = %v, want %v", cc.sendPeriod, want)
	}
	if !cc.loss {
		t.Fatal("loss flag should be set after onLoss")
	}
}

func TestNativeCongestionControlRTOAlwaysDefersToRTTEstimate(t *testing.T) {
	cc := newNativeCongestionControl()
	if cc.rto() != 0 || cc.userDefinedRto() {
		t.Fatal("native policy has no fixed RTO of its own")
	}
}
