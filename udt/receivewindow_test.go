package udt

import (
	"testing"
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

func TestReceiveWindowPacketReceiveSpeed(t *testing.T) {
	w := newReceiveWindow()
	now := time.Unix(0, 0)
	// seq values avoiding the &0xF == 0 or 1 probe markers, arriving at a
	// steady 1ms cadence -> 1000 packets/sec.
	seq := packet.SequenceNumber(2)
	for i := 0; i < 10; i++ {
		w.onPacketArrival(seq, now)
		now = now.Add(time.Millisecond)
		seq = seq.Incr()
	}
	got := w.packetReceiveSpeed()
	if got < 900 || got > 1100 {
		t.Fatalf("packetReceiveSpeed = %d, want ~1000", got)
	}
}

func TestReceiveWindowInsufficientSamples(t *testing.T) {
	w := newReceiveWindow()
	if got := w.packetReceiveSpeed(); got != 0 {
		t.Fatalf("packetReceiveSpeed with no samples = %d, want 0", got)
	}
	w.onPacketArrival(5, time.Unix(0, 0))
	if got := w.packetReceiveSpeed(); got != 0 {
		t.Fatalf("packetReceiveSpeed with a single arrival = %d, want 0", got)
	}
}

func TestReceiveWindowProbePairBandwidth(t *testing.T) {
	w := newReceiveWindow()
	now := time.Unix(0, 0)
	for i := 0; i < 8; i++ {
		base := packet.SequenceNumber(i * 16)
		w.onPacketArrival(base, now) // seq&0xF == 0
		now = now.Add(500 * time.Microsecond)
		w.onPacketArrival(base.Incr(), now) // seq&0xF == 1, closes the probe
		now = now.Add(time.Millisecond)
	}
	got := w.estimatedBandwidth()
	if got < 1500 || got > 2500 {
		t.Fatalf("estimatedBandwidth = %d, want ~2000", got)
	}
}

func TestReceiveWindowOutlierRejection(t *testing.T) {
	w := newReceiveWindow()
	now := time.Unix(0, 0)
	seq := packet.SequenceNumber(2)
	for i := 0; i < 20; i++ {
		w.onPacketArrival(seq, now)
		if i == 10 {
			now = now.Add(time.Second) // one wild outlier gap
		} else {
			now = now.Add(time.Millisecond)
		}
		seq = seq.Incr()
	}
	got := w.packetReceiveSpeed()
	if got < 900 || got > 1100 {
		t.Fatalf("packetReceiveSpeed with outlier = %d, want ~1000 (outlier should be filtered)", got)
	}
}
