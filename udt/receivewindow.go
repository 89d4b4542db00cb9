package udt

import (
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

// outlierFactor bounds how far a sample may sit from the running median
// before it is dropped and the median recomputed without it.
const outlierFactor = 8

// receiveWindow tracks inter-arrival gaps for ordinary data packets and for
// packet-pair bandwidth probes, estimating packet-receive speed and link
// bandwidth from their medians.
type receiveWindow struct {
	packetGaps circularDurations
	probeGaps  circularDurations

	lastArrival      time.Time
	havePrevArrival  bool
	probeFirstMarked bool
	probeFirstTime   time.Time
}

func newReceiveWindow() *receiveWindow {
	return &receiveWindow{
		packetGaps: newCircularDurations(64),
		probeGaps:  newCircularDurations(16),
	}
}

// onPacketArrival records the arrival of seq at now, routing the
// inter-arrival gap into the probe buffer or the packet buffer depending on
// whether seq is part of a packet-pair bandwidth probe.
func (w *receiveWindow) onPacketArrival(seq packet.SequenceNumber, now time.Time) {
	switch {
	case uint16(seq)&0xF == 0:
		w.probeFirstMarked = true
		w.probeFirstTime = now
	case uint16(seq)&0xF == 1 && w.probeFirstMarked:
		w.probeGaps.add(now.Sub(w.probeFirstTime))
		w.probeFirstMarked = false
	default:
		w.probeFirstMarked = false
		w.recordPacketGap(now)
	}
}

func (w *receiveWindow) recordPacketGap(now time.Time) {
	if w.havePrevArrival {
		w.packetGaps.add(now.Sub(w.lastArrival))
	}
	w.lastArrival = now
	w.havePrevArrival = true
}

// packetReceiveSpeed returns the estimated packets/sec arrival rate, or 0 if
// there are not yet enough samples.
func (w *receiveWindow) packetReceiveSpeed() int {
	return speedFromMedian(w.packetGaps.snapshot())
}

// estimatedBandwidth returns the estimated link bandwidth in packets/sec
// derived from packet-pair probes, or 0 if there are not yet enough samples.
func (w *receiveWindow) estimatedBandwidth() int {
	return speedFromMedian(w.probeGaps.snapshot())
}

func speedFromMedian(samples []time.Duration) int {
	if len(samples) == 0 {
		return 0
	}
	d := medianIgnoringOutliers(samples)
	if d <= 0 {
		return 0
	}
	return int(time.Second / d)
}

// medianIgnoringOutliers computes the median of samples, then drops any
// sample farther than outlierFactor times the median from it and
// recomputes, so a handful of pathological gaps can't skew the estimate.
func medianIgnoringOutliers(samples []time.Duration) time.Duration {
	work := append(sortableDurnArray(nil), samples...)
	med := selectMedian(work)
	if med <= 0 {
		return med
	}

	filtered := work[:0]
	for _, d := range work {
		if d > med/outlierFactor && d < med*outlierFactor {
			filtered = append(filtered, d)
		}
	}
	if len(filtered) == 0 {
		return med
	}
	return selectMedian(append(sortableDurnArray(nil), filtered...))
}

func selectMedian(a sortableDurnArray) time.Duration {
	if len(a) == 0 {
		return 0
	}
	mid := len(a) / 2
	FloydRivestSelect(a, mid, 0, len(a)-1)
	return a[mid]
}

// circularDurations is a fixed-capacity ring buffer of durations used to
// hold recent inter-arrival samples.
type circularDurations struct {
	buf  []time.Duration
	next int
	full bool
}

func newCircularDurations(capacity int) circularDurations {
	return circularDurations{buf: make([]time.Duration, capacity)}
}

func (c *circularDurations) add(d time.Duration) {
	if len(c.buf) == 0 {
		return
	}
	c.buf[c.next] = d
	c.next = (c.next + 1) % len(c.buf)
	if c.next == 0 {
		c.full = true
	}
}

func (c *circularDurations) snapshot() []time.Duration {
	if c.full {
		return append([]time.Duration(nil), c.buf...)
	}
	return append([]time.Duration(nil), c.buf[:c.next]...)
}
