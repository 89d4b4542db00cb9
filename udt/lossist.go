package udt

import (
	"sort"

	"github.com/kunalgosar/hifi/udt/packet"
)

// interval is a half-open range of missing sequence numbers [low, high).
type interval struct {
	low, high packet.SequenceNumber
}

func (iv interval) length() int32 {
	return packet.Seqoff(iv.high, iv.low)
}

// lossList tracks the set of sequence numbers a receiver expected but has
// not yet seen, as a sorted list of disjoint, non-touching half-open
// intervals. Callers serialize access; a Connection guards it with its own
// mutex.
type lossList struct {
	intervals []interval
}

// length returns the total count of missing sequence numbers across all
// intervals.
func (l *lossList) length() int {
	var n int32
	for _, iv := range l.intervals {
		n += iv.length()
	}
	return int(n)
}

// isEmpty reports whether the loss list currently has no gaps recorded.
func (l *lossList) isEmpty() bool {
	return len(l.intervals) == 0
}

// firstSequenceNumber returns the lowest missing sequence number and true,
// or the zero value and false if the list is empty.
func (l *lossList) firstSequenceNumber() (packet.SequenceNumber, bool) {
	if len(l.intervals) == 0 {
		return 0, false
	}
	return l.intervals[0].low, true
}

// indexOf returns the index of the first interval whose low bound is
// greater than or equal to s, using the circular half-range order.
func (l *lossList) indexOf(s packet.SequenceNumber) int {
	return sort.Search(len(l.intervals), func(i int) bool {
		return l.intervals[i].low.GreaterEq(s)
	})
}

// append records s as missing, merging with an adjacent interval when s
// touches one.
func (l *lossList) append(s packet.SequenceNumber) {
	l.appendRange(s, s.Incr())
}

// appendRange unions the half-open range [from, to) into the list, merging
// any intervals it touches or overlaps.
func (l *lossList) appendRange(from, to packet.SequenceNumber) {
	if !from.Less(to) {
		return
	}
	i := l.indexOf(from)
	// absorb the preceding interval if it touches or overlaps [from, to)
	if i > 0 && l.intervals[i-1].high.GreaterEq(from) {
		i--
		if l.intervals[i].low.Less(from) {
			from = l.intervals[i].low
		}
	}
	j := i
	for j < len(l.intervals) && l.intervals[j].low.LessEq(to) {
		if l.intervals[j].high.Greater(to) {
			to = l.intervals[j].high
		}
		j++
	}
	merged := interval{low: from, high: to}
	l.intervals = append(l.intervals[:i], append([]interval{merged}, l.intervals[j:]...)...)
}

// remove clears s from the list if present: it may shrink an interval's
// low or high bound, split it in two, or be a no-op if s was never missing.
func (l *lossList) remove(s packet.SequenceNumber) {
	for i, iv := range l.intervals {
		if s.Less(iv.low) || s.GreaterEq(iv.high) {
			continue
		}
		switch {
		case s == iv.low:
			l.intervals[i].low = s.Incr()
		case s == iv.high.Decr():
			l.intervals[i].high = s
		default:
			left := interval{low: iv.low, high: s}
			right := interval{low: s.Incr(), high: iv.high}
			l.intervals = append(l.intervals[:i], append([]interval{left, right}, l.intervals[i+1:]...)...)
		}
		if i < len(l.intervals) && l.intervals[i].low == l.intervals[i].high {
			l.intervals = append(l.intervals[:i], l.intervals[i+1:]...)
		}
		return
	}
}

// ranges returns the intervals as packet.LossRange values, suitable for a
// TimeoutNAKPacket.
func (l *lossList) ranges() []packet.LossRange {
	out := make([]packet.LossRange, 0, len(l.intervals))
	for _, iv := range l.intervals {
		last := iv.high.Decr()
		if last == iv.low {
			out = append(out, packet.LossRange{Low: iv.low})
		} else {
			out = append(out, packet.LossRange{Low: iv.low, High: last, Range: true})
		}
	}
	return out
}

// write serializes the entire loss list into a TimeoutNAKPacket.
func (l *lossList) write() *packet.TimeoutNAKPacket {
	return packet.NewTimeoutNAKPacket(l.ranges())
}
