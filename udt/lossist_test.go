package udt

import (
	"reflect"
	"testing"

	"github.com/kunalgosar/hifi/udt/packet"
)

func seqs(vs ...uint16) []packet.SequenceNumber {
	out := make([]packet.SequenceNumber, len(vs))
	for i, v := range vs {
		out[i] = packet.SequenceNumber(v)
	}
	return out
}

func TestLossListAppendSingleton(t *testing.T) {
	var l lossList
	l.append(5)
	if l.length() != 1 {
		t.Fatalf("length = %d, want 1", l.length())
	}
	first, ok := l.firstSequenceNumber()
	if !ok || first != 5 {
		t.Fatalf("first = (%d, %v), want (5, true)", first, ok)
	}
}

func TestLossListAppendMergesAdjacent(t *testing.T) {
	var l lossList
	l.append(5)
	l.append(6)
	l.append(4)
	if len(l.intervals) != 1 {
		t.Fatalf("expected a single merged interval, got %d: %+v", len(l.intervals), l.intervals)
	}
	if l.length() != 3 {
		t.Fatalf("length = %d, want 3", l.length())
	}
}

func TestLossListAppendRangeMergesOverlap(t *testing.T) {
	var l lossList
	l.appendRange(4, 8) // [4,7]
	l.appendRange(10, 12)
	l.appendRange(6, 11) // bridges both
	if len(l.intervals) != 1 {
		t.Fatalf("expected one merged interval, got %+v", l.intervals)
	}
	if l.length() != 8 {
		t.Fatalf("length = %d, want 8", l.length())
	}
}

func TestLossListRemoveLowEnd(t *testing.T) {
	var l lossList
	l.appendRange(4, 8) // [4,7]
	l.remove(4)
	if l.length() != 3 {
		t.Fatalf("length = %d, want 3", l.length())
	}
	first, _ := l.firstSequenceNumber()
	if first != 5 {
		t.Fatalf("first = %d, want 5", first)
	}
}

func TestLossListRemoveHighEnd(t *testing.T) {
	var l lossList
	l.appendRange(4, 8) // [4,7]
	l.remove(7)
	if l.length() != 3 {
		t.Fatalf("length = %d, want 3", l.length())
	}
}

func TestLossListRemoveInteriorSplits(t *testing.T) {
	var l lossList
	l.appendRange(4, 9) // [4,8]
	l.remove(6)
	if len(l.intervals) != 2 {
		t.Fatalf("expected split into 2 intervals, got %+v", l.intervals)
	}
	if l.length() != 4 {
		t.Fatalf("length = %d, want 4", l.length())
	}
}

func TestLossListRemoveSingletonEmpties(t *testing.T) {
	var l lossList
	l.append(5)
	l.remove(5)
	if !l.isEmpty() {
		t.Fatalf("expected empty list after removing its only entry, got %+v", l.intervals)
	}
}

func TestLossListRemoveAbsentIsNoop(t *testing.T) {
	var l lossList
	l.append(5)
	l.remove(9)
	if l.length() != 1 {
		t.Fatalf("length = %d, want 1 (unchanged)", l.length())
	}
}

func TestLossListWriteRunLength(t *testing.T) {
	var l lossList
	l.append(1)
	l.appendRange(5, 10) // [5,9]
	l.append(100)

	p := l.write()
	want := []packet.LossRange{
		{Low: 1},
		{Low: 5, High: 9, Range: true},
		{Low: 100},
	}
	if !reflect.DeepEqual(p.Ranges, want) {
		t.Fatalf("Ranges = %+v, want %+v", p.Ranges, want)
	}
}

func TestLossListBurstDropScenario(t *testing.T) {
	// Sequences 1..10 sent; 4..7 dropped, as in the burst-drop scenario.
	var l lossList
	l.appendRange(4, 8) // NAK(4,7)
	if l.length() != 4 {
		t.Fatalf("length = %d, want 4", l.length())
	}
	for _, s := range seqs(4, 5, 6, 7) {
		l.remove(s)
	}
	if !l.isEmpty() {
		t.Fatalf("expected loss list empty after retransmits land, got %+v", l.intervals)
	}
}
