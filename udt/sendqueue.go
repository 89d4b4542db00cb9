package udt

import (
	"sync"
	"time"

	"github.com/kunalgosar/hifi/udt/packet"
)

// sendQueue paces outbound reliable data, retransmits on loss, and retains
// sent-but-unacknowledged packets until the peer ACKs them. It owns a
// single worker goroutine per Connection.
type sendQueue struct {
	send         func(packet.Packet) error
	onRetransmit func()

	mu       sync.Mutex
	queued   [][]byte
	pending  map[packet.SequenceNumber]*packet.DataPacket
	lossList []packet.SequenceNumber
	nextSeq  packet.SequenceNumber
	period   time.Duration

	wake chan struct{}
	done chan struct{}
	wg   sync.WaitGroup
}

// newSendQueue builds a sendQueue starting at initSeq and paced at period,
// writing packets via send, and starts its worker goroutine.
func newSendQueue(send func(packet.Packet) error, initSeq packet.SequenceNumber, period time.Duration) *sendQueue {
	q := &sendQueue{
		send:    send,
		pending: make(map[packet.SequenceNumber]*packet.DataPacket),
		nextSeq: initSeq,
		period:  period,
		wake:    make(chan struct{}, 1),
		done:    make(chan struct{}),
	}
	q.wg.Add(1)
	go q.run()
	return q
}

// queuePacket appends data to the outbound FIFO and wakes the worker.
func (q *sendQueue) queuePacket(data []byte) {
	q.mu.Lock()
	q.queued = append(q.queued, data)
	q.mu.Unlock()
	q.poke()
}

// sendPacket bypasses the pacer, writing p immediately out of band.
func (q *sendQueue) sendPacket(p packet.Packet) error {
	return q.send(p)
}

// ack releases every retained packet with sequence number at or before seq
// (modular) and drops any matching retransmit entries.
func (q *sendQueue) ack(seq packet.SequenceNumber) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for s := range q.pending {
		if s.LessEq(seq) {
			delete(q.pending, s)
		}
	}
	kept := q.lossList[:0]
	for _, s := range q.lossList {
		if s.Greater(seq) {
			kept = append(kept, s)
		}
	}
	q.lossList = kept
}

// nak schedules retransmission of [from, to] ahead of new transmissions.
func (q *sendQueue) nak(from, to packet.SequenceNumber) {
	q.mu.Lock()
	for s := from; ; s = s.Incr() {
		q.lossList = insertSorted(q.lossList, s)
		if s == to {
			break
		}
	}
	q.mu.Unlock()
	q.poke()
}

// overrideNAKListFromPacket replaces the retransmit list with the loss
// ranges carried by a TimeoutNAK.
func (q *sendQueue) overrideNAKListFromPacket(p *packet.TimeoutNAKPacket) {
	q.mu.Lock()
	q.lossList = q.lossList[:0]
	for _, r := range p.Ranges {
		high := r.Low
		if r.Range {
			high = r.High
		}
		for s := r.Low; ; s = s.Incr() {
			q.lossList = insertSorted(q.lossList, s)
			if s == high {
				break
			}
		}
	}
	q.mu.Unlock()
	q.poke()
}

func insertSorted(list []packet.SequenceNumber, s packet.SequenceNumber) []packet.SequenceNumber {
	i := 0
	for i < len(list) && list[i].Less(s) {
		i++
	}
	if i < len(list) && list[i] == s {
		return list
	}
	list = append(list, 0)
	copy(list[i+1:], list[i:])
	list[i] = s
	return list
}

// setPacketSendPeriod updates the pacer's inter-packet interval.
func (q *sendQueue) setPacketSendPeriod(d time.Duration) {
	q.mu.Lock()
	q.period = d
	q.mu.Unlock()
}

// currentSequenceNumber returns the next unassigned outbound sequence.
func (q *sendQueue) currentSequenceNumber() packet.SequenceNumber {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.nextSeq
}

// stop requests the worker goroutine exit and waits for it.
func (q *sendQueue) stop() {
	close(q.done)
	q.wg.Wait()
}

func (q *sendQueue) poke() {
	select {
	case q.wake <- struct{}{}:
	default:
	}
}

func (q *sendQueue) run() {
	defer q.wg.Done()
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-q.done:
			return
		case <-q.wake:
		case <-timer.C:
		}
		q.tick()
		q.mu.Lock()
		period := q.period
		q.mu.Unlock()
		if period <= 0 {
			period = time.Microsecond
		}
		if !timer.Stop() {
			select {
			case <-timer.C:
			default:
			}
		}
		timer.Reset(period)
	}
}

// tick sends the lowest-sequence retransmit if one is pending, otherwise
// assigns the next sequence number to a freshly queued payload and sends
// that.
func (q *sendQueue) tick() {
	q.mu.Lock()
	var toSend *packet.DataPacket
	retransmit := false
	if len(q.lossList) > 0 {
		seq := q.lossList[0]
		q.lossList = q.lossList[1:]
		toSend = q.pending[seq]
		retransmit = true
	} else if len(q.queued) > 0 {
		data := q.queued[0]
		q.queued = q.queued[1:]
		seq := q.nextSeq
		q.nextSeq = q.nextSeq.Incr()
		dp := packet.NewDataPacket(seq, data)
		q.pending[seq] = dp
		toSend = dp
	}
	send := q.send
	onRetransmit := q.onRetransmit
	q.mu.Unlock()

	if toSend != nil {
		if retransmit && onRetransmit != nil {
			onRetransmit()
		}
		send(toSend)
	}
}
