package udt

import (
	"fmt"
	"net"
	"sync"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/kunalgosar/hifi/udt/packet"
)

// maxUnreachableFailures is how many consecutive write failures to a peer
// are tolerated before its Connection is dropped and ErrUnreachablePeer is
// surfaced to the caller.
const maxUnreachableFailures = 8

// CongestionPolicy builds a fresh congestionControl for a newly accepted or
// dialed Connection. Passing nativeCongestionControl vs fixedRateCongestionControl
// here is how a Socket's caller selects the congestion policy.
type CongestionPolicy func() congestionControl

// peerConn bundles a Connection with the bookkeeping the Socket needs to
// demultiplex datagrams and detect an unreachable peer.
type peerConn struct {
	addr             net.Addr
	id               xid.ID
	conn             *Connection
	consecutiveFails int
}

// Socket is a minimal UDP-backed datagram substrate implementing the
// Send(dest, bytes) / OnDatagram(src, bytes) contract the protocol core
// requires. It demultiplexes inbound datagrams by peer address into
// per-peer Connections, creating one on first send or first datagram from
// an unknown address -- there is no handshake and no accept queue, since
// this protocol has no listen backlog to manage.
type Socket struct {
	conn          net.PacketConn
	policy        CongestionPolicy
	maxFlowWindow uint
	synInterval   time.Duration
	onData        func(peer net.Addr, data []byte)
	log           logrus.FieldLogger

	mu     sync.Mutex
	peers  map[string]*peerConn
	closed bool

	done chan struct{}
	wg   sync.WaitGroup
}

// NewSocket wraps conn and starts the receive and sync-tick goroutines.
// onData is invoked serially (from the receive goroutine) for every data
// payload a Connection delivers, in the order the packets arrived.
func NewSocket(conn net.PacketConn, policy CongestionPolicy, maxFlowWindow uint, log logrus.FieldLogger, onData func(peer net.Addr, data []byte)) *Socket {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Socket{
		conn:          conn,
		policy:        policy,
		maxFlowWindow: maxFlowWindow,
		synInterval:   10 * time.Millisecond,
		onData:        onData,
		log:           log.WithField("component", "socket"),
		peers:         make(map[string]*peerConn),
		done:          make(chan struct{}),
	}
	s.wg.Add(2)
	go s.goRead()
	go s.goSync()
	return s
}

// Send transmits data reliably to dest, creating a Connection for dest on
// first use.
func (s *Socket) Send(dest net.Addr, data []byte) error {
	pc, err := s.getOrCreate(dest)
	if err != nil {
		return err
	}
	return pc.conn.Send(data)
}

// Close stops the receive and sync-tick goroutines, closes every peer
// Connection, and closes the underlying PacketConn.
func (s *Socket) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	peers := make([]*peerConn, 0, len(s.peers))
	for _, pc := range s.peers {
		peers = append(peers, pc)
	}
	s.mu.Unlock()

	close(s.done)
	err := s.conn.Close()
	for _, pc := range peers {
		pc.conn.Close()
	}
	s.wg.Wait()
	return err
}

// Gather implements prometheus.Gatherer by merging every current peer
// Connection's private Stats registry into one metric family list, so a
// process exposing /metrics can register the Socket itself rather than
// tracking each Connection's registry as peers come and go.
func (s *Socket) Gather() ([]*dto.MetricFamily, error) {
	s.mu.Lock()
	gatherers := make(prometheus.Gatherers, 0, len(s.peers))
	for _, pc := range s.peers {
		gatherers = append(gatherers, pc.conn.stats.Registry)
	}
	s.mu.Unlock()
	return gatherers.Gather()
}

func (s *Socket) getOrCreate(addr net.Addr) (*peerConn, error) {
	key := addr.String()

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, errConnectionClosed
	}
	if pc, ok := s.peers[key]; ok {
		s.mu.Unlock()
		return pc, nil
	}
	s.mu.Unlock()

	id := xid.New()
	log := s.log.WithFields(logrus.Fields{"peer": key, "conn_id": id.String()})
	cc := s.policy()
	conn := NewConnection(key, func(b []byte) error { return s.writeTo(addr, b) }, cc, s.maxFlowWindow, log, NewStats())
	pc := &peerConn{addr: addr, id: id, conn: conn}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		conn.Close()
		return nil, errConnectionClosed
	}
	if existing, ok := s.peers[key]; ok {
		conn.Close()
		return existing, nil
	}
	s.peers[key] = pc
	s.log.WithFields(logrus.Fields{"peer": key, "conn_id": id.String()}).Info("connection established")
	return pc, nil
}

// writeTo is the writeOut callback every Connection to addr uses. A write
// failure is reported to the Connection's congestion control as an implicit
// loss; the write that completes a run of maxUnreachableFailures consecutive
// failures also closes and removes the peer's Connection and returns an
// error wrapping ErrUnreachablePeer. A later Send to addr starts a new
// Connection.
func (s *Socket) writeTo(addr net.Addr, b []byte) error {
	_, err := s.conn.WriteTo(b, addr)

	s.mu.Lock()
	pc, ok := s.peers[addr.String()]
	if !ok {
		s.mu.Unlock()
		return err
	}
	if err != nil {
		pc.consecutiveFails++
		unreachable := pc.consecutiveFails >= maxUnreachableFailures
		if unreachable {
			delete(s.peers, addr.String())
		}
		s.mu.Unlock()
		pc.conn.reportSendFailure()
		if unreachable {
			s.log.WithField("peer", addr.String()).Warn("peer unreachable, dropping connection")
			pc.conn.Close()
			return fmt.Errorf("%w: %v", ErrUnreachablePeer, err)
		}
		return err
	}
	pc.consecutiveFails = 0
	s.mu.Unlock()
	return nil
}

// goRead reads and decodes datagrams off conn, dispatching each to its
// owning Connection. A malformed datagram is logged and dropped; it never
// panics the read loop.
func (s *Socket) goRead() {
	defer s.wg.Done()
	buf := make([]byte, packet.MaxPacketSize)
	for {
		n, addr, err := s.conn.ReadFrom(buf)
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.log.WithError(err).Warn("read failed, stopping receive loop")
			return
		}
		p, err := packet.DecodePacket(buf[:n])
		if err != nil {
			s.log.WithError(fmt.Errorf("%w: %v", ErrBadPacket, err)).
				WithField("peer", addr.String()).Debug("dropping malformed datagram")
			s.mu.Lock()
			if pc, ok := s.peers[addr.String()]; ok {
				pc.conn.stats.badPackets.Inc()
			}
			s.mu.Unlock()
			continue
		}

		pc, err := s.getOrCreate(addr)
		if err != nil {
			continue
		}
		pc.conn.stats.bytesRecv.Add(float64(n))

		switch dp := p.(type) {
		case *packet.DataPacket:
			pc.conn.processReceivedSequenceNumber(dp, time.Now(), func(data []byte) {
				if s.onData != nil {
					s.onData(addr, data)
				}
			})
		default:
			pc.conn.ProcessControl(p, time.Now())
		}
	}
}

// goSync drives every peer Connection's sync tick off one shared ticker,
// per the design note that the three logical tasks (decode, sync, pace)
// only need to be independently schedulable, not independently threaded.
func (s *Socket) goSync() {
	defer s.wg.Done()
	ticker := time.NewTicker(s.synInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.done:
			return
		case <-ticker.C:
			s.mu.Lock()
			conns := make([]*Connection, 0, len(s.peers))
			for _, pc := range s.peers {
				conns = append(conns, pc.conn)
			}
			s.mu.Unlock()
			for _, c := range conns {
				c.Sync()
			}
		}
	}
}
