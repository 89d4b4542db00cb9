package udt

import "github.com/prometheus/client_golang/prometheus"

// Stats holds one Connection's Prometheus counters and gauges. It owns a
// private registry rather than registering against prometheus.DefaultRegisterer
// so that many concurrent peer Connections don't collide on metric names;
// Socket.Gather merges every peer's registry for callers that want one
// combined view.
type Stats struct {
	Registry *prometheus.Registry

	packetsQueued prometheus.Counter
	packetsSent   prometheus.Counter
	bytesSent     prometheus.Counter
	packetsRecv   prometheus.Counter
	bytesRecv     prometheus.Counter

	acksSent            prometheus.Counter
	acksReceived        prometheus.Counter
	naksSent            prometheus.Counter
	naksReceived        prometheus.Counter
	timeoutNaksSent     prometheus.Counter
	timeoutNaksReceived prometheus.Counter
	retransmits         prometheus.Counter
	badPackets          prometheus.Counter

	rtt             prometheus.Gauge
	packetSendPeriod prometheus.Gauge
	lossListLength  prometheus.Gauge
	flowWindowSize  prometheus.Gauge
}

// NewStats builds a Stats block with all counters and gauges registered
// against a fresh, private registry.
func NewStats() *Stats {
	reg := prometheus.NewRegistry()
	s := &Stats{
		Registry: reg,

		packetsQueued: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_packets_queued_total", Help: "Application payloads queued for reliable send.",
		}),
		packetsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_packets_sent_total", Help: "Packets written to the transport, of any type.",
		}),
		bytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_bytes_sent_total", Help: "Bytes written to the transport, including headers.",
		}),
		packetsRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_packets_received_total", Help: "Packets decoded from the transport, of any type.",
		}),
		bytesRecv: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_bytes_received_total", Help: "Bytes read from the transport, including headers.",
		}),
		acksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_acks_sent_total", Help: "ACK packets sent, full and light.",
		}),
		acksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_acks_received_total", Help: "ACK packets accepted from the peer.",
		}),
		naksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_naks_sent_total", Help: "NAK packets sent.",
		}),
		naksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_naks_received_total", Help: "NAK packets accepted from the peer.",
		}),
		timeoutNaksSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_timeout_naks_sent_total", Help: "TimeoutNAK packets sent.",
		}),
		timeoutNaksReceived: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_timeout_naks_received_total", Help: "TimeoutNAK packets accepted from the peer.",
		}),
		retransmits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_retransmits_total", Help: "Data packets resent due to NAK or TimeoutNAK.",
		}),
		badPackets: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "udt_bad_packets_total", Help: "Datagrams dropped for decode failure.",
		}),
		rtt: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "udt_rtt_microseconds", Help: "Current smoothed round-trip time estimate.",
		}),
		packetSendPeriod: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "udt_packet_send_period_microseconds", Help: "Current inter-packet send interval.",
		}),
		lossListLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "udt_loss_list_length", Help: "Count of sequence numbers currently missing at the receiver.",
		}),
		flowWindowSize: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "udt_flow_window_size", Help: "Sender's current cap on unacknowledged packets.",
		}),
	}

	reg.MustRegister(
		s.packetsQueued, s.packetsSent, s.bytesSent, s.packetsRecv, s.bytesRecv,
		s.acksSent, s.acksReceived, s.naksSent, s.naksReceived,
		s.timeoutNaksSent, s.timeoutNaksReceived, s.retransmits, s.badPackets,
		s.rtt, s.packetSendPeriod, s.lossListLength, s.flowWindowSize,
	)
	return s
}
