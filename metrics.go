package tcpcore

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exports link and transport counters. A nil *Metrics is valid and
// records nothing, so components never need to check for it.
type Metrics struct {
	FramesSent       *prometheus.CounterVec
	FramesReceived   *prometheus.CounterVec
	ARPRequests      prometheus.Counter
	ARPReplies       prometheus.Counter
	DatagramsDropped prometheus.Counter
	SegmentsSent     prometheus.Counter
	Retransmissions  prometheus.Counter
	BytesInFlight    prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		FramesSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Subsystem: "link",
			Name:      "frames_sent_total",
			Help:      "Ethernet frames transmitted, by EtherType.",
		}, []string{"type"}),
		FramesReceived: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Subsystem: "link",
			Name:      "frames_received_total",
			Help:      "Ethernet frames accepted for this interface, by EtherType.",
		}, []string{"type"}),
		ARPRequests: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Subsystem: "arp",
			Name:      "requests_sent_total",
			Help:      "ARP requests broadcast.",
		}),
		ARPReplies: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Subsystem: "arp",
			Name:      "replies_sent_total",
			Help:      "ARP replies sent in answer to requests for our address.",
		}),
		DatagramsDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Subsystem: "arp",
			Name:      "datagrams_dropped_total",
			Help:      "Queued datagrams discarded because ARP resolution timed out.",
		}),
		SegmentsSent: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Subsystem: "tcp",
			Name:      "segments_sent_total",
			Help:      "New TCP segments transmitted (excluding retransmissions).",
		}),
		Retransmissions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tcpcore",
			Subsystem: "tcp",
			Name:      "retransmissions_total",
			Help:      "Segments retransmitted after the retransmission timer expired.",
		}),
		BytesInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "tcpcore",
			Subsystem: "tcp",
			Name:      "sequence_numbers_in_flight",
			Help:      "Sequence numbers sent but not yet acknowledged.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.FramesSent,
			m.FramesReceived,
			m.ARPRequests,
			m.ARPReplies,
			m.DatagramsDropped,
			m.SegmentsSent,
			m.Retransmissions,
			m.BytesInFlight,
		)
	}
	return m
}

func (m *Metrics) frameSent(etherType string) {
	if m != nil {
		m.FramesSent.WithLabelValues(etherType).Inc()
	}
}

func (m *Metrics) frameReceived(etherType string) {
	if m != nil {
		m.FramesReceived.WithLabelValues(etherType).Inc()
	}
}

func (m *Metrics) arpRequest() {
	if m != nil {
		m.ARPRequests.Inc()
	}
}

func (m *Metrics) arpReply() {
	if m != nil {
		m.ARPReplies.Inc()
	}
}

func (m *Metrics) datagramsDropped(n int) {
	if m != nil {
		m.DatagramsDropped.Add(float64(n))
	}
}

func (m *Metrics) segmentSent() {
	if m != nil {
		m.SegmentsSent.Inc()
	}
}

func (m *Metrics) retransmission() {
	if m != nil {
		m.Retransmissions.Inc()
	}
}

func (m *Metrics) setBytesInFlight(n uint64) {
	if m != nil {
		m.BytesInFlight.Set(float64(n))
	}
}
