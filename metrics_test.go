package tcpcore

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.frameSent("ipv4")
		m.frameReceived("arp")
		m.arpRequest()
		m.arpReply()
		m.datagramsDropped(3)
		m.segmentSent()
		m.retransmission()
		m.setBytesInFlight(10)
	})
}

func TestMetricsRegistered(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetrics(reg)

	m.frameSent("ipv4")
	m.datagramsDropped(2)

	families, err := reg.Gather()
	require.NoError(t, err)
	names := make([]string, 0, len(families))
	for _, f := range families {
		names = append(names, f.GetName())
	}
	assert.Contains(t, names, "tcpcore_link_frames_sent_total")
	assert.Contains(t, names, "tcpcore_arp_datagrams_dropped_total")
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatagramsDropped))
}

func TestMetricsCountARPTimeoutDrops(t *testing.T) {
	m := NewMetrics(nil)
	port := &recordingPort{}
	n := newTestInterface(port)
	n.SetMetrics(m)

	n.SendDatagram(testDatagram(t, "a"), testIPC)
	n.SendDatagram(testDatagram(t, "b"), testIPC)
	n.Tick(DefaultARPRequestTTLMs)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.ARPRequests))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.DatagramsDropped))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FramesSent.WithLabelValues("arp")))
}

func TestMetricsTrackSender(t *testing.T) {
	m := NewMetrics(nil)
	s := newTestSender(t, 100, 0, 100)
	s.SetMetrics(m)
	var c messageCollector

	s.Push(c.transmit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.SegmentsSent))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BytesInFlight))

	s.Tick(100, c.transmit)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Retransmissions))

	s.Receive(ackFor(1, 0, 10))
	assert.Zero(t, testutil.ToFloat64(m.BytesInFlight))
}
