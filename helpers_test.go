package tcpcore

import (
	"net/netip"
	"testing"
)

// sentFrame is one frame captured by recordingPort.
type sentFrame struct {
	from  *NetworkInterface
	frame EthernetFrame
}

// recordingPort is an OutputPort that keeps everything transmitted through it.
type recordingPort struct {
	frames []sentFrame
}

func (p *recordingPort) Transmit(sender *NetworkInterface, frame EthernetFrame) {
	p.frames = append(p.frames, sentFrame{from: sender, frame: frame})
}

// take returns the captured frames and forgets them.
func (p *recordingPort) take() []EthernetFrame {
	out := make([]EthernetFrame, 0, len(p.frames))
	for _, f := range p.frames {
		out = append(out, f.frame)
	}
	p.frames = nil
	return out
}

// messageCollector records every message a Sender transmits.
type messageCollector struct {
	msgs []SenderMessage
}

func (c *messageCollector) transmit(msg SenderMessage) {
	c.msgs = append(c.msgs, msg)
}

// take returns the recorded messages and forgets them.
func (c *messageCollector) take() []SenderMessage {
	out := c.msgs
	c.msgs = nil
	return out
}

// segmentCollector records every segment a Peer sends.
type segmentCollector struct {
	segs []Segment
}

func (c *segmentCollector) send(seg Segment) {
	c.segs = append(c.segs, seg)
}

func (c *segmentCollector) take() []Segment {
	out := c.segs
	c.segs = nil
	return out
}

// newTestSender creates a sender with its own input stream.
func newTestSender(t *testing.T, capacity uint64, isn Wrap32, rto uint64) *Sender {
	t.Helper()
	return NewSender(NewByteStream(capacity), isn, SenderConfig{
		InitialRTOMs:   rto,
		MaxPayloadSize: DefaultMaxPayloadSize,
	})
}

// ackFor builds a receiver message acknowledging absolute seqno abs.
func ackFor(abs uint64, isn Wrap32, window uint16) ReceiverMessage {
	ackno := Wrap(abs, isn)
	return ReceiverMessage{Ackno: &ackno, WindowSize: window}
}

// readAll drains everything currently buffered in s.
func readAll(s *ByteStream) string {
	return string(s.PopBytes(s.BytesBuffered()))
}

func ptr[T any](v T) *T {
	return &v
}

var (
	testEthA = EthernetAddress{0x02, 0, 0, 0, 0, 0x0a}
	testEthB = EthernetAddress{0x02, 0, 0, 0, 0, 0x0b}
	testEthC = EthernetAddress{0x02, 0, 0, 0, 0, 0x0c}
	testIPA  = netip.MustParseAddr("192.168.0.1")
	testIPB  = netip.MustParseAddr("192.168.0.2")
	testIPC  = netip.MustParseAddr("192.168.0.3")
)
