package tcpcore

import (
	"github.com/rs/zerolog/log"
)

// SegmentFunc is called for every segment a Peer puts on the wire.
type SegmentFunc func(Segment)

// Peer is one TCP endpoint: a Sender for the outbound stream and a Receiver
// for the inbound one. Every segment it emits piggybacks the receiver's
// current acknowledgment and window on the sender's message.
type Peer struct {
	sender   *Sender
	receiver *Receiver
}

// NewPeer creates an endpoint whose outbound segments start at isn.
func NewPeer(cfg Config, isn Wrap32) *Peer {
	return &Peer{
		sender:   NewSender(NewByteStream(cfg.StreamCapacity), isn, cfg.Sender()),
		receiver: NewReceiver(cfg.StreamCapacity),
	}
}

// SetMetrics attaches optional metrics to the sender.
func (p *Peer) SetMetrics(m *Metrics) {
	p.sender.SetMetrics(m)
}

// Push sends whatever the outbound stream and the peer's window allow.
func (p *Peer) Push(out SegmentFunc) {
	p.sender.Push(p.transmitter(out, nil))
}

// Receive processes one inbound segment. If it occupied sequence space and
// nothing was sent in response, an ack-only segment is sent so the remote
// sender learns about it.
func (p *Peer) Receive(seg Segment, out SegmentFunc) {
	p.receiver.Receive(seg.Sender)
	p.sender.Receive(seg.Receiver)

	sent := false
	p.sender.Push(p.transmitter(out, &sent))

	if sent || seg.Sender.RST || seg.Sender.SequenceLength() == 0 {
		return
	}
	if p.receiver.Send().Ackno == nil {
		return
	}

	ack := Segment{Sender: p.sender.MakeEmptyMessage(), Receiver: p.receiver.Send()}
	log.Trace().Stringer("segment", ack).Msg("peer sending ack-only segment")
	out(ack)
}

// Tick advances the sender's retransmission timer by ms.
func (p *Peer) Tick(ms uint64, out SegmentFunc) {
	p.sender.Tick(ms, p.transmitter(out, nil))
}

// Active reports whether the connection still has work to do. It is false
// once either stream has errored, or once both directions are finished and
// everything sent has been acknowledged.
func (p *Peer) Active() bool {
	in, outbound := p.receiver.Reader(), p.sender.Writer()
	if in.HasError() || outbound.HasError() {
		return false
	}
	done := outbound.IsFinished() &&
		p.sender.FINSent() &&
		p.sender.SequenceNumbersInFlight() == 0 &&
		in.IsClosed()
	return !done
}

// Sender returns the endpoint's sender.
func (p *Peer) Sender() *Sender {
	return p.sender
}

// Receiver returns the endpoint's receiver.
func (p *Peer) Receiver() *Receiver {
	return p.receiver
}

// transmitter adapts out to the sender's TransmitFunc, attaching the
// receiver's state. sent, when non-nil, records that something went out.
func (p *Peer) transmitter(out SegmentFunc, sent *bool) TransmitFunc {
	return func(msg SenderMessage) {
		if sent != nil {
			*sent = true
		}
		out(Segment{Sender: msg, Receiver: p.receiver.Send()})
	}
}
