package tcpcore

import (
	"github.com/rs/zerolog/log"
)

// outstandingSegment is a message that has been sent but not fully acknowledged.
type outstandingSegment struct {
	seqno uint64 // absolute
	msg   SenderMessage
}

// Sender is the sending half of a TCP endpoint. It reads from an outbound
// ByteStream, fills the peer's advertised window with segments, and
// retransmits the oldest unacknowledged segment when the logical
// retransmission timer expires.
//
// Design:
//   - Outstanding segments form a FIFO; acknowledgments remove a prefix of it
//   - A zero window is probed as if it were one byte wide, but does not back
//     off the timer since retransmission is expected there
type Sender struct {
	input      *ByteStream
	isn        Wrap32
	initialRTO uint64
	maxPayload uint64

	timer       retransmitTimer
	outstanding []outstandingSegment

	inFlight        uint64
	retransmissions uint64
	window          uint16
	nextSeqno       uint64
	synSent         bool
	finSent         bool

	metrics *Metrics
}

// SenderConfig holds the constants a Sender consumes.
type SenderConfig struct {
	// InitialRTOMs is the retransmission timeout before any backoff, in ms.
	InitialRTOMs uint64
	// MaxPayloadSize bounds the payload of a single segment.
	MaxPayloadSize uint64
}

// DefaultSenderConfig returns the default sender configuration.
func DefaultSenderConfig() SenderConfig {
	return SenderConfig{
		InitialRTOMs:   DefaultInitialRTOMs,
		MaxPayloadSize: DefaultMaxPayloadSize,
	}
}

// NewSender creates a sender that reads from input and numbers its segments
// starting at isn.
func NewSender(input *ByteStream, isn Wrap32, cfg SenderConfig) *Sender {
	if cfg.MaxPayloadSize == 0 {
		cfg.MaxPayloadSize = DefaultMaxPayloadSize
	}
	return &Sender{
		input:      input,
		isn:        isn,
		initialRTO: cfg.InitialRTOMs,
		maxPayload: cfg.MaxPayloadSize,
		timer:      newRetransmitTimer(cfg.InitialRTOMs),
		window:     1,
	}
}

// SetMetrics attaches optional metrics. A nil value disables recording.
func (s *Sender) SetMetrics(m *Metrics) {
	s.metrics = m
}

// Push sends as many new segments as the peer's window allows.
func (s *Sender) Push(transmit TransmitFunc) {
	window := max(uint64(s.window), 1)

	for s.inFlight < window {
		var msg SenderMessage
		if !s.synSent {
			msg.SYN = true
		}

		room := window - s.inFlight
		if msg.SYN {
			room--
		}
		n := min(s.maxPayload, room, s.input.BytesBuffered())
		msg.Payload = s.input.PopBytes(n)

		if !s.finSent && s.input.IsFinished() && s.inFlight+msg.SequenceLength() < window {
			msg.FIN = true
		}

		if msg.SequenceLength() == 0 {
			break
		}

		msg.Seqno = Wrap(s.nextSeqno, s.isn)
		msg.RST = s.input.HasError()
		s.send(msg, transmit)
	}
}

// send transmits a new segment and records it as outstanding.
func (s *Sender) send(msg SenderMessage, transmit TransmitFunc) {
	if msg.SYN {
		s.synSent = true
	}
	if msg.FIN {
		s.finSent = true
		log.Debug().Uint64("seqno", s.nextSeqno).Msg("sender sending FIN")
	}

	transmit(msg)
	if !s.timer.running {
		s.timer.restart()
	}

	length := msg.SequenceLength()
	s.outstanding = append(s.outstanding, outstandingSegment{seqno: s.nextSeqno, msg: msg})
	s.inFlight += length
	s.nextSeqno += length

	s.metrics.segmentSent()
	s.metrics.setBytesInFlight(s.inFlight)

	log.Trace().
		Stringer("msg", msg).
		Uint64("inFlight", s.inFlight).
		Msg("sender transmitted segment")
}

// MakeEmptyMessage returns a zero-length message at the current sequence
// number, for acknowledgment-only segments.
func (s *Sender) MakeEmptyMessage() SenderMessage {
	return SenderMessage{
		Seqno: Wrap(s.nextSeqno, s.isn),
		RST:   s.input.HasError(),
	}
}

// Receive processes an acknowledgment and window update from the peer's receiver.
func (s *Sender) Receive(msg ReceiverMessage) {
	if msg.RST {
		log.Debug().Msg("sender got RST")
		s.input.SetError()
	}
	if msg.Ackno == nil {
		s.window = msg.WindowSize
		return
	}

	ack := msg.Ackno.Unwrap(s.isn, s.nextSeqno)
	if ack > s.nextSeqno {
		log.Trace().
			Uint64("ack", ack).
			Uint64("next", s.nextSeqno).
			Msg("sender ignoring ack beyond anything sent")
		return
	}

	acked := false
	for len(s.outstanding) > 0 {
		seg := s.outstanding[0]
		length := seg.msg.SequenceLength()
		if seg.seqno+length > ack {
			break
		}
		s.inFlight -= length
		s.outstanding[0] = outstandingSegment{}
		s.outstanding = s.outstanding[1:]
		acked = true
	}

	if acked {
		s.retransmissions = 0
		s.timer.timeout = s.initialRTO
		s.timer.restart()
		s.metrics.setBytesInFlight(s.inFlight)
	}
	if s.inFlight == 0 {
		s.timer.stop()
	}
	s.window = msg.WindowSize
}

// Tick advances the retransmission timer by ms and retransmits the oldest
// outstanding segment if it expired.
func (s *Sender) Tick(ms uint64, transmit TransmitFunc) {
	s.timer.tick(ms)
	if !s.timer.expired() {
		return
	}
	if len(s.outstanding) == 0 {
		s.timer.stop()
		return
	}

	transmit(s.outstanding[0].msg)
	s.metrics.retransmission()

	if s.window > 0 {
		s.retransmissions++
		s.timer.backoff()
	}
	s.timer.restart()

	log.Debug().
		Uint64("seqno", s.outstanding[0].seqno).
		Uint64("retransmissions", s.retransmissions).
		Uint64("rto", s.timer.timeout).
		Uint16("window", s.window).
		Msg("sender retransmitted on timeout")
}

// SequenceNumbersInFlight returns how many sequence numbers are outstanding.
func (s *Sender) SequenceNumbersInFlight() uint64 {
	return s.inFlight
}

// ConsecutiveRetransmissions returns how many retransmissions happened since
// the last acknowledgment of new data.
func (s *Sender) ConsecutiveRetransmissions() uint64 {
	return s.retransmissions
}

// CurrentRTO returns the current retransmission timeout in ms.
func (s *Sender) CurrentRTO() uint64 {
	return s.timer.timeout
}

// Writer returns the outbound stream the application writes into.
func (s *Sender) Writer() *ByteStream {
	return s.input
}

// FINSent reports whether the sender has transmitted its FIN.
func (s *Sender) FINSent() bool {
	return s.finSent
}
