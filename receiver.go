package tcpcore

import (
	"github.com/rs/zerolog/log"
)

// Receiver is the receiving half of a TCP endpoint. It feeds inbound
// SenderMessages into a Reassembler and reports the acknowledgment number and
// window that the peer's sender should see.
type Receiver struct {
	reassembler *Reassembler
	capacity    uint64

	open bool // SYN observed
	isn  Wrap32
}

// NewReceiver creates a receiver writing into a fresh stream of the given capacity.
func NewReceiver(capacity uint64) *Receiver {
	return NewReceiverWithReassembler(NewReassembler(NewByteStream(capacity)))
}

// NewReceiverWithReassembler creates a receiver around an existing reassembler.
func NewReceiverWithReassembler(r *Reassembler) *Receiver {
	return &Receiver{
		reassembler: r,
		capacity:    r.Output().Capacity(),
	}
}

// Receive processes one message from the peer's sender.
func (r *Receiver) Receive(msg SenderMessage) {
	out := r.reassembler.Output()
	if msg.RST {
		log.Debug().Msg("receiver got RST")
		out.SetError()
		return
	}

	if !r.open {
		if !msg.SYN {
			log.Trace().Stringer("msg", msg).Msg("receiver ignoring segment before SYN")
			return
		}
		r.open = true
		r.isn = msg.Seqno
		log.Debug().Uint32("isn", uint32(r.isn)).Msg("receiver opened")
	}

	abs := msg.Seqno.Unwrap(r.isn, out.BytesPushed())

	// SYN occupies absolute sequence number 0
	var index uint64
	if msg.SYN {
		index = abs
	} else {
		if abs == 0 {
			// a non-SYN segment claiming the SYN's slot carries nothing usable
			log.Trace().Stringer("msg", msg).Msg("receiver dropping segment at ISN")
			return
		}
		index = abs - 1
	}

	if err := r.reassembler.Insert(index, msg.Payload, msg.FIN); err != nil {
		// the peer contradicted itself; the connection cannot continue
		log.Debug().Err(err).Uint64("index", index).Msg("receiver aborting stream")
		out.SetError()
	}
}

// Send returns the acknowledgment and window to report to the peer.
func (r *Receiver) Send() ReceiverMessage {
	out := r.reassembler.Output()

	msg := ReceiverMessage{
		WindowSize: uint16(min(r.capacity-out.BytesBuffered(), MaxWindowSize)),
		RST:        out.HasError(),
	}
	if r.open {
		abs := out.BytesPushed() + 1
		if out.IsClosed() {
			abs++
		}
		ackno := Wrap(abs, r.isn)
		msg.Ackno = &ackno
	}
	return msg
}

// Reader returns the reassembled inbound stream.
func (r *Receiver) Reader() *ByteStream {
	return r.reassembler.Output()
}

// Reassembler returns the receiver's reassembler.
func (r *Receiver) Reassembler() *Reassembler {
	return r.reassembler
}
