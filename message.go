package tcpcore

import "fmt"

// MaxWindowSize is the largest window a ReceiverMessage can advertise.
const MaxWindowSize = 65535

// SenderMessage is what a TCP sender transmits to the peer's receiver.
type SenderMessage struct {
	Seqno   Wrap32
	SYN     bool
	Payload []byte
	FIN     bool
	RST     bool
}

// SequenceLength returns how many sequence numbers the message occupies.
// SYN and FIN each count as one.
func (m SenderMessage) SequenceLength() uint64 {
	n := uint64(len(m.Payload))
	if m.SYN {
		n++
	}
	if m.FIN {
		n++
	}
	return n
}

// String implements fmt.Stringer for logging.
func (m SenderMessage) String() string {
	return fmt.Sprintf("seqno=%d syn=%t fin=%t rst=%t payload=%d",
		uint32(m.Seqno), m.SYN, m.FIN, m.RST, len(m.Payload))
}

// ReceiverMessage is what a TCP receiver sends back to the peer's sender.
// Ackno is nil until the receiver has seen a SYN.
type ReceiverMessage struct {
	Ackno      *Wrap32
	WindowSize uint16
	RST        bool
}

// String implements fmt.Stringer for logging.
func (m ReceiverMessage) String() string {
	ackno := "none"
	if m.Ackno != nil {
		ackno = m.Ackno.String()
	}
	return fmt.Sprintf("ackno=%s window=%d rst=%t", ackno, m.WindowSize, m.RST)
}

// TransmitFunc is called by the sender for every message it puts on the wire.
type TransmitFunc func(SenderMessage)
