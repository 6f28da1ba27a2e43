package tcpcore

import (
	"encoding/binary"
	"net/netip"

	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

// ProtocolTCP is the IPv4 protocol number carried by encoded segments.
const ProtocolTCP = int(header.TCPProtocolNumber)

// Segment is one TCP segment as seen by a Peer: the sender half travelling
// forward and the receiver half carrying the reverse direction's ack.
type Segment struct {
	Sender   SenderMessage
	Receiver ReceiverMessage
}

// String implements fmt.Stringer for logging.
func (s Segment) String() string {
	return s.Sender.String() + " " + s.Receiver.String()
}

// EncodeSegment builds an IPv4 datagram carrying seg from src to dst.
func EncodeSegment(seg Segment, src, dst netip.AddrPort) (InternetDatagram, error) {
	if !src.Addr().Is4() || !dst.Addr().Is4() {
		return InternetDatagram{}, errors.Wrapf(ErrNotIPv4, "segment %s -> %s", src, dst)
	}

	var flags uint8
	if seg.Sender.SYN {
		flags |= header.TCPFlagSyn
	}
	if seg.Sender.FIN {
		flags |= header.TCPFlagFin
	}
	if seg.Sender.RST || seg.Receiver.RST {
		flags |= header.TCPFlagRst
	}
	var ack uint32
	if seg.Receiver.Ackno != nil {
		flags |= header.TCPFlagAck
		ack = uint32(*seg.Receiver.Ackno)
	}

	b := make([]byte, header.TCPMinimumSize+len(seg.Sender.Payload))
	tcp := header.TCP(b)
	tcp.Encode(&header.TCPFields{
		SrcPort:    src.Port(),
		DstPort:    dst.Port(),
		SeqNum:     uint32(seg.Sender.Seqno),
		AckNum:     ack,
		DataOffset: header.TCPMinimumSize,
		Flags:      flags,
		WindowSize: seg.Receiver.WindowSize,
	})
	copy(b[header.TCPMinimumSize:], seg.Sender.Payload)
	tcp.SetChecksum(^tcpChecksum(src.Addr(), dst.Addr(), b))

	return NewInternetDatagram(src.Addr(), dst.Addr(), ProtocolTCP, b), nil
}

// DecodeSegment extracts the TCP segment from dgram and returns it with the
// endpoints it travelled between.
func DecodeSegment(dgram InternetDatagram) (Segment, netip.AddrPort, netip.AddrPort, error) {
	var none netip.AddrPort
	if dgram.Header.Protocol != ProtocolTCP {
		return Segment{}, none, none, errors.Errorf("tcp: protocol %d", dgram.Header.Protocol)
	}

	b := dgram.Payload
	if len(b) < header.TCPMinimumSize {
		return Segment{}, none, none, errors.Wrapf(ErrShortFrame, "tcp: %d bytes", len(b))
	}
	tcp := header.TCP(b)
	offset := int(tcp.DataOffset())
	if offset < header.TCPMinimumSize || offset > len(b) {
		return Segment{}, none, none, errors.Wrapf(ErrShortFrame, "tcp: data offset %d of %d", offset, len(b))
	}
	if tcpChecksum(dgram.Header.Src, dgram.Header.Dst, b) != 0xffff {
		return Segment{}, none, none, errors.Wrap(ErrBadChecksum, "tcp segment")
	}

	flags := tcp.Flags()
	seg := Segment{
		Sender: SenderMessage{
			Seqno:   Wrap32(tcp.SequenceNumber()),
			SYN:     flags&header.TCPFlagSyn != 0,
			FIN:     flags&header.TCPFlagFin != 0,
			RST:     flags&header.TCPFlagRst != 0,
			Payload: append([]byte(nil), b[offset:]...),
		},
		Receiver: ReceiverMessage{
			WindowSize: tcp.WindowSize(),
			RST:        flags&header.TCPFlagRst != 0,
		},
	}
	if flags&header.TCPFlagAck != 0 {
		ackno := Wrap32(tcp.AckNumber())
		seg.Receiver.Ackno = &ackno
	}

	src := netip.AddrPortFrom(dgram.Header.Src, tcp.SourcePort())
	dst := netip.AddrPortFrom(dgram.Header.Dst, tcp.DestinationPort())
	return seg, src, dst, nil
}

// tcpChecksum returns the one's complement sum of the IPv4 pseudo-header and
// the segment. A segment with a correct checksum field sums to 0xffff.
func tcpChecksum(src, dst netip.Addr, segment []byte) uint16 {
	var pseudo [12]byte
	s, d := as4(src), as4(dst)
	copy(pseudo[0:4], s[:])
	copy(pseudo[4:8], d[:])
	pseudo[9] = uint8(header.TCPProtocolNumber)
	binary.BigEndian.PutUint16(pseudo[10:12], uint16(len(segment)))

	sum := header.Checksum(pseudo[:], 0)
	return header.Checksum(segment, sum)
}
