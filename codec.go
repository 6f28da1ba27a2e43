package tcpcore

import (
	"net"
	"net/netip"

	ipv4header "github.com/brown-csci1680/iptcp-headers"
	"github.com/google/netstack/tcpip"
	"github.com/google/netstack/tcpip/header"
	"github.com/pkg/errors"
)

// Codec errors.
var (
	ErrShortFrame  = errors.New("frame too short")
	ErrNotIPv4     = errors.New("not an IPv4 over Ethernet message")
	ErrBadChecksum = errors.New("bad checksum")
)

// EthernetAddress is a 48-bit hardware address.
type EthernetAddress [6]byte

// EthernetBroadcast is the all-ones broadcast address.
var EthernetBroadcast = EthernetAddress{0xff, 0xff, 0xff, 0xff, 0xff, 0xff}

// String formats the address as colon-separated hex.
func (a EthernetAddress) String() string {
	return net.HardwareAddr(a[:]).String()
}

// EtherType identifies the payload of an Ethernet frame.
type EtherType uint16

// Supported EtherTypes.
const (
	EtherTypeIPv4 = EtherType(header.IPv4ProtocolNumber)
	EtherTypeARP  = EtherType(header.ARPProtocolNumber)
)

// String implements fmt.Stringer; used as the metrics label.
func (t EtherType) String() string {
	switch t {
	case EtherTypeIPv4:
		return "ipv4"
	case EtherTypeARP:
		return "arp"
	default:
		return "other"
	}
}

// EthernetFrame is a decoded Ethernet II frame.
type EthernetFrame struct {
	Dst     EthernetAddress
	Src     EthernetAddress
	Type    EtherType
	Payload []byte
}

// Serialize encodes the frame header followed by the payload.
func (f EthernetFrame) Serialize() []byte {
	b := make([]byte, header.EthernetMinimumSize+len(f.Payload))
	header.Ethernet(b).Encode(&header.EthernetFields{
		SrcAddr: tcpip.LinkAddress(f.Src[:]),
		DstAddr: tcpip.LinkAddress(f.Dst[:]),
		Type:    tcpip.NetworkProtocolNumber(f.Type),
	})
	copy(b[header.EthernetMinimumSize:], f.Payload)
	return b
}

// ParseEthernetFrame decodes a frame produced by Serialize.
func ParseEthernetFrame(b []byte) (EthernetFrame, error) {
	if len(b) < header.EthernetMinimumSize {
		return EthernetFrame{}, errors.Wrapf(ErrShortFrame, "ethernet: %d bytes", len(b))
	}
	eth := header.Ethernet(b)

	var f EthernetFrame
	copy(f.Dst[:], eth.DestinationAddress())
	copy(f.Src[:], eth.SourceAddress())
	f.Type = EtherType(eth.Type())
	f.Payload = append([]byte(nil), b[header.EthernetMinimumSize:]...)
	return f, nil
}

// ARPOpcode distinguishes requests from replies.
type ARPOpcode uint16

// ARP opcodes.
const (
	ARPRequest = ARPOpcode(header.ARPRequest)
	ARPReply   = ARPOpcode(header.ARPReply)
)

// ARPMessage is an IPv4-over-Ethernet ARP packet.
type ARPMessage struct {
	Opcode         ARPOpcode
	SenderEthernet EthernetAddress
	SenderIP       netip.Addr
	TargetEthernet EthernetAddress
	TargetIP       netip.Addr
}

// Serialize encodes the message as a 28-byte ARP packet.
func (m ARPMessage) Serialize() []byte {
	a := header.ARP(make([]byte, header.ARPSize))
	a.SetIPv4OverEthernet()
	a.SetOp(header.ARPOp(m.Opcode))

	senderIP, targetIP := as4(m.SenderIP), as4(m.TargetIP)
	copy(a.HardwareAddressSender(), m.SenderEthernet[:])
	copy(a.ProtocolAddressSender(), senderIP[:])
	copy(a.HardwareAddressTarget(), m.TargetEthernet[:])
	copy(a.ProtocolAddressTarget(), targetIP[:])
	return a
}

// ParseARPMessage decodes an ARP packet, rejecting anything other than IPv4
// over Ethernet.
func ParseARPMessage(b []byte) (ARPMessage, error) {
	if len(b) < header.ARPSize {
		return ARPMessage{}, errors.Wrapf(ErrShortFrame, "arp: %d bytes", len(b))
	}
	a := header.ARP(b)
	if !a.IsValid() {
		return ARPMessage{}, errors.WithStack(ErrNotIPv4)
	}

	m := ARPMessage{Opcode: ARPOpcode(a.Op())}
	copy(m.SenderEthernet[:], a.HardwareAddressSender())
	copy(m.TargetEthernet[:], a.HardwareAddressTarget())
	m.SenderIP = netip.AddrFrom4([4]byte(a.ProtocolAddressSender()))
	m.TargetIP = netip.AddrFrom4([4]byte(a.ProtocolAddressTarget()))
	return m, nil
}

// InternetDatagram is an IPv4 header plus payload.
type InternetDatagram struct {
	Header  ipv4header.IPv4Header
	Payload []byte
}

// NewInternetDatagram builds a datagram with a 20-byte header and TTL 64.
func NewInternetDatagram(src, dst netip.Addr, protocol int, payload []byte) InternetDatagram {
	return InternetDatagram{
		Header: ipv4header.IPv4Header{
			Version:  4,
			Len:      ipv4header.HeaderLen,
			TotalLen: ipv4header.HeaderLen + len(payload),
			TTL:      64,
			Protocol: protocol,
			Src:      src,
			Dst:      dst,
			Options:  []byte{},
		},
		Payload: payload,
	}
}

// Serialize encodes the datagram, filling in total length and header checksum.
func (d InternetDatagram) Serialize() ([]byte, error) {
	h := d.Header
	h.TotalLen = ipv4header.HeaderLen + len(h.Options) + len(d.Payload)
	h.Checksum = 0

	hb, err := h.Marshal()
	if err != nil {
		return nil, errors.Wrap(err, "marshal ipv4 header")
	}
	h.Checksum = int(header.Checksum(hb, 0) ^ 0xffff)
	if hb, err = h.Marshal(); err != nil {
		return nil, errors.Wrap(err, "marshal ipv4 header")
	}

	out := make([]byte, 0, len(hb)+len(d.Payload))
	out = append(out, hb...)
	return append(out, d.Payload...), nil
}

// ParseInternetDatagram decodes and checksum-verifies an IPv4 datagram.
func ParseInternetDatagram(b []byte) (InternetDatagram, error) {
	h, err := ipv4header.ParseHeader(b)
	if err != nil {
		return InternetDatagram{}, errors.Wrap(err, "parse ipv4 header")
	}
	if h.Version != 4 {
		return InternetDatagram{}, errors.Errorf("ipv4: version %d", h.Version)
	}
	if h.Len < ipv4header.HeaderLen || h.TotalLen < h.Len || h.TotalLen > len(b) {
		return InternetDatagram{}, errors.Wrapf(ErrShortFrame,
			"ipv4: header %d total %d have %d", h.Len, h.TotalLen, len(b))
	}
	if header.Checksum(b[:h.Len], 0) != 0xffff {
		return InternetDatagram{}, errors.Wrap(ErrBadChecksum, "ipv4 header")
	}

	return InternetDatagram{
		Header:  *h,
		Payload: append([]byte(nil), b[h.Len:h.TotalLen]...),
	}, nil
}

// as4 returns the 4-byte form of an IPv4 address, or zeros for anything else.
func as4(a netip.Addr) [4]byte {
	if !a.Is4() {
		return [4]byte{}
	}
	return a.As4()
}
