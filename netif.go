package tcpcore

import (
	"net/netip"

	"github.com/rs/zerolog/log"
)

// OutputPort is the physical medium a NetworkInterface transmits on.
// Implementations might be a simulated wire, a TAP device or a raw socket.
type OutputPort interface {
	Transmit(sender *NetworkInterface, frame EthernetFrame)
}

// InterfaceConfig holds the ARP lifetimes a NetworkInterface consumes.
type InterfaceConfig struct {
	// ARPEntryTTLMs is how long a learned mapping stays in the cache.
	ARPEntryTTLMs uint64
	// ARPRequestTTLMs is how long to wait for a reply before giving up on
	// the datagrams queued for that address. No new request for the same
	// address is sent while one is outstanding.
	ARPRequestTTLMs uint64
}

// DefaultInterfaceConfig returns the default ARP lifetimes.
func DefaultInterfaceConfig() InterfaceConfig {
	return InterfaceConfig{
		ARPEntryTTLMs:   DefaultARPEntryTTLMs,
		ARPRequestTTLMs: DefaultARPRequestTTLMs,
	}
}

// arpEntry is a cached IP to Ethernet mapping.
type arpEntry struct {
	ethernet EthernetAddress
	ttl      uint64 // ms remaining
}

// NetworkInterface connects the internet layer to Ethernet. It encapsulates
// outbound datagrams in frames addressed to the next hop, resolving hardware
// addresses with ARP, and passes inbound IPv4 datagrams up to its owner.
//
// Datagrams for an unresolved next hop wait in a per-address queue; the queue
// is flushed when any ARP message teaches the mapping, or discarded if the
// request times out.
type NetworkInterface struct {
	name     string
	port     OutputPort
	ethernet EthernetAddress
	ip       netip.Addr
	cfg      InterfaceConfig

	cache    map[netip.Addr]*arpEntry
	requests map[netip.Addr]uint64 // ms until the outstanding request expires
	waiting  map[netip.Addr][]InternetDatagram

	received []InternetDatagram

	metrics *Metrics
}

// NewNetworkInterface creates an interface with the given hardware and IP address.
func NewNetworkInterface(name string, port OutputPort, ethernet EthernetAddress, ip netip.Addr, cfg InterfaceConfig) *NetworkInterface {
	log.Debug().
		Str("iface", name).
		Stringer("ethernet", ethernet).
		Stringer("ip", ip).
		Msg("network interface created")

	return &NetworkInterface{
		name:     name,
		port:     port,
		ethernet: ethernet,
		ip:       ip,
		cfg:      cfg,
		cache:    make(map[netip.Addr]*arpEntry),
		requests: make(map[netip.Addr]uint64),
		waiting:  make(map[netip.Addr][]InternetDatagram),
	}
}

// SetMetrics attaches optional metrics. A nil value disables recording.
func (n *NetworkInterface) SetMetrics(m *Metrics) {
	n.metrics = m
}

// SendDatagram sends dgram toward nextHop, which is usually a router or
// default gateway but may be the destination itself when directly connected.
func (n *NetworkInterface) SendDatagram(dgram InternetDatagram, nextHop netip.Addr) {
	if entry, ok := n.cache[nextHop]; ok {
		n.sendIPv4(entry.ethernet, dgram)
		return
	}

	n.waiting[nextHop] = append(n.waiting[nextHop], dgram)

	if _, inFlight := n.requests[nextHop]; inFlight {
		log.Trace().
			Str("iface", n.name).
			Stringer("nextHop", nextHop).
			Int("queued", len(n.waiting[nextHop])).
			Msg("ARP request outstanding, datagram queued")
		return
	}

	n.sendARP(EthernetBroadcast, ARPMessage{
		Opcode:         ARPRequest,
		SenderEthernet: n.ethernet,
		SenderIP:       n.ip,
		TargetIP:       nextHop,
	})
	n.requests[nextHop] = n.cfg.ARPRequestTTLMs
	n.metrics.arpRequest()

	log.Debug().
		Str("iface", n.name).
		Stringer("nextHop", nextHop).
		Msg("ARP request broadcast")
}

// RecvFrame handles one inbound frame. IPv4 payloads are queued for
// PollDatagram; ARP messages update the cache and may trigger a reply.
func (n *NetworkInterface) RecvFrame(frame EthernetFrame) {
	if frame.Dst != n.ethernet && frame.Dst != EthernetBroadcast {
		return
	}
	n.metrics.frameReceived(frame.Type.String())

	switch frame.Type {
	case EtherTypeIPv4:
		dgram, err := ParseInternetDatagram(frame.Payload)
		if err != nil {
			log.Warn().Err(err).Str("iface", n.name).Msg("dropping malformed IPv4 frame")
			return
		}
		n.received = append(n.received, dgram)

	case EtherTypeARP:
		msg, err := ParseARPMessage(frame.Payload)
		if err != nil {
			log.Warn().Err(err).Str("iface", n.name).Msg("dropping malformed ARP frame")
			return
		}
		n.handleARP(msg)

	default:
		log.Trace().
			Str("iface", n.name).
			Uint16("type", uint16(frame.Type)).
			Msg("ignoring frame with unknown EtherType")
	}
}

// handleARP learns the sender mapping, answers requests for our address and
// flushes datagrams that were waiting on the mapping.
func (n *NetworkInterface) handleARP(msg ARPMessage) {
	n.cache[msg.SenderIP] = &arpEntry{ethernet: msg.SenderEthernet, ttl: n.cfg.ARPEntryTTLMs}

	log.Debug().
		Str("iface", n.name).
		Stringer("ip", msg.SenderIP).
		Stringer("ethernet", msg.SenderEthernet).
		Msg("ARP mapping learned")

	if msg.Opcode == ARPRequest && msg.TargetIP == n.ip {
		n.sendARP(msg.SenderEthernet, ARPMessage{
			Opcode:         ARPReply,
			SenderEthernet: n.ethernet,
			SenderIP:       n.ip,
			TargetEthernet: msg.SenderEthernet,
			TargetIP:       msg.SenderIP,
		})
		n.metrics.arpReply()
	}

	queued := n.waiting[msg.SenderIP]
	delete(n.waiting, msg.SenderIP)
	delete(n.requests, msg.SenderIP)

	for _, dgram := range queued {
		n.sendIPv4(msg.SenderEthernet, dgram)
	}
	if len(queued) > 0 {
		log.Debug().
			Str("iface", n.name).
			Stringer("ip", msg.SenderIP).
			Int("count", len(queued)).
			Msg("flushed queued datagrams")
	}
}

// Tick advances the interface clock by ms, expiring cache entries and
// abandoning unanswered ARP requests.
func (n *NetworkInterface) Tick(ms uint64) {
	for ip, entry := range n.cache {
		if entry.ttl <= ms {
			delete(n.cache, ip)
			log.Trace().Str("iface", n.name).Stringer("ip", ip).Msg("ARP entry expired")
			continue
		}
		entry.ttl -= ms
	}

	for ip, remaining := range n.requests {
		if remaining > ms {
			n.requests[ip] = remaining - ms
			continue
		}
		dropped := len(n.waiting[ip])
		delete(n.requests, ip)
		delete(n.waiting, ip)
		n.metrics.datagramsDropped(dropped)

		log.Debug().
			Str("iface", n.name).
			Stringer("ip", ip).
			Int("dropped", dropped).
			Msg("ARP request timed out")
	}
}

// PollDatagram removes and returns the oldest received datagram.
func (n *NetworkInterface) PollDatagram() (InternetDatagram, bool) {
	if len(n.received) == 0 {
		return InternetDatagram{}, false
	}
	dgram := n.received[0]
	n.received[0] = InternetDatagram{}
	n.received = n.received[1:]
	return dgram, true
}

// ReceivedCount returns how many received datagrams are waiting to be polled.
func (n *NetworkInterface) ReceivedCount() int {
	return len(n.received)
}

// Name returns the interface name.
func (n *NetworkInterface) Name() string {
	return n.name
}

// EthernetAddress returns the interface's hardware address.
func (n *NetworkInterface) EthernetAddress() EthernetAddress {
	return n.ethernet
}

// IPAddress returns the interface's IPv4 address.
func (n *NetworkInterface) IPAddress() netip.Addr {
	return n.ip
}

func (n *NetworkInterface) sendIPv4(dst EthernetAddress, dgram InternetDatagram) {
	payload, err := dgram.Serialize()
	if err != nil {
		log.Warn().Err(err).Str("iface", n.name).Msg("dropping unserializable datagram")
		return
	}
	n.transmit(EthernetFrame{Dst: dst, Src: n.ethernet, Type: EtherTypeIPv4, Payload: payload})
}

func (n *NetworkInterface) sendARP(dst EthernetAddress, msg ARPMessage) {
	n.transmit(EthernetFrame{Dst: dst, Src: n.ethernet, Type: EtherTypeARP, Payload: msg.Serialize()})
}

func (n *NetworkInterface) transmit(frame EthernetFrame) {
	n.metrics.frameSent(frame.Type.String())
	n.port.Transmit(n, frame)
}
