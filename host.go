package tcpcore

import (
	"net/netip"

	"github.com/rs/zerolog/log"
)

// Host runs one TCP connection over a NetworkInterface. Outbound segments are
// encoded as IPv4 datagrams and sent toward the next hop; inbound datagrams
// addressed to the connection are decoded and fed to the Peer.
type Host struct {
	iface   *NetworkInterface
	peer    *Peer
	local   netip.AddrPort
	remote  netip.AddrPort
	nextHop netip.Addr
}

// NewHost binds peer to the connection local <-> remote on iface. Datagrams
// are handed to nextHop, which is remote's address when directly connected.
func NewHost(iface *NetworkInterface, peer *Peer, local, remote netip.AddrPort, nextHop netip.Addr) *Host {
	return &Host{
		iface:   iface,
		peer:    peer,
		local:   local,
		remote:  remote,
		nextHop: nextHop,
	}
}

// Write queues data on the outbound stream and returns how much was accepted.
func (h *Host) Write(data []byte) int {
	w := h.peer.Sender().Writer()
	before := w.BytesPushed()
	w.Push(data)
	return int(w.BytesPushed() - before)
}

// CloseWrite marks the outbound stream finished.
func (h *Host) CloseWrite() {
	h.peer.Sender().Writer().Close()
}

// Push lets the peer send whatever its window allows.
func (h *Host) Push() {
	h.peer.Push(h.send)
}

// Poll drains the interface's received datagrams into the peer and returns
// how many belonged to this connection.
func (h *Host) Poll() int {
	count := 0
	for {
		dgram, ok := h.iface.PollDatagram()
		if !ok {
			return count
		}
		seg, src, dst, err := DecodeSegment(dgram)
		if err != nil {
			log.Warn().Err(err).Str("iface", h.iface.Name()).Msg("host dropping undecodable datagram")
			continue
		}
		if src != h.remote || dst != h.local {
			log.Trace().
				Stringer("src", src).
				Stringer("dst", dst).
				Msg("host ignoring segment for another connection")
			continue
		}
		h.peer.Receive(seg, h.send)
		count++
	}
}

// Tick advances the interface and the peer by ms.
func (h *Host) Tick(ms uint64) {
	h.iface.Tick(ms)
	h.peer.Tick(ms, h.send)
}

// Interface returns the host's network interface.
func (h *Host) Interface() *NetworkInterface {
	return h.iface
}

// Peer returns the host's TCP endpoint.
func (h *Host) Peer() *Peer {
	return h.peer
}

func (h *Host) send(seg Segment) {
	dgram, err := EncodeSegment(seg, h.local, h.remote)
	if err != nil {
		log.Warn().Err(err).Stringer("segment", seg).Msg("host dropping unencodable segment")
		return
	}
	h.iface.SendDatagram(dgram, h.nextHop)
}
