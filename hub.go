package tcpcore

import (
	"github.com/rs/zerolog/log"
)

// queuedFrame is a frame on the wire, already serialized.
type queuedFrame struct {
	from *NetworkInterface
	wire []byte
}

// Hub is a simulated shared Ethernet segment. Frames transmitted by an
// attached interface are queued in wire form and handed to every other
// attached interface on Deliver. Nothing happens between calls, so a
// simulation built on a Hub is deterministic.
type Hub struct {
	ifaces []*NetworkInterface
	queue  []queuedFrame

	// Drop, when set, is consulted for every frame before delivery; returning
	// true loses the frame.
	Drop func(EthernetFrame) bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{}
}

// Attach connects iface to the hub. The interface must have been created
// with the hub as its OutputPort.
func (h *Hub) Attach(iface *NetworkInterface) {
	h.ifaces = append(h.ifaces, iface)
}

// Transmit implements OutputPort.
func (h *Hub) Transmit(sender *NetworkInterface, frame EthernetFrame) {
	h.queue = append(h.queue, queuedFrame{from: sender, wire: frame.Serialize()})
}

// Pending returns how many frames are waiting for delivery.
func (h *Hub) Pending() int {
	return len(h.queue)
}

// Deliver hands every queued frame to the attached interfaces and returns how
// many frames were taken off the queue. Frames transmitted while delivering
// stay queued for the next call.
func (h *Hub) Deliver() int {
	batch := h.queue
	h.queue = nil

	for _, q := range batch {
		frame, err := ParseEthernetFrame(q.wire)
		if err != nil {
			log.Warn().Err(err).Msg("hub dropping unparseable frame")
			continue
		}
		if h.Drop != nil && h.Drop(frame) {
			log.Trace().
				Stringer("dst", frame.Dst).
				Stringer("type", frame.Type).
				Msg("hub dropped frame")
			continue
		}
		for _, iface := range h.ifaces {
			if iface != q.from {
				iface.RecvFrame(frame)
			}
		}
	}
	return len(batch)
}
