package tcpcore

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"

	"github.com/google/netstack/tcpip/seqnum"
)

// Wrap32 is a 32-bit wire sequence number: (zero point + absolute) mod 2^32.
type Wrap32 uint32

const halfSpace = uint64(1) << 31

// Wrap converts an absolute sequence number into its wire form relative to zero.
func Wrap(n uint64, zero Wrap32) Wrap32 {
	return Wrap32(seqnum.Value(zero).Add(seqnum.Size(uint32(n))))
}

// Unwrap returns the absolute sequence number closest to checkpoint that wraps
// to w. When two candidates are equally close the lower one wins.
func (w Wrap32) Unwrap(zero Wrap32, checkpoint uint64) uint64 {
	low := uint64(seqnum.Value(zero).Size(seqnum.Value(w)))

	var below uint64
	if checkpoint > halfSpace {
		below = checkpoint - halfSpace
	}
	above := checkpoint + halfSpace
	if above < checkpoint {
		above = ^uint64(0)
	}

	lower := low | below&^0xFFFFFFFF
	upper := low | above&^0xFFFFFFFF

	if absDiff(upper, checkpoint) < absDiff(lower, checkpoint) {
		return upper
	}
	return lower
}

// String implements fmt.Stringer.
func (w Wrap32) String() string {
	return fmt.Sprintf("%d", uint32(w))
}

func absDiff(a, b uint64) uint64 {
	if a > b {
		return a - b
	}
	return b - a
}

// RandomISN returns an initial sequence number drawn from crypto/rand.
func RandomISN() (Wrap32, error) {
	var b [4]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, fmt.Errorf("generate initial sequence number: %w", err)
	}
	return Wrap32(binary.BigEndian.Uint32(b[:])), nil
}
