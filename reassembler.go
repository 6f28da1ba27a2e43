package tcpcore

import (
	"errors"
	"fmt"
	"math"

	"github.com/bits-and-blooms/bitset"
	"github.com/rs/zerolog/log"
)

// ErrConflictingData is returned when a substring disagrees with bytes already
// held for the same stream index.
var ErrConflictingData = errors.New("conflicting data for stream index")

// Reassembler rebuilds a linear byte stream from indexed substrings that may
// arrive out of order, overlap, or repeat.
//
// Pending bytes are kept in a fixed ring of capacity slots, one per absolute
// index in [next, next+capacity), so memory never exceeds the output stream's
// capacity no matter what the peer sends.
type Reassembler struct {
	output   *ByteStream
	capacity uint64

	slots  []byte
	filled *bitset.BitSet

	next    uint64 // first index the output still needs
	end     uint64 // one past the last stream byte; MaxUint64 until learned
	pending uint64
}

// NewReassembler creates a Reassembler that writes into output.
// The Reassembler takes exclusive ownership of the stream's writer side.
func NewReassembler(output *ByteStream) *Reassembler {
	capacity := output.Capacity()
	return &Reassembler{
		output:   output,
		capacity: capacity,
		slots:    make([]byte, capacity),
		filled:   bitset.New(uint(capacity)),
		end:      math.MaxUint64,
	}
}

// Insert accepts data starting at absolute index first. isLast marks data as
// the final substring of the stream.
//
// Bytes outside [next, next+available capacity) are dropped. If any retained
// byte differs from one already held for the same index, nothing is written
// and a wrapped ErrConflictingData is returned.
func (r *Reassembler) Insert(first uint64, data []byte, isLast bool) error {
	last := first + uint64(len(data))

	start := max(r.next, first)
	stop := min(last, r.next+r.output.AvailableCapacity(), r.end)

	if err := r.checkConsistent(first, data, start, stop); err != nil {
		log.Error().
			Err(err).
			Uint64("first", first).
			Int("len", len(data)).
			Msg("reassembler rejected substring")
		return err
	}

	if isLast && last < r.end {
		r.end = last
		log.Debug().Uint64("end", r.end).Msg("reassembler learned end of stream")
	}

	for i := start; i < stop; i++ {
		slot := uint(i % r.capacity)
		if r.filled.Test(slot) {
			continue
		}
		r.slots[slot] = data[i-first]
		r.filled.Set(slot)
		r.pending++
	}

	r.drain()
	return nil
}

// checkConsistent verifies every retained byte against already-filled slots.
func (r *Reassembler) checkConsistent(first uint64, data []byte, start, stop uint64) error {
	for i := start; i < stop; i++ {
		slot := uint(i % r.capacity)
		if r.filled.Test(slot) && r.slots[slot] != data[i-first] {
			return fmt.Errorf("index %d: have %#02x, got %#02x: %w",
				i, r.slots[slot], data[i-first], ErrConflictingData)
		}
	}
	return nil
}

// drain moves the contiguous run starting at next into the output stream and
// closes the stream once the end is reached.
func (r *Reassembler) drain() {
	var run []byte
	for r.capacity > 0 && r.next < r.end {
		slot := uint(r.next % r.capacity)
		if !r.filled.Test(slot) {
			break
		}
		run = append(run, r.slots[slot])
		r.filled.Clear(slot)
		r.pending--
		r.next++
	}

	if len(run) > 0 {
		r.output.Push(run)
		log.Trace().
			Int("bytes", len(run)).
			Uint64("next", r.next).
			Msg("reassembler delivered contiguous run")
	}

	if r.next == r.end && !r.output.IsClosed() {
		r.output.Close()
		log.Debug().Uint64("end", r.end).Msg("reassembler closed output stream")
	}
}

// BytesPending returns how many bytes are held but not yet delivered.
func (r *Reassembler) BytesPending() uint64 {
	return r.pending
}

// Output returns the stream the Reassembler writes into.
func (r *Reassembler) Output() *ByteStream {
	return r.output
}
