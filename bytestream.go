// Package tcpcore implements the transport and link core of a small TCP/IP stack:
// a bounded byte stream, an out-of-order reassembler, 32-bit wrapped sequence
// numbers, the TCP sender and receiver, and an Ethernet network interface that
// resolves next hops with ARP.
//
// Architecture:
//   - Every component is single-threaded and owned by exactly one caller
//   - Time is a logical clock advanced only through explicit Tick calls
//   - Wire encoding lives at the edges (codec.go, segment.go); the core
//     exchanges plain Go structs
package tcpcore

import (
	"errors"
	"fmt"
	"io"

	"github.com/armon/circbuf"
	"github.com/rs/zerolog/log"
)

// ErrStreamError is returned by Read once the stream has been marked as failed.
var ErrStreamError = errors.New("stream error")

// ByteStream is a capacity-bounded, single-producer/single-consumer byte pipe.
//
// The producer side uses Push, Close and SetError; the consumer side uses Peek,
// Pop and Read. Pushes beyond the available capacity are silently truncated.
//
// Invariants:
//   - BytesPushed() - BytesPopped() == BytesBuffered()
//   - closed and errored never revert once set
type ByteStream struct {
	capacity uint64

	// buf holds buffered-but-unread bytes. Writes are clamped to the free
	// space so circbuf never overwrites unread data.
	buf *circbuf.Buffer

	pushed uint64
	popped uint64
	closed bool
	errd   bool
}

// NewByteStream creates a stream that holds at most capacity unread bytes.
func NewByteStream(capacity uint64) *ByteStream {
	s := &ByteStream{capacity: capacity}
	if capacity > 0 {
		// circbuf only rejects non-positive sizes
		buf, _ := circbuf.NewBuffer(int64(capacity))
		s.buf = buf
	}
	return s
}

// Push appends as much of data as fits and drops the rest.
func (s *ByteStream) Push(data []byte) {
	n := uint64(len(data))
	if avail := s.AvailableCapacity(); n > avail {
		log.Trace().
			Uint64("offered", n).
			Uint64("accepted", avail).
			Msg("byte stream push truncated")
		n = avail
	}
	if n == 0 {
		return
	}
	// clamped above, so Write cannot wrap
	_, _ = s.buf.Write(data[:n])
	s.pushed += n
}

// Close signals that no more bytes will be pushed. Idempotent.
func (s *ByteStream) Close() {
	s.closed = true
}

// SetError marks the stream as abnormally terminated.
func (s *ByteStream) SetError() {
	if !s.errd {
		log.Debug().
			Uint64("pushed", s.pushed).
			Uint64("popped", s.popped).
			Msg("byte stream error set")
	}
	s.errd = true
}

// HasError reports whether SetError has been called.
func (s *ByteStream) HasError() bool {
	return s.errd
}

// IsClosed reports whether the writer has closed the stream.
func (s *ByteStream) IsClosed() bool {
	return s.closed
}

// IsFinished reports whether the stream is closed and fully drained.
func (s *ByteStream) IsFinished() bool {
	return s.closed && s.BytesBuffered() == 0
}

// Capacity returns the fixed capacity given at construction.
func (s *ByteStream) Capacity() uint64 {
	return s.capacity
}

// AvailableCapacity returns how many more bytes Push would accept right now.
func (s *ByteStream) AvailableCapacity() uint64 {
	return s.capacity - s.BytesBuffered()
}

// BytesPushed returns the cumulative number of bytes accepted by Push.
func (s *ByteStream) BytesPushed() uint64 {
	return s.pushed
}

// BytesPopped returns the cumulative number of bytes removed by Pop.
func (s *ByteStream) BytesPopped() uint64 {
	return s.popped
}

// BytesBuffered returns the number of bytes pushed but not yet popped.
func (s *ByteStream) BytesBuffered() uint64 {
	return s.pushed - s.popped
}

// Peek returns a view of the next buffered byte without consuming it, or an
// empty slice when nothing is buffered.
func (s *ByteStream) Peek() []byte {
	if s.BytesBuffered() == 0 {
		return []byte{}
	}
	return s.buf.Bytes()[:1]
}

// Pop removes up to n buffered bytes.
func (s *ByteStream) Pop(n uint64) {
	s.PopBytes(n)
}

// PopBytes removes up to n buffered bytes and returns them.
func (s *ByteStream) PopBytes(n uint64) []byte {
	buffered := s.BytesBuffered()
	if n > buffered {
		n = buffered
	}
	if n == 0 {
		return nil
	}

	// Bytes aliases the ring, so copy out before rewriting it
	data := s.buf.Bytes()
	out := make([]byte, n)
	copy(out, data[:n])

	// circbuf has no consume operation: reset and rewrite the remainder
	s.buf.Reset()
	if remaining := data[n:]; len(remaining) > 0 {
		_, _ = s.buf.Write(remaining)
	}
	s.popped += n
	return out
}

// Read implements io.Reader on the consumer side.
// Returns io.EOF once the stream is finished.
func (s *ByteStream) Read(p []byte) (int, error) {
	if s.BytesBuffered() == 0 {
		if s.errd {
			return 0, fmt.Errorf("read after %d bytes: %w", s.popped, ErrStreamError)
		}
		if s.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	out := s.PopBytes(uint64(len(p)))
	return copy(p, out), nil
}
