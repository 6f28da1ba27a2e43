package tcpcore

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSenderInitialSYN(t *testing.T) {
	const isn = Wrap32(100)
	s := newTestSender(t, 1000, isn, 1000)
	var c messageCollector

	s.Push(c.transmit)
	msgs := c.take()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].SYN)
	assert.Equal(t, isn, msgs[0].Seqno)
	assert.Empty(t, msgs[0].Payload)
	assert.Equal(t, uint64(1), s.SequenceNumbersInFlight())

	s.Push(c.transmit)
	assert.Empty(t, c.take(), "window of one is already full")
}

func TestSenderSYNDataFINInOneSegment(t *testing.T) {
	const isn = Wrap32(0xFFFFFFFE)
	s := newTestSender(t, 1000, isn, 1000)
	r := NewReceiver(1000)
	var c messageCollector

	s.Writer().Push([]byte("hello"))
	s.Writer().Close()
	s.Receive(r.Send())
	s.Push(c.transmit)

	msgs := c.take()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].SYN)
	assert.True(t, msgs[0].FIN)
	assert.Equal(t, "hello", string(msgs[0].Payload))
	assert.Equal(t, uint64(7), msgs[0].SequenceLength())

	r.Receive(msgs[0])
	ack := r.Send()
	require.NotNil(t, ack.Ackno)
	assert.Equal(t, Wrap(7, isn), *ack.Ackno)
	assert.Equal(t, "hello", readAll(r.Reader()))

	s.Receive(ack)
	assert.Zero(t, s.SequenceNumbersInFlight())
	assert.True(t, s.FINSent())
}

func TestSenderSegmentsByPayloadAndWindow(t *testing.T) {
	const isn = Wrap32(0)
	s := NewSender(NewByteStream(10000), isn, SenderConfig{InitialRTOMs: 1000, MaxPayloadSize: 4})
	var c messageCollector

	s.Push(c.transmit)
	s.Receive(ackFor(1, isn, 10))
	c.take()

	s.Writer().Push([]byte("abcdefghijklmnop"))
	s.Push(c.transmit)

	msgs := c.take()
	require.Len(t, msgs, 3)
	assert.Equal(t, "abcd", string(msgs[0].Payload))
	assert.Equal(t, "efgh", string(msgs[1].Payload))
	assert.Equal(t, "ij", string(msgs[2].Payload), "window of ten ends here")
	assert.Equal(t, Wrap(1, isn), msgs[0].Seqno)
	assert.Equal(t, Wrap(5, isn), msgs[1].Seqno)
	assert.Equal(t, Wrap(9, isn), msgs[2].Seqno)
	assert.Equal(t, uint64(10), s.SequenceNumbersInFlight())
}

func TestSenderFINWaitsForWindow(t *testing.T) {
	const isn = Wrap32(0)
	s := newTestSender(t, 100, isn, 1000)
	var c messageCollector

	s.Push(c.transmit)
	s.Receive(ackFor(1, isn, 3))
	c.take()

	s.Writer().Push([]byte("abc"))
	s.Writer().Close()
	s.Push(c.transmit)
	msgs := c.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "abc", string(msgs[0].Payload))
	assert.False(t, msgs[0].FIN, "FIN does not fit")

	s.Receive(ackFor(4, isn, 3))
	s.Push(c.transmit)
	msgs = c.take()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].FIN)
	assert.Equal(t, Wrap(4, isn), msgs[0].Seqno)
}

func TestSenderSendsExactlyOneFIN(t *testing.T) {
	const isn = Wrap32(42)
	s := newTestSender(t, 100, isn, 1000)
	var c messageCollector

	s.Push(c.transmit)
	s.Receive(ackFor(1, isn, 100))
	s.Writer().Close()

	for i := 0; i < 3; i++ {
		s.Push(c.transmit)
	}
	s.Receive(ackFor(2, isn, 100))
	s.Push(c.transmit)

	fins := 0
	for _, m := range c.take() {
		if m.FIN {
			fins++
		}
	}
	assert.Equal(t, 1, fins)
}

func TestSenderZeroWindowProbe(t *testing.T) {
	const isn = Wrap32(0)
	s := newTestSender(t, 100, isn, 1000)
	var c messageCollector

	s.Push(c.transmit)
	s.Receive(ackFor(1, isn, 0))
	c.take()

	s.Writer().Push([]byte("xyz"))
	s.Push(c.transmit)
	msgs := c.take()
	require.Len(t, msgs, 1, "zero window is probed as one byte")
	assert.Equal(t, "x", string(msgs[0].Payload))

	s.Push(c.transmit)
	assert.Empty(t, c.take())
}

func TestSenderRetransmitBackoff(t *testing.T) {
	const isn = Wrap32(0)
	const rto = 1000
	s := newTestSender(t, 100, isn, rto)
	var c messageCollector

	s.Push(c.transmit)
	syn := c.take()
	require.Len(t, syn, 1)

	s.Tick(rto-1, c.transmit)
	assert.Empty(t, c.take())

	s.Tick(1, c.transmit)
	again := c.take()
	require.Len(t, again, 1)
	assert.Equal(t, syn[0], again[0])
	assert.Equal(t, uint64(1), s.ConsecutiveRetransmissions())
	assert.Equal(t, uint64(2*rto), s.CurrentRTO())

	s.Tick(2*rto-1, c.transmit)
	assert.Empty(t, c.take())
	s.Tick(1, c.transmit)
	assert.Len(t, c.take(), 1)
	assert.Equal(t, uint64(2), s.ConsecutiveRetransmissions())
	assert.Equal(t, uint64(4*rto), s.CurrentRTO())

	s.Receive(ackFor(1, isn, 100))
	assert.Zero(t, s.ConsecutiveRetransmissions())
	assert.Equal(t, uint64(rto), s.CurrentRTO())
	assert.Zero(t, s.SequenceNumbersInFlight())

	s.Tick(10*rto, c.transmit)
	assert.Empty(t, c.take(), "timer stops once nothing is outstanding")
}

func TestSenderNoBackoffOnZeroWindow(t *testing.T) {
	const isn = Wrap32(0)
	const rto = 500
	s := newTestSender(t, 100, isn, rto)
	var c messageCollector

	s.Push(c.transmit)
	s.Receive(ackFor(1, isn, 0))
	s.Writer().Push([]byte("a"))
	s.Push(c.transmit)
	c.take()

	for i := 0; i < 3; i++ {
		s.Tick(rto, c.transmit)
		require.Len(t, c.take(), 1)
	}
	assert.Zero(t, s.ConsecutiveRetransmissions())
	assert.Equal(t, uint64(rto), s.CurrentRTO())
}

func TestSenderRetransmitsOldestOnly(t *testing.T) {
	const isn = Wrap32(0)
	s := NewSender(NewByteStream(100), isn, SenderConfig{InitialRTOMs: 100, MaxPayloadSize: 2})
	var c messageCollector

	s.Push(c.transmit)
	s.Receive(ackFor(1, isn, 50))
	c.take()

	s.Writer().Push([]byte("aabbcc"))
	s.Push(c.transmit)
	require.Len(t, c.take(), 3)

	s.Receive(ackFor(3, isn, 50))
	s.Tick(100, c.transmit)
	msgs := c.take()
	require.Len(t, msgs, 1)
	assert.Equal(t, "bb", string(msgs[0].Payload))
	assert.Equal(t, uint64(4), s.SequenceNumbersInFlight())
}

func TestSenderAckHandling(t *testing.T) {
	const isn = Wrap32(1 << 31)

	tests := []struct {
		name     string
		ack      ReceiverMessage
		inFlight uint64
	}{
		{name: "ack beyond next seqno ignored", ack: ackFor(50, isn, 100), inFlight: 11},
		{name: "ack one past next seqno ignored", ack: ackFor(12, isn, 100), inFlight: 11},
		{name: "partial ack keeps segment", ack: ackFor(5, isn, 100), inFlight: 11},
		{name: "full ack clears", ack: ackFor(11, isn, 100), inFlight: 0},
		{name: "window update without ackno", ack: ReceiverMessage{WindowSize: 100}, inFlight: 11},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSender(t, 100, isn, 1000)
			var c messageCollector
			s.Receive(ReceiverMessage{WindowSize: 100})
			s.Writer().Push([]byte(strings.Repeat("z", 10)))
			s.Push(c.transmit)
			require.Len(t, c.take(), 1)
			require.Equal(t, uint64(11), s.SequenceNumbersInFlight())

			s.Receive(tt.ack)
			assert.Equal(t, tt.inFlight, s.SequenceNumbersInFlight())

			s.Push(c.transmit)
			assert.Empty(t, c.take(), "nothing new to send")
		})
	}
}

func TestSenderRST(t *testing.T) {
	s := newTestSender(t, 100, 0, 1000)
	s.Receive(ReceiverMessage{RST: true})
	assert.True(t, s.Writer().HasError())
	assert.True(t, s.MakeEmptyMessage().RST)

	var c messageCollector
	s.Push(c.transmit)
	msgs := c.take()
	require.Len(t, msgs, 1)
	assert.True(t, msgs[0].RST)
}

func TestSenderMakeEmptyMessage(t *testing.T) {
	const isn = Wrap32(10)
	s := newTestSender(t, 100, isn, 1000)
	var c messageCollector

	s.Push(c.transmit)
	msg := s.MakeEmptyMessage()
	assert.Equal(t, isn+1, msg.Seqno)
	assert.Zero(t, msg.SequenceLength())
	assert.False(t, msg.RST)
}
