package tcpcore

// retransmitTimer is a logical countdown driven only by tick. It never reads
// the wall clock.
type retransmitTimer struct {
	timeout uint64 // ms
	elapsed uint64 // ms since last restart
	running bool
}

func newRetransmitTimer(timeout uint64) retransmitTimer {
	return retransmitTimer{timeout: timeout}
}

func (t *retransmitTimer) restart() {
	t.running = true
	t.elapsed = 0
}

func (t *retransmitTimer) stop() {
	t.running = false
}

func (t *retransmitTimer) tick(ms uint64) {
	if t.running {
		t.elapsed += ms
	}
}

func (t *retransmitTimer) expired() bool {
	return t.running && t.elapsed >= t.timeout
}

// backoff doubles the timeout, RFC 6298 section 5.5.
func (t *retransmitTimer) backoff() {
	t.timeout *= 2
}
