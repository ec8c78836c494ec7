package mqtt

// bufferedMsg stores a serialized message for replay after reconnection.
type bufferedMsg struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO holding messages while the broker is
// unreachable. When full, the oldest message is overwritten: recent telemetry
// is worth more than old telemetry. Not safe for concurrent use; the caller
// synchronizes.
type ringBuffer struct {
	buf      []bufferedMsg
	capacity int
	head     int // next write position
	count    int
	dropped  int // messages lost to overflow since the last drain
}

func newRingBuffer(capacity int) *ringBuffer {
	return &ringBuffer{
		buf:      make([]bufferedMsg, capacity),
		capacity: capacity,
	}
}

func (r *ringBuffer) push(msg bufferedMsg) {
	if r.count == r.capacity {
		// head already points at the oldest entry; overwrite it.
		r.buf[r.head] = msg
		r.head = (r.head + 1) % r.capacity
		r.dropped++
		return
	}
	r.buf[r.head] = msg
	r.head = (r.head + 1) % r.capacity
	r.count++
}

// drain removes and returns all buffered messages in FIFO order, plus the
// number of messages lost to overflow while buffering.
func (r *ringBuffer) drain() (msgs []bufferedMsg, dropped int) {
	dropped = r.dropped
	if r.count == 0 {
		r.dropped = 0
		return nil, dropped
	}

	msgs = make([]bufferedMsg, r.count)
	start := (r.head - r.count + r.capacity) % r.capacity
	for i := 0; i < r.count; i++ {
		msgs[i] = r.buf[(start+i)%r.capacity]
	}

	r.count = 0
	r.head = 0
	r.dropped = 0
	return msgs, dropped
}

func (r *ringBuffer) size() int {
	return r.count
}
