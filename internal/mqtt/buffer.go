package mqtt

// message is a serialized publish kept for replay after a reconnect.
type message struct {
	topic    string
	payload  []byte
	qos      byte
	retained bool
}

// ringBuffer is a fixed-capacity FIFO of messages published while the broker
// was unreachable. When full, the oldest message is overwritten.
// Not safe for concurrent use.
type ringBuffer struct {
	buf      []message
	head     int // next write position
	count    int
	overflow bool // set once per drain cycle
}

func newRingBuffer(capacity int) *ringBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer{buf: make([]message, capacity)}
}

func (r *ringBuffer) push(m message) {
	r.buf[r.head] = m
	r.head = (r.head + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
		return
	}
	if !r.overflow {
		log.Warningf("offline buffer full (%d messages), dropping oldest", len(r.buf))
		r.overflow = true
	}
}

// drain returns the buffered messages oldest first and empties the buffer.
func (r *ringBuffer) drain() []message {
	if r.count == 0 {
		return nil
	}
	out := make([]message, r.count)
	start := (r.head - r.count + len(r.buf)) % len(r.buf)
	for i := range out {
		out[i] = r.buf[(start+i)%len(r.buf)]
	}
	r.head, r.count, r.overflow = 0, 0, false
	return out
}

func (r *ringBuffer) len() int {
	return r.count
}
