package mqtt

import "testing"

func msg(b byte) message {
	return message{topic: "t", payload: []byte{b}}
}

func TestRingBufferEmptyDrain(t *testing.T) {
	if got := newRingBuffer(10).drain(); got != nil {
		t.Errorf("expected nil from empty drain, got %d items", len(got))
	}
}

func TestRingBufferPushAndDrain(t *testing.T) {
	rb := newRingBuffer(10)
	for i := 0; i < 5; i++ {
		rb.push(msg(byte(i)))
	}
	if rb.len() != 5 {
		t.Fatalf("len: got %d, want 5", rb.len())
	}

	got := rb.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i, m := range got {
		if m.payload[0] != byte(i) {
			t.Errorf("item %d: got payload %d", i, m.payload[0])
		}
	}
	if rb.drain() != nil {
		t.Error("second drain should be empty")
	}
}

func TestRingBufferOverflowKeepsNewest(t *testing.T) {
	rb := newRingBuffer(5)
	for i := 0; i < 8; i++ {
		rb.push(msg(byte(i)))
	}

	got := rb.drain()
	if len(got) != 5 {
		t.Fatalf("expected 5 items, got %d", len(got))
	}
	for i, m := range got {
		if want := byte(i + 3); m.payload[0] != want {
			t.Errorf("item %d: got %d, want %d", i, m.payload[0], want)
		}
	}
	if rb.overflow {
		t.Error("overflow flag should reset on drain")
	}
}

func TestRingBufferReusableAfterDrain(t *testing.T) {
	rb := newRingBuffer(3)
	for round := 0; round < 3; round++ {
		rb.push(msg(1))
		rb.push(msg(2))
		got := rb.drain()
		if len(got) != 2 || got[0].payload[0] != 1 || got[1].payload[0] != 2 {
			t.Errorf("round %d: %v", round, got)
		}
	}
}

func TestRingBufferPreservesFields(t *testing.T) {
	rb := newRingBuffer(2)
	rb.push(message{topic: TopicSystem, payload: []byte("x"), qos: 1, retained: true})

	got := rb.drain()
	if got[0].topic != TopicSystem || got[0].qos != 1 || !got[0].retained {
		t.Errorf("fields not preserved: %+v", got[0])
	}
}
