package notify

import (
	"context"
	"sync"
)

// Message is a delivery recorded by FakeSender.
type Message struct {
	Recipient int64
	Text      string
}

// FakeSender records deliveries for test assertions.
type FakeSender struct {
	mu sync.Mutex

	// Sent contains successful deliveries in order.
	Sent []Message

	// Attempts counts every call to Send.
	Attempts int

	// Fail maps recipients to the error Send returns for them.
	Fail map[int64]error

	// Block lists recipients whose Send waits for the context to end.
	Block map[int64]bool
}

// NewFakeSender creates a FakeSender.
func NewFakeSender() *FakeSender {
	return &FakeSender{
		Fail:  make(map[int64]error),
		Block: make(map[int64]bool),
	}
}

// Send records the message or returns the configured failure.
func (f *FakeSender) Send(ctx context.Context, recipient int64, text string) error {
	f.mu.Lock()
	f.Attempts++
	block := f.Block[recipient]
	err := f.Fail[recipient]
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	if err != nil {
		return err
	}

	f.mu.Lock()
	f.Sent = append(f.Sent, Message{Recipient: recipient, Text: text})
	f.mu.Unlock()
	return nil
}

// Messages returns a copy of the successful deliveries.
func (f *FakeSender) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Message(nil), f.Sent...)
}

// AttemptCount returns the number of Send calls.
func (f *FakeSender) AttemptCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Attempts
}

// Reset clears recorded state.
func (f *FakeSender) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Sent = nil
	f.Attempts = 0
	f.Fail = make(map[int64]error)
	f.Block = make(map[int64]bool)
}
