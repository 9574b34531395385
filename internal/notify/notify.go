// Package notify delivers a text message to a list of recipients.
//
// Delivery is best effort: each recipient gets one attempt bounded by a
// timeout, and a failure for one recipient never stops delivery to the rest.
package notify

import (
	"context"
	"fmt"
	"time"

	"github.com/op/go-logging"
)

var log = logging.MustGetLogger("notify")

// DefaultTimeout bounds a single delivery.
const DefaultTimeout = 10 * time.Second

// Sender delivers one message to one recipient.
type Sender interface {
	Send(ctx context.Context, recipient int64, text string) error
}

// Result is the outcome for one recipient. Err is nil on success.
type Result struct {
	Recipient int64
	Err       error
}

// Notifier fans a message out to recipients through a Sender.
type Notifier struct {
	sender  Sender
	timeout time.Duration
}

// New creates a Notifier. A zero timeout selects DefaultTimeout.
func New(sender Sender, timeout time.Duration) *Notifier {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Notifier{sender: sender, timeout: timeout}
}

// Notify sends text to each recipient in order and returns one Result per
// recipient. An empty recipient list makes no attempts.
func (n *Notifier) Notify(ctx context.Context, recipients []int64, text string) []Result {
	if len(recipients) == 0 {
		return nil
	}

	results := make([]Result, 0, len(recipients))
	for _, id := range recipients {
		err := n.send(ctx, id, text)
		if err != nil {
			log.Warningf("delivery to %d failed: %v", id, err)
		}
		results = append(results, Result{Recipient: id, Err: err})
	}
	return results
}

func (n *Notifier) send(ctx context.Context, id int64, text string) error {
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("sender panic: %v", r)
			}
		}()
		done <- n.sender.Send(ctx, id, text)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return fmt.Errorf("send to %d: %w", id, ctx.Err())
	}
}

// Failed returns the results that carry an error.
func Failed(results []Result) []Result {
	var out []Result
	for _, r := range results {
		if r.Err != nil {
			out = append(out, r)
		}
	}
	return out
}
