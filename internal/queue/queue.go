package queue

import "context"

// Queue accepts provisioning job messages. Send success means only
// that the transport accepted the message; delivery is at-least-once
// and unordered, and an enqueued job cannot be retracted.
type Queue interface {
	Send(ctx context.Context, body string) error
}

// Consumer pops job messages for out-of-process handling.
type Consumer interface {
	// Receive blocks until a message arrives or ctx is done.
	Receive(ctx context.Context) (string, error)
}
