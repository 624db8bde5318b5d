package notify

import "context"

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	TextBody string
	HTMLBody string // optional alternative part
}

// Sender delivers transactional email (magic links, verification, resets).
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// Noop discards every message. Used in tests and when SMTP is not configured;
// flows that require email still succeed, the mail just goes nowhere.
type Noop struct{}

func (Noop) Send(ctx context.Context, msg Message) error { return nil }
