// Package mail renders and delivers the notification emails: the welcome
// message on sign-up and the daily market news digest.
package mail

import "context"

// Message is a fully rendered email ready for delivery.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers rendered messages.
//
// Implementations:
//   - SMTPSender: production delivery over SMTP
//   - MockSender: in-memory capture for tests
type Sender interface {
	Send(ctx context.Context, msg Message) error
}
