package email

import (
	"context"

	"github.com/redmonkez12/printcost-auth/internal/logging"
)

// Message is a rendered email ready for delivery.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Sender delivers a Message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NoopSender is used when no provider is configured. It never contacts
// anything and always succeeds.
type NoopSender struct {
	logger *logging.Logger
}

func NewNoopSender(logger *logging.Logger) *NoopSender {
	return &NoopSender{logger: logger}
}

func (s *NoopSender) Send(ctx context.Context, msg Message) error {
	logging.FromContext(ctx, s.logger).Info("email provider not configured, skipping send", "subject", msg.Subject)
	return nil
}
