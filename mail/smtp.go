package mail

import (
	"context"
	"fmt"

	gomail "github.com/wneessen/go-mail"

	"github.com/signalist/notifier/pipeline"
)

// SMTPConfig carries the connection settings for the outbound mail server.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string

	// From is the sender identity, e.g. `"Signalist" <signalist@gmail.com>`.
	From string
}

// SMTPSender delivers messages over SMTP.
//
// A fresh connection is dialed per message and closed when delivery
// finishes, so a half-closed connection from one send never poisons the
// next one.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender validates the config and returns a ready sender.
func NewSMTPSender(cfg SMTPConfig) (*SMTPSender, error) {
	if cfg.Host == "" {
		return nil, fmt.Errorf("smtp host is required")
	}
	if cfg.From == "" {
		return nil, fmt.Errorf("smtp from address is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 587
	}
	return &SMTPSender{cfg: cfg}, nil
}

// Send implements Sender. Delivery failures are reported as transient:
// mail servers throttle and drop connections routinely, and a retry with
// backoff usually clears it.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := gomail.NewMsg()
	if err := m.From(s.cfg.From); err != nil {
		return pipeline.Permanent("smtp send", fmt.Errorf("from address: %w", err))
	}
	if err := m.To(msg.To); err != nil {
		return pipeline.Permanent("smtp send", fmt.Errorf("to address: %w", err))
	}
	m.Subject(msg.Subject)
	m.SetBodyString(gomail.TypeTextHTML, msg.HTMLBody)
	if msg.TextBody != "" {
		m.AddAlternativeString(gomail.TypeTextPlain, msg.TextBody)
	}

	client, err := gomail.NewClient(s.cfg.Host,
		gomail.WithPort(s.cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(s.cfg.Username),
		gomail.WithPassword(s.cfg.Password),
	)
	if err != nil {
		return pipeline.Permanent("smtp send", fmt.Errorf("smtp client: %w", err))
	}
	defer client.Close()

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return pipeline.Transient("smtp send", err)
	}
	return nil
}
