package alerting

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/wneessen/go-mail"
)

// EmailOptions parameterise the SMTP notifier.
type EmailOptions struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	Timeout  time.Duration
}

// EmailNotifier sends plain-text mail over SMTP with mandatory STARTTLS.
type EmailNotifier struct {
	opts   EmailOptions
	logger zerolog.Logger
}

// NewEmailNotifier 构造邮件告警器。
func NewEmailNotifier(opts EmailOptions, logger zerolog.Logger) *EmailNotifier {
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Port <= 0 {
		opts.Port = 587
	}
	return &EmailNotifier{opts: opts, logger: logger.With().Str("component", "notify_email").Logger()}
}

// Send delivers msg to msg.To.
func (n *EmailNotifier) Send(ctx context.Context, msg Message) error {
	m, err := n.buildMessage(msg)
	if err != nil {
		return err
	}

	clientOpts := []mail.Option{
		mail.WithPort(n.opts.Port),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(n.opts.Timeout),
	}
	if n.opts.Username != "" {
		clientOpts = append(clientOpts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(n.opts.Username),
			mail.WithPassword(n.opts.Password),
		)
	}

	client, err := mail.NewClient(n.opts.Host, clientOpts...)
	if err != nil {
		return fmt.Errorf("create smtp client: %w", err)
	}
	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	n.logger.Info().Str("recipient", msg.To).Str("subject", msg.Subject).Msg("告警已发送 (Email)")
	return nil
}

func (n *EmailNotifier) buildMessage(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(n.opts.From); err != nil {
		return nil, fmt.Errorf("invalid sender %q: %w", n.opts.From, err)
	}
	if err := m.To(msg.To); err != nil {
		return nil, fmt.Errorf("invalid recipient %q: %w", msg.To, err)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetBodyString(mail.TypeTextPlain, msg.Body)
	return m, nil
}

var _ Notifier = (*EmailNotifier)(nil)
