// Package mail delivers plain-text messages through a configurable provider.
package mail

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
	"go.uber.org/zap"
	"gopkg.in/gomail.v2"

	"github.com/noah-isme/sma-identity-api/pkg/config"
)

// Message is a single outbound e-mail.
type Message struct {
	To      string
	ToName  string
	Subject string
	Body    string
}

// Sender delivers messages.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// NewSender selects the provider configured in cfg.
func NewSender(cfg config.MailConfig, logger *zap.Logger) (Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch cfg.Provider {
	case "", config.MailProviderLog:
		return NewLogSender(logger, cfg.SubjectPrefix), nil
	case config.MailProviderSendgrid:
		if cfg.SendgridAPIKey == "" {
			return nil, fmt.Errorf("mail: sendgrid provider requires SENDGRID_API_KEY")
		}
		return NewSendgridSender(cfg), nil
	case config.MailProviderSMTP:
		if cfg.SMTPHost == "" {
			return nil, fmt.Errorf("mail: smtp provider requires SMTP_HOST")
		}
		return NewSMTPSender(cfg), nil
	default:
		return nil, fmt.Errorf("mail: unknown provider %q", cfg.Provider)
	}
}

// LogSender writes messages to the logger instead of delivering them.
type LogSender struct {
	logger        *zap.Logger
	subjectPrefix string
}

// NewLogSender constructs a LogSender.
func NewLogSender(logger *zap.Logger, subjectPrefix string) *LogSender {
	return &LogSender{logger: logger, subjectPrefix: subjectPrefix}
}

// Send implements Sender.
func (s *LogSender) Send(_ context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	s.logger.Info("mail (log provider)",
		zap.String("to", msg.To),
		zap.String("subject", s.subjectPrefix+msg.Subject),
		zap.Int("body_bytes", len(msg.Body)),
	)
	return nil
}

// SendgridSender delivers through the SendGrid v3 API.
type SendgridSender struct {
	client        *sendgrid.Client
	from          *sgmail.Email
	subjectPrefix string
}

// NewSendgridSender constructs a SendgridSender.
func NewSendgridSender(cfg config.MailConfig) *SendgridSender {
	return &SendgridSender{
		client:        sendgrid.NewSendClient(cfg.SendgridAPIKey),
		from:          sgmail.NewEmail(cfg.FromName, cfg.FromAddress),
		subjectPrefix: cfg.SubjectPrefix,
	}
}

// Send implements Sender.
func (s *SendgridSender) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	to := sgmail.NewEmail(msg.ToName, msg.To)
	payload := sgmail.NewSingleEmail(s.from, s.subjectPrefix+msg.Subject, to, msg.Body, "")

	res, err := s.client.Send(payload)
	if err != nil {
		return fmt.Errorf("sendgrid send: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid send: status %d: %s", res.StatusCode, res.Body)
	}
	return nil
}

// SMTPSender delivers through a plain SMTP relay.
type SMTPSender struct {
	dialer        *gomail.Dialer
	fromName      string
	fromAddress   string
	subjectPrefix string
}

// NewSMTPSender constructs an SMTPSender.
func NewSMTPSender(cfg config.MailConfig) *SMTPSender {
	return &SMTPSender{
		dialer:        gomail.NewDialer(cfg.SMTPHost, cfg.SMTPPort, cfg.SMTPUsername, cfg.SMTPPassword),
		fromName:      cfg.FromName,
		fromAddress:   cfg.FromAddress,
		subjectPrefix: cfg.SubjectPrefix,
	}
}

// Send implements Sender. The SMTP dialer is not context aware; ctx is only
// checked before dialing.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	if err := validate(msg); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m := gomail.NewMessage()
	m.SetAddressHeader("From", s.fromAddress, s.fromName)
	if msg.ToName != "" {
		m.SetAddressHeader("To", msg.To, msg.ToName)
	} else {
		m.SetHeader("To", msg.To)
	}
	m.SetHeader("Subject", s.subjectPrefix+msg.Subject)
	m.SetBody("text/plain", msg.Body)

	if err := s.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}
	return nil
}

func validate(msg Message) error {
	if strings.TrimSpace(msg.To) == "" {
		return fmt.Errorf("mail: recipient is required")
	}
	if strings.TrimSpace(msg.Subject) == "" && strings.TrimSpace(msg.Body) == "" {
		return fmt.Errorf("mail: message has no content")
	}
	return nil
}
