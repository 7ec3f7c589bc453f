package sender

import (
	"bytes"
	"context"
	"errors"
	"fmt"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"filerelay/internal/config"
	"filerelay/internal/logging"
	"filerelay/internal/models"
)

// MailMessage is one outgoing message with its attachments.
type MailMessage struct {
	Subject     string
	Text        string
	Attachments []*models.StagedFile
}

type deliverFunc func(ctx context.Context, msg *gomail.Msg) error

// Mail sends messages through an SMTP relay.
type Mail struct {
	from    string
	to      string
	deliver deliverFunc
	logger  *zap.Logger
}

// NewMail builds an SMTP sender from the mail settings.
func NewMail(cfg config.MailConfig, logger *zap.Logger) (*Mail, error) {
	opts := []gomail.Option{
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
	}
	switch cfg.TLS {
	case config.TLSPlain:
		opts = append(opts, gomail.WithTLSPolicy(gomail.NoTLS), gomail.WithSMTPAuth(gomail.SMTPAuthPlainNoEnc))
	case config.TLSStartTLS:
		opts = append(opts, gomail.WithTLSPortPolicy(gomail.TLSMandatory), gomail.WithSMTPAuth(gomail.SMTPAuthPlain))
	default:
		opts = append(opts, gomail.WithSSLPort(false), gomail.WithSMTPAuth(gomail.SMTPAuthPlain))
	}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}
	return &Mail{
		from: cfg.Username,
		to:   cfg.Recipient,
		deliver: func(ctx context.Context, msg *gomail.Msg) error {
			return client.DialAndSendWithContext(ctx, msg)
		},
		logger: logging.OrNop(logger).Named("mail"),
	}, nil
}

// Send composes msg and hands it to the SMTP server. The returned string is
// the status reported to the caller.
func (m *Mail) Send(ctx context.Context, msg MailMessage) (string, error) {
	out, err := m.compose(msg)
	if err != nil {
		return "", err
	}
	if err := m.deliver(ctx, out); err != nil {
		sendErr := &SendError{Destination: DestinationMail, Err: err}
		var smtpErr *gomail.SendError
		if errors.As(err, &smtpErr) {
			sendErr.Temporary = smtpErr.IsTemp()
			sendErr.Code = smtpErr.ErrorCode()
		}
		m.logger.Warn("smtp send failed", zap.Int("attachments", len(msg.Attachments)), zap.Error(err))
		return "", sendErr
	}
	m.logger.Info("mail sent", zap.String("to", m.to), zap.Int("attachments", len(msg.Attachments)))
	return fmt.Sprintf("OK: message accepted for %s", m.to), nil
}

func (m *Mail) compose(msg MailMessage) (*gomail.Msg, error) {
	out := gomail.NewMsg()
	if err := out.From(m.from); err != nil {
		return nil, fmt.Errorf("set sender %q: %w", m.from, err)
	}
	if err := out.To(m.to); err != nil {
		return nil, fmt.Errorf("set recipient %q: %w", m.to, err)
	}
	out.Subject(msg.Subject)
	out.SetBodyString(gomail.TypeTextPlain, msg.Text)
	for _, file := range msg.Attachments {
		if file == nil {
			continue
		}
		if err := out.AttachReader(file.FileName, bytes.NewReader(file.Content)); err != nil {
			return nil, fmt.Errorf("attach %s: %w", file.FileName, err)
		}
	}
	return out, nil
}
