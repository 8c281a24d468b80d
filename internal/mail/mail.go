// Package mail delivers plain-text messages over SMTP.
package mail

import (
	"context"
	"fmt"
	"strings"

	gomail "github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/spigell/cv-screener/internal/apperr"
)

type Message struct {
	From    string
	To      string
	Subject string
	Body    string
}

type Config struct {
	Host      string
	Port      int
	Username  string
	Password  string
	TLSPolicy string
}

type Sender struct {
	client *gomail.Client
	logger *zap.Logger
}

func NewSender(cfg Config, logger *zap.Logger) (*Sender, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if strings.TrimSpace(cfg.Host) == "" {
		return nil, fmt.Errorf("smtp host is required")
	}

	policy, err := tlsPolicy(cfg.TLSPolicy)
	if err != nil {
		return nil, err
	}

	opts := []gomail.Option{gomail.WithTLSPolicy(policy)}
	if cfg.Port > 0 {
		opts = append(opts, gomail.WithPort(cfg.Port))
	}
	if cfg.Username != "" {
		opts = append(opts,
			gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
			gomail.WithUsername(cfg.Username),
			gomail.WithPassword(cfg.Password),
		)
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &Sender{client: client, logger: logger.With(zap.String("smtp_host", cfg.Host))}, nil
}

// Send delivers m. Any failure is reported as apperr.ErrTransport.
func (s *Sender) Send(ctx context.Context, m Message) error {
	msg, err := buildMessage(m)
	if err != nil {
		return apperr.Wrap(apperr.ErrTransport, "build mail", err)
	}

	if err := s.client.DialAndSendWithContext(ctx, msg); err != nil {
		return apperr.Wrap(apperr.ErrTransport, "send mail", err)
	}

	s.logger.Debug("mail sent", zap.String("to", m.To), zap.String("subject", m.Subject))
	return nil
}

func buildMessage(m Message) (*gomail.Msg, error) {
	msg := gomail.NewMsg()
	if err := msg.From(m.From); err != nil {
		return nil, fmt.Errorf("from address %q: %w", m.From, err)
	}
	if err := msg.To(m.To); err != nil {
		return nil, fmt.Errorf("to address %q: %w", m.To, err)
	}
	msg.Subject(m.Subject)
	msg.SetBodyString(gomail.TypeTextPlain, m.Body)
	return msg, nil
}

func tlsPolicy(name string) (gomail.TLSPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "mandatory":
		return gomail.TLSMandatory, nil
	case "opportunistic":
		return gomail.TLSOpportunistic, nil
	case "none":
		return gomail.NoTLS, nil
	default:
		return gomail.TLSMandatory, fmt.Errorf("unknown tls policy %q", name)
	}
}
