// Package mailer sends single transactional emails through a pluggable provider.
package mailer

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"

	"go.uber.org/zap"
)

var (
	ErrSendFailed    = errors.New("mailer: send failed")
	ErrInvalidConfig = errors.New("mailer: invalid config")
	ErrInvalidInput  = errors.New("mailer: invalid message")
)

const (
	ProviderLog      = "log"
	ProviderPostmark = "postmark"
	ProviderSendGrid = "sendgrid"
)

// Gateway delivers one message. Implementations must be safe for concurrent use.
type Gateway interface {
	Send(ctx context.Context, msg Message) error
}

type Message struct {
	To      string
	Subject string
	Text    string
	HTML    string
	Tag     string
}

func (m Message) Validate() error {
	if strings.TrimSpace(m.To) == "" {
		return fmt.Errorf("%w: recipient is required", ErrInvalidInput)
	}
	if _, err := mail.ParseAddress(m.To); err != nil {
		return fmt.Errorf("%w: recipient %q: %v", ErrInvalidInput, m.To, err)
	}
	if strings.TrimSpace(m.Subject) == "" {
		return fmt.Errorf("%w: subject is required", ErrInvalidInput)
	}
	if strings.TrimSpace(m.Text) == "" && strings.TrimSpace(m.HTML) == "" {
		return fmt.Errorf("%w: body is required", ErrInvalidInput)
	}
	return nil
}

type Config struct {
	Provider             string
	FromAddress          string
	FromName             string
	ReplyTo              string
	PostmarkServerToken  string
	PostmarkAccountToken string
	SendGridAPIKey       string
}

// New builds the gateway selected by cfg.Provider. An empty provider falls
// back to the log gateway.
func New(cfg Config, logger *zap.Logger) (Gateway, error) {
	provider := strings.ToLower(strings.TrimSpace(cfg.Provider))
	switch provider {
	case "", ProviderLog:
		return NewLogGateway(logger), nil
	case ProviderPostmark:
		return NewPostmarkGateway(cfg)
	case ProviderSendGrid:
		return NewSendGridGateway(cfg)
	default:
		return nil, fmt.Errorf("%w: unknown provider %q", ErrInvalidConfig, cfg.Provider)
	}
}

func validateSender(cfg Config) error {
	from := strings.TrimSpace(cfg.FromAddress)
	if from == "" {
		return fmt.Errorf("%w: from address is required", ErrInvalidConfig)
	}
	if _, err := mail.ParseAddress(from); err != nil {
		return fmt.Errorf("%w: from address %q is invalid", ErrInvalidConfig, from)
	}
	if replyTo := strings.TrimSpace(cfg.ReplyTo); replyTo != "" {
		if _, err := mail.ParseAddress(replyTo); err != nil {
			return fmt.Errorf("%w: reply-to address %q is invalid", ErrInvalidConfig, replyTo)
		}
	}
	return nil
}
