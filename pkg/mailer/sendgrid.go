package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"
)

type SendGridGateway struct {
	client  *sendgrid.Client
	from    *mail.Email
	replyTo *mail.Email
}

func NewSendGridGateway(cfg Config) (*SendGridGateway, error) {
	if strings.TrimSpace(cfg.SendGridAPIKey) == "" {
		return nil, fmt.Errorf("%w: sendgrid api key is required", ErrInvalidConfig)
	}
	if err := validateSender(cfg); err != nil {
		return nil, err
	}

	gateway := &SendGridGateway{
		client: sendgrid.NewSendClient(cfg.SendGridAPIKey),
		from:   mail.NewEmail(strings.TrimSpace(cfg.FromName), strings.TrimSpace(cfg.FromAddress)),
	}
	if replyTo := strings.TrimSpace(cfg.ReplyTo); replyTo != "" {
		gateway.replyTo = mail.NewEmail("", replyTo)
	}
	return gateway, nil
}

func (g *SendGridGateway) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	message := mail.NewSingleEmail(g.from, msg.Subject, mail.NewEmail("", msg.To), msg.Text, msg.HTML)
	if g.replyTo != nil {
		message.SetReplyTo(g.replyTo)
	}
	if msg.Tag != "" {
		message.AddCategories(msg.Tag)
	}

	resp, err := g.client.SendWithContext(ctx, message)
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.StatusCode >= 400 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("sendgrid error: %d - %s", resp.StatusCode, resp.Body),
		)
	}
	return nil
}
