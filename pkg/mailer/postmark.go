package mailer

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/mrz1836/postmark"
)

type PostmarkGateway struct {
	client  *postmark.Client
	from    string
	replyTo string
}

func NewPostmarkGateway(cfg Config) (*PostmarkGateway, error) {
	if strings.TrimSpace(cfg.PostmarkServerToken) == "" {
		return nil, fmt.Errorf("%w: postmark server token is required", ErrInvalidConfig)
	}
	if err := validateSender(cfg); err != nil {
		return nil, err
	}

	return &PostmarkGateway{
		client:  postmark.NewClient(cfg.PostmarkServerToken, cfg.PostmarkAccountToken),
		from:    formatFrom(cfg.FromName, cfg.FromAddress),
		replyTo: strings.TrimSpace(cfg.ReplyTo),
	}, nil
}

func (g *PostmarkGateway) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}

	resp, err := g.client.SendEmail(ctx, postmark.Email{
		From:       g.from,
		ReplyTo:    g.replyTo,
		To:         msg.To,
		Subject:    msg.Subject,
		Tag:        msg.Tag,
		TextBody:   msg.Text,
		HTMLBody:   msg.HTML,
		TrackOpens: false,
	})
	if err != nil {
		return errors.Join(ErrSendFailed, err)
	}
	if resp.ErrorCode > 0 {
		return errors.Join(
			ErrSendFailed,
			fmt.Errorf("postmark error: %d - %s", resp.ErrorCode, resp.Message),
		)
	}
	return nil
}

func formatFrom(name, address string) string {
	name = strings.TrimSpace(name)
	address = strings.TrimSpace(address)
	if name == "" {
		return address
	}
	return fmt.Sprintf("%q <%s>", name, address)
}
