package mailer

import (
	"context"

	"go.uber.org/zap"
)

// LogGateway writes messages to the log instead of sending them. Used in
// development and when no provider is configured.
type LogGateway struct {
	logger *zap.Logger
}

func NewLogGateway(logger *zap.Logger) *LogGateway {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogGateway{logger: logger}
}

func (g *LogGateway) Send(ctx context.Context, msg Message) error {
	if err := msg.Validate(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	g.logger.Info("mail delivered to log",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("tag", msg.Tag),
		zap.Int("text_length", len(msg.Text)),
		zap.Int("html_length", len(msg.HTML)),
	)
	return nil
}
