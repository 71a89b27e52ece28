package service

import (
	"context"
	"encoding/json"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-grader/internal/dto"
)

// GradingPublisher announces completed grading runs.
type GradingPublisher interface {
	Publish(ctx context.Context, event dto.GradingEvent) error
}

type natsGradingPublisher struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

// NewNATSGradingPublisher publishes grading events on subject. A nil connection yields a
// publisher that drops events.
func NewNATSGradingPublisher(conn *nats.Conn, subject string, logger zerolog.Logger) GradingPublisher {
	if subject == "" {
		subject = "grading.completed"
	}
	return &natsGradingPublisher{
		conn:    conn,
		subject: subject,
		logger:  logger.With().Str("component", "grading_publisher").Logger(),
	}
}

func (p *natsGradingPublisher) Publish(ctx context.Context, event dto.GradingEvent) error {
	if p.conn == nil {
		return nil
	}

	payload, err := json.Marshal(event)
	if err != nil {
		return err
	}

	if err := p.conn.Publish(p.subject, payload); err != nil {
		return err
	}

	p.logger.Debug().Str("run_id", event.RunID).Str("subject", p.subject).Msg("grading event published")
	return nil
}
