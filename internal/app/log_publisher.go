package app

import (
	"context"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/stockd/internal/domain"
)

// logPublisher подтверждает outbox-сообщения записью в лог.
type logPublisher struct {
	logger *log.Entry
}

func newLogPublisher(logger *log.Entry) domain.OutboxPublisher {
	return &logPublisher{logger: logger}
}

func (p *logPublisher) Publish(ctx context.Context, event domain.OutboxMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.logger.WithFields(log.Fields{
		"outbox_id":    event.ID,
		"event_type":   event.EventType,
		"aggregate_id": event.AggregateID,
		"payload":      string(event.Payload),
	}).Debug("stock event")
	return nil
}
