package event

import (
	"context"

	"go.uber.org/zap"

	"github.com/manavault/backend/internal/domain/shared"
	"github.com/manavault/backend/internal/infrastructure/logger"
)

// LogPublisher records events in the application log. Used when Kafka is
// disabled.
type LogPublisher struct {
	logger *zap.Logger
}

// NewLogPublisher creates a new LogPublisher
func NewLogPublisher(l *zap.Logger) *LogPublisher {
	if l == nil {
		l = zap.NewNop()
	}
	return &LogPublisher{logger: l}
}

// Publish logs one line per event
func (p *LogPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	log := logger.WithLogger(ctx, p.logger)
	for _, ev := range events {
		log.Info("Domain event",
			zap.String("event_type", ev.EventType()),
			zap.String("event_id", ev.EventID().String()),
			zap.String("aggregate_id", ev.AggregateID().String()),
			zap.Int("schema_version", ev.SchemaVersion()),
		)
	}
	return nil
}

// Close is a no-op
func (p *LogPublisher) Close() error { return nil }

var _ shared.EventPublisher = (*LogPublisher)(nil)
