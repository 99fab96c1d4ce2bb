package event

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/manavault/backend/internal/domain/shared"
)

// Header names set on every published message.
const (
	HeaderEventType     = "event_type"
	HeaderSchemaVersion = "schema_version"
)

// messageWriter is the part of *kafka.Writer the publisher needs.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaConfig holds the broker connection for KafkaPublisher.
type KafkaConfig struct {
	Brokers      []string
	Topic        string
	WriteTimeout time.Duration
}

// KafkaPublisher writes domain events to a single topic keyed by aggregate id,
// so every event of one purchase order lands on the same partition.
type KafkaPublisher struct {
	writer       messageWriter
	serializer   *EventSerializer
	writeTimeout time.Duration
	logger       *zap.Logger
}

// NewKafkaPublisher creates a synchronous publisher. Writes wait for all
// in-sync replicas.
func NewKafkaPublisher(cfg KafkaConfig, serializer *EventSerializer, logger *zap.Logger) (*KafkaPublisher, error) {
	if len(cfg.Brokers) == 0 {
		return nil, errors.New("event: kafka brokers are required")
	}
	if cfg.Topic == "" {
		return nil, errors.New("event: kafka topic is required")
	}
	w := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		RequiredAcks:           kafka.RequireAll,
		AllowAutoTopicCreation: false,
		WriteTimeout:           cfg.WriteTimeout,
	}
	return newKafkaPublisher(w, serializer, cfg.WriteTimeout, logger), nil
}

func newKafkaPublisher(w messageWriter, serializer *EventSerializer, timeout time.Duration, logger *zap.Logger) *KafkaPublisher {
	if serializer == nil {
		serializer = NewEventSerializer()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &KafkaPublisher{writer: w, serializer: serializer, writeTimeout: timeout, logger: logger}
}

// Publish writes events as one batch. The trace context of ctx travels in
// the message headers.
func (p *KafkaPublisher) Publish(ctx context.Context, events ...shared.DomainEvent) error {
	if len(events) == 0 {
		return nil
	}

	msgs := make([]kafka.Message, 0, len(events))
	for _, ev := range events {
		value, err := p.serializer.Serialize(ev)
		if err != nil {
			return err
		}
		headers := headerCarrier{
			{Key: HeaderEventType, Value: []byte(ev.EventType())},
			{Key: HeaderSchemaVersion, Value: []byte(strconv.Itoa(ev.SchemaVersion()))},
		}
		otel.GetTextMapPropagator().Inject(ctx, &headers)
		msgs = append(msgs, kafka.Message{
			Key:     []byte(ev.AggregateID().String()),
			Value:   value,
			Headers: headers,
			Time:    ev.OccurredAt(),
		})
	}

	writeCtx, cancel := context.WithTimeout(ctx, p.writeTimeout)
	defer cancel()
	if err := p.writer.WriteMessages(writeCtx, msgs...); err != nil {
		return fmt.Errorf("failed to publish %d event(s): %w", len(msgs), err)
	}

	p.logger.Debug("Events published", zap.Int("count", len(msgs)), zap.String("first_type", events[0].EventType()))
	return nil
}

// Close flushes and closes the writer.
func (p *KafkaPublisher) Close() error {
	return p.writer.Close()
}

// headerCarrier adapts kafka headers to propagation.TextMapCarrier.
type headerCarrier []kafka.Header

func (c *headerCarrier) Get(key string) string {
	for _, h := range *c {
		if h.Key == key {
			return string(h.Value)
		}
	}
	return ""
}

func (c *headerCarrier) Set(key, value string) {
	for i, h := range *c {
		if h.Key == key {
			(*c)[i].Value = []byte(value)
			return
		}
	}
	*c = append(*c, kafka.Header{Key: key, Value: []byte(value)})
}

func (c *headerCarrier) Keys() []string {
	keys := make([]string, len(*c))
	for i, h := range *c {
		keys[i] = h.Key
	}
	return keys
}

var _ shared.EventPublisher = (*KafkaPublisher)(nil)
