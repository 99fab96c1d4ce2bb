package event

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/manavault/backend/internal/domain/procurement"
	"github.com/manavault/backend/internal/domain/shared"
)

type fakeWriter struct {
	msgs   []kafka.Message
	err    error
	closed bool
}

func (w *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if _, ok := ctx.Deadline(); !ok {
		return errors.New("write without deadline")
	}
	if w.err != nil {
		return w.err
	}
	w.msgs = append(w.msgs, msgs...)
	return nil
}

func (w *fakeWriter) Close() error {
	w.closed = true
	return nil
}

func TestEventSerializer_RoundTrip(t *testing.T) {
	s := NewEventSerializer()
	orderID := uuid.New()
	original := procurement.NewVouchersImportedEvent(orderID, "PO-20240501-ABCDEF12", 3)

	data, err := s.Serialize(original)
	require.NoError(t, err)

	var env Envelope
	require.NoError(t, json.Unmarshal(data, &env))
	assert.Equal(t, procurement.EventTypeVouchersImported, env.Type)
	assert.Equal(t, orderID, env.AggregateID)
	assert.Equal(t, 1, env.SchemaVersion)

	decoded, err := s.Deserialize(data)
	require.NoError(t, err)
	got, ok := decoded.(*procurement.VouchersImportedEvent)
	require.True(t, ok)
	assert.Equal(t, original.EventID(), got.EventID())
	assert.Equal(t, "PO-20240501-ABCDEF12", got.OrderNumber)
	assert.Equal(t, 3, got.Count)
}

func TestEventSerializer_UnknownType(t *testing.T) {
	s := NewEventSerializer()
	_, err := s.Deserialize([]byte(`{"type":"inventory.adjusted","payload":{}}`))
	assert.ErrorContains(t, err, "unknown event type")

	_, err = s.Deserialize([]byte(`not json`))
	assert.Error(t, err)
}

func TestEventSerializer_RegisteredTypes(t *testing.T) {
	assert.Equal(t, []string{
		procurement.EventTypePurchaseOrderCreated,
		procurement.EventTypePurchaseOrderStatusChanged,
		procurement.EventTypeVouchersImported,
	}, NewEventSerializer().RegisteredTypes())
}

func TestKafkaPublisher_Publish(t *testing.T) {
	original := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(original) })

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	w := &fakeWriter{}
	p := newKafkaPublisher(w, nil, time.Second, nil)
	orderID := uuid.New()
	events := []shared.DomainEvent{
		procurement.NewVouchersImportedEvent(orderID, "PO-1", 2),
		procurement.NewVouchersImportedEvent(orderID, "PO-1", 1),
	}

	require.NoError(t, p.Publish(ctx, events...))
	require.Len(t, w.msgs, 2)

	msg := w.msgs[0]
	assert.Equal(t, orderID.String(), string(msg.Key))
	headers := headerCarrier(msg.Headers)
	assert.Equal(t, procurement.EventTypeVouchersImported, headers.Get(HeaderEventType))
	assert.Equal(t, "1", headers.Get(HeaderSchemaVersion))
	assert.Equal(t, "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01", headers.Get("traceparent"))

	require.NoError(t, p.Close())
	assert.True(t, w.closed)
}

func TestKafkaPublisher_Errors(t *testing.T) {
	w := &fakeWriter{err: errors.New("leader not available")}
	p := newKafkaPublisher(w, nil, time.Second, nil)

	assert.NoError(t, p.Publish(context.Background()))
	err := p.Publish(context.Background(), procurement.NewVouchersImportedEvent(uuid.New(), "PO-1", 1))
	assert.ErrorContains(t, err, "leader not available")

	_, err = NewKafkaPublisher(KafkaConfig{Topic: "t"}, nil, nil)
	assert.Error(t, err)
	_, err = NewKafkaPublisher(KafkaConfig{Brokers: []string{"kafka:9092"}}, nil, nil)
	assert.Error(t, err)
}

func TestHeaderCarrier_SetOverwrites(t *testing.T) {
	var c headerCarrier
	c.Set("a", "1")
	c.Set("a", "2")
	c.Set("b", "3")
	assert.Equal(t, "2", c.Get("a"))
	assert.Equal(t, []string{"a", "b"}, c.Keys())
	assert.Empty(t, c.Get("missing"))
}

func TestLogPublisher(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	p := NewLogPublisher(zap.New(core))

	ev := procurement.NewVouchersImportedEvent(uuid.New(), "PO-1", 5)
	require.NoError(t, p.Publish(context.Background(), ev))
	require.NoError(t, p.Close())

	require.Equal(t, 1, logs.Len())
	fields := logs.All()[0].ContextMap()
	assert.Equal(t, procurement.EventTypeVouchersImported, fields["event_type"])
	assert.Equal(t, ev.EventID().String(), fields["event_id"])
}
