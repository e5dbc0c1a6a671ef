// Package kafka publishes tracker dispatches to a Kafka topic for downstream
// email and push delivery.
package kafka

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/IBM/sarama"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/louisbranch/applytrack/internal/services/tracker/domain"
)

var tracer = otel.Tracer("applytrack/tracker/kafka")

// ErrTopicRequired indicates the publisher has no destination topic.
var ErrTopicRequired = errors.New("kafka topic is required")

// Message is the JSON value written for every dispatch.
type Message struct {
	UserID       string            `json:"user_id"`
	Kind         string            `json:"kind"`
	Payload      map[string]string `json:"payload"`
	DispatchedAt time.Time         `json:"dispatched_at"`
}

// Publisher writes dispatches to one topic, keyed by user ID.
type Publisher struct {
	producer sarama.SyncProducer
	topic    string
	clock    func() time.Time
}

// NewPublisher wraps an existing sync producer.
func NewPublisher(producer sarama.SyncProducer, topic string, clock func() time.Time) (*Publisher, error) {
	if producer == nil {
		return nil, errors.New("kafka producer is required")
	}
	topic = strings.TrimSpace(topic)
	if topic == "" {
		return nil, ErrTopicRequired
	}
	if clock == nil {
		clock = time.Now
	}
	return &Publisher{producer: producer, topic: topic, clock: clock}, nil
}

// NewSyncProducer dials brokers with acknowledgements from all replicas.
func NewSyncProducer(brokers []string, clientID string) (sarama.SyncProducer, error) {
	cfg := sarama.NewConfig()
	cfg.ClientID = clientID
	cfg.Producer.RequiredAcks = sarama.WaitForAll
	cfg.Producer.Retry.Max = 5
	cfg.Producer.Return.Successes = true
	producer, err := sarama.NewSyncProducer(brokers, cfg)
	if err != nil {
		return nil, fmt.Errorf("create kafka producer: %w", err)
	}
	return producer, nil
}

// Dispatch publishes one message and waits for the broker acknowledgement.
func (p *Publisher) Dispatch(ctx context.Context, userID string, kind domain.DispatchKind, payload map[string]string) (err error) {
	ctx, span := tracer.Start(ctx, "kafka.Publish", trace.WithSpanKind(trace.SpanKindProducer))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()
	if err := ctx.Err(); err != nil {
		return err
	}
	if payload == nil {
		payload = map[string]string{}
	}

	value, err := json.Marshal(Message{
		UserID:       userID,
		Kind:         string(kind),
		Payload:      payload,
		DispatchedAt: p.clock().UTC(),
	})
	if err != nil {
		return fmt.Errorf("encode kafka message: %w", err)
	}
	msg := &sarama.ProducerMessage{
		Topic:   p.topic,
		Key:     sarama.StringEncoder(userID),
		Value:   sarama.ByteEncoder(value),
		Headers: traceHeaders(ctx),
	}
	partition, offset, err := p.producer.SendMessage(msg)
	if err != nil {
		return fmt.Errorf("publish %s to %s: %w", kind, p.topic, err)
	}
	span.SetAttributes(
		attribute.String("kafka.topic", p.topic),
		attribute.String("dispatch.kind", string(kind)),
		attribute.Int("kafka.partition", int(partition)),
		attribute.Int64("kafka.offset", offset),
	)
	return nil
}

// Close closes the underlying producer.
func (p *Publisher) Close() error {
	if p == nil || p.producer == nil {
		return nil
	}
	return p.producer.Close()
}

func traceHeaders(ctx context.Context) []sarama.RecordHeader {
	carrier := propagation.MapCarrier{}
	propagation.TraceContext{}.Inject(ctx, carrier)
	headers := make([]sarama.RecordHeader, 0, len(carrier))
	for key, value := range carrier {
		headers = append(headers, sarama.RecordHeader{Key: []byte(key), Value: []byte(value)})
	}
	return headers
}

var _ domain.Dispatcher = (*Publisher)(nil)
