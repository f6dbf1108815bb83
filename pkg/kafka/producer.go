package kafka

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/wms-platform/pickpack-service/pkg/cloudevents"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
)

// Producer publishes CloudEvents to Kafka, one lazily-created writer per
// topic.
type Producer struct {
	config  Config
	metrics *metrics.Metrics

	mu      sync.Mutex
	writers map[string]*kafka.Writer
}

// NewProducer creates a Producer. metrics may be nil.
func NewProducer(config Config, m *metrics.Metrics) *Producer {
	return &Producer{
		config:  config,
		metrics: m,
		writers: make(map[string]*kafka.Writer),
	}
}

func (p *Producer) getWriter(topic string) *kafka.Writer {
	p.mu.Lock()
	defer p.mu.Unlock()

	if w, ok := p.writers[topic]; ok {
		return w
	}

	w := &kafka.Writer{
		Addr:         kafka.TCP(p.config.Brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		BatchTimeout: p.config.BatchTimeout,
		WriteTimeout: p.config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(p.config.RequiredAcks),
		MaxAttempts:  p.config.MaxAttempts,
	}
	p.writers[topic] = w
	return w
}

// PublishEvent publishes a CloudEvent to the given topic, keyed by subject so
// per-order ordering is preserved.
func (p *Producer) PublishEvent(ctx context.Context, topic string, event *cloudevents.Event) error {
	if err := event.Validate(); err != nil {
		return fmt.Errorf("invalid cloudevent: %w", err)
	}

	value, err := event.Marshal()
	if err != nil {
		return fmt.Errorf("failed to marshal cloudevent: %w", err)
	}

	msg := kafka.Message{
		Key:   []byte(event.Subject),
		Value: value,
		Headers: []kafka.Header{
			{Key: "ce-specversion", Value: []byte(event.SpecVersion)},
			{Key: "ce-id", Value: []byte(event.ID)},
			{Key: "ce-source", Value: []byte(event.Source)},
			{Key: "ce-type", Value: []byte(event.Type)},
			{Key: "content-type", Value: []byte(event.DataContentType)},
		},
	}
	if event.CorrelationID != "" {
		msg.Headers = append(msg.Headers, kafka.Header{Key: "ce-correlationid", Value: []byte(event.CorrelationID)})
	}

	start := time.Now()
	if err := p.getWriter(topic).WriteMessages(ctx, msg); err != nil {
		return fmt.Errorf("failed to write message to %s: %w", topic, err)
	}

	if p.metrics != nil {
		p.metrics.RecordKafkaPublish(topic, time.Since(start))
	}

	return nil
}

// Close closes all writers
func (p *Producer) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var firstErr error
	for topic, w := range p.writers {
		if err := w.Close(); err != nil && firstErr == nil {
			firstErr = fmt.Errorf("failed to close writer for %s: %w", topic, err)
		}
	}
	p.writers = make(map[string]*kafka.Writer)
	return firstErr
}
