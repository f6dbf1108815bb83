package outbox

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/wms-platform/pickpack-service/pkg/cloudevents"
	"github.com/wms-platform/pickpack-service/pkg/logging"
	"github.com/wms-platform/pickpack-service/pkg/metrics"
)

// EventProducer publishes CloudEvents to a topic
type EventProducer interface {
	PublishEvent(ctx context.Context, topic string, event *cloudevents.Event) error
}

// Publisher drains the outbox to Kafka on a polling loop
type Publisher struct {
	repo      Repository
	producer  EventProducer
	logger    *logging.Logger
	metrics   *metrics.Metrics
	interval  time.Duration
	batchSize int

	mu        sync.Mutex
	running   bool
	stopCh    chan struct{}
	stoppedCh chan struct{}
}

// PublisherConfig holds publisher tuning
type PublisherConfig struct {
	PollInterval time.Duration
	BatchSize    int
}

// DefaultPublisherConfig returns the default poll interval and batch size
func DefaultPublisherConfig() *PublisherConfig {
	return &PublisherConfig{
		PollInterval: 1 * time.Second,
		BatchSize:    100,
	}
}

// NewPublisher creates a Publisher. metrics may be nil.
func NewPublisher(repo Repository, producer EventProducer, logger *logging.Logger, m *metrics.Metrics, config *PublisherConfig) *Publisher {
	if config == nil {
		config = DefaultPublisherConfig()
	}

	return &Publisher{
		repo:      repo,
		producer:  producer,
		logger:    logger,
		metrics:   m,
		interval:  config.PollInterval,
		batchSize: config.BatchSize,
		stopCh:    make(chan struct{}),
		stoppedCh: make(chan struct{}),
	}
}

// Start starts the polling loop
func (p *Publisher) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher already running")
	}
	p.running = true
	p.mu.Unlock()

	p.logger.Info("starting outbox publisher", "interval", p.interval, "batchSize", p.batchSize)

	go p.run(ctx)
	return nil
}

// Stop stops the polling loop and waits for it to drain
func (p *Publisher) Stop() error {
	p.mu.Lock()
	if !p.running {
		p.mu.Unlock()
		return fmt.Errorf("publisher not running")
	}
	p.mu.Unlock()

	close(p.stopCh)
	<-p.stoppedCh

	p.mu.Lock()
	p.running = false
	p.mu.Unlock()

	p.logger.Info("outbox publisher stopped")
	return nil
}

func (p *Publisher) run(ctx context.Context) {
	defer close(p.stoppedCh)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.processEvents(ctx)
		case <-p.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (p *Publisher) processEvents(ctx context.Context) {
	events, err := p.repo.FindUnpublished(ctx, p.batchSize)
	if err != nil {
		p.logger.WithError(err).Error("failed to find unpublished events")
		return
	}

	if p.metrics != nil {
		p.metrics.SetOutboxPending(len(events))
	}

	if len(events) == 0 {
		return
	}

	for _, event := range events {
		start := time.Now()
		err := p.publishEvent(ctx, event)
		duration := time.Since(start)

		if err != nil {
			p.logger.WithError(err).Error("failed to publish outbox event",
				"eventId", event.ID,
				"eventType", event.EventType,
				"aggregateId", event.AggregateID,
			)
			if p.metrics != nil {
				p.metrics.RecordOutboxPublish(event.EventType, false, duration)
				p.metrics.RecordOutboxRetry(event.EventType)
			}
			if err := p.repo.IncrementRetry(ctx, event.ID, err.Error()); err != nil {
				p.logger.WithError(err).Error("failed to increment retry count", "eventId", event.ID)
			}
			continue
		}

		if p.metrics != nil {
			p.metrics.RecordOutboxPublish(event.EventType, true, duration)
		}
		if err := p.repo.MarkPublished(ctx, event.ID); err != nil {
			p.logger.WithError(err).Error("failed to mark event published", "eventId", event.ID)
		}
	}
}

func (p *Publisher) publishEvent(ctx context.Context, event *OutboxEvent) error {
	cloudEvent, err := event.ToCloudEvent()
	if err != nil {
		return err
	}

	if err := p.producer.PublishEvent(ctx, event.Topic, cloudEvent); err != nil {
		return fmt.Errorf("failed to publish to kafka: %w", err)
	}

	return nil
}

// IsRunning reports whether the loop is active
func (p *Publisher) IsRunning() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.running
}
