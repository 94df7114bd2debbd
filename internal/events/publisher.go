package events

import (
	"context"

	"augur/internal/adapters/kafka"
	"augur/internal/metrics"
	"augur/pkg/errors"
	"augur/pkg/logger"
)

// Publisher publishes sentiment events to Kafka
type Publisher struct {
	producer *kafka.Producer
	log      *logger.Logger
}

// NewPublisher creates a new event publisher
func NewPublisher(producer *kafka.Producer) *Publisher {
	return &Publisher{
		producer: producer,
		log:      logger.Get().With("component", "event_publisher"),
	}
}

// PublishReportUpdated publishes an aggregated report event
func (p *Publisher) PublishReportUpdated(ctx context.Context, event *ReportUpdatedEvent) error {
	return p.publish(ctx, kafka.TopicSentimentReports, event.EventID, event)
}

// PublishSourceFailure publishes a per-source failure event
func (p *Publisher) PublishSourceFailure(ctx context.Context, event *SourceFailureEvent) error {
	return p.publish(ctx, kafka.TopicSourceFailures, event.Plugin, event)
}

// publish serializes the event as JSON and records the outcome
func (p *Publisher) publish(ctx context.Context, topic string, key string, event interface{}) error {
	err := p.producer.Publish(ctx, topic, key, event)
	metrics.RecordKafkaPublish(topic, err)

	if err != nil {
		p.log.Errorw("Failed to publish event",
			"topic", topic,
			"error", err,
		)
		return errors.Wrap(err, "send to kafka")
	}

	p.log.Debugw("Event published",
		"topic", topic,
		"key", key,
	)

	return nil
}
