package events

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/IBM/sarama"

	"github.com/umanagarjuna/go-content-cache/internal/content/domain"
)

const (
	TopicCachePurged = "content.cache.purged"
)

type EventPublisher struct {
	producer sarama.SyncProducer
	topic    string
}

var _ domain.EventPublisher = (*EventPublisher)(nil)

func NewEventPublisher(brokers []string, topic string) (*EventPublisher, error) {
	config := sarama.NewConfig()
	config.Producer.Return.Successes = true
	config.Producer.RequiredAcks = sarama.WaitForAll
	config.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(brokers, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create producer: %w", err)
	}

	return NewEventPublisherWithProducer(producer, topic), nil
}

func NewEventPublisherWithProducer(producer sarama.SyncProducer, topic string) *EventPublisher {
	if topic == "" {
		topic = TopicCachePurged
	}
	return &EventPublisher{producer: producer, topic: topic}
}

func (p *EventPublisher) PublishCachePurged(ctx context.Context,
	event *domain.CachePurgedEvent) error {

	kafkaEvent := map[string]interface{}{
		"event_type": "cache_purged",
		"timestamp":  event.Timestamp,
		"data": map[string]interface{}{
			"source": event.Source,
		},
	}

	return p.publish(event.Source, kafkaEvent)
}

func (p *EventPublisher) publish(key string, event interface{}) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	msg := &sarama.ProducerMessage{
		Topic: p.topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	}

	_, _, err = p.producer.SendMessage(msg)
	if err != nil {
		return domain.External("kafka", fmt.Errorf("failed to send message: %w", err))
	}

	return nil
}

func (p *EventPublisher) Close() error {
	return p.producer.Close()
}

// NoopPublisher is used when no brokers are configured.
type NoopPublisher struct{}

func (NoopPublisher) PublishCachePurged(context.Context, *domain.CachePurgedEvent) error {
	return nil
}

func (NoopPublisher) Close() error { return nil }
