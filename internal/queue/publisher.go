// Package queue is the dispatch/consumption runtime over Kafka. Every
// logical queue is one topic; the topic is chosen per message at publish
// time, which is how segment events reach hardware-specific transcription
// queues.
package queue

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"
)

// Publisher is an explicit broker handle injected into every component
// that emits events. There is no package-level broker state.
type Publisher struct {
	writer *kafkago.Writer
	log    zerolog.Logger
}

func NewPublisher(brokers []string, logger zerolog.Logger) (*Publisher, error) {
	if len(brokers) == 0 {
		return nil, fmt.Errorf("brokers list is empty")
	}

	return &Publisher{
		writer: &kafkago.Writer{
			Addr:                   kafkago.TCP(brokers...),
			Balancer:               &kafkago.LeastBytes{},
			AllowAutoTopicCreation: true,
		},
		log: logger.With().Str("component", "queue_publisher").Logger(),
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, queue, key string, value []byte) error {
	err := p.writer.WriteMessages(ctx, kafkago.Message{
		Topic: queue,
		Key:   []byte(key),
		Value: value,
	})
	if err != nil {
		return fmt.Errorf("publish to %s: %w", queue, err)
	}

	p.log.Debug().Str("queue", queue).Str("key", key).Msg("message published")
	return nil
}

func (p *Publisher) Close() error {
	return p.writer.Close()
}
