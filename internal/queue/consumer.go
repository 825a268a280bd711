package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/romariotrain/transcription-pipeline/internal/pipeline/fault"
)

// DeadLetterSuffix is appended to a queue name to form its dead-letter
// topic.
const DeadLetterSuffix = ".dlq"

type Handler interface {
	Handle(ctx context.Context, payload []byte) error
}

type HandlerFunc func(ctx context.Context, payload []byte) error

func (f HandlerFunc) Handle(ctx context.Context, payload []byte) error { return f(ctx, payload) }

// DeadLetters is where a message goes after its retry budget is spent or
// a permanent fault is hit. *Publisher satisfies it.
type DeadLetters interface {
	Publish(ctx context.Context, queue, key string, value []byte) error
}

type ConsumerConfig struct {
	Brokers     []string
	GroupID     string
	Queue       string
	Handler     Handler
	DeadLetters DeadLetters
	Logger      zerolog.Logger

	// TimeLimit bounds one delivery attempt; an attempt that exceeds it
	// counts as a failed delivery. Defaults to a minute.
	TimeLimit time.Duration
	// MaxAge discards messages older than this as stale. Defaults to 24h.
	MaxAge time.Duration
	// MaxRetries bounds retries after the first attempt. Defaults to 3.
	MaxRetries int
	// RetryBackoff is the initial backoff interval between attempts.
	RetryBackoff time.Duration
}

// Consumer delivers messages of one queue to its handler, applying the
// age limit, per-delivery time limit, bounded retries with exponential
// backoff and dead-lettering. Offsets commit once a message is resolved
// either way, so delivery is at-least-once.
type Consumer struct {
	cfg    ConsumerConfig
	reader *kafkago.Reader
	log    zerolog.Logger
	clock  func() time.Time
}

func NewConsumer(cfg ConsumerConfig) (*Consumer, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("brokers list is empty")
	}
	if cfg.Queue == "" {
		return nil, fmt.Errorf("queue is empty")
	}
	if cfg.GroupID == "" {
		return nil, fmt.Errorf("group id is empty")
	}
	if cfg.Handler == nil {
		return nil, fmt.Errorf("handler is required")
	}
	if cfg.DeadLetters == nil {
		return nil, fmt.Errorf("dead letter publisher is required")
	}

	if cfg.TimeLimit <= 0 {
		cfg.TimeLimit = time.Minute
	}
	if cfg.MaxAge <= 0 {
		cfg.MaxAge = 24 * time.Hour
	}
	if cfg.MaxRetries < 0 {
		return nil, fmt.Errorf("max retries cannot be negative")
	}
	if cfg.MaxRetries == 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = 500 * time.Millisecond
	}

	return &Consumer{
		cfg: cfg,
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			GroupID:  cfg.GroupID,
			Topic:    cfg.Queue,
			MinBytes: 1,
			MaxBytes: 10e6,
		}),
		log:   cfg.Logger.With().Str("component", "queue_consumer").Str("queue", cfg.Queue).Logger(),
		clock: time.Now,
	}, nil
}

// Run blocks consuming messages until the context is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	c.log.Info().
		Dur("time_limit", c.cfg.TimeLimit).
		Int("max_retries", c.cfg.MaxRetries).
		Msg("consumer started")

	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				c.log.Info().Msg("consumer stopped")
				return ctx.Err()
			}
			return fmt.Errorf("fetch message: %w", err)
		}

		c.process(ctx, msg)

		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to commit offset")
		}
	}
}

func (c *Consumer) Close() error {
	return c.reader.Close()
}

// process resolves a single delivery. It never returns an error: a
// message either succeeds, is dropped as stale, or is dead-lettered.
func (c *Consumer) process(ctx context.Context, msg kafkago.Message) {
	log := c.log.With().Int64("offset", msg.Offset).Str("key", string(msg.Key)).Logger()

	if !msg.Time.IsZero() {
		if age := c.clock().Sub(msg.Time); age > c.cfg.MaxAge {
			log.Warn().Dur("age", age).Msg("discarding stale message")
			return
		}
	}

	attempt := 0
	operation := func() error {
		attempt++
		hctx, cancel := context.WithTimeout(ctx, c.cfg.TimeLimit)
		defer cancel()

		err := c.cfg.Handler.Handle(hctx, msg.Value)
		if err == nil {
			return nil
		}
		if fault.IsPermanent(err) {
			log.Error().Err(err).Int("attempt", attempt).Msg("permanent fault, not retrying")
			return backoff.Permanent(err)
		}
		log.Warn().Err(err).Int("attempt", attempt).Msg("delivery failed")
		return err
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = c.cfg.RetryBackoff
	err := backoff.Retry(operation, backoff.WithContext(
		backoff.WithMaxRetries(bo, uint64(c.cfg.MaxRetries)), ctx))
	if err == nil {
		log.Debug().Int("attempts", attempt).Msg("message handled")
		return
	}

	c.deadLetter(ctx, msg, err)
}

func (c *Consumer) deadLetter(ctx context.Context, msg kafkago.Message, cause error) {
	topic := c.cfg.Queue + DeadLetterSuffix
	if err := c.cfg.DeadLetters.Publish(ctx, topic, string(msg.Key), msg.Value); err != nil {
		// The offset commits regardless; losing the dead letter beats
		// blocking the queue on a poisoned message.
		c.log.Error().Err(err).Int64("offset", msg.Offset).Msg("failed to publish dead letter")
		return
	}
	c.log.Error().Err(cause).Int64("offset", msg.Offset).Str("dead_letter_topic", topic).
		Msg("message dead-lettered")
}
