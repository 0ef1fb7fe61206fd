package kafka

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/cenkalti/backoff/v4"
	"github.com/segmentio/kafka-go"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"github.com/Ramsey-B/fern/pkg/tracing"
)

// handleAttempts bounds how often a message is handed to the MessageHandler before it is parked.
const handleAttempts = 3

// MessageHandler applies one message. Returned errors are retried, then parked.
type MessageHandler func(ctx context.Context, msg *IncomingMessage) error

// FailureHandler parks a message the MessageHandler kept rejecting. Its errors are retried
// until it succeeds or the consumer stops, so a message is never committed unparked.
type FailureHandler func(ctx context.Context, msg *IncomingMessage, err error) error

// Reader is the part of *kafka.Reader the consumer uses.
type Reader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

type ConsumerConfig struct {
	Brokers       []string
	Topic         string
	ConsumerGroup string
}

// Consumer reads one topic in a consumer group and commits each message only after it
// was handled or parked, one message at a time.
type Consumer struct {
	reader    Reader
	logger    ectologger.Logger
	handle    MessageHandler
	park      FailureHandler
	retryBase time.Duration

	cancel context.CancelFunc
	done   chan struct{}
}

func NewConsumer(cfg ConsumerConfig, logger ectologger.Logger, handle MessageHandler, park FailureHandler) *Consumer {
	return NewConsumerWithReader(kafka.NewReader(kafka.ReaderConfig{
		Brokers:     cfg.Brokers,
		Topic:       cfg.Topic,
		GroupID:     cfg.ConsumerGroup,
		MinBytes:    1,
		MaxBytes:    10 << 20,
		MaxWait:     500 * time.Millisecond,
		StartOffset: kafka.FirstOffset,
	}), logger, handle, park)
}

// NewConsumerWithReader builds a consumer over any Reader. park may be nil, in which
// case messages that exhaust their attempts are logged and committed.
func NewConsumerWithReader(reader Reader, logger ectologger.Logger, handle MessageHandler, park FailureHandler) *Consumer {
	return &Consumer{
		reader:    reader,
		logger:    logger,
		handle:    handle,
		park:      park,
		retryBase: 500 * time.Millisecond,
	}
}

// Start consumes in the background until Stop is called or ctx ends.
func (c *Consumer) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)
	c.done = make(chan struct{})
	go c.loop(ctx)
	c.logger.WithContext(ctx).Info("kafka consumer started")
	return nil
}

// Stop waits for the in-flight message to finish, then closes the reader.
func (c *Consumer) Stop() error {
	if c.cancel == nil {
		return c.reader.Close()
	}
	c.cancel()
	<-c.done
	return c.reader.Close()
}

func (c *Consumer) loop(ctx context.Context) {
	defer close(c.done)
	for {
		msg, err := c.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, io.EOF) {
				return
			}
			c.logger.WithContext(ctx).WithError(err).Error("kafka fetch failed")
			continue
		}
		if !c.settle(ctx, msg) {
			return
		}
		if err := c.reader.CommitMessages(ctx, msg); err != nil {
			c.logger.WithContext(ctx).WithError(err).WithField("offset", msg.Offset).Error("kafka commit failed")
		}
	}
}

func (c *Consumer) retryPolicy(ctx context.Context, attempts uint64) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.retryBase
	policy.MaxElapsedTime = 0
	var b backoff.BackOff = policy
	if attempts > 0 {
		b = backoff.WithMaxRetries(b, attempts-1)
	}
	return backoff.WithContext(b, ctx)
}

// settle handles or parks msg. It reports false only when ctx ended first, in which
// case msg stays uncommitted and is redelivered.
func (c *Consumer) settle(ctx context.Context, msg kafka.Message) bool {
	ctx = propagation.TraceContext{}.Extract(ctx, headerCarrier{headers: &msg.Headers})
	ctx, span := tracing.StartSpan(ctx, "kafka.Consumer.settle",
		attribute.String("messaging.destination", msg.Topic),
		attribute.Int64("messaging.kafka.offset", msg.Offset),
	)
	defer span.End()

	log := c.logger.WithContext(ctx).WithFields(map[string]any{
		"topic":     msg.Topic,
		"partition": msg.Partition,
		"offset":    msg.Offset,
	})
	incoming := newIncomingMessage(msg)

	handleErr := backoff.Retry(func() error {
		return c.handle(ctx, incoming)
	}, c.retryPolicy(ctx, handleAttempts))
	if handleErr == nil {
		return true
	}
	if ctx.Err() != nil {
		return false
	}
	tracing.Fail(span, handleErr)

	if c.park == nil {
		log.WithError(handleErr).Error("dropping message after failed attempts")
		return true
	}
	parkErr := backoff.RetryNotify(func() error {
		return c.park(ctx, incoming, handleErr)
	}, c.retryPolicy(ctx, 0), func(err error, wait time.Duration) {
		log.WithError(err).Warnf("parking failed, retrying in %s", wait)
	})
	return parkErr == nil
}
