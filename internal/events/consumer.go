package events

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/fathima-sithara/chatlist-service/internal/logger"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type reader interface {
	ReadMessage(ctx context.Context) (kafka.Message, error)
	Close() error
}

// Handler reacts to one decoded event.
type Handler func(ctx context.Context, e MessageCreated) error

type Consumer struct {
	reader  reader
	log     *zap.Logger
	backoff func() backoff.BackOff
}

func NewConsumer(brokers []string, topic, groupID string, log *zap.Logger) *Consumer {
	r := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  brokers,
		Topic:    topic,
		GroupID:  groupID,
		MinBytes: 1,
		MaxBytes: 10e6,
	})
	return newConsumer(r, log)
}

func newConsumer(r reader, log *zap.Logger) *Consumer {
	return &Consumer{
		reader: r,
		log:    logger.OrNop(log),
		backoff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 200 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			b.MaxElapsedTime = 0
			return b
		},
	}
}

// Run reads until ctx is cancelled. Read errors back off exponentially;
// undecodable events and handler errors are logged and skipped.
func (c *Consumer) Run(ctx context.Context, handle Handler) error {
	bo := c.backoff()
	for {
		m, err := c.reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, context.Canceled) {
				return nil
			}
			wait := bo.NextBackOff()
			if wait == backoff.Stop {
				return err
			}
			c.log.Warn("kafka read error", zap.Error(err), zap.Duration("retry_in", wait))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()

		e, err := DecodeMessageCreated(m.Value)
		if err != nil {
			c.log.Warn("skipping event", zap.Error(err), zap.Int64("offset", m.Offset))
			continue
		}
		if err := handle(ctx, e); err != nil {
			c.log.Error("event handler failed", zap.Error(err), zap.String("message_id", e.MessageID))
		}
	}
}

func (c *Consumer) Close() error {
	if c.reader == nil {
		return nil
	}
	return c.reader.Close()
}
