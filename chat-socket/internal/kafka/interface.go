package kafka

import (
	"context"

	"github.com/weiawesome/wes-chat-socket/chat-socket/internal/domain"
)

// MessageProducer publishes committed messages for downstream consumers
// (history, notifications). Publishing is best-effort.
type MessageProducer interface {
	ProduceMessage(ctx context.Context, msg *domain.Message) error
	Close() error
}

// NoopProducer is used when Kafka is disabled.
type NoopProducer struct{}

func (NoopProducer) ProduceMessage(context.Context, *domain.Message) error { return nil }

func (NoopProducer) Close() error { return nil }
