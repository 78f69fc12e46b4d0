// Package queue provides the work queue feeding the order pipeline:
// one capability with an in-process bounded buffer and adapters over
// external Kafka and Redis channels, selected at startup.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

var (
	// ErrQueueClosed is returned by Receive once the queue is closed
	// and drained, and by Submit after Close.
	ErrQueueClosed = errors.New("queue is closed")
)

// Message wraps a raw order payload with its delivery metadata.
// Attempt starts at 1 on first delivery.
type Message struct {
	ID         string
	Payload    []byte
	Attempt    int
	EnqueuedAt time.Time

	// Backend bookkeeping, owned by the queue that produced the message.
	kafkaMsg *kafka.Message
	redisRaw string
}

// Queue accepts raw order payloads from producers and hands them to
// workers. Implementations are safe for concurrent use.
//
// Receive blocks until a message is available, the context is done, or
// the queue is closed. Every received message must be settled exactly
// once with Ack or Nack.
type Queue interface {
	Submit(ctx context.Context, payload []byte) error
	Receive(ctx context.Context) (*Message, error)
	Ack(ctx context.Context, msg *Message) error
	Nack(ctx context.Context, msg *Message) error
	Close() error
}
