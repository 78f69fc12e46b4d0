package queue

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"orderflow/internal/util"
)

// MemoryQueue is the in-process variant: a bounded FIFO buffer that
// blocks submitters when full. Contents are lost on process exit, so
// delivery is at-most-once across restarts.
type MemoryQueue struct {
	ch          chan *Message
	maxAttempts int
	logger      *zap.Logger

	closeOnce sync.Once
	closed    chan struct{}
}

func NewMemoryQueue(capacity, maxAttempts int, logger *zap.Logger) *MemoryQueue {
	if capacity < 1 {
		capacity = 1
	}
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &MemoryQueue{
		ch:          make(chan *Message, capacity),
		maxAttempts: maxAttempts,
		logger:      logger,
		closed:      make(chan struct{}),
	}
}

// Submit enqueues the payload, blocking while the buffer is full.
func (q *MemoryQueue) Submit(ctx context.Context, payload []byte) error {
	select {
	case <-q.closed:
		return ErrQueueClosed
	default:
	}

	msg := &Message{
		ID:         util.NewMessageID(),
		Payload:    payload,
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
	}

	select {
	case q.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-q.closed:
		return ErrQueueClosed
	}
}

func (q *MemoryQueue) Receive(ctx context.Context) (*Message, error) {
	// Drain buffered messages before reporting closure.
	select {
	case msg := <-q.ch:
		return msg, nil
	default:
	}

	select {
	case msg := <-q.ch:
		return msg, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-q.closed:
		return nil, ErrQueueClosed
	}
}

// Ack is a no-op: an in-process message is gone once received, there is
// no redelivery to cancel.
func (q *MemoryQueue) Ack(ctx context.Context, msg *Message) error {
	return nil
}

// Nack requeues the message for another attempt. Past the attempt cap,
// or when the buffer is full, the message is dropped with a logged
// failure; blocking a worker on its own requeue would deadlock the pool.
func (q *MemoryQueue) Nack(ctx context.Context, msg *Message) error {
	if msg.Attempt >= q.maxAttempts {
		q.logger.Error("Dropping message after exhausting redelivery attempts",
			zap.String("message_id", msg.ID),
			zap.Int("attempts", msg.Attempt))
		return nil
	}

	requeued := &Message{
		ID:         msg.ID,
		Payload:    msg.Payload,
		Attempt:    msg.Attempt + 1,
		EnqueuedAt: msg.EnqueuedAt,
	}

	select {
	case q.ch <- requeued:
		q.logger.Warn("Message requeued",
			zap.String("message_id", msg.ID),
			zap.Int("attempt", requeued.Attempt))
		return nil
	default:
		q.logger.Error("Dropping nacked message, buffer full",
			zap.String("message_id", msg.ID))
		return nil
	}
}

func (q *MemoryQueue) Close() error {
	q.closeOnce.Do(func() { close(q.closed) })
	return nil
}
