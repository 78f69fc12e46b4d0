package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"orderflow/internal/util"
)

const redisPollTimeout = time.Second

// redisEnvelope is the JSON frame stored on the list; the attempt count
// travels inside it since Redis has no message metadata of its own.
type redisEnvelope struct {
	ID         string          `json:"id"`
	Attempt    int             `json:"attempt"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
	Payload    json.RawMessage `json:"payload"`
}

// RedisQueue adapts a Redis list to the Queue capability using the
// reliable-queue pattern: Receive moves an entry onto a per-consumer
// processing list, Ack removes it, and anything left on the processing
// list after a crash can be requeued by an operator. Nack requeues with
// the attempt bumped until the cap, then parks the entry on the dead
// list.
type RedisQueue struct {
	client      *redis.Client
	queueKey    string
	procKey     string
	deadKey     string
	maxAttempts int
	logger      *zap.Logger
}

type RedisConfig struct {
	Addr        string
	QueueName   string
	MaxAttempts int
}

func NewRedisQueue(cfg RedisConfig, l *zap.Logger) *RedisQueue {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	l.Info("Redis queue initialized",
		zap.String("addr", cfg.Addr),
		zap.String("queue", cfg.QueueName))
	return &RedisQueue{
		client:      redis.NewClient(&redis.Options{Addr: cfg.Addr}),
		queueKey:    cfg.QueueName,
		procKey:     cfg.QueueName + ":processing",
		deadKey:     cfg.QueueName + ":dead",
		maxAttempts: maxAttempts,
		logger:      l,
	}
}

// Ping verifies the connection before the pipeline starts.
func (q *RedisQueue) Ping(ctx context.Context) error {
	if err := q.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("failed to ping redis: %w", err)
	}
	return nil
}

func (q *RedisQueue) Submit(ctx context.Context, payload []byte) error {
	env := redisEnvelope{
		ID:         util.NewMessageID(),
		Attempt:    1,
		EnqueuedAt: time.Now().UTC(),
		Payload:    json.RawMessage(payload),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue envelope: %w", err)
	}
	if err := q.client.LPush(ctx, q.queueKey, data).Err(); err != nil {
		q.logger.Error("Failed to push message to Redis queue",
			zap.String("queue", q.queueKey),
			zap.Error(err))
		return fmt.Errorf("failed to push message: %w", err)
	}
	return nil
}

func (q *RedisQueue) Receive(ctx context.Context) (*Message, error) {
	for {
		raw, err := q.client.BLMove(ctx, q.queueKey, q.procKey, "RIGHT", "LEFT", redisPollTimeout).Result()
		if errors.Is(err, redis.Nil) {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, fmt.Errorf("failed to read from redis queue: %w", err)
		}

		var env redisEnvelope
		if err := json.Unmarshal([]byte(raw), &env); err != nil {
			// Malformed frame: park it and keep consuming.
			q.logger.Error("Invalid envelope on Redis queue, moving to dead list",
				zap.Error(err))
			q.client.LRem(ctx, q.procKey, 1, raw)
			q.client.LPush(ctx, q.deadKey, raw)
			continue
		}

		return &Message{
			ID:         env.ID,
			Payload:    []byte(env.Payload),
			Attempt:    env.Attempt,
			EnqueuedAt: env.EnqueuedAt,
			redisRaw:   raw,
		}, nil
	}
}

func (q *RedisQueue) Ack(ctx context.Context, msg *Message) error {
	if err := q.client.LRem(ctx, q.procKey, 1, msg.redisRaw).Err(); err != nil {
		return fmt.Errorf("failed to ack message %s: %w", msg.ID, err)
	}
	return nil
}

func (q *RedisQueue) Nack(ctx context.Context, msg *Message) error {
	if err := q.client.LRem(ctx, q.procKey, 1, msg.redisRaw).Err(); err != nil {
		return fmt.Errorf("failed to remove message %s from processing list: %w", msg.ID, err)
	}

	attempt := msg.Attempt + 1
	if attempt > q.maxAttempts {
		q.logger.Error("Routing message to dead list",
			zap.String("message_id", msg.ID),
			zap.Int("attempts", msg.Attempt))
		if err := q.client.LPush(ctx, q.deadKey, msg.redisRaw).Err(); err != nil {
			return fmt.Errorf("failed to dead-letter message %s: %w", msg.ID, err)
		}
		return nil
	}

	env := redisEnvelope{
		ID:         msg.ID,
		Attempt:    attempt,
		EnqueuedAt: msg.EnqueuedAt,
		Payload:    json.RawMessage(msg.Payload),
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("failed to marshal queue envelope: %w", err)
	}
	q.logger.Warn("Requeuing message for redelivery",
		zap.String("message_id", msg.ID),
		zap.Int("attempt", attempt))
	if err := q.client.LPush(ctx, q.queueKey, data).Err(); err != nil {
		return fmt.Errorf("failed to requeue message %s: %w", msg.ID, err)
	}
	return nil
}

func (q *RedisQueue) Close() error {
	if err := q.client.Close(); err != nil {
		return fmt.Errorf("failed to close redis client: %w", err)
	}
	q.logger.Info("Redis queue closed.")
	return nil
}
