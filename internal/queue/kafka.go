package queue

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

const attemptHeader = "x-attempt"

// KafkaQueue adapts a Kafka topic to the Queue capability. A consumer
// group with manual offset commits gives at-least-once delivery: a
// crash before Ack redelivers the message, and the store's idempotent
// upsert makes reprocessing safe. Nacked messages are republished with
// a bumped attempt header until the cap, then routed to the dead-letter
// topic.
type KafkaQueue struct {
	writer      *kafka.Writer
	reader      *kafka.Reader
	topic       string
	dlqTopic    string
	maxAttempts int
	logger      *zap.Logger
}

type KafkaConfig struct {
	Brokers       []string
	Topic         string
	DeadLetters   string
	ConsumerGroup string
	MaxAttempts   int
}

func NewKafkaQueue(cfg KafkaConfig, l *zap.Logger) *KafkaQueue {
	writer := &kafka.Writer{
		Addr:     kafka.TCP(cfg.Brokers...),
		Balancer: &kafka.LeastBytes{},
		Logger:   zap.NewStdLog(l.With(zap.String("kafka_component", "producer"))),
	}
	reader := kafka.NewReader(kafka.ReaderConfig{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		GroupID:  cfg.ConsumerGroup,
		MinBytes: 10e3,
		MaxBytes: 10e6,
		Logger:   zap.NewStdLog(l.With(zap.String("kafka_component", "consumer"))),
	})

	l.Info("Kafka queue initialized",
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.String("dead_letter_topic", cfg.DeadLetters),
		zap.String("group_id", cfg.ConsumerGroup))

	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &KafkaQueue{
		writer:      writer,
		reader:      reader,
		topic:       cfg.Topic,
		dlqTopic:    cfg.DeadLetters,
		maxAttempts: maxAttempts,
		logger:      l,
	}
}

func (q *KafkaQueue) Submit(ctx context.Context, payload []byte) error {
	err := q.writer.WriteMessages(ctx, kafka.Message{
		Topic: q.topic,
		Value: payload,
	})
	if err != nil {
		q.logger.Error("Failed to produce message to Kafka topic",
			zap.String("topic", q.topic),
			zap.Error(err))
		return fmt.Errorf("failed to produce message: %w", err)
	}
	return nil
}

func (q *KafkaQueue) Receive(ctx context.Context) (*Message, error) {
	m, err := q.reader.FetchMessage(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch message: %w", err)
	}

	return &Message{
		ID:         fmt.Sprintf("%s-%d-%d", m.Topic, m.Partition, m.Offset),
		Payload:    m.Value,
		Attempt:    attemptFromHeaders(m.Headers),
		EnqueuedAt: m.Time,
		kafkaMsg:   &m,
	}, nil
}

func (q *KafkaQueue) Ack(ctx context.Context, msg *Message) error {
	if msg.kafkaMsg == nil {
		return fmt.Errorf("message %s was not received from this queue", msg.ID)
	}
	if err := q.reader.CommitMessages(ctx, *msg.kafkaMsg); err != nil {
		q.logger.Error("Failed to commit offset for message",
			zap.String("message_id", msg.ID),
			zap.Error(err))
		return fmt.Errorf("failed to commit message: %w", err)
	}
	return nil
}

// Nack republishes the payload for redelivery with the attempt count
// bumped, or to the dead-letter topic once attempts are exhausted, then
// commits the original offset so the group moves on.
func (q *KafkaQueue) Nack(ctx context.Context, msg *Message) error {
	if msg.kafkaMsg == nil {
		return fmt.Errorf("message %s was not received from this queue", msg.ID)
	}

	topic := q.topic
	attempt := msg.Attempt + 1
	if attempt > q.maxAttempts {
		topic = q.dlqTopic
		q.logger.Error("Routing message to dead-letter topic",
			zap.String("message_id", msg.ID),
			zap.Int("attempts", msg.Attempt))
	} else {
		q.logger.Warn("Republishing message for redelivery",
			zap.String("message_id", msg.ID),
			zap.Int("attempt", attempt))
	}

	out := kafka.Message{
		Topic: topic,
		Value: msg.Payload,
		Headers: []kafka.Header{
			{Key: attemptHeader, Value: []byte(strconv.Itoa(attempt))},
		},
	}
	if err := q.writer.WriteMessages(ctx, out); err != nil {
		return fmt.Errorf("failed to republish message %s: %w", msg.ID, err)
	}

	return q.Ack(ctx, msg)
}

func (q *KafkaQueue) Close() error {
	if err := q.reader.Close(); err != nil {
		q.logger.Error("Failed to close Kafka consumer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka consumer: %w", err)
	}
	if err := q.writer.Close(); err != nil {
		q.logger.Error("Failed to close Kafka producer", zap.Error(err))
		return fmt.Errorf("failed to close Kafka producer: %w", err)
	}
	q.logger.Info("Kafka queue closed.")
	return nil
}

// Ping verifies the broker is reachable before the pipeline starts.
func (q *KafkaQueue) Ping(ctx context.Context, broker string) error {
	conn, err := kafka.DialContext(ctx, "tcp", broker)
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker: %w", err)
	}
	return conn.Close()
}

func attemptFromHeaders(headers []kafka.Header) int {
	for _, h := range headers {
		if h.Key != attemptHeader {
			continue
		}
		if n, err := strconv.Atoi(string(h.Value)); err == nil && n > 0 {
			return n
		}
	}
	return 1
}

// EnsureTopics creates the work and dead-letter topics if the broker
// does not auto-create them.
func EnsureTopics(ctx context.Context, brokers []string, topics []string, logger *zap.Logger) error {
	conn, err := kafka.DialContext(ctx, "tcp", brokers[0])
	if err != nil {
		return fmt.Errorf("failed to dial kafka broker for admin operations: %w", err)
	}
	defer conn.Close()

	controller, err := conn.Controller()
	if err != nil {
		return fmt.Errorf("failed to get kafka controller: %w", err)
	}
	controllerConn, err := kafka.DialContext(ctx, "tcp", fmt.Sprintf("%s:%d", controller.Host, controller.Port))
	if err != nil {
		return fmt.Errorf("failed to dial kafka controller: %w", err)
	}
	defer controllerConn.Close()

	topicConfigs := make([]kafka.TopicConfig, len(topics))
	for i, topic := range topics {
		topicConfigs[i] = kafka.TopicConfig{
			Topic:             topic,
			NumPartitions:     1,
			ReplicationFactor: 1,
		}
	}

	if err := controllerConn.CreateTopics(topicConfigs...); err != nil {
		return fmt.Errorf("failed to create kafka topics: %w", err)
	}
	logger.Info("Kafka topics ensured", zap.Strings("topics", topics))

	// CreateTopics on an existing topic is not an error on modern
	// brokers, but give it a moment to propagate either way.
	time.Sleep(100 * time.Millisecond)
	return nil
}
