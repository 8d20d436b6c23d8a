package sink

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"

	"github.com/rzpsarthak13/vaccinesurvey/internal/core"
	"github.com/rzpsarthak13/vaccinesurvey/internal/registry"
)

// ErrKafkaSinkClosed is returned when publishing to a closed Kafka sink.
var ErrKafkaSinkClosed = errors.New("kafka sink is closed")

// MessageWriter is the subset of *kafka.Writer used by the sink.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// Kafka produces one message per table row. Messages are keyed by the first
// meta value so that a sample always lands on the same partition.
type Kafka struct {
	writer MessageWriter
	topic  string
	logger *zap.Logger
	now    func() time.Time

	mu     sync.RWMutex
	closed bool
}

// NewKafka creates a synchronous producer for config.Topic.
func NewKafka(config registry.InternalKafkaConfig, logger *zap.Logger) (*Kafka, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka topic is required")
	}

	writer := &kafka.Writer{
		Addr:         kafka.TCP(config.Brokers...),
		Topic:        config.Topic,
		Balancer:     &kafka.Hash{},
		BatchSize:    config.BatchSize,
		BatchTimeout: config.BatchTimeout,
		WriteTimeout: config.WriteTimeout,
		RequiredAcks: kafka.RequiredAcks(config.RequiredAcks),
		BatchBytes:   int64(config.MaxMessageBytes),
		MaxAttempts:  3,
		Async:        false,
	}
	return NewKafkaWithWriter(writer, config.Topic, logger), nil
}

// NewKafkaWithWriter creates a sink around an existing writer.
func NewKafkaWithWriter(writer MessageWriter, topic string, logger *zap.Logger) *Kafka {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Kafka{
		writer: writer,
		topic:  topic,
		logger: logger.Named("kafka").With(zap.String("topic", topic)),
		now:    time.Now,
	}
}

// Publish implements core.TableSink. All rows are written in one batch.
func (k *Kafka) Publish(ctx context.Context, t *core.Table) error {
	k.mu.RLock()
	defer k.mu.RUnlock()
	if k.closed {
		return ErrKafkaSinkClosed
	}
	if t == nil {
		return fmt.Errorf("table cannot be nil")
	}

	ts := k.now()
	messages := make([]kafka.Message, 0, t.Len())
	for i := 0; i < t.Len(); i++ {
		payload, err := EncodeRow(t, i)
		if err != nil {
			return fmt.Errorf("failed to encode row %d: %w", i, err)
		}
		messages = append(messages, kafka.Message{
			Key:   []byte(messageKey(t, i)),
			Value: payload,
			Time:  ts,
			Headers: []kafka.Header{
				{Key: "schema", Value: []byte(t.Name())},
				{Key: "row", Value: []byte(strconv.Itoa(i))},
			},
		})
	}
	if len(messages) == 0 {
		return nil
	}

	start := time.Now()
	if err := k.writer.WriteMessages(ctx, messages...); err != nil {
		k.logger.Error("produce failed", zap.Int("messages", len(messages)), zap.Error(err))
		return fmt.Errorf("failed to write messages to Kafka: %w", err)
	}
	k.logger.Info("table published",
		zap.String("schema", t.Name()),
		zap.Int("messages", len(messages)),
		zap.Duration("duration", time.Since(start)))
	return nil
}

// messageKey returns the first meta value of row i, falling back to the row index.
func messageKey(t *core.Table, i int) string {
	if meta := t.MetaRow(i); len(meta) > 0 && !meta[0].IsMissing() {
		return meta[0].String()
	}
	return strconv.Itoa(i)
}

// Close implements core.TableSink.
func (k *Kafka) Close() error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.closed {
		return nil
	}
	k.closed = true
	return k.writer.Close()
}

type kafkaFactory struct{}

func (kafkaFactory) Type() string { return "kafka" }

func (kafkaFactory) Create(config registry.InternalSinkConfig, logger *zap.Logger) (core.TableSink, error) {
	return NewKafka(config.Kafka, logger)
}

func init() {
	RegisterFactory(kafkaFactory{})
}
