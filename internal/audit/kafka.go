package audit

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/segmentio/kafka-go"
)

// MessageWriter is the subset of *kafka.Writer used by KafkaLogger.
type MessageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// KafkaLogger publishes audit entries to a topic, keyed by resource id.
type KafkaLogger struct {
	writer MessageWriter
}

// NewKafkaWriter builds a writer for the audit topic.
func NewKafkaWriter(brokers []string, topic string) *kafka.Writer {
	return &kafka.Writer{
		Addr:         kafka.TCP(brokers...),
		Topic:        topic,
		Balancer:     &kafka.Hash{},
		RequiredAcks: kafka.RequireAll,
	}
}

// NewKafkaLogger constructs a Kafka audit sink.
func NewKafkaLogger(writer MessageWriter) (*KafkaLogger, error) {
	if writer == nil {
		return nil, errors.New("audit kafka: nil writer")
	}
	return &KafkaLogger{writer: writer}, nil
}

// Log publishes an audit entry.
func (l *KafkaLogger) Log(ctx context.Context, entry Entry) error {
	if l == nil || l.writer == nil {
		return errors.New("audit kafka: nil writer")
	}
	entry = Prepare(entry, time.Now())
	data, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	return l.writer.WriteMessages(ctx, kafka.Message{
		Key:   []byte(entry.ResourceID),
		Value: data,
		Time:  entry.CreatedAt,
		Headers: []kafka.Header{
			{Key: "action", Value: []byte(entry.Action)},
		},
	})
}

var _ Logger = (*KafkaLogger)(nil)
