package outbox

import (
	"context"

	"github.com/segmentio/kafka-go"
)

// KafkaProducer wraps a single kafka.Writer; messages carry their own topic.
type KafkaProducer struct {
	writer *kafka.Writer
}

// NewKafkaProducer creates a KafkaProducer.
func NewKafkaProducer(brokers []string) *KafkaProducer {
	return &KafkaProducer{
		writer: &kafka.Writer{
			Addr:         kafka.TCP(brokers...),
			RequiredAcks: kafka.RequireAll,
			Compression:  kafka.Snappy,
			Async:        false,
		},
	}
}

// WriteMessages writes messages to the topics named on each message.
func (p *KafkaProducer) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	return p.writer.WriteMessages(ctx, msgs...)
}

// Close releases the writer.
func (p *KafkaProducer) Close() error {
	return p.writer.Close()
}
