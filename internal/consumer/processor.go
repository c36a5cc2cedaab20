// Package consumer consumes shift lifecycle events off Kafka and feeds them
// to downstream handlers, such as the audit log writer.
package consumer

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/segmentio/kafka-go"
)

// Reader is the slice of kafka.Reader the processor needs.
type Reader interface {
	FetchMessage(context.Context) (kafka.Message, error)
	CommitMessages(context.Context, ...kafka.Message) error
	Close() error
}

// Handler receives decoded shift events.
type Handler interface {
	Handle(context.Context, Message) error
}

// Message is one decoded record as the outbox dispatcher framed it: a
// Confluent wire-format value plus routing headers.
type Message struct {
	Topic         string
	Partition     int
	Offset        int64
	Timestamp     time.Time
	EventType     string
	SchemaSubject string
	SchemaID      int
	Payload       json.RawMessage
}

// Option configures optional behaviour for the Processor.
type Option func(*Processor)

// WithLogger overrides the logger used to report errors.
func WithLogger(logger *log.Logger) Option {
	return func(p *Processor) {
		p.logger = logger
	}
}

// Processor drives the fetch/decode/handle/commit loop for one topic.
// Offsets only move past a message once the handler succeeded, so a failing
// handler means redelivery, never loss. Malformed records are the one
// exception: they are committed and counted, otherwise they would wedge the
// partition forever.
type Processor struct {
	reader  Reader
	handler Handler
	logger  *log.Logger
}

// NewProcessor constructs a Processor over the reader and handler.
func NewProcessor(reader Reader, handler Handler, opts ...Option) *Processor {
	p := &Processor{
		reader:  reader,
		handler: handler,
		logger:  log.New(log.Writer(), "[audit-consumer] ", log.LstdFlags|log.Lshortfile),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes messages until the context is cancelled.
func (p *Processor) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := p.processNext(ctx); err != nil {
			return err
		}
	}
}

func (p *Processor) processNext(ctx context.Context) error {
	msg, err := p.reader.FetchMessage(ctx)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return err
		}
		p.logger.Printf("fetch error: %v", err)
		return nil
	}

	event, decodeErr := decodeMessage(msg)
	if decodeErr != nil {
		p.logger.Printf("decode error (topic=%s, partition=%d, offset=%d): %v",
			msg.Topic, msg.Partition, msg.Offset, decodeErr)
		recordDecodeError(msg.Topic)
		if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
			p.logger.Printf("commit error after decode failure: %v", commitErr)
		}
		return nil
	}

	if handleErr := p.handler.Handle(ctx, event); handleErr != nil {
		p.logger.Printf("handler error (event_type=%s): %v", event.EventType, handleErr)
		recordHandlerError(event)
		return nil
	}

	if commitErr := p.reader.CommitMessages(ctx, msg); commitErr != nil {
		p.logger.Printf("commit error: %v", commitErr)
		return nil
	}
	recordProcessed(event)
	return nil
}

func decodeMessage(msg kafka.Message) (Message, error) {
	// 1 magic byte + 4 bytes schema ID precede the JSON payload.
	if len(msg.Value) < 5 {
		return Message{}, fmt.Errorf("invalid payload length: %d", len(msg.Value))
	}

	eventType, ok := headerValue(msg, "event_type")
	if !ok {
		return Message{}, errors.New("missing event_type header")
	}
	schemaSubject, _ := headerValue(msg, "schema_subject")

	schemaID := int(binary.BigEndian.Uint32(msg.Value[1:5]))
	payload := json.RawMessage(append([]byte(nil), msg.Value[5:]...))

	return Message{
		Topic:         msg.Topic,
		Partition:     msg.Partition,
		Offset:        msg.Offset,
		Timestamp:     msg.Time,
		EventType:     string(eventType),
		SchemaSubject: string(schemaSubject),
		SchemaID:      schemaID,
		Payload:       payload,
	}, nil
}

func headerValue(msg kafka.Message, key string) ([]byte, bool) {
	for _, header := range msg.Headers {
		if header.Key == key {
			return header.Value, true
		}
	}
	return nil, false
}
