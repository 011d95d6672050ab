package kafka

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/segmentio/kafka-go"

	"github.com/Ramsey-B/fern/pkg/feed"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Producer handles Kafka event emission
type Producer struct {
	writer *kafka.Writer
	logger ectologger.Logger
	topic  string
}

// ProducerConfig holds Kafka producer configuration
type ProducerConfig struct {
	Brokers      []string
	Topic        string
	BatchSize    int
	BatchTimeout time.Duration
	RequiredAcks int
	Compression  string
}

// NewProducer creates a new Kafka producer
func NewProducer(cfg ProducerConfig, logger ectologger.Logger) *Producer {
	compression := kafka.Snappy
	switch cfg.Compression {
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "none":
		compression = 0
	}

	requiredAcks := kafka.RequiredAcks(cfg.RequiredAcks)

	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Balancer:               &kafka.LeastBytes{},
		BatchSize:              cfg.BatchSize,
		BatchTimeout:           cfg.BatchTimeout,
		RequiredAcks:           requiredAcks,
		Compression:            compression,
		AllowAutoTopicCreation: true,
	}

	return &Producer{
		writer: writer,
		logger: logger,
		topic:  cfg.Topic,
	}
}

// Close closes the producer
func (p *Producer) Close() error {
	return p.writer.Close()
}

// SchemaEvent represents a schema-level change on a collection
type SchemaEvent struct {
	EventType      string          `json:"event_type"` // collection.created, collection.deleted, attribute.defined, attribute.deleted, relationship.defined, relationship.renamed, relationship.deleted
	ProjectID      string          `json:"project_id"`
	CollectionID   string          `json:"collection_id"`
	CollectionName string          `json:"collection_name"`
	Detail         json.RawMessage `json:"detail,omitempty"`
	Timestamp      time.Time       `json:"timestamp"`
}

// DocumentEvent represents a document lifecycle change. Records carries the
// change-feed operation records produced by the mutation, in feed order.
type DocumentEvent struct {
	EventType    string                 `json:"event_type"` // document.created, document.updated, document.removed
	ProjectID    string                 `json:"project_id"`
	CollectionID string                 `json:"collection_id"`
	DocumentID   string                 `json:"document_id"`
	Records      []feed.OperationRecord `json:"records,omitempty"`
	Timestamp    time.Time              `json:"timestamp"`
}

// PublishSchemaEvent publishes a schema event to Kafka
func (p *Producer) PublishSchemaEvent(ctx context.Context, event *SchemaEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishSchemaEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.CollectionID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "project_id", Value: []byte(event.ProjectID)},
			{Key: "collection_name", Value: []byte(event.CollectionName)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish schema event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":      event.EventType,
		"collection_id":   event.CollectionID,
		"collection_name": event.CollectionName,
	}).Debug("Published schema event")

	return nil
}

// PublishDocumentEvent publishes a document event to Kafka. Keying by
// document ID keeps one document's events in partition order for downstream
// sync consumers.
func (p *Producer) PublishDocumentEvent(ctx context.Context, event *DocumentEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDocumentEvent")
	defer span.End()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(event)
	if err != nil {
		return err
	}

	msg := kafka.Message{
		Topic: p.topic,
		Key:   []byte(event.DocumentID),
		Value: data,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
			{Key: "project_id", Value: []byte(event.ProjectID)},
			{Key: "collection_id", Value: []byte(event.CollectionID)},
		},
	}

	if err := p.writer.WriteMessages(ctx, msg); err != nil {
		p.logger.WithContext(ctx).WithError(err).Error("Failed to publish document event")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"event_type":    event.EventType,
		"document_id":   event.DocumentID,
		"collection_id": event.CollectionID,
	}).Debug("Published document event")

	return nil
}

// PublishDocumentEvents publishes multiple document events in a batch
func (p *Producer) PublishDocumentEvents(ctx context.Context, events []*DocumentEvent) error {
	ctx, span := tracing.StartSpan(ctx, "kafka.Producer.PublishDocumentEvents")
	defer span.End()

	if len(events) == 0 {
		return nil
	}

	messages := make([]kafka.Message, len(events))
	for i, event := range events {
		if event.Timestamp.IsZero() {
			event.Timestamp = time.Now().UTC()
		}

		data, err := json.Marshal(event)
		if err != nil {
			return err
		}

		messages[i] = kafka.Message{
			Topic: p.topic,
			Key:   []byte(event.DocumentID),
			Value: data,
			Headers: []kafka.Header{
				{Key: "event_type", Value: []byte(event.EventType)},
				{Key: "project_id", Value: []byte(event.ProjectID)},
				{Key: "collection_id", Value: []byte(event.CollectionID)},
			},
		}
	}

	if err := p.writer.WriteMessages(ctx, messages...); err != nil {
		p.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"batch_size": len(events),
		}).Error("Failed to publish document events batch")
		return err
	}

	p.logger.WithContext(ctx).WithFields(map[string]any{
		"batch_size": len(events),
	}).Debug("Published document events batch")

	return nil
}
