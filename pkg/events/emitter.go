// Package events handles audit event emission for schema and document
// lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/pkg/feed"
	"github.com/Ramsey-B/fern/pkg/kafka"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Event types emitted on the audit topic
const (
	EventCollectionCreated   = "collection.created"
	EventCollectionDeleted   = "collection.deleted"
	EventAttributeDefined    = "attribute.defined"
	EventAttributeDeleted    = "attribute.deleted"
	EventRelationshipDefined = "relationship.defined"
	EventRelationshipRenamed = "relationship.renamed"
	EventRelationshipDeleted = "relationship.deleted"
	EventDocumentCreated     = "document.created"
	EventDocumentUpdated     = "document.updated"
	EventDocumentRemoved     = "document.removed"
)

// Emitter publishes audit events for schema and document changes. Emission
// failures are logged and swallowed: the mutation has already committed, and
// the audit stream is not allowed to fail the request.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// EmitSchemaChange emits one schema-change event for a collection. The
// detail payload is marshaled best-effort; a nil detail is omitted.
func (e *Emitter) EmitSchemaChange(ctx context.Context, eventType string, col *models.Collection, detail any) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitSchemaChange")
	defer span.End()

	if e == nil || e.producer == nil {
		return
	}

	var raw json.RawMessage
	if detail != nil {
		data, err := json.Marshal(detail)
		if err != nil {
			e.logger.WithContext(ctx).WithError(err).Warn("Failed to marshal schema event detail")
		} else {
			raw = data
		}
	}

	event := &kafka.SchemaEvent{
		EventType:      eventType,
		ProjectID:      col.ProjectID,
		CollectionID:   col.ID,
		CollectionName: col.Name,
		Detail:         raw,
		Timestamp:      time.Now().UTC(),
	}

	if err := e.producer.PublishSchemaEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":    eventType,
			"collection_id": col.ID,
		}).Error("Failed to emit schema event")
	}
}

// EmitDocumentChange emits one document lifecycle event carrying the
// change-feed records produced by the mutation
func (e *Emitter) EmitDocumentChange(ctx context.Context, eventType string, doc *models.Document, records []feed.OperationRecord) {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitDocumentChange")
	defer span.End()

	if e == nil || e.producer == nil {
		return
	}

	event := &kafka.DocumentEvent{
		EventType:    eventType,
		ProjectID:    doc.ProjectID,
		CollectionID: doc.CollectionID,
		DocumentID:   doc.ID,
		Records:      records,
		Timestamp:    time.Now().UTC(),
	}

	if err := e.producer.PublishDocumentEvent(ctx, event); err != nil {
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type":  eventType,
			"document_id": doc.ID,
		}).Error("Failed to emit document event")
	}
}
