package relationshipop

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

// RelationshipOpRepository defines the interface for the relationship
// operation log. The log is append-only; no update or delete exists.
type RelationshipOpRepository interface {
	Append(ctx context.Context, documentID, relationshipDefinitionID string, relatedDocumentID *string, remove bool, timestamp string) (*models.RelationshipOperation, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.RelationshipOperation, error)
}

// Repository implements RelationshipOpRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relationship operation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "relationship_operations"

// Append appends one entry to a document's relationship log
func (r *Repository) Append(ctx context.Context, documentID, relationshipDefinitionID string, relatedDocumentID *string, remove bool, timestamp string) (*models.RelationshipOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationshipOpRepository.Append")
	defer span.End()

	op := models.RelationshipOperation{
		ID:                       uuid.New().String(),
		DocumentID:               documentID,
		RelationshipDefinitionID: relationshipDefinitionID,
		RelatedDocumentID:        relatedDocumentID,
		Remove:                   remove,
		Timestamp:                timestamp,
		CreatedAt:                time.Now(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "document_id", "relationship_definition_id", "related_document_id", "remove", "timestamp", "created_at")
	sb.Values(op.ID, op.DocumentID, op.RelationshipDefinitionID, op.RelatedDocumentID, op.Remove, op.Timestamp, op.CreatedAt)

	query, args := sb.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to append relationship operation")
		return nil, fmt.Errorf("failed to append relationship operation: %w", err)
	}

	return &op, nil
}

// ListByDocument returns a document's relationship log in ascending
// timestamp order
func (r *Repository) ListByDocument(ctx context.Context, documentID string) ([]models.RelationshipOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationshipOpRepository.ListByDocument")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "document_id", "relationship_definition_id", "related_document_id", "remove", "timestamp", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal("document_id", documentID))
	sb.OrderBy("timestamp ASC")

	query, args := sb.Build()

	var ops []models.RelationshipOperation
	err := r.db.SelectContext(ctx, &ops, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list relationship operations")
		return nil, fmt.Errorf("failed to list relationship operations: %w", err)
	}

	return ops, nil
}
