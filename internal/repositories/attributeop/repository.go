package attributeop

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

// AttributeOpRepository defines the interface for the attribute operation
// log. The log is append-only; no update or delete exists.
type AttributeOpRepository interface {
	Append(ctx context.Context, documentID, attributeDefinitionID string, value *string, timestamp string) (*models.AttributeOperation, error)
	ListByDocument(ctx context.Context, documentID string) ([]models.AttributeOperation, error)
}

// Repository implements AttributeOpRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new attribute operation repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "attribute_operations"

// Append appends one entry to a document's attribute log
func (r *Repository) Append(ctx context.Context, documentID, attributeDefinitionID string, value *string, timestamp string) (*models.AttributeOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeOpRepository.Append")
	defer span.End()

	op := models.AttributeOperation{
		ID:                    uuid.New().String(),
		DocumentID:            documentID,
		AttributeDefinitionID: attributeDefinitionID,
		Value:                 value,
		Timestamp:             timestamp,
		CreatedAt:             time.Now(),
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "document_id", "attribute_definition_id", "value", "timestamp", "created_at")
	sb.Values(op.ID, op.DocumentID, op.AttributeDefinitionID, op.Value, op.Timestamp, op.CreatedAt)

	query, args := sb.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to append attribute operation")
		return nil, fmt.Errorf("failed to append attribute operation: %w", err)
	}

	return &op, nil
}

// ListByDocument returns a document's attribute log in ascending timestamp
// order. Read-time ordering is what keeps folds correct when operations were
// written out of order by other processes.
func (r *Repository) ListByDocument(ctx context.Context, documentID string) ([]models.AttributeOperation, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeOpRepository.ListByDocument")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "document_id", "attribute_definition_id", "value", "timestamp", "created_at")
	sb.From(tableName)
	sb.Where(sb.Equal("document_id", documentID))
	sb.OrderBy("timestamp ASC")

	query, args := sb.Build()

	var ops []models.AttributeOperation
	err := r.db.SelectContext(ctx, &ops, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list attribute operations")
		return nil, fmt.Errorf("failed to list attribute operations: %w", err)
	}

	return ops, nil
}
