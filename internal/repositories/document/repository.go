package document

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"
)

// DocumentRepository defines the interface for document row operations.
// Document state is never written here; only the creation stamp and the
// tombstone stamp live on the row itself.
type DocumentRepository interface {
	Create(ctx context.Context, projectID, collectionID, timestamp, operationID string) (*models.Document, error)
	GetByID(ctx context.Context, projectID string, id string) (*models.Document, error)
	List(ctx context.Context, projectID, collectionID string, page, pageSize int) ([]models.Document, int, error)
	Tombstone(ctx context.Context, projectID, id, removeTimestamp, removeOperationID string) error
}

// Repository implements DocumentRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new document repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "documents"

var columns = []string{"id", "project_id", "collection_id", "timestamp", "operation_id", "remove_timestamp", "remove_operation_id", "created_at", "updated_at"}

// Create creates a new document row stamped with its creation operation
func (r *Repository) Create(ctx context.Context, projectID, collectionID, timestamp, operationID string) (*models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.Create")
	defer span.End()

	now := time.Now()
	id := uuid.New().String()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "project_id", "collection_id", "timestamp", "operation_id", "created_at", "updated_at")
	sb.Values(id, projectID, collectionID, timestamp, operationID, now, now)

	query, args := sb.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create document")
		return nil, fmt.Errorf("failed to create document: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":            id,
		"project_id":    projectID,
		"collection_id": collectionID,
	}).Info("created document")

	return r.GetByID(ctx, projectID, id)
}

// GetByID gets a document by ID. Tombstoned documents are returned; callers
// that only want live documents must check the tombstone themselves.
func (r *Repository) GetByID(ctx context.Context, projectID string, id string) (*models.Document, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("project_id", projectID),
	)

	query, args := sb.Build()

	var doc models.Document
	err := r.db.GetContext(ctx, &doc, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get document by ID")
		return nil, fmt.Errorf("failed to get document: %w", err)
	}

	return &doc, nil
}

// List lists the live documents of a collection with pagination
func (r *Repository) List(ctx context.Context, projectID, collectionID string, page, pageSize int) ([]models.Document, int, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}
	if pageSize > 100 {
		pageSize = 100
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From(tableName)
	countSb.Where(
		countSb.Equal("project_id", projectID),
		countSb.Equal("collection_id", collectionID),
		countSb.IsNull("remove_operation_id"),
	)
	countQuery, countArgs := countSb.Build()

	var totalCount int
	err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count documents")
		return nil, 0, fmt.Errorf("failed to count documents: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.Equal("collection_id", collectionID),
		sb.IsNull("remove_operation_id"),
	)
	sb.OrderBy("timestamp ASC")
	sb.Limit(pageSize)
	sb.Offset(offset)

	query, args := sb.Build()

	var items []models.Document
	err = r.db.SelectContext(ctx, &items, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list documents")
		return nil, 0, fmt.Errorf("failed to list documents: %w", err)
	}

	return items, totalCount, nil
}

// Tombstone marks a document as removed by stamping the removal operation.
// The operation logs are left untouched for the change feed.
func (r *Repository) Tombstone(ctx context.Context, projectID, id, removeTimestamp, removeOperationID string) error {
	ctx, span := tracing.StartSpan(ctx, "DocumentRepository.Tombstone")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("remove_timestamp", removeTimestamp),
		sb.Assign("remove_operation_id", removeOperationID),
		sb.Assign("updated_at", time.Now()),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("project_id", projectID),
		sb.IsNull("remove_operation_id"),
	)

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to tombstone document")
		return fmt.Errorf("failed to tombstone document: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":            id,
		"project_id":    projectID,
		"rows_affected": rowsAffected,
	}).Info("tombstoned document")

	return nil
}
