package collection

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

// CollectionRepository defines the interface for collection operations
type CollectionRepository interface {
	Create(ctx context.Context, projectID string, req models.CreateCollectionRequest) (*models.Collection, error)
	GetByID(ctx context.Context, projectID string, id string) (*models.Collection, error)
	GetByName(ctx context.Context, projectID string, name string) (*models.Collection, error)
	GetNames(ctx context.Context, projectID string, ids []string) (map[string]string, error)
	List(ctx context.Context, projectID string, page, pageSize int) ([]models.Collection, int, error)
	Delete(ctx context.Context, projectID string, id string) error
}

// Repository implements CollectionRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new collection repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "collections"

// Create creates a new collection
func (r *Repository) Create(ctx context.Context, projectID string, req models.CreateCollectionRequest) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.Create")
	defer span.End()

	now := time.Now()
	id := uuid.New().String()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "project_id", "name", "created_at", "updated_at")
	sb.Values(id, projectID, req.Name, now, now)

	query, args := sb.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create collection")
		return nil, fmt.Errorf("failed to create collection: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":         id,
		"project_id": projectID,
		"name":       req.Name,
	}).Info("created collection")

	return r.GetByID(ctx, projectID, id)
}

// GetByID gets a collection by ID
func (r *Repository) GetByID(ctx context.Context, projectID string, id string) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "name", "created_at", "updated_at", "deleted_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("project_id", projectID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var col models.Collection
	err := r.db.GetContext(ctx, &col, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get collection by ID")
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &col, nil
}

// GetByName gets a collection by name
func (r *Repository) GetByName(ctx context.Context, projectID string, name string) (*models.Collection, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.GetByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "name", "created_at", "updated_at", "deleted_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("name", name),
		sb.Equal("project_id", projectID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	var col models.Collection
	err := r.db.GetContext(ctx, &col, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get collection by name")
		return nil, fmt.Errorf("failed to get collection: %w", err)
	}

	return &col, nil
}

// GetNames resolves collection IDs to names. Deleted collections are
// omitted from the result rather than erroring, so materialization of
// historical operations stays total.
func (r *Repository) GetNames(ctx context.Context, projectID string, ids []string) (map[string]string, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.GetNames")
	defer span.End()

	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "name")
	sb.From(tableName)
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.In("id", sqlbuilder.Flatten(ids)...),
	)

	query, args := sb.Build()

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to resolve collection names")
		return nil, fmt.Errorf("failed to resolve collection names: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, fmt.Errorf("failed to scan collection name: %w", err)
		}
		names[id] = name
	}

	return names, rows.Err()
}

// List lists collections for a project with pagination
func (r *Repository) List(ctx context.Context, projectID string, page, pageSize int) ([]models.Collection, int, error) {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.List")
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
		countSb.IsNull("deleted_at"),
	)
	countQuery, countArgs := countSb.Build()

	var totalCount int
	err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to count collections")
		return nil, 0, fmt.Errorf("failed to count collections: %w", err)
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "project_id", "name", "created_at", "updated_at", "deleted_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("project_id", projectID),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("name ASC")
	sb.Limit(pageSize)
	sb.Offset(offset)

	query, args := sb.Build()

	var items []models.Collection
	err = r.db.SelectContext(ctx, &items, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list collections")
		return nil, 0, fmt.Errorf("failed to list collections: %w", err)
	}

	return items, totalCount, nil
}

// Delete soft deletes a collection
func (r *Repository) Delete(ctx context.Context, projectID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "CollectionRepository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(sb.Assign("deleted_at", time.Now()))
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("project_id", projectID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete collection")
		return fmt.Errorf("failed to delete collection: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":            id,
		"project_id":    projectID,
		"rows_affected": rowsAffected,
	}).Info("deleted collection")

	return nil
}
