package attributedef

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

// AttributeDefRepository defines the interface for attribute definition operations
type AttributeDefRepository interface {
	Create(ctx context.Context, collectionID string, req models.CreateAttributeRequest) (*models.AttributeDefinition, error)
	GetByID(ctx context.Context, id string) (*models.AttributeDefinition, error)
	GetByName(ctx context.Context, collectionID string, name string) (*models.AttributeDefinition, error)
	ListByCollection(ctx context.Context, collectionID string) ([]models.AttributeDefinition, error)
	Delete(ctx context.Context, id string) error
}

// Repository implements AttributeDefRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new attribute definition repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "attribute_definitions"

// Create creates a new attribute definition
func (r *Repository) Create(ctx context.Context, collectionID string, req models.CreateAttributeRequest) (*models.AttributeDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeDefRepository.Create")
	defer span.End()

	now := time.Now()
	id := uuid.New().String()

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols("id", "collection_id", "name", "type", "required", "created_at", "updated_at")
	sb.Values(id, collectionID, req.Name, string(req.Type), req.Required, now, now)

	query, args := sb.Build()

	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create attribute definition")
		return nil, fmt.Errorf("failed to create attribute definition: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":            id,
		"collection_id": collectionID,
		"name":          req.Name,
		"type":          req.Type,
	}).Info("created attribute definition")

	return r.GetByID(ctx, id)
}

// GetByID gets an attribute definition by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.AttributeDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeDefRepository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "collection_id", "name", "type", "required", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var def models.AttributeDefinition
	err := r.db.GetContext(ctx, &def, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get attribute definition by ID")
		return nil, fmt.Errorf("failed to get attribute definition: %w", err)
	}

	return &def, nil
}

// GetByName gets an attribute definition by name within a collection
func (r *Repository) GetByName(ctx context.Context, collectionID string, name string) (*models.AttributeDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeDefRepository.GetByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "collection_id", "name", "type", "required", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(
		sb.Equal("collection_id", collectionID),
		sb.Equal("name", name),
	)

	query, args := sb.Build()

	var def models.AttributeDefinition
	err := r.db.GetContext(ctx, &def, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get attribute definition by name")
		return nil, fmt.Errorf("failed to get attribute definition: %w", err)
	}

	return &def, nil
}

// ListByCollection lists all attribute definitions of a collection
func (r *Repository) ListByCollection(ctx context.Context, collectionID string) ([]models.AttributeDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "AttributeDefRepository.ListByCollection")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "collection_id", "name", "type", "required", "created_at", "updated_at")
	sb.From(tableName)
	sb.Where(sb.Equal("collection_id", collectionID))
	sb.OrderBy("name ASC")

	query, args := sb.Build()

	var defs []models.AttributeDefinition
	err := r.db.SelectContext(ctx, &defs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list attribute definitions")
		return nil, fmt.Errorf("failed to list attribute definitions: %w", err)
	}

	return defs, nil
}

// Delete hard deletes an attribute definition. Historical attribute
// operations referencing it are left in place and become orphaned.
func (r *Repository) Delete(ctx context.Context, id string) error {
	ctx, span := tracing.StartSpan(ctx, "AttributeDefRepository.Delete")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	sb.DeleteFrom(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete attribute definition")
		return fmt.Errorf("failed to delete attribute definition: %w", err)
	}

	rowsAffected, _ := result.RowsAffected()
	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":            id,
		"rows_affected": rowsAffected,
	}).Info("deleted attribute definition")

	return nil
}
