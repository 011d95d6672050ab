package relationshipdef

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

// RelationshipDefRepository defines the interface for relationship definition
// operations. Pair operations keep both sides of a bidirectional relationship
// consistent inside a single transaction.
type RelationshipDefRepository interface {
	Create(ctx context.Context, def *models.RelationshipDefinition) (*models.RelationshipDefinition, error)
	CreatePair(ctx context.Context, forward, inverse *models.RelationshipDefinition) error
	GetByID(ctx context.Context, id string) (*models.RelationshipDefinition, error)
	GetByName(ctx context.Context, collectionID string, name string) (*models.RelationshipDefinition, error)
	GetInverseOf(ctx context.Context, def models.RelationshipDefinition) (*models.RelationshipDefinition, error)
	ListByCollection(ctx context.Context, collectionID string) ([]models.RelationshipDefinition, error)
	RenamePair(ctx context.Context, def models.RelationshipDefinition, newName string) error
	RenameInverse(ctx context.Context, def models.RelationshipDefinition, newInverse string) error
	RemoveInverse(ctx context.Context, def models.RelationshipDefinition) error
	DeletePair(ctx context.Context, def models.RelationshipDefinition) error
}

// Repository implements RelationshipDefRepository
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new relationship definition repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

const tableName = "relationship_definitions"

var columns = []string{"id", "collection_id", "name", "kind", "related_collection_id", "inverse", "owner", "created_at", "updated_at"}

// Create inserts a single relationship definition with no inverse side
func (r *Repository) Create(ctx context.Context, def *models.RelationshipDefinition) (*models.RelationshipDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.Create")
	defer span.End()

	stamp(def)

	query, args := insertQuery(def)
	_, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to create relationship definition")
		return nil, fmt.Errorf("failed to create relationship definition: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":            def.ID,
		"collection_id": def.CollectionID,
		"name":          def.Name,
	}).Info("created relationship definition")

	return r.GetByID(ctx, def.ID)
}

// CreatePair inserts both sides of a bidirectional relationship atomically
func (r *Repository) CreatePair(ctx context.Context, forward, inverse *models.RelationshipDefinition) error {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.CreatePair")
	defer span.End()

	stamp(forward)
	stamp(inverse)
	forward.Inverse = &inverse.Name
	inverse.Inverse = &forward.Name

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, def := range []*models.RelationshipDefinition{forward, inverse} {
		query, args := insertQuery(def)
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"collection_id": def.CollectionID,
				"name":          def.Name,
			}).Error("failed to create relationship definition pair")
			return fmt.Errorf("failed to create relationship definition pair: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit relationship definition pair: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"forward_id": forward.ID,
		"inverse_id": inverse.ID,
		"name":       forward.Name,
		"inverse":    inverse.Name,
	}).Info("created relationship definition pair")

	return nil
}

// GetByID gets a relationship definition by ID
func (r *Repository) GetByID(ctx context.Context, id string) (*models.RelationshipDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.GetByID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("id", id))

	query, args := sb.Build()

	var def models.RelationshipDefinition
	err := r.db.GetContext(ctx, &def, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get relationship definition by ID")
		return nil, fmt.Errorf("failed to get relationship definition: %w", err)
	}

	return &def, nil
}

// GetByName gets a relationship definition by name within a collection
func (r *Repository) GetByName(ctx context.Context, collectionID string, name string) (*models.RelationshipDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.GetByName")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("collection_id", collectionID),
		sb.Equal("name", name),
	)

	query, args := sb.Build()

	var def models.RelationshipDefinition
	err := r.db.GetContext(ctx, &def, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get relationship definition by name")
		return nil, fmt.Errorf("failed to get relationship definition: %w", err)
	}

	return &def, nil
}

// GetInverseOf locates the paired definition on the related collection,
// matched by name == def.Inverse and inverse == def.Name
func (r *Repository) GetInverseOf(ctx context.Context, def models.RelationshipDefinition) (*models.RelationshipDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.GetInverseOf")
	defer span.End()

	if def.Inverse == nil {
		return nil, nil
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(
		sb.Equal("collection_id", def.RelatedCollectionID),
		sb.Equal("name", *def.Inverse),
		sb.Equal("inverse", def.Name),
	)

	query, args := sb.Build()

	var inverse models.RelationshipDefinition
	err := r.db.GetContext(ctx, &inverse, query, args...)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("failed to get inverse relationship definition")
		return nil, fmt.Errorf("failed to get inverse relationship definition: %w", err)
	}

	return &inverse, nil
}

// ListByCollection lists all relationship definitions of a collection
func (r *Repository) ListByCollection(ctx context.Context, collectionID string) ([]models.RelationshipDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.ListByCollection")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns...)
	sb.From(tableName)
	sb.Where(sb.Equal("collection_id", collectionID))
	sb.OrderBy("name ASC")

	query, args := sb.Build()

	var defs []models.RelationshipDefinition
	err := r.db.SelectContext(ctx, &defs, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to list relationship definitions")
		return nil, fmt.Errorf("failed to list relationship definitions: %w", err)
	}

	return defs, nil
}

// RenamePair renames a relationship definition and relinks its inverse's
// back-pointer in the same transaction
func (r *Repository) RenamePair(ctx context.Context, def models.RelationshipDefinition, newName string) error {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.RenamePair")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update(tableName)
	sb.Set(
		sb.Assign("name", newName),
		sb.Assign("updated_at", now),
	)
	sb.Where(sb.Equal("id", def.ID))

	query, args := sb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to rename relationship definition")
		return fmt.Errorf("failed to rename relationship definition: %w", err)
	}

	if def.Inverse != nil {
		ib := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		ib.Update(tableName)
		ib.Set(
			ib.Assign("inverse", newName),
			ib.Assign("updated_at", now),
		)
		ib.Where(
			ib.Equal("collection_id", def.RelatedCollectionID),
			ib.Equal("name", *def.Inverse),
			ib.Equal("inverse", def.Name),
		)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("failed to relink inverse relationship definition")
			return fmt.Errorf("failed to relink inverse relationship definition: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit relationship rename: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":       def.ID,
		"old_name": def.Name,
		"new_name": newName,
	}).Info("renamed relationship definition")

	return nil
}

// RenameInverse renames the paired inverse definition and updates the
// forward side's inverse pointer in the same transaction
func (r *Repository) RenameInverse(ctx context.Context, def models.RelationshipDefinition, newInverse string) error {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.RenameInverse")
	defer span.End()

	if def.Inverse == nil {
		return fmt.Errorf("relationship definition %s has no inverse", def.ID)
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	now := time.Now()

	ib := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	ib.Update(tableName)
	ib.Set(
		ib.Assign("name", newInverse),
		ib.Assign("updated_at", now),
	)
	ib.Where(
		ib.Equal("collection_id", def.RelatedCollectionID),
		ib.Equal("name", *def.Inverse),
		ib.Equal("inverse", def.Name),
	)

	query, args := ib.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to rename inverse relationship definition")
		return fmt.Errorf("failed to rename inverse relationship definition: %w", err)
	}

	fb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	fb.Update(tableName)
	fb.Set(
		fb.Assign("inverse", newInverse),
		fb.Assign("updated_at", now),
	)
	fb.Where(fb.Equal("id", def.ID))

	query, args = fb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to update inverse pointer")
		return fmt.Errorf("failed to update inverse pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit inverse rename: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":          def.ID,
		"old_inverse": *def.Inverse,
		"new_inverse": newInverse,
	}).Info("renamed inverse relationship definition")

	return nil
}

// RemoveInverse deletes the paired inverse definition entirely and clears the
// forward side's inverse pointer. Relationship operations referencing the
// deleted definition are left orphaned.
func (r *Repository) RemoveInverse(ctx context.Context, def models.RelationshipDefinition) error {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.RemoveInverse")
	defer span.End()

	if def.Inverse == nil {
		return nil
	}

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(tableName)
	db.Where(
		db.Equal("collection_id", def.RelatedCollectionID),
		db.Equal("name", *def.Inverse),
		db.Equal("inverse", def.Name),
	)

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete inverse relationship definition")
		return fmt.Errorf("failed to delete inverse relationship definition: %w", err)
	}

	fb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	fb.Update(tableName)
	fb.Set(
		fb.Assign("inverse", nil),
		fb.Assign("updated_at", time.Now()),
	)
	fb.Where(fb.Equal("id", def.ID))

	query, args = fb.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to clear inverse pointer")
		return fmt.Errorf("failed to clear inverse pointer: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit inverse removal: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":      def.ID,
		"inverse": *def.Inverse,
	}).Info("removed inverse relationship definition")

	return nil
}

// DeletePair deletes a relationship definition and, when one exists, its
// paired inverse, inverse first, in a single transaction
func (r *Repository) DeletePair(ctx context.Context, def models.RelationshipDefinition) error {
	ctx, span := tracing.StartSpan(ctx, "RelationshipDefRepository.DeletePair")
	defer span.End()

	ctx, tx, err := r.db.GetTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if def.Inverse != nil {
		ib := sqlbuilder.PostgreSQL.NewDeleteBuilder()
		ib.DeleteFrom(tableName)
		ib.Where(
			ib.Equal("collection_id", def.RelatedCollectionID),
			ib.Equal("name", *def.Inverse),
			ib.Equal("inverse", def.Name),
		)

		query, args := ib.Build()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			r.logger.WithContext(ctx).WithError(err).Error("failed to delete inverse relationship definition")
			return fmt.Errorf("failed to delete inverse relationship definition: %w", err)
		}
	}

	db := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	db.DeleteFrom(tableName)
	db.Where(db.Equal("id", def.ID))

	query, args := db.Build()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("failed to delete relationship definition")
		return fmt.Errorf("failed to delete relationship definition: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit relationship deletion: %w", err)
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":   def.ID,
		"name": def.Name,
	}).Info("deleted relationship definition pair")

	return nil
}

func stamp(def *models.RelationshipDefinition) {
	now := time.Now()
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	def.CreatedAt = now
	def.UpdatedAt = now
}

func insertQuery(def *models.RelationshipDefinition) (string, []any) {
	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto(tableName)
	sb.Cols(columns...)
	sb.Values(
		def.ID,
		def.CollectionID,
		def.Name,
		string(def.Kind),
		def.RelatedCollectionID,
		def.Inverse,
		def.Owner,
		def.CreatedAt,
		def.UpdatedAt,
	)
	return sb.Build()
}
