// Package schema orchestrates collection schema mutations: attribute and
// relationship definitions, inverse pair bookkeeping, and the read-only
// schema projection.
package schema

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/fern/internal/repositories/attributedef"
	"github.com/Ramsey-B/fern/internal/repositories/collection"
	"github.com/Ramsey-B/fern/internal/repositories/relationshipdef"
	"github.com/Ramsey-B/fern/pkg/database"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/redis"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

const schemaCacheTTL = 5 * time.Minute

// Service orchestrates schema mutations and projections
type Service struct {
	collections   collection.CollectionRepository
	attributes    attributedef.AttributeDefRepository
	relationships relationshipdef.RelationshipDefRepository
	cache         *redis.Client
	emitter       *events.Emitter
	logger        ectologger.Logger
}

// NewService creates a new schema service. The cache and emitter are
// optional; a nil cache disables schema caching.
func NewService(
	collections collection.CollectionRepository,
	attributes attributedef.AttributeDefRepository,
	relationships relationshipdef.RelationshipDefRepository,
	cache *redis.Client,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Service {
	return &Service{
		collections:   collections,
		attributes:    attributes,
		relationships: relationships,
		cache:         cache,
		emitter:       emitter,
		logger:        logger,
	}
}

// DefineAttribute defines a typed attribute on a collection
func (s *Service) DefineAttribute(ctx context.Context, projectID, collectionID string, req models.CreateAttributeRequest) (*models.AttributeDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "SchemaService.DefineAttribute")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	if !req.Type.IsValid() {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown attribute type %q", req.Type))
	}

	existing, err := s.attributes.GetByName(ctx, col.ID, req.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("attribute %q already exists on collection %q", req.Name, col.Name))
	}

	def, err := s.attributes.Create(ctx, col.ID, req)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("attribute %q already exists on collection %q", req.Name, col.Name))
		}
		return nil, err
	}

	metrics.SchemaMutationsTotal.WithLabelValues(projectID, "attribute_defined").Inc()
	s.emitter.EmitSchemaChange(ctx, events.EventAttributeDefined, col, def)
	s.invalidateSchema(ctx, col.ID)

	return def, nil
}

// DeleteAttribute deletes an attribute definition by name. Historical
// attribute operations referencing it become orphaned and are skipped at
// materialization time.
func (s *Service) DeleteAttribute(ctx context.Context, projectID, collectionID, name string) error {
	ctx, span := tracing.StartSpan(ctx, "SchemaService.DeleteAttribute")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return err
	}

	def, err := s.attributes.GetByName(ctx, col.ID, name)
	if err != nil {
		return err
	}
	if def == nil {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("attribute %q not found on collection %q", name, col.Name))
	}

	if err := s.attributes.Delete(ctx, def.ID); err != nil {
		return err
	}

	metrics.SchemaMutationsTotal.WithLabelValues(projectID, "attribute_deleted").Inc()
	s.emitter.EmitSchemaChange(ctx, events.EventAttributeDeleted, col, def)
	s.invalidateSchema(ctx, col.ID)

	return nil
}

// DefineRelationship defines a relationship on a collection and, when an
// inverse name is given, the symmetric definition on the related collection.
// Owner assignment follows the cardinality pair: the forward side owns in
// every combination except many-to-one.
func (s *Service) DefineRelationship(ctx context.Context, projectID, collectionID string, req models.CreateRelationshipRequest) (*models.RelationshipPairResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "SchemaService.DefineRelationship")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	related, err := s.collections.GetByName(ctx, projectID, req.RelatedCollection)
	if err != nil {
		return nil, err
	}
	if related == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("related collection %q not found", req.RelatedCollection))
	}

	existing, err := s.relationships.GetByName(ctx, col.ID, req.Name)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("relationship %q already exists on collection %q", req.Name, col.Name))
	}

	forward := &models.RelationshipDefinition{
		CollectionID:        col.ID,
		Name:                req.Name,
		Kind:                req.Kind,
		RelatedCollectionID: related.ID,
		Owner:               true,
	}

	if req.Inverse == nil {
		created, err := s.relationships.Create(ctx, forward)
		if err != nil {
			if database.IsUniqueViolation(err) {
				return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("relationship %q already exists on collection %q", req.Name, col.Name))
			}
			return nil, err
		}

		metrics.SchemaMutationsTotal.WithLabelValues(projectID, "relationship_defined").Inc()
		s.emitter.EmitSchemaChange(ctx, events.EventRelationshipDefined, col, created)
		s.invalidateSchema(ctx, col.ID)

		return &models.RelationshipPairResponse{Relationship: *created}, nil
	}

	inverseKind := req.Kind.Swapped()
	if req.InverseKind != nil {
		inverseKind = *req.InverseKind
	}

	existingInverse, err := s.relationships.GetByName(ctx, related.ID, *req.Inverse)
	if err != nil {
		return nil, err
	}
	if existingInverse != nil {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("relationship %q already exists on collection %q", *req.Inverse, related.Name))
	}

	forward.Owner = models.OwnerForPair(req.Kind, inverseKind)
	inverse := &models.RelationshipDefinition{
		CollectionID:        related.ID,
		Name:                *req.Inverse,
		Kind:                inverseKind,
		RelatedCollectionID: col.ID,
		Owner:               !forward.Owner,
	}

	if err := s.relationships.CreatePair(ctx, forward, inverse); err != nil {
		if database.IsUniqueViolation(err) {
			return nil, httperror.NewHTTPError(http.StatusConflict, "relationship name already exists")
		}
		return nil, err
	}

	metrics.SchemaMutationsTotal.WithLabelValues(projectID, "relationship_defined").Inc()
	s.emitter.EmitSchemaChange(ctx, events.EventRelationshipDefined, col, forward)
	s.invalidateSchema(ctx, col.ID, related.ID)

	return &models.RelationshipPairResponse{Relationship: *forward, Inverse: inverse}, nil
}

// RenameRelationship renames a relationship, relinking the inverse side's
// back-pointer when one exists
func (s *Service) RenameRelationship(ctx context.Context, projectID, collectionID, name, newName string) (*models.RelationshipDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "SchemaService.RenameRelationship")
	defer span.End()

	col, def, err := s.getRelationship(ctx, projectID, collectionID, name)
	if err != nil {
		return nil, err
	}

	if newName != def.Name {
		conflict, err := s.relationships.GetByName(ctx, col.ID, newName)
		if err != nil {
			return nil, err
		}
		if conflict != nil {
			return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("relationship %q already exists on collection %q", newName, col.Name))
		}
	}

	if err := s.relationships.RenamePair(ctx, *def, newName); err != nil {
		return nil, err
	}

	metrics.SchemaMutationsTotal.WithLabelValues(projectID, "relationship_renamed").Inc()
	s.emitter.EmitSchemaChange(ctx, events.EventRelationshipRenamed, col, map[string]string{
		"id":       def.ID,
		"old_name": def.Name,
		"new_name": newName,
	})
	s.invalidateSchema(ctx, col.ID, def.RelatedCollectionID)

	return s.relationships.GetByID(ctx, def.ID)
}

// SetInverse renames a relationship's inverse, or deletes the inverse
// definition entirely when the new name is nil
func (s *Service) SetInverse(ctx context.Context, projectID, collectionID, name string, newInverse *string) (*models.RelationshipDefinition, error) {
	ctx, span := tracing.StartSpan(ctx, "SchemaService.SetInverse")
	defer span.End()

	col, def, err := s.getRelationship(ctx, projectID, collectionID, name)
	if err != nil {
		return nil, err
	}

	if def.Inverse == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("relationship %q has no inverse", name))
	}

	if newInverse == nil {
		if err := s.relationships.RemoveInverse(ctx, *def); err != nil {
			return nil, err
		}
	} else {
		if err := s.relationships.RenameInverse(ctx, *def, *newInverse); err != nil {
			return nil, err
		}
	}

	metrics.SchemaMutationsTotal.WithLabelValues(projectID, "relationship_renamed").Inc()
	s.emitter.EmitSchemaChange(ctx, events.EventRelationshipRenamed, col, map[string]any{
		"id":          def.ID,
		"old_inverse": *def.Inverse,
		"new_inverse": newInverse,
	})
	s.invalidateSchema(ctx, col.ID, def.RelatedCollectionID)

	return s.relationships.GetByID(ctx, def.ID)
}

// DeleteRelationship deletes a relationship definition and its paired
// inverse, emitting one logical schema-change event for the pair
func (s *Service) DeleteRelationship(ctx context.Context, projectID, collectionID, name string) error {
	ctx, span := tracing.StartSpan(ctx, "SchemaService.DeleteRelationship")
	defer span.End()

	col, def, err := s.getRelationship(ctx, projectID, collectionID, name)
	if err != nil {
		return err
	}

	if err := s.relationships.DeletePair(ctx, *def); err != nil {
		return err
	}

	metrics.SchemaMutationsTotal.WithLabelValues(projectID, "relationship_deleted").Inc()
	s.emitter.EmitSchemaChange(ctx, events.EventRelationshipDeleted, col, def)
	s.invalidateSchema(ctx, col.ID, def.RelatedCollectionID)

	return nil
}

// Schema returns the current schema projection of a collection, recomputed
// from its definitions and cached briefly
func (s *Service) Schema(ctx context.Context, projectID, collectionID string) (*models.SchemaResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "SchemaService.Schema")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	if cached := s.cachedSchema(ctx, col.ID); cached != nil {
		return cached, nil
	}

	attrs, err := s.attributes.ListByCollection(ctx, col.ID)
	if err != nil {
		return nil, err
	}

	rels, err := s.relationships.ListByCollection(ctx, col.ID)
	if err != nil {
		return nil, err
	}

	relatedIDs := make([]string, 0, len(rels))
	for _, rel := range rels {
		relatedIDs = append(relatedIDs, rel.RelatedCollectionID)
	}

	names, err := s.collections.GetNames(ctx, projectID, relatedIDs)
	if err != nil {
		return nil, err
	}

	resp := &models.SchemaResponse{
		Attributes:    make(map[string]models.AttributeSchema, len(attrs)),
		Relationships: make(map[string]models.RelationshipSchema, len(rels)),
	}

	for _, attr := range attrs {
		resp.Attributes[attr.Name] = models.AttributeSchema{
			Type:     attr.Type,
			Required: attr.Required,
		}
	}

	for _, rel := range rels {
		resp.Relationships[rel.Name] = models.RelationshipSchema{
			Kind:              rel.Kind,
			RelatedCollection: names[rel.RelatedCollectionID],
			Inverse:           rel.Inverse,
		}
	}

	s.storeSchema(ctx, col.ID, resp)

	return resp, nil
}

func (s *Service) getCollection(ctx context.Context, projectID, collectionID string) (*models.Collection, error) {
	col, err := s.collections.GetByID(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}
	if col == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "collection not found")
	}
	return col, nil
}

func (s *Service) getRelationship(ctx context.Context, projectID, collectionID, name string) (*models.Collection, *models.RelationshipDefinition, error) {
	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, nil, err
	}

	def, err := s.relationships.GetByName(ctx, col.ID, name)
	if err != nil {
		return nil, nil, err
	}
	if def == nil {
		return nil, nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("relationship %q not found on collection %q", name, col.Name))
	}

	return col, def, nil
}

func schemaCacheKey(collectionID string) string {
	return "fern:schema:" + collectionID
}

func (s *Service) cachedSchema(ctx context.Context, collectionID string) *models.SchemaResponse {
	if s.cache == nil {
		return nil
	}

	raw, err := s.cache.Get(ctx, schemaCacheKey(collectionID))
	if err != nil {
		if !redis.IsNil(err) {
			s.logger.WithContext(ctx).WithError(err).Warn("failed to read schema cache")
		}
		metrics.SchemaCacheHits.WithLabelValues("miss").Inc()
		return nil
	}

	var resp models.SchemaResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		metrics.SchemaCacheHits.WithLabelValues("miss").Inc()
		return nil
	}

	metrics.SchemaCacheHits.WithLabelValues("hit").Inc()
	return &resp
}

func (s *Service) storeSchema(ctx context.Context, collectionID string, resp *models.SchemaResponse) {
	if s.cache == nil {
		return
	}

	data, err := json.Marshal(resp)
	if err != nil {
		return
	}

	if err := s.cache.Set(ctx, schemaCacheKey(collectionID), string(data), schemaCacheTTL); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to write schema cache")
	}
}

func (s *Service) invalidateSchema(ctx context.Context, collectionIDs ...string) {
	if s.cache == nil {
		return
	}

	keys := make([]string, len(collectionIDs))
	for i, id := range collectionIDs {
		keys[i] = schemaCacheKey(id)
	}

	if err := s.cache.Del(ctx, keys...); err != nil {
		s.logger.WithContext(ctx).WithError(err).Warn("failed to invalidate schema cache")
	}
}
