// Package documents orchestrates document mutations and reads. Every
// mutation becomes one or more appends to the document's operation logs;
// reads fold the logs back into current state.
package documents

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/fern/internal/repositories/attributedef"
	"github.com/Ramsey-B/fern/internal/repositories/attributeop"
	"github.com/Ramsey-B/fern/internal/repositories/collection"
	"github.com/Ramsey-B/fern/internal/repositories/document"
	"github.com/Ramsey-B/fern/internal/repositories/relationshipdef"
	"github.com/Ramsey-B/fern/internal/repositories/relationshipop"
	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/codec"
	"github.com/Ramsey-B/fern/pkg/events"
	"github.com/Ramsey-B/fern/pkg/feed"
	"github.com/Ramsey-B/fern/pkg/materializer"
	"github.com/Ramsey-B/fern/pkg/metrics"
	"github.com/Ramsey-B/fern/pkg/models"
	"github.com/Ramsey-B/fern/pkg/tracing"
)

// Service orchestrates document lifecycle operations
type Service struct {
	clock         *clock.Clock
	collections   collection.CollectionRepository
	attributes    attributedef.AttributeDefRepository
	relationships relationshipdef.RelationshipDefRepository
	documents     document.DocumentRepository
	attributeOps  attributeop.AttributeOpRepository
	relationOps   relationshipop.RelationshipOpRepository
	emitter       *events.Emitter
	logger        ectologger.Logger
}

// NewService creates a new document service
func NewService(
	clk *clock.Clock,
	collections collection.CollectionRepository,
	attributes attributedef.AttributeDefRepository,
	relationships relationshipdef.RelationshipDefRepository,
	documents document.DocumentRepository,
	attributeOps attributeop.AttributeOpRepository,
	relationOps relationshipop.RelationshipOpRepository,
	emitter *events.Emitter,
	logger ectologger.Logger,
) *Service {
	return &Service{
		clock:         clk,
		collections:   collections,
		attributes:    attributes,
		relationships: relationships,
		documents:     documents,
		attributeOps:  attributeOps,
		relationOps:   relationOps,
		emitter:       emitter,
		logger:        logger,
	}
}

// Create creates a document, validating required attributes and appending
// one attribute operation per provided value.
//
// Required validation rejects falsy values: nil, false, zero, and the empty
// string all fail identically to a missing value. Callers writing boolean
// attributes must treat required booleans as always-true.
func (s *Service) Create(ctx context.Context, projectID, collectionID string, req models.CreateDocumentRequest) (*models.MaterializedDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.Create")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	defs, err := s.attributes.ListByCollection(ctx, col.ID)
	if err != nil {
		return nil, err
	}

	defsByName := make(map[string]models.AttributeDefinition, len(defs))
	for _, def := range defs {
		defsByName[def.Name] = def
	}

	for _, def := range defs {
		if !def.Required {
			continue
		}
		if isFalsy(req.Attributes[def.Name]) {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("required attribute %q is missing", def.Name))
		}
	}

	for name := range req.Attributes {
		if _, ok := defsByName[name]; !ok {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown attribute %q", name))
		}
	}

	doc, err := s.documents.Create(ctx, projectID, col.ID, string(s.clock.Now()), uuid.New().String())
	if err != nil {
		return nil, err
	}

	for _, name := range sortedKeys(req.Attributes) {
		def := defsByName[name]
		encoded := codec.Encode(req.Attributes[name], def.Type)
		if _, err := s.attributeOps.Append(ctx, doc.ID, def.ID, encoded, string(s.clock.Now())); err != nil {
			return nil, err
		}
		metrics.OperationsAppended.WithLabelValues(projectID, "attribute").Inc()
	}

	metrics.DocumentMutationsTotal.WithLabelValues(projectID, "create").Inc()

	state, err := s.loadState(ctx, projectID, col, doc.ID)
	if err != nil {
		return nil, err
	}

	s.emitter.EmitDocumentChange(ctx, events.EventDocumentCreated, &state.Document, feed.Project(*state))

	materialized := s.fold(*state)
	return &materialized, nil
}

// Get returns the materialized state of a live document
func (s *Service) Get(ctx context.Context, projectID, collectionID, documentID string) (*models.MaterializedDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.Get")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	state, err := s.loadState(ctx, projectID, col, documentID)
	if err != nil {
		return nil, err
	}
	if state.Document.Removed() {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "document not found")
	}

	materialized := s.fold(*state)
	return &materialized, nil
}

// List returns the materialized live documents of a collection
func (s *Service) List(ctx context.Context, projectID, collectionID string, page, pageSize int) (*models.DocumentListResponse, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.List")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	docs, totalCount, err := s.documents.List(ctx, projectID, col.ID, page, pageSize)
	if err != nil {
		return nil, err
	}

	items := make([]models.MaterializedDocument, 0, len(docs))
	for _, doc := range docs {
		state, err := s.loadState(ctx, projectID, col, doc.ID)
		if err != nil {
			return nil, err
		}
		items = append(items, s.fold(*state))
	}

	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = 20
	}

	return &models.DocumentListResponse{
		Items:      items,
		TotalCount: totalCount,
		Page:       page,
		PageSize:   pageSize,
	}, nil
}

// UpdateAttributes appends one attribute operation per provided value
func (s *Service) UpdateAttributes(ctx context.Context, projectID, collectionID, documentID string, req models.UpdateAttributesRequest) (*models.MaterializedDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.UpdateAttributes")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	state, err := s.loadState(ctx, projectID, col, documentID)
	if err != nil {
		return nil, err
	}
	if state.Document.Removed() {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "document not found")
	}

	defsByName := make(map[string]models.AttributeDefinition, len(state.Attributes))
	for _, def := range state.Attributes {
		defsByName[def.Name] = def
	}

	for name := range req.Attributes {
		if _, ok := defsByName[name]; !ok {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown attribute %q", name))
		}
	}

	for _, name := range sortedKeys(req.Attributes) {
		def := defsByName[name]
		encoded := codec.Encode(req.Attributes[name], def.Type)
		op, err := s.attributeOps.Append(ctx, documentID, def.ID, encoded, string(s.clock.Now()))
		if err != nil {
			return nil, err
		}
		state.AttributeOps = append(state.AttributeOps, *op)
		metrics.OperationsAppended.WithLabelValues(projectID, "attribute").Inc()
	}

	metrics.DocumentMutationsTotal.WithLabelValues(projectID, "update_attributes").Inc()
	s.emitter.EmitDocumentChange(ctx, events.EventDocumentUpdated, &state.Document, feed.Project(*state))

	materialized := s.fold(*state)
	return &materialized, nil
}

// AddRelated appends a relationship link operation
func (s *Service) AddRelated(ctx context.Context, projectID, collectionID, documentID, relationship, relatedDocumentID string) (*models.MaterializedDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.AddRelated")
	defer span.End()

	return s.appendRelationshipOp(ctx, projectID, collectionID, documentID, relationship, &relatedDocumentID, false)
}

// RemoveRelated appends a relationship unlink operation for one related
// document
func (s *Service) RemoveRelated(ctx context.Context, projectID, collectionID, documentID, relationship, relatedDocumentID string) (*models.MaterializedDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.RemoveRelated")
	defer span.End()

	return s.appendRelationshipOp(ctx, projectID, collectionID, documentID, relationship, &relatedDocumentID, true)
}

// ClearRelationship appends an operation that empties the relationship:
// has_one resets to null, has_many resets to an empty list
func (s *Service) ClearRelationship(ctx context.Context, projectID, collectionID, documentID, relationship string) (*models.MaterializedDocument, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.ClearRelationship")
	defer span.End()

	return s.appendRelationshipOp(ctx, projectID, collectionID, documentID, relationship, nil, false)
}

// Delete tombstones a document. The operation logs survive so the change
// feed can still report the removal.
func (s *Service) Delete(ctx context.Context, projectID, collectionID, documentID string) error {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.Delete")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return err
	}

	state, err := s.loadState(ctx, projectID, col, documentID)
	if err != nil {
		return err
	}
	if state.Document.Removed() {
		return httperror.NewHTTPError(http.StatusNotFound, "document not found")
	}

	removeTimestamp := string(s.clock.Now())
	removeOperationID := uuid.New().String()

	if err := s.documents.Tombstone(ctx, projectID, documentID, removeTimestamp, removeOperationID); err != nil {
		return err
	}

	state.Document.RemoveTimestamp = &removeTimestamp
	state.Document.RemoveOperationID = &removeOperationID

	metrics.DocumentMutationsTotal.WithLabelValues(projectID, "delete").Inc()
	s.emitter.EmitDocumentChange(ctx, events.EventDocumentRemoved, &state.Document, feed.Project(*state))

	return nil
}

// Operations returns a document's change feed. Tombstoned documents are
// included; they yield their single remove record.
func (s *Service) Operations(ctx context.Context, projectID, collectionID, documentID string) ([]feed.OperationRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "DocumentService.Operations")
	defer span.End()

	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	state, err := s.loadState(ctx, projectID, col, documentID)
	if err != nil {
		return nil, err
	}

	return feed.Project(*state), nil
}

func (s *Service) appendRelationshipOp(ctx context.Context, projectID, collectionID, documentID, relationship string, relatedDocumentID *string, remove bool) (*models.MaterializedDocument, error) {
	col, err := s.getCollection(ctx, projectID, collectionID)
	if err != nil {
		return nil, err
	}

	state, err := s.loadState(ctx, projectID, col, documentID)
	if err != nil {
		return nil, err
	}
	if state.Document.Removed() {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "document not found")
	}

	var def *models.RelationshipDefinition
	for i := range state.Relationships {
		if state.Relationships[i].Name == relationship {
			def = &state.Relationships[i]
			break
		}
	}
	if def == nil {
		return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("relationship %q not found on collection %q", relationship, col.Name))
	}

	if relatedDocumentID != nil {
		related, err := s.documents.GetByID(ctx, projectID, *relatedDocumentID)
		if err != nil {
			return nil, err
		}
		if related == nil || related.Removed() {
			return nil, httperror.NewHTTPError(http.StatusNotFound, "related document not found")
		}
		if related.CollectionID != def.RelatedCollectionID {
			return nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("related document does not belong to the %q collection", relationship))
		}
	}

	op, err := s.relationOps.Append(ctx, documentID, def.ID, relatedDocumentID, remove, string(s.clock.Now()))
	if err != nil {
		return nil, err
	}
	state.RelationshipOps = append(state.RelationshipOps, *op)

	metrics.OperationsAppended.WithLabelValues(projectID, "relationship").Inc()
	metrics.DocumentMutationsTotal.WithLabelValues(projectID, "update_relationships").Inc()
	s.emitter.EmitDocumentChange(ctx, events.EventDocumentUpdated, &state.Document, feed.Project(*state))

	materialized := s.fold(*state)
	return &materialized, nil
}

// loadState loads everything a fold or projection needs for one document
func (s *Service) loadState(ctx context.Context, projectID string, col *models.Collection, documentID string) (*materializer.Input, error) {
	doc, err := s.documents.GetByID(ctx, projectID, documentID)
	if err != nil {
		return nil, err
	}
	if doc == nil || doc.CollectionID != col.ID {
		return nil, httperror.NewHTTPError(http.StatusNotFound, "document not found")
	}

	attrs, err := s.attributes.ListByCollection(ctx, col.ID)
	if err != nil {
		return nil, err
	}

	rels, err := s.relationships.ListByCollection(ctx, col.ID)
	if err != nil {
		return nil, err
	}

	relatedIDs := make([]string, 0, len(rels)+1)
	relatedIDs = append(relatedIDs, col.ID)
	for _, rel := range rels {
		relatedIDs = append(relatedIDs, rel.RelatedCollectionID)
	}

	names, err := s.collections.GetNames(ctx, projectID, relatedIDs)
	if err != nil {
		return nil, err
	}

	attrOps, err := s.attributeOps.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	relOps, err := s.relationOps.ListByDocument(ctx, documentID)
	if err != nil {
		return nil, err
	}

	return &materializer.Input{
		Document:        *doc,
		Collection:      *col,
		Attributes:      attrs,
		Relationships:   rels,
		CollectionNames: names,
		AttributeOps:    attrOps,
		RelationshipOps: relOps,
	}, nil
}

func (s *Service) fold(in materializer.Input) models.MaterializedDocument {
	start := time.Now()
	materialized := materializer.Materialize(in)
	metrics.MaterializeDuration.Observe(time.Since(start).Seconds())
	metrics.MaterializedLogSize.Observe(float64(len(in.AttributeOps) + len(in.RelationshipOps)))
	return materialized
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

// isFalsy mirrors javascript truthiness for required-attribute validation:
// nil, false, zero, and the empty string all count as absent
func isFalsy(value any) bool {
	switch v := value.(type) {
	case nil:
		return true
	case bool:
		return !v
	case string:
		return v == ""
	case float64:
		return v == 0
	case float32:
		return v == 0
	case int:
		return v == 0
	case int64:
		return v == 0
	default:
		return false
	}
}

func sortedKeys(m map[string]any) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
