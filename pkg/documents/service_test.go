package documents

import (
	"context"
	"fmt"
	"net/http"
	"testing"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/feed"
	"github.com/Ramsey-B/fern/pkg/models"
)

const testProject = "project-1"

type fakeCollections struct {
	items map[string]*models.Collection
}

func (f *fakeCollections) Create(ctx context.Context, projectID string, req models.CreateCollectionRequest) (*models.Collection, error) {
	col := &models.Collection{ID: uuid.New().String(), ProjectID: projectID, Name: req.Name}
	f.items[col.ID] = col
	return col, nil
}

func (f *fakeCollections) GetByID(ctx context.Context, projectID, id string) (*models.Collection, error) {
	col, ok := f.items[id]
	if !ok || col.ProjectID != projectID {
		return nil, nil
	}
	return col, nil
}

func (f *fakeCollections) GetByName(ctx context.Context, projectID, name string) (*models.Collection, error) {
	for _, col := range f.items {
		if col.ProjectID == projectID && col.Name == name {
			return col, nil
		}
	}
	return nil, nil
}

func (f *fakeCollections) GetNames(ctx context.Context, projectID string, ids []string) (map[string]string, error) {
	names := make(map[string]string)
	for _, id := range ids {
		if col, ok := f.items[id]; ok {
			names[id] = col.Name
		}
	}
	return names, nil
}

func (f *fakeCollections) List(ctx context.Context, projectID string, page, pageSize int) ([]models.Collection, int, error) {
	var items []models.Collection
	for _, col := range f.items {
		if col.ProjectID == projectID {
			items = append(items, *col)
		}
	}
	return items, len(items), nil
}

func (f *fakeCollections) Delete(ctx context.Context, projectID, id string) error {
	delete(f.items, id)
	return nil
}

type fakeAttributeDefs struct {
	items []models.AttributeDefinition
}

func (f *fakeAttributeDefs) Create(ctx context.Context, collectionID string, req models.CreateAttributeRequest) (*models.AttributeDefinition, error) {
	def := models.AttributeDefinition{
		ID:           uuid.New().String(),
		CollectionID: collectionID,
		Name:         req.Name,
		Type:         req.Type,
		Required:     req.Required,
	}
	f.items = append(f.items, def)
	return &def, nil
}

func (f *fakeAttributeDefs) GetByID(ctx context.Context, id string) (*models.AttributeDefinition, error) {
	for _, def := range f.items {
		if def.ID == id {
			return &def, nil
		}
	}
	return nil, nil
}

func (f *fakeAttributeDefs) GetByName(ctx context.Context, collectionID, name string) (*models.AttributeDefinition, error) {
	for _, def := range f.items {
		if def.CollectionID == collectionID && def.Name == name {
			return &def, nil
		}
	}
	return nil, nil
}

func (f *fakeAttributeDefs) ListByCollection(ctx context.Context, collectionID string) ([]models.AttributeDefinition, error) {
	var defs []models.AttributeDefinition
	for _, def := range f.items {
		if def.CollectionID == collectionID {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (f *fakeAttributeDefs) Delete(ctx context.Context, id string) error {
	filtered := f.items[:0]
	for _, def := range f.items {
		if def.ID != id {
			filtered = append(filtered, def)
		}
	}
	f.items = filtered
	return nil
}

type fakeRelationshipDefs struct {
	items []models.RelationshipDefinition
}

func (f *fakeRelationshipDefs) Create(ctx context.Context, def *models.RelationshipDefinition) (*models.RelationshipDefinition, error) {
	if def.ID == "" {
		def.ID = uuid.New().String()
	}
	f.items = append(f.items, *def)
	return def, nil
}

func (f *fakeRelationshipDefs) CreatePair(ctx context.Context, forward, inverse *models.RelationshipDefinition) error {
	if forward.ID == "" {
		forward.ID = uuid.New().String()
	}
	if inverse.ID == "" {
		inverse.ID = uuid.New().String()
	}
	forward.Inverse = &inverse.Name
	inverse.Inverse = &forward.Name
	f.items = append(f.items, *forward, *inverse)
	return nil
}

func (f *fakeRelationshipDefs) GetByID(ctx context.Context, id string) (*models.RelationshipDefinition, error) {
	for _, def := range f.items {
		if def.ID == id {
			return &def, nil
		}
	}
	return nil, nil
}

func (f *fakeRelationshipDefs) GetByName(ctx context.Context, collectionID, name string) (*models.RelationshipDefinition, error) {
	for _, def := range f.items {
		if def.CollectionID == collectionID && def.Name == name {
			return &def, nil
		}
	}
	return nil, nil
}

func (f *fakeRelationshipDefs) GetInverseOf(ctx context.Context, def models.RelationshipDefinition) (*models.RelationshipDefinition, error) {
	if def.Inverse == nil {
		return nil, nil
	}
	for _, candidate := range f.items {
		if candidate.CollectionID == def.RelatedCollectionID && candidate.Name == *def.Inverse &&
			candidate.Inverse != nil && *candidate.Inverse == def.Name {
			return &candidate, nil
		}
	}
	return nil, nil
}

func (f *fakeRelationshipDefs) ListByCollection(ctx context.Context, collectionID string) ([]models.RelationshipDefinition, error) {
	var defs []models.RelationshipDefinition
	for _, def := range f.items {
		if def.CollectionID == collectionID {
			defs = append(defs, def)
		}
	}
	return defs, nil
}

func (f *fakeRelationshipDefs) RenamePair(ctx context.Context, def models.RelationshipDefinition, newName string) error {
	for i := range f.items {
		if f.items[i].ID == def.ID {
			f.items[i].Name = newName
		}
		if def.Inverse != nil && f.items[i].CollectionID == def.RelatedCollectionID &&
			f.items[i].Name == *def.Inverse && f.items[i].Inverse != nil && *f.items[i].Inverse == def.Name {
			f.items[i].Inverse = &newName
		}
	}
	return nil
}

func (f *fakeRelationshipDefs) RenameInverse(ctx context.Context, def models.RelationshipDefinition, newInverse string) error {
	if def.Inverse == nil {
		return fmt.Errorf("no inverse")
	}
	for i := range f.items {
		if f.items[i].CollectionID == def.RelatedCollectionID && f.items[i].Name == *def.Inverse &&
			f.items[i].Inverse != nil && *f.items[i].Inverse == def.Name {
			f.items[i].Name = newInverse
		}
		if f.items[i].ID == def.ID {
			f.items[i].Inverse = &newInverse
		}
	}
	return nil
}

func (f *fakeRelationshipDefs) RemoveInverse(ctx context.Context, def models.RelationshipDefinition) error {
	if def.Inverse == nil {
		return nil
	}
	filtered := f.items[:0]
	for _, candidate := range f.items {
		if candidate.CollectionID == def.RelatedCollectionID && candidate.Name == *def.Inverse &&
			candidate.Inverse != nil && *candidate.Inverse == def.Name {
			continue
		}
		if candidate.ID == def.ID {
			candidate.Inverse = nil
		}
		filtered = append(filtered, candidate)
	}
	f.items = filtered
	return nil
}

func (f *fakeRelationshipDefs) DeletePair(ctx context.Context, def models.RelationshipDefinition) error {
	filtered := f.items[:0]
	for _, candidate := range f.items {
		if candidate.ID == def.ID {
			continue
		}
		if def.Inverse != nil && candidate.CollectionID == def.RelatedCollectionID &&
			candidate.Name == *def.Inverse && candidate.Inverse != nil && *candidate.Inverse == def.Name {
			continue
		}
		filtered = append(filtered, candidate)
	}
	f.items = filtered
	return nil
}

type fakeDocuments struct {
	items map[string]*models.Document
}

func (f *fakeDocuments) Create(ctx context.Context, projectID, collectionID, timestamp, operationID string) (*models.Document, error) {
	doc := &models.Document{
		ID:           uuid.New().String(),
		ProjectID:    projectID,
		CollectionID: collectionID,
		Timestamp:    timestamp,
		OperationID:  operationID,
	}
	f.items[doc.ID] = doc
	return doc, nil
}

func (f *fakeDocuments) GetByID(ctx context.Context, projectID, id string) (*models.Document, error) {
	doc, ok := f.items[id]
	if !ok || doc.ProjectID != projectID {
		return nil, nil
	}
	copied := *doc
	return &copied, nil
}

func (f *fakeDocuments) List(ctx context.Context, projectID, collectionID string, page, pageSize int) ([]models.Document, int, error) {
	var docs []models.Document
	for _, doc := range f.items {
		if doc.ProjectID == projectID && doc.CollectionID == collectionID && !doc.Removed() {
			docs = append(docs, *doc)
		}
	}
	return docs, len(docs), nil
}

func (f *fakeDocuments) Tombstone(ctx context.Context, projectID, id, removeTimestamp, removeOperationID string) error {
	doc, ok := f.items[id]
	if !ok {
		return nil
	}
	doc.RemoveTimestamp = &removeTimestamp
	doc.RemoveOperationID = &removeOperationID
	return nil
}

type fakeAttributeOps struct {
	items []models.AttributeOperation
}

func (f *fakeAttributeOps) Append(ctx context.Context, documentID, attributeDefinitionID string, value *string, timestamp string) (*models.AttributeOperation, error) {
	op := models.AttributeOperation{
		ID:                    uuid.New().String(),
		DocumentID:            documentID,
		AttributeDefinitionID: attributeDefinitionID,
		Value:                 value,
		Timestamp:             timestamp,
	}
	f.items = append(f.items, op)
	return &op, nil
}

func (f *fakeAttributeOps) ListByDocument(ctx context.Context, documentID string) ([]models.AttributeOperation, error) {
	var ops []models.AttributeOperation
	for _, op := range f.items {
		if op.DocumentID == documentID {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

type fakeRelationshipOps struct {
	items []models.RelationshipOperation
}

func (f *fakeRelationshipOps) Append(ctx context.Context, documentID, relationshipDefinitionID string, relatedDocumentID *string, remove bool, timestamp string) (*models.RelationshipOperation, error) {
	op := models.RelationshipOperation{
		ID:                       uuid.New().String(),
		DocumentID:               documentID,
		RelationshipDefinitionID: relationshipDefinitionID,
		RelatedDocumentID:        relatedDocumentID,
		Remove:                   remove,
		Timestamp:                timestamp,
	}
	f.items = append(f.items, op)
	return &op, nil
}

func (f *fakeRelationshipOps) ListByDocument(ctx context.Context, documentID string) ([]models.RelationshipOperation, error) {
	var ops []models.RelationshipOperation
	for _, op := range f.items {
		if op.DocumentID == documentID {
			ops = append(ops, op)
		}
	}
	return ops, nil
}

type fixture struct {
	service     *Service
	collections *fakeCollections
	attributes  *fakeAttributeDefs
	relDefs     *fakeRelationshipDefs
	documents   *fakeDocuments
}

func newFixture() *fixture {
	logger := ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
	collections := &fakeCollections{items: make(map[string]*models.Collection)}
	attributes := &fakeAttributeDefs{}
	relDefs := &fakeRelationshipDefs{}
	documents := &fakeDocuments{items: make(map[string]*models.Document)}

	service := NewService(
		clock.New(),
		collections,
		attributes,
		relDefs,
		documents,
		&fakeAttributeOps{},
		&fakeRelationshipOps{},
		nil,
		logger,
	)

	return &fixture{
		service:     service,
		collections: collections,
		attributes:  attributes,
		relDefs:     relDefs,
		documents:   documents,
	}
}

func (fx *fixture) addCollection(t *testing.T, name string) *models.Collection {
	t.Helper()
	col, err := fx.collections.Create(context.Background(), testProject, models.CreateCollectionRequest{Name: name})
	require.NoError(t, err)
	return col
}

func (fx *fixture) addAttribute(t *testing.T, collectionID, name string, attrType models.AttributeType, required bool) *models.AttributeDefinition {
	t.Helper()
	def, err := fx.attributes.Create(context.Background(), collectionID, models.CreateAttributeRequest{
		Name: name, Type: attrType, Required: required,
	})
	require.NoError(t, err)
	return def
}

func assertStatus(t *testing.T, err error, status int) {
	t.Helper()
	require.Error(t, err)
	require.True(t, httperror.IsHTTPError(err), "expected HTTP error, got: %v", err)
	assert.Equal(t, status, httperror.GetStatusCode(err))
}

func TestCreateDocument(t *testing.T) {
	ctx := context.Background()

	t.Run("creates and materializes attributes", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")
		fx.addAttribute(t, col.ID, "title", models.AttributeTypeString, false)
		fx.addAttribute(t, col.ID, "count", models.AttributeTypeInt, false)

		doc, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"title": "groceries", "count": float64(3)},
		})
		require.NoError(t, err)

		assert.Equal(t, "list", doc.Identity.Type)
		assert.Equal(t, "groceries", doc.Attributes["title"])
		assert.Equal(t, int64(3), doc.Attributes["count"])
	})

	t.Run("rejects missing required attribute", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")
		fx.addAttribute(t, col.ID, "title", models.AttributeTypeString, true)

		_, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{},
		})
		assertStatus(t, err, http.StatusBadRequest)
	})

	t.Run("rejects falsy values for required attributes", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")
		fx.addAttribute(t, col.ID, "checked", models.AttributeTypeBoolean, true)
		fx.addAttribute(t, col.ID, "count", models.AttributeTypeInt, true)

		// false fails the required check exactly like a missing value
		_, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"checked": false, "count": float64(1)},
		})
		assertStatus(t, err, http.StatusBadRequest)

		_, err = fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"checked": true, "count": float64(0)},
		})
		assertStatus(t, err, http.StatusBadRequest)

		_, err = fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"checked": true, "count": float64(1)},
		})
		require.NoError(t, err)
	})

	t.Run("rejects unknown attributes", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")

		_, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"mystery": "value"},
		})
		assertStatus(t, err, http.StatusBadRequest)
	})

	t.Run("unknown collection returns not found", func(t *testing.T) {
		fx := newFixture()

		_, err := fx.service.Create(ctx, testProject, uuid.New().String(), models.CreateDocumentRequest{})
		assertStatus(t, err, http.StatusNotFound)
	})
}

func TestUpdateAttributes(t *testing.T) {
	ctx := context.Background()

	t.Run("last write wins", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")
		fx.addAttribute(t, col.ID, "title", models.AttributeTypeString, false)

		doc, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"title": "first"},
		})
		require.NoError(t, err)

		updated, err := fx.service.UpdateAttributes(ctx, testProject, col.ID, doc.Identity.ID, models.UpdateAttributesRequest{
			Attributes: map[string]any{"title": "second"},
		})
		require.NoError(t, err)
		assert.Equal(t, "second", updated.Attributes["title"])
	})

	t.Run("tombstoned document returns not found", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")

		doc, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		require.NoError(t, fx.service.Delete(ctx, testProject, col.ID, doc.Identity.ID))

		_, err = fx.service.UpdateAttributes(ctx, testProject, col.ID, doc.Identity.ID, models.UpdateAttributesRequest{
			Attributes: map[string]any{},
		})
		assertStatus(t, err, http.StatusNotFound)
	})
}

func TestRelationshipMutations(t *testing.T) {
	ctx := context.Background()

	setup := func(t *testing.T) (*fixture, *models.Collection, *models.Collection) {
		fx := newFixture()
		list := fx.addCollection(t, "list")
		item := fx.addCollection(t, "item")

		inverse := "list"
		forward := &models.RelationshipDefinition{
			CollectionID:        list.ID,
			Name:                "items",
			Kind:                models.RelationshipHasMany,
			RelatedCollectionID: item.ID,
		}
		back := &models.RelationshipDefinition{
			CollectionID:        item.ID,
			Name:                inverse,
			Kind:                models.RelationshipHasOne,
			RelatedCollectionID: list.ID,
		}
		require.NoError(t, fx.relDefs.CreatePair(ctx, forward, back))

		return fx, list, item
	}

	t.Run("add and remove related documents", func(t *testing.T) {
		fx, list, item := setup(t)

		listDoc, err := fx.service.Create(ctx, testProject, list.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		itemA, err := fx.service.Create(ctx, testProject, item.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		itemB, err := fx.service.Create(ctx, testProject, item.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)

		_, err = fx.service.AddRelated(ctx, testProject, list.ID, listDoc.Identity.ID, "items", itemA.Identity.ID)
		require.NoError(t, err)
		current, err := fx.service.AddRelated(ctx, testProject, list.ID, listDoc.Identity.ID, "items", itemB.Identity.ID)
		require.NoError(t, err)

		assert.Equal(t, []models.DocumentIdentity{
			{ID: itemA.Identity.ID, Type: "item"},
			{ID: itemB.Identity.ID, Type: "item"},
		}, current.Relationships["items"].Data)

		current, err = fx.service.RemoveRelated(ctx, testProject, list.ID, listDoc.Identity.ID, "items", itemA.Identity.ID)
		require.NoError(t, err)
		assert.Equal(t, []models.DocumentIdentity{
			{ID: itemB.Identity.ID, Type: "item"},
		}, current.Relationships["items"].Data)
	})

	t.Run("clear empties the relationship", func(t *testing.T) {
		fx, list, item := setup(t)

		listDoc, err := fx.service.Create(ctx, testProject, list.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		itemA, err := fx.service.Create(ctx, testProject, item.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)

		_, err = fx.service.AddRelated(ctx, testProject, list.ID, listDoc.Identity.ID, "items", itemA.Identity.ID)
		require.NoError(t, err)

		current, err := fx.service.ClearRelationship(ctx, testProject, list.ID, listDoc.Identity.ID, "items")
		require.NoError(t, err)
		assert.Equal(t, []models.DocumentIdentity{}, current.Relationships["items"].Data)
	})

	t.Run("rejects related documents from the wrong collection", func(t *testing.T) {
		fx, list, _ := setup(t)

		listDoc, err := fx.service.Create(ctx, testProject, list.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		other, err := fx.service.Create(ctx, testProject, list.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)

		_, err = fx.service.AddRelated(ctx, testProject, list.ID, listDoc.Identity.ID, "items", other.Identity.ID)
		assertStatus(t, err, http.StatusBadRequest)
	})

	t.Run("unknown relationship returns not found", func(t *testing.T) {
		fx, list, _ := setup(t)

		listDoc, err := fx.service.Create(ctx, testProject, list.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)

		_, err = fx.service.AddRelated(ctx, testProject, list.ID, listDoc.Identity.ID, "owners", uuid.New().String())
		assertStatus(t, err, http.StatusNotFound)
	})
}

func TestGetAndList(t *testing.T) {
	ctx := context.Background()

	t.Run("get hides tombstoned documents", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")

		doc, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		require.NoError(t, fx.service.Delete(ctx, testProject, col.ID, doc.Identity.ID))

		_, err = fx.service.Get(ctx, testProject, col.ID, doc.Identity.ID)
		assertStatus(t, err, http.StatusNotFound)
	})

	t.Run("list only returns live documents", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")

		live, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		dead, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)
		require.NoError(t, fx.service.Delete(ctx, testProject, col.ID, dead.Identity.ID))

		resp, err := fx.service.List(ctx, testProject, col.ID, 1, 20)
		require.NoError(t, err)
		require.Len(t, resp.Items, 1)
		assert.Equal(t, live.Identity.ID, resp.Items[0].Identity.ID)
	})

	t.Run("documents are scoped to their project", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")

		doc, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{})
		require.NoError(t, err)

		_, err = fx.service.Get(ctx, "another-project", col.ID, doc.Identity.ID)
		assertStatus(t, err, http.StatusNotFound)
	})
}

func TestOperationsFeed(t *testing.T) {
	ctx := context.Background()

	t.Run("live document history", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")
		fx.addAttribute(t, col.ID, "title", models.AttributeTypeString, false)

		doc, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"title": "groceries"},
		})
		require.NoError(t, err)

		records, err := fx.service.Operations(ctx, testProject, col.ID, doc.Identity.ID)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, feed.OpAdd, records[0].Op)
		assert.Equal(t, feed.OpUpdate, records[1].Op)
		assert.Equal(t, map[string]any{"title": "groceries"}, records[1].Data)
	})

	t.Run("tombstoned document collapses to a single remove", func(t *testing.T) {
		fx := newFixture()
		col := fx.addCollection(t, "list")
		fx.addAttribute(t, col.ID, "title", models.AttributeTypeString, false)

		doc, err := fx.service.Create(ctx, testProject, col.ID, models.CreateDocumentRequest{
			Attributes: map[string]any{"title": "groceries"},
		})
		require.NoError(t, err)
		require.NoError(t, fx.service.Delete(ctx, testProject, col.ID, doc.Identity.ID))

		records, err := fx.service.Operations(ctx, testProject, col.ID, doc.Identity.ID)
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, feed.OpRemove, records[0].Op)
	})
}
