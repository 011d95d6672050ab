package feed

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/materializer"
	"github.com/Ramsey-B/fern/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func ts(counter int64) string {
	return string(clock.Format(1700000000000, counter))
}

func liveInput() materializer.Input {
	return materializer.Input{
		Document: models.Document{
			ID:           "doc-1",
			CollectionID: "col-list",
			Timestamp:    ts(0),
			OperationID:  "op-create",
		},
		Collection: models.Collection{ID: "col-list", Name: "list"},
		CollectionNames: map[string]string{
			"col-list": "list",
			"col-item": "item",
		},
		Attributes: []models.AttributeDefinition{
			{ID: "attr-title", Name: "title", Type: models.AttributeTypeString},
		},
		Relationships: []models.RelationshipDefinition{
			{ID: "rel-items", Name: "items", Kind: models.RelationshipHasMany, RelatedCollectionID: "col-item"},
		},
	}
}

func TestProjectTombstone(t *testing.T) {
	in := liveInput()
	in.Document.RemoveTimestamp = strPtr(ts(9))
	in.Document.RemoveOperationID = strPtr("op-remove")
	// history before the tombstone must not be replayed
	in.AttributeOps = []models.AttributeOperation{
		{ID: "1", AttributeDefinitionID: "attr-title", Value: strPtr("groceries"), Timestamp: ts(1)},
	}
	in.RelationshipOps = []models.RelationshipOperation{
		{ID: "2", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(2)},
	}

	records := Project(in)
	require.Len(t, records, 1)
	assert.Equal(t, OpRemove, records[0].Op)
	assert.Equal(t, Ref{ID: "doc-1", Type: "list"}, records[0].Ref)
	assert.Nil(t, records[0].Data)
	assert.Equal(t, Meta{ID: "op-remove", Timestamp: ts(9)}, records[0].Meta)
}

func TestProjectLiveDocument(t *testing.T) {
	in := liveInput()
	in.AttributeOps = []models.AttributeOperation{
		{ID: "op-attr", AttributeDefinitionID: "attr-title", Value: strPtr("groceries"), Timestamp: ts(5)},
	}
	in.RelationshipOps = []models.RelationshipOperation{
		// earlier timestamp than the attribute op: still emitted after it
		{ID: "op-rel", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(1)},
	}

	records := Project(in)
	require.Len(t, records, 3)

	assert.Equal(t, OpAdd, records[0].Op)
	assert.Equal(t, Ref{ID: "doc-1", Type: "list"}, records[0].Ref)
	assert.Equal(t, Meta{ID: "op-create", Timestamp: ts(0)}, records[0].Meta)

	// attribute log comes first, relationship log after, even when the
	// relationship op has an earlier timestamp
	assert.Equal(t, OpUpdate, records[1].Op)
	assert.Equal(t, map[string]any{"title": "groceries"}, records[1].Data)
	assert.Equal(t, Meta{ID: "op-attr", Timestamp: ts(5)}, records[1].Meta)

	assert.Equal(t, OpAdd, records[2].Op)
	assert.Equal(t, "items", records[2].Ref.Relationship)
	assert.Equal(t, models.DocumentIdentity{ID: "doc-a", Type: "item"}, records[2].Data)
}

func TestProjectRelationshipVariants(t *testing.T) {
	in := liveInput()
	in.RelationshipOps = []models.RelationshipOperation{
		{ID: "1", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(1)},
		{ID: "2", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Remove: true, Timestamp: ts(2)},
		{ID: "3", RelationshipDefinitionID: "rel-items", RelatedDocumentID: nil, Timestamp: ts(3)},
	}

	records := Project(in)
	require.Len(t, records, 4)

	add := records[1]
	assert.Equal(t, OpAdd, add.Op)
	assert.Equal(t, "items", add.Ref.Relationship)
	assert.Equal(t, models.DocumentIdentity{ID: "doc-a", Type: "item"}, add.Data)

	remove := records[2]
	assert.Equal(t, OpRemove, remove.Op)
	assert.Equal(t, "items", remove.Ref.Relationship)
	assert.Equal(t, models.DocumentIdentity{ID: "doc-a", Type: "item"}, remove.Data)

	clear := records[3]
	assert.Equal(t, OpUpdate, clear.Op)
	assert.Equal(t, "items", clear.Ref.Relationship)
	assert.Equal(t, []models.DocumentIdentity{}, clear.Data)
}

func TestProjectSkipsOrphanedDefinitions(t *testing.T) {
	in := liveInput()
	in.AttributeOps = []models.AttributeOperation{
		{ID: "1", AttributeDefinitionID: "attr-gone", Value: strPtr("x"), Timestamp: ts(1)},
	}
	in.RelationshipOps = []models.RelationshipOperation{
		{ID: "2", RelationshipDefinitionID: "rel-gone", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(2)},
	}

	records := Project(in)
	require.Len(t, records, 1)
	assert.Equal(t, OpAdd, records[0].Op)
}

func TestProjectStability(t *testing.T) {
	in := liveInput()
	in.AttributeOps = []models.AttributeOperation{
		{ID: "1", AttributeDefinitionID: "attr-title", Value: strPtr("groceries"), Timestamp: ts(1)},
		{ID: "2", AttributeDefinitionID: "attr-title", Value: nil, Timestamp: ts(2)},
	}
	in.RelationshipOps = []models.RelationshipOperation{
		{ID: "3", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(3)},
		{ID: "4", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-b"), Timestamp: ts(4)},
	}

	first, err := json.Marshal(Project(in))
	require.NoError(t, err)
	second, err := json.Marshal(Project(in))
	require.NoError(t, err)

	assert.Equal(t, first, second, "projection over an unchanged log must be byte-identical")
}

func TestProjectWireShape(t *testing.T) {
	in := liveInput()
	in.RelationshipOps = []models.RelationshipOperation{
		{ID: "op-rel", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(1)},
	}

	records := Project(in)
	raw, err := json.Marshal(records[1])
	require.NoError(t, err)

	assert.JSONEq(t, `{
		"op": "add",
		"ref": {"id": "doc-1", "type": "list", "relationship": "items"},
		"data": {"id": "doc-a", "type": "item"},
		"meta": {"id": "op-rel", "timestamp": "1700000000000-0000000001"}
	}`, string(raw))

	// add record for creation carries no data and no relationship key
	raw, err = json.Marshal(records[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{
		"op": "add",
		"ref": {"id": "doc-1", "type": "list"},
		"meta": {"id": "op-create", "timestamp": "1700000000000-0000000000"}
	}`, string(raw))
}
