package materializer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/fern/pkg/clock"
	"github.com/Ramsey-B/fern/pkg/models"
)

func strPtr(s string) *string {
	return &s
}

func ts(counter int64) string {
	return string(clock.Format(1700000000000, counter))
}

func baseInput() Input {
	return Input{
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
	}
}

func TestMaterializeAttributes(t *testing.T) {
	t.Run("last write wins per attribute name", func(t *testing.T) {
		in := baseInput()
		in.Attributes = []models.AttributeDefinition{
			{ID: "attr-title", CollectionID: "col-list", Name: "title", Type: models.AttributeTypeString},
		}
		in.AttributeOps = []models.AttributeOperation{
			{ID: "1", DocumentID: "doc-1", AttributeDefinitionID: "attr-title", Value: strPtr("first"), Timestamp: ts(1)},
			{ID: "2", DocumentID: "doc-1", AttributeDefinitionID: "attr-title", Value: strPtr("second"), Timestamp: ts(2)},
			{ID: "3", DocumentID: "doc-1", AttributeDefinitionID: "attr-title", Value: strPtr("third"), Timestamp: ts(3)},
		}

		doc := Materialize(in)
		assert.Equal(t, "third", doc.Attributes["title"])
	})

	t.Run("operations are folded in timestamp order regardless of insertion order", func(t *testing.T) {
		in := baseInput()
		in.Attributes = []models.AttributeDefinition{
			{ID: "attr-title", CollectionID: "col-list", Name: "title", Type: models.AttributeTypeString},
		}
		in.AttributeOps = []models.AttributeOperation{
			{ID: "2", AttributeDefinitionID: "attr-title", Value: strPtr("late"), Timestamp: ts(5)},
			{ID: "1", AttributeDefinitionID: "attr-title", Value: strPtr("early"), Timestamp: ts(1)},
		}

		doc := Materialize(in)
		assert.Equal(t, "late", doc.Attributes["title"])
	})

	t.Run("decodes by declared type", func(t *testing.T) {
		in := baseInput()
		in.Attributes = []models.AttributeDefinition{
			{ID: "attr-count", Name: "count", Type: models.AttributeTypeInt},
			{ID: "attr-done", Name: "done", Type: models.AttributeTypeBoolean},
		}
		in.AttributeOps = []models.AttributeOperation{
			{ID: "1", AttributeDefinitionID: "attr-count", Value: strPtr("42"), Timestamp: ts(1)},
			{ID: "2", AttributeDefinitionID: "attr-done", Value: strPtr("true"), Timestamp: ts(2)},
		}

		doc := Materialize(in)
		assert.Equal(t, int64(42), doc.Attributes["count"])
		assert.Equal(t, true, doc.Attributes["done"])
	})

	t.Run("null writes materialize as nil", func(t *testing.T) {
		in := baseInput()
		in.Attributes = []models.AttributeDefinition{
			{ID: "attr-title", Name: "title", Type: models.AttributeTypeString},
		}
		in.AttributeOps = []models.AttributeOperation{
			{ID: "1", AttributeDefinitionID: "attr-title", Value: strPtr("set"), Timestamp: ts(1)},
			{ID: "2", AttributeDefinitionID: "attr-title", Value: nil, Timestamp: ts(2)},
		}

		doc := Materialize(in)
		require.Contains(t, doc.Attributes, "title")
		assert.Nil(t, doc.Attributes["title"])
	})

	t.Run("operations for deleted definitions are skipped silently", func(t *testing.T) {
		in := baseInput()
		in.AttributeOps = []models.AttributeOperation{
			{ID: "1", AttributeDefinitionID: "attr-gone", Value: strPtr("orphaned"), Timestamp: ts(1)},
		}

		doc := Materialize(in)
		assert.Empty(t, doc.Attributes)
	})
}

func TestMaterializeRelationships(t *testing.T) {
	itemsDef := models.RelationshipDefinition{
		ID:                  "rel-items",
		CollectionID:        "col-list",
		Name:                "items",
		Kind:                models.RelationshipHasMany,
		RelatedCollectionID: "col-item",
	}
	parentDef := models.RelationshipDefinition{
		ID:                  "rel-parent",
		CollectionID:        "col-list",
		Name:                "parent",
		Kind:                models.RelationshipHasOne,
		RelatedCollectionID: "col-list",
	}

	t.Run("declared relationships start at their empty value", func(t *testing.T) {
		in := baseInput()
		in.Relationships = []models.RelationshipDefinition{itemsDef, parentDef}

		doc := Materialize(in)
		assert.Equal(t, []models.DocumentIdentity{}, doc.Relationships["items"].Data)
		assert.Nil(t, doc.Relationships["parent"].Data)
	})

	t.Run("has_many add then remove round trip", func(t *testing.T) {
		in := baseInput()
		in.Relationships = []models.RelationshipDefinition{itemsDef}
		in.RelationshipOps = []models.RelationshipOperation{
			{ID: "1", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(1)},
			{ID: "2", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-b"), Timestamp: ts(2)},
		}

		doc := Materialize(in)
		assert.Equal(t, []models.DocumentIdentity{
			{ID: "doc-a", Type: "item"},
			{ID: "doc-b", Type: "item"},
		}, doc.Relationships["items"].Data)

		in.RelationshipOps = append(in.RelationshipOps, models.RelationshipOperation{
			ID: "3", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Remove: true, Timestamp: ts(3),
		})

		doc = Materialize(in)
		assert.Equal(t, []models.DocumentIdentity{
			{ID: "doc-b", Type: "item"},
		}, doc.Relationships["items"].Data)
	})

	t.Run("has_many null write resets to empty", func(t *testing.T) {
		in := baseInput()
		in.Relationships = []models.RelationshipDefinition{itemsDef}
		in.RelationshipOps = []models.RelationshipOperation{
			{ID: "1", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(1)},
			{ID: "2", RelationshipDefinitionID: "rel-items", RelatedDocumentID: nil, Timestamp: ts(2)},
		}

		doc := Materialize(in)
		assert.Equal(t, []models.DocumentIdentity{}, doc.Relationships["items"].Data)
	})

	t.Run("repeated has_many adds keep duplicates", func(t *testing.T) {
		in := baseInput()
		in.Relationships = []models.RelationshipDefinition{itemsDef}
		in.RelationshipOps = []models.RelationshipOperation{
			{ID: "1", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(1)},
			{ID: "2", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(2)},
		}

		doc := Materialize(in)
		entries, ok := doc.Relationships["items"].Data.([]models.DocumentIdentity)
		require.True(t, ok)
		assert.Len(t, entries, 2)
	})

	t.Run("has_one set and clear", func(t *testing.T) {
		in := baseInput()
		in.Relationships = []models.RelationshipDefinition{parentDef}
		in.RelationshipOps = []models.RelationshipOperation{
			{ID: "1", RelationshipDefinitionID: "rel-parent", RelatedDocumentID: strPtr("doc-2"), Timestamp: ts(1)},
		}

		doc := Materialize(in)
		assert.Equal(t, models.DocumentIdentity{ID: "doc-2", Type: "list"}, doc.Relationships["parent"].Data)

		in.RelationshipOps = append(in.RelationshipOps, models.RelationshipOperation{
			ID: "2", RelationshipDefinitionID: "rel-parent", RelatedDocumentID: nil, Timestamp: ts(2),
		})

		doc = Materialize(in)
		assert.Nil(t, doc.Relationships["parent"].Data)
	})

	t.Run("has_one remove clears even with a related reference", func(t *testing.T) {
		in := baseInput()
		in.Relationships = []models.RelationshipDefinition{parentDef}
		in.RelationshipOps = []models.RelationshipOperation{
			{ID: "1", RelationshipDefinitionID: "rel-parent", RelatedDocumentID: strPtr("doc-2"), Timestamp: ts(1)},
			{ID: "2", RelationshipDefinitionID: "rel-parent", RelatedDocumentID: strPtr("doc-2"), Remove: true, Timestamp: ts(2)},
		}

		doc := Materialize(in)
		assert.Nil(t, doc.Relationships["parent"].Data)
	})

	t.Run("operations for deleted definitions are skipped silently", func(t *testing.T) {
		in := baseInput()
		in.RelationshipOps = []models.RelationshipOperation{
			{ID: "1", RelationshipDefinitionID: "rel-gone", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(1)},
		}

		doc := Materialize(in)
		assert.Empty(t, doc.Relationships)
	})
}

func TestMaterializeIdentityAndTombstone(t *testing.T) {
	in := baseInput()

	doc := Materialize(in)
	assert.Equal(t, models.DocumentIdentity{ID: "doc-1", Type: "list"}, doc.Identity)
	assert.False(t, doc.Removed)

	in.Document.RemoveTimestamp = strPtr(ts(9))
	in.Document.RemoveOperationID = strPtr("op-remove")

	doc = Materialize(in)
	assert.True(t, doc.Removed)
}

func TestMaterializeIdempotent(t *testing.T) {
	in := baseInput()
	in.Attributes = []models.AttributeDefinition{
		{ID: "attr-title", Name: "title", Type: models.AttributeTypeString},
	}
	in.Relationships = []models.RelationshipDefinition{
		{ID: "rel-items", Name: "items", Kind: models.RelationshipHasMany, RelatedCollectionID: "col-item"},
	}
	in.AttributeOps = []models.AttributeOperation{
		{ID: "1", AttributeDefinitionID: "attr-title", Value: strPtr("groceries"), Timestamp: ts(1)},
	}
	in.RelationshipOps = []models.RelationshipOperation{
		{ID: "2", RelationshipDefinitionID: "rel-items", RelatedDocumentID: strPtr("doc-a"), Timestamp: ts(2)},
	}

	first := Materialize(in)
	second := Materialize(in)
	assert.Equal(t, first, second)
}
