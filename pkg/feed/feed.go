// Package feed projects a document's full history into an ordered sequence
// of portable operation records for downstream sync consumers. The record
// shape is a compatibility surface: consumers key off Op and the presence of
// Ref.Relationship to interpret Data.
package feed

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/codec"
	"github.com/Ramsey-B/fern/pkg/materializer"
	"github.com/Ramsey-B/fern/pkg/models"
)

// OperationType is the kind of change an operation record describes
type OperationType string

const (
	OpAdd    OperationType = "add"
	OpUpdate OperationType = "update"
	OpRemove OperationType = "remove"
)

// Ref identifies the document a record applies to. Relationship is set only
// on records describing relationship changes.
type Ref struct {
	ID           string `json:"id"`
	Type         string `json:"type"`
	Relationship string `json:"relationship,omitempty"`
}

// Meta carries the originating operation's id and timestamp
type Meta struct {
	ID        string `json:"id"`
	Timestamp string `json:"timestamp"`
}

// OperationRecord is one entry of the change feed
type OperationRecord struct {
	Op   OperationType `json:"op"`
	Ref  Ref           `json:"ref"`
	Data any           `json:"data,omitempty"`
	Meta Meta          `json:"meta"`
}

// Project converts a document's history into its change feed.
//
// A tombstoned document yields exactly one remove record; its prior history
// is not replayed. A live document yields an add record for its creation
// followed by one record per log entry, all attribute operations before all
// relationship operations. The two logs are deliberately concatenated rather
// than merged by timestamp; downstream consumers depend on this shape.
//
// The projection is pure and replayable: running it twice over an unchanged
// log yields identical output.
func Project(in materializer.Input) []OperationRecord {
	ref := Ref{
		ID:   in.Document.ID,
		Type: in.Collection.Name,
	}

	if in.Document.Removed() {
		return []OperationRecord{{
			Op:  OpRemove,
			Ref: ref,
			Meta: Meta{
				ID:        *in.Document.RemoveOperationID,
				Timestamp: *in.Document.RemoveTimestamp,
			},
		}}
	}

	attrOps := make([]models.AttributeOperation, len(in.AttributeOps))
	copy(attrOps, in.AttributeOps)
	relOps := make([]models.RelationshipOperation, len(in.RelationshipOps))
	copy(relOps, in.RelationshipOps)

	sort.SliceStable(attrOps, func(i, j int) bool {
		return attrOps[i].Timestamp < attrOps[j].Timestamp
	})
	sort.SliceStable(relOps, func(i, j int) bool {
		return relOps[i].Timestamp < relOps[j].Timestamp
	})

	attrDefs := make(map[string]models.AttributeDefinition, len(in.Attributes))
	for _, def := range in.Attributes {
		attrDefs[def.ID] = def
	}

	relDefs := make(map[string]models.RelationshipDefinition, len(in.Relationships))
	for _, def := range in.Relationships {
		relDefs[def.ID] = def
	}

	records := make([]OperationRecord, 0, 1+len(attrOps)+len(relOps))
	records = append(records, OperationRecord{
		Op:  OpAdd,
		Ref: ref,
		Meta: Meta{
			ID:        in.Document.OperationID,
			Timestamp: in.Document.Timestamp,
		},
	})

	for _, op := range attrOps {
		def, ok := attrDefs[op.AttributeDefinitionID]
		if !ok {
			continue
		}
		records = append(records, OperationRecord{
			Op:  OpUpdate,
			Ref: ref,
			Data: map[string]any{
				def.Name: codec.Decode(op.Value, def.Type),
			},
			Meta: Meta{ID: op.ID, Timestamp: op.Timestamp},
		})
	}

	for _, op := range relOps {
		def, ok := relDefs[op.RelationshipDefinitionID]
		if !ok {
			continue
		}

		relRef := ref
		relRef.Relationship = def.Name
		record := OperationRecord{
			Ref:  relRef,
			Meta: Meta{ID: op.ID, Timestamp: op.Timestamp},
		}

		switch {
		case op.RelatedDocumentID == nil:
			record.Op = OpUpdate
			record.Data = []models.DocumentIdentity{}
		case op.Remove:
			record.Op = OpRemove
			record.Data = models.DocumentIdentity{
				ID:   *op.RelatedDocumentID,
				Type: in.CollectionNames[def.RelatedCollectionID],
			}
		default:
			record.Op = OpAdd
			record.Data = models.DocumentIdentity{
				ID:   *op.RelatedDocumentID,
				Type: in.CollectionNames[def.RelatedCollectionID],
			}
		}

		records = append(records, record)
	}

	return records
}
