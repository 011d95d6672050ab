// Package materializer folds a document's operation logs into its current
// state. The fold is pure and total: it never touches storage and never
// fails, so historical replay always succeeds.
package materializer

import (
	"sort"

	"github.com/Ramsey-B/fern/pkg/codec"
	"github.com/Ramsey-B/fern/pkg/models"
)

// Input carries everything the fold needs, already loaded from storage.
// CollectionNames maps collection ids to names so related documents can be
// projected to their identity.
type Input struct {
	Document        models.Document
	Collection      models.Collection
	Attributes      []models.AttributeDefinition
	Relationships   []models.RelationshipDefinition
	CollectionNames map[string]string
	AttributeOps    []models.AttributeOperation
	RelationshipOps []models.RelationshipOperation
}

// Materialize derives the document's current attributes and relationships by
// folding its operation logs in ascending timestamp order. Operations
// referencing definitions that have since been deleted are skipped silently.
// The caller decides how to treat removed documents; the fold reports the
// tombstone but does not hide them.
func Materialize(in Input) models.MaterializedDocument {
	attrOps := make([]models.AttributeOperation, len(in.AttributeOps))
	copy(attrOps, in.AttributeOps)
	relOps := make([]models.RelationshipOperation, len(in.RelationshipOps))
	copy(relOps, in.RelationshipOps)

	// Insertion order is not trusted: operations written by other processes
	// may arrive out of order, so the logs are re-sorted at read time.
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

	attributes := make(map[string]any)
	for _, op := range attrOps {
		def, ok := attrDefs[op.AttributeDefinitionID]
		if !ok {
			continue
		}
		attributes[def.Name] = codec.Decode(op.Value, def.Type)
	}

	relationships := make(map[string]models.RelationshipValue, len(in.Relationships))
	for _, def := range in.Relationships {
		if def.Kind == models.RelationshipHasMany {
			relationships[def.Name] = models.RelationshipValue{Data: []models.DocumentIdentity{}}
		} else {
			relationships[def.Name] = models.RelationshipValue{Data: nil}
		}
	}

	for _, op := range relOps {
		def, ok := relDefs[op.RelationshipDefinitionID]
		if !ok {
			continue
		}

		if def.Kind == models.RelationshipHasMany {
			current, _ := relationships[def.Name].Data.([]models.DocumentIdentity)

			switch {
			case op.RelatedDocumentID == nil:
				relationships[def.Name] = models.RelationshipValue{Data: []models.DocumentIdentity{}}
			case op.Remove:
				filtered := make([]models.DocumentIdentity, 0, len(current))
				for _, identity := range current {
					if identity.ID != *op.RelatedDocumentID {
						filtered = append(filtered, identity)
					}
				}
				relationships[def.Name] = models.RelationshipValue{Data: filtered}
			default:
				// repeated adds of the same document are kept as duplicates
				relationships[def.Name] = models.RelationshipValue{
					Data: append(current, relatedIdentity(in, def, *op.RelatedDocumentID)),
				}
			}
			continue
		}

		if op.Remove || op.RelatedDocumentID == nil {
			relationships[def.Name] = models.RelationshipValue{Data: nil}
		} else {
			relationships[def.Name] = models.RelationshipValue{
				Data: relatedIdentity(in, def, *op.RelatedDocumentID),
			}
		}
	}

	return models.MaterializedDocument{
		Identity: models.DocumentIdentity{
			ID:   in.Document.ID,
			Type: in.Collection.Name,
		},
		Attributes:    attributes,
		Relationships: relationships,
		Timestamp:     in.Document.Timestamp,
		Removed:       in.Document.Removed(),
	}
}

func relatedIdentity(in Input, def models.RelationshipDefinition, relatedID string) models.DocumentIdentity {
	return models.DocumentIdentity{
		ID:   relatedID,
		Type: in.CollectionNames[def.RelatedCollectionID],
	}
}
