package models

import (
	"time"
)

// Document is the row anchoring a document's operation logs. Timestamp and
// OperationID record the creation event; RemoveTimestamp and RemoveOperationID
// are set when the document is tombstoned.
type Document struct {
	ID                string     `json:"id" db:"id"`
	ProjectID         string     `json:"project_id" db:"project_id"`
	CollectionID      string     `json:"collection_id" db:"collection_id"`
	Timestamp         string     `json:"timestamp" db:"timestamp"`
	OperationID       string     `json:"operation_id" db:"operation_id"`
	RemoveTimestamp   *string    `json:"remove_timestamp,omitempty" db:"remove_timestamp"`
	RemoveOperationID *string    `json:"remove_operation_id,omitempty" db:"remove_operation_id"`
	CreatedAt         time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at" db:"updated_at"`
}

// Removed reports whether the document has been tombstoned
func (d *Document) Removed() bool {
	return d.RemoveTimestamp != nil
}

// DocumentIdentity identifies a document by id and collection name
type DocumentIdentity struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// AttributeOperation is one append-only entry in a document's attribute log.
// Value holds the encoded string form; nil encodes a null write.
type AttributeOperation struct {
	ID                    string    `json:"id" db:"id"`
	DocumentID            string    `json:"document_id" db:"document_id"`
	AttributeDefinitionID string    `json:"attribute_definition_id" db:"attribute_definition_id"`
	Value                 *string   `json:"value" db:"value"`
	Timestamp             string    `json:"timestamp" db:"timestamp"`
	CreatedAt             time.Time `json:"created_at" db:"created_at"`
}

// RelationshipOperation is one append-only entry in a document's relationship
// log. Remove distinguishes unlink entries from link entries; a remove with a
// nil RelatedDocumentID clears the relationship entirely.
type RelationshipOperation struct {
	ID                       string    `json:"id" db:"id"`
	DocumentID               string    `json:"document_id" db:"document_id"`
	RelationshipDefinitionID string    `json:"relationship_definition_id" db:"relationship_definition_id"`
	RelatedDocumentID        *string   `json:"related_document_id" db:"related_document_id"`
	Remove                   bool      `json:"remove" db:"remove"`
	Timestamp                string    `json:"timestamp" db:"timestamp"`
	CreatedAt                time.Time `json:"created_at" db:"created_at"`
}

// RelationshipValue is the materialized value of one relationship. Data holds
// a single *DocumentIdentity for has_one or a []DocumentIdentity for has_many.
type RelationshipValue struct {
	Data any `json:"data"`
}

// MaterializedDocument is the current state of a document, folded from its
// operation logs
type MaterializedDocument struct {
	Identity      DocumentIdentity             `json:"identity"`
	Attributes    map[string]any               `json:"attributes"`
	Relationships map[string]RelationshipValue `json:"relationships"`
	Timestamp     string                       `json:"timestamp"`
	Removed       bool                         `json:"removed,omitempty"`
}

// CreateDocumentRequest is the request body for creating a document
type CreateDocumentRequest struct {
	Attributes map[string]any `json:"attributes"`
}

// UpdateAttributesRequest is the request body for writing document attributes
type UpdateAttributesRequest struct {
	Attributes map[string]any `json:"attributes" validate:"required"`
}

// RelateDocumentRequest is the request body for linking or unlinking a
// related document
type RelateDocumentRequest struct {
	RelatedDocumentID string `json:"related_document_id" validate:"required,uuid"`
}

// DocumentListResponse is the API response for listing the live documents of
// a collection
type DocumentListResponse struct {
	Items      []MaterializedDocument `json:"items"`
	TotalCount int                    `json:"total_count"`
	Page       int                    `json:"page"`
	PageSize   int                    `json:"page_size"`
}
