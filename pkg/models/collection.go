package models

import (
	"time"
)

// AttributeType enumerates the value types a collection attribute can hold
type AttributeType string

const (
	AttributeTypeString   AttributeType = "string"
	AttributeTypeInt      AttributeType = "int"
	AttributeTypeFloat    AttributeType = "float"
	AttributeTypeBoolean  AttributeType = "boolean"
	AttributeTypeDatetime AttributeType = "datetime"
	AttributeTypeDate     AttributeType = "date"
)

// IsValid reports whether the attribute type is one of the supported types
func (t AttributeType) IsValid() bool {
	switch t {
	case AttributeTypeString, AttributeTypeInt, AttributeTypeFloat,
		AttributeTypeBoolean, AttributeTypeDatetime, AttributeTypeDate:
		return true
	}
	return false
}

// RelationshipKind defines the cardinality of one side of a relationship
type RelationshipKind string

const (
	RelationshipHasOne  RelationshipKind = "has_one"
	RelationshipHasMany RelationshipKind = "has_many"
)

// IsValid reports whether the relationship kind is supported
func (k RelationshipKind) IsValid() bool {
	return k == RelationshipHasOne || k == RelationshipHasMany
}

// Swapped returns the kind of the opposite side when none is given explicitly
func (k RelationshipKind) Swapped() RelationshipKind {
	if k == RelationshipHasOne {
		return RelationshipHasMany
	}
	return RelationshipHasOne
}

// OwnerForPair decides which side of a bidirectional relationship pair owns it.
// The forward side owns in every combination except many-to-one (forward
// has_many pointing at a has_one inverse), where the inverse side owns.
func OwnerForPair(forward, inverse RelationshipKind) bool {
	if forward == RelationshipHasMany && inverse == RelationshipHasOne {
		return false
	}
	return true
}

// Collection is a project-scoped, user-defined schema container (a "table")
type Collection struct {
	ID        string     `json:"id" db:"id"`
	ProjectID string     `json:"project_id" db:"project_id"`
	Name      string     `json:"name" db:"name" validate:"required"`
	CreatedAt time.Time  `json:"created_at" db:"created_at"`
	UpdatedAt time.Time  `json:"updated_at" db:"updated_at"`
	DeletedAt *time.Time `json:"deleted_at,omitempty" db:"deleted_at"`
}

// AttributeDefinition declares a typed field on a collection
type AttributeDefinition struct {
	ID           string        `json:"id" db:"id"`
	CollectionID string        `json:"collection_id" db:"collection_id"`
	Name         string        `json:"name" db:"name" validate:"required"`
	Type         AttributeType `json:"type" db:"type"`
	Required     bool          `json:"required" db:"required"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt    time.Time     `json:"updated_at" db:"updated_at"`
}

// RelationshipDefinition declares a link from one collection to another.
// Inverse names the symmetric definition on the related collection, when one
// exists. Exactly one side of such a pair has Owner set.
type RelationshipDefinition struct {
	ID                  string           `json:"id" db:"id"`
	CollectionID        string           `json:"collection_id" db:"collection_id"`
	Name                string           `json:"name" db:"name" validate:"required"`
	Kind                RelationshipKind `json:"kind" db:"kind"`
	RelatedCollectionID string           `json:"related_collection_id" db:"related_collection_id"`
	Inverse             *string          `json:"inverse,omitempty" db:"inverse"`
	Owner               bool             `json:"owner" db:"owner"`
	CreatedAt           time.Time        `json:"created_at" db:"created_at"`
	UpdatedAt           time.Time        `json:"updated_at" db:"updated_at"`
}

// CreateCollectionRequest is the request body for creating a collection
type CreateCollectionRequest struct {
	Name string `json:"name" validate:"required"`
}

// CreateAttributeRequest is the request body for defining an attribute
type CreateAttributeRequest struct {
	Name     string        `json:"name" validate:"required"`
	Type     AttributeType `json:"type" validate:"required,oneof=string int float boolean datetime date"`
	Required bool          `json:"required"`
}

// CreateRelationshipRequest is the request body for defining a relationship.
// RelatedCollection is the name of the target collection within the same
// project. When Inverse is given, the symmetric definition is created on the
// related collection; InverseKind defaults to the swapped cardinality.
type CreateRelationshipRequest struct {
	Name              string            `json:"name" validate:"required"`
	Kind              RelationshipKind  `json:"kind" validate:"required,oneof=has_one has_many"`
	RelatedCollection string            `json:"related_collection" validate:"required"`
	Inverse           *string           `json:"inverse,omitempty"`
	InverseKind       *RelationshipKind `json:"inverse_kind,omitempty"`
}

// RenameRelationshipRequest is the request body for renaming a relationship
type RenameRelationshipRequest struct {
	Name string `json:"name" validate:"required"`
}

// SetInverseRequest is the request body for renaming or removing a
// relationship's inverse. A nil Inverse removes the inverse definition.
type SetInverseRequest struct {
	Inverse *string `json:"inverse"`
}

// AttributeSchema is the read-only schema projection of one attribute
type AttributeSchema struct {
	Type     AttributeType `json:"type"`
	Required bool          `json:"required"`
}

// RelationshipSchema is the read-only schema projection of one relationship
type RelationshipSchema struct {
	Kind              RelationshipKind `json:"kind"`
	RelatedCollection string           `json:"related_collection"`
	Inverse           *string          `json:"inverse,omitempty"`
}

// SchemaResponse is the current schema of a collection, recomputed from its
// definitions on every read
type SchemaResponse struct {
	Attributes    map[string]AttributeSchema    `json:"attributes"`
	Relationships map[string]RelationshipSchema `json:"relationships"`
}

// CollectionResponse is the API response for collection operations
type CollectionResponse struct {
	Collection
}

// CollectionListResponse is the API response for listing collections
type CollectionListResponse struct {
	Items      []Collection `json:"items"`
	TotalCount int          `json:"total_count"`
	Page       int          `json:"page"`
	PageSize   int          `json:"page_size"`
}

// RelationshipPairResponse returns the forward definition and, when an inverse
// name was requested, the symmetric definition created on the related collection
type RelationshipPairResponse struct {
	Relationship RelationshipDefinition  `json:"relationship"`
	Inverse      *RelationshipDefinition `json:"inverse,omitempty"`
}
