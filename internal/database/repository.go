package database

import (
	"context"
	"time"
)

// CollectionReader provides read-only access to face collections
type CollectionReader interface {
	// GetFace retrieves a face by its face ID within a collection, returns nil if not found
	GetFace(ctx context.Context, collection, faceID string) (*CollectionFace, error)
	// FindSimilar returns up to limit faces of the collection nearest to embedding,
	// closest first, never including excludeFaceID
	FindSimilar(ctx context.Context, collection string, embedding []float32, excludeFaceID string, limit int) ([]ScoredFace, error)
	// Count returns the number of faces in a collection
	Count(ctx context.Context, collection string) (int, error)
}

// CollectionWriter provides write access to face collections
type CollectionWriter interface {
	CollectionReader

	// AddFaces stores faces. Face IDs must be unique.
	AddFaces(ctx context.Context, faces []CollectionFace) error

	// DeleteFaces removes the given faces from a collection in one statement.
	// Returns the number of faces removed.
	DeleteFaces(ctx context.Context, collection string, faceIDs []string) (int64, error)

	// DeleteStaleDetections removes detection faces created before olderThan, in every collection.
	// Enrollment faces are never removed.
	DeleteStaleDetections(ctx context.Context, olderThan time.Time) (int64, error)
}

// IdentityReader resolves enrolled face IDs to contacts
type IdentityReader interface {
	// GetIdentity returns the identity for a face ID, or nil if the face is not enrolled
	GetIdentity(ctx context.Context, faceID string) (*IdentityRecord, error)
}

// IdentityWriter provides write access to identity records
type IdentityWriter interface {
	IdentityReader

	// PutIdentity creates or replaces the identity for a face ID
	PutIdentity(ctx context.Context, record IdentityRecord) error
}

// AssociationReader provides read-only access to contact-photo associations
type AssociationReader interface {
	// GetPhotos returns the photo keys associated with a contact, sorted
	GetPhotos(ctx context.Context, contactKey string) ([]string, error)
}

// AssociationWriter provides write access to contact-photo associations
type AssociationWriter interface {
	AssociationReader

	// AddPhoto adds photoKey to the contact's photo set. The add is atomic and
	// idempotent: adding a key that is already present leaves the set unchanged.
	AddPhoto(ctx context.Context, contactKey, photoKey string) error
}
