// Package constants provides shared constants used across the codebase.
// Centralizing these values ensures consistency and makes them easier to modify.
package constants

import "time"

// Face matching constants
const (
	// SearchMaxResults is the number of matches requested for each detected face.
	// Only the best match is ever acted on.
	SearchMaxResults = 1

	// FaceEmbeddingDim is the dimension of face embeddings stored in a collection
	FaceEmbeddingDim = 512
)

// Collection face sources
const (
	// SourceDetection marks faces indexed by a reconciliation run. They are transient.
	SourceDetection = "detection"

	// SourceEnrollment marks faces enrolled as known identities. They are never swept.
	SourceEnrollment = "enrollment"
)

// Processing constants
const (
	// MaxImageSize is the maximum dimension (width or height) sent to the embedding server
	MaxImageSize = 1920

	// CleanupTimeout bounds the delete-faces call made after every run
	CleanupTimeout = 30 * time.Second

	// ListPageSize is the page size used when listing bucket keys for backfill
	ListPageSize = 1000
)

// HTTP constants
const (
	// MaxEventBodyBytes is the maximum accepted size of an event notification body
	MaxEventBodyBytes = 1 << 20

	// ShutdownTimeout is how long the server waits for in-flight requests on shutdown
	ShutdownTimeout = 30 * time.Second
)
