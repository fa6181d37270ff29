package database

import (
	"time"
)

// CollectionFace is a face stored in a per-user collection.
type CollectionFace struct {
	ID         int64
	FaceID     string // externally visible face identifier (UUID)
	Collection string // collection name, the uploader's identity
	PhotoKey   string // object key the face was indexed from
	Source     string // constants.SourceDetection or constants.SourceEnrollment
	Embedding  []float32
	BBox       []float64 // [x1, y1, x2, y2] relative to image size (0-1)
	DetScore   float64
	CreatedAt  time.Time
}

// ScoredFace is a search hit with its cosine distance to the query.
type ScoredFace struct {
	Face     CollectionFace
	Distance float64
}

// IdentityRecord maps an enrolled face to the contact it belongs to.
type IdentityRecord struct {
	FaceID     string
	ContactKey string
}
