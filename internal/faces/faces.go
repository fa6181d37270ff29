// Package faces implements the face capability: indexing faces of a photo into a per-user
// collection, searching a collection for faces similar to an indexed one, and deleting faces.
package faces

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/kozaktomas/photo-faces/internal/constants"
	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/embedding"
	"github.com/kozaktomas/photo-faces/internal/facematch"
	"github.com/kozaktomas/photo-faces/internal/storage"
)

// ErrFaceNotFound is returned by SearchFace when the query face is not in the collection.
var ErrFaceNotFound = errors.New("face not found in collection")

// ImageRef points at a photo object in a bucket.
type ImageRef struct {
	Bucket string
	Key    string
}

// DetectedFace is a face indexed from one photo.
type DetectedFace struct {
	FaceID         string
	SourcePhotoKey string
}

// FaceMatch is a collection face similar to a detected face. Similarity is on the 0-100 scale.
type FaceMatch struct {
	DetectedFaceID string
	MatchedFaceID  string
	Similarity     float64
}

// Capability indexes, searches and deletes faces in named collections.
type Capability interface {
	IndexFaces(ctx context.Context, image ImageRef, collection string) ([]DetectedFace, error)
	SearchFace(ctx context.Context, collection, faceID string, threshold float64, maxResults int) ([]FaceMatch, error)
	DeleteFaces(ctx context.Context, collection string, faceIDs []string) error
}

// Embedder detects faces in an image and computes their embeddings.
type Embedder interface {
	ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*embedding.FaceResponse, error)
}

// Collections is a Capability backed by an embedding server and a collection store.
type Collections struct {
	objects      storage.ObjectStore
	embedder     Embedder
	store        database.CollectionWriter
	maxImageSize int
	newID        func() string
}

// NewCollections creates a face capability. Images are downscaled to maxImageSize
// on the longest edge before detection.
func NewCollections(objects storage.ObjectStore, embedder Embedder, store database.CollectionWriter, maxImageSize int) *Collections {
	if maxImageSize <= 0 {
		maxImageSize = constants.MaxImageSize
	}
	return &Collections{
		objects:      objects,
		embedder:     embedder,
		store:        store,
		maxImageSize: maxImageSize,
		newID:        uuid.NewString,
	}
}

// IndexFaces detects the faces of an image and adds them to the collection as detection faces.
// Returns an empty list, without writing anything, when the image has no faces.
func (c *Collections) IndexFaces(ctx context.Context, image ImageRef, collection string) ([]DetectedFace, error) {
	return c.index(ctx, image, collection, constants.SourceDetection)
}

// EnrollFaces detects the faces of an image and adds them to the collection as enrollment faces.
func (c *Collections) EnrollFaces(ctx context.Context, image ImageRef, collection string) ([]DetectedFace, error) {
	return c.index(ctx, image, collection, constants.SourceEnrollment)
}

func (c *Collections) index(ctx context.Context, image ImageRef, collection, source string) ([]DetectedFace, error) {
	data, err := c.objects.GetObject(ctx, image.Bucket, image.Key)
	if err != nil {
		return nil, fmt.Errorf("get image: %w", err)
	}

	resized, err := embedding.ResizeImage(data, c.maxImageSize)
	if err != nil {
		return nil, fmt.Errorf("prepare image: %w", err)
	}

	result, err := c.embedder.ComputeFaceEmbeddings(ctx, resized.Data)
	if err != nil {
		return nil, fmt.Errorf("detect faces: %w", err)
	}
	if len(result.Faces) == 0 {
		return []DetectedFace{}, nil
	}

	stored := make([]database.CollectionFace, len(result.Faces))
	detected := make([]DetectedFace, len(result.Faces))
	for i, f := range result.Faces {
		id := c.newID()
		stored[i] = database.CollectionFace{
			FaceID:     id,
			Collection: collection,
			PhotoKey:   image.Key,
			Source:     source,
			Embedding:  f.Embedding,
			BBox:       facematch.ConvertPixelBBoxToRelative(f.BBox, resized.Width, resized.Height),
			DetScore:   f.DetScore,
		}
		detected[i] = DetectedFace{FaceID: id, SourcePhotoKey: image.Key}
	}

	if err := c.store.AddFaces(ctx, stored); err != nil {
		return nil, fmt.Errorf("store faces: %w", err)
	}
	return detected, nil
}

// SearchFace returns up to maxResults faces of the collection whose similarity to the
// indexed face faceID is at least threshold, best first. The query face itself is never returned.
func (c *Collections) SearchFace(ctx context.Context, collection, faceID string, threshold float64, maxResults int) ([]FaceMatch, error) {
	query, err := c.store.GetFace(ctx, collection, faceID)
	if err != nil {
		return nil, fmt.Errorf("load query face: %w", err)
	}
	if query == nil {
		return nil, fmt.Errorf("search face %s: %w", faceID, ErrFaceNotFound)
	}
	if maxResults <= 0 {
		maxResults = constants.SearchMaxResults
	}

	// Results are ordered by distance, so the threshold only trims the tail.
	neighbours, err := c.store.FindSimilar(ctx, collection, query.Embedding, faceID, maxResults)
	if err != nil {
		return nil, fmt.Errorf("find similar faces: %w", err)
	}

	matches := make([]FaceMatch, 0, len(neighbours))
	for _, n := range neighbours {
		sim := facematch.SimilarityFromDistance(n.Distance)
		if !facematch.Matches(sim, threshold) {
			continue
		}
		matches = append(matches, FaceMatch{
			DetectedFaceID: faceID,
			MatchedFaceID:  n.Face.FaceID,
			Similarity:     sim,
		})
	}
	return matches, nil
}

// DeleteFaces removes faces from the collection in a single request. An empty list is a no-op.
func (c *Collections) DeleteFaces(ctx context.Context, collection string, faceIDs []string) error {
	if len(faceIDs) == 0 {
		return nil
	}
	if _, err := c.store.DeleteFaces(ctx, collection, faceIDs); err != nil {
		return fmt.Errorf("delete faces: %w", err)
	}
	return nil
}

var _ Capability = (*Collections)(nil)
