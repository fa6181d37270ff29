// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"slices"
	"sync"
	"time"

	"github.com/kozaktomas/photo-faces/internal/constants"
	"github.com/kozaktomas/photo-faces/internal/database"
)

// MockCollectionStore is a mock implementation of database.CollectionWriter
type MockCollectionStore struct {
	mu     sync.Mutex
	nextID int64
	faces  map[string][]database.CollectionFace // collection -> faces

	// Now stamps CreatedAt on added faces. Defaults to time.Now.
	Now func() time.Time

	// Error injection
	GetFaceError     error
	FindSimilarError error
	CountError       error
	AddFacesError    error
	DeleteFacesError error
	DeleteStaleError error

	// Track calls
	AddFacesCalls    [][]database.CollectionFace
	DeleteFacesCalls []DeleteFacesCall
	DeleteStaleCalls []time.Time
}

// DeleteFacesCall records a call to DeleteFaces
type DeleteFacesCall struct {
	Collection string
	FaceIDs    []string
}

// NewMockCollectionStore creates a new mock collection store
func NewMockCollectionStore() *MockCollectionStore {
	return &MockCollectionStore{
		faces: make(map[string][]database.CollectionFace),
		Now:   time.Now,
	}
}

// Faces returns a copy of the faces stored in a collection
func (m *MockCollectionStore) Faces(collection string) []database.CollectionFace {
	m.mu.Lock()
	defer m.mu.Unlock()
	return slices.Clone(m.faces[collection])
}

// GetFace retrieves a face by ID within a collection
func (m *MockCollectionStore) GetFace(ctx context.Context, collection, faceID string) (*database.CollectionFace, error) {
	if m.GetFaceError != nil {
		return nil, m.GetFaceError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, f := range m.faces[collection] {
		if f.FaceID == faceID {
			face := f
			return &face, nil
		}
	}
	return nil, nil
}

// FindSimilar performs a brute-force cosine search over the collection
func (m *MockCollectionStore) FindSimilar(ctx context.Context, collection string, embedding []float32, excludeFaceID string, limit int) ([]database.ScoredFace, error) {
	if m.FindSimilarError != nil {
		return nil, m.FindSimilarError
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	var results []database.ScoredFace
	for _, f := range m.faces[collection] {
		if f.FaceID == excludeFaceID {
			continue
		}
		results = append(results, database.ScoredFace{Face: f, Distance: database.CosineDistance(embedding, f.Embedding)})
	}
	slices.SortStableFunc(results, func(a, b database.ScoredFace) int {
		switch {
		case a.Distance < b.Distance:
			return -1
		case a.Distance > b.Distance:
			return 1
		}
		return 0
	})
	if len(results) > limit {
		results = results[:limit]
	}
	return results, nil
}

// Count returns the number of faces in a collection
func (m *MockCollectionStore) Count(ctx context.Context, collection string) (int, error) {
	if m.CountError != nil {
		return 0, m.CountError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.faces[collection]), nil
}

// AddFaces stores faces, assigning IDs and timestamps
func (m *MockCollectionStore) AddFaces(ctx context.Context, faces []database.CollectionFace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddFacesCalls = append(m.AddFacesCalls, slices.Clone(faces))
	if m.AddFacesError != nil {
		return m.AddFacesError
	}
	for _, f := range faces {
		m.nextID++
		f.ID = m.nextID
		if f.Source == "" {
			f.Source = constants.SourceDetection
		}
		if f.CreatedAt.IsZero() {
			f.CreatedAt = m.Now()
		}
		m.faces[f.Collection] = append(m.faces[f.Collection], f)
	}
	return nil
}

// DeleteFaces removes the given faces from a collection
func (m *MockCollectionStore) DeleteFaces(ctx context.Context, collection string, faceIDs []string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteFacesCalls = append(m.DeleteFacesCalls, DeleteFacesCall{Collection: collection, FaceIDs: slices.Clone(faceIDs)})
	if m.DeleteFacesError != nil {
		return 0, m.DeleteFacesError
	}

	before := len(m.faces[collection])
	m.faces[collection] = slices.DeleteFunc(m.faces[collection], func(f database.CollectionFace) bool {
		return slices.Contains(faceIDs, f.FaceID)
	})
	return int64(before - len(m.faces[collection])), nil
}

// DeleteStaleDetections removes detection faces created before olderThan
func (m *MockCollectionStore) DeleteStaleDetections(ctx context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.DeleteStaleCalls = append(m.DeleteStaleCalls, olderThan)
	if m.DeleteStaleError != nil {
		return 0, m.DeleteStaleError
	}

	var n int64
	for collection, faces := range m.faces {
		kept := faces[:0]
		for _, f := range faces {
			if f.Source == constants.SourceDetection && f.CreatedAt.Before(olderThan) {
				n++
				continue
			}
			kept = append(kept, f)
		}
		m.faces[collection] = kept
	}
	return n, nil
}

// MockIdentityStore is a mock implementation of database.IdentityWriter
type MockIdentityStore struct {
	mu         sync.Mutex
	identities map[string]string // faceID -> contactKey

	// Error injection
	GetIdentityError error
	PutIdentityError error
	// FaceErrors fails GetIdentity for specific face IDs
	FaceErrors map[string]error

	// Track calls
	GetIdentityCalls []string
}

// NewMockIdentityStore creates a new mock identity store
func NewMockIdentityStore() *MockIdentityStore {
	return &MockIdentityStore{
		identities: make(map[string]string),
		FaceErrors: make(map[string]error),
	}
}

// SetIdentity maps a face ID to a contact key
func (m *MockIdentityStore) SetIdentity(faceID, contactKey string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.identities[faceID] = contactKey
}

// GetIdentity returns the identity for a face ID, or nil if unknown
func (m *MockIdentityStore) GetIdentity(ctx context.Context, faceID string) (*database.IdentityRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.GetIdentityCalls = append(m.GetIdentityCalls, faceID)
	if m.GetIdentityError != nil {
		return nil, m.GetIdentityError
	}
	if err := m.FaceErrors[faceID]; err != nil {
		return nil, err
	}
	contact, ok := m.identities[faceID]
	if !ok {
		return nil, nil
	}
	return &database.IdentityRecord{FaceID: faceID, ContactKey: contact}, nil
}

// PutIdentity creates or replaces an identity
func (m *MockIdentityStore) PutIdentity(ctx context.Context, record database.IdentityRecord) error {
	if m.PutIdentityError != nil {
		return m.PutIdentityError
	}
	m.SetIdentity(record.FaceID, record.ContactKey)
	return nil
}

// MockAssociationStore is a mock implementation of database.AssociationWriter with set semantics
type MockAssociationStore struct {
	mu   sync.Mutex
	sets map[string]map[string]struct{}

	// Error injection
	AddPhotoError  error
	GetPhotosError error

	// Track calls
	AddPhotoCalls []AddPhotoCall
}

// AddPhotoCall records a call to AddPhoto
type AddPhotoCall struct {
	ContactKey string
	PhotoKey   string
}

// NewMockAssociationStore creates a new mock association store
func NewMockAssociationStore() *MockAssociationStore {
	return &MockAssociationStore{sets: make(map[string]map[string]struct{})}
}

// AddPhoto adds photoKey to the contact's set
func (m *MockAssociationStore) AddPhoto(ctx context.Context, contactKey, photoKey string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.AddPhotoCalls = append(m.AddPhotoCalls, AddPhotoCall{ContactKey: contactKey, PhotoKey: photoKey})
	if m.AddPhotoError != nil {
		return m.AddPhotoError
	}
	set, ok := m.sets[contactKey]
	if !ok {
		set = make(map[string]struct{})
		m.sets[contactKey] = set
	}
	set[photoKey] = struct{}{}
	return nil
}

// GetPhotos returns the contact's photo keys, sorted
func (m *MockAssociationStore) GetPhotos(ctx context.Context, contactKey string) ([]string, error) {
	if m.GetPhotosError != nil {
		return nil, m.GetPhotosError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	photos := make([]string, 0, len(m.sets[contactKey]))
	for k := range m.sets[contactKey] {
		photos = append(photos, k)
	}
	slices.Sort(photos)
	return photos, nil
}

var (
	_ database.CollectionWriter  = (*MockCollectionStore)(nil)
	_ database.IdentityWriter    = (*MockIdentityStore)(nil)
	_ database.AssociationWriter = (*MockAssociationStore)(nil)
)
