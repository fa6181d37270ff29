package database

import (
	"errors"
	"math"
	"sync"

	"github.com/coder/hnsw"
)

// HNSWIndex keeps one HNSW graph per collection for face embedding search.
// Deleted faces stay in their graph as tombstones and are filtered out of
// results; a collection's graph is rebuilt once tombstones outnumber live faces.
type HNSWIndex struct {
	mu         sync.RWMutex
	graphs     map[string]*hnsw.Graph[string]
	faces      map[string]*CollectionFace // live faces by face ID
	live       map[string]int             // live faces per collection
	tombstones map[string]int             // deleted faces still present per collection graph
}

// NewHNSWIndex creates a new empty HNSW index.
func NewHNSWIndex() *HNSWIndex {
	return &HNSWIndex{
		graphs:     make(map[string]*hnsw.Graph[string]),
		faces:      make(map[string]*CollectionFace),
		live:       make(map[string]int),
		tombstones: make(map[string]int),
	}
}

func newGraph() *hnsw.Graph[string] {
	g := hnsw.NewGraph[string]()
	g.M = HNSWMaxNeighbors
	g.Ml = 1.0 / float64(HNSWMaxNeighbors) // Standard HNSW formula
	g.EfSearch = HNSWEfSearch
	g.Distance = hnsw.CosineDistance
	return g
}

// BuildFromFaces replaces the index contents with faces.
func (h *HNSWIndex) BuildFromFaces(faces []CollectionFace) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.graphs = make(map[string]*hnsw.Graph[string])
	h.faces = make(map[string]*CollectionFace, len(faces))
	h.live = make(map[string]int)
	h.tombstones = make(map[string]int)

	for i := range faces {
		h.addLocked(&faces[i])
	}
}

// Add adds faces to the index.
func (h *HNSWIndex) Add(faces ...CollectionFace) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range faces {
		face := faces[i]
		h.addLocked(&face)
	}
}

func (h *HNSWIndex) addLocked(face *CollectionFace) {
	if len(face.Embedding) == 0 {
		return
	}
	g, ok := h.graphs[face.Collection]
	if !ok {
		g = newGraph()
		h.graphs[face.Collection] = g
	}
	g.Add(hnsw.MakeNode(face.FaceID, face.Embedding))
	if _, exists := h.faces[face.FaceID]; !exists {
		h.live[face.Collection]++
	}
	h.faces[face.FaceID] = face
}

// Delete removes faces of a collection from search results.
func (h *HNSWIndex) Delete(collection string, faceIDs []string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for _, id := range faceIDs {
		face, ok := h.faces[id]
		if !ok || face.Collection != collection {
			continue
		}
		delete(h.faces, id)
		h.live[collection]--
		h.tombstones[collection]++
	}

	if h.tombstones[collection] > h.live[collection] {
		h.rebuildCollectionLocked(collection)
	}
}

// rebuildCollectionLocked rebuilds a collection graph from its live faces, dropping tombstones.
func (h *HNSWIndex) rebuildCollectionLocked(collection string) {
	h.tombstones[collection] = 0
	if h.live[collection] == 0 {
		delete(h.graphs, collection)
		delete(h.live, collection)
		delete(h.tombstones, collection)
		return
	}
	g := newGraph()
	for _, face := range h.faces {
		if face.Collection == collection {
			g.Add(hnsw.MakeNode(face.FaceID, face.Embedding))
		}
	}
	h.graphs[collection] = g
}

// Search returns up to k live faces of the collection nearest to query, closest first.
// excludeFaceID is never returned.
func (h *HNSWIndex) Search(collection string, query []float32, excludeFaceID string, k int) ([]ScoredFace, error) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	if k <= 0 {
		return nil, errors.New("k must be positive")
	}
	g, ok := h.graphs[collection]
	if !ok || h.live[collection] == 0 {
		return nil, nil
	}

	// Request more candidates to cover tombstones and the excluded face.
	searchK := max(k*HNSWSearchMultiplier+h.tombstones[collection]+1, HNSWMinSearchK)
	searchK = min(searchK, g.Len())

	results := make([]ScoredFace, 0, k)
	for _, n := range g.Search(query, searchK) {
		if n.Key == excludeFaceID {
			continue
		}
		face, ok := h.faces[n.Key]
		if !ok {
			continue
		}
		results = append(results, ScoredFace{Face: *face, Distance: CosineDistance(query, n.Value)})
		if len(results) == k {
			break
		}
	}
	return results, nil
}

// GetFace returns the live face with the given ID, or nil.
func (h *HNSWIndex) GetFace(faceID string) *CollectionFace {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.faces[faceID]
}

// Count returns the number of live indexed faces.
func (h *HNSWIndex) Count() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.faces)
}

// CosineDistance returns 1 - cosine similarity, in [0, 2].
// Mismatched or zero vectors are maximally distant.
func CosineDistance(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 2.0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 2.0
	}

	sim := dot / (math.Sqrt(normA) * math.Sqrt(normB))
	return 1 - math.Max(-1, math.Min(1, sim))
}
