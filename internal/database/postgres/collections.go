package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/kozaktomas/photo-faces/internal/constants"
	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/lib/pq"
	"github.com/pgvector/pgvector-go"
)

const collectionFaceColumns = `id, face_id, collection, photo_key, source, embedding, bbox, det_score, created_at`

// CollectionRepository provides PostgreSQL-backed face collections with an optional in-memory HNSW index.
type CollectionRepository struct {
	pool        *Pool
	hnswIndex   *database.HNSWIndex
	hnswEnabled bool
	hnswMu      sync.RWMutex
}

// NewCollectionRepository creates a new PostgreSQL collection repository.
func NewCollectionRepository(pool *Pool) *CollectionRepository {
	return &CollectionRepository{pool: pool}
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanCollectionFace(s scanner) (database.CollectionFace, error) {
	var face database.CollectionFace
	var vec pgvector.Vector
	var bbox pq.Float64Array
	if err := s.Scan(
		&face.ID, &face.FaceID, &face.Collection, &face.PhotoKey, &face.Source,
		&vec, &bbox, &face.DetScore, &face.CreatedAt,
	); err != nil {
		return face, err
	}
	face.Embedding = vec.Slice()
	face.BBox = []float64(bbox)
	return face, nil
}

// GetFace retrieves a face by face ID within a collection. Returns nil if not found.
func (r *CollectionRepository) GetFace(ctx context.Context, collection, faceID string) (*database.CollectionFace, error) {
	query := `SELECT ` + collectionFaceColumns + ` FROM collection_faces WHERE collection = $1 AND face_id = $2`

	face, err := scanCollectionFace(r.pool.QueryRow(ctx, query, collection, faceID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get face: %w", err)
	}
	return &face, nil
}

// Count returns the number of faces in a collection.
func (r *CollectionRepository) Count(ctx context.Context, collection string) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, "SELECT COUNT(*) FROM collection_faces WHERE collection = $1", collection).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("count faces: %w", err)
	}
	return count, nil
}

// FindSimilar finds the nearest faces of a collection by cosine distance.
// Uses the in-memory HNSW index if enabled, otherwise queries PostgreSQL.
func (r *CollectionRepository) FindSimilar(
	ctx context.Context, collection string, embedding []float32, excludeFaceID string, limit int,
) ([]database.ScoredFace, error) {
	r.hnswMu.RLock()
	index := r.hnswIndex
	enabled := r.hnswEnabled && index != nil
	r.hnswMu.RUnlock()

	if enabled {
		results, err := index.Search(collection, embedding, excludeFaceID, limit)
		if err != nil {
			return nil, fmt.Errorf("HNSW search: %w", err)
		}
		return results, nil
	}

	return r.findSimilarPostgres(ctx, collection, embedding, excludeFaceID, limit)
}

// findSimilarPostgres uses PostgreSQL for similarity search with ef_search optimization.
func (r *CollectionRepository) findSimilarPostgres(
	ctx context.Context, collection string, embedding []float32, excludeFaceID string, limit int,
) ([]database.ScoredFace, error) {
	tx, err := r.pool.BeginTx(ctx, &sql.TxOptions{ReadOnly: true})
	if err != nil {
		return nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, fmt.Sprintf("SET LOCAL hnsw.ef_search = %d", database.HNSWEfSearch)); err != nil {
		return nil, fmt.Errorf("set ef_search: %w", err)
	}

	query := `
		SELECT ` + collectionFaceColumns + `, embedding <=> $1::vector AS distance
		FROM collection_faces
		WHERE collection = $2 AND face_id <> $3
		ORDER BY distance
		LIMIT $4
	`

	rows, err := tx.QueryContext(ctx, query, pgvector.NewVector(embedding), collection, excludeFaceID, limit)
	if err != nil {
		return nil, fmt.Errorf("query similar faces: %w", err)
	}
	defer rows.Close()

	var results []database.ScoredFace
	for rows.Next() {
		var face database.CollectionFace
		var vec pgvector.Vector
		var bbox pq.Float64Array
		var distance float64
		if err := rows.Scan(
			&face.ID, &face.FaceID, &face.Collection, &face.PhotoKey, &face.Source,
			&vec, &bbox, &face.DetScore, &face.CreatedAt, &distance,
		); err != nil {
			return nil, fmt.Errorf("scan similar face: %w", err)
		}
		face.Embedding = vec.Slice()
		face.BBox = []float64(bbox)
		results = append(results, database.ScoredFace{Face: face, Distance: distance})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate similar faces: %w", err)
	}
	return results, nil
}

// AddFaces inserts faces in a single transaction and mirrors them into the HNSW index.
func (r *CollectionRepository) AddFaces(ctx context.Context, faces []database.CollectionFace) error {
	if len(faces) == 0 {
		return nil
	}

	tx, err := r.pool.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO collection_faces (face_id, collection, photo_key, source, embedding, bbox, det_score)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at
	`)
	if err != nil {
		return fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	stored := make([]database.CollectionFace, len(faces))
	for i, face := range faces {
		source := face.Source
		if source == "" {
			source = constants.SourceDetection
		}
		bbox := face.BBox
		if bbox == nil {
			bbox = []float64{}
		}
		err := stmt.QueryRowContext(ctx,
			face.FaceID, face.Collection, face.PhotoKey, source,
			pgvector.NewVector(face.Embedding), pq.Float64Array(bbox), face.DetScore,
		).Scan(&face.ID, &face.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert face %s: %w", face.FaceID, err)
		}
		face.Source = source
		stored[i] = face
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit faces: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Add(stored...)
	}
	r.hnswMu.RUnlock()
	return nil
}

// DeleteFaces removes faces of a collection in one statement.
func (r *CollectionRepository) DeleteFaces(ctx context.Context, collection string, faceIDs []string) (int64, error) {
	if len(faceIDs) == 0 {
		return 0, nil
	}

	result, err := r.pool.Exec(ctx,
		"DELETE FROM collection_faces WHERE collection = $1 AND face_id = ANY($2)",
		collection, pq.Array(faceIDs),
	)
	if err != nil {
		return 0, fmt.Errorf("delete faces: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("delete faces rows affected: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		r.hnswIndex.Delete(collection, faceIDs)
	}
	r.hnswMu.RUnlock()
	return n, nil
}

// DeleteStaleDetections removes detection faces created before olderThan.
func (r *CollectionRepository) DeleteStaleDetections(ctx context.Context, olderThan time.Time) (int64, error) {
	rows, err := r.pool.Query(ctx,
		"DELETE FROM collection_faces WHERE source = $1 AND created_at < $2 RETURNING collection, face_id",
		constants.SourceDetection, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("delete stale detections: %w", err)
	}
	defer rows.Close()

	byCollection := make(map[string][]string)
	var n int64
	for rows.Next() {
		var collection, faceID string
		if err := rows.Scan(&collection, &faceID); err != nil {
			return n, fmt.Errorf("scan deleted face: %w", err)
		}
		byCollection[collection] = append(byCollection[collection], faceID)
		n++
	}
	if err := rows.Err(); err != nil {
		return n, fmt.Errorf("iterate deleted faces: %w", err)
	}

	r.hnswMu.RLock()
	if r.hnswEnabled && r.hnswIndex != nil {
		for collection, ids := range byCollection {
			r.hnswIndex.Delete(collection, ids)
		}
	}
	r.hnswMu.RUnlock()
	return n, nil
}

// getAllFaces loads every stored face for building the HNSW index.
func (r *CollectionRepository) getAllFaces(ctx context.Context) ([]database.CollectionFace, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+collectionFaceColumns+` FROM collection_faces ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("query all faces: %w", err)
	}
	defer rows.Close()

	var faces []database.CollectionFace
	for rows.Next() {
		face, err := scanCollectionFace(rows)
		if err != nil {
			return nil, fmt.Errorf("scan face: %w", err)
		}
		faces = append(faces, face)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate faces: %w", err)
	}
	return faces, nil
}

// EnableHNSW builds the in-memory HNSW index from all stored faces and routes searches to it.
func (r *CollectionRepository) EnableHNSW(ctx context.Context) error {
	faces, err := r.getAllFaces(ctx)
	if err != nil {
		return fmt.Errorf("failed to load faces: %w", err)
	}

	index := database.NewHNSWIndex()
	index.BuildFromFaces(faces)

	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswIndex = index
	r.hnswEnabled = true
	return nil
}

// RebuildHNSW rebuilds the in-memory HNSW index from the database.
func (r *CollectionRepository) RebuildHNSW(ctx context.Context) error {
	return r.EnableHNSW(ctx)
}

// DisableHNSW disables the in-memory HNSW index, falling back to PostgreSQL queries.
func (r *CollectionRepository) DisableHNSW() {
	r.hnswMu.Lock()
	defer r.hnswMu.Unlock()
	r.hnswEnabled = false
	r.hnswIndex = nil
}

// IsHNSWEnabled returns whether the in-memory HNSW index is enabled.
func (r *CollectionRepository) IsHNSWEnabled() bool {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	return r.hnswEnabled && r.hnswIndex != nil
}

// HNSWCount returns the number of faces in the HNSW index.
func (r *CollectionRepository) HNSWCount() int {
	r.hnswMu.RLock()
	defer r.hnswMu.RUnlock()
	if r.hnswIndex == nil {
		return 0
	}
	return r.hnswIndex.Count()
}
