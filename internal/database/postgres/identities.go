package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-faces/internal/database"
)

// IdentityRepository provides PostgreSQL-backed identity storage.
type IdentityRepository struct {
	pool *Pool
}

// NewIdentityRepository creates a new PostgreSQL identity repository.
func NewIdentityRepository(pool *Pool) *IdentityRepository {
	return &IdentityRepository{pool: pool}
}

// GetIdentity returns the identity for a face ID, or nil if none is recorded.
func (r *IdentityRepository) GetIdentity(ctx context.Context, faceID string) (*database.IdentityRecord, error) {
	rec := database.IdentityRecord{FaceID: faceID}
	err := r.pool.QueryRow(ctx, "SELECT contact_key FROM identities WHERE face_id = $1", faceID).Scan(&rec.ContactKey)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	return &rec, nil
}

// PutIdentity creates or replaces the identity for a face ID.
func (r *IdentityRepository) PutIdentity(ctx context.Context, record database.IdentityRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO identities (face_id, contact_key)
		VALUES ($1, $2)
		ON CONFLICT (face_id) DO UPDATE SET contact_key = EXCLUDED.contact_key
	`, record.FaceID, record.ContactKey)
	if err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}
