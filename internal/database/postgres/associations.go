package postgres

import (
	"context"
	"fmt"
)

// AssociationRepository provides PostgreSQL-backed contact to photo associations.
// Each (contact_key, photo_key) pair is one row, so the set is the primary key.
type AssociationRepository struct {
	pool *Pool
}

// NewAssociationRepository creates a new PostgreSQL association repository.
func NewAssociationRepository(pool *Pool) *AssociationRepository {
	return &AssociationRepository{pool: pool}
}

// AddPhoto adds photoKey to the contact's set. Re-adding an existing pair is a no-op.
func (r *AssociationRepository) AddPhoto(ctx context.Context, contactKey, photoKey string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO associations (contact_key, photo_key)
		VALUES ($1, $2)
		ON CONFLICT (contact_key, photo_key) DO NOTHING
	`, contactKey, photoKey)
	if err != nil {
		return fmt.Errorf("add photo association: %w", err)
	}
	return nil
}

// GetPhotos returns the contact's photo keys, sorted.
func (r *AssociationRepository) GetPhotos(ctx context.Context, contactKey string) ([]string, error) {
	rows, err := r.pool.Query(ctx,
		"SELECT photo_key FROM associations WHERE contact_key = $1 ORDER BY photo_key", contactKey)
	if err != nil {
		return nil, fmt.Errorf("query photo associations: %w", err)
	}
	defer rows.Close()

	photos := []string{}
	for rows.Next() {
		var key string
		if err := rows.Scan(&key); err != nil {
			return nil, fmt.Errorf("scan photo key: %w", err)
		}
		photos = append(photos, key)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate photo keys: %w", err)
	}
	return photos, nil
}
