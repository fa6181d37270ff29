package mariadb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/kozaktomas/photo-faces/internal/database"
)

// IdentityReader looks up enrolled faces in the face_identities table.
type IdentityReader struct {
	pool *Pool
}

// NewIdentityReader creates a read-only identity store.
func NewIdentityReader(pool *Pool) *IdentityReader {
	return &IdentityReader{pool: pool}
}

// GetIdentity returns the identity for a face ID, or nil if the face is not enrolled.
func (r *IdentityReader) GetIdentity(ctx context.Context, faceID string) (*database.IdentityRecord, error) {
	var contact sql.NullString
	err := r.pool.db.QueryRowContext(ctx,
		`SELECT contact_key FROM face_identities WHERE face_id = ?`, faceID,
	).Scan(&contact)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if !contact.Valid || contact.String == "" {
		return nil, nil
	}
	return &database.IdentityRecord{FaceID: faceID, ContactKey: contact.String}, nil
}

var _ database.IdentityReader = (*IdentityReader)(nil)
