package storage

import (
	"context"
	"fmt"

	"golang.org/x/text/unicode/norm"
)

// UploaderResolver reads the uploader's identity from object metadata.
type UploaderResolver struct {
	store ObjectStore
	field string
}

// NewUploaderResolver creates a resolver reading the given metadata field.
func NewUploaderResolver(store ObjectStore, field string) *UploaderResolver {
	return &UploaderResolver{store: store, field: field}
}

// Resolve returns the uploader of bucket/key. ok is false when the field is absent,
// which is not an error. Storage failures are returned as-is.
// The value is NFC-normalized so the same user always names the same collection.
func (r *UploaderResolver) Resolve(ctx context.Context, bucket, key string) (uploader string, ok bool, err error) {
	md, err := r.store.HeadMetadata(ctx, bucket, key)
	if err != nil {
		return "", false, fmt.Errorf("fetch uploader metadata: %w", err)
	}
	v, ok := md.Get(r.field)
	if !ok {
		return "", false, nil
	}
	return norm.NFC.String(v), true, nil
}
