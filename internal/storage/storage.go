// Package storage provides access to the bucket holding uploaded photos.
package storage

import (
	"context"
	"strings"
)

// ObjectStore is the subset of bucket operations the pipeline needs.
type ObjectStore interface {
	// HeadMetadata returns the user-defined metadata of an object.
	HeadMetadata(ctx context.Context, bucket, key string) (Metadata, error)
	// GetObject returns the object's bytes.
	GetObject(ctx context.Context, bucket, key string) ([]byte, error)
	// ListKeys calls fn for every key under prefix, in listing order.
	ListKeys(ctx context.Context, bucket, prefix string, fn func(key string) error) error
}

// Metadata holds user-defined object metadata. Keys are stored lowercased.
type Metadata map[string]string

// NewMetadata copies raw metadata, lowercasing keys so lookups are case-insensitive.
func NewMetadata(raw map[string]string) Metadata {
	m := make(Metadata, len(raw))
	for k, v := range raw {
		m[strings.ToLower(k)] = v
	}
	return m
}

// Get returns the trimmed value of a field. A missing or blank field reports false.
func (m Metadata) Get(field string) (string, bool) {
	v, ok := m[strings.ToLower(field)]
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	if v == "" {
		return "", false
	}
	return v, true
}
