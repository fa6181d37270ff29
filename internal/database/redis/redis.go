// Package redis provides Redis-backed identity and association stores.
package redis

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/kozaktomas/photo-faces/internal/config"
	"github.com/kozaktomas/photo-faces/internal/database"
)

const (
	identityKeyPrefix    = "identity:"
	associationKeyPrefix = "photos:"
	contactKeyField      = "contact_key"
)

// NewClient connects to Redis using a redis:// URL and verifies the connection.
func NewClient(ctx context.Context, cfg *config.RedisConfig) (*goredis.Client, error) {
	if cfg.URL == "" {
		return nil, errors.New("redis URL is required")
	}
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}

	client := goredis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

// IdentityStore keeps one hash per enrolled face: identity:{faceID} -> contact_key.
type IdentityStore struct {
	client goredis.UniversalClient
}

// NewIdentityStore creates a Redis identity store.
func NewIdentityStore(client goredis.UniversalClient) *IdentityStore {
	return &IdentityStore{client: client}
}

// GetIdentity returns the identity for a face ID, or nil if none is recorded.
func (s *IdentityStore) GetIdentity(ctx context.Context, faceID string) (*database.IdentityRecord, error) {
	contact, err := s.client.HGet(ctx, identityKeyPrefix+faceID, contactKeyField).Result()
	if errors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get identity: %w", err)
	}
	if contact == "" {
		return nil, nil
	}
	return &database.IdentityRecord{FaceID: faceID, ContactKey: contact}, nil
}

// PutIdentity creates or replaces the identity for a face ID.
func (s *IdentityStore) PutIdentity(ctx context.Context, record database.IdentityRecord) error {
	if err := s.client.HSet(ctx, identityKeyPrefix+record.FaceID, contactKeyField, record.ContactKey).Err(); err != nil {
		return fmt.Errorf("put identity: %w", err)
	}
	return nil
}

// AssociationStore keeps one set per contact: photos:{contactKey}.
// SADD is atomic and ignores members that are already present.
type AssociationStore struct {
	client goredis.UniversalClient
}

// NewAssociationStore creates a Redis association store.
func NewAssociationStore(client goredis.UniversalClient) *AssociationStore {
	return &AssociationStore{client: client}
}

// AddPhoto adds photoKey to the contact's set.
func (s *AssociationStore) AddPhoto(ctx context.Context, contactKey, photoKey string) error {
	if err := s.client.SAdd(ctx, associationKeyPrefix+contactKey, photoKey).Err(); err != nil {
		return fmt.Errorf("add photo association: %w", err)
	}
	return nil
}

// GetPhotos returns the contact's photo keys, sorted.
func (s *AssociationStore) GetPhotos(ctx context.Context, contactKey string) ([]string, error) {
	photos, err := s.client.SMembers(ctx, associationKeyPrefix+contactKey).Result()
	if err != nil {
		return nil, fmt.Errorf("get photo associations: %w", err)
	}
	slices.Sort(photos)
	return photos, nil
}

var (
	_ database.IdentityWriter    = (*IdentityStore)(nil)
	_ database.AssociationWriter = (*AssociationStore)(nil)
)
