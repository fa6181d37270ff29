package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrNotRegistered is returned when no backend has been registered for a store.
	ErrNotRegistered = errors.New("backend not registered")
	// ErrReadOnly is returned when a writer is requested from a read-only backend.
	ErrReadOnly = errors.New("backend is read-only")
)

// HNSWRebuilder is an interface for repositories that support HNSW index rebuilding
type HNSWRebuilder interface {
	// RebuildHNSW rebuilds the in-memory HNSW index
	RebuildHNSW(ctx context.Context) error
	// HNSWCount returns the number of items in the HNSW index
	HNSWCount() int
	// IsHNSWEnabled returns whether HNSW is enabled
	IsHNSWEnabled() bool
}

var (
	registryMu sync.RWMutex

	collectionWriter func() CollectionWriter
	collectionHNSW   HNSWRebuilder // Singleton for collection HNSW rebuilding

	identityBackend string
	identityReader  func() IdentityReader
	identityWriter  func() IdentityWriter // nil for read-only backends

	associationBackend string
	associationWriter  func() AssociationWriter
)

// RegisterCollectionBackend registers the face collection repository constructor.
// Backends call this from cmd to avoid import cycles.
func RegisterCollectionBackend(writer func() CollectionWriter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	collectionWriter = writer
}

// RegisterCollectionHNSWRebuilder registers the HNSW rebuilder for the collection repository.
func RegisterCollectionHNSWRebuilder(rebuilder HNSWRebuilder) {
	registryMu.Lock()
	defer registryMu.Unlock()
	collectionHNSW = rebuilder
}

// GetCollectionHNSWRebuilder returns the registered collection HNSW rebuilder, or nil if not registered.
func GetCollectionHNSWRebuilder() HNSWRebuilder {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return collectionHNSW
}

// RegisterIdentityBackend registers the identity store. Pass a nil writer for read-only backends.
func RegisterIdentityBackend(name string, reader func() IdentityReader, writer func() IdentityWriter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	identityBackend = name
	identityReader = reader
	identityWriter = writer
}

// RegisterAssociationBackend registers the association store.
func RegisterAssociationBackend(name string, writer func() AssociationWriter) {
	registryMu.Lock()
	defer registryMu.Unlock()
	associationBackend = name
	associationWriter = writer
}

// GetCollectionWriter returns the registered collection repository
func GetCollectionWriter(ctx context.Context) (CollectionWriter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if collectionWriter == nil {
		return nil, fmt.Errorf("collection store: %w", ErrNotRegistered)
	}
	return collectionWriter(), nil
}

// GetIdentityReader returns the registered identity store
func GetIdentityReader(ctx context.Context) (IdentityReader, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if identityReader == nil {
		return nil, fmt.Errorf("identity store: %w", ErrNotRegistered)
	}
	return identityReader(), nil
}

// GetIdentityWriter returns the registered identity store for writing
func GetIdentityWriter(ctx context.Context) (IdentityWriter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if identityReader == nil {
		return nil, fmt.Errorf("identity store: %w", ErrNotRegistered)
	}
	if identityWriter == nil {
		return nil, fmt.Errorf("identity store %s: %w", identityBackend, ErrReadOnly)
	}
	return identityWriter(), nil
}

// GetAssociationWriter returns the registered association store
func GetAssociationWriter(ctx context.Context) (AssociationWriter, error) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	if associationWriter == nil {
		return nil, fmt.Errorf("association store: %w", ErrNotRegistered)
	}
	return associationWriter(), nil
}

// GetAssociationReader returns the registered association store for reading
func GetAssociationReader(ctx context.Context) (AssociationReader, error) {
	w, err := GetAssociationWriter(ctx)
	if err != nil {
		return nil, err
	}
	return w, nil
}

// RegisteredBackends returns the names of the registered identity and association backends.
func RegisteredBackends() (identity, association string) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	return identityBackend, associationBackend
}

// ResetRegistry clears all registrations. Used by tests.
func ResetRegistry() {
	registryMu.Lock()
	defer registryMu.Unlock()
	collectionWriter = nil
	collectionHNSW = nil
	identityBackend, identityReader, identityWriter = "", nil, nil
	associationBackend, associationWriter = "", nil
}
