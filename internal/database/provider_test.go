package database_test

import (
	"context"
	"errors"
	"testing"

	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/database/mock"
)

func TestRegistry_NotRegistered(t *testing.T) {
	database.ResetRegistry()
	t.Cleanup(database.ResetRegistry)
	ctx := context.Background()

	if _, err := database.GetCollectionWriter(ctx); !errors.Is(err, database.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered for collections, got %v", err)
	}
	if _, err := database.GetIdentityReader(ctx); !errors.Is(err, database.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered for identities, got %v", err)
	}
	if _, err := database.GetAssociationReader(ctx); !errors.Is(err, database.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered for associations, got %v", err)
	}
	if database.GetCollectionHNSWRebuilder() != nil {
		t.Error("expected no HNSW rebuilder")
	}
}

func TestRegistry_RegisterAndReset(t *testing.T) {
	database.ResetRegistry()
	t.Cleanup(database.ResetRegistry)
	ctx := context.Background()

	collections := mock.NewMockCollectionStore()
	identities := mock.NewMockIdentityStore()
	associations := mock.NewMockAssociationStore()
	database.RegisterCollectionBackend(func() database.CollectionWriter { return collections })
	database.RegisterIdentityBackend("memory",
		func() database.IdentityReader { return identities },
		func() database.IdentityWriter { return identities },
	)
	database.RegisterAssociationBackend("memory", func() database.AssociationWriter { return associations })

	if w, err := database.GetCollectionWriter(ctx); err != nil || w != collections {
		t.Errorf("expected registered collection store, got %v, %v", w, err)
	}
	if w, err := database.GetIdentityWriter(ctx); err != nil || w != identities {
		t.Errorf("expected registered identity store, got %v, %v", w, err)
	}
	if r, err := database.GetAssociationReader(ctx); err != nil || r != associations {
		t.Errorf("expected registered association store, got %v, %v", r, err)
	}
	if identity, association := database.RegisteredBackends(); identity != "memory" || association != "memory" {
		t.Errorf("expected memory backends, got %q and %q", identity, association)
	}

	database.ResetRegistry()

	if _, err := database.GetIdentityReader(ctx); !errors.Is(err, database.ErrNotRegistered) {
		t.Errorf("expected ErrNotRegistered after reset, got %v", err)
	}
	if identity, association := database.RegisteredBackends(); identity != "" || association != "" {
		t.Errorf("expected no backend names after reset, got %q and %q", identity, association)
	}
}

func TestRegistry_ReadOnlyIdentityBackend(t *testing.T) {
	database.ResetRegistry()
	t.Cleanup(database.ResetRegistry)
	ctx := context.Background()

	identities := mock.NewMockIdentityStore()
	database.RegisterIdentityBackend("mariadb", func() database.IdentityReader { return identities }, nil)

	if _, err := database.GetIdentityReader(ctx); err != nil {
		t.Errorf("expected reader, got %v", err)
	}
	if _, err := database.GetIdentityWriter(ctx); !errors.Is(err, database.ErrReadOnly) {
		t.Errorf("expected ErrReadOnly, got %v", err)
	}
}
