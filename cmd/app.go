package cmd

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photo-faces/internal/config"
	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/embedding"
	"github.com/kozaktomas/photo-faces/internal/event"
	"github.com/kozaktomas/photo-faces/internal/faces"
	"github.com/kozaktomas/photo-faces/internal/pipeline"
	"github.com/kozaktomas/photo-faces/internal/storage"
)

// app wires the stores and collaborators used by every command.
type app struct {
	cfg         *config.Config
	logger      *slog.Logger
	backends    *backends
	objects     *storage.S3Store
	embedder    *embedding.Client
	collections *faces.Collections
}

// newApp loads the configuration and opens all backends.
// The caller must Close the returned app.
func newApp(ctx context.Context) (*app, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newLogger(cfg.Log)

	b, err := openBackends(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}

	objects, err := storage.NewS3Store(ctx, &cfg.Storage)
	if err != nil {
		_ = b.Close()
		return nil, fmt.Errorf("failed to initialize S3: %w", err)
	}

	store, err := database.GetCollectionWriter(ctx)
	if err != nil {
		_ = b.Close()
		return nil, err
	}

	embedder := embedding.NewClient(cfg.Embedding.URL)
	b.checks["embedding"] = embedder.Health

	return &app{
		cfg:         cfg,
		logger:      logger,
		backends:    b,
		objects:     objects,
		embedder:    embedder,
		collections: faces.NewCollections(objects, embedder, store, cfg.Embedding.MaxImageSize),
	}, nil
}

// Close releases the store connections.
func (a *app) Close() error {
	return a.backends.Close()
}

// handler builds the event pipeline over the registered stores.
func (a *app) handler(ctx context.Context) (*pipeline.Handler, error) {
	identities, err := database.GetIdentityReader(ctx)
	if err != nil {
		return nil, err
	}
	associations, err := database.GetAssociationWriter(ctx)
	if err != nil {
		return nil, err
	}

	reconciler := pipeline.NewReconciler(a.collections, identities, associations, a.cfg.Matching, a.logger)
	return pipeline.NewHandler(
		event.NewFilter(a.cfg.Events.AllowedExtensions),
		storage.NewUploaderResolver(a.objects, a.cfg.Uploader.MetadataField),
		reconciler,
		a.logger,
	), nil
}
