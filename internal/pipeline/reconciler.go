// Package pipeline reconciles faces detected in uploaded photos with enrolled identities.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photo-faces/internal/config"
	"github.com/kozaktomas/photo-faces/internal/constants"
	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/faces"
)

// Reconciler runs index, search, identity lookup, association update and cleanup for one photo.
type Reconciler struct {
	faces        faces.Capability
	identities   database.IdentityReader
	associations database.AssociationWriter
	threshold    float64
	maxResults   int
	locks        *keyedMutex
	logger       *slog.Logger
}

// NewReconciler creates a reconciler using the matching thresholds from cfg.
func NewReconciler(
	capability faces.Capability,
	identities database.IdentityReader,
	associations database.AssociationWriter,
	cfg config.MatchingConfig,
	logger *slog.Logger,
) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	maxResults := cfg.MaxResults
	if maxResults <= 0 {
		maxResults = constants.SearchMaxResults
	}
	return &Reconciler{
		faces:        capability,
		identities:   identities,
		associations: associations,
		threshold:    cfg.SimilarityThreshold,
		maxResults:   maxResults,
		locks:        newKeyedMutex(),
		logger:       logger,
	}
}

// Reconcile indexes the faces of image into the uploader's collection, records an association
// for every face that resolves to an identity, and deletes every face it indexed.
//
// Per-face failures are tagged in the report. Indexing and cleanup failures are returned;
// when cleanup fails the report is still returned alongside the error.
func (r *Reconciler) Reconcile(ctx context.Context, image faces.ImageRef, uploader string) (*Report, error) {
	unlock := r.locks.Lock(uploader)
	defer unlock()

	log := r.logger.With("collection", uploader, "photo", image.Key)

	detected, err := r.faces.IndexFaces(ctx, image, uploader)
	if err != nil {
		return nil, fmt.Errorf("index faces: %w", err)
	}

	ids := make([]string, len(detected))
	for i, d := range detected {
		ids[i] = d.FaceID
	}
	log.Info("indexed faces", "count", len(ids), "face_ids", ids)

	report := &Report{Collection: uploader, PhotoKey: image.Key, Detected: len(detected)}
	err = r.withCleanup(ctx, uploader, ids, func() {
		for _, d := range detected {
			report.add(r.resolveFace(ctx, log, uploader, image.Key, d))
		}
	})

	log.Info(report.String(), "matched", report.Matched, "detected", report.Detected)
	return report, err
}

// withCleanup runs fn and then deletes ids from the collection on every exit path, including
// a panic in fn. The delete uses a context detached from ctx's cancellation.
func (r *Reconciler) withCleanup(ctx context.Context, collection string, ids []string, fn func()) (err error) {
	defer func() {
		if len(ids) == 0 {
			return
		}
		cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.CleanupTimeout)
		defer cancel()
		if derr := r.faces.DeleteFaces(cleanupCtx, collection, ids); derr != nil {
			r.logger.Error("failed to delete indexed faces", "collection", collection, "face_ids", ids, "error", derr)
			err = fmt.Errorf("cleanup faces: %w", derr)
			return
		}
		r.logger.Debug("deleted indexed faces", "collection", collection, "face_ids", ids)
	}()

	fn()
	return nil
}

func (r *Reconciler) resolveFace(ctx context.Context, log *slog.Logger, collection, photoKey string, face faces.DetectedFace) FaceResult {
	log = log.With("face_id", face.FaceID)

	matches, err := r.faces.SearchFace(ctx, collection, face.FaceID, r.threshold, r.maxResults)
	if err != nil {
		log.Warn("face search failed", "error", err)
		return failed(face.FaceID, fmt.Errorf("search face: %w", err))
	}
	if len(matches) == 0 {
		log.Debug("no matching face")
		return FaceResult{FaceID: face.FaceID, Outcome: OutcomeNoMatch}
	}

	best := matches[0]
	res := FaceResult{
		FaceID:        face.FaceID,
		MatchedFaceID: best.MatchedFaceID,
		Similarity:    best.Similarity,
	}

	identity, err := r.identities.GetIdentity(ctx, best.MatchedFaceID)
	if err != nil {
		log.Warn("identity lookup failed", "matched_face_id", best.MatchedFaceID, "error", err)
		f := failed(face.FaceID, fmt.Errorf("get identity: %w", err))
		f.MatchedFaceID, f.Similarity = res.MatchedFaceID, res.Similarity
		return f
	}
	if identity == nil {
		log.Info("matched face has no identity", "matched_face_id", best.MatchedFaceID)
		res.Outcome = OutcomeUnresolved
		return res
	}
	res.ContactKey = identity.ContactKey

	if err := r.associations.AddPhoto(ctx, identity.ContactKey, photoKey); err != nil {
		log.Error("association update failed", "contact", identity.ContactKey, "error", err)
		f := failed(face.FaceID, fmt.Errorf("add photo association: %w", err))
		f.MatchedFaceID, f.Similarity, f.ContactKey = res.MatchedFaceID, res.Similarity, res.ContactKey
		return f
	}

	log.Info("face matched", "matched_face_id", best.MatchedFaceID, "similarity", best.Similarity, "contact", identity.ContactKey)
	res.Outcome = OutcomeMatched
	return res
}
