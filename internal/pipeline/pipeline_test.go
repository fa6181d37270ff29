package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"image"
	"image/jpeg"
	"io"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/kozaktomas/photo-faces/internal/config"
	"github.com/kozaktomas/photo-faces/internal/constants"
	"github.com/kozaktomas/photo-faces/internal/database"
	"github.com/kozaktomas/photo-faces/internal/database/mock"
	"github.com/kozaktomas/photo-faces/internal/embedding"
	"github.com/kozaktomas/photo-faces/internal/event"
	"github.com/kozaktomas/photo-faces/internal/faces"
	"github.com/kozaktomas/photo-faces/internal/storage"
)

var testMatching = config.MatchingConfig{SimilarityThreshold: 80.0, MinConfidence: 70.0, MaxResults: 1}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type searchCall struct {
	Collection string
	FaceID     string
	Threshold  float64
	MaxResults int
}

type deleteCall struct {
	Collection string
	FaceIDs    []string
}

// fakeCapability returns scripted faces and matches and records every call.
type fakeCapability struct {
	mu sync.Mutex

	faceIDs     []string
	indexErr    error
	indexDelay  time.Duration
	matches     map[string][]faces.FaceMatch
	searchErrs  map[string]error
	searchPanic bool
	deleteErr   error

	indexCalls  []string
	searchCalls []searchCall
	deleteCalls []deleteCall
	timeline    []string
}

func newFakeCapability(faceIDs ...string) *fakeCapability {
	return &fakeCapability{
		faceIDs:    faceIDs,
		matches:    make(map[string][]faces.FaceMatch),
		searchErrs: make(map[string]error),
	}
}

func (f *fakeCapability) match(faceID, matchedFaceID string, similarity float64) {
	f.matches[faceID] = append(f.matches[faceID], faces.FaceMatch{
		DetectedFaceID: faceID,
		MatchedFaceID:  matchedFaceID,
		Similarity:     similarity,
	})
}

func (f *fakeCapability) IndexFaces(ctx context.Context, image faces.ImageRef, collection string) ([]faces.DetectedFace, error) {
	f.mu.Lock()
	f.indexCalls = append(f.indexCalls, collection)
	f.timeline = append(f.timeline, "index:"+collection)
	f.mu.Unlock()

	if f.indexDelay > 0 {
		time.Sleep(f.indexDelay)
	}
	if f.indexErr != nil {
		return nil, f.indexErr
	}
	detected := make([]faces.DetectedFace, len(f.faceIDs))
	for i, id := range f.faceIDs {
		detected[i] = faces.DetectedFace{FaceID: id, SourcePhotoKey: image.Key}
	}
	return detected, nil
}

func (f *fakeCapability) SearchFace(ctx context.Context, collection, faceID string, threshold float64, maxResults int) ([]faces.FaceMatch, error) {
	f.mu.Lock()
	f.searchCalls = append(f.searchCalls, searchCall{collection, faceID, threshold, maxResults})
	f.mu.Unlock()

	if f.searchPanic {
		panic("search exploded")
	}
	if err := f.searchErrs[faceID]; err != nil {
		return nil, err
	}
	return f.matches[faceID], nil
}

func (f *fakeCapability) DeleteFaces(ctx context.Context, collection string, faceIDs []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleteCalls = append(f.deleteCalls, deleteCall{collection, slices.Clone(faceIDs)})
	f.timeline = append(f.timeline, "delete:"+collection)
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return f.deleteErr
}

// fakeObjects serves object metadata and counts metadata fetches.
type fakeObjects struct {
	mu        sync.Mutex
	metadata  map[string]map[string]string
	objects   map[string][]byte
	headErr   error
	headCalls int
}

func (f *fakeObjects) HeadMetadata(ctx context.Context, bucket, key string) (storage.Metadata, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headCalls++
	if f.headErr != nil {
		return nil, f.headErr
	}
	return storage.NewMetadata(f.metadata[key]), nil
}

func (f *fakeObjects) GetObject(ctx context.Context, bucket, key string) ([]byte, error) {
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key %s", key)
	}
	return data, nil
}

func (f *fakeObjects) ListKeys(ctx context.Context, bucket, prefix string, fn func(key string) error) error {
	return nil
}

type fixture struct {
	capability   *fakeCapability
	objects      *fakeObjects
	identities   *mock.MockIdentityStore
	associations *mock.MockAssociationStore
	reconciler   *Reconciler
	handler      *Handler
}

func newFixture(capability *fakeCapability) *fixture {
	f := &fixture{
		capability: capability,
		objects: &fakeObjects{metadata: map[string]map[string]string{
			"p1.jpg": {"user": "alice"},
		}},
		identities:   mock.NewMockIdentityStore(),
		associations: mock.NewMockAssociationStore(),
	}
	f.reconciler = NewReconciler(capability, f.identities, f.associations, testMatching, discardLogger())
	f.handler = NewHandler(
		event.NewFilter([]string{".png", ".jpg", ".jpeg", ".PNG", ".JPG", ".JPEG"}),
		storage.NewUploaderResolver(f.objects, "user"),
		f.reconciler,
		discardLogger(),
	)
	return f
}

func (f *fixture) noWrites(t *testing.T) {
	t.Helper()
	c := f.capability
	if len(c.indexCalls)+len(c.searchCalls)+len(c.deleteCalls) != 0 {
		t.Errorf("expected no face capability calls, got index=%d search=%d delete=%d",
			len(c.indexCalls), len(c.searchCalls), len(c.deleteCalls))
	}
	if len(f.associations.AddPhotoCalls) != 0 {
		t.Errorf("expected no association writes, got %d", len(f.associations.AddPhotoCalls))
	}
}

func TestHandleEvent_DisallowedExtension(t *testing.T) {
	for _, key := range []string{"notes.txt", "p1.gif", "p1.Jpg", "p1", "archive.jpg.zip"} {
		t.Run(key, func(t *testing.T) {
			f := newFixture(newFakeCapability("f1"))

			result, err := f.handler.HandleEvent(context.Background(), event.PhotoEvent{Bucket: "photos", Key: key})
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if result.Status != StatusSkippedExtension {
				t.Errorf("expected %s, got %s", StatusSkippedExtension, result.Status)
			}
			if f.objects.headCalls != 0 {
				t.Errorf("expected no metadata fetch, got %d", f.objects.headCalls)
			}
			f.noWrites(t)
		})
	}
}

func TestHandleEvent_NoUploader(t *testing.T) {
	f := newFixture(newFakeCapability("f1"))
	f.objects.metadata["anon.jpg"] = map[string]string{"camera": "x100"}
	f.objects.metadata["blank.jpg"] = map[string]string{"user": "  "}

	for _, key := range []string{"anon.jpg", "blank.jpg", "unknown.png"} {
		result, err := f.handler.HandleEvent(context.Background(), event.PhotoEvent{Bucket: "photos", Key: key})
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", key, err)
		}
		if result.Status != StatusSkippedNoUploader {
			t.Errorf("%s: expected %s, got %s", key, StatusSkippedNoUploader, result.Status)
		}
	}
	f.noWrites(t)
}

func TestHandleEvent_MetadataFailureIsFatal(t *testing.T) {
	f := newFixture(newFakeCapability("f1"))
	f.objects.headErr = errors.New("access denied")

	result, err := f.handler.HandleEvent(context.Background(), event.PhotoEvent{Bucket: "photos", Key: "p1.jpg"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if result.Status != StatusFailed {
		t.Errorf("expected %s, got %s", StatusFailed, result.Status)
	}
	f.noWrites(t)
}

func TestHandleEvent_MatchedOneOfTwo(t *testing.T) {
	capability := newFakeCapability("f1", "f2")
	capability.match("f1", "e1", 92)
	f := newFixture(capability)
	f.identities.SetIdentity("e1", "bob@example.com")

	result, err := f.handler.HandleEvent(context.Background(), event.PhotoEvent{Bucket: "photos", Key: "p1.jpg"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Status != StatusProcessed || result.Uploader != "alice" {
		t.Errorf("expected processed for alice, got %s for %q", result.Status, result.Uploader)
	}

	photos, _ := f.associations.GetPhotos(context.Background(), "bob@example.com")
	if len(photos) != 1 || photos[0] != "p1.jpg" {
		t.Errorf("expected bob@example.com -> [p1.jpg], got %v", photos)
	}

	if len(capability.deleteCalls) != 1 {
		t.Fatalf("expected one delete call, got %d", len(capability.deleteCalls))
	}
	del := capability.deleteCalls[0]
	if del.Collection != "alice" || !slices.Equal(del.FaceIDs, []string{"f1", "f2"}) {
		t.Errorf("expected delete of [f1 f2] in alice, got %+v", del)
	}

	for _, call := range capability.searchCalls {
		if call.Collection != "alice" || call.MaxResults != 1 || call.Threshold != 80.0 {
			t.Errorf("unexpected search call %+v", call)
		}
	}

	report := result.Report
	if report.String() != "matched 1 of 2 faces" {
		t.Errorf("expected 'matched 1 of 2 faces', got %q", report.String())
	}
	if report.Count(OutcomeMatched) != 1 || report.Count(OutcomeNoMatch) != 1 {
		t.Errorf("unexpected outcomes %+v", report.Results)
	}
}

func TestReconcile_DeletesAllDetectedFaces(t *testing.T) {
	tests := []struct {
		name    string
		faceIDs []string
		matched []string
	}{
		{"one face matched", []string{"f1"}, []string{"f1"}},
		{"none matched", []string{"f1", "f2", "f3"}, nil},
		{"all matched", []string{"f1", "f2", "f3"}, []string{"f1", "f2", "f3"}},
		{"some matched", []string{"f1", "f2", "f3", "f4"}, []string{"f2", "f4"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			capability := newFakeCapability(tt.faceIDs...)
			f := newFixture(capability)
			for _, id := range tt.matched {
				capability.match(id, "e-"+id, 99)
				f.identities.SetIdentity("e-"+id, id+"@example.com")
			}

			report, err := f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}

			if len(capability.deleteCalls) != 1 {
				t.Fatalf("expected exactly one delete call, got %d", len(capability.deleteCalls))
			}
			if got := len(capability.deleteCalls[0].FaceIDs); got != len(tt.faceIDs) {
				t.Errorf("expected %d ids deleted, got %d", len(tt.faceIDs), got)
			}
			if report.Matched != len(tt.matched) || report.Detected != len(tt.faceIDs) {
				t.Errorf("expected %d of %d, got %s", len(tt.matched), len(tt.faceIDs), report)
			}
		})
	}
}

func TestReconcile_ZeroFaces(t *testing.T) {
	capability := newFakeCapability()
	f := newFixture(capability)

	report, err := f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(capability.deleteCalls) != 0 {
		t.Errorf("expected no delete call, got %d", len(capability.deleteCalls))
	}
	if len(capability.searchCalls) != 0 {
		t.Errorf("expected no search calls, got %d", len(capability.searchCalls))
	}
	if report.String() != "matched 0 of 0 faces" {
		t.Errorf("expected 'matched 0 of 0 faces', got %q", report.String())
	}
}

func TestReconcile_SearchFailureIsIsolated(t *testing.T) {
	capability := newFakeCapability("fA", "fB")
	capability.searchErrs["fA"] = errors.New("throttled")
	capability.match("fB", "e1", 85)
	f := newFixture(capability)
	f.identities.SetIdentity("e1", "bob@example.com")

	report, err := f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(f.associations.AddPhotoCalls) != 1 || f.associations.AddPhotoCalls[0].ContactKey != "bob@example.com" {
		t.Errorf("expected fB's association to be recorded, got %+v", f.associations.AddPhotoCalls)
	}
	if len(capability.deleteCalls) != 1 || !slices.Equal(capability.deleteCalls[0].FaceIDs, []string{"fA", "fB"}) {
		t.Errorf("expected both faces deleted, got %+v", capability.deleteCalls)
	}
	if report.Results[0].Outcome != OutcomeFailed || report.Results[0].Err == nil {
		t.Errorf("expected fA tagged failed, got %+v", report.Results[0])
	}
	if report.Results[1].Outcome != OutcomeMatched {
		t.Errorf("expected fB tagged matched, got %+v", report.Results[1])
	}
}

func TestReconcile_PerFaceOutcomes(t *testing.T) {
	capability := newFakeCapability("f1", "f2", "f3", "f4")
	capability.match("f1", "e1", 90)
	capability.match("f2", "e2", 90)
	capability.match("f3", "e3", 90)
	f := newFixture(capability)
	f.identities.SetIdentity("e1", "bob@example.com")
	// e2 is enrolled without an identity
	f.identities.FaceErrors["e3"] = errors.New("identity table unavailable")

	report, err := f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Outcome{OutcomeMatched, OutcomeUnresolved, OutcomeFailed, OutcomeNoMatch}
	for i, res := range report.Results {
		if res.Outcome != want[i] {
			t.Errorf("face %s: expected %s, got %s", res.FaceID, want[i], res.Outcome)
		}
	}
	if report.Results[0].ContactKey != "bob@example.com" {
		t.Errorf("expected contact on matched result, got %+v", report.Results[0])
	}
	if report.Results[1].MatchedFaceID != "e2" {
		t.Errorf("expected matched face id on unresolved result, got %+v", report.Results[1])
	}
}

func TestReconcile_AssociationFailureIsIsolated(t *testing.T) {
	capability := newFakeCapability("f1", "f2")
	capability.match("f1", "e1", 90)
	capability.match("f2", "e2", 90)
	f := newFixture(capability)
	f.identities.SetIdentity("e1", "bob@example.com")
	f.identities.SetIdentity("e2", "carol@example.com")
	f.associations.AddPhotoError = errors.New("conditional check failed")

	report, err := f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(f.associations.AddPhotoCalls) != 2 {
		t.Errorf("expected both association updates attempted, got %d", len(f.associations.AddPhotoCalls))
	}
	if report.Count(OutcomeFailed) != 2 || report.Matched != 0 {
		t.Errorf("expected two failed faces, got %+v", report.Results)
	}
	if len(capability.deleteCalls) != 1 {
		t.Errorf("expected cleanup to run, got %d delete calls", len(capability.deleteCalls))
	}
}

func TestReconcile_RetriedEventIsIdempotent(t *testing.T) {
	capability := newFakeCapability("f1", "f2")
	capability.match("f1", "e1", 92)
	capability.match("f2", "e1", 88)
	f := newFixture(capability)
	f.identities.SetIdentity("e1", "bob@example.com")

	ctx := context.Background()
	for range 2 {
		if _, err := f.reconciler.Reconcile(ctx, faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if _, err := f.reconciler.Reconcile(ctx, faces.ImageRef{Bucket: "photos", Key: "p2.jpg"}, "alice"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if got := len(f.associations.AddPhotoCalls); got != 6 {
		t.Errorf("expected 6 add attempts, got %d", got)
	}
	photos, _ := f.associations.GetPhotos(ctx, "bob@example.com")
	if !slices.Equal(photos, []string{"p1.jpg", "p2.jpg"}) {
		t.Errorf("expected distinct keys [p1.jpg p2.jpg], got %v", photos)
	}
}

func TestReconcile_IndexFailure(t *testing.T) {
	capability := newFakeCapability("f1")
	capability.indexErr = errors.New("collection does not exist")
	f := newFixture(capability)

	report, err := f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if report != nil {
		t.Errorf("expected no report, got %+v", report)
	}
	if len(capability.deleteCalls) != 0 {
		t.Errorf("nothing was indexed, expected no delete, got %d", len(capability.deleteCalls))
	}
}

func TestReconcile_DeleteFailureIsFatal(t *testing.T) {
	capability := newFakeCapability("f1")
	capability.match("f1", "e1", 92)
	capability.deleteErr = errors.New("service unavailable")
	f := newFixture(capability)
	f.identities.SetIdentity("e1", "bob@example.com")

	result, err := f.handler.HandleEvent(context.Background(), event.PhotoEvent{Bucket: "photos", Key: "p1.jpg"})
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "cleanup faces") {
		t.Errorf("expected cleanup error, got %v", err)
	}
	if result.Status != StatusFailed {
		t.Errorf("expected %s, got %s", StatusFailed, result.Status)
	}
	if result.Report == nil || result.Report.Matched != 1 {
		t.Errorf("expected report with the recorded match, got %+v", result.Report)
	}
	if len(f.associations.AddPhotoCalls) != 1 {
		t.Errorf("expected association recorded before cleanup, got %d", len(f.associations.AddPhotoCalls))
	}
}

func TestReconcile_CleanupRunsOnPanic(t *testing.T) {
	capability := newFakeCapability("f1", "f2")
	capability.searchPanic = true
	f := newFixture(capability)

	func() {
		defer func() {
			if recover() == nil {
				t.Error("expected panic to propagate")
			}
		}()
		_, _ = f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
	}()

	if len(capability.deleteCalls) != 1 || len(capability.deleteCalls[0].FaceIDs) != 2 {
		t.Errorf("expected cleanup of both faces, got %+v", capability.deleteCalls)
	}
	if f.reconciler.locks.size() != 0 {
		t.Error("expected uploader lock to be released")
	}
}

func TestReconcile_CleanupIgnoresCancellation(t *testing.T) {
	capability := newFakeCapability("f1")
	f := newFixture(capability)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := f.reconciler.Reconcile(ctx, faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice"); err != nil {
		t.Fatalf("expected cleanup to succeed on a cancelled context, got %v", err)
	}
	if len(capability.deleteCalls) != 1 {
		t.Errorf("expected one delete call, got %d", len(capability.deleteCalls))
	}
}

func TestReconcile_SerializesSameUploader(t *testing.T) {
	capability := newFakeCapability("f1")
	capability.indexDelay = 20 * time.Millisecond
	f := newFixture(capability)

	var wg sync.WaitGroup
	for _, key := range []string{"p1.jpg", "p2.jpg", "p3.jpg"} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.reconciler.Reconcile(context.Background(), faces.ImageRef{Bucket: "photos", Key: key}, "alice"); err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	want := []string{"index:alice", "delete:alice", "index:alice", "delete:alice", "index:alice", "delete:alice"}
	if !slices.Equal(capability.timeline, want) {
		t.Errorf("runs for one uploader interleaved: %v", capability.timeline)
	}
	if f.reconciler.locks.size() != 0 {
		t.Errorf("expected no lingering locks, got %d", f.reconciler.locks.size())
	}
}

func TestHandleBatch_ProcessesEveryRecord(t *testing.T) {
	capability := newFakeCapability("f1")
	capability.match("f1", "e1", 92)
	f := newFixture(capability)
	f.identities.SetIdentity("e1", "bob@example.com")
	f.objects.metadata["p2.png"] = map[string]string{"user": "alice"}

	events := []event.PhotoEvent{
		{Bucket: "photos", Key: "p1.jpg"},
		{Bucket: "photos", Key: "readme.md"},
		{Bucket: "photos", Key: "anon.jpg"},
		{Bucket: "photos", Key: "p2.png"},
	}
	results, err := f.handler.HandleBatch(context.Background(), events)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []Status{StatusProcessed, StatusSkippedExtension, StatusSkippedNoUploader, StatusProcessed}
	if len(results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(results))
	}
	for i, r := range results {
		if r.Status != want[i] {
			t.Errorf("event %s: expected %s, got %s", r.Event, want[i], r.Status)
		}
	}

	photos, _ := f.associations.GetPhotos(context.Background(), "bob@example.com")
	if !slices.Equal(photos, []string{"p1.jpg", "p2.png"}) {
		t.Errorf("expected both photos associated, got %v", photos)
	}
}

func TestHandleBatch_FailureDoesNotStopBatch(t *testing.T) {
	capability := newFakeCapability("f1")
	capability.deleteErr = errors.New("service unavailable")
	f := newFixture(capability)
	f.objects.metadata["p2.jpg"] = map[string]string{"user": "alice"}

	results, err := f.handler.HandleBatch(context.Background(), []event.PhotoEvent{
		{Bucket: "photos", Key: "p1.jpg"},
		{Bucket: "photos", Key: "p2.jpg"},
	})
	if err == nil {
		t.Fatal("expected joined error, got nil")
	}
	if len(results) != 2 || len(capability.indexCalls) != 2 {
		t.Errorf("expected both records processed, got %d results and %d index calls", len(results), len(capability.indexCalls))
	}
	for _, key := range []string{"p1.jpg", "p2.jpg"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("expected error to mention %s: %v", key, err)
		}
	}
}

// encodeBlankJPEG returns a small JPEG; the fake embedder ignores its content.
func encodeBlankJPEG(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, image.NewGray(image.Rect(0, 0, 16, 16)), nil); err != nil {
		t.Fatalf("encode image: %v", err)
	}
	return buf.Bytes()
}

type staticEmbedder struct {
	embedding []float32
}

func (e staticEmbedder) ComputeFaceEmbeddings(ctx context.Context, imageData []byte) (*embedding.FaceResponse, error) {
	return &embedding.FaceResponse{
		FacesCount: 1,
		Faces:      []embedding.FaceDetection{{Embedding: e.embedding, BBox: []float64{0, 0, 8, 8}, DetScore: 0.99}},
	}, nil
}

// TestReconcile_CollectionsEndToEnd runs the reconciler over the real face capability.
// [1,0] against [4,3] has cosine similarity exactly 0.8, so similarity is exactly 80.
func TestReconcile_CollectionsEndToEnd(t *testing.T) {
	tests := []struct {
		name     string
		enrolled []float32
		matched  int
	}{
		{"similarity exactly at threshold", []float32{4, 3}, 1},
		{"similarity below threshold", []float32{3, 4}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			store := mock.NewMockCollectionStore()
			_ = store.AddFaces(ctx, []database.CollectionFace{
				{FaceID: "e1", Collection: "alice", Source: constants.SourceEnrollment, Embedding: tt.enrolled},
			})
			objects := &fakeObjects{objects: map[string][]byte{"p1.jpg": encodeBlankJPEG(t)}}
			capability := faces.NewCollections(objects, staticEmbedder{embedding: []float32{1, 0}}, store, 64)

			identities := mock.NewMockIdentityStore()
			identities.SetIdentity("e1", "bob@example.com")
			associations := mock.NewMockAssociationStore()
			reconciler := NewReconciler(capability, identities, associations, testMatching, discardLogger())

			report, err := reconciler.Reconcile(ctx, faces.ImageRef{Bucket: "photos", Key: "p1.jpg"}, "alice")
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if report.Matched != tt.matched {
				t.Errorf("expected %d matched, got %s", tt.matched, report)
			}

			remaining := store.Faces("alice")
			if len(remaining) != 1 || remaining[0].FaceID != "e1" {
				t.Errorf("expected only the enrolled face to remain, got %+v", remaining)
			}
		})
	}
}
