package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/photo-faces/internal/event"
	"github.com/kozaktomas/photo-faces/internal/faces"
)

// Status is the outcome of handling one upload event.
type Status string

const (
	StatusSkippedExtension  Status = "skipped_extension"
	StatusSkippedNoUploader Status = "skipped_no_uploader"
	StatusProcessed         Status = "processed"
	StatusFailed            Status = "failed"
)

// UploaderResolver returns the uploader of an object, with ok=false when it has none.
type UploaderResolver interface {
	Resolve(ctx context.Context, bucket, key string) (uploader string, ok bool, err error)
}

// EventResult describes how one event was handled.
type EventResult struct {
	Event    event.PhotoEvent `json:"event"`
	Status   Status           `json:"status"`
	Uploader string           `json:"uploader,omitempty"`
	Report   *Report          `json:"report,omitempty"`
	Error    string           `json:"error,omitempty"`
}

// Handler filters upload events, resolves their uploader and reconciles the photo.
type Handler struct {
	filter     *event.Filter
	uploaders  UploaderResolver
	reconciler *Reconciler
	logger     *slog.Logger
}

// NewHandler creates an event handler.
func NewHandler(filter *event.Filter, uploaders UploaderResolver, reconciler *Reconciler, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{filter: filter, uploaders: uploaders, reconciler: reconciler, logger: logger}
}

// HandleEvent processes one upload event. Skipped events return a result and a nil error.
func (h *Handler) HandleEvent(ctx context.Context, ev event.PhotoEvent) (*EventResult, error) {
	result := &EventResult{Event: ev}

	if !h.filter.Allowed(ev.Key) {
		h.logger.Info("skipping object with unsupported extension", "bucket", ev.Bucket, "key", ev.Key)
		result.Status = StatusSkippedExtension
		return result, nil
	}

	uploader, ok, err := h.uploaders.Resolve(ctx, ev.Bucket, ev.Key)
	if err != nil {
		return h.fail(result, err)
	}
	if !ok {
		h.logger.Info("skipping object without uploader metadata", "bucket", ev.Bucket, "key", ev.Key)
		result.Status = StatusSkippedNoUploader
		return result, nil
	}
	result.Uploader = uploader

	report, err := h.reconciler.Reconcile(ctx, faces.ImageRef{Bucket: ev.Bucket, Key: ev.Key}, uploader)
	result.Report = report
	if err != nil {
		return h.fail(result, err)
	}

	result.Status = StatusProcessed
	return result, nil
}

func (h *Handler) fail(result *EventResult, err error) (*EventResult, error) {
	h.logger.Error("event processing failed", "event", result.Event.String(), "error", err)
	result.Status = StatusFailed
	result.Error = err.Error()
	return result, fmt.Errorf("process %s: %w", result.Event, err)
}

// HandleBatch processes every event in order. A failed event does not stop the batch;
// the failures are joined into the returned error.
func (h *Handler) HandleBatch(ctx context.Context, events []event.PhotoEvent) ([]*EventResult, error) {
	results := make([]*EventResult, 0, len(events))
	var errs []error
	for _, ev := range events {
		result, err := h.HandleEvent(ctx, ev)
		if err != nil {
			errs = append(errs, err)
		}
		results = append(results, result)
	}
	return results, errors.Join(errs...)
}
