package handlers

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/photo-faces/internal/constants"
	"github.com/kozaktomas/photo-faces/internal/event"
	"github.com/kozaktomas/photo-faces/internal/pipeline"
)

// BatchHandler processes a batch of upload events.
type BatchHandler interface {
	HandleBatch(ctx context.Context, events []event.PhotoEvent) ([]*pipeline.EventResult, error)
}

// EventsHandler receives S3 event notifications.
type EventsHandler struct {
	pipeline BatchHandler
	logger   *slog.Logger
}

// NewEventsHandler creates a new events handler.
func NewEventsHandler(pipeline BatchHandler, logger *slog.Logger) *EventsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventsHandler{pipeline: pipeline, logger: logger}
}

type eventsResponse struct {
	Received int                     `json:"received"`
	Failed   int                     `json:"failed"`
	Results  []*pipeline.EventResult `json:"results"`
	Rejected []event.RejectedRecord  `json:"rejected,omitempty"`
}

// Receive decodes a notification and processes every valid record in it.
// Malformed records are logged and listed as rejected without affecting their siblings.
// Responds 500 when any record failed so the sender can redeliver.
func (h *EventsHandler) Receive(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxEventBodyBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, http.StatusRequestEntityTooLarge, "notification too large")
			return
		}
		respondError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	notification, err := event.ParseNotification(body)
	if err != nil {
		h.logger.Warn("rejected event notification", "error", sanitizeForLog(err.Error()))
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	for _, rej := range notification.Rejected {
		h.logger.Warn("rejected event record", "index", rej.Index, "reason", sanitizeForLog(rej.Reason))
	}

	results, err := h.pipeline.HandleBatch(r.Context(), notification.Events)

	resp := eventsResponse{Received: len(notification.Events), Results: results, Rejected: notification.Rejected}
	for _, res := range results {
		if res.Status == pipeline.StatusFailed {
			resp.Failed++
		}
	}

	if err != nil {
		respondJSON(w, http.StatusInternalServerError, resp)
		return
	}
	respondJSON(w, http.StatusOK, resp)
}
