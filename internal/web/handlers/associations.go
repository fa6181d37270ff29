package handlers

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/photo-faces/internal/database"
)

// AssociationsHandler serves the photos associated with an identity.
type AssociationsHandler struct {
	store database.AssociationReader
}

// NewAssociationsHandler creates a new associations handler.
func NewAssociationsHandler(store database.AssociationReader) *AssociationsHandler {
	return &AssociationsHandler{store: store}
}

// GetPhotos returns the photo keys recorded for a contact key.
func (h *AssociationsHandler) GetPhotos(w http.ResponseWriter, r *http.Request) {
	contactKey, err := url.PathUnescape(chi.URLParam(r, "contactKey"))
	if err != nil || strings.TrimSpace(contactKey) == "" {
		respondError(w, http.StatusBadRequest, "invalid contact key")
		return
	}
	if h.store == nil {
		respondError(w, http.StatusServiceUnavailable, "association store not available")
		return
	}

	photos, err := h.store.GetPhotos(r.Context(), contactKey)
	if err != nil {
		respondError(w, http.StatusInternalServerError, "failed to get photos")
		return
	}

	respondJSON(w, http.StatusOK, map[string]any{
		"contact_key": contactKey,
		"photos":      photos,
		"count":       len(photos),
	})
}
