package handler

import (
	"context"
	"net/http"

	"github.com/goccy/go-json"

	"arcade-backend/internal/auth"
	"arcade-backend/internal/model"
)

// EventTracker stores analytics events.
type EventTracker interface {
	Track(ctx context.Context, accountID, eventType string, payload json.RawMessage) (*model.AnalyticsEvent, error)
}

// TrackEventRequest is the body of POST /api/events.
type TrackEventRequest struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// EventHandler serves analytics ingestion.
type EventHandler struct {
	events EventTracker
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(events EventTracker) *EventHandler {
	return &EventHandler{events: events}
}

// Track handles POST /api/events. Anonymous events are accepted.
func (h *EventHandler) Track(w http.ResponseWriter, r *http.Request) {
	var req TrackEventRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	id, _ := auth.AccountFrom(r.Context())

	ev, err := h.events.Track(r.Context(), id, req.Type, req.Payload)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]any{"id": ev.ID})
}
