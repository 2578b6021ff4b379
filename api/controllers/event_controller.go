/*
 * @module api/controllers/event_controller
 * @description POST /events: at-least-once ingestion into the canonical
 *   events queue. Thin glue; the event consumer (C3) does the real work.
 * @architecture RESTful API - event ingest endpoint
 * @dependencies feedranker/internal/cache
 */
package controllers

import (
	"encoding/json"
	"net/http"

	"feedranker/internal/cache"
	"feedranker/internal/models"
)

type EventController struct {
	cache *cache.Cache
}

func NewEventController(c *cache.Cache) *EventController { return &EventController{cache: c} }

type eventRequest struct {
	UserID    string                 `json:"userId,omitempty"`
	SessionID string                 `json:"sessionId"`
	ProductID string                 `json:"productId"`
	Type      models.InteractionType `json:"type"`
}

// PostEvent handles POST /events.
func (c *EventController) PostEvent(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	var body eventRequest
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, r, http.StatusBadRequest, "malformed JSON body")
		return
	}

	if body.SessionID == "" || body.ProductID == "" || !body.Type.Valid() {
		writeError(w, r, http.StatusBadRequest, "sessionId, productId and a valid type are required")
		return
	}

	evt := models.Event{
		UserID:    body.UserID,
		SessionID: body.SessionID,
		ProductID: body.ProductID,
		Type:      body.Type,
	}

	if err := c.cache.PushEvent(r.Context(), evt); err != nil {
		writeError(w, r, http.StatusInternalServerError, "event queue unavailable")
		return
	}

	writeJSON(w, r, http.StatusOK, map[string]bool{"ok": true})
}
