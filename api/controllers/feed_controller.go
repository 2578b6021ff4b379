/*
 * @module api/controllers/feed_controller
 * @description GET /feed: thin HTTP glue over the ranker. Parses and
 *   validates query parameters, delegates to ranker.Ranker, serializes the
 *   response.
 * @architecture RESTful API - feed endpoint
 * @dependencies feedranker/internal/ranker
 */
package controllers

import (
	"net/http"
	"strconv"

	"feedranker/internal/models"
	"feedranker/internal/ranker"
)

type FeedController struct {
	ranker *ranker.Ranker
}

func NewFeedController(r *ranker.Ranker) *FeedController { return &FeedController{ranker: r} }

// GetFeed handles GET /feed?userId&sessionId&productCategoryId&searchText&cursor&limit.
func (c *FeedController) GetFeed(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, r, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	q := r.URL.Query()

	limit := 30
	if raw := q.Get("limit"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil || v < 1 || v > 100 {
			writeError(w, r, http.StatusBadRequest, "limit must be an integer in 1..100")
			return
		}
		limit = v
	}

	req := models.FeedRequest{
		UserID:            q.Get("userId"),
		SessionID:         q.Get("sessionId"),
		SearchText:        q.Get("searchText"),
		ProductCategoryID: q.Get("productCategoryId"),
		Cursor:            q.Get("cursor"),
		Limit:             limit,
	}

	resp, err := c.ranker.GetFeed(r.Context(), req)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "feed unavailable")
		return
	}

	writeJSON(w, r, http.StatusOK, resp)
}
