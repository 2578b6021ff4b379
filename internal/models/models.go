/*
 * @module internal/models
 * @description Domain types shared across the cache, store, ranker and worker
 *   layers: products, interactions, session trails and the request/response
 *   shapes of the feed API.
 * @architecture Data model layer
 * @dependencies time
 */
package models

import "time"

// InteractionType is the kind of event recorded for a product view.
type InteractionType string

const (
	InteractionView     InteractionType = "VIEW"
	InteractionClick    InteractionType = "CLICK"
	InteractionCart     InteractionType = "CART"
	InteractionPurchase InteractionType = "PURCHASE"
)

// InteractionWeight is the aggregation weight used by the popularity
// aggregator and the CF trainer.
var InteractionWeight = map[InteractionType]float64{
	InteractionView:     0.5,
	InteractionClick:    1,
	InteractionCart:     3,
	InteractionPurchase: 8,
}

// Valid reports whether t is one of the four known interaction types.
func (t InteractionType) Valid() bool {
	_, ok := InteractionWeight[t]
	return ok
}

// ProductMeta is the hydrated, cache-friendly projection of a Product used
// by the ranker's meta-hydration step. Unknown fields on read are ignored.
type ProductMeta struct {
	Title       string  `json:"title"`
	Description string  `json:"description"`
	MerchantID  string  `json:"merchantId"`
	CategoryID  string  `json:"categoryId"`
	Popularity  float64 `json:"popularity"`
}

// Product is the full catalog record, as read from the relational store.
type Product struct {
	ID          string  `json:"id"`
	Title       string  `json:"title"`
	Description string  `json:"description"`
	MerchantID  string  `json:"merchantId"`
	CategoryID  string  `json:"categoryId"`
	Popularity  float64 `json:"popularity"`
}

// Meta projects a Product down to its ProductMeta shape.
func (p Product) Meta() ProductMeta {
	return ProductMeta{
		Title:       p.Title,
		Description: p.Description,
		MerchantID:  p.MerchantID,
		CategoryID:  p.CategoryID,
		Popularity:  p.Popularity,
	}
}

// Event is the wire shape of an ingested interaction, as posted to
// POST /events and pushed onto the C1 events queue.
type Event struct {
	UserID    string          `json:"userId,omitempty"`
	SessionID string          `json:"sessionId"`
	ProductID string          `json:"productId"`
	Type      InteractionType `json:"type"`
	Timestamp time.Time       `json:"timestamp,omitempty"`
}

// ScoredID pairs an identifier with a score, the shape returned by
// sorted-set reads (top-K lists).
type ScoredID struct {
	ID    string
	Score float64
}

// FeedRequest is the input to the ranker's GetFeed operation.
type FeedRequest struct {
	UserID             string
	SessionID          string
	SearchText         string
	ProductCategoryID  string
	Cursor             string
	Limit              int
}

// ScoredItem is one entry in a FeedResponse.
type ScoredItem struct {
	Score   float64 `json:"score"`
	Product Product `json:"product"`
}

// FeedResponse is the output of the ranker's GetFeed operation.
type FeedResponse struct {
	Items  []ScoredItem `json:"items"`
	Cursor string       `json:"cursor,omitempty"`
}
