/*
 * @module internal/ingest
 * @description Event consumer (C3, §4.3): drains the canonical events
 *   queue, updating session trails, bandit posteriors and the interaction
 *   log per event. Runs as a single cooperative loop; multiple instances
 *   may compete on the same queue.
 * @architecture Streaming worker
 * @dependencies feedranker/internal/cache, feedranker/internal/bandit, feedranker/internal/store
 */
package ingest

import (
	"context"
	"log/slog"
	"time"

	"feedranker/internal/bandit"
	"feedranker/internal/eventbus"
	"feedranker/internal/metrics"
	"feedranker/internal/models"
	"feedranker/internal/store"
)

const (
	idleYield            = 50 * time.Millisecond
	errorBackoff         = 1 * time.Second
	trailRetryGap        = 50 * time.Millisecond
	mirrorPublishTimeout = 5 * time.Second
)

// QueueCache is the slice of the feature cache the consumer needs: popping
// events and maintaining session trails.
type QueueCache interface {
	PopEvent(ctx context.Context) (*models.Event, bool, error)
	PushSessionTrail(ctx context.Context, sessionID, productID string) error
}

// Consumer runs the per-event pipeline described in §4.3.
type Consumer struct {
	cache        QueueCache
	products     *store.ProductRepo
	interactions *store.InteractionRepo
	sampler      *bandit.Sampler
	mirror       *eventbus.Mirror // optional, nil disables Kafka mirroring
}

func NewConsumer(c QueueCache, products *store.ProductRepo, interactions *store.InteractionRepo, sampler *bandit.Sampler, mirror *eventbus.Mirror) *Consumer {
	return &Consumer{cache: c, products: products, interactions: interactions, sampler: sampler, mirror: mirror}
}

// Run loops until ctx is cancelled, observing exact loop discipline: 1s
// blocking pop, ~50ms idle yield on empty, 1s backoff on pop error. On
// cancellation the in-flight event is finished before the loop exits.
func (c *Consumer) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		evt, ok, err := c.cache.PopEvent(ctx)
		if err != nil {
			metrics.EventsConsumed.WithLabelValues("pop_error").Inc()
			slog.Error("event pop failed, backing off", "error", err)
			sleep(ctx, errorBackoff)
			continue
		}
		if !ok {
			metrics.EventQueueIdle.Inc()
			sleep(ctx, idleYield)
			continue
		}

		c.processEvent(context.WithoutCancel(ctx), *evt)
	}
}

func sleep(ctx context.Context, d time.Duration) {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// processEvent runs the three independent steps of §4.3 in order; a
// failure in any step is logged and does not abort the others.
func (c *Consumer) processEvent(ctx context.Context, evt models.Event) {
	if !evt.Type.Valid() {
		slog.Warn("discarding event with unknown type", "type", evt.Type)
		metrics.EventsConsumed.WithLabelValues("discarded").Inc()
		return
	}

	if evt.SessionID != "" {
		c.pushSessionTrail(ctx, evt)
	}

	c.recordBanditOutcome(ctx, evt)

	if err := c.interactions.Append(ctx, evt.UserID, evt.SessionID, evt.ProductID, evt.Type); err != nil {
		slog.Error("interaction append failed", "error", err, "productId", evt.ProductID)
	}

	if c.mirror != nil {
		go func() {
			mirrorCtx, cancel := context.WithTimeout(context.Background(), mirrorPublishTimeout)
			defer cancel()
			c.mirror.Publish(mirrorCtx, evt)
		}()
	}

	metrics.EventsConsumed.WithLabelValues("processed").Inc()
}

// pushSessionTrail retries once on failure, per §4.3's "retried once on
// transient cache failure" clause.
func (c *Consumer) pushSessionTrail(ctx context.Context, evt models.Event) {
	err := c.cache.PushSessionTrail(ctx, evt.SessionID, evt.ProductID)
	if err == nil {
		return
	}

	sleep(ctx, trailRetryGap)
	if err := c.cache.PushSessionTrail(ctx, evt.SessionID, evt.ProductID); err != nil {
		slog.Error("session trail push failed after retry", "error", err, "sessionId", evt.SessionID)
	}
}

// recordBanditOutcome looks up merchant/category via product meta and
// records success for CLICK/PURCHASE, failure for VIEW; CART is neutral.
func (c *Consumer) recordBanditOutcome(ctx context.Context, evt models.Event) {
	metaMap, err := c.products.GetByIDs(ctx, []string{evt.ProductID})
	if err != nil {
		slog.Error("product lookup failed for bandit update", "error", err, "productId", evt.ProductID)
		return
	}
	product, ok := metaMap[evt.ProductID]
	if !ok {
		slog.Warn("bandit update skipped: unknown product", "productId", evt.ProductID)
		return
	}

	var success bool
	switch evt.Type {
	case models.InteractionClick, models.InteractionPurchase:
		success = true
	case models.InteractionView:
		success = false
	case models.InteractionCart:
		return // neutral, no bandit update
	default:
		return
	}

	metrics.BanditDraws.WithLabelValues("merchant").Inc()
	if err := c.sampler.RecordMerchantOutcome(ctx, product.MerchantID, success); err != nil {
		slog.Error("recording merchant bandit outcome failed", "error", err)
	}
	metrics.BanditDraws.WithLabelValues("category").Inc()
	if err := c.sampler.RecordCategoryOutcome(ctx, product.CategoryID, success); err != nil {
		slog.Error("recording category bandit outcome failed", "error", err)
	}
}
