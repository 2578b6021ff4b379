/*
 * @module internal/workers/popularity
 * @description Popularity aggregator (C4, §4.4.1): windowed aggregation of
 *   interactions into Product.popularity, Merchant.popularity and the
 *   global top-K cache mirror.
 * @architecture Batch worker
 * @dependencies feedranker/internal/store, feedranker/internal/cache
 */
package workers

import (
	"context"
	"fmt"
	"time"

	"feedranker/internal/models"
	"feedranker/internal/store"
)

const (
	popularityWindow    = 30 * 24 * time.Hour
	topProductsLimit    = 50000
	topMerchantsLimit   = 10000
	metaMirrorBatchSize = 500
)

// PopularityCache is the slice of the feature cache the aggregator writes.
type PopularityCache interface {
	ReplaceGlobalTopK(ctx context.Context, scored []models.ScoredID) error
	SetProductMeta(ctx context.Context, p models.Product) error
}

// PopularityAggregator recomputes Product/Merchant popularity from the
// interaction log and mirrors the result into the cache.
type PopularityAggregator struct {
	interactions *store.InteractionRepo
	products     *store.ProductRepo
	cache        PopularityCache
	now          func() time.Time
}

func NewPopularityAggregator(interactions *store.InteractionRepo, products *store.ProductRepo, c PopularityCache) *PopularityAggregator {
	return &PopularityAggregator{interactions: interactions, products: products, cache: c, now: time.Now}
}

// Run executes one aggregation pass: product popularity, then the cache
// mirrors (global top-K and product meta), then the merchant-level rollup.
func (a *PopularityAggregator) Run(ctx context.Context) error {
	since := a.now().Add(-popularityWindow)

	productWeights, err := a.interactions.AggregatePopularity(ctx, since, topProductsLimit)
	if err != nil {
		return fmt.Errorf("aggregating product popularity: %w", err)
	}

	popularity := make(map[string]float64, len(productWeights))
	for _, pw := range productWeights {
		popularity[pw.ProductID] = pw.Weight
	}

	if err := a.products.UpdatePopularityBatch(ctx, popularity); err != nil {
		return fmt.Errorf("writing product popularity: %w", err)
	}

	scored := make([]models.ScoredID, 0, len(productWeights))
	for _, pw := range productWeights {
		scored = append(scored, models.ScoredID{ID: pw.ProductID, Score: pw.Weight})
	}
	if err := a.cache.ReplaceGlobalTopK(ctx, scored); err != nil {
		return fmt.Errorf("replacing global top-k: %w", err)
	}

	if err := a.mirrorProductMeta(ctx, popularity); err != nil {
		return fmt.Errorf("mirroring product meta: %w", err)
	}

	merchantWeights, err := a.interactions.AggregateMerchantPopularity(ctx, since, topMerchantsLimit)
	if err != nil {
		return fmt.Errorf("aggregating merchant popularity: %w", err)
	}

	merchantPopularity := make(map[string]float64, len(merchantWeights))
	for _, mw := range merchantWeights {
		merchantPopularity[mw.ProductID] = mw.Weight
	}
	if err := a.products.UpdateMerchantPopularityBatch(ctx, merchantPopularity); err != nil {
		return fmt.Errorf("writing merchant popularity: %w", err)
	}

	return nil
}

// mirrorProductMeta proactively repopulates the product meta cache for the
// freshly-scored products, in bounded batches so a single run doesn't hold
// tens of thousands of ids in one round trip.
func (a *PopularityAggregator) mirrorProductMeta(ctx context.Context, popularity map[string]float64) error {
	ids := make([]string, 0, len(popularity))
	for id := range popularity {
		ids = append(ids, id)
	}

	for start := 0; start < len(ids); start += metaMirrorBatchSize {
		end := start + metaMirrorBatchSize
		if end > len(ids) {
			end = len(ids)
		}

		products, err := a.products.GetByIDs(ctx, ids[start:end])
		if err != nil {
			return err
		}
		for _, p := range products {
			p.Popularity = popularity[p.ID]
			if err := a.cache.SetProductMeta(ctx, p); err != nil {
				return err
			}
		}
	}
	return nil
}
