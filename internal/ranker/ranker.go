/*
 * @module internal/ranker
 * @description Feed Ranker (C5, §4.5): online candidate generation, score
 *   fusion, diversity re-ranking and pagination. The largest and most
 *   central component; every other package here exists to serve it.
 * @architecture Online ranking pipeline
 * @dependencies feedranker/internal/cache, feedranker/internal/bandit, feedranker/internal/store
 */
package ranker

import (
	"context"
	"log/slog"
	"sort"

	"feedranker/internal/bandit"
	"feedranker/internal/config"
	"feedranker/internal/metrics"
	"feedranker/internal/models"
	"feedranker/internal/store"
)

const (
	maxCandidates          = 200
	textSearchLimit        = 200
	categoryBackfillLimit  = 200
	popularityBackfillMult = 3
	categoryBackfillMult   = 2
	sessionAffinityWindow  = 20

	textBaseFloor = 0.05
	textBaseScale = 0.8

	popularityBackfillScale = 0.6
	categoryBackfillScale   = 0.5
)

// FeedCache is the slice of the feature cache the ranker reads and writes.
type FeedCache interface {
	UserTopK(ctx context.Context, userID string, limit int) ([]models.ScoredID, error)
	GlobalTopK(ctx context.Context, limit int) ([]models.ScoredID, error)
	ProductMeta(ctx context.Context, ids []string) (map[string]models.ProductMeta, error)
	SetProductMeta(ctx context.Context, p models.Product) error
	SessionTrail(ctx context.Context, sessionID string) ([]string, error)
}

// Ranker builds ranked, paginated feeds.
type Ranker struct {
	cache    FeedCache
	products *store.ProductRepo
	sampler  *bandit.Sampler
	weights  config.RankerWeights
}

func New(c FeedCache, products *store.ProductRepo, sampler *bandit.Sampler, weights config.RankerWeights) *Ranker {
	return &Ranker{cache: c, products: products, sampler: sampler, weights: weights}
}

// candidate accumulates per-product signal across the generation phases
// before fusion.
type candidate struct {
	id        string
	base      float64
	textScore float64
}

// GetFeed executes §4.5's full pipeline: candidate generation, meta
// hydration, score fusion, diversification and pagination.
func (r *Ranker) GetFeed(ctx context.Context, req models.FeedRequest) (models.FeedResponse, error) {
	timer := metrics.StartTimer(metrics.FeedLatency)
	defer timer.Stop()

	limit := normalizeLimit(req.Limit)

	order, candidates := r.generateCandidates(ctx, req, limit)
	if len(order) > maxCandidates {
		order = order[:maxCandidates]
	}

	meta, err := r.hydrateMeta(ctx, order)
	if err != nil {
		slog.Error("meta hydration failed, continuing with partial results", "error", err)
	}

	var sessionTrail []string
	if req.SessionID != "" {
		sessionTrail, err = r.cache.SessionTrail(ctx, req.SessionID)
		if err != nil {
			slog.Warn("session trail lookup failed, treating as empty", "error", err)
		}
	}
	inRecentTrail := recentTrailSet(sessionTrail, sessionAffinityWindow)

	searchActive := req.SearchText != ""
	wText := r.weights.TextAbsent
	if searchActive {
		wText = r.weights.TextPresent
	}

	scored := make([]models.ScoredItem, 0, len(order))
	for _, id := range order {
		p, ok := meta[id]
		if !ok {
			continue // dropped: missing meta, per §4.5
		}
		c := candidates[id]

		merchantSample := r.sampler.SampleMerchant(ctx, p.MerchantID)
		sessionAffinity := 0.0
		if inRecentTrail[id] {
			sessionAffinity = 1.0
		}

		final := r.weights.CF*c.base +
			r.weights.Popularity*p.Popularity +
			r.weights.Bandit*merchantSample +
			wText*c.textScore +
			r.weights.Session*sessionAffinity

		scored = append(scored, models.ScoredItem{
			Score: final,
			Product: models.Product{
				ID:          id,
				Title:       p.Title,
				Description: p.Description,
				MerchantID:  p.MerchantID,
				CategoryID:  p.CategoryID,
				Popularity:  p.Popularity,
			},
		})
	}

	sort.SliceStable(scored, func(i, j int) bool { return scored[i].Score > scored[j].Score })

	diversified := Diversify(scored, DefaultDiversityPolicy())

	// The cursor is the last id of the previous page; continue after it. An
	// unknown cursor starts from the top.
	if req.Cursor != "" {
		for i, it := range diversified {
			if it.Product.ID == req.Cursor {
				diversified = diversified[i+1:]
				break
			}
		}
	}

	if len(diversified) > limit {
		diversified = diversified[:limit]
	}

	resp := models.FeedResponse{Items: diversified}
	if len(diversified) > 0 {
		resp.Cursor = diversified[len(diversified)-1].Product.ID
	}

	metrics.FeedRequests.WithLabelValues("ok").Inc()
	return resp, nil
}

func normalizeLimit(limit int) int {
	if limit <= 0 {
		return 30
	}
	if limit > 100 {
		return 100
	}
	return limit
}

// generateCandidates runs the four candidate-generation phases in the
// order §4.5 requires, so later phases can see earlier insertions.
func (r *Ranker) generateCandidates(ctx context.Context, req models.FeedRequest, limit int) ([]string, map[string]*candidate) {
	order := make([]string, 0, maxCandidates)
	candidates := make(map[string]*candidate)

	insert := func(id string, base float64) {
		if c, exists := candidates[id]; exists {
			if base > c.base {
				c.base = base
			}
			return
		}
		candidates[id] = &candidate{id: id, base: base}
		order = append(order, id)
	}

	// 1. Personalized.
	if req.UserID != "" {
		topK, err := r.cache.UserTopK(ctx, req.UserID, maxCandidates)
		if err != nil {
			slog.Warn("personalized top-k lookup failed", "error", err)
		}
		metrics.CandidateCount.WithLabelValues("personalized").Observe(float64(len(topK)))
		for _, s := range topK {
			insert(s.ID, s.Score)
		}
	}

	// 2. Textual.
	if req.SearchText != "" {
		matches, err := r.products.FuzzySearch(ctx, req.SearchText, textSearchLimit)
		if err != nil {
			slog.Warn("fuzzy search failed", "error", err)
		}
		metrics.CandidateCount.WithLabelValues("textual").Observe(float64(len(matches)))
		for _, m := range matches {
			insert(m.Product.ID, textBaseFloor+textBaseScale*m.Score)
			candidates[m.Product.ID].textScore = m.Score
		}
	}

	// 3. Popularity backfill.
	if len(candidates) < popularityBackfillMult*limit {
		global, err := r.cache.GlobalTopK(ctx, maxCandidates)
		if err != nil {
			slog.Warn("global top-k lookup failed", "error", err)
		}
		metrics.CandidateCount.WithLabelValues("popularity_backfill").Observe(float64(len(global)))
		for _, s := range global {
			if _, exists := candidates[s.ID]; exists {
				continue
			}
			insert(s.ID, popularityBackfillScale*s.Score)
		}
	}

	// 4. Category backfill.
	if req.ProductCategoryID != "" && len(candidates) < categoryBackfillMult*limit {
		byCategory, err := r.products.TopByCategoryPopularity(ctx, req.ProductCategoryID, categoryBackfillLimit)
		if err != nil {
			slog.Warn("category backfill failed", "error", err)
		}
		metrics.CandidateCount.WithLabelValues("category_backfill").Observe(float64(len(byCategory)))
		for _, p := range byCategory {
			if _, exists := candidates[p.ID]; exists {
				continue
			}
			insert(p.ID, categoryBackfillScale*p.Popularity)
		}
	}

	return order, candidates
}

// hydrateMeta bulk-fetches cached meta, falling back to the store on miss
// and opportunistically repopulating the cache.
func (r *Ranker) hydrateMeta(ctx context.Context, ids []string) (map[string]models.ProductMeta, error) {
	if len(ids) == 0 {
		return map[string]models.ProductMeta{}, nil
	}

	meta, err := r.cache.ProductMeta(ctx, ids)
	if err != nil {
		meta = map[string]models.ProductMeta{}
	}

	var missing []string
	for _, id := range ids {
		if _, ok := meta[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return meta, nil
	}

	fromStore, err := r.products.GetByIDs(ctx, missing)
	if err != nil {
		return meta, err
	}
	for id, p := range fromStore {
		meta[id] = p.Meta()
		if err := r.cache.SetProductMeta(ctx, p); err != nil {
			slog.Warn("cache repopulation failed", "error", err, "productId", id)
		}
	}
	return meta, nil
}

func recentTrailSet(trail []string, window int) map[string]bool {
	if len(trail) > window {
		trail = trail[:window]
	}
	set := make(map[string]bool, len(trail))
	for _, id := range trail {
		set[id] = true
	}
	return set
}
