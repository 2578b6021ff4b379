/*
 * @module internal/store/repo
 * @description Typed repository over the relational store: products,
 *   merchants, interactions and feature blobs. Plumbing only, no ranking
 *   logic.
 * @architecture Data access layer
 * @dependencies gorm.io/gorm
 */
package store

import (
	"context"
	"fmt"
	"sort"
	"time"

	"feedranker/internal/models"

	"gorm.io/gorm"
)

// ProductRepo is the typed product/merchant/category collaborator.
type ProductRepo struct {
	db *gorm.DB
}

func NewProductRepo(db *gorm.DB) *ProductRepo { return &ProductRepo{db: db} }

// GetByIDs bulk-fetches products by id, tolerating misses (returned map
// simply omits ids that don't exist).
func (r *ProductRepo) GetByIDs(ctx context.Context, ids []string) (map[string]models.Product, error) {
	if len(ids) == 0 {
		return map[string]models.Product{}, nil
	}

	var rows []Product
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("product lookup failed: %w", err)
	}

	out := make(map[string]models.Product, len(rows))
	for _, row := range rows {
		out[row.ID] = toDomainProduct(row)
	}
	return out, nil
}

// TopByPopularity returns up to limit products ordered by popularity desc,
// used for the ranker's popularity backfill and the aggregator's global
// top-K mirror.
func (r *ProductRepo) TopByPopularity(ctx context.Context, limit int) ([]models.Product, error) {
	var rows []Product
	if err := r.db.WithContext(ctx).Order("popularity DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("popularity query failed: %w", err)
	}
	return toDomainProducts(rows), nil
}

// TopByCategoryPopularity backs the category backfill candidate phase.
func (r *ProductRepo) TopByCategoryPopularity(ctx context.Context, categoryID string, limit int) ([]models.Product, error) {
	var rows []Product
	if err := r.db.WithContext(ctx).
		Where("category_id = ?", categoryID).
		Order("popularity DESC").
		Limit(limit).
		Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("category popularity query failed: %w", err)
	}
	return toDomainProducts(rows), nil
}

// TextMatch is a fuzzy search hit: the candidate product plus its
// normalized [0,1] similarity score.
type TextMatch struct {
	Product models.Product
	Score   float64
}

// FuzzySearch returns up to limit products ordered by
// max(similarity(title,q), similarity(description,q)), clamped to [0,1].
// On Postgres this binds q as a query parameter to pg_trgm's similarity()
// never string-interpolated, resolving the source's SQL-injection defect
// (spec §9, Open Question 1). Non-Postgres dialects (sqlite, in tests) fall
// back to an in-process trigram approximation over a bounded row scan.
func (r *ProductRepo) FuzzySearch(ctx context.Context, query string, limit int) ([]TextMatch, error) {
	if query == "" {
		return nil, nil
	}

	if r.db.Dialector.Name() == "postgres" {
		return r.fuzzySearchPostgres(ctx, query, limit)
	}
	return r.fuzzySearchFallback(ctx, query, limit)
}

func (r *ProductRepo) fuzzySearchPostgres(ctx context.Context, query string, limit int) ([]TextMatch, error) {
	type row struct {
		Product
		Score float64
	}

	var rows []row
	err := r.db.WithContext(ctx).Raw(`
		SELECT *, GREATEST(similarity(title, @q), similarity(description, @q)) AS score
		FROM products
		WHERE title % @q OR description % @q
		ORDER BY score DESC
		LIMIT @limit
	`, map[string]interface{}{"q": query, "limit": limit}).Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("fuzzy search failed: %w", err)
	}

	out := make([]TextMatch, 0, len(rows))
	for _, rr := range rows {
		out = append(out, TextMatch{Product: toDomainProduct(rr.Product), Score: clamp01(rr.Score)})
	}
	return out, nil
}

func (r *ProductRepo) fuzzySearchFallback(ctx context.Context, query string, limit int) ([]TextMatch, error) {
	var rows []Product
	// Bounded scan; a real non-Postgres deployment would maintain its own
	// text index, but the fallback only needs to serve tests.
	if err := r.db.WithContext(ctx).Limit(5000).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("fuzzy search fallback scan failed: %w", err)
	}

	matches := make([]TextMatch, 0, len(rows))
	for _, row := range rows {
		score := trigramSimilarity(row.Title, query)
		if s := trigramSimilarity(row.Description, query); s > score {
			score = s
		}
		if score <= 0 {
			continue
		}
		matches = append(matches, TextMatch{Product: toDomainProduct(row), Score: clamp01(score)})
	}

	sort.Slice(matches, func(i, j int) bool { return matches[i].Score > matches[j].Score })
	if len(matches) > limit {
		matches = matches[:limit]
	}
	return matches, nil
}

// UpdatePopularityBatch writes many products' popularity in one transaction
// (spec §9, Open Question 3), issuing one UPDATE per product inside it.
func (r *ProductRepo) UpdatePopularityBatch(ctx context.Context, popularity map[string]float64) error {
	if len(popularity) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, pop := range popularity {
			if err := tx.Model(&Product{}).Where("id = ?", id).Update("popularity", pop).Error; err != nil {
				return fmt.Errorf("popularity update failed for %s: %w", id, err)
			}
		}
		return nil
	})
}

// UpdateMerchantPopularityBatch is the merchant-level rollup counterpart.
func (r *ProductRepo) UpdateMerchantPopularityBatch(ctx context.Context, popularity map[string]float64) error {
	if len(popularity) == 0 {
		return nil
	}

	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for id, pop := range popularity {
			if err := tx.Model(&Merchant{}).Where("id = ?", id).
				Assign(Merchant{ID: id, Popularity: pop}).
				FirstOrCreate(&Merchant{}, "id = ?", id).Error; err != nil {
				return fmt.Errorf("merchant popularity update failed for %s: %w", id, err)
			}
		}
		return nil
	})
}

func toDomainProduct(row Product) models.Product {
	return models.Product{
		ID:          row.ID,
		Title:       row.Title,
		Description: row.Description,
		MerchantID:  row.MerchantID,
		CategoryID:  row.CategoryID,
		Popularity:  row.Popularity,
	}
}

func toDomainProducts(rows []Product) []models.Product {
	out := make([]models.Product, 0, len(rows))
	for _, row := range rows {
		out = append(out, toDomainProduct(row))
	}
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// InteractionRepo is the append-only interaction log collaborator.
type InteractionRepo struct {
	db *gorm.DB
}

func NewInteractionRepo(db *gorm.DB) *InteractionRepo { return &InteractionRepo{db: db} }

// Append writes one interaction row, weighted per models.InteractionWeight,
// per §4.3 step 3.
func (r *InteractionRepo) Append(ctx context.Context, userID, sessionID, productID string, kind models.InteractionType) error {
	row := Interaction{
		UserID:    userID,
		SessionID: sessionID,
		ProductID: productID,
		Type:      string(kind),
		Value:     models.InteractionWeight[kind],
	}
	if err := r.db.WithContext(ctx).Create(&row).Error; err != nil {
		return fmt.Errorf("interaction append failed: %w", err)
	}
	return nil
}

// ProductWeight is one row of an aggregated-by-product weight sum.
type ProductWeight struct {
	ProductID string
	Weight    float64
}

// AggregatePopularity groups interactions since `since` by product id and
// sums their type weights, returning the top `limit` rows by weight desc.
// This backs both the popularity aggregator (§4.4.1) and property test 7.
func (r *InteractionRepo) AggregatePopularity(ctx context.Context, since time.Time, limit int) ([]ProductWeight, error) {
	var rows []ProductWeight
	err := r.db.WithContext(ctx).Model(&Interaction{}).
		Select("product_id as product_id, SUM(value * ?) as weight", 1.0).
		Where("created_at >= ?", since).
		Group("product_id").
		Order("weight DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("popularity aggregation failed: %w", err)
	}
	return rows, nil
}

// AggregateMerchantPopularity rolls the same window up to merchant level by
// joining through products.
func (r *InteractionRepo) AggregateMerchantPopularity(ctx context.Context, since time.Time, limit int) ([]ProductWeight, error) {
	var rows []ProductWeight
	err := r.db.WithContext(ctx).Table("interactions").
		Select("products.merchant_id as product_id, SUM(interactions.value) as weight").
		Joins("JOIN products ON products.id = interactions.product_id").
		Where("interactions.created_at >= ?", since).
		Group("products.merchant_id").
		Order("weight DESC").
		Limit(limit).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("merchant popularity aggregation failed: %w", err)
	}
	return rows, nil
}

// TrainingTriple is one (user, product, summed weight) row for the CF
// trainer.
type TrainingTriple struct {
	UserKey   string
	ProductID string
	Weight    float64
}

// LoadTrainingTriples groups interactions since `since` by (user or "anon",
// product) and sums their weights, capped at maxRows.
func (r *InteractionRepo) LoadTrainingTriples(ctx context.Context, since time.Time, maxRows int) ([]TrainingTriple, error) {
	var rows []TrainingTriple
	err := r.db.WithContext(ctx).Model(&Interaction{}).
		Select("COALESCE(NULLIF(user_id, ''), 'anon') as user_key, product_id as product_id, SUM(value) as weight").
		Where("created_at >= ?", since).
		Group("user_key, product_id").
		Limit(maxRows).
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("training triple load failed: %w", err)
	}
	return rows, nil
}

// FeatureRepo persists latent-factor vectors under a namespace.
type FeatureRepo struct {
	db *gorm.DB
}

func NewFeatureRepo(db *gorm.DB) *FeatureRepo { return &FeatureRepo{db: db} }

// SaveVectors persists an entire namespace's vectors in one transaction,
// this is what makes a training run atomic from a downstream reader's
// perspective at the blob-store level (the top-K cache replacement is the
// separately-guaranteed atomic step, per §4.1).
func (r *FeatureRepo) SaveVectors(ctx context.Context, namespace string, vectors map[string][]float64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for key, vec := range vectors {
			blob := FeatureBlob{Key: key, Namespace: namespace, Value: JSONFloats(vec), UpdatedAt: time.Now()}
			if err := tx.Save(&blob).Error; err != nil {
				return fmt.Errorf("feature save failed for %s/%s: %w", namespace, key, err)
			}
		}
		return nil
	})
}

// LoadVectors loads every vector in a namespace.
func (r *FeatureRepo) LoadVectors(ctx context.Context, namespace string) (map[string][]float64, error) {
	var rows []FeatureBlob
	if err := r.db.WithContext(ctx).Where("namespace = ?", namespace).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("feature load failed for %s: %w", namespace, err)
	}

	out := make(map[string][]float64, len(rows))
	for _, row := range rows {
		out[row.Key] = []float64(row.Value)
	}
	return out, nil
}
