/*
 * @module internal/workers/cf_trainer
 * @description CF trainer (C4, §4.4.2): implicit-feedback SGD over
 *   (user,product) interaction weights, persisting latent factors and each
 *   user's top-K cache projection. Deterministic given a fixed seed and
 *   input order, per §8 invariant 6.
 * @architecture Batch worker - offline model training
 * @dependencies feedranker/internal/store, feedranker/internal/cache, math/rand
 */
package workers

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"time"

	"feedranker/internal/models"
	"feedranker/internal/store"
)

const (
	trainingWindow  = 90 * 24 * time.Hour
	trainingMaxRows = 1_000_000

	namespaceUserFactors    = "user_factors"
	namespaceProductFactors = "product_factors"

	initNoiseRange = 0.005
)

// TrainerConfig bundles the SGD hyperparameters, defaulted to spec §4.4.2.
type TrainerConfig struct {
	LatentDim    int
	Epochs       int
	LearningRate float64
	L2Reg        float64
	TopK         int
	Seed         int64
}

func DefaultTrainerConfig(latentDim int) TrainerConfig {
	return TrainerConfig{
		LatentDim:    latentDim,
		Epochs:       3,
		LearningRate: 0.025,
		L2Reg:        0.01,
		TopK:         200,
		Seed:         42,
	}
}

// TopKCache is the slice of the feature cache the trainer writes.
type TopKCache interface {
	ReplaceUserTopK(ctx context.Context, userID string, scored []models.ScoredID) error
}

// CFTrainer computes and persists latent factors and per-user top-K lists.
type CFTrainer struct {
	interactions *store.InteractionRepo
	features     *store.FeatureRepo
	cache        TopKCache
	cfg          TrainerConfig
	now          func() time.Time
}

func NewCFTrainer(interactions *store.InteractionRepo, features *store.FeatureRepo, c TopKCache, cfg TrainerConfig) *CFTrainer {
	return &CFTrainer{interactions: interactions, features: features, cache: c, cfg: cfg, now: time.Now}
}

// Run loads the training window, fits latent factors by SGD, persists them,
// and replaces every trained user's top-K cache entry.
func (t *CFTrainer) Run(ctx context.Context) error {
	since := t.now().Add(-trainingWindow)

	triples, err := t.interactions.LoadTrainingTriples(ctx, since, trainingMaxRows)
	if err != nil {
		return fmt.Errorf("loading training triples: %w", err)
	}
	if len(triples) == 0 {
		return nil
	}

	// Sort for determinism: map iteration order is not stable, and the
	// spec requires bitwise-identical output given a fixed seed and input
	// order.
	sort.Slice(triples, func(i, j int) bool {
		if triples[i].UserKey != triples[j].UserKey {
			return triples[i].UserKey < triples[j].UserKey
		}
		return triples[i].ProductID < triples[j].ProductID
	})

	users, products := t.initVectors(triples)

	for epoch := 0; epoch < t.cfg.Epochs; epoch++ {
		for _, tr := range triples {
			u := users[tr.UserKey]
			p := products[tr.ProductID]
			t.sgdStep(u, p, tr.Weight)
		}
	}

	if err := t.features.SaveVectors(ctx, namespaceUserFactors, users); err != nil {
		return fmt.Errorf("saving user factors: %w", err)
	}
	if err := t.features.SaveVectors(ctx, namespaceProductFactors, products); err != nil {
		return fmt.Errorf("saving product factors: %w", err)
	}

	if err := t.replaceTopKPerUser(ctx, users, products); err != nil {
		return fmt.Errorf("replacing per-user top-k: %w", err)
	}
	return nil
}

// initVectors assigns each distinct user/product a fresh vector with
// uniform noise in [-initNoiseRange, initNoiseRange], drawn from a
// seeded RNG walked in sorted key order so the result is reproducible.
func (t *CFTrainer) initVectors(triples []store.TrainingTriple) (users, products map[string][]float64) {
	userKeys := make(map[string]bool)
	productKeys := make(map[string]bool)
	for _, tr := range triples {
		userKeys[tr.UserKey] = true
		productKeys[tr.ProductID] = true
	}

	rng := rand.New(rand.NewSource(t.cfg.Seed))

	users = make(map[string][]float64, len(userKeys))
	for _, k := range sortedKeys(userKeys) {
		users[k] = t.randomVector(rng)
	}

	products = make(map[string][]float64, len(productKeys))
	for _, k := range sortedKeys(productKeys) {
		products[k] = t.randomVector(rng)
	}

	return users, products
}

func (t *CFTrainer) randomVector(rng *rand.Rand) []float64 {
	v := make([]float64, t.cfg.LatentDim)
	for i := range v {
		v[i] = (rng.Float64()*2 - 1) * initNoiseRange
	}
	return v
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// sgdStep applies one implicit-feedback update to u and p in place.
func (t *CFTrainer) sgdStep(u, p []float64, weight float64) {
	pred := dot(u, p)
	residual := weight - pred

	eta := t.cfg.LearningRate
	lambda := t.cfg.L2Reg

	for i := range u {
		ui, pi := u[i], p[i]
		u[i] = ui + eta*(residual*pi-lambda*ui)
		p[i] = pi + eta*(residual*ui-lambda*pi)
	}
}

func dot(a, b []float64) float64 {
	sum := 0.0
	for i := range a {
		sum += a[i] * b[i]
	}
	return sum
}

// replaceTopKPerUser scores every trained user against every trained
// product and atomically replaces that user's cached top-K. Iterates users
// in sorted order so a fixed seed produces identical cache writes.
func (t *CFTrainer) replaceTopKPerUser(ctx context.Context, users, products map[string][]float64) error {
	productIDs := sortedKeys(mapBoolFromVectors(products))

	for _, userKey := range sortedKeys(mapBoolFromVectors(users)) {
		uv := users[userKey]

		scored := make([]models.ScoredID, 0, len(productIDs))
		for _, pid := range productIDs {
			scored = append(scored, models.ScoredID{ID: pid, Score: dot(uv, products[pid])})
		}

		sort.Slice(scored, func(i, j int) bool {
			if scored[i].Score != scored[j].Score {
				return scored[i].Score > scored[j].Score
			}
			return scored[i].ID < scored[j].ID
		})

		if len(scored) > t.cfg.TopK {
			scored = scored[:t.cfg.TopK]
		}

		if userKey == "anon" {
			continue
		}
		if err := t.cache.ReplaceUserTopK(ctx, userKey, scored); err != nil {
			return err
		}
	}
	return nil
}

func mapBoolFromVectors(m map[string][]float64) map[string]bool {
	out := make(map[string]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}
