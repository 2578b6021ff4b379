/*
 * @module internal/bandit
 * @description Thompson sampling over per-merchant/per-category Beta
 *   posteriors (C2). The posteriors live in the feature cache (C1); this
 *   package only knows how to record outcomes and draw samples from them.
 * @architecture Ranking support - exploration
 * @dependencies math, math/rand
 */
package bandit

import (
	"context"
	"fmt"
	"math"
	"math/rand"
	"sync"
)

const (
	namespaceMerchant = "merchant"
	namespaceCategory = "category"

	// neutralScore is returned whenever the cache is unavailable: a
	// bandit draw must never block or bias ranking on a cache outage.
	neutralScore = 0.5
)

// PosteriorStore is the slice of the feature cache this sampler needs:
// incrementing and reading Beta posterior counters.
type PosteriorStore interface {
	IncrBanditOutcome(ctx context.Context, namespace, id string, success bool) error
	BanditPosterior(ctx context.Context, namespace, id string) (alpha, beta float64, err error)
}

// Sampler draws Thompson-sampling scores for merchants and categories.
// rng is shared across every concurrent GetFeed call, so access to it is
// guarded by rngMu: math/rand.Rand is not safe for concurrent use.
type Sampler struct {
	cache PosteriorStore
	rng   *rand.Rand
	rngMu sync.Mutex
}

func NewSampler(c PosteriorStore, rng *rand.Rand) *Sampler {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Sampler{cache: c, rng: rng}
}

// RecordMerchantOutcome records a success/failure observation for a
// merchant, nudging its posterior for future draws.
func (s *Sampler) RecordMerchantOutcome(ctx context.Context, merchantID string, success bool) error {
	if err := s.cache.IncrBanditOutcome(ctx, namespaceMerchant, merchantID, success); err != nil {
		return fmt.Errorf("recording merchant outcome: %w", err)
	}
	return nil
}

// RecordCategoryOutcome is the category-level counterpart.
func (s *Sampler) RecordCategoryOutcome(ctx context.Context, categoryID string, success bool) error {
	if err := s.cache.IncrBanditOutcome(ctx, namespaceCategory, categoryID, success); err != nil {
		return fmt.Errorf("recording category outcome: %w", err)
	}
	return nil
}

// SampleMerchant draws one Thompson sample for a merchant's Beta
// posterior. On any cache failure it falls back to the neutral 0.5 rather
// than propagating the error, per the degrade-gracefully contract.
func (s *Sampler) SampleMerchant(ctx context.Context, merchantID string) float64 {
	return s.sample(ctx, namespaceMerchant, merchantID)
}

// SampleCategory is the category-level counterpart.
func (s *Sampler) SampleCategory(ctx context.Context, categoryID string) float64 {
	return s.sample(ctx, namespaceCategory, categoryID)
}

func (s *Sampler) sample(ctx context.Context, namespace, id string) float64 {
	alpha, beta, err := s.cache.BanditPosterior(ctx, namespace, id)
	if err != nil {
		return neutralScore
	}
	return s.drawBeta(alpha, beta)
}

// drawBeta draws from Beta(alpha, beta) by normalizing two independent
// Gamma(shape, 1) draws: X/(X+Y) ~ Beta(alpha, beta). A double zero draw,
// or a result that lands exactly on 0 or 1, is resampled.
func (s *Sampler) drawBeta(alpha, beta float64) float64 {
	for {
		x := s.drawGamma(alpha)
		y := s.drawGamma(beta)
		if x+y == 0 {
			continue
		}
		v := x / (x + y)
		if v <= 0 || v >= 1 {
			continue
		}
		return v
	}
}

// drawGamma draws from Gamma(shape, 1) with the Marsaglia-Tsang method,
// for shape >= 1 as the posterior counters here always are.
func (s *Sampler) drawGamma(shape float64) float64 {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()

	d := shape - 1.0/3
	c := 1 / math.Sqrt(9*d)
	for {
		x := s.rng.NormFloat64()
		v := 1 + c*x
		if v <= 0 {
			continue
		}
		v = v * v * v
		u := s.rng.Float64()
		if u > 0 && math.Log(u) < 0.5*x*x+d-d*v+d*math.Log(v) {
			return d * v
		}
	}
}
