/*
 * @module internal/ranker/diversity
 * @description Diversity re-ranker (§4.5.1): reorders a score-sorted list
 *   under merchant/category quota and consecutive-run constraints, relaxing
 *   them only when no candidate in the remaining pool satisfies all three.
 * @architecture Ranking support - deterministic reordering
 */
package ranker

import (
	"math"

	"feedranker/internal/models"
)

// DiversityPolicy bounds merchant/category repetition in a ranked output.
type DiversityPolicy struct {
	MaxConsecutive   int
	MaxMerchantRatio float64
	MaxCategoryRatio float64
}

func DefaultDiversityPolicy() DiversityPolicy {
	return DiversityPolicy{
		MaxConsecutive:   1,
		MaxMerchantRatio: 0.25,
		MaxCategoryRatio: 0.40,
	}
}

// Diversify reorders a score-sorted list per §4.5.1's greedy
// scan-and-relax algorithm. Deterministic given the input order.
func Diversify(items []models.ScoredItem, policy DiversityPolicy) []models.ScoredItem {
	n := len(items)
	if n == 0 {
		return items
	}

	mMax := ceilRatio(n, policy.MaxMerchantRatio)
	cMax := ceilRatio(n, policy.MaxCategoryRatio)

	pool := make([]models.ScoredItem, len(items))
	copy(pool, items)

	out := make([]models.ScoredItem, 0, n)
	merchantCount := make(map[string]int)
	categoryCount := make(map[string]int)
	tailMerchant := ""
	tailRun := 0

	for len(pool) > 0 {
		idx := -1
		for i, item := range pool {
			merchantID := item.Product.MerchantID
			categoryID := item.Product.CategoryID

			if merchantCount[merchantID] >= mMax {
				continue
			}
			if categoryCount[categoryID] >= cMax {
				continue
			}
			if merchantID == tailMerchant && tailRun >= policy.MaxConsecutive {
				continue
			}
			idx = i
			break
		}

		if idx == -1 {
			idx = 0 // relax: take the pool head unconditionally
		}

		chosen := pool[idx]
		pool = append(pool[:idx], pool[idx+1:]...)

		out = append(out, chosen)
		merchantCount[chosen.Product.MerchantID]++
		categoryCount[chosen.Product.CategoryID]++

		if chosen.Product.MerchantID == tailMerchant {
			tailRun++
		} else {
			tailMerchant = chosen.Product.MerchantID
			tailRun = 1
		}
	}

	return out
}

func ceilRatio(n int, ratio float64) int {
	v := int(math.Ceil(float64(n) * ratio))
	if v < 1 {
		v = 1
	}
	return v
}
