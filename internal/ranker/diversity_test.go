package ranker

import (
	"testing"

	"feedranker/internal/models"
)

func item(id, merchant, category string, score float64) models.ScoredItem {
	return models.ScoredItem{
		Score: score,
		Product: models.Product{ID: id, MerchantID: merchant, CategoryID: category},
	}
}

func TestDiversifySingleMerchantPoolRelaxesInOriginalOrder(t *testing.T) {
	items := []models.ScoredItem{
		item("p1", "M", "C", 10), item("p2", "M", "C", 9), item("p3", "M", "C", 8),
		item("p4", "M", "C", 7), item("p5", "M", "C", 6), item("p6", "M", "C", 5),
		item("p7", "M", "C", 4), item("p8", "M", "C", 3), item("p9", "M", "C", 2),
		item("p10", "M", "C", 1),
	}

	out := Diversify(items, DefaultDiversityPolicy())
	if len(out) != len(items) {
		t.Fatalf("expected all %d items preserved, got %d", len(items), len(out))
	}

	// Single-merchant pool: quotas cannot be satisfied, so relaxation must
	// kick in and the remaining items append in original order.
	merchantCounts := map[string]int{}
	for _, it := range out {
		merchantCounts[it.Product.MerchantID]++
	}
	if merchantCounts["M"] != 10 {
		t.Fatalf("expected all 10 items from merchant M, got %d", merchantCounts["M"])
	}
	for i := range items {
		if out[i].Product.ID != items[i].Product.ID {
			t.Errorf("position %d: got %s, want %s (original order)", i, out[i].Product.ID, items[i].Product.ID)
		}
	}
}

func TestDiversifyEnforcesRatioWithMultipleMerchants(t *testing.T) {
	var items []models.ScoredItem
	for i := 0; i < 10; i++ {
		items = append(items, item(idFor(i), "M1", "C1", float64(20-i)))
	}
	for i := 0; i < 10; i++ {
		items = append(items, item(idFor(i+10), "M2", "C2", float64(10-i)))
	}

	out := Diversify(items, DefaultDiversityPolicy())
	if len(out) != 20 {
		t.Fatalf("expected 20 items, got %d", len(out))
	}

	// The merchant quota is ceil(20*0.25)=5, so the first 10 picks (made
	// before relaxation is forced) hold at most 5 items from M1, with M2
	// items interleaved.
	m1First10 := 0
	for _, it := range out[:10] {
		if it.Product.MerchantID == "M1" {
			m1First10++
		}
	}
	if m1First10 > 5 {
		t.Errorf("expected at most 5 M1 items in the first 10, got %d/10", m1First10)
	}
}

func TestDiversifyNoConsecutiveRunsBeyondMax(t *testing.T) {
	items := []models.ScoredItem{
		item("p1", "A", "C", 10), item("p2", "A", "C", 9),
		item("p3", "B", "C", 8), item("p4", "B", "C", 7),
	}

	out := Diversify(items, DefaultDiversityPolicy())
	for i := 1; i < len(out); i++ {
		if out[i].Product.MerchantID == out[i-1].Product.MerchantID {
			// relaxation does trigger here (merchant quota 1, category
			// quota 2), but the pool head it takes alternates A and B
			t.Errorf("consecutive same-merchant items at %d,%d: %s", i-1, i, out[i].Product.MerchantID)
		}
	}
}

func idFor(i int) string {
	return string(rune('a'+i%26)) + string(rune('0'+i/26))
}
