package bandit

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"testing"
)

// erroringPosteriorStore always fails, simulating a cache outage.
type erroringPosteriorStore struct{}

func (erroringPosteriorStore) IncrBanditOutcome(ctx context.Context, namespace, id string, success bool) error {
	return errors.New("cache unavailable")
}

func (erroringPosteriorStore) BanditPosterior(ctx context.Context, namespace, id string) (float64, float64, error) {
	return 0, 0, errors.New("cache unavailable")
}

func TestDrawBetaMeanApproximatesAlphaOverAlphaPlusBeta(t *testing.T) {
	s := &Sampler{rng: rand.New(rand.NewSource(42))}

	cases := []struct {
		name        string
		alpha, beta float64
	}{
		{"uniform prior", 1, 1},
		{"strong success", 50, 2},
		{"strong failure", 2, 50},
		{"balanced", 10, 10},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			const draws = 20000
			sum := 0.0
			for i := 0; i < draws; i++ {
				v := s.drawBeta(tc.alpha, tc.beta)
				if v <= 0 || v >= 1 {
					t.Fatalf("draw out of open interval (0,1): %v", v)
				}
				sum += v
			}
			mean := sum / draws
			want := tc.alpha / (tc.alpha + tc.beta)
			if math.Abs(mean-want) > 0.02 {
				t.Errorf("mean=%.4f want~%.4f (alpha=%v beta=%v)", mean, want, tc.alpha, tc.beta)
			}
		})
	}
}

func TestSampleFallsBackToNeutralOnCacheFailure(t *testing.T) {
	s := NewSampler(erroringPosteriorStore{}, rand.New(rand.NewSource(1)))

	got := s.SampleMerchant(context.Background(), "m1")
	if got != neutralScore {
		t.Fatalf("SampleMerchant on cache failure = %v, want neutral %v", got, neutralScore)
	}

	got = s.SampleCategory(context.Background(), "c1")
	if got != neutralScore {
		t.Fatalf("SampleCategory on cache failure = %v, want neutral %v", got, neutralScore)
	}
}
