package ranker

import (
	"context"
	"math/rand"
	"testing"

	"feedranker/internal/bandit"
	"feedranker/internal/config"
	"feedranker/internal/models"
	"feedranker/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakeFeedCache struct {
	userTopK   map[string][]models.ScoredID
	globalTopK []models.ScoredID
	meta       map[string]models.ProductMeta
	trails     map[string][]string
}

func newFakeFeedCache() *fakeFeedCache {
	return &fakeFeedCache{
		userTopK: map[string][]models.ScoredID{},
		meta:     map[string]models.ProductMeta{},
		trails:   map[string][]string{},
	}
}

func (f *fakeFeedCache) UserTopK(ctx context.Context, userID string, limit int) ([]models.ScoredID, error) {
	return f.userTopK[userID], nil
}

func (f *fakeFeedCache) GlobalTopK(ctx context.Context, limit int) ([]models.ScoredID, error) {
	return f.globalTopK, nil
}

func (f *fakeFeedCache) ProductMeta(ctx context.Context, ids []string) (map[string]models.ProductMeta, error) {
	out := map[string]models.ProductMeta{}
	for _, id := range ids {
		if m, ok := f.meta[id]; ok {
			out[id] = m
		}
	}
	return out, nil
}

func (f *fakeFeedCache) SetProductMeta(ctx context.Context, p models.Product) error {
	f.meta[p.ID] = p.Meta()
	return nil
}

func (f *fakeFeedCache) SessionTrail(ctx context.Context, sessionID string) ([]string, error) {
	return f.trails[sessionID], nil
}

type fakePosteriorStore struct{}

func (fakePosteriorStore) IncrBanditOutcome(ctx context.Context, namespace, id string, success bool) error {
	return nil
}

func (fakePosteriorStore) BanditPosterior(ctx context.Context, namespace, id string) (float64, float64, error) {
	return 1, 1, nil
}

func newTestRanker(t *testing.T, c *fakeFeedCache, db *gorm.DB) *Ranker {
	t.Helper()
	products := store.NewProductRepo(db)
	sampler := bandit.NewSampler(fakePosteriorStore{}, rand.New(rand.NewSource(1)))
	return New(c, products, sampler, config.DefaultRankerWeights())
}

func newRankerDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))
	return db
}

// S1: anonymous feed, empty cache, popularity backfill from the store.
func TestGetFeedAnonymousPopularityBackfill(t *testing.T) {
	db := newRankerDB(t)
	require.NoError(t, db.Create(&store.Product{ID: "P1", Title: "a", MerchantID: "M1", CategoryID: "C1", Popularity: 10}).Error)
	require.NoError(t, db.Create(&store.Product{ID: "P2", Title: "b", MerchantID: "M2", CategoryID: "C1", Popularity: 5}).Error)
	require.NoError(t, db.Create(&store.Product{ID: "P3", Title: "c", MerchantID: "M3", CategoryID: "C1", Popularity: 1}).Error)

	c := newFakeFeedCache()
	c.globalTopK = []models.ScoredID{{ID: "P1", Score: 10}, {ID: "P2", Score: 5}, {ID: "P3", Score: 1}}

	r := newTestRanker(t, c, db)
	resp, err := r.GetFeed(context.Background(), models.FeedRequest{Limit: 3})
	require.NoError(t, err)

	require.Len(t, resp.Items, 3)
	assert.Equal(t, "P1", resp.Items[0].Product.ID)
	assert.Equal(t, "P2", resp.Items[1].Product.ID)
	assert.Equal(t, "P3", resp.Items[2].Product.ID)
	assert.Equal(t, "P3", resp.Cursor)
	for _, item := range resp.Items {
		assert.GreaterOrEqual(t, item.Score, 0.0)
	}
}

// S2: text search ranks the best textual match first.
func TestGetFeedTextSearchRanksBestMatchFirst(t *testing.T) {
	db := newRankerDB(t)
	require.NoError(t, db.Create(&store.Product{ID: "P1", Title: "red shoe", MerchantID: "M1", CategoryID: "C1"}).Error)
	require.NoError(t, db.Create(&store.Product{ID: "P2", Title: "blue shirt", MerchantID: "M2", CategoryID: "C1"}).Error)
	require.NoError(t, db.Create(&store.Product{ID: "P3", Title: "red shirt", MerchantID: "M3", CategoryID: "C1"}).Error)

	c := newFakeFeedCache()
	r := newTestRanker(t, c, db)

	resp, err := r.GetFeed(context.Background(), models.FeedRequest{SearchText: "red shirt", Limit: 10})
	require.NoError(t, err)
	require.NotEmpty(t, resp.Items)
	assert.Equal(t, "P3", resp.Items[0].Product.ID, "exact title match should rank first")
}

// S4: session affinity lifts a previously-seen product above an equally
// scored newcomer.
func TestGetFeedSessionAffinityBoostsRecentTrailItem(t *testing.T) {
	db := newRankerDB(t)
	require.NoError(t, db.Create(&store.Product{ID: "P7", Title: "a", MerchantID: "M1", CategoryID: "C1", Popularity: 5}).Error)
	require.NoError(t, db.Create(&store.Product{ID: "P5", Title: "b", MerchantID: "M2", CategoryID: "C1", Popularity: 5}).Error)
	require.NoError(t, db.Create(&store.Product{ID: "P4", Title: "c", MerchantID: "M3", CategoryID: "C1", Popularity: 5}).Error)

	c := newFakeFeedCache()
	c.globalTopK = []models.ScoredID{{ID: "P7", Score: 5}, {ID: "P5", Score: 5}, {ID: "P4", Score: 5}}
	c.trails["S"] = []string{"P7", "P4"}

	r := newTestRanker(t, c, db)
	resp, err := r.GetFeed(context.Background(), models.FeedRequest{SessionID: "S", Limit: 3})
	require.NoError(t, err)

	require.Len(t, resp.Items, 3)
	assert.Equal(t, "P7", resp.Items[0].Product.ID, "P7 is in the session trail and should outrank P5 at equal base")
}

// Invariant 3: empty search text contributes zero text weight to every
// score (every candidate's textScore defaults to 0 when unset).
func TestGetFeedEmptySearchTextContributesZero(t *testing.T) {
	db := newRankerDB(t)
	require.NoError(t, db.Create(&store.Product{ID: "P1", Title: "a", MerchantID: "M1", CategoryID: "C1", Popularity: 1}).Error)

	c := newFakeFeedCache()
	c.globalTopK = []models.ScoredID{{ID: "P1", Score: 1}}

	r := newTestRanker(t, c, db)
	resp, err := r.GetFeed(context.Background(), models.FeedRequest{Limit: 1})
	require.NoError(t, err)
	require.Len(t, resp.Items, 1)

	_, candidates := r.generateCandidates(context.Background(), models.FeedRequest{Limit: 1}, 1)
	require.Contains(t, candidates, "P1")
	assert.Equal(t, 0.0, candidates["P1"].textScore)

	wText := r.weights.TextAbsent
	assert.Equal(t, config.DefaultRankerWeights().TextAbsent, wText)
	assert.Equal(t, 0.0, wText*candidates["P1"].textScore)
}
