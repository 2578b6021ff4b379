package workers

import (
	"context"
	"testing"
	"time"

	"feedranker/internal/models"
	"feedranker/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type fakePopularityCache struct {
	globalTopK []models.ScoredID
	meta       map[string]models.Product
}

func newFakePopularityCache() *fakePopularityCache {
	return &fakePopularityCache{meta: map[string]models.Product{}}
}

func (f *fakePopularityCache) ReplaceGlobalTopK(ctx context.Context, scored []models.ScoredID) error {
	f.globalTopK = scored
	return nil
}

func (f *fakePopularityCache) SetProductMeta(ctx context.Context, p models.Product) error {
	f.meta[p.ID] = p
	return nil
}

func TestPopularityAggregatorMatchesWeightMapAndMirrorsCache(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, store.AutoMigrate(db))

	require.NoError(t, db.Create(&store.Product{ID: "p1", Title: "shoe", MerchantID: "m1", CategoryID: "c1"}).Error)
	require.NoError(t, db.Create(&store.Product{ID: "p2", Title: "shirt", MerchantID: "m1", CategoryID: "c1"}).Error)

	now := time.Now()
	rows := []store.Interaction{
		{ID: "i1", ProductID: "p1", Type: "VIEW", Value: 0.5, CreatedAt: now},
		{ID: "i2", ProductID: "p1", Type: "CLICK", Value: 1, CreatedAt: now},
		{ID: "i3", ProductID: "p2", Type: "CART", Value: 3, CreatedAt: now},
	}
	for _, r := range rows {
		require.NoError(t, db.Create(&r).Error)
	}

	interactions := store.NewInteractionRepo(db)
	products := store.NewProductRepo(db)
	cache := newFakePopularityCache()

	agg := NewPopularityAggregator(interactions, products, cache)
	require.NoError(t, agg.Run(context.Background()))

	byID, err := products.GetByIDs(context.Background(), []string{"p1", "p2"})
	require.NoError(t, err)
	assert.InDelta(t, 1.5, byID["p1"].Popularity, 1e-9)
	assert.InDelta(t, 3.0, byID["p2"].Popularity, 1e-9)

	assert.Len(t, cache.globalTopK, 2)
	assert.Len(t, cache.meta, 2)
	assert.InDelta(t, 1.5, cache.meta["p1"].Popularity, 1e-9)
}
