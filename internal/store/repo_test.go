package store

import (
	"context"
	"testing"
	"time"

	"feedranker/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: gormlogger.Default.LogMode(gormlogger.Silent)})
	require.NoError(t, err)
	require.NoError(t, AutoMigrate(db))
	return db
}

func TestProductRepoTopByPopularity(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&Product{ID: "p1", Title: "a", MerchantID: "m1", CategoryID: "c1", Popularity: 10}).Error)
	require.NoError(t, db.Create(&Product{ID: "p2", Title: "b", MerchantID: "m1", CategoryID: "c1", Popularity: 5}).Error)
	require.NoError(t, db.Create(&Product{ID: "p3", Title: "c", MerchantID: "m2", CategoryID: "c2", Popularity: 1}).Error)

	top, err := repo.TopByPopularity(ctx, 2)
	require.NoError(t, err)
	require.Len(t, top, 2)
	assert.Equal(t, "p1", top[0].ID)
	assert.Equal(t, "p2", top[1].ID)
}

func TestProductRepoFuzzySearchFallback(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&Product{ID: "p1", Title: "red shoe", Description: "", MerchantID: "m1", CategoryID: "c1"}).Error)
	require.NoError(t, db.Create(&Product{ID: "p2", Title: "blue shirt", Description: "", MerchantID: "m1", CategoryID: "c1"}).Error)
	require.NoError(t, db.Create(&Product{ID: "p3", Title: "red shirt", Description: "", MerchantID: "m2", CategoryID: "c2"}).Error)

	matches, err := repo.FuzzySearch(ctx, "red shirt", 10)
	require.NoError(t, err)
	require.NotEmpty(t, matches)
	assert.Equal(t, "p3", matches[0].Product.ID, "exact title match should score highest")
	for _, m := range matches {
		assert.GreaterOrEqual(t, m.Score, 0.0)
		assert.LessOrEqual(t, m.Score, 1.0)
	}
}

func TestProductRepoUpdatePopularityBatch(t *testing.T) {
	db := newTestDB(t)
	repo := NewProductRepo(db)
	ctx := context.Background()

	require.NoError(t, db.Create(&Product{ID: "p1", Title: "a", MerchantID: "m1", CategoryID: "c1"}).Error)
	require.NoError(t, db.Create(&Product{ID: "p2", Title: "b", MerchantID: "m1", CategoryID: "c1"}).Error)

	require.NoError(t, repo.UpdatePopularityBatch(ctx, map[string]float64{"p1": 42, "p2": 7}))

	byID, err := repo.GetByIDs(ctx, []string{"p1", "p2"})
	require.NoError(t, err)
	assert.Equal(t, 42.0, byID["p1"].Popularity)
	assert.Equal(t, 7.0, byID["p2"].Popularity)
}

func TestInteractionRepoAggregatePopularityMatchesWeightMap(t *testing.T) {
	db := newTestDB(t)
	interactions := NewInteractionRepo(db)
	ctx := context.Background()
	require.NoError(t, db.Create(&Product{ID: "p1", Title: "a", MerchantID: "m1", CategoryID: "c1"}).Error)

	rows := []Interaction{
		{ID: "i1", ProductID: "p1", Type: "VIEW", Value: 0.5, CreatedAt: time.Now()},
		{ID: "i2", ProductID: "p1", Type: "CLICK", Value: 1, CreatedAt: time.Now()},
		{ID: "i3", ProductID: "p1", Type: "CART", Value: 3, CreatedAt: time.Now()},
		{ID: "i4", ProductID: "p1", Type: "PURCHASE", Value: 8, CreatedAt: time.Now()},
	}
	for _, r := range rows {
		require.NoError(t, db.Create(&r).Error)
	}

	weights, err := interactions.AggregatePopularity(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, weights, 1)
	assert.InDelta(t, 0.5+1+3+8, weights[0].Weight, 1e-9)
}

func TestInteractionRepoAppendStoresWeightedValue(t *testing.T) {
	db := newTestDB(t)
	interactions := NewInteractionRepo(db)
	ctx := context.Background()
	require.NoError(t, db.Create(&Product{ID: "p1", Title: "a", MerchantID: "m1", CategoryID: "c1"}).Error)

	require.NoError(t, interactions.Append(ctx, "u1", "s1", "p1", models.InteractionCart))

	var row Interaction
	require.NoError(t, db.Where("product_id = ?", "p1").First(&row).Error)
	assert.Equal(t, "CART", row.Type)
	assert.Equal(t, 3.0, row.Value, "Append must store the type's weight, not a flat 1")
}

func TestFeatureRepoSaveAndLoadVectors(t *testing.T) {
	db := newTestDB(t)
	repo := NewFeatureRepo(db)
	ctx := context.Background()

	vectors := map[string][]float64{
		"u1": {0.1, 0.2, 0.3},
		"u2": {-0.1, -0.2, -0.3},
	}
	require.NoError(t, repo.SaveVectors(ctx, "user_factors", vectors))

	loaded, err := repo.LoadVectors(ctx, "user_factors")
	require.NoError(t, err)
	assert.Equal(t, vectors["u1"], loaded["u1"])
	assert.Equal(t, vectors["u2"], loaded["u2"])
}
