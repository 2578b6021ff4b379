/*
 * @module internal/store/models
 * @description GORM row models for the relational store: Product, Merchant,
 *   Category, Interaction and FeatureBlob, matching the logical schema of
 *   spec §6.
 * @architecture Data model layer
 * @dependencies gorm.io/gorm, github.com/google/uuid, time
 */
package store

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Product is the catalog row. Populated externally by catalog ingestion;
// read-mostly here.
type Product struct {
	ID          string  `gorm:"type:varchar(64);primaryKey" json:"id"`
	Title       string  `gorm:"type:text;not null" json:"title"`
	Description string  `gorm:"type:text" json:"description"`
	MerchantID  string  `gorm:"type:varchar(64);index;not null" json:"merchantId"`
	CategoryID  string  `gorm:"type:varchar(64);index;not null" json:"categoryId"`
	Popularity  float64 `gorm:"not null;default:0" json:"popularity"`
}

func (Product) TableName() string { return "products" }

// Merchant carries the merchant-level popularity rollup. The merchant's
// bandit posterior lives in the cache (C1), not here.
type Merchant struct {
	ID         string  `gorm:"type:varchar(64);primaryKey" json:"id"`
	Popularity float64 `gorm:"not null;default:0" json:"popularity"`
}

func (Merchant) TableName() string { return "merchants" }

// Category is an opaque grouping id; it carries no attributes of its own
// beyond identity.
type Category struct {
	ID string `gorm:"type:varchar(64);primaryKey" json:"id"`
}

func (Category) TableName() string { return "categories" }

// Interaction is an append-only interaction row.
type Interaction struct {
	ID        string    `gorm:"type:uuid;primaryKey" json:"id"`
	UserID    string    `gorm:"type:varchar(64);index" json:"userId,omitempty"`
	SessionID string    `gorm:"type:varchar(64);index" json:"sessionId"`
	ProductID string    `gorm:"type:varchar(64);index;not null" json:"productId"`
	Type      string    `gorm:"type:varchar(16);not null" json:"type"`
	Value     float64   `gorm:"not null;default:1" json:"value"`
	CreatedAt time.Time `gorm:"index;not null" json:"createdAt"`
}

func (Interaction) TableName() string { return "interactions" }

// BeforeCreate assigns a random id when the caller left it blank.
func (i *Interaction) BeforeCreate(tx *gorm.DB) error {
	if i.ID == "" {
		i.ID = uuid.New().String()
	}
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now()
	}
	return nil
}

// FeatureBlob is a persisted latent-factor vector, keyed by namespace
// ("user_factors" / "product_factors") and entity id. Value is a JSON
// array of reals, per spec §6.
type FeatureBlob struct {
	Key       string    `gorm:"type:varchar(64);primaryKey" json:"key"`
	Namespace string    `gorm:"type:varchar(32);primaryKey" json:"namespace"`
	Value     JSONFloats `gorm:"type:jsonb;not null" json:"value"`
	UpdatedAt time.Time `json:"updatedAt"`
}

func (FeatureBlob) TableName() string { return "feature_store" }
