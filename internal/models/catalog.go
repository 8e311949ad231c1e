package models

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// DefaultUnit is the unit assigned when a row does not name one
const DefaultUnit = "عدد"

// Column widths shared by products and row errors
const (
	MaxSKULength         = 100
	MaxProductNameLength = 500
)

// SKUDigest is a short stable fingerprint of a SKU. It is appended to product
// slugs whose readable part could be shared by another SKU.
func SKUDigest(sku string) string {
	sum := sha256.Sum256([]byte(sku))
	return hex.EncodeToString(sum[:4])
}

// Category is a node of the two-level catalog tree
type Category struct {
	ID        uuid.UUID  `gorm:"type:uuid;primaryKey" json:"id"`
	Name      string     `gorm:"type:varchar(100);not null;uniqueIndex" json:"name"`
	Slug      string     `gorm:"type:varchar(255);not null;index" json:"slug"`
	ParentID  *uuid.UUID `gorm:"type:uuid;index" json:"parentId,omitempty"`
	IsActive  bool       `gorm:"not null;default:true" json:"isActive"`
	CreatedAt time.Time  `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt time.Time  `gorm:"autoUpdateTime" json:"updatedAt"`

	Parent *Category `gorm:"foreignKey:ParentID" json:"parent,omitempty"`
}

// TableName returns the table name for Category
func (Category) TableName() string {
	return "categories"
}

func (c *Category) BeforeCreate(tx *gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}

// Product is a catalog item keyed by SKU
type Product struct {
	ID            uuid.UUID        `gorm:"type:uuid;primaryKey" json:"id"`
	SKU           string           `gorm:"type:varchar(100);not null;uniqueIndex" json:"sku"`
	Name          string           `gorm:"type:varchar(500);not null" json:"name"`
	Slug          string           `gorm:"type:varchar(620);not null;uniqueIndex" json:"slug"`
	Description   *string          `gorm:"type:text" json:"description,omitempty"`
	Price         decimal.Decimal  `gorm:"type:decimal(12,0);not null;default:0" json:"price"`
	SalePrice     *decimal.Decimal `gorm:"type:decimal(12,0)" json:"salePrice,omitempty"`
	StockQuantity int              `gorm:"not null;default:0" json:"stockQuantity"`
	Unit          string           `gorm:"type:varchar(50);not null;default:'عدد'" json:"unit"`
	CategoryID    *uuid.UUID       `gorm:"type:uuid;index" json:"categoryId,omitempty"`
	IsActive      bool             `gorm:"not null;default:true" json:"isActive"`
	CreatedAt     time.Time        `gorm:"autoCreateTime" json:"createdAt"`
	UpdatedAt     time.Time        `gorm:"autoUpdateTime" json:"updatedAt"`

	Category *Category `gorm:"foreignKey:CategoryID" json:"category,omitempty"`
}

// TableName returns the table name for Product
func (Product) TableName() string {
	return "products"
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}
