package model

import (
	"math"
	"time"
)

// ProductCategory 商品分类
type ProductCategory string

const (
	CategoryElectronics ProductCategory = "electronics"
	CategoryClothing    ProductCategory = "clothing"
	CategoryFood        ProductCategory = "food"
	CategoryBooks       ProductCategory = "books"
	CategoryToys        ProductCategory = "toys"
	CategoryOther       ProductCategory = "other"
)

// ValidProductCategory 分类是否属于封闭枚举
func ValidProductCategory(c ProductCategory) bool {
	switch c {
	case CategoryElectronics, CategoryClothing, CategoryFood,
		CategoryBooks, CategoryToys, CategoryOther:
		return true
	}
	return false
}

// ProductStatus 商品状态
type ProductStatus string

const (
	ProductStatusDraft        ProductStatus = "draft"
	ProductStatusActive       ProductStatus = "active"
	ProductStatusInactive     ProductStatus = "inactive"
	ProductStatusDiscontinued ProductStatus = "discontinued"
)

// ValidProductStatus 状态是否属于封闭枚举
func ValidProductStatus(s ProductStatus) bool {
	switch s {
	case ProductStatusDraft, ProductStatusActive,
		ProductStatusInactive, ProductStatusDiscontinued:
		return true
	}
	return false
}

// Product 商品
//
// CreatedBy 是指向 User 的弱引用：创建者被物理删除时置 NULL，不做级联。
// 商品本身直接物理删除，没有软删除。
type Product struct {
	ID              string          `json:"id" db:"id"`
	Name            string          `json:"name" db:"name"`
	Description     *string         `json:"description,omitempty" db:"description"`
	Price           float64         `json:"price" db:"price"` // 两位小数定点
	Stock           int             `json:"stock" db:"stock"`
	SKU             *string         `json:"sku,omitempty" db:"sku"`
	Category        ProductCategory `json:"category" db:"category"`
	Status          ProductStatus   `json:"status" db:"status"`
	Featured        bool            `json:"featured" db:"featured"`
	DiscountPercent *float64        `json:"discount_percent,omitempty" db:"discount_percent"`
	CreatedBy       *string         `json:"created_by,omitempty" db:"created_by"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`

	// 派生字段（不入库，序列化时计算）
	DiscountedPrice float64 `json:"discounted_price" db:"-"`
	InStock         bool    `json:"in_stock" db:"-"`
}

// Round2 四舍五入到两位小数（价格定点约定）
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// ComputeDiscountedPrice 折后价 = price × (1 − discount/100)，无折扣时等于原价
func (p *Product) ComputeDiscountedPrice() float64 {
	if p.DiscountPercent != nil && *p.DiscountPercent > 0 {
		return Round2(p.Price * (1 - *p.DiscountPercent/100))
	}
	return p.Price
}

// ComputeInStock 有货 = 库存大于 0 且状态为 active
func (p *Product) ComputeInStock() bool {
	return p.Stock > 0 && p.Status == ProductStatusActive
}

// Derive 填充派生字段，写入 JSON 响应前调用
func (p *Product) Derive() *Product {
	p.DiscountedPrice = p.ComputeDiscountedPrice()
	p.InStock = p.ComputeInStock()
	return p
}

// ProductStats 商品统计（GET /products/admin/stats）
type ProductStats struct {
	Total          int                     `json:"total"`
	ByStatus       map[ProductStatus]int   `json:"by_status"`
	ByCategory     map[ProductCategory]int `json:"by_category"`
	Featured       int                     `json:"featured"`
	OutOfStock     int                     `json:"out_of_stock"`
	InventoryValue float64                 `json:"inventory_value"` // Σ price × stock
}
