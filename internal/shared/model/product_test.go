package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidProductCategory(t *testing.T) {
	assert.True(t, ValidProductCategory(CategoryElectronics))
	assert.True(t, ValidProductCategory(CategoryOther))
	assert.False(t, ValidProductCategory("gadgets"))
	assert.False(t, ValidProductCategory(""))
}

func TestValidProductStatus(t *testing.T) {
	assert.True(t, ValidProductStatus(ProductStatusDraft))
	assert.True(t, ValidProductStatus(ProductStatusDiscontinued))
	assert.False(t, ValidProductStatus("archived"))
	assert.False(t, ValidProductStatus(""))
}

func TestRound2(t *testing.T) {
	assert.Equal(t, 10.56, Round2(10.555))
	assert.Equal(t, 10.55, Round2(10.554))
	assert.Equal(t, 0.0, Round2(0))
	assert.Equal(t, 75.0, Round2(75.0000001))
}

func TestComputeDiscountedPrice(t *testing.T) {
	tests := []struct {
		name     string
		price    float64
		discount *float64
		want     float64
	}{
		{"无折扣", 100, nil, 100},
		{"零折扣等于原价", 100, f64(0), 100},
		{"25%折扣", 100, f64(25), 75},
		{"折后价四舍五入", 99.99, f64(10), 89.99},
		{"100%折扣", 49.9, f64(100), 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{Price: tt.price, DiscountPercent: tt.discount}
			assert.Equal(t, tt.want, p.ComputeDiscountedPrice())
		})
	}
}

func TestComputeInStock(t *testing.T) {
	tests := []struct {
		name   string
		stock  int
		status ProductStatus
		want   bool
	}{
		{"有库存且active", 5, ProductStatusActive, true},
		{"有库存但draft", 5, ProductStatusDraft, false},
		{"有库存但inactive", 5, ProductStatusInactive, false},
		{"零库存active", 0, ProductStatusActive, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{Stock: tt.stock, Status: tt.status}
			assert.Equal(t, tt.want, p.ComputeInStock())
		})
	}
}

func TestDerive(t *testing.T) {
	p := &Product{Price: 200, Stock: 3, Status: ProductStatusActive, DiscountPercent: f64(50)}
	p.Derive()
	assert.Equal(t, 100.0, p.DiscountedPrice)
	assert.True(t, p.InStock)
}

func f64(v float64) *float64 { return &v }
