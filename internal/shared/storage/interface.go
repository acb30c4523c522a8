// Package storage 定义持久化存储层抽象接口
//
// 设计原则：依赖倒置 (DIP)
//   - 调用方只依赖接口，不知道具体实现
//   - SQL 实现在 repository/ 子包，驱动在 driver/ 子包
//   - 初始化时通过依赖注入传入实现
package storage

import (
	"context"

	"catalog-admin/internal/shared/model"
)

// ProductFilter 商品列表查询过滤条件
//
// 所有条件均可选，组合时按逻辑 AND 连接。
// SortBy 会在查询构建时校验白名单，非法值静默回退 created_at。
type ProductFilter struct {
	Search    string                // 名称/描述子串（大小写不敏感）
	Category  model.ProductCategory // 精确匹配
	Status    model.ProductStatus   // 精确匹配
	MinPrice  *float64              // 闭区间下界
	MaxPrice  *float64              // 闭区间上界
	Featured  *bool                 // 精选标记
	InStock   bool                  // true 时附加 stock > 0 AND status = 'active'
	SortBy    string                // 白名单：name/price/created_at/updated_at/stock
	SortOrder string                // "ASC" 或回退 "DESC"
	Page      int                   // 1 起始
	Limit     int                   // 调用方保证 1–100
}

// Offset 计算 SQL 偏移
func (f ProductFilter) Offset() int {
	page := f.Page
	if page < 1 {
		page = 1
	}
	return (page - 1) * f.Limit
}

// ProductPatch 商品部分更新（nil 字段不修改）
type ProductPatch struct {
	Name            *string
	Description     *string
	Price           *float64
	SKU             *string
	Category        *model.ProductCategory
	Status          *model.ProductStatus
	Featured        *bool
	DiscountPercent *float64
}

// UserPatch 用户部分更新（nil 字段不修改）
type UserPatch struct {
	Email     *string
	FirstName *string
	LastName  *string
	Phone     *string
	Active    *bool
	Role      *model.UserRole
}

// UserStore 用户持久化接口
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByID(ctx context.Context, id string) (*model.User, error)
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	ListUsers(ctx context.Context, includeInactive bool) ([]*model.User, error)
	UpdateUser(ctx context.Context, id string, patch UserPatch) (*model.User, error)
	UpdateUserPassword(ctx context.Context, id, passwordHash string) error
	DeactivateUser(ctx context.Context, id string) error
	DeleteUser(ctx context.Context, id string) error
	GetUserStats(ctx context.Context, id string) (*model.UserStats, error)
}

// ProductStore 商品持久化接口
type ProductStore interface {
	CreateProduct(ctx context.Context, p *model.Product) error
	GetProductByID(ctx context.Context, id string) (*model.Product, error)
	ListProducts(ctx context.Context, filter ProductFilter) ([]*model.Product, int, error)
	UpdateProduct(ctx context.Context, id string, patch ProductPatch) (*model.Product, error)
	DeleteProduct(ctx context.Context, id string) error
	// AdjustStock 以单条条件 UPDATE 扣减/补充库存，
	// stock + delta < 0 时返回 ErrInsufficientStock，不改变原值
	AdjustStock(ctx context.Context, id string, delta int) (*model.Product, error)
	GetProductStats(ctx context.Context) (*model.ProductStats, error)
	ListLowStock(ctx context.Context, threshold int) ([]*model.Product, error)
	BulkUpdateStatus(ctx context.Context, ids []string, status model.ProductStatus) (int, error)
}

// PersistentStore 完整持久化存储接口
type PersistentStore interface {
	UserStore
	ProductStore
	Close() error
}
