package repository

import (
	"context"
	"database/sql"
	"strconv"
	"strings"
	"time"

	"catalog-admin/internal/shared/model"
	"catalog-admin/internal/shared/storage"
)

const productColumns = `id, name, description, price, stock, sku, category, status,
	featured, discount_percent, created_by, created_at, updated_at`

// sortColumns 排序字段白名单
// 白名单校验阻止任意字段名拼接进 ORDER BY；
// 接口层的驼峰参数在这里一并映射到列名
var sortColumns = map[string]string{
	"name":       "name",
	"price":      "price",
	"stock":      "stock",
	"createdAt":  "created_at",
	"created_at": "created_at",
	"updatedAt":  "updated_at",
	"updated_at": "updated_at",
}

func scanProduct(row interface{ Scan(...interface{}) error }) (*model.Product, error) {
	p := &model.Product{}
	err := row.Scan(&p.ID, &p.Name, &p.Description, &p.Price, &p.Stock,
		&p.SKU, &p.Category, &p.Status, &p.Featured, &p.DiscountPercent,
		&p.CreatedBy, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return p, nil
}

// CreateProduct 创建商品
// SKU 唯一性由数据库唯一索引保证，冲突转换为 ErrDuplicate
func (s *Store) CreateProduct(ctx context.Context, p *model.Product) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO products (`+productColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`),
		p.ID, p.Name, p.Description, p.Price, p.Stock, p.SKU, p.Category,
		p.Status, p.Featured, p.DiscountPercent, p.CreatedBy, p.CreatedAt, p.UpdatedAt,
	)
	return s.translateErr(err)
}

// GetProductByID 通过 ID 查找商品
// 不存在时返回 (nil, nil)
func (s *Store) GetProductByID(ctx context.Context, id string) (*model.Product, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+productColumns+` FROM products WHERE id = $1`), id)
	p, err := scanProduct(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return p, err
}

// ListProducts 动态过滤 + 排序 + 分页查询
//
// 所有过滤条件为合取谓词，拼接顺序不影响结果。
// 返回值第二项是过滤后未分页的总数，供接口层计算分页元信息。
func (s *Store) ListProducts(ctx context.Context, filter storage.ProductFilter) ([]*model.Product, int, error) {
	where := ` WHERE 1=1`
	args := []interface{}{}
	argIdx := 1

	next := func() string {
		n := `$` + strconv.Itoa(argIdx)
		argIdx++
		return n
	}

	if filter.Search != "" {
		pattern := "%" + strings.ToLower(filter.Search) + "%"
		where += ` AND (LOWER(name) LIKE ` + next() + ` OR LOWER(COALESCE(description, '')) LIKE ` + next() + `)`
		args = append(args, pattern, pattern)
	}
	if filter.Category != "" {
		where += ` AND category = ` + next()
		args = append(args, filter.Category)
	}
	if filter.Status != "" {
		where += ` AND status = ` + next()
		args = append(args, filter.Status)
	}
	if filter.MinPrice != nil {
		where += ` AND price >= ` + next()
		args = append(args, *filter.MinPrice)
	}
	if filter.MaxPrice != nil {
		where += ` AND price <= ` + next()
		args = append(args, *filter.MaxPrice)
	}
	if filter.Featured != nil {
		where += ` AND featured = ` + next()
		args = append(args, *filter.Featured)
	}
	if filter.InStock {
		// 只有正向过滤：有货 = 库存 > 0 且状态 active
		where += ` AND stock > 0 AND status = ` + next()
		args = append(args, model.ProductStatusActive)
	}

	// 先在过滤后的集合上取总数，再取当前页
	var total int
	err := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT COUNT(*) FROM products`+where), args...,
	).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	// 白名单外的排序字段静默回退 created_at，排序方向只认 "ASC"
	sortCol, ok := sortColumns[filter.SortBy]
	if !ok {
		sortCol = "created_at"
	}
	order := "DESC"
	if filter.SortOrder == "ASC" {
		order = "ASC"
	}

	query := `SELECT ` + productColumns + ` FROM products` + where +
		` ORDER BY ` + sortCol + ` ` + order +
		` LIMIT ` + next() + ` OFFSET ` + next()
	args = append(args, filter.Limit, filter.Offset())

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, 0, err
		}
		products = append(products, p)
	}
	return products, total, rows.Err()
}

// UpdateProduct 部分更新商品，nil 字段不修改
// SKU 变更时唯一索引触发的冲突转换为 ErrDuplicate
func (s *Store) UpdateProduct(ctx context.Context, id string, patch storage.ProductPatch) (*model.Product, error) {
	query := `UPDATE products SET updated_at = $1`
	args := []interface{}{time.Now()}
	argIdx := 2

	set := func(column string, value interface{}) {
		query += `, ` + column + ` = $` + strconv.Itoa(argIdx)
		args = append(args, value)
		argIdx++
	}

	if patch.Name != nil {
		set("name", *patch.Name)
	}
	if patch.Description != nil {
		set("description", *patch.Description)
	}
	if patch.Price != nil {
		set("price", model.Round2(*patch.Price))
	}
	if patch.SKU != nil {
		set("sku", *patch.SKU)
	}
	if patch.Category != nil {
		set("category", *patch.Category)
	}
	if patch.Status != nil {
		set("status", *patch.Status)
	}
	if patch.Featured != nil {
		set("featured", *patch.Featured)
	}
	if patch.DiscountPercent != nil {
		set("discount_percent", *patch.DiscountPercent)
	}

	query += ` WHERE id = $` + strconv.Itoa(argIdx)
	args = append(args, id)

	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, s.translateErr(err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, storage.ErrNotFound
	}
	return s.GetProductByID(ctx, id)
}

// DeleteProduct 物理删除商品
// 零行受影响视为 ErrNotFound
func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM products WHERE id = $1`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// AdjustStock 单条条件 UPDATE 调整库存
//
// delta 为正补货、为负消耗。把 stock + delta >= 0 写进 WHERE，
// 零行受影响即余量不足信号，不存在 check-then-act 竞态窗口。
func (s *Store) AdjustStock(ctx context.Context, id string, delta int) (*model.Product, error) {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE products SET stock = stock + $1, updated_at = $2
		 WHERE id = $3 AND stock + $4 >= 0`),
		delta, time.Now(), id, delta)
	if err != nil {
		return nil, err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		// 区分不存在与余量不足
		p, err := s.GetProductByID(ctx, id)
		if err != nil {
			return nil, err
		}
		if p == nil {
			return nil, storage.ErrNotFound
		}
		return p, storage.ErrInsufficientStock
	}
	return s.GetProductByID(ctx, id)
}

// GetProductStats 商品总体统计
func (s *Store) GetProductStats(ctx context.Context) (*model.ProductStats, error) {
	stats := &model.ProductStats{
		ByStatus:   map[model.ProductStatus]int{},
		ByCategory: map[model.ProductCategory]int{},
	}

	err := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*),
		        COALESCE(SUM(CASE WHEN featured = `+s.dialect.BooleanLiteral(true)+` THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(CASE WHEN stock = 0 THEN 1 ELSE 0 END), 0),
		        COALESCE(SUM(price * stock), 0)
		 FROM products`),
	).Scan(&stats.Total, &stats.Featured, &stats.OutOfStock, &stats.InventoryValue)
	if err != nil {
		return nil, err
	}
	stats.InventoryValue = model.Round2(stats.InventoryValue)

	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT status, COUNT(*) FROM products GROUP BY status`))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var st model.ProductStatus
		var n int
		if err := rows.Scan(&st, &n); err != nil {
			return nil, err
		}
		stats.ByStatus[st] = n
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	catRows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT category, COUNT(*) FROM products GROUP BY category`))
	if err != nil {
		return nil, err
	}
	defer catRows.Close()
	for catRows.Next() {
		var c model.ProductCategory
		var n int
		if err := catRows.Scan(&c, &n); err != nil {
			return nil, err
		}
		stats.ByCategory[c] = n
	}
	return stats, catRows.Err()
}

// ListLowStock 列出库存低于阈值的非下架商品
func (s *Store) ListLowStock(ctx context.Context, threshold int) ([]*model.Product, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		`SELECT `+productColumns+` FROM products
		 WHERE stock < $1 AND status != $2
		 ORDER BY stock ASC`),
		threshold, model.ProductStatusDiscontinued)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []*model.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// BulkUpdateStatus 批量更新商品状态，返回受影响行数
func (s *Store) BulkUpdateStatus(ctx context.Context, ids []string, status model.ProductStatus) (int, error) {
	if len(ids) == 0 {
		return 0, nil
	}

	placeholders := make([]string, len(ids))
	args := []interface{}{status, time.Now()}
	for i, id := range ids {
		placeholders[i] = `$` + strconv.Itoa(i+3)
		args = append(args, id)
	}

	query := `UPDATE products SET status = $1, updated_at = $2
		 WHERE id IN (` + strings.Join(placeholders, ", ") + `)`
	res, err := s.db.ExecContext(ctx, s.rebind(query), args...)
	if err != nil {
		return 0, err
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
