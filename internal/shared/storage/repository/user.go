package repository

import (
	"context"
	"database/sql"
	"strconv"
	"time"

	"catalog-admin/internal/shared/model"
	"catalog-admin/internal/shared/storage"
)

const userColumns = `id, email, password_hash, first_name, last_name, role, active, phone, created_at, updated_at`

func scanUser(row interface{ Scan(...interface{}) error }) (*model.User, error) {
	user := &model.User{}
	err := row.Scan(&user.ID, &user.Email, &user.PasswordHash,
		&user.FirstName, &user.LastName, &user.Role, &user.Active,
		&user.Phone, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// CreateUser 创建用户
// email 唯一性由数据库唯一索引保证，冲突转换为 ErrDuplicate
func (s *Store) CreateUser(ctx context.Context, user *model.User) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO users (`+userColumns+`)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`),
		user.ID, user.Email, user.PasswordHash, user.FirstName, user.LastName,
		user.Role, user.Active, user.Phone, user.CreatedAt, user.UpdatedAt,
	)
	return s.translateErr(err)
}

// GetUserByID 通过 ID 查找用户
// 不存在时返回 (nil, nil)
func (s *Store) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE id = $1`), id)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// GetUserByEmail 通过邮箱查找用户
// 不存在时返回 (nil, nil)
func (s *Store) GetUserByEmail(ctx context.Context, email string) (*model.User, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(
		`SELECT `+userColumns+` FROM users WHERE email = $1`), email)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return user, err
}

// ListUsers 列出用户，includeInactive 为 false 时只返回 active 用户
func (s *Store) ListUsers(ctx context.Context, includeInactive bool) ([]*model.User, error) {
	query := `SELECT ` + userColumns + ` FROM users`
	if !includeInactive {
		query += ` WHERE active = ` + s.dialect.BooleanLiteral(true)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, s.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// UpdateUser 部分更新用户，nil 字段不修改
// email 变更时唯一索引触发的冲突转换为 ErrDuplicate
func (s *Store) UpdateUser(ctx context.Context, id string, patch storage.UserPatch) (*model.User, error) {
	query := `UPDATE users SET updated_at = $1`
	args := []interface{}{time.Now()}
	argIdx := 2

	set := func(column string, value interface{}) {
		query += `, ` + column + ` = $` + strconv.Itoa(argIdx)
		args = append(args, value)
		argIdx++
	}

	if patch.Email != nil {
		set("email", *patch.Email)
	}
	if patch.FirstName != nil {
		set("first_name", *patch.FirstName)
	}
	if patch.LastName != nil {
		set("last_name", *patch.LastName)
	}
	if patch.Phone != nil {
		set("phone", *patch.Phone)
	}
	if patch.Active != nil {
		set("active", *patch.Active)
	}
	if patch.Role != nil {
		set("role", *patch.Role)
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
	return s.GetUserByID(ctx, id)
}

// UpdateUserPassword 更新密码哈希
func (s *Store) UpdateUserPassword(ctx context.Context, id, passwordHash string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET password_hash = $1, updated_at = $2 WHERE id = $3`),
		passwordHash, time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeactivateUser 软删除：清除 active 标记，记录保留
func (s *Store) DeactivateUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(
		`UPDATE users SET active = `+s.dialect.BooleanLiteral(false)+`, updated_at = $1 WHERE id = $2`),
		time.Now(), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// DeleteUser 物理删除（危险操作）
// 商品的 created_by 外键为 ON DELETE SET NULL，弱引用随之置空
func (s *Store) DeleteUser(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, s.rebind(`DELETE FROM users WHERE id = $1`), id)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// GetUserStats 用户统计：名下商品数、总库存、库存货值
func (s *Store) GetUserStats(ctx context.Context, id string) (*model.UserStats, error) {
	user, err := s.GetUserByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if user == nil {
		return nil, storage.ErrNotFound
	}

	stats := &model.UserStats{UserID: id}
	err = s.db.QueryRowContext(ctx, s.rebind(
		`SELECT COUNT(*), COALESCE(SUM(stock), 0), COALESCE(SUM(price * stock), 0)
		 FROM products WHERE created_by = $1`), id,
	).Scan(&stats.ProductCount, &stats.TotalStock, &stats.InventoryValue)
	if err != nil {
		return nil, err
	}
	stats.InventoryValue = model.Round2(stats.InventoryValue)
	return stats, nil
}
