// Package storage 定义存储层领域错误
//
// 这些错误用于隔离业务层与底层存储引擎的错误类型，
// 驱动实现负责将底层错误（pq 错误码、sqlite 约束错误）转换为这些领域错误。
package storage

import "errors"

var (
	// ErrNotFound 实体不存在
	// 替代 sql.ErrNoRows
	ErrNotFound = errors.New("entity not found")

	// ErrDuplicate 唯一键冲突（email / SKU 唯一索引触发）
	// 唯一性约束下沉到数据库，不做 check-then-act 预检查
	ErrDuplicate = errors.New("duplicate: entity already exists")

	// ErrInsufficientStock 条件扣减库存失败（stock + delta < 0）
	ErrInsufficientStock = errors.New("insufficient stock")
)
