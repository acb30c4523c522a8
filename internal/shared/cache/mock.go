// Package cache 缓存层 mock 实现
package cache

import (
	"context"
	"sync"
	"time"
)

// MemoryCache 进程内 Cache 实现
//
// 用于测试和未配置 Redis 的部署。过期条目在读取时惰性清理。
type MemoryCache struct {
	mu      sync.Mutex
	revoked map[string]time.Time // tokenID -> 过期时刻
}

var _ Cache = (*MemoryCache)(nil)

// NewMemoryCache 创建 MemoryCache 实例
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{revoked: make(map[string]time.Time)}
}

// Close 关闭缓存
func (c *MemoryCache) Close() error {
	return nil
}

// RevokeToken 把令牌 ID 写入吊销黑名单
func (c *MemoryCache) RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error {
	if ttl <= 0 {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.revoked[tokenID] = time.Now().Add(ttl)
	return nil
}

// IsTokenRevoked 查询令牌是否已吊销
func (c *MemoryCache) IsTokenRevoked(ctx context.Context, tokenID string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	expires, ok := c.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if time.Now().After(expires) {
		delete(c.revoked, tokenID)
		return false, nil
	}
	return true, nil
}
