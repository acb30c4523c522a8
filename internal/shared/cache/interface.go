// Package cache 缓存层抽象接口
//
// 提供临时状态和缓存的存取能力，当前由 Redis 实现。
package cache

import (
	"context"
	"time"
)

// KeyRevokedToken 已吊销令牌键前缀
const KeyRevokedToken = "auth:revoked:"

// TokenRevocationCache 令牌吊销缓存接口
//
// 登出时把令牌 ID 写入黑名单，TTL 取令牌剩余有效期，
// 令牌自然过期后条目随之消失，黑名单不会无限增长。
type TokenRevocationCache interface {
	RevokeToken(ctx context.Context, tokenID string, ttl time.Duration) error
	IsTokenRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Cache 缓存组合接口
type Cache interface {
	TokenRevocationCache
	Close() error
}
