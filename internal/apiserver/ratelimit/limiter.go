// Package ratelimit 进程内固定窗口限流
//
// 每个客户端标识维护 (count, windowStart)。状态只存在于本进程内存，
// 重启即丢失，多实例部署时各实例独立计数。
package ratelimit

import (
	"context"
	"sync"
	"time"
)

// Config 限流配置
type Config struct {
	Window time.Duration `yaml:"window"` // 窗口时长，默认 60s
	Cap    int           `yaml:"cap"`    // 单窗口请求上限，默认 100
}

// DefaultConfig 返回默认限流配置
func DefaultConfig() Config {
	return Config{Window: 60 * time.Second, Cap: 100}
}

// Decision 单次限流判定结果
type Decision struct {
	Allowed           bool
	Remaining         int
	ResetAt           time.Time
	RetryAfterSeconds int // 仅拒绝时有意义
}

type entry struct {
	count       int
	windowStart time.Time
}

// Limiter 固定窗口限流器
//
// 显式注入的有状态组件：启动时创建，不持久化。
// handler 跑在并发 goroutine 上，计数表必须加锁。
type Limiter struct {
	mu      sync.Mutex
	entries map[string]*entry
	window  time.Duration
	cap     int
	now     func() time.Time // 测试注入
}

// NewLimiter 创建限流器
func NewLimiter(cfg Config) *Limiter {
	if cfg.Window <= 0 {
		cfg.Window = 60 * time.Second
	}
	if cfg.Cap <= 0 {
		cfg.Cap = 100
	}
	return &Limiter{
		entries: make(map[string]*entry),
		window:  cfg.Window,
		cap:     cfg.Cap,
		now:     time.Now,
	}
}

// Check 记录一次请求并判定放行/拒绝
//
// 无记录 → count=1；窗口已过 → 重置 count=1、windowStart=now；
// 否则自增。count 超过上限即拒绝，RetryAfter 取到窗口结束的秒数上取整。
func (l *Limiter) Check(clientID string) Decision {
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()

	e, ok := l.entries[clientID]
	if !ok || now.Sub(e.windowStart) > l.window {
		e = &entry{count: 1, windowStart: now}
		l.entries[clientID] = e
	} else {
		e.count++
	}

	resetAt := e.windowStart.Add(l.window)
	remaining := l.cap - e.count
	if remaining < 0 {
		remaining = 0
	}

	d := Decision{
		Allowed:   e.count <= l.cap,
		Remaining: remaining,
		ResetAt:   resetAt,
	}
	if !d.Allowed {
		// 上取整到秒
		retry := int((resetAt.Sub(now) + time.Second - 1) / time.Second)
		if retry < 1 {
			retry = 1
		}
		d.RetryAfterSeconds = retry
	}
	return d
}

// Cleanup 清理闲置超过 2× 窗口的条目
// 需要外部定期调用（StartJanitor），否则每个新客户端都会留下常驻条目
func (l *Limiter) Cleanup() {
	cutoff := l.now().Add(-2 * l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	for k, e := range l.entries {
		if e.windowStart.Before(cutoff) {
			delete(l.entries, k)
		}
	}
}

// Len 当前条目数（仅用于测试）
func (l *Limiter) Len() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.entries)
}

// StartJanitor 启动定时清理 goroutine，随 ctx 取消退出
func (l *Limiter) StartJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = l.window
	}
	t := time.NewTicker(interval)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				l.Cleanup()
			}
		}
	}()
}
