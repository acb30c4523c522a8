// Package server 提供 HTTP API 处理器
//
// 本包实现商品目录管理系统的 RESTful API 入口，包括：
//   - 认证接口（注册/登录/注销）
//   - 用户管理接口
//   - 商品管理接口
//   - 限流、指标、日志中间件
//
// 文件组织：
//   - common.go: 通用工具函数和 Handler 定义
//   - handler.go: 路由配置
//   - middleware.go: 日志与 panic 恢复中间件
//   - metrics.go: Prometheus 指标
package server

import (
	"encoding/json"
	"net/http"

	"catalog-admin/internal/apiserver/auth"
	"catalog-admin/internal/apiserver/ratelimit"
	"catalog-admin/internal/shared/cache"
	"catalog-admin/internal/shared/storage"
)

// Handler API 处理器
//
// Handler 是所有 HTTP API 的入口，负责：
//   - 路由请求到各领域处理函数
//   - 管理存储层连接
//   - 组装中间件链（CORS → 恢复 → 限流 → 指标 → 认证 → 日志）
//
// 依赖接口说明（接口隔离原则）：
//   - store: 持久化存储（用户 + 商品）
//   - revoked: 令牌吊销缓存（注销后的 JWT 拒绝名单）
type Handler struct {
	store   storage.PersistentStore
	revoked cache.TokenRevocationCache

	authCfg auth.Config
	limiter *ratelimit.Limiter
	rlCap   int

	metrics *Metrics
}

// NewHandler 创建 Handler 实例
//
// 参数：
//   - store: 持久化存储实例
//   - revoked: 令牌吊销缓存（可传 cache.NewMemoryCache() 兜底）
//   - authCfg: JWT 签名与口令散列配置
//   - rlCfg: 限流窗口配置
func NewHandler(store storage.PersistentStore, revoked cache.TokenRevocationCache, authCfg auth.Config, rlCfg ratelimit.Config) *Handler {
	return &Handler{
		store:   store,
		revoked: revoked,
		authCfg: authCfg,
		limiter: ratelimit.NewLimiter(rlCfg),
		rlCap:   rlCfg.Cap,
		metrics: NewMetrics("api"),
	}
}

// GetMetrics 返回指标实例
func (h *Handler) GetMetrics() *Metrics {
	return h.metrics
}

// GetLimiter 返回限流器实例（janitor 启动用）
func (h *Handler) GetLimiter() *ratelimit.Limiter {
	return h.limiter
}

// writeJSON 将数据以 JSON 格式写入 HTTP 响应
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// Health 健康检查接口
//
// 路由: GET /health
//
// 用于负载均衡器和监控系统检查服务状态。
// 返回 {"status": "ok"} 表示服务正常运行。
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
