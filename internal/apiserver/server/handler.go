// Package server 路由配置
package server

import (
	"net/http"

	"catalog-admin/internal/apiserver/auth"
	"catalog-admin/internal/apiserver/product"
	"catalog-admin/internal/apiserver/ratelimit"
	"catalog-admin/internal/apiserver/user"
)

// Router 返回配置好的 HTTP 路由
//
// 路由规则：
//
// 健康检查:
//   - GET /health - 服务健康检查
//
// 认证 (Auth):
//   - POST   /api/v1/auth/register - 注册（总是普通用户角色）
//   - POST   /api/v1/auth/login    - 登录，签发 JWT
//   - GET    /api/v1/auth/profile  - 当前用户信息
//   - POST   /api/v1/auth/logout   - 注销（令牌进入吊销名单）
//
// 用户管理 (User):
//   - GET    /api/v1/users            - 列出用户（admin/moderator）
//   - GET    /api/v1/users/{id}       - 获取用户详情（本人或 admin/moderator）
//   - GET    /api/v1/users/{id}/stats - 用户创建商品统计
//   - PATCH  /api/v1/users/{id}       - 更新用户（角色/激活位仅 admin）
//   - DELETE /api/v1/users/{id}       - 停用（?hard=true 物理删除，仅 admin）
//
// 商品管理 (Product):
//   - GET    /api/v1/products                    - 列表（过滤/排序/分页，公开）
//   - GET    /api/v1/products/featured           - 精选商品（公开）
//   - GET    /api/v1/products/category/{category} - 按分类（公开）
//   - GET    /api/v1/products/{id}               - 商品详情（公开）
//   - POST   /api/v1/products                    - 创建（admin/moderator）
//   - PATCH  /api/v1/products/{id}               - 部分更新（admin/moderator）
//   - DELETE /api/v1/products/{id}               - 删除（admin）
//   - PATCH  /api/v1/products/{id}/stock         - 库存调整（admin/moderator）
//   - PATCH  /api/v1/products/{id}/discount      - 折扣设置（admin/moderator）
//   - GET    /api/v1/products/admin/stats        - 商品统计（admin）
//   - GET    /api/v1/products/admin/low-stock    - 低库存清单（admin/moderator）
//   - POST   /api/v1/products/admin/bulk-status  - 批量状态更新（admin）
func (h *Handler) Router() http.Handler {
	mux := http.NewServeMux()

	// 健康检查
	mux.HandleFunc("GET /health", h.Health)

	// Prometheus 指标端点
	mux.Handle("GET /metrics", MetricsHandler())

	// Auth 接口
	authHandler := auth.NewHandler(h.store, h.revoked, h.authCfg)
	authHandler.RegisterRoutes(mux)

	// 用户管理接口
	userHandler := user.NewHandler(h.store)
	userHandler.RegisterRoutes(mux)

	// 商品管理接口
	productHandler := product.NewHandler(h.store)
	productHandler.RegisterRoutes(mux)

	// 应用指标中间件到 REST API
	apiHandler := h.metrics.MetricsMiddleware(mux)

	// 应用请求日志中间件
	loggedHandler := loggingMiddleware(apiHandler)

	// 应用认证中间件（公开路由在中间件内白名单放行）
	authedHandler := auth.Middleware(h.authCfg, h.store, h.revoked)(loggedHandler)

	// 应用限流中间件（认证之前计数，匿名洪峰同样受限）
	limitedHandler := ratelimit.Middleware(h.limiter, h.rlCap)(authedHandler)

	// 应用 panic 恢复与 CORS 中间件
	recoveredHandler := recoveryMiddleware(limitedHandler)
	return corsMiddleware(recoveredHandler)
}

// corsMiddleware 添加 CORS 头支持跨域请求
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, PATCH, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}
