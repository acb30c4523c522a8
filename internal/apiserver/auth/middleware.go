package auth

import (
	"log"
	"net/http"
	"strings"
	"time"

	"catalog-admin/internal/shared/cache"
	"catalog-admin/internal/shared/model"
)

// 免认证路由白名单（前缀匹配）
var publicPrefixes = []string{
	"/api/v1/auth/register",
	"/api/v1/auth/login",
	"/health",
	"/metrics",
}

func isPublicRoute(method, path string) bool {
	for _, prefix := range publicPrefixes {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	// 商品目录读接口公开，admin 子路径除外
	if method == "GET" && strings.HasPrefix(path, "/api/v1/products") &&
		!strings.HasPrefix(path, "/api/v1/products/admin") {
		return true
	}
	return false
}

// Middleware 创建 JWT 认证中间件
//
// 令牌验签通过后仍会按 subject 回查数据库：用户被删除或停用后，
// 未过期的令牌在下一次请求即失效。多一次查询换来停用即吊销。
// 登出过的令牌通过黑名单缓存拒绝。
func Middleware(cfg Config, store UserStore, revoked cache.TokenRevocationCache) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			// 公开路由：直接放行
			if isPublicRoute(r.Method, r.URL.Path) {
				next.ServeHTTP(w, r)
				return
			}

			// 提取 Bearer Token
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				writeError(w, r, http.StatusUnauthorized, "missing authorization header")
				return
			}
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") {
				writeError(w, r, http.StatusUnauthorized, "invalid authorization header")
				return
			}

			// 解析 JWT
			claims, err := ParseToken(cfg, parts[1])
			if err != nil {
				log.Printf("[auth] token parse error: %v", err)
				writeError(w, r, http.StatusUnauthorized, "invalid or expired token")
				return
			}

			// 吊销黑名单（登出）
			if revoked != nil && claims.ID != "" {
				isRevoked, err := revoked.IsTokenRevoked(r.Context(), claims.ID)
				if err != nil {
					log.Printf("[auth] revocation check error: %v", err)
					writeError(w, r, http.StatusInternalServerError, "internal error")
					return
				}
				if isRevoked {
					writeError(w, r, http.StatusUnauthorized, "token has been revoked")
					return
				}
			}

			// 回查用户：不信任可能过期的 claims
			user, err := store.GetUserByID(r.Context(), claims.Subject)
			if err != nil {
				log.Printf("[auth] user lookup error: %v", err)
				writeError(w, r, http.StatusInternalServerError, "internal error")
				return
			}
			if user == nil || !user.Active {
				writeError(w, r, http.StatusUnauthorized, "user no longer exists or is deactivated")
				return
			}

			authUser := &AuthUser{
				ID:    user.ID,
				Email: user.Email,
				Role:  user.Role,
			}
			next.ServeHTTP(w, r.WithContext(WithAuthUser(r.Context(), authUser)))
		})
	}
}

// Require 声明式角色检查，供各 handler 在入口调用
//
// 返回 nil 表示已写出 401/403 响应，调用方应直接 return。
// roles 为空时只要求已认证。
func Require(w http.ResponseWriter, r *http.Request, roles ...model.UserRole) *AuthUser {
	caller := GetAuthUser(r.Context())
	if caller == nil {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return nil
	}
	if !Authorize(roles, caller) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return nil
	}
	return caller
}

// tokenRemainingTTL 令牌剩余有效期，登出时作为黑名单条目 TTL
func tokenRemainingTTL(claims *Claims) time.Duration {
	if claims.ExpiresAt == nil {
		return 0
	}
	return time.Until(claims.ExpiresAt.Time)
}
