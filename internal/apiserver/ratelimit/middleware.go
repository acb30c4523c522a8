package ratelimit

import (
	"encoding/json"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"
)

// 限流豁免路由（健康检查和指标抓取不计数）
var exemptPaths = map[string]bool{
	"/health":  true,
	"/metrics": true,
}

// ClientID 推导限流用的客户端标识
//
// 优先 X-Forwarded-For 首个条目（逗号切分后去空格），
// 其次直连地址，都拿不到时退化为 "unknown"——
// 所有无法识别的客户端会落进同一个桶，这是已知弱点。
func ClientID(r *http.Request) string {
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		parts := strings.Split(xff, ",")
		if ip := strings.TrimSpace(parts[0]); ip != "" {
			return ip
		}
	}

	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}

// Middleware 创建限流中间件
//
// 每个响应都带 X-RateLimit-Limit / Remaining / Reset；
// 拒绝时返回 429 + Retry-After + 统一错误信封，不做内部重试。
func Middleware(l *Limiter, cap int) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if exemptPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			d := l.Check(ClientID(r))

			w.Header().Set("X-RateLimit-Limit", strconv.Itoa(cap))
			w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
			w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))

			if !d.Allowed {
				w.Header().Set("Retry-After", strconv.Itoa(d.RetryAfterSeconds))
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusTooManyRequests)
				json.NewEncoder(w).Encode(map[string]interface{}{
					"statusCode": http.StatusTooManyRequests,
					"timestamp":  time.Now().UTC().Format(time.RFC3339),
					"path":       r.URL.Path,
					"method":     r.Method,
					"error":      "rate limit exceeded, retry after " + strconv.Itoa(d.RetryAfterSeconds) + "s",
				})
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
