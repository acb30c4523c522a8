// Package server 请求日志与 panic 恢复中间件
package server

import (
	"log"
	"net/http"
	"runtime/debug"
	"time"
)

// loggingMiddleware 记录每个请求的方法、路径、状态码和耗时
func loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(wrapped, r)

		log.Printf("[http] %s %s %d %s", r.Method, r.URL.Path, wrapped.statusCode, time.Since(start))
	})
}

// recoveryMiddleware 捕获处理函数 panic，返回 500 错误信封
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				log.Printf("[http] panic serving %s %s: %v\n%s", r.Method, r.URL.Path, rec, debug.Stack())
				writeJSON(w, http.StatusInternalServerError, map[string]interface{}{
					"statusCode": http.StatusInternalServerError,
					"timestamp":  time.Now().UTC().Format(time.RFC3339),
					"path":       r.URL.Path,
					"method":     r.Method,
					"error":      "internal server error",
				})
			}
		}()
		next.ServeHTTP(w, r)
	})
}
