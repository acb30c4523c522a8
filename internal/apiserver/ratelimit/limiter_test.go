package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newTestLimiter 创建使用假时钟的限流器
func newTestLimiter(window time.Duration, cap int) (*Limiter, *time.Time) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	l := NewLimiter(Config{Window: window, Cap: cap})
	l.now = func() time.Time { return now }
	return l, &now
}

func TestCheckAllowsUpToCap(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 3)

	for i := 0; i < 3; i++ {
		d := l.Check("1.2.3.4")
		assert.True(t, d.Allowed, "request %d should pass", i+1)
		assert.Equal(t, 2-i, d.Remaining)
	}

	// 第 cap+1 个请求拒绝
	d := l.Check("1.2.3.4")
	assert.False(t, d.Allowed)
	assert.Equal(t, 0, d.Remaining)
	assert.Greater(t, d.RetryAfterSeconds, 0)
}

func TestCheckIsolatesClients(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)

	assert.True(t, l.Check("a").Allowed)
	assert.False(t, l.Check("a").Allowed)
	// 另一个客户端不受影响
	assert.True(t, l.Check("b").Allowed)
}

func TestCheckWindowReset(t *testing.T) {
	l, now := newTestLimiter(time.Minute, 2)

	l.Check("c")
	l.Check("c")
	assert.False(t, l.Check("c").Allowed)

	// 窗口过期后计数重置
	*now = now.Add(61 * time.Second)
	d := l.Check("c")
	assert.True(t, d.Allowed)
	assert.Equal(t, 1, d.Remaining)
}

func TestCheckRetryAfterCeiling(t *testing.T) {
	l, now := newTestLimiter(time.Minute, 1)

	l.Check("d")
	// 窗口进行到 30.5s 时拒绝，剩余 29.5s 上取整为 30
	*now = now.Add(30500 * time.Millisecond)
	d := l.Check("d")
	require.False(t, d.Allowed)
	assert.Equal(t, 30, d.RetryAfterSeconds)
}

func TestCleanup(t *testing.T) {
	l, now := newTestLimiter(time.Minute, 10)

	l.Check("stale")
	*now = now.Add(3 * time.Minute)
	l.Check("fresh")
	require.Equal(t, 2, l.Len())

	l.Cleanup()
	assert.Equal(t, 1, l.Len())

	// fresh 的窗口记录保留
	d := l.Check("fresh")
	assert.Equal(t, 8, d.Remaining)
}

// ============================================================================
// 客户端标识推导
// ============================================================================

func TestClientID(t *testing.T) {
	tests := []struct {
		name       string
		xff        string
		remoteAddr string
		want       string
	}{
		{"XFF 首个条目", "203.0.113.7, 10.0.0.1", "127.0.0.1:5000", "203.0.113.7"},
		{"XFF 带空格", "  203.0.113.7  ", "127.0.0.1:5000", "203.0.113.7"},
		{"回退直连地址", "", "192.168.1.9:61234", "192.168.1.9"},
		{"无端口的直连地址", "", "192.168.1.9", "192.168.1.9"},
		{"全部缺失", "", "", "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
			r.RemoteAddr = tt.remoteAddr
			if tt.xff != "" {
				r.Header.Set("X-Forwarded-For", tt.xff)
			}
			assert.Equal(t, tt.want, ClientID(r))
		})
	}
}

// ============================================================================
// 中间件
// ============================================================================

func TestMiddlewareHeaders(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 2)
	handler := Middleware(l, 2)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	r.RemoteAddr = "10.0.0.5:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", w.Header().Get("X-RateLimit-Limit"))
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Remaining"))
	assert.NotEmpty(t, w.Header().Get("X-RateLimit-Reset"))
}

func TestMiddlewareRejectsOverCap(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)
	handler := Middleware(l, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	r := httptest.NewRequest(http.MethodGet, "/api/v1/products", nil)
	r.RemoteAddr = "10.0.0.5:1234"

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	require.Equal(t, http.StatusOK, w.Code)

	w = httptest.NewRecorder()
	handler.ServeHTTP(w, r)
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
	assert.Contains(t, w.Body.String(), "rate limit exceeded")
}

func TestMiddlewareExemptPaths(t *testing.T) {
	l, _ := newTestLimiter(time.Minute, 1)
	handler := Middleware(l, 1)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	for i := 0; i < 5; i++ {
		r := httptest.NewRequest(http.MethodGet, "/health", nil)
		r.RemoteAddr = "10.0.0.5:1234"
		w := httptest.NewRecorder()
		handler.ServeHTTP(w, r)
		assert.Equal(t, http.StatusOK, w.Code)
	}
	assert.Equal(t, 0, l.Len())
}
