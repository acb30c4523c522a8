package server

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizePath(t *testing.T) {
	tests := []struct {
		path string
		want string
	}{
		{"/api/v1/products/prd-a1b2c3", "/api/v1/products/{id}"},
		{"/api/v1/products/prd-a1b2c3/stock", "/api/v1/products/{id}/stock"},
		{"/api/v1/products/prd-a1b2c3/discount", "/api/v1/products/{id}/discount"},
		{"/api/v1/products/category/books", "/api/v1/products/category/{category}"},
		{"/api/v1/products/featured", "/api/v1/products/featured"},
		{"/api/v1/products/admin/stats", "/api/v1/products/admin/stats"},
		{"/api/v1/users/usr-a1b2c3", "/api/v1/users/{id}"},
		{"/api/v1/users/usr-a1b2c3/stats", "/api/v1/users/{id}/stats"},
		{"/api/v1/products", "/api/v1/products"},
		{"/health", "/health"},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizePath(tt.path))
		})
	}
}

func TestRecoveryMiddleware(t *testing.T) {
	handler := recoveryMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	w := httptest.NewRecorder()
	handler.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/products", nil))

	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "internal server error")
	// panic 细节不泄露给客户端
	assert.NotContains(t, w.Body.String(), "boom")
}

func TestResponseWriterCapturesStatus(t *testing.T) {
	rec := httptest.NewRecorder()
	rw := &responseWriter{ResponseWriter: rec, statusCode: http.StatusOK}
	rw.WriteHeader(http.StatusTeapot)
	assert.Equal(t, http.StatusTeapot, rw.statusCode)
	assert.Equal(t, http.StatusTeapot, rec.Code)
}
