package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-admin/internal/shared/model"
)

// 测试用低成本配置，bcrypt cost 12 在 CI 上太慢
func testConfig() Config {
	return Config{JWTSecret: "test-secret", TokenTTL: time.Hour, BcryptCost: 4}
}

func TestHashAndCheckPassword(t *testing.T) {
	cfg := testConfig()

	hash, err := HashPassword(cfg, "s3cret-pass")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret-pass", hash)

	assert.True(t, CheckPassword("s3cret-pass", hash))
	assert.False(t, CheckPassword("wrong-pass", hash))
	assert.False(t, CheckPassword("s3cret-pass", "not-a-hash"))
}

func TestTokenRoundTrip(t *testing.T) {
	cfg := testConfig()
	user := &model.User{ID: "usr-1", Email: "a@b.com", Role: model.UserRoleModerator}

	token, err := GenerateToken(cfg, user)
	require.NoError(t, err)

	claims, err := ParseToken(cfg, token)
	require.NoError(t, err)
	assert.Equal(t, "usr-1", claims.Subject)
	assert.Equal(t, "a@b.com", claims.Email)
	assert.Equal(t, "moderator", claims.Role)
	assert.NotEmpty(t, claims.ID, "jti 用于吊销黑名单，必须非空")
}

func TestParseTokenRejectsWrongSecret(t *testing.T) {
	cfg := testConfig()
	token, err := GenerateToken(cfg, &model.User{ID: "usr-1"})
	require.NoError(t, err)

	other := cfg
	other.JWTSecret = "different-secret"
	_, err = ParseToken(other, token)
	assert.Error(t, err)
}

func TestParseTokenRejectsExpired(t *testing.T) {
	cfg := testConfig()
	cfg.TokenTTL = -time.Minute

	token, err := GenerateToken(cfg, &model.User{ID: "usr-1"})
	require.NoError(t, err)

	_, err = ParseToken(cfg, token)
	assert.Error(t, err)
}

func TestAuthorize(t *testing.T) {
	admin := &AuthUser{ID: "u1", Role: model.UserRoleAdmin}
	mod := &AuthUser{ID: "u2", Role: model.UserRoleModerator}
	plain := &AuthUser{ID: "u3", Role: model.UserRoleUser}

	tests := []struct {
		name     string
		required []model.UserRole
		caller   *AuthUser
		want     bool
	}{
		{"无要求放行", nil, plain, true},
		{"无要求且匿名", nil, nil, true},
		{"匿名拒绝", []model.UserRole{model.UserRoleUser}, nil, false},
		{"角色命中", []model.UserRole{model.UserRoleAdmin, model.UserRoleModerator}, mod, true},
		{"角色未命中", []model.UserRole{model.UserRoleModerator}, plain, false},
		// 角色无层级：admin 不隐式满足 moderator-only
		{"admin 不越权", []model.UserRole{model.UserRoleModerator}, admin, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Authorize(tt.required, tt.caller))
		})
	}
}

func TestIsPublicRoute(t *testing.T) {
	tests := []struct {
		method string
		path   string
		want   bool
	}{
		{"POST", "/api/v1/auth/register", true},
		{"POST", "/api/v1/auth/login", true},
		{"GET", "/health", true},
		{"GET", "/metrics", true},
		{"GET", "/api/v1/products", true},
		{"GET", "/api/v1/products/prd-123", true},
		{"GET", "/api/v1/products/category/books", true},
		{"POST", "/api/v1/products", false},
		{"PATCH", "/api/v1/products/prd-123", false},
		{"GET", "/api/v1/products/admin/stats", false},
		{"GET", "/api/v1/products/admin/low-stock", false},
		{"GET", "/api/v1/users", false},
		{"GET", "/api/v1/auth/profile", false},
		{"POST", "/api/v1/auth/logout", false},
	}
	for _, tt := range tests {
		t.Run(tt.method+" "+tt.path, func(t *testing.T) {
			assert.Equal(t, tt.want, isPublicRoute(tt.method, tt.path))
		})
	}
}
