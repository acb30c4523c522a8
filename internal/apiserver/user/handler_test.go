package user

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-admin/internal/apiserver/auth"
	"catalog-admin/internal/shared/model"
	"catalog-admin/internal/shared/storage/repository"
	sqlitedriver "catalog-admin/internal/shared/storage/driver/sqlite"
)

// newTestHandler 构建基于 SQLite 内存库的用户处理器
func newTestHandler(t *testing.T) (*http.ServeMux, *repository.Store) {
	t.Helper()
	db, err := sqlitedriver.Open(":memory:")
	require.NoError(t, err)
	dialect := sqlitedriver.NewDialect()
	require.NoError(t, dialect.AutoMigrate(db))
	store := repository.NewStore(db, dialect)
	t.Cleanup(func() { store.Close() })

	mux := http.NewServeMux()
	NewHandler(store).RegisterRoutes(mux)
	return mux, store
}

func seedUser(t *testing.T, store *repository.Store, id, email string, role model.UserRole) {
	t.Helper()
	now := time.Now()
	require.NoError(t, store.CreateUser(context.Background(), &model.User{
		ID: id, Email: email, PasswordHash: "hash", FirstName: "Test",
		Role: role, Active: true, CreatedAt: now, UpdatedAt: now,
	}))
}

// do 发起带认证身份的请求（绕过中间件，直接注入 context）
func do(mux *http.ServeMux, method, path string, body interface{}, caller *auth.AuthUser) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	if body != nil {
		data, _ := json.Marshal(body)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	r := httptest.NewRequest(method, path, reader)
	if caller != nil {
		r = r.WithContext(auth.WithAuthUser(r.Context(), caller))
	}
	w := httptest.NewRecorder()
	mux.ServeHTTP(w, r)
	return w
}

var (
	adminCaller = &auth.AuthUser{ID: "usr-admin", Email: "admin@x.com", Role: model.UserRoleAdmin}
	modCaller   = &auth.AuthUser{ID: "usr-mod", Email: "mod@x.com", Role: model.UserRoleModerator}
	plainCaller = &auth.AuthUser{ID: "usr-plain", Email: "plain@x.com", Role: model.UserRoleUser}
)

func TestListRequiresRole(t *testing.T) {
	mux, store := newTestHandler(t)
	seedUser(t, store, "usr-1", "a@x.com", model.UserRoleUser)

	assert.Equal(t, http.StatusUnauthorized, do(mux, "GET", "/api/v1/users", nil, nil).Code)
	assert.Equal(t, http.StatusForbidden, do(mux, "GET", "/api/v1/users", nil, plainCaller).Code)
	assert.Equal(t, http.StatusOK, do(mux, "GET", "/api/v1/users", nil, modCaller).Code)
	assert.Equal(t, http.StatusOK, do(mux, "GET", "/api/v1/users", nil, adminCaller).Code)
}

func TestListIncludeInactive(t *testing.T) {
	mux, store := newTestHandler(t)
	seedUser(t, store, "usr-1", "a@x.com", model.UserRoleUser)
	seedUser(t, store, "usr-2", "b@x.com", model.UserRoleUser)
	require.NoError(t, store.DeactivateUser(context.Background(), "usr-2"))

	w := do(mux, "GET", "/api/v1/users", nil, adminCaller)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Users []*model.User `json:"users"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Users, 1)

	w = do(mux, "GET", "/api/v1/users?include_inactive=true", nil, adminCaller)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Len(t, body.Users, 2)
}

func TestGetSelfOrPrivileged(t *testing.T) {
	mux, store := newTestHandler(t)
	seedUser(t, store, "usr-1", "a@x.com", model.UserRoleUser)
	seedUser(t, store, "usr-2", "b@x.com", model.UserRoleUser)

	self := &auth.AuthUser{ID: "usr-1", Role: model.UserRoleUser}
	// 本人可读
	assert.Equal(t, http.StatusOK, do(mux, "GET", "/api/v1/users/usr-1", nil, self).Code)
	// 普通用户读他人 → 403
	assert.Equal(t, http.StatusForbidden, do(mux, "GET", "/api/v1/users/usr-2", nil, self).Code)
	// moderator 可读任意用户
	assert.Equal(t, http.StatusOK, do(mux, "GET", "/api/v1/users/usr-2", nil, modCaller).Code)
	// 不存在 → 404
	assert.Equal(t, http.StatusNotFound, do(mux, "GET", "/api/v1/users/usr-nope", nil, adminCaller).Code)
}

func TestUpdateRoleAdminOnly(t *testing.T) {
	mux, store := newTestHandler(t)
	seedUser(t, store, "usr-1", "a@x.com", model.UserRoleUser)

	self := &auth.AuthUser{ID: "usr-1", Role: model.UserRoleUser}

	// 本人可改姓名
	w := do(mux, "PATCH", "/api/v1/users/usr-1", map[string]interface{}{"first_name": "New"}, self)
	require.Equal(t, http.StatusOK, w.Code)

	// 本人改角色 → 校验错误
	w = do(mux, "PATCH", "/api/v1/users/usr-1", map[string]interface{}{"role": "admin"}, self)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, w.Body.String(), "only admin can change role")

	// admin 改角色成功
	w = do(mux, "PATCH", "/api/v1/users/usr-1", map[string]interface{}{"role": "moderator"}, adminCaller)
	require.Equal(t, http.StatusOK, w.Code)
	var u model.User
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &u))
	assert.Equal(t, model.UserRoleModerator, u.Role)

	// 非法角色值 → 校验错误
	w = do(mux, "PATCH", "/api/v1/users/usr-1", map[string]interface{}{"role": "superadmin"}, adminCaller)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUpdateEmailConflict(t *testing.T) {
	mux, store := newTestHandler(t)
	seedUser(t, store, "usr-1", "a@x.com", model.UserRoleUser)
	seedUser(t, store, "usr-2", "b@x.com", model.UserRoleUser)

	w := do(mux, "PATCH", "/api/v1/users/usr-2", map[string]interface{}{"email": "A@x.com"}, adminCaller)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "email already in use")
}

func TestDeleteSoftAndHard(t *testing.T) {
	mux, store := newTestHandler(t)
	ctx := context.Background()
	seedUser(t, store, "usr-1", "a@x.com", model.UserRoleUser)
	seedUser(t, store, "usr-2", "b@x.com", model.UserRoleUser)

	// 非 admin → 403
	assert.Equal(t, http.StatusForbidden, do(mux, "DELETE", "/api/v1/users/usr-1", nil, modCaller).Code)

	// 默认软删除
	w := do(mux, "DELETE", "/api/v1/users/usr-1", nil, adminCaller)
	require.Equal(t, http.StatusOK, w.Code)
	u, err := store.GetUserByID(ctx, "usr-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.False(t, u.Active)

	// hard=true 物理删除
	w = do(mux, "DELETE", "/api/v1/users/usr-2?hard=true", nil, adminCaller)
	require.Equal(t, http.StatusOK, w.Code)
	u, err = store.GetUserByID(ctx, "usr-2")
	require.NoError(t, err)
	assert.Nil(t, u)

	assert.Equal(t, http.StatusNotFound, do(mux, "DELETE", "/api/v1/users/usr-nope", nil, adminCaller).Code)
}

func TestStats(t *testing.T) {
	mux, store := newTestHandler(t)
	seedUser(t, store, "usr-1", "a@x.com", model.UserRoleModerator)

	owner := "usr-1"
	now := time.Now()
	require.NoError(t, store.CreateProduct(context.Background(), &model.Product{
		ID: "prd-1", Name: "Widget", Price: 10, Stock: 3,
		Category: model.CategoryOther, Status: model.ProductStatusActive,
		CreatedBy: &owner, CreatedAt: now, UpdatedAt: now,
	}))

	w := do(mux, "GET", "/api/v1/users/usr-1/stats", nil, adminCaller)
	require.Equal(t, http.StatusOK, w.Code)
	var stats model.UserStats
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.ProductCount)
	assert.Equal(t, 3, stats.TotalStock)
	assert.Equal(t, 30.0, stats.InventoryValue)
}
