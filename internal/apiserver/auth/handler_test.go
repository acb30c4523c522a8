package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"catalog-admin/internal/shared/cache"
	"catalog-admin/internal/shared/model"
	"catalog-admin/internal/shared/storage"
)

// fakeUserStore 进程内用户存储，按邮箱模拟唯一索引
type fakeUserStore struct {
	mu    sync.Mutex
	users map[string]*model.User // id -> user
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: make(map[string]*model.User)}
}

func (s *fakeUserStore) CreateUser(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == user.Email {
			return storage.ErrDuplicate
		}
	}
	cp := *user
	s.users[user.ID] = &cp
	return nil
}

func (s *fakeUserStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range s.users {
		if u.Email == email {
			cp := *u
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeUserStore) GetUserByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *fakeUserStore) deactivate(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		u.Active = false
	}
}

// newTestServer 组装带认证中间件的测试服务
func newTestServer(t *testing.T) (*httptest.Server, *fakeUserStore) {
	t.Helper()
	store := newFakeUserStore()
	revoked := cache.NewMemoryCache()
	cfg := testConfig()

	mux := http.NewServeMux()
	NewHandler(store, revoked, cfg).RegisterRoutes(mux)
	srv := httptest.NewServer(Middleware(cfg, store, revoked)(mux))
	t.Cleanup(srv.Close)
	return srv, store
}

func postJSON(t *testing.T, url string, body interface{}, token string) *http.Response {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(data))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func getWithToken(t *testing.T, url, token string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(http.MethodGet, url, nil)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	defer resp.Body.Close()
	var m map[string]interface{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&m))
	return m
}

func registerUser(t *testing.T, srv *httptest.Server, email, password string) string {
	t.Helper()
	resp := postJSON(t, srv.URL+"/api/v1/auth/register", map[string]interface{}{
		"email":      email,
		"password":   password,
		"first_name": "Test",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	body := decodeBody(t, resp)
	token, _ := body["access_token"].(string)
	require.NotEmpty(t, token)
	return token
}

// ============================================================================
// 注册
// ============================================================================

func TestRegister(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/auth/register", map[string]interface{}{
		"email":      "Ada@Example.COM",
		"password":   "password123",
		"first_name": "Ada",
		"last_name":  "Lovelace",
	}, "")
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	body := decodeBody(t, resp)
	user := body["user"].(map[string]interface{})
	// 邮箱归一化为小写，角色固定为普通用户
	assert.Equal(t, "ada@example.com", user["email"])
	assert.Equal(t, "user", user["role"])
}

func TestRegisterValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := postJSON(t, srv.URL+"/api/v1/auth/register", map[string]interface{}{
		"email":    "not-an-email",
		"password": "short",
	}, "")
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)

	body := decodeBody(t, resp)
	msgs, ok := body["error"].([]interface{})
	require.True(t, ok, "校验错误应返回消息列表")
	assert.Len(t, msgs, 3)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	srv, _ := newTestServer(t)
	registerUser(t, srv, "dup@example.com", "password123")

	resp := postJSON(t, srv.URL+"/api/v1/auth/register", map[string]interface{}{
		"email":      "dup@example.com",
		"password":   "password456",
		"first_name": "Other",
	}, "")
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	resp.Body.Close()
}

// ============================================================================
// 登录
// ============================================================================

func TestLogin(t *testing.T) {
	srv, _ := newTestServer(t)
	registerUser(t, srv, "u@example.com", "password123")

	resp := postJSON(t, srv.URL+"/api/v1/auth/login", map[string]interface{}{
		"email":    "u@example.com",
		"password": "password123",
	}, "")
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.NotEmpty(t, body["access_token"])
}

// 未知邮箱、密码错误、停用账户必须返回完全相同的 401 消息
func TestLoginUniformFailureMessage(t *testing.T) {
	srv, store := newTestServer(t)
	token := registerUser(t, srv, "u@example.com", "password123")

	claims, err := ParseToken(testConfig(), token)
	require.NoError(t, err)

	wrongPw := postJSON(t, srv.URL+"/api/v1/auth/login", map[string]interface{}{
		"email": "u@example.com", "password": "wrong-password",
	}, "")
	unknown := postJSON(t, srv.URL+"/api/v1/auth/login", map[string]interface{}{
		"email": "nobody@example.com", "password": "password123",
	}, "")

	store.deactivate(claims.Subject)
	inactive := postJSON(t, srv.URL+"/api/v1/auth/login", map[string]interface{}{
		"email": "u@example.com", "password": "password123",
	}, "")

	for _, resp := range []*http.Response{wrongPw, unknown, inactive} {
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		body := decodeBody(t, resp)
		assert.Equal(t, "invalid email or password", body["error"])
	}
}

// ============================================================================
// 中间件 + Profile + Logout
// ============================================================================

func TestProfileRequiresToken(t *testing.T) {
	srv, _ := newTestServer(t)

	resp := getWithToken(t, srv.URL+"/api/v1/auth/profile", "")
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

func TestProfile(t *testing.T) {
	srv, _ := newTestServer(t)
	token := registerUser(t, srv, "p@example.com", "password123")

	resp := getWithToken(t, srv.URL+"/api/v1/auth/profile", token)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body := decodeBody(t, resp)
	assert.Equal(t, "p@example.com", body["email"])
	_, hasHash := body["password_hash"]
	assert.False(t, hasHash)
}

// 用户停用后，已签发且未过期的令牌在下一次请求即失效
func TestDeactivatedUserTokenRejected(t *testing.T) {
	srv, store := newTestServer(t)
	token := registerUser(t, srv, "d@example.com", "password123")

	claims, err := ParseToken(testConfig(), token)
	require.NoError(t, err)
	store.deactivate(claims.Subject)

	resp := getWithToken(t, srv.URL+"/api/v1/auth/profile", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	resp.Body.Close()
}

// 登出后令牌进入吊销黑名单，后续请求拒绝
func TestLogoutRevokesToken(t *testing.T) {
	srv, _ := newTestServer(t)
	token := registerUser(t, srv, "l@example.com", "password123")

	resp := postJSON(t, srv.URL+"/api/v1/auth/logout", struct{}{}, token)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	resp = getWithToken(t, srv.URL+"/api/v1/auth/profile", token)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	body := decodeBody(t, resp)
	assert.Equal(t, "token has been revoked", body["error"])
}
