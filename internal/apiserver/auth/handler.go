package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"catalog-admin/internal/shared/cache"
	"catalog-admin/internal/shared/model"
	"catalog-admin/internal/shared/storage"
)

// UserStore 用户存储接口（认证域需要的最小集合）
type UserStore interface {
	CreateUser(ctx context.Context, user *model.User) error
	GetUserByEmail(ctx context.Context, email string) (*model.User, error)
	GetUserByID(ctx context.Context, id string) (*model.User, error)
}

// Handler 认证 HTTP 处理器
type Handler struct {
	store   UserStore
	revoked cache.TokenRevocationCache
	cfg     Config
}

// NewHandler 创建认证处理器
func NewHandler(store UserStore, revoked cache.TokenRevocationCache, cfg Config) *Handler {
	return &Handler{store: store, revoked: revoked, cfg: cfg}
}

// RegisterRoutes 注册认证相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/v1/auth/register", h.Register)
	mux.HandleFunc("POST /api/v1/auth/login", h.Login)
	mux.HandleFunc("GET /api/v1/auth/profile", h.Profile)
	mux.HandleFunc("POST /api/v1/auth/logout", h.Logout)
}

// ============================================================================
// 请求/响应类型
// ============================================================================

type registerRequest struct {
	Email     string  `json:"email"`
	Password  string  `json:"password"`
	FirstName string  `json:"first_name"`
	LastName  string  `json:"last_name"`
	Phone     *string `json:"phone,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type authResponse struct {
	AccessToken string            `json:"access_token"`
	User        model.UserSummary `json:"user"`
}

// ============================================================================
// Handlers
// ============================================================================

// Register 用户注册
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if msgs := validateRegister(req); len(msgs) > 0 {
		writeValidationError(w, r, msgs)
		return
	}

	hash, err := HashPassword(h.cfg, req.Password)
	if err != nil {
		log.Printf("[auth.register] HashPassword error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	now := time.Now()
	user := &model.User{
		ID:           generateUserID(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		PasswordHash: hash,
		FirstName:    req.FirstName,
		LastName:     req.LastName,
		Role:         model.UserRoleUser,
		Active:       true,
		Phone:        req.Phone,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	// 邮箱唯一性交给数据库唯一索引，冲突在这里兑现为 409
	if err := h.store.CreateUser(r.Context(), user); err != nil {
		if err == storage.ErrDuplicate {
			writeError(w, r, http.StatusConflict, "email already registered")
			return
		}
		log.Printf("[auth.register] CreateUser error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to create user")
		return
	}

	token, err := GenerateToken(h.cfg, user)
	if err != nil {
		log.Printf("[auth.register] GenerateToken error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User registered: %s (%s)", user.Email, user.ID)
	writeJSON(w, http.StatusCreated, authResponse{
		AccessToken: token,
		User:        user.Summary(),
	})
}

// Login 用户登录
//
// 未知邮箱、停用账户、密码错误返回同一条 401 消息，
// 不泄露用户是否存在。
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if req.Email == "" || req.Password == "" {
		writeError(w, r, http.StatusBadRequest, "email and password are required")
		return
	}

	user, err := h.validateUser(r.Context(), req.Email, req.Password)
	if err != nil {
		log.Printf("[auth.login] validateUser error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}
	if user == nil {
		writeError(w, r, http.StatusUnauthorized, "invalid email or password")
		return
	}

	token, err := GenerateToken(h.cfg, user)
	if err != nil {
		writeError(w, r, http.StatusInternalServerError, "internal error")
		return
	}

	log.Printf("[auth] User logged in: %s", user.Email)
	writeJSON(w, http.StatusOK, authResponse{
		AccessToken: token,
		User:        user.Summary(),
	})
}

// validateUser 凭据校验：查邮箱、查停用标记、比对哈希
// 任一不满足都返回 (nil, nil)，调用方统一兑现为 401
func (h *Handler) validateUser(ctx context.Context, email, password string) (*model.User, error) {
	user, err := h.store.GetUserByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return nil, err
	}
	if user == nil || !user.Active {
		return nil, nil
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, nil
	}
	return user, nil
}

// Profile 获取当前用户信息
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	authUser := GetAuthUser(r.Context())
	if authUser == nil {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), authUser.ID)
	if err != nil || user == nil {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Logout 登出：把当前令牌的 jti 写入吊销黑名单
// TTL 取令牌剩余有效期，过期后黑名单条目自动消失
func (h *Handler) Logout(w http.ResponseWriter, r *http.Request) {
	if GetAuthUser(r.Context()) == nil {
		writeError(w, r, http.StatusUnauthorized, "not authenticated")
		return
	}

	authHeader := r.Header.Get("Authorization")
	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 {
		writeError(w, r, http.StatusUnauthorized, "invalid authorization header")
		return
	}
	claims, err := ParseToken(h.cfg, parts[1])
	if err != nil {
		writeError(w, r, http.StatusUnauthorized, "invalid token")
		return
	}

	if h.revoked != nil && claims.ID != "" {
		if err := h.revoked.RevokeToken(r.Context(), claims.ID, tokenRemainingTTL(claims)); err != nil {
			log.Printf("[auth.logout] RevokeToken error: %v", err)
			writeError(w, r, http.StatusInternalServerError, "failed to revoke token")
			return
		}
	}

	log.Printf("[auth] User logged out: %s", claims.Email)
	writeJSON(w, http.StatusOK, map[string]string{"message": "logged out"})
}

// ============================================================================
// Admin Bootstrap
// ============================================================================

// EnsureAdminUser 确保管理员用户存在（启动时调用）
// 如果配置了 adminEmail 且数据库中不存在该用户，则自动创建
func EnsureAdminUser(store UserStore, cfg Config, adminEmail, adminPassword string) error {
	if adminEmail == "" || adminPassword == "" {
		return nil
	}

	ctx := context.Background()
	existing, err := store.GetUserByEmail(ctx, adminEmail)
	if err != nil {
		return fmt.Errorf("check admin user: %w", err)
	}
	if existing != nil {
		log.Printf("[auth] Admin user already exists: %s (%s)", adminEmail, existing.ID)
		return nil
	}

	hash, err := HashPassword(cfg, adminPassword)
	if err != nil {
		return fmt.Errorf("hash admin password: %w", err)
	}

	now := time.Now()
	user := &model.User{
		ID:           generateUserID(),
		Email:        adminEmail,
		PasswordHash: hash,
		FirstName:    "Admin",
		Role:         model.UserRoleAdmin,
		Active:       true,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := store.CreateUser(ctx, user); err != nil {
		return fmt.Errorf("create admin user: %w", err)
	}
	log.Printf("[auth] Created admin user: %s (%s)", adminEmail, user.ID)
	return nil
}

// ============================================================================
// 工具函数
// ============================================================================

func validateRegister(req registerRequest) []string {
	var msgs []string
	if req.Email == "" {
		msgs = append(msgs, "email is required")
	} else if !isValidEmail(req.Email) {
		msgs = append(msgs, "invalid email format")
	}
	if req.Password == "" {
		msgs = append(msgs, "password is required")
	} else if len(req.Password) < 8 {
		msgs = append(msgs, "password must be at least 8 characters")
	}
	if req.FirstName == "" {
		msgs = append(msgs, "first_name is required")
	}
	return msgs
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError 统一错误信封 {statusCode, timestamp, path, method, error}
func writeError(w http.ResponseWriter, r *http.Request, status int, message string) {
	writeJSON(w, status, map[string]interface{}{
		"statusCode": status,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"path":       r.URL.Path,
		"method":     r.Method,
		"error":      message,
	})
}

// writeValidationError 400 + 字段级错误列表
func writeValidationError(w http.ResponseWriter, r *http.Request, messages []string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"statusCode": http.StatusBadRequest,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"path":       r.URL.Path,
		"method":     r.Method,
		"error":      messages,
	})
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

func isValidEmail(email string) bool {
	return emailRegex.MatchString(email)
}

func generateUserID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "usr-" + hex.EncodeToString(b)
}
