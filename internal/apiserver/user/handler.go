// Package user 用户领域 - HTTP 处理
package user

import (
	"encoding/json"
	"log"
	"net/http"
	"regexp"
	"strings"
	"time"

	"catalog-admin/internal/apiserver/auth"
	"catalog-admin/internal/shared/model"
	"catalog-admin/internal/shared/storage"
)

// Handler 用户领域 HTTP 处理器
type Handler struct {
	store storage.UserStore
}

// NewHandler 创建用户处理器
func NewHandler(store storage.UserStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册用户相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/users", h.List)
	mux.HandleFunc("GET /api/v1/users/{id}", h.Get)
	mux.HandleFunc("GET /api/v1/users/{id}/stats", h.Stats)
	mux.HandleFunc("PATCH /api/v1/users/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/users/{id}", h.Delete)
}

// List 用户列表（admin/moderator）
// ?include_inactive=true 时包含已停用用户
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin, model.UserRoleModerator) == nil {
		return
	}

	includeInactive := r.URL.Query().Get("include_inactive") == "true"
	users, err := h.store.ListUsers(r.Context(), includeInactive)
	if err != nil {
		log.Printf("[user] ListUsers error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list users")
		return
	}
	if users == nil {
		users = []*model.User{}
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"users": users})
}

// Get 查询单个用户（本人或 admin/moderator）
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	caller := auth.Require(w, r)
	if caller == nil {
		return
	}

	id := r.PathValue("id")
	if !h.canAccess(caller, id) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}

	user, err := h.store.GetUserByID(r.Context(), id)
	if err != nil {
		log.Printf("[user] GetUserByID error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get user")
		return
	}
	if user == nil {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Stats 用户统计（本人或 admin/moderator）
func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	caller := auth.Require(w, r)
	if caller == nil {
		return
	}

	id := r.PathValue("id")
	if !h.canAccess(caller, id) {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}

	stats, err := h.store.GetUserStats(r.Context(), id)
	if err == storage.ErrNotFound {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		log.Printf("[user] GetUserStats error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get user stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

type updateRequest struct {
	Email     *string         `json:"email,omitempty"`
	FirstName *string         `json:"first_name,omitempty"`
	LastName  *string         `json:"last_name,omitempty"`
	Phone     *string         `json:"phone,omitempty"`
	Active    *bool           `json:"active,omitempty"`
	Role      *model.UserRole `json:"role,omitempty"`
}

// Update 部分更新用户（本人或 admin；角色和停用标记仅 admin 可改）
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	caller := auth.Require(w, r)
	if caller == nil {
		return
	}

	id := r.PathValue("id")
	isAdmin := caller.Role == model.UserRoleAdmin
	if caller.ID != id && !isAdmin {
		writeError(w, r, http.StatusForbidden, "insufficient role")
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}

	if msgs := validateUpdate(req, isAdmin); len(msgs) > 0 {
		writeValidationError(w, r, msgs)
		return
	}

	patch := storage.UserPatch{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
	}
	if req.Email != nil {
		normalized := strings.ToLower(strings.TrimSpace(*req.Email))
		patch.Email = &normalized
	}
	if isAdmin {
		patch.Active = req.Active
		patch.Role = req.Role
	}

	user, err := h.store.UpdateUser(r.Context(), id, patch)
	if err == storage.ErrNotFound {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err == storage.ErrDuplicate {
		writeError(w, r, http.StatusConflict, "email already in use")
		return
	}
	if err != nil {
		log.Printf("[user] UpdateUser error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to update user")
		return
	}

	writeJSON(w, http.StatusOK, user)
}

// Delete 删除用户（admin）
//
// 默认软删除：清除 active 标记，记录保留。
// ?hard=true 时物理删除（危险操作），商品上的弱引用随外键置空。
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin) == nil {
		return
	}

	id := r.PathValue("id")
	hard := r.URL.Query().Get("hard") == "true"

	var err error
	if hard {
		err = h.store.DeleteUser(r.Context(), id)
	} else {
		err = h.store.DeactivateUser(r.Context(), id)
	}
	if err == storage.ErrNotFound {
		writeError(w, r, http.StatusNotFound, "user not found")
		return
	}
	if err != nil {
		log.Printf("[user] delete error (hard=%v): %v", hard, err)
		writeError(w, r, http.StatusInternalServerError, "failed to delete user")
		return
	}

	if hard {
		log.Printf("[user] User hard-deleted: %s", id)
		writeJSON(w, http.StatusOK, map[string]string{"message": "user deleted"})
		return
	}
	log.Printf("[user] User deactivated: %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "user deactivated"})
}

// canAccess 本人或 admin/moderator 可读
func (h *Handler) canAccess(caller *auth.AuthUser, targetID string) bool {
	if caller.ID == targetID {
		return true
	}
	return caller.Role == model.UserRoleAdmin || caller.Role == model.UserRoleModerator
}

// ============================================================================
// 工具函数
// ============================================================================

func validateUpdate(req updateRequest, isAdmin bool) []string {
	var msgs []string
	if req.Email != nil && !emailRegex.MatchString(*req.Email) {
		msgs = append(msgs, "invalid email format")
	}
	if req.Role != nil {
		if !isAdmin {
			msgs = append(msgs, "only admin can change role")
		} else if !model.ValidUserRole(*req.Role) {
			msgs = append(msgs, "invalid role")
		}
	}
	if req.Active != nil && !isAdmin {
		msgs = append(msgs, "only admin can change active flag")
	}
	return msgs
}

var emailRegex = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@[a-zA-Z0-9.-]+\.[a-zA-Z]{2,}$`)

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

func writeValidationError(w http.ResponseWriter, r *http.Request, messages []string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"statusCode": http.StatusBadRequest,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"path":       r.URL.Path,
		"method":     r.Method,
		"error":      messages,
	})
}
