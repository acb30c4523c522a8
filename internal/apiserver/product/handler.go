// Package product 商品领域 - HTTP 处理
package product

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"catalog-admin/internal/apiserver/auth"
	"catalog-admin/internal/shared/model"
	"catalog-admin/internal/shared/storage"
)

// 低库存阈值缺省值
const defaultLowStockThreshold = 10

// Handler 商品领域 HTTP 处理器
type Handler struct {
	store storage.ProductStore
}

// NewHandler 创建商品处理器
func NewHandler(store storage.ProductStore) *Handler {
	return &Handler{store: store}
}

// RegisterRoutes 注册商品相关路由
func (h *Handler) RegisterRoutes(mux *http.ServeMux) {
	mux.HandleFunc("GET /api/v1/products", h.List)
	mux.HandleFunc("GET /api/v1/products/featured", h.Featured)
	mux.HandleFunc("GET /api/v1/products/category/{category}", h.ByCategory)
	mux.HandleFunc("GET /api/v1/products/{id}", h.Get)
	mux.HandleFunc("POST /api/v1/products", h.Create)
	mux.HandleFunc("PATCH /api/v1/products/{id}", h.Update)
	mux.HandleFunc("DELETE /api/v1/products/{id}", h.Delete)
	mux.HandleFunc("PATCH /api/v1/products/{id}/stock", h.UpdateStock)
	mux.HandleFunc("PATCH /api/v1/products/{id}/discount", h.ApplyDiscount)
	mux.HandleFunc("GET /api/v1/products/admin/stats", h.AdminStats)
	mux.HandleFunc("GET /api/v1/products/admin/low-stock", h.LowStock)
	mux.HandleFunc("POST /api/v1/products/admin/bulk-status", h.BulkStatus)
}

// ============================================================================
// 查询接口
// ============================================================================

// listMeta 分页元信息
type listMeta struct {
	Total           int  `json:"total"`
	Page            int  `json:"page"`
	Limit           int  `json:"limit"`
	TotalPages      int  `json:"totalPages"`
	HasNextPage     bool `json:"hasNextPage"`
	HasPreviousPage bool `json:"hasPreviousPage"`
}

// List 商品列表：动态过滤 + 排序 + 分页
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	filter, msgs := parseFilter(r)
	if len(msgs) > 0 {
		writeValidationError(w, r, msgs)
		return
	}

	h.list(w, r, filter)
}

// Featured 精选商品
func (h *Handler) Featured(w http.ResponseWriter, r *http.Request) {
	featured := true
	filter, msgs := parseFilter(r)
	if len(msgs) > 0 {
		writeValidationError(w, r, msgs)
		return
	}
	filter.Featured = &featured
	filter.Status = model.ProductStatusActive

	h.list(w, r, filter)
}

// ByCategory 按分类列出商品
func (h *Handler) ByCategory(w http.ResponseWriter, r *http.Request) {
	category := model.ProductCategory(r.PathValue("category"))
	if !model.ValidProductCategory(category) {
		writeError(w, r, http.StatusBadRequest, "invalid category")
		return
	}

	filter, msgs := parseFilter(r)
	if len(msgs) > 0 {
		writeValidationError(w, r, msgs)
		return
	}
	filter.Category = category

	h.list(w, r, filter)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request, filter storage.ProductFilter) {
	products, total, err := h.store.ListProducts(r.Context(), filter)
	if err != nil {
		log.Printf("[product] ListProducts error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list products")
		return
	}
	if products == nil {
		products = []*model.Product{}
	}
	for _, p := range products {
		p.Derive()
	}

	totalPages := (total + filter.Limit - 1) / filter.Limit
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"data": products,
		"meta": listMeta{
			Total:           total,
			Page:            filter.Page,
			Limit:           filter.Limit,
			TotalPages:      totalPages,
			HasNextPage:     filter.Page < totalPages,
			HasPreviousPage: filter.Page > 1,
		},
	})
}

// Get 查询单个商品
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	p, err := h.store.GetProductByID(r.Context(), r.PathValue("id"))
	if err != nil {
		log.Printf("[product] GetProductByID error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get product")
		return
	}
	if p == nil {
		writeError(w, r, http.StatusNotFound, "product not found")
		return
	}
	writeJSON(w, http.StatusOK, p.Derive())
}

// ============================================================================
// 写接口
// ============================================================================

type createRequest struct {
	Name            string                `json:"name"`
	Description     *string               `json:"description,omitempty"`
	Price           float64               `json:"price"`
	Stock           int                   `json:"stock"`
	SKU             *string               `json:"sku,omitempty"`
	Category        model.ProductCategory `json:"category"`
	Status          model.ProductStatus   `json:"status,omitempty"`
	Featured        bool                  `json:"featured"`
	DiscountPercent *float64              `json:"discount_percent,omitempty"`
}

// Create 创建商品（admin/moderator），创建者取当前认证用户
func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	caller := auth.Require(w, r, model.UserRoleAdmin, model.UserRoleModerator)
	if caller == nil {
		return
	}

	var req createRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Status == "" {
		req.Status = model.ProductStatusDraft
	}
	if msgs := validateCreate(req); len(msgs) > 0 {
		writeValidationError(w, r, msgs)
		return
	}

	now := time.Now()
	p := &model.Product{
		ID:              generateProductID(),
		Name:            req.Name,
		Description:     req.Description,
		Price:           model.Round2(req.Price),
		Stock:           req.Stock,
		SKU:             req.SKU,
		Category:        req.Category,
		Status:          req.Status,
		Featured:        req.Featured,
		DiscountPercent: req.DiscountPercent,
		CreatedBy:       &caller.ID,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	// SKU 唯一性交给数据库唯一索引，冲突兑现为 409
	if err := h.store.CreateProduct(r.Context(), p); err != nil {
		if err == storage.ErrDuplicate {
			writeError(w, r, http.StatusConflict, "sku already exists")
			return
		}
		log.Printf("[product] CreateProduct error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to create product")
		return
	}

	log.Printf("[product] Product created: %s (%s)", p.Name, p.ID)
	writeJSON(w, http.StatusCreated, p.Derive())
}

type updateRequest struct {
	Name            *string                `json:"name,omitempty"`
	Description     *string                `json:"description,omitempty"`
	Price           *float64               `json:"price,omitempty"`
	SKU             *string                `json:"sku,omitempty"`
	Category        *model.ProductCategory `json:"category,omitempty"`
	Status          *model.ProductStatus   `json:"status,omitempty"`
	Featured        *bool                  `json:"featured,omitempty"`
	DiscountPercent *float64               `json:"discount_percent,omitempty"`
}

// Update 部分更新商品（admin/moderator）
func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin, model.UserRoleModerator) == nil {
		return
	}

	var req updateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if msgs := validateUpdate(req); len(msgs) > 0 {
		writeValidationError(w, r, msgs)
		return
	}

	p, err := h.store.UpdateProduct(r.Context(), r.PathValue("id"), storage.ProductPatch(req))
	if err == storage.ErrNotFound {
		writeError(w, r, http.StatusNotFound, "product not found")
		return
	}
	if err == storage.ErrDuplicate {
		writeError(w, r, http.StatusConflict, "sku already exists")
		return
	}
	if err != nil {
		log.Printf("[product] UpdateProduct error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to update product")
		return
	}

	writeJSON(w, http.StatusOK, p.Derive())
}

// Delete 物理删除商品（admin），目标不存在报 404
func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin) == nil {
		return
	}

	id := r.PathValue("id")
	err := h.store.DeleteProduct(r.Context(), id)
	if err == storage.ErrNotFound {
		writeError(w, r, http.StatusNotFound, "product not found")
		return
	}
	if err != nil {
		log.Printf("[product] DeleteProduct error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to delete product")
		return
	}

	log.Printf("[product] Product deleted: %s", id)
	writeJSON(w, http.StatusOK, map[string]string{"message": "product deleted"})
}

type stockRequest struct {
	Delta int `json:"delta"`
}

// UpdateStock 库存调整（admin/moderator）
//
// delta 为正补货、为负消耗。扣减以单条条件 UPDATE 落库，
// 余量不足时报明可用量与请求量，原值不变。
// 库存清零不会自动改变商品状态（目录过滤是唯一的缺货语义）。
func (h *Handler) UpdateStock(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin, model.UserRoleModerator) == nil {
		return
	}

	var req stockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Delta == 0 {
		writeError(w, r, http.StatusBadRequest, "delta must be non-zero")
		return
	}

	p, err := h.store.AdjustStock(r.Context(), r.PathValue("id"), req.Delta)
	if err == storage.ErrNotFound {
		writeError(w, r, http.StatusNotFound, "product not found")
		return
	}
	if err == storage.ErrInsufficientStock {
		writeError(w, r, http.StatusBadRequest, fmt.Sprintf(
			"insufficient stock: available %d, requested %d", p.Stock, -req.Delta))
		return
	}
	if err != nil {
		log.Printf("[product] AdjustStock error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to update stock")
		return
	}

	writeJSON(w, http.StatusOK, p.Derive())
}

type discountRequest struct {
	Percent float64 `json:"percent"`
}

// ApplyDiscount 设置折扣（admin/moderator）
// percent 超出 0–100 为校验错误；目标非 active 状态为业务规则错误
func (h *Handler) ApplyDiscount(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin, model.UserRoleModerator) == nil {
		return
	}

	var req discountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Percent < 0 || req.Percent > 100 {
		writeValidationError(w, r, []string{"percent must be between 0 and 100"})
		return
	}

	id := r.PathValue("id")
	p, err := h.store.GetProductByID(r.Context(), id)
	if err != nil {
		log.Printf("[product] GetProductByID error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get product")
		return
	}
	if p == nil {
		writeError(w, r, http.StatusNotFound, "product not found")
		return
	}
	if p.Status != model.ProductStatusActive {
		writeError(w, r, http.StatusBadRequest, "discount can only be applied to active products")
		return
	}

	updated, err := h.store.UpdateProduct(r.Context(), id, storage.ProductPatch{
		DiscountPercent: &req.Percent,
	})
	if err != nil {
		log.Printf("[product] UpdateProduct error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to apply discount")
		return
	}

	writeJSON(w, http.StatusOK, updated.Derive())
}

// ============================================================================
// 管理接口
// ============================================================================

// AdminStats 商品总体统计（admin）
func (h *Handler) AdminStats(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin) == nil {
		return
	}

	stats, err := h.store.GetProductStats(r.Context())
	if err != nil {
		log.Printf("[product] GetProductStats error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to get product stats")
		return
	}

	writeJSON(w, http.StatusOK, stats)
}

// LowStock 低库存清单（admin/moderator），?threshold= 覆盖缺省阈值
func (h *Handler) LowStock(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin, model.UserRoleModerator) == nil {
		return
	}

	threshold := defaultLowStockThreshold
	if raw := r.URL.Query().Get("threshold"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			writeError(w, r, http.StatusBadRequest, "threshold must be a positive integer")
			return
		}
		threshold = n
	}

	products, err := h.store.ListLowStock(r.Context(), threshold)
	if err != nil {
		log.Printf("[product] ListLowStock error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to list low-stock products")
		return
	}
	if products == nil {
		products = []*model.Product{}
	}
	for _, p := range products {
		p.Derive()
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"threshold": threshold,
		"products":  products,
	})
}

type bulkStatusRequest struct {
	IDs    []string            `json:"ids"`
	Status model.ProductStatus `json:"status"`
}

// BulkStatus 批量更新商品状态（admin）
func (h *Handler) BulkStatus(w http.ResponseWriter, r *http.Request) {
	if auth.Require(w, r, model.UserRoleAdmin) == nil {
		return
	}

	var req bulkStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.IDs) == 0 {
		writeError(w, r, http.StatusBadRequest, "ids is required")
		return
	}
	if !model.ValidProductStatus(req.Status) {
		writeError(w, r, http.StatusBadRequest, "invalid status")
		return
	}

	updated, err := h.store.BulkUpdateStatus(r.Context(), req.IDs, req.Status)
	if err != nil {
		log.Printf("[product] BulkUpdateStatus error: %v", err)
		writeError(w, r, http.StatusInternalServerError, "failed to update products")
		return
	}

	log.Printf("[product] Bulk status update: %d products -> %s", updated, req.Status)
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"updated": updated,
		"status":  req.Status,
	})
}

// ============================================================================
// 过滤参数解析
// ============================================================================

// parseFilter 解析查询参数
// page 缺省 1，limit 缺省 10 并在输入边界收敛到 1–100
func parseFilter(r *http.Request) (storage.ProductFilter, []string) {
	q := r.URL.Query()
	var msgs []string

	filter := storage.ProductFilter{
		Search:    q.Get("search"),
		SortBy:    q.Get("sortBy"),
		SortOrder: q.Get("sortOrder"),
		Page:      1,
		Limit:     10,
	}

	if raw := q.Get("category"); raw != "" {
		c := model.ProductCategory(raw)
		if !model.ValidProductCategory(c) {
			msgs = append(msgs, "invalid category")
		}
		filter.Category = c
	}
	if raw := q.Get("status"); raw != "" {
		s := model.ProductStatus(raw)
		if !model.ValidProductStatus(s) {
			msgs = append(msgs, "invalid status")
		}
		filter.Status = s
	}
	if raw := q.Get("minPrice"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			msgs = append(msgs, "minPrice must be a non-negative number")
		} else {
			filter.MinPrice = &v
		}
	}
	if raw := q.Get("maxPrice"); raw != "" {
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil || v < 0 {
			msgs = append(msgs, "maxPrice must be a non-negative number")
		} else {
			filter.MaxPrice = &v
		}
	}
	if raw := q.Get("featured"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			msgs = append(msgs, "featured must be a boolean")
		} else {
			filter.Featured = &v
		}
	}
	if raw := q.Get("inStock"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			msgs = append(msgs, "inStock must be a boolean")
		} else {
			// 只定义正向过滤，inStock=false 不筛缺货
			filter.InStock = v
		}
	}
	if raw := q.Get("page"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			msgs = append(msgs, "page must be a positive integer")
		} else {
			filter.Page = n
		}
	}
	if raw := q.Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 || n > 100 {
			msgs = append(msgs, "limit must be between 1 and 100")
		} else {
			filter.Limit = n
		}
	}

	return filter, msgs
}

func validateCreate(req createRequest) []string {
	var msgs []string
	if req.Name == "" {
		msgs = append(msgs, "name is required")
	}
	if req.Price < 0 {
		msgs = append(msgs, "price must be non-negative")
	}
	if req.Stock < 0 {
		msgs = append(msgs, "stock must be non-negative")
	}
	if !model.ValidProductCategory(req.Category) {
		msgs = append(msgs, "invalid category")
	}
	if !model.ValidProductStatus(req.Status) {
		msgs = append(msgs, "invalid status")
	}
	if req.DiscountPercent != nil && (*req.DiscountPercent < 0 || *req.DiscountPercent > 100) {
		msgs = append(msgs, "discount_percent must be between 0 and 100")
	}
	return msgs
}

func validateUpdate(req updateRequest) []string {
	var msgs []string
	if req.Name != nil && *req.Name == "" {
		msgs = append(msgs, "name must not be empty")
	}
	if req.Price != nil && *req.Price < 0 {
		msgs = append(msgs, "price must be non-negative")
	}
	if req.Category != nil && !model.ValidProductCategory(*req.Category) {
		msgs = append(msgs, "invalid category")
	}
	if req.Status != nil && !model.ValidProductStatus(*req.Status) {
		msgs = append(msgs, "invalid status")
	}
	if req.DiscountPercent != nil && (*req.DiscountPercent < 0 || *req.DiscountPercent > 100) {
		msgs = append(msgs, "discount_percent must be between 0 and 100")
	}
	return msgs
}

// ============================================================================
// 工具函数
// ============================================================================

func generateProductID() string {
	b := make([]byte, 6)
	rand.Read(b)
	return "prd-" + hex.EncodeToString(b)
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

func writeValidationError(w http.ResponseWriter, r *http.Request, messages []string) {
	writeJSON(w, http.StatusBadRequest, map[string]interface{}{
		"statusCode": http.StatusBadRequest,
		"timestamp":  time.Now().UTC().Format(time.RFC3339),
		"path":       r.URL.Path,
		"method":     r.Method,
		"error":      messages,
	})
}
