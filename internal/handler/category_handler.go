package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subtrack/internal/category"
	"github.com/hitoshi/subtrack/internal/model"
)

// CategoryServiceInterface はカテゴリハンドラーが必要とするサービスインターフェース。
type CategoryServiceInterface interface {
	// List はユーザーのカテゴリ一覧を表示順で返す。
	List(ctx context.Context, userID string) ([]*model.Category, error)
	// Create はカテゴリを検証して作成する。
	Create(ctx context.Context, userID string, input category.Input) (*model.Category, error)
	// Update はカテゴリを検証して更新する。
	Update(ctx context.Context, userID, categoryID string, input category.Input) (*model.Category, error)
	// Delete はカテゴリを削除する。デフォルトカテゴリと使用中カテゴリは削除できない。
	Delete(ctx context.Context, userID, categoryID string) error
	// Reorder はカテゴリの表示順を入れ替える。
	Reorder(ctx context.Context, userID string, orderedIDs []string) error
}

// CategoryHandler はカテゴリ管理のHTTPハンドラー。
type CategoryHandler struct {
	service CategoryServiceInterface
}

// NewCategoryHandler はCategoryHandlerを生成する。
func NewCategoryHandler(service CategoryServiceInterface) *CategoryHandler {
	return &CategoryHandler{
		service: service,
	}
}

// categoryRequest はカテゴリ作成・更新リクエストのボディ。
type categoryRequest struct {
	Name         string `json:"name"`
	HasReminders bool   `json:"has_reminders"`
	Color        string `json:"color"`
	SortBy       string `json:"sort_by"`
}

// categoryReorderRequest はカテゴリ並び替えリクエストのボディ。
// ユーザーの全カテゴリIDを新しい表示順で含む必要がある。
type categoryReorderRequest struct {
	OrderedIDs []string `json:"ordered_ids"`
}

// categoryResponse はカテゴリ情報のAPIレスポンス。
type categoryResponse struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	HasReminders bool      `json:"has_reminders"`
	Color        string    `json:"color"`
	IsDefault    bool      `json:"is_default"`
	Order        int       `json:"order"`
	SortBy       string    `json:"sort_by"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// List はユーザーのカテゴリ一覧を取得する。
// GET /api/categories
func (h *CategoryHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	categories, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]categoryResponse, len(categories))
	for i, c := range categories {
		results[i] = toCategoryResponse(c)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Create はカテゴリを作成する。
// POST /api/categories
func (h *CategoryHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	input, ok := decodeCategoryInput(w, r)
	if !ok {
		return
	}

	created, err := h.service.Create(r.Context(), userID, *input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toCategoryResponse(created)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// Update はカテゴリを更新する。
// PUT /api/categories/:id
func (h *CategoryHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	input, ok := decodeCategoryInput(w, r)
	if !ok {
		return
	}

	updated, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), *input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toCategoryResponse(updated)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Delete はカテゴリを削除する。
// DELETE /api/categories/:id
func (h *CategoryHandler) Delete(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Delete(r.Context(), userID, chi.URLParam(r, "id")); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// Reorder はカテゴリの表示順を入れ替える。
// PUT /api/categories/reorder
func (h *CategoryHandler) Reorder(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	var req categoryReorderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	if err := h.service.Reorder(r.Context(), userID, req.OrderedIDs); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// decodeCategoryInput はリクエストボディを解析しサービス層の入力に変換する。
func decodeCategoryInput(w http.ResponseWriter, r *http.Request) (*category.Input, bool) {
	var req categoryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return nil, false
	}

	return &category.Input{
		Name:         req.Name,
		HasReminders: req.HasReminders,
		Color:        req.Color,
		SortBy:       model.CategorySort(req.SortBy),
	}, true
}

// toCategoryResponse はmodel.CategoryをAPIレスポンスに変換する。
func toCategoryResponse(c *model.Category) categoryResponse {
	return categoryResponse{
		ID:           c.ID,
		Name:         c.Name,
		HasReminders: c.HasReminders,
		Color:        c.Color,
		IsDefault:    c.IsDefault,
		Order:        c.Order,
		SortBy:       string(c.SortBy),
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
}
