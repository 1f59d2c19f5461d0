package handler

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/subtrack/internal/middleware"
	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
	"github.com/hitoshi/subtrack/internal/subscription"
)

// maxImportSize はインポートJSONの最大サイズ（1MB）。
const maxImportSize = 1 << 20

// SubscriptionServiceInterface はサブスクリプションハンドラーが必要とするサービスインターフェース。
type SubscriptionServiceInterface interface {
	// List はユーザーのサブスクリプション一覧をカテゴリ情報付きで返す。
	List(ctx context.Context, userID string) ([]repository.SubscriptionWithCategory, error)
	// Get はサブスクリプションを1件取得する。
	Get(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error)
	// Create はサブスクリプションを検証して作成する。
	Create(ctx context.Context, userID string, input subscription.Input) (*model.Subscription, error)
	// Update はサブスクリプションを検証して更新する。
	Update(ctx context.Context, userID, subscriptionID string, input subscription.Input) (*model.Subscription, error)
	// Delete はサブスクリプションを削除する。
	Delete(ctx context.Context, userID, subscriptionID string) error
	// Export はユーザーの全サブスクリプションをポータブルJSONで返す。
	Export(ctx context.Context, userID string) ([]byte, error)
	// Import はエクスポートJSONを取り込み、重複をスキップする。
	Import(ctx context.Context, userID string, payload []byte) (*subscription.ImportResult, error)
}

// SubscriptionHandler はサブスクリプション管理のHTTPハンドラー。
type SubscriptionHandler struct {
	service SubscriptionServiceInterface
}

// NewSubscriptionHandler はSubscriptionHandlerを生成する。
func NewSubscriptionHandler(service SubscriptionServiceInterface) *SubscriptionHandler {
	return &SubscriptionHandler{
		service: service,
	}
}

// subscriptionRequest はサブスクリプション作成・更新リクエストのボディ。
// コストは精度を保つため文字列で受け取る。支払日は "2006-01-02" 形式。
type subscriptionRequest struct {
	CategoryID           string  `json:"category_id"`
	Name                 string  `json:"name"`
	Cost                 string  `json:"cost"`
	Currency             string  `json:"currency"`
	Cycle                string  `json:"cycle"`
	AnchorDate           *string `json:"anchor_date,omitempty"`
	NotificationsEnabled bool    `json:"notifications_enabled"`
	NotifyLeadDays       []int   `json:"notify_lead_days,omitempty"`
}

// subscriptionResponse はサブスクリプション情報のAPIレスポンス。
type subscriptionResponse struct {
	ID                   string    `json:"id"`
	CategoryID           string    `json:"category_id"`
	CategoryName         string    `json:"category_name,omitempty"`
	CategoryColor        string    `json:"category_color,omitempty"`
	Name                 string    `json:"name"`
	Cost                 string    `json:"cost"`
	Currency             string    `json:"currency"`
	Cycle                string    `json:"cycle"`
	AnchorDate           *string   `json:"anchor_date,omitempty"`
	NotificationsEnabled bool      `json:"notifications_enabled"`
	NotifyLeadDays       []int     `json:"notify_lead_days,omitempty"`
	CreatedAt            time.Time `json:"created_at"`
	UpdatedAt            time.Time `json:"updated_at"`
}

// importResultResponse はインポート結果のAPIレスポンス。
type importResultResponse struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
}

// List はユーザーのサブスクリプション一覧を取得する。
// GET /api/subscriptions
func (h *SubscriptionHandler) List(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	subs, err := h.service.List(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	results := make([]subscriptionResponse, len(subs))
	for i, sub := range subs {
		results[i] = toSubscriptionResponseWithCategory(sub)
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(results)
}

// Get はサブスクリプションを1件取得する。
// GET /api/subscriptions/:id
func (h *SubscriptionHandler) Get(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Get(r.Context(), userID, chi.URLParam(r, "id"))
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toSubscriptionResponse(sub)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Create はサブスクリプションを作成する。
// POST /api/subscriptions
func (h *SubscriptionHandler) Create(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	input, ok := decodeSubscriptionInput(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Create(r.Context(), userID, *input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toSubscriptionResponse(sub)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(resp)
}

// Update はサブスクリプションを更新する。
// PUT /api/subscriptions/:id
func (h *SubscriptionHandler) Update(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	input, ok := decodeSubscriptionInput(w, r)
	if !ok {
		return
	}

	sub, err := h.service.Update(r.Context(), userID, chi.URLParam(r, "id"), *input)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := toSubscriptionResponse(sub)
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Delete はサブスクリプションを削除する。
// DELETE /api/subscriptions/:id
func (h *SubscriptionHandler) Delete(w http.ResponseWriter, r *http.Request) {
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

// Export はユーザーの全サブスクリプションをJSONでダウンロードさせる。
// GET /api/subscriptions/export
func (h *SubscriptionHandler) Export(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	payload, err := h.service.Export(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("Content-Disposition", `attachment; filename="subscriptions.json"`)
	w.Write(payload)
}

// Import はエクスポートJSONを取り込む。
// POST /api/subscriptions/import
func (h *SubscriptionHandler) Import(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxImportSize))
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの読み取りに失敗しました。",
			Category: "validation",
			Action:   "ファイルを確認して再度お試しください。",
		})
		return
	}

	result, err := h.service.Import(r.Context(), userID, payload)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(importResultResponse{
		Imported: result.Imported,
		Skipped:  result.Skipped,
	})
}

// --- ヘルパー関数 ---

// decodeSubscriptionInput はリクエストボディを解析しサービス層の入力に変換する。
// 解析に失敗した場合はエラーレスポンスを書き込みfalseを返す。
func decodeSubscriptionInput(w http.ResponseWriter, r *http.Request) (*subscription.Input, bool) {
	var req subscriptionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return nil, false
	}

	cost, err := decimal.NewFromString(req.Cost)
	if err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("コストは数値で指定してください。"))
		return nil, false
	}

	var anchor *time.Time
	if req.AnchorDate != nil && *req.AnchorDate != "" {
		t, err := time.ParseInLocation("2006-01-02", *req.AnchorDate, time.Local)
		if err != nil {
			writeAPIErrorResponse(w, http.StatusBadRequest, model.NewValidationError("支払日は YYYY-MM-DD 形式で指定してください。"))
			return nil, false
		}
		anchor = &t
	}

	return &subscription.Input{
		CategoryID:           req.CategoryID,
		Name:                 req.Name,
		Cost:                 cost,
		Currency:             model.Currency(req.Currency),
		Cycle:                model.Cycle(req.Cycle),
		AnchorDate:           anchor,
		NotificationsEnabled: req.NotificationsEnabled,
		NotifyLeadDays:       req.NotifyLeadDays,
	}, true
}

// toSubscriptionResponse はmodel.SubscriptionをAPIレスポンスに変換する。
func toSubscriptionResponse(sub *model.Subscription) subscriptionResponse {
	var anchor *string
	if sub.AnchorDate != nil {
		s := sub.AnchorDate.Format("2006-01-02")
		anchor = &s
	}

	return subscriptionResponse{
		ID:                   sub.ID,
		CategoryID:           sub.CategoryID,
		Name:                 sub.Name,
		Cost:                 sub.Cost.String(),
		Currency:             string(sub.Currency),
		Cycle:                string(sub.Cycle),
		AnchorDate:           anchor,
		NotificationsEnabled: sub.NotificationsEnabled,
		NotifyLeadDays:       sub.NotifyLeadDays,
		CreatedAt:            sub.CreatedAt,
		UpdatedAt:            sub.UpdatedAt,
	}
}

// toSubscriptionResponseWithCategory はカテゴリ情報付きの行をAPIレスポンスに変換する。
func toSubscriptionResponseWithCategory(row repository.SubscriptionWithCategory) subscriptionResponse {
	resp := toSubscriptionResponse(&row.Subscription)
	resp.CategoryName = row.CategoryName
	resp.CategoryColor = row.CategoryColor
	return resp
}

// apiErrorResponse はAPIエラーレスポンスのボディ。
type apiErrorResponse struct {
	Code     string `json:"code"`
	Message  string `json:"message"`
	Category string `json:"category"`
	Action   string `json:"action"`
}

// authorizedUserID はリクエストコンテキストから認証済みユーザーIDを取得する。
// 取得できない場合は401レスポンスを書き込みfalseを返す。
func authorizedUserID(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		writeAPIErrorResponse(w, http.StatusUnauthorized, &model.APIError{
			Code:     "UNAUTHORIZED",
			Message:  "認証が必要です。",
			Category: "auth",
			Action:   "ログインしてください。",
		})
		return "", false
	}
	return userID, true
}

// writeAPIErrorResponse は統一エラーフォーマットでエラーレスポンスを書き込む。
func writeAPIErrorResponse(w http.ResponseWriter, statusCode int, apiErr *model.APIError) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	json.NewEncoder(w).Encode(apiErrorResponse{
		Code:     apiErr.Code,
		Message:  apiErr.Message,
		Category: apiErr.Category,
		Action:   apiErr.Action,
	})
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		statusCode := mapAPIErrorToHTTPStatus(apiErr)
		writeAPIErrorResponse(w, statusCode, apiErr)
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	writeAPIErrorResponse(w, http.StatusInternalServerError, &model.APIError{
		Code:     "INTERNAL_ERROR",
		Message:  "内部エラーが発生しました。",
		Category: "system",
		Action:   "しばらく待ってから再度お試しください。",
	})
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeValidation,
		model.ErrCodeInvalidCurrency,
		model.ErrCodeInvalidCycle,
		model.ErrCodeInvalidLeadDays,
		model.ErrCodeAnchorDateRequired:
		return http.StatusBadRequest
	case model.ErrCodeSubscriptionNotFound,
		model.ErrCodeCategoryNotFound,
		model.ErrCodeUserNotFound:
		return http.StatusNotFound
	case model.ErrCodeCategoryNameTaken,
		model.ErrCodeCategoryNotEmpty,
		model.ErrCodeTelegramAlreadyLinked:
		return http.StatusConflict
	case model.ErrCodeDefaultCategoryProtected:
		return http.StatusForbidden
	case model.ErrCodeTelegramTokenInvalid:
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
