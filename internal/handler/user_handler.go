package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/hitoshi/subtrack/internal/model"
)

// UserServiceInterface はユーザーハンドラーが必要とするサービスインターフェース。
type UserServiceInterface interface {
	// Get はユーザーを取得する。
	Get(ctx context.Context, userID string) (*model.User, error)
	// UpdateNotificationSettings は通知時刻と月次ダイジェストの設定を更新する。
	UpdateNotificationSettings(ctx context.Context, userID, notificationTime string, monthlyEnabled bool) (*model.User, error)
	// Withdraw はユーザーの退会処理を実行する。
	// subscriptions、sessions、categories、identitiesを含む全データを削除する。
	Withdraw(ctx context.Context, userID string) error
}

// UserHandler はユーザー管理のHTTPハンドラー。
type UserHandler struct {
	service UserServiceInterface
}

// NewUserHandler はUserHandlerを生成する。
func NewUserHandler(service UserServiceInterface) *UserHandler {
	return &UserHandler{
		service: service,
	}
}

// notificationSettingsRequest は通知設定更新リクエストのボディ。
type notificationSettingsRequest struct {
	NotificationTime            string `json:"notification_time"`
	MonthlyNotificationsEnabled bool   `json:"monthly_notifications_enabled"`
}

// notificationSettingsResponse は通知設定のAPIレスポンス。
type notificationSettingsResponse struct {
	NotificationTime            string `json:"notification_time"`
	MonthlyNotificationsEnabled bool   `json:"monthly_notifications_enabled"`
}

// GetNotificationSettings は現在の通知設定を返す。
// GET /api/users/me/notifications
func (h *UserHandler) GetNotificationSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	user, err := h.service.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notificationSettingsResponse{
		NotificationTime:            user.NotificationTime,
		MonthlyNotificationsEnabled: user.MonthlyNotificationsEnabled,
	})
}

// UpdateNotificationSettings は通知時刻と月次ダイジェストの設定を更新する。
// PUT /api/users/me/notifications
func (h *UserHandler) UpdateNotificationSettings(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	var req notificationSettingsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeAPIErrorResponse(w, http.StatusBadRequest, &model.APIError{
			Code:     "INVALID_REQUEST",
			Message:  "リクエストボディの解析に失敗しました。",
			Category: "validation",
			Action:   "正しいJSON形式でリクエストしてください。",
		})
		return
	}

	user, err := h.service.UpdateNotificationSettings(r.Context(), userID, req.NotificationTime, req.MonthlyNotificationsEnabled)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(notificationSettingsResponse{
		NotificationTime:            user.NotificationTime,
		MonthlyNotificationsEnabled: user.MonthlyNotificationsEnabled,
	})
}

// Withdraw はユーザーの退会処理を実行する。
// DELETE /api/users/me
func (h *UserHandler) Withdraw(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Withdraw(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	// 退会後はセッションCookieをクリア
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})

	w.WriteHeader(http.StatusNoContent)
}
