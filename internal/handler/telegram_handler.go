package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/telegram"
)

// TelegramServiceInterface はTelegram連携ハンドラーが必要とするサービスインターフェース。
type TelegramServiceInterface interface {
	// GenerateConnectToken は接続トークンとディープリンクを発行する。
	GenerateConnectToken(ctx context.Context, userID string) (*telegram.ConnectInfo, error)
	// Unlink はTelegram接続を解除する。
	Unlink(ctx context.Context, userID string) error
}

// UserGetter は接続状態の照会に必要なインターフェース。
// user.Serviceが実装する。
type UserGetter interface {
	Get(ctx context.Context, userID string) (*model.User, error)
}

// TelegramHandler はTelegramアカウント連携のHTTPハンドラー。
type TelegramHandler struct {
	service TelegramServiceInterface
	users   UserGetter
}

// NewTelegramHandler はTelegramHandlerを生成する。
func NewTelegramHandler(service TelegramServiceInterface, users UserGetter) *TelegramHandler {
	return &TelegramHandler{
		service: service,
		users:   users,
	}
}

// connectTokenResponse は接続トークン発行のAPIレスポンス。
type connectTokenResponse struct {
	Token     string    `json:"token"`
	DeepLink  string    `json:"deep_link"`
	ExpiresAt time.Time `json:"expires_at"`
}

// telegramStatusResponse は接続状態のAPIレスポンス。
type telegramStatusResponse struct {
	Connected   bool       `json:"connected"`
	Username    string     `json:"username,omitempty"`
	ConnectedAt *time.Time `json:"connected_at,omitempty"`
}

// GenerateConnectToken は接続トークンとディープリンクを発行する。
// POST /api/telegram/connect-token
func (h *TelegramHandler) GenerateConnectToken(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	info, err := h.service.GenerateConnectToken(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(connectTokenResponse{
		Token:     info.Token,
		DeepLink:  info.DeepLink,
		ExpiresAt: info.ExpiresAt,
	})
}

// Status はTelegram接続状態を返す。
// GET /api/telegram/status
func (h *TelegramHandler) Status(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	user, err := h.users.Get(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	resp := telegramStatusResponse{
		Connected: user.IsTelegramConnected(),
	}
	if resp.Connected {
		resp.Username = user.TelegramUsername
		resp.ConnectedAt = user.TelegramConnectedAt
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// Unlink はTelegram接続を解除する。
// DELETE /api/telegram/link
func (h *TelegramHandler) Unlink(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	if err := h.service.Unlink(r.Context(), userID); err != nil {
		handleServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
