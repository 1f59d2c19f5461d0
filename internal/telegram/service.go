package telegram

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"time"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
)

// connectTokenBytes は接続トークンの乱数長。hex表現で32文字になる。
const connectTokenBytes = 16

// ConnectInfo は接続トークン発行の結果。
type ConnectInfo struct {
	Token     string
	DeepLink  string
	ExpiresAt time.Time
}

// Service はWebアカウントとTelegramチャットの接続フローを提供する。
type Service struct {
	users       repository.UserRepository
	botUsername string
	tokenTTL    time.Duration
	logger      *slog.Logger
}

// NewService はServiceを生成する。
// tokenTTLが0以下の場合はデフォルト値15分を使用する。
func NewService(users repository.UserRepository, botUsername string, tokenTTL time.Duration, logger *slog.Logger) *Service {
	if tokenTTL <= 0 {
		tokenTTL = 15 * time.Minute
	}
	return &Service{
		users:       users,
		botUsername: botUsername,
		tokenTTL:    tokenTTL,
		logger:      logger,
	}
}

// GenerateConnectToken は使い捨ての接続トークンを発行し、ディープリンクとともに返す。
// 既存の未使用トークンは新しいトークンで上書きされる。
func (s *Service) GenerateConnectToken(ctx context.Context, userID string) (*ConnectInfo, error) {
	buf := make([]byte, connectTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		return nil, fmt.Errorf("接続トークンの生成に失敗しました: %w", err)
	}
	token := hex.EncodeToString(buf)
	expiresAt := time.Now().Add(s.tokenTTL)

	if err := s.users.SetConnectToken(ctx, userID, token, expiresAt); err != nil {
		return nil, fmt.Errorf("接続トークンの保存に失敗しました: %w", err)
	}

	s.logger.Info("接続トークンを発行しました",
		slog.String("user_id", userID),
		slog.Time("expires_at", expiresAt),
	)

	return &ConnectInfo{
		Token:     token,
		DeepLink:  fmt.Sprintf("https://t.me/%s?start=%s", s.botUsername, token),
		ExpiresAt: expiresAt,
	}, nil
}

// LinkByToken は接続トークンを検証し、チャットをユーザーに紐付ける。
// トークンが無効・期限切れの場合、および同じチャットが別ユーザーに
// 接続済みの場合はAPIErrorを返す。紐付け成功時にトークンは無効化される。
func (s *Service) LinkByToken(ctx context.Context, token string, chatID int64, username string) (*model.User, error) {
	user, err := s.users.FindByConnectToken(ctx, token)
	if err != nil {
		return nil, fmt.Errorf("接続トークンによるユーザー検索に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewTelegramTokenInvalidError()
	}

	existing, err := s.users.FindByTelegramChatID(ctx, chatID)
	if err != nil {
		return nil, fmt.Errorf("既存のTelegram接続の確認に失敗しました: %w", err)
	}
	if existing != nil && existing.ID != user.ID {
		return nil, model.NewTelegramAlreadyLinkedError()
	}

	now := time.Now()
	if err := s.users.LinkTelegram(ctx, user.ID, chatID, username, now); err != nil {
		return nil, fmt.Errorf("Telegramチャットの紐付けに失敗しました: %w", err)
	}

	s.logger.Info("Telegramチャットを接続しました",
		slog.String("user_id", user.ID),
		slog.Int64("chat_id", chatID),
	)

	chatIDCopy := chatID
	user.TelegramChatID = &chatIDCopy
	user.TelegramUsername = username
	user.TelegramConnectedAt = &now
	return user, nil
}

// Unlink はユーザーのTelegram接続を解除する。
// 未接続の場合も成功として扱う。
func (s *Service) Unlink(ctx context.Context, userID string) error {
	if err := s.users.UnlinkTelegram(ctx, userID); err != nil {
		return fmt.Errorf("Telegram接続の解除に失敗しました: %w", err)
	}
	s.logger.Info("Telegram接続を解除しました", slog.String("user_id", userID))
	return nil
}
