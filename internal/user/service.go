// Package user はユーザー管理のドメインロジックを提供する。
package user

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
)

// notificationTimePattern は通知時刻の "HH:MM" 形式（24時間表記）。
var notificationTimePattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// Service はユーザー管理のサービス層。
// 通知設定の更新と退会処理のビジネスロジックを提供する。
type Service struct {
	userRepo    repository.UserRepository
	sessionRepo repository.SessionRepository
	subRepo     repository.SubscriptionRepository
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	userRepo repository.UserRepository,
	sessionRepo repository.SessionRepository,
	subRepo repository.SubscriptionRepository,
) *Service {
	return &Service{
		userRepo:    userRepo,
		sessionRepo: sessionRepo,
		subRepo:     subRepo,
	}
}

// Get はユーザーを取得する。
func (s *Service) Get(ctx context.Context, userID string) (*model.User, error) {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return nil, model.NewUserNotFoundError()
	}
	return user, nil
}

// UpdateNotificationSettings は通知時刻と月次ダイジェストの有効/無効を更新する。
// 通知時刻は "HH:MM" 形式の24時間表記（分単位）。
func (s *Service) UpdateNotificationSettings(ctx context.Context, userID, notificationTime string, monthlyEnabled bool) (*model.User, error) {
	if !notificationTimePattern.MatchString(notificationTime) {
		return nil, model.NewValidationError(fmt.Sprintf("通知時刻の形式が不正です: %s", notificationTime))
	}

	user, err := s.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	if err := s.userRepo.UpdateNotificationSettings(ctx, userID, notificationTime, monthlyEnabled); err != nil {
		return nil, fmt.Errorf("通知設定の更新に失敗しました: %w", err)
	}

	slog.Info("通知設定を更新しました",
		slog.String("user_id", userID),
		slog.String("notification_time", notificationTime),
		slog.Bool("monthly_enabled", monthlyEnabled),
	)

	user.NotificationTime = notificationTime
	user.MonthlyNotificationsEnabled = monthlyEnabled
	return user, nil
}

// Withdraw はユーザーの退会処理を実行する。
// 削除順序: subscriptions → sessions → user（+ CASCADE: identities, categories）
// カテゴリはサブスクリプションからRESTRICT参照されるため、先にサブスクリプションを消す。
func (s *Service) Withdraw(ctx context.Context, userID string) error {
	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return fmt.Errorf("ユーザーの取得に失敗しました: %w", err)
	}
	if user == nil {
		return model.NewUserNotFoundError()
	}

	slog.Info("退会処理を開始します",
		slog.String("user_id", userID),
	)

	if s.subRepo != nil {
		if err := s.subRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("サブスクリプションの削除に失敗しました: %w", err)
		}
	}

	if s.sessionRepo != nil {
		if err := s.sessionRepo.DeleteByUserID(ctx, userID); err != nil {
			return fmt.Errorf("セッションの削除に失敗しました: %w", err)
		}
	}

	if err := s.userRepo.DeleteByID(ctx, userID); err != nil {
		return fmt.Errorf("ユーザーの削除に失敗しました: %w", err)
	}

	slog.Info("退会処理が完了しました",
		slog.String("user_id", userID),
	)

	return nil
}
