// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"
	"database/sql"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/subtrack/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
	CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、categories、subscriptionsはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error

	// FindByTelegramChatID はTelegramチャットIDでユーザーを検索する。見つからない場合はnilを返す。
	FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error)

	// FindByConnectToken は有効期限内の接続トークンでユーザーを検索する。
	// トークンが存在しないか期限切れの場合はnilを返す。
	FindByConnectToken(ctx context.Context, token string) (*model.User, error)

	// SetConnectToken は接続トークンと有効期限を設定する。
	SetConnectToken(ctx context.Context, userID, token string, expiresAt time.Time) error

	// LinkTelegram はTelegram接続情報を保存し、接続トークンをクリアする。
	LinkTelegram(ctx context.Context, userID string, chatID int64, username string, connectedAt time.Time) error

	// UnlinkTelegram はTelegram接続情報と接続トークンを全てクリアする。
	UnlinkTelegram(ctx context.Context, userID string) error

	// UpdateNotificationSettings は通知時刻と月次ダイジェストの有効フラグを更新する。
	UpdateNotificationSettings(ctx context.Context, userID, notificationTime string, monthlyEnabled bool) error

	// ListNotifiableAt はTelegram接続済みかつ通知時刻がhhmmに一致するユーザーを返す。
	ListNotifiableAt(ctx context.Context, hhmm string) ([]*model.User, error)

	// UpdateLastMonthlyNotificationSent は月次ダイジェストの重複送信防止マーカーを更新する。
	// Monthly Digest Selector専用。
	UpdateLastMonthlyNotificationSent(ctx context.Context, userID string, sentAt time.Time) error
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
}

// SubscriptionRepository はサブスクリプションデータの永続化インターフェース。
type SubscriptionRepository interface {
	// FindByID は指定IDのサブスクリプションを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Subscription, error)

	// Create はサブスクリプションを作成する。
	Create(ctx context.Context, sub *model.Subscription) error

	// Update はサブスクリプションを上書き更新する。
	Update(ctx context.Context, sub *model.Subscription) error

	// Delete は指定IDのサブスクリプションを削除する。
	Delete(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全サブスクリプションを削除する。退会処理で使用する。
	DeleteByUserID(ctx context.Context, userID string) error

	// ListByUserID はユーザーの全サブスクリプションを作成日時降順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error)

	// ListByUserIDWithCategory はユーザーの全サブスクリプションをカテゴリ情報付きで返す。
	ListByUserIDWithCategory(ctx context.Context, userID string) ([]SubscriptionWithCategory, error)

	// ListNotifiable はユーザーの通知対象サブスクリプションを返す。
	// notifications_enabled = true かつ notify_lead_days が空でないもの。
	ListNotifiable(ctx context.Context, userID string) ([]*model.Subscription, error)

	// FindDuplicate はインポート時の重複判定用に同名・同額・同カテゴリの
	// サブスクリプションを検索する。見つからない場合はnilを返す。
	FindDuplicate(ctx context.Context, userID, categoryID, name string, cost decimal.Decimal) (*model.Subscription, error)

	// CountByCategoryID はカテゴリに属するサブスクリプション数を返す。
	CountByCategoryID(ctx context.Context, categoryID string) (int, error)

	// UpdateLastNotificationSent は指定サブスクリプション群の重複送信防止マーカーを
	// 一括更新する。Due-Notification Selector専用。
	UpdateLastNotificationSent(ctx context.Context, ids []string, sentAt time.Time) error
}

// CategoryRepository はカテゴリデータの永続化インターフェース。
type CategoryRepository interface {
	// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Category, error)

	// FindByUserAndName はユーザーIDと名前でカテゴリを検索する。見つからない場合はnilを返す。
	FindByUserAndName(ctx context.Context, userID, name string) (*model.Category, error)

	// FindDefaultByUserID はユーザーのデフォルトカテゴリを取得する。見つからない場合はnilを返す。
	FindDefaultByUserID(ctx context.Context, userID string) (*model.Category, error)

	// ListByUserID はユーザーの全カテゴリをorder昇順で返す。
	ListByUserID(ctx context.Context, userID string) ([]*model.Category, error)

	// Create はカテゴリを作成する。
	Create(ctx context.Context, category *model.Category) error

	// Update はカテゴリを上書き更新する。
	Update(ctx context.Context, category *model.Category) error

	// Delete は指定IDのカテゴリを削除する。
	Delete(ctx context.Context, id string) error

	// MaxOrderByUserID はユーザーのカテゴリの最大order値を返す。カテゴリがなければ0を返す。
	MaxOrderByUserID(ctx context.Context, userID string) (int, error)

	// UpdateOrder は指定カテゴリのorder値を更新する。
	UpdateOrder(ctx context.Context, userID, categoryID string, order int) error
}

// RateRepository は為替レートスナップショットの永続化インターフェース。
type RateRepository interface {
	// Create はレートスナップショットを保存する。
	Create(ctx context.Context, snapshot *model.RateSnapshot) error

	// FindLatest は最新のレートスナップショットを取得する。存在しない場合はnilを返す。
	FindLatest(ctx context.Context) (*model.RateSnapshot, error)

	// Count は保存済みスナップショット数を返す。初期化判定に使用する。
	Count(ctx context.Context) (int, error)
}

// SubscriptionWithCategory はサブスクリプションとカテゴリ情報を結合した構造体。
type SubscriptionWithCategory struct {
	model.Subscription
	CategoryName         string
	CategoryHasReminders bool
	CategoryColor        string
}

// TxBeginner はトランザクション開始用のインターフェース。
type TxBeginner interface {
	BeginTx(ctx context.Context, opts *sql.TxOptions) (*sql.Tx, error)
}
