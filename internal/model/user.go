// Package model はドメインモデルを定義する。
package model

import "time"

// DefaultNotificationTime は新規ユーザーの通知時刻の初期値。
const DefaultNotificationTime = "09:00"

// User はサービス利用ユーザーを表す。
// 通知チャネル（Telegram）の接続情報と通知設定を保持する。
type User struct {
	ID        string
	Email     string
	Name      string
	AvatarURL string

	// Telegram接続情報。TelegramChatIDがnilの場合は未接続であり、
	// 通知エンジンの処理対象から除外される。
	TelegramChatID      *int64
	TelegramUsername    string
	TelegramConnectedAt *time.Time

	// 接続トークン（16バイトhex、有効期限15分）。接続完了時にクリアされる。
	TelegramConnectToken        string
	TelegramConnectTokenExpires *time.Time

	// NotificationTime はサーバーローカルの "HH:MM" 形式。
	// この時刻と現在時刻が分単位で完全一致したティックでのみ通知を送る。
	NotificationTime string

	// MonthlyNotificationsEnabled は毎月1日のダイジェスト送信の許可フラグ。
	MonthlyNotificationsEnabled bool

	// LastMonthlyNotificationSent は月次ダイジェストの重複送信防止マーカー。
	// Monthly Digest Selectorのみが更新する。
	LastMonthlyNotificationSent *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsTelegramConnected はTelegramチャネルが接続済みかを返す。
func (u *User) IsTelegramConnected() bool {
	return u.TelegramChatID != nil
}

// Identity は外部IdPとの紐付け情報を表す。
// 将来的に複数のIdP（Google, GitHub等）に対応可能な構造。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッションを表す。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
