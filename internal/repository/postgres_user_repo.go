package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/hitoshi/subtrack/internal/model"
)

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

const userColumns = `id, email, name, avatar_url,
	telegram_chat_id, telegram_username, telegram_connected_at,
	telegram_connect_token, telegram_connect_token_expires,
	notification_time, monthly_notifications_enabled, last_monthly_notification_sent,
	created_at, updated_at`

// scanUser は1行分のユーザーをスキャンする。
func scanUser(row *sql.Row) (*model.User, error) {
	user := &model.User{}
	var (
		avatarURL        sql.NullString
		telegramUsername sql.NullString
		connectToken     sql.NullString
	)
	err := row.Scan(
		&user.ID, &user.Email, &user.Name, &avatarURL,
		&user.TelegramChatID, &telegramUsername, &user.TelegramConnectedAt,
		&connectToken, &user.TelegramConnectTokenExpires,
		&user.NotificationTime, &user.MonthlyNotificationsEnabled, &user.LastMonthlyNotificationSent,
		&user.CreatedAt, &user.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	user.AvatarURL = avatarURL.String
	user.TelegramUsername = telegramUsername.String
	user.TelegramConnectToken = connectToken.String
	return user, nil
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by ID: %w", err)
	}
	return user, nil
}

// CreateWithIdentity はユーザーとidentityを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateWithIdentity(ctx context.Context, user *model.User, identity *model.Identity) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザーを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, avatar_url, notification_time,
		   monthly_notifications_enabled, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		user.ID, user.Email, user.Name, user.AvatarURL, user.NotificationTime,
		user.MonthlyNotificationsEnabled, user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert user: %w", err)
	}

	// identityを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert identity: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するidentities、sessions、categories、subscriptionsはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user not found: %s", id)
	}
	return nil
}

// FindByTelegramChatID はTelegramチャットIDでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByTelegramChatID(ctx context.Context, chatID int64) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE telegram_chat_id = $1`,
		chatID,
	)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by telegram chat ID: %w", err)
	}
	return user, nil
}

// FindByConnectToken は有効期限内の接続トークンでユーザーを検索する。
// トークンが存在しないか期限切れの場合はnilを返す。
func (r *PostgresUserRepo) FindByConnectToken(ctx context.Context, token string) (*model.User, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE telegram_connect_token = $1 AND telegram_connect_token_expires > now()`,
		token,
	)
	user, err := scanUser(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user by connect token: %w", err)
	}
	return user, nil
}

// SetConnectToken は接続トークンと有効期限を設定する。
func (r *PostgresUserRepo) SetConnectToken(ctx context.Context, userID, token string, expiresAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET telegram_connect_token = $1, telegram_connect_token_expires = $2, updated_at = now()
		 WHERE id = $3`,
		token, expiresAt, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to set connect token: %w", err)
	}
	return nil
}

// LinkTelegram はTelegram接続情報を保存し、接続トークンをクリアする。
func (r *PostgresUserRepo) LinkTelegram(ctx context.Context, userID string, chatID int64, username string, connectedAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET telegram_chat_id = $1, telegram_username = $2, telegram_connected_at = $3,
		     telegram_connect_token = NULL, telegram_connect_token_expires = NULL,
		     updated_at = now()
		 WHERE id = $4`,
		chatID, username, connectedAt, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to link telegram: %w", err)
	}
	return nil
}

// UnlinkTelegram はTelegram接続情報と接続トークンを全てクリアする。
func (r *PostgresUserRepo) UnlinkTelegram(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET telegram_chat_id = NULL, telegram_username = NULL, telegram_connected_at = NULL,
		     telegram_connect_token = NULL, telegram_connect_token_expires = NULL,
		     updated_at = now()
		 WHERE id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to unlink telegram: %w", err)
	}
	return nil
}

// UpdateNotificationSettings は通知時刻と月次ダイジェストの有効フラグを更新する。
func (r *PostgresUserRepo) UpdateNotificationSettings(ctx context.Context, userID, notificationTime string, monthlyEnabled bool) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users
		 SET notification_time = $1, monthly_notifications_enabled = $2, updated_at = now()
		 WHERE id = $3`,
		notificationTime, monthlyEnabled, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update notification settings: %w", err)
	}
	return nil
}

// ListNotifiableAt はTelegram接続済みかつ通知時刻がhhmmに一致するユーザーを返す。
func (r *PostgresUserRepo) ListNotifiableAt(ctx context.Context, hhmm string) ([]*model.User, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE telegram_chat_id IS NOT NULL AND notification_time = $1
		 ORDER BY created_at`,
		hhmm,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifiable users: %w", err)
	}
	defer rows.Close()

	var users []*model.User
	for rows.Next() {
		user := &model.User{}
		var (
			avatarURL        sql.NullString
			telegramUsername sql.NullString
			connectToken     sql.NullString
		)
		err := rows.Scan(
			&user.ID, &user.Email, &user.Name, &avatarURL,
			&user.TelegramChatID, &telegramUsername, &user.TelegramConnectedAt,
			&connectToken, &user.TelegramConnectTokenExpires,
			&user.NotificationTime, &user.MonthlyNotificationsEnabled, &user.LastMonthlyNotificationSent,
			&user.CreatedAt, &user.UpdatedAt,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan user: %w", err)
		}
		user.AvatarURL = avatarURL.String
		user.TelegramUsername = telegramUsername.String
		user.TelegramConnectToken = connectToken.String
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate users: %w", err)
	}

	return users, nil
}

// UpdateLastMonthlyNotificationSent は月次ダイジェストの重複送信防止マーカーを更新する。
func (r *PostgresUserRepo) UpdateLastMonthlyNotificationSent(ctx context.Context, userID string, sentAt time.Time) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE users SET last_monthly_notification_sent = $1, updated_at = now() WHERE id = $2`,
		sentAt, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update last monthly notification sent: %w", err)
	}
	return nil
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
