package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/subtrack/internal/model"
)

// PostgresSubscriptionRepo はPostgreSQLを使用したサブスクリプションリポジトリ。
type PostgresSubscriptionRepo struct {
	db *sql.DB
}

// NewPostgresSubscriptionRepo はPostgresSubscriptionRepoを生成する。
func NewPostgresSubscriptionRepo(db *sql.DB) *PostgresSubscriptionRepo {
	return &PostgresSubscriptionRepo{db: db}
}

const subscriptionColumns = `id, user_id, category_id, name, cost, currency, cycle,
	anchor_date, notifications_enabled, notify_lead_days, last_notification_sent,
	created_at, updated_at`

// leadDaysToArray はリード日数をpq.Int64Arrayに変換する。
func leadDaysToArray(days []int) pq.Int64Array {
	arr := make(pq.Int64Array, 0, len(days))
	for _, d := range days {
		arr = append(arr, int64(d))
	}
	return arr
}

// leadDaysFromArray はpq.Int64Arrayをリード日数に変換する。
func leadDaysFromArray(arr pq.Int64Array) []int {
	if len(arr) == 0 {
		return nil
	}
	days := make([]int, 0, len(arr))
	for _, v := range arr {
		days = append(days, int(v))
	}
	return days
}

func scanSubscription(scan func(dest ...any) error) (*model.Subscription, error) {
	sub := &model.Subscription{}
	var leadDays pq.Int64Array
	err := scan(
		&sub.ID, &sub.UserID, &sub.CategoryID, &sub.Name, &sub.Cost, &sub.Currency, &sub.Cycle,
		&sub.AnchorDate, &sub.NotificationsEnabled, &leadDays, &sub.LastNotificationSent,
		&sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	sub.NotifyLeadDays = leadDaysFromArray(leadDays)
	return sub, nil
}

// FindByID は指定IDのサブスクリプションを取得する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindByID(ctx context.Context, id string) (*model.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1`,
		id,
	)
	sub, err := scanSubscription(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find subscription by ID: %w", err)
	}
	return sub, nil
}

// Create はサブスクリプションを作成する。
func (r *PostgresSubscriptionRepo) Create(ctx context.Context, sub *model.Subscription) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO subscriptions (id, user_id, category_id, name, cost, currency, cycle,
		   anchor_date, notifications_enabled, notify_lead_days, last_notification_sent,
		   created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		sub.ID, sub.UserID, sub.CategoryID, sub.Name, sub.Cost, sub.Currency, sub.Cycle,
		sub.AnchorDate, sub.NotificationsEnabled, leadDaysToArray(sub.NotifyLeadDays), sub.LastNotificationSent,
		sub.CreatedAt, sub.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert subscription: %w", err)
	}
	return nil
}

// Update はサブスクリプションを上書き更新する。
func (r *PostgresSubscriptionRepo) Update(ctx context.Context, sub *model.Subscription) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions
		 SET category_id = $1, name = $2, cost = $3, currency = $4, cycle = $5,
		     anchor_date = $6, notifications_enabled = $7, notify_lead_days = $8,
		     updated_at = $9
		 WHERE id = $10`,
		sub.CategoryID, sub.Name, sub.Cost, sub.Currency, sub.Cycle,
		sub.AnchorDate, sub.NotificationsEnabled, leadDaysToArray(sub.NotifyLeadDays),
		sub.UpdatedAt, sub.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update subscription: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("subscription not found: %s", sub.ID)
	}
	return nil
}

// Delete は指定IDのサブスクリプションを削除する。
func (r *PostgresSubscriptionRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete subscription: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("subscription not found: %s", id)
	}
	return nil
}

// DeleteByUserID はユーザーの全サブスクリプションを削除する。
func (r *PostgresSubscriptionRepo) DeleteByUserID(ctx context.Context, userID string) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM subscriptions WHERE user_id = $1`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete subscriptions by user: %w", err)
	}
	return nil
}

// ListByUserID はユーザーの全サブスクリプションを作成日時降順で返す。
func (r *PostgresSubscriptionRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1
		 ORDER BY created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

// ListByUserIDWithCategory はユーザーの全サブスクリプションをカテゴリ情報付きで返す。
func (r *PostgresSubscriptionRepo) ListByUserIDWithCategory(ctx context.Context, userID string) ([]SubscriptionWithCategory, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT s.id, s.user_id, s.category_id, s.name, s.cost, s.currency, s.cycle,
		        s.anchor_date, s.notifications_enabled, s.notify_lead_days, s.last_notification_sent,
		        s.created_at, s.updated_at,
		        c.name, c.has_reminders, c.color
		 FROM subscriptions s
		 JOIN categories c ON c.id = s.category_id
		 WHERE s.user_id = $1
		 ORDER BY c.sort_order, s.created_at DESC`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list subscriptions with category: %w", err)
	}
	defer rows.Close()

	var result []SubscriptionWithCategory
	for rows.Next() {
		var swc SubscriptionWithCategory
		var leadDays pq.Int64Array
		err := rows.Scan(
			&swc.ID, &swc.UserID, &swc.CategoryID, &swc.Name, &swc.Cost, &swc.Currency, &swc.Cycle,
			&swc.AnchorDate, &swc.NotificationsEnabled, &leadDays, &swc.LastNotificationSent,
			&swc.CreatedAt, &swc.UpdatedAt,
			&swc.CategoryName, &swc.CategoryHasReminders, &swc.CategoryColor,
		)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription with category: %w", err)
		}
		swc.NotifyLeadDays = leadDaysFromArray(leadDays)
		result = append(result, swc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return result, nil
}

// ListNotifiable はユーザーの通知対象サブスクリプションを返す。
// リマインダーなしカテゴリに属するもの、および通知が無効なものは除外される。
func (r *PostgresSubscriptionRepo) ListNotifiable(ctx context.Context, userID string) ([]*model.Subscription, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1
		   AND notifications_enabled = true
		   AND cardinality(notify_lead_days) > 0
		   AND anchor_date IS NOT NULL
		   AND EXISTS (
		     SELECT 1 FROM categories c
		     WHERE c.id = subscriptions.category_id AND c.has_reminders = true
		   )
		 ORDER BY created_at`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list notifiable subscriptions: %w", err)
	}
	defer rows.Close()

	var subs []*model.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan subscription: %w", err)
		}
		subs = append(subs, sub)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate subscriptions: %w", err)
	}

	return subs, nil
}

// FindDuplicate はインポート時の重複判定用に同名・同額・同カテゴリの
// サブスクリプションを検索する。見つからない場合はnilを返す。
func (r *PostgresSubscriptionRepo) FindDuplicate(ctx context.Context, userID, categoryID, name string, cost decimal.Decimal) (*model.Subscription, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions
		 WHERE user_id = $1 AND category_id = $2 AND name = $3 AND cost = $4
		 LIMIT 1`,
		userID, categoryID, name, cost,
	)
	sub, err := scanSubscription(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find duplicate subscription: %w", err)
	}
	return sub, nil
}

// CountByCategoryID はカテゴリに属するサブスクリプション数を返す。
func (r *PostgresSubscriptionRepo) CountByCategoryID(ctx context.Context, categoryID string) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM subscriptions WHERE category_id = $1`,
		categoryID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count subscriptions by category: %w", err)
	}
	return count, nil
}

// UpdateLastNotificationSent は指定サブスクリプション群の重複送信防止マーカーを一括更新する。
func (r *PostgresSubscriptionRepo) UpdateLastNotificationSent(ctx context.Context, ids []string, sentAt time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	_, err := r.db.ExecContext(ctx,
		`UPDATE subscriptions SET last_notification_sent = $1, updated_at = now()
		 WHERE id = ANY($2)`,
		sentAt, pq.Array(ids),
	)
	if err != nil {
		return fmt.Errorf("failed to update last notification sent: %w", err)
	}
	return nil
}

// compile-time interface check
var _ SubscriptionRepository = (*PostgresSubscriptionRepo)(nil)
