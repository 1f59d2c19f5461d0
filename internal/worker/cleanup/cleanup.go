// Package cleanup は期限切れデータの自動削除ジョブを提供する。
// 期限切れセッション、期限切れTelegram接続トークン、
// 保持期間（デフォルト90日）を超過したレートスナップショットを日次バッチで削除する。
package cleanup

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"
)

// Executor はSQLのExecContextを抽象化するインターフェース。
// *sql.DB や *sql.Tx を受け付けることができる。
type Executor interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
}

// CleanupJob は期限切れデータの自動削除ジョブ。
// 日次実行のバッチジョブとして設計されており、冪等な削除処理を保証する。
type CleanupJob struct {
	db     Executor
	logger *slog.Logger

	// SnapshotRetentionDays はレートスナップショットの保持日数（デフォルト: 90）。
	// 最新のスナップショットは経過日数にかかわらず削除しない。
	SnapshotRetentionDays int
}

// NewCleanupJob は新しいCleanupJobを生成する。
// デフォルトのスナップショット保持日数は90日。
func NewCleanupJob(db Executor, logger *slog.Logger) *CleanupJob {
	return &CleanupJob{
		db:                    db,
		logger:                logger,
		SnapshotRetentionDays: 90,
	}
}

// Run は期限切れデータを削除する。
// 冪等: 削除対象がない場合でもエラーにならない。
// 3つの削除処理は独立しており、途中で失敗した場合はその時点でエラーを返す。
func (j *CleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	expiredSessions, err := j.deleteExpiredSessions(ctx)
	if err != nil {
		return err
	}

	expiredTokens, err := j.clearExpiredConnectTokens(ctx)
	if err != nil {
		return err
	}

	oldSnapshots, err := j.deleteOldSnapshots(ctx)
	if err != nil {
		return err
	}

	duration := time.Since(start)
	j.logger.Info("クリーンアップジョブが完了しました",
		slog.Int64("expired_sessions", expiredSessions),
		slog.Int64("expired_connect_tokens", expiredTokens),
		slog.Int64("old_rate_snapshots", oldSnapshots),
		slog.Int("snapshot_retention_days", j.SnapshotRetentionDays),
		slog.Float64("duration_ms", float64(duration.Milliseconds())),
	)

	return nil
}

// deleteExpiredSessions は有効期限を過ぎたセッションを削除する。
func (j *CleanupJob) deleteExpiredSessions(ctx context.Context) (int64, error) {
	query := `DELETE FROM sessions WHERE expires_at < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("期限切れセッションの削除に失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れセッションの削除に失敗: %w", err)
	}
	return rowsAffected(result)
}

// clearExpiredConnectTokens は有効期限を過ぎた未使用のTelegram接続トークンをクリアする。
func (j *CleanupJob) clearExpiredConnectTokens(ctx context.Context) (int64, error) {
	query := `UPDATE users
	 SET telegram_connect_token = NULL, telegram_connect_token_expires = NULL, updated_at = now()
	 WHERE telegram_connect_token IS NOT NULL AND telegram_connect_token_expires < now()`
	result, err := j.db.ExecContext(ctx, query)
	if err != nil {
		j.logger.Error("期限切れ接続トークンのクリアに失敗しました",
			slog.String("error", err.Error()),
		)
		return 0, fmt.Errorf("期限切れ接続トークンのクリアに失敗: %w", err)
	}
	return rowsAffected(result)
}

// deleteOldSnapshots は保持期間を超過したレートスナップショットを削除する。
// 換算に常に最新レートを使えるよう、最新の1件は保持期間を超えていても残す。
func (j *CleanupJob) deleteOldSnapshots(ctx context.Context) (int64, error) {
	interval := fmt.Sprintf("%d days", j.SnapshotRetentionDays)

	query := `DELETE FROM rate_snapshots
	 WHERE fetched_at < now() - $1::interval
	   AND id <> (SELECT id FROM rate_snapshots ORDER BY fetched_at DESC LIMIT 1)`
	result, err := j.db.ExecContext(ctx, query, interval)
	if err != nil {
		j.logger.Error("古いレートスナップショットの削除に失敗しました",
			slog.String("error", err.Error()),
			slog.Int("snapshot_retention_days", j.SnapshotRetentionDays),
		)
		return 0, fmt.Errorf("古いレートスナップショットの削除に失敗: %w", err)
	}
	return rowsAffected(result)
}

func rowsAffected(result sql.Result) (int64, error) {
	count, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("削除件数の取得に失敗: %w", err)
	}
	return count, nil
}
