package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/hitoshi/subtrack/internal/model"
)

// PostgresRateRepo はPostgreSQLを使用した為替レートリポジトリ。
// レート一式はJSONBカラムに格納する。
type PostgresRateRepo struct {
	db *sql.DB
}

// NewPostgresRateRepo はPostgresRateRepoを生成する。
func NewPostgresRateRepo(db *sql.DB) *PostgresRateRepo {
	return &PostgresRateRepo{db: db}
}

// Create はレートスナップショットを保存する。
func (r *PostgresRateRepo) Create(ctx context.Context, snapshot *model.RateSnapshot) error {
	rates, err := json.Marshal(snapshot.Rates)
	if err != nil {
		return fmt.Errorf("failed to marshal rates: %w", err)
	}

	_, err = r.db.ExecContext(ctx,
		`INSERT INTO rate_snapshots (id, base_currency, rates, source, fetched_at, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		snapshot.ID, snapshot.BaseCurrency, rates, snapshot.Source, snapshot.FetchedAt, snapshot.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert rate snapshot: %w", err)
	}
	return nil
}

// FindLatest は最新のレートスナップショットを取得する。存在しない場合はnilを返す。
func (r *PostgresRateRepo) FindLatest(ctx context.Context) (*model.RateSnapshot, error) {
	snapshot := &model.RateSnapshot{}
	var rates []byte
	err := r.db.QueryRowContext(ctx,
		`SELECT id, base_currency, rates, source, fetched_at, created_at
		 FROM rate_snapshots
		 ORDER BY fetched_at DESC
		 LIMIT 1`,
	).Scan(&snapshot.ID, &snapshot.BaseCurrency, &rates, &snapshot.Source, &snapshot.FetchedAt, &snapshot.CreatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find latest rate snapshot: %w", err)
	}

	if err := json.Unmarshal(rates, &snapshot.Rates); err != nil {
		return nil, fmt.Errorf("failed to unmarshal rates: %w", err)
	}

	return snapshot, nil
}

// Count は保存済みスナップショット数を返す。
func (r *PostgresRateRepo) Count(ctx context.Context) (int, error) {
	var count int
	err := r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rate_snapshots`,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count rate snapshots: %w", err)
	}
	return count, nil
}

// compile-time interface check
var _ RateRepository = (*PostgresRateRepo)(nil)
