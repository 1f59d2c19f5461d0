package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/subtrack/internal/model"
)

// PostgresCategoryRepo はPostgreSQLを使用したカテゴリリポジトリ。
type PostgresCategoryRepo struct {
	db *sql.DB
}

// NewPostgresCategoryRepo はPostgresCategoryRepoを生成する。
func NewPostgresCategoryRepo(db *sql.DB) *PostgresCategoryRepo {
	return &PostgresCategoryRepo{db: db}
}

const categoryColumns = `id, user_id, name, has_reminders, color, is_default, sort_order, sort_by,
	created_at, updated_at`

func scanCategory(scan func(dest ...any) error) (*model.Category, error) {
	category := &model.Category{}
	err := scan(
		&category.ID, &category.UserID, &category.Name, &category.HasReminders,
		&category.Color, &category.IsDefault, &category.Order, &category.SortBy,
		&category.CreatedAt, &category.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return category, nil
}

// FindByID は指定IDのカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByID(ctx context.Context, id string) (*model.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE id = $1`,
		id,
	)
	category, err := scanCategory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category by ID: %w", err)
	}
	return category, nil
}

// FindByUserAndName はユーザーIDと名前でカテゴリを検索する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindByUserAndName(ctx context.Context, userID, name string) (*model.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 AND name = $2`,
		userID, name,
	)
	category, err := scanCategory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find category by name: %w", err)
	}
	return category, nil
}

// FindDefaultByUserID はユーザーのデフォルトカテゴリを取得する。見つからない場合はnilを返す。
func (r *PostgresCategoryRepo) FindDefaultByUserID(ctx context.Context, userID string) (*model.Category, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+categoryColumns+` FROM categories WHERE user_id = $1 AND is_default = true`,
		userID,
	)
	category, err := scanCategory(row.Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find default category: %w", err)
	}
	return category, nil
}

// ListByUserID はユーザーの全カテゴリをorder昇順で返す。
func (r *PostgresCategoryRepo) ListByUserID(ctx context.Context, userID string) ([]*model.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+categoryColumns+` FROM categories
		 WHERE user_id = $1
		 ORDER BY sort_order`,
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list categories: %w", err)
	}
	defer rows.Close()

	var categories []*model.Category
	for rows.Next() {
		category, err := scanCategory(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("failed to scan category: %w", err)
		}
		categories = append(categories, category)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate categories: %w", err)
	}

	return categories, nil
}

// Create はカテゴリを作成する。
func (r *PostgresCategoryRepo) Create(ctx context.Context, category *model.Category) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO categories (id, user_id, name, has_reminders, color, is_default,
		   sort_order, sort_by, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		category.ID, category.UserID, category.Name, category.HasReminders, category.Color,
		category.IsDefault, category.Order, category.SortBy, category.CreatedAt, category.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert category: %w", err)
	}
	return nil
}

// Update はカテゴリを上書き更新する。
func (r *PostgresCategoryRepo) Update(ctx context.Context, category *model.Category) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE categories
		 SET name = $1, has_reminders = $2, color = $3, sort_by = $4, updated_at = $5
		 WHERE id = $6`,
		category.Name, category.HasReminders, category.Color, category.SortBy,
		category.UpdatedAt, category.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update category: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("category not found: %s", category.ID)
	}
	return nil
}

// Delete は指定IDのカテゴリを削除する。
func (r *PostgresCategoryRepo) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM categories WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete category: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("category not found: %s", id)
	}
	return nil
}

// MaxOrderByUserID はユーザーのカテゴリの最大order値を返す。カテゴリがなければ0を返す。
func (r *PostgresCategoryRepo) MaxOrderByUserID(ctx context.Context, userID string) (int, error) {
	var max int
	err := r.db.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(sort_order), 0) FROM categories WHERE user_id = $1`,
		userID,
	).Scan(&max)
	if err != nil {
		return 0, fmt.Errorf("failed to get max category order: %w", err)
	}
	return max, nil
}

// UpdateOrder は指定カテゴリのorder値を更新する。
func (r *PostgresCategoryRepo) UpdateOrder(ctx context.Context, userID, categoryID string, order int) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE categories SET sort_order = $1, updated_at = now()
		 WHERE id = $2 AND user_id = $3`,
		order, categoryID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to update category order: %w", err)
	}
	return nil
}

// compile-time interface check
var _ CategoryRepository = (*PostgresCategoryRepo)(nil)
