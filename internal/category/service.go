// Package category はカテゴリ管理のドメインロジックを提供する。
package category

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
	"github.com/hitoshi/subtrack/internal/security"
)

// Input はカテゴリの作成・更新の入力。
type Input struct {
	Name         string
	HasReminders bool
	Color        string
	SortBy       model.CategorySort
}

// Service はカテゴリ管理のサービス層。
// 作成、更新、削除、並び替えのビジネスロジックと
// デフォルトカテゴリの保護を提供する。
type Service struct {
	categoryRepo repository.CategoryRepository
	subRepo      repository.SubscriptionRepository
	names        security.NameSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	categoryRepo repository.CategoryRepository,
	subRepo repository.SubscriptionRepository,
	names security.NameSanitizerService,
) *Service {
	return &Service{
		categoryRepo: categoryRepo,
		subRepo:      subRepo,
		names:        names,
	}
}

// List はユーザーのカテゴリ一覧を並び順で返す。
func (s *Service) List(ctx context.Context, userID string) ([]*model.Category, error) {
	categories, err := s.categoryRepo.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	return categories, nil
}

// Create はカテゴリを作成する。名前はユーザー内で一意。
// 新しいカテゴリは並び順の末尾に追加される。
// 名前はHTMLタグを除去してから保存される。
func (s *Service) Create(ctx context.Context, userID string, input Input) (*model.Category, error) {
	input.Name = s.names.SanitizeName(input.Name)

	name, err := s.validateInput(ctx, userID, "", input)
	if err != nil {
		return nil, err
	}

	maxOrder, err := s.categoryRepo.MaxOrderByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ並び順の取得に失敗しました: %w", err)
	}

	now := time.Now()
	category := &model.Category{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		HasReminders: input.HasReminders,
		Color:        input.Color,
		Order:        maxOrder + 1,
		SortBy:       input.SortBy,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if category.Color == "" {
		category.Color = model.DefaultCategoryColor
	}
	if category.SortBy == "" {
		category.SortBy = model.CategorySortAlphabetical
	}

	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
	}
	return category, nil
}

// Update はカテゴリを更新する。
// デフォルトカテゴリのリマインダーは無効化できない。
func (s *Service) Update(ctx context.Context, userID, categoryID string, input Input) (*model.Category, error) {
	input.Name = s.names.SanitizeName(input.Name)

	category, err := s.get(ctx, userID, categoryID)
	if err != nil {
		return nil, err
	}

	name, err := s.validateInput(ctx, userID, categoryID, input)
	if err != nil {
		return nil, err
	}

	if category.IsDefault && !input.HasReminders {
		return nil, model.NewDefaultCategoryProtectedError()
	}

	category.Name = name
	category.HasReminders = input.HasReminders
	if input.Color != "" {
		category.Color = input.Color
	}
	if input.SortBy != "" {
		category.SortBy = input.SortBy
	}
	category.UpdatedAt = time.Now()

	if err := s.categoryRepo.Update(ctx, category); err != nil {
		return nil, fmt.Errorf("カテゴリの更新に失敗しました: %w", err)
	}
	return category, nil
}

// Delete はカテゴリを削除する。
// デフォルトカテゴリ、およびサブスクリプションが残っているカテゴリは削除できない。
func (s *Service) Delete(ctx context.Context, userID, categoryID string) error {
	category, err := s.get(ctx, userID, categoryID)
	if err != nil {
		return err
	}
	if category.IsDefault {
		return model.NewDefaultCategoryProtectedError()
	}

	count, err := s.subRepo.CountByCategoryID(ctx, categoryID)
	if err != nil {
		return fmt.Errorf("サブスクリプション数の取得に失敗しました: %w", err)
	}
	if count > 0 {
		return model.NewCategoryNotEmptyError(count)
	}

	if err := s.categoryRepo.Delete(ctx, categoryID); err != nil {
		return fmt.Errorf("カテゴリの削除に失敗しました: %w", err)
	}
	return nil
}

// Reorder はカテゴリの並び順を指定されたID順に更新する。
// ユーザーの全カテゴリを過不足なく含む必要がある。
func (s *Service) Reorder(ctx context.Context, userID string, orderedIDs []string) error {
	categories, err := s.categoryRepo.ListByUserID(ctx, userID)
	if err != nil {
		return fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}

	if len(orderedIDs) != len(categories) {
		return model.NewValidationError("並び替え対象のカテゴリ数が一致しません")
	}
	owned := make(map[string]bool, len(categories))
	for _, c := range categories {
		owned[c.ID] = true
	}
	for _, id := range orderedIDs {
		if !owned[id] {
			return model.NewCategoryNotFoundError(id)
		}
	}

	for i, id := range orderedIDs {
		if err := s.categoryRepo.UpdateOrder(ctx, userID, id, i+1); err != nil {
			return fmt.Errorf("カテゴリ並び順の更新に失敗しました: %w", err)
		}
	}
	return nil
}

// EnsureDefault はユーザーのデフォルトカテゴリを返す。存在しない場合は作成する。
// 新規ユーザーのサインアップ時に呼ばれる。
func (s *Service) EnsureDefault(ctx context.Context, userID string) (*model.Category, error) {
	category, err := s.categoryRepo.FindDefaultByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("デフォルトカテゴリの取得に失敗しました: %w", err)
	}
	if category != nil {
		return category, nil
	}

	now := time.Now()
	category = &model.Category{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         model.DefaultCategoryName,
		HasReminders: true,
		Color:        model.DefaultCategoryColor,
		IsDefault:    true,
		Order:        1,
		SortBy:       model.CategorySortAlphabetical,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("デフォルトカテゴリの作成に失敗しました: %w", err)
	}
	return category, nil
}

func (s *Service) get(ctx context.Context, userID, categoryID string) (*model.Category, error) {
	category, err := s.categoryRepo.FindByID(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil || category.UserID != userID {
		return nil, model.NewCategoryNotFoundError(categoryID)
	}
	return category, nil
}

// validateInput は名前と並び順の検証を行い、正規化済みの名前を返す。
// excludeIDは更新時の自分自身（名前重複チェックから除外）。
func (s *Service) validateInput(ctx context.Context, userID, excludeID string, input Input) (string, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return "", model.NewValidationError("カテゴリ名は必須です")
	}
	if input.SortBy != "" && !model.IsValidCategorySort(input.SortBy) {
		return "", model.NewValidationError(fmt.Sprintf("非対応の並び順です: %s", input.SortBy))
	}

	existing, err := s.categoryRepo.FindByUserAndName(ctx, userID, name)
	if err != nil {
		return "", fmt.Errorf("カテゴリ名の重複チェックに失敗しました: %w", err)
	}
	if existing != nil && existing.ID != excludeID {
		return "", model.NewCategoryNameTakenError(name)
	}
	return name, nil
}
