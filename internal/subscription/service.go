// Package subscription はサブスクリプション管理のドメインロジックを提供する。
package subscription

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
	"github.com/hitoshi/subtrack/internal/security"
)

// Input はサブスクリプションの作成・更新の入力。
type Input struct {
	CategoryID           string
	Name                 string
	Cost                 decimal.Decimal
	Currency             model.Currency
	Cycle                model.Cycle
	AnchorDate           *time.Time
	NotificationsEnabled bool
	NotifyLeadDays       []int
}

// Service はサブスクリプション管理のサービス層。
// CRUD、検証、JSONエクスポート/インポートのビジネスロジックを提供する。
type Service struct {
	subRepo      repository.SubscriptionRepository
	categoryRepo repository.CategoryRepository
	names        security.NameSanitizerService
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(
	subRepo repository.SubscriptionRepository,
	categoryRepo repository.CategoryRepository,
	names security.NameSanitizerService,
) *Service {
	return &Service{
		subRepo:      subRepo,
		categoryRepo: categoryRepo,
		names:        names,
	}
}

// List はユーザーのサブスクリプション一覧をカテゴリ情報付きで返す。
func (s *Service) List(ctx context.Context, userID string) ([]repository.SubscriptionWithCategory, error) {
	rows, err := s.subRepo.ListByUserIDWithCategory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("サブスクリプション一覧の取得に失敗しました: %w", err)
	}
	return rows, nil
}

// Get は指定IDのサブスクリプションを返す。他ユーザーの所有物は未検出として扱う。
func (s *Service) Get(ctx context.Context, userID, subscriptionID string) (*model.Subscription, error) {
	sub, err := s.subRepo.FindByID(ctx, subscriptionID)
	if err != nil {
		return nil, fmt.Errorf("サブスクリプションの取得に失敗しました: %w", err)
	}
	if sub == nil || sub.UserID != userID {
		return nil, model.NewSubscriptionNotFoundError(subscriptionID)
	}
	return sub, nil
}

// Create はサブスクリプションを検証して作成する。
// 名前はHTMLタグを除去してから保存される。
func (s *Service) Create(ctx context.Context, userID string, input Input) (*model.Subscription, error) {
	input.Name = s.names.SanitizeName(input.Name)

	category, err := s.resolveCategory(ctx, userID, input.CategoryID)
	if err != nil {
		return nil, err
	}

	sub := &model.Subscription{
		ID:         uuid.NewString(),
		UserID:     userID,
		CategoryID: category.ID,
	}
	if err := applyInput(sub, category, input); err != nil {
		return nil, err
	}

	now := time.Now()
	sub.CreatedAt = now
	sub.UpdatedAt = now

	if err := s.subRepo.Create(ctx, sub); err != nil {
		return nil, fmt.Errorf("サブスクリプションの作成に失敗しました: %w", err)
	}
	return sub, nil
}

// Update はサブスクリプションを検証して更新する。
// カテゴリの変更も許可される。通知送信マーカーは変更されない。
func (s *Service) Update(ctx context.Context, userID, subscriptionID string, input Input) (*model.Subscription, error) {
	input.Name = s.names.SanitizeName(input.Name)

	sub, err := s.Get(ctx, userID, subscriptionID)
	if err != nil {
		return nil, err
	}

	category, err := s.resolveCategory(ctx, userID, input.CategoryID)
	if err != nil {
		return nil, err
	}

	sub.CategoryID = category.ID
	if err := applyInput(sub, category, input); err != nil {
		return nil, err
	}
	sub.UpdatedAt = time.Now()

	if err := s.subRepo.Update(ctx, sub); err != nil {
		return nil, fmt.Errorf("サブスクリプションの更新に失敗しました: %w", err)
	}
	return sub, nil
}

// Delete はサブスクリプションを削除する。
func (s *Service) Delete(ctx context.Context, userID, subscriptionID string) error {
	if _, err := s.Get(ctx, userID, subscriptionID); err != nil {
		return err
	}
	if err := s.subRepo.Delete(ctx, subscriptionID); err != nil {
		return fmt.Errorf("サブスクリプションの削除に失敗しました: %w", err)
	}
	return nil
}

// resolveCategory はカテゴリの存在と所有者を検証して返す。
func (s *Service) resolveCategory(ctx context.Context, userID, categoryID string) (*model.Category, error) {
	category, err := s.categoryRepo.FindByID(ctx, categoryID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの取得に失敗しました: %w", err)
	}
	if category == nil || category.UserID != userID {
		return nil, model.NewCategoryNotFoundError(categoryID)
	}
	return category, nil
}

// applyInput は入力を検証してサブスクリプションに反映する。
// リマインダーなしカテゴリでは支払日と通知設定が強制的にクリアされる。
func applyInput(sub *model.Subscription, category *model.Category, input Input) error {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return model.NewValidationError("サービス名は必須です")
	}
	if !input.Cost.IsPositive() {
		return model.NewValidationError("コストは正の値で指定してください")
	}
	if !model.IsValidCurrency(input.Currency) {
		return model.NewInvalidCurrencyError(string(input.Currency))
	}
	if !model.IsValidCycle(input.Cycle) {
		return model.NewInvalidCycleError(string(input.Cycle))
	}

	sub.Name = name
	sub.Cost = input.Cost
	sub.Currency = input.Currency
	sub.Cycle = input.Cycle

	if !category.HasReminders {
		sub.AnchorDate = nil
		sub.NotificationsEnabled = false
		sub.NotifyLeadDays = nil
		return nil
	}

	if input.AnchorDate == nil {
		return model.NewAnchorDateRequiredError()
	}
	if !model.IsValidLeadDays(input.NotifyLeadDays) {
		return model.NewInvalidLeadDaysError()
	}
	if input.NotificationsEnabled && len(input.NotifyLeadDays) == 0 {
		return model.NewInvalidLeadDaysError()
	}

	anchor := input.AnchorDate.Truncate(24 * time.Hour)
	sub.AnchorDate = &anchor
	sub.NotificationsEnabled = input.NotificationsEnabled
	sub.NotifyLeadDays = append([]int(nil), input.NotifyLeadDays...)
	return nil
}

// --- エクスポート / インポート ---

// exportDate はエクスポートJSONでの日付形式。
const exportDate = "2006-01-02"

// ExportEntry はエクスポートJSONの1サブスクリプション。
type ExportEntry struct {
	Name                 string  `json:"name"`
	Cost                 string  `json:"cost"`
	Currency             string  `json:"currency"`
	Cycle                string  `json:"cycle"`
	Category             string  `json:"category"`
	AnchorDate           *string `json:"anchorDate,omitempty"`
	NotificationsEnabled bool    `json:"notificationsEnabled"`
	NotifyLeadDays       []int   `json:"notifyLeadDays,omitempty"`
}

// ExportData はエクスポートJSONのルート。
type ExportData struct {
	Version       int           `json:"version"`
	ExportedAt    time.Time     `json:"exportedAt"`
	Subscriptions []ExportEntry `json:"subscriptions"`
}

// ImportResult はインポート処理の結果。
type ImportResult struct {
	Imported int
	Skipped  int
}

// Export はユーザーの全サブスクリプションをポータブルなJSONとして書き出す。
func (s *Service) Export(ctx context.Context, userID string) ([]byte, error) {
	rows, err := s.subRepo.ListByUserIDWithCategory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("サブスクリプション一覧の取得に失敗しました: %w", err)
	}

	data := ExportData{
		Version:       1,
		ExportedAt:    time.Now(),
		Subscriptions: make([]ExportEntry, len(rows)),
	}
	for i, row := range rows {
		entry := ExportEntry{
			Name:                 row.Name,
			Cost:                 row.Cost.String(),
			Currency:             string(row.Currency),
			Cycle:                string(row.Cycle),
			Category:             row.CategoryName,
			NotificationsEnabled: row.NotificationsEnabled,
			NotifyLeadDays:       row.NotifyLeadDays,
		}
		if row.AnchorDate != nil {
			d := row.AnchorDate.Format(exportDate)
			entry.AnchorDate = &d
		}
		data.Subscriptions[i] = entry
	}

	out, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("エクスポートJSONの生成に失敗しました: %w", err)
	}
	return out, nil
}

// Import はエクスポート形式のJSONを読み込み、サブスクリプションを一括登録する。
// 同一カテゴリ・同一名・同一コストの既存サブスクリプションはスキップされる。
// 存在しないカテゴリ名はリマインダー付きカテゴリとして新規作成される。
func (s *Service) Import(ctx context.Context, userID string, payload []byte) (*ImportResult, error) {
	var data ExportData
	if err := json.Unmarshal(payload, &data); err != nil {
		return nil, model.NewValidationError("インポートJSONの形式が不正です")
	}

	result := &ImportResult{}
	for i, entry := range data.Subscriptions {
		cost, err := decimal.NewFromString(entry.Cost)
		if err != nil {
			return nil, model.NewValidationError(fmt.Sprintf("%d件目のコストが不正です: %s", i+1, entry.Cost))
		}

		category, err := s.findOrCreateCategory(ctx, userID, entry.Category)
		if err != nil {
			return nil, err
		}

		existing, err := s.subRepo.FindDuplicate(ctx, userID, category.ID, s.names.SanitizeName(entry.Name), cost)
		if err != nil {
			return nil, fmt.Errorf("重複チェックに失敗しました: %w", err)
		}
		if existing != nil {
			result.Skipped++
			continue
		}

		input := Input{
			CategoryID:           category.ID,
			Name:                 entry.Name,
			Cost:                 cost,
			Currency:             model.Currency(entry.Currency),
			Cycle:                model.Cycle(entry.Cycle),
			NotificationsEnabled: entry.NotificationsEnabled,
			NotifyLeadDays:       entry.NotifyLeadDays,
		}
		if entry.AnchorDate != nil {
			anchor, err := time.ParseInLocation(exportDate, *entry.AnchorDate, time.Local)
			if err != nil {
				return nil, model.NewValidationError(fmt.Sprintf("%d件目の支払日が不正です: %s", i+1, *entry.AnchorDate))
			}
			input.AnchorDate = &anchor
		}

		if _, err := s.Create(ctx, userID, input); err != nil {
			return nil, err
		}
		result.Imported++
	}
	return result, nil
}

// findOrCreateCategory は名前でカテゴリを検索し、なければ作成する。
// 空の名前はデフォルトカテゴリに解決される。
func (s *Service) findOrCreateCategory(ctx context.Context, userID, name string) (*model.Category, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		category, err := s.categoryRepo.FindDefaultByUserID(ctx, userID)
		if err != nil {
			return nil, fmt.Errorf("デフォルトカテゴリの取得に失敗しました: %w", err)
		}
		if category == nil {
			return nil, model.NewCategoryNotFoundError("default")
		}
		return category, nil
	}

	category, err := s.categoryRepo.FindByUserAndName(ctx, userID, name)
	if err != nil {
		return nil, fmt.Errorf("カテゴリの検索に失敗しました: %w", err)
	}
	if category != nil {
		return category, nil
	}

	maxOrder, err := s.categoryRepo.MaxOrderByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ並び順の取得に失敗しました: %w", err)
	}

	now := time.Now()
	category = &model.Category{
		ID:           uuid.NewString(),
		UserID:       userID,
		Name:         name,
		HasReminders: true,
		Color:        model.DefaultCategoryColor,
		Order:        maxOrder + 1,
		SortBy:       model.CategorySortAlphabetical,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.categoryRepo.Create(ctx, category); err != nil {
		return nil, fmt.Errorf("カテゴリの作成に失敗しました: %w", err)
	}
	return category, nil
}
