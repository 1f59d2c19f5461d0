// Package stats はコスト集計のドメインロジックを提供する。
// 最新の為替レートスナップショットを使用して基準通貨に換算する。
package stats

import (
	"context"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
)

// RateProvider は最新の為替レートスナップショットを提供する。
// currency.Serviceが実装する。
type RateProvider interface {
	Latest(ctx context.Context) (*model.RateSnapshot, error)
}

// CategoryTotal はカテゴリごとの月額換算合計。
type CategoryTotal struct {
	CategoryID   string
	CategoryName string
	Color        string
	MonthlyTotal decimal.Decimal
	Count        int
}

// CurrencyTotal は通貨ごとの換算前の月額合計。
type CurrencyTotal struct {
	Currency     model.Currency
	MonthlyTotal decimal.Decimal
}

// Summary はユーザーの支出サマリー。
// 合計は基準通貨に換算した月額・年額。換算に使用したレートの情報も含む。
type Summary struct {
	BaseCurrency   model.Currency
	MonthlyTotal   decimal.Decimal
	AnnualTotal    decimal.Decimal
	ByCategory     []CategoryTotal
	ByCurrency     []CurrencyTotal
	RateSource     model.RateSource
	RatesFetchedAt string
}

// Service はコスト集計のサービス層。
type Service struct {
	subRepo repository.SubscriptionRepository
	rates   RateProvider
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(subRepo repository.SubscriptionRepository, rates RateProvider) *Service {
	return &Service{
		subRepo: subRepo,
		rates:   rates,
	}
}

// Summarize はユーザーの全サブスクリプションを集計する。
// リマインダーなしカテゴリのサブスクリプションも集計対象に含まれる。
func (s *Service) Summarize(ctx context.Context, userID string) (*Summary, error) {
	rows, err := s.subRepo.ListByUserIDWithCategory(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("サブスクリプション一覧の取得に失敗しました: %w", err)
	}

	snapshot, err := s.rates.Latest(ctx)
	if err != nil {
		return nil, fmt.Errorf("為替レートの取得に失敗しました: %w", err)
	}

	summary := &Summary{
		BaseCurrency:   snapshot.BaseCurrency,
		MonthlyTotal:   decimal.Zero,
		RateSource:     snapshot.Source,
		RatesFetchedAt: snapshot.FetchedAt.Format("2006-01-02 15:04"),
	}

	byCategory := make(map[string]*CategoryTotal)
	byCurrency := make(map[model.Currency]decimal.Decimal)

	for i := range rows {
		row := &rows[i]
		monthly := row.MonthlyCost()

		converted, _ := snapshot.Convert(monthly, row.Currency)
		summary.MonthlyTotal = summary.MonthlyTotal.Add(converted)

		ct, ok := byCategory[row.CategoryID]
		if !ok {
			ct = &CategoryTotal{
				CategoryID:   row.CategoryID,
				CategoryName: row.CategoryName,
				Color:        row.CategoryColor,
				MonthlyTotal: decimal.Zero,
			}
			byCategory[row.CategoryID] = ct
		}
		ct.MonthlyTotal = ct.MonthlyTotal.Add(converted)
		ct.Count++

		byCurrency[row.Currency] = byCurrency[row.Currency].Add(monthly)
	}

	summary.MonthlyTotal = summary.MonthlyTotal.Round(2)
	summary.AnnualTotal = summary.MonthlyTotal.Mul(decimal.NewFromInt(12)).Round(2)

	summary.ByCategory = make([]CategoryTotal, 0, len(byCategory))
	for _, ct := range byCategory {
		ct.MonthlyTotal = ct.MonthlyTotal.Round(2)
		summary.ByCategory = append(summary.ByCategory, *ct)
	}
	// 金額の大きい順
	sort.Slice(summary.ByCategory, func(i, j int) bool {
		return summary.ByCategory[i].MonthlyTotal.GreaterThan(summary.ByCategory[j].MonthlyTotal)
	})

	// 対応通貨の定義順
	for _, c := range model.Currencies {
		if total, ok := byCurrency[c]; ok {
			summary.ByCurrency = append(summary.ByCurrency, CurrencyTotal{
				Currency:     c,
				MonthlyTotal: total.Round(2),
			})
		}
	}

	return summary, nil
}
