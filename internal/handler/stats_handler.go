package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/stats"
)

// StatsServiceInterface は集計ハンドラーが必要とするサービスインターフェース。
type StatsServiceInterface interface {
	// Summarize はユーザーの支出サマリーを返す。
	Summarize(ctx context.Context, userID string) (*stats.Summary, error)
}

// RateServiceInterface は為替レートハンドラーが必要とするサービスインターフェース。
type RateServiceInterface interface {
	// Latest は最新のレートスナップショットを返す。
	Latest(ctx context.Context) (*model.RateSnapshot, error)
}

// StatsHandler は支出集計と為替レートのHTTPハンドラー。
type StatsHandler struct {
	stats StatsServiceInterface
	rates RateServiceInterface
}

// NewStatsHandler はStatsHandlerを生成する。
func NewStatsHandler(statsService StatsServiceInterface, rateService RateServiceInterface) *StatsHandler {
	return &StatsHandler{
		stats: statsService,
		rates: rateService,
	}
}

// categoryTotalResponse はカテゴリごとの集計のAPIレスポンス。
type categoryTotalResponse struct {
	CategoryID   string `json:"category_id"`
	CategoryName string `json:"category_name"`
	Color        string `json:"color"`
	MonthlyTotal string `json:"monthly_total"`
	Count        int    `json:"count"`
}

// currencyTotalResponse は通貨ごとの換算前合計のAPIレスポンス。
type currencyTotalResponse struct {
	Currency     string `json:"currency"`
	MonthlyTotal string `json:"monthly_total"`
}

// summaryResponse は支出サマリーのAPIレスポンス。
type summaryResponse struct {
	BaseCurrency   string                  `json:"base_currency"`
	MonthlyTotal   string                  `json:"monthly_total"`
	AnnualTotal    string                  `json:"annual_total"`
	ByCategory     []categoryTotalResponse `json:"by_category"`
	ByCurrency     []currencyTotalResponse `json:"by_currency"`
	RateSource     string                  `json:"rate_source"`
	RatesFetchedAt string                  `json:"rates_fetched_at"`
}

// ratesResponse は最新レートスナップショットのAPIレスポンス。
type ratesResponse struct {
	BaseCurrency string            `json:"base_currency"`
	Rates        map[string]string `json:"rates"`
	Source       string            `json:"source"`
	FetchedAt    time.Time         `json:"fetched_at"`
}

// Summary はユーザーの支出サマリーを返す。
// GET /api/stats/summary
func (h *StatsHandler) Summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := authorizedUserID(w, r)
	if !ok {
		return
	}

	summary, err := h.stats.Summarize(r.Context(), userID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	byCategory := make([]categoryTotalResponse, len(summary.ByCategory))
	for i, c := range summary.ByCategory {
		byCategory[i] = categoryTotalResponse{
			CategoryID:   c.CategoryID,
			CategoryName: c.CategoryName,
			Color:        c.Color,
			MonthlyTotal: c.MonthlyTotal.String(),
			Count:        c.Count,
		}
	}

	byCurrency := make([]currencyTotalResponse, len(summary.ByCurrency))
	for i, c := range summary.ByCurrency {
		byCurrency[i] = currencyTotalResponse{
			Currency:     string(c.Currency),
			MonthlyTotal: c.MonthlyTotal.String(),
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summaryResponse{
		BaseCurrency:   string(summary.BaseCurrency),
		MonthlyTotal:   summary.MonthlyTotal.String(),
		AnnualTotal:    summary.AnnualTotal.String(),
		ByCategory:     byCategory,
		ByCurrency:     byCurrency,
		RateSource:     string(summary.RateSource),
		RatesFetchedAt: summary.RatesFetchedAt,
	})
}

// Rates は最新の為替レートスナップショットを返す。
// GET /api/rates
func (h *StatsHandler) Rates(w http.ResponseWriter, r *http.Request) {
	if _, ok := authorizedUserID(w, r); !ok {
		return
	}

	snapshot, err := h.rates.Latest(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}

	rates := make(map[string]string, len(snapshot.Rates))
	for currency, rate := range snapshot.Rates {
		rates[string(currency)] = rate.String()
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(ratesResponse{
		BaseCurrency: string(snapshot.BaseCurrency),
		Rates:        rates,
		Source:       string(snapshot.Source),
		FetchedAt:    snapshot.FetchedAt,
	})
}
