// Package currency は為替レートの取得と換算を提供する。
// 外部APIからレートを定期取得してスナップショットとして保存し、
// API不達時は固定のフォールバックレートを使用する。
package currency

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/hitoshi/subtrack/internal/metrics"
	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
	"github.com/hitoshi/subtrack/internal/security"
)

const (
	// fetchTimeout は外部レートAPIへのリクエストタイムアウト。
	fetchTimeout = 15 * time.Second
	// maxResponseSize はレートAPIレスポンスの最大サイズ（1MB）。
	maxResponseSize = 1 << 20
)

// fallbackRates はAPI不達時に使用する固定レート。
// 「1単位 = X 基準通貨（RUB）」の形式。
var fallbackRates = map[model.Currency]decimal.Decimal{
	model.CurrencyUSD: decimal.NewFromInt(90),
	model.CurrencyEUR: decimal.NewFromInt(100),
	model.CurrencyRSD: decimal.RequireFromString("0.85"),
}

// apiResponse は exchangerate-api.com v4 のレスポンス形式。
// ratesは「1基準通貨 = X 対象通貨」なので、保存時には逆数を取る。
type apiResponse struct {
	Base  string             `json:"base"`
	Rates map[string]float64 `json:"rates"`
}

// Service は為替レートの取得・保存・参照を提供する。
type Service struct {
	rates   repository.RateRepository
	guard   security.SSRFGuardService
	apiURL  string
	base    model.Currency
	metrics metrics.MetricsCollector
	logger  *slog.Logger
}

// NewService はServiceを生成する。
func NewService(
	rates repository.RateRepository,
	guard security.SSRFGuardService,
	apiURL string,
	base model.Currency,
	collector metrics.MetricsCollector,
	logger *slog.Logger,
) *Service {
	return &Service{
		rates:   rates,
		guard:   guard,
		apiURL:  apiURL,
		base:    base,
		metrics: collector,
		logger:  logger,
	}
}

// EnsureBaseline はスナップショットが1件もない場合にフォールバックレートを保存する。
// 起動直後からレート換算を可能にするための初期化処理。
func (s *Service) EnsureBaseline(ctx context.Context) error {
	count, err := s.rates.Count(ctx)
	if err != nil {
		return fmt.Errorf("レートスナップショット数の取得に失敗しました: %w", err)
	}
	if count > 0 {
		return nil
	}

	snapshot := s.fallbackSnapshot(time.Now())
	if err := s.rates.Create(ctx, snapshot); err != nil {
		return fmt.Errorf("初期レートスナップショットの保存に失敗しました: %w", err)
	}

	s.logger.Info("フォールバックレートで初期スナップショットを作成しました",
		slog.String("base_currency", string(s.base)),
	)
	return nil
}

// Refresh は外部APIからレートを取得し、スナップショットとして保存する。
// 取得失敗時はエラーを返すのみで、既存スナップショットは維持される。
func (s *Service) Refresh(ctx context.Context) error {
	snapshot, err := s.fetch(ctx)
	if err != nil {
		s.metrics.RecordRateFetchFailure()
		return fmt.Errorf("為替レートの取得に失敗しました: %w", err)
	}

	if err := s.rates.Create(ctx, snapshot); err != nil {
		s.metrics.RecordRateFetchFailure()
		return fmt.Errorf("レートスナップショットの保存に失敗しました: %w", err)
	}

	s.metrics.RecordRateFetchSuccess()
	s.logger.Info("為替レートを更新しました",
		slog.String("base_currency", string(s.base)),
		slog.Int("rate_count", len(snapshot.Rates)),
	)
	return nil
}

// Latest は最新のレートスナップショットを返す。
// 保存済みスナップショットがない場合はフォールバックレートを返す。
func (s *Service) Latest(ctx context.Context) (*model.RateSnapshot, error) {
	snapshot, err := s.rates.FindLatest(ctx)
	if err != nil {
		return nil, fmt.Errorf("最新レートスナップショットの取得に失敗しました: %w", err)
	}
	if snapshot == nil {
		return s.fallbackSnapshot(time.Now()), nil
	}
	return snapshot, nil
}

func (s *Service) fetch(ctx context.Context) (*model.RateSnapshot, error) {
	url := fmt.Sprintf("%s/%s", strings.TrimRight(s.apiURL, "/"), s.base)

	if err := s.guard.ValidateURL(url); err != nil {
		return nil, fmt.Errorf("rate API URL validation failed: %w", err)
	}

	client := s.guard.NewSafeClient(fetchTimeout, maxResponseSize)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("rate API request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rate API returned status %d", resp.StatusCode)
	}

	var body apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode rate API response: %w", err)
	}

	rates := make(map[model.Currency]decimal.Decimal, len(model.Currencies))
	for _, c := range model.Currencies {
		if c == s.base {
			continue
		}
		raw, ok := body.Rates[string(c)]
		if !ok || raw <= 0 {
			return nil, fmt.Errorf("rate API response is missing currency %s", c)
		}
		// APIは「1 RUB = raw X」なので「1 X = 1/raw RUB」に変換する
		rates[c] = decimal.NewFromInt(1).Div(decimal.NewFromFloat(raw)).Round(6)
	}

	now := time.Now()
	return &model.RateSnapshot{
		ID:           uuid.NewString(),
		BaseCurrency: s.base,
		Rates:        rates,
		Source:       model.RateSourceAPI,
		FetchedAt:    now,
		CreatedAt:    now,
	}, nil
}

func (s *Service) fallbackSnapshot(now time.Time) *model.RateSnapshot {
	rates := make(map[model.Currency]decimal.Decimal, len(fallbackRates))
	for c, v := range fallbackRates {
		if c == s.base {
			continue
		}
		rates[c] = v
	}
	return &model.RateSnapshot{
		ID:           uuid.NewString(),
		BaseCurrency: s.base,
		Rates:        rates,
		Source:       model.RateSourceFallback,
		FetchedAt:    now,
		CreatedAt:    now,
	}
}
