// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// RateSource はレートスナップショットの取得元を表す。
type RateSource string

const (
	// RateSourceAPI は外部APIから取得したレート。
	RateSourceAPI RateSource = "exchangerate-api.com"
	// RateSourceFallback はAPI不達時の固定フォールバックレート。
	RateSourceFallback RateSource = "fallback"
)

// RateSnapshot はある時点の為替レート一式を表す。
// レートは「1単位 = X 基準通貨」の形式で保持する。
type RateSnapshot struct {
	ID           string
	BaseCurrency Currency
	Rates        map[Currency]decimal.Decimal
	Source       RateSource
	FetchedAt    time.Time
	CreatedAt    time.Time
}

// RateFor は指定通貨のレートを返す。未知の通貨はfalseを返す。
func (r *RateSnapshot) RateFor(c Currency) (decimal.Decimal, bool) {
	v, ok := r.Rates[c]
	return v, ok
}

// Convert はamountを指定通貨から基準通貨に換算する。
// レートが未知の場合はamountをそのまま返しfalseを返す。
func (r *RateSnapshot) Convert(amount decimal.Decimal, from Currency) (decimal.Decimal, bool) {
	if from == r.BaseCurrency {
		return amount, true
	}
	rate, ok := r.Rates[from]
	if !ok {
		return amount, false
	}
	return amount.Mul(rate), true
}
