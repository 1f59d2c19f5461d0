// Package model はドメインモデルを定義する。
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Currency は対応通貨を表す。
type Currency string

const (
	// CurrencyRUB はロシアルーブル。基準通貨。
	CurrencyRUB Currency = "RUB"
	// CurrencyUSD は米ドル。
	CurrencyUSD Currency = "USD"
	// CurrencyEUR はユーロ。
	CurrencyEUR Currency = "EUR"
	// CurrencyRSD はセルビアディナール。
	CurrencyRSD Currency = "RSD"
)

// Currencies は対応通貨の一覧。
var Currencies = []Currency{CurrencyRUB, CurrencyUSD, CurrencyEUR, CurrencyRSD}

// IsValidCurrency は対応通貨かどうかを返す。
func IsValidCurrency(c Currency) bool {
	for _, v := range Currencies {
		if c == v {
			return true
		}
	}
	return false
}

// Symbol は通貨記号を返す。未知の通貨はコードをそのまま返す。
func (c Currency) Symbol() string {
	switch c {
	case CurrencyRUB:
		return "₽"
	case CurrencyUSD:
		return "$"
	case CurrencyEUR:
		return "€"
	case CurrencyRSD:
		return "дин."
	default:
		return string(c)
	}
}

// Cycle はサブスクリプションの課金周期を表す。
type Cycle string

const (
	// CycleMonthly は毎月課金。
	CycleMonthly Cycle = "monthly"
	// CycleAnnually は毎年課金。
	CycleAnnually Cycle = "annually"
)

// IsValidCycle は対応周期かどうかを返す。
func IsValidCycle(c Cycle) bool {
	return c == CycleMonthly || c == CycleAnnually
}

// AllowedLeadDays はリマインダーのリード日数として許可される値。
var AllowedLeadDays = []int{1, 3, 7}

// IsValidLeadDays はリード日数集合が許可値のみで構成されるかを返す。
func IsValidLeadDays(days []int) bool {
	for _, d := range days {
		ok := false
		for _, a := range AllowedLeadDays {
			if d == a {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	return true
}

// Subscription はユーザーが登録した定期課金サービスを表す。
// 1ユーザーに属し、同一ユーザーの1カテゴリを参照する。
type Subscription struct {
	ID         string
	UserID     string
	CategoryID string
	Name       string
	Cost       decimal.Decimal
	Currency   Currency
	Cycle      Cycle

	// AnchorDate は初回（基準）支払日。周期の日（年次の場合は月も）を定義する。
	// リマインダーなしカテゴリに属する場合はnil。
	AnchorDate *time.Time

	// NotificationsEnabled がtrueの場合、NotifyLeadDaysは空であってはならない
	// （エッジで検証され、コアは空集合を「通知なし」として扱う）。
	NotificationsEnabled bool
	NotifyLeadDays       []int

	// LastNotificationSent は日単位の重複送信防止マーカー。
	// Due-Notification Selectorのみが更新する。
	LastNotificationSent *time.Time

	CreatedAt time.Time
	UpdatedAt time.Time
}

// MonthlyCost は月額換算のコストを返す。年次課金は12で割り、小数2桁に丸める。
func (s *Subscription) MonthlyCost() decimal.Decimal {
	if s.Cycle == CycleAnnually {
		return s.Cost.Div(decimal.NewFromInt(12)).Round(2)
	}
	return s.Cost
}

// AnnualCost は年額換算のコストを返す。
func (s *Subscription) AnnualCost() decimal.Decimal {
	if s.Cycle == CycleMonthly {
		return s.Cost.Mul(decimal.NewFromInt(12))
	}
	return s.Cost
}
