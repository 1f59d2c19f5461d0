// Package model はドメインモデルを定義する。
package model

import "time"

// CategorySort はカテゴリ内のサブスクリプション並び順を表す。
type CategorySort string

const (
	// CategorySortAlphabetical は名前順。
	CategorySortAlphabetical CategorySort = "alphabetical"
	// CategorySortPaymentDate は支払日順。
	CategorySortPaymentDate CategorySort = "paymentDate"
)

// IsValidCategorySort は対応する並び順かどうかを返す。
func IsValidCategorySort(s CategorySort) bool {
	return s == CategorySortAlphabetical || s == CategorySortPaymentDate
}

// DefaultCategoryName は新規ユーザーに自動作成されるデフォルトカテゴリ名。
const DefaultCategoryName = "マイサブスク"

// DefaultCategoryColor はカテゴリのデフォルト表示色。
const DefaultCategoryColor = "#3B82F6"

// Category はサブスクリプションの分類を表す。
// 名前はユーザーごとに一意。各ユーザーはちょうど1つのデフォルトカテゴリを持ち、
// デフォルトカテゴリは削除できず、hasRemindersをfalseにできない。
type Category struct {
	ID     string
	UserID string
	Name   string

	// HasReminders がfalseのカテゴリに属するサブスクリプションは
	// 支払日を持たず、リマインダー/ダイジェストの対象外となる。
	// コスト集計には引き続き含まれる。
	HasReminders bool

	Color     string
	IsDefault bool
	Order     int
	SortBy    CategorySort

	CreatedAt time.Time
	UpdatedAt time.Time
}
