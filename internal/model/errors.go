// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, subscription, category, telegram, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeValidation               = "VALIDATION_FAILED"
	ErrCodeInvalidCurrency          = "INVALID_CURRENCY"
	ErrCodeInvalidCycle             = "INVALID_CYCLE"
	ErrCodeInvalidLeadDays          = "INVALID_LEAD_DAYS"
	ErrCodeAnchorDateRequired       = "ANCHOR_DATE_REQUIRED"
	ErrCodeSubscriptionNotFound     = "SUBSCRIPTION_NOT_FOUND"
	ErrCodeCategoryNotFound         = "CATEGORY_NOT_FOUND"
	ErrCodeCategoryNameTaken        = "CATEGORY_NAME_TAKEN"
	ErrCodeCategoryNotEmpty         = "CATEGORY_NOT_EMPTY"
	ErrCodeDefaultCategoryProtected = "DEFAULT_CATEGORY_PROTECTED"
	ErrCodeTelegramTokenInvalid     = "TELEGRAM_TOKEN_INVALID"
	ErrCodeTelegramAlreadyLinked    = "TELEGRAM_ALREADY_LINKED"
	ErrCodeUserNotFound             = "USER_NOT_FOUND"
)

// NewValidationError は入力検証エラーを生成する。
func NewValidationError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeValidation,
		Message:  fmt.Sprintf("入力値が不正です: %s", reason),
		Category: "validation",
		Action:   "入力内容を確認して再度お試しください。",
	}
}

// NewInvalidCurrencyError は非対応通貨エラーを生成する。
func NewInvalidCurrencyError(c string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCurrency,
		Message:  fmt.Sprintf("非対応の通貨です: %s", c),
		Category: "validation",
		Action:   "通貨には RUB、USD、EUR、RSD のいずれかを指定してください。",
	}
}

// NewInvalidCycleError は非対応課金周期エラーを生成する。
func NewInvalidCycleError(c string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCycle,
		Message:  fmt.Sprintf("非対応の課金周期です: %s", c),
		Category: "validation",
		Action:   "課金周期には monthly または annually を指定してください。",
	}
}

// NewInvalidLeadDaysError はリード日数が許可値以外の場合のエラーを生成する。
func NewInvalidLeadDaysError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidLeadDays,
		Message:  "リマインダーのリード日数が不正です。",
		Category: "validation",
		Action:   "リード日数には 1、3、7 のいずれかを指定してください。通知を有効にする場合は1つ以上必要です。",
	}
}

// NewAnchorDateRequiredError は支払日必須エラーを生成する。
func NewAnchorDateRequiredError() *APIError {
	return &APIError{
		Code:     ErrCodeAnchorDateRequired,
		Message:  "リマインダー付きカテゴリでは支払日の指定が必要です。",
		Category: "validation",
		Action:   "初回支払日を指定するか、リマインダーなしのカテゴリを選択してください。",
	}
}

// NewSubscriptionNotFoundError はサブスクリプション未検出エラーを生成する。
func NewSubscriptionNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeSubscriptionNotFound,
		Message:  fmt.Sprintf("指定されたサブスクリプションが見つかりません: %s", id),
		Category: "subscription",
		Action:   "サブスクリプションIDを確認してください。",
	}
}

// NewCategoryNotFoundError はカテゴリ未検出エラーを生成する。
func NewCategoryNotFoundError(id string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotFound,
		Message:  fmt.Sprintf("指定されたカテゴリが見つかりません: %s", id),
		Category: "category",
		Action:   "カテゴリIDを確認してください。",
	}
}

// NewCategoryNameTakenError はカテゴリ名重複エラーを生成する。
func NewCategoryNameTakenError(name string) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNameTaken,
		Message:  fmt.Sprintf("同じ名前のカテゴリが既に存在します: %s", name),
		Category: "category",
		Action:   "別の名前を指定してください。",
	}
}

// NewCategoryNotEmptyError はサブスクリプションが残っているカテゴリの削除エラーを生成する。
func NewCategoryNotEmptyError(count int) *APIError {
	return &APIError{
		Code:     ErrCodeCategoryNotEmpty,
		Message:  fmt.Sprintf("サブスクリプションが残っているカテゴリは削除できません（%d件）。", count),
		Category: "category",
		Action:   "先にカテゴリ内のサブスクリプションを移動または削除してください。",
	}
}

// NewDefaultCategoryProtectedError はデフォルトカテゴリへの禁止操作エラーを生成する。
func NewDefaultCategoryProtectedError() *APIError {
	return &APIError{
		Code:     ErrCodeDefaultCategoryProtected,
		Message:  "デフォルトカテゴリは削除やリマインダーの無効化ができません。",
		Category: "category",
		Action:   "デフォルト以外のカテゴリに対して操作してください。",
	}
}

// NewTelegramTokenInvalidError は接続トークン無効エラーを生成する。
func NewTelegramTokenInvalidError() *APIError {
	return &APIError{
		Code:     ErrCodeTelegramTokenInvalid,
		Message:  "接続トークンが無効か期限切れです。",
		Category: "telegram",
		Action:   "Web設定画面で新しい接続トークンを発行してください。",
	}
}

// NewTelegramAlreadyLinkedError は他ユーザーに接続済みのチャットIDのエラーを生成する。
func NewTelegramAlreadyLinkedError() *APIError {
	return &APIError{
		Code:     ErrCodeTelegramAlreadyLinked,
		Message:  "このTelegramアカウントは既に別のユーザーに接続されています。",
		Category: "telegram",
		Action:   "接続中のアカウント側で先に接続を解除してください。",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "ユーザーが見つかりません。",
		Category: "auth",
		Action:   "ログインし直してください。",
	}
}
