package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// NameSanitizerService はユーザー入力の表示名のサニタイズ機能のインターフェースを定義する。
// サブスクリプション名とカテゴリ名は保存後にWeb UIとTelegramメッセージの
// 両方へ出力されるため、保存前にHTMLタグを除去する。
type NameSanitizerService interface {
	// SanitizeName は表示名からHTMLタグを除去し、前後の空白を取り除いて返す。
	// タグを含まない入力はそのまま返す（冪等）。
	SanitizeName(raw string) string
}

// nameSanitizer はNameSanitizerServiceの実装。
// bluemondayのStrictPolicy（全タグ除去）を保持し、スレッドセーフに動作する。
type nameSanitizer struct {
	policy *bluemonday.Policy
}

// NewNameSanitizer はNameSanitizerServiceの新しいインスタンスを生成する。
func NewNameSanitizer() *nameSanitizer {
	return &nameSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// SanitizeName は表示名からHTMLタグを除去する。
// StrictPolicyは残ったテキストをエンティティ参照にエスケープするため、
// 「Tom & Jerry」のような正当な名前を壊さないようアンエスケープして戻す。
func (s *nameSanitizer) SanitizeName(raw string) string {
	stripped := s.policy.Sanitize(raw)
	return strings.TrimSpace(html.UnescapeString(stripped))
}
