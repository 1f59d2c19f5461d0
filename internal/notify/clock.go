// Package notify は定期支払いの通知エンジンを提供する。
// リマインダー選択、月次ダイジェスト選択、メッセージ組み立てを含む。
package notify

import "time"

// Clock は現在時刻の取得を抽象化する。テストでは固定時刻を注入する。
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock はシステム時刻を返すClockを生成する。
func SystemClock() Clock {
	return systemClock{}
}
