// Package recurrence はサブスクリプションの課金周期に関する純粋な日付計算を提供する。
// 次回支払日の算出、指定月内の支払日の射影、日数差の計算を含む。
// I/Oや現在時刻への暗黙の依存は一切持たない。
package recurrence

import (
	"math"
	"time"

	"github.com/hitoshi/subtrack/internal/model"
)

// NextOccurrence は基準日anchorと周期cycleで定義される繰り返しのうち、
// refより厳密に後の最小の支払日を返す。
//
// monthlyの場合はanchorの「日」を保ちながら月単位で進める。
// annuallyの場合は「月」と「日」を保ちながら年単位で進める。
// anchorの日がターゲット月に存在しない場合（31日→2月など）は
// ターゲット月の末日に丸める。非うるう年の2月29日アンカーも同様。
// 丸めはロールオーバー（3月2日などへのはみ出し）を意図的に避けるための決定的規則。
//
// 対応外の周期が渡された場合はfalseを返す。
func NextOccurrence(anchor time.Time, cycle model.Cycle, ref time.Time) (time.Time, bool) {
	anchor = ToMidnight(anchor)

	switch cycle {
	case model.CycleMonthly:
		year, month := anchor.Year(), anchor.Month()
		cand := clampedDate(year, month, anchor.Day(), anchor.Location())
		for !cand.After(ref) {
			month++
			if month > time.December {
				month = time.January
				year++
			}
			cand = clampedDate(year, month, anchor.Day(), anchor.Location())
		}
		return cand, true

	case model.CycleAnnually:
		year := anchor.Year()
		cand := clampedDate(year, anchor.Month(), anchor.Day(), anchor.Location())
		for !cand.After(ref) {
			year++
			cand = clampedDate(year, anchor.Month(), anchor.Day(), anchor.Location())
		}
		return cand, true

	default:
		return time.Time{}, false
	}
}

// OccurrenceWithinMonth は指定された年月に支払が発生する場合、その日付を返す。
// 現在時刻には依存しない純粋なカレンダー射影であり、ダイジェスト生成に使用する。
//
// monthlyの場合は毎月支払があるため常に日付を返す（日は月末に丸める）。
// annuallyの場合はmonthがanchorの月と一致し、かつyearがanchorの年以降の
// 場合に限り日付を返す。それ以外はfalseを返す。
func OccurrenceWithinMonth(anchor time.Time, cycle model.Cycle, year int, month time.Month) (time.Time, bool) {
	anchor = ToMidnight(anchor)

	switch cycle {
	case model.CycleMonthly:
		return clampedDate(year, month, anchor.Day(), anchor.Location()), true

	case model.CycleAnnually:
		if month != anchor.Month() || year < anchor.Year() {
			return time.Time{}, false
		}
		return clampedDate(year, month, anchor.Day(), anchor.Location()), true

	default:
		return time.Time{}, false
	}
}

// DaysUntil はrefからtargetまでのカレンダー日数差を返す。
// 両者を深夜0時に切り詰めてから差を取るため、時刻成分には影響されない。
// targetが過去なら負、同日なら0を返す。
func DaysUntil(target, ref time.Time) int {
	t := ToMidnight(target)
	r := ToMidnight(ref)
	return int(math.Round(t.Sub(r).Hours() / 24))
}

// ToMidnight は日付を保ったまま時刻成分を深夜0時に切り詰めた値を返す。
// 元の値は変更しない。
func ToMidnight(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// clampedDate は指定の年月日からなる深夜0時の日付を返す。
// dayがその月の末日を超える場合は末日に丸める。
func clampedDate(year int, month time.Month, day int, loc *time.Location) time.Time {
	last := lastDayOfMonth(year, month)
	if day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// lastDayOfMonth は指定された年月の末日を返す。
func lastDayOfMonth(year int, month time.Month) int {
	// 翌月0日 = 当月末日
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
