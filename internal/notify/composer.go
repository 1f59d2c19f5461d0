package notify

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/hitoshi/subtrack/internal/model"
)

// UncategorizedLabel はカテゴリを解決できないエントリの表示名。
const UncategorizedLabel = "未分類"

// Entry は通知メッセージに載せる1件分の支払い情報。
type Entry struct {
	Name         string
	Cost         decimal.Decimal
	Currency     model.Currency
	Cycle        model.Cycle
	CategoryName string
	Occurrence   time.Time
}

// monthlyEquivalent は月額換算コストを返す。年次課金は12で割り小数2桁に丸める。
func (e Entry) monthlyEquivalent() decimal.Decimal {
	if e.Cycle == model.CycleAnnually {
		return e.Cost.Div(decimal.NewFromInt(12)).Round(2)
	}
	return e.Cost
}

// ComposeReminder はリマインダーメッセージを組み立てる。
// エントリはカテゴリ名でグループ化し、グループ内は支払日昇順に並べる。
// I/Oは行わない純粋な整形関数。
func ComposeReminder(entries []Entry, leadDays int) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("🔔 支払いリマインダー（%s）\n", leadPhrase(leadDays)))

	writeGroups(&b, entries)

	return strings.TrimRight(b.String(), "\n")
}

// ComposeDigest は月次ダイジェストメッセージを組み立てる。
// 支払い済みと支払い予定を分けて表示し、月額換算の通貨別合計を付ける。
func ComposeDigest(paid, upcoming []Entry, now time.Time) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📅 %d年%d月の支払い予定\n", now.Year(), int(now.Month())))

	if len(paid) > 0 {
		b.WriteString("\n✅ 支払い済み\n")
		writeGroups(&b, paid)
	}
	if len(upcoming) > 0 {
		b.WriteString("\n🔜 支払い予定\n")
		writeGroups(&b, upcoming)
	}

	all := make([]Entry, 0, len(paid)+len(upcoming))
	all = append(all, paid...)
	all = append(all, upcoming...)
	if len(all) > 0 {
		b.WriteString("\n合計（月額換算）: ")
		b.WriteString(formatTotals(all))
		b.WriteString("\n")
	}

	return strings.TrimRight(b.String(), "\n")
}

// leadPhrase はリード日数の表示文言を返す。
func leadPhrase(d int) string {
	switch d {
	case 0:
		return "今日"
	case 1:
		return "明日"
	default:
		return fmt.Sprintf("%d日後", d)
	}
}

// writeGroups はエントリをカテゴリ名でグループ化して書き出す。
// グループはカテゴリ名昇順、グループ内は支払日昇順。
func writeGroups(b *strings.Builder, entries []Entry) {
	groups := make(map[string][]Entry)
	for _, e := range entries {
		name := e.CategoryName
		if name == "" {
			name = UncategorizedLabel
		}
		groups[name] = append(groups[name], e)
	}

	names := make([]string, 0, len(groups))
	for name := range groups {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		group := groups[name]
		sort.Slice(group, func(i, j int) bool {
			return group[i].Occurrence.Before(group[j].Occurrence)
		})

		b.WriteString(fmt.Sprintf("\n【%s】\n", name))
		for _, e := range group {
			b.WriteString(fmt.Sprintf("・%s — %s%s（%s）\n",
				e.Name, e.Currency.Symbol(), e.Cost.String(), formatDate(e.Occurrence)))
		}
	}
}

// formatTotals は通貨別の月額換算合計を「₽1250.00 + $15.99」形式で返す。
// 通貨の並びはmodel.Currenciesの定義順。
func formatTotals(entries []Entry) string {
	totals := make(map[model.Currency]decimal.Decimal)
	for _, e := range entries {
		totals[e.Currency] = totals[e.Currency].Add(e.monthlyEquivalent())
	}

	var parts []string
	for _, c := range model.Currencies {
		if total, ok := totals[c]; ok {
			parts = append(parts, fmt.Sprintf("%s%s", c.Symbol(), total.StringFixed(2)))
		}
	}
	return strings.Join(parts, " + ")
}

// formatDate は支払日を「2月15日」形式で返す。
func formatDate(t time.Time) string {
	return fmt.Sprintf("%d月%d日", int(t.Month()), t.Day())
}
