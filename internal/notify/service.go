package notify

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/hitoshi/subtrack/internal/metrics"
	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/recurrence"
	"github.com/hitoshi/subtrack/internal/repository"
)

// Gateway は通知チャネルへの送信能力を抽象化する。
// IsReadyがfalseの場合、送信試行は失敗として扱い、重複送信防止マーカーは更新しない。
type Gateway interface {
	Send(ctx context.Context, chatID int64, text string) error
	IsReady() bool
}

// Service は通知エンジン本体。
// リマインダーパスと月次ダイジェストパスの2つの独立した処理を提供する。
// 両パスはスケジューラから毎ティック呼ばれ、日付・時刻の条件判定は内部で行う。
type Service struct {
	users      repository.UserRepository
	subs       repository.SubscriptionRepository
	categories repository.CategoryRepository

	gateway Gateway
	metrics metrics.MetricsCollector
	clock   Clock
	logger  *slog.Logger

	sendTimeout    time.Duration
	maxConcurrency int
}

// NewService はServiceの新しいインスタンスを生成する。
// maxConcurrencyが0以下の場合はデフォルト値10を使用する。
func NewService(
	users repository.UserRepository,
	subs repository.SubscriptionRepository,
	categories repository.CategoryRepository,
	gateway Gateway,
	collector metrics.MetricsCollector,
	clock Clock,
	logger *slog.Logger,
	sendTimeout time.Duration,
	maxConcurrency int,
) *Service {
	if maxConcurrency <= 0 {
		maxConcurrency = 10
	}
	if sendTimeout <= 0 {
		sendTimeout = 10 * time.Second
	}
	return &Service{
		users:          users,
		subs:           subs,
		categories:     categories,
		gateway:        gateway,
		metrics:        collector,
		clock:          clock,
		logger:         logger,
		sendTimeout:    sendTimeout,
		maxConcurrency: maxConcurrency,
	}
}

// RunReminderPass はリマインダーパスを1回実行する。
// 現在時刻のHH:MMと通知設定時刻が分単位で完全一致するユーザーのみが対象。
// ユーザー間の処理は独立しており、1ユーザーの失敗が他ユーザーを妨げない。
func (s *Service) RunReminderPass(ctx context.Context) error {
	start := time.Now()
	now := s.clock.Now()
	hhmm := now.Format("15:04")

	users, err := s.users.ListNotifiableAt(ctx, hhmm)
	if err != nil {
		return fmt.Errorf("通知対象ユーザーの取得に失敗しました: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	s.logger.Info("リマインダーパスを開始します",
		slog.String("tick", hhmm),
		slog.Int("user_count", len(users)),
	)

	// semaphoreパターンで並列数を制御
	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, user := range users {
		wg.Add(1)
		sem <- struct{}{} // semaphore取得（ブロック）

		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }() // semaphore解放

			if err := s.processUserReminders(ctx, u, now); err != nil {
				s.logger.Error("ユーザーのリマインダー処理に失敗しました",
					slog.String("user_id", u.ID),
					slog.String("error", err.Error()),
				)
			}
		}(user)
	}

	wg.Wait()

	s.metrics.RecordPassLatency(time.Since(start))
	return nil
}

// reminderGroup はリード日数ごとにまとめた通知候補。
type reminderGroup struct {
	entries []Entry
	subIDs  []string
}

// processUserReminders は1ユーザー分のリマインダー選択・送信・マーカー更新を行う。
// マーカー更新は送信成功後にのみ行い、失敗時は翌ティック以降に再試行される。
func (s *Service) processUserReminders(ctx context.Context, user *model.User, now time.Time) error {
	subs, err := s.subs.ListNotifiable(ctx, user.ID)
	if err != nil {
		return fmt.Errorf("通知対象サブスクリプションの取得に失敗しました: %w", err)
	}
	if len(subs) == 0 {
		return nil
	}

	categoryNames, err := s.categoryNames(ctx, user.ID)
	if err != nil {
		return err
	}

	today := recurrence.ToMidnight(now)
	groups := make(map[int]*reminderGroup)

	for _, sub := range subs {
		// anchorなしは「発生なし」として黙ってスキップする
		if sub.AnchorDate == nil {
			continue
		}
		next, ok := recurrence.NextOccurrence(*sub.AnchorDate, sub.Cycle, today)
		if !ok {
			continue
		}
		d := recurrence.DaysUntil(next, now)

		matched := false
		for _, lead := range sub.NotifyLeadDays {
			if d == lead {
				matched = true
				break
			}
		}
		if !matched {
			continue
		}

		// 日単位の重複送信防止: 同一サブスクリプションは1日1回まで
		if sub.LastNotificationSent != nil && recurrence.ToMidnight(*sub.LastNotificationSent).Equal(today) {
			continue
		}

		g := groups[d]
		if g == nil {
			g = &reminderGroup{}
			groups[d] = g
		}
		g.entries = append(g.entries, Entry{
			Name:         sub.Name,
			Cost:         sub.Cost,
			Currency:     sub.Currency,
			Cycle:        sub.Cycle,
			CategoryName: categoryNames[sub.CategoryID],
			Occurrence:   next,
		})
		g.subIDs = append(g.subIDs, sub.ID)
	}

	if len(groups) == 0 {
		return nil
	}

	// リード日数の小さい順（直近の支払いが先）に送信する
	leads := make([]int, 0, len(groups))
	for d := range groups {
		leads = append(leads, d)
	}
	sort.Ints(leads)

	for _, d := range leads {
		g := groups[d]
		text := ComposeReminder(g.entries, d)

		if err := s.deliver(ctx, *user.TelegramChatID, text); err != nil {
			s.logger.Error("リマインダー送信に失敗しました",
				slog.String("user_id", user.ID),
				slog.Int("lead_days", d),
				slog.Int("subscription_count", len(g.subIDs)),
				slog.String("error", err.Error()),
			)
			continue
		}

		s.metrics.RecordReminderSent(len(g.entries))

		// 送信済みのため、マーカー更新失敗は重複送信のリスクとして許容する
		if err := s.subs.UpdateLastNotificationSent(ctx, g.subIDs, now); err != nil {
			s.logger.Error("通知マーカーの更新に失敗しました",
				slog.String("user_id", user.ID),
				slog.String("error", err.Error()),
			)
		}
	}

	return nil
}

// RunDigestPass は月次ダイジェストパスを1回実行する。
// 毎月1日のみ出力を生成する。日付の判定はスケジューラではなくここで行う。
func (s *Service) RunDigestPass(ctx context.Context) error {
	now := s.clock.Now()
	if now.Day() != 1 {
		return nil
	}

	hhmm := now.Format("15:04")
	users, err := s.users.ListNotifiableAt(ctx, hhmm)
	if err != nil {
		return fmt.Errorf("通知対象ユーザーの取得に失敗しました: %w", err)
	}
	if len(users) == 0 {
		return nil
	}

	s.logger.Info("月次ダイジェストパスを開始します",
		slog.String("tick", hhmm),
		slog.Int("user_count", len(users)),
	)

	sem := make(chan struct{}, s.maxConcurrency)
	var wg sync.WaitGroup

	for _, user := range users {
		wg.Add(1)
		sem <- struct{}{}

		go func(u *model.User) {
			defer wg.Done()
			defer func() { <-sem }()

			if err := s.processUserDigest(ctx, u, now); err != nil {
				s.logger.Error("ユーザーのダイジェスト処理に失敗しました",
					slog.String("user_id", u.ID),
					slog.String("error", err.Error()),
				)
			}
		}(user)
	}

	wg.Wait()
	return nil
}

// processUserDigest は1ユーザー分の月次ダイジェストの選択・送信・マーカー更新を行う。
func (s *Service) processUserDigest(ctx context.Context, user *model.User, now time.Time) error {
	if !user.MonthlyNotificationsEnabled {
		return nil
	}

	// 月単位の重複送信防止: ティックが同日に複数回発火しても1回だけ送る
	if user.LastMonthlyNotificationSent != nil {
		last := *user.LastMonthlyNotificationSent
		if last.Year() == now.Year() && last.Month() == now.Month() {
			return nil
		}
	}

	paid, upcoming, err := s.collectMonthEntries(ctx, user.ID, now)
	if err != nil {
		return err
	}
	// 今月の支払いがないユーザーには送らない（エラーではない）
	if len(paid) == 0 && len(upcoming) == 0 {
		return nil
	}

	text := ComposeDigest(paid, upcoming, now)

	if err := s.deliver(ctx, *user.TelegramChatID, text); err != nil {
		s.logger.Error("月次ダイジェスト送信に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return nil
	}

	s.metrics.RecordDigestSent()

	if err := s.users.UpdateLastMonthlyNotificationSent(ctx, user.ID, now); err != nil {
		s.logger.Error("月次通知マーカーの更新に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
	}

	return nil
}

// MonthOverview は今月の支払い一覧テキストを組み立てる。
// 重複送信防止マーカーには触れない。botの/monthコマンドから利用される。
func (s *Service) MonthOverview(ctx context.Context, userID string, now time.Time) (string, error) {
	paid, upcoming, err := s.collectMonthEntries(ctx, userID, now)
	if err != nil {
		return "", err
	}
	if len(paid) == 0 && len(upcoming) == 0 {
		return "今月の支払い予定はありません。", nil
	}
	return ComposeDigest(paid, upcoming, now), nil
}

// collectMonthEntries はユーザーの今月の支払いを「支払い済み」と「支払い予定」に
// 分けて返す。anchorを持たないサブスクリプションは対象外。
func (s *Service) collectMonthEntries(ctx context.Context, userID string, now time.Time) (paid, upcoming []Entry, err error) {
	subs, err := s.subs.ListByUserIDWithCategory(ctx, userID)
	if err != nil {
		return nil, nil, fmt.Errorf("サブスクリプション一覧の取得に失敗しました: %w", err)
	}

	today := recurrence.ToMidnight(now)

	for _, sub := range subs {
		if sub.AnchorDate == nil {
			continue
		}
		occ, ok := recurrence.OccurrenceWithinMonth(*sub.AnchorDate, sub.Cycle, now.Year(), now.Month())
		if !ok {
			continue
		}

		entry := Entry{
			Name:         sub.Name,
			Cost:         sub.Cost,
			Currency:     sub.Currency,
			Cycle:        sub.Cycle,
			CategoryName: sub.CategoryName,
			Occurrence:   occ,
		}
		if occ.Before(today) {
			paid = append(paid, entry)
		} else {
			upcoming = append(upcoming, entry)
		}
	}

	return paid, upcoming, nil
}

// deliver は準備チェックとタイムアウト付きで1メッセージを送信する。
func (s *Service) deliver(ctx context.Context, chatID int64, text string) error {
	if !s.gateway.IsReady() {
		s.metrics.RecordSendFailure("not_ready")
		return fmt.Errorf("ゲートウェイが送信可能な状態ではありません")
	}

	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()

	if err := s.gateway.Send(sendCtx, chatID, text); err != nil {
		s.metrics.RecordSendFailure("send_error")
		return fmt.Errorf("メッセージの送信に失敗しました: %w", err)
	}
	return nil
}

// categoryNames はユーザーのカテゴリID→名前のマップを返す。
func (s *Service) categoryNames(ctx context.Context, userID string) (map[string]string, error) {
	categories, err := s.categories.ListByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("カテゴリ一覧の取得に失敗しました: %w", err)
	}
	names := make(map[string]string, len(categories))
	for _, c := range categories {
		names[c.ID] = c.Name
	}
	return names, nil
}
