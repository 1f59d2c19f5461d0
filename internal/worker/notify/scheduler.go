// Package notify は通知エンジンの定期実行を提供する。
// 毎分ティックでリマインダーパスと月次ダイジェストパスを起動する。
package notify

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/robfig/cron/v3"
)

// PassRunner は通知エンジンの2つのパスを実行する。
// notify.Serviceが実装する。
type PassRunner interface {
	RunReminderPass(ctx context.Context) error
	RunDigestPass(ctx context.Context) error
}

// Scheduler は通知パスをcronで毎分起動するスケジューラ。
// 日付・時刻の判定はパス側が行うため、スケジューラは単純なティック源に徹する。
type Scheduler struct {
	cron   *cron.Cron
	runner PassRunner
	logger *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
}

// NewScheduler はSchedulerを生成する。
func NewScheduler(runner PassRunner, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		cron:   cron.New(),
		runner: runner,
		logger: logger,
	}
}

// Start はスケジューラを起動する。ノンブロッキング。
func (s *Scheduler) Start() error {
	s.ctx, s.cancel = context.WithCancel(context.Background())

	if _, err := s.cron.AddFunc("* * * * *", s.reminderTick); err != nil {
		return fmt.Errorf("failed to schedule reminder pass: %w", err)
	}
	if _, err := s.cron.AddFunc("* * * * *", s.digestTick); err != nil {
		return fmt.Errorf("failed to schedule digest pass: %w", err)
	}

	s.cron.Start()
	s.logger.Info("通知スケジューラを起動しました")
	return nil
}

// Stop はスケジューラを停止し、実行中のパスの完了を待つ。
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	if s.cancel != nil {
		s.cancel()
	}
	s.logger.Info("通知スケジューラを停止しました")
}

func (s *Scheduler) reminderTick() {
	if err := s.runner.RunReminderPass(s.ctx); err != nil {
		s.logger.Error("リマインダーパスが失敗しました", slog.String("error", err.Error()))
	}
}

func (s *Scheduler) digestTick() {
	if err := s.runner.RunDigestPass(s.ctx); err != nil {
		s.logger.Error("ダイジェストパスが失敗しました", slog.String("error", err.Error()))
	}
}
