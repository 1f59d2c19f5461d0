// Package currency は為替レートの定期更新ワーカーを提供する。
package currency

import (
	"context"
	"log/slog"
	"time"
)

// RateRefresher は為替レートの更新処理のインターフェース。
// currency.Serviceが実装する。
type RateRefresher interface {
	EnsureBaseline(ctx context.Context) error
	Refresh(ctx context.Context) error
}

// Scheduler は為替レートをティッカーで定期更新するスケジューラ。
type Scheduler struct {
	refresher RateRefresher
	logger    *slog.Logger
}

// NewScheduler はSchedulerの新しいインスタンスを生成する。
func NewScheduler(refresher RateRefresher, logger *slog.Logger) *Scheduler {
	return &Scheduler{
		refresher: refresher,
		logger:    logger,
	}
}

// Start は指定間隔のティッカーでスケジューラを起動する。
// 起動時にベースラインを確保したうえで即座に1回更新を試みる。
// コンテキストがキャンセルされるまで実行を継続する。
func (s *Scheduler) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	s.logger.Info("レート更新スケジューラを開始しました",
		slog.Duration("interval", interval),
	)

	if err := s.refresher.EnsureBaseline(ctx); err != nil {
		s.logger.Error("ベースラインレートの初期化に失敗しました",
			slog.String("error", err.Error()),
		)
	}

	// 起動直後に1回実行
	s.runOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("レート更新スケジューラを停止しました")
			return
		case <-ticker.C:
			s.runOnce(ctx)
		}
	}
}

// runOnce はレート更新を1回実行する。
// 失敗してもログに記録するのみで、次のティックで再試行される。
func (s *Scheduler) runOnce(ctx context.Context) {
	if err := s.refresher.Refresh(ctx); err != nil {
		s.logger.Error("為替レートの更新に失敗しました",
			slog.String("error", err.Error()),
		)
	}
}
