// Package telegram はTelegram Botとの連携を提供する。
// 通知エンジンからの送信ゲートウェイと、Webアカウントとチャットを
// 紐付ける接続フロー、およびボットコマンドの処理ループを含む。
package telegram

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/hitoshi/subtrack/internal/notify"
)

// botSendRate はTelegram Bot APIのグローバル送信レート上限。
// 公式ドキュメントの30メッセージ/秒に合わせる。
const botSendRate = 30

// BotGateway は*tgbotapi.BotAPIをラップした送信ゲートウェイ。
// レートリミッタで送信頻度を抑制する。notify.Gatewayを実装する。
type BotGateway struct {
	mu      sync.RWMutex
	api     *tgbotapi.BotAPI
	limiter *rate.Limiter
	logger  *slog.Logger
}

var _ notify.Gateway = (*BotGateway)(nil)

// NewBotGateway はBotGatewayを生成する。
// トークンが不正でAPIクライアントを初期化できない場合でも
// ゲートウェイ自体は生成され、IsReadyがfalseを返す。
func NewBotGateway(token string, logger *slog.Logger) *BotGateway {
	g := &BotGateway{
		limiter: rate.NewLimiter(rate.Limit(botSendRate), botSendRate),
		logger:  logger,
	}

	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		logger.Error("Telegram Bot APIの初期化に失敗しました", slog.String("error", err.Error()))
		return g
	}

	g.api = api
	logger.Info("Telegram Botとして認証しました", slog.String("username", api.Self.UserName))
	return g
}

// API は内部のBotAPIクライアントを返す。未初期化の場合はnil。
func (g *BotGateway) API() *tgbotapi.BotAPI {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.api
}

// IsReady はゲートウェイが送信可能な状態かを返す。
func (g *BotGateway) IsReady() bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.api != nil
}

// Send は指定チャットにテキストメッセージを送信する。
// レートリミッタの待機はctxのキャンセルで中断できる。
func (g *BotGateway) Send(ctx context.Context, chatID int64, text string) error {
	g.mu.RLock()
	api := g.api
	g.mu.RUnlock()

	if api == nil {
		return fmt.Errorf("telegram gateway is not ready")
	}

	if err := g.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("rate limiter wait canceled: %w", err)
	}

	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := api.Send(msg); err != nil {
		return fmt.Errorf("failed to send telegram message to chat %d: %w", chatID, err)
	}
	return nil
}
