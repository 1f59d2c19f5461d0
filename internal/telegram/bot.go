package telegram

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
)

// MonthOverviewProvider は当月の支払いサマリーのテキストを提供する。
// notify.Serviceが実装する。
type MonthOverviewProvider interface {
	MonthOverview(ctx context.Context, userID string, now time.Time) (string, error)
}

// Bot はTelegramボットのコマンド処理ループ。
// long pollingで更新を受信し、/start・/status・/month・/helpを処理する。
type Bot struct {
	gateway  *BotGateway
	connect  *Service
	users    repository.UserRepository
	overview MonthOverviewProvider
	logger   *slog.Logger
}

// NewBot はBotを生成する。
func NewBot(gateway *BotGateway, connect *Service, users repository.UserRepository, overview MonthOverviewProvider, logger *slog.Logger) *Bot {
	return &Bot{
		gateway:  gateway,
		connect:  connect,
		users:    users,
		overview: overview,
		logger:   logger,
	}
}

// Run はコマンド処理ループを開始し、ctxがキャンセルされるまでブロックする。
// ゲートウェイが未準備の場合はループを開始せずにエラーを返す。
func (b *Bot) Run(ctx context.Context) error {
	api := b.gateway.API()
	if api == nil {
		return fmt.Errorf("telegram bot api is not initialized")
	}

	b.setCommands(api)

	u := tgbotapi.NewUpdate(0)
	u.Timeout = 30
	updates := api.GetUpdatesChan(u)

	b.logger.Info("Telegramボットのポーリングを開始します")

	for {
		select {
		case <-ctx.Done():
			api.StopReceivingUpdates()
			b.logger.Info("Telegramボットを停止しました")
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			if update.Message == nil {
				continue
			}
			b.handleMessage(ctx, update.Message)
		}
	}
}

func (b *Bot) setCommands(api *tgbotapi.BotAPI) {
	commands := []tgbotapi.BotCommand{
		{Command: "start", Description: "アカウント接続"},
		{Command: "status", Description: "接続状態の確認"},
		{Command: "month", Description: "今月の支払い予定"},
		{Command: "help", Description: "コマンド一覧"},
	}
	if _, err := api.Request(tgbotapi.NewSetMyCommands(commands...)); err != nil {
		b.logger.Warn("コマンドメニューの設定に失敗しました", slog.String("error", err.Error()))
	}
}

func (b *Bot) handleMessage(ctx context.Context, msg *tgbotapi.Message) {
	if !msg.IsCommand() {
		return
	}

	var text string
	switch msg.Command() {
	case "start":
		text = b.handleStart(ctx, msg)
	case "status":
		text = b.handleStatus(ctx, msg.Chat.ID)
	case "month":
		text = b.handleMonth(ctx, msg.Chat.ID)
	case "help":
		text = helpText()
	default:
		text = "不明なコマンドです。/help で利用可能なコマンドを確認できます。"
	}

	if text == "" {
		return
	}
	if err := b.gateway.Send(ctx, msg.Chat.ID, text); err != nil {
		b.logger.Error("コマンド応答の送信に失敗しました",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("command", msg.Command()),
			slog.String("error", err.Error()),
		)
	}
}

// handleStart は /start <token> を処理する。
// トークンなしの /start には利用案内を返す。
func (b *Bot) handleStart(ctx context.Context, msg *tgbotapi.Message) string {
	token := strings.TrimSpace(msg.CommandArguments())
	if token == "" {
		return "こんにちは！アカウントを接続するには、Web設定画面で発行した接続リンクから開始してください。"
	}

	username := ""
	if msg.From != nil {
		username = msg.From.UserName
	}

	user, err := b.connect.LinkByToken(ctx, token, msg.Chat.ID, username)
	if err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return apiErr.Message + " " + apiErr.Action
		}
		b.logger.Error("アカウント接続に失敗しました",
			slog.Int64("chat_id", msg.Chat.ID),
			slog.String("error", err.Error()),
		)
		return "接続処理中にエラーが発生しました。しばらくしてから再度お試しください。"
	}

	return fmt.Sprintf("✅ アカウント（%s）を接続しました。支払いリマインダーをこのチャットにお届けします。", user.Email)
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64) string {
	user, err := b.users.FindByTelegramChatID(ctx, chatID)
	if err != nil {
		b.logger.Error("接続状態の照会に失敗しました",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return "状態の確認中にエラーが発生しました。"
	}
	if user == nil {
		return "このチャットはまだアカウントに接続されていません。Web設定画面から接続してください。"
	}
	return fmt.Sprintf("✅ 接続済み: %s（通知時刻 %s）", user.Email, user.NotificationTime)
}

func (b *Bot) handleMonth(ctx context.Context, chatID int64) string {
	user, err := b.users.FindByTelegramChatID(ctx, chatID)
	if err != nil {
		b.logger.Error("ユーザー照会に失敗しました",
			slog.Int64("chat_id", chatID),
			slog.String("error", err.Error()),
		)
		return "照会中にエラーが発生しました。"
	}
	if user == nil {
		return "このチャットはまだアカウントに接続されていません。Web設定画面から接続してください。"
	}

	text, err := b.overview.MonthOverview(ctx, user.ID, time.Now())
	if err != nil {
		b.logger.Error("月次サマリーの生成に失敗しました",
			slog.String("user_id", user.ID),
			slog.String("error", err.Error()),
		)
		return "サマリーの生成中にエラーが発生しました。"
	}
	return text
}

func helpText() string {
	return strings.Join([]string{
		"利用可能なコマンド:",
		"/start <トークン> — Webアカウントとこのチャットを接続",
		"/status — 接続状態の確認",
		"/month — 今月の支払い予定の表示",
		"/help — このヘルプ",
	}, "\n")
}
