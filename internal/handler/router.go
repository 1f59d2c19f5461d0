package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/subtrack/internal/auth"
	"github.com/hitoshi/subtrack/internal/category"
	"github.com/hitoshi/subtrack/internal/currency"
	"github.com/hitoshi/subtrack/internal/middleware"
	"github.com/hitoshi/subtrack/internal/stats"
	"github.com/hitoshi/subtrack/internal/subscription"
	"github.com/hitoshi/subtrack/internal/telegram"
	"github.com/hitoshi/subtrack/internal/user"
)

// 各サービスがハンドラーの要求するインターフェースを満たすことをコンパイル時に保証する。
var (
	_ AuthServiceInterface         = (*auth.Service)(nil)
	_ SubscriptionServiceInterface = (*subscription.Service)(nil)
	_ CategoryServiceInterface     = (*category.Service)(nil)
	_ TelegramServiceInterface     = (*telegram.Service)(nil)
	_ UserServiceInterface         = (*user.Service)(nil)
	_ UserGetter                   = (*user.Service)(nil)
	_ StatsServiceInterface        = (*stats.Service)(nil)
	_ RateServiceInterface         = (*currency.Service)(nil)
)

// HealthChecker はヘルスチェックに必要なインターフェース。
// *sql.DBが実装する。
type HealthChecker interface {
	PingContext(ctx context.Context) error
}

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRFConfig        middleware.CSRFConfig

	// 認証
	AuthService AuthServiceInterface
	AuthConfig  AuthHandlerConfig

	// サブスクリプション
	SubscriptionService SubscriptionServiceInterface

	// カテゴリ
	CategoryService CategoryServiceInterface

	// Telegram連携
	TelegramService TelegramServiceInterface

	// ユーザー
	UserService UserServiceInterface

	// 集計・為替レート
	StatsService StatsServiceInterface
	RateService  RateServiceInterface
}

// healthResponse は/healthのレスポンスボディ。
type healthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Uptime   string `json:"uptime"`
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → Logging → CORS → Session → CSRF → RateLimit(General)
//
// 認証ルート（/auth/*）と/healthはセッションミドルウェアの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	r := chi.NewRouter()

	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	startedAt := time.Now()

	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewSecurityHeadersMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

	authHandler := NewAuthHandler(deps.AuthService, deps.AuthConfig)
	subHandler := NewSubscriptionHandler(deps.SubscriptionService)
	categoryHandler := NewCategoryHandler(deps.CategoryService)
	telegramHandler := NewTelegramHandler(deps.TelegramService, deps.UserService)
	userHandler := NewUserHandler(deps.UserService)
	statsHandler := NewStatsHandler(deps.StatsService, deps.RateService)

	// --- 認証不要のルート ---

	// ヘルスチェック
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		resp := healthResponse{
			Status:   "ok",
			Database: "ok",
			Uptime:   time.Since(startedAt).Truncate(time.Second).String(),
		}

		status := http.StatusOK
		if err := deps.HealthChecker.PingContext(r.Context()); err != nil {
			resp.Status = "degraded"
			resp.Database = "unreachable"
			status = http.StatusServiceUnavailable
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(resp)
	})

	// CSRFトークン取得（認証不要）
	r.Get("/api/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRFConfig).ServeHTTP)

	// 認証ルート（OAuthフロー）
	r.Route("/auth", func(r chi.Router) {
		r.Get("/google/login", authHandler.Login)
		r.Get("/google/callback", authHandler.Callback)
		r.Post("/logout", authHandler.Logout)
		r.Get("/me", authHandler.Me)
	})

	// --- 認証が必要なルート ---
	// ミドルウェアスタック: Session → CSRF → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRFConfig))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		// サブスクリプション管理
		r.Route("/api/subscriptions", func(r chi.Router) {
			r.Get("/", subHandler.List)
			r.Post("/", subHandler.Create)

			r.Get("/export", subHandler.Export)
			// インポートは専用レート制限を追加
			r.With(deps.RateLimiter.ImportMiddleware()).Post("/import", subHandler.Import)

			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", subHandler.Get)
				r.Put("/", subHandler.Update)
				r.Delete("/", subHandler.Delete)
			})
		})

		// カテゴリ管理
		r.Route("/api/categories", func(r chi.Router) {
			r.Get("/", categoryHandler.List)
			r.Post("/", categoryHandler.Create)
			r.Put("/reorder", categoryHandler.Reorder)

			r.Route("/{id}", func(r chi.Router) {
				r.Put("/", categoryHandler.Update)
				r.Delete("/", categoryHandler.Delete)
			})
		})

		// Telegram連携
		r.Route("/api/telegram", func(r chi.Router) {
			r.Post("/connect-token", telegramHandler.GenerateConnectToken)
			r.Get("/status", telegramHandler.Status)
			r.Delete("/link", telegramHandler.Unlink)
		})

		// ユーザー管理
		r.Route("/api/users/me", func(r chi.Router) {
			r.Get("/notifications", userHandler.GetNotificationSettings)
			r.Put("/notifications", userHandler.UpdateNotificationSettings)
			r.Delete("/", userHandler.Withdraw)
		})

		// 集計・為替レート
		r.Get("/api/stats/summary", statsHandler.Summary)
		r.Get("/api/rates", statsHandler.Rates)
	})

	return r
}
