package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/subtrack/internal/middleware"
	"github.com/hitoshi/subtrack/internal/model"
	"github.com/hitoshi/subtrack/internal/repository"
)

// --- モック定義 ---

// mockHealthChecker はHealthCheckerのモック実装。
type mockHealthChecker struct {
	pingErr error
}

func (m *mockHealthChecker) PingContext(ctx context.Context) error {
	return m.pingErr
}

var _ HealthChecker = (*mockHealthChecker)(nil)

// mockSessionFinder はmiddleware.SessionFinderのモック実装。
type mockSessionFinder struct {
	findByIDFn func(ctx context.Context, id string) (*model.Session, error)
}

func (m *mockSessionFinder) FindByID(ctx context.Context, id string) (*model.Session, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

var _ middleware.SessionFinder = (*mockSessionFinder)(nil)

// newTestRouter は全依存をモックで埋めたルーターと停止関数を返す。
func newTestRouter(t *testing.T, deps *RouterDeps) http.Handler {
	t.Helper()

	if deps.HealthChecker == nil {
		deps.HealthChecker = &mockHealthChecker{}
	}
	if deps.SessionFinder == nil {
		deps.SessionFinder = &mockSessionFinder{}
	}
	if deps.RateLimiter == nil {
		rl := middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig())
		t.Cleanup(rl.Stop)
		deps.RateLimiter = rl
	}
	if deps.AuthService == nil {
		deps.AuthService = &mockAuthService{}
	}
	if deps.SubscriptionService == nil {
		deps.SubscriptionService = &mockSubscriptionService{}
	}
	if deps.CategoryService == nil {
		deps.CategoryService = &mockCategoryService{}
	}
	if deps.TelegramService == nil {
		deps.TelegramService = &mockTelegramService{}
	}
	if deps.UserService == nil {
		deps.UserService = &mockUserService{}
	}
	if deps.StatsService == nil {
		deps.StatsService = &mockStatsService{}
	}
	if deps.RateService == nil {
		deps.RateService = &mockRateService{}
	}
	deps.CORSAllowedOrigin = "http://localhost:3000"

	return NewRouter(deps)
}

// validSessionFinder はセッションID "session-abc" をユーザー "user-123" に解決する。
func validSessionFinder() *mockSessionFinder {
	return &mockSessionFinder{
		findByIDFn: func(ctx context.Context, id string) (*model.Session, error) {
			if id != "session-abc" {
				return nil, nil
			}
			return &model.Session{ID: id, UserID: "user-123"}, nil
		},
	}
}

func TestRouter_Health_OK(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body healthResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body.Status != "ok" || body.Database != "ok" {
		t.Errorf("body = %+v", body)
	}
}

func TestRouter_Health_DatabaseDown(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		HealthChecker: &mockHealthChecker{pingErr: errors.New("connection refused")},
	})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusServiceUnavailable)
	}

	var body healthResponse
	json.NewDecoder(resp.Body).Decode(&body)
	if body.Status != "degraded" || body.Database != "unreachable" {
		t.Errorf("body = %+v", body)
	}
}

func TestRouter_Subscriptions_NoSession_ReturnsUnauthorized(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestRouter_Subscriptions_WithSession_InjectsUserID(t *testing.T) {
	var gotUserID string
	router := newTestRouter(t, &RouterDeps{
		SessionFinder: validSessionFinder(),
		SubscriptionService: &mockSubscriptionService{
			listFn: func(ctx context.Context, userID string) ([]repository.SubscriptionWithCategory, error) {
				gotUserID = userID
				return nil, nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodGet, "/api/subscriptions", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Result().StatusCode, http.StatusOK)
	}
	if gotUserID != "user-123" {
		t.Errorf("userID = %q, want %q", gotUserID, "user-123")
	}
}

func TestRouter_Mutation_WithoutCSRFToken_ReturnsForbidden(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		SessionFinder: validSessionFinder(),
	})

	req := httptest.NewRequest(http.MethodPost, "/api/subscriptions", strings.NewReader(`{}`))
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusForbidden {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusForbidden)
	}
}

func TestRouter_Mutation_WithCSRFToken_Succeeds(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		SessionFinder: validSessionFinder(),
		CategoryService: &mockCategoryService{
			deleteFn: func(ctx context.Context, userID, categoryID string) error {
				if categoryID != "cat-1" {
					t.Errorf("categoryID = %q, want %q", categoryID, "cat-1")
				}
				return nil
			},
		},
	})

	req := httptest.NewRequest(http.MethodDelete, "/api/categories/cat-1", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	req.AddCookie(&http.Cookie{Name: "csrf_token", Value: "token-xyz"})
	req.Header.Set("X-CSRF-Token", "token-xyz")
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusNoContent {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusNoContent)
	}
}

func TestRouter_CSRFTokenEndpoint_SetsCookie(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/api/csrf-token", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var found bool
	for _, c := range resp.Cookies() {
		if c.Name == "csrf_token" && c.Value != "" {
			found = true
		}
	}
	if !found {
		t.Error("csrf_token cookie should be set")
	}
}

func TestRouter_AuthRoutes_OutsideSessionMiddleware(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{
		AuthConfig: defaultAuthConfig(),
	})

	// セッションCookieなしでもOAuthログイン開始はできる
	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Result().StatusCode != http.StatusTemporaryRedirect {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusTemporaryRedirect)
	}
}

func TestRouter_SecurityHeaders_Applied(t *testing.T) {
	router := newTestRouter(t, &RouterDeps{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Result().Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want %q", got, "nosniff")
	}
}
