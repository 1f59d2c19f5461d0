package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/subtrack/internal/model"
)

// --- モック定義 ---

// mockAuthService はAuthServiceInterfaceのモック実装。
type mockAuthService struct {
	getLoginURLFn    func(state string) string
	handleCallbackFn func(ctx context.Context, code string) (*model.Session, error)
	logoutFn         func(ctx context.Context, sessionID string) error
	getCurrentUserFn func(ctx context.Context, sessionID string) (*model.User, error)
}

func (m *mockAuthService) GetLoginURL(state string) string {
	if m.getLoginURLFn != nil {
		return m.getLoginURLFn(state)
	}
	return "https://accounts.google.com/o/oauth2/auth?state=" + state
}

func (m *mockAuthService) HandleCallback(ctx context.Context, code string) (*model.Session, error) {
	if m.handleCallbackFn != nil {
		return m.handleCallbackFn(ctx, code)
	}
	return nil, nil
}

func (m *mockAuthService) Logout(ctx context.Context, sessionID string) error {
	if m.logoutFn != nil {
		return m.logoutFn(ctx, sessionID)
	}
	return nil
}

func (m *mockAuthService) GetCurrentUser(ctx context.Context, sessionID string) (*model.User, error) {
	if m.getCurrentUserFn != nil {
		return m.getCurrentUserFn(ctx, sessionID)
	}
	return nil, nil
}

var _ AuthServiceInterface = (*mockAuthService)(nil)

func defaultAuthConfig() AuthHandlerConfig {
	return AuthHandlerConfig{
		BaseURL:       "http://localhost:3000",
		CookieSecure:  false,
		SessionMaxAge: 86400 * 30,
	}
}

func TestAuthHandler_Login_RedirectsWithStateCookie(t *testing.T) {
	var gotState string
	svc := &mockAuthService{
		getLoginURLFn: func(state string) string {
			gotState = state
			return "https://accounts.google.com/o/oauth2/auth?state=" + state
		},
	}

	h := NewAuthHandler(svc, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/login", nil)
	w := httptest.NewRecorder()

	h.Login(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	if gotState == "" {
		t.Fatal("state should not be empty")
	}

	var stateCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "oauth_state" {
			stateCookie = c
		}
	}
	if stateCookie == nil {
		t.Fatal("oauth_state cookie should be set")
	}
	if stateCookie.Value != gotState {
		t.Errorf("cookie state = %q, want %q", stateCookie.Value, gotState)
	}
	if !stateCookie.HttpOnly {
		t.Error("oauth_state cookie should be HttpOnly")
	}

	location := resp.Header.Get("Location")
	if !strings.Contains(location, gotState) {
		t.Errorf("redirect location %q should contain state %q", location, gotState)
	}
}

func TestAuthHandler_Callback_Success(t *testing.T) {
	svc := &mockAuthService{
		handleCallbackFn: func(ctx context.Context, code string) (*model.Session, error) {
			if code != "auth-code" {
				t.Errorf("code = %q, want %q", code, "auth-code")
			}
			return &model.Session{ID: "session-abc", UserID: "user-123"}, nil
		},
	}

	h := NewAuthHandler(svc, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=state-xyz", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "state-xyz"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}

	var sessionCookie *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" {
			sessionCookie = c
		}
	}
	if sessionCookie == nil {
		t.Fatal("session_id cookie should be set")
	}
	if sessionCookie.Value != "session-abc" {
		t.Errorf("session cookie value = %q, want %q", sessionCookie.Value, "session-abc")
	}
	if !sessionCookie.HttpOnly {
		t.Error("session cookie should be HttpOnly")
	}

	if location := resp.Header.Get("Location"); location != "http://localhost:3000" {
		t.Errorf("redirect location = %q", location)
	}
}

func TestAuthHandler_Callback_StateMismatch(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=evil", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "state-xyz"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_Callback_MissingCode(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?state=state-xyz", nil)
	req.AddCookie(&http.Cookie{Name: "oauth_state", Value: "state-xyz"})
	w := httptest.NewRecorder()

	h.Callback(w, req)

	if w.Result().StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusBadRequest)
	}
}

func TestAuthHandler_Logout_ClearsSessionCookie(t *testing.T) {
	var loggedOutSessionID string
	svc := &mockAuthService{
		logoutFn: func(ctx context.Context, sessionID string) error {
			loggedOutSessionID = sessionID
			return nil
		},
	}

	h := NewAuthHandler(svc, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodPost, "/auth/logout", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	h.Logout(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusTemporaryRedirect {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusTemporaryRedirect)
	}
	if loggedOutSessionID != "session-abc" {
		t.Errorf("sessionID = %q, want %q", loggedOutSessionID, "session-abc")
	}

	var cleared bool
	for _, c := range resp.Cookies() {
		if c.Name == "session_id" && c.MaxAge < 0 {
			cleared = true
		}
	}
	if !cleared {
		t.Error("session cookie should be cleared")
	}
}

func TestAuthHandler_Me_Success(t *testing.T) {
	chatID := int64(123456)
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return &model.User{
				ID:                          "user-123",
				Email:                       "hitoshi@example.com",
				Name:                        "Hitoshi",
				AvatarURL:                   "https://example.com/avatar.jpg",
				NotificationTime:            "09:00",
				MonthlyNotificationsEnabled: true,
				TelegramChatID:              &chatID,
			}, nil
		},
	}

	h := NewAuthHandler(svc, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "session-abc"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	resp := w.Result()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusOK)
	}

	var body map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if body["email"] != "hitoshi@example.com" {
		t.Errorf("email = %v", body["email"])
	}
	if body["notification_time"] != "09:00" {
		t.Errorf("notification_time = %v", body["notification_time"])
	}
	if body["telegram_connected"] != true {
		t.Errorf("telegram_connected = %v, want true", body["telegram_connected"])
	}
}

func TestAuthHandler_Me_NoSessionCookie(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}

func TestAuthHandler_Me_InvalidSession(t *testing.T) {
	svc := &mockAuthService{
		getCurrentUserFn: func(ctx context.Context, sessionID string) (*model.User, error) {
			return nil, model.NewUserNotFoundError()
		},
	}

	h := NewAuthHandler(svc, defaultAuthConfig())

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.AddCookie(&http.Cookie{Name: "session_id", Value: "expired"})
	w := httptest.NewRecorder()

	h.Me(w, req)

	if w.Result().StatusCode != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Result().StatusCode, http.StatusUnauthorized)
	}
}
