package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/hitoshi/wrapmag/internal/auth"
	"github.com/hitoshi/wrapmag/internal/model"
)

// mockAuthenticator はSessionAuthenticatorのモック。
type mockAuthenticator struct {
	verifyFn  func(token string) (*auth.AccessClaims, error)
	refreshFn func(ctx context.Context, sessionID string) (*auth.Credentials, error)

	refreshCalls int
}

func (m *mockAuthenticator) VerifyAccessToken(token string) (*auth.AccessClaims, error) {
	if m.verifyFn != nil {
		return m.verifyFn(token)
	}
	return nil, auth.ErrInvalidToken
}

func (m *mockAuthenticator) Refresh(ctx context.Context, sessionID string) (*auth.Credentials, error) {
	m.refreshCalls++
	if m.refreshFn != nil {
		return m.refreshFn(ctx, sessionID)
	}
	return nil, auth.ErrSessionNotFound
}

var _ SessionAuthenticator = (*mockAuthenticator)(nil)

func claimsFor(userID string) *auth.AccessClaims {
	return &auth.AccessClaims{
		SessionID:        "sess-1",
		RegisteredClaims: jwt.RegisteredClaims{Subject: userID},
	}
}

func newTestResolver(a SessionAuthenticator) *SessionResolver {
	return NewSessionResolver(a, auth.CookieConfig{SessionMaxAge: 86400})
}

func TestSessionResolver_ValidAccessToken_NoStoreAccess(t *testing.T) {
	a := &mockAuthenticator{
		verifyFn: func(token string) (*auth.AccessClaims, error) {
			if token == "good" {
				return claimsFor("user-1"), nil
			}
			return nil, auth.ErrInvalidToken
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: "good"})
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: "sess-1"})

	res := newTestResolver(a).Resolve(req)

	if res.Session.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", res.Session.UserID)
	}
	if len(res.Refreshed) != 0 {
		t.Errorf("Refreshed = %d cookies, want 0", len(res.Refreshed))
	}
	if a.refreshCalls != 0 {
		t.Errorf("Refresh called %d times, want 0", a.refreshCalls)
	}
}

func TestSessionResolver_ExpiredAccessToken_RefreshesFromSession(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	a := &mockAuthenticator{
		refreshFn: func(_ context.Context, id string) (*auth.Credentials, error) {
			if id != "sess-1" {
				t.Errorf("session id = %q, want sess-1", id)
			}
			return &auth.Credentials{
				Session:         &model.Session{ID: "sess-1", UserID: "user-1"},
				AccessToken:     "new-token",
				AccessExpiresAt: expires,
			}, nil
		},
	}

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: auth.AccessCookieName, Value: "expired"})
	req.AddCookie(&http.Cookie{Name: auth.RefreshCookieName, Value: "sess-1"})

	res := newTestResolver(a).Resolve(req)

	if res.Session.UserID != "user-1" {
		t.Errorf("UserID = %q, want user-1", res.Session.UserID)
	}
	if len(res.Refreshed) != 1 {
		t.Fatalf("Refreshed = %d cookies, want 1", len(res.Refreshed))
	}
	c := res.Refreshed[0]
	if c.Name != auth.AccessCookieName || c.Value != "new-token" || !c.HttpOnly {
		t.Errorf("refreshed cookie = %+v", c)
	}
}

func TestSessionResolver_AnonymousCases(t *testing.T) {
	tests := []struct {
		name        string
		cookies     []*http.Cookie
		refreshErr  error
		wantCleared bool
	}{
		{"no cookies", nil, nil, false},
		{"malformed access token only", []*http.Cookie{{Name: auth.AccessCookieName, Value: "%%%"}}, nil, false},
		{"unknown refresh session", []*http.Cookie{{Name: auth.RefreshCookieName, Value: "gone"}}, auth.ErrSessionNotFound, true},
		{"store unreachable", []*http.Cookie{{Name: auth.RefreshCookieName, Value: "sess-1"}}, errors.New("connection refused"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := &mockAuthenticator{
				refreshFn: func(context.Context, string) (*auth.Credentials, error) {
					return nil, tt.refreshErr
				},
			}
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			for _, c := range tt.cookies {
				req.AddCookie(c)
			}

			res := newTestResolver(a).Resolve(req)

			if res.Session.IsAuthenticated() {
				t.Errorf("expected anonymous, got %q", res.Session.UserID)
			}
			cleared := len(res.Refreshed) == 2 && res.Refreshed[0].MaxAge < 0
			if cleared != tt.wantCleared {
				t.Errorf("cleared = %v, want %v (%+v)", cleared, tt.wantCleared, res.Refreshed)
			}
		})
	}
}

func TestUserIDFromContext(t *testing.T) {
	if _, err := UserIDFromContext(context.Background()); err == nil {
		t.Error("expected error for empty context")
	}

	ctx := ContextWithUserID(context.Background(), "user-1")
	userID, err := UserIDFromContext(ctx)
	if err != nil || userID != "user-1" {
		t.Errorf("UserIDFromContext() = %q, %v", userID, err)
	}
}
