// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/auth"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// userIDContextKey はリクエストコンテキストにユーザーIDを格納するためのキー。
var userIDContextKey = contextKey("user_id")

// SessionAuthenticator はセッション解決に必要な認証処理のインターフェース。
// auth.Serviceの部分集合として定義する。
type SessionAuthenticator interface {
	VerifyAccessToken(token string) (*auth.AccessClaims, error)
	Refresh(ctx context.Context, sessionID string) (*auth.Credentials, error)
}

// Resolution はセッション解決の結果。
// Refreshedはレスポンスに必ず付与するCookie（アクセストークンの再発行や失効Cookieの削除）。
type Resolution struct {
	Session   access.Session
	Refreshed []*http.Cookie
}

// SessionResolver はリクエストのCookieから認証済みユーザーを判定する。
type SessionResolver struct {
	auth    SessionAuthenticator
	cookies auth.CookieConfig
}

// NewSessionResolver はSessionResolverを生成する。
func NewSessionResolver(authenticator SessionAuthenticator, cookies auth.CookieConfig) *SessionResolver {
	return &SessionResolver{auth: authenticator, cookies: cookies}
}

// Resolve はセッションを解決する。エラーは返さず、判定できない場合はすべてAnonymousとする。
//  1. アクセストークンが有効 → DBを参照せずに認証済み
//  2. アクセストークンが無効・期限切れでもリフレッシュセッションが有効 → 認証済み（アクセストークンを再発行）
//  3. それ以外 → Anonymous
func (s *SessionResolver) Resolve(r *http.Request) Resolution {
	if c, err := r.Cookie(auth.AccessCookieName); err == nil && c.Value != "" {
		claims, err := s.auth.VerifyAccessToken(c.Value)
		if err == nil && claims.Subject != "" {
			return Resolution{Session: access.Authenticated(claims.Subject)}
		}
	}

	refresh, err := r.Cookie(auth.RefreshCookieName)
	if err != nil || refresh.Value == "" {
		return Resolution{Session: access.Anonymous}
	}

	creds, err := s.auth.Refresh(r.Context(), refresh.Value)
	if err != nil {
		if errors.Is(err, auth.ErrSessionNotFound) {
			// 失効したCookieを削除して次回以降の問い合わせを避ける
			return Resolution{Session: access.Anonymous, Refreshed: s.cookies.Clear()}
		}
		slog.Warn("failed to refresh session",
			slog.String("path", r.URL.Path),
			slog.String("error", err.Error()),
		)
		return Resolution{Session: access.Anonymous}
	}

	return Resolution{
		Session:   access.Authenticated(creds.Session.UserID),
		Refreshed: []*http.Cookie{s.cookies.AccessCookie(creds.AccessToken, creds.AccessExpiresAt)},
	}
}

// UserIDFromContext はリクエストコンテキストからユーザーIDを取得する。
// ゲートミドルウェアを通過した認証済みリクエストでのみ有効。
func UserIDFromContext(ctx context.Context) (string, error) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	if !ok || userID == "" {
		return "", fmt.Errorf("user ID not found in context")
	}
	return userID, nil
}

// ContextWithUserID はコンテキストにユーザーIDを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, userIDContextKey, userID)
}
