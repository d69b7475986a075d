package auth

import (
	"net/http"
	"time"
)

const (
	// AccessCookieName は署名付きアクセストークンを保持するCookie名。
	AccessCookieName = "wm_access"
	// RefreshCookieName はリフレッシュセッションIDを保持するCookie名。
	RefreshCookieName = "wm_refresh"
)

// CookieConfig はセッションCookieの属性。
type CookieConfig struct {
	Domain        string
	Secure        bool
	SessionMaxAge int // リフレッシュCookieの有効期間（秒）
}

// AccessCookie はアクセストークンCookieを生成する。
func (c CookieConfig) AccessCookie(token string, expiresAt time.Time) *http.Cookie {
	maxAge := int(time.Until(expiresAt).Seconds())
	if maxAge <= 0 {
		maxAge = 1
	}
	return c.cookie(AccessCookieName, token, maxAge)
}

// RefreshCookie はリフレッシュセッションCookieを生成する。
func (c CookieConfig) RefreshCookie(sessionID string) *http.Cookie {
	return c.cookie(RefreshCookieName, sessionID, c.SessionMaxAge)
}

// Issue はCredentialsに対応する2つのCookieを返す。
func (c CookieConfig) Issue(creds *Credentials) []*http.Cookie {
	return []*http.Cookie{
		c.AccessCookie(creds.AccessToken, creds.AccessExpiresAt),
		c.RefreshCookie(creds.Session.ID),
	}
}

// Clear はセッションCookieを削除するCookieを返す。
func (c CookieConfig) Clear() []*http.Cookie {
	return []*http.Cookie{
		c.cookie(AccessCookieName, "", -1),
		c.cookie(RefreshCookieName, "", -1),
	}
}

func (c CookieConfig) cookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		Domain:   c.Domain,
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   c.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}
