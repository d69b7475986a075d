package middleware

import (
	"net/http"
	"net/url"
	"strings"
)

// PasswordCookieName はパスワードゲート通過済みを示すCookie名。
const PasswordCookieName = "password_protected"

// PasswordGateConfig はステージング用パスワードゲートの設定。
type PasswordGateConfig struct {
	Enabled  bool
	PagePath string   // パスワード入力ページ
	Exempt   []string // ゲート対象外のパス。"/"で終わる要素はプレフィックス一致。
}

// DefaultPasswordGateConfig はデフォルト設定を返す。
func DefaultPasswordGateConfig(enabled bool) PasswordGateConfig {
	return PasswordGateConfig{
		Enabled:  enabled,
		PagePath: "/password",
		Exempt:   []string{"/password", "/api/password", "/static/", "/healthz", "/metrics"},
	}
}

// NewPasswordGateMiddleware はサイト全体を共通パスワードで保護するミドルウェアを返す。
// ユーザー単位のアクセス判定とは独立しており、ゲートミドルウェアより前に配置する。
// Cookieがないリクエストはパスワードページへリダイレクトする（next=元のパス）。
func NewPasswordGateMiddleware(config PasswordGateConfig) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if !config.Enabled {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExcluded(r.URL.Path, config.Exempt) {
				next.ServeHTTP(w, r)
				return
			}

			if c, err := r.Cookie(PasswordCookieName); err == nil && c.Value == "true" {
				next.ServeHTTP(w, r)
				return
			}

			target := config.PagePath
			if orig := r.URL.RequestURI(); orig != "/" && !strings.HasPrefix(orig, config.PagePath) {
				target += "?" + url.Values{"next": {orig}}.Encode()
			}
			http.Redirect(w, r, target, http.StatusSeeOther)
		})
	}
}
