package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/metrics"
)

// Resolver はリクエストからセッションを解決する。
type Resolver interface {
	Resolve(r *http.Request) Resolution
}

// RoleLookuper はユーザーIDからロールを取得する。
type RoleLookuper interface {
	LookupRole(ctx context.Context, userID string) access.RoleResult
}

// GateDeps はゲートミドルウェアの依存。
type GateDeps struct {
	Resolver Resolver
	Policy   *access.Policy
	Roles    RoleLookuper
	Metrics  metrics.MetricsCollector
	// Exclusions に一致するパスは判定せずに通す。"/"で終わる要素はプレフィックス一致。
	Exclusions []string
}

// DefaultGateExclusions はゲートの対象外とするパス。
func DefaultGateExclusions() []string {
	return []string{
		"/static/",
		"/_image",
		"/favicon.ico",
		"/robots.txt",
		"/sitemap.xml",
		"/healthz",
		"/metrics",
		"/api/password",
	}
}

// NewGateMiddleware はリクエストごとにアクセス判定を行うミドルウェアを返す。
// セッション解決 → （必要な場合のみ）ロール取得 → 判定 → 適用 の順に処理する。
// セッション解決で発生したCookieの再発行は、通過・リダイレクトのどちらの場合もレスポンスに付与する。
func NewGateMiddleware(deps GateDeps) func(next http.Handler) http.Handler {
	if deps.Metrics == nil {
		deps.Metrics = metrics.Nop{}
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if isExcluded(r.URL.Path, deps.Exclusions) {
				next.ServeHTTP(w, r)
				return
			}

			ctx := access.WithRoleMemo(r.Context())
			r = r.WithContext(ctx)

			res := deps.Resolver.Resolve(r)

			var role access.RoleResult
			if deps.Policy.NeedsRole(r.URL.Path, res.Session) {
				role = deps.Roles.LookupRole(ctx, res.Session.UserID)
				if role.Kind == access.RoleError {
					slog.Error("role lookup failed",
						slog.String("user_id", res.Session.UserID),
						slog.String("path", r.URL.Path),
						slog.String("error", role.Err.Error()),
					)
					deps.Metrics.RecordRoleLookupFailure("gate")
				}
			}

			decision := deps.Policy.Evaluate(r.URL.Path, res.Session, role)
			deps.Metrics.RecordGateDecision(decision.Label())
			annotateRequest(ctx, res.Session.UserID, decision.Label())

			for _, c := range res.Refreshed {
				http.SetCookie(w, c)
			}

			if decision.IsRedirect() {
				http.Redirect(w, r, decision.Location(), http.StatusSeeOther)
				return
			}

			if res.Session.IsAuthenticated() {
				r = r.WithContext(ContextWithUserID(ctx, res.Session.UserID))
			}
			next.ServeHTTP(w, r)
		})
	}
}

// isExcluded はパスがゲート対象外かどうかを判定する。
func isExcluded(path string, exclusions []string) bool {
	for _, e := range exclusions {
		if strings.HasSuffix(e, "/") {
			if strings.HasPrefix(path, e) {
				return true
			}
			continue
		}
		if path == e || strings.HasPrefix(path, e+"/") {
			return true
		}
	}
	return false
}
