// Package dashboard は /dashboard へのアクセスをロール別ダッシュボードへ振り分ける。
package dashboard

import (
	"context"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/metrics"
)

// 診断ページのメッセージ。
const (
	MessageProfileNotFound = "Profil nicht gefunden"
	MessageNoRole          = "Keine Rolle zugewiesen"
	MessageLookupFailed    = "Rolle konnte nicht geladen werden"
)

// OutcomeKind は振り分け結果の種別。
type OutcomeKind int

const (
	// OutcomeRedirect はLocationへリダイレクトする。
	OutcomeRedirect OutcomeKind = iota
	// OutcomeDiagnostic は診断ページを表示する（リダイレクトしない）。
	OutcomeDiagnostic
)

// Outcome はダッシュボード振り分けの結果。ハンドラーがHTTPレスポンスに反映する。
type Outcome struct {
	Kind     OutcomeKind
	Location string
	Status   int
	Message  string
	UserID   string
}

// IsRedirect はリダイレクト結果かどうかを返す。
func (o Outcome) IsRedirect() bool {
	return o.Kind == OutcomeRedirect
}

// RoleLookuper はユーザーのロールを取得する。
type RoleLookuper interface {
	LookupRole(ctx context.Context, userID string) access.RoleResult
}

// Router はセッションとロールから遷移先を決める。
type Router struct {
	paths   access.Paths
	roles   RoleLookuper
	metrics metrics.MetricsCollector
}

// NewRouter はRouterを生成する。
func NewRouter(paths access.Paths, roles RoleLookuper, m metrics.MetricsCollector) *Router {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Router{paths: paths, roles: roles, metrics: m}
}

// Route はダッシュボードの遷移先を返す。
func (r *Router) Route(ctx context.Context, s access.Session) Outcome {
	if !s.IsAuthenticated() {
		return redirect(r.paths.Login + "?" + url.Values{"next": {r.paths.DashboardRoot}}.Encode())
	}

	res := r.roles.LookupRole(ctx, s.UserID)
	switch res.Kind {
	case access.RoleSome:
		home, ok := r.paths.RoleHome(res.Role)
		if !ok {
			slog.Warn("unknown role on dashboard",
				slog.String("user_id", s.UserID),
				slog.String("role", string(res.Role)),
			)
			return redirect(r.paths.Home)
		}
		return redirect(home)
	case access.RoleNone:
		msg := MessageNoRole
		if res.ProfileMissing {
			msg = MessageProfileNotFound
		}
		return Outcome{Kind: OutcomeDiagnostic, Status: http.StatusOK, Message: msg, UserID: s.UserID}
	default:
		slog.Error("dashboard role lookup failed",
			slog.String("user_id", s.UserID),
			slog.Any("error", res.Err),
		)
		r.metrics.RecordRoleLookupFailure("dashboard")
		return Outcome{Kind: OutcomeDiagnostic, Status: http.StatusServiceUnavailable, Message: MessageLookupFailed, UserID: s.UserID}
	}
}

func redirect(location string) Outcome {
	return Outcome{Kind: OutcomeRedirect, Location: location, Status: http.StatusSeeOther}
}
