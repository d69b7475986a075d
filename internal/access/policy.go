// Package access はリクエストごとのアクセス判定（セッション・ロール・パス）を提供する。
// 判定自体は純粋関数で、リダイレクトは例外ではなくDecision値として呼び出し元に返す。
package access

import (
	"net/url"
	"path"
	"strings"

	"github.com/hitoshi/wrapmag/internal/model"
)

// ReasonUnauthorizedAccess は管理者専用パスへのアクセス拒否時にerrorクエリへ付与する値。
const ReasonUnauthorizedAccess = "unauthorized_access"

// Paths はアクセス判定に使うパス群。
type Paths struct {
	Login         string
	Register      string
	Protected     string   // このプレフィックス配下は認証必須
	DashboardRoot string   // ログイン後のランディング
	Home          string   // 公開トップ
	AdminPrefixes []string // superadminのみアクセス可能
}

// DefaultPaths はアプリケーションのパス設定を返す。
func DefaultPaths() Paths {
	return Paths{
		Login:         "/login",
		Register:      "/register",
		Protected:     "/dashboard",
		DashboardRoot: "/dashboard",
		Home:          "/",
		AdminPrefixes: []string{"/dashboard/admin", "/dashboard/team"},
	}
}

// RoleHome はロールごとのダッシュボードのパスを返す。
// 未知のロールの場合はfalseを返す。
func (p Paths) RoleHome(role model.Role) (string, bool) {
	switch role {
	case model.RoleSuperadmin:
		return p.DashboardRoot + "/admin", true
	case model.RoleHersteller, model.RoleFolierer, model.RoleHaendler:
		return p.DashboardRoot + "/" + string(role), true
	default:
		return "", false
	}
}

// Session はセッション解決の結果。UserIDが空の場合は未認証（Anonymous）。
type Session struct {
	UserID string
}

// Anonymous は未認証セッション。
var Anonymous = Session{}

// Authenticated は認証済みセッションを返す。
func Authenticated(userID string) Session {
	return Session{UserID: userID}
}

// IsAuthenticated は認証済みかどうかを返す。
func (s Session) IsAuthenticated() bool {
	return s.UserID != ""
}

// DecisionKind はアクセス判定の種別。
type DecisionKind int

const (
	// Allow はリクエストをそのまま通す。
	Allow DecisionKind = iota
	// RedirectToLogin はログインページへリダイレクトする。
	RedirectToLogin
	// RedirectToDashboard はダッシュボードへリダイレクトする。
	RedirectToDashboard
)

// String はメトリクスやログで使う種別名を返す。
func (k DecisionKind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectToLogin:
		return "redirect_login"
	case RedirectToDashboard:
		return "redirect_dashboard"
	default:
		return "unknown"
	}
}

// Decision はリクエストごとに計算されるアクセス判定。永続化はしない。
type Decision struct {
	Kind   DecisionKind
	Target string // リダイレクト先のパス（Allowの場合は空）
	Next   string // RedirectToLogin: ログイン後に戻るパス
	Reason string // RedirectToDashboard: errorクエリの値（空なら付与しない）
}

// IsRedirect はリダイレクトを伴う判定かどうかを返す。
func (d Decision) IsRedirect() bool {
	return d.Kind != Allow
}

// Label はメトリクス用のラベルを返す。拒否によるリダイレクトは"deny"とする。
func (d Decision) Label() string {
	if d.Kind == RedirectToDashboard && d.Reason != "" {
		return "deny"
	}
	return d.Kind.String()
}

// Location はクエリパラメータを含むリダイレクト先URLを返す。
func (d Decision) Location() string {
	if !d.IsRedirect() {
		return ""
	}
	q := url.Values{}
	if d.Next != "" {
		q.Set("next", d.Next)
	}
	if d.Reason != "" {
		q.Set("error", d.Reason)
	}
	if len(q) == 0 {
		return d.Target
	}
	return d.Target + "?" + q.Encode()
}

// Policy はパス・セッション・ロールからアクセス判定を行う。
// 内部状態を持たないため、同じ入力には常に同じ判定を返す。
type Policy struct {
	paths Paths
}

// NewPolicy はPolicyを生成する。
func NewPolicy(paths Paths) *Policy {
	return &Policy{paths: paths}
}

// Paths は判定に使用しているパス設定を返す。
func (p *Policy) Paths() Paths {
	return p.paths
}

// Evaluate はアクセス判定を行う。規則は以下の順で評価する。
//  1. 保護パス配下かつ未認証 → ログインへ（next=元のパス）
//  2. 認証済みでログイン/登録ページ → ダッシュボードへ
//  3. 管理者専用パス配下 → superadmin以外（取得失敗を含む）はダッシュボードへ（error=unauthorized_access）
//  4. それ以外 → 通過
func (p *Policy) Evaluate(reqPath string, s Session, role RoleResult) Decision {
	clean := cleanPath(reqPath)

	if !s.IsAuthenticated() && underPrefix(clean, p.paths.Protected) {
		return Decision{Kind: RedirectToLogin, Target: p.paths.Login, Next: reqPath}
	}

	if s.IsAuthenticated() && (clean == p.paths.Login || clean == p.paths.Register) {
		return Decision{Kind: RedirectToDashboard, Target: p.paths.DashboardRoot}
	}

	if p.isAdminPath(clean) {
		if r, ok := role.Known(); !ok || r != model.RoleSuperadmin {
			return Decision{Kind: RedirectToDashboard, Target: p.paths.DashboardRoot, Reason: ReasonUnauthorizedAccess}
		}
	}

	return Decision{Kind: Allow}
}

// NeedsRole は判定に規則3が適用されうる（ロール取得が必要）かどうかを返す。
// 未認証の場合はロールを引く対象がないため常にfalse。
func (p *Policy) NeedsRole(reqPath string, s Session) bool {
	if !s.IsAuthenticated() {
		return false
	}
	clean := cleanPath(reqPath)
	if clean == p.paths.Login || clean == p.paths.Register {
		return false
	}
	return p.isAdminPath(clean)
}

func (p *Policy) isAdminPath(clean string) bool {
	for _, prefix := range p.paths.AdminPrefixes {
		if underPrefix(clean, prefix) {
			return true
		}
	}
	return false
}

// underPrefix はパスがプレフィックスと同一か、そのサブパスかを判定する。
// "/dashboardx" は "/dashboard" 配下とみなさない。
func underPrefix(p, prefix string) bool {
	if prefix == "" {
		return false
	}
	if prefix == "/" {
		return true
	}
	return p == prefix || strings.HasPrefix(p, prefix+"/")
}

func cleanPath(p string) string {
	if p == "" {
		return "/"
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return path.Clean(p)
}

// SafeNext はログイン後のリダイレクト先として安全なローカルパスを返す。
// 外部URLやプロトコル相対URLの場合はfallbackを返す。
func SafeNext(next, fallback string) string {
	if next == "" || !strings.HasPrefix(next, "/") {
		return fallback
	}
	if strings.HasPrefix(next, "//") || strings.HasPrefix(next, `/\`) {
		return fallback
	}
	u, err := url.Parse(next)
	if err != nil || u.Scheme != "" || u.Host != "" {
		return fallback
	}
	return next
}
