package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/dashboard"
	"github.com/hitoshi/wrapmag/internal/directory"
	"github.com/hitoshi/wrapmag/internal/middleware"
	"github.com/hitoshi/wrapmag/internal/model"
)

// DashboardRouter は/dashboardの遷移先を決める。
type DashboardRouter interface {
	Route(ctx context.Context, s access.Session) dashboard.Outcome
}

// RoleLookuper はハンドラーでのロール再確認に使う。
type RoleLookuper interface {
	LookupRole(ctx context.Context, userID string) access.RoleResult
}

// OwnProfileService はロール別ダッシュボードのプロフィール操作。
type OwnProfileService interface {
	FindOwn(ctx context.Context, role model.Role, userID string) (*directory.OwnProfile, error)
	Services(ctx context.Context) ([]string, error)
	UpdateOwn(ctx context.Context, role model.Role, userID string, in directory.ProfileInput) error
}

// diagnosticPage は診断ページの表示内容。
type diagnosticPage struct {
	Message string
	UserID  string
}

// serviceOption はサービス選択肢の表示用データ。
type serviceOption struct {
	Title    string
	Selected bool
}

// roleDashboardPage はロール別ダッシュボードの表示内容。
type roleDashboardPage struct {
	RoleLabel  string
	FormAction string
	Profile    *directory.OwnProfile
	Services   []serviceOption
	Saved      bool
	Error      string
}

// DashboardHandler は/dashboard以下のHTTPハンドラー。
type DashboardHandler struct {
	router   DashboardRouter
	roles    RoleLookuper
	profiles OwnProfileService
	paths    access.Paths
	renderer *Renderer
}

// NewDashboardHandler はDashboardHandlerを生成する。
func NewDashboardHandler(
	router DashboardRouter,
	roles RoleLookuper,
	profiles OwnProfileService,
	paths access.Paths,
	renderer *Renderer,
) *DashboardHandler {
	return &DashboardHandler{
		router:   router,
		roles:    roles,
		profiles: profiles,
		paths:    paths,
		renderer: renderer,
	}
}

// Dashboard はロールに応じたダッシュボードへ振り分ける。
// ロールを決められない場合はリダイレクトせずに診断ページを表示する。
// GET /dashboard
func (h *DashboardHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	s := access.Anonymous
	if userID, err := middleware.UserIDFromContext(r.Context()); err == nil {
		s = access.Authenticated(userID)
	}

	outcome := h.router.Route(r.Context(), s)
	if outcome.IsRedirect() {
		location := outcome.Location
		// 管理者専用パスから戻された場合は理由を引き継ぐ
		if reason := r.URL.Query().Get("error"); reason == access.ReasonUnauthorizedAccess && s.IsAuthenticated() {
			location = appendQuery(location, "error", reason)
		}
		http.Redirect(w, r, location, outcome.Status)
		return
	}

	h.renderer.Render(w, r, outcome.Status, pageDiagnostic, "Dashboard", diagnosticPage{
		Message: outcome.Message,
		UserID:  outcome.UserID,
	})
}

// RoleDashboard は自分の事業者プロフィールを表示する。
// パスのロールと自分のロールが一致しない場合は/dashboardへ戻す。
// GET /dashboard/{role}
func (h *DashboardHandler) RoleDashboard(w http.ResponseWriter, r *http.Request) {
	role, userID, ok := h.authorizeRole(w, r)
	if !ok {
		return
	}

	page := roleDashboardPage{Saved: r.URL.Query().Get("saved") == "1"}
	if r.URL.Query().Get("error") == access.ReasonUnauthorizedAccess {
		page.Error = "Für diesen Bereich fehlen Ihnen die Berechtigungen."
	}
	h.renderRole(w, r, http.StatusOK, role, userID, page, nil)
}

// UpdateProfile は自分の事業者プロフィールを更新する。
// POST /dashboard/{role}/profile
func (h *DashboardHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	role, userID, ok := h.authorizeRole(w, r)
	if !ok {
		return
	}

	if err := r.ParseForm(); err != nil {
		http.Error(w, "invalid form", http.StatusBadRequest)
		return
	}
	in := directory.ProfileInput{
		CompanyName: r.PostForm.Get("company_name"),
		Street:      r.PostForm.Get("street"),
		PostalCode:  r.PostForm.Get("postal_code"),
		City:        r.PostForm.Get("city"),
		LogoURL:     r.PostForm.Get("logo_url"),
		Website:     r.PostForm.Get("website"),
		Description: r.PostForm.Get("description"),
		Services:    r.PostForm["services"],
	}

	err := h.profiles.UpdateOwn(r.Context(), role, userID, in)
	if err == nil {
		http.Redirect(w, r, h.rolePath(role)+"?saved=1", http.StatusSeeOther)
		return
	}

	msg, status := profileErrorMessage(err)
	if status == http.StatusInternalServerError {
		slog.Error("failed to update profile",
			slog.String("user_id", userID),
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
	}
	h.renderRole(w, r, status, role, userID, roleDashboardPage{Error: msg}, &in)
}

// authorizeRole はパスのロールがログインユーザーのロールと一致するかを確認する。
// 一致しない場合はレスポンスを書き込み、okにfalseを返す。
func (h *DashboardHandler) authorizeRole(w http.ResponseWriter, r *http.Request) (model.Role, string, bool) {
	role := model.Role(chi.URLParam(r, "role"))
	if !role.IsBusiness() {
		h.renderer.RenderError(w, r, http.StatusNotFound, "Seite nicht gefunden", "Diese Seite existiert nicht.")
		return "", "", false
	}

	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, h.paths.Login+"?"+url.Values{"next": {r.URL.Path}}.Encode(), http.StatusSeeOther)
		return "", "", false
	}

	current, known := h.roles.LookupRole(r.Context(), userID).Known()
	if !known || current != role {
		http.Redirect(w, r, h.paths.DashboardRoot, http.StatusSeeOther)
		return "", "", false
	}
	return role, userID, true
}

// renderRole はロール別ダッシュボードを描画する。inputがある場合はフォームに入力値を戻す。
func (h *DashboardHandler) renderRole(
	w http.ResponseWriter,
	r *http.Request,
	status int,
	role model.Role,
	userID string,
	page roleDashboardPage,
	input *directory.ProfileInput,
) {
	own, err := h.profiles.FindOwn(r.Context(), role, userID)
	if err != nil {
		slog.Error("failed to load own profile",
			slog.String("user_id", userID),
			slog.String("role", string(role)),
			slog.String("error", err.Error()),
		)
		h.renderer.RenderError(w, r, http.StatusServiceUnavailable,
			"Profil nicht verfügbar", "Ihr Profil konnte nicht geladen werden. Bitte versuchen Sie es später erneut.")
		return
	}
	if own == nil {
		h.renderer.Render(w, r, http.StatusOK, pageDiagnostic, "Dashboard", diagnosticPage{
			Message: dashboard.MessageProfileNotFound,
			UserID:  userID,
		})
		return
	}

	selected := own.Card.Services
	if input != nil {
		own.Business.CompanyName = input.CompanyName
		own.Business.Street = input.Street
		own.Business.PostalCode = input.PostalCode
		own.Business.City = input.City
		own.Business.LogoURL = input.LogoURL
		own.Business.Website = input.Website
		own.Business.Description = input.Description
		selected = input.Services
	}

	titles, err := h.profiles.Services(r.Context())
	if err != nil {
		slog.Warn("failed to list services", slog.String("error", err.Error()))
	}

	page.RoleLabel = roleLabel(role)
	page.FormAction = h.rolePath(role) + "/profile"
	page.Profile = own
	page.Services = serviceOptions(titles, selected)
	h.renderer.Render(w, r, status, pageRoleDashboard, "Dashboard · "+page.RoleLabel, page)
}

func (h *DashboardHandler) rolePath(role model.Role) string {
	home, _ := h.paths.RoleHome(role)
	return home
}

func serviceOptions(titles, selected []string) []serviceOption {
	chosen := make(map[string]bool, len(selected))
	for _, s := range selected {
		chosen[s] = true
	}
	opts := make([]serviceOption, 0, len(titles))
	for _, t := range titles {
		opts = append(opts, serviceOption{Title: t, Selected: chosen[t]})
	}
	return opts
}

// profileErrorMessage はプロフィール更新エラーを表示メッセージとHTTPステータスに変換する。
func profileErrorMessage(err error) (string, int) {
	switch {
	case errors.Is(err, directory.ErrCompanyRequired):
		return "Bitte geben Sie einen Firmennamen ein.", http.StatusUnprocessableEntity
	case errors.Is(err, directory.ErrInvalidWebsite):
		return "Die Website muss mit http:// oder https:// beginnen.", http.StatusUnprocessableEntity
	case errors.Is(err, directory.ErrInvalidLogoURL):
		return "Die Logo-URL muss mit https:// beginnen.", http.StatusUnprocessableEntity
	case errors.Is(err, model.ErrNotFound):
		return dashboard.MessageProfileNotFound, http.StatusNotFound
	default:
		return "Das Profil konnte nicht gespeichert werden.", http.StatusInternalServerError
	}
}

// appendQuery はlocationにクエリパラメータを1つ追加する。
func appendQuery(location, key, value string) string {
	sep := "?"
	if strings.Contains(location, "?") {
		sep = "&"
	}
	return location + sep + url.Values{key: {value}}.Encode()
}
