package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/admin"
	"github.com/hitoshi/wrapmag/internal/middleware"
	"github.com/hitoshi/wrapmag/internal/model"
)

// AdminServiceInterface は管理コンソールハンドラーが必要とするサービスインターフェース。
type AdminServiceInterface interface {
	ListProfiles(ctx context.Context) ([]*model.Profile, error)
	ListTeam(ctx context.Context) ([]*model.Profile, error)
	ChangeRole(ctx context.Context, actorID, targetID string, role model.Role) error
	DeleteAccount(ctx context.Context, actorID, targetID string) error
}

// allRoles は管理コンソールで選択できるロール。
var allRoles = []model.Role{model.RoleSuperadmin, model.RoleHersteller, model.RoleFolierer, model.RoleHaendler}

// adminPage は管理コンソールの表示内容。
type adminPage struct {
	Profiles []*model.Profile
	Roles    []roleOption
	Notice   string
	Error    string
}

// AdminHandler は/dashboard/adminと/dashboard/teamのHTTPハンドラー。
// ゲートに加えて、各ハンドラーでもsuperadminであることを再確認する。
type AdminHandler struct {
	service  AdminServiceInterface
	roles    RoleLookuper
	paths    access.Paths
	renderer *Renderer
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(service AdminServiceInterface, roles RoleLookuper, paths access.Paths, renderer *Renderer) *AdminHandler {
	return &AdminHandler{
		service:  service,
		roles:    roles,
		paths:    paths,
		renderer: renderer,
	}
}

// Console はユーザー一覧を表示する。
// GET /dashboard/admin
func (h *AdminHandler) Console(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireSuperadmin(w, r); !ok {
		return
	}

	profiles, err := h.service.ListProfiles(r.Context())
	if err != nil {
		slog.Error("failed to list profiles", slog.String("error", err.Error()))
		h.renderer.RenderError(w, r, http.StatusServiceUnavailable,
			"Administration nicht verfügbar", "Die Benutzerliste konnte nicht geladen werden.")
		return
	}

	q := r.URL.Query()
	h.renderer.Render(w, r, http.StatusOK, pageAdmin, "Administration", adminPage{
		Profiles: profiles,
		Roles:    roleOptions(allRoles),
		Notice:   adminNotice(q.Get("notice")),
		Error:    adminError(q.Get("error")),
	})
}

// Team はsuperadminの一覧を表示する。
// GET /dashboard/team
func (h *AdminHandler) Team(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.requireSuperadmin(w, r); !ok {
		return
	}

	team, err := h.service.ListTeam(r.Context())
	if err != nil {
		slog.Error("failed to list team", slog.String("error", err.Error()))
		h.renderer.RenderError(w, r, http.StatusServiceUnavailable,
			"Team nicht verfügbar", "Die Teamliste konnte nicht geladen werden.")
		return
	}
	h.renderer.Render(w, r, http.StatusOK, pageTeam, "Team", team)
}

// ChangeRole は対象ユーザーのロールを変更する。
// POST /dashboard/admin/users/{id}/role
func (h *AdminHandler) ChangeRole(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireSuperadmin(w, r)
	if !ok {
		return
	}

	targetID := chi.URLParam(r, "id")
	role := model.Role(r.PostFormValue("role"))

	err := h.service.ChangeRole(r.Context(), actorID, targetID, role)
	if err != nil {
		h.redirectWithError(w, r, "failed to change role", targetID, err)
		return
	}
	http.Redirect(w, r, h.consolePath()+"?notice=role_changed", http.StatusSeeOther)
}

// DeleteAccount は対象ユーザーのアカウントを削除する。
// POST /dashboard/admin/users/{id}/delete
func (h *AdminHandler) DeleteAccount(w http.ResponseWriter, r *http.Request) {
	actorID, ok := h.requireSuperadmin(w, r)
	if !ok {
		return
	}

	targetID := chi.URLParam(r, "id")
	if err := h.service.DeleteAccount(r.Context(), actorID, targetID); err != nil {
		h.redirectWithError(w, r, "failed to delete account", targetID, err)
		return
	}
	http.Redirect(w, r, h.consolePath()+"?notice=deleted", http.StatusSeeOther)
}

// requireSuperadmin はログインユーザーがsuperadminかどうかを確認する。
// ロールを取得できない場合も拒否する。
func (h *AdminHandler) requireSuperadmin(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, err := middleware.UserIDFromContext(r.Context())
	if err != nil {
		http.Redirect(w, r, h.paths.Login, http.StatusSeeOther)
		return "", false
	}

	role, known := h.roles.LookupRole(r.Context(), userID).Known()
	if !known || role != model.RoleSuperadmin {
		slog.Warn("admin access denied",
			slog.String("user_id", userID),
			slog.String("path", r.URL.Path),
		)
		http.Redirect(w, r, h.paths.DashboardRoot+"?error="+access.ReasonUnauthorizedAccess, http.StatusSeeOther)
		return "", false
	}
	return userID, true
}

func (h *AdminHandler) redirectWithError(w http.ResponseWriter, r *http.Request, msg, targetID string, err error) {
	code := "failed"
	switch {
	case errors.Is(err, model.ErrInvalidRole):
		code = "invalid_role"
	case errors.Is(err, admin.ErrSelfDemotion):
		code = "self"
	case errors.Is(err, model.ErrNotFound):
		code = "not_found"
	default:
		slog.Error(msg,
			slog.String("user_id", targetID),
			slog.String("error", err.Error()),
		)
	}
	http.Redirect(w, r, h.consolePath()+"?error="+code, http.StatusSeeOther)
}

func (h *AdminHandler) consolePath() string {
	p, _ := h.paths.RoleHome(model.RoleSuperadmin)
	return p
}

func adminNotice(code string) string {
	switch code {
	case "role_changed":
		return "Die Rolle wurde geändert."
	case "deleted":
		return "Das Konto wurde gelöscht."
	default:
		return ""
	}
}

func adminError(code string) string {
	switch code {
	case "invalid_role":
		return "Unbekannte Rolle."
	case "self":
		return "Sie können Ihr eigenes Konto hier nicht ändern."
	case "not_found":
		return "Benutzer nicht gefunden."
	case "failed":
		return "Die Aktion ist fehlgeschlagen."
	default:
		return ""
	}
}
