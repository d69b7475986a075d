package middleware

import (
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/model"
)

// newChainRouter は本番と同じ順序（パスワードゲート → アクセスゲート → CSRF）でミドルウェアを組んだルーターを返す。
func newChainRouter(res Resolution, role access.RoleResult) chi.Router {
	r := chi.NewRouter()
	r.Use(NewRecoveryMiddleware())
	r.Use(NewPasswordGateMiddleware(DefaultPasswordGateConfig(true)))
	r.Use(NewGateMiddleware(GateDeps{
		Resolver:   fakeResolver{res: res},
		Policy:     access.NewPolicy(access.DefaultPaths()),
		Roles:      &mockRoleLookuper{result: role},
		Exclusions: DefaultGateExclusions(),
	}))
	r.Use(NewCSRFMiddleware(CSRFConfig{}))

	r.Get("/dashboard/admin", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("admin console"))
	})
	r.Post("/dashboard/admin/users/{id}/role", func(w http.ResponseWriter, r *http.Request) {
		userID, _ := UserIDFromContext(r.Context())
		w.Write([]byte(userID + " changed " + chi.URLParam(r, "id")))
	})
	return r
}

func withGateCookie(req *http.Request) *http.Request {
	req.AddCookie(&http.Cookie{Name: PasswordCookieName, Value: "true"})
	return req
}

// TestRouterIntegration_PasswordGateRunsFirst はパスワードゲートがアクセスゲートより先に評価されることを検証する。
func TestRouterIntegration_PasswordGateRunsFirst(t *testing.T) {
	r := newChainRouter(anonymous(), access.RoleResult{})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil))

	if loc := w.Header().Get("Location"); !strings.HasPrefix(loc, "/password?") {
		t.Errorf("Location = %q, want password page", loc)
	}
}

// TestRouterIntegration_AdminConsole はパスワードゲート通過後、ロールによって管理画面の表示が分かれることを検証する。
func TestRouterIntegration_AdminConsole(t *testing.T) {
	// superadmin
	r := newChainRouter(signedIn("admin-1"), access.Some(model.RoleSuperadmin))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, withGateCookie(httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil)))
	if w.Code != http.StatusOK || w.Body.String() != "admin console" {
		t.Errorf("superadmin: status = %d, body = %q", w.Code, w.Body.String())
	}

	// haendler
	r = newChainRouter(signedIn("user-2"), access.Some(model.RoleHaendler))
	w = httptest.NewRecorder()
	r.ServeHTTP(w, withGateCookie(httptest.NewRequest(http.MethodGet, "/dashboard/admin", nil)))
	if w.Code != http.StatusSeeOther || strings.Contains(w.Body.String(), "admin console") {
		t.Errorf("haendler: status = %d, body = %q", w.Code, w.Body.String())
	}
}

// TestRouterIntegration_RoleChangeRequiresCSRF は管理操作のPOSTにCSRFトークンが必要なことを検証する。
func TestRouterIntegration_RoleChangeRequiresCSRF(t *testing.T) {
	r := newChainRouter(signedIn("admin-1"), access.Some(model.RoleSuperadmin))

	form := url.Values{"role": {"folierer"}}
	req := withGateCookie(httptest.NewRequest(http.MethodPost, "/dashboard/admin/users/user-9/role", strings.NewReader(form.Encode())))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusForbidden {
		t.Errorf("without token: status = %d, want 403", w.Code)
	}

	form.Set(CSRFFormField, "tok")
	req = withGateCookie(httptest.NewRequest(http.MethodPost, "/dashboard/admin/users/user-9/role", strings.NewReader(form.Encode())))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.AddCookie(&http.Cookie{Name: csrfCookieName, Value: "tok"})
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK || w.Body.String() != "admin-1 changed user-9" {
		t.Errorf("with token: status = %d, body = %q", w.Code, w.Body.String())
	}
}
