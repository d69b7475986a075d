package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func newPasswordGateHandler(enabled bool) (http.Handler, *bool) {
	reached := false
	h := NewPasswordGateMiddleware(DefaultPasswordGateConfig(enabled))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reached = true
	}))
	return h, &reached
}

func TestPasswordGate_Disabled_PassesThrough(t *testing.T) {
	h, reached := newPasswordGateHandler(false)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/hersteller", nil))

	if !*reached || w.Code != http.StatusOK {
		t.Errorf("status = %d, reached = %v", w.Code, *reached)
	}
}

func TestPasswordGate_WithoutCookie_RedirectsToPasswordPage(t *testing.T) {
	h, reached := newPasswordGateHandler(true)

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/haendler?location=K%C3%B6ln", nil))

	if w.Code != http.StatusSeeOther {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusSeeOther)
	}
	if got := w.Header().Get("Location"); got != "/password?next=%2Fhaendler%3Flocation%3DK%25C3%25B6ln" {
		t.Errorf("Location = %q", got)
	}
	if *reached {
		t.Error("handler must not be reached")
	}

	// トップページはnextを付けない
	w = httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	if got := w.Header().Get("Location"); got != "/password" {
		t.Errorf("Location = %q, want /password", got)
	}
}

func TestPasswordGate_WithCookie_PassesThrough(t *testing.T) {
	h, reached := newPasswordGateHandler(true)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: PasswordCookieName, Value: "true"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if !*reached {
		t.Error("handler should be reached with gate cookie")
	}
}

func TestPasswordGate_WrongCookieValue_Redirects(t *testing.T) {
	h, _ := newPasswordGateHandler(true)

	req := httptest.NewRequest(http.MethodGet, "/dashboard", nil)
	req.AddCookie(&http.Cookie{Name: PasswordCookieName, Value: "false"})
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusSeeOther {
		t.Errorf("status = %d, want 303", w.Code)
	}
}

func TestPasswordGate_ExemptPaths(t *testing.T) {
	for _, path := range []string{"/password", "/api/password", "/static/site.css", "/healthz", "/metrics"} {
		h, reached := newPasswordGateHandler(true)
		w := httptest.NewRecorder()
		h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
		if !*reached {
			t.Errorf("%s should be exempt", path)
		}
	}
}
