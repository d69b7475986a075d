// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/auth"
	"github.com/hitoshi/wrapmag/internal/model"
)

const (
	oauthStateCookie = "oauth_state"
	oauthRoleCookie  = "oauth_role"
	oauthCookieTTL   = 600 // 10分
)

// ログイン・登録ページのエラーコード（クエリパラメータ error）
const (
	errorRoleRequired = "role_required"
	errorUnverified   = "unverified"
	errorOAuthFailed  = "oauth_failed"
)

// AuthServiceInterface は認証ハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	SignUp(ctx context.Context, in auth.SignUpInput) (*auth.Credentials, error)
	SignIn(ctx context.Context, email, password string) (*auth.Credentials, error)
	OAuthEnabled() bool
	GetLoginURL(state string) string
	HandleCallback(ctx context.Context, code, role string) (*auth.Credentials, error)
	SignOut(ctx context.Context, sessionID string) error
}

// loginPage はログインページの表示内容。
type loginPage struct {
	Email         string
	Next          string
	Error         string
	GoogleEnabled bool
}

// registerPage は登録ページの表示内容。
type registerPage struct {
	Email         string
	CompanyName   string
	Role          string
	Roles         []roleOption
	Error         string
	GoogleEnabled bool
}

// AuthHandler はサインアップ・ログイン・OAuth・ログアウトのHTTPハンドラー。
type AuthHandler struct {
	service  AuthServiceInterface
	cookies  auth.CookieConfig
	paths    access.Paths
	renderer *Renderer
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, cookies auth.CookieConfig, paths access.Paths, renderer *Renderer) *AuthHandler {
	return &AuthHandler{
		service:  service,
		cookies:  cookies,
		paths:    paths,
		renderer: renderer,
	}
}

// LoginPage はログインフォームを表示する。
// GET /login
func (h *AuthHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	h.renderLogin(w, r, http.StatusOK, loginPage{
		Next:  access.SafeNext(q.Get("next"), h.paths.DashboardRoot),
		Error: loginErrorMessage(q.Get("error")),
	})
}

// Login はメールアドレスとパスワードでログインする。
// 失敗理由にかかわらず同じメッセージを返す。
// POST /login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	email := strings.TrimSpace(r.PostFormValue("email"))
	next := access.SafeNext(r.PostFormValue("next"), h.paths.DashboardRoot)

	creds, err := h.service.SignIn(r.Context(), email, r.PostFormValue("password"))
	if err != nil {
		if !errors.Is(err, model.ErrInvalidCredentials) {
			slog.Error("sign in failed", slog.String("error", err.Error()))
		}
		h.renderLogin(w, r, http.StatusUnauthorized, loginPage{
			Email: email,
			Next:  next,
			Error: "E-Mail-Adresse oder Passwort ist falsch.",
		})
		return
	}

	h.setCookies(w, h.cookies.Issue(creds))
	http.Redirect(w, r, next, http.StatusSeeOther)
}

// RegisterPage は登録フォームを表示する。
// GET /register
func (h *AuthHandler) RegisterPage(w http.ResponseWriter, r *http.Request) {
	page := registerPage{}
	if r.URL.Query().Get("error") == errorRoleRequired {
		page.Error = "Bitte wählen Sie zuerst aus, ob Sie Hersteller, Folierer oder Händler sind."
	}
	h.renderRegister(w, r, http.StatusOK, page)
}

// Register はアカウントを作成してログインさせる。
// POST /register
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	in := auth.SignUpInput{
		Email:       strings.TrimSpace(r.PostFormValue("email")),
		Password:    r.PostFormValue("password"),
		Role:        r.PostFormValue("role"),
		CompanyName: strings.TrimSpace(r.PostFormValue("company_name")),
	}

	creds, err := h.service.SignUp(r.Context(), in)
	if err != nil {
		status, msg := signUpErrorMessage(err)
		if status == http.StatusInternalServerError {
			slog.Error("sign up failed", slog.String("error", err.Error()))
		}
		h.renderRegister(w, r, status, registerPage{
			Email:       in.Email,
			CompanyName: in.CompanyName,
			Role:        in.Role,
			Error:       msg,
		})
		return
	}

	h.setCookies(w, h.cookies.Issue(creds))
	http.Redirect(w, r, h.paths.DashboardRoot, http.StatusSeeOther)
}

// GoogleLogin はGoogle OAuthフローを開始する。
// 新規登録の場合は role クエリで選択したロールをCookieに保存しておく。
// GET /auth/google/login?role=folierer
func (h *AuthHandler) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	if !h.service.OAuthEnabled() {
		http.NotFound(w, r)
		return
	}

	state, err := generateState()
	if err != nil {
		slog.Error("failed to generate oauth state", slog.String("error", err.Error()))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	// stateをCookieに保存（CSRF対策）
	http.SetCookie(w, h.shortCookie(oauthStateCookie, state, oauthCookieTTL))

	if role, err := model.ParseBusinessRole(r.URL.Query().Get("role")); err == nil {
		http.SetCookie(w, h.shortCookie(oauthRoleCookie, string(role), oauthCookieTTL))
	} else {
		http.SetCookie(w, h.shortCookie(oauthRoleCookie, "", -1))
	}

	http.Redirect(w, r, h.service.GetLoginURL(state), http.StatusTemporaryRedirect)
}

// Callback はOAuthコールバックを処理する。
// GET /auth/callback?code=xxx&state=yyy
func (h *AuthHandler) Callback(w http.ResponseWriter, r *http.Request) {
	// 1. stateの検証（CSRF対策）
	state := r.URL.Query().Get("state")
	stateCookie, err := r.Cookie(oauthStateCookie)
	if err != nil || state == "" || stateCookie.Value != state {
		slog.Warn("oauth state mismatch",
			slog.String("query_state", state),
		)
		http.Error(w, "invalid state parameter", http.StatusBadRequest)
		return
	}

	var role string
	if c, err := r.Cookie(oauthRoleCookie); err == nil {
		role = c.Value
	}

	// state・roleクッキーを削除
	http.SetCookie(w, h.shortCookie(oauthStateCookie, "", -1))
	http.SetCookie(w, h.shortCookie(oauthRoleCookie, "", -1))

	// 2. 認可コードの取得
	code := r.URL.Query().Get("code")
	if code == "" {
		http.Error(w, "missing authorization code", http.StatusBadRequest)
		return
	}

	// 3. 認証処理
	creds, err := h.service.HandleCallback(r.Context(), code, role)
	switch {
	case errors.Is(err, auth.ErrRoleRequired):
		http.Redirect(w, r, h.paths.Register+"?error="+errorRoleRequired, http.StatusSeeOther)
		return
	case errors.Is(err, auth.ErrUnverifiedEmail):
		http.Redirect(w, r, h.paths.Login+"?error="+errorUnverified, http.StatusSeeOther)
		return
	case err != nil:
		slog.Error("oauth callback failed", slog.String("error", err.Error()))
		http.Redirect(w, r, h.paths.Login+"?error="+errorOAuthFailed, http.StatusSeeOther)
		return
	}

	// 4. セッションCookieを設定してダッシュボードへ
	h.setCookies(w, h.cookies.Issue(creds))
	http.Redirect(w, r, h.paths.DashboardRoot, http.StatusSeeOther)
}

// Logout はセッションを破棄する。
// POST /logout
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie(auth.RefreshCookieName)
	if err == nil && cookie.Value != "" {
		if signOutErr := h.service.SignOut(r.Context(), cookie.Value); signOutErr != nil {
			slog.Error("failed to sign out", slog.String("error", signOutErr.Error()))
			// 失敗してもCookieはクリアする
		}
	}

	h.setCookies(w, h.cookies.Clear())
	http.Redirect(w, r, h.paths.Home, http.StatusSeeOther)
}

func (h *AuthHandler) renderLogin(w http.ResponseWriter, r *http.Request, status int, page loginPage) {
	page.GoogleEnabled = h.service.OAuthEnabled()
	h.renderer.Render(w, r, status, pageLogin, "Anmelden", page)
}

func (h *AuthHandler) renderRegister(w http.ResponseWriter, r *http.Request, status int, page registerPage) {
	page.Roles = roleOptions(model.BusinessRoles)
	page.GoogleEnabled = h.service.OAuthEnabled()
	h.renderer.Render(w, r, status, pageRegister, "Registrieren", page)
}

func (h *AuthHandler) setCookies(w http.ResponseWriter, cookies []*http.Cookie) {
	for _, c := range cookies {
		http.SetCookie(w, c)
	}
}

// shortCookie はOAuthフロー中だけ使う短命なCookieを生成する。
func (h *AuthHandler) shortCookie(name, value string, maxAge int) *http.Cookie {
	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   maxAge,
		HttpOnly: true,
		Secure:   h.cookies.Secure,
		SameSite: http.SameSiteLaxMode,
	}
}

// signUpErrorMessage はサインアップエラーをHTTPステータスと表示メッセージに変換する。
func signUpErrorMessage(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidEmail):
		return http.StatusUnprocessableEntity, "Bitte geben Sie eine gültige E-Mail-Adresse ein."
	case errors.Is(err, auth.ErrWeakPassword):
		return http.StatusUnprocessableEntity, "Das Passwort muss mindestens 8 Zeichen lang sein."
	case errors.Is(err, auth.ErrPasswordTooLong):
		return http.StatusUnprocessableEntity, "Das Passwort darf höchstens 72 Zeichen lang sein."
	case errors.Is(err, auth.ErrCompanyRequired):
		return http.StatusUnprocessableEntity, "Bitte geben Sie einen Firmennamen ein."
	case errors.Is(err, auth.ErrRoleRequired), errors.Is(err, model.ErrInvalidRole):
		return http.StatusUnprocessableEntity, "Bitte wählen Sie eine Rolle aus."
	case errors.Is(err, model.ErrEmailTaken):
		return http.StatusConflict, "Diese E-Mail-Adresse ist bereits registriert."
	default:
		return http.StatusInternalServerError, "Die Registrierung ist fehlgeschlagen. Bitte versuchen Sie es später erneut."
	}
}

func loginErrorMessage(code string) string {
	switch code {
	case errorUnverified:
		return "Ihre Google-E-Mail-Adresse ist nicht bestätigt."
	case errorOAuthFailed:
		return "Die Anmeldung mit Google ist fehlgeschlagen."
	default:
		return ""
	}
}

// generateState はCSRF対策用のランダムなstate値を生成する。
func generateState() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
