package handler

import (
	"crypto/subtle"
	"encoding/json"
	"io"
	"log/slog"
	"mime"
	"net/http"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/metrics"
	"github.com/hitoshi/wrapmag/internal/middleware"
	"github.com/hitoshi/wrapmag/internal/model"
)

const (
	// passwordCookieMaxAge はパスワードゲートCookieの有効期間（30日）。
	passwordCookieMaxAge = 2592000
	// maxPasswordBodySize はリクエストボディの上限。
	maxPasswordBodySize = 4096
)

// PasswordHandlerConfig はパスワードゲートハンドラーの設定。
type PasswordHandlerConfig struct {
	SitePassword string
	CookieSecure bool
}

// passwordRequest はPOST /api/passwordのJSONボディ。
type passwordRequest struct {
	Password string `json:"password"`
	Next     string `json:"next"`
}

// passwordResponse はPOST /api/passwordのレスポンス。
type passwordResponse struct {
	Success bool `json:"success"`
}

// passwordPage はパスワード入力ページの表示内容。
type passwordPage struct {
	Next  string
	Error string
}

// PasswordHandler はステージング用パスワードゲートのHTTPハンドラー。
type PasswordHandler struct {
	config   PasswordHandlerConfig
	metrics  metrics.MetricsCollector
	renderer *Renderer
}

// NewPasswordHandler はPasswordHandlerを生成する。
func NewPasswordHandler(config PasswordHandlerConfig, m metrics.MetricsCollector, renderer *Renderer) *PasswordHandler {
	if m == nil {
		m = metrics.Nop{}
	}
	return &PasswordHandler{config: config, metrics: m, renderer: renderer}
}

// Page はパスワード入力ページを表示する。
// GET /password?next=/magazin
func (h *PasswordHandler) Page(w http.ResponseWriter, r *http.Request) {
	h.renderer.Render(w, r, http.StatusOK, pagePassword, "Passwort", passwordPage{
		Next: access.SafeNext(r.URL.Query().Get("next"), "/"),
	})
}

// Submit はパスワードを検証し、一致した場合にゲート通過Cookieを設定する。
// JSON（{"password": "..."}）またはフォームのpasswordフィールドを受け付ける。
// ブラウザのフォーム送信（Accept: text/html）の場合はJSONの代わりにリダイレクトまたはページを返す。
// POST /api/password
func (h *PasswordHandler) Submit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxPasswordBodySize)

	req, err := decodePasswordRequest(r)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest, model.NewInvalidRequestError("password"))
		return
	}

	ok := h.matches(req.Password)
	h.metrics.RecordPasswordAttempt(ok)
	html := wantsHTML(r)

	if !ok {
		slog.Warn("password gate rejected", slog.String("remote_addr", r.RemoteAddr))
		if html {
			h.renderer.Render(w, r, http.StatusUnauthorized, pagePassword, "Passwort", passwordPage{
				Next:  access.SafeNext(req.Next, "/"),
				Error: model.NewInvalidPasswordError().Message,
			})
			return
		}
		middleware.WriteJSON(w, http.StatusUnauthorized, passwordResponse{Success: false})
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     middleware.PasswordCookieName,
		Value:    "true",
		Path:     "/",
		MaxAge:   passwordCookieMaxAge,
		HttpOnly: true,
		Secure:   h.config.CookieSecure,
		SameSite: http.SameSiteStrictMode,
	})

	if html {
		http.Redirect(w, r, access.SafeNext(req.Next, "/"), http.StatusSeeOther)
		return
	}
	middleware.WriteJSON(w, http.StatusOK, passwordResponse{Success: true})
}

// matches は設定済みパスワードと定数時間で比較する。未設定の場合は常に不一致。
func (h *PasswordHandler) matches(password string) bool {
	if h.config.SitePassword == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(password), []byte(h.config.SitePassword)) == 1
}

// decodePasswordRequest はContent-Typeに応じてJSONまたはフォームを読み取る。
func decodePasswordRequest(r *http.Request) (passwordRequest, error) {
	var req passwordRequest

	mediaType, _, _ := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			return req, err
		}
		return req, nil
	}

	if err := r.ParseForm(); err != nil {
		return req, err
	}
	req.Password = r.PostForm.Get("password")
	req.Next = r.PostForm.Get("next")
	return req, nil
}
