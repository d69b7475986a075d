package handler

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"io/fs"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/hitoshi/wrapmag/internal/middleware"
	"github.com/hitoshi/wrapmag/internal/model"
)

//go:embed templates/*.html
var templateFS embed.FS

//go:embed static
var staticFS embed.FS

// レイアウトと部品テンプレート。各ページと一緒にパースする。
var sharedTemplates = []string{"templates/layout.html", "templates/card.html"}

// ページテンプレート名
const (
	pageHome          = "home"
	pageLogin         = "login"
	pageRegister      = "register"
	pagePassword      = "password"
	pageDiagnostic    = "diagnostic"
	pageRoleDashboard = "role_dashboard"
	pageAdmin         = "admin"
	pageTeam          = "team"
	pageDirectory     = "directory"
	pageMagazine      = "magazine"
	pageArticle       = "article"
	pageError         = "error"
)

var pageNames = []string{
	pageHome, pageLogin, pageRegister, pagePassword, pageDiagnostic, pageRoleDashboard,
	pageAdmin, pageTeam, pageDirectory, pageMagazine, pageArticle, pageError,
}

// CurrentUserFinder はレイアウトに表示するログインユーザーを取得する。
type CurrentUserFinder interface {
	CurrentUser(ctx context.Context, userID string) (*model.User, error)
}

// pageData はレイアウトに渡す共通データ。ページ固有の値はDataに入れる。
type pageData struct {
	Title     string
	CSRFToken string
	UserID    string
	UserEmail string
	Data      any
}

// errorPage はエラーページの表示内容。
type errorPage struct {
	Heading string
	Message string
	Back    string
}

// Renderer は埋め込みテンプレートからHTMLページを描画する。
type Renderer struct {
	pages map[string]*template.Template
	users CurrentUserFinder
}

var templateFuncs = template.FuncMap{
	"articleURL": func(a *model.Article) string {
		return "/magazin/" + url.PathEscape(a.Slug)
	},
	// 本文はbluemondayでサニタイズ済み
	"safeHTML": func(s string) template.HTML {
		return template.HTML(s) //nolint:gosec
	},
}

// NewRenderer は全ページのテンプレートをパースする。usersがnilの場合はメールアドレスを表示しない。
func NewRenderer(users CurrentUserFinder) (*Renderer, error) {
	pages := make(map[string]*template.Template, len(pageNames))
	for _, name := range pageNames {
		files := append([]string{"templates/" + name + ".html"}, sharedTemplates...)
		tmpl, err := template.New(name).Funcs(templateFuncs).ParseFS(templateFS, files...)
		if err != nil {
			return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
		}
		pages[name] = tmpl
	}
	return &Renderer{pages: pages, users: users}, nil
}

// StaticHandler は埋め込みの静的ファイルを/static/以下で配信する。
func StaticHandler() http.Handler {
	sub, err := fs.Sub(staticFS, "static")
	if err != nil {
		panic(err)
	}
	return http.StripPrefix("/static/", http.FileServer(http.FS(sub)))
}

// Render はページを描画する。テンプレートの実行に失敗した場合は500を返す。
func (rd *Renderer) Render(w http.ResponseWriter, r *http.Request, status int, page, title string, data any) {
	tmpl, ok := rd.pages[page]
	if !ok {
		slog.Error("unknown page template", slog.String("page", page))
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	pd := pageData{
		Title:     title,
		CSRFToken: middleware.CSRFTokenFromContext(r.Context()),
		Data:      data,
	}
	if userID, err := middleware.UserIDFromContext(r.Context()); err == nil {
		pd.UserID = userID
		if rd.users != nil {
			if u, err := rd.users.CurrentUser(r.Context(), userID); err == nil && u != nil {
				pd.UserEmail = u.Email
			}
		}
	}

	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "layout", pd); err != nil {
		slog.Error("failed to render template",
			slog.String("page", page),
			slog.String("error", err.Error()),
		)
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.WriteHeader(status)
	_, _ = buf.WriteTo(w)
}

// RenderError はエラーページを描画する。
func (rd *Renderer) RenderError(w http.ResponseWriter, r *http.Request, status int, heading, message string) {
	rd.Render(w, r, status, pageError, heading, errorPage{Heading: heading, Message: message, Back: "/"})
}

// wantsHTML はブラウザからのフォーム送信かどうかを判定する。
func wantsHTML(r *http.Request) bool {
	return strings.Contains(r.Header.Get("Accept"), "text/html")
}

// roleOption はロール選択肢の表示用データ。
type roleOption struct {
	Value string
	Label string
}

// roleLabel はロールの表示名を返す。
func roleLabel(r model.Role) string {
	switch r {
	case model.RoleSuperadmin:
		return "Superadmin"
	case model.RoleHersteller:
		return "Hersteller"
	case model.RoleFolierer:
		return "Folierer"
	case model.RoleHaendler:
		return "Händler"
	default:
		return string(r)
	}
}

func roleOptions(roles []model.Role) []roleOption {
	opts := make([]roleOption, 0, len(roles))
	for _, r := range roles {
		opts = append(opts, roleOption{Value: string(r), Label: roleLabel(r)})
	}
	return opts
}
