package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wrapmag/internal/magazine"
	"github.com/hitoshi/wrapmag/internal/model"
)

// homeArticleCount はトップページに表示する記事数。
const homeArticleCount = 5

// MagazineServiceInterface はマガジンハンドラーが必要とするサービスインターフェース。
type MagazineServiceInterface interface {
	Recent(ctx context.Context, limit int) ([]*model.Article, error)
	Article(ctx context.Context, slug string) (*model.Article, error)
}

// magazinePage は記事一覧ページの表示内容。
type magazinePage struct {
	Articles []*model.Article
	Error    string
}

// MagazineHandler はトップページとマガジンページのHTTPハンドラー。
type MagazineHandler struct {
	service  MagazineServiceInterface
	renderer *Renderer
}

// NewMagazineHandler はMagazineHandlerを生成する。
func NewMagazineHandler(service MagazineServiceInterface, renderer *Renderer) *MagazineHandler {
	return &MagazineHandler{service: service, renderer: renderer}
}

// Home はトップページを表示する。記事が取得できなくてもページは表示する。
// GET /
func (h *MagazineHandler) Home(w http.ResponseWriter, r *http.Request) {
	articles, err := h.service.Recent(r.Context(), homeArticleCount)
	if err != nil {
		slog.Warn("failed to load articles for home", slog.String("error", err.Error()))
		articles = nil
	}
	var data any
	if len(articles) > 0 {
		data = articles
	}
	h.renderer.Render(w, r, http.StatusOK, pageHome, "Start", data)
}

// List はキャッシュ済みの記事一覧を表示する。
// GET /magazin
func (h *MagazineHandler) List(w http.ResponseWriter, r *http.Request) {
	page := magazinePage{}
	articles, err := h.service.Recent(r.Context(), magazine.DefaultListLimit)
	if err != nil {
		slog.Error("failed to list articles", slog.String("error", err.Error()))
		page.Error = "Das Magazin ist derzeit nicht erreichbar."
	} else {
		page.Articles = articles
	}
	h.renderer.Render(w, r, http.StatusOK, pageMagazine, "Magazin", page)
}

// Article は記事を表示する。CMSから取得できない場合は404ページを返す。
// GET /magazin/{slug}
func (h *MagazineHandler) Article(w http.ResponseWriter, r *http.Request) {
	slug := chi.URLParam(r, "slug")

	article, err := h.service.Article(r.Context(), slug)
	if err != nil {
		if !errors.Is(err, magazine.ErrArticleUnavailable) {
			slog.Error("failed to load article",
				slog.String("slug", slug),
				slog.String("error", err.Error()),
			)
		} else {
			slog.Info("article unavailable", slog.String("slug", slug))
		}
		h.renderer.Render(w, r, http.StatusNotFound, pageError, "Artikel nicht verfügbar", errorPage{
			Heading: "Artikel nicht verfügbar",
			Message: "Dieser Artikel kann gerade nicht angezeigt werden.",
			Back:    "/magazin",
		})
		return
	}

	h.renderer.Render(w, r, http.StatusOK, pageArticle, article.Title, article)
}
