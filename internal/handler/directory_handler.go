package handler

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/hitoshi/wrapmag/internal/directory"
	"github.com/hitoshi/wrapmag/internal/middleware"
	"github.com/hitoshi/wrapmag/internal/model"
)

// DirectoryLister はロール別ディレクトリのカード一覧を返す。
// 失敗時も空のスライスを返すため、エラーは返さない。
type DirectoryLister interface {
	List(ctx context.Context, role model.Role, f directory.Filter) []model.DirectoryCard
}

// directoryPage はディレクトリページの表示内容。
type directoryPage struct {
	Heading        string
	BasePath       string
	APIPath        string
	Location       string
	Cards          []model.DirectoryCard
	DebounceMillis int64
}

// DirectoryHandler は公開ディレクトリのHTTPハンドラー。
type DirectoryHandler struct {
	service  DirectoryLister
	renderer *Renderer
}

// NewDirectoryHandler はDirectoryHandlerを生成する。
func NewDirectoryHandler(service DirectoryLister, renderer *Renderer) *DirectoryHandler {
	return &DirectoryHandler{service: service, renderer: renderer}
}

// Page はロール別のディレクトリページを返すハンドラーを生成する。
// GET /hersteller, /folierer, /haendler (?location=)
func (h *DirectoryHandler) Page(role model.Role) http.HandlerFunc {
	basePath := "/" + string(role)
	heading := directoryHeading(role)

	return func(w http.ResponseWriter, r *http.Request) {
		f := directory.ParseFilter(r.URL.Query())
		h.renderer.Render(w, r, http.StatusOK, pageDirectory, heading, directoryPage{
			Heading:        heading,
			BasePath:       basePath,
			APIPath:        "/api/directory/" + string(role),
			Location:       f.Location,
			Cards:          h.service.List(r.Context(), role, f),
			DebounceMillis: directory.DefaultDebounce.Milliseconds(),
		})
	}
}

// List はディレクトリのカードをJSONで返す。フィルタ入力の再取得に使う。
// GET /api/directory/{role}?location=
func (h *DirectoryHandler) List(w http.ResponseWriter, r *http.Request) {
	raw := chi.URLParam(r, "role")
	role, err := model.ParseBusinessRole(raw)
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewInvalidRoleError(raw))
		return
	}

	cards := h.service.List(r.Context(), role, directory.ParseFilter(r.URL.Query()))
	middleware.WriteJSON(w, http.StatusOK, cards)
}

func directoryHeading(role model.Role) string {
	switch role {
	case model.RoleHersteller:
		return "Folienhersteller"
	case model.RoleFolierer:
		return "Folierer in Ihrer Nähe"
	case model.RoleHaendler:
		return "Händler"
	default:
		return roleLabel(role)
	}
}
