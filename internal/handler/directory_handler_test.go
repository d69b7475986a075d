package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/wrapmag/internal/directory"
	"github.com/hitoshi/wrapmag/internal/model"
)

type mockDirectoryLister struct {
	listFn func(ctx context.Context, role model.Role, f directory.Filter) []model.DirectoryCard
}

func (m *mockDirectoryLister) List(ctx context.Context, role model.Role, f directory.Filter) []model.DirectoryCard {
	if m.listFn != nil {
		return m.listFn(ctx, role, f)
	}
	return []model.DirectoryCard{}
}

func sampleCards() []model.DirectoryCard {
	return []model.DirectoryCard{
		{
			ID:          "user-1",
			Slug:        "folien-mueller",
			CompanyName: "Folien Müller",
			City:        "Köln",
			PostalCode:  "50667",
			LogoURL:     "https://cdn.example.com/logo.png",
			Services:    []string{"Teilfolierung", "Scheibentönung"},
		},
		{
			ID:          "user-2",
			Slug:        "user-2",
			CompanyName: "Wrap & Style",
			Services:    []string{},
		},
	}
}

func TestDirectoryHandler_Page_RendersCardsAndFilter(t *testing.T) {
	var gotRole model.Role
	var gotFilter directory.Filter
	svc := &mockDirectoryLister{
		listFn: func(ctx context.Context, role model.Role, f directory.Filter) []model.DirectoryCard {
			gotRole, gotFilter = role, f
			return sampleCards()
		},
	}
	h := NewDirectoryHandler(svc, newTestRenderer(t))

	req := httptest.NewRequest(http.MethodGet, "/folierer?location=K%C3%B6ln", nil)
	w := httptest.NewRecorder()
	h.Page(model.RoleFolierer)(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if gotRole != model.RoleFolierer {
		t.Errorf("role = %q, want folierer", gotRole)
	}
	if gotFilter.Location != "Köln" {
		t.Errorf("location = %q, want Köln", gotFilter.Location)
	}

	body := w.Body.String()
	for _, want := range []string{
		"Folien Müller",
		"Wrap &amp; Style",
		"Scheibentönung",
		`value="Köln"`,
		`data-api="/api/directory/folierer"`,
		"history.replaceState",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("body does not contain %q", want)
		}
	}
}

func TestDirectoryHandler_Page_Empty(t *testing.T) {
	h := NewDirectoryHandler(&mockDirectoryLister{}, newTestRenderer(t))

	w := httptest.NewRecorder()
	h.Page(model.RoleHaendler)(w, httptest.NewRequest(http.MethodGet, "/haendler", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if !strings.Contains(w.Body.String(), "Keine Einträge gefunden.") {
		t.Error("expected empty state message")
	}
}

func TestDirectoryHandler_List_JSON(t *testing.T) {
	svc := &mockDirectoryLister{
		listFn: func(ctx context.Context, role model.Role, f directory.Filter) []model.DirectoryCard {
			if role != model.RoleHersteller || f.Location != "50" {
				t.Errorf("unexpected query: role=%s filter=%+v", role, f)
			}
			return sampleCards()
		},
	}
	h := NewDirectoryHandler(svc, newTestRenderer(t))

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/directory/hersteller?location=50", nil), "role", "hersteller")
	w := httptest.NewRecorder()
	h.List(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	if ct := w.Header().Get("Content-Type"); ct != "application/json" {
		t.Errorf("Content-Type = %q", ct)
	}

	var cards []model.DirectoryCard
	if err := json.NewDecoder(w.Body).Decode(&cards); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if len(cards) != 2 {
		t.Fatalf("len(cards) = %d, want 2", len(cards))
	}
	if cards[1].Services == nil {
		t.Error("services should be an empty array, not null")
	}
}

func TestDirectoryHandler_List_EmptyIsArray(t *testing.T) {
	h := NewDirectoryHandler(&mockDirectoryLister{}, newTestRenderer(t))

	req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/directory/folierer", nil), "role", "folierer")
	w := httptest.NewRecorder()
	h.List(w, req)

	if got := strings.TrimSpace(w.Body.String()); got != "[]" {
		t.Errorf("body = %q, want []", got)
	}
}

func TestDirectoryHandler_List_InvalidRole(t *testing.T) {
	h := NewDirectoryHandler(&mockDirectoryLister{}, newTestRenderer(t))

	for _, role := range []string{"superadmin", "admin"} {
		req := withURLParams(httptest.NewRequest(http.MethodGet, "/api/directory/"+role, nil), "role", role)
		w := httptest.NewRecorder()
		h.List(w, req)

		if w.Code != http.StatusNotFound {
			t.Errorf("role %s: status = %d, want %d", role, w.Code, http.StatusNotFound)
		}
		if !strings.Contains(w.Body.String(), model.ErrCodeInvalidRole) {
			t.Errorf("role %s: expected INVALID_ROLE code", role)
		}
	}
}
