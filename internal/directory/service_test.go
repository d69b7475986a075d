package directory

import (
	"context"
	"database/sql"
	"errors"
	"net/url"
	"strings"
	"testing"

	"github.com/lib/pq"

	"github.com/hitoshi/wrapmag/internal/metrics"
	"github.com/hitoshi/wrapmag/internal/model"
	"github.com/hitoshi/wrapmag/internal/repository"
)

// --- モック定義 ---

type mockDirectoryRepo struct {
	listByRoleFn            func(ctx context.Context, role model.Role, location string) ([]repository.DirectoryRow, error)
	findByUserIDFn          func(ctx context.Context, role model.Role, userID string) (*repository.DirectoryRow, error)
	listServicesFn          func(ctx context.Context) ([]string, error)
	updateBusinessProfileFn func(ctx context.Context, role model.Role, profile *model.BusinessProfile, services []string) error
}

func (m *mockDirectoryRepo) ListByRole(ctx context.Context, role model.Role, location string) ([]repository.DirectoryRow, error) {
	if m.listByRoleFn != nil {
		return m.listByRoleFn(ctx, role, location)
	}
	return nil, nil
}

func (m *mockDirectoryRepo) FindByUserID(ctx context.Context, role model.Role, userID string) (*repository.DirectoryRow, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, role, userID)
	}
	return nil, nil
}

func (m *mockDirectoryRepo) ListServices(ctx context.Context) ([]string, error) {
	if m.listServicesFn != nil {
		return m.listServicesFn(ctx)
	}
	return nil, nil
}

func (m *mockDirectoryRepo) UpdateBusinessProfile(ctx context.Context, role model.Role, profile *model.BusinessProfile, services []string) error {
	if m.updateBusinessProfileFn != nil {
		return m.updateBusinessProfileFn(ctx, role, profile, services)
	}
	return nil
}

var _ repository.DirectoryRepository = (*mockDirectoryRepo)(nil)

// recordingMetrics はディレクトリ取得失敗の記録だけを数える。
type recordingMetrics struct {
	metrics.Nop
	failures []string
}

func (m *recordingMetrics) RecordDirectoryFailure(role string) {
	m.failures = append(m.failures, role)
}

func ns(s string) sql.NullString {
	return sql.NullString{String: s, Valid: true}
}

// --- List ---

func TestService_List_MapsRowsToCards(t *testing.T) {
	repo := &mockDirectoryRepo{
		listByRoleFn: func(_ context.Context, role model.Role, location string) ([]repository.DirectoryRow, error) {
			if role != model.RoleFolierer {
				t.Errorf("role = %q, want folierer", role)
			}
			if location != "Berlin" {
				t.Errorf("location = %q, want Berlin", location)
			}
			return []repository.DirectoryRow{
				{
					UserID:      "u-1",
					CompanyName: ns("Folien Müller"),
					Slug:        ns("folien-mueller-u1"),
					City:        ns("Berlin"),
					PostalCode:  ns("10115"),
					Services:    pq.StringArray{"Car Wrapping", "PPF"},
				},
			}, nil
		},
	}
	svc := NewService(repo, nil)

	cards := svc.List(context.Background(), model.RoleFolierer, Filter{Location: "Berlin"})

	if len(cards) != 1 {
		t.Fatalf("len(cards) = %d, want 1", len(cards))
	}
	c := cards[0]
	if c.ID != "u-1" || c.Slug != "folien-mueller-u1" || c.CompanyName != "Folien Müller" {
		t.Errorf("card = %+v", c)
	}
	if c.City != "Berlin" || c.PostalCode != "10115" {
		t.Errorf("location fields = %q %q", c.City, c.PostalCode)
	}
	if len(c.Services) != 2 {
		t.Errorf("Services = %v, want 2 entries", c.Services)
	}
}

func TestService_List_DropsBlankCompanyAndFillsDefaults(t *testing.T) {
	repo := &mockDirectoryRepo{
		listByRoleFn: func(context.Context, model.Role, string) ([]repository.DirectoryRow, error) {
			return []repository.DirectoryRow{
				{UserID: "u-null"},
				{UserID: "u-blank", CompanyName: ns("   ")},
				{UserID: "u-ok", CompanyName: ns("  Wrap GmbH ")},
			}, nil
		},
	}
	svc := NewService(repo, nil)

	cards := svc.List(context.Background(), model.RoleHersteller, Filter{})

	if len(cards) != 1 {
		t.Fatalf("len(cards) = %d, want 1: %+v", len(cards), cards)
	}
	c := cards[0]
	if c.CompanyName != "Wrap GmbH" {
		t.Errorf("CompanyName = %q, want trimmed", c.CompanyName)
	}
	// スラッグがない場合はユーザーIDを使う
	if c.Slug != "u-ok" {
		t.Errorf("Slug = %q, want user id", c.Slug)
	}
	// サービスがない場合もnilではなく空スライス
	if c.Services == nil || len(c.Services) != 0 {
		t.Errorf("Services = %#v, want empty non-nil slice", c.Services)
	}
}

func TestService_List_RepoError_ReturnsEmptySliceAndRecordsFailure(t *testing.T) {
	repo := &mockDirectoryRepo{
		listByRoleFn: func(context.Context, model.Role, string) ([]repository.DirectoryRow, error) {
			return nil, errors.New("connection refused")
		},
	}
	m := &recordingMetrics{}
	svc := NewService(repo, m)

	cards := svc.List(context.Background(), model.RoleHaendler, Filter{})

	if cards == nil {
		t.Fatal("cards should be an empty slice, not nil")
	}
	if len(cards) != 0 {
		t.Errorf("len(cards) = %d, want 0", len(cards))
	}
	if len(m.failures) != 1 || m.failures[0] != "haendler" {
		t.Errorf("failures = %v, want [haendler]", m.failures)
	}
}

func TestService_List_NoRows_ReturnsEmptySlice(t *testing.T) {
	svc := NewService(&mockDirectoryRepo{}, nil)

	cards := svc.List(context.Background(), model.RoleHersteller, Filter{})
	if cards == nil || len(cards) != 0 {
		t.Errorf("cards = %#v, want empty non-nil slice", cards)
	}
}

// --- ParseFilter / FilterURL ---

func TestParseFilter(t *testing.T) {
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{"empty", "", ""},
		{"trimmed", "location=+Berlin+", "Berlin"},
		{"postal code", "location=10115", "10115"},
		{"other params ignored", "page=2&location=K%C3%B6ln", "Köln"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			q, err := url.ParseQuery(tt.query)
			if err != nil {
				t.Fatalf("ParseQuery: %v", err)
			}
			if got := ParseFilter(q).Location; got != tt.want {
				t.Errorf("Location = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestParseFilter_TruncatesLongInput(t *testing.T) {
	q := url.Values{"location": {strings.Repeat("ä", maxLocationLength+20)}}

	got := ParseFilter(q).Location
	if n := len([]rune(got)); n != maxLocationLength {
		t.Errorf("rune count = %d, want %d", n, maxLocationLength)
	}
}

func TestFilterURL(t *testing.T) {
	if got := FilterURL("/haendler", Filter{}); got != "/haendler" {
		t.Errorf("FilterURL(empty) = %q, want /haendler", got)
	}
	if got := FilterURL("/haendler", Filter{Location: "Köln"}); got != "/haendler?location=K%C3%B6ln" {
		t.Errorf("FilterURL = %q", got)
	}
}

// --- FindOwn / UpdateOwn ---

func TestService_FindOwn_UnlistedProfile(t *testing.T) {
	repo := &mockDirectoryRepo{
		findByUserIDFn: func(_ context.Context, _ model.Role, userID string) (*repository.DirectoryRow, error) {
			return &repository.DirectoryRow{UserID: userID, City: ns("Hamburg")}, nil
		},
	}
	svc := NewService(repo, nil)

	own, err := svc.FindOwn(context.Background(), model.RoleFolierer, "u-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if own == nil {
		t.Fatal("expected profile, got nil")
	}
	if own.Listed {
		t.Error("profile without company name should not be listed")
	}
	if own.Business.City != "Hamburg" {
		t.Errorf("City = %q, want Hamburg", own.Business.City)
	}
}

func TestService_FindOwn_NonBusinessRole(t *testing.T) {
	svc := NewService(&mockDirectoryRepo{}, nil)

	_, err := svc.FindOwn(context.Background(), model.RoleSuperadmin, "u-1")
	if !errors.Is(err, ErrNotBusinessRole) {
		t.Errorf("err = %v, want ErrNotBusinessRole", err)
	}
}

func TestService_UpdateOwn_GeneratesSlugWhenMissing(t *testing.T) {
	var saved *model.BusinessProfile
	var savedServices []string
	repo := &mockDirectoryRepo{
		findByUserIDFn: func(_ context.Context, _ model.Role, userID string) (*repository.DirectoryRow, error) {
			return &repository.DirectoryRow{UserID: userID}, nil
		},
		updateBusinessProfileFn: func(_ context.Context, role model.Role, p *model.BusinessProfile, services []string) error {
			if role != model.RoleHaendler {
				t.Errorf("role = %q, want haendler", role)
			}
			saved = p
			savedServices = services
			return nil
		},
	}
	svc := NewService(repo, nil)

	err := svc.UpdateOwn(context.Background(), model.RoleHaendler, "abcdef1234567890", ProfileInput{
		CompanyName: " Folien Größe ",
		City:        "München",
		Website:     "https://folien.example.de",
		Services:    []string{"PPF"},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if saved == nil {
		t.Fatal("profile was not saved")
	}
	if saved.CompanyName != "Folien Größe" {
		t.Errorf("CompanyName = %q", saved.CompanyName)
	}
	if saved.Slug != model.Slugify("Folien Größe", "abcdef1234567890") {
		t.Errorf("Slug = %q", saved.Slug)
	}
	if len(savedServices) != 1 || savedServices[0] != "PPF" {
		t.Errorf("services = %v", savedServices)
	}
}

func TestService_UpdateOwn_KeepsExistingSlug(t *testing.T) {
	repo := &mockDirectoryRepo{
		findByUserIDFn: func(_ context.Context, _ model.Role, userID string) (*repository.DirectoryRow, error) {
			return &repository.DirectoryRow{UserID: userID, Slug: ns("alter-name-u1")}, nil
		},
		updateBusinessProfileFn: func(_ context.Context, _ model.Role, p *model.BusinessProfile, _ []string) error {
			if p.Slug != "alter-name-u1" {
				t.Errorf("Slug = %q, want existing slug", p.Slug)
			}
			return nil
		},
	}
	svc := NewService(repo, nil)

	if err := svc.UpdateOwn(context.Background(), model.RoleFolierer, "u1", ProfileInput{CompanyName: "Neuer Name"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestService_UpdateOwn_Validation(t *testing.T) {
	tests := []struct {
		name string
		role model.Role
		in   ProfileInput
		want error
	}{
		{"company required", model.RoleFolierer, ProfileInput{CompanyName: "  "}, ErrCompanyRequired},
		{"website scheme", model.RoleFolierer, ProfileInput{CompanyName: "A", Website: "javascript:alert(1)"}, ErrInvalidWebsite},
		{"logo must be https", model.RoleFolierer, ProfileInput{CompanyName: "A", LogoURL: "http://cdn.example.de/logo.png"}, ErrInvalidLogoURL},
		{"superadmin", model.RoleSuperadmin, ProfileInput{CompanyName: "A"}, ErrNotBusinessRole},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := &mockDirectoryRepo{
				updateBusinessProfileFn: func(context.Context, model.Role, *model.BusinessProfile, []string) error {
					t.Error("repository should not be called on validation error")
					return nil
				},
			}
			svc := NewService(repo, nil)

			err := svc.UpdateOwn(context.Background(), tt.role, "u1", tt.in)
			if !errors.Is(err, tt.want) {
				t.Errorf("err = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestService_UpdateOwn_MissingRow_ReturnsNotFound(t *testing.T) {
	svc := NewService(&mockDirectoryRepo{}, nil)

	err := svc.UpdateOwn(context.Background(), model.RoleFolierer, "u1", ProfileInput{CompanyName: "A"})
	if !errors.Is(err, model.ErrNotFound) {
		t.Errorf("err = %v, want ErrNotFound", err)
	}
}

func TestService_Services_NilBecomesEmpty(t *testing.T) {
	svc := NewService(&mockDirectoryRepo{}, nil)

	titles, err := svc.Services(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if titles == nil {
		t.Error("titles should not be nil")
	}
}
