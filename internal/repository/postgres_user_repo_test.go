package repository

import (
	"errors"
	"strings"
	"testing"

	"github.com/hitoshi/wrapmag/internal/model"
)

func TestRepos_ImplementInterfaces(t *testing.T) {
	var _ UserRepository = (*PostgresUserRepo)(nil)
	var _ IdentityRepository = (*PostgresIdentityRepo)(nil)
	var _ SessionRepository = (*PostgresSessionRepo)(nil)
	var _ ProfileRepository = (*PostgresProfileRepo)(nil)
	var _ DirectoryRepository = (*PostgresDirectoryRepo)(nil)
	var _ ArticleRepository = (*PostgresArticleRepo)(nil)
}

func TestNewRepos_Initialize(t *testing.T) {
	if NewPostgresUserRepo(nil) == nil {
		t.Error("expected non-nil user repo")
	}
	if NewPostgresSessionRepo(nil) == nil {
		t.Error("expected non-nil session repo")
	}
	if NewPostgresProfileRepo(nil) == nil {
		t.Error("expected non-nil profile repo")
	}
	if NewPostgresDirectoryRepo(nil) == nil {
		t.Error("expected non-nil directory repo")
	}
}

func TestBusinessTable_ClosedSet(t *testing.T) {
	tests := []struct {
		role  model.Role
		table string
	}{
		{model.RoleHersteller, "hersteller_profiles"},
		{model.RoleFolierer, "folierer_profiles"},
		{model.RoleHaendler, "haendler_profiles"},
	}
	for _, tt := range tests {
		got, err := businessTable(tt.role)
		if err != nil {
			t.Fatalf("businessTable(%q) returned error: %v", tt.role, err)
		}
		if got != tt.table {
			t.Errorf("businessTable(%q) = %q, want %q", tt.role, got, tt.table)
		}
	}

	// superadminや任意の文字列はテーブル名として使わない
	for _, role := range []model.Role{model.RoleSuperadmin, "", "users; DROP TABLE users"} {
		if _, err := businessTable(role); !errors.Is(err, model.ErrInvalidRole) {
			t.Errorf("businessTable(%q) error = %v, want ErrInvalidRole", role, err)
		}
		if _, err := serviceTable(role); !errors.Is(err, model.ErrInvalidRole) {
			t.Errorf("serviceTable(%q) error = %v, want ErrInvalidRole", role, err)
		}
	}
}

func TestDirectoryQuery_UsesRoleTables(t *testing.T) {
	q, err := directoryQuery(model.RoleFolierer, "p.company_name IS NOT NULL")
	if err != nil {
		t.Fatalf("directoryQuery returned error: %v", err)
	}
	for _, want := range []string{"FROM folierer_profiles p", "LEFT JOIN folierer_services ps", "array_agg", "p.company_name IS NOT NULL"} {
		if !strings.Contains(q, want) {
			t.Errorf("query does not contain %q:\n%s", want, q)
		}
	}
}

func TestEscapeLike(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Berlin", "Berlin"},
		{"10%", `10\%`},
		{"a_b", `a\_b`},
		{`c:\`, `c:\\`},
	}
	for _, tt := range tests {
		if got := escapeLike(tt.in); got != tt.want {
			t.Errorf("escapeLike(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestNullString(t *testing.T) {
	if ns := nullString(""); ns.Valid {
		t.Error("empty string should map to NULL")
	}
	if ns := nullString("x"); !ns.Valid || ns.String != "x" {
		t.Errorf("nullString(\"x\") = %+v", ns)
	}
}
