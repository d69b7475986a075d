package model

import "time"

// Role はアカウント種別を表す。
// DBから読み込んだ値は閉じた集合に含まれるとは限らないため、IsKnownで判定する。
type Role string

const (
	// RoleSuperadmin は管理コンソールにアクセスできる運営者。
	RoleSuperadmin Role = "superadmin"
	// RoleHersteller はフィルムメーカー。
	RoleHersteller Role = "hersteller"
	// RoleFolierer はラッピング施工業者。
	RoleFolierer Role = "folierer"
	// RoleHaendler は販売代理店。
	RoleHaendler Role = "haendler"
)

// BusinessRoles はディレクトリに掲載される役割の一覧。
var BusinessRoles = []Role{RoleHersteller, RoleFolierer, RoleHaendler}

// IsKnown はロールが定義済みの値かどうかを返す。
func (r Role) IsKnown() bool {
	switch r {
	case RoleSuperadmin, RoleHersteller, RoleFolierer, RoleHaendler:
		return true
	default:
		return false
	}
}

// IsBusiness はロールがディレクトリ掲載対象の事業者ロールかどうかを返す。
func (r Role) IsBusiness() bool {
	switch r {
	case RoleHersteller, RoleFolierer, RoleHaendler:
		return true
	default:
		return false
	}
}

// ParseBusinessRole は文字列を事業者ロールとして解釈する。
// superadminはサインアップ時に選択できないためエラーとする。
func ParseBusinessRole(s string) (Role, error) {
	r := Role(s)
	if !r.IsBusiness() {
		return "", ErrInvalidRole
	}
	return r, nil
}

// Profile はユーザーごとのロール情報を保持する。
// Roleが空文字の場合はDB上でNULLであることを示す。
type Profile struct {
	UserID      string
	Role        Role
	Email       string
	DisplayName string
	CreatedAt   time.Time
}

// BusinessProfile はHersteller/Folierer/Haendlerの事業者情報。
type BusinessProfile struct {
	UserID      string
	CompanyName string
	Slug        string
	Street      string
	PostalCode  string
	City        string
	LogoURL     string
	Website     string
	Description string
}

// DirectoryCard はディレクトリページのカード表示用の読み取り専用射影。
// CompanyNameは必ず空でなく、Servicesはnilにならない。
type DirectoryCard struct {
	ID          string   `json:"id"`
	Slug        string   `json:"slug"`
	CompanyName string   `json:"company_name"`
	City        string   `json:"city"`
	PostalCode  string   `json:"postal_code"`
	LogoURL     string   `json:"logo_url"`
	Description string   `json:"description"`
	Services    []string `json:"services"`
}
