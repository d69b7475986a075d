// Package directory は事業者ディレクトリ（Hersteller / Folierer / Haendler）の取得と絞り込みを提供する。
package directory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"unicode/utf8"

	"github.com/hitoshi/wrapmag/internal/metrics"
	"github.com/hitoshi/wrapmag/internal/model"
	"github.com/hitoshi/wrapmag/internal/repository"
)

// maxLocationLength は絞り込み文字列の最大文字数。
const maxLocationLength = 100

// プロフィール編集の入力検証エラー。
var (
	ErrCompanyRequired = errors.New("company name required")
	ErrInvalidWebsite  = errors.New("website must be an http(s) URL")
	ErrInvalidLogoURL  = errors.New("logo must be an https URL")
	ErrNotBusinessRole = errors.New("role has no directory profile")
)

// Filter はディレクトリの絞り込み条件。
type Filter struct {
	Location string // 市区名または郵便番号（前方一致）
}

// ParseFilter はクエリパラメータから絞り込み条件を取り出す。
func ParseFilter(q url.Values) Filter {
	loc := strings.TrimSpace(q.Get("location"))
	if utf8.RuneCountInString(loc) > maxLocationLength {
		loc = string([]rune(loc)[:maxLocationLength])
	}
	return Filter{Location: loc}
}

// Query はFilterをクエリ文字列に変換する。空の条件は含めない。
func (f Filter) Query() string {
	if f.Location == "" {
		return ""
	}
	return url.Values{"location": {f.Location}}.Encode()
}

// FilterURL はディレクトリページのURLを返す。
func FilterURL(basePath string, f Filter) string {
	if q := f.Query(); q != "" {
		return basePath + "?" + q
	}
	return basePath
}

// ProfileInput はロール別ダッシュボードでのプロフィール編集内容。
type ProfileInput struct {
	CompanyName string
	Street      string
	PostalCode  string
	City        string
	LogoURL     string
	Website     string
	Description string
	Services    []string
}

// OwnProfile はダッシュボードに表示する自分の事業者プロフィール。
type OwnProfile struct {
	Card     model.DirectoryCard
	Business model.BusinessProfile
	Listed   bool // 会社名が設定済みでディレクトリに掲載されているか
}

// Service はディレクトリのビジネスロジックを提供する。
type Service struct {
	repo    repository.DirectoryRepository
	metrics metrics.MetricsCollector
}

// NewService はServiceを生成する。
func NewService(repo repository.DirectoryRepository, m metrics.MetricsCollector) *Service {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Service{repo: repo, metrics: m}
}

// List はロール別のディレクトリカードを返す。
// 取得に失敗した場合はログに記録し、空のスライスを返す（nilは返さない）。
func (s *Service) List(ctx context.Context, role model.Role, f Filter) []model.DirectoryCard {
	rows, err := s.repo.ListByRole(ctx, role, f.Location)
	if err != nil {
		slog.Error("directory query failed",
			slog.String("role", string(role)),
			slog.String("location", f.Location),
			slog.String("error", err.Error()),
		)
		s.metrics.RecordDirectoryFailure(string(role))
		return []model.DirectoryCard{}
	}
	return toCards(rows)
}

// FindOwn はユーザー自身の事業者プロフィールを返す。行がない場合はnilを返す。
func (s *Service) FindOwn(ctx context.Context, role model.Role, userID string) (*OwnProfile, error) {
	if !role.IsBusiness() {
		return nil, ErrNotBusinessRole
	}
	row, err := s.repo.FindByUserID(ctx, role, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find own profile: %w", err)
	}
	if row == nil {
		return nil, nil
	}

	own := &OwnProfile{
		Business: model.BusinessProfile{
			UserID:      row.UserID,
			CompanyName: row.CompanyName.String,
			Slug:        row.Slug.String,
			Street:      row.Street.String,
			PostalCode:  row.PostalCode.String,
			City:        row.City.String,
			LogoURL:     row.LogoURL.String,
			Website:     row.Website.String,
			Description: row.Description.String,
		},
	}
	if card, ok := toCard(*row); ok {
		own.Card = card
		own.Listed = true
	} else {
		own.Card = model.DirectoryCard{ID: row.UserID, Slug: row.UserID, Services: servicesOf(*row)}
	}
	return own, nil
}

// Services は選択可能なサービス名の一覧を返す。
func (s *Service) Services(ctx context.Context) ([]string, error) {
	titles, err := s.repo.ListServices(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	if titles == nil {
		titles = []string{}
	}
	return titles, nil
}

// UpdateOwn はユーザー自身の事業者プロフィールを更新する。
// スラッグは既存の値を維持し、未設定の場合のみ会社名から生成する。
func (s *Service) UpdateOwn(ctx context.Context, role model.Role, userID string, in ProfileInput) error {
	if !role.IsBusiness() {
		return ErrNotBusinessRole
	}

	company := strings.TrimSpace(in.CompanyName)
	if company == "" {
		return ErrCompanyRequired
	}
	website := strings.TrimSpace(in.Website)
	if website != "" && !isHTTPURL(website, false) {
		return ErrInvalidWebsite
	}
	logo := strings.TrimSpace(in.LogoURL)
	if logo != "" && !isHTTPURL(logo, true) {
		return ErrInvalidLogoURL
	}

	current, err := s.repo.FindByUserID(ctx, role, userID)
	if err != nil {
		return fmt.Errorf("failed to load profile: %w", err)
	}
	if current == nil {
		return fmt.Errorf("%s profile %s: %w", role, userID, model.ErrNotFound)
	}
	slug := current.Slug.String
	if slug == "" {
		slug = model.Slugify(company, userID)
	}

	profile := &model.BusinessProfile{
		UserID:      userID,
		CompanyName: company,
		Slug:        slug,
		Street:      strings.TrimSpace(in.Street),
		PostalCode:  strings.TrimSpace(in.PostalCode),
		City:        strings.TrimSpace(in.City),
		LogoURL:     logo,
		Website:     website,
		Description: strings.TrimSpace(in.Description),
	}
	if err := s.repo.UpdateBusinessProfile(ctx, role, profile, in.Services); err != nil {
		return fmt.Errorf("failed to update profile: %w", err)
	}

	slog.Info("business profile updated",
		slog.String("user_id", userID),
		slog.String("role", string(role)),
	)
	return nil
}

// toCards はDBの行をカードに変換する。会社名が空の行は除外する。
func toCards(rows []repository.DirectoryRow) []model.DirectoryCard {
	cards := make([]model.DirectoryCard, 0, len(rows))
	for _, row := range rows {
		if card, ok := toCard(row); ok {
			cards = append(cards, card)
		}
	}
	return cards
}

// toCard は1行をカードに変換する。会社名がNULLまたは空白のみの場合はfalseを返す。
// スラッグがない場合はユーザーIDを、サービスがない場合は空のスライスを使う。
func toCard(row repository.DirectoryRow) (model.DirectoryCard, bool) {
	company := strings.TrimSpace(row.CompanyName.String)
	if !row.CompanyName.Valid || company == "" {
		return model.DirectoryCard{}, false
	}

	slug := row.Slug.String
	if slug == "" {
		slug = row.UserID
	}

	return model.DirectoryCard{
		ID:          row.UserID,
		Slug:        slug,
		CompanyName: company,
		City:        row.City.String,
		PostalCode:  row.PostalCode.String,
		LogoURL:     row.LogoURL.String,
		Description: row.Description.String,
		Services:    servicesOf(row),
	}, true
}

func servicesOf(row repository.DirectoryRow) []string {
	services := make([]string, 0, len(row.Services))
	for _, s := range row.Services {
		if s = strings.TrimSpace(s); s != "" {
			services = append(services, s)
		}
	}
	return services
}

func isHTTPURL(raw string, httpsOnly bool) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return false
	}
	if httpsOnly {
		return u.Scheme == "https"
	}
	return u.Scheme == "http" || u.Scheme == "https"
}
