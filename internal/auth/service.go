// Package auth はサインアップ・ログイン・OAuth認証フローとセッション管理を提供する。
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/hitoshi/wrapmag/internal/model"
	"github.com/hitoshi/wrapmag/internal/repository"
)

// 入力検証エラー。ハンドラーでユーザー向けメッセージに変換する。
var (
	ErrInvalidEmail    = errors.New("invalid email address")
	ErrWeakPassword    = errors.New("password too short")
	ErrPasswordTooLong = errors.New("password too long")
	ErrCompanyRequired = errors.New("company name required")
	ErrRoleRequired    = errors.New("role required for new account")
	ErrSessionNotFound = errors.New("session not found or expired")
	ErrOAuthDisabled   = errors.New("oauth login is not configured")
	ErrUnverifiedEmail = errors.New("oauth email is not verified")
)

const (
	minPasswordLength = 8
	// bcryptは72バイトを超える入力を扱えない
	maxPasswordLength = 72
)

// OAuthUserInfo はOAuthプロバイダーから取得したユーザー情報を表す。
type OAuthUserInfo struct {
	ProviderUserID string
	Email          string
	EmailVerified  bool
	Name           string
	Provider       string // "google"
}

// OAuthProvider はOAuth認証プロバイダーのインターフェース。
type OAuthProvider interface {
	// GetLoginURL はOAuth認証URLを生成する。
	GetLoginURL(state string) string
	// ExchangeCode は認可コードをトークンに交換し、ユーザー情報を取得する。
	ExchangeCode(ctx context.Context, code string) (*OAuthUserInfo, error)
}

// ServiceConfig は認証サービスの設定。
type ServiceConfig struct {
	SessionMaxAge int // セッション有効期間（秒）
	BcryptCost    int // 0の場合はbcrypt.DefaultCost
}

// SignUpInput はサインアップフォームの入力。
type SignUpInput struct {
	Email       string
	Password    string
	Role        string
	CompanyName string
}

// Credentials はログイン成功時に発行されるセッションとアクセストークン。
type Credentials struct {
	Session         *model.Session
	AccessToken     string
	AccessExpiresAt time.Time
}

// Service は認証に関するビジネスロジックを提供する。
type Service struct {
	oauth       OAuthProvider
	userRepo    repository.UserRepository
	identRepo   repository.IdentityRepository
	sessionRepo repository.SessionRepository
	tokens      *TokenIssuer
	config      ServiceConfig
}

// NewService はServiceを生成する。oauthがnilの場合はGoogleログインを無効とする。
func NewService(
	oauth OAuthProvider,
	userRepo repository.UserRepository,
	identRepo repository.IdentityRepository,
	sessionRepo repository.SessionRepository,
	tokens *TokenIssuer,
	config ServiceConfig,
) *Service {
	if config.BcryptCost == 0 {
		config.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		oauth:       oauth,
		userRepo:    userRepo,
		identRepo:   identRepo,
		sessionRepo: sessionRepo,
		tokens:      tokens,
		config:      config,
	}
}

// SignUp はアカウントを作成し、そのままログインさせる。
// users、profiles、ロール別事業者プロフィールは同一トランザクションで作成されるため、
// 戻り値を受け取った時点でプロフィールは必ず存在する。
func (s *Service) SignUp(ctx context.Context, in SignUpInput) (*Credentials, error) {
	email, err := normalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}
	if len(in.Password) < minPasswordLength {
		return nil, ErrWeakPassword
	}
	if len(in.Password) > maxPasswordLength {
		return nil, ErrPasswordTooLong
	}
	role, err := model.ParseBusinessRole(in.Role)
	if err != nil {
		return nil, err
	}
	company := strings.TrimSpace(in.CompanyName)
	if company == "" {
		return nil, ErrCompanyRequired
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.config.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	account := newAccount(email, company, role)
	account.User.PasswordHash = string(hash)
	account.Business.CompanyName = company

	if err := s.userRepo.CreateAccount(ctx, account); err != nil {
		if errors.Is(err, model.ErrEmailTaken) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to create account: %w", err)
	}

	slog.Info("new user signed up",
		slog.String("user_id", account.User.ID),
		slog.String("role", string(role)),
	)

	return s.issue(ctx, account.User.ID)
}

// SignIn はメールアドレスとパスワードでログインする。
// ユーザー不在・パスワード不一致・パスワード未設定はすべてmodel.ErrInvalidCredentialsを返す。
func (s *Service) SignIn(ctx context.Context, email, password string) (*Credentials, error) {
	email, err := normalizeEmail(email)
	if err != nil {
		return nil, model.ErrInvalidCredentials
	}

	user, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil || user.PasswordHash == "" {
		return nil, model.ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, model.ErrInvalidCredentials
	}

	slog.Info("user signed in", slog.String("user_id", user.ID))
	return s.issue(ctx, user.ID)
}

// OAuthEnabled はGoogleログインが利用可能かを返す。
func (s *Service) OAuthEnabled() bool {
	return s.oauth != nil
}

// GetLoginURL はOAuth認証URLを生成する。
func (s *Service) GetLoginURL(state string) string {
	if s.oauth == nil {
		return ""
	}
	return s.oauth.GetLoginURL(state)
}

// HandleCallback はOAuthコールバックを処理し、セッションを発行する。
// 既存のidentityがあればそのユーザーでログインし、同じメールアドレスのユーザーがいれば紐付ける。
// どちらもない場合はroleで指定された事業者ロールでアカウントを作成する。
// roleが事業者ロールでない場合はErrRoleRequiredを返す。
func (s *Service) HandleCallback(ctx context.Context, code, role string) (*Credentials, error) {
	if s.oauth == nil {
		return nil, ErrOAuthDisabled
	}

	userInfo, err := s.oauth.ExchangeCode(ctx, code)
	if err != nil {
		return nil, fmt.Errorf("failed to exchange oauth code: %w", err)
	}

	identity, err := s.identRepo.FindByProviderAndProviderUserID(ctx, userInfo.Provider, userInfo.ProviderUserID)
	if err != nil {
		return nil, fmt.Errorf("failed to find identity: %w", err)
	}
	if identity != nil {
		slog.Info("existing user logged in",
			slog.String("user_id", identity.UserID),
			slog.String("provider", userInfo.Provider),
		)
		return s.issue(ctx, identity.UserID)
	}

	email, err := normalizeEmail(userInfo.Email)
	if err != nil {
		return nil, err
	}

	existing, err := s.userRepo.FindByEmail(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if existing != nil {
		if !userInfo.EmailVerified {
			return nil, ErrUnverifiedEmail
		}
		link := &model.Identity{
			ID:             uuid.New().String(),
			UserID:         existing.ID,
			Provider:       userInfo.Provider,
			ProviderUserID: userInfo.ProviderUserID,
			CreatedAt:      time.Now(),
		}
		if err := s.identRepo.Create(ctx, link); err != nil {
			return nil, fmt.Errorf("failed to link identity: %w", err)
		}
		slog.Info("identity linked to existing user",
			slog.String("user_id", existing.ID),
			slog.String("provider", userInfo.Provider),
		)
		return s.issue(ctx, existing.ID)
	}

	r, err := model.ParseBusinessRole(role)
	if err != nil {
		return nil, ErrRoleRequired
	}

	account := newAccount(email, userInfo.Name, r)
	account.Identity = &model.Identity{
		ID:             uuid.New().String(),
		UserID:         account.User.ID,
		Provider:       userInfo.Provider,
		ProviderUserID: userInfo.ProviderUserID,
		CreatedAt:      account.User.CreatedAt,
	}
	if err := s.userRepo.CreateAccount(ctx, account); err != nil {
		return nil, fmt.Errorf("failed to create user and identity: %w", err)
	}

	slog.Info("new user created",
		slog.String("user_id", account.User.ID),
		slog.String("provider", userInfo.Provider),
		slog.String("role", string(r)),
	)
	return s.issue(ctx, account.User.ID)
}

// VerifyAccessToken はアクセストークンを検証する。
func (s *Service) VerifyAccessToken(token string) (*AccessClaims, error) {
	return s.tokens.Parse(token)
}

// Refresh は有効なリフレッシュセッションから新しいアクセストークンを発行する。
// セッションが存在しないか期限切れの場合はErrSessionNotFoundを返す。
func (s *Service) Refresh(ctx context.Context, sessionID string) (*Credentials, error) {
	if sessionID == "" {
		return nil, ErrSessionNotFound
	}

	session, err := s.sessionRepo.FindByID(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to find session: %w", err)
	}
	if session == nil {
		return nil, ErrSessionNotFound
	}

	token, expiresAt, err := s.tokens.Issue(session.UserID, session.ID)
	if err != nil {
		return nil, err
	}
	return &Credentials{Session: session, AccessToken: token, AccessExpiresAt: expiresAt}, nil
}

// SignOut はセッションを破棄する。
func (s *Service) SignOut(ctx context.Context, sessionID string) error {
	if sessionID == "" {
		return fmt.Errorf("session ID is required")
	}

	if err := s.sessionRepo.DeleteByID(ctx, sessionID); err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}

	slog.Info("user signed out")
	return nil
}

// CurrentUser はユーザーIDから現在のユーザーを取得する。
func (s *Service) CurrentUser(ctx context.Context, userID string) (*model.User, error) {
	if userID == "" {
		return nil, fmt.Errorf("user ID is required")
	}

	user, err := s.userRepo.FindByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	if user == nil {
		return nil, fmt.Errorf("user %s: %w", userID, model.ErrNotFound)
	}
	return user, nil
}

// issue はリフレッシュセッションを作成し、アクセストークンを発行する。
func (s *Service) issue(ctx context.Context, userID string) (*Credentials, error) {
	sessionID, err := generateSessionID()
	if err != nil {
		return nil, fmt.Errorf("failed to generate session ID: %w", err)
	}

	now := time.Now()
	session := &model.Session{
		ID:        sessionID,
		UserID:    userID,
		ExpiresAt: now.Add(time.Duration(s.config.SessionMaxAge) * time.Second),
		CreatedAt: now,
	}
	if err := s.sessionRepo.Create(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to save session: %w", err)
	}

	token, expiresAt, err := s.tokens.Issue(userID, session.ID)
	if err != nil {
		return nil, err
	}
	return &Credentials{Session: session, AccessToken: token, AccessExpiresAt: expiresAt}, nil
}

// newAccount はサインアップ時に作成するレコード一式を組み立てる。
func newAccount(email, name string, role model.Role) *repository.NewAccount {
	now := time.Now()
	userID := uuid.New().String()
	return &repository.NewAccount{
		User: &model.User{
			ID:        userID,
			Email:     email,
			Name:      name,
			CreatedAt: now,
			UpdatedAt: now,
		},
		Profile: &model.Profile{
			UserID:      userID,
			Role:        role,
			Email:       email,
			DisplayName: name,
			CreatedAt:   now,
		},
		Business: &model.BusinessProfile{
			UserID: userID,
			Slug:   model.Slugify(name, userID),
		},
	}
}

// normalizeEmail はメールアドレスを検証し、小文字に正規化する。
func normalizeEmail(raw string) (string, error) {
	addr, err := mail.ParseAddress(strings.TrimSpace(raw))
	if err != nil || addr.Name != "" {
		return "", ErrInvalidEmail
	}
	return strings.ToLower(addr.Address), nil
}

// generateSessionID は暗号的に安全なセッションIDを生成する。
func generateSessionID() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
