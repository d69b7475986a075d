// Package model はドメインモデルを定義する。
package model

import (
	"errors"
	"fmt"
)

// APIError は統一エラーフォーマットを表す。
// UIに表示する原因カテゴリと対処方法を含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, directory, magazine, system
	Action   string // ユーザー向け対処方法
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// リポジトリ・サービス層のセンチネルエラー。errors.Isで判定する。
var (
	ErrNotFound           = errors.New("not found")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidRole        = errors.New("invalid role")
)

// 定義済みエラーコード
const (
	ErrCodeInvalidPassword = "INVALID_PASSWORD"
	ErrCodeInvalidRequest  = "INVALID_REQUEST"
	ErrCodeRateLimited     = "RATE_LIMITED"
	ErrCodeUnauthorized    = "UNAUTHORIZED"
	ErrCodeForbidden       = "FORBIDDEN"
	ErrCodeInvalidRole     = "INVALID_ROLE"
	ErrCodeProfileNotFound = "PROFILE_NOT_FOUND"
	ErrCodeArticleNotFound = "ARTICLE_NOT_FOUND"
	ErrCodeInternal        = "INTERNAL_ERROR"
)

// NewInvalidPasswordError はパスワードゲートの認証失敗エラーを生成する。
func NewInvalidPasswordError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPassword,
		Message:  "Das Passwort ist nicht korrekt.",
		Category: "auth",
		Action:   "Bitte überprüfen Sie das Passwort und versuchen Sie es erneut.",
	}
}

// NewInvalidRequestError はリクエスト形式不正エラーを生成する。
func NewInvalidRequestError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  fmt.Sprintf("Ungültige Anfrage: %s", reason),
		Category: "validation",
		Action:   "Bitte überprüfen Sie Ihre Eingaben.",
	}
}

// NewRateLimitedError はレート制限超過エラーを生成する。
func NewRateLimitedError() *APIError {
	return &APIError{
		Code:     ErrCodeRateLimited,
		Message:  "Zu viele Anfragen.",
		Category: "system",
		Action:   "Bitte warten Sie einen Moment und versuchen Sie es erneut.",
	}
}

// NewForbiddenError は権限不足エラーを生成する。
func NewForbiddenError() *APIError {
	return &APIError{
		Code:     ErrCodeForbidden,
		Message:  "Für diese Aktion fehlen die Berechtigungen.",
		Category: "auth",
		Action:   "Bitte wenden Sie sich an einen Administrator.",
	}
}

// NewInvalidRoleError は未定義ロール指定エラーを生成する。
func NewInvalidRoleError(role string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRole,
		Message:  fmt.Sprintf("Unbekannte Rolle: %s", role),
		Category: "validation",
		Action:   "Erlaubt sind superadmin, hersteller, folierer und haendler.",
	}
}

// NewProfileNotFoundError はプロフィールが存在しない場合のエラーを生成する。
func NewProfileNotFoundError(userID string) *APIError {
	return &APIError{
		Code:     ErrCodeProfileNotFound,
		Message:  fmt.Sprintf("Kein Profil für Benutzer %s gefunden.", userID),
		Category: "auth",
		Action:   "Bitte melden Sie sich erneut an oder kontaktieren Sie den Support.",
	}
}

// NewArticleNotFoundError は記事未検出エラーを生成する。
func NewArticleNotFoundError(slug string) *APIError {
	return &APIError{
		Code:     ErrCodeArticleNotFound,
		Message:  fmt.Sprintf("Artikel nicht verfügbar: %s", slug),
		Category: "magazine",
		Action:   "Bitte versuchen Sie es später erneut.",
	}
}
