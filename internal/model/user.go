// Package model はドメインモデルを定義する。
package model

import "time"

// User はログイン可能なアカウントを表す。
// パスワードログインを使わないユーザー（Googleのみ）はPasswordHashが空。
type User struct {
	ID           string
	Email        string
	Name         string
	PasswordHash string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Identity は外部IdPとの紐付け情報を表す。
type Identity struct {
	ID             string
	UserID         string
	Provider       string
	ProviderUserID string
	CreatedAt      time.Time
}

// Session はユーザーのログインセッション（リフレッシュトークン）を表す。
// アクセストークンはSessionのIDを参照する署名付きトークンとして別途発行される。
type Session struct {
	ID        string
	UserID    string
	ExpiresAt time.Time
	CreatedAt time.Time
}
