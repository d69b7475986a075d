// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/wrapmag/internal/model"
)

// UserRepository はユーザーデータの永続化インターフェース。
type UserRepository interface {
	// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.User, error)

	// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
	FindByEmail(ctx context.Context, email string) (*model.User, error)

	// CreateAccount はユーザー、プロフィール、ロール別事業者プロフィールを同一トランザクションで作成する。
	// identityがnilでない場合は外部IdPの紐付けも同時に作成する。
	// メールアドレスが既に登録済みの場合はmodel.ErrEmailTakenを返す。
	CreateAccount(ctx context.Context, account *NewAccount) error

	// DeleteByID は指定IDのユーザーを削除する。
	// 関連するidentities、sessions、profilesはCASCADE削除される。
	DeleteByID(ctx context.Context, id string) error
}

// NewAccount はサインアップ時に作成するレコード一式。
type NewAccount struct {
	User     *model.User
	Profile  *model.Profile
	Business *model.BusinessProfile
	Identity *model.Identity
}

// IdentityRepository は外部IdP紐付け情報の永続化インターフェース。
type IdentityRepository interface {
	// FindByProviderAndProviderUserID はproviderとprovider_user_idでidentityを検索する。
	// 見つからない場合はnilを返す。
	FindByProviderAndProviderUserID(ctx context.Context, provider, providerUserID string) (*model.Identity, error)

	// Create は既存ユーザーにidentityを紐付ける。
	Create(ctx context.Context, identity *model.Identity) error
}

// SessionRepository はセッションデータの永続化インターフェース。
type SessionRepository interface {
	// Create はセッションを作成する。
	Create(ctx context.Context, session *model.Session) error
	// FindByID は指定IDのセッションを取得する。期限切れの場合はnilを返す。
	FindByID(ctx context.Context, id string) (*model.Session, error)
	// DeleteByID は指定IDのセッションを削除する。
	DeleteByID(ctx context.Context, id string) error
	// DeleteByUserID は指定ユーザーの全セッションを削除する。
	DeleteByUserID(ctx context.Context, userID string) error
	// DeleteExpired は期限切れのセッションを削除し、削除件数を返す。
	DeleteExpired(ctx context.Context) (int64, error)
}

// ProfileRepository はプロフィール（ロール）の永続化インターフェース。
type ProfileRepository interface {
	// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
	// roleがNULLの場合はProfile.Roleが空文字になる。
	FindByUserID(ctx context.Context, userID string) (*model.Profile, error)

	// UpdateRole はユーザーのロールを更新する。対象がない場合はmodel.ErrNotFoundを返す。
	// 事業者ロールへの変更時は、そのロールの事業者プロフィール行がなければ作成する。
	UpdateRole(ctx context.Context, userID string, role model.Role) error

	// List は全プロフィールを作成日時の新しい順に返す。
	List(ctx context.Context) ([]*model.Profile, error)

	// ListByRole は指定ロールのプロフィールを返す。
	ListByRole(ctx context.Context, role model.Role) ([]*model.Profile, error)
}

// DirectoryRepository はロール別事業者テーブルの読み取りインターフェース。
type DirectoryRepository interface {
	// ListByRole は事業者プロフィールをサービス一覧付きで返す。
	// company_nameがNULLの行は含まない。locationが空でない場合は市区名または郵便番号の前方一致で絞り込む。
	ListByRole(ctx context.Context, role model.Role, location string) ([]DirectoryRow, error)

	// FindByUserID は指定ユーザーの事業者プロフィールを返す。見つからない場合はnilを返す。
	FindByUserID(ctx context.Context, role model.Role, userID string) (*DirectoryRow, error)

	// ListServices は選択可能なサービス名の一覧を返す。
	ListServices(ctx context.Context) ([]string, error)

	// UpdateBusinessProfile は事業者プロフィールを更新し、サービスの紐付けを置き換える。
	// 行がなくprofiles.roleがroleと一致する場合は作成してから更新する。
	// いずれにも該当しない場合はmodel.ErrNotFoundを返す。
	UpdateBusinessProfile(ctx context.Context, role model.Role, profile *model.BusinessProfile, services []string) error
}

// ArticleRepository はマガジン記事キャッシュの永続化インターフェース。
type ArticleRepository interface {
	// Upsert はGUIDをキーに記事を作成または更新する。新規作成の場合はtrueを返す。
	Upsert(ctx context.Context, article *model.Article) (bool, error)

	// ListRecent は公開日時の新しい順に記事を返す。
	ListRecent(ctx context.Context, limit int) ([]*model.Article, error)

	// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
	FindBySlug(ctx context.Context, slug string) (*model.Article, error)

	// GetSyncState は前回同期時のETag/Last-Modifiedを返す。未同期の場合はnilを返す。
	GetSyncState(ctx context.Context, feedURL string) (*model.MagazineSyncState, error)

	// SaveSyncState は同期状態を保存する。
	SaveSyncState(ctx context.Context, state *model.MagazineSyncState) error
}
