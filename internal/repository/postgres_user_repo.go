package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/hitoshi/wrapmag/internal/model"
)

// PostgreSQLのunique_violationエラーコード
const pqUniqueViolation = "23505"

// PostgresUserRepo はPostgreSQLを使用したユーザーリポジトリ。
type PostgresUserRepo struct {
	db *sql.DB
}

// NewPostgresUserRepo はPostgresUserRepoを生成する。
func NewPostgresUserRepo(db *sql.DB) *PostgresUserRepo {
	return &PostgresUserRepo{db: db}
}

// FindByID は指定IDのユーザーを取得する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	return r.findOne(ctx, `WHERE id = $1`, id)
}

// FindByEmail はメールアドレスでユーザーを検索する。見つからない場合はnilを返す。
func (r *PostgresUserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	return r.findOne(ctx, `WHERE lower(email) = lower($1)`, email)
}

func (r *PostgresUserRepo) findOne(ctx context.Context, where string, arg string) (*model.User, error) {
	user := &model.User{}
	var passwordHash sql.NullString
	err := r.db.QueryRowContext(ctx,
		`SELECT id, email, name, password_hash, created_at, updated_at FROM users `+where,
		arg,
	).Scan(&user.ID, &user.Email, &user.Name, &passwordHash, &user.CreatedAt, &user.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find user: %w", err)
	}
	user.PasswordHash = passwordHash.String

	return user, nil
}

// CreateAccount はユーザー、プロフィール、ロール別事業者プロフィールを同一トランザクションで作成する。
func (r *PostgresUserRepo) CreateAccount(ctx context.Context, account *NewAccount) error {
	user, profile := account.User, account.Profile
	if user == nil || profile == nil {
		return fmt.Errorf("user and profile are required")
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ユーザーを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO users (id, email, name, password_hash, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID, user.Email, user.Name, nullString(user.PasswordHash), user.CreatedAt, user.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return model.ErrEmailTaken
		}
		return fmt.Errorf("failed to insert user: %w", err)
	}

	if identity := account.Identity; identity != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO identities (id, user_id, provider, provider_user_id, created_at)
			 VALUES ($1, $2, $3, $4, $5)`,
			identity.ID, identity.UserID, identity.Provider, identity.ProviderUserID, identity.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to insert identity: %w", err)
		}
	}

	// プロフィールを作成
	_, err = tx.ExecContext(ctx,
		`INSERT INTO profiles (user_id, role, email, display_name, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $5)`,
		profile.UserID, nullString(string(profile.Role)), profile.Email, profile.DisplayName, profile.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert profile: %w", err)
	}

	// ロール別事業者プロフィールを作成
	if biz := account.Business; biz != nil && profile.Role.IsBusiness() {
		table, err := businessTable(profile.Role)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO `+table+` (user_id, company_name, slug, street, postal_code, city, website, description)
			 VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			biz.UserID, nullString(biz.CompanyName), nullString(biz.Slug), nullString(biz.Street),
			nullString(biz.PostalCode), nullString(biz.City), nullString(biz.Website), nullString(biz.Description),
		)
		if err != nil {
			return fmt.Errorf("failed to insert business profile: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}

// DeleteByID は指定IDのユーザーを削除する。
// 関連するidentities、sessions、profilesはCASCADE削除される。
func (r *PostgresUserRepo) DeleteByID(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx,
		`DELETE FROM users WHERE id = $1`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to delete user: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("user %s: %w", id, model.ErrNotFound)
	}
	return nil
}

// nullString は空文字をSQLのNULLとして扱う。
func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

// businessTable はロールに対応する事業者テーブル名を返す。
// テーブル名はSQLに埋め込むため、閉じた集合以外は拒否する。
func businessTable(role model.Role) (string, error) {
	switch role {
	case model.RoleHersteller:
		return "hersteller_profiles", nil
	case model.RoleFolierer:
		return "folierer_profiles", nil
	case model.RoleHaendler:
		return "haendler_profiles", nil
	default:
		return "", fmt.Errorf("role %q: %w", role, model.ErrInvalidRole)
	}
}

// serviceTable はロールに対応するサービス紐付けテーブル名を返す。
func serviceTable(role model.Role) (string, error) {
	switch role {
	case model.RoleHersteller:
		return "hersteller_services", nil
	case model.RoleFolierer:
		return "folierer_services", nil
	case model.RoleHaendler:
		return "haendler_services", nil
	default:
		return "", fmt.Errorf("role %q: %w", role, model.ErrInvalidRole)
	}
}

// compile-time interface check
var _ UserRepository = (*PostgresUserRepo)(nil)
