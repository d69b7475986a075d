package repository

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/hitoshi/wrapmag/internal/model"
)

// PostgresProfileRepo はPostgreSQLを使用したプロフィールリポジトリ。
type PostgresProfileRepo struct {
	db *sql.DB
}

// NewPostgresProfileRepo はPostgresProfileRepoを生成する。
func NewPostgresProfileRepo(db *sql.DB) *PostgresProfileRepo {
	return &PostgresProfileRepo{db: db}
}

const profileColumns = `user_id, role, email, display_name, created_at`

// FindByUserID は指定ユーザーのプロフィールを取得する。見つからない場合はnilを返す。
func (r *PostgresProfileRepo) FindByUserID(ctx context.Context, userID string) (*model.Profile, error) {
	row := r.db.QueryRowContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE user_id = $1`,
		userID,
	)
	p, err := scanProfile(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find profile: %w", err)
	}
	return p, nil
}

// UpdateRole はユーザーのロールを更新する。
// 事業者ロールへの変更では、そのロールの事業者プロフィール行を同一トランザクションで用意する。
// 旧ロールの行は削除せず残すため、ロールを戻した場合は以前の内容がそのまま使われる。
func (r *PostgresProfileRepo) UpdateRole(ctx context.Context, userID string, role model.Role) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx,
		`UPDATE profiles SET role = $2, updated_at = now() WHERE user_id = $1`,
		userID, nullString(string(role)),
	)
	if err != nil {
		return fmt.Errorf("failed to update role: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("profile %s: %w", userID, model.ErrNotFound)
	}

	if role.IsBusiness() {
		table, err := businessTable(role)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+table+` (user_id) VALUES ($1) ON CONFLICT (user_id) DO NOTHING`,
			userID,
		); err != nil {
			return fmt.Errorf("failed to create %s profile: %w", role, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// List は全プロフィールを作成日時の新しい順に返す。
func (r *PostgresProfileRepo) List(ctx context.Context) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles: %w", err)
	}
	return collectProfiles(rows)
}

// ListByRole は指定ロールのプロフィールを作成日時の古い順に返す。
func (r *PostgresProfileRepo) ListByRole(ctx context.Context, role model.Role) ([]*model.Profile, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+profileColumns+` FROM profiles WHERE role = $1 ORDER BY created_at ASC`,
		string(role),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list profiles by role: %w", err)
	}
	return collectProfiles(rows)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProfile(row rowScanner) (*model.Profile, error) {
	p := &model.Profile{}
	var role sql.NullString
	if err := row.Scan(&p.UserID, &role, &p.Email, &p.DisplayName, &p.CreatedAt); err != nil {
		return nil, err
	}
	// NULLは空文字のRoleとして表現する
	p.Role = model.Role(role.String)
	return p, nil
}

func collectProfiles(rows *sql.Rows) ([]*model.Profile, error) {
	defer rows.Close()

	var profiles []*model.Profile
	for rows.Next() {
		p, err := scanProfile(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate profiles: %w", err)
	}
	return profiles, nil
}

// compile-time interface check
var _ ProfileRepository = (*PostgresProfileRepo)(nil)
