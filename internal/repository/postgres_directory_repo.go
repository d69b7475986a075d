package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/hitoshi/wrapmag/internal/model"
)

// DirectoryRow はロール別事業者テーブルとサービスを結合した1行。
// NULL許容カラムはそのまま保持し、カードへの変換はdirectoryパッケージで行う。
type DirectoryRow struct {
	UserID      string         `db:"user_id"`
	CompanyName sql.NullString `db:"company_name"`
	Slug        sql.NullString `db:"slug"`
	Street      sql.NullString `db:"street"`
	PostalCode  sql.NullString `db:"postal_code"`
	City        sql.NullString `db:"city"`
	LogoURL     sql.NullString `db:"logo_url"`
	Website     sql.NullString `db:"website"`
	Description sql.NullString `db:"description"`
	Services    pq.StringArray `db:"services"`
}

// PostgresDirectoryRepo はsqlxを使用したディレクトリリポジトリ。
type PostgresDirectoryRepo struct {
	db *sqlx.DB
}

// NewPostgresDirectoryRepo はPostgresDirectoryRepoを生成する。
func NewPostgresDirectoryRepo(db *sqlx.DB) *PostgresDirectoryRepo {
	return &PostgresDirectoryRepo{db: db}
}

// directoryQuery はロール別テーブル名を埋め込んだSELECT文を返す。
// 現在のロールがprofiles.roleと一致するユーザーのみを対象とし、ロール変更前の行は結果に含めない。
// サービスが1件もない場合、array_aggはNULLを返す。
func directoryQuery(role model.Role, where string) (string, error) {
	profiles, err := businessTable(role)
	if err != nil {
		return "", err
	}
	links, err := serviceTable(role)
	if err != nil {
		return "", err
	}
	return `
		SELECT p.user_id, p.company_name, p.slug, p.street, p.postal_code, p.city, p.logo_url, p.website, p.description,
		       array_agg(s.title ORDER BY s.title) FILTER (WHERE s.title IS NOT NULL) AS services
		FROM ` + profiles + ` p
		JOIN profiles pr ON pr.user_id = p.user_id AND pr.role = '` + string(role) + `'
		LEFT JOIN ` + links + ` ps ON ps.profile_id = p.user_id
		LEFT JOIN services s ON s.id = ps.service_id
		WHERE ` + where + `
		GROUP BY p.user_id
		ORDER BY p.company_name ASC`, nil
}

// ListByRole は事業者プロフィールをサービス一覧付きで返す。
func (r *PostgresDirectoryRepo) ListByRole(ctx context.Context, role model.Role, location string) ([]DirectoryRow, error) {
	where := `p.company_name IS NOT NULL`
	var args []any
	if loc := strings.TrimSpace(location); loc != "" {
		pattern := escapeLike(loc)
		where += ` AND (p.city ILIKE '%' || $1 || '%' OR p.postal_code LIKE $1 || '%')`
		args = append(args, pattern)
	}

	query, err := directoryQuery(role, where)
	if err != nil {
		return nil, err
	}

	var rows []DirectoryRow
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list %s directory: %w", role, err)
	}
	return rows, nil
}

// FindByUserID は指定ユーザーの事業者プロフィールを返す。見つからない場合はnilを返す。
func (r *PostgresDirectoryRepo) FindByUserID(ctx context.Context, role model.Role, userID string) (*DirectoryRow, error) {
	query, err := directoryQuery(role, `p.user_id = $1`)
	if err != nil {
		return nil, err
	}

	var row DirectoryRow
	err = r.db.GetContext(ctx, &row, query, userID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find %s profile: %w", role, err)
	}
	return &row, nil
}

// ListServices は選択可能なサービス名を名前順に返す。
func (r *PostgresDirectoryRepo) ListServices(ctx context.Context) ([]string, error) {
	var titles []string
	if err := r.db.SelectContext(ctx, &titles, `SELECT title FROM services ORDER BY title ASC`); err != nil {
		return nil, fmt.Errorf("failed to list services: %w", err)
	}
	return titles, nil
}

// UpdateBusinessProfile は事業者プロフィールとサービスの紐付けを同一トランザクションで更新する。
// servicesに存在しないサービス名が含まれる場合、その名前は無視される。
func (r *PostgresDirectoryRepo) UpdateBusinessProfile(ctx context.Context, role model.Role, profile *model.BusinessProfile, services []string) error {
	table, err := businessTable(role)
	if err != nil {
		return err
	}
	links, err := serviceTable(role)
	if err != nil {
		return err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// ロール変更直後で行がまだない場合は、現在のロールが一致するときだけ作成する
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO `+table+` (user_id)
		 SELECT user_id FROM profiles WHERE user_id = $1 AND role = $2
		 ON CONFLICT (user_id) DO NOTHING`,
		profile.UserID, string(role),
	); err != nil {
		return fmt.Errorf("failed to ensure %s profile: %w", role, err)
	}

	result, err := tx.ExecContext(ctx,
		`UPDATE `+table+`
		 SET company_name = $2, slug = $3, street = $4, postal_code = $5, city = $6,
		     logo_url = $7, website = $8, description = $9, updated_at = now()
		 WHERE user_id = $1`,
		profile.UserID,
		nullString(profile.CompanyName),
		nullString(profile.Slug),
		nullString(profile.Street),
		nullString(profile.PostalCode),
		nullString(profile.City),
		nullString(profile.LogoURL),
		nullString(profile.Website),
		nullString(profile.Description),
	)
	if err != nil {
		return fmt.Errorf("failed to update %s profile: %w", role, err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("%s profile %s: %w", role, profile.UserID, model.ErrNotFound)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM `+links+` WHERE profile_id = $1`, profile.UserID); err != nil {
		return fmt.Errorf("failed to clear services: %w", err)
	}
	if len(services) > 0 {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO `+links+` (profile_id, service_id)
			 SELECT $1, id FROM services WHERE title = ANY($2)`,
			profile.UserID, pq.Array(services),
		); err != nil {
			return fmt.Errorf("failed to link services: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// escapeLike はLIKEパターンのメタ文字をエスケープする。
func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

// compile-time interface check
var _ DirectoryRepository = (*PostgresDirectoryRepo)(nil)
