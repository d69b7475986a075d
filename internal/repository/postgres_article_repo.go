package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/hitoshi/wrapmag/internal/model"
)

// articleRecord はmagazine_articlesの1行。
type articleRecord struct {
	ID          string       `db:"id"`
	GUID        string       `db:"guid"`
	Slug        string       `db:"slug"`
	Title       string       `db:"title"`
	Link        string       `db:"link"`
	Excerpt     string       `db:"excerpt"`
	Content     string       `db:"content"`
	Author      string       `db:"author"`
	ImageURL    string       `db:"image_url"`
	PublishedAt sql.NullTime `db:"published_at"`
	FetchedAt   time.Time    `db:"fetched_at"`
}

func (a articleRecord) toModel() *model.Article {
	article := &model.Article{
		ID:        a.ID,
		GUID:      a.GUID,
		Slug:      a.Slug,
		Title:     a.Title,
		Link:      a.Link,
		Excerpt:   a.Excerpt,
		Content:   a.Content,
		Author:    a.Author,
		ImageURL:  a.ImageURL,
		FetchedAt: a.FetchedAt,
	}
	if a.PublishedAt.Valid {
		t := a.PublishedAt.Time
		article.PublishedAt = &t
	}
	return article
}

// PostgresArticleRepo はsqlxを使用したマガジン記事リポジトリ。
type PostgresArticleRepo struct {
	db *sqlx.DB
}

// NewPostgresArticleRepo はPostgresArticleRepoを生成する。
func NewPostgresArticleRepo(db *sqlx.DB) *PostgresArticleRepo {
	return &PostgresArticleRepo{db: db}
}

const articleColumns = `id, guid, slug, title, link, excerpt, content, author, image_url, published_at, fetched_at`

// Upsert はGUIDをキーに記事を作成または更新する。新規作成の場合はtrueを返す。
// xmax = 0 はINSERTされた行であることを示す。
func (r *PostgresArticleRepo) Upsert(ctx context.Context, article *model.Article) (bool, error) {
	var published sql.NullTime
	if article.PublishedAt != nil {
		published = sql.NullTime{Time: *article.PublishedAt, Valid: true}
	}

	var inserted bool
	err := r.db.QueryRowxContext(ctx,
		`INSERT INTO magazine_articles (guid, slug, title, link, excerpt, content, author, image_url, published_at, fetched_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		 ON CONFLICT (guid) DO UPDATE SET
		   slug = EXCLUDED.slug,
		   title = EXCLUDED.title,
		   link = EXCLUDED.link,
		   excerpt = EXCLUDED.excerpt,
		   content = EXCLUDED.content,
		   author = EXCLUDED.author,
		   image_url = EXCLUDED.image_url,
		   published_at = EXCLUDED.published_at,
		   fetched_at = EXCLUDED.fetched_at,
		   updated_at = now()
		 RETURNING id, (xmax = 0) AS inserted`,
		article.GUID, article.Slug, article.Title, article.Link, article.Excerpt, article.Content,
		article.Author, article.ImageURL, published, article.FetchedAt,
	).Scan(&article.ID, &inserted)
	if err != nil {
		return false, fmt.Errorf("failed to upsert article: %w", err)
	}
	return inserted, nil
}

// ListRecent は公開日時の新しい順に記事を返す。
func (r *PostgresArticleRepo) ListRecent(ctx context.Context, limit int) ([]*model.Article, error) {
	var records []articleRecord
	err := r.db.SelectContext(ctx, &records,
		`SELECT `+articleColumns+` FROM magazine_articles
		 ORDER BY published_at DESC NULLS LAST, fetched_at DESC
		 LIMIT $1`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}

	articles := make([]*model.Article, 0, len(records))
	for _, rec := range records {
		articles = append(articles, rec.toModel())
	}
	return articles, nil
}

// FindBySlug はスラッグで記事を取得する。見つからない場合はnilを返す。
func (r *PostgresArticleRepo) FindBySlug(ctx context.Context, slug string) (*model.Article, error) {
	var rec articleRecord
	err := r.db.GetContext(ctx, &rec,
		`SELECT `+articleColumns+` FROM magazine_articles WHERE slug = $1
		 ORDER BY published_at DESC NULLS LAST LIMIT 1`,
		slug,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find article: %w", err)
	}
	return rec.toModel(), nil
}

// GetSyncState は前回同期時のETag/Last-Modifiedを返す。未同期の場合はnilを返す。
func (r *PostgresArticleRepo) GetSyncState(ctx context.Context, feedURL string) (*model.MagazineSyncState, error) {
	state := &model.MagazineSyncState{}
	err := r.db.QueryRowxContext(ctx,
		`SELECT feed_url, etag, last_modified, synced_at FROM magazine_sync_state WHERE feed_url = $1`,
		feedURL,
	).Scan(&state.FeedURL, &state.ETag, &state.LastModified, &state.SyncedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get sync state: %w", err)
	}
	return state, nil
}

// SaveSyncState は同期状態を保存する。
func (r *PostgresArticleRepo) SaveSyncState(ctx context.Context, state *model.MagazineSyncState) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO magazine_sync_state (feed_url, etag, last_modified, synced_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (feed_url) DO UPDATE SET
		   etag = EXCLUDED.etag,
		   last_modified = EXCLUDED.last_modified,
		   synced_at = EXCLUDED.synced_at`,
		state.FeedURL, state.ETag, state.LastModified, state.SyncedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save sync state: %w", err)
	}
	return nil
}

// compile-time interface check
var _ ArticleRepository = (*PostgresArticleRepo)(nil)
