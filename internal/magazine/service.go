package magazine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"

	"github.com/hitoshi/wrapmag/internal/model"
	"github.com/hitoshi/wrapmag/internal/repository"
)

// ErrArticleUnavailable は記事が存在しない、またはCMSから取得できない場合のエラー。
var ErrArticleUnavailable = errors.New("article unavailable")

// DefaultListLimit は一覧ページに表示する記事数。
const DefaultListLimit = 20

var validSlug = regexp.MustCompile(`^[a-z0-9%][a-z0-9%-]{0,199}$`)

// PostFetcher はスラッグで記事を取得する。
type PostFetcher interface {
	PostBySlug(ctx context.Context, slug string) (*model.Article, error)
}

// Service はマガジンページ用の記事取得を提供する。
type Service struct {
	articles  repository.ArticleRepository
	posts     PostFetcher
	sanitizer Sanitizer
}

// NewService はServiceを生成する。postsがnilの場合（WORDPRESS_URL未設定）はキャッシュのみを使う。
func NewService(articles repository.ArticleRepository, posts PostFetcher, sanitizer Sanitizer) *Service {
	return &Service{articles: articles, posts: posts, sanitizer: sanitizer}
}

// Recent はキャッシュ済みの記事を公開日の新しい順に返す。
func (s *Service) Recent(ctx context.Context, limit int) ([]*model.Article, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	articles, err := s.articles.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list articles: %w", err)
	}
	if articles == nil {
		articles = []*model.Article{}
	}
	return articles, nil
}

// Article はスラッグで記事を取得する。CMSから最新版を取得し、本文をサニタイズして返す。
// CMSが応答しない場合はキャッシュにあればそれを返し、なければErrArticleUnavailableを返す。
func (s *Service) Article(ctx context.Context, slug string) (*model.Article, error) {
	if !validSlug.MatchString(slug) {
		return nil, ErrArticleUnavailable
	}

	if s.posts != nil {
		article, err := s.posts.PostBySlug(ctx, slug)
		if err == nil {
			article.Content = s.sanitizer.Sanitize(article.Content)
			return article, nil
		}
		if errors.Is(err, ErrPostNotFound) {
			return nil, ErrArticleUnavailable
		}
		slog.Warn("cms fetch failed, falling back to cache",
			slog.String("slug", slug),
			slog.String("error", err.Error()),
		)
	}

	cached, err := s.articles.FindBySlug(ctx, slug)
	if err != nil {
		return nil, fmt.Errorf("failed to find cached article: %w", err)
	}
	if cached == nil {
		return nil, ErrArticleUnavailable
	}
	return cached, nil
}
