// Package magazine はWordPressマガジンの取得・同期を提供する。
// 一覧はRSSから同期したキャッシュを使い、記事ページはREST APIから都度取得する。
package magazine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hitoshi/wrapmag/internal/metrics"
	"github.com/hitoshi/wrapmag/internal/model"
)

const (
	postsPath = "/wp-json/wp/v2/posts"
	userAgent = "wrapmag/1.0"
	// maxPerPage はWordPress REST APIのper_page上限。
	maxPerPage = 100
)

// ErrPostNotFound は指定スラッグの記事が存在しない場合のエラー。
var ErrPostNotFound = errors.New("post not found")

// StatusError はCMSが200以外を返した場合のエラー。
type StatusError struct {
	StatusCode int
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("cms returned status %d", e.StatusCode)
}

// Client はWordPress REST APIのクライアント。
type Client struct {
	httpClient *http.Client
	baseURL    string
	metrics    metrics.MetricsCollector
}

// NewClient はClientを生成する。httpClientにはSSRF防止付きのクライアントを渡す。
func NewClient(baseURL string, httpClient *http.Client, m metrics.MetricsCollector) *Client {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Client{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		metrics:    m,
	}
}

// wpPost はREST APIのpostオブジェクトのうち使用するフィールド。
type wpPost struct {
	ID      int64    `json:"id"`
	GUID    rendered `json:"guid"`
	Slug    string   `json:"slug"`
	Link    string   `json:"link"`
	DateGMT string   `json:"date_gmt"`
	Title   rendered `json:"title"`
	Excerpt rendered `json:"excerpt"`
	Content rendered `json:"content"`

	Embedded struct {
		Author []struct {
			Name string `json:"name"`
		} `json:"author"`
		FeaturedMedia []struct {
			SourceURL string `json:"source_url"`
		} `json:"wp:featuredmedia"`
	} `json:"_embedded"`
}

type rendered struct {
	Rendered string `json:"rendered"`
}

// ListPosts は公開日の新しい順に記事を取得する。pageは1始まり。
func (c *Client) ListPosts(ctx context.Context, page, perPage int) ([]*model.Article, error) {
	if page < 1 {
		page = 1
	}
	if perPage < 1 || perPage > maxPerPage {
		perPage = 10
	}
	q := url.Values{
		"page":     {strconv.Itoa(page)},
		"per_page": {strconv.Itoa(perPage)},
		"_embed":   {"author,wp:featuredmedia"},
	}

	var posts []wpPost
	if err := c.get(ctx, q, &posts); err != nil {
		return nil, err
	}
	articles := make([]*model.Article, 0, len(posts))
	for i := range posts {
		articles = append(articles, posts[i].toArticle())
	}
	return articles, nil
}

// PostBySlug はスラッグで記事を1件取得する。存在しない場合はErrPostNotFoundを返す。
// 返す記事のContentはサニタイズ前のHTML。
func (c *Client) PostBySlug(ctx context.Context, slug string) (*model.Article, error) {
	q := url.Values{
		"slug":   {slug},
		"_embed": {"author,wp:featuredmedia"},
	}

	var posts []wpPost
	if err := c.get(ctx, q, &posts); err != nil {
		return nil, err
	}
	if len(posts) == 0 {
		return nil, ErrPostNotFound
	}
	return posts[0].toArticle(), nil
}

func (c *Client) get(ctx context.Context, q url.Values, dst any) error {
	reqURL := c.baseURL + postsPath + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build cms request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	c.metrics.RecordCMSLatency(time.Since(start))
	if err != nil {
		slog.Error("cms request failed",
			slog.String("url", reqURL),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("cms request failed: %w", err)
	}
	defer resp.Body.Close()
	c.metrics.RecordCMSStatus(resp.StatusCode)

	if resp.StatusCode != http.StatusOK {
		slog.Warn("cms returned error status",
			slog.String("url", reqURL),
			slog.Int("http_status", resp.StatusCode),
		)
		io.Copy(io.Discard, resp.Body)
		return &StatusError{StatusCode: resp.StatusCode}
	}

	if err := json.NewDecoder(resp.Body).Decode(dst); err != nil {
		slog.Error("failed to decode cms response",
			slog.String("url", reqURL),
			slog.String("error", err.Error()),
		)
		return fmt.Errorf("failed to decode cms response: %w", err)
	}
	return nil
}

func (p *wpPost) toArticle() *model.Article {
	a := &model.Article{
		GUID:    p.GUID.Rendered,
		Slug:    p.Slug,
		Title:   PlainText(p.Title.Rendered, 0),
		Link:    p.Link,
		Excerpt: PlainText(p.Excerpt.Rendered, DefaultExcerptLength),
		Content: p.Content.Rendered,
	}
	if a.GUID == "" {
		a.GUID = p.Link
	}
	if a.Excerpt == "" {
		a.Excerpt = PlainText(p.Content.Rendered, DefaultExcerptLength)
	}
	if t, err := time.Parse("2006-01-02T15:04:05", p.DateGMT); err == nil {
		t = t.UTC()
		a.PublishedAt = &t
	}
	if len(p.Embedded.Author) > 0 {
		a.Author = p.Embedded.Author[0].Name
	}
	if len(p.Embedded.FeaturedMedia) > 0 {
		a.ImageURL = p.Embedded.FeaturedMedia[0].SourceURL
	}
	return a
}
