package magazine

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"

	"github.com/hitoshi/wrapmag/internal/metrics"
	"github.com/hitoshi/wrapmag/internal/model"
	"github.com/hitoshi/wrapmag/internal/repository"
)

// 同期結果（メトリクスのラベル）
const (
	SyncResultOK          = "ok"
	SyncResultNotModified = "not_modified"
	SyncResultError       = "error"
)

// SyncReport は1回の同期の結果。
type SyncReport struct {
	Result   string
	Items    int
	Inserted int
}

// Syncer はWordPressのRSSフィード（<base>/feed/）を取得し、記事キャッシュを更新する。
// ETag/Last-Modifiedを使用した条件付きGETを行う。
type Syncer struct {
	articles   repository.ArticleRepository
	httpClient *http.Client
	sanitizer  Sanitizer
	metrics    metrics.MetricsCollector
	feedURL    string
	now        func() time.Time
}

// Sanitizer は記事HTMLのサニタイズを行う。
type Sanitizer interface {
	Sanitize(rawHTML string) string
}

// NewSyncer はSyncerを生成する。
func NewSyncer(
	baseURL string,
	articles repository.ArticleRepository,
	httpClient *http.Client,
	sanitizer Sanitizer,
	m metrics.MetricsCollector,
) *Syncer {
	if m == nil {
		m = metrics.Nop{}
	}
	return &Syncer{
		articles:   articles,
		httpClient: httpClient,
		sanitizer:  sanitizer,
		metrics:    m,
		feedURL:    FeedURL(baseURL),
		now:        time.Now,
	}
}

// FeedURL はWordPressのRSSフィードのURLを返す。
func FeedURL(baseURL string) string {
	return strings.TrimRight(baseURL, "/") + "/feed/"
}

// Sync はフィードを1回取得し、記事をUPSERTする。
func (s *Syncer) Sync(ctx context.Context) (SyncReport, error) {
	report, err := s.sync(ctx)
	if err != nil {
		report.Result = SyncResultError
	}
	s.metrics.RecordMagazineSync(report.Result)
	if report.Inserted > 0 {
		s.metrics.RecordArticlesUpserted(report.Inserted)
	}
	return report, err
}

func (s *Syncer) sync(ctx context.Context) (SyncReport, error) {
	start := s.now()

	state, err := s.articles.GetSyncState(ctx, s.feedURL)
	if err != nil {
		return SyncReport{}, fmt.Errorf("failed to load sync state: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.feedURL, nil)
	if err != nil {
		return SyncReport{}, fmt.Errorf("failed to build feed request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "application/rss+xml, application/atom+xml, application/xml, text/xml")
	if state != nil {
		if state.ETag != "" {
			req.Header.Set("If-None-Match", state.ETag)
		}
		if state.LastModified != "" {
			req.Header.Set("If-Modified-Since", state.LastModified)
		}
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return SyncReport{}, fmt.Errorf("feed request failed: %w", err)
	}
	defer resp.Body.Close()
	s.metrics.RecordCMSStatus(resp.StatusCode)

	switch resp.StatusCode {
	case http.StatusNotModified:
		slog.Info("magazine feed not modified",
			slog.String("feed_url", s.feedURL),
			slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
		)
		return SyncReport{Result: SyncResultNotModified}, nil
	case http.StatusOK:
	default:
		return SyncReport{}, &StatusError{StatusCode: resp.StatusCode}
	}

	feed, err := gofeed.NewParser().Parse(resp.Body)
	if err != nil {
		return SyncReport{}, fmt.Errorf("failed to parse feed: %w", err)
	}

	fetchedAt := s.now()
	report := SyncReport{Result: SyncResultOK}
	for _, item := range feed.Items {
		article := s.convert(item, fetchedAt)
		if article == nil {
			continue
		}
		report.Items++
		inserted, err := s.articles.Upsert(ctx, article)
		if err != nil {
			return report, fmt.Errorf("failed to upsert article %s: %w", article.GUID, err)
		}
		if inserted {
			report.Inserted++
		}
	}

	// 記事の保存に成功した場合のみ条件付きGETの値を更新する
	next := &model.MagazineSyncState{
		FeedURL:      s.feedURL,
		ETag:         resp.Header.Get("ETag"),
		LastModified: resp.Header.Get("Last-Modified"),
		SyncedAt:     fetchedAt,
	}
	if err := s.articles.SaveSyncState(ctx, next); err != nil {
		return report, fmt.Errorf("failed to save sync state: %w", err)
	}

	slog.Info("magazine feed synced",
		slog.String("feed_url", s.feedURL),
		slog.Int("items_total", report.Items),
		slog.Int("items_inserted", report.Inserted),
		slog.Float64("duration_ms", float64(s.now().Sub(start).Milliseconds())),
	)
	return report, nil
}

// convert はgofeedの記事をmodel.Articleに変換する。GUIDもリンクもない記事はnilを返す。
func (s *Syncer) convert(item *gofeed.Item, fetchedAt time.Time) *model.Article {
	if item == nil {
		return nil
	}
	guid := item.GUID
	if guid == "" {
		guid = item.Link
	}
	if guid == "" {
		return nil
	}

	content := item.Content
	if content == "" {
		content = item.Description
	}

	a := &model.Article{
		GUID:      guid,
		Slug:      slugFromLink(item.Link),
		Title:     strings.TrimSpace(item.Title),
		Link:      item.Link,
		Excerpt:   PlainText(item.Description, DefaultExcerptLength),
		Content:   s.sanitizer.Sanitize(content),
		FetchedAt: fetchedAt,
	}
	if a.Excerpt == "" {
		a.Excerpt = PlainText(content, DefaultExcerptLength)
	}

	if item.Author != nil {
		a.Author = item.Author.Name
	}
	if a.Author == "" && len(item.Authors) > 0 && item.Authors[0] != nil {
		a.Author = item.Authors[0].Name
	}
	if item.Image != nil && strings.HasPrefix(item.Image.URL, "https://") {
		a.ImageURL = item.Image.URL
	}
	for _, enc := range item.Enclosures {
		if a.ImageURL != "" {
			break
		}
		if enc != nil && strings.HasPrefix(enc.Type, "image/") && strings.HasPrefix(enc.URL, "https://") {
			a.ImageURL = enc.URL
		}
	}

	if item.PublishedParsed != nil {
		t := item.PublishedParsed.UTC()
		a.PublishedAt = &t
	} else if item.UpdatedParsed != nil {
		t := item.UpdatedParsed.UTC()
		a.PublishedAt = &t
	}
	return a
}

// slugFromLink はパーマリンクの最後のパス要素をスラッグとして返す。
// https://magazin.example.de/2024/05/teilfolierung/ → teilfolierung
func slugFromLink(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	p := strings.TrimRight(u.Path, "/")
	if p == "" {
		return ""
	}
	return path.Base(p)
}
