// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ミドルウェア、サービス層、ワーカーから利用する。
type MetricsCollector interface {
	RecordGateDecision(decision string)
	RecordRoleLookupFailure(source string)
	RecordDirectoryFailure(role string)
	RecordPasswordAttempt(success bool)
	RecordCMSStatus(statusCode int)
	RecordCMSLatency(duration time.Duration)
	RecordMagazineSync(result string)
	RecordArticlesUpserted(count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	gateDecisions    *prometheus.CounterVec
	roleLookupFail   *prometheus.CounterVec
	directoryFail    *prometheus.CounterVec
	passwordAttempts *prometheus.CounterVec
	cmsStatus        *prometheus.CounterVec
	cmsLatency       prometheus.Histogram
	magazineSync     *prometheus.CounterVec
	articlesUpserted prometheus.Counter
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		gateDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrapmag_gate_decisions_total",
			Help: "アクセス判定の結果別件数",
		}, []string{"decision"}),
		roleLookupFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrapmag_role_lookup_failures_total",
			Help: "ロール取得失敗の合計数",
		}, []string{"source"}),
		directoryFail: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrapmag_directory_query_failures_total",
			Help: "ディレクトリ取得失敗の合計数",
		}, []string{"role"}),
		passwordAttempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrapmag_password_gate_attempts_total",
			Help: "パスワードゲートの試行回数",
		}, []string{"result"}),
		cmsStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrapmag_cms_http_status_total",
			Help: "WordPress APIのHTTPステータスコード別レスポンス数",
		}, []string{"status_code"}),
		cmsLatency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "wrapmag_cms_latency_seconds",
			Help:    "WordPress APIリクエストのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}),
		magazineSync: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "wrapmag_magazine_sync_total",
			Help: "マガジン同期の結果別件数",
		}, []string{"result"}),
		articlesUpserted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "wrapmag_articles_upserted_total",
			Help: "アップサートされた記事の合計数",
		}),
	}

	reg.MustRegister(
		c.gateDecisions,
		c.roleLookupFail,
		c.directoryFail,
		c.passwordAttempts,
		c.cmsStatus,
		c.cmsLatency,
		c.magazineSync,
		c.articlesUpserted,
	)

	return c
}

// RecordGateDecision はアクセス判定の結果を記録する。
func (c *Collector) RecordGateDecision(decision string) {
	c.gateDecisions.WithLabelValues(decision).Inc()
}

// RecordRoleLookupFailure はロール取得失敗を記録する。sourceは"gate"または"dashboard"。
func (c *Collector) RecordRoleLookupFailure(source string) {
	c.roleLookupFail.WithLabelValues(source).Inc()
}

// RecordDirectoryFailure はディレクトリ取得失敗を記録する。
func (c *Collector) RecordDirectoryFailure(role string) {
	c.directoryFail.WithLabelValues(role).Inc()
}

// RecordPasswordAttempt はパスワードゲートの試行を記録する。
func (c *Collector) RecordPasswordAttempt(success bool) {
	result := "failure"
	if success {
		result = "success"
	}
	c.passwordAttempts.WithLabelValues(result).Inc()
}

// RecordCMSStatus はWordPress APIのHTTPステータスコードを記録する。
func (c *Collector) RecordCMSStatus(statusCode int) {
	c.cmsStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordCMSLatency はWordPress APIリクエストのレイテンシを記録する。
func (c *Collector) RecordCMSLatency(duration time.Duration) {
	c.cmsLatency.Observe(duration.Seconds())
}

// RecordMagazineSync はマガジン同期の結果（updated, not_modified, error）を記録する。
func (c *Collector) RecordMagazineSync(result string) {
	c.magazineSync.WithLabelValues(result).Inc()
}

// RecordArticlesUpserted はアップサートされた記事数を記録する。
func (c *Collector) RecordArticlesUpserted(count int) {
	c.articlesUpserted.Add(float64(count))
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
// ワーカープロセスのようにルーターを持たない場合に使用する。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// Nop は何も記録しないMetricsCollector。テストやメトリクス無効時に使用する。
type Nop struct{}

func (Nop) RecordGateDecision(string) {}
func (Nop) RecordRoleLookupFailure(string) {}
func (Nop) RecordDirectoryFailure(string) {}
func (Nop) RecordPasswordAttempt(bool) {}
func (Nop) RecordCMSStatus(int) {}
func (Nop) RecordCMSLatency(time.Duration) {}
func (Nop) RecordMagazineSync(string) {}
func (Nop) RecordArticlesUpserted(int) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = Nop{}
)
