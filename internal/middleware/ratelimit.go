package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/hitoshi/wrapmag/internal/model"
)

// LimiterStore はキー（スコープ + クライアントIP）ごとのレート制限状態を管理する。
type LimiterStore interface {
	// Allow はリクエストを許可するかを返す。拒否する場合は再試行までの待ち時間も返す。
	Allow(ctx context.Context, key string) (bool, time.Duration, error)
}

// RateLimiterConfig はレート制限の設定を保持する。
type RateLimiterConfig struct {
	PerMinute       int           // 1分あたりの許可リクエスト数
	CleanupInterval time.Duration // 期限切れエントリのクリーンアップ間隔（メモリストアのみ）
}

// DefaultRateLimiterConfig はデフォルトのレート制限設定を返す。
// 認証系POSTとパスワードゲートは 10 req/min/IP。
func DefaultRateLimiterConfig(perMinute int) RateLimiterConfig {
	if perMinute <= 0 {
		perMinute = 10
	}
	return RateLimiterConfig{
		PerMinute:       perMinute,
		CleanupInterval: 5 * time.Minute,
	}
}

// keyLimiter はキーごとのレートリミッターとアクセス時刻を保持する。
type keyLimiter struct {
	limiter    *rate.Limiter
	lastAccess time.Time
}

// MemoryLimiterStore はプロセス内のトークンバケットでレート制限を行う。
// 単一インスタンス構成向け。
type MemoryLimiterStore struct {
	config   RateLimiterConfig
	limit    rate.Limit
	mu       sync.Mutex
	limiters map[string]*keyLimiter
	stopCh   chan struct{}
	stopOnce sync.Once
}

// NewMemoryLimiterStore は新しいMemoryLimiterStoreを生成する。
// バックグラウンドで期限切れエントリのクリーンアップを開始する。
func NewMemoryLimiterStore(config RateLimiterConfig) *MemoryLimiterStore {
	s := &MemoryLimiterStore{
		config:   config,
		limit:    rate.Limit(float64(config.PerMinute) / 60.0),
		limiters: make(map[string]*keyLimiter),
		stopCh:   make(chan struct{}),
	}

	go s.cleanupLoop()

	return s
}

// Stop はクリーンアップのバックグラウンドゴルーチンを停止する。
func (s *MemoryLimiterStore) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
}

// Allow はトークンバケットから1トークンを消費できるかを返す。
func (s *MemoryLimiterStore) Allow(_ context.Context, key string) (bool, time.Duration, error) {
	s.mu.Lock()
	kl, exists := s.limiters[key]
	if !exists {
		kl = &keyLimiter{limiter: rate.NewLimiter(s.limit, s.config.PerMinute)}
		s.limiters[key] = kl
	}
	kl.lastAccess = time.Now()
	s.mu.Unlock()

	if kl.limiter.Allow() {
		return true, 0, nil
	}
	return false, retryAfter(s.limit), nil
}

// Len は現在管理されているエントリ数を返す。テスト用。
func (s *MemoryLimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

// cleanupLoop はバックグラウンドで期限切れエントリを定期的にクリーンアップする。
func (s *MemoryLimiterStore) cleanupLoop() {
	ticker := time.NewTicker(s.config.CleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.cleanup()
		case <-s.stopCh:
			return
		}
	}
}

// cleanup は最終アクセス時刻がCleanupIntervalの2倍を超えたエントリを削除する。
func (s *MemoryLimiterStore) cleanup() {
	ttl := s.config.CleanupInterval * 2
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()
	for key, kl := range s.limiters {
		if now.Sub(kl.lastAccess) > ttl {
			delete(s.limiters, key)
		}
	}
}

// RedisLimiterStore はRedisの固定ウィンドウカウンタでレート制限を行う。
// 複数インスタンス構成でも制限を共有できる。
type RedisLimiterStore struct {
	client    redis.UniversalClient
	perMinute int
	prefix    string
	now       func() time.Time
}

// NewRedisLimiterStore はRedisLimiterStoreを生成する。
func NewRedisLimiterStore(client redis.UniversalClient, config RateLimiterConfig) *RedisLimiterStore {
	return &RedisLimiterStore{
		client:    client,
		perMinute: config.PerMinute,
		prefix:    "wrapmag:ratelimit:",
		now:       time.Now,
	}
}

// Allow は現在の1分ウィンドウのカウンタを増やし、上限以内かを返す。
func (s *RedisLimiterStore) Allow(ctx context.Context, key string) (bool, time.Duration, error) {
	now := s.now()
	window := now.Truncate(time.Minute)
	redisKey := fmt.Sprintf("%s%s:%d", s.prefix, key, window.Unix())

	pipe := s.client.TxPipeline()
	incr := pipe.Incr(ctx, redisKey)
	pipe.Expire(ctx, redisKey, 2*time.Minute)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, 0, fmt.Errorf("failed to increment rate limit counter: %w", err)
	}

	if incr.Val() > int64(s.perMinute) {
		return false, window.Add(time.Minute).Sub(now), nil
	}
	return true, 0, nil
}

// NewRateLimitMiddleware はクライアントIPごとのレート制限ミドルウェアを返す。
// scopeはキーの名前空間（"auth", "password"など）。
// ストアに障害がある場合はリクエストを通す（ログのみ記録）。
func NewRateLimitMiddleware(store LimiterStore, scope string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := clientIP(r)

			allowed, wait, err := store.Allow(r.Context(), scope+":"+ip)
			if err != nil {
				slog.Error("rate limiter store failed",
					slog.String("scope", scope),
					slog.String("error", err.Error()),
				)
				next.ServeHTTP(w, r)
				return
			}

			if !allowed {
				writeRateLimitResponse(w, wait)
				slog.Warn("rate limit exceeded",
					slog.String("client_ip", ip),
					slog.String("limit_type", scope),
				)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

// clientIP はRemoteAddrからクライアントIPを取り出す。
// X-Forwarded-For等のヘッダーは参照しない。信頼できるプロキシ配下の場合のみ
// chiのRealIPミドルウェアでRemoteAddrを書き換えておく（TRUST_PROXY）。
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

// retryAfter は1トークンが補充されるまでの時間を返す。
func retryAfter(limit rate.Limit) time.Duration {
	if limit <= 0 {
		return time.Minute
	}
	return time.Duration(float64(time.Second) / float64(limit))
}

// writeRateLimitResponse は429 Too Many Requestsレスポンスを書き込む。
// Retry-Afterヘッダーには再試行までの秒数（切り上げ）を設定する。
func writeRateLimitResponse(w http.ResponseWriter, wait time.Duration) {
	retryAfterSec := int(math.Ceil(wait.Seconds()))
	if retryAfterSec < 1 {
		retryAfterSec = 1
	}

	w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
	WriteErrorResponse(w, http.StatusTooManyRequests, model.NewRateLimitedError())
}
