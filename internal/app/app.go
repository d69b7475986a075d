package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/redis/go-redis/v9"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/admin"
	"github.com/hitoshi/wrapmag/internal/auth"
	"github.com/hitoshi/wrapmag/internal/config"
	"github.com/hitoshi/wrapmag/internal/dashboard"
	"github.com/hitoshi/wrapmag/internal/database"
	"github.com/hitoshi/wrapmag/internal/directory"
	"github.com/hitoshi/wrapmag/internal/handler"
	"github.com/hitoshi/wrapmag/internal/logger"
	"github.com/hitoshi/wrapmag/internal/magazine"
	"github.com/hitoshi/wrapmag/internal/metrics"
	"github.com/hitoshi/wrapmag/internal/middleware"
	"github.com/hitoshi/wrapmag/internal/model"
	"github.com/hitoshi/wrapmag/internal/repository"
	"github.com/hitoshi/wrapmag/internal/security"
	"github.com/hitoshi/wrapmag/internal/worker"
	"github.com/hitoshi/wrapmag/internal/worker/cleanup"
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	return cfg, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = "8080"
		}
		return runHealthcheck(port)
	}

	cfg, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	slog.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("base_url", cfg.BaseURL),
	)

	switch cmd {
	case CommandServe:
		return runServe(cfg)
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	case CommandSearch:
		return runSearchCommand(cfg, args[1:])
	default:
		return runServe(cfg)
	}
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	// 2. リポジトリの初期化
	dbx := database.Wrap(db)
	userRepo := repository.NewPostgresUserRepo(db)
	identRepo := repository.NewPostgresIdentityRepo(db)
	profileRepo := repository.NewPostgresProfileRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(dbx)
	directoryRepo := repository.NewPostgresDirectoryRepo(dbx)

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	collector := metrics.NewCollector(reg)

	// 4. 認証
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	} else {
		slog.Info("google sign-in disabled")
	}
	authService := auth.NewService(
		oauthProvider, userRepo, identRepo, sessionRepo,
		auth.NewTokenIssuer(cfg.SessionSecret, cfg.AccessTokenTTL),
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge},
	)
	cookies := auth.CookieConfig{
		Domain:        cfg.CookieDomain,
		Secure:        cfg.CookieSecure,
		SessionMaxAge: cfg.SessionMaxAge,
	}

	// 5. アクセス判定
	paths := access.DefaultPaths()
	roles := access.NewRoleLookup(profileRepo)

	// 6. ドメインサービス
	directoryService := directory.NewService(directoryRepo, collector)
	adminService := admin.NewService(profileRepo, userRepo, sessionRepo)
	magazineService, err := newMagazineService(cfg, articleRepo, collector)
	if err != nil {
		return err
	}

	// 7. レート制限ストア
	limiter, closeLimiter, err := newLimiterStore(cfg)
	if err != nil {
		return err
	}
	defer closeLimiter()

	// 8. ルーターの構築
	renderer, err := handler.NewRenderer(authService)
	if err != nil {
		return fmt.Errorf("failed to load templates: %w", err)
	}

	deps := &handler.RouterDeps{
		Logger:       slog.Default(),
		HSTS:         cfg.CookieSecure,
		PasswordGate: cfg.PasswordGateEnabled(),
		Gate: middleware.GateDeps{
			Resolver:   middleware.NewSessionResolver(authService, cookies),
			Policy:     access.NewPolicy(paths),
			Roles:      roles,
			Metrics:    collector,
			Exclusions: middleware.DefaultGateExclusions(),
		},
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},
		RateLimiter: limiter,
		TrustProxy:  cfg.TrustProxy,

		Paths:          paths,
		Renderer:       renderer,
		HealthChecker:  db,
		Metrics:        collector,
		MetricsHandler: metrics.Handler(reg),

		AuthService: authService,
		Cookies:     cookies,

		DashboardRouter: dashboard.NewRouter(paths, roles, collector),
		Roles:           roles,
		Profiles:        directoryService,

		AdminService: adminService,
		Directory:    directoryService,
		Magazine:     magazineService,
		Password: handler.PasswordHandlerConfig{
			SitePassword: cfg.SitePassword,
			CookieSecure: cfg.CookieSecure,
		},
	}

	router := handler.NewRouter(deps)

	// 9. HTTPサーバーの起動
	server := &http.Server{
		Addr:         ":" + cfg.ServerPort,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return serveUntilSignal(server, "web server")
}

// runWorker はワーカーモードで起動する。
// マガジン同期（WORDPRESS_URL設定時のみ）と期限切れデータのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	// 1. DB接続
	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	// 2. リポジトリの初期化
	sessionRepo := repository.NewPostgresSessionRepo(db)
	articleRepo := repository.NewPostgresArticleRepo(database.Wrap(db))

	// 3. メトリクス
	reg := prometheus.NewRegistry()
	collector := metrics.NewCollector(reg)

	// 4. ジョブの構築
	cleanupJob := cleanup.NewCleanupJob(db, sessionRepo, slog.Default())
	jobs := []worker.Job{{
		Name:     "cleanup",
		Interval: cfg.SessionCleanupInterval,
		Run:      cleanupJob.Run,
	}}

	if cfg.WordPressURL != "" {
		client, err := newCMSClient(cfg)
		if err != nil {
			return err
		}
		syncer := magazine.NewSyncer(cfg.WordPressURL, articleRepo, client, security.NewContentSanitizer(), collector)
		jobs = append(jobs, worker.Job{
			Name:     "magazine-sync",
			Interval: cfg.MagazineSyncInterval,
			Run: func(ctx context.Context) error {
				_, err := syncer.Sync(ctx)
				return err
			},
		})
	} else {
		slog.Info("magazine sync disabled: WORDPRESS_URL is not set")
	}

	scheduler := worker.NewScheduler(slog.Default(), jobs...)

	// 5. メトリクスエンドポイント（ワーカーはルーターを持たない）
	metricsServer := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           metrics.SetupMetricsRoute(reg),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("metrics server error", slog.String("error", err.Error()))
		}
	}()

	// グレースフルシャットダウンのためのシグナルハンドリング
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	slog.Info("worker starting",
		slog.Duration("magazine_sync_interval", cfg.MagazineSyncInterval),
		slog.Duration("cleanup_interval", cfg.SessionCleanupInterval),
	)

	// スケジューラをメインgoroutineで実行（ブロッキング）
	scheduler.Start(ctx)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := metricsServer.Shutdown(shutdownCtx); err != nil {
		slog.Warn("metrics server shutdown failed", slog.String("error", err.Error()))
	}

	slog.Info("worker stopped gracefully")
	return nil
}

// runMigrate はデータベースマイグレーションを実行する。
// すべての未適用マイグレーションを順番に適用する。
func runMigrate(cfg *config.Config) error {
	slog.Info("running database migrations",
		slog.String("database_url", maskDatabaseURL(cfg.DatabaseURL)),
	)

	version, err := database.RunMigrations(cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("migration failed: %w", err)
	}

	slog.Info("database migrations completed successfully",
		slog.Uint64("version", uint64(version)),
	)
	return nil
}

// runSearchCommand は標準入力の各行を所在地として事業者ディレクトリを検索する。
// 使い方: wrapmag search <hersteller|folierer|haendler>
func runSearchCommand(cfg *config.Config, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: wrapmag search <hersteller|folierer|haendler>")
	}
	role, err := model.ParseBusinessRole(args[0])
	if err != nil {
		return err
	}

	db, err := openDatabase(cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	service := directory.NewService(repository.NewPostgresDirectoryRepo(database.Wrap(db)), nil)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runSearch(ctx, os.Stdin, os.Stdout, role, service, directory.DefaultDebounce)
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /healthz エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/healthz", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}

// openDatabase はDB接続を開き、疎通を確認する。
func openDatabase(cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// newCMSClient はCMSホストのみを許可するSSRF防止付きHTTPクライアントを生成する。
func newCMSClient(cfg *config.Config) (*http.Client, error) {
	guard, err := security.NewSSRFGuardForURL(cfg.WordPressURL)
	if err != nil {
		return nil, fmt.Errorf("invalid WORDPRESS_URL: %w", err)
	}
	return guard.NewSafeClient(cfg.CMSTimeout, cfg.CMSMaxSize), nil
}

// newMagazineService はマガジンサービスを生成する。
// WORDPRESS_URLが未設定の場合はキャッシュ済み記事のみを表示する。
func newMagazineService(cfg *config.Config, articles repository.ArticleRepository, m metrics.MetricsCollector) (*magazine.Service, error) {
	var posts magazine.PostFetcher
	if cfg.WordPressURL != "" {
		client, err := newCMSClient(cfg)
		if err != nil {
			return nil, err
		}
		posts = magazine.NewClient(cfg.WordPressURL, client, m)
	} else {
		slog.Info("magazine CMS disabled: WORDPRESS_URL is not set")
	}
	return magazine.NewService(articles, posts, security.NewContentSanitizer()), nil
}

// newLimiterStore はレート制限ストアを生成する。
// REDIS_URLが設定されている場合は複数インスタンスで共有できるRedisストアを使う。
func newLimiterStore(cfg *config.Config) (middleware.LimiterStore, func(), error) {
	limiterCfg := middleware.DefaultRateLimiterConfig(cfg.RateLimitAuth)

	if cfg.RedisURL == "" {
		store := middleware.NewMemoryLimiterStore(limiterCfg)
		return store, store.Stop, nil
	}

	opts, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, nil, fmt.Errorf("invalid REDIS_URL: %w", err)
	}
	client := redis.NewClient(opts)
	slog.Info("rate limiter uses redis", slog.String("addr", opts.Addr))

	return middleware.NewRedisLimiterStore(client, limiterCfg), func() {
		if err := client.Close(); err != nil {
			slog.Warn("failed to close redis client", slog.String("error", err.Error()))
		}
	}, nil
}

// serveUntilSignal はサーバーを起動し、SIGINTまたはSIGTERMを受信するとグレースフルシャットダウンする。
func serveUntilSignal(server *http.Server, name string) error {
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 1)
	go func() {
		slog.Info(name+" starting",
			slog.String("addr", server.Addr),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server listen error: %w", err)
	case <-stop:
	}
	slog.Info("shutting down " + name + "...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info(name + " stopped gracefully")
	return nil
}

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
