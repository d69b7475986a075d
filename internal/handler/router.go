package handler

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/hitoshi/wrapmag/internal/access"
	"github.com/hitoshi/wrapmag/internal/auth"
	"github.com/hitoshi/wrapmag/internal/metrics"
	"github.com/hitoshi/wrapmag/internal/middleware"
	"github.com/hitoshi/wrapmag/internal/model"
)

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger       *slog.Logger
	HSTS         bool
	PasswordGate bool
	Gate         middleware.GateDeps
	CSRF         middleware.CSRFConfig
	RateLimiter  middleware.LimiterStore
	// TrustProxy が true の場合のみX-Forwarded-For / X-Real-IPでRemoteAddrを書き換える。
	TrustProxy bool

	// 共通
	Paths         access.Paths
	Renderer      *Renderer
	HealthChecker HealthChecker
	Metrics       metrics.MetricsCollector
	// MetricsHandler がnilの場合は/metricsを公開しない
	MetricsHandler http.Handler

	// 認証
	AuthService AuthServiceInterface
	Cookies     auth.CookieConfig

	// ダッシュボード
	DashboardRouter DashboardRouter
	Roles           RoleLookuper
	Profiles        OwnProfileService

	// 管理コンソール
	AdminService AdminServiceInterface

	// ディレクトリ
	Directory DirectoryLister

	// マガジン
	Magazine MagazineServiceInterface

	// パスワードゲート
	Password PasswordHandlerConfig
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → RealIP → RequestID → Logging → SecurityHeaders → PasswordGate → Gate → CSRF
//
// RealIPはTrustProxyが有効な場合のみ組み込む。無効時はRemoteAddrをそのままクライアントIPとする。
// ヘルスチェック・メトリクス・静的ファイル・パスワードAPIはゲートとCSRFの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}

	r := chi.NewRouter()

	r.Use(middleware.NewRecoveryMiddleware())
	if deps.TrustProxy {
		r.Use(chimw.RealIP)
	}
	r.Use(chimw.RequestID)
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(middleware.NewSecurityHeadersMiddleware(deps.HSTS))
	r.Use(middleware.NewPasswordGateMiddleware(middleware.DefaultPasswordGateConfig(deps.PasswordGate)))

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies, deps.Paths, deps.Renderer)
	dashboardHandler := NewDashboardHandler(deps.DashboardRouter, deps.Roles, deps.Profiles, deps.Paths, deps.Renderer)
	adminHandler := NewAdminHandler(deps.AdminService, deps.Roles, deps.Paths, deps.Renderer)
	directoryHandler := NewDirectoryHandler(deps.Directory, deps.Renderer)
	magazineHandler := NewMagazineHandler(deps.Magazine, deps.Renderer)
	passwordHandler := NewPasswordHandler(deps.Password, deps.Metrics, deps.Renderer)

	limit := func(scope string) func(http.Handler) http.Handler {
		if deps.RateLimiter == nil {
			return func(next http.Handler) http.Handler { return next }
		}
		return middleware.NewRateLimitMiddleware(deps.RateLimiter, scope)
	}

	// --- ゲート対象外のルート ---
	r.Get("/healthz", NewHealthHandler(deps.HealthChecker))
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}
	r.Handle("/static/*", StaticHandler())
	r.With(limit("password")).Post("/api/password", passwordHandler.Submit)

	// --- ゲート対象のルート ---
	// ミドルウェアスタック: Gate → CSRF
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewGateMiddleware(deps.Gate))
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))

		r.Get("/", magazineHandler.Home)
		r.Get("/password", passwordHandler.Page)

		// 認証
		r.Get(deps.Paths.Login, authHandler.LoginPage)
		r.With(limit("auth")).Post(deps.Paths.Login, authHandler.Login)
		r.Get(deps.Paths.Register, authHandler.RegisterPage)
		r.With(limit("auth")).Post(deps.Paths.Register, authHandler.Register)
		r.Post("/logout", authHandler.Logout)
		r.Route("/auth", func(r chi.Router) {
			r.With(limit("auth")).Get("/google/login", authHandler.GoogleLogin)
			r.Get("/callback", authHandler.Callback)
		})

		// ディレクトリ
		for _, role := range model.BusinessRoles {
			r.Get("/"+string(role), directoryHandler.Page(role))
		}
		r.Get("/api/directory/{role}", directoryHandler.List)

		// マガジン
		r.Route("/magazin", func(r chi.Router) {
			r.Get("/", magazineHandler.List)
			r.Get("/{slug}", magazineHandler.Article)
		})

		// ダッシュボード
		r.Route(deps.Paths.DashboardRoot, func(r chi.Router) {
			r.Get("/", dashboardHandler.Dashboard)

			// 管理コンソール（ゲートに加えてハンドラーでもsuperadminを確認）
			r.Get("/admin", adminHandler.Console)
			r.Get("/team", adminHandler.Team)
			r.Post("/admin/users/{id}/role", adminHandler.ChangeRole)
			r.Post("/admin/users/{id}/delete", adminHandler.DeleteAccount)

			// ロール別ダッシュボード
			r.Get("/{role}", dashboardHandler.RoleDashboard)
			r.Post("/{role}/profile", dashboardHandler.UpdateProfile)
		})
	})

	return r
}
