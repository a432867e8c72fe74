package handler

import (
	"embed"
	"io/fs"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/hitoshi/devflow/internal/metrics"
	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/routes"
	"github.com/hitoshi/devflow/internal/widget"
)

//go:embed static
var staticFiles embed.FS

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	Logger *slog.Logger

	// ミドルウェア依存
	HealthChecker     HealthChecker
	SessionFinder     middleware.SessionFinder
	CORSAllowedOrigin string
	RateLimiter       *middleware.RateLimiter
	CSRF              middleware.CSRFConfig

	// メトリクス（nilの場合は収集しない）
	Metrics  metrics.MetricsCollector
	Gatherer prometheus.Gatherer

	Cookies    CookieConfig
	Registries *Registries

	// 認証
	AuthService AuthServiceInterface

	// 質問・投票・保存
	QuestionService QuestionServiceInterface
	SavedLookup     SavedLookup
	VoteAction      widget.VoteAction
	SaveAction      widget.SaveAction

	// ユーザー
	UserService UserServiceInterface
}

// NewRouter は全エンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	RequestID → RealIP → Recovery → Logging → Metrics → SecurityHeaders
//	  → CSRF → Session → RateLimit(General)
//
// /health、/metrics、静的ファイルはCSRF以降のチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	collector := deps.Metrics
	if collector == nil {
		collector = metrics.NopCollector{}
	}

	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.NewRecoveryMiddleware())
	r.Use(middleware.NewLoggingMiddleware(logger))
	r.Use(metrics.NewHTTPMiddleware(collector))
	r.Use(middleware.NewSecurityHeadersMiddleware())

	authHandler := NewAuthHandler(deps.AuthService, deps.Cookies, deps.Registries, collector)
	questionHandler := NewQuestionHandler(QuestionHandlerDeps{
		Questions:  deps.QuestionService,
		Saved:      deps.SavedLookup,
		Profiles:   deps.UserService,
		VoteAction: deps.VoteAction,
		SaveAction: deps.SaveAction,
		Registries: deps.Registries,
		Metrics:    collector,
		Cookies:    deps.Cookies,
	})
	userHandler := NewUserHandler(deps.UserService, deps.Cookies)

	// --- チェーン外のルート ---
	r.Method(http.MethodGet, "/health", NewHealthHandler(deps.HealthChecker))
	if deps.Gatherer != nil {
		r.Method(http.MethodGet, "/metrics", metrics.Handler(deps.Gatherer))
	}
	static, err := fs.Sub(staticFiles, "static")
	if err != nil {
		panic(err)
	}
	r.Handle("/icons/*", http.FileServer(http.FS(static)))

	// --- 画面とAPI ---
	// ミドルウェアスタック: CSRF → Session → RateLimit(General)
	r.Group(func(r chi.Router) {
		r.Use(middleware.NewCSRFMiddleware(deps.CSRF))
		r.Use(middleware.NewSessionMiddleware(deps.SessionFinder))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get(routes.Home, questionHandler.Home)

		r.Get(routes.SignIn, authHandler.SignInPage)
		r.Post(routes.SignIn, authHandler.SignIn)
		r.Get(routes.SignUp, authHandler.SignUpPage)
		r.Post(routes.SignUp, authHandler.SignUp)
		r.Post(routes.Logout, authHandler.Logout)

		// OAuthフロー
		r.Get("/auth/google/login", authHandler.GoogleLogin)
		r.Get("/auth/google/callback", authHandler.GoogleCallback)

		r.Get("/questions/{id}", questionHandler.Question)

		// 投票・保存（投票専用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.VoteMiddleware())
			r.Post("/questions/{id}/votes", questionHandler.VoteQuestion)
			r.Post("/questions/{id}/save", questionHandler.SaveQuestion)
			r.Post("/answers/{id}/votes", questionHandler.VoteAnswer)
		})

		r.Route("/api", func(r chi.Router) {
			r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))

			r.Method(http.MethodGet, "/csrf-token", middleware.NewCSRFTokenHandler(deps.CSRF))

			// ユーザー管理（ログイン必須）
			r.Route("/users", func(r chi.Router) {
				r.Use(middleware.RequireUser)
				r.Get("/me", userHandler.Me)
				r.Delete("/me", userHandler.Withdraw)
			})
		})
	})

	return r
}
