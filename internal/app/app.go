package app

import (
	"context"
	"database/sql"
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

	"github.com/hitoshi/devflow/internal/auth"
	"github.com/hitoshi/devflow/internal/collection"
	"github.com/hitoshi/devflow/internal/config"
	"github.com/hitoshi/devflow/internal/database"
	"github.com/hitoshi/devflow/internal/handler"
	"github.com/hitoshi/devflow/internal/logger"
	"github.com/hitoshi/devflow/internal/metrics"
	"github.com/hitoshi/devflow/internal/middleware"
	"github.com/hitoshi/devflow/internal/question"
	"github.com/hitoshi/devflow/internal/repository"
	"github.com/hitoshi/devflow/internal/security"
	"github.com/hitoshi/devflow/internal/user"
	"github.com/hitoshi/devflow/internal/vote"
	"github.com/hitoshi/devflow/internal/worker/cleanup"
)

const (
	shutdownTimeout = 30 * time.Second
	// minSweepInterval はウィジェット掃除間隔の下限。
	minSweepInterval = 30 * time.Second
)

// Init はアプリケーションの初期化を行う。
// 環境変数からConfigを読み込み、LOG_LEVELに従ってJSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	logger.SetupDefault(w)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたレベルでロガーを再設定
	logger.SetupDefaultWithLevel(w, logger.ParseLevel(cfg.LogLevel))

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
		slog.Bool("google_oauth", cfg.GoogleOAuthEnabled()),
	)

	switch cmd {
	case CommandWorker:
		return runWorker(cfg)
	case CommandMigrate:
		return runMigrate(cfg)
	default:
		return runServe(cfg)
	}
}

// openDB はDB接続を開き、DBが応答するまで待つ。
func openDB(ctx context.Context, cfg *config.Config) (*sql.DB, error) {
	db, err := database.Open(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	retry := database.DefaultRetryConfig()
	retry.Attempts = cfg.DBConnectAttempts
	if err := database.WaitReady(ctx, db, retry, slog.Default()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	return db, nil
}

// server はHTTPサーバーと、その寿命に合わせて動かすバックグラウンド資源をまとめたもの。
type server struct {
	http       *http.Server
	limiter    *middleware.RateLimiter
	registries *handler.Registries
	sweep      *cleanup.RegistrySweepJob
}

// newServer はリポジトリ・サービス・ハンドラーをワイヤリングしたserverを生成する。
// DBへの接続は行わない。
func newServer(cfg *config.Config, db *sql.DB, log *slog.Logger) *server {
	// 1. メトリクス
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	// 2. リポジトリの初期化
	userRepo := repository.NewPostgresUserRepo(db)
	accountRepo := repository.NewPostgresAccountRepo(db)
	sessionRepo := repository.NewPostgresSessionRepo(db)
	questionRepo := repository.NewPostgresQuestionRepo(db)
	answerRepo := repository.NewPostgresAnswerRepo(db)
	voteRepo := repository.NewPostgresVoteRepo(db)
	collectionRepo := repository.NewPostgresCollectionRepo(db)

	// 3. ドメインサービスの初期化
	var oauthProvider auth.OAuthProvider
	if cfg.GoogleOAuthEnabled() {
		oauthProvider = auth.NewGoogleOAuthProvider(auth.GoogleOAuthConfig{
			ClientID:     cfg.GoogleClientID,
			ClientSecret: cfg.GoogleClientSecret,
			RedirectURL:  cfg.GoogleRedirectURL,
		})
	}
	authService := auth.NewService(
		oauthProvider, userRepo, accountRepo, sessionRepo,
		auth.ServiceConfig{SessionMaxAge: cfg.SessionMaxAge, BcryptCost: cfg.BcryptCost},
	)
	voteService := vote.NewService(voteRepo)
	collectionService := collection.NewService(collectionRepo, questionRepo)
	questionService := question.NewService(
		questionRepo, answerRepo, voteService, collectionService,
		security.NewContentSanitizer(),
	)
	userService := user.NewService(userRepo, sessionRepo, voteRepo)

	// 4. ウィジェットのインスタンス置き場とレート制限
	registries := handler.NewRegistries(cfg.WidgetIdleTTL)
	limiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitVote),
	)

	// 5. ルーターの構築
	deps := &handler.RouterDeps{
		Logger:            log,
		HealthChecker:     db,
		SessionFinder:     sessionRepo,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		RateLimiter:       limiter,
		CSRF: middleware.CSRFConfig{
			CookieSecure: cfg.CookieSecure,
			CookieDomain: cfg.CookieDomain,
		},

		Metrics:  collector,
		Gatherer: reg,

		Cookies: handler.CookieConfig{
			BaseURL:       cfg.BaseURL,
			CookieDomain:  cfg.CookieDomain,
			CookieSecure:  cfg.CookieSecure,
			SessionMaxAge: cfg.SessionMaxAge,
		},
		Registries: registries,

		AuthService: authService,

		QuestionService: questionService,
		SavedLookup:     collectionService,
		VoteAction:      handler.NewVoteActionAdapter(voteService),
		SaveAction:      handler.NewSaveActionAdapter(collectionService),

		UserService: userService,
	}

	sweep := cleanup.NewRegistrySweepJob(map[string]cleanup.Sweeper{
		"forms": registries.Forms,
		"votes": registries.Votes,
		"saves": registries.Saves,
	}, log, collector)

	return &server{
		http: &http.Server{
			Addr:         ":" + cfg.ServerPort,
			Handler:      handler.NewRouter(deps),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		limiter:    limiter,
		registries: registries,
		sweep:      sweep,
	}
}

// sweepInterval はアイドルウィジェットを掃除する間隔を返す。
func sweepInterval(idleTTL time.Duration) time.Duration {
	if d := idleTTL / 2; d > minSweepInterval {
		return d
	}
	return minSweepInterval
}

// runServe はWebサーバーモードで起動する。
// DB接続を開き、全依存関係をワイヤリングし、HTTPサーバーを起動する。
// SIGINTまたはSIGTERMシグナルを受信するとグレースフルシャットダウンを行う。
func runServe(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established")

	srv := newServer(cfg, db, slog.Default())
	defer srv.limiter.Stop()

	// アイドルなウィジェットの掃除をバックグラウンドで実行
	go cleanup.Every(ctx, slog.Default(), "widget_sweep", sweepInterval(cfg.WidgetIdleTTL), srv.sweep.Run)

	errCh := make(chan error, 1)
	go func() {
		slog.Info("web server starting",
			slog.String("addr", srv.http.Addr),
		)
		if err := srv.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server listen error: %w", err)
		}
	case <-ctx.Done():
	}
	slog.Info("shutting down web server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.http.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	slog.Info("web server stopped gracefully")
	return nil
}

// worker はセッション掃除ジョブと、その計測値を公開するHTTPサーバーをまとめたもの。
type worker struct {
	job     *cleanup.SessionCleanupJob
	metrics *http.Server
}

// newWorker はセッション掃除ジョブを実メトリクスに接続して生成する。
// /metrics はWORKER_METRICS_PORTで公開する。
func newWorker(cfg *config.Config, sessions cleanup.SessionDeleter, log *slog.Logger) *worker {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	collector := metrics.NewCollector(reg)

	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler(reg))

	return &worker{
		job: cleanup.NewSessionCleanupJob(sessions, log, collector),
		metrics: &http.Server{
			Addr:              ":" + cfg.WorkerMetricsPort,
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
}

// runWorker はワーカーモードで起動する。
// DB接続を開き、期限切れセッションのクリーンアップを定期実行する。
// SIGINTまたはSIGTERMシグナルを受信するとシャットダウンする。
func runWorker(cfg *config.Config) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := openDB(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	slog.Info("database connection established (worker)")

	w := newWorker(cfg, repository.NewPostgresSessionRepo(db), slog.Default())

	go func() {
		if err := w.metrics.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker metrics server failed", slog.String("error", err.Error()))
		}
	}()

	slog.Info("worker starting",
		slog.Duration("session_cleanup_interval", cfg.SessionCleanupInterval),
		slog.String("metrics_port", cfg.WorkerMetricsPort),
	)

	// ブロッキングで実行し、シグナル受信で戻る
	cleanup.Every(ctx, slog.Default(), "session_cleanup", cfg.SessionCleanupInterval, w.job.Run)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := w.metrics.Shutdown(shutdownCtx); err != nil {
		slog.Error("worker metrics server shutdown failed", slog.String("error", err.Error()))
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

	slog.Info("database migrations completed successfully", slog.Uint64("schema_version", uint64(version)))
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/health", port)
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

// maskDatabaseURL はデータベースURLの認証情報をマスクする。
func maskDatabaseURL(url string) string {
	if len(url) > 20 {
		return url[:12] + "***@..."
	}
	return "***"
}
