// Package metrics はPrometheusメトリクスの収集と公開を提供する。
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/hitoshi/devflow/internal/notify"
)

// MetricsCollector はメトリクス収集のインターフェース。
// ハンドラーやワーカーから利用する。
type MetricsCollector interface {
	RecordVote(direction, outcome string)
	RecordSave(outcome string)
	RecordFormSubmission(kind, outcome string)
	RecordNotification(kind notify.Kind)
	RecordHTTPStatus(statusCode int)
	RecordActionLatency(action string, duration time.Duration)
	RecordSessionsDeleted(count int64)
	RecordInstancesEvicted(registry string, count int)
}

// Collector はPrometheusメトリクスを収集する実装。
type Collector struct {
	votes            *prometheus.CounterVec
	saves            *prometheus.CounterVec
	formSubmissions  *prometheus.CounterVec
	notifications    *prometheus.CounterVec
	httpStatus       *prometheus.CounterVec
	actionLatency    *prometheus.HistogramVec
	sessionsDeleted  prometheus.Counter
	instancesEvicted *prometheus.CounterVec
}

// NewCollector は新しいCollectorを生成し、指定されたレジストリにメトリクスを登録する。
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		votes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devflow_votes_total",
			Help: "投票操作の結果別の件数",
		}, []string{"direction", "outcome"}),
		saves: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devflow_question_saves_total",
			Help: "質問保存操作の結果別の件数",
		}, []string{"outcome"}),
		formSubmissions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devflow_form_submissions_total",
			Help: "認証フォーム送信の結果別の件数",
		}, []string{"kind", "outcome"}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devflow_notifications_total",
			Help: "ユーザーに表示した通知の種別ごとの件数",
		}, []string{"kind"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devflow_http_status_total",
			Help: "HTTPステータスコード別のレスポンス数",
		}, []string{"status_code"}),
		actionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "devflow_action_latency_seconds",
			Help:    "サーバーアクションのレイテンシ（秒）",
			Buckets: prometheus.DefBuckets,
		}, []string{"action"}),
		sessionsDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "devflow_sessions_deleted_total",
			Help: "クリーンアップで削除した期限切れセッションの合計数",
		}),
		instancesEvicted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "devflow_instances_evicted_total",
			Help: "アイドル状態で破棄したフォーム・ウィジェットインスタンスの数",
		}, []string{"registry"}),
	}

	reg.MustRegister(
		c.votes,
		c.saves,
		c.formSubmissions,
		c.notifications,
		c.httpStatus,
		c.actionLatency,
		c.sessionsDeleted,
		c.instancesEvicted,
	)

	return c
}

// RecordVote は投票操作の結果を記録する。
func (c *Collector) RecordVote(direction, outcome string) {
	c.votes.WithLabelValues(direction, outcome).Inc()
}

// RecordSave は質問保存操作の結果を記録する。
func (c *Collector) RecordSave(outcome string) {
	c.saves.WithLabelValues(outcome).Inc()
}

// RecordFormSubmission はフォーム送信の結果を記録する。
func (c *Collector) RecordFormSubmission(kind, outcome string) {
	c.formSubmissions.WithLabelValues(kind, outcome).Inc()
}

// RecordNotification は通知の表示を記録する。
func (c *Collector) RecordNotification(kind notify.Kind) {
	c.notifications.WithLabelValues(string(kind)).Inc()
}

// RecordHTTPStatus はHTTPステータスコードを記録する。
func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// RecordActionLatency はサーバーアクションのレイテンシを記録する。
func (c *Collector) RecordActionLatency(action string, duration time.Duration) {
	c.actionLatency.WithLabelValues(action).Observe(duration.Seconds())
}

// RecordSessionsDeleted は削除したセッション数を記録する。
func (c *Collector) RecordSessionsDeleted(count int64) {
	c.sessionsDeleted.Add(float64(count))
}

// RecordInstancesEvicted は破棄したインスタンス数を記録する。
func (c *Collector) RecordInstancesEvicted(registry string, count int) {
	c.instancesEvicted.WithLabelValues(registry).Add(float64(count))
}

// NotificationSink は通知件数を記録するnotify.Sinkを返す。
// notify.Teeで実際の出力先と組み合わせて使う。
func NotificationSink(c MetricsCollector) notify.Sink {
	return notificationSink{c: c}
}

type notificationSink struct {
	c MetricsCollector
}

func (s notificationSink) Success(string) { s.c.RecordNotification(notify.KindSuccess) }
func (s notificationSink) Error(string)   { s.c.RecordNotification(notify.KindError) }

// NewHTTPMiddleware はレスポンスのステータスコードを記録するミドルウェアを返す。
func NewHTTPMiddleware(c MetricsCollector) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)

			status := ww.Status()
			if status == 0 {
				status = http.StatusOK
			}
			c.RecordHTTPStatus(status)
		})
	}
}

// Handler はPrometheusスクレイプ用のHTTPハンドラーを返す。
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}

// SetupMetricsRoute は/metricsエンドポイントを提供するHTTPハンドラーを返す。
func SetupMetricsRoute(gatherer prometheus.Gatherer) http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", Handler(gatherer))
	return mux
}

// NopCollector は何も記録しないMetricsCollector。
type NopCollector struct{}

func (NopCollector) RecordVote(string, string) {}
func (NopCollector) RecordSave(string) {}
func (NopCollector) RecordFormSubmission(string, string) {}
func (NopCollector) RecordNotification(notify.Kind) {}
func (NopCollector) RecordHTTPStatus(int) {}
func (NopCollector) RecordActionLatency(string, time.Duration) {}
func (NopCollector) RecordSessionsDeleted(int64) {}
func (NopCollector) RecordInstancesEvicted(string, int) {}

// compile-time interface check
var (
	_ MetricsCollector = (*Collector)(nil)
	_ MetricsCollector = NopCollector{}
)
