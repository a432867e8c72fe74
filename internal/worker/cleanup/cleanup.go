// Package cleanup は期限切れセッションの削除とウィジェットインスタンスの掃除を行う
// バックグラウンドジョブを提供する。
package cleanup

import (
	"context"
	"log/slog"
	"sort"
	"time"
)

// SessionDeleter は期限切れセッションを削除するインターフェース。
type SessionDeleter interface {
	DeleteExpired(ctx context.Context) (int64, error)
}

// Sweeper はアイドル状態のインスタンスを破棄し、破棄した件数を返す。
type Sweeper interface {
	Sweep() int
}

// Recorder はクリーンアップ結果のメトリクスを記録する。
type Recorder interface {
	RecordSessionsDeleted(n int64)
	RecordInstancesEvicted(registry string, n int)
}

// SessionCleanupJob は期限切れセッションを定期的に削除するジョブ。
type SessionCleanupJob struct {
	sessions SessionDeleter
	logger   *slog.Logger
	metrics  Recorder
}

// NewSessionCleanupJob はSessionCleanupJobの新しいインスタンスを生成する。
// metricsはnilでもよい。
func NewSessionCleanupJob(sessions SessionDeleter, logger *slog.Logger, metrics Recorder) *SessionCleanupJob {
	return &SessionCleanupJob{sessions: sessions, logger: logger, metrics: metrics}
}

// Run は期限切れセッションを1回削除する。
func (j *SessionCleanupJob) Run(ctx context.Context) error {
	start := time.Now()

	deleted, err := j.sessions.DeleteExpired(ctx)
	if err != nil {
		j.logger.Error("セッションクリーンアップジョブが失敗しました",
			slog.String("error", err.Error()),
		)
		return err
	}

	if j.metrics != nil {
		j.metrics.RecordSessionsDeleted(deleted)
	}

	j.logger.Info("セッションクリーンアップジョブが完了しました",
		slog.Int64("deleted_count", deleted),
		slog.Float64("duration_ms", float64(time.Since(start).Milliseconds())),
	)
	return nil
}

// RegistrySweepJob は名前付きのレジストリからアイドルなインスタンスを破棄するジョブ。
type RegistrySweepJob struct {
	registries map[string]Sweeper
	logger     *slog.Logger
	metrics    Recorder
}

// NewRegistrySweepJob はRegistrySweepJobの新しいインスタンスを生成する。
func NewRegistrySweepJob(registries map[string]Sweeper, logger *slog.Logger, metrics Recorder) *RegistrySweepJob {
	return &RegistrySweepJob{registries: registries, logger: logger, metrics: metrics}
}

// Run は全レジストリを1回掃除する。エラーは返さない。
func (j *RegistrySweepJob) Run(ctx context.Context) error {
	names := make([]string, 0, len(j.registries))
	for name := range j.registries {
		names = append(names, name)
	}
	sort.Strings(names)

	total := 0
	for _, name := range names {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		n := j.registries[name].Sweep()
		total += n
		if j.metrics != nil && n > 0 {
			j.metrics.RecordInstancesEvicted(name, n)
		}
	}

	if total > 0 {
		j.logger.Info("アイドルなウィジェットを破棄しました",
			slog.Int("evicted_count", total),
		)
	}
	return nil
}

// Every はintervalごとにrunを実行する。ctxがキャンセルされるまで戻らない。
// 起動直後にも1回実行する。
func Every(ctx context.Context, logger *slog.Logger, name string, interval time.Duration, run func(context.Context) error) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	logger.Info("定期ジョブを開始しました",
		slog.String("job", name),
		slog.Duration("interval", interval),
	)

	// エラーはジョブ側でログ出力済み
	_ = run(ctx)

	for {
		select {
		case <-ctx.Done():
			logger.Info("定期ジョブを停止しました", slog.String("job", name))
			return
		case <-ticker.C:
			_ = run(ctx)
		}
	}
}
