package database

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Pinger はDBの疎通確認インターフェース。
type Pinger interface {
	PingContext(ctx context.Context) error
}

// RetryConfig は起動時の接続待ちの設定。
type RetryConfig struct {
	Attempts     int           // 試行回数の上限
	InitialDelay time.Duration // 初回の待ち時間
	MaxDelay     time.Duration // 待ち時間の上限
	PingTimeout  time.Duration // 1回あたりのタイムアウト
}

// DefaultRetryConfig は既定の接続待ち設定を返す。
// 0.5秒から2倍ずつ待ち、最大8秒、8回まで試行する。
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		Attempts:     8,
		InitialDelay: 500 * time.Millisecond,
		MaxDelay:     8 * time.Second,
		PingTimeout:  5 * time.Second,
	}
}

// Backoff はattempt回目（0始まり）の失敗後に待つ時間を返す。
func (c RetryConfig) Backoff(attempt int) time.Duration {
	delay := c.InitialDelay
	for i := 0; i < attempt; i++ {
		delay *= 2
		if delay > c.MaxDelay {
			return c.MaxDelay
		}
	}
	return delay
}

// WaitReady はDBが応答するまで指数バックオフでPingを繰り返す。
// 試行回数を使い切るかctxがキャンセルされた場合は最後のエラーを返す。
func WaitReady(ctx context.Context, db Pinger, cfg RetryConfig, logger *slog.Logger) error {
	attempts := cfg.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		pingCtx, cancel := context.WithTimeout(ctx, cfg.PingTimeout)
		lastErr = db.PingContext(pingCtx)
		cancel()
		if lastErr == nil {
			return nil
		}
		if attempt == attempts-1 {
			break
		}

		delay := cfg.Backoff(attempt)
		logger.Warn("データベースに接続できません。再試行します",
			slog.Int("attempt", attempt+1),
			slog.Duration("retry_in", delay),
			slog.String("error", lastErr.Error()),
		)

		select {
		case <-ctx.Done():
			return fmt.Errorf("failed to ping database: %w", ctx.Err())
		case <-time.After(delay):
		}
	}
	return fmt.Errorf("failed to ping database after %d attempts: %w", attempts, lastErr)
}
