package cleanup

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync/atomic"
	"testing"
	"time"
)

type mockSessionDeleter struct {
	deleteExpiredFn func(ctx context.Context) (int64, error)
}

func (m *mockSessionDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	return m.deleteExpiredFn(ctx)
}

type mockSweeper struct {
	evicted int
	calls   int
}

func (m *mockSweeper) Sweep() int {
	m.calls++
	return m.evicted
}

type mockRecorder struct {
	sessionsDeleted int64
	evicted         map[string]int
}

func (m *mockRecorder) RecordSessionsDeleted(n int64) { m.sessionsDeleted += n }

func (m *mockRecorder) RecordInstancesEvicted(registry string, n int) {
	if m.evicted == nil {
		m.evicted = make(map[string]int)
	}
	m.evicted[registry] += n
}

func newTestLogger(buf *bytes.Buffer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(buf, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
}

// lastLogEntry はバッファ末尾のJSONログを1件パースする。
func lastLogEntry(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	var entry map[string]any
	if err := json.Unmarshal([]byte(lines[len(lines)-1]), &entry); err != nil {
		t.Fatalf("ログのパースに失敗: %v", err)
	}
	return entry
}

func TestSessionCleanupJob_Run(t *testing.T) {
	t.Run("削除件数をログとメトリクスに記録する", func(t *testing.T) {
		var buf bytes.Buffer
		rec := &mockRecorder{}
		job := NewSessionCleanupJob(&mockSessionDeleter{
			deleteExpiredFn: func(ctx context.Context) (int64, error) { return 7, nil },
		}, newTestLogger(&buf), rec)

		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if rec.sessionsDeleted != 7 {
			t.Errorf("sessionsDeleted = %d, want 7", rec.sessionsDeleted)
		}

		entry := lastLogEntry(t, &buf)
		if entry["msg"] != "セッションクリーンアップジョブが完了しました" {
			t.Errorf("msg = %v", entry["msg"])
		}
		if entry["deleted_count"] != float64(7) {
			t.Errorf("deleted_count = %v, want 7", entry["deleted_count"])
		}
		if _, ok := entry["duration_ms"]; !ok {
			t.Error("duration_ms がログに含まれていない")
		}
	})

	t.Run("削除に失敗した場合はエラーを返しERRORログを出す", func(t *testing.T) {
		var buf bytes.Buffer
		rec := &mockRecorder{}
		wantErr := errors.New("connection refused")
		job := NewSessionCleanupJob(&mockSessionDeleter{
			deleteExpiredFn: func(ctx context.Context) (int64, error) { return 0, wantErr },
		}, newTestLogger(&buf), rec)

		if err := job.Run(context.Background()); !errors.Is(err, wantErr) {
			t.Fatalf("Run() error = %v, want %v", err, wantErr)
		}
		if rec.sessionsDeleted != 0 {
			t.Errorf("失敗時にメトリクスを記録してはならない: %d", rec.sessionsDeleted)
		}
		entry := lastLogEntry(t, &buf)
		if entry["level"] != "ERROR" {
			t.Errorf("level = %v, want ERROR", entry["level"])
		}
	})

	t.Run("メトリクスがnilでも動作する", func(t *testing.T) {
		var buf bytes.Buffer
		job := NewSessionCleanupJob(&mockSessionDeleter{
			deleteExpiredFn: func(ctx context.Context) (int64, error) { return 1, nil },
		}, newTestLogger(&buf), nil)

		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
	})
}

func TestRegistrySweepJob_Run(t *testing.T) {
	t.Run("全レジストリを掃除し破棄件数を記録する", func(t *testing.T) {
		var buf bytes.Buffer
		rec := &mockRecorder{}
		votes := &mockSweeper{evicted: 3}
		saves := &mockSweeper{evicted: 0}
		forms := &mockSweeper{evicted: 2}
		job := NewRegistrySweepJob(map[string]Sweeper{
			"votes": votes,
			"saves": saves,
			"forms": forms,
		}, newTestLogger(&buf), rec)

		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}

		for name, s := range map[string]*mockSweeper{"votes": votes, "saves": saves, "forms": forms} {
			if s.calls != 1 {
				t.Errorf("%s: Sweep() calls = %d, want 1", name, s.calls)
			}
		}
		if rec.evicted["votes"] != 3 || rec.evicted["forms"] != 2 {
			t.Errorf("evicted = %v", rec.evicted)
		}
		if _, ok := rec.evicted["saves"]; ok {
			t.Error("破棄0件のレジストリは記録しない")
		}

		entry := lastLogEntry(t, &buf)
		if entry["evicted_count"] != float64(5) {
			t.Errorf("evicted_count = %v, want 5", entry["evicted_count"])
		}
	})

	t.Run("破棄0件の場合はログを出さない", func(t *testing.T) {
		var buf bytes.Buffer
		job := NewRegistrySweepJob(map[string]Sweeper{
			"votes": &mockSweeper{},
		}, newTestLogger(&buf), nil)

		if err := job.Run(context.Background()); err != nil {
			t.Fatalf("Run() error = %v", err)
		}
		if buf.Len() != 0 {
			t.Errorf("ログが出力された: %s", buf.String())
		}
	})

	t.Run("キャンセル済みコンテキストでは掃除しない", func(t *testing.T) {
		var buf bytes.Buffer
		s := &mockSweeper{evicted: 1}
		job := NewRegistrySweepJob(map[string]Sweeper{"votes": s}, newTestLogger(&buf), nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := job.Run(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("Run() error = %v, want context.Canceled", err)
		}
		if s.calls != 0 {
			t.Errorf("Sweep() calls = %d, want 0", s.calls)
		}
	})
}

func TestEvery(t *testing.T) {
	t.Run("起動直後に実行しキャンセルで停止する", func(t *testing.T) {
		var buf bytes.Buffer
		var calls atomic.Int32
		ctx, cancel := context.WithCancel(context.Background())

		done := make(chan struct{})
		go func() {
			Every(ctx, newTestLogger(&buf), "test", 5*time.Millisecond, func(context.Context) error {
				calls.Add(1)
				return nil
			})
			close(done)
		}()

		deadline := time.After(2 * time.Second)
		for calls.Load() < 2 {
			select {
			case <-deadline:
				t.Fatalf("calls = %d, want >= 2", calls.Load())
			case <-time.After(time.Millisecond):
			}
		}
		cancel()

		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("Every がキャンセル後に停止しなかった")
		}
		if !strings.Contains(buf.String(), "定期ジョブを停止しました") {
			t.Errorf("停止ログがない: %s", buf.String())
		}
	})

	t.Run("ジョブのエラーでループは止まらない", func(t *testing.T) {
		var buf bytes.Buffer
		var calls atomic.Int32
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		go Every(ctx, newTestLogger(&buf), "failing", 5*time.Millisecond, func(context.Context) error {
			calls.Add(1)
			return errors.New("boom")
		})

		deadline := time.After(2 * time.Second)
		for calls.Load() < 3 {
			select {
			case <-deadline:
				t.Fatalf("calls = %d, want >= 3", calls.Load())
			case <-time.After(time.Millisecond):
			}
		}
	})
}
