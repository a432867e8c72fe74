package app

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/hitoshi/devflow/internal/config"
)

type stubSessionDeleter struct {
	deleted int64
}

func (s *stubSessionDeleter) DeleteExpired(ctx context.Context) (int64, error) {
	return s.deleted, nil
}

func TestNewWorker_RecordsDeletedSessions(t *testing.T) {
	setTestEnv(t)
	t.Setenv("WORKER_METRICS_PORT", "9300")
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("config.Load: %v", err)
	}

	w := newWorker(cfg, &stubSessionDeleter{deleted: 4}, slog.New(slog.NewJSONHandler(io.Discard, nil)))
	if w.metrics.Addr != ":9300" {
		t.Errorf("metrics Addr = %q, want :9300", w.metrics.Addr)
	}

	if err := w.job.Run(context.Background()); err != nil {
		t.Fatalf("job.Run: %v", err)
	}

	ts := httptest.NewServer(w.metrics.Handler)
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/metrics")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body, _ := io.ReadAll(resp.Body)
	// 削除件数がワーカーの/metricsに現れること
	if !strings.Contains(string(body), "devflow_sessions_deleted_total 4") {
		t.Errorf("sessions deleted counter not exposed:\n%s", body)
	}
}
