package jobs

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	jobmetrics "github.com/helios-suite/helios/internal/jobs"
)

type fakeSweeper struct {
	retired int64
	err     error
}

func (f *fakeSweeper) DeactivateExpired(_ context.Context, _ time.Time) (int64, error) {
	return f.retired, f.err
}

type fakeReloader struct {
	calls int
	err   error
}

func (f *fakeReloader) Reload(_ context.Context) error {
	f.calls++
	return f.err
}

func TestHandleSweepExpired(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	handler := HandleSweepExpired(&fakeSweeper{retired: 3}, metrics, slog.Default())

	if err := handler(context.Background(), NewSweepExpiredTask()); err != nil {
		t.Fatalf("handler: %v", err)
	}
}

func TestHandleSweepExpiredError(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	handler := HandleSweepExpired(&fakeSweeper{err: errors.New("db down")}, metrics, slog.Default())

	if err := handler(context.Background(), NewSweepExpiredTask()); err == nil {
		t.Fatal("store failure must surface so the task retries")
	}
}

func TestHandleCatalogReload(t *testing.T) {
	metrics := jobmetrics.NewMetrics(prometheus.NewRegistry())
	reloader := &fakeReloader{}
	handler := HandleCatalogReload(reloader, metrics, slog.Default())

	if err := handler(context.Background(), NewCatalogReloadTask()); err != nil {
		t.Fatalf("handler: %v", err)
	}
	if reloader.calls != 1 {
		t.Fatalf("expected one reload, got %d", reloader.calls)
	}
}
