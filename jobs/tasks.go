package jobs

import (
	"context"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/helios-suite/helios/internal/jobs"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeSweepExpired deactivates role assignments past their expiry.
	TaskTypeSweepExpired = "authz:sweep_expired"
	// TaskTypeCatalogReload rebuilds the role catalog snapshot.
	TaskTypeCatalogReload = "catalog:reload"
)

// ExpiredSweeper retires assignments whose expiry has passed.
type ExpiredSweeper interface {
	DeactivateExpired(ctx context.Context, now time.Time) (int64, error)
}

// CatalogReloader rebuilds the descriptor snapshot.
type CatalogReloader interface {
	Reload(ctx context.Context) error
}

// NewSweepExpiredTask constructs the sweep task.
func NewSweepExpiredTask() *asynq.Task {
	return asynq.NewTask(TaskTypeSweepExpired, nil)
}

// NewCatalogReloadTask constructs the catalog reload task.
func NewCatalogReloadTask() *asynq.Task {
	return asynq.NewTask(TaskTypeCatalogReload, nil)
}

// HandleSweepExpired builds the handler for TaskTypeSweepExpired. Expiry is
// enforced on every read; the sweep keeps the assignment table tidy.
func HandleSweepExpired(sweeper ExpiredSweeper, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("sweep_expired")
		retired, err := sweeper.DeactivateExpired(ctx, time.Now())
		if err == nil && retired > 0 {
			logger.Info("expired assignments retired", slog.Int64("count", retired))
		}
		return tracker.End(err)
	}
}

// HandleCatalogReload builds the handler for TaskTypeCatalogReload.
func HandleCatalogReload(catalog CatalogReloader, metrics *jobmetrics.Metrics, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, _ *asynq.Task) error {
		tracker := metrics.Track("catalog_reload")
		err := catalog.Reload(ctx)
		if err == nil {
			logger.Info("role catalog reloaded")
		}
		return tracker.End(err)
	}
}
