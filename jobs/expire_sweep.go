package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"
)

// Expirer is the sweep surface the billing services expose. Sweeps are
// monotonic; re-running one never un-expires a document.
type Expirer interface {
	ExpireOverdue(ctx context.Context) (int64, error)
}

// IdempotencyCleaner prunes processed idempotency keys.
type IdempotencyCleaner interface {
	Cleanup(ctx context.Context, olderThan time.Duration) error
}

// ExpireSweepJob runs one expiry sweep per invocation.
type ExpireSweepJob struct {
	Name    string
	Expirer Expirer
	Logger  *slog.Logger
}

// NewExpireSweepJob initialises the sweep handler.
func NewExpireSweepJob(name string, expirer Expirer, logger *slog.Logger) *ExpireSweepJob {
	return &ExpireSweepJob{Name: name, Expirer: expirer, Logger: logger}
}

// Handle executes the sweep.
func (j *ExpireSweepJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Expirer == nil {
		return errors.New("expire sweep: handler not configured")
	}
	start := time.Now()
	expired, err := j.Expirer.ExpireOverdue(ctx)
	logger := j.logger()
	if err != nil {
		logger.Error("sweep failed", slog.Any("error", err))
		return err
	}
	logger.Info("sweep completed",
		slog.Int64("expired", expired),
		slog.Duration("duration", time.Since(start)),
	)
	return nil
}

func (j *ExpireSweepJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", j.Name))
	}
	return slog.Default().With(slog.String("job", j.Name))
}

// CleanupIdempotencyJob prunes idempotency keys older than the retention
// window.
type CleanupIdempotencyJob struct {
	Cleaner   IdempotencyCleaner
	Retention time.Duration
	Logger    *slog.Logger
}

// NewCleanupIdempotencyJob initialises the cleanup handler.
func NewCleanupIdempotencyJob(cleaner IdempotencyCleaner, retention time.Duration, logger *slog.Logger) *CleanupIdempotencyJob {
	if retention <= 0 {
		retention = 24 * time.Hour
	}
	return &CleanupIdempotencyJob{Cleaner: cleaner, Retention: retention, Logger: logger}
}

// Handle executes the cleanup.
func (j *CleanupIdempotencyJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Cleaner == nil {
		return errors.New("idempotency cleanup: handler not configured")
	}
	if err := j.Cleaner.Cleanup(ctx, j.Retention); err != nil {
		j.logger().Error("cleanup failed", slog.Any("error", err))
		return err
	}
	j.logger().Info("cleanup completed", slog.Duration("retention", j.Retention))
	return nil
}

func (j *CleanupIdempotencyJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskCleanupIdempotency))
	}
	return slog.Default().With(slog.String("job", TaskCleanupIdempotency))
}
