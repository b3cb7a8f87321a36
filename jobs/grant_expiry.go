package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/clubspace/clubspace/internal/jobs"
)

// GrantExpirer deactivates expired permission grants.
type GrantExpirer interface {
	ExpireGrants(ctx context.Context) (int, error)
}

// GrantExpiryJob sweeps permission grants whose expiry has passed.
type GrantExpiryJob struct {
	Grants  GrantExpirer
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewGrantExpiryJob initialises the grant expiry handler.
func NewGrantExpiryJob(grants GrantExpirer, logger *slog.Logger, metrics *jobmetrics.Metrics) *GrantExpiryJob {
	return &GrantExpiryJob{Grants: grants, Logger: logger, Metrics: metrics}
}

// Handle executes the sweep.
func (j *GrantExpiryJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Grants == nil {
		return errors.New("grant expiry: handler not configured")
	}
	logger := j.Logger
	if logger == nil {
		logger = slog.Default()
	}
	start := time.Now()
	return j.Metrics.Run(TaskPermissionsExpire, func() (int, error) {
		n, err := j.Grants.ExpireGrants(ctx)
		if err != nil {
			logger.Error("grant expiry failed", slog.Any("error", err))
			return 0, err
		}
		logger.Info("grant expiry completed", slog.Int("users", n), slog.Duration("duration", time.Since(start)))
		return n, nil
	})
}
