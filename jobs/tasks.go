package jobs

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/ledgerline/deposit-core/internal/beat"
	"github.com/ledgerline/deposit-core/internal/shared"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskTypeDailyBeat runs one accrual and payment cycle.
	TaskTypeDailyBeat = "beat:daily"
	// TaskTypeIdempotencyCleanup prunes expired idempotency keys.
	TaskTypeIdempotencyCleanup = "idempotency:cleanup"
)

// DailyBeatPayload carries the identifier and target time of one beat. A zero
// ForTime means "yesterday", which is what the cron-scheduled task sends.
type DailyBeatPayload struct {
	Identifier string    `json:"identifier"`
	ForTime    time.Time `json:"for_time,omitempty"`
}

// NewDailyBeatTask constructs an Asynq task for one beat.
func NewDailyBeatTask(payload DailyBeatPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeDailyBeat, data), nil
}

// NewIdempotencyCleanupTask constructs the cleanup task.
func NewIdempotencyCleanupTask() *asynq.Task {
	return asynq.NewTask(TaskTypeIdempotencyCleanup, nil)
}

// DailyBeatHandler returns the Asynq handler driving the beat runner. A beat
// date that was already processed is dropped rather than retried.
func DailyBeatHandler(runner *beat.Runner, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var payload DailyBeatPayload
		if err := json.Unmarshal(t.Payload(), &payload); err != nil {
			return asynq.SkipRetry
		}
		forTime := payload.ForTime
		if forTime.IsZero() {
			forTime = time.Now().UTC().AddDate(0, 0, -1)
		}
		err := runner.Run(ctx, forTime, "beat:"+payload.Identifier)
		if err == nil {
			return nil
		}
		if shared.KindOf(err) == shared.KindConflict {
			logger.Warn("beat already processed",
				slog.String("date", forTime.Format("2006-01-02")))
			return asynq.SkipRetry
		}
		logger.Error("daily beat", slog.Any("error", err))
		return err
	}
}

// IdempotencyCleanupHandler prunes idempotency keys older than the retention
// window.
func IdempotencyCleanupHandler(store *shared.IdempotencyStore, retention time.Duration, logger *slog.Logger) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		if err := store.Cleanup(ctx, retention); err != nil {
			logger.Error("idempotency cleanup", slog.Any("error", err))
			return err
		}
		logger.Info("idempotency cleanup", slog.Duration("retention", retention))
		return nil
	}
}
