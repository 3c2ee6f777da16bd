// Package beat drives the once-per-day accrual and interest payment cycle.
// A beat carries the date to process; accrual runs first and its returned
// date feeds the payment scheduler.
package beat

import (
	"context"
	"log/slog"
	"time"

	"github.com/ledgerline/deposit-core/internal/accrual"
	"github.com/ledgerline/deposit-core/internal/payment"
)

// Runner executes one daily cycle.
type Runner struct {
	engine    *accrual.Engine
	scheduler *payment.Scheduler
	logger    *slog.Logger
}

// NewRunner constructs a Runner.
func NewRunner(logger *slog.Logger, engine *accrual.Engine, scheduler *payment.Scheduler) *Runner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{engine: engine, scheduler: scheduler, logger: logger}
}

// Run accrues interest for the given date and then pays out any products
// whose interest period ends on it. A replayed date surfaces the accrual
// engine's conflict without touching payments.
func (r *Runner) Run(ctx context.Context, date time.Time, actor string) error {
	accrued, err := r.engine.Run(ctx, date, actor)
	if err != nil {
		return err
	}
	r.logger.Info("accrual complete", slog.String("date", accrued.Format("2006-01-02")))
	return r.scheduler.Run(ctx, accrued, actor)
}
