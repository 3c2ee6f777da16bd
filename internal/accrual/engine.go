package accrual

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	jobmetrics "github.com/ledgerline/deposit-core/internal/jobs"
	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/money"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
)

const journalType = "ACCR"

// IdempotencyGuard fences replayed beat dates. Delete rolls a key back when
// the fenced work fails, so the date stays retryable. Satisfied by
// shared.IdempotencyStore.
type IdempotencyGuard interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key string) error
}

// Engine computes one day's interest accrual for every accruable product.
type Engine struct {
	products    product.Repository
	ledger      ledger.Client
	accruals    Repository
	idempotency IdempotencyGuard
	audit       *shared.AuditLogger
	metrics     *jobmetrics.Metrics
	logger      *slog.Logger
	concurrency int
}

// EngineConfig collects the engine's dependencies.
type EngineConfig struct {
	Products    product.Repository
	Ledger      ledger.Client
	Accruals    Repository
	Idempotency IdempotencyGuard
	Audit       *shared.AuditLogger
	Metrics     *jobmetrics.Metrics
	Logger      *slog.Logger
	Concurrency int
}

// NewEngine constructs the accrual engine.
func NewEngine(cfg EngineConfig) *Engine {
	concurrency := cfg.Concurrency
	if concurrency < 1 {
		concurrency = 1
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		products:    cfg.Products,
		ledger:      cfg.Ledger,
		accruals:    cfg.Accruals,
		idempotency: cfg.Idempotency,
		audit:       cfg.Audit,
		metrics:     cfg.Metrics,
		logger:      logger,
		concurrency: concurrency,
	}
}

type balanceResult struct {
	instance product.Instance
	balance  decimal.Decimal
}

// Run accrues interest for the given calendar day and returns the accrual
// date, which drives the subsequent payment check. A date that was already
// processed returns shared.ErrBeatReplayed and performs nothing.
func (e *Engine) Run(ctx context.Context, date time.Time, actor string) (time.Time, error) {
	date = truncateDay(date)
	tracker := e.metrics.Track("accrual")

	key := "beat:" + date.Format("2006-01-02")
	if e.idempotency != nil {
		if err := e.idempotency.CheckAndInsert(ctx, key, "accrual"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return date, tracker.End(shared.ErrBeatReplayed)
			}
			return date, tracker.End(err)
		}
	}

	if err := e.runOnce(ctx, date, actor); err != nil {
		// Roll the beat key back so the date can be retried. Products that
		// completed before the failure keep their per-product fence and are
		// skipped on the rerun.
		e.rollbackKey(ctx, key)
		return date, tracker.End(err)
	}
	return date, tracker.End(nil)
}

func (e *Engine) runOnce(ctx context.Context, date time.Time, actor string) error {
	definitions, err := e.products.ListAccruable(ctx)
	if err != nil {
		return err
	}
	for _, def := range definitions {
		if err := e.accrueProduct(ctx, def, date, actor); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rollbackKey(ctx context.Context, key string) {
	if e.idempotency == nil {
		return
	}
	if err := e.idempotency.Delete(ctx, key); err != nil {
		e.logger.Error("idempotency key rollback failed, key stays fenced",
			slog.String("key", key), slog.Any("error", err))
	}
}

func (e *Engine) accrueProduct(ctx context.Context, def product.Definition, date time.Time, actor string) error {
	if !def.Accruable() {
		return nil
	}
	instances, err := e.products.ListActiveInstances(ctx, def.Identifier)
	if err != nil {
		return err
	}

	balances, skipped := e.fetchBalances(ctx, def, instances)
	e.metrics.AddSkipped("accrual", def.Identifier, skipped)

	days := DaysInYear(date)
	rate := money.Coalesce(def.InterestRate)
	var entries []Entry
	sum := decimal.Zero
	for _, res := range balances {
		if !res.balance.IsPositive() {
			continue
		}
		daily := DailyYield(res.balance, rate, def.PeriodsPerYear(), days)
		accrued := money.RoundHalfEven(daily, money.AccrualScale)
		if !accrued.IsPositive() {
			continue
		}
		entries = append(entries, Entry{
			AccrueAccount:   def.AccrueAccount,
			CustomerAccount: res.instance.AccountID,
			Amount:          accrued,
		})
		sum = sum.Add(accrued)
	}

	total := money.RoundHalfEven(sum, def.Currency.Scale)
	if !total.IsPositive() {
		return nil
	}

	// Per-product fence: a rerun of a rolled-back date must not repeat
	// products that already accumulated and posted.
	fence := "beat:" + date.Format("2006-01-02") + ":" + def.Identifier
	if e.idempotency != nil {
		if err := e.idempotency.CheckAndInsert(ctx, fence, "accrual"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				e.logger.Info("product already accrued for date",
					slog.String("product", def.Identifier),
					slog.String("date", date.Format("2006-01-02")))
				return nil
			}
			return err
		}
	}

	if err := e.accruals.Accumulate(ctx, entries...); err != nil {
		e.rollbackKey(ctx, fence)
		return err
	}

	// Aggregate posting happens once per product per run, after every
	// instance has been summed.
	entry := ledger.JournalEntry{
		TransactionIdentifier: "acru-" + uuid.New().String(),
		TransactionType:       journalType,
		TransactionDate:       date,
		Debtors:               []ledger.Debtor{{AccountNumber: def.CashAccount, Amount: total}},
		Creditors:             []ledger.Creditor{{AccountNumber: def.AccrueAccount, Amount: total}},
		Note:                  "daily interest accrual",
		Message:               def.Identifier,
		Clerk:                 actor,
	}
	if err := e.ledger.Post(ctx, entry); err != nil {
		e.compensate(ctx, def, date, fence, entries)
		return err
	}
	if e.audit != nil {
		_ = e.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "accrual.run",
			Entity:   "product_definition",
			EntityID: def.Identifier,
			Meta: map[string]any{
				"date":   date.Format("2006-01-02"),
				"amount": total.String(),
			},
			At: time.Now(),
		})
	}
	return nil
}

// compensate backs the day's accumulation out after a failed posting, then
// lifts the product fence so the rerun starts clean. If the back-out itself
// fails the fence stays, which keeps the rerun from doubling the rows.
func (e *Engine) compensate(ctx context.Context, def product.Definition, date time.Time, fence string, entries []Entry) {
	reversed := make([]Entry, len(entries))
	for i, entry := range entries {
		entry.Amount = entry.Amount.Neg()
		reversed[i] = entry
	}
	if err := e.accruals.Accumulate(ctx, reversed...); err != nil {
		e.logger.Error("accrual back-out failed, rows kept without a ledger posting",
			slog.String("product", def.Identifier),
			slog.String("date", date.Format("2006-01-02")),
			slog.Any("error", err))
		return
	}
	e.rollbackKey(ctx, fence)
}

// fetchBalances loads current balances for all instances. Lookups run in
// parallel up to the configured limit; a failed lookup is logged and the
// instance skipped for the day, so one bad account cannot block interest
// for the whole product.
func (e *Engine) fetchBalances(ctx context.Context, def product.Definition, instances []product.Instance) ([]balanceResult, int) {
	var (
		mu      sync.Mutex
		results []balanceResult
		skipped int
	)
	g := &errgroup.Group{}
	g.SetLimit(e.concurrency)
	for _, inst := range instances {
		if !inst.IsActive() {
			continue
		}
		inst := inst
		g.Go(func() error {
			account, err := e.ledger.FindAccount(ctx, inst.AccountID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				skipped++
				e.logger.Warn("skipping instance, balance lookup failed",
					slog.String("product", def.Identifier),
					slog.String("account", inst.AccountID),
					slog.Any("error", err))
				return nil
			}
			results = append(results, balanceResult{instance: inst, balance: account.Balance})
			return nil
		})
	}
	_ = g.Wait()
	return results, skipped
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
