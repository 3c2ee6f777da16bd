package payment

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/ledgerline/deposit-core/internal/accrual"
	jobmetrics "github.com/ledgerline/deposit-core/internal/jobs"
	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/money"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
)

// Interest payout carries the ISO 20022-flavoured code for interest.
const journalType = "INTR"

// Scheduler pays accrued interest out when the accrual date closes a
// product's payment period.
type Scheduler struct {
	products product.Repository
	ledger   ledger.Client
	accruals accrual.Repository
	audit    *shared.AuditLogger
	metrics  *jobmetrics.Metrics
	logger   *slog.Logger
}

// SchedulerConfig collects the scheduler's dependencies.
type SchedulerConfig struct {
	Products product.Repository
	Ledger   ledger.Client
	Accruals accrual.Repository
	Audit    *shared.AuditLogger
	Metrics  *jobmetrics.Metrics
	Logger   *slog.Logger
}

// NewScheduler constructs the payment scheduler.
func NewScheduler(cfg SchedulerConfig) *Scheduler {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Scheduler{
		products: cfg.Products,
		ledger:   cfg.Ledger,
		accruals: cfg.Accruals,
		audit:    cfg.Audit,
		metrics:  cfg.Metrics,
		logger:   logger,
	}
}

// Run checks every active non-share product against the accrual date and
// realises outstanding accruals for the ones whose period ends on it.
func (s *Scheduler) Run(ctx context.Context, date time.Time, actor string) error {
	tracker := s.metrics.Track("payment")
	definitions, err := s.products.ListActivePayable(ctx)
	if err != nil {
		return tracker.End(err)
	}
	for _, def := range definitions {
		if !IsBoundary(def.Term.InterestPayable, date) {
			continue
		}
		if err := s.payProduct(ctx, def, date, actor); err != nil {
			return tracker.End(err)
		}
	}
	return tracker.End(nil)
}

func (s *Scheduler) payProduct(ctx context.Context, def product.Definition, date time.Time, actor string) error {
	entries, err := s.accruals.ListByAccrueAccount(ctx, def.AccrueAccount)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		amount := money.RoundHalfEven(entry.Amount, def.Currency.Scale)
		if !amount.IsPositive() {
			// Nothing payable at this scale; the row keeps accumulating
			// until a later boundary.
			continue
		}
		// Two journal posts and the row deletion form one logical payout.
		// The row is deleted last, so a failed post leaves it in place to
		// be retried on the next boundary rather than losing interest.
		release := ledger.JournalEntry{
			TransactionIdentifier: "intr-" + uuid.New().String(),
			TransactionType:       journalType,
			TransactionDate:       date,
			Debtors:               []ledger.Debtor{{AccountNumber: entry.AccrueAccount, Amount: amount}},
			Creditors:             []ledger.Creditor{{AccountNumber: def.ExpenseAccount, Amount: amount}},
			Note:                  "interest payment release",
			Message:               def.Identifier,
			Clerk:                 actor,
		}
		if err := s.ledger.Post(ctx, release); err != nil {
			return err
		}
		payout := ledger.JournalEntry{
			TransactionIdentifier: "intr-" + uuid.New().String(),
			TransactionType:       journalType,
			TransactionDate:       date,
			Debtors:               []ledger.Debtor{{AccountNumber: def.ExpenseAccount, Amount: amount}},
			Creditors:             []ledger.Creditor{{AccountNumber: entry.CustomerAccount, Amount: amount}},
			Note:                  "interest payment",
			Message:               def.Identifier,
			Clerk:                 actor,
		}
		if err := s.ledger.Post(ctx, payout); err != nil {
			return err
		}
		if err := s.accruals.Delete(ctx, entry.CustomerAccount); err != nil {
			return err
		}
		if s.audit != nil {
			_ = s.audit.Record(ctx, shared.AuditLog{
				Actor:    actor,
				Action:   "interest.pay",
				Entity:   "product_instance",
				EntityID: entry.CustomerAccount,
				Meta: map[string]any{
					"product": def.Identifier,
					"date":    date.Format("2006-01-02"),
					"amount":  amount.String(),
				},
				At: time.Now(),
			})
		}
	}
	return nil
}
