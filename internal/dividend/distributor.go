package dividend

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/accrual"
	jobmetrics "github.com/ledgerline/deposit-core/internal/jobs"
	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/money"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
)

const journalType = "DIVD"

// Dividends compound with fixed monthly periods regardless of the product's
// interest payable cadence.
const dividendPeriods = 12

// Distributor computes and pays retroactive dividends for a product.
type Distributor struct {
	products  product.Repository
	ledger    ledger.Client
	dividends Repository
	audit     *shared.AuditLogger
	metrics   *jobmetrics.Metrics
	logger    *slog.Logger
	now       func() time.Time
}

// DistributorConfig collects the distributor's dependencies.
type DistributorConfig struct {
	Products  product.Repository
	Ledger    ledger.Client
	Dividends Repository
	Audit     *shared.AuditLogger
	Metrics   *jobmetrics.Metrics
	Logger    *slog.Logger
}

// NewDistributor constructs a Distributor.
func NewDistributor(cfg DistributorConfig) *Distributor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{
		products:  cfg.Products,
		ledger:    cfg.Ledger,
		dividends: cfg.Dividends,
		audit:     cfg.Audit,
		metrics:   cfg.Metrics,
		logger:    logger,
		now:       time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (d *Distributor) WithNow(now func() time.Time) {
	if now != nil {
		d.now = now
	}
}

// Distribute pays a dividend at the given rate to every active instance of
// the product, reconstructing each account's daily balance from the due date
// forward. The distribution is logged even when the product is inactive, in
// which case no payouts occur.
func (d *Distributor) Distribute(ctx context.Context, productID string, dueDate time.Time, rate decimal.Decimal, actor string) error {
	tracker := d.metrics.Track("dividend")
	def, err := d.products.FindDefinition(ctx, productID)
	if err != nil {
		return tracker.End(err)
	}
	dueDate = truncateDay(dueDate)

	if def.Active {
		instances, err := d.products.ListActiveInstances(ctx, productID)
		if err != nil {
			return tracker.End(err)
		}
		skipped := 0
		for _, inst := range instances {
			if !inst.IsActive() {
				continue
			}
			if err := d.distributeToInstance(ctx, def, inst, dueDate, rate, actor); err != nil {
				skipped++
				d.logger.Warn("skipping instance, dividend computation failed",
					slog.String("product", productID),
					slog.String("account", inst.AccountID),
					slog.Any("error", err))
			}
		}
		d.metrics.AddSkipped("dividend", productID, skipped)
	}

	distribution := Distribution{
		ProductID: productID,
		DueDate:   dueDate,
		Rate:      rate,
		CreatedBy: actor,
		CreatedOn: d.now(),
	}
	if err := d.dividends.Insert(ctx, distribution); err != nil {
		return tracker.End(err)
	}
	if d.audit != nil {
		_ = d.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "dividend.distribute",
			Entity:   "product_definition",
			EntityID: productID,
			Meta: map[string]any{
				"due_date": dueDate.Format("2006-01-02"),
				"rate":     rate.String(),
			},
			At: d.now(),
		})
	}
	return tracker.End(nil)
}

func (d *Distributor) distributeToInstance(ctx context.Context, def product.Definition, inst product.Instance, dueDate time.Time, rate decimal.Decimal, actor string) error {
	balance, err := d.balanceAsOf(ctx, inst.AccountID, dueDate)
	if err != nil {
		return err
	}

	total := decimal.Zero
	days := accrual.DaysInYear(dueDate)
	// The due date itself accrues on the reconstructed opening balance; each
	// following sub-range may move the running balance before accruing.
	total = total.Add(accrual.DailyYield(balance, rate, dividendPeriods, days))
	for _, subRange := range Partition(dueDate, def.Term.InterestPayable) {
		entries, err := d.ledger.FetchEntries(ctx, inst.AccountID, subRange, ledger.SortAscending)
		if err != nil {
			return err
		}
		if len(entries) > 0 {
			// Last entry wins for the sub-range.
			balance = entries[len(entries)-1].Balance
		}
		total = total.Add(accrual.DailyYield(balance, rate, dividendPeriods, accrual.DaysInYear(subRange.Start)))
	}

	payout := money.RoundHalfEven(total, def.Currency.Scale)
	if !payout.IsPositive() {
		return nil
	}
	funding := ledger.JournalEntry{
		TransactionIdentifier: "divd-" + uuid.New().String(),
		TransactionType:       journalType,
		TransactionDate:       d.now(),
		Debtors:               []ledger.Debtor{{AccountNumber: def.CashAccount, Amount: payout}},
		Creditors:             []ledger.Creditor{{AccountNumber: def.ExpenseAccount, Amount: payout}},
		Note:                  "dividend distribution",
		Message:               def.Identifier,
		Clerk:                 actor,
	}
	if err := d.ledger.Post(ctx, funding); err != nil {
		return err
	}
	disbursement := ledger.JournalEntry{
		TransactionIdentifier: "divd-" + uuid.New().String(),
		TransactionType:       journalType,
		TransactionDate:       d.now(),
		Debtors:               []ledger.Debtor{{AccountNumber: def.ExpenseAccount, Amount: payout}},
		Creditors:             []ledger.Creditor{{AccountNumber: inst.AccountID, Amount: payout}},
		Note:                  "dividend distribution",
		Message:               def.Identifier,
		Clerk:                 actor,
	}
	return d.ledger.Post(ctx, disbursement)
}

// balanceAsOf reconstructs the account balance at the end of dueDate. When
// entries exist after the due date, the earliest one's pre-entry balance is
// the balance as of the due date; otherwise the current balance stands.
func (d *Distributor) balanceAsOf(ctx context.Context, accountID string, dueDate time.Time) (decimal.Decimal, error) {
	after := ledger.DateRange{Start: dueDate.AddDate(0, 0, 1), End: truncateDay(d.now())}
	entries, err := d.ledger.FetchEntries(ctx, accountID, after, ledger.SortAscending)
	if err != nil {
		return decimal.Zero, err
	}
	if len(entries) > 0 {
		first := entries[0]
		return first.Balance.Sub(first.Amount), nil
	}
	account, err := d.ledger.FindAccount(ctx, accountID)
	if err != nil {
		return decimal.Zero, err
	}
	return account.Balance, nil
}

// Partition splits the payment period starting at dueDate into single-day
// sub-ranges following the due date: periodLength-1 ranges for a period of
// periodLength days.
func Partition(dueDate time.Time, payable string) []ledger.DateRange {
	length := periodLength(dueDate, payable)
	ranges := make([]ledger.DateRange, 0, length-1)
	for i := 1; i < length; i++ {
		day := dueDate.AddDate(0, 0, i)
		ranges = append(ranges, ledger.DateRange{Start: day, End: day})
	}
	return ranges
}

func periodLength(dueDate time.Time, payable string) int {
	switch payable {
	case product.PayableMonthly:
		firstOfMonth := time.Date(dueDate.Year(), dueDate.Month(), 1, 0, 0, 0, 0, dueDate.Location())
		return firstOfMonth.AddDate(0, 1, -1).Day()
	case product.PayableQuarterly:
		quarterStart := time.Date(dueDate.Year(), firstMonthOfQuarter(dueDate.Month()), 1, 0, 0, 0, 0, dueDate.Location())
		return int(quarterStart.AddDate(0, 3, 0).Sub(quarterStart).Hours() / 24)
	default:
		return accrual.DaysInYear(dueDate)
	}
}

func firstMonthOfQuarter(m time.Month) time.Month {
	return time.Month(((int(m)-1)/3)*3 + 1)
}

func truncateDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
