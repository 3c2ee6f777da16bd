// Package product holds deposit product definitions and the instances
// (customer accounts) opened against them. Definitions are administered
// elsewhere; this core reads them and gates on the active flag.
package product

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/money"
)

// Product types.
const (
	TypeSavings = "SAVINGS"
	TypeShare   = "SHARE"
)

// Interest payable periods.
const (
	PayableMonthly   = "MONTHLY"
	PayableQuarterly = "QUARTERLY"
	PayableAnnually  = "ANNUALLY"
	PayableMaturity  = "MATURITY"
)

// Instance states.
const (
	StatePending = "PENDING"
	StateActive  = "ACTIVE"
	StateClosed  = "CLOSED"
)

// Transaction actions a charge can be bound to.
const (
	ActionDeposit    = "DEPOSIT"
	ActionWithdrawal = "WITHDRAWAL"
)

// Term describes the product's duration and interest payment cadence.
type Term struct {
	Period          int
	TimeUnit        string
	InterestPayable string
}

// Charge is a fee applied to matching transactions and credited to an income
// account. Proportional charges hold a percentage in Amount, flat charges an
// absolute value.
type Charge struct {
	ActionID      string
	IncomeAccount string
	Name          string
	Proportional  bool
	Amount        decimal.Decimal
}

// Currency pairs an ISO code with the product's persisted scale.
type Currency struct {
	Code  string
	Scale int32
}

// Definition is a deposit product template.
type Definition struct {
	Identifier       string
	Type             string
	Currency         Currency
	InterestRate     *decimal.Decimal
	Term             Term
	MinimumBalance   decimal.Decimal
	Charges          []Charge
	AccrueAccount    string
	CashAccount      string
	ExpenseAccount   string
	EquityLedger     string
	Active           bool
	CreatedBy        string
	CreatedOn        time.Time
	LastModifiedBy   string
	LastModifiedOn   time.Time
}

// Accruable reports whether daily interest accrual applies: the product is
// active, is not a share product, and carries a positive interest rate.
func (d Definition) Accruable() bool {
	return d.Active && d.Type != TypeShare && money.Positive(d.InterestRate)
}

// PeriodsPerYear maps the interest payable cadence to compounding periods.
func (d Definition) PeriodsPerYear() int {
	switch d.Term.InterestPayable {
	case PayableMonthly:
		return 12
	case PayableQuarterly:
		return 4
	default:
		return 1
	}
}

// ChargesFor returns the charges bound to the given transaction action.
func (d Definition) ChargesFor(action string) []Charge {
	var out []Charge
	for _, charge := range d.Charges {
		if charge.ActionID == action {
			out = append(out, charge)
		}
	}
	return out
}

// Instance is a customer's account opened against a product.
type Instance struct {
	CustomerID          string
	AccountID           string
	ProductID           string
	State               string
	OpenedOn            *time.Time
	LastTransactionDate *time.Time
}

// IsActive reports whether the instance participates in accrual and payouts.
func (i Instance) IsActive() bool { return i.State == StateActive }
