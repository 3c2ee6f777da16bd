// Package ledger defines the client interface to the external double-entry
// accounting service. The core only consumes it: find an account, fetch dated
// entries, post a balanced journal entry, create an account.
package ledger

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Account states as reported by the accounting service.
const (
	AccountStateOpen   = "OPEN"
	AccountStateLocked = "LOCKED"
	AccountStateClosed = "CLOSED"
)

// SortDirection orders fetched entries by transaction date.
type SortDirection string

const (
	SortAscending  SortDirection = "ASC"
	SortDescending SortDirection = "DESC"
)

// Account is the ledger's view of an account. Holders is non-empty for
// customer accounts and empty for internal accounts.
type Account struct {
	Identifier string
	Name       string
	Type       string
	State      string
	Balance    decimal.Decimal
	Holders    []string
	Reference  string
}

// HeldByCustomer reports whether the account belongs to a customer.
func (a Account) HeldByCustomer() bool { return len(a.Holders) > 0 }

// Entry is one dated ledger movement; Balance is the account balance after
// the movement was applied. Amount is signed: credits are positive, debits
// negative, so Balance minus Amount always yields the prior balance.
type Entry struct {
	Type            string
	TransactionDate time.Time
	Amount          decimal.Decimal
	Balance         decimal.Decimal
}

// DateRange bounds an entry fetch, inclusive of both endpoints.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Contains reports whether t falls inside the range, date precision.
func (r DateRange) Contains(t time.Time) bool {
	day := t.Truncate(24 * time.Hour)
	return !day.Before(r.Start.Truncate(24*time.Hour)) && !day.After(r.End.Truncate(24*time.Hour))
}

// Debtor is a debit leg of a journal entry.
type Debtor struct {
	AccountNumber string
	Amount        decimal.Decimal
}

// Creditor is a credit leg of a journal entry.
type Creditor struct {
	AccountNumber string
	Amount        decimal.Decimal
}

// JournalEntry is a balanced double-entry posting.
type JournalEntry struct {
	TransactionIdentifier string
	TransactionType       string
	TransactionDate       time.Time
	Debtors               []Debtor
	Creditors             []Creditor
	Note                  string
	Message               string
	Clerk                 string
}

// Client is the capability surface the core needs from the accounting ledger.
// Any implementation satisfying it is acceptable, HTTP or in-memory.
type Client interface {
	FindAccount(ctx context.Context, identifier string) (Account, error)
	FetchEntries(ctx context.Context, accountID string, dateRange DateRange, sort SortDirection) ([]Entry, error)
	Post(ctx context.Context, entry JournalEntry) error
	CreateAccount(ctx context.Context, account Account) error
}
