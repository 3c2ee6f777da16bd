// Package transaction posts customer deposits and withdrawals as balanced
// double-entry journal entries and keeps a durable record of every attempt.
package transaction

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ISO 20022 flavored transaction type codes.
const (
	TypeDeposit    = "CDPT"
	TypeWithdrawal = "CWDL"
)

// Transaction states.
const (
	StatePending  = "PENDING"
	StateAccepted = "ACCEPTED"
	StateFailed   = "FAILED"
)

// Transaction is the persisted record of one deposit or withdrawal. Rows are
// written ACCEPTED before the ledger post; a post failure flips the row to
// FAILED so reconciliation can find it.
type Transaction struct {
	ID              uuid.UUID
	AccountID       string
	Type            string
	SubTxnType      *string
	Amount          decimal.Decimal
	Fee             decimal.Decimal
	State           string
	TransactionDate time.Time
	ExpirationDate  *time.Time
	CreatedBy       string
	CreatedOn       time.Time
}
