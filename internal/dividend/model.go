// Package dividend distributes share-product dividends retroactively over a
// payment period, reconstructing daily balances from the sparse ledger.
package dividend

import (
	"time"

	"github.com/shopspring/decimal"
)

// Distribution is the append-only audit record of one dividend run.
type Distribution struct {
	ProductID string
	DueDate   time.Time
	Rate      decimal.Decimal
	CreatedBy string
	CreatedOn time.Time
}
