// Package payment realises accrued interest into ledger payouts on period
// boundaries (month, quarter or year end, per product configuration).
package payment

import (
	"time"

	"github.com/ledgerline/deposit-core/internal/product"
)

// IsBoundary reports whether date is the final day of the payment period
// configured by payable. MATURITY products (and unrecognised values) never
// pay through the scheduled path.
func IsBoundary(payable string, date time.Time) bool {
	switch payable {
	case product.PayableMonthly:
		return isMonthEnd(date)
	case product.PayableQuarterly:
		return isQuarterEnd(date)
	case product.PayableAnnually:
		return isYearEnd(date)
	default:
		return false
	}
}

func isMonthEnd(date time.Time) bool {
	return date.AddDate(0, 0, 1).Day() == 1
}

func isQuarterEnd(date time.Time) bool {
	switch date.Month() {
	case time.March, time.June, time.September, time.December:
		return isMonthEnd(date)
	default:
		return false
	}
}

func isYearEnd(date time.Time) bool {
	return date.Month() == time.December && date.Day() == 31
}
