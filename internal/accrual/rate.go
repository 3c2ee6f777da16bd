package accrual

import (
	"time"

	"github.com/shopspring/decimal"
)

var one = decimal.NewFromInt(1)
var hundred = decimal.NewFromInt(100)

// DailyYield computes one day's share of a balance's annual compound yield:
// balance * ((1 + rate/periods)^periods - 1) / daysInYear, with rate given as
// an annual percentage. Intermediate precision follows the package decimal
// division precision (16 digits); callers round only the final value.
func DailyYield(balance, annualRatePercent decimal.Decimal, periods, daysInYear int) decimal.Decimal {
	if periods < 1 {
		periods = 1
	}
	rate := annualRatePercent.Div(hundred)
	n := decimal.NewFromInt(int64(periods))
	annualYield := one.Add(rate.Div(n)).Pow(n).Sub(one)
	return balance.Mul(annualYield).Div(decimal.NewFromInt(int64(daysInYear)))
}

// DaysInYear returns 365 or 366 for the year containing date.
func DaysInYear(date time.Time) int {
	return time.Date(date.Year(), 12, 31, 0, 0, 0, 0, date.Location()).YearDay()
}
