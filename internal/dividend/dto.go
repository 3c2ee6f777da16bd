package dividend

import (
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/shared"
)

var validate = validator.New()

// DistributeRequest is the administrative trigger for a dividend run.
type DistributeRequest struct {
	DueDate string `json:"dueDate" validate:"required,datetime=2006-01-02"`
	Rate    string `json:"rate" validate:"required"`
}

// Parse validates the request and extracts its typed fields.
func (r DistributeRequest) Parse() (time.Time, decimal.Decimal, error) {
	if err := validate.Struct(r); err != nil {
		return time.Time{}, decimal.Decimal{}, shared.Wrap(shared.KindBadRequest, err, "invalid dividend request")
	}
	dueDate, err := time.Parse("2006-01-02", r.DueDate)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, shared.Wrap(shared.KindBadRequest, err, "invalid due date")
	}
	rate, err := decimal.NewFromString(r.Rate)
	if err != nil {
		return time.Time{}, decimal.Decimal{}, shared.Wrap(shared.KindBadRequest, err, "invalid rate")
	}
	if rate.IsNegative() {
		return time.Time{}, decimal.Decimal{}, shared.E(shared.KindBadRequest, "rate must not be negative")
	}
	return dueDate, rate, nil
}

// DistributionView is the JSON shape of a logged distribution.
type DistributionView struct {
	ProductID string `json:"productIdentifier"`
	DueDate   string `json:"dueDate"`
	Rate      string `json:"rate"`
	CreatedBy string `json:"createdBy"`
	CreatedOn string `json:"createdOn"`
}

func toView(d Distribution) DistributionView {
	return DistributionView{
		ProductID: d.ProductID,
		DueDate:   d.DueDate.Format("2006-01-02"),
		Rate:      d.Rate.String(),
		CreatedBy: d.CreatedBy,
		CreatedOn: d.CreatedOn.Format(time.RFC3339),
	}
}
