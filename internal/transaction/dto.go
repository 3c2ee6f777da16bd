package transaction

import (
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/ledgerline/deposit-core/internal/money"
	"github.com/ledgerline/deposit-core/internal/shared"
)

var validate = validator.New()

// Actions accepted on the wire.
const (
	ActionDeposit    = "DEPOSIT"
	ActionWithdrawal = "WITHDRAWAL"
)

// AmountPayload is a decimal string plus ISO currency code.
type AmountPayload struct {
	Value    string `json:"value" validate:"required"`
	Currency string `json:"currency" validate:"required,len=3"`
}

// Request is a deposit or withdrawal instruction.
type Request struct {
	Action          string        `json:"action" validate:"required,oneof=DEPOSIT WITHDRAWAL"`
	TransactionCode string        `json:"transactionCode" validate:"required"`
	RequestCode     string        `json:"requestCode,omitempty"`
	RoutingCode     string        `json:"routingCode,omitempty"`
	ExternalID      string        `json:"externalId,omitempty"`
	AccountID       string        `json:"accountId" validate:"required"`
	Note            string        `json:"note,omitempty"`
	Expiration      *time.Time    `json:"expiration,omitempty"`
	Amount          AmountPayload `json:"amount" validate:"required"`
	SubTxnID        string        `json:"subTxnId,omitempty"`
}

// Parse validates the request and returns the typed amount.
func (r Request) Parse() (money.Money, error) {
	if err := validate.Struct(r); err != nil {
		return money.Money{}, shared.Wrap(shared.KindBadRequest, err, "invalid transaction request")
	}
	amount, err := money.Parse(r.Amount.Value, r.Amount.Currency)
	if err != nil {
		return money.Money{}, shared.Wrap(shared.KindBadRequest, err, "invalid amount")
	}
	if !amount.IsPositive() {
		return money.Money{}, shared.E(shared.KindBadRequest, "amount must be positive")
	}
	return amount, nil
}

// Receipt echoes the request's routing identifiers back together with the
// generated transaction identifier and final state.
type Receipt struct {
	Identifier         string     `json:"identifier"`
	TransactionCode    string     `json:"transactionCode"`
	State              string     `json:"state"`
	RoutingCode        string     `json:"routingCode,omitempty"`
	ExternalID         string     `json:"externalId,omitempty"`
	RequestCode        string     `json:"requestCode,omitempty"`
	Expiration         *time.Time `json:"expiration,omitempty"`
	CompletedTimestamp time.Time  `json:"completedTimestamp"`
}

// TransactionView is the JSON shape of a stored transaction.
type TransactionView struct {
	Identifier      string  `json:"identifier"`
	AccountID       string  `json:"accountId"`
	Type            string  `json:"type"`
	SubTxnType      *string `json:"subTxnType,omitempty"`
	Amount          string  `json:"amount"`
	Fee             string  `json:"fee"`
	State           string  `json:"state"`
	TransactionDate string  `json:"transactionDate"`
	CreatedBy       string  `json:"createdBy"`
}

func toView(txn Transaction) TransactionView {
	return TransactionView{
		Identifier:      txn.ID.String(),
		AccountID:       txn.AccountID,
		Type:            txn.Type,
		SubTxnType:      txn.SubTxnType,
		Amount:          txn.Amount.String(),
		Fee:             txn.Fee.String(),
		State:           txn.State,
		TransactionDate: txn.TransactionDate.Format(time.RFC3339),
		CreatedBy:       txn.CreatedBy,
	}
}
