package transaction

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/ledger"
	"github.com/ledgerline/deposit-core/internal/money"
	"github.com/ledgerline/deposit-core/internal/product"
	"github.com/ledgerline/deposit-core/internal/shared"
)

// Processor validates deposit and withdrawal requests, prices their charges
// and posts them as balanced journal entries.
type Processor struct {
	ledger       ledger.Client
	products     product.Repository
	transactions Repository
	locker       *shared.AccountLocker
	audit        *shared.AuditLogger
	logger       *slog.Logger
	cashAccount  string
	now          func() time.Time
}

// ProcessorConfig collects the processor's dependencies. CashAccount is the
// counter account used for ledger accounts that are not held by a customer
// and therefore carry no product configuration.
type ProcessorConfig struct {
	Ledger       ledger.Client
	Products     product.Repository
	Transactions Repository
	Locker       *shared.AccountLocker
	Audit        *shared.AuditLogger
	Logger       *slog.Logger
	CashAccount  string
}

// NewProcessor constructs a Processor.
func NewProcessor(cfg ProcessorConfig) *Processor {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Processor{
		ledger:       cfg.Ledger,
		products:     cfg.Products,
		transactions: cfg.Transactions,
		locker:       cfg.Locker,
		audit:        cfg.Audit,
		logger:       logger,
		cashAccount:  cfg.CashAccount,
		now:          time.Now,
	}
}

// WithNow overrides the clock, for tests.
func (p *Processor) WithNow(now func() time.Time) {
	if now != nil {
		p.now = now
	}
}

// Deposit credits the customer's account with the requested amount, debiting
// the counter account, plus any deposit charges.
func (p *Processor) Deposit(ctx context.Context, req Request, actor string) (Receipt, error) {
	return p.process(ctx, req, actor, product.ActionDeposit)
}

// Withdraw debits the customer's account, crediting the counter account,
// after checking the withdrawable balance.
func (p *Processor) Withdraw(ctx context.Context, req Request, actor string) (Receipt, error) {
	return p.process(ctx, req, actor, product.ActionWithdrawal)
}

func (p *Processor) process(ctx context.Context, req Request, actor, action string) (Receipt, error) {
	amount, err := req.Parse()
	if err != nil {
		return Receipt{}, err
	}

	release, err := p.locker.Acquire(ctx, req.AccountID)
	if err != nil {
		return Receipt{}, err
	}
	defer release()

	account, err := p.ledger.FindAccount(ctx, req.AccountID)
	if err != nil {
		return Receipt{}, err
	}
	if account.State != ledger.AccountStateOpen {
		return Receipt{}, shared.E(shared.KindBadRequest, "account %s is %s, not open", account.Identifier, account.State)
	}

	var (
		def        product.Definition
		held       = account.HeldByCustomer()
		scale      = money.Scale(amount.Currency)
		normalized = amount.Normalize()
		minimum    decimal.Decimal
	)
	if held {
		instance, err := p.products.FindInstanceByAccount(ctx, req.AccountID)
		if err != nil {
			return Receipt{}, err
		}
		def, err = p.products.FindDefinition(ctx, instance.ProductID)
		if err != nil {
			return Receipt{}, err
		}
		if !def.Active {
			return Receipt{}, shared.E(shared.KindBadRequest, "product %s is inactive", def.Identifier)
		}
		if amount.Currency != def.Currency.Code {
			return Receipt{}, shared.E(shared.KindBadRequest, "currency %s does not match product currency %s", amount.Currency, def.Currency.Code)
		}
		scale = def.Currency.Scale
		normalized = amount.NormalizeTo(scale)
		minimum = def.MinimumBalance
	}

	value := normalized.Amount

	if action == product.ActionWithdrawal {
		withdrawable := account.Balance.Sub(minimum)
		if withdrawable.IsNegative() {
			withdrawable = decimal.Zero
		}
		if value.GreaterThan(withdrawable) {
			return Receipt{}, shared.E(shared.KindBadRequest, "amount %s exceeds withdrawable balance %s", value, withdrawable)
		}
	}

	counter, err := p.counterAccount(ctx, req, def, held)
	if err != nil {
		return Receipt{}, err
	}

	var charges []product.Charge
	if held {
		charges = def.ChargesFor(action)
	}
	entry, fee, err := buildJournal(req, def, action, value, counter, charges, scale, actor, p.now())
	if err != nil {
		return Receipt{}, err
	}

	txn := Transaction{
		ID:              uuid.New(),
		AccountID:       req.AccountID,
		Type:            typeCode(action),
		Amount:          value,
		Fee:             fee,
		State:           StateAccepted,
		TransactionDate: p.now(),
		ExpirationDate:  req.Expiration,
		CreatedBy:       actor,
		CreatedOn:       p.now(),
	}
	if req.SubTxnID != "" {
		sub := req.SubTxnID
		txn.SubTxnType = &sub
	}
	instanceAccount := ""
	if held {
		instanceAccount = req.AccountID
	}
	if err := p.transactions.Insert(ctx, txn, instanceAccount); err != nil {
		return Receipt{}, shared.Wrap(shared.KindInternal, err, "persisting transaction")
	}

	entry.TransactionIdentifier = txn.ID.String()
	if err := p.ledger.Post(ctx, entry); err != nil {
		if stateErr := p.transactions.UpdateState(ctx, txn.ID, StateFailed); stateErr != nil {
			p.logger.Error("marking transaction failed",
				slog.String("transaction", txn.ID.String()), slog.Any("error", stateErr))
		}
		return Receipt{}, shared.Wrap(shared.KindInternal, err, "posting journal entry")
	}

	if p.audit != nil {
		_ = p.audit.Record(ctx, shared.AuditLog{
			Actor:    actor,
			Action:   "transaction." + txn.Type,
			Entity:   "transaction",
			EntityID: txn.ID.String(),
			Meta: map[string]any{
				"account": req.AccountID,
				"amount":  money.New(value, amount.Currency).String(),
				"fee":     money.New(fee, amount.Currency).String(),
			},
			At: p.now(),
		})
	}

	return Receipt{
		Identifier:         txn.ID.String(),
		TransactionCode:    req.TransactionCode,
		State:              txn.State,
		RoutingCode:        req.RoutingCode,
		ExternalID:         req.ExternalID,
		RequestCode:        req.RequestCode,
		Expiration:         req.Expiration,
		CompletedTimestamp: txn.TransactionDate,
	}, nil
}

// counterAccount resolves the account on the other side of the primary leg:
// the sub-transaction-type account when the request names one, otherwise the
// product's cash account, otherwise the processor's configured cash account.
func (p *Processor) counterAccount(ctx context.Context, req Request, def product.Definition, held bool) (string, error) {
	if req.SubTxnID != "" {
		if _, err := p.ledger.FindAccount(ctx, req.SubTxnID); err != nil {
			return "", shared.Wrap(shared.KindNotFound, err, "sub transaction account "+req.SubTxnID)
		}
		return req.SubTxnID, nil
	}
	if held && def.CashAccount != "" {
		return def.CashAccount, nil
	}
	if p.cashAccount == "" {
		return "", shared.E(shared.KindBadRequest, "no counter account configured for %s", req.AccountID)
	}
	return p.cashAccount, nil
}

// buildJournal assembles the balanced entry: the primary pair moves the full
// amount, then one customer debtor and income creditor pair per charge.
// Charges keep full precision until each leg is rounded to the currency
// scale; legs that round to zero are dropped.
func buildJournal(req Request, def product.Definition, action string, value decimal.Decimal, counter string, charges []product.Charge, scale int32, actor string, at time.Time) (ledger.JournalEntry, decimal.Decimal, error) {
	entry := ledger.JournalEntry{
		TransactionType: typeCode(action),
		TransactionDate: at,
		Note:            req.Note,
		Message:         req.TransactionCode,
		Clerk:           actor,
	}
	if action == product.ActionDeposit {
		entry.Debtors = []ledger.Debtor{{AccountNumber: counter, Amount: value}}
		entry.Creditors = []ledger.Creditor{{AccountNumber: req.AccountID, Amount: value}}
	} else {
		entry.Debtors = []ledger.Debtor{{AccountNumber: req.AccountID, Amount: value}}
		entry.Creditors = []ledger.Creditor{{AccountNumber: counter, Amount: value}}
	}

	fee := decimal.Zero
	chargeLegs := 0
	hundred := decimal.NewFromInt(100)
	for _, charge := range charges {
		raw := charge.Amount
		if charge.Proportional {
			raw = value.Mul(charge.Amount).Div(hundred)
		}
		leg := money.RoundHalfEven(raw, scale)
		if !leg.IsPositive() {
			continue
		}
		chargeLegs++
		fee = fee.Add(leg)
		entry.Debtors = append(entry.Debtors, ledger.Debtor{AccountNumber: req.AccountID, Amount: leg})
		entry.Creditors = append(entry.Creditors, ledger.Creditor{AccountNumber: charge.IncomeAccount, Amount: leg})
	}
	if len(charges) > 0 && chargeLegs == 0 {
		return ledger.JournalEntry{}, decimal.Zero, shared.ErrUnbalanced
	}

	debits, credits := decimal.Zero, decimal.Zero
	for _, d := range entry.Debtors {
		debits = debits.Add(d.Amount)
	}
	for _, c := range entry.Creditors {
		credits = credits.Add(c.Amount)
	}
	if !debits.Equal(credits) {
		return ledger.JournalEntry{}, decimal.Zero, shared.ErrUnbalanced
	}
	return entry, fee, nil
}

func typeCode(action string) string {
	if action == product.ActionWithdrawal {
		return TypeWithdrawal
	}
	return TypeDeposit
}
