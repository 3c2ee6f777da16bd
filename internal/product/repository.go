package product

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/shared"
)

// Repository reads product definitions and manages instances.
type Repository interface {
	FindDefinition(ctx context.Context, identifier string) (Definition, error)
	ListAccruable(ctx context.Context) ([]Definition, error)
	ListActivePayable(ctx context.Context) ([]Definition, error)
	ListActiveInstances(ctx context.Context, productID string) ([]Instance, error)
	FindInstanceByAccount(ctx context.Context, accountID string) (Instance, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

const definitionColumns = `identifier, type, currency_code, currency_scale, interest_rate,
	term_period, term_time_unit, term_interest_payable, minimum_balance,
	accrue_account, cash_account, expense_account, equity_ledger, active,
	created_by, created_on, last_modified_by, last_modified_on`

func (r *repository) FindDefinition(ctx context.Context, identifier string) (Definition, error) {
	row := r.db.QueryRow(ctx, `SELECT `+definitionColumns+` FROM product_definitions WHERE identifier = $1`, identifier)
	def, err := scanDefinition(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Definition{}, shared.E(shared.KindNotFound, "product %s not found", identifier)
		}
		return Definition{}, err
	}
	if err := r.loadCharges(ctx, &def); err != nil {
		return Definition{}, err
	}
	return def, nil
}

func (r *repository) ListAccruable(ctx context.Context) ([]Definition, error) {
	return r.listDefinitions(ctx, `SELECT `+definitionColumns+` FROM product_definitions
		WHERE active AND type <> $1 AND interest_rate IS NOT NULL AND interest_rate > 0`, TypeShare)
}

func (r *repository) ListActivePayable(ctx context.Context) ([]Definition, error) {
	return r.listDefinitions(ctx, `SELECT `+definitionColumns+` FROM product_definitions
		WHERE active AND type <> $1`, TypeShare)
}

func (r *repository) listDefinitions(ctx context.Context, query string, args ...any) ([]Definition, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var defs []Definition
	for rows.Next() {
		def, err := scanDefinition(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range defs {
		if err := r.loadCharges(ctx, &defs[i]); err != nil {
			return nil, err
		}
	}
	return defs, nil
}

func (r *repository) loadCharges(ctx context.Context, def *Definition) error {
	rows, err := r.db.Query(ctx, `SELECT action_id, income_account, name, proportional, amount
		FROM product_charges WHERE product_identifier = $1 ORDER BY name`, def.Identifier)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var charge Charge
		if err := rows.Scan(&charge.ActionID, &charge.IncomeAccount, &charge.Name, &charge.Proportional, &charge.Amount); err != nil {
			return err
		}
		def.Charges = append(def.Charges, charge)
	}
	return rows.Err()
}

func (r *repository) ListActiveInstances(ctx context.Context, productID string) ([]Instance, error) {
	rows, err := r.db.Query(ctx, `SELECT customer_id, account_id, product_id, state, opened_on, last_transaction_date
		FROM product_instances WHERE product_id = $1 AND state = $2`, productID, StateActive)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var instances []Instance
	for rows.Next() {
		var inst Instance
		if err := rows.Scan(&inst.CustomerID, &inst.AccountID, &inst.ProductID, &inst.State, &inst.OpenedOn, &inst.LastTransactionDate); err != nil {
			return nil, err
		}
		instances = append(instances, inst)
	}
	return instances, rows.Err()
}

func (r *repository) FindInstanceByAccount(ctx context.Context, accountID string) (Instance, error) {
	var inst Instance
	err := r.db.QueryRow(ctx, `SELECT customer_id, account_id, product_id, state, opened_on, last_transaction_date
		FROM product_instances WHERE account_id = $1`, accountID).
		Scan(&inst.CustomerID, &inst.AccountID, &inst.ProductID, &inst.State, &inst.OpenedOn, &inst.LastTransactionDate)
	if errors.Is(err, pgx.ErrNoRows) {
		return Instance{}, shared.E(shared.KindNotFound, "no product instance for account %s", accountID)
	}
	if err != nil {
		return Instance{}, err
	}
	return inst, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDefinition(row rowScanner) (Definition, error) {
	var def Definition
	var rate decimal.NullDecimal
	err := row.Scan(
		&def.Identifier, &def.Type, &def.Currency.Code, &def.Currency.Scale, &rate,
		&def.Term.Period, &def.Term.TimeUnit, &def.Term.InterestPayable, &def.MinimumBalance,
		&def.AccrueAccount, &def.CashAccount, &def.ExpenseAccount, &def.EquityLedger, &def.Active,
		&def.CreatedBy, &def.CreatedOn, &def.LastModifiedBy, &def.LastModifiedOn,
	)
	if err != nil {
		return Definition{}, err
	}
	if rate.Valid {
		def.InterestRate = &rate.Decimal
	}
	return def, nil
}
