package accrual

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ledgerline/deposit-core/internal/platform/db"
)

// Entry is accumulated but unpaid interest for one customer account.
// One row per (accrue account, customer account) pair; amount never negative.
type Entry struct {
	AccrueAccount   string
	CustomerAccount string
	Amount          decimal.Decimal
}

// Repository persists accrued interest rows.
type Repository interface {
	Accumulate(ctx context.Context, entries ...Entry) error
	ListByAccrueAccount(ctx context.Context, accrueAccount string) ([]Entry, error)
	Delete(ctx context.Context, customerAccount string) error
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

// Accumulate adds each entry's amount to its account's outstanding interest,
// creating rows on first accrual. All entries commit in one transaction so a
// failed run never leaves a product half accumulated.
func (r *repository) Accumulate(ctx context.Context, entries ...Entry) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		for _, entry := range entries {
			if _, err := tx.Exec(ctx, `INSERT INTO accrued_interest (accrue_account, customer_account, amount)
				VALUES ($1, $2, $3)
				ON CONFLICT (customer_account)
				DO UPDATE SET amount = accrued_interest.amount + EXCLUDED.amount`,
				entry.AccrueAccount, entry.CustomerAccount, entry.Amount); err != nil {
				return err
			}
		}
		return nil
	})
}

func (r *repository) ListByAccrueAccount(ctx context.Context, accrueAccount string) ([]Entry, error) {
	rows, err := r.db.Query(ctx, `SELECT accrue_account, customer_account, amount
		FROM accrued_interest WHERE accrue_account = $1`, accrueAccount)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var entries []Entry
	for rows.Next() {
		var entry Entry
		if err := rows.Scan(&entry.AccrueAccount, &entry.CustomerAccount, &entry.Amount); err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}
	return entries, rows.Err()
}

// Delete removes a paid-out row. Callers delete only after the payout
// journal entries have posted.
func (r *repository) Delete(ctx context.Context, customerAccount string) error {
	_, err := r.db.Exec(ctx, `DELETE FROM accrued_interest WHERE customer_account = $1`, customerAccount)
	return err
}
