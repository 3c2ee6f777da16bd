package transaction

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ledgerline/deposit-core/internal/platform/db"
	"github.com/ledgerline/deposit-core/internal/shared"
)

// Repository persists transaction records.
type Repository interface {
	// Insert stores the row; when instanceAccount is non-empty the owning
	// instance's last-transaction-date is bumped in the same transaction.
	Insert(ctx context.Context, txn Transaction, instanceAccount string) error
	UpdateState(ctx context.Context, id uuid.UUID, state string) error
	FindByID(ctx context.Context, id uuid.UUID) (Transaction, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, txn Transaction, instanceAccount string) error {
	return db.WithTx(ctx, r.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `INSERT INTO transactions
			(id, account_id, type, sub_txn_type, amount, fee, state, transaction_date, expiration_date, created_by, created_on)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
			txn.ID, txn.AccountID, txn.Type, txn.SubTxnType, txn.Amount, txn.Fee,
			txn.State, txn.TransactionDate, txn.ExpirationDate, txn.CreatedBy, txn.CreatedOn)
		if err != nil {
			return err
		}
		if instanceAccount == "" {
			return nil
		}
		_, err = tx.Exec(ctx, `UPDATE product_instances SET last_transaction_date = $2
			WHERE account_id = $1`, instanceAccount, txn.TransactionDate)
		return err
	})
}

func (r *repository) UpdateState(ctx context.Context, id uuid.UUID, state string) error {
	_, err := r.db.Exec(ctx, `UPDATE transactions SET state = $2 WHERE id = $1`, id, state)
	return err
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (Transaction, error) {
	row := r.db.QueryRow(ctx, `SELECT id, account_id, type, sub_txn_type, amount, fee, state,
		transaction_date, expiration_date, created_by, created_on
		FROM transactions WHERE id = $1`, id)
	var txn Transaction
	err := row.Scan(&txn.ID, &txn.AccountID, &txn.Type, &txn.SubTxnType, &txn.Amount, &txn.Fee,
		&txn.State, &txn.TransactionDate, &txn.ExpirationDate, &txn.CreatedBy, &txn.CreatedOn)
	if errors.Is(err, pgx.ErrNoRows) {
		return Transaction{}, shared.ErrNotFound
	}
	if err != nil {
		return Transaction{}, err
	}
	return txn, nil
}
