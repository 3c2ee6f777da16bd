package dividend

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists dividend distributions. Rows are never updated.
type Repository interface {
	Insert(ctx context.Context, distribution Distribution) error
	ListByProduct(ctx context.Context, productID string) ([]Distribution, error)
}

type repository struct {
	db *pgxpool.Pool
}

// NewRepository constructs the pgx-backed repository.
func NewRepository(db *pgxpool.Pool) Repository {
	return &repository{db: db}
}

func (r *repository) Insert(ctx context.Context, distribution Distribution) error {
	_, err := r.db.Exec(ctx, `INSERT INTO dividend_distributions (product_id, due_date, rate, created_by, created_on)
		VALUES ($1, $2, $3, $4, $5)`,
		distribution.ProductID, distribution.DueDate, distribution.Rate, distribution.CreatedBy, distribution.CreatedOn)
	return err
}

func (r *repository) ListByProduct(ctx context.Context, productID string) ([]Distribution, error) {
	rows, err := r.db.Query(ctx, `SELECT product_id, due_date, rate, created_by, created_on
		FROM dividend_distributions WHERE product_id = $1 ORDER BY due_date`, productID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Distribution
	for rows.Next() {
		var d Distribution
		if err := rows.Scan(&d.ProductID, &d.DueDate, &d.Rate, &d.CreatedBy, &d.CreatedOn); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}
