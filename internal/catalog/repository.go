package catalog

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Filter narrows ListAccounts results.
type Filter struct {
	CompanyID  int64
	Active     bool
	CodePrefix string
}

// Repository reads the chart of accounts. The catalog is maintained by
// an external management process; this side only reads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// ListAccounts returns accounts matching the filter ordered by code.
func (r *Repository) ListAccounts(ctx context.Context, filter Filter) ([]Account, error) {
	const query = `
SELECT id, company_id, code, name, type, nature, synthetic, analytical, active, created_at, updated_at
FROM accounts
WHERE company_id = $1
  AND ($2::bool IS FALSE OR active)
  AND ($3 = '' OR code = $3 OR code LIKE $3 || '.%')
ORDER BY string_to_array(code, '.')::int[]`
	rows, err := r.pool.Query(ctx, query, filter.CompanyID, filter.Active, filter.CodePrefix)
	if err != nil {
		return nil, fmt.Errorf("catalog: list accounts: %w", err)
	}
	defer rows.Close()

	var accounts []Account
	for rows.Next() {
		var acc Account
		if err := rows.Scan(&acc.ID, &acc.CompanyID, &acc.Code, &acc.Name, &acc.Type, &acc.Nature,
			&acc.Synthetic, &acc.Analytical, &acc.Active, &acc.CreatedAt, &acc.UpdatedAt); err != nil {
			return nil, fmt.Errorf("catalog: scan account: %w", err)
		}
		accounts = append(accounts, acc)
	}
	return accounts, rows.Err()
}

// LoadSnapshot lists active accounts and indexes them for one report
// or close request.
func (r *Repository) LoadSnapshot(ctx context.Context, companyID int64) (*Snapshot, error) {
	accounts, err := r.ListAccounts(ctx, Filter{CompanyID: companyID, Active: true})
	if err != nil {
		return nil, err
	}
	return NewSnapshot(accounts)
}
