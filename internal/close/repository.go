package close

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/razonete/razonete/internal/ledger"
)

// PgRepository persists accounting periods in PostgreSQL and delegates
// entry writes to the ledger repository inside the same transaction.
type PgRepository struct {
	pool   *pgxpool.Pool
	ledger *ledger.Repository
}

// NewRepository constructs a PgRepository using the provided pool.
func NewRepository(pool *pgxpool.Pool, ledgerRepo *ledger.Repository) *PgRepository {
	return &PgRepository{pool: pool, ledger: ledgerRepo}
}

// WithTx executes fn inside a repeatable-read transaction. The
// TxRepository handed to fn shares that transaction, so the closing
// entry and the status flip commit or roll back as one.
func (r *PgRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("close: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, &pgTxRepository{tx: tx, ledger: r.ledger}); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

const periodColumns = `id, company_id, year, month, status, closed_at, closed_by,
reopened_at, COALESCE(reopen_reason, ''), net_result, balance_transferred, closing_entry_id,
created_at, updated_at`

func scanPeriod(row pgx.Row) (AccountingPeriod, error) {
	var (
		p     AccountingPeriod
		month int
	)
	err := row.Scan(&p.ID, &p.CompanyID, &p.Year, &month, &p.Status, &p.ClosedAt, &p.ClosedBy,
		&p.ReopenedAt, &p.ReopenReason, &p.NetResult, &p.BalanceTransferred, &p.ClosingEntryID,
		&p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return AccountingPeriod{}, err
	}
	p.Month = time.Month(month)
	return p, nil
}

// GetOrCreatePeriod loads the period record, creating it lazily on
// first access.
func (r *PgRepository) GetOrCreatePeriod(ctx context.Context, companyID int64, year int, month time.Month) (AccountingPeriod, error) {
	_, err := r.pool.Exec(ctx, `
INSERT INTO accounting_periods (company_id, year, month, status)
VALUES ($1, $2, $3, 'OPEN')
ON CONFLICT (company_id, year, month) DO NOTHING`, companyID, year, int(month))
	if err != nil {
		return AccountingPeriod{}, fmt.Errorf("close: ensure period: %w", err)
	}
	row := r.pool.QueryRow(ctx, `
SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 AND year = $2 AND month = $3`, companyID, year, int(month))
	period, err := scanPeriod(row)
	if err != nil {
		return AccountingPeriod{}, fmt.Errorf("close: load period: %w", err)
	}
	return period, nil
}

// ListPeriods returns every period for the company in chronological
// order.
func (r *PgRepository) ListPeriods(ctx context.Context, companyID int64) ([]AccountingPeriod, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 ORDER BY year, month`, companyID)
	if err != nil {
		return nil, fmt.Errorf("close: list periods: %w", err)
	}
	defer rows.Close()
	var periods []AccountingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// EarlierOpenPeriods returns chronologically earlier periods that are
// not yet closed.
func (r *PgRepository) EarlierOpenPeriods(ctx context.Context, companyID int64, year int, month time.Month) ([]AccountingPeriod, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 AND (year, month) < ($2, $3) AND status <> 'CLOSED'
ORDER BY year, month`, companyID, year, int(month))
	if err != nil {
		return nil, fmt.Errorf("close: earlier open periods: %w", err)
	}
	defer rows.Close()
	var periods []AccountingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// LaterClosedPeriods returns chronologically later periods that are
// closed, which blocks reopening.
func (r *PgRepository) LaterClosedPeriods(ctx context.Context, companyID int64, year int, month time.Month) ([]AccountingPeriod, error) {
	rows, err := r.pool.Query(ctx, `
SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 AND (year, month) > ($2, $3) AND status = 'CLOSED'
ORDER BY year, month`, companyID, year, int(month))
	if err != nil {
		return nil, fmt.Errorf("close: later closed periods: %w", err)
	}
	defer rows.Close()
	var periods []AccountingPeriod
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

type pgTxRepository struct {
	tx     pgx.Tx
	ledger *ledger.Repository
}

func (t *pgTxRepository) GetPeriodForUpdate(ctx context.Context, companyID int64, year int, month time.Month) (AccountingPeriod, error) {
	row := t.tx.QueryRow(ctx, `
SELECT `+periodColumns+` FROM accounting_periods
WHERE company_id = $1 AND year = $2 AND month = $3
FOR UPDATE`, companyID, year, int(month))
	period, err := scanPeriod(row)
	if err != nil {
		return AccountingPeriod{}, fmt.Errorf("close: lock period: %w", err)
	}
	return period, nil
}

func (t *pgTxRepository) MarkClosed(ctx context.Context, periodID, actorID int64, closedAt time.Time, netResult ledger.Cents, entryID *int64) error {
	_, err := t.tx.Exec(ctx, `
UPDATE accounting_periods
SET status = 'CLOSED', closed_at = $2, closed_by = $3, net_result = $4,
    balance_transferred = $5, closing_entry_id = $6, updated_at = now()
WHERE id = $1`, periodID, closedAt, actorID, netResult, entryID != nil, entryID)
	if err != nil {
		return fmt.Errorf("close: mark closed: %w", err)
	}
	return nil
}

func (t *pgTxRepository) MarkReopened(ctx context.Context, periodID, actorID int64, reopenedAt time.Time, reason string) error {
	_, err := t.tx.Exec(ctx, `
UPDATE accounting_periods
SET status = 'REOPENED', reopened_at = $2, reopened_by = $3, reopen_reason = $4, updated_at = now()
WHERE id = $1`, periodID, reopenedAt, actorID, reason)
	if err != nil {
		return fmt.Errorf("close: mark reopened: %w", err)
	}
	return nil
}

func (t *pgTxRepository) AppendEntry(ctx context.Context, in ledger.EntryInput) (ledger.Entry, error) {
	return t.ledger.AppendEntry(ctx, t.tx, in)
}

func (t *pgTxRepository) ReverseEntry(ctx context.Context, entryID int64, date time.Time, description string, actorID int64) (ledger.Entry, error) {
	return t.ledger.ReverseEntry(ctx, t.tx, entryID, date, description, actorID)
}
