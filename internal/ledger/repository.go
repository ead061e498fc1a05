package ledger

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists journal entries and derives balances from them.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes fn inside a repeatable-read transaction.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, pgx.Tx) error) error {
	if r == nil || r.pool == nil {
		return fmt.Errorf("ledger: repository not initialised")
	}
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return err
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.Commit(ctx)
}

// GetBalances returns opening balance and period movement for each
// requested account. Accounts without any lines are omitted; callers
// treat absence as zero.
func (r *Repository) GetBalances(ctx context.Context, companyID int64, accountIDs []int64, from, to time.Time) ([]AccountBalance, error) {
	const query = `
SELECT l.account_id,
       COALESCE(SUM(CASE WHEN e.entry_date < $3 THEN l.debit - l.credit ELSE 0 END), 0) AS opening,
       COALESCE(SUM(CASE WHEN e.entry_date BETWEEN $3 AND $4 THEN l.debit ELSE 0 END), 0) AS debits,
       COALESCE(SUM(CASE WHEN e.entry_date BETWEEN $3 AND $4 THEN l.credit ELSE 0 END), 0) AS credits
FROM entry_lines l
JOIN entries e ON e.id = l.entry_id
WHERE e.company_id = $1
  AND l.account_id = ANY($2)
  AND e.entry_date <= $4
GROUP BY l.account_id`
	rows, err := r.pool.Query(ctx, query, companyID, accountIDs, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: get balances: %w", err)
	}
	defer rows.Close()

	balances := make([]AccountBalance, 0, len(accountIDs))
	for rows.Next() {
		var b AccountBalance
		if err := rows.Scan(&b.AccountID, &b.Opening, &b.Debits, &b.Credits); err != nil {
			return nil, fmt.Errorf("ledger: scan balance: %w", err)
		}
		b.Closing = b.Opening + b.Debits - b.Credits
		balances = append(balances, b)
	}
	return balances, rows.Err()
}

// GetLedgerLines returns the ordered movement rows for one account with
// a running balance carried from the opening position.
func (r *Repository) GetLedgerLines(ctx context.Context, companyID, accountID int64, from, to time.Time) ([]Line, error) {
	const query = `
SELECT e.id, e.entry_date, l.debit, l.credit, e.description,
       COALESCE(SUM(l.debit - l.credit) OVER (ORDER BY e.entry_date, e.id, l.id), 0)
         + COALESCE((SELECT SUM(p.debit - p.credit)
                     FROM entry_lines p JOIN entries pe ON pe.id = p.entry_id
                     WHERE pe.company_id = $1 AND p.account_id = $2 AND pe.entry_date < $3), 0) AS running
FROM entry_lines l
JOIN entries e ON e.id = l.entry_id
WHERE e.company_id = $1
  AND l.account_id = $2
  AND e.entry_date BETWEEN $3 AND $4
ORDER BY e.entry_date, e.id, l.id`
	rows, err := r.pool.Query(ctx, query, companyID, accountID, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: get ledger lines: %w", err)
	}
	defer rows.Close()

	var lines []Line
	for rows.Next() {
		var line Line
		if err := rows.Scan(&line.EntryID, &line.Date, &line.Debit, &line.Credit, &line.Description, &line.Running); err != nil {
			return nil, fmt.Errorf("ledger: scan line: %w", err)
		}
		lines = append(lines, line)
	}
	return lines, rows.Err()
}

// AppendEntry writes an entry and its lines inside the caller's
// transaction. The write is all-or-nothing: any failure aborts the
// whole transaction and no lines survive.
func (r *Repository) AppendEntry(ctx context.Context, tx pgx.Tx, in EntryInput) (Entry, error) {
	if err := in.Validate(); err != nil {
		return Entry{}, err
	}
	entry := Entry{
		CompanyID:   in.CompanyID,
		Date:        in.Date,
		Description: in.Description,
		SourceID:    in.SourceID,
		Status:      EntryStatusPosted,
		PostedBy:    in.PostedBy,
	}
	err := tx.QueryRow(ctx, `
INSERT INTO entries (company_id, entry_date, description, source_id, status, posted_by, posted_at)
VALUES ($1, $2, $3, $4, $5, $6, now())
RETURNING id, number, posted_at`,
		in.CompanyID, in.Date, in.Description, in.SourceID, EntryStatusPosted, in.PostedBy).
		Scan(&entry.ID, &entry.Number, &entry.PostedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.ConstraintName == "uq_entries_source" {
			return Entry{}, ErrDuplicateSource
		}
		return Entry{}, fmt.Errorf("ledger: insert entry: %w", err)
	}
	for _, line := range in.Lines {
		var id int64
		err := tx.QueryRow(ctx, `
INSERT INTO entry_lines (entry_id, account_id, debit, credit)
VALUES ($1, $2, $3, $4)
RETURNING id`, entry.ID, line.AccountID, line.Debit, line.Credit).Scan(&id)
		if err != nil {
			return Entry{}, fmt.Errorf("ledger: insert line: %w", err)
		}
		entry.Lines = append(entry.Lines, EntryLine{
			ID:        id,
			EntryID:   entry.ID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	return entry, nil
}

// GetEntry loads an entry with its lines.
func (r *Repository) GetEntry(ctx context.Context, id int64) (Entry, error) {
	var entry Entry
	err := r.pool.QueryRow(ctx, `
SELECT id, company_id, number, entry_date, description, source_id, status, posted_by, posted_at
FROM entries WHERE id = $1`, id).
		Scan(&entry.ID, &entry.CompanyID, &entry.Number, &entry.Date, &entry.Description,
			&entry.SourceID, &entry.Status, &entry.PostedBy, &entry.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	rows, err := r.pool.Query(ctx, `
SELECT id, entry_id, account_id, debit, credit FROM entry_lines WHERE entry_id = $1 ORDER BY id`, id)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line EntryLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// ReverseEntry appends a mirror entry swapping every debit and credit,
// then marks the original as reversed. Runs in the caller's transaction.
func (r *Repository) ReverseEntry(ctx context.Context, tx pgx.Tx, entryID int64, date time.Time, description string, actorID int64) (Entry, error) {
	original, err := r.getEntryTx(ctx, tx, entryID)
	if err != nil {
		return Entry{}, err
	}
	in := EntryInput{
		CompanyID:   original.CompanyID,
		Date:        date,
		Description: description,
		SourceID:    original.SourceID,
		PostedBy:    actorID,
	}
	for _, line := range original.Lines {
		in.Lines = append(in.Lines, LineInput{
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	// The reversal re-uses the source id on purpose; the uniqueness
	// constraint only covers POSTED entries.
	reversal, err := r.AppendEntry(ctx, tx, in)
	if err != nil {
		return Entry{}, err
	}
	if _, err := tx.Exec(ctx, `UPDATE entries SET status = $2 WHERE id = $1`, entryID, EntryStatusReversed); err != nil {
		return Entry{}, fmt.Errorf("ledger: mark reversed: %w", err)
	}
	return reversal, nil
}

func (r *Repository) getEntryTx(ctx context.Context, tx pgx.Tx, id int64) (Entry, error) {
	var entry Entry
	err := tx.QueryRow(ctx, `
SELECT id, company_id, number, entry_date, description, source_id, status, posted_by, posted_at
FROM entries WHERE id = $1 FOR UPDATE`, id).
		Scan(&entry.ID, &entry.CompanyID, &entry.Number, &entry.Date, &entry.Description,
			&entry.SourceID, &entry.Status, &entry.PostedBy, &entry.PostedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Entry{}, ErrEntryNotFound
		}
		return Entry{}, err
	}
	rows, err := tx.Query(ctx, `
SELECT id, entry_id, account_id, debit, credit FROM entry_lines WHERE entry_id = $1 ORDER BY id`, id)
	if err != nil {
		return Entry{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var line EntryLine
		if err := rows.Scan(&line.ID, &line.EntryID, &line.AccountID, &line.Debit, &line.Credit); err != nil {
			return Entry{}, err
		}
		entry.Lines = append(entry.Lines, line)
	}
	return entry, rows.Err()
}

// Companies lists every company id with at least one posted entry.
func (r *Repository) Companies(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT DISTINCT company_id FROM entries ORDER BY company_id`)
	if err != nil {
		return nil, fmt.Errorf("ledger: companies: %w", err)
	}
	defer rows.Close()
	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// TrialTotals sums debits and credits across the whole company ledger.
func (r *Repository) TrialTotals(ctx context.Context, companyID int64) (TrialTotals, error) {
	var totals TrialTotals
	err := r.pool.QueryRow(ctx, `
SELECT COALESCE(SUM(l.debit), 0), COALESCE(SUM(l.credit), 0)
FROM entry_lines l
JOIN entries e ON e.id = l.entry_id
WHERE e.company_id = $1 AND e.status = 'POSTED'`, companyID).
		Scan(&totals.Debits, &totals.Credits)
	if err != nil {
		return TrialTotals{}, fmt.Errorf("ledger: trial totals: %w", err)
	}
	return totals, nil
}

// SyntheticPostings lists lines posted to summary accounts inside the
// range. A healthy ledger returns nothing here.
func (r *Repository) SyntheticPostings(ctx context.Context, companyID int64, from, to time.Time) ([]SyntheticPosting, error) {
	rows, err := r.pool.Query(ctx, `
SELECT a.id, a.code, COUNT(*)
FROM entry_lines l
JOIN entries e ON e.id = l.entry_id
JOIN accounts a ON a.id = l.account_id
WHERE e.company_id = $1 AND a.synthetic AND e.entry_date BETWEEN $2 AND $3
GROUP BY a.id, a.code
ORDER BY a.code`, companyID, from, to)
	if err != nil {
		return nil, fmt.Errorf("ledger: synthetic postings: %w", err)
	}
	defer rows.Close()
	var postings []SyntheticPosting
	for rows.Next() {
		var p SyntheticPosting
		if err := rows.Scan(&p.AccountID, &p.AccountCode, &p.LineCount); err != nil {
			return nil, err
		}
		postings = append(postings, p)
	}
	return postings, rows.Err()
}

// UnreconciledCount counts bank transactions inside the range that have
// not been matched to a ledger line yet.
func (r *Repository) UnreconciledCount(ctx context.Context, companyID int64, from, to time.Time) (int64, error) {
	var count int64
	err := r.pool.QueryRow(ctx, `
SELECT COUNT(*) FROM bank_transactions
WHERE company_id = $1 AND transaction_date BETWEEN $2 AND $3 AND reconciled_at IS NULL`,
		companyID, from, to).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("ledger: unreconciled count: %w", err)
	}
	return count, nil
}
