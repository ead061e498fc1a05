package ledger

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Cents is a monetary amount in minor units. All ledger arithmetic is
// integer arithmetic; floats appear only in derived percentages.
type Cents int64

// Abs returns the absolute magnitude of the amount.
func (c Cents) Abs() Cents {
	if c < 0 {
		return -c
	}
	return c
}

// Float converts to display currency units.
func (c Cents) Float() float64 {
	return float64(c) / 100
}

// EntryStatus enumerates journal entry lifecycle values.
type EntryStatus string

const (
	EntryStatusPosted   EntryStatus = "POSTED"
	EntryStatusReversed EntryStatus = "REVERSED"
)

// Entry is a posted journal entry with its double-entry lines.
type Entry struct {
	ID          int64
	CompanyID   int64
	Number      int64
	Date        time.Time
	Description string
	SourceID    uuid.UUID
	Status      EntryStatus
	PostedBy    int64
	PostedAt    time.Time
	Lines       []EntryLine
}

// EntryLine stores a debit or credit amount against one account.
type EntryLine struct {
	ID        int64
	EntryID   int64
	AccountID int64
	Debit     Cents
	Credit    Cents
}

// LineInput is one leg of an entry to be appended.
type LineInput struct {
	AccountID int64
	Debit     Cents
	Credit    Cents
}

// EntryInput bundles everything needed to append an entry atomically.
type EntryInput struct {
	CompanyID   int64
	Date        time.Time
	Description string
	SourceID    uuid.UUID
	PostedBy    int64
	Lines       []LineInput
}

// Validate enforces the double-entry contract before any write.
func (in EntryInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("ledger: company id required")
	}
	if in.Date.IsZero() {
		return errors.New("ledger: entry date required")
	}
	if len(in.Lines) < 2 {
		return ErrTooFewLines
	}
	var debits, credits Cents
	for _, line := range in.Lines {
		if line.AccountID == 0 {
			return errors.New("ledger: line account id required")
		}
		if line.Debit < 0 || line.Credit < 0 {
			return ErrNegativeAmount
		}
		if (line.Debit == 0) == (line.Credit == 0) {
			return errors.New("ledger: line must carry exactly one of debit or credit")
		}
		debits += line.Debit
		credits += line.Credit
	}
	if debits != credits {
		return ErrUnbalanced
	}
	return nil
}

// AccountBalance aggregates ledger movement for one account over a range.
type AccountBalance struct {
	AccountID int64
	Opening   Cents
	Debits    Cents
	Credits   Cents
	Closing   Cents
}

// Line is a statement row returned by GetLedgerLines, ordered by date
// with a running balance.
type Line struct {
	EntryID     int64
	Date        time.Time
	Debit       Cents
	Credit      Cents
	Running     Cents
	Description string
}

// TrialTotals carries the company-wide debit/credit sums used by the
// global equilibrium check.
type TrialTotals struct {
	Debits  Cents
	Credits Cents
}

// Difference returns the absolute debit/credit gap.
func (t TrialTotals) Difference() Cents {
	return (t.Debits - t.Credits).Abs()
}

// SyntheticPosting reports lines posted directly to a summary account,
// which closing treats as a precondition violation.
type SyntheticPosting struct {
	AccountID   int64
	AccountCode string
	LineCount   int64
}

var (
	// ErrUnbalanced indicates total debits != total credits.
	ErrUnbalanced = errors.New("ledger: entry lines must balance")
	// ErrTooFewLines indicates less than two lines.
	ErrTooFewLines = errors.New("ledger: entry requires at least two lines")
	// ErrNegativeAmount indicates a negative debit or credit.
	ErrNegativeAmount = errors.New("ledger: amounts must be non-negative")
	// ErrEntryNotFound indicates a missing entry.
	ErrEntryNotFound = errors.New("ledger: entry not found")
	// ErrDuplicateSource indicates the source id was already posted.
	ErrDuplicateSource = errors.New("ledger: source already posted")
)
