package close

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/razonete/razonete/internal/ledger"
)

// PeriodStatus enumerates accounting period lifecycle stages.
// REOPENED is an audit-flagged variant of OPEN: a reopened period
// accepts edits and can be closed again.
type PeriodStatus string

const (
	PeriodStatusOpen     PeriodStatus = "OPEN"
	PeriodStatusClosed   PeriodStatus = "CLOSED"
	PeriodStatusReopened PeriodStatus = "REOPENED"
)

// Writable reports whether the period accepts postings and closing.
func (s PeriodStatus) Writable() bool {
	return s == PeriodStatusOpen || s == PeriodStatusReopened
}

// AccountingPeriod is one calendar month of a company's ledger.
// Records are created lazily on first access and never deleted;
// periods for a company form a total order by (year, month).
type AccountingPeriod struct {
	ID                 int64
	CompanyID          int64
	Year               int
	Month              time.Month
	Status             PeriodStatus
	ClosedAt           *time.Time
	ClosedBy           *int64
	ReopenedAt         *time.Time
	ReopenReason       string
	NetResult          ledger.Cents
	BalanceTransferred bool
	ClosingEntryID     *int64
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// Key renders the period identity as "YYYY-MM".
func (p AccountingPeriod) Key() string {
	return fmt.Sprintf("%04d-%02d", p.Year, int(p.Month))
}

// Range returns the first and last day of the period.
func (p AccountingPeriod) Range() (time.Time, time.Time) {
	start := time.Date(p.Year, p.Month, 1, 0, 0, 0, 0, time.UTC)
	return start, start.AddDate(0, 1, -1)
}

// Before orders periods chronologically.
func (p AccountingPeriod) Before(year int, month time.Month) bool {
	if p.Year != year {
		return p.Year < year
	}
	return p.Month < month
}

// CloseInput identifies the period to close and who is closing it.
type CloseInput struct {
	CompanyID int64
	Year      int
	Month     time.Month
	ActorID   int64
}

// Validate checks the close request shape.
func (in CloseInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("close: company id required")
	}
	if in.ActorID == 0 {
		return errors.New("close: actor required")
	}
	return validateYearMonth(in.Year, in.Month)
}

// ReopenInput identifies the period to reopen. The reason is mandatory
// and persisted for audit.
type ReopenInput struct {
	CompanyID int64
	Year      int
	Month     time.Month
	ActorID   int64
	Reason    string
}

// Validate checks the reopen request shape.
func (in ReopenInput) Validate() error {
	if in.CompanyID == 0 {
		return errors.New("close: company id required")
	}
	if in.ActorID == 0 {
		return errors.New("close: actor required")
	}
	if strings.TrimSpace(in.Reason) == "" {
		return ErrReasonRequired
	}
	return validateYearMonth(in.Year, in.Month)
}

func validateYearMonth(year int, month time.Month) error {
	if year < 1900 || year > 9999 {
		return errors.New("close: year out of range")
	}
	if month < time.January || month > time.December {
		return errors.New("close: month out of range")
	}
	return nil
}

// Violation codes used in precondition reports. Each maps to a
// remediation screen on the caller's side.
const (
	ViolationUnbalancedLedger  = "UNBALANCED_LEDGER"
	ViolationSyntheticPosting  = "SYNTHETIC_POSTING"
	ViolationUnreconciledBank  = "UNRECONCILED_BANK"
	ViolationPriorPeriodOpen   = "PRIOR_PERIOD_OPEN"
)

// Violation is one itemized reason the close was rejected.
type Violation struct {
	Code   string
	Detail string
}

// PreconditionError reports every failed close precondition at once so
// the user can be directed to each remediation, not just the first.
type PreconditionError struct {
	Violations []Violation
}

func (e *PreconditionError) Error() string {
	codes := make([]string, 0, len(e.Violations))
	for _, v := range e.Violations {
		codes = append(codes, v.Code)
	}
	return fmt.Sprintf("close: preconditions failed: %s", strings.Join(codes, ", "))
}

// Is lets callers match the ordering class with errors.Is even though
// the ordering failure arrives inside the itemized list.
func (e *PreconditionError) Is(target error) bool {
	if target != ErrOrderingViolation {
		return false
	}
	for _, v := range e.Violations {
		if v.Code == ViolationPriorPeriodOpen {
			return true
		}
	}
	return false
}

var (
	// ErrOrderingViolation indicates a close/reopen out of the
	// required chronological sequence.
	ErrOrderingViolation = errors.New("close: period out of closing order")
	// ErrAlreadyClosed indicates the period is already closed.
	ErrAlreadyClosed = errors.New("close: period already closed")
	// ErrNotClosed indicates a reopen of a period that is not closed.
	ErrNotClosed = errors.New("close: period is not closed")
	// ErrReasonRequired indicates a reopen without audit reason.
	ErrReasonRequired = errors.New("close: reopen reason required")
	// ErrResultAccountMissing indicates the configured result/equity
	// account does not exist in the catalog.
	ErrResultAccountMissing = errors.New("close: result account not found in catalog")
)
