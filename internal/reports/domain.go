package reports

import (
	"errors"
	"fmt"
	"time"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
)

// Period is a date range identified by a key such as "2025-01" or
// "2025" that balance lookups are indexed under.
type Period struct {
	Key   string
	Start time.Time
	End   time.Time
}

// Validate rejects inverted or unkeyed ranges.
func (p Period) Validate() error {
	if p.Key == "" {
		return errors.New("reports: period key required")
	}
	if p.Start.IsZero() || p.End.IsZero() {
		return errors.New("reports: period start and end required")
	}
	if p.Start.After(p.End) {
		return errors.New("reports: period start after end")
	}
	return nil
}

// MonthPeriod builds the calendar-month range for a period key.
func MonthPeriod(year int, month time.Month) Period {
	start := time.Date(year, month, 1, 0, 0, 0, 0, time.UTC)
	return Period{
		Key:   fmt.Sprintf("%04d-%02d", year, int(month)),
		Start: start,
		End:   start.AddDate(0, 1, -1),
	}
}

// LineItem is one row of a statement tree. A synthetic line's value is
// always the sum of its direct children, recomputed during the build.
type LineItem struct {
	Code          string
	Name          string
	Value         ledger.Cents
	PreviousValue ledger.Cents
	// Percentage is the vertical-analysis share of the section basis.
	// Nil means not applicable (zero basis), never zero-by-default.
	Percentage *float64
	// Variance is the period-over-period change in percent. Nil when
	// the previous value is not a usable base.
	Variance  *float64
	Level     int
	Synthetic bool
	Children  []LineItem
}

// SectionKind identifies a statement section.
type SectionKind string

const (
	SectionCurrentAssets         SectionKind = "CURRENT_ASSETS"
	SectionNonCurrentAssets      SectionKind = "NON_CURRENT_ASSETS"
	SectionCurrentLiabilities    SectionKind = "CURRENT_LIABILITIES"
	SectionNonCurrentLiabilities SectionKind = "NON_CURRENT_LIABILITIES"
	SectionEquity                SectionKind = "EQUITY"
	SectionRevenue               SectionKind = "REVENUE"
	SectionExpenses              SectionKind = "EXPENSES"
)

// Section groups classified lines with their totals.
type Section struct {
	Kind          SectionKind
	Label         string
	Lines         []LineItem
	Total         ledger.Cents
	PreviousTotal ledger.Cents
	Percentage    *float64
}

// BalanceSheet is the assembled two-sided statement.
type BalanceSheet struct {
	Period                  Period
	Compare                 *Period
	CurrentAssets           Section
	NonCurrentAssets        Section
	CurrentLiabilities      Section
	NonCurrentLiabilities   Section
	Equity                  Section
	TotalAssets             ledger.Cents
	TotalLiabilitiesEquity  ledger.Cents
	PrevTotalAssets         ledger.Cents
	PrevTotalLiabEquity     ledger.Cents
	Balanced                bool
	Difference              ledger.Cents
}

// PeriodSummary is one column of a multi-period DRE breakdown.
type PeriodSummary struct {
	Period  Period
	Revenue ledger.Cents
	Expense ledger.Cents
	Net     ledger.Cents
}

// IncomeStatement is the assembled DRE.
type IncomeStatement struct {
	Period            Period
	Compare           *Period
	Revenue           Section
	Expenses          Section
	NetResult         ledger.Cents
	PreviousNetResult ledger.Cents
	Breakdown         []PeriodSummary
}

// ReportContext carries the per-request inputs through the pure
// pipeline. Its lifetime is exactly one report; there is no
// process-wide balance cache.
type ReportContext struct {
	Snapshot *catalog.Snapshot
	Balances *BalanceIndex
}

// RangeError reports that the balance query for one period failed. The
// whole aggregation is aborted; partial indexes are never exposed.
type RangeError struct {
	Period Period
	Err    error
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("reports: balances unavailable for %s: %v", e.Period.Key, e.Err)
}

func (e *RangeError) Unwrap() error {
	return e.Err
}

// ErrInvalidHierarchy indicates structurally impossible catalog input.
var ErrInvalidHierarchy = errors.New("reports: invalid account hierarchy")

// ErrNoPeriods indicates an aggregation request without any range.
var ErrNoPeriods = errors.New("reports: at least one period required")
