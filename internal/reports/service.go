package reports

import (
	"context"
	"log/slog"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
)

// CatalogSource loads the immutable account snapshot for a request.
type CatalogSource interface {
	LoadSnapshot(ctx context.Context, companyID int64) (*catalog.Snapshot, error)
}

// Service orchestrates catalog snapshot, balance fan-out, tree build,
// and statement assembly. Everything after the fetch is pure and
// synchronous; cancellation before assembly has no side effects.
type Service struct {
	catalog    CatalogSource
	aggregator *Aggregator
	logger     *slog.Logger

	bsClassifier  CodeClassifier
	dreClassifier CodeClassifier
}

// NewService constructs a Service with the default chart classifiers.
func NewService(catalogSource CatalogSource, balances BalanceSource, logger *slog.Logger) *Service {
	return &Service{
		catalog:       catalogSource,
		aggregator:    NewAggregator(balances),
		logger:        logger,
		bsClassifier:  DefaultBalanceSheetClassifier(),
		dreClassifier: DefaultIncomeClassifier(),
	}
}

// WithClassifiers overrides the chart classifiers for companies with a
// non-standard chart of accounts.
func (s *Service) WithClassifiers(balanceSheet, income CodeClassifier) {
	s.bsClassifier = balanceSheet
	s.dreClassifier = income
}

// BalanceSheetRequest selects the statement date range and an optional
// comparison range.
type BalanceSheetRequest struct {
	CompanyID int64
	Period    Period
	Compare   *Period
}

// IncomeStatementRequest additionally accepts discrete sub-periods for
// the multi-period DRE breakdown columns.
type IncomeStatementRequest struct {
	CompanyID int64
	Period    Period
	Compare   *Period
	Breakdown []Period
}

// BalanceSheet produces the assembled balance sheet for the request.
func (s *Service) BalanceSheet(ctx context.Context, req BalanceSheetRequest) (*BalanceSheet, error) {
	snapshot, err := s.catalog.LoadSnapshot(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	accounts := append(snapshot.UnderPrefix("1"), snapshot.UnderPrefix("2")...)
	periods := []Period{req.Period}
	if req.Compare != nil {
		periods = append(periods, *req.Compare)
	}
	index, err := s.aggregator.Fetch(ctx, req.CompanyID, catalog.IDs(accounts), periods)
	if err != nil {
		return nil, err
	}
	rc := ReportContext{Snapshot: snapshot, Balances: index}

	values := rc.closingValues(accounts, req.Period.Key)
	previous := map[int64]ledger.Cents{}
	if req.Compare != nil {
		previous = rc.closingValues(accounts, req.Compare.Key)
	}
	tree := append(
		BuildHierarchy(accounts, values, previous, "1"),
		BuildHierarchy(accounts, values, previous, "2")...,
	)
	bs := AssembleBalanceSheet(tree, s.bsClassifier, req.Period, req.Compare)
	if !bs.Balanced && s.logger != nil {
		s.logger.Warn("balance sheet out of equilibrium",
			slog.Int64("company_id", req.CompanyID),
			slog.String("period", req.Period.Key),
			slog.Int64("difference_cents", int64(bs.Difference)))
	}
	return bs, nil
}

// IncomeStatement produces the assembled DRE, including the optional
// monthly breakdown columns.
func (s *Service) IncomeStatement(ctx context.Context, req IncomeStatementRequest) (*IncomeStatement, error) {
	snapshot, err := s.catalog.LoadSnapshot(ctx, req.CompanyID)
	if err != nil {
		return nil, err
	}
	accounts := append(snapshot.UnderPrefix("3"), snapshot.UnderPrefix("4")...)
	periods := []Period{req.Period}
	if req.Compare != nil {
		periods = append(periods, *req.Compare)
	}
	periods = append(periods, req.Breakdown...)
	index, err := s.aggregator.Fetch(ctx, req.CompanyID, catalog.IDs(accounts), periods)
	if err != nil {
		return nil, err
	}
	rc := ReportContext{Snapshot: snapshot, Balances: index}

	values := rc.movementValues(accounts, req.Period.Key)
	previous := map[int64]ledger.Cents{}
	if req.Compare != nil {
		previous = rc.movementValues(accounts, req.Compare.Key)
	}
	tree := append(
		BuildHierarchy(accounts, values, previous, "3"),
		BuildHierarchy(accounts, values, previous, "4")...,
	)
	is := AssembleIncomeStatement(tree, s.dreClassifier, req.Period, req.Compare)
	for _, sub := range req.Breakdown {
		is.Breakdown = append(is.Breakdown, rc.periodSummary(accounts, sub))
	}
	return is, nil
}

// closingValues maps each account to its closing balance for the
// period, signed by the account's normal balance side.
func (rc ReportContext) closingValues(accounts []catalog.Account, period string) map[int64]ledger.Cents {
	values := make(map[int64]ledger.Cents, len(accounts))
	for _, acc := range accounts {
		if bal, ok := rc.Balances.Balance(acc.ID, period); ok {
			values[acc.ID] = signed(acc.Nature, bal.Closing)
		}
	}
	return values
}

// movementValues maps each account to its period movement, signed by
// the account's normal balance side.
func (rc ReportContext) movementValues(accounts []catalog.Account, period string) map[int64]ledger.Cents {
	values := make(map[int64]ledger.Cents, len(accounts))
	for _, acc := range accounts {
		if bal, ok := rc.Balances.Balance(acc.ID, period); ok {
			values[acc.ID] = signed(acc.Nature, bal.Debits-bal.Credits)
		}
	}
	return values
}

// periodSummary totals analytical temporary accounts for one breakdown
// column. Synthetic accounts are skipped to avoid double counting.
func (rc ReportContext) periodSummary(accounts []catalog.Account, period Period) PeriodSummary {
	summary := PeriodSummary{Period: period}
	for _, acc := range accounts {
		if acc.Synthetic {
			continue
		}
		bal, ok := rc.Balances.Balance(acc.ID, period.Key)
		if !ok {
			continue
		}
		value := signed(acc.Nature, bal.Debits-bal.Credits)
		switch acc.Type {
		case catalog.AccountTypeRevenue:
			summary.Revenue += value
		case catalog.AccountTypeExpense:
			summary.Expense += value
		}
	}
	summary.Net = summary.Revenue - summary.Expense
	return summary
}

func signed(nature catalog.AccountNature, debitBalance ledger.Cents) ledger.Cents {
	if nature == catalog.NatureCredit {
		return -debitBalance
	}
	return debitBalance
}
