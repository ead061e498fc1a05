package reports

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
)

type fakeCatalog struct {
	accounts []catalog.Account
}

func (f *fakeCatalog) LoadSnapshot(ctx context.Context, companyID int64) (*catalog.Snapshot, error) {
	return catalog.NewSnapshot(f.accounts)
}

type fakeBalances struct {
	// keyed by period key then account id
	byPeriod map[string]map[int64]ledger.AccountBalance
}

func (f *fakeBalances) GetBalances(ctx context.Context, companyID int64, accountIDs []int64, from, to time.Time) ([]ledger.AccountBalance, error) {
	period := from.Format("2006-01")
	var out []ledger.AccountBalance
	for _, id := range accountIDs {
		if b, ok := f.byPeriod[period][id]; ok {
			b.AccountID = id
			out = append(out, b)
		}
	}
	return out, nil
}

func firmChart() []catalog.Account {
	return []catalog.Account{
		{ID: 1, Code: "1", Name: "Ativo", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Synthetic: true, Active: true},
		{ID: 2, Code: "1.1", Name: "Ativo Circulante", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Synthetic: true, Active: true},
		{ID: 3, Code: "1.1.1", Name: "Caixa", Type: catalog.AccountTypeAsset, Nature: catalog.NatureDebit, Analytical: true, Active: true},
		{ID: 4, Code: "2", Name: "Passivo", Type: catalog.AccountTypeLiability, Nature: catalog.NatureCredit, Synthetic: true, Active: true},
		{ID: 5, Code: "2.1", Name: "Passivo Circulante", Type: catalog.AccountTypeLiability, Nature: catalog.NatureCredit, Synthetic: true, Active: true},
		{ID: 6, Code: "2.1.1", Name: "Fornecedores", Type: catalog.AccountTypeLiability, Nature: catalog.NatureCredit, Analytical: true, Active: true},
		{ID: 7, Code: "2.3", Name: "Patrimônio Líquido", Type: catalog.AccountTypeEquity, Nature: catalog.NatureCredit, Synthetic: true, Active: true},
		{ID: 8, Code: "2.3.01", Name: "Resultado do Período", Type: catalog.AccountTypeEquity, Nature: catalog.NatureCredit, Analytical: true, Active: true},
		{ID: 9, Code: "3", Name: "Receitas", Type: catalog.AccountTypeRevenue, Nature: catalog.NatureCredit, Synthetic: true, Active: true},
		{ID: 10, Code: "3.1", Name: "Receita de Serviços", Type: catalog.AccountTypeRevenue, Nature: catalog.NatureCredit, Synthetic: true, Active: true},
		{ID: 11, Code: "3.1.1", Name: "Honorários", Type: catalog.AccountTypeRevenue, Nature: catalog.NatureCredit, Analytical: true, Active: true},
		{ID: 12, Code: "4", Name: "Despesas", Type: catalog.AccountTypeExpense, Nature: catalog.NatureDebit, Synthetic: true, Active: true},
		{ID: 13, Code: "4.1", Name: "Despesas Operacionais", Type: catalog.AccountTypeExpense, Nature: catalog.NatureDebit, Synthetic: true, Active: true},
		{ID: 14, Code: "4.1.1", Name: "Aluguel", Type: catalog.AccountTypeExpense, Nature: catalog.NatureDebit, Analytical: true, Active: true},
	}
}

func TestServiceBalanceSheet(t *testing.T) {
	balances := &fakeBalances{byPeriod: map[string]map[int64]ledger.AccountBalance{
		"2025-03": {
			3: {Opening: 400_00, Debits: 700_00, Credits: 100_00, Closing: 1000_00},
			6: {Opening: 0, Debits: 0, Credits: 300_00, Closing: -300_00},
			8: {Opening: 0, Debits: 0, Credits: 700_00, Closing: -700_00},
		},
		"2025-02": {
			3: {Closing: 400_00},
			6: {Closing: -150_00},
			8: {Closing: -250_00},
		},
	}}
	svc := NewService(&fakeCatalog{accounts: firmChart()}, balances, nil)

	compare := MonthPeriod(2025, 2)
	bs, err := svc.BalanceSheet(context.Background(), BalanceSheetRequest{
		CompanyID: 7,
		Period:    MonthPeriod(2025, 3),
		Compare:   &compare,
	})
	require.NoError(t, err)

	require.Equal(t, ledger.Cents(1000_00), bs.TotalAssets)
	require.Equal(t, ledger.Cents(1000_00), bs.TotalLiabilitiesEquity)
	require.True(t, bs.Balanced)
	require.Equal(t, ledger.Cents(0), bs.Difference)

	require.Len(t, bs.CurrentAssets.Lines, 1)
	require.Equal(t, "1.1", bs.CurrentAssets.Lines[0].Code)
	require.Equal(t, ledger.Cents(400_00), bs.PrevTotalAssets)
	require.Equal(t, ledger.Cents(300_00), bs.CurrentLiabilities.Total)
	require.Equal(t, ledger.Cents(700_00), bs.Equity.Total)
}

func TestServiceIncomeStatementWithBreakdown(t *testing.T) {
	balances := &fakeBalances{byPeriod: map[string]map[int64]ledger.AccountBalance{
		"2025-03": {
			11: {Credits: 1000_00, Closing: -1000_00},
			14: {Debits: 400_00, Closing: 400_00},
		},
		"2025-02": {
			11: {Credits: 800_00},
			14: {Debits: 500_00},
		},
	}}
	svc := NewService(&fakeCatalog{accounts: firmChart()}, balances, nil)

	compare := MonthPeriod(2025, 2)
	is, err := svc.IncomeStatement(context.Background(), IncomeStatementRequest{
		CompanyID: 7,
		Period:    MonthPeriod(2025, 3),
		Compare:   &compare,
		Breakdown: []Period{MonthPeriod(2025, 2), MonthPeriod(2025, 3)},
	})
	require.NoError(t, err)

	require.Equal(t, ledger.Cents(1000_00), is.Revenue.Total)
	require.Equal(t, ledger.Cents(400_00), is.Expenses.Total)
	require.Equal(t, ledger.Cents(600_00), is.NetResult)
	require.Equal(t, ledger.Cents(300_00), is.PreviousNetResult)

	// DRE convention: every line against total revenue.
	require.NotNil(t, is.Expenses.Percentage)
	require.Equal(t, float64(40), *is.Expenses.Percentage)

	require.Len(t, is.Breakdown, 2)
	require.Equal(t, ledger.Cents(300_00), is.Breakdown[0].Net)
	require.Equal(t, ledger.Cents(600_00), is.Breakdown[1].Net)
}

func TestServiceIncomeStatementVariance(t *testing.T) {
	balances := &fakeBalances{byPeriod: map[string]map[int64]ledger.AccountBalance{
		"2025-03": {11: {Credits: 1200_00}},
		"2025-02": {11: {Credits: 1000_00}},
	}}
	svc := NewService(&fakeCatalog{accounts: firmChart()}, balances, nil)

	compare := MonthPeriod(2025, 2)
	is, err := svc.IncomeStatement(context.Background(), IncomeStatementRequest{
		CompanyID: 7,
		Period:    MonthPeriod(2025, 3),
		Compare:   &compare,
	})
	require.NoError(t, err)

	line := is.Revenue.Lines[0]
	for len(line.Children) > 0 {
		line = line.Children[0]
	}
	require.Equal(t, "3.1.1", line.Code)
	require.NotNil(t, line.Variance)
	require.Equal(t, float64(20), *line.Variance)
}
