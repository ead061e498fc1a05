package reportshttp

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/razonete/razonete/internal/ledger"
	"github.com/razonete/razonete/internal/reports"
)

// ptBR renders monetary strings the way the firm's statements print
// them. Raw cents travel alongside so API consumers never parse the
// localized text.
var ptBR = message.NewPrinter(language.BrazilianPortuguese)

func formatCents(c ledger.Cents) string {
	return ptBR.Sprintf("R$ %.2f", c.Float())
}

// LineView is one statement row in the response body.
type LineView struct {
	Code           string     `json:"code"`
	Name           string     `json:"name"`
	Value          int64      `json:"value_cents"`
	ValueDisplay   string     `json:"value"`
	PreviousValue  int64      `json:"previous_value_cents"`
	Percentage     *float64   `json:"percentage"`
	Variance       *float64   `json:"variance"`
	Level          int        `json:"level"`
	Synthetic      bool       `json:"synthetic"`
	Children       []LineView `json:"children,omitempty"`
}

// SectionView groups lines with their totals.
type SectionView struct {
	Label         string     `json:"label"`
	Lines         []LineView `json:"lines"`
	Total         int64      `json:"total_cents"`
	TotalDisplay  string     `json:"total"`
	PreviousTotal int64      `json:"previous_total_cents"`
	Percentage    *float64   `json:"percentage"`
}

// BalanceSheetView is the response body for the balance sheet report.
type BalanceSheetView struct {
	Period                 string      `json:"period"`
	Compare                string      `json:"compare,omitempty"`
	CurrentAssets          SectionView `json:"current_assets"`
	NonCurrentAssets       SectionView `json:"non_current_assets"`
	CurrentLiabilities     SectionView `json:"current_liabilities"`
	NonCurrentLiabilities  SectionView `json:"non_current_liabilities"`
	Equity                 SectionView `json:"equity"`
	TotalAssets            int64       `json:"total_assets_cents"`
	TotalAssetsDisplay     string      `json:"total_assets"`
	TotalLiabilitiesEquity int64       `json:"total_liabilities_equity_cents"`
	Balanced               bool        `json:"balanced"`
	DifferenceCents        int64       `json:"difference_cents"`
}

// PeriodSummaryView is one multi-period DRE column.
type PeriodSummaryView struct {
	Period  string `json:"period"`
	Revenue int64  `json:"revenue_cents"`
	Expense int64  `json:"expense_cents"`
	Net     int64  `json:"net_cents"`
}

// IncomeStatementView is the response body for the DRE.
type IncomeStatementView struct {
	Period            string              `json:"period"`
	Compare           string              `json:"compare,omitempty"`
	Revenue           SectionView         `json:"revenue"`
	Expenses          SectionView         `json:"expenses"`
	NetResult         int64               `json:"net_result_cents"`
	NetResultDisplay  string              `json:"net_result"`
	PreviousNetResult int64               `json:"previous_net_result_cents"`
	Breakdown         []PeriodSummaryView `json:"breakdown,omitempty"`
}

func newLineViews(lines []reports.LineItem) []LineView {
	views := make([]LineView, 0, len(lines))
	for _, line := range lines {
		views = append(views, LineView{
			Code:          line.Code,
			Name:          line.Name,
			Value:         int64(line.Value),
			ValueDisplay:  formatCents(line.Value),
			PreviousValue: int64(line.PreviousValue),
			Percentage:    line.Percentage,
			Variance:      line.Variance,
			Level:         line.Level,
			Synthetic:     line.Synthetic,
			Children:      newLineViews(line.Children),
		})
	}
	if len(views) == 0 {
		return nil
	}
	return views
}

func newSectionView(section reports.Section) SectionView {
	return SectionView{
		Label:         section.Label,
		Lines:         newLineViews(section.Lines),
		Total:         int64(section.Total),
		TotalDisplay:  formatCents(section.Total),
		PreviousTotal: int64(section.PreviousTotal),
		Percentage:    section.Percentage,
	}
}

func newBalanceSheetView(bs *reports.BalanceSheet) BalanceSheetView {
	view := BalanceSheetView{
		Period:                 bs.Period.Key,
		CurrentAssets:          newSectionView(bs.CurrentAssets),
		NonCurrentAssets:       newSectionView(bs.NonCurrentAssets),
		CurrentLiabilities:     newSectionView(bs.CurrentLiabilities),
		NonCurrentLiabilities:  newSectionView(bs.NonCurrentLiabilities),
		Equity:                 newSectionView(bs.Equity),
		TotalAssets:            int64(bs.TotalAssets),
		TotalAssetsDisplay:     formatCents(bs.TotalAssets),
		TotalLiabilitiesEquity: int64(bs.TotalLiabilitiesEquity),
		Balanced:               bs.Balanced,
		DifferenceCents:        int64(bs.Difference),
	}
	if bs.Compare != nil {
		view.Compare = bs.Compare.Key
	}
	return view
}

func newIncomeStatementView(is *reports.IncomeStatement) IncomeStatementView {
	view := IncomeStatementView{
		Period:            is.Period.Key,
		Revenue:           newSectionView(is.Revenue),
		Expenses:          newSectionView(is.Expenses),
		NetResult:         int64(is.NetResult),
		NetResultDisplay:  formatCents(is.NetResult),
		PreviousNetResult: int64(is.PreviousNetResult),
	}
	if is.Compare != nil {
		view.Compare = is.Compare.Key
	}
	for _, sub := range is.Breakdown {
		view.Breakdown = append(view.Breakdown, PeriodSummaryView{
			Period:  sub.Period.Key,
			Revenue: int64(sub.Revenue),
			Expense: int64(sub.Expense),
			Net:     int64(sub.Net),
		})
	}
	return view
}
