package reports

import (
	"math"
	"sort"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
)

// ToleranceCents is the fixed equilibrium tolerance, expressed in minor
// units: a balance sheet is balanced when assets and liabilities+equity
// differ by at most one cent.
const ToleranceCents ledger.Cents = 1

// CodeClassifier maps a line's hierarchy code to a statement section by
// longest configured prefix. Lines matching no prefix are left out of
// the statement.
type CodeClassifier struct {
	prefixes map[string]SectionKind
}

// NewCodeClassifier builds a classifier from a prefix table.
func NewCodeClassifier(prefixes map[string]SectionKind) CodeClassifier {
	table := make(map[string]SectionKind, len(prefixes))
	for prefix, kind := range prefixes {
		table[prefix] = kind
	}
	return CodeClassifier{prefixes: table}
}

// Classify returns the section for a code, preferring the longest
// matching prefix.
func (c CodeClassifier) Classify(code string) (SectionKind, bool) {
	var (
		best    string
		kind    SectionKind
		matched bool
	)
	for prefix, k := range c.prefixes {
		if catalog.HasPrefix(code, prefix) && len(prefix) >= len(best) {
			best, kind, matched = prefix, k, true
		}
	}
	return kind, matched
}

// DefaultBalanceSheetClassifier follows the firm's standard chart:
// 1.x assets, 2.1/2.2 liabilities, 2.3 equity.
func DefaultBalanceSheetClassifier() CodeClassifier {
	return NewCodeClassifier(map[string]SectionKind{
		"1.1": SectionCurrentAssets,
		"1.2": SectionNonCurrentAssets,
		"2.1": SectionCurrentLiabilities,
		"2.2": SectionNonCurrentLiabilities,
		"2.3": SectionEquity,
	})
}

// DefaultIncomeClassifier follows the standard chart: 3.x revenue,
// 4.x expenses.
func DefaultIncomeClassifier() CodeClassifier {
	return NewCodeClassifier(map[string]SectionKind{
		"3": SectionRevenue,
		"4": SectionExpenses,
	})
}

// AssembleBalanceSheet distributes the tree into sections, totals them,
// applies vertical analysis against each side's grand total, and runs
// the equilibrium check. An imbalance is reported, never corrected.
func AssembleBalanceSheet(tree []LineItem, classifier CodeClassifier, period Period, compare *Period) *BalanceSheet {
	bs := &BalanceSheet{
		Period:                period,
		Compare:               compare,
		CurrentAssets:         Section{Kind: SectionCurrentAssets, Label: "Ativo Circulante"},
		NonCurrentAssets:      Section{Kind: SectionNonCurrentAssets, Label: "Ativo Não Circulante"},
		CurrentLiabilities:    Section{Kind: SectionCurrentLiabilities, Label: "Passivo Circulante"},
		NonCurrentLiabilities: Section{Kind: SectionNonCurrentLiabilities, Label: "Passivo Não Circulante"},
		Equity:                Section{Kind: SectionEquity, Label: "Patrimônio Líquido"},
	}
	sections := map[SectionKind]*Section{
		SectionCurrentAssets:         &bs.CurrentAssets,
		SectionNonCurrentAssets:      &bs.NonCurrentAssets,
		SectionCurrentLiabilities:    &bs.CurrentLiabilities,
		SectionNonCurrentLiabilities: &bs.NonCurrentLiabilities,
		SectionEquity:                &bs.Equity,
	}
	distribute(tree, classifier, sections)

	bs.TotalAssets = bs.CurrentAssets.Total + bs.NonCurrentAssets.Total
	bs.TotalLiabilitiesEquity = bs.CurrentLiabilities.Total + bs.NonCurrentLiabilities.Total + bs.Equity.Total
	bs.PrevTotalAssets = bs.CurrentAssets.PreviousTotal + bs.NonCurrentAssets.PreviousTotal
	bs.PrevTotalLiabEquity = bs.CurrentLiabilities.PreviousTotal + bs.NonCurrentLiabilities.PreviousTotal + bs.Equity.PreviousTotal

	applyAnalysis(&bs.CurrentAssets, bs.TotalAssets)
	applyAnalysis(&bs.NonCurrentAssets, bs.TotalAssets)
	applyAnalysis(&bs.CurrentLiabilities, bs.TotalLiabilitiesEquity)
	applyAnalysis(&bs.NonCurrentLiabilities, bs.TotalLiabilitiesEquity)
	applyAnalysis(&bs.Equity, bs.TotalLiabilitiesEquity)

	bs.Difference = (bs.TotalAssets - bs.TotalLiabilitiesEquity).Abs()
	bs.Balanced = bs.Difference <= ToleranceCents
	return bs
}

// AssembleIncomeStatement distributes the tree into revenue and expense
// sections; by convention every DRE line is expressed against total
// revenue.
func AssembleIncomeStatement(tree []LineItem, classifier CodeClassifier, period Period, compare *Period) *IncomeStatement {
	is := &IncomeStatement{
		Period:   period,
		Compare:  compare,
		Revenue:  Section{Kind: SectionRevenue, Label: "Receitas"},
		Expenses: Section{Kind: SectionExpenses, Label: "Despesas"},
	}
	sections := map[SectionKind]*Section{
		SectionRevenue:  &is.Revenue,
		SectionExpenses: &is.Expenses,
	}
	distribute(tree, classifier, sections)

	basis := is.Revenue.Total
	applyAnalysis(&is.Revenue, basis)
	applyAnalysis(&is.Expenses, basis)

	is.NetResult = is.Revenue.Total - is.Expenses.Total
	is.PreviousNetResult = is.Revenue.PreviousTotal - is.Expenses.PreviousTotal
	return is
}

func distribute(tree []LineItem, classifier CodeClassifier, sections map[SectionKind]*Section) {
	for _, line := range tree {
		kind, ok := classifier.Classify(line.Code)
		if !ok {
			// Grouping roots such as "1" or "2" carry no section of
			// their own; their children are classified individually.
			distribute(line.Children, classifier, sections)
			continue
		}
		section, ok := sections[kind]
		if !ok {
			continue
		}
		section.Lines = append(section.Lines, line)
		section.Total += line.Value
		section.PreviousTotal += line.PreviousValue
	}
	for _, section := range sections {
		sort.Slice(section.Lines, func(i, j int) bool {
			return catalog.CompareCodes(section.Lines[i].Code, section.Lines[j].Code) < 0
		})
	}
}

// applyAnalysis fills percentage and variance for a section and its
// lines against the statement's defining total.
func applyAnalysis(section *Section, basis ledger.Cents) {
	section.Percentage = percentOf(section.Total, basis)
	for i := range section.Lines {
		annotate(&section.Lines[i], basis)
	}
}

func annotate(line *LineItem, basis ledger.Cents) {
	line.Percentage = percentOf(line.Value, basis)
	line.Variance = varianceOf(line.Value, line.PreviousValue)
	for i := range line.Children {
		annotate(&line.Children[i], basis)
	}
}

// percentOf returns value as a share of basis, or nil when the basis is
// zero. Nil means not applicable; it must never render as 0%.
func percentOf(value, basis ledger.Cents) *float64 {
	if basis == 0 {
		return nil
	}
	pct := round2(float64(value) / float64(basis) * 100)
	return &pct
}

// varianceOf returns the period-over-period change in percent, or nil
// when the previous value is not a usable base. A move from zero has no
// defined percentage change.
func varianceOf(value, previous ledger.Cents) *float64 {
	if previous <= 0 {
		return nil
	}
	pct := round2(float64(value-previous) / float64(previous) * 100)
	return &pct
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
