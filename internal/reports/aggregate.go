package reports

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/razonete/razonete/internal/ledger"
)

// BalanceSource is the period balance query the aggregator fans out
// over. Retries and timeouts are the source's concern, not ours.
type BalanceSource interface {
	GetBalances(ctx context.Context, companyID int64, accountIDs []int64, from, to time.Time) ([]ledger.AccountBalance, error)
}

// balanceKey indexes one account's movement inside one period.
type balanceKey struct {
	accountID int64
	period    string
}

// BalanceIndex holds every balance resolved for one report request,
// keyed by (account, period). It is only handed out once all fetches
// succeeded, so readers never observe a partially populated index.
type BalanceIndex struct {
	mu sync.Mutex
	m  map[balanceKey]ledger.AccountBalance
}

func newBalanceIndex() *BalanceIndex {
	return &BalanceIndex{m: make(map[balanceKey]ledger.AccountBalance)}
}

func (ix *BalanceIndex) put(period string, balances []ledger.AccountBalance) {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	for _, b := range balances {
		ix.m[balanceKey{accountID: b.AccountID, period: period}] = b
	}
}

// Balance returns the movement for an account in a period. Absence is
// a valid zero balance, not an error.
func (ix *BalanceIndex) Balance(accountID int64, period string) (ledger.AccountBalance, bool) {
	b, ok := ix.m[balanceKey{accountID: accountID, period: period}]
	return b, ok
}

// Aggregator resolves one balance query per distinct period and joins
// the results into a BalanceIndex.
type Aggregator struct {
	source BalanceSource
}

// NewAggregator constructs an Aggregator over the given source.
func NewAggregator(source BalanceSource) *Aggregator {
	return &Aggregator{source: source}
}

// Fetch issues the per-period queries concurrently and returns the
// joined index. If any period fails the whole aggregation fails with a
// RangeError naming it; zeros are never substituted for a failed range.
func (a *Aggregator) Fetch(ctx context.Context, companyID int64, accountIDs []int64, periods []Period) (*BalanceIndex, error) {
	if len(periods) == 0 {
		return nil, ErrNoPeriods
	}
	for _, p := range periods {
		if err := p.Validate(); err != nil {
			return nil, err
		}
	}
	index := newBalanceIndex()
	g, ctx := errgroup.WithContext(ctx)
	for _, period := range periods {
		g.Go(func() error {
			balances, err := a.source.GetBalances(ctx, companyID, accountIDs, period.Start, period.End)
			if err != nil {
				return &RangeError{Period: period, Err: err}
			}
			index.put(period.Key, balances)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return index, nil
}
