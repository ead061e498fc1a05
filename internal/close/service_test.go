package close

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
	"github.com/razonete/razonete/internal/shared"
)

var errMarkFailed = errors.New("mark closed failed")

// memRepo is an in-memory Repository with commit-or-restore transaction
// semantics so atomicity tests see exactly what a rolled back pg
// transaction would leave behind.
type memRepo struct {
	nextPeriodID int64
	nextEntryID  int64
	periods      map[string]*AccountingPeriod
	entries      map[int64]*ledger.Entry

	failMarkClosed bool
	failAppend     bool
}

func newMemRepo() *memRepo {
	return &memRepo{
		periods: map[string]*AccountingPeriod{},
		entries: map[int64]*ledger.Entry{},
	}
}

func periodMapKey(companyID int64, year int, month time.Month) string {
	return fmt.Sprintf("%d/%04d-%02d", companyID, year, int(month))
}

func (r *memRepo) GetOrCreatePeriod(_ context.Context, companyID int64, year int, month time.Month) (AccountingPeriod, error) {
	key := periodMapKey(companyID, year, month)
	if p, ok := r.periods[key]; ok {
		return *p, nil
	}
	r.nextPeriodID++
	p := &AccountingPeriod{
		ID:        r.nextPeriodID,
		CompanyID: companyID,
		Year:      year,
		Month:     month,
		Status:    PeriodStatusOpen,
	}
	r.periods[key] = p
	return *p, nil
}

func (r *memRepo) ListPeriods(_ context.Context, companyID int64) ([]AccountingPeriod, error) {
	var out []AccountingPeriod
	for _, p := range r.periods {
		if p.CompanyID == companyID {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Before(out[j].Year, out[j].Month)
	})
	return out, nil
}

func (r *memRepo) EarlierOpenPeriods(_ context.Context, companyID int64, year int, month time.Month) ([]AccountingPeriod, error) {
	var out []AccountingPeriod
	for _, p := range r.periods {
		if p.CompanyID == companyID && p.Before(year, month) && p.Status != PeriodStatusClosed {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRepo) LaterClosedPeriods(_ context.Context, companyID int64, year int, month time.Month) ([]AccountingPeriod, error) {
	var out []AccountingPeriod
	probe := AccountingPeriod{Year: year, Month: month}
	for _, p := range r.periods {
		if p.CompanyID == companyID && probe.Before(p.Year, p.Month) && p.Status == PeriodStatusClosed {
			out = append(out, *p)
		}
	}
	return out, nil
}

func (r *memRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	savedPeriods := make(map[string]*AccountingPeriod, len(r.periods))
	for k, p := range r.periods {
		cp := *p
		savedPeriods[k] = &cp
	}
	savedEntries := make(map[int64]*ledger.Entry, len(r.entries))
	for id, e := range r.entries {
		ce := *e
		savedEntries[id] = &ce
	}
	savedNextEntry := r.nextEntryID

	if err := fn(ctx, &memTx{repo: r}); err != nil {
		r.periods = savedPeriods
		r.entries = savedEntries
		r.nextEntryID = savedNextEntry
		return err
	}
	return nil
}

type memTx struct {
	repo *memRepo
}

func (tx *memTx) GetPeriodForUpdate(_ context.Context, companyID int64, year int, month time.Month) (AccountingPeriod, error) {
	p, ok := tx.repo.periods[periodMapKey(companyID, year, month)]
	if !ok {
		return AccountingPeriod{}, errors.New("period not found")
	}
	return *p, nil
}

func (tx *memTx) MarkClosed(_ context.Context, periodID, actorID int64, closedAt time.Time, netResult ledger.Cents, entryID *int64) error {
	if tx.repo.failMarkClosed {
		return errMarkFailed
	}
	for _, p := range tx.repo.periods {
		if p.ID == periodID {
			p.Status = PeriodStatusClosed
			p.ClosedAt = &closedAt
			p.ClosedBy = &actorID
			p.NetResult = netResult
			p.BalanceTransferred = entryID != nil
			p.ClosingEntryID = entryID
			return nil
		}
	}
	return errors.New("period not found")
}

func (tx *memTx) MarkReopened(_ context.Context, periodID, _ int64, reopenedAt time.Time, reason string) error {
	for _, p := range tx.repo.periods {
		if p.ID == periodID {
			p.Status = PeriodStatusReopened
			p.ReopenedAt = &reopenedAt
			p.ReopenReason = reason
			return nil
		}
	}
	return errors.New("period not found")
}

func (tx *memTx) AppendEntry(_ context.Context, in ledger.EntryInput) (ledger.Entry, error) {
	if tx.repo.failAppend {
		return ledger.Entry{}, errors.New("append failed")
	}
	if err := in.Validate(); err != nil {
		return ledger.Entry{}, err
	}
	tx.repo.nextEntryID++
	entry := ledger.Entry{
		ID:          tx.repo.nextEntryID,
		CompanyID:   in.CompanyID,
		Date:        in.Date,
		Description: in.Description,
		SourceID:    in.SourceID,
		Status:      ledger.EntryStatusPosted,
		PostedBy:    in.PostedBy,
	}
	for _, line := range in.Lines {
		entry.Lines = append(entry.Lines, ledger.EntryLine{
			EntryID:   entry.ID,
			AccountID: line.AccountID,
			Debit:     line.Debit,
			Credit:    line.Credit,
		})
	}
	tx.repo.entries[entry.ID] = &entry
	return entry, nil
}

func (tx *memTx) ReverseEntry(_ context.Context, entryID int64, date time.Time, description string, actorID int64) (ledger.Entry, error) {
	original, ok := tx.repo.entries[entryID]
	if !ok {
		return ledger.Entry{}, ledger.ErrEntryNotFound
	}
	original.Status = ledger.EntryStatusReversed
	tx.repo.nextEntryID++
	reversal := ledger.Entry{
		ID:          tx.repo.nextEntryID,
		CompanyID:   original.CompanyID,
		Date:        date,
		Description: description,
		Status:      ledger.EntryStatusPosted,
		PostedBy:    actorID,
	}
	for _, line := range original.Lines {
		reversal.Lines = append(reversal.Lines, ledger.EntryLine{
			EntryID:   reversal.ID,
			AccountID: line.AccountID,
			Debit:     line.Credit,
			Credit:    line.Debit,
		})
	}
	tx.repo.entries[reversal.ID] = &reversal
	return reversal, nil
}

type fakeChecks struct {
	totals       ledger.TrialTotals
	synthetic    []ledger.SyntheticPosting
	unreconciled int64
	balances     map[int64]ledger.AccountBalance
}

func (f *fakeChecks) TrialTotals(context.Context, int64) (ledger.TrialTotals, error) {
	return f.totals, nil
}

func (f *fakeChecks) SyntheticPostings(context.Context, int64, time.Time, time.Time) ([]ledger.SyntheticPosting, error) {
	return f.synthetic, nil
}

func (f *fakeChecks) UnreconciledCount(context.Context, int64, time.Time, time.Time) (int64, error) {
	return f.unreconciled, nil
}

func (f *fakeChecks) GetBalances(_ context.Context, _ int64, accountIDs []int64, _, _ time.Time) ([]ledger.AccountBalance, error) {
	var out []ledger.AccountBalance
	for _, id := range accountIDs {
		if b, ok := f.balances[id]; ok {
			b.AccountID = id
			out = append(out, b)
		}
	}
	return out, nil
}

type fakeCatalog struct {
	accounts []catalog.Account
}

func (f *fakeCatalog) LoadSnapshot(context.Context, int64) (*catalog.Snapshot, error) {
	return catalog.NewSnapshot(f.accounts)
}

type memLocker struct {
	held     bool
	acquired int
	released int
}

func (l *memLocker) Acquire(context.Context, string, time.Duration) (func(context.Context) error, error) {
	if l.held {
		return nil, shared.ErrLockHeld
	}
	l.held = true
	l.acquired++
	return func(context.Context) error {
		l.held = false
		l.released++
		return nil
	}, nil
}

func closeChart() []catalog.Account {
	return []catalog.Account{
		{ID: 7, Code: "2.3", Name: "Patrimônio Líquido", Type: catalog.AccountTypeEquity, Nature: catalog.NatureCredit, Synthetic: true, Active: true},
		{ID: 8, Code: "2.3.01", Name: "Resultado do Período", Type: catalog.AccountTypeEquity, Nature: catalog.NatureCredit, Analytical: true, Active: true},
		{ID: 10, Code: "3.1", Name: "Receita de Serviços", Type: catalog.AccountTypeRevenue, Nature: catalog.NatureCredit, Synthetic: true, Active: true},
		{ID: 11, Code: "3.1.1", Name: "Honorários", Type: catalog.AccountTypeRevenue, Nature: catalog.NatureCredit, Analytical: true, Active: true},
		{ID: 13, Code: "4.1", Name: "Despesas Operacionais", Type: catalog.AccountTypeExpense, Nature: catalog.NatureDebit, Synthetic: true, Active: true},
		{ID: 14, Code: "4.1.1", Name: "Aluguel", Type: catalog.AccountTypeExpense, Nature: catalog.NatureDebit, Analytical: true, Active: true},
	}
}

type closeFixture struct {
	svc    *Service
	repo   *memRepo
	checks *fakeChecks
	locker *memLocker
}

func newCloseFixture(cfg Config) *closeFixture {
	repo := newMemRepo()
	checks := &fakeChecks{
		balances: map[int64]ledger.AccountBalance{
			11: {Credits: 1000_00},
			14: {Debits: 400_00},
		},
	}
	locker := &memLocker{}
	svc := NewService(repo, checks, &fakeCatalog{accounts: closeChart()}, locker, cfg, nil)
	svc.WithNow(func() time.Time {
		return time.Date(2025, time.April, 3, 9, 0, 0, 0, time.UTC)
	})
	return &closeFixture{svc: svc, repo: repo, checks: checks, locker: locker}
}

func closeMarch(f *closeFixture) (AccountingPeriod, error) {
	return f.svc.Close(context.Background(), CloseInput{
		CompanyID: 7, Year: 2025, Month: time.March, ActorID: 42,
	})
}

func TestClosePostsZeroingEntry(t *testing.T) {
	f := newCloseFixture(Config{})

	period, err := closeMarch(f)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, period.Status)
	require.Equal(t, ledger.Cents(600_00), period.NetResult)
	require.NotNil(t, period.ClosingEntryID)
	require.True(t, period.BalanceTransferred)
	require.NotNil(t, period.ClosedAt)
	require.Equal(t, int64(42), *period.ClosedBy)

	entry := f.repo.entries[*period.ClosingEntryID]
	require.NotNil(t, entry)
	require.Equal(t, time.Date(2025, time.March, 31, 0, 0, 0, 0, time.UTC), entry.Date)
	require.Equal(t, "Apuração do resultado do período 2025-03", entry.Description)

	byAccount := map[int64]ledger.EntryLine{}
	for _, line := range entry.Lines {
		byAccount[line.AccountID] = line
	}
	require.Len(t, byAccount, 3)
	require.Equal(t, ledger.Cents(1000_00), byAccount[11].Debit)
	require.Equal(t, ledger.Cents(0), byAccount[11].Credit)
	require.Equal(t, ledger.Cents(400_00), byAccount[14].Credit)
	require.Equal(t, ledger.Cents(0), byAccount[14].Debit)
	require.Equal(t, ledger.Cents(600_00), byAccount[8].Credit)

	require.False(t, f.locker.held)
	require.Equal(t, 1, f.locker.released)
}

func TestCloseWithoutMovementSkipsEntry(t *testing.T) {
	f := newCloseFixture(Config{})
	f.checks.balances = map[int64]ledger.AccountBalance{}

	period, err := closeMarch(f)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, period.Status)
	require.Nil(t, period.ClosingEntryID)
	require.False(t, period.BalanceTransferred)
	require.Equal(t, ledger.Cents(0), period.NetResult)
	require.Empty(t, f.repo.entries)
}

func TestCloseRejectsOutOfOrder(t *testing.T) {
	f := newCloseFixture(Config{})
	_, err := f.repo.GetOrCreatePeriod(context.Background(), 7, 2025, time.February)
	require.NoError(t, err)

	_, err = closeMarch(f)
	require.ErrorIs(t, err, ErrOrderingViolation)

	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)
	require.Len(t, precondition.Violations, 1)
	require.Equal(t, ViolationPriorPeriodOpen, precondition.Violations[0].Code)
	require.Contains(t, precondition.Violations[0].Detail, "2025-02")

	march, err := f.repo.GetOrCreatePeriod(context.Background(), 7, 2025, time.March)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, march.Status)
}

func TestCloseReportsEveryViolation(t *testing.T) {
	f := newCloseFixture(Config{})
	_, err := f.repo.GetOrCreatePeriod(context.Background(), 7, 2025, time.February)
	require.NoError(t, err)
	f.checks.totals = ledger.TrialTotals{Debits: 1000_05, Credits: 1000_00}
	f.checks.synthetic = []ledger.SyntheticPosting{{AccountID: 10, AccountCode: "3.1", LineCount: 2}}
	f.checks.unreconciled = 3

	_, err = closeMarch(f)
	var precondition *PreconditionError
	require.ErrorAs(t, err, &precondition)

	codes := map[string]bool{}
	for _, v := range precondition.Violations {
		codes[v.Code] = true
	}
	require.True(t, codes[ViolationPriorPeriodOpen])
	require.True(t, codes[ViolationUnbalancedLedger])
	require.True(t, codes[ViolationSyntheticPosting])
	require.True(t, codes[ViolationUnreconciledBank])
	require.Len(t, precondition.Violations, 4)
}

func TestCloseToleratesOneCentGap(t *testing.T) {
	f := newCloseFixture(Config{})
	f.checks.totals = ledger.TrialTotals{Debits: 1000_01, Credits: 1000_00}

	period, err := closeMarch(f)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, period.Status)
}

func TestCloseIsAtomic(t *testing.T) {
	f := newCloseFixture(Config{})
	f.repo.failMarkClosed = true

	_, err := closeMarch(f)
	require.ErrorIs(t, err, errMarkFailed)

	march, err := f.repo.GetOrCreatePeriod(context.Background(), 7, 2025, time.March)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusOpen, march.Status)
	require.Nil(t, march.ClosingEntryID)
	require.Empty(t, f.repo.entries)
	require.False(t, f.locker.held)
}

func TestCloseAlreadyClosed(t *testing.T) {
	f := newCloseFixture(Config{})
	_, err := closeMarch(f)
	require.NoError(t, err)

	_, err = closeMarch(f)
	require.ErrorIs(t, err, ErrAlreadyClosed)
}

func TestCloseWhileLockHeld(t *testing.T) {
	f := newCloseFixture(Config{})
	f.locker.held = true

	_, err := closeMarch(f)
	require.ErrorIs(t, err, shared.ErrLockHeld)
}

func TestReopenRequiresReason(t *testing.T) {
	f := newCloseFixture(Config{})
	_, err := closeMarch(f)
	require.NoError(t, err)

	_, err = f.svc.Reopen(context.Background(), ReopenInput{
		CompanyID: 7, Year: 2025, Month: time.March, ActorID: 42, Reason: "   ",
	})
	require.ErrorIs(t, err, ErrReasonRequired)
}

func TestReopenRequiresClosedPeriod(t *testing.T) {
	f := newCloseFixture(Config{})

	_, err := f.svc.Reopen(context.Background(), ReopenInput{
		CompanyID: 7, Year: 2025, Month: time.March, ActorID: 42, Reason: "lançamento faltante",
	})
	require.ErrorIs(t, err, ErrNotClosed)
}

func TestReopenBlockedByLaterClosedPeriod(t *testing.T) {
	f := newCloseFixture(Config{})
	_, err := closeMarch(f)
	require.NoError(t, err)
	_, err = f.svc.Close(context.Background(), CloseInput{
		CompanyID: 7, Year: 2025, Month: time.April, ActorID: 42,
	})
	require.NoError(t, err)

	_, err = f.svc.Reopen(context.Background(), ReopenInput{
		CompanyID: 7, Year: 2025, Month: time.March, ActorID: 42, Reason: "lançamento faltante",
	})
	require.ErrorIs(t, err, ErrOrderingViolation)
	require.ErrorContains(t, err, "2025-04")
}

func TestReopenAndCloseAgain(t *testing.T) {
	f := newCloseFixture(Config{})
	_, err := closeMarch(f)
	require.NoError(t, err)

	period, err := f.svc.Reopen(context.Background(), ReopenInput{
		CompanyID: 7, Year: 2025, Month: time.March, ActorID: 43, Reason: "lançamento faltante",
	})
	require.NoError(t, err)
	require.Equal(t, PeriodStatusReopened, period.Status)
	require.Equal(t, "lançamento faltante", period.ReopenReason)
	require.NotNil(t, period.ReopenedAt)

	// Keeping the default policy the closing entry stays in place.
	require.Len(t, f.repo.entries, 1)

	period, err = closeMarch(f)
	require.NoError(t, err)
	require.Equal(t, PeriodStatusClosed, period.Status)
}

func TestReopenReversesEntryWhenConfigured(t *testing.T) {
	f := newCloseFixture(Config{ReverseOnReopen: true})
	period, err := closeMarch(f)
	require.NoError(t, err)
	closingID := *period.ClosingEntryID

	_, err = f.svc.Reopen(context.Background(), ReopenInput{
		CompanyID: 7, Year: 2025, Month: time.March, ActorID: 42, Reason: "competência errada",
	})
	require.NoError(t, err)

	require.Len(t, f.repo.entries, 2)
	require.Equal(t, ledger.EntryStatusReversed, f.repo.entries[closingID].Status)

	var reversal *ledger.Entry
	for id, e := range f.repo.entries {
		if id != closingID {
			reversal = e
		}
	}
	require.NotNil(t, reversal)
	require.Equal(t, "Estorno do encerramento 2025-03", reversal.Description)
	byAccount := map[int64]ledger.EntryLine{}
	for _, line := range reversal.Lines {
		byAccount[line.AccountID] = line
	}
	require.Equal(t, ledger.Cents(1000_00), byAccount[11].Credit)
	require.Equal(t, ledger.Cents(400_00), byAccount[14].Debit)
	require.Equal(t, ledger.Cents(600_00), byAccount[8].Debit)
}
