package close

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/ledger"
	"github.com/razonete/razonete/internal/shared"
)

// Repository persists accounting periods and the closing entry.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	GetOrCreatePeriod(ctx context.Context, companyID int64, year int, month time.Month) (AccountingPeriod, error)
	ListPeriods(ctx context.Context, companyID int64) ([]AccountingPeriod, error)
	EarlierOpenPeriods(ctx context.Context, companyID int64, year int, month time.Month) ([]AccountingPeriod, error)
	LaterClosedPeriods(ctx context.Context, companyID int64, year int, month time.Month) ([]AccountingPeriod, error)
}

// TxRepository is the transactional slice of the repository. The
// closing entry write and the status flip commit or roll back together.
type TxRepository interface {
	GetPeriodForUpdate(ctx context.Context, companyID int64, year int, month time.Month) (AccountingPeriod, error)
	MarkClosed(ctx context.Context, periodID, actorID int64, closedAt time.Time, netResult ledger.Cents, entryID *int64) error
	MarkReopened(ctx context.Context, periodID, actorID int64, reopenedAt time.Time, reason string) error
	AppendEntry(ctx context.Context, in ledger.EntryInput) (ledger.Entry, error)
	ReverseEntry(ctx context.Context, entryID int64, date time.Time, description string, actorID int64) (ledger.Entry, error)
}

// LedgerChecks are the validation queries Close runs before writing.
type LedgerChecks interface {
	TrialTotals(ctx context.Context, companyID int64) (ledger.TrialTotals, error)
	SyntheticPostings(ctx context.Context, companyID int64, from, to time.Time) ([]ledger.SyntheticPosting, error)
	UnreconciledCount(ctx context.Context, companyID int64, from, to time.Time) (int64, error)
	GetBalances(ctx context.Context, companyID int64, accountIDs []int64, from, to time.Time) ([]ledger.AccountBalance, error)
}

// CatalogSource loads the account snapshot used to find temporary
// accounts and the result account.
type CatalogSource interface {
	LoadSnapshot(ctx context.Context, companyID int64) (*catalog.Snapshot, error)
}

// Locker serializes close/reopen attempts per company.
type Locker interface {
	Acquire(ctx context.Context, key string, ttl time.Duration) (func(context.Context) error, error)
}

// Config captures the documented policy choices of the state machine.
type Config struct {
	// ResultAccountCode is the equity account receiving the net
	// result of the period.
	ResultAccountCode string
	// ReverseOnReopen controls whether reopening posts a reversal of
	// the closing entry. Default is off: reopening only lifts the
	// write lock and corrections are posted manually.
	ReverseOnReopen bool
	// Tolerance is the acceptable global debit/credit gap in minor
	// units.
	Tolerance ledger.Cents
}

// Service is the period closing state machine:
// Open -> Closed -> Reopened -> Closed ...
type Service struct {
	repo    Repository
	checks  LedgerChecks
	catalog CatalogSource
	locker  Locker
	cfg     Config
	logger  *slog.Logger
	now     func() time.Time
}

const lockTTL = 30 * time.Second

// NewService constructs the state machine.
func NewService(repo Repository, checks LedgerChecks, catalogSource CatalogSource, locker Locker, cfg Config, logger *slog.Logger) *Service {
	if cfg.ResultAccountCode == "" {
		cfg.ResultAccountCode = "2.3.01"
	}
	if cfg.Tolerance == 0 {
		cfg.Tolerance = 1
	}
	return &Service{
		repo:    repo,
		checks:  checks,
		catalog: catalogSource,
		locker:  locker,
		cfg:     cfg,
		now:     time.Now,
		logger:  logger,
	}
}

// WithNow overrides the clock for deterministic tests.
func (s *Service) WithNow(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

// ListPeriods returns every period record for the company in
// chronological order.
func (s *Service) ListPeriods(ctx context.Context, companyID int64) ([]AccountingPeriod, error) {
	return s.repo.ListPeriods(ctx, companyID)
}

// GetPeriod returns the period record, creating it lazily.
func (s *Service) GetPeriod(ctx context.Context, companyID int64, year int, month time.Month) (AccountingPeriod, error) {
	return s.repo.GetOrCreatePeriod(ctx, companyID, year, month)
}

// Close validates the period, posts the closing entry, and flips the
// period to CLOSED. Validation and write happen under the per-company
// lock; the write itself is one transaction, all lines or none.
func (s *Service) Close(ctx context.Context, in CloseInput) (AccountingPeriod, error) {
	if err := in.Validate(); err != nil {
		return AccountingPeriod{}, err
	}
	release, err := s.locker.Acquire(ctx, shared.CloseLockKey(in.CompanyID), lockTTL)
	if err != nil {
		return AccountingPeriod{}, err
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()

	period, err := s.repo.GetOrCreatePeriod(ctx, in.CompanyID, in.Year, in.Month)
	if err != nil {
		return AccountingPeriod{}, err
	}
	if period.Status == PeriodStatusClosed {
		return AccountingPeriod{}, ErrAlreadyClosed
	}

	violations, err := s.collectViolations(ctx, period)
	if err != nil {
		return AccountingPeriod{}, err
	}
	if len(violations) > 0 {
		return AccountingPeriod{}, &PreconditionError{Violations: violations}
	}

	entryInput, netResult, err := s.buildClosingEntry(ctx, period, in.ActorID)
	if err != nil {
		return AccountingPeriod{}, err
	}

	closedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetPeriodForUpdate(ctx, in.CompanyID, in.Year, in.Month)
		if err != nil {
			return err
		}
		if locked.Status == PeriodStatusClosed {
			return ErrAlreadyClosed
		}
		var entryID *int64
		if entryInput != nil {
			entry, err := tx.AppendEntry(ctx, *entryInput)
			if err != nil {
				return err
			}
			entryID = &entry.ID
		}
		return tx.MarkClosed(ctx, locked.ID, in.ActorID, closedAt, netResult, entryID)
	})
	if err != nil {
		return AccountingPeriod{}, err
	}
	if s.logger != nil {
		s.logger.Info("period closed",
			slog.Int64("company_id", in.CompanyID),
			slog.String("period", period.Key()),
			slog.Int64("net_result_cents", int64(netResult)))
	}
	return s.repo.GetOrCreatePeriod(ctx, in.CompanyID, in.Year, in.Month)
}

// Reopen flips a closed period to REOPENED, recording the mandatory
// audit reason. When configured, it also reverses the closing entry in
// the same transaction; otherwise the entry stays and corrections are
// posted manually.
func (s *Service) Reopen(ctx context.Context, in ReopenInput) (AccountingPeriod, error) {
	if err := in.Validate(); err != nil {
		return AccountingPeriod{}, err
	}
	release, err := s.locker.Acquire(ctx, shared.CloseLockKey(in.CompanyID), lockTTL)
	if err != nil {
		return AccountingPeriod{}, err
	}
	defer func() {
		_ = release(context.WithoutCancel(ctx))
	}()

	period, err := s.repo.GetOrCreatePeriod(ctx, in.CompanyID, in.Year, in.Month)
	if err != nil {
		return AccountingPeriod{}, err
	}
	if period.Status != PeriodStatusClosed {
		return AccountingPeriod{}, ErrNotClosed
	}
	later, err := s.repo.LaterClosedPeriods(ctx, in.CompanyID, in.Year, in.Month)
	if err != nil {
		return AccountingPeriod{}, err
	}
	if len(later) > 0 {
		return AccountingPeriod{}, fmt.Errorf("%w: %s is closed", ErrOrderingViolation, later[0].Key())
	}

	reopenedAt := s.now()
	err = s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		locked, err := tx.GetPeriodForUpdate(ctx, in.CompanyID, in.Year, in.Month)
		if err != nil {
			return err
		}
		if locked.Status != PeriodStatusClosed {
			return ErrNotClosed
		}
		if s.cfg.ReverseOnReopen && locked.ClosingEntryID != nil {
			_, end := locked.Range()
			description := fmt.Sprintf("Estorno do encerramento %s", locked.Key())
			if _, err := tx.ReverseEntry(ctx, *locked.ClosingEntryID, end, description, in.ActorID); err != nil {
				return err
			}
		}
		return tx.MarkReopened(ctx, locked.ID, in.ActorID, reopenedAt, in.Reason)
	})
	if err != nil {
		return AccountingPeriod{}, err
	}
	if s.logger != nil {
		s.logger.Info("period reopened",
			slog.Int64("company_id", in.CompanyID),
			slog.String("period", period.Key()),
			slog.String("reason", in.Reason))
	}
	return s.repo.GetOrCreatePeriod(ctx, in.CompanyID, in.Year, in.Month)
}

// collectViolations evaluates every close precondition and returns the
// full itemized list; nothing short-circuits.
func (s *Service) collectViolations(ctx context.Context, period AccountingPeriod) ([]Violation, error) {
	var violations []Violation

	earlier, err := s.repo.EarlierOpenPeriods(ctx, period.CompanyID, period.Year, period.Month)
	if err != nil {
		return nil, err
	}
	for _, p := range earlier {
		violations = append(violations, Violation{
			Code:   ViolationPriorPeriodOpen,
			Detail: fmt.Sprintf("period %s must be closed first", p.Key()),
		})
	}

	totals, err := s.checks.TrialTotals(ctx, period.CompanyID)
	if err != nil {
		return nil, err
	}
	if totals.Difference() > s.cfg.Tolerance {
		violations = append(violations, Violation{
			Code:   ViolationUnbalancedLedger,
			Detail: fmt.Sprintf("ledger debits and credits differ by %d cents", totals.Difference()),
		})
	}

	from, to := period.Range()
	synthetic, err := s.checks.SyntheticPostings(ctx, period.CompanyID, from, to)
	if err != nil {
		return nil, err
	}
	for _, p := range synthetic {
		violations = append(violations, Violation{
			Code:   ViolationSyntheticPosting,
			Detail: fmt.Sprintf("account %s has %d lines posted directly", p.AccountCode, p.LineCount),
		})
	}

	unreconciled, err := s.checks.UnreconciledCount(ctx, period.CompanyID, from, to)
	if err != nil {
		return nil, err
	}
	if unreconciled > 0 {
		violations = append(violations, Violation{
			Code:   ViolationUnreconciledBank,
			Detail: fmt.Sprintf("%d bank transactions in the period are unreconciled", unreconciled),
		})
	}
	return violations, nil
}

// buildClosingEntry computes one zeroing line per non-zero temporary
// analytical account plus the contra line on the result account. A
// period without temporary movement closes without an entry.
func (s *Service) buildClosingEntry(ctx context.Context, period AccountingPeriod, actorID int64) (*ledger.EntryInput, ledger.Cents, error) {
	snapshot, err := s.catalog.LoadSnapshot(ctx, period.CompanyID)
	if err != nil {
		return nil, 0, err
	}
	resultAccount, ok := snapshot.ByCode(s.cfg.ResultAccountCode)
	if !ok {
		return nil, 0, fmt.Errorf("%w: %s", ErrResultAccountMissing, s.cfg.ResultAccountCode)
	}

	var temporary []catalog.Account
	for _, acc := range snapshot.Temporary() {
		if acc.Analytical && !acc.Synthetic {
			temporary = append(temporary, acc)
		}
	}
	if len(temporary) == 0 {
		return nil, 0, nil
	}

	from, to := period.Range()
	balances, err := s.checks.GetBalances(ctx, period.CompanyID, catalog.IDs(temporary), from, to)
	if err != nil {
		return nil, 0, err
	}
	byID := make(map[int64]ledger.AccountBalance, len(balances))
	for _, b := range balances {
		byID[b.AccountID] = b
	}

	var (
		lines     []ledger.LineInput
		netResult ledger.Cents
	)
	for _, acc := range temporary {
		bal, ok := byID[acc.ID]
		if !ok {
			continue
		}
		// Net movement on the account's natural side. A credit-normal
		// revenue account with period credits 1000 nets +1000 here.
		natural := bal.Credits - bal.Debits
		if acc.Nature == catalog.NatureDebit {
			natural = bal.Debits - bal.Credits
		}
		if natural == 0 {
			continue
		}
		line := ledger.LineInput{AccountID: acc.ID}
		zeroOnDebitSide := acc.Nature == catalog.NatureCredit
		if natural < 0 {
			// Abnormal balance: zero from the other side.
			zeroOnDebitSide = !zeroOnDebitSide
		}
		if zeroOnDebitSide {
			line.Debit = natural.Abs()
		} else {
			line.Credit = natural.Abs()
		}
		lines = append(lines, line)

		if acc.Type == catalog.AccountTypeRevenue {
			netResult += natural
		} else {
			netResult -= natural
		}
	}
	if len(lines) == 0 {
		return nil, 0, nil
	}
	if netResult > 0 {
		lines = append(lines, ledger.LineInput{AccountID: resultAccount.ID, Credit: netResult})
	} else if netResult < 0 {
		lines = append(lines, ledger.LineInput{AccountID: resultAccount.ID, Debit: -netResult})
	}

	input := &ledger.EntryInput{
		CompanyID:   period.CompanyID,
		Date:        to,
		Description: fmt.Sprintf("Apuração do resultado do período %s", period.Key()),
		SourceID:    uuid.New(),
		PostedBy:    actorID,
		Lines:       lines,
	}
	if err := input.Validate(); err != nil {
		// The lines are constructed to balance; a failure here is a
		// programming error surfaced before anything is written.
		return nil, 0, err
	}
	return input, netResult, nil
}
