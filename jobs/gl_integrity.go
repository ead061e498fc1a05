package jobs

import (
	"context"
	"log/slog"

	"github.com/razonete/razonete/internal/ledger"
)

// TrialSource is the slice of the ledger the integrity scan reads.
type TrialSource interface {
	Companies(ctx context.Context) ([]int64, error)
	TrialTotals(ctx context.Context, companyID int64) (ledger.TrialTotals, error)
}

// GapRecorder receives the worst gap found by a scan.
type GapRecorder interface {
	SetIntegrityGap(cents int64)
}

// GLIntegrity runs the company-wide double-entry equilibrium check.
// It shares the close tolerance policy: a gap above tolerance is an
// operational alert, not something that is ever auto-corrected.
type GLIntegrity struct {
	source    TrialSource
	recorder  GapRecorder
	logger    *slog.Logger
	tolerance ledger.Cents
}

// NewGLIntegrity constructs the scan.
func NewGLIntegrity(source TrialSource, recorder GapRecorder, logger *slog.Logger, tolerance ledger.Cents) *GLIntegrity {
	if tolerance == 0 {
		tolerance = 1
	}
	return &GLIntegrity{source: source, recorder: recorder, logger: logger, tolerance: tolerance}
}

// Run checks every company ledger and reports the largest gap.
func (g *GLIntegrity) Run(ctx context.Context) error {
	companies, err := g.source.Companies(ctx)
	if err != nil {
		return err
	}
	var worst ledger.Cents
	for _, companyID := range companies {
		totals, err := g.source.TrialTotals(ctx, companyID)
		if err != nil {
			return err
		}
		gap := totals.Difference()
		if gap > worst {
			worst = gap
		}
		if gap > g.tolerance && g.logger != nil {
			g.logger.Warn("ledger out of balance",
				slog.Int64("company_id", companyID),
				slog.Int64("gap_cents", int64(gap)))
		}
	}
	if g.recorder != nil {
		g.recorder.SetIntegrityGap(int64(worst))
	}
	if g.logger != nil {
		g.logger.Info("GL integrity scan finished",
			slog.Int("companies", len(companies)),
			slog.Int64("worst_gap_cents", int64(worst)))
	}
	return nil
}
