// Package reportshttp exposes the statement reports over HTTP.
package reportshttp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/razonete/razonete/internal/catalog"
	"github.com/razonete/razonete/internal/platform/httpx"
	"github.com/razonete/razonete/internal/reports"
)

type reportService interface {
	BalanceSheet(ctx context.Context, req reports.BalanceSheetRequest) (*reports.BalanceSheet, error)
	IncomeStatement(ctx context.Context, req reports.IncomeStatementRequest) (*reports.IncomeStatement, error)
}

// Handler wires the report endpoints.
type Handler struct {
	logger    *slog.Logger
	service   reportService
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service reportService) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		rateLimit: httprate.LimitByIP(30, time.Minute),
	}
}

// MountRoutes registers the report endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rateLimit)
		r.Get("/reports/balance-sheet", h.handleBalanceSheet)
		r.Get("/reports/income-statement", h.handleIncomeStatement)
	})
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	period, err := periodParam(r, "period")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	compare, err := optionalPeriodParam(r, "compare")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	bs, err := h.service.BalanceSheet(r.Context(), reports.BalanceSheetRequest{
		CompanyID: companyID,
		Period:    period,
		Compare:   compare,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newBalanceSheetView(bs))
}

func (h *Handler) handleIncomeStatement(w http.ResponseWriter, r *http.Request) {
	companyID, err := companyParam(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	period, err := periodParam(r, "period")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	compare, err := optionalPeriodParam(r, "compare")
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	breakdown, err := breakdownParam(r, period)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	is, err := h.service.IncomeStatement(r.Context(), reports.IncomeStatementRequest{
		CompanyID: companyID,
		Period:    period,
		Compare:   compare,
		Breakdown: breakdown,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, newIncomeStatementView(is))
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var rangeErr *reports.RangeError
	switch {
	case errors.As(err, &rangeErr):
		httpx.Problem(w, http.StatusBadGateway, "Balances Unavailable",
			fmt.Sprintf("balance query failed for period %s", rangeErr.Period.Key))
	case errors.Is(err, catalog.ErrDuplicateCode), errors.Is(err, reports.ErrInvalidHierarchy):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Invalid Hierarchy", err.Error())
	case errors.Is(err, reports.ErrNoPeriods):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	default:
		if h.logger != nil {
			h.logger.Error("report failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func companyParam(r *http.Request) (int64, error) {
	raw := r.URL.Query().Get("company")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("company must be a positive integer")
	}
	return id, nil
}

func periodParam(r *http.Request, name string) (reports.Period, error) {
	raw := r.URL.Query().Get(name)
	t, err := time.Parse("2006-01", raw)
	if err != nil {
		return reports.Period{}, fmt.Errorf("%s must be formatted as YYYY-MM", name)
	}
	return reports.MonthPeriod(t.Year(), t.Month()), nil
}

func optionalPeriodParam(r *http.Request, name string) (*reports.Period, error) {
	if r.URL.Query().Get(name) == "" {
		return nil, nil
	}
	p, err := periodParam(r, name)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// breakdownParam expands months=N into the N calendar months ending at
// the requested period.
func breakdownParam(r *http.Request, period reports.Period) ([]reports.Period, error) {
	raw := r.URL.Query().Get("months")
	if raw == "" {
		return nil, nil
	}
	months, err := strconv.Atoi(raw)
	if err != nil || months < 1 || months > 24 {
		return nil, fmt.Errorf("months must be between 1 and 24")
	}
	periods := make([]reports.Period, 0, months)
	for i := months - 1; i >= 0; i-- {
		m := period.Start.AddDate(0, -i, 0)
		periods = append(periods, reports.MonthPeriod(m.Year(), m.Month()))
	}
	return periods, nil
}
