// Package closehttp exposes period lifecycle operations over HTTP.
package closehttp

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/razonete/razonete/internal/close"
	"github.com/razonete/razonete/internal/platform/httpx"
	"github.com/razonete/razonete/internal/shared"
)

type closeService interface {
	ListPeriods(ctx context.Context, companyID int64) ([]close.AccountingPeriod, error)
	GetPeriod(ctx context.Context, companyID int64, year int, month time.Month) (close.AccountingPeriod, error)
	Close(ctx context.Context, in close.CloseInput) (close.AccountingPeriod, error)
	Reopen(ctx context.Context, in close.ReopenInput) (close.AccountingPeriod, error)
}

type closeMetrics interface {
	ObserveClose(outcome string)
}

// Handler wires HTTP endpoints for accounting period closing.
type Handler struct {
	logger    *slog.Logger
	service   closeService
	metrics   closeMetrics
	validator *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service closeService, metrics closeMetrics) *Handler {
	return &Handler{
		logger:    logger,
		service:   service,
		metrics:   metrics,
		validator: validator.New(),
	}
}

func (h *Handler) observe(outcome string) {
	if h.metrics != nil {
		h.metrics.ObserveClose(outcome)
	}
}

// MountRoutes registers period routes on the provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/periods", h.handleList)
	r.Post("/periods/{year}/{month}/close", h.handleClose)
	r.Post("/periods/{year}/{month}/reopen", h.handleReopen)
}

type closeRequest struct {
	CompanyID int64 `json:"company_id" validate:"required,gt=0"`
	ActorID   int64 `json:"actor_id" validate:"required,gt=0"`
}

type reopenRequest struct {
	CompanyID int64  `json:"company_id" validate:"required,gt=0"`
	ActorID   int64  `json:"actor_id" validate:"required,gt=0"`
	Reason    string `json:"reason" validate:"required,min=3"`
}

type periodView struct {
	Period             string `json:"period"`
	Status             string `json:"status"`
	ClosedAt           string `json:"closed_at,omitempty"`
	ReopenedAt         string `json:"reopened_at,omitempty"`
	ReopenReason       string `json:"reopen_reason,omitempty"`
	NetResultCents     int64  `json:"net_result_cents"`
	BalanceTransferred bool   `json:"balance_transferred"`
}

type violationView struct {
	Code   string `json:"code"`
	Detail string `json:"detail"`
}

type preconditionView struct {
	Title      string          `json:"title"`
	Violations []violationView `json:"violations"`
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	companyID, err := strconv.ParseInt(r.URL.Query().Get("company"), 10, 64)
	if err != nil || companyID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "company must be a positive integer")
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), companyID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	views := make([]periodView, 0, len(periods))
	for _, p := range periods {
		views = append(views, newPeriodView(p))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) handleClose(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	period, err := h.service.Close(r.Context(), close.CloseInput{
		CompanyID: req.CompanyID,
		Year:      year,
		Month:     month,
		ActorID:   req.ActorID,
	})
	if err != nil {
		h.observe("rejected")
		h.respondError(w, r, err)
		return
	}
	h.observe("closed")
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) handleReopen(w http.ResponseWriter, r *http.Request) {
	year, month, ok := h.periodParams(w, r)
	if !ok {
		return
	}
	var req reopenRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "malformed request body")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
		return
	}
	period, err := h.service.Reopen(r.Context(), close.ReopenInput{
		CompanyID: req.CompanyID,
		Year:      year,
		Month:     month,
		ActorID:   req.ActorID,
		Reason:    req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.observe("reopened")
	httpx.JSON(w, http.StatusOK, newPeriodView(period))
}

func (h *Handler) periodParams(w http.ResponseWriter, r *http.Request) (int, time.Month, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "year must be an integer")
		return 0, 0, false
	}
	month, err := strconv.Atoi(chi.URLParam(r, "month"))
	if err != nil || month < 1 || month > 12 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", "month must be between 1 and 12")
		return 0, 0, false
	}
	return year, time.Month(month), true
}

func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	var precondition *close.PreconditionError
	switch {
	case errors.As(err, &precondition):
		view := preconditionView{Title: "Close Preconditions Failed"}
		for _, v := range precondition.Violations {
			view.Violations = append(view.Violations, violationView{Code: v.Code, Detail: v.Detail})
		}
		httpx.JSON(w, http.StatusUnprocessableEntity, view)
	case errors.Is(err, close.ErrOrderingViolation):
		httpx.Problem(w, http.StatusConflict, "Ordering Violation", err.Error())
	case errors.Is(err, close.ErrAlreadyClosed), errors.Is(err, close.ErrNotClosed):
		httpx.Problem(w, http.StatusConflict, "Invalid Period State", err.Error())
	case errors.Is(err, close.ErrReasonRequired):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Request", err.Error())
	case errors.Is(err, shared.ErrLockHeld):
		httpx.Problem(w, http.StatusConflict, "Close In Progress",
			"another close or reopen is running for this company")
	default:
		if h.logger != nil {
			h.logger.Error("period operation failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		}
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func newPeriodView(p close.AccountingPeriod) periodView {
	view := periodView{
		Period:             p.Key(),
		Status:             string(p.Status),
		ReopenReason:       p.ReopenReason,
		NetResultCents:     int64(p.NetResult),
		BalanceTransferred: p.BalanceTransferred,
	}
	if p.ClosedAt != nil {
		view.ClosedAt = p.ClosedAt.Format(time.RFC3339)
	}
	if p.ReopenedAt != nil {
		view.ReopenedAt = p.ReopenedAt.Format(time.RFC3339)
	}
	return view
}
