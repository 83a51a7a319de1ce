package inventory

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type costingService interface {
	Receive(ctx context.Context, in ReceiveInput) (ReceiveResult, error)
	Issue(ctx context.Context, in IssueInput) (IssueResult, error)
	LockThrough(ctx context.Context, company, productID string, date time.Time, actor string) (int, error)
	Ledger(ctx context.Context, filter LedgerFilter) ([]LedgerLine, error)
	GetBalance(ctx context.Context, company, productID string) (Balance, error)
	LockedQueue(ctx context.Context, company, productID string) ([]LockedEntry, error)
}

// Handler wires HTTP endpoints for inventory module.
type Handler struct {
	logger    *slog.Logger
	service   costingService
	rateLimit func(http.Handler) http.Handler
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service costingService) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rateLimit: httpx.AdminLimiter(10, time.Minute)}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/companies/{company}/inventory/{product}", func(r chi.Router) {
		r.Get("/balance", h.handleBalance)
		r.Get("/stock-card", h.handleStockCard)
		r.Get("/locked", h.handleLockedQueue)
		r.Post("/receipts", h.handleReceive)
		r.Post("/issues", h.handleIssue)
		r.With(h.rateLimit).Post("/lock", h.handleLock)
	})
}

type movementRequest struct {
	Date      string          `json:"date" validate:"required,datetime=2006-01-02"`
	Quantity  decimal.Decimal `json:"quantity"`
	UnitCost  decimal.Decimal `json:"unit_cost"`
	SourceRef string          `json:"source_ref" validate:"max=128"`
}

type lockRequest struct {
	Through string `json:"through" validate:"required,datetime=2006-01-02"`
}

func keyParams(r *http.Request) (string, string) {
	return chi.URLParam(r, "company"), chi.URLParam(r, "product")
}

func (h *Handler) bindMovement(w http.ResponseWriter, r *http.Request) (movementRequest, time.Time, bool) {
	var req movementRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return req, time.Time{}, false
	}
	date, err := time.Parse("2006-01-02", req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "date must be YYYY-MM-DD")
		return req, time.Time{}, false
	}
	return req, date, true
}

func (h *Handler) handleReceive(w http.ResponseWriter, r *http.Request) {
	req, date, ok := h.bindMovement(w, r)
	if !ok {
		return
	}
	company, product := keyParams(r)
	res, err := h.service.Receive(r.Context(), ReceiveInput{
		Company:   company,
		ProductID: product,
		Date:      date,
		Quantity:  req.Quantity,
		UnitCost:  req.UnitCost,
		SourceRef: req.SourceRef,
		Actor:     httpx.Actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleIssue(w http.ResponseWriter, r *http.Request) {
	req, date, ok := h.bindMovement(w, r)
	if !ok {
		return
	}
	company, product := keyParams(r)
	res, err := h.service.Issue(r.Context(), IssueInput{
		Company:   company,
		ProductID: product,
		Date:      date,
		Quantity:  req.Quantity,
		SourceRef: req.SourceRef,
		Actor:     httpx.Actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, res)
}

func (h *Handler) handleLock(w http.ResponseWriter, r *http.Request) {
	var req lockRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return
	}
	through, err := time.Parse("2006-01-02", req.Through)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "through must be YYYY-MM-DD")
		return
	}
	company, product := keyParams(r)
	n, err := h.service.LockThrough(r.Context(), company, product, through, httpx.Actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"locked_through": req.Through, "locked": n})
}

func (h *Handler) handleStockCard(w http.ResponseWriter, r *http.Request) {
	company, product := keyParams(r)
	filter := LedgerFilter{Company: company, ProductID: product}
	q := r.URL.Query()
	for _, bound := range []struct {
		name   string
		target *time.Time
	}{{"from", &filter.From}, {"to", &filter.To}} {
		raw := strings.TrimSpace(q.Get(bound.name))
		if raw == "" {
			continue
		}
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", bound.name+" must be YYYY-MM-DD")
			return
		}
		*bound.target = parsed
	}
	lines, err := h.service.Ledger(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if lines == nil {
		lines = []LedgerLine{}
	}
	h.logger.Debug("got stock card",
		slog.Int("count", len(lines)),
		slog.String("company", company),
		slog.String("product_id", product))
	httpx.JSON(w, http.StatusOK, map[string]any{"items": lines, "count": len(lines)})
}

func (h *Handler) handleBalance(w http.ResponseWriter, r *http.Request) {
	company, product := keyParams(r)
	balance, err := h.service.GetBalance(r.Context(), company, product)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, balance)
}

func (h *Handler) handleLockedQueue(w http.ResponseWriter, r *http.Request) {
	company, product := keyParams(r)
	entries, err := h.service.LockedQueue(r.Context(), company, product)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	if entries == nil {
		entries = []LockedEntry{}
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"items": entries, "count": len(entries)})
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var kind error
	switch {
	case errors.Is(err, ErrProductRequired), errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		kind = httpx.ErrValidation
	case errors.Is(err, ErrInsufficientInventory):
		kind = httpx.ErrUnprocessable
	case errors.Is(err, ErrTransactionLocked):
		kind = httpx.ErrConflict
	case errors.Is(err, ErrDuplicateMovement):
		kind = httpx.ErrDuplicate
	case errors.Is(err, ErrNotFound):
		kind = httpx.ErrNotFound
	default:
		h.logger.Error("inventory request failed", slog.String("path", r.URL.Path), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.RespondError(w, httpx.Classify(kind, err))
}
