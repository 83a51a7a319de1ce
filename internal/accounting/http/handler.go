// Package accountinghttp exposes the ledger over JSON.
package accountinghttp

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/accounts"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/amortization"
	"github.com/odyssey-erp/odyssey-ledger/internal/close"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

type accountService interface {
	Create(ctx context.Context, in accounts.CreateInput) (accounting.Account, error)
	Move(ctx context.Context, company, number, parentNumber string) (accounting.Account, error)
	Deactivate(ctx context.Context, company, number string) error
	GetByNumber(ctx context.Context, company, number string) (accounting.Account, error)
	List(ctx context.Context, company string) ([]accounting.Account, error)
}

type entityRegistry interface {
	Register(ctx context.Context, entity subledger.Entity) error
}

type journalService interface {
	Post(ctx context.Context, req accounting.JournalEntryRequest) (accounting.JournalEntry, error)
	Draft(ctx context.Context, req accounting.JournalEntryRequest) (accounting.JournalEntry, error)
	PostDraft(ctx context.Context, company, id, actor string) (accounting.JournalEntry, error)
	Cancel(ctx context.Context, in journals.CancelInput) (accounting.JournalEntry, error)
	Void(ctx context.Context, in journals.VoidInput) (accounting.JournalEntry, error)
	Get(ctx context.Context, company, id string) (accounting.JournalEntry, error)
	List(ctx context.Context, filter journals.ListFilter) ([]accounting.JournalEntry, error)
}

type periodService interface {
	Get(ctx context.Context, key periods.Key) (periods.PostedPeriod, error)
	List(ctx context.Context, company string, year int) ([]periods.PostedPeriod, error)
	History(ctx context.Context, key periods.Key) ([]periods.LockEvent, error)
}

type closeService interface {
	Checklist(ctx context.Context, key periods.Key) ([]close.ChecklistItem, error)
	ClosePeriod(ctx context.Context, key periods.Key, actor string) (close.CloseRun, error)
	ReopenPeriod(ctx context.Context, key periods.Key, actor, reason string) (close.CloseRun, error)
}

type balanceService interface {
	GetAccountBalance(ctx context.Context, company, number string, asOf time.Time) (balances.Position, error)
	GetSubAccountStatement(ctx context.Context, company, number string, kind accounting.SubAccountKind, id string, period accounting.FiscalPeriod) (balances.Position, error)
	ListSubAccountBalances(ctx context.Context, company, number string, period accounting.FiscalPeriod) ([]balances.Position, error)
	GetTrialBalance(ctx context.Context, company string, period accounting.FiscalPeriod) (balances.TrialBalance, error)
	Verify(ctx context.Context, company string, period accounting.FiscalPeriod) (balances.Report, error)
}

type amortizationService interface {
	Schedule(ctx context.Context, in amortization.ScheduleInput) (amortization.Setting, error)
	Deactivate(ctx context.Context, company string, id int64, actor string) (amortization.Setting, error)
	Get(ctx context.Context, company string, id int64) (amortization.Setting, error)
	List(ctx context.Context, company string, activeOnly bool) ([]amortization.Setting, error)
	RunDue(ctx context.Context, company string, asOf time.Time) (amortization.RunResult, error)
}

// Services bundles the ledger services served by the handler.
type Services struct {
	Accounts     accountService
	Entities     entityRegistry
	Journals     journalService
	Periods      periodService
	Close        closeService
	Balances     balanceService
	Amortization amortizationService
	Calendar     accounting.FiscalCalendar
}

// Handler serves the ledger API.
type Handler struct {
	logger    *slog.Logger
	svc       Services
	rateLimit func(http.Handler) http.Handler
	now       func() time.Time
}

// NewHandler constructs the ledger handler.
func NewHandler(logger *slog.Logger, svc Services) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		svc:       svc,
		rateLimit: httpx.AdminLimiter(10, time.Minute),
		now:       time.Now,
	}
}

// MountRoutes registers the ledger endpoints below /companies/{company}.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/companies/{company}", func(r chi.Router) {
		r.Route("/accounts", func(r chi.Router) {
			r.Get("/", h.listAccounts)
			r.Post("/", h.createAccount)
			r.Route("/{number}", func(r chi.Router) {
				r.Get("/", h.getAccount)
				r.Post("/move", h.moveAccount)
				r.Post("/deactivate", h.deactivateAccount)
				r.Get("/balance", h.accountBalance)
				r.Get("/sub-accounts", h.listSubAccounts)
				r.Get("/sub-accounts/{kind}/{id}", h.subAccountStatement)
			})
		})
		r.Put("/entities/{kind}/{id}", h.registerEntity)

		r.Route("/journals", func(r chi.Router) {
			r.Get("/", h.listJournals)
			r.Post("/", h.postJournal)
			r.Post("/drafts", h.draftJournal)
			r.Get("/{id}", h.getJournal)
			r.Post("/{id}/post", h.postDraft)
			r.Post("/{id}/cancel", h.cancelJournal)
			r.Post("/{id}/void", h.voidJournal)
		})

		r.Get("/trial-balance", h.trialBalance)

		r.Route("/periods", func(r chi.Router) {
			r.Get("/", h.listPeriods)
			r.Route("/{module}/{year}/{period}", func(r chi.Router) {
				r.Get("/", h.getPeriod)
				r.Get("/history", h.periodHistory)
				r.Get("/checklist", h.checklist)
				r.Group(func(r chi.Router) {
					r.Use(h.rateLimit)
					r.Post("/close", h.closePeriod)
					r.Post("/reopen", h.reopenPeriod)
				})
			})
		})

		r.Route("/amortization", func(r chi.Router) {
			r.Get("/", h.listSchedules)
			r.Post("/", h.schedule)
			r.Get("/{id}", h.getSchedule)
			r.Post("/{id}/deactivate", h.deactivateSchedule)
			r.With(h.rateLimit).Post("/run", h.runDue)
		})

		r.With(h.rateLimit).Get("/integrity", h.verify)
	})
}

func companyParam(r *http.Request) string {
	return chi.URLParam(r, "company")
}
