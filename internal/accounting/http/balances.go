package accountinghttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOfQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pos, err := h.svc.Balances.GetAccountBalance(r.Context(), companyParam(r), chi.URLParam(r, "number"), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) listSubAccounts(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.svc.Balances.ListSubAccountBalances(r.Context(), companyParam(r), chi.URLParam(r, "number"), period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(items))
}

func (h *Handler) subAccountStatement(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	kind, err := accounting.ParseSubAccountKind(chi.URLParam(r, "kind"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	pos, err := h.svc.Balances.GetSubAccountStatement(r.Context(), companyParam(r), chi.URLParam(r, "number"), kind, chi.URLParam(r, "id"), period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, pos)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	tb, err := h.svc.Balances.GetTrialBalance(r.Context(), companyParam(r), period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) verify(w http.ResponseWriter, r *http.Request) {
	period, err := h.periodQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	report, err := h.svc.Balances.Verify(r.Context(), companyParam(r), period)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if !report.OK() {
		status = http.StatusConflict
	}
	httpx.JSON(w, status, report)
}
