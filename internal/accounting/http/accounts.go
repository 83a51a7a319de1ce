package accountinghttp

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/subledger"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) listAccounts(w http.ResponseWriter, r *http.Request) {
	items, err := h.svc.Accounts.List(r.Context(), companyParam(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(items))
}

func (h *Handler) createAccount(w http.ResponseWriter, r *http.Request) {
	var req createAccountRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return
	}
	account, err := h.svc.Accounts.Create(r.Context(), req.input(companyParam(r)))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, account)
}

func (h *Handler) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := h.svc.Accounts.GetByNumber(r.Context(), companyParam(r), chi.URLParam(r, "number"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) moveAccount(w http.ResponseWriter, r *http.Request) {
	var req moveAccountRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return
	}
	account, err := h.svc.Accounts.Move(r.Context(), companyParam(r), chi.URLParam(r, "number"), req.ParentNumber)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, account)
}

func (h *Handler) deactivateAccount(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Accounts.Deactivate(r.Context(), companyParam(r), chi.URLParam(r, "number")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) registerEntity(w http.ResponseWriter, r *http.Request) {
	var req entityRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return
	}
	kind, err := accounting.ParseSubAccountKind(chi.URLParam(r, "kind"))
	if err != nil || kind == accounting.SubAccountNone {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "unknown sub-account kind")
		return
	}
	entity := subledger.Entity{
		Company:  companyParam(r),
		Kind:     kind,
		ID:       chi.URLParam(r, "id"),
		Name:     req.Name,
		IsActive: req.IsActive == nil || *req.IsActive,
	}
	if err := h.svc.Entities.Register(r.Context(), entity); err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entity)
}
