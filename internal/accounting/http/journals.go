package accountinghttp

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/journals"
	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) bindEntry(w http.ResponseWriter, r *http.Request) (accounting.JournalEntryRequest, bool) {
	var body entryRequest
	if err := httpx.Bind(r, &body); err != nil {
		httpx.RespondBindError(w, err)
		return accounting.JournalEntryRequest{}, false
	}
	req, err := body.request(companyParam(r), httpx.Actor(r))
	if err != nil {
		h.fail(w, r, errBadDate)
		return accounting.JournalEntryRequest{}, false
	}
	return req, true
}

func (h *Handler) postJournal(w http.ResponseWriter, r *http.Request) {
	req, ok := h.bindEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.Journals.Post(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) draftJournal(w http.ResponseWriter, r *http.Request) {
	req, ok := h.bindEntry(w, r)
	if !ok {
		return
	}
	entry, err := h.svc.Journals.Draft(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, entry)
}

func (h *Handler) postDraft(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Journals.PostDraft(r.Context(), companyParam(r), chi.URLParam(r, "id"), httpx.Actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) cancelJournal(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Journals.Cancel(r.Context(), journals.CancelInput{
		Company: companyParam(r),
		EntryID: chi.URLParam(r, "id"),
		Actor:   httpx.Actor(r),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) voidJournal(w http.ResponseWriter, r *http.Request) {
	var req voidRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return
	}
	entry, err := h.svc.Journals.Void(r.Context(), journals.VoidInput{
		Company: companyParam(r),
		EntryID: chi.URLParam(r, "id"),
		Actor:   httpx.Actor(r),
		Reason:  req.Reason,
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) getJournal(w http.ResponseWriter, r *http.Request) {
	entry, err := h.svc.Journals.Get(r.Context(), companyParam(r), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, entry)
}

func (h *Handler) listJournals(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := journals.ListFilter{
		Company: companyParam(r),
		Module:  strings.ToUpper(q.Get("module")),
		Status:  accounting.EntryStatus(strings.ToUpper(q.Get("status"))),
	}
	if raw := q.Get("from"); raw != "" {
		from, err := parseDate(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.From = from
	}
	if raw := q.Get("to"); raw != "" {
		to, err := parseDate(raw)
		if err != nil {
			h.fail(w, r, err)
			return
		}
		filter.To = to
	}
	if raw := q.Get("limit"); raw != "" {
		limit, err := strconv.Atoi(raw)
		if err != nil || limit < 0 {
			httpx.Problem(w, http.StatusBadRequest, "Validation Failed", "limit must be a non-negative integer")
			return
		}
		filter.Limit = limit
	}
	items, err := h.svc.Journals.List(r.Context(), filter)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(items))
}
