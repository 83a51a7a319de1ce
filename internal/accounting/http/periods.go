package accountinghttp

import (
	"net/http"
	"strconv"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	year := 0
	if raw := r.URL.Query().Get("year"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil {
			h.fail(w, r, errBadPeriod)
			return
		}
		year = parsed
	}
	items, err := h.svc.Periods.List(r.Context(), companyParam(r), year)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(items))
}

func (h *Handler) getPeriod(w http.ResponseWriter, r *http.Request) {
	key, err := gateKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	period, err := h.svc.Periods.Get(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, period)
}

func (h *Handler) periodHistory(w http.ResponseWriter, r *http.Request) {
	key, err := gateKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	events, err := h.svc.Periods.History(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(events))
}

func (h *Handler) checklist(w http.ResponseWriter, r *http.Request) {
	key, err := gateKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	items, err := h.svc.Close.Checklist(r.Context(), key)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(items))
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	key, err := gateKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	run, err := h.svc.Close.ClosePeriod(r.Context(), key, httpx.Actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}

func (h *Handler) reopenPeriod(w http.ResponseWriter, r *http.Request) {
	key, err := gateKey(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	var req reopenRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return
	}
	run, err := h.svc.Close.ReopenPeriod(r.Context(), key, httpx.Actor(r), req.Reason)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, run)
}
