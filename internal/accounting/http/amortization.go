package accountinghttp

import (
	"net/http"

	"github.com/odyssey-erp/odyssey-ledger/internal/platform/httpx"
)

func (h *Handler) schedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := httpx.Bind(r, &req); err != nil {
		httpx.RespondBindError(w, err)
		return
	}
	in, err := req.input(companyParam(r), httpx.Actor(r))
	if err != nil {
		h.fail(w, r, errBadDate)
		return
	}
	setting, err := h.svc.Amortization.Schedule(r.Context(), in)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, setting)
}

func (h *Handler) listSchedules(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("active") == "true"
	items, err := h.svc.Amortization.List(r.Context(), companyParam(r), activeOnly)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, list(items))
}

func (h *Handler) getSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setting, err := h.svc.Amortization.Get(r.Context(), companyParam(r), id)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, setting)
}

func (h *Handler) deactivateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	setting, err := h.svc.Amortization.Deactivate(r.Context(), companyParam(r), id, httpx.Actor(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, setting)
}

// runDue triggers an out-of-band sweep. Occurrence failures are reported in
// the body with 207 so callers can tell a partial run from a clean one.
func (h *Handler) runDue(w http.ResponseWriter, r *http.Request) {
	asOf, err := h.asOfQuery(r)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	result, err := h.svc.Amortization.RunDue(r.Context(), companyParam(r), asOf)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	status := http.StatusOK
	if len(result.Failures) > 0 {
		status = http.StatusMultiStatus
	}
	httpx.JSON(w, status, result)
}
