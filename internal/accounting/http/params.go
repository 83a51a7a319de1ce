package accountinghttp

import (
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/periods"
)

func parseDate(raw string) (time.Time, error) {
	t, err := time.Parse(dateLayout, strings.TrimSpace(raw))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %q", errBadDate, raw)
	}
	return t, nil
}

// asOfQuery reads ?as_of=, defaulting to today.
func (h *Handler) asOfQuery(r *http.Request) (time.Time, error) {
	raw := r.URL.Query().Get("as_of")
	if raw == "" {
		return accounting.DateOnly(h.now()), nil
	}
	return parseDate(raw)
}

// periodQuery reads ?year=&period=, falling back to the period containing ?as_of=.
func (h *Handler) periodQuery(r *http.Request) (accounting.FiscalPeriod, error) {
	q := r.URL.Query()
	if q.Get("year") != "" || q.Get("period") != "" {
		return parsePeriod(q.Get("year"), q.Get("period"))
	}
	asOf, err := h.asOfQuery(r)
	if err != nil {
		return accounting.FiscalPeriod{}, err
	}
	return h.svc.Calendar.PeriodOf(asOf), nil
}

func parsePeriod(rawYear, rawPeriod string) (accounting.FiscalPeriod, error) {
	year, err := strconv.Atoi(rawYear)
	if err != nil {
		return accounting.FiscalPeriod{}, fmt.Errorf("%w: year %q", errBadPeriod, rawYear)
	}
	period, err := strconv.Atoi(rawPeriod)
	if err != nil {
		return accounting.FiscalPeriod{}, fmt.Errorf("%w: period %q", errBadPeriod, rawPeriod)
	}
	p := accounting.FiscalPeriod{Year: year, Period: period}
	if !p.Valid() {
		return accounting.FiscalPeriod{}, fmt.Errorf("%w: %s", errBadPeriod, p)
	}
	return p, nil
}

// gateKey reads the {module}/{year}/{period} path segments.
func gateKey(r *http.Request) (periods.Key, error) {
	p, err := parsePeriod(chi.URLParam(r, "year"), chi.URLParam(r, "period"))
	if err != nil {
		return periods.Key{}, err
	}
	return periods.Key{
		Company: companyParam(r),
		Module:  strings.ToUpper(chi.URLParam(r, "module")),
		Period:  p,
	}, nil
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: id %q", errBadID, raw)
	}
	return id, nil
}
