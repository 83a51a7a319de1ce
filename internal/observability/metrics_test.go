package observability

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rr := httptest.NewRecorder()
	m.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	return rr.Body.String()
}

func TestMetricsHandlerExposesLedgerCounters(t *testing.T) {
	metrics := NewMetrics()
	metrics.ObservePosting("GL", "posted")
	metrics.ObserveAggregation("APPLY", "applied")
	metrics.ObserveConflictRetries("aggregator", 2)
	metrics.ObserveInventory("RECEIPT")
	metrics.ObserveAmortization("posted", 3)
	_ = metrics.Jobs().Track("ledger:integrity").End(errors.New("boom"))

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_ledger_postings_total{module="GL",outcome="posted"} 1`)
	assert.Contains(t, body, `odyssey_ledger_aggregations_total{effect="APPLY",outcome="applied"} 1`)
	assert.Contains(t, body, `odyssey_ledger_conflict_retries_total{component="aggregator"} 2`)
	assert.Contains(t, body, `odyssey_inventory_events_total{event="RECEIPT"} 1`)
	assert.Contains(t, body, `odyssey_amortization_occurrences_total{outcome="posted"} 3`)
	assert.Contains(t, body, `odyssey_ledger_job_runs_total{job="ledger:integrity",outcome="error"} 1`)
}

func TestNilMetricsAreNoops(t *testing.T) {
	var metrics *Metrics
	assert.NotPanics(t, func() {
		metrics.ObservePosting("GL", "posted")
		metrics.ObserveAggregation("APPLY", "applied")
		metrics.ObserveInventory("ISSUE")
		metrics.ObserveAmortization("failed", 1)
	})
	rr := httptest.NewRecorder()
	metrics.Handler().ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
}

func TestMetricsMiddlewareRecordsRequest(t *testing.T) {
	metrics := NewMetrics()

	handler := metrics.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	routeCtx := chi.NewRouteContext()
	routeCtx.RoutePatterns = append(routeCtx.RoutePatterns, "/test")

	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), chi.RouteCtxKey, routeCtx))

	rr := httptest.NewRecorder()
	handler.ServeHTTP(rr, req)
	require.Equal(t, http.StatusTeapot, rr.Code)

	body := scrape(t, metrics)
	assert.Contains(t, body, `odyssey_http_requests_total{code="418",route="/test"} 1`)
	assert.Contains(t, body, `odyssey_http_request_duration_seconds_bucket{route="/test"`)
}
