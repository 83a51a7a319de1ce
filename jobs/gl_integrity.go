package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-ledger/internal/accounting"
	"github.com/odyssey-erp/odyssey-ledger/internal/accounting/balances"
	jobmetrics "github.com/odyssey-erp/odyssey-ledger/internal/jobs"
)

// Verifier checks the period summaries of one company.
type Verifier interface {
	Verify(ctx context.Context, company string, period accounting.FiscalPeriod) (balances.Report, error)
}

// ErrIntegrityAnomalies is returned when at least one company fails verification.
var ErrIntegrityAnomalies = errors.New("jobs: ledger integrity anomalies detected")

// LedgerIntegrityJob verifies balance roll-forward per company.
type LedgerIntegrityJob struct {
	Verifier Verifier
	Calendar accounting.FiscalCalendar
	Logger   *slog.Logger
	Metrics  *jobmetrics.Metrics
	clock    func() time.Time
}

// NewLedgerIntegrityJob initialises the integrity handler.
func NewLedgerIntegrityJob(v Verifier, calendar accounting.FiscalCalendar, logger *slog.Logger, metrics *jobmetrics.Metrics) *LedgerIntegrityJob {
	return &LedgerIntegrityJob{Verifier: v, Calendar: calendar, Logger: logger, Metrics: metrics, clock: func() time.Time { return time.Now().UTC() }}
}

// Handle verifies every company named by the payload. Anomalies are logged
// and counted, and fail the task without retry.
func (j *LedgerIntegrityJob) Handle(ctx context.Context, t *asynq.Task) (err error) {
	if j == nil || j.Verifier == nil {
		return errors.New("ledger integrity: handler not configured")
	}
	var payload LedgerIntegrityPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	period := accounting.FiscalPeriod{Year: payload.Year, Period: payload.Period}
	if !period.Valid() {
		now := time.Now().UTC()
		if j.clock != nil {
			now = j.clock()
		}
		period = j.Calendar.PeriodOf(now)
	}
	tracker := j.Metrics.Track(TaskLedgerIntegrity)
	defer func() { err = tracker.End(err) }()

	failed := 0
	for _, company := range payload.Companies {
		report, err := j.Verifier.Verify(ctx, company, period)
		if err != nil {
			return fmt.Errorf("ledger integrity %s: %w", company, err)
		}
		logger := loggerOr(j.Logger).With(slog.String("company", company), slog.String("period", period.String()))
		if report.OK() {
			logger.Info("ledger integrity ok", slog.Int("checked", report.Checked))
			continue
		}
		failed++
		counts := make(map[string]int)
		for _, a := range report.Anomalies {
			counts[a.Kind]++
			logger.Warn("ledger integrity anomaly",
				slog.String("kind", a.Kind),
				slog.String("account", a.AccountNumber),
				slog.String("detail", a.Detail))
		}
		for kind, n := range counts {
			j.Metrics.AddAnomalies(kind, company, n)
		}
	}
	if failed > 0 {
		return errors.Join(fmt.Errorf("%w: %d companies", ErrIntegrityAnomalies, failed), asynq.SkipRetry)
	}
	return nil
}
