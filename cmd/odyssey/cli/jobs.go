package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

// ErrUnknownJob is returned when a trigger names an unsupported task.
var ErrUnknownJob = errors.New("jobs cli: unsupported job")

// enqueuer submits tasks to the queue.
type enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// queueInspector reads queue state.
type queueInspector interface {
	GetQueueInfo(queue string) (*asynq.QueueInfo, error)
}

// JobsCLI wraps manual management helpers for ledger jobs.
type JobsCLI struct {
	client    enqueuer
	inspector queueInspector
	closers   []io.Closer
	now       func() time.Time
}

// NewJobsCLI initialises the CLI helpers using the provided Redis address.
func NewJobsCLI(redisAddr string) (*JobsCLI, error) {
	if strings.TrimSpace(redisAddr) == "" {
		return nil, errors.New("jobs cli: redis address required")
	}
	opts := asynq.RedisClientOpt{Addr: redisAddr}
	client := asynq.NewClient(opts)
	inspector := asynq.NewInspector(opts)
	return &JobsCLI{
		client:    client,
		inspector: inspector,
		closers:   []io.Closer{inspector, client},
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

// Close releases underlying resources.
func (c *JobsCLI) Close() error {
	var err error
	for _, closer := range c.closers {
		if closeErr := closer.Close(); closeErr != nil {
			err = closeErr
		}
	}
	return err
}

// TriggerOptions carries the arguments a job may need.
type TriggerOptions struct {
	AsOf      time.Time
	Limit     int
	Companies []string
	Year      int
	Period    int
	Company   string
	ProductID string
	Actor     string
}

// Task builds the task for a job name.
func (c *JobsCLI) Task(name string, opts TriggerOptions) (*asynq.Task, error) {
	switch name {
	case "amortization-sweep", jobs.TaskAmortizationSweep:
		return jobs.NewAmortizationSweepTask(opts.AsOf)
	case "outbox-relay", jobs.TaskOutboxRelay:
		return jobs.NewOutboxRelayTask(opts.Limit)
	case "integrity", jobs.TaskLedgerIntegrity:
		if len(opts.Companies) == 0 {
			return nil, errors.New("jobs cli: integrity needs at least one --company")
		}
		return jobs.NewLedgerIntegrityTask(jobs.LedgerIntegrityPayload{
			Companies: opts.Companies,
			Year:      opts.Year,
			Period:    opts.Period,
		})
	case "inventory-lock", jobs.TaskInventoryLock:
		if opts.Company == "" || opts.ProductID == "" || opts.AsOf.IsZero() {
			return nil, errors.New("jobs cli: inventory-lock needs --company, --product and --as-of")
		}
		return jobs.NewInventoryLockTask(jobs.InventoryLockPayload{
			Company:   opts.Company,
			ProductID: opts.ProductID,
			Through:   opts.AsOf,
			Actor:     opts.Actor,
		})
	}
	return nil, fmt.Errorf("%w: %s", ErrUnknownJob, name)
}

// Trigger enqueues a supported job by name.
func (c *JobsCLI) Trigger(ctx context.Context, name string, opts TriggerOptions) (*asynq.TaskInfo, error) {
	if c == nil || c.client == nil {
		return nil, errors.New("jobs cli: client not configured")
	}
	task, err := c.Task(name, opts)
	if err != nil {
		return nil, err
	}
	return c.client.EnqueueContext(ctx, task)
}

// QueueStats summarises the current queue state.
type QueueStats struct {
	Queue     string
	Pending   int
	Active    int
	Scheduled int
	Retry     int
	Archived  int
	Processed int
	Failed    int
}

// InspectQueues reports metrics for the ledger queues.
func (c *JobsCLI) InspectQueues(ctx context.Context) ([]QueueStats, error) {
	if c == nil || c.inspector == nil {
		return nil, errors.New("jobs cli: inspector not configured")
	}
	var out []QueueStats
	for _, queue := range []string{jobs.QueueAggregation, jobs.QueueDefault} {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		stats := QueueStats{Queue: queue}
		info, err := c.inspector.GetQueueInfo(queue)
		if err != nil && !errors.Is(err, asynq.ErrQueueNotFound) {
			return nil, err
		}
		if info != nil {
			stats.Pending = info.Pending
			stats.Active = info.Active
			stats.Scheduled = info.Scheduled
			stats.Retry = info.Retry
			stats.Archived = info.Archived
			stats.Processed = info.ProcessedTotal
			stats.Failed = info.FailedTotal
		}
		out = append(out, stats)
	}
	return out, nil
}

// RenderQueues prints stats with locale-aware digit grouping.
func RenderQueues(w io.Writer, tag language.Tag, stats []QueueStats) {
	p := message.NewPrinter(tag)
	_, _ = p.Fprintf(w, "%-12s %10s %10s %10s %10s %10s %12s %10s\n",
		"QUEUE", "PENDING", "ACTIVE", "SCHEDULED", "RETRY", "ARCHIVED", "PROCESSED", "FAILED")
	for _, s := range stats {
		_, _ = p.Fprintf(w, "%-12s %10d %10d %10d %10d %10d %12d %10d\n",
			s.Queue, s.Pending, s.Active, s.Scheduled, s.Retry, s.Archived, s.Processed, s.Failed)
	}
}

// Options configures Run.
type Options struct {
	RedisAddr string
	Stdout    io.Writer
	Stderr    io.Writer
	// New overrides the CLI constructor.
	New func(redisAddr string) (*JobsCLI, error)
}

// Run executes `jobs trigger <name> [flags]` or `jobs inspect` and returns
// the process exit code.
func Run(ctx context.Context, args []string, opts Options) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if opts.New == nil {
		opts.New = NewJobsCLI
	}
	if len(args) == 0 {
		usage(opts.Stderr)
		return 2
	}

	switch args[0] {
	case "trigger":
		if len(args) < 2 {
			usage(opts.Stderr)
			return 2
		}
		name := args[1]
		trigger, err := parseTrigger(args[2:], opts.Stderr)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			return 2
		}
		c, err := opts.New(opts.RedisAddr)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			return 1
		}
		defer c.Close()
		info, err := c.Trigger(ctx, name, trigger)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs trigger: %v\n", err)
			if errors.Is(err, ErrUnknownJob) {
				return 2
			}
			return 1
		}
		_, _ = fmt.Fprintf(opts.Stdout, "enqueued %s id=%s queue=%s\n", info.Type, info.ID, info.Queue)
		return 0
	case "inspect":
		fs := flag.NewFlagSet("jobs inspect", flag.ContinueOnError)
		fs.SetOutput(opts.Stderr)
		locale := fs.String("locale", "en", "locale for number formatting")
		if err := fs.Parse(args[1:]); err != nil {
			return 2
		}
		tag, err := language.Parse(*locale)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs inspect: invalid locale %q\n", *locale)
			return 2
		}
		c, err := opts.New(opts.RedisAddr)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		defer c.Close()
		stats, err := c.InspectQueues(ctx)
		if err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "jobs inspect: %v\n", err)
			return 1
		}
		RenderQueues(opts.Stdout, tag, stats)
		return 0
	}
	usage(opts.Stderr)
	return 2
}

func parseTrigger(args []string, stderr io.Writer) (TriggerOptions, error) {
	fs := flag.NewFlagSet("jobs trigger", flag.ContinueOnError)
	fs.SetOutput(stderr)
	asOf := fs.String("as-of", "", "date (YYYY-MM-DD)")
	limit := fs.Int("limit", 0, "outbox relay batch size")
	companies := fs.String("company", "", "company code, comma separated for integrity")
	year := fs.Int("year", 0, "fiscal year")
	period := fs.Int("period", 0, "fiscal period 1..12")
	product := fs.String("product", "", "product id")
	actor := fs.String("actor", "cli", "actor recorded on the task")
	if err := fs.Parse(args); err != nil {
		return TriggerOptions{}, err
	}
	opts := TriggerOptions{Limit: *limit, Year: *year, Period: *period, ProductID: *product, Actor: *actor}
	if *asOf != "" {
		date, err := time.Parse(time.DateOnly, *asOf)
		if err != nil {
			return TriggerOptions{}, fmt.Errorf("invalid --as-of %q (expected YYYY-MM-DD)", *asOf)
		}
		opts.AsOf = date
	}
	for _, company := range strings.Split(*companies, ",") {
		if company = strings.TrimSpace(company); company != "" {
			opts.Companies = append(opts.Companies, company)
		}
	}
	if len(opts.Companies) > 0 {
		opts.Company = opts.Companies[0]
	}
	return opts, nil
}

func usage(w io.Writer) {
	_, _ = fmt.Fprintln(w, "usage: odyssey jobs trigger <amortization-sweep|outbox-relay|integrity|inventory-lock> [flags]")
	_, _ = fmt.Fprintln(w, "       odyssey jobs inspect [--locale en]")
}
