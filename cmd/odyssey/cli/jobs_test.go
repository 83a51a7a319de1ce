package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/language"

	"github.com/odyssey-erp/odyssey-ledger/jobs"
)

type fakeQueue struct {
	tasks []*asynq.Task
	infos map[string]*asynq.QueueInfo
}

func (f *fakeQueue) EnqueueContext(_ context.Context, task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{ID: "t-1", Type: task.Type(), Queue: jobs.QueueDefault}, nil
}

func (f *fakeQueue) GetQueueInfo(queue string) (*asynq.QueueInfo, error) {
	info, ok := f.infos[queue]
	if !ok {
		return nil, asynq.ErrQueueNotFound
	}
	return info, nil
}

func newFake() (*fakeQueue, Options, *bytes.Buffer, *bytes.Buffer) {
	q := &fakeQueue{infos: map[string]*asynq.QueueInfo{}}
	stdout, stderr := &bytes.Buffer{}, &bytes.Buffer{}
	opts := Options{
		RedisAddr: "127.0.0.1:6379",
		Stdout:    stdout,
		Stderr:    stderr,
		New: func(string) (*JobsCLI, error) {
			return &JobsCLI{client: q, inspector: q, now: time.Now}, nil
		},
	}
	return q, opts, stdout, stderr
}

func TestRunTriggerAmortizationSweep(t *testing.T) {
	q, opts, stdout, _ := newFake()
	code := Run(context.Background(), []string{"trigger", "amortization-sweep", "--as-of", "2024-03-31"}, opts)
	require.Equal(t, 0, code)
	require.Len(t, q.tasks, 1)
	assert.Equal(t, jobs.TaskAmortizationSweep, q.tasks[0].Type())
	assert.Contains(t, stdout.String(), "enqueued amortization:sweep id=t-1")

	var payload jobs.AmortizationSweepPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, time.Date(2024, time.March, 31, 0, 0, 0, 0, time.UTC), payload.AsOf)
}

func TestRunTriggerIntegrityWithCompanies(t *testing.T) {
	q, opts, _, _ := newFake()
	code := Run(context.Background(), []string{"trigger", "integrity", "--company", "acme, globex", "--year", "2024", "--period", "2"}, opts)
	require.Equal(t, 0, code)

	var payload jobs.LedgerIntegrityPayload
	require.NoError(t, json.Unmarshal(q.tasks[0].Payload(), &payload))
	assert.Equal(t, []string{"acme", "globex"}, payload.Companies)
	assert.Equal(t, 2024, payload.Year)
	assert.Equal(t, 2, payload.Period)
}

func TestRunTriggerErrors(t *testing.T) {
	cases := []struct {
		name string
		args []string
		code int
		want string
	}{
		{"unknown job", []string{"trigger", "fx-revaluation"}, 2, "unsupported job"},
		{"bad date", []string{"trigger", "amortization-sweep", "--as-of", "31/03/2024"}, 2, "invalid --as-of"},
		{"integrity without company", []string{"trigger", "integrity"}, 1, "at least one --company"},
		{"inventory lock incomplete", []string{"trigger", "inventory-lock", "--company", "acme"}, 1, "--product"},
		{"missing name", []string{"trigger"}, 2, "usage"},
		{"unknown command", []string{"purge"}, 2, "usage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			q, opts, _, stderr := newFake()
			assert.Equal(t, tc.code, Run(context.Background(), tc.args, opts))
			assert.Contains(t, stderr.String(), tc.want)
			assert.Empty(t, q.tasks)
		})
	}
}

func TestRunConstructorFailure(t *testing.T) {
	_, opts, _, stderr := newFake()
	opts.New = func(string) (*JobsCLI, error) { return nil, errors.New("dial refused") }
	assert.Equal(t, 1, Run(context.Background(), []string{"inspect"}, opts))
	assert.Contains(t, stderr.String(), "dial refused")
}

func TestTaskBuildsInventoryLock(t *testing.T) {
	c := &JobsCLI{}
	through := time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC)
	task, err := c.Task("inventory-lock", TriggerOptions{Company: "acme", ProductID: "SKU-1", AsOf: through, Actor: "ops"})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskInventoryLock, task.Type())

	var payload jobs.InventoryLockPayload
	require.NoError(t, json.Unmarshal(task.Payload(), &payload))
	assert.Equal(t, "SKU-1", payload.ProductID)
	assert.Equal(t, "ops", payload.Actor)

	task, err = c.Task(jobs.TaskOutboxRelay, TriggerOptions{Limit: 10})
	require.NoError(t, err)
	assert.Equal(t, jobs.TaskOutboxRelay, task.Type())
}

func TestInspectRendersLocalisedCounts(t *testing.T) {
	q, opts, stdout, _ := newFake()
	q.infos[jobs.QueueAggregation] = &asynq.QueueInfo{Queue: jobs.QueueAggregation, Pending: 3, ProcessedTotal: 1234567}

	require.Equal(t, 0, Run(context.Background(), []string{"inspect"}, opts))
	out := stdout.String()
	assert.Contains(t, out, "QUEUE")
	assert.Contains(t, out, "aggregation")
	assert.Contains(t, out, "default")
	assert.Contains(t, out, "1,234,567")

	var de bytes.Buffer
	RenderQueues(&de, language.German, []QueueStats{{Queue: "aggregation", Processed: 1234567}})
	assert.Contains(t, de.String(), "1.234.567")

	assert.Equal(t, 2, Run(context.Background(), []string{"inspect", "--locale", "!!"}, opts))
}

func TestNewJobsCLIRequiresAddress(t *testing.T) {
	_, err := NewJobsCLI(" ")
	assert.Error(t, err)
}
