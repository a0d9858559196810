package services

import (
	"context"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/callsched/core/pkg/errors"
	"github.com/callsched/core/pkg/models"
	"github.com/callsched/core/pkg/store"
)

const exampleURL = "http://example.com/ping"

func TestCreate_RegistersScheduledJob(t *testing.T) {
	s := newStack(t)
	job := newJob("ORDER_SYNC", exampleURL)
	job.CronExpression = "0 0 * * * ?"
	job.Method = "post"
	job.Tags = []string{" Billing ", "billing", "Nightly"}

	created, err := s.jobs.Create(context.Background(), job)
	require.NoError(t, err)

	assert.Equal(t, "POST", created.Method)
	assert.Equal(t, models.AuthNone, created.AuthStrategy)
	assert.Equal(t, []string{"billing", "nightly"}, created.Tags)
	assert.False(t, created.CreatedAt.IsZero())

	scheduled, err := s.scheduler.IsScheduled("ORDER_SYNC")
	require.NoError(t, err)
	assert.True(t, scheduled)
	enabled, _ := s.scheduler.IsEnabled("ORDER_SYNC")
	assert.True(t, enabled)
}

func TestCreate_ManualOnlyJobIsNotScheduled(t *testing.T) {
	s := newStack(t)

	_, err := s.jobs.Create(context.Background(), newJob("ADHOC", exampleURL))
	require.NoError(t, err)

	scheduled, err := s.scheduler.IsScheduled("ADHOC")
	require.NoError(t, err)
	assert.False(t, scheduled)
}

func TestCreate_RejectsInvalidKey(t *testing.T) {
	tests := []struct {
		name string
		key  string
	}{
		{"lower case", "order_sync"},
		{"too short", "AB"},
		{"too long", strings.Repeat("A", 51)},
		{"dash", "ORDER-SYNC"},
		{"empty", ""},
	}

	s := newStack(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.jobs.Create(context.Background(), newJob(tt.key, exampleURL))
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidPayload))
			assert.Equal(t, errors.CodeInvalidJobKey, errors.CodeOf(err))
		})
	}
}

func TestCreate_RejectsInvalidPayload(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*models.JobDefinition)
		code   errors.Code
	}{
		{"unknown method", func(j *models.JobDefinition) { j.Method = "FETCH" }, errors.CodeInvalidPayload},
		{"relative url", func(j *models.JobDefinition) { j.URL = "/ping" }, errors.CodeInvalidPayload},
		{"ftp url", func(j *models.JobDefinition) { j.URL = "ftp://example.com" }, errors.CodeInvalidPayload},
		{"bad cron", func(j *models.JobDefinition) { j.CronExpression = "every minute" }, errors.CodeInvalidCronExpression},
		{"no validations", func(j *models.JobDefinition) { j.Validations = nil }, errors.CodeInvalidPayload},
		{"unknown auth", func(j *models.JobDefinition) { j.AuthStrategy = "KERBEROS" }, errors.CodeInvalidPayload},
		{"unknown condition", func(j *models.JobDefinition) {
			j.Actions = []models.ActionSpec{{Type: models.ActionRunJob, Condition: "ON_TUESDAY", TargetJobKey: "OTHER"}}
		}, errors.CodeInvalidPayload},
		{"bad action target", func(j *models.JobDefinition) {
			j.Actions = []models.ActionSpec{{Type: models.ActionRunJob, Condition: models.ConditionOnSuccess, TargetJobKey: "x"}}
		}, errors.CodeInvalidJobKey},
	}

	s := newStack(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := newJob("BROKEN", exampleURL)
			tt.mutate(job)

			_, err := s.jobs.Create(context.Background(), job)
			require.Error(t, err)
			assert.True(t, errors.Is(err, errors.ErrInvalidPayload))
			assert.Equal(t, tt.code, errors.CodeOf(err))

			exists, _ := s.mem.Exists(context.Background(), "BROKEN")
			assert.False(t, exists)
		})
	}
}

func TestCreate_DuplicateKeyLeavesExistingJob(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, err := s.jobs.Create(ctx, newJob("ORDER_SYNC", exampleURL))
	require.NoError(t, err)

	_, err = s.jobs.Create(ctx, newJob("ORDER_SYNC", "http://other.example.com"))

	require.Error(t, err)
	assert.True(t, errors.IsBusinessRule(err))
	assert.Equal(t, errors.CodeKeyAlreadyInUse, errors.CodeOf(err))
	assert.Equal(t, 409, errors.HTTPStatus(err))

	stored, err := s.jobs.Get(ctx, "ORDER_SYNC")
	require.NoError(t, err)
	assert.Equal(t, exampleURL, stored.URL)
}

func TestCreate_ConcurrentSameKeyKeepsOneJob(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	const callers = 16

	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			job := newJob("ORDER_SYNC", exampleURL)
			job.CronExpression = "0 0 * * * ?"
			_, errs[i] = s.jobs.Create(ctx, job)
		}(i)
	}
	wg.Wait()

	created := 0
	for _, err := range errs {
		if err == nil {
			created++
			continue
		}
		assert.Equal(t, errors.CodeKeyAlreadyInUse, errors.CodeOf(err))
	}
	assert.Equal(t, 1, created)

	_, err := s.jobs.Get(ctx, "ORDER_SYNC")
	require.NoError(t, err)
	scheduled, err := s.scheduler.IsScheduled("ORDER_SYNC")
	require.NoError(t, err)
	assert.True(t, scheduled)
}

func TestCreate_DuplicateLeavesExistingTrigger(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	_, err := s.jobs.Create(ctx, newJob("ORDER_SYNC", exampleURL))
	require.NoError(t, err)

	broken := newJob("ORDER_SYNC", "http://other.example.com")
	broken.CronExpression = "0 0 * * * ?"
	_, err = s.jobs.Create(ctx, broken)
	assert.Equal(t, errors.CodeKeyAlreadyInUse, errors.CodeOf(err))

	stored, err := s.jobs.Get(ctx, "ORDER_SYNC")
	require.NoError(t, err)
	assert.Equal(t, exampleURL, stored.URL)
	scheduled, err := s.scheduler.IsScheduled("ORDER_SYNC")
	require.NoError(t, err)
	assert.False(t, scheduled)
}

func TestSearch(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	billing := newJob("INVOICES", exampleURL)
	billing.Tags = []string{"billing"}
	ops := newJob("HEARTBEAT", exampleURL)
	ops.Tags = []string{"ops"}
	for _, j := range []*models.JobDefinition{billing, ops} {
		_, err := s.jobs.Create(ctx, j)
		require.NoError(t, err)
	}

	found, err := s.jobs.Search(ctx, models.JobFilter{Tags: []string{"Billing"}})
	require.NoError(t, err)
	require.Len(t, found, 1)
	assert.Equal(t, "INVOICES", found[0].Key)

	all, err := s.jobs.Search(ctx, models.JobFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 2)

	_, err = s.jobs.Search(ctx, models.JobFilter{Tags: []string{"marketing"}})
	assert.True(t, errors.IsNotFound(err))
	assert.Equal(t, errors.CodeNoJobsFound, errors.CodeOf(err))
}

func TestPatch(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	job := newJob("ORDER_SYNC", exampleURL)
	job.CronExpression = "0 0 * * * ?"
	_, err := s.jobs.Create(ctx, job)
	require.NoError(t, err)

	t.Run("rejects invalid cron and keeps stored job", func(t *testing.T) {
		bad := "not a cron"
		_, err := s.jobs.Patch(ctx, "ORDER_SYNC", models.JobPatch{CronExpression: &bad})
		assert.Equal(t, errors.CodeInvalidCronExpression, errors.CodeOf(err))

		stored, _ := s.jobs.Get(ctx, "ORDER_SYNC")
		assert.Equal(t, "0 0 * * * ?", stored.CronExpression)
	})

	t.Run("removing cron leaves a manual job", func(t *testing.T) {
		empty := ""
		patched, err := s.jobs.Patch(ctx, "ORDER_SYNC", models.JobPatch{CronExpression: &empty})
		require.NoError(t, err)
		assert.False(t, patched.IsScheduled())

		scheduled, err := s.scheduler.IsScheduled("ORDER_SYNC")
		require.NoError(t, err)
		assert.False(t, scheduled)
	})

	t.Run("new cron reschedules", func(t *testing.T) {
		every := "0 */5 * * * ?"
		name := "Order sync"
		patched, err := s.jobs.Patch(ctx, "ORDER_SYNC", models.JobPatch{CronExpression: &every, Name: &name})
		require.NoError(t, err)
		assert.Equal(t, "Order sync", patched.Name)

		scheduled, _ := s.scheduler.IsScheduled("ORDER_SYNC")
		assert.True(t, scheduled)
	})

	t.Run("unknown job", func(t *testing.T) {
		_, err := s.jobs.Patch(ctx, "MISSING", models.JobPatch{})
		assert.Equal(t, errors.CodeJobNotFound, errors.CodeOf(err))
	})
}

func TestDelete_RemovesScheduleAndTasks(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	job := newJob("ORDER_SYNC", exampleURL)
	job.CronExpression = "0 0 * * * ?"
	_, err := s.jobs.Create(ctx, job)
	require.NoError(t, err)
	_, err = s.mem.Tasks().Save(ctx, models.NewTask("ORDER_SYNC"))
	require.NoError(t, err)

	require.NoError(t, s.jobs.Delete(ctx, "ORDER_SYNC"))

	_, err = s.jobs.Get(ctx, "ORDER_SYNC")
	assert.True(t, errors.IsNotFound(err))
	_, err = s.scheduler.IsScheduled("ORDER_SYNC")
	assert.True(t, errors.IsNotFound(err))
	_, err = s.mem.Tasks().FindLatest(ctx, "ORDER_SYNC")
	assert.True(t, errors.IsNotFound(err))

	err = s.jobs.Delete(ctx, "ORDER_SYNC")
	assert.Equal(t, errors.CodeJobNotFound, errors.CodeOf(err))
}

func TestEnableDisable(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	job := newJob("ORDER_SYNC", exampleURL)
	job.CronExpression = "0 0 * * * ?"
	_, err := s.jobs.Create(ctx, job)
	require.NoError(t, err)
	_, err = s.jobs.Create(ctx, newJob("ADHOC", exampleURL))
	require.NoError(t, err)

	require.NoError(t, s.jobs.Disable(ctx, "ORDER_SYNC"))
	stored, _ := s.jobs.Get(ctx, "ORDER_SYNC")
	assert.True(t, stored.Disabled)
	disabled, _ := s.scheduler.IsDisabled("ORDER_SYNC")
	assert.True(t, disabled)

	err = s.jobs.Disable(ctx, "ORDER_SYNC")
	assert.Equal(t, errors.CodeJobAlreadyDisabled, errors.CodeOf(err))

	require.NoError(t, s.jobs.Enable(ctx, "ORDER_SYNC"))
	stored, _ = s.jobs.Get(ctx, "ORDER_SYNC")
	assert.False(t, stored.Disabled)

	err = s.jobs.Enable(ctx, "ORDER_SYNC")
	assert.Equal(t, errors.CodeJobAlreadyEnabled, errors.CodeOf(err))

	err = s.jobs.Disable(ctx, "ADHOC")
	assert.Equal(t, errors.CodeNotAScheduledJob, errors.CodeOf(err))

	err = s.jobs.Enable(ctx, "MISSING")
	assert.Equal(t, errors.CodeJobNotFound, errors.CodeOf(err))
}

// failingSaves rejects every Save once armed
type failingSaves struct {
	*store.Memory
	armed bool
}

func (f *failingSaves) Save(ctx context.Context, job *models.JobDefinition) error {
	if f.armed {
		return errors.New("connection reset")
	}
	return f.Memory.Save(ctx, job)
}

func TestEnableDisable_SaveFailureRestoresTrigger(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()
	st := &failingSaves{Memory: s.mem}
	svc := NewJobService(st, s.scheduler, s.jobs.validations, s.jobs.actions, s.jobs.logger)

	job := newJob("ORDER_SYNC", exampleURL)
	job.CronExpression = "0 0 * * * ?"
	_, err := svc.Create(ctx, job)
	require.NoError(t, err)
	st.armed = true

	err = svc.Disable(ctx, "ORDER_SYNC")
	require.Error(t, err)
	enabled, err := s.scheduler.IsEnabled("ORDER_SYNC")
	require.NoError(t, err)
	assert.True(t, enabled)
	stored, _ := svc.Get(ctx, "ORDER_SYNC")
	assert.False(t, stored.Disabled)

	st.armed = false
	require.NoError(t, svc.Disable(ctx, "ORDER_SYNC"))
	st.armed = true

	err = svc.Enable(ctx, "ORDER_SYNC")
	require.Error(t, err)
	disabled, err := s.scheduler.IsDisabled("ORDER_SYNC")
	require.NoError(t, err)
	assert.True(t, disabled)
	stored, _ = svc.Get(ctx, "ORDER_SYNC")
	assert.True(t, stored.Disabled)
}

func TestRun_UnknownJob(t *testing.T) {
	s := newStack(t)

	err := s.jobs.Run(context.Background(), "MISSING")

	assert.True(t, errors.IsNotFound(err))
}

func TestBootstrap_SkipsJobsThatCannotRegister(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	good := newJob("GOOD_ONE", exampleURL)
	good.CronExpression = "0 0 * * * ?"
	paused := newJob("PAUSED_ONE", exampleURL)
	paused.CronExpression = "0 0 * * * ?"
	paused.Disabled = true
	broken := newJob("BROKEN_ONE", exampleURL)
	broken.CronExpression = "sometimes"
	for _, j := range []*models.JobDefinition{good, paused, broken, newJob("MANUAL_ONE", exampleURL)} {
		require.NoError(t, s.mem.Save(ctx, j))
	}

	n, err := s.jobs.Bootstrap(ctx)

	require.NoError(t, err)
	assert.Equal(t, 3, n)
	disabled, err := s.scheduler.IsDisabled("PAUSED_ONE")
	require.NoError(t, err)
	assert.True(t, disabled)
	_, err = s.scheduler.IsScheduled("BROKEN_ONE")
	assert.True(t, errors.IsNotFound(err))
}
