package businessflow

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapsender/zapsender-backend/app/services"
	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/models"
)

type cancellationEnv struct {
	schedules *fakeScheduleRepo
	batches   *fakeBatchRepo
	messages  *fakeMessageRepo
	scheduler *services.MockSchedulerClient
	notifier  *services.MockNotificationService
	flow      CancellationCoordinator
}

func newCancellationEnv(t *testing.T) *cancellationEnv {
	t.Helper()
	env := &cancellationEnv{
		schedules: newFakeScheduleRepo(),
		batches:   newFakeBatchRepo(),
		messages:  newFakeMessageRepo(),
		scheduler: services.NewMockSchedulerClient(),
		notifier:  services.NewMockNotificationService(),
	}
	env.flow = NewCancellationCoordinator(
		env.schedules, env.batches, env.messages,
		env.scheduler, env.notifier, &config.NotifyConfig{},
	)
	return env
}

func (env *cancellationEnv) seedSchedule(t *testing.T, scheduleType models.ScheduleType, status models.ScheduleStatus, dynamic bool) *models.Schedule {
	t.Helper()
	schedule := &models.Schedule{
		CompanyID:         1,
		UserID:            1,
		Name:              "launch",
		Type:              scheduleType,
		IsDynamicCampaign: dynamic,
		SelectedSessions:  []string{"main"},
		TemplateOrder:     []int64{1},
		Status:            status,
	}
	require.NoError(t, env.schedules.Save(context.Background(), schedule))
	return schedule
}

func (env *cancellationEnv) seedBatch(t *testing.T, schedule *models.Schedule, status models.BatchStatus, dynamic bool) *models.BatchSchedule {
	t.Helper()
	batch := &models.BatchSchedule{
		ScheduleID: schedule.ID,
		CompanyID:  schedule.CompanyID,
		RunAt:      time.Now().UTC().Add(time.Hour),
		Status:     status,
		IsDynamic:  dynamic,
	}
	require.NoError(t, env.batches.Save(context.Background(), batch))
	return batch
}

func (env *cancellationEnv) seedMessage(t *testing.T, schedule *models.Schedule, batch *models.BatchSchedule, status models.MessageStatus, jobID string, runAt time.Time) *models.Message {
	t.Helper()
	msg := &models.Message{
		CompanyID:   schedule.CompanyID,
		ScheduleID:  &schedule.ID,
		SessionName: "main",
		ChatID:      "5511987654321@c.us",
		Content:     "oi",
		Direction:   models.MessageDirectionSent,
		Status:      status,
		Type:        models.MessageTypeScheduled,
		RunAt:       &runAt,
	}
	if batch != nil {
		msg.BatchID = &batch.ID
	}
	if jobID != "" {
		msg.SchedulerJobID = &jobID
	}
	require.NoError(t, env.messages.Save(context.Background(), msg))
	return msg
}

func TestCancelDynamicRecurringCascade(t *testing.T) {
	env := newCancellationEnv(t)
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)

	schedule := env.seedSchedule(t, models.ScheduleTypeRecurring, models.ScheduleStatusProcessing, true)
	pendingBatch := env.seedBatch(t, schedule, models.BatchStatusPending, true)
	processingBatch := env.seedBatch(t, schedule, models.BatchStatusProcessing, true)
	for i := 1; i <= 3; i++ {
		env.seedMessage(t, schedule, processingBatch, models.MessageStatusPending, fmt.Sprintf("job-%d", i), future)
	}

	result, err := env.flow.Cancel(ctx, 1, schedule.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, 3, result.MessagesCancelled)
	assert.Equal(t, 2, result.BatchesCancelled)
	assert.Zero(t, result.MessagesDeleted)
	assert.Zero(t, result.RemoteFailures)

	// Exactly the three message jobs are cancelled remotely
	assert.ElementsMatch(t, []string{"job-1", "job-2", "job-3"}, env.scheduler.CancelledIDs)

	for _, batch := range []*models.BatchSchedule{pendingBatch, processingBatch} {
		got, _ := env.batches.ByID(ctx, batch.ID)
		assert.Equal(t, models.BatchStatusCancelled, got.Status)
	}
	msgs, _ := env.messages.ListByBatch(ctx, processingBatch.ID, nil)
	for _, msg := range msgs {
		assert.Equal(t, models.MessageStatusCancelled, msg.Status)
	}

	got, _ := env.schedules.ByID(ctx, schedule.ID)
	assert.Equal(t, models.ScheduleStatusCancelled, got.Status)
	assert.NotNil(t, got.CancelledAt)
}

func TestCancelPendingStaticBatchDeletesRows(t *testing.T) {
	env := newCancellationEnv(t)
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)

	schedule := env.seedSchedule(t, models.ScheduleTypeRecurring, models.ScheduleStatusScheduled, false)
	batch := env.seedBatch(t, schedule, models.BatchStatusPending, false)
	for i := 1; i <= 5; i++ {
		env.seedMessage(t, schedule, batch, models.MessageStatusPending, fmt.Sprintf("job-%d", i), future)
	}

	result, err := env.flow.Cancel(ctx, 1, schedule.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, 5, result.MessagesDeleted)
	assert.Zero(t, result.MessagesCancelled)
	assert.Equal(t, 1, result.BatchesCancelled)

	// The rows are gone, not flagged
	msgs, _ := env.messages.ListByBatch(ctx, batch.ID, nil)
	assert.Empty(t, msgs)
	n, _ := env.messages.Count(ctx, models.MessageFilter{})
	assert.Equal(t, int64(0), n)

	got, _ := env.batches.ByID(ctx, batch.ID)
	assert.Equal(t, models.BatchStatusCancelled, got.Status)
}

func TestCancelScheduledProcessingLeavesFiredSends(t *testing.T) {
	env := newCancellationEnv(t)
	ctx := context.Background()

	schedule := env.seedSchedule(t, models.ScheduleTypeScheduled, models.ScheduleStatusProcessing, false)
	fired := env.seedMessage(t, schedule, nil, models.MessageStatusPending, "job-past", time.Now().UTC().Add(-time.Hour))
	upcoming := env.seedMessage(t, schedule, nil, models.MessageStatusPending, "job-future", time.Now().UTC().Add(time.Hour))
	retrying := env.seedMessage(t, schedule, nil, models.MessageStatusRetry, "job-retry", time.Now().UTC().Add(2*time.Hour))

	result, err := env.flow.Cancel(ctx, 1, schedule.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, 2, result.MessagesCancelled)
	assert.ElementsMatch(t, []string{"job-future", "job-retry"}, env.scheduler.CancelledIDs)

	got, _ := env.messages.ByID(ctx, fired.ID)
	assert.Equal(t, models.MessageStatusPending, got.Status)
	got, _ = env.messages.ByID(ctx, upcoming.ID)
	assert.Equal(t, models.MessageStatusCancelled, got.Status)
	got, _ = env.messages.ByID(ctx, retrying.ID)
	assert.Equal(t, models.MessageStatusCancelled, got.Status)
}

func TestCancelImmediateCancelsPendingOnly(t *testing.T) {
	env := newCancellationEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()

	schedule := env.seedSchedule(t, models.ScheduleTypeImmediate, models.ScheduleStatusProcessing, false)
	pending := env.seedMessage(t, schedule, nil, models.MessageStatusPending, "job-1", now)
	delivered := env.seedMessage(t, schedule, nil, models.MessageStatusSuccess, "job-2", now)

	result, err := env.flow.Cancel(ctx, 1, schedule.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, result.MessagesCancelled)
	assert.Equal(t, []string{"job-1"}, env.scheduler.CancelledIDs)

	got, _ := env.messages.ByID(ctx, pending.ID)
	assert.Equal(t, models.MessageStatusCancelled, got.Status)
	got, _ = env.messages.ByID(ctx, delivered.ID)
	assert.Equal(t, models.MessageStatusSuccess, got.Status)
}

func TestCancelToleratesRemoteFailure(t *testing.T) {
	env := newCancellationEnv(t)
	ctx := context.Background()
	future := time.Now().UTC().Add(time.Hour)

	schedule := env.seedSchedule(t, models.ScheduleTypeImmediate, models.ScheduleStatusProcessing, false)
	msg := env.seedMessage(t, schedule, nil, models.MessageStatusPending, "job-1", future)
	env.scheduler.CancelErr = errors.New("scheduler down")

	result, err := env.flow.Cancel(ctx, 1, schedule.UUID.String())
	require.NoError(t, err)
	assert.Equal(t, 1, result.MessagesCancelled)
	assert.Equal(t, 1, result.RemoteFailures)

	// Local statuses win even when the remote cancel fails
	got, _ := env.messages.ByID(ctx, msg.ID)
	assert.Equal(t, models.MessageStatusCancelled, got.Status)
	sched, _ := env.schedules.ByID(ctx, schedule.ID)
	assert.Equal(t, models.ScheduleStatusCancelled, sched.Status)
}

func TestCancelTerminalCampaignRejected(t *testing.T) {
	env := newCancellationEnv(t)
	schedule := env.seedSchedule(t, models.ScheduleTypeImmediate, models.ScheduleStatusCompleted, false)

	_, err := env.flow.Cancel(context.Background(), 1, schedule.UUID.String())
	require.Error(t, err)
	assert.True(t, IsCampaignAlreadyTerminal(err))
}

func TestCancelUnknownCampaignNotFound(t *testing.T) {
	env := newCancellationEnv(t)

	_, err := env.flow.Cancel(context.Background(), 1, "3f1d3c1a-0000-4000-8000-000000000000")
	require.Error(t, err)
	assert.True(t, IsCampaignNotFound(err))
}

func TestCancelPublishesNotification(t *testing.T) {
	env := newCancellationEnv(t)
	schedule := env.seedSchedule(t, models.ScheduleTypeImmediate, models.ScheduleStatusProcessing, false)

	_, err := env.flow.Cancel(context.Background(), 1, schedule.UUID.String())
	require.NoError(t, err)
	assert.Contains(t, env.notifier.EventTypes(), services.EventCampaignCancelled)
}
