package businessflow

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zapsender/zapsender-backend/app/services"
	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/models"
)

type coordinatorEnv struct {
	schedules *fakeScheduleRepo
	batches   *fakeBatchRepo
	messages  *fakeMessageRepo
	contacts  *fakeContactRepo
	scheduler *services.MockSchedulerClient
	flow      BatchCoordinator
}

func newCoordinatorEnv(t *testing.T) *coordinatorEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })

	env := &coordinatorEnv{
		schedules: newFakeScheduleRepo(),
		batches:   newFakeBatchRepo(),
		messages:  newFakeMessageRepo(),
		contacts:  newFakeContactRepo(),
		scheduler: services.NewMockSchedulerClient(),
	}
	sessions := newFakeSessionRepo()
	templates := newFakeTemplateRepo()
	ctx := context.Background()
	require.NoError(t, sessions.Save(ctx, &models.WhatsAppSession{
		CompanyID: 1, SessionName: "main", Status: models.SessionStatusConnected,
	}))
	require.NoError(t, templates.Save(ctx, &models.MessageTemplate{
		CompanyID: 1, Name: "greeting", Content: "Oi {{first_name}}!", IsActive: true,
	}))

	resolver := NewContactResolver(env.contacts, rc, &config.CacheConfig{RedisPrefix: "test:"})
	campaignCfg := &config.CampaignConfig{
		BatchSize:              2,
		ChunkSize:              50,
		MaterializationHorizon: 10 * time.Minute,
	}
	materializer := NewMessageMaterializer(
		env.messages, sessions, templates, resolver,
		env.scheduler, services.NewMockNotificationService(), services.NewMockWhatsAppClient(),
		campaignCfg, &config.GatewayConfig{BaseURL: "http://gateway.local"},
	)
	env.flow = NewBatchCoordinator(
		env.batches, env.schedules, env.contacts, materializer,
		env.scheduler, campaignCfg,
		&config.SchedulerConfig{CallbackBaseURL: "http://api.local"},
	)
	return env
}

func (env *coordinatorEnv) seedSchedule(t *testing.T, mutate func(*models.Schedule)) *models.Schedule {
	t.Helper()
	schedule := &models.Schedule{
		CompanyID:              1,
		UserID:                 1,
		Name:                   "launch",
		Type:                   models.ScheduleTypeScheduled,
		SelectedSessions:       []string{"main"},
		TemplateOrder:          []int64{1},
		SessionSendingStrategy: models.RotationSequential,
		MessageSequenceType:    models.RotationSequential,
		Status:                 models.ScheduleStatusApproved,
	}
	if mutate != nil {
		mutate(schedule)
	}
	require.NoError(t, env.schedules.Save(context.Background(), schedule))
	return schedule
}

func TestPlanBatchesScheduledWithinHorizonMaterializes(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	schedule := env.seedSchedule(t, nil)

	plan, err := env.flow.PlanBatches(ctx, schedule, staticRecipients(3), nil, 0)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 1)
	assert.Equal(t, 3, plan.Materialized.Created)

	batch, _ := env.batches.ByID(ctx, plan.Batches[0].ID)
	assert.Equal(t, models.BatchStatusProcessing, batch.Status)
	assert.Equal(t, 3, batch.RecipientCount)

	msgs, _ := env.messages.ListByBatch(ctx, batch.ID, nil)
	assert.Len(t, msgs, 3)
}

func TestPlanBatchesBeyondHorizonDefersToActivation(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	runAt := time.Now().UTC().Add(2 * time.Hour)
	schedule := env.seedSchedule(t, func(s *models.Schedule) { s.RunAt = &runAt })

	plan, err := env.flow.PlanBatches(ctx, schedule, staticRecipients(3), nil, 0)
	require.NoError(t, err)
	assert.Zero(t, plan.Materialized.Created)

	batch, _ := env.batches.ByID(ctx, plan.Batches[0].ID)
	assert.Equal(t, models.BatchStatusPending, batch.Status)
	require.NotNil(t, batch.SchedulerJobID)

	msgs, _ := env.messages.ListByBatch(ctx, batch.ID, nil)
	assert.Empty(t, msgs)

	require.Len(t, env.scheduler.SubmittedJobs, 1)
	job := env.scheduler.SubmittedJobs[0]
	assert.Equal(t, fmt.Sprintf("http://api.local/api/v1/batches/%d/activate", batch.ID), job.CallbackURL)
	assert.WithinDuration(t, runAt, job.RunAt, time.Second)
}

func TestPlanBatchesRecurringSplitsByBatchSize(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	runAt := time.Now().UTC().Add(time.Hour)
	schedule := env.seedSchedule(t, func(s *models.Schedule) {
		s.Type = models.ScheduleTypeRecurring
		s.RunAt = &runAt
	})

	plan, err := env.flow.PlanBatches(ctx, schedule, staticRecipients(5), nil, 30*time.Minute)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 3)

	for i, planned := range plan.Batches {
		batch, _ := env.batches.ByID(ctx, planned.ID)
		assert.Equal(t, i+1, batch.BatchNumber)
		assert.WithinDuration(t, runAt.Add(time.Duration(i)*30*time.Minute), batch.RunAt, time.Second)
	}
	assert.Equal(t, 2, plan.Batches[0].RecipientCount)
	assert.Equal(t, 2, plan.Batches[1].RecipientCount)
	assert.Equal(t, 1, plan.Batches[2].RecipientCount)
}

func TestPlanBatchesDynamicStoresFilterOnly(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	schedule := env.seedSchedule(t, func(s *models.Schedule) {
		s.Type = models.ScheduleTypeRecurring
		s.IsDynamicCampaign = true
	})
	filter := &models.DynamicFilter{Tags: []string{"vip"}}

	plan, err := env.flow.PlanBatches(ctx, schedule, nil, filter, 0)
	require.NoError(t, err)
	require.Len(t, plan.Batches, 1)

	batch, _ := env.batches.ByID(ctx, plan.Batches[0].ID)
	assert.True(t, batch.IsDynamic)
	assert.Equal(t, models.BatchStatusPending, batch.Status)
	assert.Equal(t, []string{"vip"}, batch.Filter.Tags)
	assert.Nil(t, batch.CalculatedCount)

	// A pending dynamic batch owns zero message rows
	msgs, _ := env.messages.ListByBatch(ctx, batch.ID, nil)
	assert.Empty(t, msgs)
}

func TestActivateBatchDynamicEvaluatesFilter(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	schedule := env.seedSchedule(t, func(s *models.Schedule) {
		s.Type = models.ScheduleTypeRecurring
		s.IsDynamicCampaign = true
	})

	for i := 0; i < 3; i++ {
		require.NoError(t, env.contacts.Save(ctx, &models.Contact{
			CompanyID: 1,
			Phone:     fmt.Sprintf("55119%08d", 20000000+i),
			Name:      fmt.Sprintf("VIP %d", i),
			Tags:      []string{"vip"},
		}))
	}
	require.NoError(t, env.contacts.Save(ctx, &models.Contact{
		CompanyID: 1, Phone: "5511988887777", Name: "Comum",
	}))

	plan, err := env.flow.PlanBatches(ctx, schedule, nil, &models.DynamicFilter{Tags: []string{"vip"}}, 0)
	require.NoError(t, err)
	batchID := plan.Batches[0].ID

	result, err := env.flow.ActivateBatch(ctx, 1, batchID)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Created)

	batch, _ := env.batches.ByID(ctx, batchID)
	assert.Equal(t, models.BatchStatusProcessing, batch.Status)
	require.NotNil(t, batch.CalculatedCount)
	assert.Equal(t, 3, *batch.CalculatedCount)
	assert.Len(t, batch.CalculatedRecipients, 3)

	msgs, _ := env.messages.ListByBatch(ctx, batchID, nil)
	assert.Len(t, msgs, 3)
}

func TestActivateBatchIsNotRepeatable(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	schedule := env.seedSchedule(t, func(s *models.Schedule) {
		s.Type = models.ScheduleTypeRecurring
		s.IsDynamicCampaign = true
	})
	require.NoError(t, env.contacts.Save(ctx, &models.Contact{
		CompanyID: 1, Phone: "5511987654321", Name: "Ana", Tags: []string{"vip"},
	}))

	plan, err := env.flow.PlanBatches(ctx, schedule, nil, &models.DynamicFilter{Tags: []string{"vip"}}, 0)
	require.NoError(t, err)
	batchID := plan.Batches[0].ID

	_, err = env.flow.ActivateBatch(ctx, 1, batchID)
	require.NoError(t, err)

	// A retried callback must not materialize twice
	_, err = env.flow.ActivateBatch(ctx, 1, batchID)
	require.Error(t, err)
	assert.True(t, IsBatchAlreadyHandled(err))

	msgs, _ := env.messages.ListByBatch(ctx, batchID, nil)
	assert.Len(t, msgs, 1)
}

func TestActivateBatchEmptyDynamicCompletes(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	schedule := env.seedSchedule(t, func(s *models.Schedule) {
		s.Type = models.ScheduleTypeRecurring
		s.IsDynamicCampaign = true
	})

	plan, err := env.flow.PlanBatches(ctx, schedule, nil, &models.DynamicFilter{Tags: []string{"ninguem"}}, 0)
	require.NoError(t, err)
	batchID := plan.Batches[0].ID

	result, err := env.flow.ActivateBatch(ctx, 1, batchID)
	require.NoError(t, err)
	assert.Zero(t, result.Created)

	batch, _ := env.batches.ByID(ctx, batchID)
	assert.Equal(t, models.BatchStatusCompleted, batch.Status)
}

func TestActivateBatchWrongCompanyIsNotFound(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	schedule := env.seedSchedule(t, func(s *models.Schedule) {
		s.Type = models.ScheduleTypeRecurring
		s.IsDynamicCampaign = true
	})

	plan, err := env.flow.PlanBatches(ctx, schedule, nil, &models.DynamicFilter{}, 0)
	require.NoError(t, err)

	_, err = env.flow.ActivateBatch(ctx, 99, plan.Batches[0].ID)
	require.Error(t, err)
	assert.True(t, IsBatchNotFound(err))
}

func TestActivateBatchCancelledCampaignRefuses(t *testing.T) {
	env := newCoordinatorEnv(t)
	ctx := context.Background()
	schedule := env.seedSchedule(t, func(s *models.Schedule) {
		s.Type = models.ScheduleTypeRecurring
		s.IsDynamicCampaign = true
	})

	plan, err := env.flow.PlanBatches(ctx, schedule, nil, &models.DynamicFilter{}, 0)
	require.NoError(t, err)
	require.NoError(t, env.schedules.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusCancelled))

	_, err = env.flow.ActivateBatch(ctx, 1, plan.Batches[0].ID)
	require.Error(t, err)
	assert.True(t, IsBatchAlreadyHandled(err))
}
