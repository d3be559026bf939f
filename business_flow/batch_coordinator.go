package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"github.com/lib/pq"

	"github.com/zapsender/zapsender-backend/app/services"
	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/repository"
	"github.com/zapsender/zapsender-backend/utils"
)

// PlanResult reports what batch planning produced: the persisted batches and
// the combined materialization outcome for every batch that ran immediately.
type PlanResult struct {
	Batches      []*models.BatchSchedule
	Materialized MaterializeResult
}

// BatchCoordinator expands a campaign into BatchSchedule units and drives the
// materializer per batch. Batches outside the near-term horizon are left
// pending with a scheduler callback, which keeps the process stateless.
type BatchCoordinator interface {
	PlanBatches(ctx context.Context, schedule *models.Schedule, recipients []models.Recipient, filter *models.DynamicFilter, batchInterval time.Duration) (*PlanResult, error)
	ActivateBatch(ctx context.Context, companyID, batchID uint) (*MaterializeResult, error)
}

// BatchCoordinatorImpl implements BatchCoordinator
type BatchCoordinatorImpl struct {
	batchRepo    repository.BatchScheduleRepository
	scheduleRepo repository.ScheduleRepository
	contactRepo  repository.ContactRepository
	materializer MessageMaterializer
	scheduler    services.SchedulerClient
	campaignCfg  *config.CampaignConfig
	schedulerCfg *config.SchedulerConfig
}

// NewBatchCoordinator creates a new batch coordinator
func NewBatchCoordinator(
	batchRepo repository.BatchScheduleRepository,
	scheduleRepo repository.ScheduleRepository,
	contactRepo repository.ContactRepository,
	materializer MessageMaterializer,
	scheduler services.SchedulerClient,
	campaignCfg *config.CampaignConfig,
	schedulerCfg *config.SchedulerConfig,
) BatchCoordinator {
	return &BatchCoordinatorImpl{
		batchRepo:    batchRepo,
		scheduleRepo: scheduleRepo,
		contactRepo:  contactRepo,
		materializer: materializer,
		scheduler:    scheduler,
		campaignCfg:  campaignCfg,
		schedulerCfg: schedulerCfg,
	}
}

// batchActivationPayload is carried on the batch-activation scheduler job
type batchActivationPayload struct {
	CompanyID  uint `json:"company_id"`
	ScheduleID uint `json:"schedule_id"`
	BatchID    uint `json:"batch_id"`
}

// PlanBatches persists the campaign's batches and dispatches each one:
// within the materialization horizon the batch runs immediately, otherwise a
// batch-activation job calls back at run_at. Dynamic campaigns always defer
// to activation time so the filter is evaluated against current contacts.
func (c *BatchCoordinatorImpl) PlanBatches(ctx context.Context, schedule *models.Schedule, recipients []models.Recipient, filter *models.DynamicFilter, batchInterval time.Duration) (*PlanResult, error) {
	baseRunAt := utils.UTCNow()
	if schedule.RunAt != nil && schedule.RunAt.After(baseRunAt) {
		baseRunAt = schedule.RunAt.UTC()
	}

	batches, err := c.buildBatches(schedule, recipients, filter, baseRunAt, batchInterval)
	if err != nil {
		return nil, err
	}

	result := &PlanResult{Batches: batches}
	for _, batch := range batches {
		if err := batch.BeforeCreate(); err != nil {
			return nil, NewBusinessError("BATCH_PLAN_FAILED", "Failed to prepare batch", err)
		}
		if err := c.batchRepo.Save(ctx, batch); err != nil {
			return nil, NewBusinessError("BATCH_PLAN_FAILED", "Failed to persist batch", err)
		}

		if err := c.dispatchBatch(ctx, schedule, batch, &result.Materialized); err != nil {
			return nil, err
		}
	}
	return result, nil
}

// buildBatches splits the campaign into its BatchSchedule units. Immediate
// and scheduled campaigns get exactly one batch. Recurring static campaigns
// split the frozen recipient list into fixed-size batches spaced by the
// interval. Dynamic campaigns get one filter-carrying batch per window.
func (c *BatchCoordinatorImpl) buildBatches(schedule *models.Schedule, recipients []models.Recipient, filter *models.DynamicFilter, baseRunAt time.Time, batchInterval time.Duration) ([]*models.BatchSchedule, error) {
	if schedule.IsDynamicCampaign {
		if filter == nil {
			return nil, NewBusinessError("VALIDATION_FILTER_REQUIRED", "Dynamic campaign requires a recipient filter", ErrNoRecipients)
		}
		return []*models.BatchSchedule{{
			ScheduleID:  schedule.ID,
			CompanyID:   schedule.CompanyID,
			BatchNumber: 1,
			RunAt:       baseRunAt,
			IsDynamic:   true,
			Filter:      *filter,
		}}, nil
	}

	if len(recipients) == 0 {
		return nil, NewBusinessError("VALIDATION_NO_RECIPIENTS", "Campaign has no recipients", ErrNoRecipients)
	}

	batchSize := c.campaignCfg.BatchSize
	if batchSize <= 0 {
		batchSize = utils.DefaultBatchSize
	}
	if schedule.Type != models.ScheduleTypeRecurring {
		batchSize = len(recipients)
	}
	if batchInterval <= 0 {
		batchInterval = time.Minute
	}

	var batches []*models.BatchSchedule
	for offset := 0; offset < len(recipients); offset += batchSize {
		end := offset + batchSize
		if end > len(recipients) {
			end = len(recipients)
		}
		number := len(batches) + 1
		chunk := make(models.RecipientList, end-offset)
		copy(chunk, recipients[offset:end])

		batches = append(batches, &models.BatchSchedule{
			ScheduleID:     schedule.ID,
			CompanyID:      schedule.CompanyID,
			BatchNumber:    number,
			RunAt:          baseRunAt.Add(time.Duration(number-1) * batchInterval),
			RecipientCount: len(chunk),
			Recipients:     chunk,
		})
	}
	return batches, nil
}

// dispatchBatch either materializes the batch now or registers its
// activation callback with the external scheduler.
func (c *BatchCoordinatorImpl) dispatchBatch(ctx context.Context, schedule *models.Schedule, batch *models.BatchSchedule, combined *MaterializeResult) error {
	horizon := c.campaignCfg.MaterializationHorizon
	if horizon <= 0 {
		horizon = utils.DefaultMaterializationHorizon
	}

	if !batch.IsDynamic && !batch.RunAt.After(utils.UTCNowAdd(horizon)) {
		result, err := c.runBatch(ctx, schedule, batch, batch.Recipients)
		if err != nil {
			return err
		}
		combined.Created += result.Created
		combined.Failed += result.Failed
		combined.Skipped += result.Skipped
		combined.Errors = append(combined.Errors, result.Errors...)
		return nil
	}

	return c.submitActivationJob(ctx, schedule, batch)
}

// submitActivationJob registers the callback that will activate the batch at
// its run time and persists the job ID on the batch for cancellation.
func (c *BatchCoordinatorImpl) submitActivationJob(ctx context.Context, schedule *models.Schedule, batch *models.BatchSchedule) error {
	payload, err := json.Marshal(batchActivationPayload{
		CompanyID:  schedule.CompanyID,
		ScheduleID: schedule.ID,
		BatchID:    batch.ID,
	})
	if err != nil {
		return NewBusinessError("BATCH_PLAN_FAILED", "Failed to encode activation payload", err)
	}

	jobID, err := c.scheduler.SubmitJob(ctx, &services.SchedulerJob{
		Name:        fmt.Sprintf("batch-activation-%d", batch.ID),
		RunAt:       batch.RunAt,
		CallbackURL: fmt.Sprintf("%s/api/v1/batches/%d/activate", c.schedulerCfg.CallbackBaseURL, batch.ID),
		Method:      "POST",
		Headers: map[string]string{
			"Authorization": "Bearer " + c.schedulerCfg.BearerToken,
			"X-Company-ID":  fmt.Sprintf("%d", schedule.CompanyID),
		},
		Body: payload,
	})
	if err != nil {
		schedulerJobsSubmitted.WithLabelValues("batch_activation", "error").Inc()
		return NewBusinessError("UPSTREAM_SCHEDULER_SUBMIT_FAILED", "Failed to register batch activation", err)
	}
	schedulerJobsSubmitted.WithLabelValues("batch_activation", "ok").Inc()

	batch.SchedulerJobID = &jobID
	if err := c.batchRepo.Update(ctx, batch); err != nil {
		return NewBusinessError("BATCH_PLAN_FAILED", "Failed to persist activation job ID", err)
	}
	return nil
}

// ActivateBatch is the scheduler-callback entry point. Dynamic batches
// resolve their recipients here by re-evaluating the stored filter against
// current contact data; static batches materialize their frozen list.
// Activation of an already handled batch is rejected, which makes callback
// retries harmless.
func (c *BatchCoordinatorImpl) ActivateBatch(ctx context.Context, companyID, batchID uint) (*MaterializeResult, error) {
	batch, err := c.batchRepo.ByID(ctx, batchID)
	if err != nil {
		return nil, NewBusinessError("BATCH_LOOKUP_FAILED", "Failed to load batch", err)
	}
	if batch == nil || batch.CompanyID != companyID {
		return nil, NewBusinessError("BATCH_NOT_FOUND", "Batch does not exist", ErrBatchNotFound)
	}
	if batch.Status != models.BatchStatusPending && batch.Status != models.BatchStatusApproved {
		return nil, NewBusinessError("BATCH_ALREADY_HANDLED", fmt.Sprintf("Batch is %s", batch.Status), ErrBatchAlreadyHandled)
	}

	schedule, err := c.scheduleRepo.ByID(ctx, batch.ScheduleID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if schedule == nil {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign does not exist", ErrCampaignNotFound)
	}
	if schedule.Status.IsTerminal() {
		return nil, NewBusinessError("BATCH_ALREADY_HANDLED", fmt.Sprintf("Campaign is %s", schedule.Status), ErrBatchAlreadyHandled)
	}

	recipients := batch.Recipients
	if batch.IsDynamic {
		recipients, err = c.resolveDynamicRecipients(ctx, batch)
		if err != nil {
			return nil, err
		}
	}

	return c.runBatch(ctx, schedule, batch, recipients)
}

// resolveDynamicRecipients evaluates the batch's filter and freezes the
// outcome into calculated_count and calculated_recipients.
func (c *BatchCoordinatorImpl) resolveDynamicRecipients(ctx context.Context, batch *models.BatchSchedule) ([]models.Recipient, error) {
	contacts, err := c.contactRepo.ListByDynamicFilter(ctx, batch.CompanyID, batch.Filter, 0)
	if err != nil {
		return nil, NewBusinessError("BATCH_FILTER_FAILED", "Failed to evaluate recipient filter", err)
	}

	recipients := make([]models.Recipient, 0, len(contacts))
	contactIDs := make(pq.Int64Array, 0, len(contacts))
	for _, contact := range contacts {
		recipients = append(recipients, models.Recipient{
			ContactID: contact.ID,
			Phone:     contact.Phone,
			Name:      contact.Name,
			Email:     contact.Email,
		})
		contactIDs = append(contactIDs, int64(contact.ID))
	}

	count := len(recipients)
	batch.CalculatedCount = &count
	batch.CalculatedRecipients = contactIDs
	if err := c.batchRepo.Update(ctx, batch); err != nil {
		return nil, NewBusinessError("BATCH_UPDATE_FAILED", "Failed to record calculated recipients", err)
	}
	return recipients, nil
}

// runBatch transitions the batch into processing and materializes it. An
// empty recipient set completes the batch with nothing to send.
func (c *BatchCoordinatorImpl) runBatch(ctx context.Context, schedule *models.Schedule, batch *models.BatchSchedule, recipients []models.Recipient) (*MaterializeResult, error) {
	mode := "static"
	if batch.IsDynamic {
		mode = "dynamic"
	}

	if len(recipients) == 0 {
		if err := c.batchRepo.UpdateStatus(ctx, batch.ID, models.BatchStatusCompleted); err != nil {
			return nil, NewBusinessError("BATCH_UPDATE_FAILED", "Failed to complete empty batch", err)
		}
		batch.Status = models.BatchStatusCompleted
		batchesActivated.WithLabelValues(mode).Inc()
		log.Printf("batch coordinator: batch %d resolved zero recipients, completed", batch.ID)
		return &MaterializeResult{}, nil
	}

	if err := c.batchRepo.UpdateStatus(ctx, batch.ID, models.BatchStatusProcessing); err != nil {
		return nil, NewBusinessError("BATCH_UPDATE_FAILED", "Failed to start batch", err)
	}
	batch.Status = models.BatchStatusProcessing
	batchesActivated.WithLabelValues(mode).Inc()

	runAt := batch.RunAt
	if now := utils.UTCNow(); runAt.Before(now) {
		runAt = now
	}
	return c.materializer.MaterializeBatch(ctx, schedule, batch, recipients, runAt)
}
