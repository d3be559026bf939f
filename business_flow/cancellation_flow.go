package businessflow

import (
	"context"
	"fmt"
	"log"

	"github.com/zapsender/zapsender-backend/app/services"
	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/repository"
	"github.com/zapsender/zapsender-backend/utils"
)

// CancellationResult aggregates what a cascading cancellation touched.
// Remote failures are counted, not fatal: local statuses win.
type CancellationResult struct {
	MessagesCancelled int `json:"messages_cancelled"`
	MessagesDeleted   int `json:"messages_deleted"`
	BatchesCancelled  int `json:"batches_cancelled"`
	RemoteFailures    int `json:"remote_failures"`
}

// CancellationCoordinator walks a campaign top-down, cancelling scheduler
// jobs and reconciling batch and message statuses. Branching follows the
// campaign type and each batch's materialization state.
type CancellationCoordinator interface {
	Cancel(ctx context.Context, companyID uint, scheduleUUID string) (*CancellationResult, error)
}

// CancellationCoordinatorImpl implements CancellationCoordinator
type CancellationCoordinatorImpl struct {
	scheduleRepo repository.ScheduleRepository
	batchRepo    repository.BatchScheduleRepository
	messageRepo  repository.MessageRepository
	scheduler    services.SchedulerClient
	notifier     services.NotificationService
	notifyCfg    *config.NotifyConfig
}

// NewCancellationCoordinator creates a new cancellation coordinator
func NewCancellationCoordinator(
	scheduleRepo repository.ScheduleRepository,
	batchRepo repository.BatchScheduleRepository,
	messageRepo repository.MessageRepository,
	scheduler services.SchedulerClient,
	notifier services.NotificationService,
	notifyCfg *config.NotifyConfig,
) CancellationCoordinator {
	return &CancellationCoordinatorImpl{
		scheduleRepo: scheduleRepo,
		batchRepo:    batchRepo,
		messageRepo:  messageRepo,
		scheduler:    scheduler,
		notifier:     notifier,
		notifyCfg:    notifyCfg,
	}
}

// Cancel cancels the campaign and everything it owns. Partial remote-cancel
// failures are tolerated: the local cascade always completes and the schedule
// always ends cancelled with cancelled_at set.
func (c *CancellationCoordinatorImpl) Cancel(ctx context.Context, companyID uint, scheduleUUID string) (*CancellationResult, error) {
	schedule, err := c.scheduleRepo.ByUUID(ctx, scheduleUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if schedule == nil || schedule.CompanyID != companyID {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign does not exist", ErrCampaignNotFound)
	}
	if schedule.Status.IsTerminal() {
		return nil, NewBusinessError("CAMPAIGN_ALREADY_TERMINAL", fmt.Sprintf("Campaign is already %s", schedule.Status), ErrCampaignAlreadyTerminal)
	}

	result := &CancellationResult{}

	switch schedule.Type {
	case models.ScheduleTypeImmediate:
		if err := c.cancelScheduleMessages(ctx, schedule, []models.MessageStatus{models.MessageStatusPending}, false, result); err != nil {
			return nil, err
		}

	case models.ScheduleTypeScheduled:
		statuses := []models.MessageStatus{models.MessageStatusPending, models.MessageStatusRetry}
		// Already-fired sends of a processing campaign are left alone
		onlyFuture := schedule.Status == models.ScheduleStatusProcessing
		if err := c.cancelScheduleMessages(ctx, schedule, statuses, onlyFuture, result); err != nil {
			return nil, err
		}

	case models.ScheduleTypeRecurring:
		if err := c.cancelBatches(ctx, schedule, result); err != nil {
			return nil, err
		}

	default:
		return nil, NewBusinessError("CAMPAIGN_INVALID_TYPE", fmt.Sprintf("Unknown campaign type %q", schedule.Type), nil)
	}

	if err := c.scheduleRepo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusCancelled); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to mark campaign cancelled", err)
	}

	c.notifier.Publish(ctx, companyID, services.EventCampaignCancelled, map[string]any{
		"campaign_uuid":      schedule.UUID.String(),
		"messages_cancelled": result.MessagesCancelled,
		"messages_deleted":   result.MessagesDeleted,
		"batches_cancelled":  result.BatchesCancelled,
	})
	return result, nil
}

// cancelScheduleMessages cancels the schedule's own messages for campaigns
// without explicit batches.
func (c *CancellationCoordinatorImpl) cancelScheduleMessages(ctx context.Context, schedule *models.Schedule, statuses []models.MessageStatus, onlyFuture bool, result *CancellationResult) error {
	messages, err := c.messageRepo.ListBySchedule(ctx, schedule.ID, statuses)
	if err != nil {
		return NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load campaign messages", err)
	}
	if onlyFuture {
		now := utils.UTCNow()
		kept := messages[:0]
		for _, msg := range messages {
			if msg.RunAt != nil && msg.RunAt.After(now) {
				kept = append(kept, msg)
			}
		}
		messages = kept
	}

	cancelled, err := c.cancelMessages(ctx, messages, result)
	if err != nil {
		return err
	}
	result.MessagesCancelled += cancelled
	return nil
}

// cancelBatches walks every batch of a recurring campaign. Terminal batches
// are skipped; the branch per batch depends on its status and whether its
// recipients were ever materialized.
func (c *CancellationCoordinatorImpl) cancelBatches(ctx context.Context, schedule *models.Schedule, result *CancellationResult) error {
	batches, err := c.batchRepo.ListBySchedule(ctx, schedule.ID)
	if err != nil {
		return NewBusinessError("BATCH_LOOKUP_FAILED", "Failed to load campaign batches", err)
	}

	for _, batch := range batches {
		switch {
		case batch.Status.IsTerminal():
			continue

		case batch.Status == models.BatchStatusApproved || batch.Status == models.BatchStatusProcessing:
			messages, err := c.messageRepo.ListByBatch(ctx, batch.ID, []models.MessageStatus{models.MessageStatusPending, models.MessageStatusRetry})
			if err != nil {
				return NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load batch messages", err)
			}
			cancelled, err := c.cancelMessages(ctx, messages, result)
			if err != nil {
				return err
			}
			result.MessagesCancelled += cancelled

		case batch.IsDynamic:
			// A pending dynamic batch owns no messages; only its activation
			// job needs cancelling.
			c.cancelRemoteJobs(ctx, c.activationJobIDs(batch), result)

		default:
			// Pending non-dynamic: pre-materialized rows represent work that
			// was never approved for this run, so they are deleted outright.
			messages, err := c.messageRepo.ListByBatch(ctx, batch.ID, nil)
			if err != nil {
				return NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load batch messages", err)
			}
			c.cancelRemoteJobs(ctx, append(messageJobIDs(messages), c.activationJobIDs(batch)...), result)
			deleted, err := c.messageRepo.DeleteByIDs(ctx, messageIDs(messages))
			if err != nil {
				return NewBusinessError("MESSAGE_DELETE_FAILED", "Failed to delete unapproved batch messages", err)
			}
			result.MessagesDeleted += int(deleted)
		}

		if err := c.batchRepo.UpdateStatus(ctx, batch.ID, models.BatchStatusCancelled); err != nil {
			return NewBusinessError("BATCH_UPDATE_FAILED", "Failed to mark batch cancelled", err)
		}
		result.BatchesCancelled++
	}
	return nil
}

// cancelMessages cancels the remote jobs of the given messages, then marks
// the rows cancelled. Returns how many rows were updated.
func (c *CancellationCoordinatorImpl) cancelMessages(ctx context.Context, messages []*models.Message, result *CancellationResult) (int, error) {
	if len(messages) == 0 {
		return 0, nil
	}

	c.cancelRemoteJobs(ctx, messageJobIDs(messages), result)

	updated, err := c.messageRepo.UpdateStatusByIDs(ctx, messageIDs(messages), models.MessageStatusCancelled)
	if err != nil {
		return 0, NewBusinessError("MESSAGE_UPDATE_FAILED", "Failed to mark messages cancelled", err)
	}
	return int(updated), nil
}

// cancelRemoteJobs is best effort: failures increment the remote-failure
// count and are logged, never propagated.
func (c *CancellationCoordinatorImpl) cancelRemoteJobs(ctx context.Context, jobIDs []string, result *CancellationResult) {
	if len(jobIDs) == 0 {
		return
	}

	results, err := c.scheduler.CancelJobs(ctx, jobIDs)
	if err != nil {
		log.Printf("cancellation: remote cancel of %d jobs failed: %v", len(jobIDs), err)
		schedulerJobsCancelled.WithLabelValues("error").Add(float64(len(jobIDs)))
		result.RemoteFailures += len(jobIDs)
		return
	}
	for _, res := range results {
		if res.Cancelled {
			schedulerJobsCancelled.WithLabelValues("ok").Inc()
			continue
		}
		schedulerJobsCancelled.WithLabelValues("already_fired").Inc()
		result.RemoteFailures++
		log.Printf("cancellation: job %s not cancelled: %s", res.JobID, res.Error)
	}
}

// activationJobIDs returns the batch's own scheduler job, if registered.
func (c *CancellationCoordinatorImpl) activationJobIDs(batch *models.BatchSchedule) []string {
	if batch.SchedulerJobID == nil || *batch.SchedulerJobID == "" {
		return nil
	}
	return []string{*batch.SchedulerJobID}
}

func messageJobIDs(messages []*models.Message) []string {
	ids := make([]string, 0, len(messages))
	for _, msg := range messages {
		if msg.SchedulerJobID != nil && *msg.SchedulerJobID != "" {
			ids = append(ids, *msg.SchedulerJobID)
		}
	}
	return ids
}

func messageIDs(messages []*models.Message) []uint {
	ids := make([]uint, 0, len(messages))
	for _, msg := range messages {
		ids = append(ids, msg.ID)
	}
	return ids
}
