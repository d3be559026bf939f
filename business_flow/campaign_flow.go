// Package businessflow contains the core business logic and use cases for campaign workflows
package businessflow

import (
	"context"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/zapsender/zapsender-backend/app/dto"
	"github.com/zapsender/zapsender-backend/app/services"
	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/repository"
	"github.com/zapsender/zapsender-backend/utils"
)

// CampaignFlow owns the Schedule lifecycle: creation, approval, reading,
// cancellation, and aggregation of delivery results into campaign status.
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	ApproveCampaign(ctx context.Context, req *dto.ApproveCampaignRequest, metadata *ClientMetadata) (*dto.ApproveCampaignResponse, error)
	GetCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.GetCampaignResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error)
	CancelCampaign(ctx context.Context, req *dto.CancelCampaignRequest, metadata *ClientMetadata) (*dto.CancelCampaignResponse, error)
	ActivateBatch(ctx context.Context, req *dto.ActivateBatchRequest) (*dto.ActivateBatchResponse, error)
	RecordDeliveryResult(ctx context.Context, req *dto.DeliveryResultRequest) (*dto.DeliveryResultResponse, error)
}

// CampaignFlowImpl implements CampaignFlow
type CampaignFlowImpl struct {
	scheduleRepo repository.ScheduleRepository
	batchRepo    repository.BatchScheduleRepository
	messageRepo  repository.MessageRepository
	sessionRepo  repository.WhatsAppSessionRepository
	templateRepo repository.MessageTemplateRepository
	coordinator  BatchCoordinator
	canceller    CancellationCoordinator
	notifier     services.NotificationService
}

// NewCampaignFlow creates a new campaign flow
func NewCampaignFlow(
	scheduleRepo repository.ScheduleRepository,
	batchRepo repository.BatchScheduleRepository,
	messageRepo repository.MessageRepository,
	sessionRepo repository.WhatsAppSessionRepository,
	templateRepo repository.MessageTemplateRepository,
	coordinator BatchCoordinator,
	canceller CancellationCoordinator,
	notifier services.NotificationService,
) CampaignFlow {
	return &CampaignFlowImpl{
		scheduleRepo: scheduleRepo,
		batchRepo:    batchRepo,
		messageRepo:  messageRepo,
		sessionRepo:  sessionRepo,
		templateRepo: templateRepo,
		coordinator:  coordinator,
		canceller:    canceller,
		notifier:     notifier,
	}
}

// CreateCampaign validates the request, persists the schedule, and drives the
// batch coordinator: near-term batches materialize immediately, the rest get
// activation callbacks.
func (f *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	schedule, recipients, filter, err := f.validateCreate(ctx, req)
	if err != nil {
		return nil, err
	}

	if err := schedule.BeforeCreate(); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATE_FAILED", "Failed to prepare campaign", err)
	}
	if err := f.scheduleRepo.Save(ctx, schedule); err != nil {
		return nil, NewBusinessError("CAMPAIGN_CREATE_FAILED", "Failed to persist campaign", err)
	}

	plan, err := f.coordinator.PlanBatches(ctx, schedule, recipients, filter, time.Duration(req.BatchIntervalMinutes)*time.Minute)
	if err != nil {
		// The campaign must not stay live when its batches could not be
		// planned; mark it failed so the caller can recreate it.
		if updateErr := f.scheduleRepo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusFailed); updateErr != nil {
			log.Printf("campaign: failed to mark campaign %s failed after plan error: %v", schedule.UUID, updateErr)
		}
		return nil, err
	}

	finalStatus := models.ScheduleStatusScheduled
	if plan.Materialized.Created+plan.Materialized.Failed+plan.Materialized.Skipped > 0 {
		finalStatus = models.ScheduleStatusProcessing
	}
	if err := f.scheduleRepo.UpdateStatus(ctx, schedule.ID, finalStatus); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to update campaign status", err)
	}

	f.notifier.Publish(ctx, req.CompanyID, services.EventCampaignApproved, map[string]any{
		"campaign_uuid": schedule.UUID.String(),
		"batch_count":   len(plan.Batches),
	})

	return &dto.CreateCampaignResponse{
		UUID:            schedule.UUID.String(),
		Status:          finalStatus.String(),
		BatchCount:      len(plan.Batches),
		MessagesCreated: plan.Materialized.Created,
		MessagesFailed:  plan.Materialized.Failed,
		MessagesSkipped: plan.Materialized.Skipped,
	}, nil
}

func (f *CampaignFlowImpl) validateCreate(ctx context.Context, req *dto.CreateCampaignRequest) (*models.Schedule, []models.Recipient, *models.DynamicFilter, error) {
	name := strings.TrimSpace(utils.Deref(req.Name, ""))
	if name == "" {
		return nil, nil, nil, NewBusinessError("VALIDATION_NAME_REQUIRED", "Campaign name is required", ErrCampaignNameRequired)
	}

	scheduleType := models.ScheduleType(utils.Deref(req.Type, ""))
	if !scheduleType.Valid() {
		return nil, nil, nil, NewBusinessError("VALIDATION_TYPE_INVALID", fmt.Sprintf("Campaign type %q is not valid", utils.Deref(req.Type, "")), nil)
	}

	if len(req.SelectedSessions) == 0 {
		return nil, nil, nil, NewBusinessError("VALIDATION_SESSIONS_REQUIRED", "At least one sending session is required", ErrSessionListRequired)
	}
	if len(req.TemplateOrder) == 0 {
		return nil, nil, nil, NewBusinessError("VALIDATION_TEMPLATES_REQUIRED", "At least one message template is required", ErrTemplateOrderRequired)
	}

	if scheduleType != models.ScheduleTypeImmediate {
		if req.RunAt == nil {
			return nil, nil, nil, NewBusinessError("VALIDATION_RUN_AT_REQUIRED", "Scheduled campaigns require run_at", ErrScheduleTimeNotPresent)
		}
		if req.RunAt.Before(utils.UTCNow()) {
			return nil, nil, nil, NewBusinessError("VALIDATION_RUN_AT_PAST", "run_at must be in the future", ErrScheduleTimeInPast)
		}
	}

	var filter *models.DynamicFilter
	var recipients []models.Recipient
	if req.IsDynamic {
		if req.Filter == nil {
			return nil, nil, nil, NewBusinessError("VALIDATION_FILTER_REQUIRED", "Dynamic campaigns require a recipient filter", ErrNoRecipients)
		}
		filter = &models.DynamicFilter{
			Tags:                 req.Filter.Tags,
			Temperature:          req.Filter.Temperature,
			InteractedAfterDays:  req.Filter.InteractedAfterDays,
			InteractedBeforeDays: req.Filter.InteractedBeforeDays,
		}
	} else {
		if len(req.Recipients) == 0 {
			return nil, nil, nil, NewBusinessError("VALIDATION_NO_RECIPIENTS", "Campaign has no recipients", ErrNoRecipients)
		}
		recipients = make([]models.Recipient, 0, len(req.Recipients))
		for _, r := range req.Recipients {
			recipients = append(recipients, models.Recipient{
				ContactID: r.ContactID,
				Phone:     r.Phone,
				Name:      r.Name,
				Email:     r.Email,
			})
		}
	}

	sessions, err := f.sessionRepo.ListByNames(ctx, req.CompanyID, req.SelectedSessions)
	if err != nil {
		return nil, nil, nil, NewBusinessError("SESSION_LOOKUP_FAILED", "Failed to verify sending sessions", err)
	}
	if len(sessions) < len(req.SelectedSessions) {
		return nil, nil, nil, NewBusinessError("SESSION_NOT_FOUND", "One or more sending sessions do not exist", ErrSessionNotFound)
	}
	connected := false
	for _, s := range sessions {
		if s.Status == models.SessionStatusConnected {
			connected = true
			break
		}
	}
	if !connected {
		return nil, nil, nil, NewBusinessError("SESSION_NOT_CONNECTED", "No selected session is connected", ErrNoConnectedSession)
	}

	templates, err := f.templateRepo.ListByIDs(ctx, req.CompanyID, req.TemplateOrder)
	if err != nil {
		return nil, nil, nil, NewBusinessError("TEMPLATE_LOOKUP_FAILED", "Failed to verify message templates", err)
	}
	if len(templates) < len(req.TemplateOrder) {
		return nil, nil, nil, NewBusinessError("TEMPLATE_NOT_FOUND", "One or more message templates do not exist", ErrTemplateNotFound)
	}

	schedule := &models.Schedule{
		CompanyID:              req.CompanyID,
		UserID:                 req.UserID,
		Name:                   name,
		Type:                   scheduleType,
		IsDynamicCampaign:      req.IsDynamic,
		SelectedSessions:       req.SelectedSessions,
		TemplateOrder:          req.TemplateOrder,
		SessionSendingStrategy: rotationOrDefault(req.SessionSendingStrategy),
		MessageSequenceType:    rotationOrDefault(req.MessageSequenceType),
		Status:                 models.ScheduleStatusApproved,
		RunAt:                  req.RunAt,
	}
	if req.DeliverySettings != nil {
		schedule.DeliverySettings = models.DeliverySettings{
			RespectBusinessHours: req.DeliverySettings.RespectBusinessHours,
			BusinessHourStart:    req.DeliverySettings.BusinessHourStart,
			BusinessHourEnd:      req.DeliverySettings.BusinessHourEnd,
			SkipWeekends:         req.DeliverySettings.SkipWeekends,
			NonOperatingWeekdays: req.DeliverySettings.NonOperatingWeekdays,
			IntervalType:         models.IntervalType(req.DeliverySettings.IntervalType),
			IntervalFixedMs:      req.DeliverySettings.IntervalFixedMs,
			IntervalRandomMinMs:  req.DeliverySettings.IntervalRandomMinMs,
			IntervalRandomMaxMs:  req.DeliverySettings.IntervalRandomMaxMs,
			SpeedMode:            req.DeliverySettings.SpeedMode,
		}
	}
	return schedule, recipients, filter, nil
}

func rotationOrDefault(s *string) models.RotationStrategy {
	strategy := models.RotationStrategy(utils.Deref(s, ""))
	if !strategy.Valid() {
		return models.RotationSequential
	}
	return strategy
}

// ApproveCampaign moves a draft or pending-approval campaign forward. The
// transition guard rejects anything else.
func (f *CampaignFlowImpl) ApproveCampaign(ctx context.Context, req *dto.ApproveCampaignRequest, metadata *ClientMetadata) (*dto.ApproveCampaignResponse, error) {
	schedule, err := f.loadOwnedCampaign(ctx, req.CompanyID, req.UUID)
	if err != nil {
		return nil, err
	}
	if !schedule.CanTransitionTo(models.ScheduleStatusApproved) {
		return nil, NewBusinessError("CAMPAIGN_INVALID_TRANSITION", fmt.Sprintf("Campaign cannot move from %s to approved", schedule.Status), ErrInvalidStatusTransition)
	}

	if err := f.scheduleRepo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusApproved); err != nil {
		return nil, NewBusinessError("CAMPAIGN_UPDATE_FAILED", "Failed to approve campaign", err)
	}

	f.notifier.Publish(ctx, req.CompanyID, services.EventCampaignApproved, map[string]any{
		"campaign_uuid": schedule.UUID.String(),
	})
	return &dto.ApproveCampaignResponse{
		UUID:   schedule.UUID.String(),
		Status: models.ScheduleStatusApproved.String(),
	}, nil
}

// GetCampaign returns the campaign with its batch summaries.
func (f *CampaignFlowImpl) GetCampaign(ctx context.Context, req *dto.GetCampaignRequest, metadata *ClientMetadata) (*dto.GetCampaignResponse, error) {
	schedule, err := f.loadOwnedCampaign(ctx, req.CompanyID, req.UUID)
	if err != nil {
		return nil, err
	}

	batches, err := f.batchRepo.ListBySchedule(ctx, schedule.ID)
	if err != nil {
		return nil, NewBusinessError("BATCH_LOOKUP_FAILED", "Failed to load campaign batches", err)
	}

	resp := campaignToDTO(schedule)
	for _, batch := range batches {
		resp.Batches = append(resp.Batches, dto.BatchSummaryDTO{
			ID:              batch.ID,
			BatchNumber:     batch.BatchNumber,
			RunAt:           batch.RunAt,
			Status:          batch.Status.String(),
			IsDynamic:       batch.IsDynamic,
			RecipientCount:  batch.RecipientCount,
			CalculatedCount: batch.CalculatedCount,
		})
	}
	return resp, nil
}

// ListCampaigns returns the company's campaigns, newest first, paged.
func (f *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest, metadata *ClientMetadata) (*dto.ListCampaignsResponse, error) {
	page := req.PaginationRequest
	page.Normalize()

	filter := models.ScheduleFilter{CompanyID: &req.CompanyID}
	if req.Status != nil {
		status := models.ScheduleStatus(*req.Status)
		if !status.Valid() {
			return nil, NewBusinessError("VALIDATION_STATUS_INVALID", fmt.Sprintf("Unknown campaign status %q", *req.Status), nil)
		}
		filter.Status = &status
	}

	total, err := f.scheduleRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to count campaigns", err)
	}
	schedules, err := f.scheduleRepo.ByFilter(ctx, filter, "created_at DESC", page.PageSize, page.Offset())
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to list campaigns", err)
	}

	items := make([]dto.GetCampaignResponse, 0, len(schedules))
	for _, schedule := range schedules {
		items = append(items, *campaignToDTO(schedule))
	}
	return &dto.ListCampaignsResponse{
		Items:      items,
		Pagination: dto.NewPaginationResponse(page, total),
	}, nil
}

// CancelCampaign delegates the cascade to the cancellation coordinator.
func (f *CampaignFlowImpl) CancelCampaign(ctx context.Context, req *dto.CancelCampaignRequest, metadata *ClientMetadata) (*dto.CancelCampaignResponse, error) {
	result, err := f.canceller.Cancel(ctx, req.CompanyID, req.UUID)
	if err != nil {
		return nil, err
	}
	return &dto.CancelCampaignResponse{
		UUID:              req.UUID,
		MessagesCancelled: result.MessagesCancelled,
		MessagesDeleted:   result.MessagesDeleted,
		BatchesCancelled:  result.BatchesCancelled,
		RemoteFailures:    result.RemoteFailures,
	}, nil
}

// ActivateBatch is the scheduler-callback surface for deferred batches.
func (f *CampaignFlowImpl) ActivateBatch(ctx context.Context, req *dto.ActivateBatchRequest) (*dto.ActivateBatchResponse, error) {
	result, err := f.coordinator.ActivateBatch(ctx, req.CompanyID, req.BatchID)
	if err != nil {
		return nil, err
	}

	batch, err := f.batchRepo.ByID(ctx, req.BatchID)
	if err != nil || batch == nil {
		return nil, NewBusinessError("BATCH_LOOKUP_FAILED", "Failed to reload batch after activation", err)
	}

	f.notifier.Publish(ctx, req.CompanyID, services.EventBatchActivated, map[string]any{
		"batch_id":         batch.ID,
		"messages_created": result.Created,
	})
	return &dto.ActivateBatchResponse{
		BatchID:         batch.ID,
		Status:          batch.Status.String(),
		RecipientCount:  utils.Deref(batch.CalculatedCount, batch.RecipientCount),
		MessagesCreated: result.Created,
		MessagesFailed:  result.Failed,
		MessagesSkipped: result.Skipped,
	}, nil
}

// RecordDeliveryResult consumes the gateway's delivery webhook for one
// message and rolls the outcome up into batch and campaign status. A result
// for a cancelled message is acknowledged without resurrecting it, which
// makes the cancelled-campaign late-success race harmless.
func (f *CampaignFlowImpl) RecordDeliveryResult(ctx context.Context, req *dto.DeliveryResultRequest) (*dto.DeliveryResultResponse, error) {
	if req.SchedulerJobID == "" {
		return nil, NewBusinessError("VALIDATION_JOB_ID_REQUIRED", "scheduler_job_id is required", nil)
	}
	status := models.MessageStatus(req.Status)
	if status != models.MessageStatusSuccess && status != models.MessageStatusFailed {
		return nil, NewBusinessError("VALIDATION_STATUS_INVALID", fmt.Sprintf("Delivery status must be success or failed, got %q", req.Status), nil)
	}

	msg, err := f.messageRepo.ByCompanyAndJobID(ctx, req.CompanyID, req.SchedulerJobID)
	if err != nil {
		return nil, NewBusinessError("MESSAGE_LOOKUP_FAILED", "Failed to load message", err)
	}
	if msg == nil {
		return nil, NewBusinessError("MESSAGE_NOT_FOUND", fmt.Sprintf("No message for job %s", req.SchedulerJobID), nil)
	}

	if msg.Status == models.MessageStatusCancelled || msg.Status == status {
		return &dto.DeliveryResultResponse{MessageID: msg.ID, Status: msg.Status.String()}, nil
	}

	msg.Status = status
	msg.AttemptCount++
	if req.ErrorDetails != nil {
		msg.ErrorDetails = req.ErrorDetails
	}
	if err := f.messageRepo.Update(ctx, msg); err != nil {
		return nil, NewBusinessError("MESSAGE_UPDATE_FAILED", "Failed to record delivery result", err)
	}

	resp := &dto.DeliveryResultResponse{MessageID: msg.ID, Status: status.String()}
	if msg.ScheduleID == nil {
		return resp, nil
	}

	sentDelta, failedDelta := 0, 0
	if status == models.MessageStatusSuccess {
		sentDelta = 1
	} else {
		failedDelta = 1
	}
	if err := f.scheduleRepo.IncrementCounters(ctx, *msg.ScheduleID, sentDelta, failedDelta); err != nil {
		log.Printf("campaign: failed to update counters for schedule %d: %v", *msg.ScheduleID, err)
	}

	completed, err := f.settleProgress(ctx, msg)
	if err != nil {
		log.Printf("campaign: failed to settle progress for schedule %d: %v", *msg.ScheduleID, err)
		return resp, nil
	}
	resp.CampaignCompleted = completed
	return resp, nil
}

// settleProgress completes the message's batch when its last in-flight row
// settles, and completes the campaign when every batch is terminal.
func (f *CampaignFlowImpl) settleProgress(ctx context.Context, msg *models.Message) (bool, error) {
	inFlight := []models.MessageStatus{models.MessageStatusPending, models.MessageStatusRetry}

	if msg.BatchID != nil {
		remaining, err := f.messageRepo.ListByBatch(ctx, *msg.BatchID, inFlight)
		if err != nil {
			return false, err
		}
		if len(remaining) > 0 {
			return false, nil
		}
		if err := f.batchRepo.UpdateStatus(ctx, *msg.BatchID, models.BatchStatusCompleted); err != nil {
			return false, err
		}
	} else {
		remaining, err := f.messageRepo.ListBySchedule(ctx, *msg.ScheduleID, inFlight)
		if err != nil {
			return false, err
		}
		if len(remaining) > 0 {
			return false, nil
		}
	}

	schedule, err := f.scheduleRepo.ByID(ctx, *msg.ScheduleID)
	if err != nil || schedule == nil {
		return false, err
	}
	if schedule.Status.IsTerminal() {
		return false, nil
	}

	batches, err := f.batchRepo.ListBySchedule(ctx, schedule.ID)
	if err != nil {
		return false, err
	}
	for _, batch := range batches {
		if !batch.Status.IsTerminal() {
			return false, nil
		}
	}

	if err := f.scheduleRepo.UpdateStatus(ctx, schedule.ID, models.ScheduleStatusCompleted); err != nil {
		return false, err
	}
	f.notifier.Publish(ctx, schedule.CompanyID, services.EventCampaignCompleted, map[string]any{
		"campaign_uuid": schedule.UUID.String(),
		"sent_count":    schedule.SentCount,
		"failed_count":  schedule.FailedCount,
	})
	return true, nil
}

func (f *CampaignFlowImpl) loadOwnedCampaign(ctx context.Context, companyID uint, scheduleUUID string) (*models.Schedule, error) {
	schedule, err := f.scheduleRepo.ByUUID(ctx, scheduleUUID)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LOOKUP_FAILED", "Failed to load campaign", err)
	}
	if schedule == nil || schedule.CompanyID != companyID {
		return nil, NewBusinessError("CAMPAIGN_NOT_FOUND", "Campaign does not exist", ErrCampaignNotFound)
	}
	return schedule, nil
}

func campaignToDTO(schedule *models.Schedule) *dto.GetCampaignResponse {
	return &dto.GetCampaignResponse{
		UUID:             schedule.UUID.String(),
		Name:             schedule.Name,
		Type:             schedule.Type.String(),
		Status:           schedule.Status.String(),
		IsDynamic:        schedule.IsDynamicCampaign,
		SelectedSessions: schedule.SelectedSessions,
		SentCount:        schedule.SentCount,
		FailedCount:      schedule.FailedCount,
		RunAt:            schedule.RunAt,
		StartedAt:        schedule.StartedAt,
		CompletedAt:      schedule.CompletedAt,
		CancelledAt:      schedule.CancelledAt,
		CreatedAt:        schedule.CreatedAt,
	}
}
