package businessflow

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/zapsender/zapsender-backend/app/dto"
	"github.com/zapsender/zapsender-backend/app/services"
	"github.com/zapsender/zapsender-backend/config"
	"github.com/zapsender/zapsender-backend/models"
	"github.com/zapsender/zapsender-backend/repository"
	"github.com/zapsender/zapsender-backend/utils"
)

// MaterializeResult aggregates the outcome of a batch materialization.
// Errors is bounded; the counts are authoritative.
type MaterializeResult struct {
	Created int      `json:"created"`
	Failed  int      `json:"failed"`
	Skipped int      `json:"skipped"`
	Errors  []string `json:"errors,omitempty"`
}

// MessageMaterializer turns batch recipients into tracked Message rows with
// live scheduler jobs, and ingests inbound messages idempotently.
type MessageMaterializer interface {
	MaterializeBatch(ctx context.Context, schedule *models.Schedule, batch *models.BatchSchedule, recipients []models.Recipient, runAt time.Time) (*MaterializeResult, error)
	IngestInbound(ctx context.Context, req *dto.InboundMessageRequest) (*dto.InboundMessageResponse, error)
}

// MessageMaterializerImpl implements MessageMaterializer
type MessageMaterializerImpl struct {
	messageRepo  repository.MessageRepository
	sessionRepo  repository.WhatsAppSessionRepository
	templateRepo repository.MessageTemplateRepository
	resolver     ContactResolver
	scheduler    services.SchedulerClient
	notifier     services.NotificationService
	gateway      services.WhatsAppClient
	campaignCfg  *config.CampaignConfig
	gatewayCfg   *config.GatewayConfig
}

// NewMessageMaterializer creates a new message materializer
func NewMessageMaterializer(
	messageRepo repository.MessageRepository,
	sessionRepo repository.WhatsAppSessionRepository,
	templateRepo repository.MessageTemplateRepository,
	resolver ContactResolver,
	scheduler services.SchedulerClient,
	notifier services.NotificationService,
	gateway services.WhatsAppClient,
	campaignCfg *config.CampaignConfig,
	gatewayCfg *config.GatewayConfig,
) MessageMaterializer {
	return &MessageMaterializerImpl{
		messageRepo:  messageRepo,
		sessionRepo:  sessionRepo,
		templateRepo: templateRepo,
		resolver:     resolver,
		scheduler:    scheduler,
		notifier:     notifier,
		gateway:      gateway,
		campaignCfg:  campaignCfg,
		gatewayCfg:   gatewayCfg,
	}
}

// messageJobPayload is carried on the scheduler job so the dispatcher can
// send without consulting the database again
type messageJobPayload struct {
	CompanyID  uint   `json:"company_id"`
	ScheduleID uint   `json:"schedule_id"`
	BatchID    uint   `json:"batch_id"`
	MessageID  uint   `json:"message_id"`
	Session    string `json:"session"`
	ChatID     string `json:"chat_id"`
	Content    string `json:"content"`
	RunAt      string `json:"run_at"`
}

// MaterializeBatch creates one Message per recipient and submits its
// scheduler job. Per-recipient failures are isolated: they are counted and
// logged but never abort the remaining recipients.
func (m *MessageMaterializerImpl) MaterializeBatch(ctx context.Context, schedule *models.Schedule, batch *models.BatchSchedule, recipients []models.Recipient, runAt time.Time) (*MaterializeResult, error) {
	start := time.Now()
	defer func() {
		materializationDuration.Observe(time.Since(start).Seconds())
	}()

	sessions, err := m.sessionRepo.ListByNames(ctx, schedule.CompanyID, schedule.SelectedSessions)
	if err != nil {
		return nil, NewBusinessError("MATERIALIZE_SESSIONS_FAILED", "Failed to load sending sessions", err)
	}
	if len(sessions) == 0 {
		return nil, NewBusinessError("MATERIALIZE_NO_SESSIONS", "Campaign has no usable sending sessions", ErrNoSelection)
	}

	templates, err := m.templateRepo.ListByIDs(ctx, schedule.CompanyID, schedule.TemplateOrder)
	if err != nil {
		return nil, NewBusinessError("MATERIALIZE_TEMPLATES_FAILED", "Failed to load message templates", err)
	}
	if len(templates) == 0 {
		return nil, NewBusinessError("MATERIALIZE_NO_TEMPLATES", "Campaign has no message templates", ErrNoSelection)
	}

	// run_at honors the campaign's throttling window
	effectiveRunAt := NextEligibleTime(&schedule.DeliverySettings, runAt)

	result := &MaterializeResult{}
	var resultMu sync.Mutex

	recordError := func(idx int, err error) {
		resultMu.Lock()
		defer resultMu.Unlock()
		if len(result.Errors) < utils.MaxReportedItemErrors {
			result.Errors = append(result.Errors, fmt.Sprintf("recipient %d: %v", idx, err))
		}
	}

	chunkSize := m.campaignCfg.ChunkSize
	if chunkSize <= 0 {
		chunkSize = utils.MaterializationChunkSize
	}

	for offset := 0; offset < len(recipients); offset += chunkSize {
		end := offset + chunkSize
		if end > len(recipients) {
			end = len(recipients)
		}

		var wg sync.WaitGroup
		for i := offset; i < end; i++ {
			wg.Add(1)
			go func(idx int, recipient models.Recipient) {
				defer wg.Done()

				outcome, err := m.materializeOne(ctx, schedule, batch, recipient, sessions, templates, idx, effectiveRunAt)
				resultMu.Lock()
				switch outcome {
				case "created":
					result.Created++
				case "failed":
					result.Failed++
				default:
					result.Skipped++
				}
				resultMu.Unlock()
				messagesMaterialized.WithLabelValues(outcome).Inc()
				if err != nil {
					log.Printf("materializer: schedule %d batch %d recipient %d: %v", schedule.ID, batch.ID, idx, err)
					recordError(idx, err)
				}
			}(i, recipients[i])
		}
		wg.Wait()
	}

	return result, nil
}

// materializeOne handles a single recipient. The returned outcome is one of
// created, failed (row exists in failed status), skipped (no row).
func (m *MessageMaterializerImpl) materializeOne(ctx context.Context, schedule *models.Schedule, batch *models.BatchSchedule, recipient models.Recipient, sessions []*models.WhatsAppSession, templates []*models.MessageTemplate, idx int, runAt time.Time) (string, error) {
	phone := utils.NormalizePhone(utils.CleanPhone(recipient.Phone))
	if phone == "" {
		return "skipped", fmt.Errorf("malformed phone %q: %w", recipient.Phone, ErrPhoneInvalid)
	}
	if recipient.ContactID == 0 {
		return "skipped", fmt.Errorf("recipient %q has no contact id", recipient.Phone)
	}

	session, err := PickSession(sessions, schedule.SessionSendingStrategy, idx)
	if err != nil {
		return "skipped", fmt.Errorf("session selection: %w", err)
	}
	template, err := PickTemplate(templates, schedule.MessageSequenceType, idx)
	if err != nil {
		return "skipped", fmt.Errorf("template selection: %w", err)
	}

	content := RenderTemplate(template.Content, &recipient, session.SessionName, runAt)
	chatID := phone + "@c.us"

	msg := &models.Message{
		CompanyID:     schedule.CompanyID,
		ScheduleID:    &schedule.ID,
		BatchID:       &batch.ID,
		SessionName:   session.SessionName,
		ChatID:        chatID,
		Content:       content,
		Direction:     models.MessageDirectionSent,
		Status:        models.MessageStatusPending,
		Type:          models.MessageTypeScheduled,
		RunAt:         &runAt,
		NextAttemptAt: &runAt,
	}
	contactID := recipient.ContactID
	msg.ContactID = &contactID
	if err := msg.BeforeCreate(); err != nil {
		return "skipped", err
	}
	if err := m.messageRepo.Save(ctx, msg); err != nil {
		return "skipped", fmt.Errorf("message insert: %w", err)
	}

	payload, err := json.Marshal(messageJobPayload{
		CompanyID:  schedule.CompanyID,
		ScheduleID: schedule.ID,
		BatchID:    batch.ID,
		MessageID:  msg.ID,
		Session:    session.SessionName,
		ChatID:     chatID,
		Content:    content,
		RunAt:      runAt.UTC().Format(time.RFC3339),
	})
	if err != nil {
		return m.failMessage(ctx, msg, fmt.Errorf("payload marshal: %w", err))
	}

	jobID, err := m.scheduler.SubmitJob(ctx, &services.SchedulerJob{
		Name:        fmt.Sprintf("message-%d", msg.ID),
		RunAt:       runAt,
		CallbackURL: fmt.Sprintf("%s/sessions/%s/messages", m.gatewayCfg.BaseURL, session.SessionName),
		Method:      "POST",
		Headers:     map[string]string{"Authorization": "Bearer " + m.gatewayCfg.BearerToken},
		Body:        payload,
	})
	if err != nil {
		schedulerJobsSubmitted.WithLabelValues("message", "error").Inc()
		// The row must never stay pending without a live job
		return m.failMessage(ctx, msg, fmt.Errorf("scheduler submit: %w", err))
	}
	schedulerJobsSubmitted.WithLabelValues("message", "ok").Inc()

	msg.SchedulerJobID = &jobID
	if err := m.messageRepo.Update(ctx, msg); err != nil {
		return "created", fmt.Errorf("persist job ID for message %d: %w", msg.ID, err)
	}
	return "created", nil
}

// failMessage records a terminal failure on the message instead of leaving
// it silently pending
func (m *MessageMaterializerImpl) failMessage(ctx context.Context, msg *models.Message, cause error) (string, error) {
	details := cause.Error()
	msg.Status = models.MessageStatusFailed
	msg.ErrorDetails = &details
	if err := m.messageRepo.Update(ctx, msg); err != nil {
		return "failed", fmt.Errorf("mark message %d failed after %v: %w", msg.ID, cause, err)
	}
	return "failed", cause
}

// IngestInbound records a message delivered by the gateway webhook. Creation
// is idempotent on (company, scheduler_job_id): a duplicate delivery returns
// the first message's ID with is_duplicate set.
func (m *MessageMaterializerImpl) IngestInbound(ctx context.Context, req *dto.InboundMessageRequest) (*dto.InboundMessageResponse, error) {
	if req.SchedulerJobID == "" {
		return nil, NewBusinessError("VALIDATION_JOB_ID_REQUIRED", "scheduler_job_id is required", nil)
	}
	if req.ChatID == "" {
		return nil, NewBusinessError("VALIDATION_CHAT_ID_REQUIRED", "chat_id is required", nil)
	}

	if existing, err := m.messageRepo.ByCompanyAndJobID(ctx, req.CompanyID, req.SchedulerJobID); err != nil {
		return nil, NewBusinessError("INGEST_LOOKUP_FAILED", "Failed to check for duplicate delivery", err)
	} else if existing != nil {
		return &dto.InboundMessageResponse{
			MessageID:   existing.ID,
			ContactID:   utils.Deref(existing.ContactID, 0),
			IsDuplicate: true,
		}, nil
	}

	senderName := req.SenderName
	if senderName == "" && m.gateway != nil {
		// Unnamed sender; ask the gateway for the account profile before
		// creating a nameless contact. Lookup failures fall through.
		if profile, profErr := m.gateway.GetProfile(ctx, req.SessionName, utils.ChatIDToPhone(req.ChatID)); profErr == nil && profile != nil {
			senderName = profile.Name
		}
	}

	contact, created, err := m.resolver.ResolveOrCreate(ctx, req.CompanyID, utils.ChatIDToPhone(req.ChatID), senderName, req.ChatID)
	if err != nil {
		// Ingestion still records the message; the contact link is best effort
		log.Printf("ingest: contact resolution failed for %s: %v", req.ChatID, err)
		contact, created = nil, false
	}

	direction := models.MessageDirection(req.Direction)
	if !direction.Valid() {
		direction = models.MessageDirectionReceived
	}

	now := utils.UTCNow()
	jobID := req.SchedulerJobID
	msg := &models.Message{
		CompanyID:      req.CompanyID,
		SessionName:    req.SessionName,
		ChatID:         req.ChatID,
		Content:        req.Content,
		Direction:      direction,
		Status:         models.MessageStatusSuccess,
		Type:           models.MessageTypeChat,
		SchedulerJobID: &jobID,
		CreatedAt:      now,
	}
	if contact != nil {
		contactID := contact.ID
		msg.ContactID = &contactID
	}

	if err := m.messageRepo.Save(ctx, msg); err != nil {
		if repository.IsUniqueViolation(err) {
			// Concurrent duplicate delivery won the insert
			winner, lookupErr := m.messageRepo.ByCompanyAndJobID(ctx, req.CompanyID, req.SchedulerJobID)
			if lookupErr == nil && winner != nil {
				return &dto.InboundMessageResponse{
					MessageID:   winner.ID,
					ContactID:   utils.Deref(winner.ContactID, 0),
					IsDuplicate: true,
				}, nil
			}
		}
		return nil, NewBusinessError("INGEST_INSERT_FAILED", "Failed to record inbound message", err)
	}

	resp := &dto.InboundMessageResponse{
		MessageID:      msg.ID,
		ContactCreated: created,
	}
	if contact != nil {
		resp.ContactID = contact.ID
	}
	m.notifier.Publish(ctx, req.CompanyID, services.EventMessageReceived, resp)
	return resp, nil
}

// Template variables recognized by RenderTemplate. A recognized placeholder
// that cannot be substituted becomes a bracketed label, never verbatim text.
var templateVariables = []string{
	"first_name", "last_name", "full_name", "email", "phone",
	"date", "time", "day", "month", "year", "sender", "company",
}

// RenderTemplate substitutes the fixed variable set into a template body.
// Placeholders use {{name}} syntax.
func RenderTemplate(content string, recipient *models.Recipient, sessionName string, now time.Time) string {
	firstName, lastName := splitName(recipient.Name)

	values := map[string]string{
		"first_name": firstName,
		"last_name":  lastName,
		"full_name":  strings.TrimSpace(recipient.Name),
		"email":      recipient.Email,
		"phone":      recipient.Phone,
		"date":       now.Format("02/01/2006"),
		"time":       now.Format("15:04"),
		"day":        now.Format("02"),
		"month":      now.Format("01"),
		"year":       now.Format("2006"),
		"sender":     sessionName,
		"company":    "",
	}

	out := content
	for _, name := range templateVariables {
		placeholder := "{{" + name + "}}"
		if !strings.Contains(out, placeholder) {
			continue
		}
		value := values[name]
		if value == "" {
			value = "[" + name + "]"
		}
		out = strings.ReplaceAll(out, placeholder, value)
	}
	return out
}

func splitName(full string) (string, string) {
	parts := strings.Fields(full)
	switch len(parts) {
	case 0:
		return "", ""
	case 1:
		return parts[0], ""
	default:
		return parts[0], strings.Join(parts[1:], " ")
	}
}
