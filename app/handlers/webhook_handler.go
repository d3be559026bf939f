package handlers

import (
	"context"
	"log"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/zapsender/zapsender-backend/app/dto"
	businessflow "github.com/zapsender/zapsender-backend/business_flow"
)

// WebhookHandlerInterface defines the contract for gateway webhook handlers
type WebhookHandlerInterface interface {
	InboundMessage(c fiber.Ctx) error
	DeliveryResult(c fiber.Ctx) error
}

// WebhookHandler consumes gateway callbacks for inbound messages and
// delivery results
type WebhookHandler struct {
	materializer businessflow.MessageMaterializer
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(materializer businessflow.MessageMaterializer, campaignFlow businessflow.CampaignFlow) *WebhookHandler {
	return &WebhookHandler{
		materializer: materializer,
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

// InboundMessage records a message observed at the gateway
// @Summary Inbound Message Webhook
// @Description Record a gateway message; duplicate scheduler_job_id deliveries are acknowledged, not errored
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.InboundMessageRequest true "Inbound message payload"
// @Success 200 {object} dto.APIResponse{data=dto.InboundMessageResponse} "Message recorded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Router /webhooks/inbound [post]
func (h *WebhookHandler) InboundMessage(c fiber.Ctx) error {
	var req dto.InboundMessageRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	companyID, ok := companyFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Company ID not found in context", "MISSING_COMPANY_ID", nil)
	}
	req.CompanyID = companyID

	result, err := h.materializer.IngestInbound(h.requestContext(c), &req)
	if err != nil {
		log.Println("Inbound message ingestion failed", err)
		return handleBusinessError(c, err, "Inbound message ingestion failed")
	}

	return successResponse(c, fiber.StatusOK, "Message recorded", result)
}

// DeliveryResult settles one message after the gateway reports its outcome
// @Summary Delivery Result Webhook
// @Description Record the final outcome of a scheduled send and settle batch and campaign progress
// @Tags Webhooks
// @Accept json
// @Produce json
// @Param request body dto.DeliveryResultRequest true "Delivery result payload"
// @Success 200 {object} dto.APIResponse{data=dto.DeliveryResultResponse} "Result recorded"
// @Failure 400 {object} dto.APIResponse "Validation error"
// @Failure 404 {object} dto.APIResponse "Unknown scheduler job"
// @Router /webhooks/delivery [post]
func (h *WebhookHandler) DeliveryResult(c fiber.Ctx) error {
	var req dto.DeliveryResultRequest
	if err := c.Bind().JSON(&req); err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		var validationErrors []string
		for _, err := range err.(validator.ValidationErrors) {
			validationErrors = append(validationErrors, getValidationErrorMessage(err))
		}
		return errorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrors)
	}

	companyID, ok := companyFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Company ID not found in context", "MISSING_COMPANY_ID", nil)
	}
	req.CompanyID = companyID

	result, err := h.campaignFlow.RecordDeliveryResult(h.requestContext(c), &req)
	if err != nil {
		log.Println("Delivery result processing failed", err)
		return handleBusinessError(c, err, "Delivery result processing failed")
	}

	return successResponse(c, fiber.StatusOK, "Delivery result recorded", result)
}

func (h *WebhookHandler) requestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, businessflow.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, businessflow.CancelFuncKey, cancel)
	return ctx
}
