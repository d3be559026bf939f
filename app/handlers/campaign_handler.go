package handlers

import (
	"context"
	"log"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/zapsender/zapsender-backend/app/dto"
	businessflow "github.com/zapsender/zapsender-backend/business_flow"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	ApproveCampaign(c fiber.Ctx) error
	GetCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	CancelCampaign(c fiber.Ctx) error
	ActivateBatch(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		validator:    validator.New(),
	}
}

// CreateCampaign handles the campaign creation process
// @Summary Create Campaign
// @Description Create a new campaign; near-term batches are materialized immediately
// @Tags Campaigns
// @Accept json
// @Produce json
// @Param request body dto.CreateCampaignRequest true "Campaign creation data"
// @Success 201 {object} dto.APIResponse{data=dto.CreateCampaignResponse} "Campaign created successfully"
// @Failure 400 {object} dto.APIResponse "Validation error or invalid request"
// @Failure 401 {object} dto.APIResponse "Unauthorized"
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
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
	userID, ok := userFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "User ID not found in context", "MISSING_USER_ID", nil)
	}
	req.CompanyID = companyID
	req.UserID = userID

	metadata := h.clientMetadata(c)
	result, err := h.campaignFlow.CreateCampaign(h.requestContext(c), &req, metadata)
	if err != nil {
		log.Println("Campaign creation failed", err)
		return handleBusinessError(c, err, "Campaign creation failed")
	}

	return successResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// ApproveCampaign moves a draft campaign into the approved state
// @Summary Approve Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.ApproveCampaignResponse} "Campaign approved"
// @Router /api/v1/campaigns/{uuid}/approve [post]
func (h *CampaignHandler) ApproveCampaign(c fiber.Ctx) error {
	companyID, ok := companyFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Company ID not found in context", "MISSING_COMPANY_ID", nil)
	}

	req := dto.ApproveCampaignRequest{
		UUID:      c.Params("uuid"),
		CompanyID: companyID,
	}
	result, err := h.campaignFlow.ApproveCampaign(h.requestContext(c), &req, h.clientMetadata(c))
	if err != nil {
		log.Println("Campaign approval failed", err)
		return handleBusinessError(c, err, "Campaign approval failed")
	}

	return successResponse(c, fiber.StatusOK, "Campaign approved successfully", result)
}

// GetCampaign returns one campaign with its batch summaries
// @Summary Get Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.GetCampaignResponse} "Campaign detail"
// @Router /api/v1/campaigns/{uuid} [get]
func (h *CampaignHandler) GetCampaign(c fiber.Ctx) error {
	companyID, ok := companyFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Company ID not found in context", "MISSING_COMPANY_ID", nil)
	}

	req := dto.GetCampaignRequest{
		UUID:      c.Params("uuid"),
		CompanyID: companyID,
	}
	result, err := h.campaignFlow.GetCampaign(h.requestContext(c), &req, h.clientMetadata(c))
	if err != nil {
		return handleBusinessError(c, err, "Campaign lookup failed")
	}

	return successResponse(c, fiber.StatusOK, "Campaign retrieved successfully", result)
}

// ListCampaigns returns the company's campaigns, paged
// @Summary List Campaigns
// @Tags Campaigns
// @Produce json
// @Param page query int false "Page number"
// @Param page_size query int false "Page size"
// @Param status query string false "Filter by status"
// @Success 200 {object} dto.APIResponse{data=dto.ListCampaignsResponse} "Campaign list"
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	companyID, ok := companyFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Company ID not found in context", "MISSING_COMPANY_ID", nil)
	}

	req := dto.ListCampaignsRequest{CompanyID: companyID}
	req.Page, _ = strconv.Atoi(c.Query("page", "1"))
	req.PageSize, _ = strconv.Atoi(c.Query("page_size", "20"))
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	result, err := h.campaignFlow.ListCampaigns(h.requestContext(c), &req, h.clientMetadata(c))
	if err != nil {
		return handleBusinessError(c, err, "Campaign listing failed")
	}

	return successResponse(c, fiber.StatusOK, "Campaigns retrieved successfully", result)
}

// CancelCampaign cancels a campaign and cascades through its batches and messages
// @Summary Cancel Campaign
// @Tags Campaigns
// @Produce json
// @Param uuid path string true "Campaign UUID"
// @Success 200 {object} dto.APIResponse{data=dto.CancelCampaignResponse} "Aggregate cancellation counts"
// @Router /api/v1/campaigns/{uuid}/cancel [post]
func (h *CampaignHandler) CancelCampaign(c fiber.Ctx) error {
	companyID, ok := companyFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Company ID not found in context", "MISSING_COMPANY_ID", nil)
	}

	req := dto.CancelCampaignRequest{
		UUID:      c.Params("uuid"),
		CompanyID: companyID,
	}
	result, err := h.campaignFlow.CancelCampaign(h.requestContext(c), &req, h.clientMetadata(c))
	if err != nil {
		log.Println("Campaign cancellation failed", err)
		return handleBusinessError(c, err, "Campaign cancellation failed")
	}

	return successResponse(c, fiber.StatusOK, "Campaign cancelled successfully", result)
}

// ActivateBatch is the scheduler callback that materializes a deferred batch
// @Summary Activate Batch
// @Tags Campaigns
// @Produce json
// @Param id path int true "Batch ID"
// @Success 200 {object} dto.APIResponse{data=dto.ActivateBatchResponse} "Materialization outcome"
// @Router /api/v1/batches/{id}/activate [post]
func (h *CampaignHandler) ActivateBatch(c fiber.Ctx) error {
	companyID, ok := companyFromContext(c)
	if !ok {
		return errorResponse(c, fiber.StatusUnauthorized, "Company ID not found in context", "MISSING_COMPANY_ID", nil)
	}

	batchID, err := strconv.ParseUint(c.Params("id"), 10, 32)
	if err != nil {
		return errorResponse(c, fiber.StatusBadRequest, "Invalid batch ID", "INVALID_BATCH_ID", nil)
	}

	req := dto.ActivateBatchRequest{
		BatchID:   uint(batchID),
		CompanyID: companyID,
	}
	result, err := h.campaignFlow.ActivateBatch(h.requestContext(c), &req)
	if err != nil {
		log.Println("Batch activation failed", err)
		return handleBusinessError(c, err, "Batch activation failed")
	}

	return successResponse(c, fiber.StatusOK, "Batch activated successfully", result)
}

func (h *CampaignHandler) clientMetadata(c fiber.Ctx) *businessflow.ClientMetadata {
	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	metadata.SetRequestID(c.Get("X-Request-ID"))
	return metadata
}

// requestContext bounds flow execution independently of the connection
func (h *CampaignHandler) requestContext(c fiber.Ctx) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	ctx = context.WithValue(ctx, businessflow.RequestIDKey, c.Get("X-Request-ID"))
	ctx = context.WithValue(ctx, businessflow.CancelFuncKey, cancel)
	return ctx
}
