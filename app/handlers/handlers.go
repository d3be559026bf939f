// Package handlers contains HTTP request handlers and presentation layer logic for the API endpoints
package handlers

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/zapsender/zapsender-backend/app/dto"
	businessflow "github.com/zapsender/zapsender-backend/business_flow"
)

func getValidationErrorMessage(err validator.FieldError) string {
	switch err.Tag() {
	case "required":
		return err.Field() + " is required"
	case "email":
		return "Invalid email format"
	case "min":
		return err.Field() + " must be at least " + err.Param() + " characters"
	case "max":
		return err.Field() + " must be at most " + err.Param() + " characters"
	case "oneof":
		return err.Field() + " must be one of: " + err.Param()
	case "gte":
		return fmt.Sprintf("%s must be greater than or equal to %s", err.Field(), err.Param())
	case "lte":
		return fmt.Sprintf("%s must be less than or equal to %s", err.Field(), err.Param())
	default:
		return err.Field() + " is invalid"
	}
}

// businessErrorStatus maps a BusinessError code to its HTTP status.
// Codes follow a prefix convention: VALIDATION_* are client mistakes,
// *_NOT_FOUND hide cross-tenant resources, UPSTREAM_* surface dependency
// failures, and everything else is internal.
func businessErrorStatus(code string) int {
	switch {
	case strings.HasPrefix(code, "VALIDATION_"):
		return fiber.StatusBadRequest
	case strings.HasSuffix(code, "_NOT_FOUND"):
		return fiber.StatusNotFound
	case strings.HasSuffix(code, "_ALREADY_HANDLED"),
		strings.HasSuffix(code, "_ALREADY_TERMINAL"),
		strings.HasSuffix(code, "_INVALID_TRANSITION"),
		strings.HasSuffix(code, "_CONFLICT"):
		return fiber.StatusConflict
	case strings.HasPrefix(code, "UPSTREAM_"):
		return fiber.StatusBadGateway
	case strings.HasPrefix(code, "SESSION_"),
		strings.HasPrefix(code, "TEMPLATE_") && !strings.HasSuffix(code, "_NOT_FOUND"):
		return fiber.StatusUnprocessableEntity
	default:
		return fiber.StatusInternalServerError
	}
}

// handleBusinessError writes the canonical error envelope for a flow error.
// The request ID is echoed so server-side failures can be correlated.
func handleBusinessError(c fiber.Ctx, err error, fallbackMessage string) error {
	var bizErr *businessflow.BusinessError
	if !businessflow.AsBusinessError(err, &bizErr) {
		return c.Status(fiber.StatusInternalServerError).JSON(dto.APIResponse{
			Success: false,
			Message: fallbackMessage,
			Error: dto.ErrorDetail{
				Code:    "INTERNAL_ERROR",
				Details: c.Get("X-Request-ID"),
			},
		})
	}

	status := businessErrorStatus(bizErr.Code)
	details := any(nil)
	if status == fiber.StatusInternalServerError {
		details = c.Get("X-Request-ID")
	}
	return c.Status(status).JSON(dto.APIResponse{
		Success: false,
		Message: bizErr.Message,
		Error: dto.ErrorDetail{
			Code:    bizErr.Code,
			Details: details,
		},
	})
}

func successResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

func errorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// companyFromContext returns the tenant set by the auth middleware.
func companyFromContext(c fiber.Ctx) (uint, bool) {
	companyID, ok := c.Locals("company_id").(uint)
	return companyID, ok
}

// userFromContext returns the authenticated user set by the auth middleware.
func userFromContext(c fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("user_id").(uint)
	return userID, ok
}
