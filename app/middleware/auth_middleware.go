// Package middleware contains HTTP middleware functions for request processing
package middleware

import (
	"crypto/subtle"
	"errors"
	"strconv"
	"strings"

	"github.com/gofiber/fiber/v3"

	"github.com/zapsender/zapsender-backend/app/dto"
	"github.com/zapsender/zapsender-backend/app/services"
)

// AuthMiddleware handles JWT token validation for protected endpoints
type AuthMiddleware struct {
	tokenService services.TokenService
}

// NewAuthMiddleware creates a new authentication middleware
func NewAuthMiddleware(tokenService services.TokenService) *AuthMiddleware {
	return &AuthMiddleware{
		tokenService: tokenService,
	}
}

// Authenticate is the middleware function that validates JWT tokens
func (m *AuthMiddleware) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, errResp := bearerToken(c)
		if errResp != nil {
			return errResp
		}

		claims, err := m.tokenService.ValidateToken(token)
		if err != nil {
			var errorCode string
			var message string

			if errors.Is(err, services.ErrTokenExpired) {
				errorCode = "TOKEN_EXPIRED"
				message = "Access token has expired"
			} else if errors.Is(err, services.ErrTokenInvalid) {
				errorCode = "TOKEN_INVALID"
				message = "Invalid access token"
			} else {
				errorCode = "TOKEN_VALIDATION_FAILED"
				message = "Token validation failed"
			}

			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: message,
				Error: dto.ErrorDetail{
					Code: errorCode,
				},
			})
		}

		if claims.TokenType != "access" {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Refresh tokens cannot access the API",
				Error:   dto.ErrorDetail{Code: "TOKEN_INVALID"},
			})
		}

		// Store tenant information in context for downstream handlers
		c.Locals("company_id", claims.CompanyID)
		c.Locals("user_id", claims.UserID)
		c.Locals("token_id", claims.TokenID)

		// Store RequestID for audit logging
		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// CallbackAuth validates the static bearer token used by the scheduler and
// gateway callbacks. The company the callback acts on rides in the
// X-Company-ID header because callbacks carry no user session.
type CallbackAuth struct {
	bearerToken string
}

// NewCallbackAuth creates a callback authentication middleware
func NewCallbackAuth(bearerToken string) *CallbackAuth {
	return &CallbackAuth{bearerToken: bearerToken}
}

// Authenticate verifies the shared callback token and resolves the tenant
func (m *CallbackAuth) Authenticate() fiber.Handler {
	return func(c fiber.Ctx) error {
		token, errResp := bearerToken(c)
		if errResp != nil {
			return errResp
		}

		if m.bearerToken == "" || subtle.ConstantTimeCompare([]byte(token), []byte(m.bearerToken)) != 1 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "Invalid callback token",
				Error:   dto.ErrorDetail{Code: "TOKEN_INVALID"},
			})
		}

		companyID, err := strconv.ParseUint(c.Get("X-Company-ID"), 10, 32)
		if err != nil || companyID == 0 {
			return c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
				Success: false,
				Message: "X-Company-ID header is required",
				Error:   dto.ErrorDetail{Code: "MISSING_COMPANY_ID"},
			})
		}

		c.Locals("company_id", uint(companyID))

		if requestID := c.Get("X-Request-ID"); requestID != "" {
			c.Locals("request_id", requestID)
		}

		return c.Next()
	}
}

// bearerToken extracts the bearer token or writes the 401 response
func bearerToken(c fiber.Ctx) (string, error) {
	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return "", c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Authorization header is required",
			Error: dto.ErrorDetail{
				Code: "MISSING_AUTHORIZATION_HEADER",
			},
		})
	}

	if !strings.HasPrefix(authHeader, "Bearer ") {
		return "", c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Invalid authorization header format. Expected 'Bearer <token>'",
			Error: dto.ErrorDetail{
				Code: "INVALID_AUTHORIZATION_FORMAT",
			},
		})
	}

	token := strings.TrimPrefix(authHeader, "Bearer ")
	if token == "" {
		return "", c.Status(fiber.StatusUnauthorized).JSON(dto.APIResponse{
			Success: false,
			Message: "Access token is required",
			Error: dto.ErrorDetail{
				Code: "MISSING_ACCESS_TOKEN",
			},
		})
	}

	return token, nil
}

// GetCompanyIDFromContext extracts the company ID from the request context
func GetCompanyIDFromContext(c fiber.Ctx) (uint, bool) {
	companyID, ok := c.Locals("company_id").(uint)
	return companyID, ok
}

// GetUserIDFromContext extracts the user ID from the request context
func GetUserIDFromContext(c fiber.Ctx) (uint, bool) {
	userID, ok := c.Locals("user_id").(uint)
	return userID, ok
}
