package handler

import (
	"errors"

	"github.com/gofiber/fiber/v2"

	"loandocs/internal/cache"
	"loandocs/internal/database"
	"loandocs/internal/http/middleware"
	"loandocs/internal/repository"
	"loandocs/internal/service"
)

// errorPayload defines the standardized error response body.
type errorPayload struct {
	RequestID string        `json:"request_id"`
	Error     errorEnvelope `json:"error"`
}

type errorEnvelope struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// requestIDFromCtx extracts request_id previously stored by middleware.RequestID.
func requestIDFromCtx(c *fiber.Ctx) string {
	if v := c.Locals(middleware.RequestIDLocalKey); v != nil {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// writeError writes a standardized JSON error response without leaking internal errors.
func writeError(c *fiber.Ctx, status int, code, message string) error {
	res := errorPayload{
		RequestID: requestIDFromCtx(c),
		Error: errorEnvelope{
			Code:    code,
			Message: message,
		},
	}
	return c.Status(status).JSON(res)
}

// writeServiceError maps service and store errors onto the error envelope.
// Validation messages are passed through; everything else stays generic.
func writeServiceError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, service.ErrNotFound):
		return writeError(c, fiber.StatusNotFound, "NOT_FOUND", "document not found")
	case errors.Is(err, service.ErrValidation):
		return writeError(c, fiber.StatusBadRequest, "VALIDATION_ERROR", err.Error())
	case errors.Is(err, service.ErrIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_ID", "id is required")
	case errors.Is(err, service.ErrLoanIDRequired):
		return writeError(c, fiber.StatusBadRequest, "INVALID_LOAN_ID", "loan id is required")
	case errors.Is(err, repository.ErrConstraintViolation):
		return writeError(c, fiber.StatusConflict, "CONSTRAINT_VIOLATION", "document violates a store constraint")
	case errors.Is(err, database.ErrNotInitialized):
		return writeError(c, fiber.StatusServiceUnavailable, "SERVICE_UNAVAILABLE", "store not initialized")
	case errors.Is(err, cache.ErrQuotaExceeded):
		return writeError(c, fiber.StatusInsufficientStorage, "QUOTA_EXCEEDED", "storage quota exceeded")
	default:
		return writeError(c, fiber.StatusInternalServerError, "INTERNAL_ERROR", "internal server error")
	}
}

// AppConfig is the fiber configuration both binaries start from.
func AppConfig(bodyLimit int) fiber.Config {
	return fiber.Config{
		ErrorHandler: ErrorHandler(),
		BodyLimit:    bodyLimit,
	}
}

// ErrorHandler returns a Fiber global error handler that standardizes error responses.
func ErrorHandler() fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		status := fiber.StatusInternalServerError
		var e *fiber.Error
		if errors.As(err, &e) {
			status = e.Code
		}

		switch status {
		case fiber.StatusBadRequest:
			return writeError(c, status, "BAD_REQUEST", "bad request")
		case fiber.StatusNotFound:
			return writeError(c, status, "NOT_FOUND", "resource not found")
		case fiber.StatusMethodNotAllowed:
			return writeError(c, status, "METHOD_NOT_ALLOWED", "method not allowed")
		case fiber.StatusRequestEntityTooLarge:
			return writeError(c, status, "PAYLOAD_TOO_LARGE", "request body too large")
		default:
			return writeError(c, status, "INTERNAL_ERROR", "internal server error")
		}
	}
}
