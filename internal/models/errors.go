package models

import (
	"errors"
	"fmt"

	"github.com/gofiber/fiber/v2"
)

// ErrorResponse is the standardized error body returned by the local surface.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Field   string `json:"field,omitempty"`
	Details string `json:"details,omitempty"`
}

// AppError is the application error carried between the runtime's layers.
type AppError struct {
	Code    string
	Message string
	// Field names the offending form field for validation errors, so the UI
	// can render the message inline next to it.
	Field string
	Err   error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Predefined error constructors
func NewNotFoundError(resource string, id interface{}) *AppError {
	return &AppError{
		Code:    "NOT_FOUND",
		Message: fmt.Sprintf("%s with ID %v not found", resource, id),
	}
}

func NewValidationError(message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
	}
}

// NewFieldError builds a validation error attributed to a single form field.
func NewFieldError(field, message string) *AppError {
	return &AppError{
		Code:    "VALIDATION_ERROR",
		Message: message,
		Field:   field,
	}
}

func NewUnauthorizedError(message string) *AppError {
	return &AppError{
		Code:    "UNAUTHORIZED",
		Message: message,
	}
}

// NewRemoteRejectedError wraps a mutation the backend refused after the
// optimistic local edit was already applied; the reconciler rolls back and
// attaches this to the rolled_back push event.
func NewRemoteRejectedError(operation string, err error) *AppError {
	return &AppError{
		Code:    "REMOTE_REJECTED",
		Message: fmt.Sprintf("remote rejected %s", operation),
		Err:     err,
	}
}

func NewConflictError(message string) *AppError {
	return &AppError{
		Code:    "CONFLICT",
		Message: message,
	}
}

func NewInternalError(err error) *AppError {
	return &AppError{
		Code:    "INTERNAL_ERROR",
		Message: "Internal error",
		Err:     err,
	}
}

// RespondWithError writes a standardized error response, mapping AppError
// codes to HTTP statuses when the caller passes 0 for status.
func RespondWithError(c *fiber.Ctx, status int, err error) error {
	var response ErrorResponse

	var appErr *AppError
	if errors.As(err, &appErr) {
		response = ErrorResponse{
			Error: appErr.Message,
			Code:  appErr.Code,
			Field: appErr.Field,
		}
		if appErr.Err != nil {
			response.Details = appErr.Err.Error()
		}
		if status == 0 {
			status = statusForCode(appErr.Code)
		}
	} else {
		response = ErrorResponse{Error: err.Error()}
		if status == 0 {
			status = fiber.StatusInternalServerError
		}
	}

	return c.Status(status).JSON(response)
}

func statusForCode(code string) int {
	switch code {
	case "VALIDATION_ERROR":
		return fiber.StatusBadRequest
	case "UNAUTHORIZED":
		return fiber.StatusUnauthorized
	case "NOT_FOUND":
		return fiber.StatusNotFound
	case "CONFLICT":
		return fiber.StatusConflict
	case "REMOTE_REJECTED":
		return fiber.StatusBadGateway
	default:
		return fiber.StatusInternalServerError
	}
}
