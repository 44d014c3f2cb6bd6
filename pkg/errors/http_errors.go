package errors

import (
	"net/http"
)

// BadRequestWithDetails creates a 400 Bad Request error with details
func BadRequestWithDetails(code string, message string, details any) *AppError {
	return NewBadRequestError(code, message).WithDetails(details)
}

// NotFoundf builds the conventional "<entity> with ID <id> not found" error.
func NotFoundf(entity, id string) *AppError {
	return NewNotFoundError(CodeNotFound, entity+" with ID "+id+" not found")
}

// FromError converts a standard error to an AppError
// If the error already is (or wraps) an AppError, that error is returned.
// Anything else becomes an internal error with a generic message.
func FromError(err error) *AppError {
	if err == nil {
		return nil
	}

	if appErr, ok := As(err); ok {
		return appErr
	}

	return NewInternalServerError(CodeInternal, "An unexpected error occurred").WithCause(err)
}

// GetStatusCode extracts the HTTP status code from an AppError, returns 500 if not an AppError
func GetStatusCode(err error) int {
	if appErr, ok := As(err); ok {
		return appErr.StatusCode
	}
	return http.StatusInternalServerError
}

// GetErrorCode extracts the error code from an AppError, returns "INTERNAL_ERROR" if not an AppError
func GetErrorCode(err error) string {
	if appErr, ok := As(err); ok {
		return appErr.Code
	}
	return CodeInternal
}

// Response is the wire shape of every error body.
type Response struct {
	Error Body `json:"error"`
}

// Body is the inner error object.
type Body struct {
	Kind    Kind   `json:"kind"`
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// ToResponse renders an AppError for the wire.
func ToResponse(appErr *AppError) Response {
	return Response{Error: Body{
		Kind:    appErr.Kind,
		Code:    appErr.Code,
		Message: appErr.Message,
		Details: appErr.Details,
	}}
}
