package errors

import (
	stderrors "errors"
	"fmt"
	"net/http"
)

// Kind classifies an AppError independently of its HTTP rendering.
type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindDatabase   Kind = "database"
	KindInternal   Kind = "internal"
)

// Error codes shared across the API.
const (
	CodeValidation      = "VALIDATION_ERROR"
	CodeNotFound        = "NOT_FOUND"
	CodeDatabase        = "DATABASE_ERROR"
	CodeInternal        = "INTERNAL_ERROR"
	CodeInvalidURL      = "INVALID_URL"
	CodeScrapingFailed  = "SCRAPING_FAILED"
	CodeUnsupported     = "UNSUPPORTED_FORMAT"
	CodeInvalidSort     = "INVALID_SORT"
	CodeRateLimited     = "RATE_LIMIT_EXCEEDED"
	CodeFileNotFound    = "FILE_NOT_FOUND"
	CodeImageProcessing = "IMAGE_PROCESSING_FAILED"
)

// FieldError is one violated field of a validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// ValidationDetails is the details payload of a validation error.
type ValidationDetails struct {
	Fields []FieldError `json:"fields"`
}

// AppError represents an application error with a kind, HTTP status code and error code
type AppError struct {
	Kind       Kind   `json:"kind"`
	StatusCode int    `json:"-"`
	Code       string `json:"code"`
	Message    string `json:"message"`
	Details    any    `json:"details,omitempty"`
	cause      error
}

// Error implements the error interface
func (e *AppError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause, which is never rendered to clients.
func (e *AppError) Unwrap() error {
	return e.cause
}

// WithDetails adds details to the error
func (e *AppError) WithDetails(details any) *AppError {
	e.Details = details
	return e
}

// WithCause attaches the underlying error.
func (e *AppError) WithCause(err error) *AppError {
	e.cause = err
	return e
}

// Fields returns the field violations of a validation error.
func (e *AppError) Fields() []FieldError {
	if d, ok := e.Details.(ValidationDetails); ok {
		return d.Fields
	}
	return nil
}

// NewError creates a new application error
func NewError(kind Kind, statusCode int, code string, message string) *AppError {
	return &AppError{
		Kind:       kind,
		StatusCode: statusCode,
		Code:       code,
		Message:    message,
	}
}

// NewValidationError creates a 400 error listing every violated field.
func NewValidationError(message string, fields []FieldError) *AppError {
	return NewError(KindValidation, http.StatusBadRequest, CodeValidation, message).
		WithDetails(ValidationDetails{Fields: fields})
}

// NewBadRequestError creates a 400 Bad Request error
func NewBadRequestError(code string, message string) *AppError {
	return NewError(KindValidation, http.StatusBadRequest, code, message)
}

// NewNotFoundError creates a 404 Not Found error
func NewNotFoundError(code string, message string) *AppError {
	return NewError(KindNotFound, http.StatusNotFound, code, message)
}

// NewDatabaseError creates a 500 error for a storage failure. The cause is kept
// for server-side logging only.
func NewDatabaseError(message string, cause error) *AppError {
	return NewError(KindDatabase, http.StatusInternalServerError, CodeDatabase, message).WithCause(cause)
}

// NewInternalServerError creates a 500 Internal Server Error
func NewInternalServerError(code string, message string) *AppError {
	return NewError(KindInternal, http.StatusInternalServerError, code, message)
}

// NewTooManyRequestsError creates a 429 error.
func NewTooManyRequestsError(message string) *AppError {
	return NewError(KindValidation, http.StatusTooManyRequests, CodeRateLimited, message)
}

// As returns the AppError in err's chain, if any.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

// Is checks if err carries an AppError with the same code as target
func Is(err error, target *AppError) bool {
	appErr, ok := As(err)
	if !ok {
		return false
	}
	return appErr.Code == target.Code
}

// IsNotFound reports whether err is of kind not_found.
func IsNotFound(err error) bool {
	return KindOf(err) == KindNotFound
}

// KindOf returns the kind of err; errors outside the taxonomy are internal.
func KindOf(err error) Kind {
	if appErr, ok := As(err); ok {
		return appErr.Kind
	}
	return KindInternal
}
