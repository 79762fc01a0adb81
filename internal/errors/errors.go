package errors

import (
	stderrors "errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

// Error codes
const (
	// Authentication errors
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"

	// Authorization errors
	ErrCodeForbidden     = "FORBIDDEN"
	ErrCodeNotAuthorized = "NOT_AUTHORIZED"

	// Validation errors
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeValidation   = "VALIDATION"

	// Resource errors
	ErrCodeNotFound      = "NOT_FOUND"
	ErrCodeAlreadyExists = "ALREADY_EXISTS"
	ErrCodeConflict      = "CONFLICT"

	// Task state errors
	ErrCodeTaskAlreadyCompleted   = "TASK_ALREADY_COMPLETED"
	ErrCodeTaskNotCompleted       = "TASK_NOT_COMPLETED"
	ErrCodeTaskCancelled          = "TASK_CANCELLED"
	ErrCodeTaskNotEditable        = "TASK_NOT_EDITABLE"
	ErrCodeApprovalNotRequired    = "APPROVAL_NOT_REQUIRED"
	ErrCodeTaskNotPendingApproval = "TASK_NOT_PENDING_APPROVAL"
	ErrCodeSubtaskNotFound        = "SUBTASK_NOT_FOUND"

	// Approval errors
	ErrCodeApprovalAlreadyExists = "APPROVAL_ALREADY_EXISTS"
	ErrCodeApprovalNotPending    = "APPROVAL_NOT_PENDING"

	// Sync and storage errors
	ErrCodeRepository         = "REPOSITORY_ERROR"
	ErrCodeSyncRetryExhausted = "SYNC_RETRY_EXHAUSTED"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeServiceUnavailable = "SERVICE_UNAVAILABLE"
)

// Kind classifies an AppError for propagation and presentation.
type Kind string

const (
	KindValidation         Kind = "validation"
	KindDomain             Kind = "domain"
	KindNotAuthorized      Kind = "not_authorized"
	KindNotFound           Kind = "not_found"
	KindRepository         Kind = "repository"
	KindSyncRetryExhausted Kind = "sync_retry_exhausted"
)

// AppError is the typed failure returned by entities, repositories and services.
type AppError struct {
	Kind    Kind
	Code    string
	Message string
	Err     error
}

func (e *AppError) Error() string {
	if e.Err != nil {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

// Is matches AppErrors by code so sentinel values work with errors.Is.
func (e *AppError) Is(target error) bool {
	var other *AppError
	if !stderrors.As(target, &other) {
		return false
	}
	return other.Code != "" && e.Code == other.Code
}

func Validation(message string) *AppError {
	return &AppError{Kind: KindValidation, Code: ErrCodeValidation, Message: message}
}

func Domain(code, message string) *AppError {
	return &AppError{Kind: KindDomain, Code: code, Message: message}
}

func NotAuthorized(message string) *AppError {
	return &AppError{Kind: KindNotAuthorized, Code: ErrCodeNotAuthorized, Message: message}
}

func NotFound(message string) *AppError {
	return &AppError{Kind: KindNotFound, Code: ErrCodeNotFound, Message: message}
}

func Repository(message string, err error) *AppError {
	return &AppError{Kind: KindRepository, Code: ErrCodeRepository, Message: message, Err: err}
}

func SyncRetryExhausted(message string, err error) *AppError {
	return &AppError{Kind: KindSyncRetryExhausted, Code: ErrCodeSyncRetryExhausted, Message: message, Err: err}
}

// KindOf returns the kind of the first AppError in err's chain, or "" if there is none.
func KindOf(err error) Kind {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Kind
	}
	return ""
}

// CodeOf returns the code of the first AppError in err's chain, or ErrCodeInternalError.
func CodeOf(err error) string {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr.Code
	}
	return ErrCodeInternalError
}

// IsExpected reports whether err is a validation, domain or authorization failure,
// which callers return to the user without logging.
func IsExpected(err error) bool {
	switch KindOf(err) {
	case KindValidation, KindDomain, KindNotAuthorized, KindNotFound:
		return true
	default:
		return false
	}
}

// APIError represents a standardized API error response
type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// Error implements the error interface
func (e *APIError) Error() string {
	return e.Message
}

// NewAPIError creates a new APIError
func NewAPIError(code, message string) *APIError {
	return &APIError{
		Code:    code,
		Message: message,
	}
}

// RespondWithError sends an error response
func RespondWithError(c *gin.Context, statusCode int, err *APIError) {
	c.JSON(statusCode, err)
}

// StatusFor maps an error kind onto an HTTP status.
func StatusFor(kind Kind) int {
	switch kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindDomain, KindSyncRetryExhausted:
		return http.StatusConflict
	case KindNotAuthorized:
		return http.StatusForbidden
	case KindNotFound:
		return http.StatusNotFound
	case KindRepository:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

// RespondWithCode sends an error response for a code/message pair taken from a failed Result.
func RespondWithCode(c *gin.Context, kind Kind, code, message string) {
	RespondWithError(c, StatusFor(kind), NewAPIError(code, message))
}

// Unauthorized sends a 401 response
func Unauthorized(c *gin.Context, message string) {
	if message == "" {
		message = "Authentication required"
	}
	RespondWithError(c, http.StatusUnauthorized, NewAPIError(ErrCodeUnauthorized, message))
}

// Forbidden sends a 403 response
func Forbidden(c *gin.Context, message string) {
	if message == "" {
		message = "Access denied"
	}
	RespondWithError(c, http.StatusForbidden, NewAPIError(ErrCodeForbidden, message))
}

// NotFoundResponse sends a 404 response
func NotFoundResponse(c *gin.Context, message string) {
	if message == "" {
		message = "Resource not found"
	}
	RespondWithError(c, http.StatusNotFound, NewAPIError(ErrCodeNotFound, message))
}

// BadRequest sends a 400 response
func BadRequest(c *gin.Context, message string) {
	if message == "" {
		message = "Invalid request"
	}
	RespondWithError(c, http.StatusBadRequest, NewAPIError(ErrCodeInvalidInput, message))
}

// Conflict sends a 409 response
func Conflict(c *gin.Context, message string) {
	if message == "" {
		message = "Resource conflict"
	}
	RespondWithError(c, http.StatusConflict, NewAPIError(ErrCodeConflict, message))
}

// InternalError sends a 500 response
func InternalError(c *gin.Context, message string) {
	if message == "" {
		message = "Internal server error"
	}
	RespondWithError(c, http.StatusInternalServerError, NewAPIError(ErrCodeInternalError, message))
}

// ServiceUnavailable sends a 503 response
func ServiceUnavailable(c *gin.Context, message string) {
	if message == "" {
		message = "Service unavailable"
	}
	RespondWithError(c, http.StatusServiceUnavailable, NewAPIError(ErrCodeServiceUnavailable, message))
}
