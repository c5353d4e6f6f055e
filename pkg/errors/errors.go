// Package errors provides the structured error system for viewer settings persistence:
// coded errors with categories and context, plus the access-denied taxonomy surfaced
// when a settings resource cannot be opened for writing.
package errors

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents a structured error code for settings operations.
type ErrorCode string

const (
	// Configuration errors
	ErrCodeInvalidConfig    ErrorCode = "INVALID_CONFIG"
	ErrCodeConfigValidation ErrorCode = "CONFIG_VALIDATION"
	ErrCodeConfigLoad       ErrorCode = "CONFIG_LOAD"
	ErrCodeConfigSave       ErrorCode = "CONFIG_SAVE"

	// Connection errors
	ErrCodeConnectionFailed  ErrorCode = "CONNECTION_FAILED"
	ErrCodeConnectionTimeout ErrorCode = "CONNECTION_TIMEOUT"
	ErrCodeNetworkError      ErrorCode = "NETWORK_ERROR"

	// Storage errors
	ErrCodeObjectNotFound ErrorCode = "OBJECT_NOT_FOUND"
	ErrCodeBucketNotFound ErrorCode = "BUCKET_NOT_FOUND"
	ErrCodeStorageWrite   ErrorCode = "STORAGE_WRITE"
	ErrCodeStorageRead    ErrorCode = "STORAGE_READ"
	ErrCodeAccessDenied   ErrorCode = "ACCESS_DENIED"
	ErrCodeUnknownScheme  ErrorCode = "STORAGE_UNKNOWN_SCHEME"

	// Local filesystem errors
	ErrCodePermissionDenied ErrorCode = "PERMISSION_DENIED"
	ErrCodePathInvalid      ErrorCode = "PATH_INVALID"
	ErrCodeFileNotFound     ErrorCode = "FILE_NOT_FOUND"
	ErrCodeLockFailed       ErrorCode = "FILE_LOCK_FAILED"

	// Lifecycle errors
	ErrCodeAlreadyStarted   ErrorCode = "ALREADY_STARTED"
	ErrCodeNotInitialized   ErrorCode = "NOT_INITIALIZED"
	ErrCodeInvalidState     ErrorCode = "INVALID_STATE"
	ErrCodeComponentStopped ErrorCode = "COMPONENT_STOPPED"

	// Operation errors
	ErrCodeOperationTimeout  ErrorCode = "OPERATION_TIMEOUT"
	ErrCodeOperationCanceled ErrorCode = "OPERATION_CANCELED"
	ErrCodeOperationFailed   ErrorCode = "OPERATION_FAILED"
	ErrCodeRetryExhausted    ErrorCode = "RETRY_EXHAUSTED"
	ErrCodeSerialization     ErrorCode = "OPERATION_SERIALIZATION"

	// Authentication errors
	ErrCodeAuthenticationFailed ErrorCode = "AUTHENTICATION_FAILED"
	ErrCodeCredentialsMissing   ErrorCode = "CREDENTIALS_MISSING"

	// Internal errors
	ErrCodeInternalError ErrorCode = "INTERNAL_ERROR"
)

// ErrorCategory represents the general category of an error.
type ErrorCategory string

const (
	CategoryConfiguration ErrorCategory = "configuration"
	CategoryConnection    ErrorCategory = "connection"
	CategoryStorage       ErrorCategory = "storage"
	CategoryFilesystem    ErrorCategory = "filesystem"
	CategoryState         ErrorCategory = "state"
	CategoryOperation     ErrorCategory = "operation"
	CategoryAuth          ErrorCategory = "auth"
	CategoryInternal      ErrorCategory = "internal"
)

// SettingsError represents a structured error with context and metadata.
type SettingsError struct {
	Code     ErrorCode              `json:"code"`
	Category ErrorCategory          `json:"category"`
	Message  string                 `json:"message"`
	Details  map[string]interface{} `json:"details,omitempty"`

	Cause     error     `json:"-"`
	Timestamp time.Time `json:"timestamp"`

	Component string `json:"component"`
	Operation string `json:"operation,omitempty"`
	Resource  string `json:"resource,omitempty"`

	Retryable  bool `json:"retryable"`
	UserFacing bool `json:"user_facing"`
}

// Error implements the error interface.
func (e *SettingsError) Error() string {
	msg := e.Message
	if e.Cause != nil {
		msg = fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	if e.Component != "" {
		if e.Operation != "" {
			return fmt.Sprintf("[%s:%s] %s: %s", e.Component, e.Operation, e.Code, msg)
		}
		return fmt.Sprintf("[%s] %s: %s", e.Component, e.Code, msg)
	}
	return fmt.Sprintf("%s: %s", e.Code, msg)
}

// Unwrap returns the underlying cause error for error wrapping compatibility.
func (e *SettingsError) Unwrap() error {
	return e.Cause
}

// Is matches on error code so sentinels work with errors.Is.
func (e *SettingsError) Is(target error) bool {
	if other, ok := target.(*SettingsError); ok {
		return e.Code == other.Code
	}
	return false
}

// String returns a detailed string representation for logging.
func (e *SettingsError) String() string {
	var parts []string

	parts = append(parts, fmt.Sprintf("Code=%s", e.Code))
	parts = append(parts, fmt.Sprintf("Category=%s", e.Category))
	parts = append(parts, fmt.Sprintf("Message=%q", e.Message))

	if e.Component != "" {
		parts = append(parts, fmt.Sprintf("Component=%s", e.Component))
	}
	if e.Operation != "" {
		parts = append(parts, fmt.Sprintf("Operation=%s", e.Operation))
	}
	if e.Resource != "" {
		parts = append(parts, fmt.Sprintf("Resource=%s", e.Resource))
	}
	if e.Retryable {
		parts = append(parts, "Retryable=true")
	}
	if len(e.Details) > 0 {
		details, _ := json.Marshal(e.Details)
		parts = append(parts, fmt.Sprintf("Details=%s", details))
	}
	if e.Cause != nil {
		parts = append(parts, fmt.Sprintf("Cause=%q", e.Cause.Error()))
	}

	return fmt.Sprintf("SettingsError{%s}", strings.Join(parts, ", "))
}

// NewError creates a new settings error with default values.
func NewError(code ErrorCode, message string) *SettingsError {
	return &SettingsError{
		Code:       code,
		Category:   GetCategory(code),
		Message:    message,
		Timestamp:  time.Now(),
		Details:    make(map[string]interface{}),
		Retryable:  IsRetryableByDefault(code),
		UserFacing: IsUserFacingByDefault(code),
	}
}

// Wrap creates a new error with the given cause attached.
func Wrap(cause error, code ErrorCode, message string) *SettingsError {
	return NewError(code, message).WithCause(cause)
}

// GetCategory determines the category based on the error code.
func GetCategory(code ErrorCode) ErrorCategory {
	codeStr := string(code)
	switch {
	case strings.HasPrefix(codeStr, "INVALID_CONFIG") || strings.HasPrefix(codeStr, "CONFIG_"):
		return CategoryConfiguration
	case strings.HasPrefix(codeStr, "CONNECTION_") || strings.HasPrefix(codeStr, "NETWORK_"):
		return CategoryConnection
	case strings.HasPrefix(codeStr, "OBJECT_") || strings.HasPrefix(codeStr, "BUCKET_") ||
		strings.HasPrefix(codeStr, "STORAGE_") || strings.HasPrefix(codeStr, "ACCESS_"):
		return CategoryStorage
	case strings.HasPrefix(codeStr, "PERMISSION_") || strings.HasPrefix(codeStr, "PATH_") ||
		strings.HasPrefix(codeStr, "FILE_"):
		return CategoryFilesystem
	case strings.HasPrefix(codeStr, "ALREADY_") || strings.HasPrefix(codeStr, "NOT_INITIALIZED") ||
		strings.HasPrefix(codeStr, "INVALID_STATE") || strings.HasPrefix(codeStr, "COMPONENT_"):
		return CategoryState
	case strings.HasPrefix(codeStr, "OPERATION_") || strings.HasPrefix(codeStr, "RETRY_"):
		return CategoryOperation
	case strings.HasPrefix(codeStr, "AUTHENTICATION_") || strings.HasPrefix(codeStr, "CREDENTIALS_"):
		return CategoryAuth
	default:
		return CategoryInternal
	}
}

// IsRetryableByDefault determines if an error is retryable by default.
func IsRetryableByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeConnectionTimeout, ErrCodeConnectionFailed, ErrCodeNetworkError,
		ErrCodeOperationTimeout, ErrCodeInternalError:
		return true
	}
	return false
}

// IsUserFacingByDefault determines if an error should be shown to users.
func IsUserFacingByDefault(code ErrorCode) bool {
	switch code {
	case ErrCodeInvalidConfig, ErrCodeConfigValidation, ErrCodePermissionDenied,
		ErrCodePathInvalid, ErrCodeFileNotFound, ErrCodeAccessDenied,
		ErrCodeUnknownScheme, ErrCodeOperationTimeout, ErrCodeCredentialsMissing:
		return true
	}
	return false
}

// WithDetail adds detailed information to an error
func (e *SettingsError) WithDetail(key string, value interface{}) *SettingsError {
	if e.Details == nil {
		e.Details = make(map[string]interface{})
	}
	e.Details[key] = value
	return e
}

// WithComponent sets the component for an error
func (e *SettingsError) WithComponent(component string) *SettingsError {
	e.Component = component
	return e
}

// WithOperation sets the operation for an error
func (e *SettingsError) WithOperation(operation string) *SettingsError {
	e.Operation = operation
	return e
}

// WithResource records the settings resource the error refers to.
func (e *SettingsError) WithResource(resource string) *SettingsError {
	e.Resource = resource
	return e
}

// WithCause sets the underlying cause
func (e *SettingsError) WithCause(cause error) *SettingsError {
	e.Cause = cause
	return e
}

// UserFacingMessage returns a simplified message suitable for end users
func (e *SettingsError) UserFacingMessage() string {
	if !e.UserFacing {
		return "An internal error occurred while handling viewer settings."
	}

	messages := map[ErrorCode]string{
		ErrCodeAccessDenied:       "Access denied - check permissions",
		ErrCodePermissionDenied:   "Permission denied",
		ErrCodeFileNotFound:       "Settings file not found",
		ErrCodePathInvalid:        "Invalid settings location",
		ErrCodeUnknownScheme:      "Unsupported storage location",
		ErrCodeInvalidConfig:      "Invalid configuration",
		ErrCodeOperationTimeout:   "Operation timed out",
		ErrCodeCredentialsMissing: "Cloud credentials not configured",
	}

	if msg, ok := messages[e.Code]; ok {
		return msg
	}
	return e.Message
}

// CodeOf returns the code of the first SettingsError in err's chain.
func CodeOf(err error) (ErrorCode, bool) {
	var se *SettingsError
	if errors.As(err, &se) {
		return se.Code, true
	}
	return "", false
}

// HasCode reports whether err carries the given code anywhere in its chain.
func HasCode(err error, code ErrorCode) bool {
	c, ok := CodeOf(err)
	return ok && c == code
}

// Sentinels for coordinator lifecycle misuse.
var (
	ErrAlreadyInitialized = NewError(ErrCodeAlreadyStarted, "settings coordinator already initialized")
	ErrClosed             = NewError(ErrCodeComponentStopped, "settings coordinator is closed")
	ErrNotActive          = NewError(ErrCodeInvalidState, "settings coordinator is not active")
	ErrReadOnly           = NewError(ErrCodePermissionDenied, "settings coordinator is read-only")
)
