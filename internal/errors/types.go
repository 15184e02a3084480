package errors

import (
	"context"
	"errors"
	"fmt"
	"strings"
)

// ErrorType represents different categories of errors.
type ErrorType string

const (
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeBackend    ErrorType = "backend"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeNetwork    ErrorType = "network"
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeInternal   ErrorType = "internal"
)

// BridgeError is a structured error type with context.
type BridgeError struct {
	Type        ErrorType
	Code        string
	Message     string
	Cause       error
	Context     map[string]interface{}
	Component   string
	FilePath    string
	Recoverable bool
}

// Error implements the error interface.
func (e *BridgeError) Error() string {
	var parts []string

	if e.Code != "" {
		parts = append(parts, fmt.Sprintf("[%s]", e.Code))
	}

	if e.Component != "" {
		parts = append(parts, "component:"+e.Component)
	}

	if e.FilePath != "" {
		parts = append(parts, e.FilePath)
	}

	parts = append(parts, e.Message)

	result := strings.Join(parts, " ")

	if e.Cause != nil {
		result += fmt.Sprintf(": %v", e.Cause)
	}

	return result
}

// Unwrap returns the underlying cause error.
func (e *BridgeError) Unwrap() error {
	return e.Cause
}

// Is implements error comparison.
func (e *BridgeError) Is(target error) bool {
	var t *BridgeError
	if errors.As(target, &t) {
		return e.Type == t.Type && e.Code == t.Code
	}

	return false
}

// WithContext adds context information to the error.
func (e *BridgeError) WithContext(key string, value interface{}) *BridgeError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value

	return e
}

// WithFile attaches the file the error refers to.
func (e *BridgeError) WithFile(filePath string) *BridgeError {
	e.FilePath = filePath

	return e
}

// WithComponent adds component context.
func (e *BridgeError) WithComponent(component string) *BridgeError {
	e.Component = component

	return e
}

// Error creation functions

// NewValidationError creates a validation error.
func NewValidationError(code, message string) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeValidation,
		Code:        code,
		Message:     message,
		Recoverable: true,
	}
}

// NewBackendError creates an error for a failed or malformed backend
// configuration exchange. These abort plugin setup.
func NewBackendError(code, message string, cause error) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeBackend,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewIOError creates an I/O error.
func NewIOError(code, message string, cause error) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeIO,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: true,
	}
}

// NewNetworkError creates a network error.
func NewNetworkError(code, message string, cause error) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeNetwork,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// NewConfigError creates a configuration error.
func NewConfigError(code, message string) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeConfig,
		Code:        code,
		Message:     message,
		Recoverable: false,
	}
}

// NewInternalError creates an internal error.
func NewInternalError(code, message string, cause error) *BridgeError {
	return &BridgeError{
		Type:        ErrorTypeInternal,
		Code:        code,
		Message:     message,
		Cause:       cause,
		Recoverable: false,
	}
}

// IsSetupFatal reports whether err must abort plugin initialization.
func IsSetupFatal(err error) bool {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Type == ErrorTypeBackend || be.Type == ErrorTypeConfig
	}

	return false
}

// IsBackendError checks if an error came from the backend configuration exchange.
func IsBackendError(err error) bool {
	var be *BridgeError
	if errors.As(err, &be) {
		return be.Type == ErrorTypeBackend
	}

	return false
}

// ErrorHandler provides centralized error handling.
type ErrorHandler struct {
	logger Logger
}

// Logger interface for error logging.
type Logger interface {
	Error(ctx context.Context, err error, msg string, fields ...interface{})
	Warn(ctx context.Context, err error, msg string, fields ...interface{})
}

// NewErrorHandler creates a new error handler.
func NewErrorHandler(logger Logger) *ErrorHandler {
	return &ErrorHandler{logger: logger}
}

// Handle logs err at a level matching its category. Recoverable errors are
// reported as warnings.
func (h *ErrorHandler) Handle(ctx context.Context, err error) {
	if err == nil || h.logger == nil {
		return
	}

	var be *BridgeError
	if !errors.As(err, &be) {
		h.logger.Error(ctx, err, "Unhandled error occurred")
		return
	}

	if be.Recoverable {
		h.logger.Warn(ctx, be, "Recoverable error occurred",
			"type", be.Type,
			"code", be.Code,
			"component", be.Component,
			"file", be.FilePath)
		return
	}

	h.logger.Error(ctx, be, "Error occurred",
		"type", be.Type,
		"code", be.Code,
		"component", be.Component)
}

// Common error codes.
const (
	ErrCodeBackendExec   = "ERR_BACKEND_EXEC"
	ErrCodeBackendJSON   = "ERR_BACKEND_JSON"
	ErrCodeBackendSchema = "ERR_BACKEND_SCHEMA"
	ErrCodeConfigInvalid = "ERR_CONFIG_INVALID"
	ErrCodeNoInput       = "ERR_NO_INPUT"
	ErrCodeMarkerWrite   = "ERR_MARKER_WRITE"
	ErrCodeMarkerRemove  = "ERR_MARKER_REMOVE"
	ErrCodeAliasWrite    = "ERR_ALIAS_WRITE"
	ErrCodeListen        = "ERR_LISTEN"
	ErrCodeTransform     = "ERR_TRANSFORM"
	ErrCodeInvalidPath   = "ERR_INVALID_PATH"
)

// FieldValidationError reports a single invalid field.
type FieldValidationError struct {
	FieldName    string
	FieldValue   interface{}
	ErrorMessage string
}

// Error implements the error interface.
func (fve *FieldValidationError) Error() string {
	return fmt.Sprintf("validation error in field '%s': %s", fve.FieldName, fve.ErrorMessage)
}

// NewFieldValidationError creates a new field validation error.
func NewFieldValidationError(field string, value interface{}, message string) *FieldValidationError {
	return &FieldValidationError{
		FieldName:    field,
		FieldValue:   value,
		ErrorMessage: message,
	}
}

// ValidationErrorCollection represents a collection of validation errors.
type ValidationErrorCollection struct {
	Errors []*FieldValidationError
}

// Error implements the error interface.
func (vec *ValidationErrorCollection) Error() string {
	switch len(vec.Errors) {
	case 0:
		return "no validation errors"
	case 1:
		return vec.Errors[0].Error()
	}

	msgs := make([]string, 0, len(vec.Errors))
	for _, e := range vec.Errors {
		msgs = append(msgs, e.Error())
	}

	return fmt.Sprintf("validation failed with %d errors: %s", len(vec.Errors), strings.Join(msgs, "; "))
}

// AddField adds a field validation error to the collection.
func (vec *ValidationErrorCollection) AddField(field string, value interface{}, message string) {
	vec.Errors = append(vec.Errors, NewFieldValidationError(field, value, message))
}

// HasErrors returns true if there are any validation errors.
func (vec *ValidationErrorCollection) HasErrors() bool {
	return len(vec.Errors) > 0
}

// Err returns the collection as an error, or nil when it is empty.
func (vec *ValidationErrorCollection) Err() error {
	if !vec.HasErrors() {
		return nil
	}

	return vec
}
