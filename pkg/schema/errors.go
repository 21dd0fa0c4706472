package schema

import (
	"errors"
	"fmt"
)

// Error codes for structured error reporting.
const (
	ErrCodeEmptyInput   = "EMPTY_INPUT"
	ErrCodeNoNodesFound = "NO_NODES_FOUND"
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeInvalidInput = "INVALID_INPUT"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeStore        = "STORE_ERROR"
	ErrCodeRender       = "RENDER_ERROR"
	ErrCodeExpression   = "EXPRESSION_ERROR"
)

// FlowError is the structured error type for all flowcanvas operations.
type FlowError struct {
	Code      string         `json:"code"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	ElementID string         `json:"element_id,omitempty"`
	Cause     error          `json:"-"`
}

func (e *FlowError) Error() string {
	if e.ElementID != "" {
		return fmt.Sprintf("[%s] element %s: %s", e.Code, e.ElementID, e.Message)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *FlowError) Unwrap() error {
	return e.Cause
}

// NewError creates a new FlowError.
func NewError(code, message string) *FlowError {
	return &FlowError{Code: code, Message: message}
}

// NewErrorf creates a new FlowError with a formatted message.
func NewErrorf(code, format string, args ...any) *FlowError {
	return &FlowError{Code: code, Message: fmt.Sprintf(format, args...)}
}

// WithElement attaches an element ID to the error.
func (e *FlowError) WithElement(id string) *FlowError {
	e.ElementID = id
	return e
}

// WithCause attaches an underlying cause.
func (e *FlowError) WithCause(err error) *FlowError {
	e.Cause = err
	return e
}

// WithDetails attaches key-value details.
func (e *FlowError) WithDetails(details map[string]any) *FlowError {
	e.Details = details
	return e
}

// CodeOf returns the code of the first FlowError in err's chain, or "".
func CodeOf(err error) string {
	var fe *FlowError
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}
