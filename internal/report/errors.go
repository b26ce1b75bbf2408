package report

import (
	"fmt"
)

// ReportError represents errors in the report pipeline
type ReportError struct {
	Type    ReportErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ReportError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ReportError) Unwrap() error {
	return e.Cause
}

// ReportErrorType represents different types of report pipeline errors
type ReportErrorType string

const (
	ReportErrorTypeEncode     ReportErrorType = "ENCODE_ERROR"
	ReportErrorTypeCompress   ReportErrorType = "COMPRESSION_ERROR"
	ReportErrorTypeEncrypt    ReportErrorType = "ENCRYPTION_ERROR"
	ReportErrorTypeStorage    ReportErrorType = "STORAGE_ERROR"
	ReportErrorTypeRetention  ReportErrorType = "RETENTION_ERROR"
	ReportErrorTypeValidation ReportErrorType = "VALIDATION_ERROR"
)

// NewReportError creates a new ReportError
func NewReportError(errorType ReportErrorType, message string, cause error) *ReportError {
	return &ReportError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *ReportError) WithContext(key string, value interface{}) *ReportError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewEncodeError(message string, cause error) *ReportError {
	return NewReportError(ReportErrorTypeEncode, message, cause)
}

func NewCompressionError(message string, cause error) *ReportError {
	return NewReportError(ReportErrorTypeCompress, message, cause)
}

func NewEncryptionError(message string, cause error) *ReportError {
	return NewReportError(ReportErrorTypeEncrypt, message, cause)
}

func NewStorageError(message string, cause error) *ReportError {
	return NewReportError(ReportErrorTypeStorage, message, cause)
}

func NewRetentionError(message string, cause error) *ReportError {
	return NewReportError(ReportErrorTypeRetention, message, cause)
}

func NewValidationError(message string, cause error) *ReportError {
	return NewReportError(ReportErrorTypeValidation, message, cause)
}
