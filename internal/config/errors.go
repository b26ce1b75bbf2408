package config

import (
	"fmt"
)

// ConfigError represents errors in engine settings or job definitions
type ConfigError struct {
	Type    ConfigErrorType        `json:"type"`
	Message string                 `json:"message"`
	Cause   error                  `json:"-"`
	Context map[string]interface{} `json:"context,omitempty"`
}

// Error implements the error interface
func (e *ConfigError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Type, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Type, e.Message)
}

// Unwrap returns the underlying cause error
func (e *ConfigError) Unwrap() error {
	return e.Cause
}

// ConfigErrorType represents different types of configuration errors
type ConfigErrorType string

const (
	ConfigErrorTypeParse      ConfigErrorType = "PARSE_ERROR"
	ConfigErrorTypeValidation ConfigErrorType = "VALIDATION_ERROR"
	ConfigErrorTypeNotFound   ConfigErrorType = "NOT_FOUND_ERROR"
	ConfigErrorTypeDuplicate  ConfigErrorType = "DUPLICATE_ERROR"
)

// NewConfigError creates a new ConfigError
func NewConfigError(errorType ConfigErrorType, message string, cause error) *ConfigError {
	return &ConfigError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
		Context: make(map[string]interface{}),
	}
}

// WithContext adds context information to the error
func (e *ConfigError) WithContext(key string, value interface{}) *ConfigError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// Common error constructors

func NewParseError(message string, cause error) *ConfigError {
	return NewConfigError(ConfigErrorTypeParse, message, cause)
}

func NewValidationError(message string, cause error) *ConfigError {
	return NewConfigError(ConfigErrorTypeValidation, message, cause)
}

func NewNotFoundError(message string, cause error) *ConfigError {
	return NewConfigError(ConfigErrorTypeNotFound, message, cause)
}

func NewDuplicateError(message string, cause error) *ConfigError {
	return NewConfigError(ConfigErrorTypeDuplicate, message, cause)
}
