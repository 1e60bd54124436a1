// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package redactors

import (
	"fmt"
	"time"
)

// RedactionErrorType defines the type of redaction error
type RedactionErrorType int

const (
	// ErrorDocumentProcessing indicates the document could not be edited
	ErrorDocumentProcessing RedactionErrorType = iota

	// ErrorFileSystem indicates a file system operation failure
	ErrorFileSystem

	// ErrorConfiguration indicates a configuration error
	ErrorConfiguration

	// ErrorOCR indicates the OCR capability failed
	ErrorOCR

	// ErrorSanitization indicates metadata could not be removed
	ErrorSanitization

	// ErrorVerification indicates the output could not be re-scanned
	ErrorVerification
)

// String returns the string representation of the error type
func (ret RedactionErrorType) String() string {
	switch ret {
	case ErrorDocumentProcessing:
		return "document_processing"
	case ErrorFileSystem:
		return "file_system"
	case ErrorConfiguration:
		return "configuration"
	case ErrorOCR:
		return "ocr"
	case ErrorSanitization:
		return "sanitization"
	case ErrorVerification:
		return "verification"
	default:
		return "unknown"
	}
}

// RedactionError represents an error that occurred while processing a file
type RedactionError struct {
	// Type is the type of error
	Type RedactionErrorType

	// Message is the error message
	Message string

	// FilePath is the path to the file being processed when the error occurred
	FilePath string

	// Component is the component that generated the error
	Component string

	// Recoverable indicates whether the run can continue with other files
	Recoverable bool

	// Timestamp is when the error occurred
	Timestamp time.Time

	// Cause is the underlying error that caused this error
	Cause error
}

// Error implements the error interface
func (re *RedactionError) Error() string {
	if re.FilePath != "" {
		return fmt.Sprintf("[%s] %s (file: %s, component: %s): %s",
			re.Type.String(), re.Message, re.FilePath, re.Component, re.getCauseMessage())
	}
	return fmt.Sprintf("[%s] %s (component: %s): %s",
		re.Type.String(), re.Message, re.Component, re.getCauseMessage())
}

// getCauseMessage returns the cause error message if available
func (re *RedactionError) getCauseMessage() string {
	if re.Cause != nil {
		return re.Cause.Error()
	}
	return ""
}

// Unwrap returns the underlying error for error unwrapping
func (re *RedactionError) Unwrap() error {
	return re.Cause
}

// NewRedactionError creates a new RedactionError
func NewRedactionError(errorType RedactionErrorType, message, filePath, component string, cause error) *RedactionError {
	return &RedactionError{
		Type:        errorType,
		Message:     message,
		FilePath:    filePath,
		Component:   component,
		Recoverable: isRecoverable(errorType),
		Timestamp:   time.Now(),
		Cause:       cause,
	}
}

// isRecoverable determines if an error type lets a run go on with other files
func isRecoverable(errorType RedactionErrorType) bool {
	switch errorType {
	case ErrorConfiguration:
		return false
	default:
		return true
	}
}
