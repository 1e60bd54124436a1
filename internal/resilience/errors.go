// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package resilience

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"syscall"
)

// ErrorType represents different types of errors for handling strategies
type ErrorType int

const (
	ErrorTypeUnknown          ErrorType = iota
	ErrorTypeTransient                  // Resource pressure, killed helper processes
	ErrorTypePermanent                  // Failures that repeat on every attempt
	ErrorTypeTimeout                    // Deadline reached
	ErrorTypeCanceled                   // Caller gave up
	ErrorTypeInvalidInput               // Bad input data
	ErrorTypeResourceNotFound           // Missing binaries, files or language data
)

// String returns the string representation of the error type
func (et ErrorType) String() string {
	switch et {
	case ErrorTypeUnknown:
		return "Unknown"
	case ErrorTypeTransient:
		return "Transient"
	case ErrorTypePermanent:
		return "Permanent"
	case ErrorTypeTimeout:
		return "Timeout"
	case ErrorTypeCanceled:
		return "Canceled"
	case ErrorTypeInvalidInput:
		return "InvalidInput"
	case ErrorTypeResourceNotFound:
		return "ResourceNotFound"
	default:
		return fmt.Sprintf("ErrorType(%d)", int(et))
	}
}

// ClassifiedError wraps an error with type information
type ClassifiedError struct {
	Original  error
	Type      ErrorType
	Message   string
	Retryable bool
}

func (e *ClassifiedError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return e.Original.Error()
}

func (e *ClassifiedError) Unwrap() error {
	return e.Original
}

// IsRetryable returns whether this error should be retried
func (e *ClassifiedError) IsRetryable() bool {
	return e.Retryable
}

// ClassifyError categorizes an error for appropriate handling
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var classified *ClassifiedError
	if errors.As(err, &classified) {
		return classified
	}

	classify := func(t ErrorType, retryable bool) *ClassifiedError {
		return &ClassifiedError{Original: err, Type: t, Message: fmt.Sprintf("%s error: %v", t, err), Retryable: retryable}
	}

	switch {
	case errors.Is(err, context.Canceled):
		return classify(ErrorTypeCanceled, false)
	case errors.Is(err, context.DeadlineExceeded):
		return classify(ErrorTypeTimeout, true)
	case errors.Is(err, exec.ErrNotFound), errors.Is(err, os.ErrNotExist):
		return classify(ErrorTypeResourceNotFound, false)
	case errors.Is(err, syscall.EAGAIN), errors.Is(err, syscall.EMFILE), errors.Is(err, syscall.ENOMEM):
		return classify(ErrorTypeTransient, true)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		// a helper killed by a signal (OOM killer, timeout) may succeed on retry;
		// a non-zero exit code means it rejected the input
		if status, ok := exitErr.Sys().(syscall.WaitStatus); ok && status.Signaled() {
			return classify(ErrorTypeTransient, true)
		}
		return classify(ErrorTypePermanent, false)
	}

	errStr := strings.ToLower(err.Error())
	switch {
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "deadline exceeded"):
		return classify(ErrorTypeTimeout, true)
	case strings.Contains(errStr, "resource temporarily unavailable") || strings.Contains(errStr, "too many open files"):
		return classify(ErrorTypeTransient, true)
	case strings.Contains(errStr, "not found") || strings.Contains(errStr, "does not exist"):
		return classify(ErrorTypeResourceNotFound, false)
	case strings.Contains(errStr, "invalid") || strings.Contains(errStr, "malformed"):
		return classify(ErrorTypeInvalidInput, false)
	}

	return classify(ErrorTypeUnknown, false)
}

// NewTransientError creates a new transient error
func NewTransientError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Original:  cause,
		Type:      ErrorTypeTransient,
		Message:   message,
		Retryable: true,
	}
}

// NewPermanentError creates a new permanent error
func NewPermanentError(message string, cause error) *ClassifiedError {
	return &ClassifiedError{
		Original:  cause,
		Type:      ErrorTypePermanent,
		Message:   message,
		Retryable: false,
	}
}
