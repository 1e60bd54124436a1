// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package observability

import (
	"encoding/json"
	"io"
	"sync"
	"time"
)

// StandardObserver implements observability for all components. It is safe
// for concurrent use by the workers of a run.
type StandardObserver struct {
	level         ObservabilityLevel
	writer        io.Writer
	runID         string
	mu            sync.Mutex
	DebugObserver *DebugObserver // Reference to debug observer when in debug mode
}

type ObservabilityLevel int

const (
	ObservabilityOff     ObservabilityLevel = 0
	ObservabilityMetrics ObservabilityLevel = 1
	ObservabilityDebug   ObservabilityLevel = 2
)

// NewStandardObserver creates observability component
func NewStandardObserver(level ObservabilityLevel, writer io.Writer) *StandardObserver {
	if writer == nil {
		level = ObservabilityOff
	}
	return &StandardObserver{
		level:  level,
		writer: writer,
	}
}

// SetRunID tags every subsequent record with the run identifier
func (o *StandardObserver) SetRunID(runID string) {
	if o == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.runID = runID
}

// StartTiming returns a function to complete timing
func (o *StandardObserver) StartTiming(component, operation, filePath string) func(success bool, metadata map[string]interface{}) {
	start := time.Now()

	return func(success bool, metadata map[string]interface{}) {
		duration := time.Since(start)

		data := StandardObservabilityData{
			Component:  component,
			Operation:  operation,
			FilePath:   filePath,
			DurationMs: duration.Milliseconds(),
			Success:    success,
			Metadata:   metadata,
		}

		o.LogOperation(data)
	}
}

// Warn records a recoverable problem. Warnings are written at the metrics
// level and above; successful operations only in debug mode.
func (o *StandardObserver) Warn(component, operation, filePath string, err error, metadata map[string]interface{}) {
	data := StandardObservabilityData{
		Component: component,
		Operation: operation,
		FilePath:  filePath,
		Success:   false,
		Metadata:  metadata,
	}
	if err != nil {
		data.Error = err.Error()
	}
	o.LogOperation(data)
}

// LogOperation logs operation data
func (o *StandardObserver) LogOperation(data StandardObservabilityData) {
	if o == nil || o.level == ObservabilityOff {
		return
	}
	if data.Success && o.level != ObservabilityDebug {
		return
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	data.RequestID = o.runID
	if data.RequestID == "" {
		data.RequestID = "req-" + time.Now().Format("20060102-150405")
	}
	data.Timestamp = time.Now().UTC().Format(time.RFC3339)

	_ = json.NewEncoder(o.writer).Encode(data)
}

// StandardObservabilityData for all components
type StandardObservabilityData struct {
	Component  string                 `json:"component"`
	Operation  string                 `json:"operation"`
	RequestID  string                 `json:"request_id"`
	Timestamp  string                 `json:"timestamp"`
	FilePath   string                 `json:"file_path,omitempty"`
	Page       int                    `json:"page,omitempty"`
	DurationMs int64                  `json:"duration_ms,omitempty"`
	Success    bool                   `json:"success"`
	Error      string                 `json:"error,omitempty"`
	MatchCount int                    `json:"match_count,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}
