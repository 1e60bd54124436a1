// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package parallel

import (
	"context"
	"fmt"
	"runtime"
	"time"

	"obscura/internal/observability"
)

// MaxDefaultWorkers caps the default worker count: OCR and rasterization
// are memory heavy.
const MaxDefaultWorkers = 4

// DefaultWorkers returns min(NumCPU, MaxDefaultWorkers).
func DefaultWorkers() int {
	return min(runtime.NumCPU(), MaxDefaultWorkers)
}

// ProcessingStats tracks parallel processing statistics
type ProcessingStats struct {
	TotalFiles     int           `json:"total_files"`
	ProcessedFiles int           `json:"processed_files"`
	FailedFiles    int           `json:"failed_files"`
	TotalDuration  time.Duration `json:"total_duration_ms"`
	WorkerCount    int           `json:"worker_count"`
	AvgFileTime    time.Duration `json:"avg_file_time_ms"`
}

// ProgressCallback is called when a file is completed
type ProgressCallback func(completed, total int, currentFile string)

// ParallelProcessor runs a batch of files through a worker pool
type ParallelProcessor struct {
	workers  int
	observer *observability.StandardObserver
}

// NewParallelProcessor creates a processor with the given worker count;
// zero or less selects DefaultWorkers.
func NewParallelProcessor(workers int, observer *observability.StandardObserver) *ParallelProcessor {
	if workers <= 0 {
		workers = DefaultWorkers()
	}
	return &ParallelProcessor{workers: workers, observer: observer}
}

// Workers returns the configured worker count
func (pp *ParallelProcessor) Workers() int {
	return pp.workers
}

// ProcessFiles runs process for every file and returns one result per file,
// in input order. Files not started before ctx is cancelled get ctx's error.
func ProcessFiles[T any](ctx context.Context, pp *ParallelProcessor, filePaths []string, process ProcessFunc[T], progressCallback ProgressCallback) ([]*Result[T], *ProcessingStats) {
	start := time.Now()
	finishTiming := pp.observer.StartTiming("parallel_processor", "process_files", "batch")

	workers := min(pp.workers, max(len(filePaths), 1))
	pool := NewWorkerPool(ctx, workers, process, pp.observer)
	pool.Start()

	// Submit jobs in a separate goroutine to prevent deadlock
	submitted := make(chan int, 1)
	go func() {
		defer pool.Close()
		n := 0
		for i, filePath := range filePaths {
			if !pool.Submit(&Job{Index: i, FilePath: filePath, JobID: fmt.Sprintf("job_%d", i)}) {
				break
			}
			n++
		}
		submitted <- n
	}()
	go pool.Stop()

	results := make([]*Result[T], len(filePaths))
	stats := &ProcessingStats{TotalFiles: len(filePaths), WorkerCount: workers}
	var totalDuration time.Duration
	completed := 0
	for result := range pool.Results() {
		results[result.Index] = result
		completed++
		if result.Error != nil {
			stats.FailedFiles++
			pp.observer.LogOperation(observability.StandardObservabilityData{
				Component: "parallel_processor",
				Operation: "file_processing",
				FilePath:  result.FilePath,
				Success:   false,
				Error:     result.Error.Error(),
			})
		} else {
			stats.ProcessedFiles++
		}
		totalDuration += result.Duration

		if progressCallback != nil {
			progressCallback(completed, len(filePaths), result.FilePath)
		}
	}

	n := <-submitted
	for i := n; i < len(filePaths); i++ {
		err := ctx.Err()
		if err == nil {
			err = context.Canceled
		}
		results[i] = &Result[T]{JobID: fmt.Sprintf("job_%d", i), Index: i, FilePath: filePaths[i], Error: err}
		stats.FailedFiles++
	}

	stats.TotalDuration = time.Since(start)
	stats.AvgFileTime = totalDuration / time.Duration(max(completed, 1))
	finishTiming(true, map[string]interface{}{
		"total_files":     stats.TotalFiles,
		"processed_files": stats.ProcessedFiles,
		"failed_files":    stats.FailedFiles,
		"worker_count":    workers,
		"duration_ms":     stats.TotalDuration.Milliseconds(),
	})
	return results, stats
}
