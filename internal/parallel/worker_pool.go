// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package parallel

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"obscura/internal/observability"
)

// ProcessFunc handles one job. It must honour ctx.
type ProcessFunc[T any] func(ctx context.Context, job *Job) (T, error)

// WorkerPool runs jobs on a fixed number of goroutines. A job that panics
// yields a Result with an error; the other jobs are not affected.
type WorkerPool[T any] struct {
	workers  int
	jobs     chan *Job
	results  chan *Result[T]
	wg       sync.WaitGroup
	ctx      context.Context
	cancel   context.CancelFunc
	process  ProcessFunc[T]
	observer *observability.StandardObserver
}

// Job represents a file processing task
type Job struct {
	// Index is the position of the file in the submitted batch
	Index    int
	FilePath string
	JobID    string
}

// Result represents processing results
type Result[T any] struct {
	JobID    string
	Index    int
	FilePath string
	Value    T
	Error    error
	Duration time.Duration
}

// NewWorkerPool creates a worker pool bound to ctx. Cancelling ctx stops
// workers from picking up new jobs; jobs already running see the
// cancellation through their own context.
func NewWorkerPool[T any](ctx context.Context, workers int, process ProcessFunc[T], observer *observability.StandardObserver) *WorkerPool[T] {
	if workers < 1 {
		workers = 1
	}
	ctx, cancel := context.WithCancel(ctx)
	return &WorkerPool[T]{
		workers:  workers,
		jobs:     make(chan *Job, workers*2),
		results:  make(chan *Result[T], workers*2),
		ctx:      ctx,
		cancel:   cancel,
		process:  process,
		observer: observer,
	}
}

// Workers returns the number of worker goroutines
func (wp *WorkerPool[T]) Workers() int {
	return wp.workers
}

// Start initializes worker goroutines
func (wp *WorkerPool[T]) Start() {
	for i := 0; i < wp.workers; i++ {
		wp.wg.Add(1)
		go wp.worker(i)
	}
}

// Close signals that no more jobs will be submitted
func (wp *WorkerPool[T]) Close() {
	close(wp.jobs)
}

// Stop waits for the workers to finish and releases the pool
func (wp *WorkerPool[T]) Stop() {
	wp.wg.Wait()
	close(wp.results)
	wp.cancel()
}

// Submit adds a job to the queue. It returns false when the pool was
// cancelled before the job could be queued.
func (wp *WorkerPool[T]) Submit(job *Job) bool {
	select {
	case wp.jobs <- job:
		return true
	case <-wp.ctx.Done():
		return false
	}
}

// Results returns the results channel
func (wp *WorkerPool[T]) Results() <-chan *Result[T] {
	return wp.results
}

// worker processes jobs from the queue
func (wp *WorkerPool[T]) worker(id int) {
	defer wp.wg.Done()

	for job := range wp.jobs {
		var result *Result[T]
		if err := wp.ctx.Err(); err != nil {
			result = &Result[T]{JobID: job.JobID, Index: job.Index, FilePath: job.FilePath, Error: err}
		} else {
			result = wp.processJob(job, id)
		}
		// results are always delivered so the collector can account for
		// every submitted job
		wp.results <- result
	}
}

// processJob executes a single job, converting a panic into an error
func (wp *WorkerPool[T]) processJob(job *Job, workerID int) (result *Result[T]) {
	start := time.Now()
	finishTiming := wp.observer.StartTiming("worker_pool", "process_job", job.FilePath)

	result = &Result[T]{JobID: job.JobID, Index: job.Index, FilePath: job.FilePath}
	defer func() {
		if r := recover(); r != nil {
			result.Error = fmt.Errorf("panic while processing %s: %v", job.FilePath, r)
			if wp.observer != nil && wp.observer.DebugObserver != nil {
				wp.observer.DebugObserver.LogDetail("worker_pool", string(debug.Stack()))
			}
		}
		result.Duration = time.Since(start)
		finishTiming(result.Error == nil, map[string]interface{}{
			"worker_id":   workerID,
			"duration_ms": result.Duration.Milliseconds(),
			"had_error":   result.Error != nil,
		})
	}()

	result.Value, result.Error = wp.process(wp.ctx, job)
	return result
}
