// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package parallel

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func files(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("file-%02d.pdf", i)
	}
	return out
}

func TestProcessFilesKeepsInputOrder(t *testing.T) {
	pp := NewParallelProcessor(3, nil)
	results, stats := ProcessFiles(context.Background(), pp, files(10), func(_ context.Context, job *Job) (string, error) {
		return strings.ToUpper(job.FilePath), nil
	}, nil)

	require.Len(t, results, 10)
	for i, r := range results {
		assert.Equal(t, i, r.Index)
		assert.Equal(t, fmt.Sprintf("FILE-%02d.PDF", i), r.Value)
		assert.NoError(t, r.Error)
	}
	assert.Equal(t, 10, stats.ProcessedFiles)
	assert.Equal(t, 0, stats.FailedFiles)
	assert.Equal(t, 3, stats.WorkerCount)
}

func TestProcessFilesIsolatesFailures(t *testing.T) {
	pp := NewParallelProcessor(2, nil)
	results, stats := ProcessFiles(context.Background(), pp, files(4), func(_ context.Context, job *Job) (int, error) {
		switch job.Index {
		case 1:
			return 0, errors.New("broken file")
		case 2:
			panic("unexpected state")
		}
		return job.Index, nil
	}, nil)

	assert.NoError(t, results[0].Error)
	assert.EqualError(t, results[1].Error, "broken file")
	require.Error(t, results[2].Error)
	assert.Contains(t, results[2].Error.Error(), "panic while processing file-02.pdf")
	assert.Equal(t, 3, results[3].Value)
	assert.Equal(t, 2, stats.ProcessedFiles)
	assert.Equal(t, 2, stats.FailedFiles)
}

func TestProcessFilesBoundsConcurrency(t *testing.T) {
	var running, peak int32
	pp := NewParallelProcessor(2, nil)
	_, _ = ProcessFiles(context.Background(), pp, files(12), func(_ context.Context, _ *Job) (struct{}, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			p := atomic.LoadInt32(&peak)
			if n <= p || atomic.CompareAndSwapInt32(&peak, p, n) {
				break
			}
		}
		atomic.AddInt32(&running, -1)
		return struct{}{}, nil
	}, nil)
	assert.LessOrEqual(t, peak, int32(2))
}

func TestProcessFilesCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var once sync.Once
	pp := NewParallelProcessor(1, nil)
	results, stats := ProcessFiles(ctx, pp, files(5), func(ctx context.Context, job *Job) (int, error) {
		if job.Index == 1 {
			once.Do(cancel)
			return 0, ctx.Err()
		}
		return job.Index, nil
	}, nil)

	require.Len(t, results, 5)
	assert.NoError(t, results[0].Error)
	for _, r := range results[1:] {
		require.NotNil(t, r)
		assert.ErrorIs(t, r.Error, context.Canceled)
	}
	assert.Equal(t, 1, stats.ProcessedFiles)
	assert.Equal(t, 4, stats.FailedFiles)
}

func TestProcessFilesProgress(t *testing.T) {
	var calls []int
	var mu sync.Mutex
	pp := NewParallelProcessor(0, nil)
	_, _ = ProcessFiles(context.Background(), pp, files(3), func(_ context.Context, _ *Job) (int, error) {
		return 0, nil
	}, func(completed, total int, _ string) {
		mu.Lock()
		defer mu.Unlock()
		assert.Equal(t, 3, total)
		calls = append(calls, completed)
	})
	assert.Equal(t, []int{1, 2, 3}, calls)
	assert.GreaterOrEqual(t, pp.Workers(), 1)
	assert.LessOrEqual(t, pp.Workers(), MaxDefaultWorkers)
}

func TestProcessFilesEmptyBatch(t *testing.T) {
	results, stats := ProcessFiles(context.Background(), NewParallelProcessor(2, nil), nil, func(_ context.Context, _ *Job) (int, error) {
		return 0, nil
	}, nil)
	assert.Empty(t, results)
	assert.Equal(t, 0, stats.TotalFiles)
}
