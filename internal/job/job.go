// SPDX-FileCopyrightText: Winni Neessen <wn@neessen.dev>
//
// SPDX-License-Identifier: MIT

package job

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// Job calls a task on a fixed interval until its context is done. Runs never overlap: a tick
// that fires while the previous run is still busy is dropped and counted as skipped.
type Job struct {
	interval time.Duration
	task     func(context.Context)

	busy    atomic.Bool
	runs    atomic.Uint64
	skipped atomic.Uint64
}

// New returns a Job that calls task every interval. A nil task or a non-positive interval
// yields a Job that never runs.
func New(interval time.Duration, task func(context.Context)) *Job {
	return &Job{interval: interval, task: task}
}

// Runs returns the number of task runs that were started.
func (j *Job) Runs() uint64 {
	return j.runs.Load()
}

// Skipped returns the number of ticks that were dropped because a run was still in progress.
func (j *Job) Skipped() uint64 {
	return j.skipped.Load()
}

// Start blocks until ctx is done and the last run has returned.
func (j *Job) Start(ctx context.Context) {
	if j.task == nil || j.interval <= 0 {
		return
	}

	var wg sync.WaitGroup
	defer wg.Wait()

	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if !j.busy.CompareAndSwap(false, true) {
				j.skipped.Add(1)
				continue
			}
			j.runs.Add(1)
			wg.Go(func() {
				defer j.busy.Store(false)
				j.task(ctx)
			})
		}
	}
}

// Go runs the Job in its own goroutine. The returned stop function cancels the Job and waits
// for it to return; calling it more than once is safe.
func (j *Job) Go(ctx context.Context) (stop func()) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Start(ctx)
	}()
	return func() {
		cancel()
		<-done
	}
}
