package schedule

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"promypy/internal/core"
)

const (
	// DefaultTimeout is the per-job timeout used when none is configured.
	DefaultTimeout = 30 * time.Second

	// DefaultGrace bounds how long Wait joins abandoned invocations.
	DefaultGrace = time.Second
)

// Scheduler executes analyzer jobs concurrently.
//
// A Scheduler runs one batch at a time. Concurrency is bounded by Workers
// and independent of the number of files.
//
// Isolation:
//   - jobs share no mutable state; each invocation only sees its own file
//   - a panicking or failing invoker marks its job LOST, never the batch
//   - a job past its timeout is reported TIMED_OUT immediately; its
//     invocation is cancelled and left to unwind on its own (see Wait)
type Scheduler struct {
	Invoker core.Invoker

	// Workers bounds concurrent invocations. <= 0 means runtime.NumCPU().
	Workers int

	// Timeout bounds each invocation. <= 0 means DefaultTimeout.
	Timeout time.Duration

	// Grace bounds Wait. <= 0 means DefaultGrace.
	Grace time.Duration

	Logger *zap.Logger

	mu    sync.Mutex
	state ExecutionState

	// invocations tracks every invoker call, including abandoned ones.
	invocations sync.WaitGroup
	inflight    atomic.Int64
}

// New creates a Scheduler.
func New(invoker core.Invoker, workers int, timeout time.Duration, logger *zap.Logger) *Scheduler {
	return &Scheduler{Invoker: invoker, Workers: workers, Timeout: timeout, Logger: logger}
}

type invocation struct {
	outcome core.Outcome
	err     error
}

// RunAll submits one job per file and returns the completion stream.
//
// Completions arrive in completion order, not submission order. The channel
// is closed once every job has completed, or, if ctx is cancelled, once
// the jobs still running have been abandoned. Abandoned and never-started
// jobs yield nothing; callers detect them by comparing against the
// submitted set.
//
// Duplicate files are submitted once.
func (s *Scheduler) RunAll(ctx context.Context, files []core.FileID, extraArgs []string) <-chan Completion {
	if ctx == nil {
		ctx = context.Background()
	}
	files = dedupe(files)
	s.reset(files)

	out := make(chan Completion, len(files))
	if s.Invoker == nil {
		go func() {
			defer close(out)
			for _, f := range files {
				s.transitionLogged(f, JobPending, JobRunning)
				s.transitionLogged(f, JobRunning, JobLost)
				out <- Completion{Outcome: core.Outcome{File: f}, Err: core.LostJob(f, "no invoker configured")}
			}
		}()
		return out
	}

	workers := s.workers()
	sem := semaphore.NewWeighted(int64(workers))
	log := s.logger()
	log.Debug("submitting jobs",
		zap.Int("jobs", len(files)),
		zap.Int("workers", workers),
		zap.Duration("timeout", s.timeout()))

	go func() {
		defer close(out)
		var running sync.WaitGroup
		defer running.Wait()

		for i, file := range files {
			if ctx.Err() != nil {
				s.abandonPending(files[i:])
				return
			}
			if err := sem.Acquire(ctx, 1); err != nil {
				s.abandonPending(files[i:])
				return
			}
			s.transitionLogged(file, JobPending, JobRunning)

			running.Add(1)
			go func(file core.FileID) {
				defer running.Done()
				defer sem.Release(1)
				if c, ok := s.runJob(ctx, file, extraArgs); ok {
					out <- c
				}
			}(file)
		}
	}()

	return out
}

// runJob runs one invocation under the job timeout.
//
// The invocation runs on its own goroutine so a hung invoker cannot hold
// the worker slot past the deadline. ok is false when the run was cancelled
// and the job must not be reported.
func (s *Scheduler) runJob(ctx context.Context, file core.FileID, extraArgs []string) (Completion, bool) {
	timeout := s.timeout()
	jobCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	results := make(chan invocation, 1)
	s.invocations.Add(1)
	s.inflight.Add(1)
	go func() {
		defer s.invocations.Done()
		defer s.inflight.Add(-1)
		results <- s.invoke(jobCtx, file, extraArgs)
	}()

	var r invocation
	select {
	case r = <-results:
	case <-jobCtx.Done():
		if ctx.Err() != nil {
			s.transitionLogged(file, JobRunning, JobAbandoned)
			return Completion{}, false
		}
		s.logger().Warn("job timed out; abandoning", zap.String("file", string(file)), zap.Duration("timeout", timeout))
		s.transitionLogged(file, JobRunning, JobTimedOut)
		return Completion{Outcome: timeoutOutcome(file, timeout)}, true
	}

	switch {
	case ctx.Err() != nil:
		s.transitionLogged(file, JobRunning, JobAbandoned)
		return Completion{}, false
	case errors.Is(r.err, core.ErrJobTimeout) || (r.err != nil && errors.Is(jobCtx.Err(), context.DeadlineExceeded)):
		s.transitionLogged(file, JobRunning, JobTimedOut)
		return Completion{Outcome: timeoutOutcome(file, timeout)}, true
	case r.err != nil:
		err := r.err
		if !errors.Is(err, core.ErrJobLost) {
			err = core.LostJob(file, "%v", err)
		}
		s.logger().Warn("job produced no result", zap.String("file", string(file)), zap.Error(err))
		s.transitionLogged(file, JobRunning, JobLost)
		return Completion{Outcome: core.Outcome{File: file}, Err: err}, true
	}

	o := r.outcome
	o.File = file
	if o.Status == core.StatusTimeout {
		s.transitionLogged(file, JobRunning, JobTimedOut)
	} else {
		s.transitionLogged(file, JobRunning, JobDone)
	}
	s.logger().Debug("job finished",
		zap.String("file", string(file)),
		zap.Stringer("status", o.Status),
		zap.Int("code", o.StatusCode),
		zap.Duration("took", o.Duration))
	return Completion{Outcome: o}, true
}

// invoke calls the invoker, converting a panic into a lost job.
func (s *Scheduler) invoke(ctx context.Context, file core.FileID, extraArgs []string) (r invocation) {
	defer func() {
		if p := recover(); p != nil {
			r = invocation{err: core.LostJob(file, "invoker panic: %v", p)}
		}
	}()
	args := append([]string(nil), extraArgs...)
	o, err := s.Invoker.Invoke(ctx, file, args)
	return invocation{outcome: o, err: err}
}

// Wait blocks until every invocation started by RunAll has returned,
// including those abandoned after a timeout or cancellation, or until the
// grace period has elapsed. It reports whether every invocation returned.
//
// Abandoned invocations have had their context cancelled. One that ignores
// the cancellation is left behind once the grace period is over.
func (s *Scheduler) Wait() bool {
	done := make(chan struct{})
	go func() {
		s.invocations.Wait()
		close(done)
	}()

	grace := s.grace()
	timer := time.NewTimer(grace)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		s.logger().Warn("invocations ignored cancellation; leaving them behind",
			zap.Int64("invocations", s.inflight.Load()),
			zap.Duration("grace", grace))
		return false
	}
}

// StateSnapshot returns a copy of the current job states.
func (s *Scheduler) StateSnapshot() ExecutionState {
	s.mu.Lock()
	defer s.mu.Unlock()

	cp := make(ExecutionState, len(s.state))
	for k, v := range s.state {
		cp[k] = v
	}
	return cp
}

func (s *Scheduler) reset(files []core.FileID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state = make(ExecutionState, len(files))
	for _, f := range files {
		s.state[f] = JobPending
	}
}

func (s *Scheduler) abandonPending(files []core.FileID) {
	if len(files) > 0 {
		s.logger().Debug("run cancelled; abandoning pending jobs", zap.Int("jobs", len(files)))
	}
	for _, f := range files {
		s.transitionLogged(f, JobPending, JobAbandoned)
	}
}

func (s *Scheduler) transitionLogged(file core.FileID, from, to JobState) {
	s.mu.Lock()
	err := Transition(s.state, file, from, to)
	s.mu.Unlock()
	if err != nil {
		s.logger().Error("job state", zap.Error(err))
	}
}

func (s *Scheduler) workers() int {
	if s.Workers > 0 {
		return s.Workers
	}
	return runtime.NumCPU()
}

func (s *Scheduler) timeout() time.Duration {
	if s.Timeout > 0 {
		return s.Timeout
	}
	return DefaultTimeout
}

func (s *Scheduler) grace() time.Duration {
	if s.Grace > 0 {
		return s.Grace
	}
	return DefaultGrace
}

func (s *Scheduler) logger() *zap.Logger {
	if s.Logger == nil {
		return zap.NewNop()
	}
	return s.Logger
}

func timeoutOutcome(file core.FileID, timeout time.Duration) core.Outcome {
	return core.Outcome{
		File:       file,
		Status:     core.StatusTimeout,
		RawOutput:  fmt.Sprintf("analysis did not finish within %s", timeout),
		StatusCode: -1,
		Duration:   timeout,
	}
}

func dedupe(files []core.FileID) []core.FileID {
	seen := make(map[core.FileID]struct{}, len(files))
	out := make([]core.FileID, 0, len(files))
	for _, f := range files {
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
