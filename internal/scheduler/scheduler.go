// Package scheduler fires reconciler jobs on fixed intervals. A job whose
// previous invocation is still running is skipped rather than overlapped.
package scheduler

import (
	"context"
	"errors"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"filevault-backend/internal/reconcile"
	"filevault-backend/internal/shared/metrics"
	"filevault-backend/internal/shared/telemetry"
)

var (
	// ErrUnknownJob is returned by Trigger for names that were never registered.
	ErrUnknownJob = errors.New("unknown job")
	// ErrClosed is returned once Shutdown has been called.
	ErrClosed = errors.New("scheduler closed")
	// ErrShutdownTimeout is returned when jobs are still running after the drain window.
	ErrShutdownTimeout = errors.New("shutdown timeout reached with jobs in flight")
)

// Entry registers a job with its firing interval. A non-positive interval
// registers the job for manual triggers only.
type Entry struct {
	Job        reconcile.Job
	Interval   time.Duration
	RunOnStart bool
}

// JobStatus is a snapshot of one registered job.
type JobStatus struct {
	Name       string
	Interval   time.Duration
	Running    bool
	Runs       int
	Skipped    int
	LastReport *reconcile.Report
}

type entry struct {
	Entry
	running atomic.Bool

	mu      sync.Mutex
	runs    int
	skipped int
	last    *reconcile.Report
}

// Scheduler owns one ticker per job.
type Scheduler struct {
	entries         map[string]*entry
	shutdownTimeout time.Duration

	runCtx    context.Context
	cancelRun context.CancelFunc

	mu     sync.Mutex
	closed bool
	wg     sync.WaitGroup
	loops  sync.WaitGroup
}

// New builds a scheduler. Jobs are fired only after Start or via Trigger.
func New(shutdownTimeout time.Duration, entries ...Entry) *Scheduler {
	runCtx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		entries:         make(map[string]*entry, len(entries)),
		shutdownTimeout: shutdownTimeout,
		runCtx:          runCtx,
		cancelRun:       cancel,
	}
	for _, e := range entries {
		s.entries[e.Job.Name()] = &entry{Entry: e}
	}
	return s
}

// Start launches a ticker loop per job. Loops stop when ctx is done or on Shutdown.
func (s *Scheduler) Start(ctx context.Context) {
	for _, e := range s.entries {
		if e.Interval <= 0 {
			continue
		}
		s.loops.Add(1)
		go s.loop(ctx, e)
	}
	telemetry.Info("scheduler.started", map[string]any{"jobs": s.names()})
}

func (s *Scheduler) loop(ctx context.Context, e *entry) {
	defer s.loops.Done()
	if e.RunOnStart {
		s.fire(e)
	}
	ticker := time.NewTicker(e.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-s.runCtx.Done():
			return
		case <-ticker.C:
			s.fire(e)
		}
	}
}

// Trigger fires a job immediately. It returns false when the job was skipped
// because a previous invocation is still running.
func (s *Scheduler) Trigger(name string) (bool, error) {
	e, ok := s.entries[name]
	if !ok {
		return false, ErrUnknownJob
	}
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return false, ErrClosed
	}
	return s.fire(e), nil
}

func (s *Scheduler) fire(e *entry) bool {
	name := e.Job.Name()
	if !e.running.CompareAndSwap(false, true) {
		e.mu.Lock()
		e.skipped++
		e.mu.Unlock()
		metrics.IncSkipped(name)
		telemetry.Warn("scheduler.skipped", map[string]any{"job": name, "reason": "previous run still in progress"})
		return false
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		e.running.Store(false)
		return false
	}
	s.wg.Add(1)
	s.mu.Unlock()

	go func() {
		defer s.wg.Done()
		defer e.running.Store(false)
		defer func() {
			if r := recover(); r != nil {
				telemetry.Error("scheduler.job_panicked", map[string]any{"job": name, "panic": r})
			}
		}()
		rep := e.Job.Run(s.runCtx)
		e.mu.Lock()
		e.runs++
		e.last = &rep
		e.mu.Unlock()
	}()
	return true
}

// Status returns a snapshot of every job, sorted by name.
func (s *Scheduler) Status() []JobStatus {
	out := make([]JobStatus, 0, len(s.entries))
	for _, e := range s.entries {
		e.mu.Lock()
		st := JobStatus{
			Name:     e.Job.Name(),
			Interval: e.Interval,
			Running:  e.running.Load(),
			Runs:     e.runs,
			Skipped:  e.skipped,
		}
		if e.last != nil {
			last := *e.last
			st.LastReport = &last
		}
		e.mu.Unlock()
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// Shutdown stops firing, cancels the run context so jobs stop pulling new
// items, and waits up to the shutdown timeout for in-flight runs.
func (s *Scheduler) Shutdown() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	s.cancelRun()
	s.loops.Wait()

	telemetry.Info("scheduler.draining", map[string]any{"timeout": s.shutdownTimeout.String()})
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		telemetry.Info("scheduler.stopped", nil)
		return nil
	case <-time.After(s.shutdownTimeout):
		telemetry.Warn("scheduler.shutdown_timeout", map[string]any{"running": s.runningNames()})
		return ErrShutdownTimeout
	}
}

func (s *Scheduler) names() []string {
	names := make([]string, 0, len(s.entries))
	for name := range s.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (s *Scheduler) runningNames() []string {
	var names []string
	for name, e := range s.entries {
		if e.running.Load() {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}
