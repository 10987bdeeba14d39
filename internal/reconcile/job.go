// Package reconcile holds the periodic jobs that pull the record store and
// the object store back into agreement.
package reconcile

import (
	"context"
	"time"

	"github.com/google/uuid"

	"filevault-backend/internal/shared/metrics"
	"filevault-backend/internal/shared/telemetry"
)

// Job is one reconciler the scheduler can fire.
type Job interface {
	Name() string
	Run(ctx context.Context) Report
}

// Run statuses.
const (
	StatusOK      = "ok"
	StatusPartial = "partial"
	StatusError   = "error"
)

// Report summarizes one invocation of a job.
type Report struct {
	Job          string
	RunID        string
	StartedAt    time.Time
	FinishedAt   time.Time
	Scanned      int
	Refreshed    int
	Kept         int
	Deleted      int64
	Skipped      int
	Inconsistent int
	Failed       int
	DryRun       bool
	Err          error
}

// Status classifies the run. Item failures make a run partial; a run-level
// error such as an unreachable store makes it an error.
func (r Report) Status() string {
	switch {
	case r.Err != nil:
		return StatusError
	case r.Failed > 0:
		return StatusPartial
	default:
		return StatusOK
	}
}

// Duration is the wall time of the run.
func (r Report) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}

func (r Report) fields() map[string]any {
	f := map[string]any{
		"run_id":       r.RunID,
		"status":       r.Status(),
		"duration_ms":  r.Duration().Milliseconds(),
		"scanned":      r.Scanned,
		"refreshed":    r.Refreshed,
		"kept":         r.Kept,
		"deleted":      r.Deleted,
		"skipped":      r.Skipped,
		"inconsistent": r.Inconsistent,
		"failed":       r.Failed,
	}
	if r.DryRun {
		f["dry_run"] = true
	}
	if r.Err != nil {
		f["error"] = r.Err
	}
	return f
}

func begin(job string, now time.Time) Report {
	r := Report{Job: job, RunID: uuid.NewString(), StartedAt: now}
	telemetry.Info(job+".start", map[string]any{"run_id": r.RunID})
	return r
}

// finish stamps the report, emits the completion event and records metrics.
// It is called on every path, including runs that failed before any item.
func finish(r Report, now time.Time) Report {
	r.FinishedAt = now
	if r.Err != nil {
		telemetry.Error(r.Job+".completed", r.fields())
	} else {
		telemetry.Info(r.Job+".completed", r.fields())
	}

	metrics.ObserveRun(r.Job, r.Status(), r.Duration(), r.FinishedAt)
	metrics.AddItems(r.Job, "refreshed", r.Refreshed)
	metrics.AddItems(r.Job, "kept", r.Kept)
	metrics.AddItems(r.Job, "deleted", int(r.Deleted))
	metrics.AddItems(r.Job, "skipped", r.Skipped)
	metrics.AddItems(r.Job, "inconsistent", r.Inconsistent)
	metrics.AddItems(r.Job, "failed", r.Failed)
	return r
}

func itemFailed(job string, fields map[string]any, err error) {
	fields["error"] = err
	telemetry.Warn(job+".item_failed", fields)
}

type clock func() time.Time

func (c clock) now() time.Time {
	if c == nil {
		return time.Now()
	}
	return c()
}
