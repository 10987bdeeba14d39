package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"filevault-backend/internal/reconcile"
	"filevault-backend/internal/scheduler"
	"filevault-backend/internal/shared/server/middleware"
	"filevault-backend/internal/shared/server/respond"
)

type jobsHandler struct {
	runner JobRunner
}

type reportView struct {
	RunID        string    `json:"runId"`
	Status       string    `json:"status"`
	StartedAt    time.Time `json:"startedAt"`
	FinishedAt   time.Time `json:"finishedAt"`
	DurationMs   int64     `json:"durationMs"`
	Scanned      int       `json:"scanned"`
	Refreshed    int       `json:"refreshed"`
	Kept         int       `json:"kept"`
	Deleted      int64     `json:"deleted"`
	Skipped      int       `json:"skipped"`
	Inconsistent int       `json:"inconsistent"`
	Failed       int       `json:"failed"`
	DryRun       bool      `json:"dryRun,omitempty"`
	Error        string    `json:"error,omitempty"`
}

type jobView struct {
	Name       string      `json:"name"`
	Interval   string      `json:"interval"`
	Running    bool        `json:"running"`
	Runs       int         `json:"runs"`
	Skipped    int         `json:"skipped"`
	LastReport *reportView `json:"lastReport,omitempty"`
}

func toReportView(r reconcile.Report) *reportView {
	v := &reportView{
		RunID:        r.RunID,
		Status:       r.Status(),
		StartedAt:    r.StartedAt,
		FinishedAt:   r.FinishedAt,
		DurationMs:   r.Duration().Milliseconds(),
		Scanned:      r.Scanned,
		Refreshed:    r.Refreshed,
		Kept:         r.Kept,
		Deleted:      r.Deleted,
		Skipped:      r.Skipped,
		Inconsistent: r.Inconsistent,
		Failed:       r.Failed,
		DryRun:       r.DryRun,
	}
	if r.Err != nil {
		v.Error = r.Err.Error()
	}
	return v
}

func (h *jobsHandler) list(c *gin.Context) {
	statuses := h.runner.Status()
	out := make([]jobView, 0, len(statuses))
	for _, st := range statuses {
		v := jobView{
			Name:     st.Name,
			Interval: st.Interval.String(),
			Running:  st.Running,
			Runs:     st.Runs,
			Skipped:  st.Skipped,
		}
		if st.LastReport != nil {
			v.LastReport = toReportView(*st.LastReport)
		}
		out = append(out, v)
	}
	respond.OK(c, gin.H{"jobs": out})
}

func (h *jobsHandler) trigger(c *gin.Context) {
	name := c.Param("name")
	c.Set(middleware.JobKey, name)

	fired, err := h.runner.Trigger(name)
	switch {
	case errors.Is(err, scheduler.ErrUnknownJob):
		respond.Error(c, http.StatusNotFound, "not_found", "Unknown job", gin.H{"job": name})
		return
	case errors.Is(err, scheduler.ErrClosed):
		respond.Error(c, http.StatusServiceUnavailable, "shutting_down", "Scheduler is shutting down", nil)
		return
	case err != nil:
		respond.Error(c, http.StatusInternalServerError, "internal", "Unexpected server error", nil)
		return
	}
	if !fired {
		respond.Error(c, http.StatusConflict, "already_running", "Job is already running", gin.H{"job": name})
		return
	}
	respond.JSON(c, http.StatusAccepted, gin.H{"job": name, "started": true})
}
