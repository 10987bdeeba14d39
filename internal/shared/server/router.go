package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"filevault-backend/internal/scheduler"
	"filevault-backend/internal/shared/metrics"
	"filevault-backend/internal/shared/server/middleware"
	"filevault-backend/internal/shared/server/respond"
	localstore "filevault-backend/internal/shared/storage/object/local"
)

// JobRunner is the scheduler surface exposed over HTTP.
type JobRunner interface {
	Status() []scheduler.JobStatus
	Trigger(name string) (bool, error)
}

// Pinger reports database reachability.
type Pinger interface {
	PingContext(ctx context.Context) error
}

// Deps are the collaborators the ops router serves.
type Deps struct {
	Jobs        JobRunner
	DB          Pinger
	LocalStore  *localstore.Store
	TriggerRule middleware.Rule
}

// NewRouter constructs the Gin engine with middleware and routes registered.
func NewRouter(deps Deps) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()

	r.Use(
		middleware.RequestID(),
		middleware.Logging("/healthz", "/metrics"),
		middleware.Recovery(),
	)

	r.GET("/healthz", healthHandler(deps.DB))
	r.GET("/metrics", metrics.Handler())

	jobs := &jobsHandler{runner: deps.Jobs}
	r.GET("/jobs", jobs.list)
	r.POST("/jobs/:name/run", middleware.RateLimit(nil, deps.TriggerRule, "name"), jobs.trigger)

	if deps.LocalStore != nil {
		objects := &objectsHandler{store: deps.LocalStore}
		r.GET("/objects/*key", objects.serve)
	}

	return r
}

func healthHandler(db Pinger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if db != nil {
			ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
			defer cancel()
			if err := db.PingContext(ctx); err != nil {
				respond.Error(c, http.StatusServiceUnavailable, "db_unavailable", "Database unreachable", nil)
				return
			}
		}
		respond.OK(c, gin.H{"ok": true})
	}
}

// Addr normalizes the listen address.
func Addr(port string) string {
	if port == "" {
		return ":8080"
	}
	if port[0] == ':' {
		return port
	}
	return ":" + port
}
