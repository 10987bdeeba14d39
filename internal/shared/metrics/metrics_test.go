package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveRunCountsByStatus(t *testing.T) {
	before := testutil.ToFloat64(jobRuns.WithLabelValues("metrics-test", "ok"))
	ObserveRun("metrics-test", "ok", 2*time.Second, time.Unix(1700000000, 0))

	if got := testutil.ToFloat64(jobRuns.WithLabelValues("metrics-test", "ok")); got != before+1 {
		t.Fatalf("expected run counter %v, got %v", before+1, got)
	}
	if got := testutil.ToFloat64(jobLastSuccess.WithLabelValues("metrics-test")); got != 1700000000 {
		t.Fatalf("unexpected last success: %v", got)
	}
}

func TestAddItemsIgnoresZero(t *testing.T) {
	AddItems("metrics-test", "deleted", 0)
	AddItems("metrics-test", "deleted", 3)
	if got := testutil.ToFloat64(jobItems.WithLabelValues("metrics-test", "deleted")); got != 3 {
		t.Fatalf("expected 3 deleted, got %v", got)
	}
}

func TestHandlerRendersRegistry(t *testing.T) {
	gin.SetMode(gin.TestMode)
	IncSkipped("metrics-handler")

	r := gin.New()
	r.GET("/metrics", Handler())
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `reconciler_job_skipped_total{job="metrics-handler"} 1`) {
		t.Fatalf("missing skipped counter in output:\n%s", w.Body.String())
	}
}
