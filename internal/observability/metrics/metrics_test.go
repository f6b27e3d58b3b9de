package metrics

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"go.opentelemetry.io/otel/attribute"
)

func TestFilterAttributesDropsHighCardinality(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("action", "approved"),
		attribute.String("request_id", "123"),
		attribute.String("org_id", "9"),
	)
	assert.Len(t, attrs, 1)
	assert.Equal(t, attribute.Key("action"), attrs[0].Key)
}

func TestTaskMetricsCounts(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewTaskMetrics(reg, Config{ServiceName: "test"})

	m.IncRun("receipt.process", TaskOutcomeSuccess)
	m.IncRun("receipt.process", TaskOutcomeSuccess)
	m.IncRun("receipt.process", TaskOutcomeRetry)

	assert.Equal(t, float64(2), testutil.ToFloat64(m.runs.WithLabelValues("receipt.process", TaskOutcomeSuccess)))
	assert.Equal(t, float64(1), testutil.ToFloat64(m.runs.WithLabelValues("receipt.process", TaskOutcomeRetry)))

	// registering twice reuses the existing collectors
	again := NewTaskMetrics(reg, Config{ServiceName: "test"})
	again.IncRun("receipt.process", TaskOutcomeSuccess)
	assert.Equal(t, float64(3), testutil.ToFloat64(m.runs.WithLabelValues("receipt.process", TaskOutcomeSuccess)))
}

func TestHTTPMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	reg := prometheus.NewRegistry()
	m := newHTTPMetrics(reg, Config{})

	r := gin.New()
	r.Use(m.GinMiddleware())
	r.GET("/health", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, float64(1), testutil.ToFloat64(m.requests.WithLabelValues("/health", http.MethodGet, "200")))
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDecision(context.Background(), "approved", 1, "ok")
		m.RecordReconciliation(context.Background(), true)
	})
	var tm *TaskMetrics
	assert.NotPanics(t, func() { tm.IncRun("x", TaskOutcomeFailed) })
}
