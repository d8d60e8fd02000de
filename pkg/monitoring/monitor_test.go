package monitoring

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	dto "github.com/prometheus/client_model/go"
)

func counterValue(t *testing.T, method, endpoint, status string) float64 {
	t.Helper()
	m := &dto.Metric{}
	if err := RequestCounter.WithLabelValues(method, endpoint, status).Write(m); err != nil {
		t.Fatalf("read counter: %v", err)
	}
	return m.GetCounter().GetValue()
}

func TestMetricsMiddlewareLabelsByRoute(t *testing.T) {
	gin.SetMode(gin.TestMode)
	Init()
	Init()

	r := gin.New()
	r.Use(MetricsMiddleware())
	r.GET("/api/track-progress/:id", func(c *gin.Context) { c.Status(http.StatusOK) })
	r.GET("/metrics", PrometheusHandler())

	before := counterValue(t, http.MethodGet, "/api/track-progress/:id", "200")
	unmatched := counterValue(t, http.MethodGet, "unmatched", "404")

	for _, path := range []string{"/api/track-progress/1", "/api/track-progress/2", "/nope"} {
		r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	if got := counterValue(t, http.MethodGet, "/api/track-progress/:id", "200") - before; got != 2 {
		t.Fatalf("expected 2 requests on the route template, got %v", got)
	}
	if got := counterValue(t, http.MethodGet, "unmatched", "404") - unmatched; got != 1 {
		t.Fatalf("expected 1 unmatched request, got %v", got)
	}

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Fatalf("metrics endpoint does not expose the request counter")
	}
}
