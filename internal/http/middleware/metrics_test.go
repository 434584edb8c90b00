package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetrics_CountsByRouteAndStatus(t *testing.T) {
	gin.SetMode(gin.TestMode)

	r := gin.New()
	r.Use(Metrics())
	r.GET("/api/v1/threads/:id/messages", func(c *gin.Context) {
		c.String(http.StatusOK, "[]")
	})
	r.PATCH("/api/v1/threads/:id", func(c *gin.Context) {
		c.Status(http.StatusNoContent) // no body, size stays -1
	})

	route := "/api/v1/threads/:id/messages"
	baseList := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200"))
	base404 := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/unknown", "404"))

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/v1/threads/t-1/messages", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("list -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/unknown", nil))
	if w.Code != http.StatusNotFound {
		t.Fatalf("miss -> %d", w.Code)
	}

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPatch, "/api/v1/threads/t-1", nil))
	if w.Code != http.StatusNoContent {
		t.Fatalf("patch -> %d", w.Code)
	}

	// the path label is the route pattern, not the concrete URL
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", route, "200")); got != baseList+1 {
		t.Errorf("route-pattern counter = %v, want %v", got, baseList+1)
	}
	// unmatched routes fall back to the raw path
	if got := testutil.ToFloat64(httpReqs.WithLabelValues("GET", "/unknown", "404")); got != base404+1 {
		t.Errorf("fallback counter = %v, want %v", got, base404+1)
	}
	if got := testutil.ToFloat64(httpInflight); got != 0 {
		t.Errorf("inflight after completion = %v, want 0", got)
	}
}

func TestObserveWebhookAndMediaRelay(t *testing.T) {
	baseHook := testutil.ToFloat64(webhookEvents.WithLabelValues("zapmail", "processed"))
	baseMedia := testutil.ToFloat64(mediaRelays.WithLabelValues("stored"))

	ObserveWebhook("zapmail", "processed")
	ObserveMediaRelay("stored")

	if got := testutil.ToFloat64(webhookEvents.WithLabelValues("zapmail", "processed")); got != baseHook+1 {
		t.Errorf("webhook counter = %v, want %v", got, baseHook+1)
	}
	if got := testutil.ToFloat64(mediaRelays.WithLabelValues("stored")); got != baseMedia+1 {
		t.Errorf("media counter = %v, want %v", got, baseMedia+1)
	}
}
