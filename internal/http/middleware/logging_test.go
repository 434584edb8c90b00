package middleware

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func captureLogger(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := log.Logger
	t.Cleanup(func() { log.Logger = prev })
	log.Logger = zerolog.New(&buf)
	return &buf
}

// ---------- RequestID ----------

func TestRequestID_GeneratedWhenAbsent(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/threads", func(c *gin.Context) {
		if v, ok := c.Get(requestIDKey); !ok || v == "" {
			t.Errorf("request id missing from context")
		}
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/threads", nil))
	if w.Header().Get(requestIDHeader) == "" {
		t.Fatalf("no %s header generated", requestIDHeader)
	}
}

func TestRequestID_PropagatesCallerValue(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/threads", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	for _, header := range []string{requestIDHeader, strings.ToLower(requestIDHeader)} {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/threads", nil)
		req.Header.Set(header, "crm-7f3a")
		r.ServeHTTP(w, req)
		if got := w.Header().Get(requestIDHeader); got != "crm-7f3a" {
			t.Fatalf("header %q: response id = %q, want crm-7f3a", header, got)
		}
	}
}

// ---------- Logger ----------

func TestLogger_LevelByOutcome(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger())
	r.GET("/threads", func(c *gin.Context) { c.String(http.StatusOK, "[]") })
	r.GET("/boom", func(c *gin.Context) {
		_ = c.Error(errMarker{})
		c.Status(http.StatusBadRequest)
	})

	for _, path := range []string{"/threads", "/nope", "/boom"} {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, path, nil))
	}

	logs := buf.String()
	if !strings.Contains(logs, `"level":"info"`) || !strings.Contains(logs, `"path":"/threads"`) {
		t.Errorf("200 should log info with route path:\n%s", logs)
	}
	// unmatched route logs the raw URL at warn
	if !strings.Contains(logs, `"level":"warn"`) || !strings.Contains(logs, `"path":"/nope"`) {
		t.Errorf("404 should log warn with raw path:\n%s", logs)
	}
	if !strings.Contains(logs, `"level":"error"`) {
		t.Errorf("gin errors should log at error level:\n%s", logs)
	}
}

func TestLogger_IncludesTenantWhenResolved(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), TenantResolver(), Logger())
	r.GET("/threads", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/threads", nil)
	req.Header.Set(HeaderTenantID, "tenant-silva-adv")
	r.ServeHTTP(w, req)

	if !strings.Contains(buf.String(), `"tenant_id":"tenant-silva-adv"`) {
		t.Fatalf("access log missing tenant id:\n%s", buf.String())
	}
}

type errMarker struct{}

func (errMarker) Error() string { return "boom" }

// ---------- Recovery ----------

func TestRecovery_PanicBecomesJSON500(t *testing.T) {
	gin.SetMode(gin.TestMode)
	buf := captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Logger(), Recovery())
	r.POST("/webhooks/zapmail/acme", func(c *gin.Context) { panic("decoder blew up") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/webhooks/zapmail/acme", nil))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body is not JSON: %v", err)
	}
	if body["code"] != "internal_error" {
		t.Fatalf("code = %v, want internal_error", body["code"])
	}
	if !strings.Contains(buf.String(), "panic recovered") {
		t.Fatalf("panic not logged:\n%s", buf.String())
	}
}

func TestRecovery_PanicAfterWriteSkipsBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	captureLogger(t)

	r := gin.New()
	r.Use(RequestID(), Recovery())
	r.GET("/stream", func(c *gin.Context) {
		c.String(http.StatusOK, "partial")
		panic("late")
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if strings.Contains(w.Body.String(), "internal_error") {
		t.Fatalf("error body written after response already started: %q", w.Body.String())
	}
}

// ---------- LoggerFrom ----------

func TestLoggerFrom(t *testing.T) {
	gin.SetMode(gin.TestMode)

	// without Logger() installed it falls back to a bare logger
	buf := captureLogger(t)
	r := gin.New()
	r.Use(RequestID())
	r.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("from handler")
		c.Status(http.StatusOK)
	})
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	if !strings.Contains(buf.String(), `"from handler"`) {
		t.Fatalf("fallback logger did not write")
	}
	if strings.Contains(buf.String(), `"request_id"`) {
		t.Fatalf("fallback logger should carry no request fields")
	}

	// with Logger() it is request-scoped
	buf2 := captureLogger(t)
	r2 := gin.New()
	r2.Use(RequestID(), Logger())
	r2.GET("/x", func(c *gin.Context) {
		LoggerFrom(c).Info().Msg("scoped")
		c.Status(http.StatusOK)
	})
	w2 := httptest.NewRecorder()
	r2.ServeHTTP(w2, httptest.NewRequest(http.MethodGet, "/x", nil))
	if !strings.Contains(buf2.String(), `"request_id"`) {
		t.Fatalf("request-scoped logger missing request_id:\n%s", buf2.String())
	}
}

func TestTruncateAndAsString(t *testing.T) {
	if asString("x") != "x" || asString(42) != "" {
		t.Fatalf("asString mismatch")
	}
	if truncate("page=1&page_size=25", 100) != "page=1&page_size=25" {
		t.Fatalf("truncate should be a no-op under the cap")
	}
	if got := truncate("abcdefgh", 5); got != "abcde…" {
		t.Fatalf("truncate = %q", got)
	}
	if truncate("abc", 0) != "abc" {
		t.Fatalf("max 0 should disable truncation")
	}
}
