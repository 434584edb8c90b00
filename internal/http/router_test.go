package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	sqlite "github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/legalflow/messaging-backend/internal/config"
	"github.com/legalflow/messaging-backend/internal/dispatchq"
	"github.com/legalflow/messaging-backend/internal/fanout"
	"github.com/legalflow/messaging-backend/internal/http/middleware"
	"github.com/legalflow/messaging-backend/internal/repo"
	"github.com/legalflow/messaging-backend/internal/storage"
)

func newTestRouter(t *testing.T) (*gin.Engine, *gorm.DB) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	dsn := fmt.Sprintf("file:router_%s?mode=memory&cache=shared", uuid.NewString())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := repo.AutoMigrate(db); err != nil {
		t.Fatalf("automigrate: %v", err)
	}
	store, err := storage.NewDiskStore(t.TempDir(), "http://localhost:8080", []byte("test-secret"))
	if err != nil {
		t.Fatalf("store: %v", err)
	}

	cfg := config.Config{
		GinMode:      gin.TestMode,
		MaxBodyBytes: 2 << 20,
		APIBasePath:  "/api/v1",
		RateRPS:      100,
		RateBurst:    100,
		Media: config.MediaConfig{
			FetchTimeout: 5 * time.Second,
			URLTTL:       time.Hour,
			MaxBytes:     1 << 20,
		},
		IdempotencyTTL: time.Hour,
	}

	r := gin.New()
	RegisterRoutes(r, db, store, fanout.NewMemoryBus(), dispatchq.Noop{}, cfg)
	return r, db
}

func get(r *gin.Engine, path string, hdr map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestRouter_HealthAndMetrics(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := get(r, "/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: %d", w.Code)
	}
	w := get(r, "/metrics", nil)
	if w.Code != http.StatusOK || !strings.Contains(w.Body.String(), "http_requests_total") {
		t.Errorf("metrics: %d", w.Code)
	}
}

func TestRouter_NoRouteEnvelope(t *testing.T) {
	r, _ := newTestRouter(t)

	w := get(r, "/definitely/not/here", nil)
	if w.Code != http.StatusNotFound {
		t.Fatalf("status: %d", w.Code)
	}
	var body map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("body: %v", err)
	}
	if body["code"] != "not_found" {
		t.Errorf("code: %v", body["code"])
	}
}

func TestRouter_MethodNotAllowed(t *testing.T) {
	r, _ := newTestRouter(t)

	req := httptest.NewRequest(http.MethodDelete, "/health", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusMethodNotAllowed {
		t.Fatalf("status: %d", w.Code)
	}
}

func TestRouter_TenantAPIRequiresHeader(t *testing.T) {
	r, _ := newTestRouter(t)

	if w := get(r, "/api/v1/threads", nil); w.Code != http.StatusUnauthorized {
		t.Errorf("no tenant header: %d", w.Code)
	}
	w := get(r, "/api/v1/threads", map[string]string{middleware.HeaderTenantID: "t1"})
	if w.Code != http.StatusOK {
		t.Errorf("with tenant header: %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_WebhookBypassesTenantHeader(t *testing.T) {
	r, db := newTestRouter(t)
	if _, err := repo.CreateAccount(context.Background(), db, "t1", "escritorio-01", "zapmail"); err != nil {
		t.Fatalf("account: %v", err)
	}

	raw := `{"event": "message", "data": {"id": "wamid.r1", "chatId": "5511999990000@c.us", "text": {"body": "oi"}}}`
	req := httptest.NewRequest(http.MethodPost, "/webhooks/zapmail/escritorio-01", strings.NewReader(raw))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("webhook: %d %s", w.Code, w.Body.String())
	}
}

func TestRouter_RequestIDPropagated(t *testing.T) {
	r, _ := newTestRouter(t)

	w := get(r, "/health", map[string]string{"X-Request-ID": "req-fixed-1"})
	if got := w.Header().Get("X-Request-ID"); got != "req-fixed-1" {
		t.Errorf("request id: %q", got)
	}
	w = get(r, "/health", nil)
	if w.Header().Get("X-Request-ID") == "" {
		t.Error("request id not generated")
	}
}

func TestRouter_CORSDefaultAllowsAll(t *testing.T) {
	r, _ := newTestRouter(t)

	w := get(r, "/health", map[string]string{"Origin": "https://app.example.com"})
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("acao: %q", got)
	}
}
