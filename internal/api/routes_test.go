package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	loggerpkg "github.com/kirkhezir/church-app-sub002/pkg/logger"
)

type fakePinger struct {
	err error
}

func (p fakePinger) Ping(context.Context) error {
	return p.err
}

func serve(router http.Handler, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	router.ServeHTTP(resp, req)
	return resp
}

func TestHealthEndpoints(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := NewRouter(RouterConfig{DB: fakePinger{}})
	if resp := serve(router, http.MethodGet, "/health", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected /health 200, got %d", resp.Code)
	}
	if resp := serve(router, http.MethodGet, "/health/ready", nil); resp.Code != http.StatusOK {
		t.Fatalf("expected ready 200, got %d", resp.Code)
	}

	down := NewRouter(RouterConfig{DB: fakePinger{err: errors.New("refused")}})
	if resp := serve(down, http.MethodGet, "/health/ready", nil); resp.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected ready 503, got %d", resp.Code)
	}
}

func TestInternalRoutesRequireToken(t *testing.T) {
	gin.SetMode(gin.TestMode)

	router := NewRouter(RouterConfig{InternalToken: "ops-secret"})

	if resp := serve(router, http.MethodGet, "/internal/metrics", nil); resp.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", resp.Code)
	}

	resp := serve(router, http.MethodGet, "/internal/metrics", map[string]string{"X-Internal-Token": "ops-secret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200 with token, got %d", resp.Code)
	}
	if !strings.Contains(resp.Body.String(), "go_goroutines") {
		t.Fatalf("expected prometheus exposition, got %q", resp.Body.String())
	}
}

func TestInternalLogsFiltersByAnnouncement(t *testing.T) {
	gin.SetMode(gin.TestMode)

	store := loggerpkg.NewRecentLogStore(10, zapcore.InfoLevel)
	core, _ := observer.New(zapcore.DebugLevel)
	logger := loggerpkg.Tee(zap.New(core), store)
	router := NewRouter(RouterConfig{InternalToken: "ops-secret", LogStore: store})

	logger.Warn("urgent announcement dispatch finished with failures", zap.String("announcement_id", "a-1"))
	logger.Info("urgent announcement dispatch finished", zap.String("announcement_id", "a-2"))

	resp := serve(router, http.MethodGet, "/internal/logs?announcement_id=a-1", map[string]string{"Authorization": "Bearer ops-secret"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}

	var body struct {
		Data []loggerpkg.RecentLogEntry `json:"data"`
	}
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if len(body.Data) != 1 || body.Data[0].Level != "warn" {
		t.Fatalf("expected the single warning for a-1, got %+v", body.Data)
	}

	if resp := serve(router, http.MethodGet, "/internal/logs?level=loud", map[string]string{"X-Internal-Token": "ops-secret"}); resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad level, got %d", resp.Code)
	}
}
