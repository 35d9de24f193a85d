package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"

	"github.com/ekaya-inc/ekaya-datagate/pkg/adapters/datasource"
	"github.com/ekaya-inc/ekaya-datagate/pkg/config"
)

func TestHealthHandler_Health_WithoutPool(t *testing.T) {
	handler := NewHealthHandler(&config.Config{Version: "test-version", Env: "test"}, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	if rec.Code != http.StatusOK {
		t.Errorf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Status != "ok" {
		t.Errorf("expected status 'ok', got '%s'", response.Status)
	}
	if response.Connectors != nil {
		t.Error("expected nil connectors when pool not provided")
	}
}

func TestHealthHandler_Health_WithPool(t *testing.T) {
	pool := &mockConnectorManager{stats: datasource.PoolStats{
		TotalConnectors:   2,
		DataSourceIDs:     []string{"a", "b"},
		OldestIdleSeconds: 30,
	}}
	handler := NewHealthHandler(&config.Config{Version: "test-version", Env: "test"}, pool, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	var response HealthResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Connectors == nil {
		t.Fatal("expected connector stats")
	}
	if response.Connectors.TotalConnectors != 2 {
		t.Errorf("expected 2 connectors, got %d", response.Connectors.TotalConnectors)
	}
}

func TestHealthHandler_Ping(t *testing.T) {
	handler := NewHealthHandler(&config.Config{Version: "1.2.3", Env: "test"}, nil, nil, zap.NewNop())

	rec := httptest.NewRecorder()
	handler.Ping(rec, httptest.NewRequest(http.MethodGet, "/ping", nil))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected status %d, got %d", http.StatusOK, rec.Code)
	}
	var response PingResponse
	if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if response.Version != "1.2.3" || response.Service != "ekaya-datagate" || response.Environment != "test" {
		t.Errorf("unexpected ping response: %+v", response)
	}
}

type stubDatabaseChecker struct{ err error }

func (s stubDatabaseChecker) Check(ctx context.Context) error { return s.err }

func TestHealthHandler_Health_Database(t *testing.T) {
	tests := []struct {
		name         string
		err          error
		wantCode     int
		wantStatus   string
		wantDatabase string
	}{
		{"reachable", nil, http.StatusOK, "ok", "ok"},
		{"unreachable", errors.New("connection refused"), http.StatusServiceUnavailable, "degraded", "unavailable"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHealthHandler(&config.Config{}, nil, stubDatabaseChecker{err: tt.err}, zap.NewNop())

			rec := httptest.NewRecorder()
			handler.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

			if rec.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, rec.Code)
			}
			var response HealthResponse
			if err := json.NewDecoder(rec.Body).Decode(&response); err != nil {
				t.Fatalf("failed to decode response: %v", err)
			}
			if response.Status != tt.wantStatus || response.Database != tt.wantDatabase {
				t.Errorf("unexpected health response: %+v", response)
			}
		})
	}
}
