package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func ok(context.Context) error { return nil }

func failing(context.Context) error { return errors.New("connection refused") }

func serveHealth(t *testing.T, h *Handler) (int, Response) {
	t.Helper()
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	var resp Response
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	return w.Code, resp
}

func TestHealthHandler_Healthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", ok))
	handler.RegisterChecker("cache", NewOptionalChecker("cache", ok))

	code, resp := serveHealth(t, handler)
	if code != http.StatusOK {
		t.Errorf("expected status 200, got %d", code)
	}
	if resp.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", resp.Status)
	}
	if resp.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", resp.Version)
	}
	if len(resp.Checks) != 2 {
		t.Errorf("expected 2 checks, got %d", len(resp.Checks))
	}
}

func TestHealthHandler_StorageDownIsUnhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", failing))
	handler.RegisterChecker("cache", NewOptionalChecker("cache", ok))

	code, resp := serveHealth(t, handler)
	if code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", code)
	}
	if resp.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", resp.Status)
	}
	if resp.Checks["storage"].Message != "connection refused" {
		t.Errorf("expected ping error in message, got %q", resp.Checks["storage"].Message)
	}
}

func TestHealthHandler_CacheDownIsDegraded(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.RegisterChecker("storage", NewFuncChecker("storage", ok))
	handler.RegisterChecker("cache", NewOptionalChecker("cache", failing))

	code, resp := serveHealth(t, handler)
	if code != http.StatusOK {
		t.Errorf("degraded service must still answer 200, got %d", code)
	}
	if resp.Status != StatusDegraded {
		t.Errorf("expected status degraded, got %s", resp.Status)
	}
}

func TestHealthHandler_NoCheckers(t *testing.T) {
	code, resp := serveHealth(t, NewHandler("dev"))
	if code != http.StatusOK || resp.Status != StatusHealthy {
		t.Fatalf("expected healthy without checkers, got %d %s", code, resp.Status)
	}
}

func TestHealthHandler_CheckTimeout(t *testing.T) {
	handler := NewHandler("dev")
	handler.timeout = 10 * time.Millisecond
	handler.RegisterChecker("storage", NewFuncChecker("storage", func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	}))

	code, resp := serveHealth(t, handler)
	if code != http.StatusServiceUnavailable {
		t.Fatalf("hanging ping must time out as unhealthy, got %d", code)
	}
	if resp.Checks["storage"].Message != context.DeadlineExceeded.Error() {
		t.Fatalf("unexpected message %q", resp.Checks["storage"].Message)
	}
}

func TestLivenessHandler(t *testing.T) {
	w := httptest.NewRecorder()
	LivenessHandler(w, httptest.NewRequest(http.MethodGet, "/livez", nil))

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	tests := []struct {
		name     string
		checker  Checker
		wantCode int
		wantBody string
	}{
		{"ready", NewFuncChecker("storage", ok), http.StatusOK, "ready"},
		{"degraded is ready", NewOptionalChecker("cache", failing), http.StatusOK, "ready"},
		{"not ready", NewFuncChecker("storage", failing), http.StatusServiceUnavailable, "not ready"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			handler := NewHandler("dev")
			handler.RegisterChecker("c", tt.checker)

			w := httptest.NewRecorder()
			handler.ReadinessHandler(w, httptest.NewRequest(http.MethodGet, "/readyz", nil))

			if w.Code != tt.wantCode {
				t.Errorf("expected status %d, got %d", tt.wantCode, w.Code)
			}
			if w.Body.String() != tt.wantBody {
				t.Errorf("expected body %q, got %q", tt.wantBody, w.Body.String())
			}
		})
	}
}

func TestRegisterChecker_IgnoresNil(t *testing.T) {
	handler := NewHandler("dev")
	handler.RegisterChecker("nil", nil)
	if len(handler.checkers) != 0 {
		t.Fatal("nil checker must not be registered")
	}
}
