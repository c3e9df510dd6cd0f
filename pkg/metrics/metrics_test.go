package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

func TestRegistry(t *testing.T) {
	if Registry == nil {
		t.Error("Registry should not be nil")
	}

	if Registry != prometheus.DefaultRegisterer {
		t.Error("Registry should be the default Prometheus registerer")
	}
}

func TestHealthEndpoint(t *testing.T) {
	req := httptest.NewRequest("GET", "/health", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("Expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "OK" {
		t.Errorf("Expected body 'OK', got %q", w.Body.String())
	}
}

func TestMetricsEndpoint(t *testing.T) {
	counter := prometheus.NewCounter(prometheus.CounterOpts{
		Name: "fpl_metrics_endpoint_test_total",
		Help: "Counter registered by the endpoint test",
	})
	Registry.MustRegister(counter)
	defer Registry.Unregister(counter)
	counter.Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	w := httptest.NewRecorder()

	Handler().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("Expected status 200, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "fpl_metrics_endpoint_test_total 1") {
		t.Error("Expected test counter in metrics output")
	}
}

func TestServer_StartShutdown(t *testing.T) {
	srv, err := Start("127.0.0.1:0", zerolog.Nop())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	resp, err := http.Get("http://" + srv.Addr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	if string(body) != "OK" {
		t.Errorf("Expected body 'OK', got %q", string(body))
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		t.Errorf("Shutdown failed: %v", err)
	}

	if _, err := http.Get("http://" + srv.Addr() + "/health"); err == nil {
		t.Error("Expected request after shutdown to fail")
	}
}

func TestServer_BindError(t *testing.T) {
	srv, err := Start("127.0.0.1:0", zerolog.Nop())
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer srv.Shutdown(context.Background())

	if _, err := Start(srv.Addr(), zerolog.Nop()); err == nil {
		t.Error("Expected error binding an address already in use")
	}
}
