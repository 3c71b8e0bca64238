package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMiddleware_RecordsRoutePattern(t *testing.T) {
	r := chi.NewRouter()
	r.Use(Middleware)
	r.Get("/v1/rules/{key}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	before := testutil.ToFloat64(httpReqs.WithLabelValues("/v1/rules/{key}", "GET", "404"))
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/v1/rules/abc", nil))
	after := testutil.ToFloat64(httpReqs.WithLabelValues("/v1/rules/{key}", "GET", "404"))

	if after-before != 1 {
		t.Errorf("expected counter to grow by 1, got %v", after-before)
	}
}

func TestInitTracing_NoEndpointIsNoop(t *testing.T) {
	shutdown, err := InitTracing(context.Background(), "", "activitygate", "1.0.0")
	if err != nil {
		t.Fatalf("InitTracing() error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("shutdown() error: %v", err)
	}
	_, span := Tracer().Start(context.Background(), "noop")
	span.End()
}
