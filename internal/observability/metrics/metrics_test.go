package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRoutePath(t *testing.T) {
	assert.Equal(t, "/api/plots/{id}", RoutePath("/api/plots/0b3e0c4c-7e0e-4b7a-9c47-55a9f0f4f0a1"))
	assert.Equal(t, "/api/users/{id}/profile", RoutePath("/api/users/0b3e0c4c-7e0e-4b7a-9c47-55a9f0f4f0a1/profile"))
	assert.Equal(t, "/api/plots/me", RoutePath("/api/plots/me"))
}

func TestHTTPMetricsMiddlewareCountsStatus(t *testing.T) {
	h := HTTPMetricsMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
	}))

	before := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/brew", "418"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/brew", nil))
	after := testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "/brew", "418"))

	assert.Equal(t, before+1, after)
}

func TestObservePlotOperation(t *testing.T) {
	before := testutil.ToFloat64(plotOperations.WithLabelValues("create", "failure"))
	ObservePlotOperation("create", errors.New("nope"))
	assert.Equal(t, before+1, testutil.ToFloat64(plotOperations.WithLabelValues("create", "failure")))
}
