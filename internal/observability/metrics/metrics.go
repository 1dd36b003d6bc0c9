package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmanager_http_requests_total",
		Help: "Total number of HTTP requests",
	}, []string{"method", "path", "status"})

	httpRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "plotmanager_http_request_duration_seconds",
		Help:    "Duration of HTTP requests",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "path", "status"})

	authAttempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmanager_auth_attempts_total",
		Help: "Count of register, login, logout and password change attempts by result",
	}, []string{"operation", "result"})

	plotOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmanager_plot_operations_total",
		Help: "Count of plot create, update and delete operations by result",
	}, []string{"operation", "result"})

	userOperations = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "plotmanager_user_operations_total",
		Help: "Count of user and profile mutations by result",
	}, []string{"operation", "result"})
)

// ObserveHTTPRequest records an HTTP request metric
func ObserveHTTPRequest(method, path, status string, duration time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(duration.Seconds())
}

// ObserveAuth records an authentication attempt
func ObserveAuth(operation string, err error) {
	authAttempts.WithLabelValues(operation, result(err)).Inc()
}

// ObservePlotOperation records a plot mutation
func ObservePlotOperation(operation string, err error) {
	plotOperations.WithLabelValues(operation, result(err)).Inc()
}

// ObserveUserOperation records a user or profile mutation
func ObserveUserOperation(operation string, err error) {
	userOperations.WithLabelValues(operation, result(err)).Inc()
}

func result(err error) string {
	if err != nil {
		return "failure"
	}
	return "success"
}
