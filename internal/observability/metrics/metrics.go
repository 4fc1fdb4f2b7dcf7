// Package metrics provides Prometheus instrumentation for shipyard.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/client_golang/prometheus/push"
)

var (
	enabled     bool
	serviceName string

	// HTTP metrics
	httpRequestsTotal *prometheus.CounterVec
	httpDuration      *prometheus.HistogramVec

	// Pipeline metrics
	deployTotal       *prometheus.CounterVec
	deployGasUsed     *prometheus.HistogramVec
	receiptPollsTotal *prometheus.CounterVec
	verificationTotal *prometheus.CounterVec
	compileTotal      *prometheus.CounterVec
)

// Init initializes the metrics system.
func Init(enabledFlag bool, svcName string) {
	enabled = enabledFlag
	serviceName = svcName

	if !enabled {
		return
	}

	// HTTP request counter
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// HTTP request duration histogram
	httpDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// Deployment counter
	deployTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deploy_total",
			Help: "Total number of contract deployments",
		},
		[]string{"network", "status"},
	)

	// Gas used per deployment
	deployGasUsed = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "deploy_gas_used",
			Help:    "Gas consumed by contract deployments",
			Buckets: prometheus.ExponentialBuckets(21000, 2, 12),
		},
		[]string{"network"},
	)

	// Receipt poll counter
	receiptPollsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "receipt_polls_total",
			Help: "Total number of transaction receipt polls",
		},
		[]string{"network"},
	)

	// Verification counter
	verificationTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verification_total",
			Help: "Total number of explorer verification submissions",
		},
		[]string{"network", "result"},
	)

	// Compile counter
	compileTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "compile_total",
			Help: "Total number of contract compilations",
		},
		[]string{"builder", "status"},
	)

	// Note: Go runtime metrics (goroutines, memory, GC) are automatically
	// collected by prometheus/client_golang - no custom collector needed
}

// Push sends all collected metrics to a Prometheus push gateway. The server
// process is scraped instead; this is how the short-lived CLI pipeline gets
// its counters out before exiting.
func Push(url, job string) error {
	if !enabled || url == "" {
		return nil
	}
	return push.New(url, job).Gatherer(prometheus.DefaultGatherer).Push()
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	if !enabled {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNotFound)
		})
	}
	return promhttp.Handler()
}

// Enabled returns whether metrics are enabled.
func Enabled() bool {
	return enabled
}

// ServiceName returns the configured service name for metric labels.
func ServiceName() string {
	return serviceName
}

// Deploy records a deployment outcome.
func Deploy(network, status string) {
	if !enabled {
		return
	}
	deployTotal.WithLabelValues(network, status).Inc()
}

// DeployGas records the gas consumed by a successful deployment.
func DeployGas(network string, gasUsed uint64) {
	if !enabled {
		return
	}
	deployGasUsed.WithLabelValues(network).Observe(float64(gasUsed))
}

// ReceiptPoll records one receipt poll against a network.
func ReceiptPoll(network string) {
	if !enabled {
		return
	}
	receiptPollsTotal.WithLabelValues(network).Inc()
}

// Verification records a verification submission result.
func Verification(network, result string) {
	if !enabled {
		return
	}
	verificationTotal.WithLabelValues(network, result).Inc()
}

// Compile records a compilation outcome.
func Compile(builder, status string) {
	if !enabled {
		return
	}
	compileTotal.WithLabelValues(builder, status).Inc()
}
