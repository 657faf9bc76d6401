package monitoring

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	RequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.1, 0.5, 1, 2, 5},
		},
		[]string{"method", "endpoint"},
	)

	// 挑战尝试状态迁移
	AttemptTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "challenge_attempt_transitions_total",
			Help: "Challenge attempt state transitions",
		},
		[]string{"state"},
	)

	EvaluationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "evaluation_duration_seconds",
			Help:    "Wall clock time of a full evaluation",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
		},
		[]string{"language"},
	)

	SandboxFaults = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sandbox_faults_total",
			Help: "Transient sandbox faults, by driver",
		},
		[]string{"driver"},
	)

	EvaluationCacheHits = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "evaluation_cache_hits_total",
			Help: "Evaluations served from the result cache",
		},
	)

	RecommendationsEmitted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "recommendations_emitted_total",
			Help: "Recommendations returned to users",
		},
	)

	SweptAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "attempt_sweeper_reconciled_total",
			Help: "Attempts reconciled by the background sweeper",
		},
		[]string{"result"},
	)
)

var initOnce sync.Once

func Init() {
	initOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDuration,
			AttemptTransitions,
			EvaluationDuration,
			SandboxFaults,
			EvaluationCacheHits,
			RecommendationsEmitted,
			SweptAttempts,
		)
	})
}

func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		duration := time.Since(start).Seconds()
		status := c.Writer.Status()

		RequestCounter.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
			strconv.Itoa(status),
		).Inc()

		RequestDuration.WithLabelValues(
			c.Request.Method,
			c.FullPath(),
		).Observe(duration)
	}
}

func PrometheusHandler() gin.HandlerFunc {
	h := promhttp.Handler()
	return func(c *gin.Context) {
		h.ServeHTTP(c.Writer, c.Request)
	}
}
