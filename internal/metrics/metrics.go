package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	// DocumentsWritten counts lifecycle writes per collection and operation.
	DocumentsWritten *prometheus.CounterVec

	// ReconcileMutationsApplied counts reciprocal mutations that reached storage.
	ReconcileMutationsApplied prometheus.Counter

	// ReconcileMutationsFailed counts reciprocal mutations that could not be
	// applied and were surfaced as partial reconciliation failures.
	ReconcileMutationsFailed prometheus.Counter

	ActivityRecordsTotal prometheus.Counter

	CacheHitsTotal   prometheus.Counter
	CacheMissesTotal prometheus.Counter
)

var initOnce sync.Once

// Init registers all Prometheus metrics. Safe to call multiple times; only the
// first call registers.
func Init() {
	initOnce.Do(initInner)
}

func initInner() {
	f := promauto.With(prometheus.DefaultRegisterer)

	httpRequestsTotal = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_service_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "status"},
	)

	httpRequestDuration = f.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "metadata_service_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	DocumentsWritten = f.NewCounterVec(
		prometheus.CounterOpts{
			Name: "metadata_service_documents_written_total",
			Help: "Lifecycle writes by collection and operation",
		},
		[]string{"collection", "operation"},
	)

	ReconcileMutationsApplied = f.NewCounter(prometheus.CounterOpts{
		Name: "metadata_service_reconcile_mutations_applied_total",
		Help: "Reciprocal mutations applied to neighbor documents",
	})

	ReconcileMutationsFailed = f.NewCounter(prometheus.CounterOpts{
		Name: "metadata_service_reconcile_mutations_failed_total",
		Help: "Reciprocal mutations that failed to apply",
	})

	ActivityRecordsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "metadata_service_activity_records_total",
		Help: "Activity log records written",
	})

	CacheHitsTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "metadata_service_cache_hits_total",
		Help: "Total entity cache hits",
	})

	CacheMissesTotal = f.NewCounter(prometheus.CounterOpts{
		Name: "metadata_service_cache_misses_total",
		Help: "Total entity cache misses",
	})
}

// Middleware records HTTP request metrics for Prometheus.
func Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if httpRequestsTotal == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()
		duration := time.Since(start)

		httpRequestsTotal.WithLabelValues(c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
		httpRequestDuration.WithLabelValues(c.Request.Method).Observe(duration.Seconds())
	}
}

// RecordWrite increments the write counter, tolerating calls before Init.
func RecordWrite(collection, operation string) {
	if DocumentsWritten != nil {
		DocumentsWritten.WithLabelValues(collection, operation).Inc()
	}
}

// RecordMutation tracks the outcome of one reciprocal mutation.
func RecordMutation(applied bool) {
	if ReconcileMutationsApplied == nil {
		return
	}
	if applied {
		ReconcileMutationsApplied.Inc()
	} else {
		ReconcileMutationsFailed.Inc()
	}
}

// RecordActivity tracks one activity log write.
func RecordActivity() {
	if ActivityRecordsTotal != nil {
		ActivityRecordsTotal.Inc()
	}
}

// RecordCacheLookup tracks an entity cache hit or miss.
func RecordCacheLookup(hit bool) {
	if CacheHitsTotal == nil {
		return
	}
	if hit {
		CacheHitsTotal.Inc()
	} else {
		CacheMissesTotal.Inc()
	}
}
