package metrics

import (
	"database/sql"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "feedpoller"

// LimiterStats exposes host limiter occupancy.
type LimiterStats interface {
	TrackedHosts() int
	MaxPerHost() int
}

// Collector exposes Prometheus metrics for polling and for the metrics
// server's own HTTP requests.
type Collector struct {
	registry *prometheus.Registry

	pollTotal       *prometheus.CounterVec
	pollDuration    *prometheus.HistogramVec
	entriesInserted prometheus.Counter
	batchTotal      prometheus.Counter
	batchSize       prometheus.Histogram
	batchDuration   prometheus.Histogram

	requestDuration *prometheus.HistogramVec
	requestTotal    *prometheus.CounterVec
}

// NewCollector constructs a collector on its own registry.
func NewCollector() (*Collector, error) {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		pollTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "polls_total",
			Help:      "Feed poll attempts by outcome and error kind.",
		}, []string{"outcome", "error_kind"}),
		pollDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "poll_duration_seconds",
			Help:      "Latency distribution of feed poll attempts, including limiter wait.",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"outcome"}),
		entriesInserted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ingest",
			Name:      "entries_inserted_total",
			Help:      "Entries newly stored.",
		}),
		batchTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batches_total",
			Help:      "Non-empty batches dispatched by the scheduler.",
		}),
		batchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batch_size",
			Help:      "Number of feeds per dispatched batch.",
			Buckets:   []float64{1, 2, 5, 10, 20, 50, 100},
		}),
		batchDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "scheduler",
			Name:      "batch_duration_seconds",
			Help:      "Time to complete a batch of ingestions.",
			Buckets:   prometheus.DefBuckets,
		}),
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution for inbound HTTP requests.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "path", "status"}),
		requestTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "Total number of inbound HTTP requests.",
		}, []string{"method", "path", "status"}),
	}

	for _, collector := range []prometheus.Collector{
		c.pollTotal,
		c.pollDuration,
		c.entriesInserted,
		c.batchTotal,
		c.batchSize,
		c.batchDuration,
		c.requestDuration,
		c.requestTotal,
	} {
		if err := registry.Register(collector); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// RegisterLimiter exports host limiter occupancy as gauges.
func (c *Collector) RegisterLimiter(stats LimiterStats) error {
	tracked := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "limiter",
		Name:      "tracked_hosts",
		Help:      "Hosts with at least one active or waiting fetch.",
	}, func() float64 { return float64(stats.TrackedHosts()) })

	maxPerHost := prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "limiter",
		Name:      "max_per_host",
		Help:      "Configured concurrent fetch cap per host.",
	}, func() float64 { return float64(stats.MaxPerHost()) })

	if err := c.registry.Register(tracked); err != nil {
		return err
	}
	return c.registry.Register(maxPerHost)
}

// RegisterDB exports connection pool statistics.
func (c *Collector) RegisterDB(db *sql.DB, name string) error {
	return c.registry.Register(collectors.NewDBStatsCollector(db, name))
}

// ObservePoll records one ingestion attempt. An empty error kind is
// recorded as "none".
func (c *Collector) ObservePoll(outcome, errorKind string, duration time.Duration) {
	if errorKind == "" {
		errorKind = "none"
	}
	c.pollTotal.WithLabelValues(outcome, errorKind).Inc()
	c.pollDuration.WithLabelValues(outcome).Observe(duration.Seconds())
}

// AddEntriesInserted counts newly stored entries.
func (c *Collector) AddEntriesInserted(n int) {
	if n > 0 {
		c.entriesInserted.Add(float64(n))
	}
}

// ObserveBatch records one dispatched scheduler batch.
func (c *Collector) ObserveBatch(size int, duration time.Duration) {
	c.batchTotal.Inc()
	c.batchSize.Observe(float64(size))
	c.batchDuration.Observe(duration.Seconds())
}

// Handler returns an HTTP handler for exposing Prometheus metrics.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// InstrumentHandler wraps the provided handler to record HTTP metrics.
func (c *Collector) InstrumentHandler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rw, r)

		duration := time.Since(start).Seconds()
		status := strconv.Itoa(rw.status)
		path := r.URL.Path

		c.requestTotal.WithLabelValues(r.Method, path, status).Inc()
		c.requestDuration.WithLabelValues(r.Method, path, status).Observe(duration)
	})
}

type responseWriter struct {
	http.ResponseWriter
	status int
}

func (w *responseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}
