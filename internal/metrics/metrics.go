// Package metrics exposes Prometheus counters for pool consumption, queue
// traffic and housekeeping. A nil *Metrics is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "keyqueue"

// Metrics holds the collectors registered on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	consumed     *prometheus.CounterVec
	enqueued     *prometheus.CounterVec
	fetched      prometheus.Counter
	batchSize    prometheus.Histogram
	handleClaims prometheus.Counter
	purged       prometheus.Counter
	rateLimited  prometheus.Counter
	rpcDuration  *prometheus.HistogramVec
}

// New creates the collectors on a fresh registry together with the Go and
// process collectors.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		consumed: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "pool",
			Name:      "consume_total",
			Help:      "Package consumptions by pool and outcome",
		},
			// pool: key/connection, outcome: consumed/borrowed/unavailable/exhausted/contended
			[]string{"pool", "outcome"},
		),
		enqueued: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "enqueued_total",
			Help:      "Messages enqueued by queue kind",
		}, []string{"kind"}), // kind: client/handle
		fetched: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "fetched_messages_total",
			Help:      "Client queue messages returned by fetch",
		}),
		batchSize: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "queue",
			Name:      "fetch_batch_size",
			Help:      "Number of messages returned per fetch",
			Buckets:   prometheus.ExponentialBuckets(1, 2, 10),
		}),
		handleClaims: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handle",
			Name:      "claimed_total",
			Help:      "Handle mailbox messages claimed by fetchers",
		}),
		purged: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "handle",
			Name:      "purged_total",
			Help:      "Handle mailbox messages removed by retention",
		}),
		rateLimited: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "auth",
			Name:      "rate_limited_total",
			Help:      "Requests rejected because the allowance was used up",
		}),
		rpcDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "grpc",
			Name:      "request_duration_seconds",
			Help:      "Unary RPC latency by method and code",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "code"}),
	}
}

// Consumed records one pool consumption outcome.
func (m *Metrics) Consumed(pool, outcome string) {
	if m == nil {
		return
	}
	m.consumed.WithLabelValues(pool, outcome).Inc()
}

// Enqueued records one enqueued message of the given kind.
func (m *Metrics) Enqueued(kind string) {
	if m == nil {
		return
	}
	m.enqueued.WithLabelValues(kind).Inc()
}

// Fetched records the size of a returned queue batch.
func (m *Metrics) Fetched(n int) {
	if m == nil {
		return
	}
	m.fetched.Add(float64(n))
	m.batchSize.Observe(float64(n))
}

// HandleClaimed records claimed handle messages.
func (m *Metrics) HandleClaimed(n int) {
	if m == nil {
		return
	}
	m.handleClaims.Add(float64(n))
}

// Purged records handle messages removed by retention.
func (m *Metrics) Purged(n int64) {
	if m == nil {
		return
	}
	m.purged.Add(float64(n))
}

// RateLimited records a rejected request.
func (m *Metrics) RateLimited() {
	if m == nil {
		return
	}
	m.rateLimited.Inc()
}

// ObserveRPC records the latency of a unary call.
func (m *Metrics) ObserveRPC(method, code string, d time.Duration) {
	if m == nil {
		return
	}
	m.rpcDuration.WithLabelValues(method, code).Observe(d.Seconds())
}

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}
