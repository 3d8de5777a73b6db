package observability

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// MarketplaceMetrics records marketplace RPC activity segmented by method and
// outcome.
type MarketplaceMetrics struct {
	requests *prometheus.CounterVec
	latency  *prometheus.HistogramVec
}

var (
	marketOnce     sync.Once
	marketRegistry *MarketplaceMetrics
)

// Marketplace returns the lazily-initialised marketplace metrics registry.
func Marketplace() *MarketplaceMetrics {
	marketOnce.Do(func() {
		marketRegistry = &MarketplaceMetrics{
			requests: prometheus.NewCounterVec(prometheus.CounterOpts{
				Namespace: "sessionmarket",
				Subsystem: "rpc",
				Name:      "requests_total",
				Help:      "Total marketplace RPC requests segmented by method and outcome.",
			}, []string{"method", "outcome"}),
			latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
				Namespace: "sessionmarket",
				Subsystem: "rpc",
				Name:      "request_seconds",
				Help:      "Marketplace RPC handler latency in seconds.",
				Buckets:   prometheus.DefBuckets,
			}, []string{"method"}),
		}
		prometheus.MustRegister(marketRegistry.requests, marketRegistry.latency)
	})
	return marketRegistry
}

// Observe records one handled request.
func (m *MarketplaceMetrics) Observe(method, outcome string, duration time.Duration) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(method, outcome).Inc()
	m.latency.WithLabelValues(method).Observe(duration.Seconds())
}
