package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the collectors of the aggregation service.
type Metrics struct {
	registry *prometheus.Registry

	Requests     *prometheus.CounterVec
	Latency      prometheus.Histogram
	CacheLookups *prometheus.CounterVec
	Invalidated  prometheus.Counter
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlist_list_conversations_total",
			Help: "ListConversations calls by outcome",
		}, []string{"outcome"}),
		Latency: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "chatlist_list_conversations_seconds",
			Help:    "ListConversations latency",
			Buckets: prometheus.DefBuckets,
		}),
		CacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "chatlist_summary_cache_lookups_total",
			Help: "Summary cache lookups by result",
		}, []string{"result"}),
		Invalidated: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "chatlist_summary_cache_invalidations_total",
			Help: "Users whose cached summaries were dropped",
		}),
	}
	m.registry.MustRegister(
		m.Requests, m.Latency, m.CacheLookups, m.Invalidated,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Handler returns an http.Handler for Prometheus scraping.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
