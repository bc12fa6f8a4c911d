package instrument

import (
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the service collectors on their own registry.
type Metrics struct {
	Registry        *prometheus.Registry
	RequestDuration *prometheus.HistogramVec
	SchemaCache     *prometheus.CounterVec
	RelationWrites  *prometheus.CounterVec
}

func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		Registry: reg,
		RequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "crud6_request_duration_seconds",
			Help:    "The duration of HTTP requests",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
		}, []string{"method", "route", "status"}),
		SchemaCache: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crud6_schema_cache_total",
			Help: "Schema lookups by cache outcome",
		}, []string{"model", "outcome"}),
		RelationWrites: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "crud6_relation_writes_total",
			Help: "Relationship attach and detach requests",
		}, []string{"model", "relation", "op"}),
	}
}

// ObserveSchemaCache implements schema.CacheObserver.
func (m *Metrics) ObserveSchemaCache(model, outcome string) {
	if m == nil {
		return
	}
	m.SchemaCache.WithLabelValues(model, outcome).Inc()
}

// ObserveRelationWrite counts an attach or detach on a relation.
func (m *Metrics) ObserveRelationWrite(model, relation, op string) {
	if m == nil {
		return
	}
	m.RelationWrites.WithLabelValues(model, relation, op).Inc()
}

func (m *Metrics) observeRequest(method, route string, status int, took time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(took.Seconds())
}

// Handler serves the registry in the prometheus text format.
func (m *Metrics) Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{}))
}
