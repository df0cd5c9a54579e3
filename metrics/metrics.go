// Package metrics exposes auth, HTTP and session cache metrics to Prometheus.
package metrics

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lborres/bhvr/core"
)

const namespace = "bhvr"

// Collector records auth operations and HTTP responses. It implements
// core.Observer.
type Collector struct {
	authTotal   *prometheus.CounterVec
	authLatency *prometheus.HistogramVec
	httpStatus  *prometheus.CounterVec
}

var _ core.Observer = (*Collector)(nil)

func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		authTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_operations_total",
			Help:      "Auth operations by operation and result code.",
		}, []string{"operation", "code"}),
		authLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "auth_operation_duration_seconds",
			Help:      "Auth operation latency in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		httpStatus: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_responses_total",
			Help:      "HTTP responses by status code.",
		}, []string{"status_code"}),
	}

	reg.MustRegister(c.authTotal, c.authLatency, c.httpStatus)
	return c
}

// ObserveAuth records one auth operation. Successful calls use code "OK".
func (c *Collector) ObserveAuth(operation string, err error, elapsed time.Duration) {
	code := "OK"
	if err != nil {
		code = core.ErrorCode(err)
	}
	c.authTotal.WithLabelValues(operation, code).Inc()
	c.authLatency.WithLabelValues(operation).Observe(elapsed.Seconds())
}

func (c *Collector) RecordHTTPStatus(statusCode int) {
	c.httpStatus.WithLabelValues(strconv.Itoa(statusCode)).Inc()
}

// Middleware counts every response by status code.
func (c *Collector) Middleware() fiber.Handler {
	return func(ctx fiber.Ctx) error {
		err := ctx.Next()
		status := ctx.Response().StatusCode()
		if err != nil {
			status = fiber.StatusInternalServerError
			var fe *fiber.Error
			if errors.As(err, &fe) {
				status = fe.Code
			}
		}
		c.RecordHTTPStatus(status)
		return err
	}
}

// cacheCollector reads cache statistics at scrape time.
type cacheCollector struct {
	stats func() (core.CacheStats, bool)

	hits, misses, sets, deletes, evictions *prometheus.Desc
	size                                   *prometheus.Desc
}

// RegisterCacheStats exports the statistics returned by stats under
// bhvr_session_cache_*. Nothing is exported while stats reports false.
func RegisterCacheStats(reg prometheus.Registerer, stats func() (core.CacheStats, bool)) error {
	desc := func(name, help string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "session_cache", name), help, nil, nil)
	}
	return reg.Register(&cacheCollector{
		stats:     stats,
		hits:      desc("hits_total", "Session cache hits."),
		misses:    desc("misses_total", "Session cache misses."),
		sets:      desc("sets_total", "Session cache writes."),
		deletes:   desc("deletes_total", "Session cache deletions."),
		evictions: desc("evictions_total", "Session cache evictions."),
		size:      desc("entries", "Sessions currently cached."),
	})
}

func (c *cacheCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{c.hits, c.misses, c.sets, c.deletes, c.evictions, c.size} {
		ch <- d
	}
}

func (c *cacheCollector) Collect(ch chan<- prometheus.Metric) {
	s, ok := c.stats()
	if !ok {
		return
	}
	ch <- prometheus.MustNewConstMetric(c.hits, prometheus.CounterValue, float64(s.Hits))
	ch <- prometheus.MustNewConstMetric(c.misses, prometheus.CounterValue, float64(s.Misses))
	ch <- prometheus.MustNewConstMetric(c.sets, prometheus.CounterValue, float64(s.Sets))
	ch <- prometheus.MustNewConstMetric(c.deletes, prometheus.CounterValue, float64(s.Deletes))
	ch <- prometheus.MustNewConstMetric(c.evictions, prometheus.CounterValue, float64(s.Evictions))
	ch <- prometheus.MustNewConstMetric(c.size, prometheus.GaugeValue, float64(s.Size))
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
