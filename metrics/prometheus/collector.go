// Package prometheus exports store metrics through the Prometheus client.
package prometheus

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"

	"github.com/hupe1980/magvec"
)

// Collector implements magvec.MetricsCollector with Prometheus metrics.
type Collector struct {
	opLatency   *prom.HistogramVec
	queriedKeys prom.Counter
	oov         prom.Counter
	oovLatency  prom.Histogram
	matrixRows  prom.Gauge
	cache       *prom.CounterVec
}

var _ magvec.MetricsCollector = (*Collector)(nil)

// NewCollector creates the metrics and registers them on reg. A nil reg
// selects prometheus.DefaultRegisterer.
func NewCollector(reg prom.Registerer) (*Collector, error) {
	if reg == nil {
		reg = prom.DefaultRegisterer
	}
	c := &Collector{
		opLatency: prom.NewHistogramVec(prom.HistogramOpts{
			Name:    "magvec_operation_latency_seconds",
			Help:    "Latency of store operations",
			Buckets: prom.DefBuckets,
		}, []string{"op", "status"}),
		queriedKeys: prom.NewCounter(prom.CounterOpts{
			Name: "magvec_queried_keys_total",
			Help: "Total keys looked up",
		}),
		oov: prom.NewCounter(prom.CounterOpts{
			Name: "magvec_oov_vectors_total",
			Help: "Total out-of-vocabulary vectors synthesized",
		}),
		oovLatency: prom.NewHistogram(prom.HistogramOpts{
			Name:    "magvec_oov_latency_seconds",
			Help:    "Latency of out-of-vocabulary synthesis",
			Buckets: prom.DefBuckets,
		}),
		matrixRows: prom.NewGauge(prom.GaugeOpts{
			Name: "magvec_matrix_rows",
			Help: "Rows of the most recently opened search matrix",
		}),
		cache: prom.NewCounterVec(prom.CounterOpts{
			Name: "magvec_cache_lookups_total",
			Help: "Vector cache lookups",
		}, []string{"result"}),
	}
	for _, m := range []prom.Collector{c.opLatency, c.queriedKeys, c.oov, c.oovLatency, c.matrixRows, c.cache} {
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return c, nil
}

func status(err error) string {
	if err != nil {
		return "error"
	}
	return "success"
}

// RecordQuery implements magvec.MetricsCollector.
func (c *Collector) RecordQuery(keys int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("query", status(err)).Observe(d.Seconds())
	c.queriedKeys.Add(float64(keys))
}

// RecordOOV implements magvec.MetricsCollector.
func (c *Collector) RecordOOV(d time.Duration) {
	c.oov.Inc()
	c.oovLatency.Observe(d.Seconds())
}

// RecordSearch implements magvec.MetricsCollector.
func (c *Collector) RecordSearch(_ int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("search", status(err)).Observe(d.Seconds())
}

// RecordMatrixOpen implements magvec.MetricsCollector.
func (c *Collector) RecordMatrixOpen(rows int, d time.Duration, err error) {
	c.opLatency.WithLabelValues("matrix_open", status(err)).Observe(d.Seconds())
	if err == nil {
		c.matrixRows.Set(float64(rows))
	}
}

// RecordCache implements magvec.MetricsCollector.
func (c *Collector) RecordCache(hit bool) {
	if hit {
		c.cache.WithLabelValues("hit").Inc()
	} else {
		c.cache.WithLabelValues("miss").Inc()
	}
}
