// Package metrics exposes engine snapshots as Prometheus metrics.
package metrics

import (
	"fmt"
	"io"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"

	"github.com/mattjoyce/goon/internal/engine"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "goon"

// Source returns the snapshot to export. The engine is single-threaded, so a
// source must only be gathered from the goroutine that owns the engine.
type Source func() engine.Snapshot

// Collector turns one engine snapshot per scrape into const metrics.
type Collector struct {
	source Source

	emitted       *prometheus.Desc
	processed     *prometheus.Desc
	rejected      *prometheus.Desc
	queueLen      *prometheus.Desc
	queueCap      *prometheus.Desc
	cacheEntries  *prometheus.Desc
	cacheEvicted  *prometheus.Desc
	poolObjects   *prometheus.Desc
	poolInUse     *prometheus.Desc
	uptime        *prometheus.Desc
	state         *prometheus.Desc
	handlerCalls  *prometheus.Desc
	handlerErrors *prometheus.Desc
	handlerAvg    *prometheus.Desc
	handlerOn     *prometheus.Desc
}

func NewCollector(namespace string, src Source) *Collector {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	ctx := []string{"context"}
	h := []string{"context", "handler", "handler_id"}
	desc := func(name, help string, labels []string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, "", name), help, labels, nil)
	}
	return &Collector{
		source:        src,
		emitted:       desc("events_emitted_total", "Events accepted by the queue.", ctx),
		processed:     desc("events_processed_total", "Events dequeued and dispatched.", ctx),
		rejected:      desc("events_rejected_total", "Events refused because the queue was full.", ctx),
		queueLen:      desc("queue_length", "Events waiting in the queue.", ctx),
		queueCap:      desc("queue_capacity", "Maximum queue length.", ctx),
		cacheEntries:  desc("cache_entries", "Entries held by the cache.", ctx),
		cacheEvicted:  desc("cache_evictions_total", "Entries evicted from the cache.", ctx),
		poolObjects:   desc("pool_objects", "Objects held by the pool.", ctx),
		poolInUse:     desc("pool_in_use", "Pool objects currently acquired.", ctx),
		uptime:        desc("uptime_seconds", "Seconds since the context was created.", ctx),
		state:         desc("state", "1 for the context's current lifecycle state.", []string{"context", "state"}),
		handlerCalls:  desc("handler_calls_total", "Handler invocations.", h),
		handlerErrors: desc("handler_errors_total", "Handler invocations that returned an error.", h),
		handlerAvg:    desc("handler_avg_exec_seconds", "Mean handler execution time.", h),
		handlerOn:     desc("handler_enabled", "1 when the handler is enabled.", h),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.emitted, c.processed, c.rejected, c.queueLen, c.queueCap,
		c.cacheEntries, c.cacheEvicted, c.poolObjects, c.poolInUse,
		c.uptime, c.state, c.handlerCalls, c.handlerErrors, c.handlerAvg, c.handlerOn,
	} {
		ch <- d
	}
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	s := c.source()
	name := s.Name

	counter := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v, labels...)
	}
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}

	counter(c.emitted, float64(s.Emitted), name)
	counter(c.processed, float64(s.Processed), name)
	counter(c.rejected, float64(s.Rejected), name)
	gauge(c.queueLen, float64(s.QueueLen), name)
	gauge(c.queueCap, float64(s.QueueCap), name)
	gauge(c.cacheEntries, float64(s.CacheLen), name)
	counter(c.cacheEvicted, float64(s.Evictions), name)
	gauge(c.poolObjects, float64(s.PoolLen), name)
	gauge(c.poolInUse, float64(s.PoolInUse), name)
	gauge(c.uptime, s.Uptime.Seconds(), name)
	gauge(c.state, 1, name, s.State)

	for _, hs := range s.Handlers {
		id := strconv.FormatUint(uint64(hs.ID), 10)
		counter(c.handlerCalls, float64(hs.Calls), name, hs.Name, id)
		counter(c.handlerErrors, float64(hs.Errors), name, hs.Name, id)
		gauge(c.handlerAvg, hs.AvgExecMillis/1000, name, hs.Name, id)
		enabled := 0.0
		if hs.Enabled {
			enabled = 1
		}
		gauge(c.handlerOn, enabled, name, hs.Name, id)
	}
}

// NewRegistry returns a private registry holding only the collector, so the
// exposition is not mixed with process metrics.
func NewRegistry(c *Collector) (*prometheus.Registry, error) {
	reg := prometheus.NewRegistry()
	if err := reg.Register(c); err != nil {
		return nil, fmt.Errorf("register collector: %w", err)
	}
	return reg, nil
}

// WriteText gathers g and writes the Prometheus text exposition format.
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	enc := expfmt.NewEncoder(w, expfmt.NewFormat(expfmt.TypeTextPlain))
	for _, mf := range families {
		if err := enc.Encode(mf); err != nil {
			return fmt.Errorf("encode %s: %w", mf.GetName(), err)
		}
	}
	return nil
}
