package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Registry struct {
	reg *prometheus.Registry

	Submitted         prometheus.Counter
	Processed         prometheus.Counter
	Failed            prometheus.Counter
	Nacked            prometheus.Counter
	Poisoned          prometheus.Counter
	EnrichmentLookups prometheus.Counter
	Inflight          prometheus.Gauge
}

func NewRegistry() *Registry {
	r := prometheus.NewRegistry()
	submitted := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderflow_orders_submitted_total"})
	processed := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderflow_orders_processed_total"})
	failed := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderflow_orders_failed_total"})
	nacked := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderflow_orders_nacked_total"})
	poisoned := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderflow_messages_poisoned_total"})
	lookups := prometheus.NewCounter(prometheus.CounterOpts{Name: "orderflow_enrichment_lookups_total"})
	inflight := prometheus.NewGauge(prometheus.GaugeOpts{Name: "orderflow_orders_inflight"})

	r.MustRegister(submitted, processed, failed, nacked, poisoned, lookups, inflight)
	return &Registry{
		reg:               r,
		Submitted:         submitted,
		Processed:         processed,
		Failed:            failed,
		Nacked:            nacked,
		Poisoned:          poisoned,
		EnrichmentLookups: lookups,
		Inflight:          inflight,
	}
}

func (r *Registry) Handler() http.Handler { return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{}) }
