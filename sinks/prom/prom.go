// Package prom exposes finalized record statistics as Prometheus metrics.
package prom

import (
	"fmt"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/zoobzio/scopez"
)

// DefaultNamespace prefixes every metric name.
const DefaultNamespace = "scopez"

// Metrics records one observation per finalized record.
//
// Events are counted from root records only; nested records repeat events
// their root already holds.
type Metrics struct {
	finalized  *prometheus.CounterVec
	events     prometheus.Counter
	eventsPer  prometheus.Histogram
	openScopes prometheus.GaugeFunc
	registerer prometheus.Registerer
	collectors []prometheus.Collector
}

// New creates the metrics and registers them on reg. When source is not nil
// an open_scopes gauge reports its number of open records.
//
// Example:
//
//	registry := prometheus.NewRegistry()
//	m, err := prom.New("", registry, scopez.Default())
//	scopez.AddFinalizeListener(m.Finalize)
func New(namespace string, reg prometheus.Registerer, source *scopez.Registry) (*Metrics, error) {
	if namespace == "" {
		namespace = DefaultNamespace
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &Metrics{
		finalized: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "records_finalized_total",
				Help:      "Total number of finalized records",
			},
			[]string{"root", "failed"},
		),
		events: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "events_total",
				Help:      "Total number of events held by finalized root records",
			},
		),
		eventsPer: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "record_events",
				Help:      "Number of events per finalized record",
				Buckets:   []float64{1, 2, 5, 10, 25, 50, 100, 250, 1000},
			},
		),
		registerer: reg,
	}
	m.collectors = []prometheus.Collector{m.finalized, m.events, m.eventsPer}

	if source != nil {
		m.openScopes = prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "open_scopes",
				Help:      "Number of scopes currently open",
			},
			func() float64 { return float64(source.OpenScopes()) },
		)
		m.collectors = append(m.collectors, m.openScopes)
	}

	for i, c := range m.collectors {
		if err := reg.Register(c); err != nil {
			for _, registered := range m.collectors[:i] {
				reg.Unregister(registered)
			}
			return nil, fmt.Errorf("register metrics: %w", err)
		}
	}
	return m, nil
}

// Finalize observes r. It has the scopez.Finalizer signature.
func (m *Metrics) Finalize(r *scopez.Record) {
	if r == nil {
		return
	}
	m.finalized.WithLabelValues(
		strconv.FormatBool(r.IsRoot()),
		strconv.FormatBool(r.HasFailure()),
	).Inc()

	n := r.Len()
	m.eventsPer.Observe(float64(n))
	if r.IsRoot() {
		m.events.Add(float64(n))
	}
}

// Unregister removes the metrics from the registerer passed to New.
func (m *Metrics) Unregister() {
	for _, c := range m.collectors {
		m.registerer.Unregister(c)
	}
}
