// Package metrics exposes Prometheus metrics for report refreshes and chart
// interactions. A nil *Report is valid and records nothing.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ritzau/tag-flow/pkg/model"
)

// Refresh outcomes
const (
	ResultApplied   = "applied"
	ResultStale     = "stale"
	ResultCancelled = "cancelled"
	ResultError     = "error"
)

// Report holds the report's collectors
type Report struct {
	refreshTotal    *prometheus.CounterVec
	refreshDuration prometheus.Histogram
	datasetNodes    prometheus.Gauge
	datasetLinks    prometheus.Gauge
	datasetRecords  *prometheus.GaugeVec
	flowViolations  prometheus.Counter
	selectionTotal  *prometheus.CounterVec
}

// New registers the report collectors with reg
func New(reg prometheus.Registerer) *Report {
	factory := promauto.With(reg)
	return &Report{
		refreshTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagflow_refresh_total",
			Help: "Dataset refreshes by outcome",
		}, []string{"result"}),

		refreshDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "tagflow_refresh_duration_seconds",
			Help:    "Time from fetch start to dataset applied or dropped",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
		}),

		datasetNodes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tagflow_dataset_nodes",
			Help: "Nodes in the applied dataset",
		}),
		datasetLinks: factory.NewGauge(prometheus.GaugeOpts{
			Name: "tagflow_dataset_links",
			Help: "Links in the applied dataset",
		}),
		datasetRecords: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "tagflow_dataset_fact_sheets",
			Help: "Fact sheets behind the applied dataset",
		}, []string{"kind"}),

		flowViolations: factory.NewCounter(prometheus.CounterOpts{
			Name: "tagflow_flow_violations_total",
			Help: "Nodes whose inflow and outflow disagreed after aggregation",
		}),

		selectionTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "tagflow_selection_total",
			Help: "Chart clicks resolved to fact sheet lists, by outcome",
		}, []string{"result"}),
	}
}

// ObserveRefresh records one refresh outcome
func (m *Report) ObserveRefresh(result string, d time.Duration) {
	if m == nil {
		return
	}
	m.refreshTotal.WithLabelValues(result).Inc()
	m.refreshDuration.Observe(d.Seconds())
}

// SetDataset records the size of the applied dataset
func (m *Report) SetDataset(ds *model.Dataset) {
	if m == nil {
		return
	}
	m.datasetNodes.Set(float64(len(ds.Nodes)))
	m.datasetLinks.Set(float64(len(ds.Links)))
	m.datasetRecords.WithLabelValues("total").Set(float64(ds.TotalCount))
	m.datasetRecords.WithLabelValues("untagged").Set(float64(ds.UntaggedCount))
}

// AddFlowViolations counts conservation violations
func (m *Report) AddFlowViolations(n int) {
	if m == nil || n == 0 {
		return
	}
	m.flowViolations.Add(float64(n))
}

// ObserveSelection records a resolved or rejected chart click
func (m *Report) ObserveSelection(err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = ResultError
	}
	m.selectionTotal.WithLabelValues(result).Inc()
}

// Handler serves the metrics gathered by g
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
