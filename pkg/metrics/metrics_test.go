package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ritzau/tag-flow/pkg/model"
)

func TestReport(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.ObserveRefresh(ResultApplied, 20*time.Millisecond)
	m.ObserveRefresh(ResultApplied, 30*time.Millisecond)
	m.ObserveRefresh(ResultStale, time.Millisecond)
	m.SetDataset(&model.Dataset{
		Nodes:         make([]model.Node, 4),
		Links:         make([]model.Link, 3),
		TotalCount:    10,
		UntaggedCount: 2,
	})
	m.AddFlowViolations(0)
	m.AddFlowViolations(2)
	m.ObserveSelection(nil)
	m.ObserveSelection(errors.New("unknown node"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues(ResultApplied)))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.refreshTotal.WithLabelValues(ResultStale)))
	assert.Equal(t, 4.0, testutil.ToFloat64(m.datasetNodes))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.datasetLinks))
	assert.Equal(t, 10.0, testutil.ToFloat64(m.datasetRecords.WithLabelValues("total")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.datasetRecords.WithLabelValues("untagged")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.flowViolations))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selectionTotal.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.selectionTotal.WithLabelValues(ResultError)))
	assert.Equal(t, 1, testutil.CollectAndCount(m.refreshDuration))
}

func TestNilReport(t *testing.T) {
	var m *Report
	assert.NotPanics(t, func() {
		m.ObserveRefresh(ResultError, time.Second)
		m.SetDataset(&model.Dataset{})
		m.AddFlowViolations(1)
		m.ObserveSelection(nil)
	})
}

func TestHandler(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)
	m.ObserveRefresh(ResultApplied, time.Millisecond)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body := rec.Body.String()
	assert.True(t, strings.Contains(body, `tagflow_refresh_total{result="applied"} 1`), body)
	assert.Contains(t, body, "tagflow_refresh_duration_seconds_bucket")
}
